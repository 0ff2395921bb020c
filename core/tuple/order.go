// Package tuple defines the Order record and its binary and text encodings.
package tuple

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sushant-115/tuplelab/core/dberror"
)

// PriceTolerance is the absolute tolerance Equal applies to TotalPrice.
const PriceTolerance = 0.001

// Order is one row of the TPC-H orders table.
type Order struct {
	OrderKey         int32
	CustomerKey      int32
	Status           rune
	TotalPrice       float64
	OrderDate        string
	OrderPriority    string
	Clerk            string
	ShippingPriority int32
	Comment          string
}

// Equal compares every field, TotalPrice within PriceTolerance.
func (o *Order) Equal(other *Order) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.OrderKey == other.OrderKey &&
		o.CustomerKey == other.CustomerKey &&
		o.ShippingPriority == other.ShippingPriority &&
		o.OrderDate == other.OrderDate &&
		o.OrderPriority == other.OrderPriority &&
		o.Clerk == other.Clerk &&
		o.Comment == other.Comment &&
		o.Status == other.Status &&
		math.Abs(o.TotalPrice-other.TotalPrice) < PriceTolerance
}

// String renders the order as a pipe-delimited line with a trailing pipe.
func (o *Order) String() string {
	var sb strings.Builder
	fields := []string{
		strconv.FormatInt(int64(o.OrderKey), 10),
		strconv.FormatInt(int64(o.CustomerKey), 10),
		string(o.Status),
		strconv.FormatFloat(o.TotalPrice, 'f', -1, 64),
		o.OrderDate,
		o.OrderPriority,
		o.Clerk,
		strconv.FormatInt(int64(o.ShippingPriority), 10),
		o.Comment,
	}
	for _, f := range fields {
		sb.WriteString(f)
		sb.WriteByte('|')
	}
	return sb.String()
}

// --- Binary Encoding ---
//
// Field order is fixed: order key, customer key, shipping priority (int32
// each), order date, order priority, clerk, comment (uint16 length + UTF-8
// each), status (2 bytes), total price (IEEE-754 float64). Big-endian
// throughout.

// Serialize encodes the order.
func (o *Order) Serialize() ([]byte, error) {
	if o.Status < 0 || o.Status > math.MaxUint16 {
		return nil, fmt.Errorf("%w: status %q does not fit in 2 bytes", dberror.ErrSerialization, o.Status)
	}
	buf := new(bytes.Buffer)
	buf.Grow(4*3 + 2*4 + len(o.OrderDate) + len(o.OrderPriority) + len(o.Clerk) + len(o.Comment) + 2 + 8)

	var scratch [8]byte
	for _, v := range []int32{o.OrderKey, o.CustomerKey, o.ShippingPriority} {
		binary.BigEndian.PutUint32(scratch[:4], uint32(v))
		buf.Write(scratch[:4])
	}
	for _, s := range []string{o.OrderDate, o.OrderPriority, o.Clerk, o.Comment} {
		if err := writeString(buf, s); err != nil {
			return nil, err
		}
	}
	binary.BigEndian.PutUint16(scratch[:2], uint16(o.Status))
	buf.Write(scratch[:2])
	binary.BigEndian.PutUint64(scratch[:], math.Float64bits(o.TotalPrice))
	buf.Write(scratch[:])
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%w: string of %d bytes exceeds length prefix", dberror.ErrSerialization, len(s))
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: string is not valid UTF-8", dberror.ErrSerialization)
	}
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(s)))
	buf.Write(prefix[:])
	buf.WriteString(s)
	return nil
}

// Deserialize decodes bytes produced by Serialize. Trailing bytes are an
// error.
func Deserialize(data []byte) (*Order, error) {
	r := bytes.NewReader(data)
	o := &Order{}

	for _, dst := range []*int32{&o.OrderKey, &o.CustomerKey, &o.ShippingPriority} {
		if err := binary.Read(r, binary.BigEndian, dst); err != nil {
			return nil, fmt.Errorf("%w: reading integer field: %v", dberror.ErrDeserialization, err)
		}
	}
	for _, dst := range []*string{&o.OrderDate, &o.OrderPriority, &o.Clerk, &o.Comment} {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		*dst = s
	}
	var status uint16
	if err := binary.Read(r, binary.BigEndian, &status); err != nil {
		return nil, fmt.Errorf("%w: reading status: %v", dberror.ErrDeserialization, err)
	}
	o.Status = rune(status)
	var priceBits uint64
	if err := binary.Read(r, binary.BigEndian, &priceBits); err != nil {
		return nil, fmt.Errorf("%w: reading total price: %v", dberror.ErrDeserialization, err)
	}
	o.TotalPrice = math.Float64frombits(priceBits)

	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", dberror.ErrDeserialization, r.Len())
	}
	return o, nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", fmt.Errorf("%w: reading string length: %v", dberror.ErrDeserialization, err)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: reading %d string bytes: %v", dberror.ErrDeserialization, n, err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: string is not valid UTF-8", dberror.ErrDeserialization)
	}
	return string(b), nil
}
