package tuple

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sushant-115/tuplelab/core/dberror"
)

const orderFieldCount = 9

// ParseOrderLine parses one pipe-delimited orders line:
//
//	orderkey|custkey|status|totalprice|orderdate|orderpriority|clerk|shippriority|comment|
//
// The trailing delimiter is optional.
func ParseOrderLine(line string) (*Order, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, "|")
	if len(fields) == orderFieldCount+1 && fields[orderFieldCount] == "" {
		fields = fields[:orderFieldCount]
	}
	if len(fields) != orderFieldCount {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", dberror.ErrParse, orderFieldCount, len(fields))
	}

	o := &Order{
		OrderDate:     fields[4],
		OrderPriority: fields[5],
		Clerk:         fields[6],
		Comment:       fields[8],
	}
	var err error
	if o.OrderKey, err = parseInt32(fields[0], "order key"); err != nil {
		return nil, err
	}
	if o.CustomerKey, err = parseInt32(fields[1], "customer key"); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(fields[2]) != 1 {
		return nil, fmt.Errorf("%w: order status %q must be a single character", dberror.ErrParse, fields[2])
	}
	o.Status, _ = utf8.DecodeRuneInString(fields[2])
	if o.TotalPrice, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return nil, fmt.Errorf("%w: total price %q: %v", dberror.ErrParse, fields[3], err)
	}
	if o.ShippingPriority, err = parseInt32(fields[7], "shipping priority"); err != nil {
		return nil, err
	}
	return o, nil
}

func parseInt32(s, field string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", dberror.ErrParse, field, s, err)
	}
	return int32(v), nil
}

// Reader streams orders from a pipe-delimited source, skipping blank lines.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next returns the next order, or io.EOF when the source is exhausted.
func (r *Reader) Next() (*Order, error) {
	for r.scanner.Scan() {
		r.line++
		text := r.scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		o, err := ParseOrderLine(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		return o, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Line is the number of the last line consumed.
func (r *Reader) Line() int { return r.line }
