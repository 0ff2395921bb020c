package tuple

import (
	"encoding/binary"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/tuplelab/core/dberror"
)

const sampleLine = "4000|69568|F|133466.83|1992-01-04|5-LOW|Clerk#000000339|0|le carefully closely even pinto beans. regular, ironic foxes against the|"

func sampleOrder() *Order {
	return &Order{
		OrderKey:         4000,
		CustomerKey:      69568,
		Status:           'F',
		TotalPrice:       133466.83,
		OrderDate:        "1992-01-04",
		OrderPriority:    "5-LOW",
		Clerk:            "Clerk#000000339",
		ShippingPriority: 0,
		Comment:          "le carefully closely even pinto beans. regular, ironic foxes against the",
	}
}

func TestParseOrderLine(t *testing.T) {
	o, err := ParseOrderLine(sampleLine)
	require.NoError(t, err)
	require.True(t, sampleOrder().Equal(o), "got %s", o)
	require.Equal(t, sampleLine, o.String())

	// Trailing delimiter may be absent.
	o, err = ParseOrderLine(strings.TrimSuffix(sampleLine, "|"))
	require.NoError(t, err)
	require.True(t, sampleOrder().Equal(o))
}

func TestParseOrderLine_Errors(t *testing.T) {
	cases := map[string]string{
		"too few fields":   "1|2|F|3.0|",
		"bad order key":    "x|69568|F|1.0|d|p|c|0|comment|",
		"bad price":        "1|69568|F|abc|d|p|c|0|comment|",
		"multi-char state": "1|69568|FO|1.0|d|p|c|0|comment|",
		"extra field":      "1|2|F|1.0|d|p|c|0|comment|extra|",
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOrderLine(line)
			require.ErrorIs(t, err, dberror.ErrParse)
		})
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	orders := []*Order{
		sampleOrder(),
		{},
		{OrderKey: -1, CustomerKey: math.MaxInt32, Status: 'ü', TotalPrice: -0.5, OrderDate: "", Comment: "ünïcødé | text"},
	}
	for _, o := range orders {
		data, err := o.Serialize()
		require.NoError(t, err)
		got, err := Deserialize(data)
		require.NoError(t, err)
		require.True(t, o.Equal(got), "want %s got %s", o, got)
	}
}

func TestSerializeFieldOrder(t *testing.T) {
	o := &Order{OrderKey: 1, CustomerKey: 2, ShippingPriority: 3, OrderDate: "d", OrderPriority: "pp", Clerk: "", Comment: "c", Status: 'O', TotalPrice: 1.5}
	data, err := o.Serialize()
	require.NoError(t, err)

	require.Equal(t, uint32(1), binary.BigEndian.Uint32(data[0:]))
	require.Equal(t, uint32(2), binary.BigEndian.Uint32(data[4:]))
	require.Equal(t, uint32(3), binary.BigEndian.Uint32(data[8:]))
	require.Equal(t, []byte{0, 1, 'd', 0, 2, 'p', 'p', 0, 0, 0, 1, 'c'}, data[12:24])
	require.Equal(t, uint16('O'), binary.BigEndian.Uint16(data[24:]))
	require.Equal(t, 1.5, math.Float64frombits(binary.BigEndian.Uint64(data[26:])))
	require.Len(t, data, 34)
}

func TestDeserialize_Malformed(t *testing.T) {
	data, err := sampleOrder().Serialize()
	require.NoError(t, err)

	_, err = Deserialize(data[:len(data)-3])
	require.ErrorIs(t, err, dberror.ErrDeserialization)

	_, err = Deserialize(append(data, 0x00))
	require.ErrorIs(t, err, dberror.ErrDeserialization)

	_, err = Deserialize(nil)
	require.ErrorIs(t, err, dberror.ErrDeserialization)
}

func TestSerialize_RejectsWideStatus(t *testing.T) {
	o := sampleOrder()
	o.Status = '😀'
	_, err := o.Serialize()
	require.ErrorIs(t, err, dberror.ErrSerialization)
}

func TestEqual_PriceTolerance(t *testing.T) {
	a, b := sampleOrder(), sampleOrder()
	b.TotalPrice += 0.0009
	require.True(t, a.Equal(b))
	b.TotalPrice += 0.001
	require.False(t, a.Equal(b))

	c := sampleOrder()
	c.Clerk = "someone else"
	require.False(t, a.Equal(c))
}

func TestReader(t *testing.T) {
	src := sampleLine + "\n\n" + "1|2|O|10.25|1996-01-02|1-URGENT|Clerk#1|0|quick|\n"
	r := NewReader(strings.NewReader(src))

	o, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, int32(4000), o.OrderKey)

	o, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, int32(1), o.OrderKey)
	require.Equal(t, 3, r.Line())

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReader_ReportsLine(t *testing.T) {
	r := NewReader(strings.NewReader(sampleLine + "\nbroken\n"))
	_, err := r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.ErrorIs(t, err, dberror.ErrParse)
	require.Contains(t, err.Error(), "line 2")
}
