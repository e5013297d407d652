package market

import (
	"encoding/json"
	"math"
	"testing"
)

func TestFloatFromAny(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{in: 0.25, want: 0.25, ok: true},
		{in: float32(1.5), want: 1.5, ok: true},
		{in: int64(-42), want: -42, ok: true},
		{in: uint8(7), want: 7, ok: true},
		{in: json.Number("3.5"), want: 3.5, ok: true},
		{in: " 0.31 ", want: 0.31, ok: true},
		{in: "1,500", want: 1500, ok: true},
		{in: "", ok: false},
		{in: "n/a", ok: false},
		{in: math.NaN(), ok: false},
		{in: math.Inf(1), ok: false},
		{in: "NaN", ok: false},
		{in: nil, ok: false},
		{in: []any{1}, ok: false},
	}
	for _, tc := range cases {
		got, ok := floatFromAny(tc.in)
		if ok != tc.ok {
			t.Fatalf("%#v: expected ok=%v, got %v", tc.in, tc.ok, ok)
		}
		if ok && !closeEnough(got, tc.want) {
			t.Fatalf("%#v: expected %f, got %f", tc.in, tc.want, got)
		}
	}
}

func TestLastFloatSkipsUnparseableRows(t *testing.T) {
	rows := []map[string]any{
		{"mrkt_basis": "0.10"},
		{"mrkt_basis": "0.22"},
		{"mrkt_basis": ""},
		{"other": "1"},
	}
	got, ok := lastFloat(rows, "mrkt_basis")
	if !ok {
		t.Fatalf("expected value")
	}
	if !closeEnough(got, 0.22) {
		t.Fatalf("expected 0.22, got %f", got)
	}
	if _, ok := lastFloat(rows, "missing"); ok {
		t.Fatalf("expected no value for missing key")
	}
}

func closeEnough(a, b float64) bool {
	const eps = 1e-9
	if a > b {
		return a-b < eps
	}
	return b-a < eps
}
