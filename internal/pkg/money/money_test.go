package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFromDecimalString(t *testing.T) {
	tests := []struct {
		in   string
		want Amount
	}{
		{in: "129.90", want: 12990},
		{in: "129.9", want: 12990},
		{in: "0", want: 0},
		{in: "0.01", want: 1},
		{in: "250", want: 25000},
		{in: "-5.50", want: -550},
	}

	for _, tt := range tests {
		got, err := FromDecimalString(tt.in)
		if err != nil {
			t.Fatalf("FromDecimalString(%q) returned error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("FromDecimalString(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFromDecimalString_ExcessPrecision(t *testing.T) {
	for _, in := range []string{"129.901", "0.001", "1.005", "99.999"} {
		if _, err := FromDecimalString(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("FromDecimalString(%q) = %v, want ErrInvalidAmount", in, err)
		}
	}
}

func TestFromDecimalString_Garbage(t *testing.T) {
	for _, in := range []string{"", "abc", "12,90"} {
		if _, err := FromDecimalString(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("FromDecimalString(%q) = %v, want ErrInvalidAmount", in, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	// decode(encode(x)) == x for every representable value
	for _, s := range []string{"0.00", "0.01", "1.00", "129.90", "9999.99"} {
		a, err := FromDecimalString(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if a.String() != s {
			t.Fatalf("round trip %q -> %q", s, a.String())
		}
	}
}

func TestFromDecimal(t *testing.T) {
	a, err := FromDecimal(decimal.RequireFromString("49.50"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != 4950 {
		t.Fatalf("got %d, want 4950", a)
	}

	if _, err := FromDecimal(decimal.RequireFromString("49.505")); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestArithmetic(t *testing.T) {
	a := Amount(12990)
	if a.Add(10) != 13000 {
		t.Fatalf("Add: got %d", a.Add(10))
	}
	if a.MulQuantity(3) != 38970 {
		t.Fatalf("MulQuantity: got %d", a.MulQuantity(3))
	}
	if a.Minor() != 12990 {
		t.Fatalf("Minor: got %d", a.Minor())
	}
	if a.String() != "129.90" {
		t.Fatalf("String: got %q", a.String())
	}
}
