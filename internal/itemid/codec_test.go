package itemid

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestEncodeHex(t *testing.T) {
	tests := []struct {
		id   uint64
		want string
	}{
		{0, "0000000000000000"},
		{1000, "00000000000003e8"},
		{1700000000123456, "00060a2418202240"},
		{math.MaxInt64, "7fffffffffffffff"},
		{math.MaxUint64, "ffffffffffffffff"},
	}
	for _, tt := range tests {
		if got := EncodeHex(tt.id); got != tt.want {
			t.Errorf("EncodeHex(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestDecodeHex_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	values := []uint64{0, 1, 999, 1000, math.MaxUint32, math.MaxUint32 + 1, math.MaxInt64, math.MaxInt64 + 1, math.MaxUint64}
	for i := 0; i < 1000; i++ {
		values = append(values, r.Uint64())
	}

	for _, x := range values {
		got, err := DecodeHex(EncodeHex(x))
		if err != nil {
			t.Fatalf("DecodeHex(EncodeHex(%d)) returned error: %v", x, err)
		}
		if got != x {
			t.Errorf("DecodeHex(EncodeHex(%d)) = %d", x, got)
		}
	}
}

func TestDecimal_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		x := r.Uint64()
		hex, err := ToHex(FormatDecimal(x))
		if err != nil {
			t.Fatalf("ToHex(%d) returned error: %v", x, err)
		}
		if len(hex) != 16 {
			t.Errorf("len(ToHex(%d)) = %d, want 16", x, len(hex))
		}
		dec, err := ToDecimal(hex)
		if err != nil {
			t.Fatalf("ToDecimal(%q) returned error: %v", hex, err)
		}
		if dec != FormatDecimal(x) {
			t.Errorf("ToDecimal(ToHex(%d)) = %q", x, dec)
		}
	}
}

func TestToDecimal_SixteenDigitInputs(t *testing.T) {
	for _, hex := range []string{"0000000000000000", "00000000000003e8", "ffffffffffffffff", "0123456789abcdef"} {
		dec, err := ToDecimal(hex)
		if err != nil {
			t.Fatalf("ToDecimal(%q) returned error: %v", hex, err)
		}
		back, err := ToHex(dec)
		if err != nil {
			t.Fatalf("ToHex(%q) returned error: %v", dec, err)
		}
		if back != hex {
			t.Errorf("ToHex(ToDecimal(%q)) = %q", hex, back)
		}
	}
}

func TestDecodeHex_InvalidInput(t *testing.T) {
	for _, in := range []string{"", "xyz", "00000000000003g8", "10000000000000000", "-1", " 3e8"} {
		if _, err := DecodeHex(in); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("DecodeHex(%q) error = %v, want ErrInvalidFormat", in, err)
		}
	}
}

func TestParseDecimal_InvalidInput(t *testing.T) {
	for _, in := range []string{"", "abc", "-5", "18446744073709551616"} {
		if _, err := ParseDecimal(in); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("ParseDecimal(%q) error = %v, want ErrInvalidFormat", in, err)
		}
	}
}

func TestParseItemRef(t *testing.T) {
	tests := []struct {
		ref     string
		want    uint64
		wantErr bool
	}{
		{"tag:google.com,2005:reader/item/00000000000003e8", 1000, false},
		{"00000000000003e8", 1000, false},
		{"3e8", 1000, false},
		{"tag:google.com,2005:reader/item/", 0, true},
		{"tag:google.com,2005:reader/item/zz", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseItemRef(tt.ref)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseItemRef(%q) expected error", tt.ref)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseItemRef(%q) returned error: %v", tt.ref, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseItemRef(%q) = %d, want %d", tt.ref, got, tt.want)
		}
	}
}

func TestCrawlTimeMsec(t *testing.T) {
	tests := []struct {
		id   uint64
		want string
	}{
		{1700000000123456, "1700000000123"},
		{1000, "1"},
		{999, ""},
		{0, ""},
	}
	for _, tt := range tests {
		if got := CrawlTimeMsec(tt.id); got != tt.want {
			t.Errorf("CrawlTimeMsec(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
