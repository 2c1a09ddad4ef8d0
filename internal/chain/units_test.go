package chain

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int32
		want     string
		wantErr  bool
	}{
		{name: "whole amount", amount: "100", decimals: 6, want: "100000000"},
		{name: "fractional amount", amount: "1.5", decimals: 6, want: "1500000"},
		{name: "full precision", amount: "0.000001", decimals: 6, want: "1"},
		{name: "eighteen decimals", amount: "2.5", decimals: 18, want: "2500000000000000000"},
		{name: "excess precision rejected", amount: "0.0000001", decimals: 6, wantErr: true},
		{name: "zero rejected", amount: "0", decimals: 6, wantErr: true},
		{name: "negative rejected", amount: "-1", decimals: 6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			if err != nil {
				t.Fatalf("bad test amount: %v", err)
			}

			got, err := ToBaseUnits(amount, tt.decimals)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFromBaseUnits(t *testing.T) {
	got := FromBaseUnits(big.NewInt(1500000), 6)
	if !got.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("got %s, want 1.5", got)
	}
}

func TestRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("123.456789")
	base, err := ToBaseUnits(amount, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back := FromBaseUnits(base, 6); !back.Equal(amount) {
		t.Errorf("round trip: got %s, want %s", back, amount)
	}
}

func TestIsHexAddress(t *testing.T) {
	valid := []string{
		"0x1234567890abcdef1234567890abcdef12345678",
		"0xABCDEF1234567890ABCDEF1234567890ABCDEF12",
	}
	for _, addr := range valid {
		if !IsHexAddress(addr) {
			t.Errorf("expected %s to be valid", addr)
		}
	}

	invalid := []string{
		"",
		"0x12345",
		"1234567890abcdef1234567890abcdef12345678",
		"0x1234567890abcdef1234567890abcdef1234567g",
		"TX5GQsxNgvtJR7dXnkUvB3v6p2rAbcDeF1234567",
	}
	for _, addr := range invalid {
		if IsHexAddress(addr) {
			t.Errorf("expected %s to be invalid", addr)
		}
	}
}

func TestIsTronAddress(t *testing.T) {
	if !IsTronAddress("TJRabPrwbZy45sbavfcjinPJC18kjpRTv8") {
		t.Error("expected valid TRON address to pass")
	}

	invalid := []string{
		"",
		"TJRabPrwbZy45sbavfcjinPJC18kjpRTv",  // too short
		"AJRabPrwbZy45sbavfcjinPJC18kjpRTv8", // wrong prefix
		"TJRabPrwbZy45sbavfcjinPJC18kjp0Tv8", // contains 0 (not Base58)
		"0x1234567890abcdef1234567890abcdef12345678",
	}
	for _, addr := range invalid {
		if IsTronAddress(addr) {
			t.Errorf("expected %s to be invalid", addr)
		}
	}
}
