package asset

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []string{
		"USDC",
		"0x2::sui::SUI",
		"bonus-token.v2",
		"a",
	}
	for _, s := range tests {
		id, err := Parse(s)
		if err != nil {
			t.Errorf("unexpected error for %q: %v", s, err)
		}
		if id.String() != s {
			t.Errorf("expected %q, got %q", s, id)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		" USDC",
		"-USDC",
		"US DC",
		"USDC$",
	}
	for _, s := range tests {
		_, err := Parse(s)
		if !errors.Is(err, ErrInvalidAsset) {
			t.Errorf("expected ErrInvalidAsset for %q, got %v", s, err)
		}
	}
}

func TestParseAll_StopsOnFirstError(t *testing.T) {
	_, err := ParseAll([]string{"USDC", "bad asset", "SUI"})
	if !errors.Is(err, ErrInvalidAsset) {
		t.Errorf("expected ErrInvalidAsset, got %v", err)
	}

	ids, err := ParseAll([]string{"USDC", "SUI"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[1] != "SUI" {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestSymbol(t *testing.T) {
	tests := map[ID]string{
		"0x2::sui::SUI": "SUI",
		"USDC":          "USDC",
		"0xabc::coin::": "",
	}
	for id, want := range tests {
		if got := id.Symbol(); got != want {
			t.Errorf("%s.Symbol() = %q, want %q", id, got, want)
		}
	}
}
