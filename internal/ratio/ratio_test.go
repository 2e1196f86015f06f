package ratio

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestNew_ZeroDenominator(t *testing.T) {
	_, err := New(3, 0)
	if err != ErrInvalidRatio {
		t.Errorf("expected ErrInvalidRatio, got %v", err)
	}
}

func TestMultiply(t *testing.T) {
	tests := []struct {
		num, den uint64
		value    uint64
		want     uint64
	}{
		{1, 2, 100, 50},
		{3, 7, 0, 0},
		{1, 3, 10, 3}, // truncates 3.33
		{2, 3, 10, 6}, // truncates 6.66
		{1, 1, 12345, 12345},
		{0, 5, 1000, 0},
		{7, 1, 9, 63},
	}
	for _, tt := range tests {
		r := MustNew(tt.num, tt.den)
		got, err := r.Multiply(tt.value)
		if err != nil {
			t.Fatalf("%s * %d: unexpected error %v", r, tt.value, err)
		}
		if got != tt.want {
			t.Errorf("%s * %d = %d, want %d", r, tt.value, got, tt.want)
		}
	}
}

func TestMultiply_NoIntermediateOverflow(t *testing.T) {
	// value * numerator overflows uint64, the quotient does not.
	r := MustNew(math.MaxUint64-1, math.MaxUint64)
	got, err := r.Multiply(math.MaxUint64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != math.MaxUint64-1 {
		t.Errorf("expected %d, got %d", uint64(math.MaxUint64-1), got)
	}
}

func TestMultiply_ResultOverflow(t *testing.T) {
	r := MustNew(2, 1)
	_, err := r.Multiply(math.MaxUint64)
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestZeroValueRejectsMultiply(t *testing.T) {
	var r Ratio
	if !r.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	if _, err := r.Multiply(10); err != ErrInvalidRatio {
		t.Errorf("expected ErrInvalidRatio, got %v", err)
	}
}

func TestJSON_RejectsZeroDenominator(t *testing.T) {
	var r Ratio
	err := json.Unmarshal([]byte(`{"numerator":1,"denominator":0}`), &r)
	if err != ErrInvalidRatio {
		t.Errorf("expected ErrInvalidRatio, got %v", err)
	}

	if err := json.Unmarshal([]byte(`{"numerator":5,"denominator":4}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Numerator() != 5 || r.Denominator() != 4 {
		t.Errorf("decoded %s, want 5/4", r)
	}
}
