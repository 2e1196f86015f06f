package rng

import "testing"

func TestCryptoWithinBound(t *testing.T) {
	src := Crypto()
	for i := 0; i < 1000; i++ {
		v, err := src.Draw(7)
		if err != nil {
			t.Fatal(err)
		}
		if v >= 7 {
			t.Fatalf("draw %d out of range [0,7)", v)
		}
	}
	if _, err := src.Draw(0); err != ErrZeroBound {
		t.Errorf("expected ErrZeroBound, got %v", err)
	}
}

func TestSeededIsReplayable(t *testing.T) {
	a, b := NewSeeded(42), NewSeeded(42)
	for i := 0; i < 100; i++ {
		va, _ := a.Draw(100000)
		vb, _ := b.Draw(100000)
		if va != vb {
			t.Fatalf("draw %d diverged: %d != %d", i, va, vb)
		}
	}
}

func TestSequence(t *testing.T) {
	s := NewSequence(5, 12, 3)
	want := []uint64{5, 2, 3}
	for i, w := range want {
		got, err := s.Draw(10)
		if err != nil {
			t.Fatal(err)
		}
		if got != w {
			t.Errorf("draw %d = %d, want %d", i, got, w)
		}
	}
	if s.Used() != 3 {
		t.Errorf("expected 3 used, got %d", s.Used())
	}
	if _, err := s.Draw(10); err != ErrExhausted {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}
