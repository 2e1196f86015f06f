package odds

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/atmx/scratch-engine/internal/rng"
)

func TestNewTable_Validation(t *testing.T) {
	tests := []struct {
		name       string
		thresholds []uint32
		values     []string
		wantErr    error
	}{
		{"empty", nil, nil, nil},
		{"length mismatch", []uint32{10}, []string{"a", "b"}, ErrLengthMismatch},
		{"exactly 100%", []uint32{60000, 40000}, []string{"a", "b"}, nil},
		{"over 100%", []uint32{60000, 40001}, []string{"a", "b"}, ErrExceedsHundredPercent},
		{"duplicate", []uint32{500, 500}, []string{"a", "b"}, ErrDuplicateThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.thresholds, tt.values)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewTable_SortsAscending(t *testing.T) {
	tbl := MustTable([]uint32{3000, 100, 20000}, []string{"mid", "rare", "common"})
	entries := tbl.entries
	want := []string{"rare", "mid", "common"}
	for i, e := range entries {
		if e.Value != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Value, want[i])
		}
	}
	if tbl.Sum() != 23100 {
		t.Errorf("expected sum 23100, got %d", tbl.Sum())
	}
}

func TestPick_CumulativeBuckets(t *testing.T) {
	// Buckets: [0,100) -> 1000, [100,600) -> 50, [600,2600) -> 5, miss after.
	tbl := MustTable([]uint32{100, 500, 2000}, []uint64{1000, 50, 5})

	tests := []struct {
		r      uint64
		want   uint64
		wantOK bool
	}{
		{0, 1000, true},
		{99, 1000, true},
		{100, 50, true},
		{599, 50, true},
		{600, 5, true},
		{2599, 5, true},
		{2600, 0, false},
		{HundredPercent - 1, 0, false},
	}
	for _, tt := range tests {
		got, ok := tbl.Pick(tt.r)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Pick(%d) = (%d, %v), want (%d, %v)", tt.r, got, ok, tt.want, tt.wantOK)
		}
	}
}

// Subtracting the loop index instead of the entry weight makes r=1500 miss.
func TestPick_SubtractsEntryWeightNotIndex(t *testing.T) {
	tbl := MustTable([]uint32{1000, 1001, 1002}, []string{"a", "b", "c"})
	if v, _ := tbl.Pick(1500); v != "b" {
		t.Errorf("Pick(1500) = %s, want b", v)
	}
	if v, _ := tbl.Pick(2001); v != "c" {
		t.Errorf("Pick(2001) = %s, want c", v)
	}
	if _, ok := tbl.Pick(3003); ok {
		t.Error("Pick(3003) should miss")
	}
}

func TestPick_EmptyTableMisses(t *testing.T) {
	var tbl Table[uint64]
	if _, ok := tbl.Pick(0); ok {
		t.Error("empty table should always miss")
	}
}

func TestDraw_Distribution(t *testing.T) {
	tbl := MustTable([]uint32{10000, 20000, 30000}, []string{"a", "b", "c"})
	src := rng.NewSeeded(7)

	const n = 200_000
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		v, ok, err := tbl.Draw(src)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			v = "miss"
		}
		counts[v]++
	}

	want := map[string]float64{"a": 0.10, "b": 0.20, "c": 0.30, "miss": 0.40}
	for k, p := range want {
		freq := float64(counts[k]) / n
		if diff := freq - p; diff > 0.01 || diff < -0.01 {
			t.Errorf("%s frequency %.4f not close to %.2f", k, freq, p)
		}
	}
}

func TestDraw_PropagatesSourceError(t *testing.T) {
	tbl := MustTable([]uint32{100}, []uint64{1})
	_, _, err := tbl.Draw(rng.NewSequence())
	if !errors.Is(err, rng.ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestJSON_ValidatesOnDecode(t *testing.T) {
	var tbl Table[uint64]
	err := json.Unmarshal([]byte(`[{"odds":90000,"value":1},{"odds":20000,"value":2}]`), &tbl)
	if !errors.Is(err, ErrExceedsHundredPercent) {
		t.Errorf("expected ErrExceedsHundredPercent, got %v", err)
	}

	src := MustTable([]uint32{200, 100}, []uint64{5, 9})
	data, err := json.Marshal(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &tbl); err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 2 || tbl.Sum() != 300 {
		t.Errorf("decoded table len=%d sum=%d", tbl.Len(), tbl.Sum())
	}
}
