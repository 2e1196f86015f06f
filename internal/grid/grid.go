// Package grid builds and evaluates the 4×3 scratch-card grid.
package grid

import (
	"fmt"

	"github.com/atmx/scratch-engine/internal/odds"
	"github.com/atmx/scratch-engine/internal/rng"
)

const (
	Rows = 4
	Cols = 3
)

// Grid holds one prize value per cell; 0 is a blank cell.
type Grid [Rows][Cols]uint64

// Generate fills every cell with an independent draw from prizes (a miss
// leaves the cell at 0) and returns the grid with its win amount.
func Generate(prizes odds.Table[uint64], src rng.Source) (Grid, uint64, error) {
	var g Grid
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			v, ok, err := prizes.Draw(src)
			if err != nil {
				return Grid{}, 0, fmt.Errorf("grid: cell %d,%d: %w", r, c, err)
			}
			if ok {
				g[r][c] = v
			}
		}
	}
	return g, g.Evaluate(), nil
}

// Evaluate sums the value of every winning row. A row wins when its first
// cell is non-zero and all three cells are equal.
func (g Grid) Evaluate() uint64 {
	var total uint64
	for _, r := range g.WinningRows() {
		total += g[r][0]
	}
	return total
}

// WinningRows returns the indices of the rows that pay out.
func (g Grid) WinningRows() []int {
	var rows []int
	for r := 0; r < Rows; r++ {
		first := g[r][0]
		if first == 0 {
			continue
		}
		if g[r][1] == first && g[r][2] == first {
			rows = append(rows, r)
		}
	}
	return rows
}
