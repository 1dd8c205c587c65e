package pipeline

import (
	"context"

	"github.com/dmirauta/table-ocr/internal/grid"
	"github.com/dmirauta/table-ocr/internal/logger"
	"github.com/dmirauta/table-ocr/internal/ocr"
)

type job struct {
	ocr.Cell
	row grid.Gap
	col grid.Gap
}

// enumerateJobs emits the cross product of row gaps (top to bottom) and
// column gaps (left to right).
func enumerateJobs(ctx context.Context, g *grid.Grid, jobs chan<- job) {
	cols := g.ColGaps()
	for i, row := range g.RowGaps() {
		for j, col := range cols {
			if ctx.Err() != nil {
				logger.DebugLog("[enumerateJobs]: context cancelled")
				return
			}

			select {
			case jobs <- job{Cell: ocr.Cell{Row: i, Col: j}, row: row, col: col}:
			case <-ctx.Done():
				logger.DebugLog("[enumerateJobs]: context done while sending cell (%d,%d)", i, j)
				return
			}
		}
	}
}
