package pipeline

import (
	"context"

	"github.com/dmirauta/table-ocr/internal/data"
	"github.com/dmirauta/table-ocr/internal/logger"
	"github.com/dmirauta/table-ocr/internal/ocr"
)

type runResult struct {
	table    *data.Table
	failures map[ocr.Cell]error
}

// assembleTable is the only writer of the table, so completion order does not
// matter: a failed cell keeps its empty string.
func assembleTable(ctx context.Context, cellResults <-chan ocr.CellResult, results *runResult, progress func()) {
	for res := range cellResults {
		if res.Error != nil {
			logger.ErrorLog("[assembleTable]: cell (%d,%d) left empty: %v", res.Row, res.Col, res.Error)
			results.failures[res.Cell] = res.Error
		} else if !results.table.Set(res.Row, res.Col, res.Text) {
			logger.DebugLog("[assembleTable]: cell (%d,%d) outside table", res.Row, res.Col)
		}

		if progress != nil {
			progress()
		}
	}
	if ctx.Err() != nil {
		logger.DebugLog("[assembleTable]: context cancelled")
	}
}
