package pipeline

import (
	"context"

	"github.com/dmirauta/table-ocr/internal/data"
	"github.com/dmirauta/table-ocr/internal/logger"
	"github.com/dmirauta/table-ocr/internal/ocr"
)

func performOcr(ctx context.Context, jobs <-chan job, results chan<- ocr.CellResult) error {
	clients, err := clientsFrom(ctx)
	if err != nil {
		logger.DebugLog("[performOcr]: %v", err)
		return err
	}

	for j := range jobs {
		if ctx.Err() != nil {
			logger.DebugLog("[performOcr]: context cancelled")
			return ctx.Err()
		}

		text, err := recognizeCell(clients, j)
		logger.DebugLog("[performOcr]: sending result for cell (%d,%d) (err=%v)", j.Row, j.Col, err)
		select {
		case results <- ocr.CellResult{Cell: j.Cell, Text: text, Error: err}:
		case <-ctx.Done():
			logger.DebugLog("[performOcr]: context done while sending cell (%d,%d)", j.Row, j.Col)
			return ctx.Err()
		}
	}
	return nil
}

// recognizeCell runs one job end to end. Temp files are released on every
// path; a failed release fails the cell too.
func recognizeCell(clients *Clients, j job) (text string, err error) {
	cell, err := exportCrop(clients, j)
	if err != nil {
		return "", err
	}
	defer func() {
		if rerr := cell.release(); rerr != nil && err == nil {
			text, err = "", rerr
		}
	}()

	raw, err := clients.engine.ProcessImage(cell.imagePath, cell.textPath)
	if err != nil {
		return "", err
	}
	return data.Clean(raw, clients.cleaning), nil
}
