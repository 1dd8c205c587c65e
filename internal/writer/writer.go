// Package writer exports assembled tables as RFC 4180 CSV.
package writer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmirauta/table-ocr/internal/data"
)

var ErrWriterClosed = errors.New("writer is shutting down")

type writeRequest struct {
	table      *data.Table
	outputPath string
	responseCh chan error
}

// CSVWriter serializes file exports through one goroutine so two exports to
// the same path never interleave. Every export replaces the file whole.
type CSVWriter struct {
	queue    chan writeRequest
	shutdown chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewCSVWriter() *CSVWriter {
	cw := &CSVWriter{
		queue:    make(chan writeRequest, 16),
		shutdown: make(chan struct{}),
	}
	cw.startWorker()
	return cw
}

func (cw *CSVWriter) startWorker() {
	cw.wg.Add(1)
	go func() {
		defer cw.wg.Done()
		for {
			select {
			case req := <-cw.queue:
				req.responseCh <- writeFileSync(req.table, req.outputPath)
			case <-cw.shutdown:
				return
			}
		}
	}()
}

func (cw *CSVWriter) Close() {
	cw.once.Do(func() {
		close(cw.shutdown)
		cw.wg.Wait()
	})
}

// WriteFile blocks until table is on disk at outputPath or the writer closes.
func (cw *CSVWriter) WriteFile(table *data.Table, outputPath string) error {
	select {
	case <-cw.shutdown:
		return ErrWriterClosed
	default:
	}

	responseCh := make(chan error, 1)
	select {
	case cw.queue <- writeRequest{table: table, outputPath: outputPath, responseCh: responseCh}:
	case <-cw.shutdown:
		return ErrWriterClosed
	}
	select {
	case err := <-responseCh:
		return err
	case <-cw.shutdown:
		return ErrWriterClosed
	}
}

// writeFileSync writes next to outputPath and renames over it, so a failed
// export leaves any previous file intact.
func writeFileSync(table *data.Table, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("opening CSV file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteTable(tmp, table); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing CSV file: %w", err)
	}
	if err := os.Rename(tmp.Name(), outputPath); err != nil {
		return fmt.Errorf("replacing %s: %w", outputPath, err)
	}
	return nil
}

// WriteTable encodes table to w, one record per row, no header.
func WriteTable(w io.Writer, table *data.Table) error {
	writer := csv.NewWriter(w)
	for _, row := range table.Items {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
