package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dmirauta/table-ocr/internal/image"
	"github.com/dmirauta/table-ocr/internal/logger"
	"github.com/dmirauta/table-ocr/internal/ocr"
	"github.com/dmirauta/table-ocr/internal/ocr/engine"
)

var (
	ErrJobCrop    = errors.New("exporting cell crop")
	ErrJobCleanup = errors.New("removing cell temp files")
)

type exportedCell struct {
	ocr.Cell
	imagePath string
	textPath  string
	release   func() error
}

// CropPath and TextPath name a cell's temp files. They depend only on the
// cell, so concurrent jobs never collide and leftovers are easy to trace.
func CropPath(dir string, c ocr.Cell) string {
	return filepath.Join(dir, fmt.Sprintf("ocr_crop_%d_%d.png", c.Row, c.Col))
}

func TextPath(dir string, c ocr.Cell) string {
	return filepath.Join(dir, fmt.Sprintf("ocr_out_%d_%d", c.Row, c.Col))
}

// exportCrop writes the cell's pixels to its temp image. The returned release
// removes every file the job may have produced and must always be called.
func exportCrop(clients *Clients, j job) (exportedCell, error) {
	cell := exportedCell{
		Cell:      j.Cell,
		imagePath: CropPath(clients.tempDir, j.Cell),
		textPath:  TextPath(clients.tempDir, j.Cell),
	}
	cell.release = func() error {
		return cleanupCell(clients.image, cell)
	}

	crop := image.CropRegion(clients.source, j.col.Lo, j.col.Hi, j.row.Lo, j.row.Hi)
	logger.DebugLog("[exportCrop]: cell (%d,%d) size=%v -> %s", j.Row, j.Col, crop.Size, cell.imagePath)
	if err := clients.image.SaveCrop(crop, cell.imagePath, clients.enhance); err != nil {
		if rerr := cell.release(); rerr != nil {
			logger.ErrorLog("[exportCrop]: %v", rerr)
		}
		return exportedCell{}, fmt.Errorf("%w: %w", ErrJobCrop, err)
	}
	return cell, nil
}

func cleanupCell(ip *image.ImageProcessor, cell exportedCell) error {
	paths := append([]string{cell.imagePath}, engine.OutputPaths(cell.textPath)...)
	var errs []error
	for _, path := range paths {
		if err := ip.Cleanup(path); err != nil {
			logger.DebugLog("[cleanupCell]: error cleaning up %s: %v", path, err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w for cell (%d,%d): %w", ErrJobCleanup, cell.Row, cell.Col, errors.Join(errs...))
	}
	return nil
}
