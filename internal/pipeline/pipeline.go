// Package pipeline turns a grid laid over an image into a table: one
// recognition job per cell, run on a bounded worker pool, with every job's
// failure contained to its own cell.
package pipeline

import (
	"context"
	"fmt"
	goimage "image"
	"os"
	"runtime"

	"github.com/dmirauta/table-ocr/internal/data"
	"github.com/dmirauta/table-ocr/internal/grid"
	"github.com/dmirauta/table-ocr/internal/image"
	"github.com/dmirauta/table-ocr/internal/logger"
	"github.com/dmirauta/table-ocr/internal/ocr"
	"golang.org/x/sync/errgroup"
)

// Params is a snapshot: nothing in it is shared with the caller once Run
// starts.
type Params struct {
	Grid  *grid.Grid
	Image *goimage.NRGBA

	// EngineType and Template select the recognizer (see ocr.NewEngine).
	// Engine, when set, is used as is and not closed by Run.
	EngineType string
	Template   string
	Engine     ocr.OCREngine

	Cleaning data.CleaningOptions
	Enhance  bool

	// Workers caps concurrent jobs; zero means runtime.NumCPU().
	Workers int
	TempDir string
}

type Result struct {
	Table    *data.Table
	Failures map[ocr.Cell]error
}

type Clients struct {
	engine   ocr.OCREngine
	image    *image.ImageProcessor
	source   *goimage.NRGBA
	cleaning data.CleaningOptions
	enhance  bool
	tempDir  string
}

type contextKey string

const clientsKey contextKey = "all_my_clients"

// Jobs returns the number of recognition jobs g produces.
func Jobs(g *grid.Grid) int {
	return g.Rows() * g.Cols()
}

// Run blocks until every cell has resolved. progress, if not nil, is called
// once per resolved cell whether it succeeded or not. The returned error
// covers setup only; per-cell failures are in Result.Failures.
func Run(ctx context.Context, params Params, progress func()) (Result, error) {
	if params.Grid == nil || params.Image == nil {
		return Result{}, fmt.Errorf("pipeline needs a grid and an image")
	}
	if err := params.Grid.Validate(); err != nil {
		return Result{}, err
	}
	g := params.Grid.Clone()
	g.Sort()
	total := Jobs(g)
	logger.DebugLog("Pipeline started with engineType=%s, rows=%d, cols=%d", params.EngineType, g.Rows(), g.Cols())

	ocrEngine := params.Engine
	if ocrEngine == nil {
		var err error
		ocrEngine, err = ocr.NewEngine(params.EngineType, params.Template)
		if err != nil {
			logger.DebugLog("Failed to create OCR engine: %v", err)
			return Result{}, fmt.Errorf("creating OCR engine: %w", err)
		}
		defer func() {
			logger.DebugLog("Closing OCR engine")
			ocrEngine.Close()
		}()
	}

	tempDir := params.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	clients := &Clients{
		engine:   ocrEngine,
		image:    image.NewImageProcessor(),
		source:   params.Image,
		cleaning: params.Cleaning,
		enhance:  params.Enhance,
		tempDir:  tempDir,
	}
	ctx = context.WithValue(ctx, clientsKey, clients)

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = max(1, min(workers, total))

	jobs := make(chan job)
	cellResults := make(chan ocr.CellResult, workers)
	results := &runResult{
		table:    data.NewTable(g.Rows(), g.Cols()),
		failures: make(map[ocr.Cell]error),
	}

	go func() {
		defer close(jobs)
		logger.DebugLog("Starting [enumerateJobs] goroutine")
		enumerateJobs(ctx, g, jobs)
		defer logger.DebugLog("[enumerateJobs] goroutine finished")
	}()

	var eg errgroup.Group
	for i := 0; i < workers; i++ {
		worker := i
		eg.Go(func() error {
			logger.DebugLog("Starting [performOcr] worker #%d", worker+1)
			defer logger.DebugLog("[performOcr] worker #%d finished", worker+1)
			return performOcr(ctx, jobs, cellResults)
		})
	}
	go func() {
		if err := eg.Wait(); err != nil {
			logger.DebugLog("[performOcr] workers stopped early: %v", err)
		}
		logger.DebugLog("All [performOcr] workers finished, closing cellResults")
		close(cellResults)
	}()

	assembleTable(ctx, cellResults, results, progress)

	logger.DebugLog("Pipeline finished: %d cells, %d failed", total, len(results.failures))
	return Result{Table: results.table, Failures: results.failures}, ctx.Err()
}

func clientsFrom(ctx context.Context) (*Clients, error) {
	proc, ok := ctx.Value(clientsKey).(*Clients)
	if !ok {
		return nil, fmt.Errorf("missing clients in context")
	}
	return proc, nil
}
