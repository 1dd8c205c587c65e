package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/dmirauta/table-ocr/internal/data"
	"github.com/dmirauta/table-ocr/internal/grid"
	"github.com/dmirauta/table-ocr/internal/ocr"
	"github.com/dmirauta/table-ocr/internal/session"
	"github.com/dmirauta/table-ocr/internal/task"
	"github.com/dmirauta/table-ocr/internal/writer"
)

const pollInterval = 100 * time.Millisecond

type CLI struct {
	imagePath  string
	rows       string
	cols       string
	engineType string
	template   string
	rotation   float64
	enhance    bool
	workers    int
	tempDir    string
	outputFile string
	format     string

	keepWhitespace   bool
	keepSingleQuotes bool
	keepDoubleQuotes bool
	keepNewlines     bool

	addr  string
	watch bool

	stdout io.Writer
	stderr io.Writer
}

func NewCLI() *CLI {
	return &CLI{
		engineType: ocr.Tesseract.String(),
		format:     "quoted",
		addr:       "127.0.0.1:8080",
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
}

// Run dispatches to a subcommand; with none given it extracts.
func (c *CLI) Run(args []string) error {
	cmd := "extract"
	if len(args) > 0 && (args[0] == "extract" || args[0] == "serve") {
		cmd, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("table-ocr "+cmd, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	c.bindFlags(fs, cmd)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd == "serve" {
		return c.serve(ctx)
	}
	return c.extract(ctx)
}

func (c *CLI) bindFlags(fs *flag.FlagSet, cmd string) {
	fs.StringVar(&c.imagePath, "image", c.imagePath, "Table image to read (png, jpeg, gif, bmp, tiff, webp)")
	fs.StringVar(&c.rows, "rows", c.rows, "Comma separated horizontal separator positions in [0,1], 0 is the bottom")
	fs.StringVar(&c.cols, "cols", c.cols, "Comma separated vertical separator positions in [0,1], 0 is the left")
	fs.StringVar(&c.engineType, "engine", c.engineType, "Recognizer (tesseract, cuneiform, command, ollama, gosseract)")
	fs.StringVar(&c.template, "cmd", c.template, "Recognizer command template using %img_in% and %txt_out%")
	fs.Float64Var(&c.rotation, "rotate", c.rotation, "Clockwise rotation in radians, at most pi/16 either way")
	fs.BoolVar(&c.enhance, "enhance", c.enhance, "Upscale, grayscale and sharpen crops before recognition")
	fs.IntVar(&c.workers, "workers", c.workers, "Concurrent recognizer jobs (0 means one per CPU)")
	fs.StringVar(&c.tempDir, "tmp", c.tempDir, "Directory for per-cell scratch files (default system temp)")
	fs.BoolVar(&c.keepWhitespace, "no-trim-ws", false, "Keep surrounding whitespace")
	fs.BoolVar(&c.keepSingleQuotes, "no-trim-single", false, "Keep surrounding single quotes")
	fs.BoolVar(&c.keepDoubleQuotes, "no-trim-double", false, "Keep surrounding double quotes")
	fs.BoolVar(&c.keepNewlines, "keep-newlines", false, "Keep newlines inside cells")

	if cmd == "serve" {
		fs.StringVar(&c.addr, "addr", c.addr, "Listen address")
		fs.BoolVar(&c.watch, "watch", c.watch, "Reload -image when it changes on disk")
		return
	}
	fs.StringVar(&c.outputFile, "output", c.outputFile, "Write the table here instead of stdout")
	fs.StringVar(&c.format, "format", c.format, "Table format (quoted, csv)")
}

func (c *CLI) config() session.Config {
	cleaning := data.DefaultCleaningOptions()
	cleaning.TrimWhitespace = !c.keepWhitespace
	cleaning.TrimSingleQuote = !c.keepSingleQuotes
	cleaning.TrimDoubleQuote = !c.keepDoubleQuotes
	cleaning.NoNewlines = !c.keepNewlines

	cfg := session.Config{
		EngineType: c.engineType,
		Template:   c.template,
		Cleaning:   cleaning,
		Enhance:    c.enhance,
		Workers:    c.workers,
		TempDir:    c.tempDir,
	}
	if cfg.Template == "" {
		if e, err := ocr.ParseEngine(cfg.EngineType); err == nil {
			cfg.Template = e.Template()
		}
	}
	return cfg
}

// newSession builds a session from the flags, loading -image and applying
// -rows/-cols when given.
func (c *CLI) newSession() (*session.Session, error) {
	sess := session.New(c.config())
	if c.imagePath != "" {
		if err := sess.LoadImage(c.imagePath); err != nil {
			return nil, err
		}
		if err := sess.SetRotation(c.rotation); err != nil {
			return nil, err
		}
	}
	if c.rows == "" && c.cols == "" {
		return sess, nil
	}

	current := sess.Grid()
	rows, cols := current.Horizontals, current.Verticals
	var err error
	if c.rows != "" {
		if rows, err = grid.ParsePositions(c.rows); err != nil {
			return nil, fmt.Errorf("parsing -rows: %w", err)
		}
	}
	if c.cols != "" {
		if cols, err = grid.ParsePositions(c.cols); err != nil {
			return nil, fmt.Errorf("parsing -cols: %w", err)
		}
	}
	if err := sess.SetGrid(rows, cols); err != nil {
		return nil, err
	}
	return sess, nil
}

func (c *CLI) extract(ctx context.Context) error {
	if c.imagePath == "" {
		return fmt.Errorf("-image is required")
	}
	if c.format != "quoted" && c.format != "csv" {
		return fmt.Errorf("unknown -format %q", c.format)
	}
	sess, err := c.newSession()
	if err != nil {
		return err
	}

	if err := sess.Extract(ctx); err != nil {
		return err
	}
	st, err := c.waitWithProgress(ctx, sess)
	if err != nil {
		return err
	}
	if st.Err != nil {
		return fmt.Errorf("extraction failed: %w", st.Err)
	}

	c.reportFailures(st)
	return c.writeTable(st.Table)
}

// waitWithProgress polls the run rather than blocking on it so progress can
// be shown while cells resolve.
func (c *CLI) waitWithProgress(ctx context.Context, sess *session.Session) (task.Status, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	last := -1
	for {
		st := sess.Progress()
		if st.Completed != last {
			fmt.Fprintf(c.stderr, "\rRecognized %d/%d cells", st.Completed, st.Total)
			last = st.Completed
		}
		if st.State == task.Finished {
			fmt.Fprintln(c.stderr)
			return st, nil
		}
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.stderr)
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *CLI) reportFailures(st task.Status) {
	cells := make([]ocr.Cell, 0, len(st.Failures))
	for cell := range st.Failures {
		cells = append(cells, cell)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].Col < cells[j].Col
	})
	for _, cell := range cells {
		fmt.Fprintf(c.stderr, "Error processing cell (%d,%d): %v\n", cell.Row, cell.Col, st.Failures[cell])
	}
	if len(cells) > 0 {
		fmt.Fprintf(c.stderr, "%d of %d cells failed and were left empty\n", len(cells), st.Total)
	}
}

func (c *CLI) writeTable(table *data.Table) error {
	if c.format == "csv" && c.outputFile != "" {
		w := writer.NewCSVWriter()
		defer w.Close()
		if err := w.WriteFile(table, c.outputFile); err != nil {
			return fmt.Errorf("writing %s: %w", c.outputFile, err)
		}
		fmt.Fprintf(c.stderr, "Results saved to: %s\n", c.outputFile)
		return nil
	}

	out := c.stdout
	if c.outputFile != "" {
		f, err := os.Create(c.outputFile)
		if err != nil {
			return fmt.Errorf("writing %s: %w", c.outputFile, err)
		}
		defer f.Close()
		out = f
	}

	var err error
	if c.format == "csv" {
		err = writer.WriteTable(out, table)
	} else {
		_, err = io.WriteString(out, table.Delimited()+"\n")
	}
	if err != nil {
		return err
	}
	if c.outputFile != "" {
		fmt.Fprintf(c.stderr, "Results saved to: %s\n", c.outputFile)
	}
	return nil
}
