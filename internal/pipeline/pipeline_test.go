package pipeline

import (
	"context"
	"errors"
	"fmt"
	goimage "image"
	"image/color"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/dmirauta/table-ocr/internal/data"
	"github.com/dmirauta/table-ocr/internal/grid"
	"github.com/dmirauta/table-ocr/internal/ocr"
	"github.com/dmirauta/table-ocr/internal/ocr/engine"
)

var errFakeExit = errors.New("fake recognizer exited 1")

// fakeEngine answers with the cell coordinates parsed from the crop name and
// fails the cells listed in fail.
type fakeEngine struct {
	fail  map[ocr.Cell]bool
	calls atomic.Int32
}

func (f *fakeEngine) ProcessImage(imagePath, textPath string) (string, error) {
	f.calls.Add(1)
	var c ocr.Cell
	if _, err := fmt.Sscanf(filepath.Base(imagePath), "ocr_crop_%d_%d.png", &c.Row, &c.Col); err != nil {
		return "", err
	}
	if _, err := os.Stat(imagePath); err != nil {
		return "", fmt.Errorf("crop not exported: %w", err)
	}
	if f.fail[c] {
		return "", errFakeExit
	}
	// leave an output file behind to check cleanup
	_ = os.WriteFile(textPath+engine.TextExtension, []byte("x"), 0o644)
	return fmt.Sprintf(" 'r%dc%d'\n", c.Row, c.Col), nil
}

func (f *fakeEngine) Close() error { return nil }

func testParams(t *testing.T, g *grid.Grid) Params {
	t.Helper()
	return Params{
		Grid:     g,
		Image:    imaging.New(40, 40, color.NRGBA{255, 255, 255, 255}),
		Cleaning: data.DefaultCleaningOptions(),
		Workers:  3,
		TempDir:  t.TempDir(),
	}
}

func TestRun_PartialFailure(t *testing.T) {
	// Arrange: 4 horizontals x 3 verticals -> 3 rows x 2 cols
	g, err := grid.New([]float64{0, 0.25, 0.5, 1}, []float64{0, 0.5, 1})
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	failed := ocr.Cell{Row: 1, Col: 0}
	fake := &fakeEngine{fail: map[ocr.Cell]bool{failed: true}}
	params := testParams(t, g)
	params.Engine = fake
	var progress atomic.Int32

	// Act
	res, err := Run(context.Background(), params, func() { progress.Add(1) })

	// Assert
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Table.Rows() != 3 || res.Table.Cols() != 2 {
		t.Fatalf("table shape = %dx%d, want 3x2", res.Table.Rows(), res.Table.Cols())
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			got := res.Table.Get(i, j)
			if (ocr.Cell{Row: i, Col: j}) == failed {
				if got != "" {
					t.Errorf("failed cell (%d,%d) = %q, want empty", i, j, got)
				}
				continue
			}
			if want := fmt.Sprintf("r%dc%d", i, j); got != want {
				t.Errorf("cell (%d,%d) = %q, want %q", i, j, got, want)
			}
		}
	}
	if len(res.Failures) != 1 || !errors.Is(res.Failures[failed], errFakeExit) {
		t.Errorf("failures = %v", res.Failures)
	}
	if progress.Load() != 6 || fake.calls.Load() != 6 {
		t.Errorf("progress=%d calls=%d, want 6", progress.Load(), fake.calls.Load())
	}
	assertEmptyDir(t, params.TempDir)
}

func TestRun_RowZeroIsTopOfImage(t *testing.T) {
	// Arrange: top half red, bottom half blue
	img := imaging.New(20, 20, color.NRGBA{0, 0, 255, 255})
	img = imaging.Paste(img, imaging.New(20, 10, color.NRGBA{255, 0, 0, 255}), goimage.Pt(0, 0))
	g, _ := grid.New([]float64{1, 0.5, 0}, []float64{0, 1})
	params := testParams(t, g)
	params.Image = img
	params.Engine = colorEngine{}

	// Act
	res, err := Run(context.Background(), params, nil)

	// Assert
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Table.Get(0, 0) != "red" || res.Table.Get(1, 0) != "blue" {
		t.Errorf("rows = %v, want [[red] [blue]]", res.Table.Items)
	}
}

// colorEngine names the dominant channel of the crop's first pixel.
type colorEngine struct{}

func (colorEngine) ProcessImage(imagePath, _ string) (string, error) {
	img, err := imaging.Open(imagePath)
	if err != nil {
		return "", err
	}
	r, _, b, _ := img.At(0, 0).RGBA()
	if r > b {
		return "red", nil
	}
	return "blue", nil
}

func (colorEngine) Close() error { return nil }

func TestRun_CommandEngine(t *testing.T) {
	// Arrange
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	g, _ := grid.New([]float64{0, 0.5, 1}, []float64{0, 0.5, 1})
	params := testParams(t, g)
	params.EngineType = "command"
	params.Template = fmt.Sprintf("%s -test.run=TestHelperProcess -- %s %s", os.Args[0], engine.ImagePlaceholder, engine.TextPlaceholder)

	// Act
	res, err := Run(context.Background(), params, nil)

	// Assert
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := [][]string{{"r0c0", "r0c1"}, {"", "r1c1"}}
	for i := range want {
		for j := range want[i] {
			if got := res.Table.Get(i, j); got != want[i][j] {
				t.Errorf("cell (%d,%d) = %q, want %q", i, j, got, want[i][j])
			}
		}
	}
	if err := res.Failures[ocr.Cell{Row: 1, Col: 0}]; !errors.Is(err, engine.ErrJobExit) {
		t.Errorf("expected ErrJobExit for (1,0), got %v", err)
	}
	assertEmptyDir(t, params.TempDir)
}

// TestHelperProcess is the recognizer spawned by TestRun_CommandEngine. It
// exits non-zero for cell (1,0).
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 3 {
		os.Exit(2)
	}
	var c ocr.Cell
	if _, err := fmt.Sscanf(filepath.Base(args[1]), "ocr_crop_%d_%d.png", &c.Row, &c.Col); err != nil {
		os.Exit(2)
	}
	if c == (ocr.Cell{Row: 1, Col: 0}) {
		os.Exit(1)
	}
	text := fmt.Sprintf("\"r%dc%d\"\n", c.Row, c.Col)
	if err := os.WriteFile(args[2]+engine.TextExtension, []byte(text), 0o644); err != nil {
		os.Exit(2)
	}
	os.Exit(0)
}

func TestRun_SetupErrors(t *testing.T) {
	g := grid.Default()

	params := testParams(t, g)
	params.EngineType = "command"
	params.Template = "  "
	if _, err := Run(context.Background(), params, nil); !errors.Is(err, engine.ErrEmptyTemplate) {
		t.Errorf("expected ErrEmptyTemplate, got %v", err)
	}

	params = testParams(t, g)
	params.Image = nil
	if _, err := Run(context.Background(), params, nil); err == nil {
		t.Error("expected error without image")
	}
}

func TestRun_RejectsShortGrid(t *testing.T) {
	testCases := []struct {
		name string
		g    *grid.Grid
	}{
		{"zero value", &grid.Grid{}},
		{"one horizontal", &grid.Grid{Horizontals: []float64{0.5}, Verticals: []float64{0, 1}}},
		{"one vertical", &grid.Grid{Horizontals: []float64{0, 1}, Verticals: []float64{0.5}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			fake := &fakeEngine{}
			params := testParams(t, tc.g)
			params.Engine = fake

			// Act
			_, err := Run(context.Background(), params, nil)

			// Assert
			if !errors.Is(err, grid.ErrTooFewSeparators) {
				t.Errorf("expected ErrTooFewSeparators, got %v", err)
			}
			if fake.calls.Load() != 0 {
				t.Errorf("engine called %d times", fake.calls.Load())
			}
		})
	}
}

func TestRun_DegenerateCellStillResolves(t *testing.T) {
	// Arrange: two verticals at the same x give a zero-width column
	g, _ := grid.New([]float64{0, 1}, []float64{0.5, 0.5})
	params := testParams(t, g)
	fake := &fakeEngine{}
	params.Engine = fake

	// Act
	res, err := Run(context.Background(), params, nil)

	// Assert
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Failures) != 0 || res.Table.Get(0, 0) != "r0c0" {
		t.Errorf("table=%v failures=%v", res.Table.Items, res.Failures)
	}
}

func TestJobs(t *testing.T) {
	g, _ := grid.New([]float64{0, 0.25, 0.5, 1}, []float64{0, 0.5, 1})
	if n := Jobs(g); n != 6 {
		t.Errorf("Jobs = %d, want 6", n)
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	for _, e := range entries {
		t.Errorf("temp file left behind: %s", e.Name())
	}
}
