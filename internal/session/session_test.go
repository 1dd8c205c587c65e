package session

import (
	"context"
	"errors"
	"image/color"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dmirauta/table-ocr/internal/data"
	"github.com/dmirauta/table-ocr/internal/grid"
	"github.com/dmirauta/table-ocr/internal/image"
	"github.com/dmirauta/table-ocr/internal/ocr"
	"github.com/dmirauta/table-ocr/internal/pipeline"
	"github.com/dmirauta/table-ocr/internal/task"
)

type recordingRunner struct {
	params  chan pipeline.Params
	release chan struct{}
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{params: make(chan pipeline.Params, 4), release: make(chan struct{})}
}

func (r *recordingRunner) run(ctx context.Context, params pipeline.Params, progress func()) (pipeline.Result, error) {
	r.params <- params
	<-r.release
	table := data.NewTable(params.Grid.Rows(), params.Grid.Cols())
	for i := 0; i < pipeline.Jobs(params.Grid); i++ {
		table.Set(0, 0, "cell")
		progress()
	}
	return pipeline.Result{Table: table}, nil
}

func newTestSession(t *testing.T) (*Session, *recordingRunner) {
	t.Helper()
	runner := newRecordingRunner()
	return NewWithTask(DefaultConfig(), task.NewWithRunner(runner.run)), runner
}

func writeFixture(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.png")
	if err := imaging.Save(imaging.New(w, h, color.NRGBA{255, 255, 255, 255}), path); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestAddSeparatorAt(t *testing.T) {
	s, _ := newTestSession(t)

	testCases := []struct {
		name  string
		p     grid.Point
		o     grid.Orientation
		added bool
	}{
		{"inside horizontal", grid.Point{X: 0.5, Y: 0.3}, grid.Horizontal, true},
		{"inside vertical", grid.Point{X: 0.6, Y: 0.3}, grid.Vertical, true},
		{"on left border", grid.Point{X: 0, Y: 0.3}, grid.Vertical, false},
		{"above image", grid.Point{X: 0.5, Y: 1.2}, grid.Horizontal, false},
		{"nan", grid.Point{X: math.NaN(), Y: 0.5}, grid.Vertical, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			added, err := s.AddSeparatorAt(tc.p, tc.o)
			if err != nil {
				t.Fatalf("AddSeparatorAt: %v", err)
			}
			if added != tc.added {
				t.Errorf("added = %v, want %v", added, tc.added)
			}
		})
	}

	g := s.Grid()
	if len(g.Horizontals) != 3 || len(g.Verticals) != 3 {
		t.Errorf("grid = %+v", g)
	}
	if g.Horizontals[0] != 0.3 {
		t.Errorf("grid not sorted after add: %v", g.Horizontals)
	}
}

func TestDragGesture(t *testing.T) {
	// Arrange: default grid has horizontals {0.8,0.9} spanning x in (0.1,0.2)
	s, _ := newTestSession(t)

	// Act
	sep, ok := s.BeginDrag(grid.Point{X: 0.15, Y: 0.801})

	// Assert
	if !ok || sep != (grid.Separator{Orientation: grid.Horizontal, Index: 0}) {
		t.Fatalf("BeginDrag = %v, %v", sep, ok)
	}
	// a second press keeps the first claim
	if again, _ := s.BeginDrag(grid.Point{X: 0.15, Y: 0.9}); again != sep {
		t.Errorf("claim changed to %v", again)
	}
	// drag past the other horizontal; indices must stay put mid-gesture
	for i := 0; i < 3; i++ {
		if !s.DragBy(grid.Point{X: 0.5, Y: 0.05}) {
			t.Fatal("DragBy reported no claim")
		}
	}
	if v := s.View(); v.Dragging == nil || *v.Dragging != sep {
		t.Errorf("view dragging = %v", v.Dragging)
	}
	s.EndDrag()

	g := s.Grid()
	if math.Abs(g.Horizontals[1]-0.95) > 1e-9 || g.Horizontals[0] != 0.9 {
		t.Errorf("horizontals = %v, want [0.9 0.95]", g.Horizontals)
	}
	if g.Verticals[0] != 0.1 || g.Verticals[1] != 0.2 {
		t.Errorf("verticals moved: %v", g.Verticals)
	}
	if s.DragBy(grid.Point{Y: 0.1}) {
		t.Error("DragBy after EndDrag should do nothing")
	}
}

func TestBeginDrag_Miss(t *testing.T) {
	s, _ := newTestSession(t)

	// on the line's y but outside the grid's x extents
	if _, ok := s.BeginDrag(grid.Point{X: 0.5, Y: 0.8}); ok {
		t.Error("expected no claim outside extents")
	}
	if s.DragBy(grid.Point{Y: 0.1}) {
		t.Error("DragBy without claim should do nothing")
	}
}

func TestShiftAllAndReset(t *testing.T) {
	s, _ := newTestSession(t)

	s.ShiftAll(grid.Point{X: 0.1, Y: -0.1})
	g := s.Grid()
	if math.Abs(g.Horizontals[0]-0.7) > 1e-9 || math.Abs(g.Verticals[1]-0.3) > 1e-9 {
		t.Errorf("shifted grid = %+v", g)
	}

	s.ResetGrid()
	g = s.Grid()
	if g.Horizontals[0] != 0.8 || g.Verticals[0] != 0.1 {
		t.Errorf("reset grid = %+v", g)
	}
}

func TestRemoveAtMinimum(t *testing.T) {
	s, _ := newTestSession(t)

	if err := s.RemoveHorizontal(); !errors.Is(err, grid.ErrTooFewSeparators) {
		t.Errorf("RemoveHorizontal: expected ErrTooFewSeparators, got %v", err)
	}
	if err := s.RemoveVertical(); !errors.Is(err, grid.ErrTooFewSeparators) {
		t.Errorf("RemoveVertical: expected ErrTooFewSeparators, got %v", err)
	}
}

func TestThicknessFollowsAspect(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.LoadImage(writeFixture(t, 40, 20)); err != nil {
		t.Fatalf("LoadImage: %v", err)
	}

	s.SetThickness(0.004)
	th := s.View().Thickness

	if th.X != 0.004 || math.Abs(th.Y-0.008) > 1e-12 {
		t.Errorf("thickness = %+v", th)
	}
	s.SetThickness(1)
	if got := s.View().Thickness.X; got != MaxThickness {
		t.Errorf("thickness not clamped: %v", got)
	}
}

func TestRotation(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.SetRotation(0.1); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
	if err := s.LoadImage(writeFixture(t, 40, 20)); err != nil {
		t.Fatalf("LoadImage: %v", err)
	}

	if err := s.SetRotation(1); err != nil {
		t.Fatalf("SetRotation: %v", err)
	}

	v := s.View()
	if v.Rotation != image.MaxRotation {
		t.Errorf("rotation = %v, want clamp to %v", v.Rotation, image.MaxRotation)
	}
	if v.Width != 40 || v.Height != 20 {
		t.Errorf("rotated size = %dx%d", v.Width, v.Height)
	}
}

func TestLoadImage_Missing(t *testing.T) {
	s, _ := newTestSession(t)

	err := s.LoadImage(filepath.Join(t.TempDir(), "nope.png"))

	if !errors.Is(err, image.ErrImageLoad) {
		t.Errorf("expected ErrImageLoad, got %v", err)
	}
	if err := s.ReloadImage(); !errors.Is(err, ErrNoImage) {
		t.Errorf("ReloadImage: expected ErrNoImage, got %v", err)
	}
}

func TestTemplateSelection(t *testing.T) {
	s, _ := newTestSession(t)

	s.UsePreset(ocr.Cuneiform)
	if cfg := s.Config(); cfg.EngineType != "cuneiform" || cfg.Template != ocr.Cuneiform.Template() {
		t.Errorf("preset config = %+v", cfg)
	}

	s.SetTemplate("myocr %img_in% %txt_out%")
	if cfg := s.Config(); cfg.EngineType != "command" || cfg.Template != "myocr %img_in% %txt_out%" {
		t.Errorf("custom config = %+v", cfg)
	}
}

func TestExtract(t *testing.T) {
	// Arrange
	s, runner := newTestSession(t)
	ctx := context.Background()
	if err := s.Extract(ctx); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
	if err := s.LoadImage(writeFixture(t, 40, 20)); err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	s.UsePreset(ocr.Cuneiform)

	// Act
	if err := s.Extract(ctx); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	params := <-runner.params

	// Assert: edits during the run cannot reach it, a second run is refused
	if _, err := s.AddSeparatorAt(grid.Point{X: 0.5, Y: 0.5}, grid.Horizontal); err != nil {
		t.Fatalf("AddSeparatorAt: %v", err)
	}
	if err := s.Extract(ctx); !errors.Is(err, task.ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
	if params.EngineType != "cuneiform" || params.Template != ocr.Cuneiform.Template() {
		t.Errorf("params engine = %q %q", params.EngineType, params.Template)
	}
	if len(params.Grid.Horizontals) != 2 {
		t.Errorf("run grid changed: %v", params.Grid.Horizontals)
	}
	if st := s.Progress(); st.State != task.Running || st.Total != 1 {
		t.Errorf("progress = %+v", st)
	}

	close(runner.release)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st, err := s.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if st.State != task.Finished || st.Completed != 1 || st.Table.Get(0, 0) != "cell" {
		t.Errorf("final status = %+v", st)
	}
}

type callerKey struct{}

func TestExtract_ConcurrentCallers(t *testing.T) {
	// Arrange
	runner := newRecordingRunner()
	var mu sync.Mutex
	var seen []any
	run := func(ctx context.Context, params pipeline.Params, progress func()) (pipeline.Result, error) {
		mu.Lock()
		seen = append(seen, ctx.Value(callerKey{}))
		mu.Unlock()
		return runner.run(ctx, params, progress)
	}
	s := NewWithTask(DefaultConfig(), task.NewWithRunner(run))
	if err := s.LoadImage(writeFixture(t, 40, 20)); err != nil {
		t.Fatalf("LoadImage: %v", err)
	}

	// Act
	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ctx := context.WithValue(context.Background(), callerKey{}, id)
			errs[id] = s.Extract(ctx)
		}(i)
	}
	wg.Wait()
	<-runner.params
	close(runner.release)
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// Assert
	winner := -1
	for id, err := range errs {
		switch {
		case err == nil && winner == -1:
			winner = id
		case err == nil:
			t.Errorf("callers %d and %d both started a run", winner, id)
		case !errors.Is(err, task.ErrRunInProgress):
			t.Errorf("caller %d: expected ErrRunInProgress, got %v", id, err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != winner {
		t.Errorf("runs started by %v, want only caller %d", seen, winner)
	}
}
