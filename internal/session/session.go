// Package session is the state behind one interactive annotation session:
// the loaded image, the grid laid over it, drag state, the recognizer
// command and the background extraction. Every caller goes through a
// Session value; there is no package-level state.
package session

import (
	"context"
	"errors"
	"fmt"
	goimage "image"
	"image/color"
	"math"
	"sync"

	"github.com/dmirauta/table-ocr/internal/data"
	"github.com/dmirauta/table-ocr/internal/grid"
	"github.com/dmirauta/table-ocr/internal/image"
	"github.com/dmirauta/table-ocr/internal/logger"
	"github.com/dmirauta/table-ocr/internal/ocr"
	"github.com/dmirauta/table-ocr/internal/pipeline"
	"github.com/dmirauta/table-ocr/internal/task"
)

var ErrNoImage = errors.New("must load an image first")

const (
	DefaultThickness = 0.005
	MinThickness     = 0.0001
	MaxThickness     = 0.01
)

type Config struct {
	EngineType string
	Template   string
	Cleaning   data.CleaningOptions
	Enhance    bool
	Workers    int
	TempDir    string
}

func DefaultConfig() Config {
	return Config{
		EngineType: ocr.Tesseract.String(),
		Template:   ocr.Tesseract.Template(),
		Cleaning:   data.DefaultCleaningOptions(),
	}
}

type Session struct {
	mu     sync.Mutex
	images *image.ImageProcessor
	task   *task.Task
	cfg    Config

	imagePath string
	base      *goimage.NRGBA
	rotated   *goimage.NRGBA
	rotation  float64

	grid      *grid.Grid
	thickness float64
	color     color.NRGBA

	dragging *grid.Separator
}

func New(cfg Config) *Session {
	return NewWithTask(cfg, task.New())
}

func NewWithTask(cfg Config, t *task.Task) *Session {
	if cfg.EngineType == "" {
		cfg.EngineType = ocr.Tesseract.String()
	}
	return &Session{
		images:    image.NewImageProcessor(),
		task:      t,
		cfg:       cfg,
		grid:      grid.Default(),
		thickness: DefaultThickness,
		color:     color.NRGBA{R: 255, A: 255},
	}
}

// LoadImage replaces the session image. The grid is kept so the same layout
// can be reused across pages of one form.
func (s *Session) LoadImage(path string) error {
	img, err := s.images.Load(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.imagePath = path
	s.base = img
	s.rotated = s.images.Rotate(img, s.rotation)
	logger.InfoLog("[session]: loaded %s (%dx%d)", path, img.Bounds().Dx(), img.Bounds().Dy())
	return nil
}

// ReloadImage reads the current image path again, e.g. after it changed on
// disk.
func (s *Session) ReloadImage() error {
	s.mu.Lock()
	path := s.imagePath
	s.mu.Unlock()
	if path == "" {
		return ErrNoImage
	}
	return s.LoadImage(path)
}

func (s *Session) ImagePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imagePath
}

// SetRotation rotates the preview (and what gets extracted) by theta radians,
// clamped to image.MaxRotation either way.
func (s *Session) SetRotation(theta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		return ErrNoImage
	}
	theta = image.ClampRotation(theta)
	if theta != s.rotation {
		s.rotated = s.images.Rotate(s.base, theta)
		s.rotation = theta
	}
	return nil
}

// SetThickness sets the separator half-width along x; the y half-width
// follows the image aspect ratio so bands look equally thick.
func (s *Session) SetThickness(dx float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if math.IsNaN(dx) {
		return
	}
	s.thickness = math.Max(MinThickness, math.Min(MaxThickness, dx))
}

func (s *Session) SetColor(c color.NRGBA) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.color = c
}

func (s *Session) thicknessLocked() grid.Point {
	aspect := 1.0
	if s.rotated != nil && s.rotated.Bounds().Dy() > 0 {
		b := s.rotated.Bounds()
		aspect = float64(b.Dx()) / float64(b.Dy())
	}
	return grid.Point{X: s.thickness, Y: s.thickness * aspect}
}

func (s *Session) SetTemplate(template string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Template = template
	if s.cfg.EngineType != "ollama" && s.cfg.EngineType != "gosseract" {
		s.cfg.EngineType = "command"
	}
}

func (s *Session) UsePreset(e ocr.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.EngineType = e.String()
	s.cfg.Template = e.Template()
}

func (s *Session) SetCleaning(opts data.CleaningOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Cleaning = opts
}

func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Extract snapshots the rotated image, the grid and the recognizer settings
// and starts a background run. The lock is held through Start so a
// concurrent Extract cannot re-stage in between; Start returns at once.
func (s *Session) Extract(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rotated == nil {
		return ErrNoImage
	}
	params := pipeline.Params{
		Grid:       s.grid,
		Image:      s.rotated,
		EngineType: s.cfg.EngineType,
		Template:   s.cfg.Template,
		Cleaning:   s.cfg.Cleaning,
		Enhance:    s.cfg.Enhance,
		Workers:    s.cfg.Workers,
		TempDir:    s.cfg.TempDir,
	}
	if err := s.task.Stage(params); err != nil {
		return fmt.Errorf("staging extraction: %w", err)
	}
	return s.task.Start(ctx)
}

func (s *Session) Progress() task.Status {
	return s.task.Poll()
}

func (s *Session) Wait(ctx context.Context) (task.Status, error) {
	return s.task.Wait(ctx)
}

// View is a read-only snapshot for rendering.
type View struct {
	ImagePath string          `json:"image_path,omitempty"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Rotation  float64         `json:"rotation"`
	Grid      *grid.Grid      `json:"grid"`
	Extents   grid.Extents    `json:"extents"`
	Thickness grid.Point      `json:"thickness"`
	Color     string          `json:"color"`
	Dragging  *grid.Separator `json:"dragging,omitempty"`
	Config    Config          `json:"config"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ImagePath: s.imagePath,
		Rotation:  s.rotation,
		Grid:      s.sortedGridLocked(),
		Extents:   s.grid.Extents(),
		Thickness: s.thicknessLocked(),
		Color:     fmt.Sprintf("#%02x%02x%02x%02x", s.color.R, s.color.G, s.color.B, s.color.A),
		Config:    s.cfg,
	}
	if s.rotated != nil {
		v.Width, v.Height = s.rotated.Bounds().Dx(), s.rotated.Bounds().Dy()
	}
	if s.dragging != nil {
		d := *s.dragging
		v.Dragging = &d
	}
	return v
}

func (s *Session) sortedGridLocked() *grid.Grid {
	g := s.grid.Clone()
	g.Sort()
	return g
}
