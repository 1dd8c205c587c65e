// Package grid holds the movable row/column separators laid over a table
// image. Positions are normalized image coordinates with the origin at the
// bottom-left corner: x grows to the right, y grows upward.
package grid

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

var (
	ErrInvalidPosition   = errors.New("separator position is not a finite number")
	ErrTooFewSeparators  = errors.New("grid needs at least two separators per orientation")
	ErrSeparatorNotFound = errors.New("separator index out of range")
)

const minSeparators = 2

type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
)

func (o Orientation) String() string {
	if o == Vertical {
		return "vertical"
	}
	return "horizontal"
}

func (o Orientation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Orientation) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "horizontal", "h":
		*o = Horizontal
	case "vertical", "v":
		*o = Vertical
	default:
		return fmt.Errorf("unknown orientation %q", b)
	}
	return nil
}

// Separator references one line of the grid by orientation and index in the
// current (not necessarily sorted) sequence.
type Separator struct {
	Orientation Orientation `json:"orientation"`
	Index       int         `json:"index"`
}

type Grid struct {
	Horizontals []float64 `json:"horizontals"`
	Verticals   []float64 `json:"verticals"`
}

// Extents is the bounding box spanned by the outermost separators.
type Extents struct {
	XMin float64 `json:"xmin"`
	XMax float64 `json:"xmax"`
	YMin float64 `json:"ymin"`
	YMax float64 `json:"ymax"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Gap is the span between two adjacent separators of one orientation.
type Gap struct {
	Lo float64
	Hi float64
}

func Default() *Grid {
	return &Grid{
		Horizontals: []float64{0.8, 0.9},
		Verticals:   []float64{0.1, 0.2},
	}
}

// New builds a grid from explicit positions.
func New(horizontals, verticals []float64) (*Grid, error) {
	if len(horizontals) < minSeparators || len(verticals) < minSeparators {
		return nil, ErrTooFewSeparators
	}
	for _, p := range append(slices.Clone(horizontals), verticals...) {
		if !finite(p) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, p)
		}
	}
	g := &Grid{
		Horizontals: slices.Clone(horizontals),
		Verticals:   slices.Clone(verticals),
	}
	g.Sort()
	return g, nil
}

func (g *Grid) Reset() {
	*g = *Default()
}

func (g *Grid) Clone() *Grid {
	return &Grid{
		Horizontals: slices.Clone(g.Horizontals),
		Verticals:   slices.Clone(g.Verticals),
	}
}

func (g *Grid) AddHorizontal(y float64) error {
	if !finite(y) {
		return fmt.Errorf("%w: y=%v", ErrInvalidPosition, y)
	}
	g.Horizontals = append(g.Horizontals, y)
	return nil
}

func (g *Grid) AddVertical(x float64) error {
	if !finite(x) {
		return fmt.Errorf("%w: x=%v", ErrInvalidPosition, x)
	}
	g.Verticals = append(g.Verticals, x)
	return nil
}

// RemoveHorizontal drops the lowest horizontal separator. The grid is left
// untouched when only two remain.
func (g *Grid) RemoveHorizontal() error {
	if len(g.Horizontals) <= minSeparators {
		return ErrTooFewSeparators
	}
	g.sortHorizontals()
	g.Horizontals = slices.Delete(g.Horizontals, 0, 1)
	return nil
}

// RemoveVertical drops the right-most vertical separator. The grid is left
// untouched when only two remain.
func (g *Grid) RemoveVertical() error {
	if len(g.Verticals) <= minSeparators {
		return ErrTooFewSeparators
	}
	g.sortVerticals()
	g.Verticals = g.Verticals[:len(g.Verticals)-1]
	return nil
}

func (g *Grid) Sort() {
	g.sortHorizontals()
	g.sortVerticals()
}

func (g *Grid) sortHorizontals() { slices.SortStableFunc(g.Horizontals, comparePositions) }
func (g *Grid) sortVerticals()   { slices.SortStableFunc(g.Verticals, comparePositions) }

// comparePositions orders NaN after every number so a corrupted position can
// never scramble the rest of the sequence.
func comparePositions(a, b float64) int {
	switch an, bn := math.IsNaN(a), math.IsNaN(b); {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Position returns the scalar of the referenced separator.
func (g *Grid) Position(s Separator) (float64, error) {
	seq := g.sequence(s.Orientation)
	if s.Index < 0 || s.Index >= len(*seq) {
		return 0, ErrSeparatorNotFound
	}
	return (*seq)[s.Index], nil
}

// Translate moves one separator along its own axis: delta.Y for horizontal
// separators, delta.X for vertical ones.
func (g *Grid) Translate(s Separator, delta Point) error {
	seq := g.sequence(s.Orientation)
	if s.Index < 0 || s.Index >= len(*seq) {
		return ErrSeparatorNotFound
	}
	if s.Orientation == Horizontal {
		(*seq)[s.Index] += delta.Y
	} else {
		(*seq)[s.Index] += delta.X
	}
	return nil
}

func (g *Grid) TranslateAll(delta Point) {
	for i := range g.Horizontals {
		g.Horizontals[i] += delta.Y
	}
	for i := range g.Verticals {
		g.Verticals[i] += delta.X
	}
}

// Extents is computed on sorted copies so an in-progress drag keeps its
// separator indices stable.
func (g *Grid) Extents() Extents {
	var ext Extents
	if v := sortedCopy(g.Verticals); len(v) > 0 {
		ext.XMin, ext.XMax = v[0], v[len(v)-1]
	}
	if h := sortedCopy(g.Horizontals); len(h) > 0 {
		ext.YMin, ext.YMax = h[0], h[len(h)-1]
	}
	return ext
}

// HitTest reports the first separator whose thickness band contains p while p
// lies strictly inside the extents along the other axis. Horizontal
// separators are tested before vertical ones.
func (g *Grid) HitTest(p Point, thickness Point, ext Extents) (Separator, bool) {
	for i, y := range g.Horizontals {
		if y-thickness.Y < p.Y && p.Y < y+thickness.Y && ext.XMin < p.X && p.X < ext.XMax {
			return Separator{Orientation: Horizontal, Index: i}, true
		}
	}
	for i, x := range g.Verticals {
		if x-thickness.X < p.X && p.X < x+thickness.X && ext.YMin < p.Y && p.Y < ext.YMax {
			return Separator{Orientation: Vertical, Index: i}, true
		}
	}
	return Separator{}, false
}

func (g *Grid) Rows() int { return max(len(g.Horizontals)-1, 0) }
func (g *Grid) Cols() int { return max(len(g.Verticals)-1, 0) }

// Validate reports ErrTooFewSeparators for a grid that spans no cells, such
// as the zero value.
func (g *Grid) Validate() error {
	if len(g.Horizontals) < minSeparators || len(g.Verticals) < minSeparators {
		return fmt.Errorf("%w: %d horizontal, %d vertical",
			ErrTooFewSeparators, len(g.Horizontals), len(g.Verticals))
	}
	return nil
}

// RowGaps lists row spans top to bottom: horizontals sorted ascending in y
// walked in reverse, since row 0 is the top of the image.
func (g *Grid) RowGaps() []Gap {
	h := sortedCopy(g.Horizontals)
	if len(h) < 2 {
		return nil
	}
	gaps := make([]Gap, 0, len(h)-1)
	for i := len(h) - 1; i > 0; i-- {
		gaps = append(gaps, Gap{Lo: h[i-1], Hi: h[i]})
	}
	return gaps
}

// ColGaps lists column spans left to right.
func (g *Grid) ColGaps() []Gap {
	v := sortedCopy(g.Verticals)
	if len(v) < 2 {
		return nil
	}
	gaps := make([]Gap, 0, len(v)-1)
	for i := 1; i < len(v); i++ {
		gaps = append(gaps, Gap{Lo: v[i-1], Hi: v[i]})
	}
	return gaps
}

func (g *Grid) sequence(o Orientation) *[]float64 {
	if o == Vertical {
		return &g.Verticals
	}
	return &g.Horizontals
}

// ParsePositions reads a comma separated list such as "0.1,0.5,0.9".
func ParsePositions(s string) ([]float64, error) {
	var out []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing position %q: %w", field, err)
		}
		if !finite(v) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPosition, field)
		}
		out = append(out, v)
	}
	return out, nil
}

func sortedCopy(in []float64) []float64 {
	out := slices.Clone(in)
	slices.SortStableFunc(out, comparePositions)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
