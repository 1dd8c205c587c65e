package session

import (
	"github.com/dmirauta/table-ocr/internal/grid"
)

// AddSeparatorAt places a new separator through p. Points on or outside the
// image border are ignored and report false.
func (s *Session) AddSeparatorAt(p grid.Point, o grid.Orientation) (bool, error) {
	if !(0 < p.X && p.X < 1 && 0 < p.Y && p.Y < 1) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if o == grid.Vertical {
		err = s.grid.AddVertical(p.X)
	} else {
		err = s.grid.AddHorizontal(p.Y)
	}
	if err != nil {
		return false, err
	}
	if s.dragging == nil {
		s.grid.Sort()
	}
	return true, nil
}

// BeginDrag claims the separator under p for the rest of the gesture. Only
// one separator can be claimed at a time; a second BeginDrag before EndDrag
// keeps the first claim.
func (s *Session) BeginDrag(p grid.Point) (grid.Separator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dragging != nil {
		return *s.dragging, true
	}

	s.grid.Sort()
	sep, ok := s.grid.HitTest(p, s.thicknessLocked(), s.grid.Extents())
	if !ok {
		return grid.Separator{}, false
	}
	s.dragging = &sep
	return sep, true
}

// DragBy moves the claimed separator. Without a claim it does nothing; the
// caller pans the view instead.
func (s *Session) DragBy(delta grid.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dragging == nil {
		return false
	}
	return s.grid.Translate(*s.dragging, delta) == nil
}

func (s *Session) EndDrag() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = nil
	s.grid.Sort()
}

// ShiftAll moves the whole grid. It cancels any separator drag.
func (s *Session) ShiftAll(delta grid.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = nil
	s.grid.TranslateAll(delta)
}

func (s *Session) RemoveHorizontal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = nil
	return s.grid.RemoveHorizontal()
}

func (s *Session) RemoveVertical() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = nil
	return s.grid.RemoveVertical()
}

func (s *Session) ResetGrid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = nil
	s.grid.Reset()
}

// SetGrid replaces the grid wholesale, e.g. from saved positions.
func (s *Session) SetGrid(horizontals, verticals []float64) error {
	g, err := grid.New(horizontals, verticals)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = nil
	s.grid = g
	return nil
}

func (s *Session) Grid() *grid.Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedGridLocked()
}
