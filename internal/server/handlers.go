package server

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/dmirauta/table-ocr/internal/grid"
	"github.com/dmirauta/table-ocr/internal/image"
	"github.com/dmirauta/table-ocr/internal/ocr"
	"github.com/dmirauta/table-ocr/internal/session"
	"github.com/dmirauta/table-ocr/internal/task"
	"github.com/dmirauta/table-ocr/internal/writer"
	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, grid.ErrInvalidPosition), errors.Is(err, image.ErrImageLoad):
		return http.StatusBadRequest
	case errors.Is(err, grid.ErrTooFewSeparators),
		errors.Is(err, session.ErrNoImage),
		errors.Is(err, task.ErrRunInProgress),
		errors.Is(err, task.ErrNotReady):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (s *Server) getGridHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.View())
}

func (s *Server) putGridHandler(c *gin.Context) {
	var req grid.Grid
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.session.SetGrid(req.Horizontals, req.Verticals); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.session.View())
}

func (s *Server) addSeparatorHandler(c *gin.Context) {
	var req struct {
		X           float64          `json:"x"`
		Y           float64          `json:"y"`
		Orientation grid.Orientation `json:"orientation"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	added, err := s.session.AddSeparatorAt(grid.Point{X: req.X, Y: req.Y}, req.Orientation)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "grid": s.session.Grid()})
}

func (s *Server) removeHorizontalHandler(c *gin.Context) {
	if err := s.session.RemoveHorizontal(); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.Grid())
}

func (s *Server) removeVerticalHandler(c *gin.Context) {
	if err := s.session.RemoveVertical(); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.Grid())
}

func (s *Server) shiftHandler(c *gin.Context) {
	var delta grid.Point
	if err := c.ShouldBindJSON(&delta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.session.ShiftAll(delta)
	c.JSON(http.StatusOK, s.session.Grid())
}

// dragHandler drives one gesture: "begin" with the pointer position, any
// number of "move" with the pointer delta, then "end".
func (s *Server) dragHandler(c *gin.Context) {
	var req struct {
		Phase string  `json:"phase" binding:"required,oneof=begin move end"`
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := grid.Point{X: req.X, Y: req.Y}
	switch req.Phase {
	case "begin":
		sep, ok := s.session.BeginDrag(p)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"claimed": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"claimed": true, "separator": sep})
	case "move":
		c.JSON(http.StatusOK, gin.H{"moved": s.session.DragBy(p)})
	case "end":
		s.session.EndDrag()
		c.JSON(http.StatusOK, s.session.Grid())
	}
}

func (s *Server) resetHandler(c *gin.Context) {
	s.session.ResetGrid()
	c.JSON(http.StatusOK, s.session.Grid())
}

func (s *Server) loadImageHandler(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.session.LoadImage(req.Path); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.View())
}

func (s *Server) rotationHandler(c *gin.Context) {
	var req struct {
		Radians float64 `json:"radians"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.session.SetRotation(req.Radians); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.View())
}

func (s *Server) thicknessHandler(c *gin.Context) {
	var req struct {
		DX *float64 `json:"dx" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.session.SetThickness(*req.DX)
	c.JSON(http.StatusOK, s.session.View())
}

// templateHandler accepts either a preset name or a raw command template.
func (s *Server) templateHandler(c *gin.Context) {
	var req struct {
		Preset   string `json:"preset"`
		Template string `json:"template"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch {
	case req.Preset != "":
		e, err := ocr.ParseEngine(req.Preset)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.session.UsePreset(e)
	case req.Template != "":
		s.session.SetTemplate(req.Template)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "preset or template is required"})
		return
	}
	c.JSON(http.StatusOK, s.session.Config())
}

func (s *Server) cleaningHandler(c *gin.Context) {
	opts := s.session.Config().Cleaning
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.session.SetCleaning(opts)
	c.JSON(http.StatusOK, opts)
}

func (s *Server) extractHandler(c *gin.Context) {
	if err := s.session.Extract(c.Request.Context()); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusAccepted, progressBody(s.session.Progress()))
}

func (s *Server) progressHandler(c *gin.Context) {
	c.JSON(http.StatusOK, progressBody(s.session.Progress()))
}

func progressBody(st task.Status) gin.H {
	body := gin.H{
		"state":     st.State,
		"run_id":    st.RunID,
		"completed": st.Completed,
		"total":     st.Total,
	}
	if st.Err != nil {
		body["error"] = st.Err.Error()
	}
	if len(st.Failures) > 0 {
		failures := make([]gin.H, 0, len(st.Failures))
		for cell, err := range st.Failures {
			failures = append(failures, gin.H{"row": cell.Row, "col": cell.Col, "error": err.Error()})
		}
		body["failures"] = failures
	}
	return body
}

func (s *Server) tableHandler(c *gin.Context) {
	st := s.session.Progress()
	if st.State != task.Finished {
		c.JSON(http.StatusConflict, gin.H{"error": "no finished extraction", "state": st.State})
		return
	}
	if st.Table == nil {
		msg := "extraction produced no table"
		if st.Err != nil {
			msg = st.Err.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}

	switch c.DefaultQuery("format", "quoted") {
	case "quoted":
		c.String(http.StatusOK, st.Table.Delimited())
	case "csv":
		var buf bytes.Buffer
		if err := writer.WriteTable(&buf, st.Table); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	case "json":
		c.JSON(http.StatusOK, st.Table)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be quoted, csv or json"})
	}
}
