// Package server exposes a Session over HTTP so a separate front end can drive
// the grid editor and poll extractions.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmirauta/table-ocr/internal/logger"
	"github.com/dmirauta/table-ocr/internal/session"
	"github.com/gin-gonic/gin"
)

type Server struct {
	session *session.Session
	router  *gin.Engine
}

func New(s *session.Session) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	if logger.DebugEnabled() {
		r.Use(gin.Logger())
	}
	srv := &Server{session: s, router: r}
	srv.setupRoutes()
	return srv
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	g := s.router.Group("/grid")
	g.GET("", s.getGridHandler)
	g.PUT("", s.putGridHandler)
	g.POST("/separators", s.addSeparatorHandler)
	g.DELETE("/horizontals", s.removeHorizontalHandler)
	g.DELETE("/verticals", s.removeVerticalHandler)
	g.POST("/shift", s.shiftHandler)
	g.POST("/drag", s.dragHandler)
	g.POST("/reset", s.resetHandler)

	s.router.POST("/image", s.loadImageHandler)
	s.router.POST("/rotation", s.rotationHandler)
	s.router.PUT("/thickness", s.thicknessHandler)
	s.router.PUT("/template", s.templateHandler)
	s.router.PUT("/cleaning", s.cleaningHandler)
	s.router.POST("/extract", s.extractHandler)
	s.router.GET("/progress", s.progressHandler)
	s.router.GET("/table", s.tableHandler)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoLog("[server]: listening on %s", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
