// Package statusapi exposes the pollers over HTTP for health checks and
// dashboards.
package statusapi

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"voxm2m/internal/archive"
	"voxm2m/internal/poller"
)

type Poller interface {
	Name() string
	Status() poller.Status
	Trigger()
}

type RecordLister interface {
	Recent(ctx context.Context, source string, limit int) ([]archive.Record, error)
}

type StartOpts struct {
	Addr    string
	Pollers []Poller
	Archive RecordLister
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Addr == "" {
		return errors.New("statusapi: addr is required")
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("Status API listening", "addr", opts.Addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("statusapi: %w", err)
	}
	return nil
}

func NewRouter(opts StartOpts) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", handleHealth())
	router.GET("/status", handleStatusList(opts.Pollers))
	router.GET("/status/:source", handleStatus(opts.Pollers))
	router.POST("/poll", handlePoll(opts.Pollers))
	router.GET("/records/:source", handleRecords(opts.Archive))

	return router
}

func find(pollers []Poller, name string) Poller {
	for _, p := range pollers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleStatusList(pollers []Poller) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make([]poller.Status, 0, len(pollers))
		for _, p := range pollers {
			out = append(out, p.Status())
		}
		c.JSON(http.StatusOK, out)
	}
}

func handleStatus(pollers []Poller) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := find(pollers, c.Param("source"))
		if p == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown source"})
			return
		}
		c.JSON(http.StatusOK, p.Status())
	}
}

func handlePoll(pollers []Poller) gin.HandlerFunc {
	return func(c *gin.Context) {
		source := c.Query("source")
		if source == "" {
			for _, p := range pollers {
				p.Trigger()
			}
			c.JSON(http.StatusAccepted, gin.H{"triggered": len(pollers)})
			return
		}

		p := find(pollers, source)
		if p == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown source"})
			return
		}
		p.Trigger()
		c.JSON(http.StatusAccepted, gin.H{"triggered": 1})
	}
}

func handleRecords(lister RecordLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lister == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "archive disabled"})
			return
		}

		limit := 50
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 1000 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be within 1..1000"})
				return
			}
			limit = n
		}

		recs, err := lister.Recent(c.Request.Context(), c.Param("source"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, recs)
	}
}
