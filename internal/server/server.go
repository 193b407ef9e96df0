package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"netharness/internal/model"
	"netharness/internal/summary"
)

// Source is the read side of a log store.
type Source interface {
	Records() ([]model.MetricRecord, error)
}

// Options configure the report server.
type Options struct {
	PlotDir string
	Now     func() time.Time
}

// NewRouter returns a read-only gin engine over the log.
func NewRouter(src Source, opts Options) *gin.Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLog())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/records", getRecords(src))
	router.GET("/summary", getSummary(src))
	router.GET("/stats", getStats(src, opts.Now))
	if opts.PlotDir != "" {
		router.Static("/plots", opts.PlotDir)
	}
	return router
}

func getRecords(src Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		category := model.Category(c.Query("category"))
		if category != "" && !category.Valid() {
			fail(c, http.StatusBadRequest, errors.Errorf("unknown category %q", category))
			return
		}
		records, err := src.Records()
		if err != nil {
			fail(c, http.StatusInternalServerError, err)
			return
		}
		out := make([]model.MetricRecord, 0, len(records))
		for _, rec := range records {
			if category == "" || rec.Category == category {
				out = append(out, rec)
			}
		}
		c.JSON(http.StatusOK, out)
	}
}

func getSummary(src Source) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := src.Records()
		if err != nil {
			fail(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, summary.Aggregate(records))
	}
}

func getStats(src Source, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var since time.Time
		if w := c.Query("window"); w != "" {
			window, err := time.ParseDuration(w)
			if err != nil || window <= 0 {
				fail(c, http.StatusBadRequest, errors.Errorf("invalid window %q", w))
				return
			}
			since = now().Add(-window)
		}
		records, err := src.Records()
		if err != nil {
			fail(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, summary.Summarize(summary.Aggregate(records), since))
	}
}

func fail(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	}
}

// Serve runs the router on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("report server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
