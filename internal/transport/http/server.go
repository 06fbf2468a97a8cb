package monitorhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"candler/internal/indicator"
	"candler/internal/logger"
	"candler/internal/market"
	"candler/internal/store/gormstore"

	"github.com/gin-gonic/gin"
)

// ControlStore is the slice of the control-plane store the monitor reads.
type ControlStore interface {
	ListCursors(ctx context.Context) ([]gormstore.Cursor, error)
	RecentRunLogs(ctx context.Context, limit int) ([]gormstore.RunLog, error)
}

// CandleStore is the read side of the candle store.
type CandleStore interface {
	Recent(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

// ServerConfig wires the monitor server.
type ServerConfig struct {
	Addr       string
	Control    ControlStore
	Candles    CandleStore
	Settings   indicator.Settings
	Thresholds indicator.Thresholds
}

// Server exposes the read-only monitoring API while continuous collection
// runs: cursor status, recent run logs, stored candles and live signals.
type Server struct {
	addr string
	cfg  ServerConfig
	http *http.Server
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Control == nil || cfg.Candles == nil {
		return nil, errors.New("monitor server requires control and candle stores")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9981"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{addr: cfg.Addr, cfg: cfg}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/events", s.handleEvents)
	api.GET("/candles", s.handleCandles)
	api.GET("/signals", s.handleSignals)

	s.http = &http.Server{Addr: cfg.Addr, Handler: router}
	return s, nil
}

// Handler exposes the routed handler for serving through another listener.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[monitor] listening on %s", s.addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleStatus(c *gin.Context) {
	cursors, err := s.cfg.Control.ListCursors(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	now := time.Now().UnixMilli()
	type pairStatus struct {
		Symbol        string `json:"symbol"`
		Interval      string `json:"interval"`
		Status        string `json:"status"`
		LastCollected *int64 `json:"last_collected_time"`
		LagMS         *int64 `json:"lag_ms"`
		ErrorCount    int    `json:"error_count"`
		LastError     string `json:"last_error,omitempty"`
	}
	out := make([]pairStatus, 0, len(cursors))
	for _, cur := range cursors {
		ps := pairStatus{
			Symbol:        cur.Symbol,
			Interval:      cur.Interval,
			Status:        string(cur.Status),
			LastCollected: cur.LastCollected,
			ErrorCount:    cur.ErrorCount,
			LastError:     cur.LastError,
		}
		if cur.LastCollected != nil {
			lag := now - *cur.LastCollected
			ps.LagMS = &lag
		}
		out = append(out, ps)
	}
	c.JSON(http.StatusOK, gin.H{"pairs": out, "count": len(out)})
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	logs, err := s.cfg.Control.RecentRunLogs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": logs, "count": len(logs)})
}

func (s *Server) handleCandles(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	interval := market.NormalizeInterval(c.Query("interval"))
	if symbol == "" || interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and interval are required"})
		return
	}
	limit := queryInt(c, "limit", 200)
	candles, err := s.cfg.Candles.Recent(c.Request.Context(), symbol, interval, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": candles, "count": len(candles)})
}

func (s *Server) handleSignals(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	interval := market.NormalizeInterval(c.Query("interval"))
	if symbol == "" || interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol and interval are required"})
		return
	}
	candles, err := s.cfg.Candles.Recent(c.Request.Context(), symbol, interval, 200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(candles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no stored candles for pair"})
		return
	}
	snap, err := indicator.Compute(candles, s.cfg.Settings)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	snap.Symbol = symbol
	snap.Interval = interval
	signals := indicator.Evaluate(snap, s.cfg.Thresholds)
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
