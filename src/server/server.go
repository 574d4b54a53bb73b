package server

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bond-inventory/src/analysis"
	"bond-inventory/src/logger"
	"bond-inventory/src/models"
	"bond-inventory/src/scheduler"
	"bond-inventory/src/store"

	"github.com/gin-gonic/gin"
)

// Response cache key for the one cacheable read endpoint
const dataCacheKey = "/data"

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

type APIServer struct {
	Config        *models.MConfig
	Logger        *logger.Logger
	Store         *store.SeriesStore
	Scheduler     *scheduler.RefreshScheduler
	ResponseCache *ResponseCache
	engine        *gin.Engine

	// WebSocket clients (owned by the hub loop; clientCount mirrors the map
	// size for handlers running on other goroutines)
	clients     map[*Client]struct{}
	clientCount atomic.Int64
	broadcast   chan *models.MPushMessage
	register    chan *Client
	unregister  chan *Client

	done     chan struct{}
	stopOnce sync.Once
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, log *logger.Logger, st *store.SeriesStore, sched *scheduler.RefreshScheduler) *APIServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:        cfg,
		Logger:        log,
		Store:         st,
		Scheduler:     sched,
		ResponseCache: NewResponseCache(time.Duration(cfg.Cache.TTLSeconds) * time.Second),
		engine:        gin.Default(),
		clients:       make(map[*Client]struct{}),
		// Buffered so a refresh burst never blocks the scheduler
		broadcast:  make(chan *models.MPushMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/data", s.getData)
	s.engine.GET("/health", s.getHealth)
	s.engine.GET("/api/status", s.getStatus)
	s.engine.GET("/api/aggregate", s.getAggregate)
	s.engine.POST("/api/refresh", s.postRefresh)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.handleWebsockets()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------

// Stop shuts the hub loop down, disconnecting every websocket client. Safe
// to call more than once.
func (s *APIServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

// getData serves the dashboard payload, memoized for the configured TTL. An
// empty store triggers one coalesced fallback fetch before giving up with a
// 404; any other failure is a 500 and never crashes the process.
func (s *APIServer) getData(c *gin.Context) {
	if payload, ok := s.ResponseCache.Get(dataCacheKey); ok {
		c.JSON(200, payload)
		return
	}

	snap := s.Store.Snapshot()
	if snap.Empty() {
		s.Logger.Info("Data cache is empty, attempting fallback fetch")
		s.Scheduler.TryRefresh(c.Request.Context())
		snap = s.Store.Snapshot()
	}
	if snap.Empty() {
		s.Logger.Warning("No data available after fetch attempt")
		c.JSON(404, gin.H{"error": "No data available"})
		return
	}

	payload, err := analysis.BuildDataResponse(snap, s.Store.Granularity())
	if err != nil {
		s.Logger.Error("Building data response failed: %v", err)
		c.JSON(500, gin.H{"error": "Internal server error"})
		return
	}

	s.ResponseCache.Set(dataCacheKey, payload)
	c.JSON(200, payload)
}

// -----------------------------------------------------------------------------

// getHealth is liveness only: no dependency checks.
func (s *APIServer) getHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "healthy"})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getStatus(c *gin.Context) {
	snap := s.Store.Snapshot()

	lastRefreshed := ""
	if !snap.LastRefreshedAt.IsZero() {
		lastRefreshed = snap.LastRefreshedAt.UTC().Format(time.RFC3339)
	}

	c.JSON(200, gin.H{
		"backend":           s.Store.Persistence.Backend(),
		"keys":              len(snap.Series),
		"points":            snap.PointCount(),
		"last_refreshed_at": lastRefreshed,
		"last_error":        snap.LastError,
		"refreshing":        s.Scheduler.Refreshing(),
		"connections":       s.clientCount.Load(),
	})
}

// -----------------------------------------------------------------------------

// getAggregate serves the summed series for the dashboard's total chart,
// sorted ascending by timestamp.
func (s *APIServer) getAggregate(c *gin.Context) {
	snap := s.Store.Snapshot()
	g := s.Store.Granularity()

	points := analysis.AggregateSeries(snap)
	out := make([]models.MLatestEntry, 0, len(points))
	for _, p := range points {
		out = append(out, models.MLatestEntry{Value: p.Value, Date: g.Format(p.Timestamp)})
	}
	c.JSON(200, gin.H{"aggregate": out})
}

// -----------------------------------------------------------------------------

// postRefresh triggers a coalesced manual refresh. refreshed=false means one
// was already in flight and this trigger was dropped, not queued.
func (s *APIServer) postRefresh(c *gin.Context) {
	ran := s.Scheduler.TryRefresh(c.Request.Context())

	snap := s.Store.Snapshot()
	c.JSON(200, gin.H{
		"refreshed":  ran,
		"last_error": snap.LastError,
	})
}
