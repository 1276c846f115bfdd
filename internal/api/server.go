package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"suntrack/internal/location"
	"suntrack/internal/tracker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	router *gin.Engine
	server *http.Server
	sun    *tracker.SunTracker
	ip     *tracker.IPTracker
	port   int
	logger *slog.Logger
}

type ServerConfig struct {
	Port   int
	Sun    *tracker.SunTracker
	IP     *tracker.IPTracker
	Logger *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	router.Use(requestLogger(logger))

	s := &Server{
		router: router,
		sun:    cfg.Sun,
		ip:     cfg.IP,
		port:   cfg.Port,
		logger: logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	{
		api.GET("/sun", s.sunHandler)
		api.POST("/sun/fetch", s.fetchSunHandler)
		api.POST("/location", s.locationHandler)
		api.GET("/ip", s.ipHandler)
		api.POST("/ip", s.updateIPHandler)
		api.GET("/stream", s.streamHandler)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	s.logger.Info("API server starting", "port", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func errorString(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"sun_phase": s.sun.Phase(),
		"ip_phase":  s.ip.Phase(),
		"timestamp": time.Now(),
	})
}

func (s *Server) sunHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":      s.sun.Snapshot(),
		"phase":      s.sun.Phase(),
		"last_error": errorString(s.sun.LastError()),
	})
}

// fetchSunHandler is the "Fetch Data" button.
func (s *Server) fetchSunHandler(c *gin.Context) {
	s.sun.FetchData()
	c.JSON(http.StatusAccepted, gin.H{"message": "Location requested"})
}

// LocationRequest is a position pushed by the device. Values are used as
// given, without range checks.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

func (s *Server) locationHandler(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.sun.OnLocationUpdate(location.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude})
	c.JSON(http.StatusAccepted, gin.H{"message": "Location update accepted"})
}

func (s *Server) ipHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ip":         s.ip.Submitted(),
		"state":      s.ip.Snapshot(),
		"phase":      s.ip.Phase(),
		"last_error": errorString(s.ip.LastError()),
	})
}

type IPRequest struct {
	IP string `json:"ip" binding:"required"`
}

func (s *Server) updateIPHandler(c *gin.Context) {
	var req IPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.ip.UpdateIP(req.IP)
	c.JSON(http.StatusAccepted, gin.H{"message": "Lookup started", "ip": req.IP})
}

type streamEvent struct {
	name string
	data any
}

// streamHandler pushes every published snapshot as a server-sent event,
// starting with the current state of both trackers.
func (s *Server) streamHandler(c *gin.Context) {
	events := make(chan streamEvent, 16)
	push := func(ev streamEvent) {
		select {
		case events <- ev:
		default:
			s.logger.Warn("stream client too slow, dropping snapshot", "event", ev.name)
		}
	}

	unsubscribeSun := s.sun.Subscribe(func(st tracker.SunState) { push(streamEvent{"sun", st}) })
	defer unsubscribeSun()
	unsubscribeIP := s.ip.Subscribe(func(st tracker.IPState) { push(streamEvent{"ip", st}) })
	defer unsubscribeIP()

	push(streamEvent{"sun", s.sun.Snapshot()})
	push(streamEvent{"ip", s.ip.Snapshot()})

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			c.SSEvent(ev.name, ev.data)
			return true
		}
	})
}
