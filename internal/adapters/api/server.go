package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"PhotoTransfer/internal/core"
	"PhotoTransfer/internal/platform"
	"PhotoTransfer/pkg/device"
)

// sseBuffer is how many events a slow SSE client may fall behind
const sseBuffer = 100

// Server is the HTTP API server for PhotoTransfer
type Server struct {
	addr    string
	logger  log.Interface
	service *core.Service
	router  *gin.Engine
	server  *http.Server

	// SSE clients
	sseClients   map[chan sseMessage]struct{}
	sseClientsMu sync.Mutex

	// Service providers (set via options)
	prereqProvider      func(dest string) interface{}
	configProvider      func() interface{}
	destinationProvider func() string
	openFolder          func(path string) error
}

// ServerOption configures the Server
type ServerOption func(*Server)

// WithPrereqProvider sets the function that builds the prerequisite report
func WithPrereqProvider(fn func(dest string) interface{}) ServerOption {
	return func(s *Server) {
		s.prereqProvider = fn
	}
}

// WithConfigProvider sets the function to get configuration
func WithConfigProvider(fn func() interface{}) ServerOption {
	return func(s *Server) {
		s.configProvider = fn
	}
}

// WithDestinationProvider overrides where transfers go by default
func WithDestinationProvider(fn func() string) ServerOption {
	return func(s *Server) {
		s.destinationProvider = fn
	}
}

// WithOpenFolder overrides how folders are opened on the host
func WithOpenFolder(fn func(path string) error) ServerOption {
	return func(s *Server) {
		s.openFolder = fn
	}
}

// NewServer creates a new API server listening on addr. It subscribes to the
// service's job and device events for SSE clients.
func NewServer(addr string, logger log.Interface, service *core.Service, opts ...ServerOption) *Server {
	if logger == nil {
		logger = log.Log
	}
	s := &Server{
		addr:                addr,
		logger:              logger,
		service:             service,
		sseClients:          make(map[chan sseMessage]struct{}),
		destinationProvider: platform.DefaultDestination,
		openFolder:          platform.OpenFolder,
	}

	for _, opt := range opts {
		opt(s)
	}

	service.Jobs().AddEmitter(s)
	service.Registry().Subscribe(s.EmitDevices)
	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router = gin.New()
	s.router.Use(gin.Recovery(), s.loggingMiddleware(), s.corsMiddleware())

	api := s.router.Group("/api")

	// Health check
	api.GET("/health", s.handleHealth)

	// Devices
	api.GET("/devices", s.handleDevices)
	api.POST("/devices/:id/connect", s.handleConnect)
	api.GET("/devices/:id/media", s.handleMedia)
	api.POST("/devices/:id/media/refresh", s.handleRefreshMedia)

	// Transfers
	api.POST("/transfers", s.handleStartTransfer)
	api.GET("/transfers", s.handleTransfers)
	api.GET("/transfers/active", s.handleActiveTransfer)
	api.GET("/transfers/:id", s.handleTransfer)
	api.DELETE("/transfers/:id", s.handleCancelTransfer)

	// Host helpers
	api.GET("/destination/default", s.handleDefaultDestination)
	api.POST("/open", s.handleOpen)
	api.GET("/prereqs", s.handlePrereqs)
	api.GET("/config", s.handleConfig)

	// SSE events
	api.GET("/events", s.handleSSE)
}

// Handler returns the HTTP handler, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithField("addr", s.addr).Info("[API] Starting HTTP server")
	return s.server.ListenAndServe()
}

// StartBackground starts the server in a goroutine and shuts it down when
// ctx ends
func (s *Server) StartBackground(ctx context.Context) {
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("[API] Server error")
		}
	}()

	// Handle shutdown
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()
}

// Shutdown stops accepting requests and waits briefly for running ones
func (s *Server) Shutdown() {
	if s.server == nil {
		return
	}
	s.logger.Info("[API] Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Warn("[API] Shutdown error")
	}
}

// loggingMiddleware logs all requests
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"took":   time.Since(start).String(),
		}).Debug("[API] request")
	}
}

// corsMiddleware adds CORS headers for cross-origin requests
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// EmitJobUpdate implements core.JobEventEmitter to broadcast events to SSE clients
func (s *Server) EmitJobUpdate(event core.JobUpdateEvent) {
	if event.LogLine != "" {
		s.broadcast(sseMessage{Event: "job:log", Data: map[string]interface{}{
			"jobId":   event.JobID,
			"logLine": event.LogLine,
			"seq":     event.Seq,
		}})
	}

	// Determine event type based on job state
	eventType := "job:update"
	switch event.State {
	case core.JobSucceeded:
		eventType = "job:completed"
	case core.JobFailed:
		eventType = "job:failed"
	case core.JobCanceled:
		eventType = "job:canceled"
	}
	s.broadcast(sseMessage{Event: eventType, Data: event})
}

// EmitDevices broadcasts a changed device list to SSE clients
func (s *Server) EmitDevices(devices []device.Device) {
	s.broadcast(sseMessage{Event: "devices:changed", Data: DevicesResponse{Devices: devices}})
}

func (s *Server) broadcast(msg sseMessage) {
	s.sseClientsMu.Lock()
	defer s.sseClientsMu.Unlock()

	for clientChan := range s.sseClients {
		select {
		case clientChan <- msg:
		default:
			// Client is slow, skip this event
			s.logger.WithField("event", msg.Event).Warn("[API] SSE client slow, skipping event")
		}
	}
}

// addSSEClient registers a new SSE client
func (s *Server) addSSEClient() chan sseMessage {
	ch := make(chan sseMessage, sseBuffer)
	s.sseClientsMu.Lock()
	defer s.sseClientsMu.Unlock()
	s.sseClients[ch] = struct{}{}
	s.logger.WithField("clients", len(s.sseClients)).Debug("[API] SSE client connected")
	return ch
}

// removeSSEClient unregisters an SSE client
func (s *Server) removeSSEClient(ch chan sseMessage) {
	s.sseClientsMu.Lock()
	defer s.sseClientsMu.Unlock()
	delete(s.sseClients, ch)
	close(ch)
	s.logger.WithField("clients", len(s.sseClients)).Debug("[API] SSE client disconnected")
}

// Helper functions for responses

func writeJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, APIResponse{
		Success: true,
		Data:    data,
	})
}

func writeError(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}
