package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"drive-camera-publisher/camera"
	"drive-camera-publisher/config"
)

// Server exposes the status API and the WebSocket preview endpoint
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	httpServer *http.Server

	// Components
	capture *camera.Capture
	preview *PreviewHub

	// Handlers
	handlers *Handlers
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	server := &Server{
		config: cfg,
		logger: logger,
	}

	// Create handlers
	server.handlers = NewHandlers(cfg, logger)

	return server
}

// SetCapture sets the capture instance
func (s *Server) SetCapture(capture *camera.Capture) {
	s.capture = capture
	s.handlers.SetCapture(capture)
}

// SetPreviewHub sets the preview hub
func (s *Server) SetPreviewHub(preview *PreviewHub) {
	s.preview = preview
	s.handlers.SetPreviewHub(preview)
}

// Start starts the web server
func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.Int("port", s.config.Server.WebPort))

	// Set up routes
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/status", s.handlers.HandleAPIStatus)
	mux.HandleFunc("/api/config", s.handlers.HandleAPIConfig)
	mux.HandleFunc("/api/capture/start", s.handlers.HandleAPIStart)
	mux.HandleFunc("/api/capture/stop", s.handlers.HandleAPIStop)
	mux.HandleFunc("/api/stats", s.handlers.HandleAPIStats)

	// Live preview
	if s.preview != nil {
		mux.HandleFunc("/ws/preview", s.preview.HandlePreview)
	}

	// Health check
	mux.HandleFunc("/health", s.handlers.HandleHealth)

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.BindIP, s.config.Server.WebPort),
		Handler:      s.addMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server error", zap.Error(err))
		}
	}()

	s.logger.Info("Web server started", zap.String("address", s.httpServer.Addr))

	return nil
}

// addMiddleware adds middleware to the HTTP handler
func (s *Server) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		// Logging middleware
		start := time.Now()

		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: 200}

		handler.ServeHTTP(lw, r)

		duration := time.Since(start)
		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", lw.statusCode),
			zap.Duration("duration", duration),
		)
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Stop stops the web server
func (s *Server) Stop() error {
	s.logger.Info("Stopping web server")

	if s.httpServer == nil {
		return nil
	}

	timeout := time.Duration(s.config.Timeouts.HTTPShutdownTimeout) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Error during server shutdown", zap.Error(err))
		return err
	}

	s.logger.Info("Web server stopped")
	return nil
}
