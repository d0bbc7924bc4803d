package web

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"drive-camera-publisher/camera"
	"drive-camera-publisher/config"
	"drive-camera-publisher/device"
)

// Handlers manages HTTP request handlers
type Handlers struct {
	config  *config.Config
	logger  *zap.Logger
	capture *camera.Capture
	preview *PreviewHub
}

// NewHandlers creates a new handlers instance
func NewHandlers(cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		config: cfg,
		logger: logger,
	}
}

// SetCapture sets the capture instance
func (h *Handlers) SetCapture(capture *camera.Capture) {
	h.capture = capture
}

// SetPreviewHub sets the preview hub
func (h *Handlers) SetPreviewHub(preview *PreviewHub) {
	h.preview = preview
}

// HandleAPIStatus returns the status of all components
func (h *Handlers) HandleAPIStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"server": map[string]interface{}{
			"web_port": h.config.Server.WebPort,
			"running":  true,
		},
	}

	if h.capture != nil {
		status["capture"] = map[string]interface{}{
			"running":  h.capture.IsRunning(),
			"frame_id": h.config.Camera.FrameID,
			"protocol": h.config.Camera.Protocol,
		}
	}

	if h.preview != nil {
		status["preview"] = map[string]interface{}{
			"clients": h.preview.ClientCount(),
		}
	}

	h.writeJSONResponse(w, status)
}

// HandleAPIConfig returns the current configuration
func (h *Handlers) HandleAPIConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, h.config)
}

// HandleAPIStart starts the capture
func (h *Handlers) HandleAPIStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.capture == nil {
		h.writeErrorResponse(w, "Capture not available", http.StatusServiceUnavailable)
		return
	}

	params := device.SensorParams{
		Protocol:   h.config.Camera.Protocol,
		Parameters: h.config.Camera.Parameters,
	}
	if err := h.capture.Start(params); err != nil {
		h.logger.Error("Failed to start capture", zap.Error(err))
		h.writeJSONResponse(w, map[string]interface{}{
			"action":  "start",
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	h.logger.Info("Capture started via API")
	h.writeJSONResponse(w, map[string]interface{}{
		"action":  "start",
		"success": true,
	})
}

// HandleAPIStop stops the capture
func (h *Handlers) HandleAPIStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeErrorResponse(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.capture == nil {
		h.writeErrorResponse(w, "Capture not available", http.StatusServiceUnavailable)
		return
	}

	if err := h.capture.Stop(); err != nil {
		h.logger.Error("Failed to stop capture", zap.Error(err))
		h.writeJSONResponse(w, map[string]interface{}{
			"action":  "stop",
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	h.logger.Info("Capture stopped via API")
	h.writeJSONResponse(w, map[string]interface{}{
		"action":  "stop",
		"success": true,
	})
}

// HandleAPIStats returns comprehensive statistics
func (h *Handlers) HandleAPIStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp": time.Now().Unix(),
	}

	if h.capture != nil {
		stats["capture"] = h.capture.GetStats()
	}

	if h.preview != nil {
		stats["preview"] = map[string]interface{}{
			"clients": h.preview.ClientCount(),
		}
	}

	h.writeJSONResponse(w, stats)
}

// HandleHealth returns health check information
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services": map[string]interface{}{
			"web_server": "running",
		},
	}

	if h.capture != nil {
		state := "stopped"
		if h.capture.IsRunning() {
			state = "running"
		}
		health["services"].(map[string]interface{})["capture"] = state
	}

	h.writeJSONResponse(w, health)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}

	json.NewEncoder(w).Encode(errorResponse)
}
