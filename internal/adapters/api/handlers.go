package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"PhotoTransfer/internal/core"
	"PhotoTransfer/pkg/device"
)

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "phototransfer-api",
		Devices: len(s.service.Devices()),
		Cache:   s.service.CacheStats(),
	})
}

// handleDevices returns the devices of the last scan, rescanning first when
// ?refresh=true
func (s *Server) handleDevices(c *gin.Context) {
	var devices []device.Device
	if c.Query("refresh") == "true" {
		devices = s.service.ScanDevices(c.Request.Context())
	} else {
		devices = s.service.Devices()
	}
	writeJSON(c, http.StatusOK, DevicesResponse{Devices: devices})
}

// handleConnect confirms a device is still attached
func (s *Server) handleConnect(c *gin.Context) {
	id := c.Param("id")
	ok, err := s.service.Connect(id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ConnectResponse{DeviceID: id, Connected: ok})
}

// handleMedia returns the media of a device, enumerating it on first use
func (s *Server) handleMedia(c *gin.Context) {
	id := c.Param("id")
	items, err := s.service.ListMedia(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, MediaResponse{DeviceID: id, Items: items})
}

// handleRefreshMedia re-enumerates a device
func (s *Server) handleRefreshMedia(c *gin.Context) {
	id := c.Param("id")
	items, err := s.service.RefreshMedia(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, MediaResponse{DeviceID: id, Items: items})
}

// handleStartTransfer starts a transfer job
func (s *Server) handleStartTransfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Destination == "" {
		req.Destination = s.destinationProvider()
	}

	jobID, err := s.service.StartTransfer(req.toEngine())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	writeJSON(c, http.StatusAccepted, TransferStartedResponse{
		JobID:   jobID,
		Message: "Transfer started",
	})
}

// handleTransfers returns all transfer jobs
func (s *Server) handleTransfers(c *gin.Context) {
	jobs := s.service.Jobs().ListJobs()
	activeJobID := ""
	if activeJob := s.service.Jobs().GetActiveJob(); activeJob != nil {
		activeJobID = activeJob.JobID
	}

	writeJSON(c, http.StatusOK, JobListResponse{
		Jobs:      jobs,
		ActiveJob: activeJobID,
	})
}

// handleActiveTransfer returns the currently running job
func (s *Server) handleActiveTransfer(c *gin.Context) {
	job := s.service.Jobs().GetActiveJob()
	if job == nil {
		writeJSON(c, http.StatusOK, nil)
		return
	}
	writeJSON(c, http.StatusOK, job)
}

// handleTransfer returns one job
func (s *Server) handleTransfer(c *gin.Context) {
	job, err := s.service.Jobs().GetJob(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(c, http.StatusOK, job)
}

// handleCancelTransfer requests cancellation of a running job
func (s *Server) handleCancelTransfer(c *gin.Context) {
	jobID := c.Param("id")
	if err := s.service.CancelTransfer(jobID); err != nil {
		writeError(c, http.StatusBadRequest, "cancel_failed", err.Error())
		return
	}
	writeJSON(c, http.StatusOK, map[string]string{
		"message": "Transfer " + jobID + " cancellation requested",
	})
}

// handleDefaultDestination returns the default transfer folder
func (s *Server) handleDefaultDestination(c *gin.Context) {
	writeJSON(c, http.StatusOK, DestinationResponse{Path: s.destinationProvider()})
}

// handleOpen opens a folder in the host's file manager
func (s *Server) handleOpen(c *gin.Context) {
	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.openFolder(req.Path); err != nil {
		writeError(c, http.StatusInternalServerError, "open_failed", err.Error())
		return
	}
	writeJSON(c, http.StatusOK, map[string]string{"path": req.Path})
}

// handlePrereqs returns the prerequisites report
func (s *Server) handlePrereqs(c *gin.Context) {
	if s.prereqProvider == nil {
		writeError(c, http.StatusNotImplemented, "not_implemented", "Prereq provider not configured")
		return
	}
	writeJSON(c, http.StatusOK, s.prereqProvider(s.destinationProvider()))
}

// handleConfig returns the current configuration
func (s *Server) handleConfig(c *gin.Context) {
	if s.configProvider == nil {
		writeError(c, http.StatusNotImplemented, "not_implemented", "Config provider not configured")
		return
	}
	writeJSON(c, http.StatusOK, s.configProvider())
}

// writeServiceError maps service errors to HTTP statuses
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeError(c, http.StatusNotFound, "device_not_found", err.Error())
	case errors.Is(err, core.ErrJobRunning):
		writeError(c, http.StatusConflict, "job_running", err.Error())
	case errors.Is(err, device.ErrUnsupported):
		writeError(c, http.StatusNotImplemented, "unsupported", err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
