// Package api provides an HTTP API adapter for PhotoTransfer.
// This adapter exposes REST endpoints and SSE event streaming for remote control.
package api

import (
	"PhotoTransfer/internal/core"
	"PhotoTransfer/pkg/device"
	"PhotoTransfer/pkg/engine"
)

// APIResponse wraps all API responses with a consistent structure
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError represents an API error
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse is returned by GET /api/health
type HealthResponse struct {
	Status  string          `json:"status"`
	Service string          `json:"service"`
	Devices int             `json:"devices"`
	Cache   core.CacheStats `json:"cache"`
}

// DevicesResponse contains the devices of the last scan
type DevicesResponse struct {
	Devices []device.Device `json:"devices"`
}

// MediaResponse contains the media listing of one device
type MediaResponse struct {
	DeviceID string             `json:"deviceId"`
	Items    []device.MediaItem `json:"items"`
}

// ConnectResponse is returned by POST /api/devices/:id/connect
type ConnectResponse struct {
	DeviceID  string `json:"deviceId"`
	Connected bool   `json:"connected"`
}

// TransferRequest is the request body for starting a transfer. An empty
// destination falls back to the configured default.
type TransferRequest struct {
	DeviceID       string   `json:"deviceId" binding:"required"`
	ItemIDs        []string `json:"itemIds"`
	Destination    string   `json:"destination"`
	OrganizeByDate bool     `json:"organizeByDate"`
}

func (r TransferRequest) toEngine() engine.Request {
	return engine.Request{
		DeviceID:       r.DeviceID,
		ItemIDs:        r.ItemIDs,
		Destination:    r.Destination,
		OrganizeByDate: r.OrganizeByDate,
	}
}

// TransferStartedResponse is returned when a transfer job was accepted
type TransferStartedResponse struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// JobListResponse contains a list of jobs
type JobListResponse struct {
	Jobs      []*core.JobSnapshot `json:"jobs"`
	ActiveJob string              `json:"activeJob,omitempty"`
}

// DestinationResponse carries the default transfer destination
type DestinationResponse struct {
	Path string `json:"path"`
}

// OpenRequest asks the host to open a folder in its file manager
type OpenRequest struct {
	Path string `json:"path" binding:"required"`
}

// sseMessage is one Server-Sent Event queued for a client
type sseMessage struct {
	Event string
	Data  interface{}
}
