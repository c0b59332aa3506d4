package dto

// ConnectivityEventRequest carries a browser online/offline transition.
type ConnectivityEventRequest struct {
	Event string `json:"event" validate:"required,oneof=online offline"`
}

// ConnectivityProbeResponse reports the outcome of an on-demand probe.
type ConnectivityProbeResponse struct {
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}
