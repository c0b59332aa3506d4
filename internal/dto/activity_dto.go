package dto

import (
	"time"

	"github.com/noah-isme/portal-resilience-api/internal/models"
)

// ActivityCreateRequest is the payload for recording an activity from the client.
type ActivityCreateRequest struct {
	Type     string                 `json:"type" validate:"required,oneof=document profile security login system"`
	Message  string                 `json:"message" validate:"required,max=500"`
	Metadata map[string]interface{} `json:"metadata"`
}

// ActivityResponse serialises an activity record.
type ActivityResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Metadata  models.Metadata `json:"metadata"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewActivityResponse maps a model to its response form.
func NewActivityResponse(entry models.ActivityRecord) ActivityResponse {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = models.Metadata{}
	}
	return ActivityResponse{
		ID:        entry.ID,
		UserID:    entry.UserID,
		Type:      string(entry.Type),
		Message:   entry.Message,
		Metadata:  metadata,
		Timestamp: entry.Timestamp,
	}
}

// ActivityListResponse wraps recent activities.
type ActivityListResponse struct {
	Items    []ActivityResponse `json:"items"`
	CacheHit bool               `json:"cacheHit"`
}
