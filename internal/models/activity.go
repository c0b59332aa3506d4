package models

import (
	"strings"
	"time"
)

// ActivityType classifies a recorded user action.
type ActivityType string

const (
	ActivityDocument ActivityType = "document"
	ActivityProfile  ActivityType = "profile"
	ActivitySecurity ActivityType = "security"
	ActivityLogin    ActivityType = "login"
	ActivitySystem   ActivityType = "system"
)

// ParseActivityType normalises a raw type name.
func ParseActivityType(raw string) (ActivityType, bool) {
	t := ActivityType(strings.ToLower(strings.TrimSpace(raw)))
	return t, t.Valid()
}

// Valid reports whether t is one of the known activity kinds.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityDocument, ActivityProfile, ActivitySecurity, ActivityLogin, ActivitySystem:
		return true
	default:
		return false
	}
}

// ActivityRecord is an append-only audit entry describing one user action.
type ActivityRecord struct {
	ID        string
	UserID    string
	Type      ActivityType
	Message   string
	Metadata  Metadata
	Timestamp time.Time
}

// ToRecord maps the activity onto a store document. ID and timestamp are left to the store.
func (a ActivityRecord) ToRecord() Record {
	metadata := a.Metadata
	if metadata == nil {
		metadata = Metadata{}
	}
	return Record{
		Collection: CollectionActivities,
		ID:         a.ID,
		UserID:     a.UserID,
		Data: map[string]interface{}{
			"userId":   a.UserID,
			"type":     string(a.Type),
			"message":  a.Message,
			"metadata": map[string]interface{}(metadata.JSONMap()),
		},
	}
}

// ActivityFromRecord rebuilds an activity from its stored document.
func ActivityFromRecord(record Record) (ActivityRecord, error) {
	activity := ActivityRecord{
		ID:        record.ID,
		UserID:    record.UserID,
		Timestamp: record.Timestamp,
		Metadata:  Metadata{},
	}
	if v, ok := record.Data["type"].(string); ok {
		activity.Type = ActivityType(v)
	}
	if v, ok := record.Data["message"].(string); ok {
		activity.Message = v
	}
	if raw, ok := record.Data["metadata"].(map[string]interface{}); ok {
		metadata, err := MetadataFromMap(raw)
		if err != nil {
			return ActivityRecord{}, err
		}
		activity.Metadata = metadata
	}
	return activity, nil
}
