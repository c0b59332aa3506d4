package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Collection names used by the portal record store.
const (
	CollectionActivities       = "activities"
	CollectionCalculations     = "calculations"
	CollectionDocuments        = "documents"
	CollectionProfiles         = "profiles"
	CollectionLeads            = "leads"
	CollectionTrainingProgress = "training_progress"
	CollectionBackups          = "backups"
	CollectionBackupArchives   = "backupArchives"
)

// Record is a single user-scoped document held by the record store.
type Record struct {
	Collection string            `gorm:"primaryKey;size:64;index:idx_records_owner,priority:1" json:"collection"`
	ID         string            `gorm:"primaryKey;size:191" json:"id"`
	UserID     string            `gorm:"size:128;not null;index:idx_records_owner,priority:2" json:"userId"`
	Data       datatypes.JSONMap `json:"data"`
	Timestamp  time.Time         `gorm:"column:recorded_at;not null;index:idx_records_owner,priority:3" json:"timestamp"`
	Revision   int64             `gorm:"not null;default:0" json:"revision"`
}

// TableName pins the table used for every collection.
func (Record) TableName() string {
	return "records"
}

// Clone deep-copies the record so callers can mutate the copy freely.
func (r Record) Clone() Record {
	out := r
	out.Data = CloneFields(r.Data)
	return out
}

// CloneFields deep-copies a decoded JSON document.
func CloneFields(fields map[string]interface{}) datatypes.JSONMap {
	if fields == nil {
		return datatypes.JSONMap{}
	}
	out := make(datatypes.JSONMap, len(fields))
	for key, value := range fields {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return map[string]interface{}(CloneFields(v))
	case datatypes.JSONMap:
		return map[string]interface{}(CloneFields(v))
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}

// ToFields converts a typed document into a plain JSON field map.
func ToFields(v interface{}) (datatypes.JSONMap, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	fields := datatypes.JSONMap{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}

// FromFields decodes a plain JSON field map into a typed document.
func FromFields(fields map[string]interface{}, target interface{}) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	return nil
}
