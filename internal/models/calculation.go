package models

import "time"

// CalculationRecord is an ROI calculator result saved for a user.
type CalculationRecord struct {
	ID        string
	UserID    string
	Input     map[string]interface{}
	Results   map[string]interface{}
	Timestamp time.Time
	Version   string
	Metadata  Metadata
}

// ToRecord maps the calculation onto a store document.
func (c CalculationRecord) ToRecord() Record {
	metadata := c.Metadata
	if metadata == nil {
		metadata = Metadata{}
	}
	return Record{
		Collection: CollectionCalculations,
		ID:         c.ID,
		UserID:     c.UserID,
		Data: map[string]interface{}{
			"userId":   c.UserID,
			"input":    map[string]interface{}(CloneFields(c.Input)),
			"results":  map[string]interface{}(CloneFields(c.Results)),
			"version":  c.Version,
			"metadata": map[string]interface{}(metadata.JSONMap()),
		},
		Timestamp: c.Timestamp,
	}
}

// CalculationFromRecord rebuilds a calculation from its stored document.
func CalculationFromRecord(record Record) (CalculationRecord, error) {
	calc := CalculationRecord{
		ID:        record.ID,
		UserID:    record.UserID,
		Timestamp: record.Timestamp,
		Input:     map[string]interface{}{},
		Results:   map[string]interface{}{},
		Metadata:  Metadata{},
	}
	if v, ok := record.Data["version"].(string); ok {
		calc.Version = v
	}
	if v, ok := record.Data["input"].(map[string]interface{}); ok {
		calc.Input = v
	}
	if v, ok := record.Data["results"].(map[string]interface{}); ok {
		calc.Results = v
	}
	if raw, ok := record.Data["metadata"].(map[string]interface{}); ok {
		metadata, err := MetadataFromMap(raw)
		if err != nil {
			return CalculationRecord{}, err
		}
		calc.Metadata = metadata
	}
	return calc, nil
}
