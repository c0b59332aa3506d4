package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gorm.io/datatypes"
)

// MetaKind enumerates the scalar shapes a metadata value may take.
type MetaKind uint8

const (
	MetaString MetaKind = iota + 1
	MetaInt
	MetaFloat
	MetaBool
	MetaTime
	MetaStrings
)

// MetaValue is a single metadata entry restricted to a closed set of scalar types.
type MetaValue struct {
	kind MetaKind
	str  string
	num  int64
	flt  float64
	flag bool
	at   time.Time
	list []string
}

// StringValue wraps a string metadata value.
func StringValue(v string) MetaValue { return MetaValue{kind: MetaString, str: v} }

// IntValue wraps an integer metadata value.
func IntValue(v int64) MetaValue { return MetaValue{kind: MetaInt, num: v} }

// FloatValue wraps a floating point metadata value.
func FloatValue(v float64) MetaValue { return MetaValue{kind: MetaFloat, flt: v} }

// BoolValue wraps a boolean metadata value.
func BoolValue(v bool) MetaValue { return MetaValue{kind: MetaBool, flag: v} }

// TimeValue wraps an instant; it is serialised as RFC3339 in UTC.
func TimeValue(v time.Time) MetaValue { return MetaValue{kind: MetaTime, at: v.UTC()} }

// StringsValue wraps a list of strings.
func StringsValue(v []string) MetaValue {
	return MetaValue{kind: MetaStrings, list: append([]string(nil), v...)}
}

// Kind reports the scalar shape held by the value.
func (v MetaValue) Kind() MetaKind { return v.kind }

// Str returns the string form for string and time values.
func (v MetaValue) Str() string {
	switch v.kind {
	case MetaString:
		return v.str
	case MetaTime:
		return v.at.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v.Interface())
	}
}

// Int returns the integer held by the value, truncating floats.
func (v MetaValue) Int() int64 {
	if v.kind == MetaFloat {
		return int64(v.flt)
	}
	return v.num
}

// Strings returns a copy of the list held by the value.
func (v MetaValue) Strings() []string { return append([]string(nil), v.list...) }

// Interface returns the plain JSON representation of the value.
func (v MetaValue) Interface() interface{} {
	switch v.kind {
	case MetaString:
		return v.str
	case MetaInt:
		return v.num
	case MetaFloat:
		return v.flt
	case MetaBool:
		return v.flag
	case MetaTime:
		return v.at.Format(time.RFC3339Nano)
	case MetaStrings:
		return v.Strings()
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v MetaValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *MetaValue) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return err
	}

	parsed, err := metaValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Metadata is an open set of named scalar values attached to records.
type Metadata map[string]MetaValue

// Clone returns a shallow copy that can be mutated independently.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for key, value := range m {
		out[key] = value
	}
	return out
}

// JSONMap converts the metadata into its persisted representation.
func (m Metadata) JSONMap() datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for key, value := range m {
		out[key] = value.Interface()
	}
	return out
}

// MetadataFromMap converts loosely typed values, as decoded from JSON, into Metadata.
// Values outside the supported scalar set are rejected.
func MetadataFromMap(raw map[string]interface{}) (Metadata, error) {
	out := make(Metadata, len(raw))
	for key, value := range raw {
		parsed, err := metaValueOf(value)
		if err != nil {
			return nil, fmt.Errorf("metadata %q: %w", key, err)
		}
		out[key] = parsed
	}
	return out, nil
}

func metaValueOf(raw interface{}) (MetaValue, error) {
	switch v := raw.(type) {
	case MetaValue:
		return v, nil
	case string:
		return StringValue(v), nil
	case bool:
		return BoolValue(v), nil
	case int:
		return IntValue(int64(v)), nil
	case int32:
		return IntValue(int64(v)), nil
	case int64:
		return IntValue(v), nil
	case uint:
		return IntValue(int64(v)), nil
	case float32:
		return floatOrInt(float64(v)), nil
	case float64:
		return floatOrInt(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return IntValue(n), nil
		}
		f, err := v.Float64()
		if err != nil {
			return MetaValue{}, err
		}
		return FloatValue(f), nil
	case time.Time:
		return TimeValue(v), nil
	case []string:
		return StringsValue(v), nil
	case []interface{}:
		list := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return MetaValue{}, fmt.Errorf("unsupported list element %T", item)
			}
			list = append(list, str)
		}
		return StringsValue(list), nil
	default:
		return MetaValue{}, fmt.Errorf("unsupported metadata value %T", raw)
	}
}

func floatOrInt(f float64) MetaValue {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return IntValue(int64(f))
	}
	return FloatValue(f)
}
