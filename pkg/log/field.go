package log

import "time"

// Field is a single structured logging attribute.
type Field struct {
	Key   string
	Value interface{}
}

// Str creates a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Float64 creates a float64 field.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Bool creates a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Dur creates a duration field rendered as a string.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Any creates a field holding an arbitrary value.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Err creates an "error" field. A nil error renders as "<nil>".
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component tags entries with the emitting component name.
func Component(name string) Field { return Field{Key: "component", Value: name} }
