package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// timestampLayout is shared by both formatters.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// JSONFormatter renders entries as single-line JSON objects.
type JSONFormatter struct{}

// Format implements Formatter.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	obj := make(map[string]interface{}, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		obj[k] = v
	}
	obj["ts"] = entry.Timestamp.Format(timestampLayout)
	obj["level"] = entry.Level.String()
	obj["msg"] = entry.Message
	if entry.Caller != "" {
		obj["caller"] = entry.Caller
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// TextFormatter renders entries as "ts LEVEL message key=value ...".
// Field keys are sorted for stable output.
type TextFormatter struct{}

// Format implements Formatter.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(entry.Timestamp.Format(timestampLayout))
	buf.WriteByte(' ')
	buf.WriteString(fmt.Sprintf("%-5s", entry.Level.String()))
	buf.WriteByte(' ')
	buf.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf.WriteByte(' ')
			buf.WriteString(k)
			buf.WriteByte('=')
			buf.WriteString(formatValue(entry.Fields[k]))
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func formatValue(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	if strings.ContainsAny(s, " \t\"=") {
		return fmt.Sprintf("%q", s)
	}
	if s == "" {
		return `""`
	}
	return s
}
