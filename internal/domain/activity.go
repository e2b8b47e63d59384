// Package domain defines the activity data model shared by the client, the controllers and the CLI.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ActivityType is the closed set of workout kinds a user can record.
type ActivityType string

const (
	ActivityRunning        ActivityType = "RUNNING"
	ActivityCycling        ActivityType = "CYCLING"
	ActivitySwimming       ActivityType = "SWIMMING"
	ActivityYoga           ActivityType = "YOGA"
	ActivityWeightTraining ActivityType = "WEIGHT_TRAINING"
	ActivityHIIT           ActivityType = "HIIT"
)

var activityTypes = []ActivityType{
	ActivityRunning,
	ActivityCycling,
	ActivitySwimming,
	ActivityYoga,
	ActivityWeightTraining,
	ActivityHIIT,
}

// ActivityTypes lists the recordable types in display order.
func ActivityTypes() []ActivityType {
	out := make([]ActivityType, len(activityTypes))
	copy(out, activityTypes)
	return out
}

// Valid reports whether t belongs to the recordable set.
func (t ActivityType) Valid() bool {
	for _, known := range activityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseActivityType accepts the wire name or a human spelling such as "weight training".
func ParseActivityType(raw string) (ActivityType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	t := ActivityType(normalized)
	if !t.Valid() {
		return "", fmt.Errorf("unknown activity type %q", raw)
	}
	return t, nil
}

// Label returns the display name, e.g. "Weight Training".
func (t ActivityType) Label() string {
	if t == ActivityHIIT {
		return "HIIT"
	}
	words := strings.Split(strings.ToLower(string(t)), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Metrics carries free-form measurements keyed by name. Values are numbers or strings.
type Metrics map[string]any

// Keys returns the metric names in sorted order.
func (m Metrics) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate rejects values that are neither numeric nor textual.
func (m Metrics) Validate() error {
	for key, value := range m {
		switch value.(type) {
		case string, float64, float32, int, int32, int64, json.Number:
		default:
			return fmt.Errorf("metric %q has unsupported value type %T", key, value)
		}
	}
	return nil
}

// Activity is a recorded workout as returned by the backend.
type Activity struct {
	ID                string       `json:"id"`
	UserID            string       `json:"userId,omitempty"`
	Type              ActivityType `json:"type"`
	Duration          float64      `json:"duration"`
	CaloriesBurned    float64      `json:"caloriesBurned"`
	StartTime         *Timestamp   `json:"startTime,omitempty"`
	AdditionalMetrics Metrics      `json:"additionalMetrics,omitempty"`
	CreatedAt         Timestamp    `json:"createdAt"`
	UpdatedAt         *Timestamp   `json:"updatedAt,omitempty"`

	AIAnnotations
}

// Timestamp decodes RFC 3339 values as well as zone-less local date-times, which are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", raw)
}
