package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Cube lifecycle event types.
const (
	EventCubeBuilt       = "cube.built"
	EventCubeBuildFailed = "cube.build_failed"
)

// CubeEvent announces that a cube was built and swapped in, or that a build
// failed and the previous cube (if any) is still being served.
type CubeEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Source     string    `json:"source,omitempty"`
	InitTime   time.Time `json:"init_time,omitzero"`
	Reducer    string    `json:"reducer,omitempty"`
	Variables  []string  `json:"variables,omitempty"`
	Steps      int       `json:"steps,omitempty"`
	NLat       int       `json:"nlat,omitempty"`
	NLon       int       `json:"nlon,omitempty"`
	ValidFrom  time.Time `json:"valid_from,omitzero"`
	ValidTo    time.Time `json:"valid_to,omitzero"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewCubeBuiltEvent summarizes a freshly built cube.
func NewCubeBuiltEvent(info CubeInfo, took time.Duration) CubeEvent {
	names := make([]string, len(info.Variables))
	for i, v := range info.Variables {
		names[i] = v.Name
	}
	ev := CubeEvent{
		Type:       EventCubeBuilt,
		Source:     info.Source,
		InitTime:   info.InitTime,
		Reducer:    info.Reducer,
		Variables:  names,
		Steps:      info.Steps,
		NLat:       info.NLat,
		NLon:       info.NLon,
		DurationMS: took.Milliseconds(),
		OccurredAt: info.BuiltAt,
	}
	if n := len(info.ValidTimes); n > 0 {
		ev.ValidFrom = info.ValidTimes[0]
		ev.ValidTo = info.ValidTimes[n-1]
	}
	ev.ID = eventID(ev.Type, ev.Source, ev.OccurredAt)
	return ev
}

// NewCubeBuildFailedEvent records a failed build attempt.
func NewCubeBuildFailedEvent(source string, err error, took time.Duration) CubeEvent {
	ev := CubeEvent{
		Type:       EventCubeBuildFailed,
		Source:     source,
		DurationMS: took.Milliseconds(),
		OccurredAt: clock.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	ev.ID = eventID(ev.Type, ev.Source, ev.OccurredAt)
	return ev
}

// eventID is deterministic in the event type, source and time so consumers
// can drop redelivered events.
func eventID(eventType, source string, at time.Time) string {
	input := fmt.Sprintf("%s|%s|%s", eventType, source, at.UTC().Format(time.RFC3339Nano))
	hash := sha256.Sum256([]byte(input))
	return eventType + "-" + hex.EncodeToString(hash[:8])
}
