// Package models defines the session types shared between the local stores,
// the session state and the remote service
package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Kind identifies the type of an active session.
type Kind string

const (
	Study   Kind = "study"
	Workout Kind = "workout"
)

// Kinds lists every session kind in a stable order.
var Kinds = []Kind{Study, Workout}

// Valid reports whether k is a known session kind.
func (k Kind) Valid() bool {
	return k == Study || k == Workout
}

func (k Kind) String() string {
	return string(k)
}

// Metadata is the durable, kind-agnostic description of an active session.
type Metadata struct {
	Kind      Kind      `json:"kind"`
	StartedAt time.Time `json:"started_at"`
	// CorrelationID is the id of the remote record. It is empty between the
	// local start and the remote create resolving.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Label is the study bucket id or the workout type.
	Label string `json:"label,omitempty"`
}

// ActiveSession is the in-memory union of metadata and payload.
type ActiveSession struct {
	Metadata
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Clone returns a deep copy of the session. A nil receiver yields nil.
func (s *ActiveSession) Clone() *ActiveSession {
	if s == nil {
		return nil
	}

	c := *s
	if s.Payload != nil {
		c.Payload = bytes.Clone(s.Payload)
	}

	return &c
}

// Equal reports whether two sessions hold the same values.
func (s *ActiveSession) Equal(o *ActiveSession) bool {
	if s == nil || o == nil {
		return s == nil && o == nil
	}

	return s.Kind == o.Kind &&
		s.StartedAt.Equal(o.StartedAt) &&
		s.CorrelationID == o.CorrelationID &&
		s.Label == o.Label &&
		bytes.Equal(s.Payload, o.Payload)
}

// RemoteRecord is the authoritative record of an active session kept by the
// remote service.
type RemoteRecord struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	StartedAt time.Time `json:"started_at"`
	Label     string    `json:"label,omitempty"`
}

// Lift is a single logged set.
type Lift struct {
	ID       string    `json:"id"`
	Exercise string    `json:"exercise"`
	Reps     int       `json:"reps"`
	Weight   float64   `json:"weight"`
	LoggedAt time.Time `json:"logged_at"`
}

// WorkoutPayload is the kind-specific data of a workout session.
type WorkoutPayload struct {
	Sets []Lift `json:"sets"`
}

// StudyPayload is the kind-specific data of a study session.
type StudyPayload struct {
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	Notes          string `json:"notes,omitempty"`
}
