// Package remote is the authoritative record of which sessions are running.
// Reconciliation treats it as the source of truth whenever local storage
// and the record disagree.
package remote

import (
	"context"
	"time"

	"github.com/lifetrack/lifetrack/internal/models"
)

// Service exposes the remote operations that session flows depend on.
type Service interface {
	// GetActiveWorkout returns the running workout, or nil
	GetActiveWorkout(ctx context.Context) (*models.RemoteRecord, error)
	// GetActiveStudySession returns the running study session, or nil
	GetActiveStudySession(ctx context.Context) (*models.RemoteRecord, error)
	StartWorkout(ctx context.Context, label string, startedAt time.Time) (string, error)
	StartStudySession(ctx context.Context, bucketID string, startedAt time.Time) (string, error)
	EndWorkout(ctx context.Context, id string, endedAt time.Time) error
	EndStudySession(ctx context.Context, id, notes string, endedAt time.Time) error
	// LogLift stores a set for a running workout and returns its id
	LogLift(ctx context.Context, workoutID string, lift models.Lift) (string, error)
	ListLifts(ctx context.Context, workoutID string) ([]models.Lift, error)
}

// ActiveFor returns the running record of kind, or nil.
func ActiveFor(
	ctx context.Context,
	svc Service,
	kind models.Kind,
) (*models.RemoteRecord, error) {
	switch kind {
	case models.Workout:
		return svc.GetActiveWorkout(ctx)
	case models.Study:
		return svc.GetActiveStudySession(ctx)
	default:
		return nil, errUnknownKind.Fmt(kind)
	}
}
