// Package remotetest provides an in-memory remote.Service for tests
package remotetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/remote"
)

// Operation names accepted by Fail and Calls.
const (
	GetActive = "GetActive"
	Start     = "Start"
	End       = "End"
	LogLift   = "LogLift"
	ListLifts = "ListLifts"
)

// Fake keeps at most one running record per kind in memory.
type Fake struct {
	active map[models.Kind]*models.RemoteRecord
	lifts  map[string][]models.Lift
	fail   map[string]error
	calls  map[string]int
	ended  []string
	nextID int
	mu     sync.Mutex
}

var _ remote.Service = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		active: make(map[models.Kind]*models.RemoteRecord),
		lifts:  make(map[string][]models.Lift),
		fail:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

// Put makes rec the running record of its kind.
func (f *Fake) Put(rec models.RemoteRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.active[rec.Kind] = &rec
}

// Active returns the running record of kind without counting a call.
func (f *Fake) Active(kind models.Kind) *models.RemoteRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	if rec := f.active[kind]; rec != nil {
		c := *rec
		return &c
	}

	return nil
}

// Fail makes op return err until Fail is called again with a nil error.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		delete(f.fail, op)
		return
	}

	f.fail[op] = err
}

// Calls returns how often op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

// Ended lists the ids of ended records in order.
func (f *Fake) Ended() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.ended...)
}

func (f *Fake) enter(op string) error {
	f.calls[op]++
	return f.fail[op]
}

func (f *Fake) GetActiveWorkout(ctx context.Context) (*models.RemoteRecord, error) {
	return f.getActive(models.Workout)
}

func (f *Fake) GetActiveStudySession(ctx context.Context) (*models.RemoteRecord, error) {
	return f.getActive(models.Study)
}

func (f *Fake) StartWorkout(ctx context.Context, label string, startedAt time.Time) (string, error) {
	return f.start(models.Workout, label, startedAt)
}

func (f *Fake) StartStudySession(ctx context.Context, bucketID string, startedAt time.Time) (string, error) {
	return f.start(models.Study, bucketID, startedAt)
}

func (f *Fake) EndWorkout(ctx context.Context, id string, endedAt time.Time) error {
	return f.end(models.Workout, id)
}

func (f *Fake) EndStudySession(ctx context.Context, id, notes string, endedAt time.Time) error {
	return f.end(models.Study, id)
}

func (f *Fake) LogLift(ctx context.Context, workoutID string, lift models.Lift) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.enter(LogLift)
	if err != nil {
		return "", err
	}

	rec := f.active[models.Workout]
	if rec == nil || rec.ID != workoutID {
		return "", remote.ErrRecordNotFound.Fmt(models.Workout, workoutID)
	}

	f.nextID++
	lift.ID = fmt.Sprintf("lift-%d", f.nextID)
	f.lifts[workoutID] = append(f.lifts[workoutID], lift)

	return lift.ID, nil
}

func (f *Fake) ListLifts(ctx context.Context, workoutID string) ([]models.Lift, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.enter(ListLifts)
	if err != nil {
		return nil, err
	}

	return append([]models.Lift(nil), f.lifts[workoutID]...), nil
}

func (f *Fake) getActive(kind models.Kind) (*models.RemoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.enter(GetActive)
	if err != nil {
		return nil, err
	}

	if rec := f.active[kind]; rec != nil {
		c := *rec
		return &c, nil
	}

	return nil, nil
}

func (f *Fake) start(kind models.Kind, label string, startedAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.enter(Start)
	if err != nil {
		return "", err
	}

	if f.active[kind] != nil {
		return "", remote.ErrSessionActive.Fmt(kind)
	}

	f.nextID++
	id := fmt.Sprintf("%s-%d", kind, f.nextID)

	f.active[kind] = &models.RemoteRecord{
		ID:        id,
		Kind:      kind,
		StartedAt: startedAt.UTC(),
		Label:     label,
	}

	return id, nil
}

func (f *Fake) end(kind models.Kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.enter(End)
	if err != nil {
		return err
	}

	rec := f.active[kind]
	if rec == nil || rec.ID != id {
		return remote.ErrRecordNotFound.Fmt(kind, id)
	}

	delete(f.active, kind)
	f.ended = append(f.ended, id)

	return nil
}
