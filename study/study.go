// Package study tracks a running study session
package study

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/lifetrack/lifetrack/internal/hooks"
	"github.com/lifetrack/lifetrack/internal/lifecycle"
	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/remote"
	"github.com/lifetrack/lifetrack/session"
)

// Session is a typed view of a running study session.
type Session struct {
	models.Metadata
	models.StudyPayload
}

// Bucket returns the study bucket the session counts towards.
func (s *Session) Bucket() string {
	return s.Label
}

type Tracker struct {
	flow   *lifecycle.Flow
	remote remote.Service
}

type Option func(*lifecycle.Flow)

func WithLogger(l *slog.Logger) Option {
	return func(f *lifecycle.Flow) {
		f.Log = l
	}
}

func WithEndHook(h hooks.Runner) Option {
	return func(f *lifecycle.Flow) {
		f.Hook = h
	}
}

func New(state *session.State, svc remote.Service, opts ...Option) *Tracker {
	f := &lifecycle.Flow{
		State: state,
		Log:   slog.Default(),
		Kind:  models.Study,
	}

	for _, opt := range opts {
		opt(f)
	}

	return &Tracker{flow: f, remote: svc}
}

func (t *Tracker) Current() *Session {
	sess, err := t.flow.Active()
	if err != nil {
		return nil
	}

	return view(sess)
}

// Start begins a study session for bucketID.
func (t *Tracker) Start(
	ctx context.Context,
	bucketID string,
	startedAt time.Time,
) (*Session, error) {
	if strings.TrimSpace(bucketID) == "" {
		return nil, errNoBucket
	}

	payload, err := encode(models.StudyPayload{})
	if err != nil {
		return nil, err
	}

	sess, err := t.flow.Start(
		ctx,
		session.StartOptions{
			StartedAt: startedAt,
			Label:     bucketID,
			Payload:   payload,
		},
		func(ctx context.Context, opts session.StartOptions) (string, error) {
			return t.remote.StartStudySession(ctx, opts.Label, opts.StartedAt)
		},
	)
	if err != nil {
		return nil, err
	}

	return view(sess), nil
}

// Note appends a line to the session notes. Notes are kept locally and sent
// to the remote store when the session ends.
func (t *Tracker) Note(ctx context.Context, text string) (*Session, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return t.Current(), nil
	}

	return t.update(func(p *models.StudyPayload) {
		if p.Notes != "" {
			p.Notes += "\n"
		}

		p.Notes += text
	})
}

// Tick records the elapsed time of the running session.
func (t *Tracker) Tick(ctx context.Context) (*Session, error) {
	elapsed := int64(t.flow.State.Duration() / time.Second)

	return t.update(func(p *models.StudyPayload) {
		p.ElapsedSeconds = elapsed
	})
}

// End finishes the running session. Non-empty notes replace the notes
// collected with Note.
func (t *Tracker) End(ctx context.Context, notes string) (*Session, error) {
	sess, err := t.flow.End(
		ctx,
		func(ctx context.Context, sess *models.ActiveSession) error {
			final := notes
			if strings.TrimSpace(final) == "" {
				final = Decode(sess.Payload).Notes
			}

			return t.remote.EndStudySession(
				ctx,
				sess.CorrelationID,
				final,
				t.flow.State.Now(),
			)
		},
	)
	if err != nil {
		return nil, err
	}

	v := view(sess)
	v.ElapsedSeconds = int64(t.flow.State.Now().Sub(sess.StartedAt) / time.Second)

	return v, nil
}

// Sync restores a running remote study session locally when no local
// session exists. The elapsed time is derived from the remote start.
func (t *Tracker) Sync(ctx context.Context) (lifecycle.SyncAction, error) {
	rec, err := t.remote.GetActiveStudySession(ctx)
	if err != nil {
		return lifecycle.Idle, err
	}

	action := t.flow.NeedsAdoption(rec)
	if action != lifecycle.Adopted {
		return action, nil
	}

	elapsed := t.flow.State.Now().Sub(rec.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	payload, err := encode(models.StudyPayload{
		ElapsedSeconds: int64(elapsed / time.Second),
	})
	if err != nil {
		return lifecycle.Idle, err
	}

	err = t.flow.Adopt(rec, payload)
	if err != nil {
		return lifecycle.Idle, err
	}

	return lifecycle.Adopted, nil
}

func (t *Tracker) update(fn func(p *models.StudyPayload)) (*Session, error) {
	sess, err := t.flow.Active()
	if err != nil {
		return nil, err
	}

	p := Decode(sess.Payload)
	fn(&p)

	payload, err := encode(p)
	if err != nil {
		return nil, err
	}

	err = t.flow.State.UpdateSessionData(payload)
	if err != nil {
		return nil, err
	}

	return t.Current(), nil
}

// Decode parses a study payload. An empty or unreadable payload yields the
// zero value.
func Decode(raw json.RawMessage) models.StudyPayload {
	var p models.StudyPayload

	if len(raw) == 0 {
		return p
	}

	err := json.Unmarshal(raw, &p)
	if err != nil {
		return models.StudyPayload{}
	}

	return p
}

func view(sess *models.ActiveSession) *Session {
	if sess == nil {
		return nil
	}

	return &Session{
		Metadata:     sess.Metadata,
		StudyPayload: Decode(sess.Payload),
	}
}

func encode(p models.StudyPayload) (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	return json.RawMessage(b), nil
}
