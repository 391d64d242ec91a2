// Package persist stores the active session in local storage. Metadata and
// the payload of each kind live under separate keys so that writing one never
// clobbers the other.
package persist

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/kaptinlin/jsonschema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lifetrack/lifetrack/internal/models"
	"github.com/lifetrack/lifetrack/store"
)

const (
	MetadataKey      = "lifetrack.session.meta"
	payloadKeyPrefix = "lifetrack.session.payload."
)

//go:embed schema/metadata.schema.json
var metadataSchema []byte

var (
	corruptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifetrack_persist_corrupted_total",
		Help: "Stored session values that could not be decoded and were wiped.",
	}, []string{"key"})

	quotaErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifetrack_persist_quota_errors_total",
		Help: "Session writes rejected because local storage is full.",
	})
)

// PayloadKey returns the storage key of the payload for kind.
func PayloadKey(kind models.Kind) string {
	return payloadKeyPrefix + string(kind)
}

// Keys returns every key owned by the session store.
func Keys() []string {
	keys := []string{MetadataKey}
	for _, k := range models.Kinds {
		keys = append(keys, PayloadKey(k))
	}

	return keys
}

// Owns reports whether key is one of the session keys.
func Owns(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}

	return false
}

// Snapshot holds the raw stored value of every session key. Absent keys map
// to nil.
type Snapshot map[string][]byte

// Equal reports whether both snapshots hold the same raw values.
func (s Snapshot) Equal(o Snapshot) bool {
	for _, k := range Keys() {
		if !bytes.Equal(s[k], o[k]) || (s[k] == nil) != (o[k] == nil) {
			return false
		}
	}

	return true
}

// Store is a typed view over the session keys of a store.Storage.
type Store struct {
	storage store.Storage
	schema  *jsonschema.Schema
	log     *slog.Logger
}

// New returns a Store backed by s.
func New(s store.Storage, log *slog.Logger) (*Store, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	schema, err := compiler.Compile(metadataSchema)
	if err != nil {
		return nil, errSchema.Wrap(err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Store{storage: s, schema: schema, log: log}, nil
}

// Storage returns the underlying storage.
func (p *Store) Storage() store.Storage {
	return p.storage
}

// SaveMetadata writes the session metadata.
func (p *Store) SaveMetadata(meta models.Metadata) error {
	b, err := encodeMetadata(meta)
	if err != nil {
		return err
	}

	return p.apply(store.Batch{}.Put(MetadataKey, b))
}

// LoadMetadata reads the session metadata. It returns nil when no session is
// stored, and also when the stored value is unreadable, in which case the
// value is wiped.
func (p *Store) LoadMetadata() *models.Metadata {
	b := p.read(MetadataKey)
	if b == nil {
		return nil
	}

	meta, err := p.decodeMetadata(b)
	if err != nil {
		p.discard(MetadataKey, err)
		return nil
	}

	return meta
}

func (p *Store) ClearMetadata() error {
	return p.apply(store.Batch{}.Delete(MetadataKey))
}

// SavePayload writes the payload of kind. A nil payload removes it.
func (p *Store) SavePayload(kind models.Kind, payload json.RawMessage) error {
	if !kind.Valid() {
		return errUnknownKind.Fmt(kind)
	}

	b := store.Batch{}

	err := putPayload(b, kind, payload)
	if err != nil {
		return err
	}

	return p.apply(b)
}

// LoadPayload reads the payload of kind, wiping it if it is not valid JSON.
func (p *Store) LoadPayload(kind models.Kind) json.RawMessage {
	if !kind.Valid() {
		return nil
	}

	key := PayloadKey(kind)

	b := p.read(key)
	if b == nil {
		return nil
	}

	if !json.Valid(b) {
		p.discard(key, errMalformedJSON)
		return nil
	}

	return json.RawMessage(b)
}

func (p *Store) ClearPayload(kind models.Kind) error {
	if !kind.Valid() {
		return errUnknownKind.Fmt(kind)
	}

	return p.apply(store.Batch{}.Delete(PayloadKey(kind)))
}

// ClearAll removes the metadata and every payload in a single write.
// Clearing an empty store succeeds.
func (p *Store) ClearAll() error {
	b := store.Batch{}
	for _, k := range Keys() {
		b.Delete(k)
	}

	return p.apply(b)
}

// Save writes metadata and the payload of its kind in a single write. A nil
// payload removes any payload left over from an earlier session.
func (p *Store) Save(meta models.Metadata, payload json.RawMessage) error {
	mb, err := encodeMetadata(meta)
	if err != nil {
		return err
	}

	b := store.Batch{}.Put(MetadataKey, mb)

	err = putPayload(b, meta.Kind, payload)
	if err != nil {
		return err
	}

	return p.apply(b)
}

// Snapshot reads the raw value of every session key.
func (p *Store) Snapshot() Snapshot {
	snap := make(Snapshot, len(Keys()))
	for _, k := range Keys() {
		snap[k] = p.read(k)
	}

	return snap
}

// Restore writes back the raw values of snap verbatim in a single write.
// Keys absent from snap are removed.
func (p *Store) Restore(snap Snapshot) error {
	b := store.Batch{}

	for _, k := range Keys() {
		v, ok := snap[k]
		if !ok || v == nil {
			b.Delete(k)
			continue
		}

		b.Put(k, v)
	}

	return p.apply(b)
}

func (p *Store) read(key string) []byte {
	b, err := p.storage.Get(key)
	if err != nil {
		p.log.Warn(
			"reading session from local storage",
			slog.String("key", key),
			slog.Any("error", err),
		)

		return nil
	}

	return b
}

func (p *Store) apply(b store.Batch) error {
	err := p.storage.Apply(b)
	if err == nil {
		return nil
	}

	if errors.Is(err, store.ErrQuotaExceeded) {
		quotaErrorsTotal.Inc()
		return err
	}

	return errWrite.Wrap(err)
}

// discard wipes a key whose value could not be decoded.
func (p *Store) discard(key string, cause error) {
	corruptedTotal.WithLabelValues(key).Inc()

	p.log.Warn(
		"discarding corrupted session value",
		slog.String("key", key),
		slog.Any("error", cause),
	)

	err := store.Remove(p.storage, key)
	if err != nil {
		p.log.Error(
			"wiping corrupted session value",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

func (p *Store) decodeMetadata(b []byte) (*models.Metadata, error) {
	if !json.Valid(b) {
		return nil, errMalformedJSON
	}

	result := p.schema.ValidateJSON(b)
	if !result.IsValid() {
		return nil, errSchemaMismatch
	}

	var meta models.Metadata

	err := json.Unmarshal(b, &meta)
	if err != nil {
		return nil, err
	}

	if !meta.Kind.Valid() {
		return nil, errUnknownKind.Fmt(meta.Kind)
	}

	if meta.StartedAt.IsZero() {
		return nil, errSchemaMismatch
	}

	return &meta, nil
}

func encodeMetadata(meta models.Metadata) ([]byte, error) {
	if !meta.Kind.Valid() {
		return nil, errUnknownKind.Fmt(meta.Kind)
	}

	meta.StartedAt = meta.StartedAt.UTC()

	return json.Marshal(meta)
}

func putPayload(b store.Batch, kind models.Kind, payload json.RawMessage) error {
	key := PayloadKey(kind)

	if payload == nil {
		b.Delete(key)
		return nil
	}

	if !json.Valid(payload) {
		return errMalformedJSON
	}

	b.Put(key, payload)

	return nil
}
