// Package store implements the record store: list/get/create/update/delete
// over named collections whose documents are loaded and rewritten in full on
// every operation.
//
// Each Collection serializes its mutations with a write lock held across the
// whole load-modify-persist cycle, so concurrent writers within the process
// cannot lose each other's updates. Repositories implementing
// domain.DocumentModifier additionally make the cycle atomic across processes.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bjarke-xyz/appstore-api/internal/domain"
	"github.com/bjarke-xyz/appstore-api/internal/metrics"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	createdAtField = "created_at"
	updatedAtField = "updated_at"
)

type options struct {
	now       func() time.Time
	newID     func() string
	publisher domain.EventPublisher
}

// Option configures a Collection.
type Option func(*options)

// WithTimestamps stamps created_at on Create and updated_at on Update using now.
func WithTimestamps(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the UUID generator used when a record arrives without an id.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// WithPublisher sends an event for every persisted mutation.
func WithPublisher(p domain.EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

// Store owns the apps and users collections.
type Store struct {
	Apps  *Collection
	Users *Collection
}

// New builds both collections on the same backend.
func New(logger *slog.Logger, docs domain.DocumentRepository, opts ...Option) *Store {
	return &Store{
		Apps:  NewCollection(logger, domain.Apps, docs, opts...),
		Users: NewCollection(logger, domain.Users, docs, opts...),
	}
}

// Collection returns the collection called name.
func (s *Store) Collection(name string) (*Collection, bool) {
	for _, c := range []*Collection{s.Apps, s.Users} {
		if c.spec.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Collection is one named record collection backed by a single document.
// Reads share a lock; mutations hold it across the load, change and save.
type Collection struct {
	logger *slog.Logger
	spec   domain.Collection
	docs   domain.DocumentRepository
	opts   options

	mu sync.RWMutex
}

// NewCollection builds a collection; without options ids are UUIDs and
// records carry no timestamps.
func NewCollection(logger *slog.Logger, spec domain.Collection, docs domain.DocumentRepository, opts ...Option) *Collection {
	o := options{newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	return &Collection{
		logger: logger.With("collection", spec.Name),
		spec:   spec,
		docs:   docs,
		opts:   o,
	}
}

// Spec describes the collection name and id field.
func (c *Collection) Spec() domain.Collection {
	return c.spec
}

// List returns every record in document order.
func (c *Collection) List(ctx context.Context) (records []domain.Record, err error) {
	defer c.observe("list", time.Now(), &err)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs.Load(ctx, c.spec.Name)
}

// Count returns the number of records.
func (c *Collection) Count(ctx context.Context) (int, error) {
	records, err := c.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Get returns the first record whose id field equals id.
func (c *Collection) Get(ctx context.Context, id string) (record domain.Record, err error) {
	defer c.observe("get", time.Now(), &err)
	c.mu.RLock()
	defer c.mu.RUnlock()
	records, err := c.docs.Load(ctx, c.spec.Name)
	if err != nil {
		return nil, err
	}
	i := c.indexOf(records, id)
	if i < 0 {
		return nil, c.notFound(id)
	}
	return records[i], nil
}

// Create appends record. A missing or empty id is replaced by a generated one;
// an id already present in the collection fails with domain.ErrConflict.
func (c *Collection) Create(ctx context.Context, record domain.Record) (created domain.Record, err error) {
	defer c.observe("create", time.Now(), &err)
	if record == nil {
		return nil, fmt.Errorf("%s must be a JSON object: %w", c.spec.Noun, domain.ErrMalformed)
	}
	created = record.Clone()
	id, err := c.assignID(created)
	if err != nil {
		return nil, err
	}
	if c.opts.now != nil {
		created[createdAtField] = c.timestamp()
	}

	err = c.modify(ctx, func(records []domain.Record) ([]domain.Record, error) {
		if c.indexOf(records, id) >= 0 {
			return nil, fmt.Errorf("%s %q: %w", c.spec.Noun, id, domain.ErrConflict)
		}
		return append(records, created), nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("record created", "id", id)
	c.publish(domain.OpCreate, id, created)
	return created.Clone(), nil
}

// Update shallow-merges partial into the record with the given id. The id
// field may be repeated in partial but not changed.
func (c *Collection) Update(ctx context.Context, id string, partial domain.Record) (updated domain.Record, err error) {
	defer c.observe("update", time.Now(), &err)
	if partial == nil {
		return nil, fmt.Errorf("%s update must be a JSON object: %w", c.spec.Noun, domain.ErrMalformed)
	}
	if v, ok := partial[c.spec.IDField]; ok && v != id {
		return nil, fmt.Errorf("%s cannot be changed: %w", c.spec.IDField, domain.ErrMalformed)
	}
	patch := partial.Clone()
	if c.opts.now != nil {
		patch[updatedAtField] = c.timestamp()
	}

	err = c.modify(ctx, func(records []domain.Record) ([]domain.Record, error) {
		i := c.indexOf(records, id)
		if i < 0 {
			return nil, c.notFound(id)
		}
		updated = records[i].Merge(patch)
		records[i] = updated
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("record updated", "id", id, "fields", len(partial))
	c.publish(domain.OpUpdate, id, updated)
	return updated.Clone(), nil
}

// Delete removes every record carrying id.
func (c *Collection) Delete(ctx context.Context, id string) (err error) {
	defer c.observe("delete", time.Now(), &err)
	err = c.modify(ctx, func(records []domain.Record) ([]domain.Record, error) {
		kept := lo.Reject(records, func(r domain.Record, _ int) bool {
			return c.matches(r, id)
		})
		if len(kept) == len(records) {
			return nil, c.notFound(id)
		}
		return kept, nil
	})
	if err != nil {
		return err
	}
	c.logger.Debug("record deleted", "id", id)
	c.publish(domain.OpDelete, id, nil)
	return nil
}

func (c *Collection) modify(ctx context.Context, fn func([]domain.Record) ([]domain.Record, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.docs.(domain.DocumentModifier); ok {
		return m.Modify(ctx, c.spec.Name, fn)
	}
	records, err := c.docs.Load(ctx, c.spec.Name)
	if err != nil {
		return err
	}
	records, err = fn(records)
	if err != nil {
		return err
	}
	return c.docs.Save(ctx, c.spec.Name, records)
}

func (c *Collection) assignID(record domain.Record) (string, error) {
	v, ok := record[c.spec.IDField]
	if !ok || v == nil || v == "" {
		id := c.opts.newID()
		record[c.spec.IDField] = id
		return id, nil
	}
	id, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string: %w", c.spec.IDField, domain.ErrMalformed)
	}
	return id, nil
}

func (c *Collection) matches(r domain.Record, id string) bool {
	rid, ok := r.ID(c.spec.IDField)
	return ok && rid == id
}

func (c *Collection) indexOf(records []domain.Record, id string) int {
	_, i, ok := lo.FindIndexOf(records, func(r domain.Record) bool {
		return c.matches(r, id)
	})
	if !ok {
		return -1
	}
	return i
}

func (c *Collection) notFound(id string) error {
	return fmt.Errorf("%s %q: %w", c.spec.Noun, id, domain.ErrNotFound)
}

func (c *Collection) timestamp() string {
	return c.opts.now().UTC().Format(time.RFC3339Nano)
}

func (c *Collection) publish(op domain.Op, id string, record domain.Record) {
	if c.opts.publisher == nil {
		return
	}
	at := time.Now()
	if c.opts.now != nil {
		at = c.opts.now()
	}
	c.opts.publisher.Publish(domain.Event{
		Collection: c.spec.Name,
		Op:         op,
		ID:         id,
		Record:     record.Clone(),
		At:         at.UTC(),
	})
}

func (c *Collection) observe(op string, started time.Time, err *error) {
	metrics.ObserveStoreOperation(c.spec.Name, op, started, *err)
}
