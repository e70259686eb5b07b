package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bjarke-xyz/appstore-api/internal/domain"
	"github.com/bjarke-xyz/appstore-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dir := t.TempDir()
	docs := repository.NewFileDocuments(map[string]string{
		domain.Apps.Name:  filepath.Join(dir, "apps.json"),
		domain.Users.Name: filepath.Join(dir, "users.json"),
	})
	return New(testLogger(), docs, opts...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(ev domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

// failingDocuments wraps a repository and fails every Save.
type failingDocuments struct {
	domain.DocumentRepository
}

func (f failingDocuments) Save(context.Context, string, []domain.Record) error {
	return fmt.Errorf("disk full: %w", domain.ErrIOFailure)
}

func TestCreateThenGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	created, err := s.Apps.Create(ctx, domain.Record{"app_id": "calc", "name": "Calculator"})
	require.NoError(t, err)
	assert.Equal(t, domain.Record{"app_id": "calc", "name": "Calculator"}, created)

	got, err := s.Apps.Get(ctx, "calc")
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestCreateAssignsID(t *testing.T) {
	s := setupStore(t, WithIDGenerator(func() string { return "generated" }))
	ctx := context.Background()

	for _, record := range []domain.Record{
		{"name": "no id"},
		{"user_id": "", "name": "empty id"},
		{"user_id": nil, "name": "null id"},
	} {
		created, err := s.Users.Create(ctx, record)
		require.NoError(t, err)
		assert.Equal(t, "generated", created["user_id"])
		require.NoError(t, s.Users.Delete(ctx, "generated"))
	}
}

func TestCreateDefaultIDIsUUID(t *testing.T) {
	s := setupStore(t)

	created, err := s.Users.Create(context.Background(), domain.Record{"name": "Ada"})
	require.NoError(t, err)
	id, ok := created.ID("user_id")
	require.True(t, ok)
	assert.Len(t, id, 36)
}

func TestCreateRejectsNonStringID(t *testing.T) {
	s := setupStore(t)

	_, err := s.Apps.Create(context.Background(), domain.Record{"app_id": 42})
	assert.ErrorIs(t, err, domain.ErrMalformed)
	_, err = s.Apps.Create(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrMalformed)
}

func TestCreateDuplicateConflicts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Apps.Create(ctx, domain.Record{"app_id": "calc", "name": "Calculator"})
	require.NoError(t, err)

	_, err = s.Apps.Create(ctx, domain.Record{"app_id": "calc", "name": "Impostor"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	records, err := s.Apps.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Record{{"app_id": "calc", "name": "Calculator"}}, records)
}

func TestCreateDoesNotAliasInput(t *testing.T) {
	s := setupStore(t)
	input := domain.Record{"name": "Calculator"}

	_, err := s.Apps.Create(context.Background(), input)
	require.NoError(t, err)
	assert.NotContains(t, input, "app_id")
}

func TestListLengthTracksCreateAndDelete(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	count := func() int {
		n, err := s.Apps.Count(ctx)
		require.NoError(t, err)
		return n
	}

	assert.Equal(t, 0, count())
	_, err := s.Apps.Create(ctx, domain.Record{"app_id": "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, count())
	_, err = s.Apps.Create(ctx, domain.Record{"app_id": "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, count())
	require.NoError(t, s.Apps.Delete(ctx, "a"))
	assert.Equal(t, 1, count())

	records, err := s.Apps.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Record{{"app_id": "b"}}, records)
}

func TestListKeepsInsertionOrder(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	for _, id := range []string{"z", "a", "m"} {
		_, err := s.Apps.Create(ctx, domain.Record{"app_id": id})
		require.NoError(t, err)
	}

	records, err := s.Apps.List(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(records))
	for _, r := range records {
		id, _ := r.ID("app_id")
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"z", "a", "m"}, ids)
}

func TestGetMissing(t *testing.T) {
	s := setupStore(t)

	_, err := s.Apps.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteThenGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, err := s.Apps.Create(ctx, domain.Record{"app_id": "calc"})
	require.NoError(t, err)

	require.NoError(t, s.Apps.Delete(ctx, "calc"))
	_, err = s.Apps.Get(ctx, "calc")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = s.Apps.Delete(ctx, "calc")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdatePreservesOtherFields(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, err := s.Apps.Create(ctx, domain.Record{"app_id": "calc", "name": "Calculator", "version": "1.0"})
	require.NoError(t, err)

	updated, err := s.Apps.Update(ctx, "calc", domain.Record{"name": "Calc Pro", "beta": true})
	require.NoError(t, err)
	want := domain.Record{"app_id": "calc", "name": "Calc Pro", "version": "1.0", "beta": true}
	assert.Equal(t, want, updated)

	got, err := s.Apps.Get(ctx, "calc")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUpdateIDField(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, err := s.Apps.Create(ctx, domain.Record{"app_id": "calc"})
	require.NoError(t, err)

	_, err = s.Apps.Update(ctx, "calc", domain.Record{"app_id": "calc", "name": "Same id"})
	assert.NoError(t, err)

	_, err = s.Apps.Update(ctx, "calc", domain.Record{"app_id": "other"})
	assert.ErrorIs(t, err, domain.ErrMalformed)
}

func TestUpdateMissing(t *testing.T) {
	s := setupStore(t)

	_, err := s.Apps.Update(context.Background(), "missing", domain.Record{"name": "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Apps.Update(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, domain.ErrMalformed)
}

func TestTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	s := setupStore(t, WithTimestamps(func() time.Time { return now }))
	ctx := context.Background()

	created, err := s.Apps.Create(ctx, domain.Record{"app_id": "calc"})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T11:00:00Z", created["created_at"])
	assert.NotContains(t, created, "updated_at")

	updated, err := s.Apps.Update(ctx, "calc", domain.Record{"name": "Calc"})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T11:00:00Z", updated["created_at"])
	assert.Equal(t, "2026-03-01T11:00:00Z", updated["updated_at"])
}

func TestCollectionsAreIndependent(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, err := s.Users.Create(ctx, domain.Record{"user_id": "ada"})
	require.NoError(t, err)

	apps, err := s.Apps.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, apps)

	users, ok := s.Collection("users")
	require.True(t, ok)
	assert.Equal(t, domain.Users, users.Spec())
	_, ok = s.Collection("widgets")
	assert.False(t, ok)
}

func TestPublishesEvents(t *testing.T) {
	pub := &recordingPublisher{}
	s := setupStore(t, WithPublisher(pub))
	ctx := context.Background()

	_, err := s.Apps.Create(ctx, domain.Record{"app_id": "calc"})
	require.NoError(t, err)
	_, err = s.Apps.Update(ctx, "calc", domain.Record{"name": "Calc"})
	require.NoError(t, err)
	require.NoError(t, s.Apps.Delete(ctx, "calc"))
	_, err = s.Apps.Create(ctx, domain.Record{"app_id": "calc"})
	require.NoError(t, err)
	_, err = s.Apps.Create(ctx, domain.Record{"app_id": "calc"})
	require.ErrorIs(t, err, domain.ErrConflict)

	require.Len(t, pub.events, 4)
	ops := []domain.Op{pub.events[0].Op, pub.events[1].Op, pub.events[2].Op, pub.events[3].Op}
	assert.Equal(t, []domain.Op{domain.OpCreate, domain.OpUpdate, domain.OpDelete, domain.OpCreate}, ops)
	assert.Equal(t, "apps", pub.events[1].Collection)
	assert.Equal(t, "calc", pub.events[1].ID)
	assert.Equal(t, "Calc", pub.events[1].Record["name"])
	assert.Nil(t, pub.events[2].Record)
}

func TestFailedSaveLeavesDocumentUnchanged(t *testing.T) {
	dir := t.TempDir()
	files := repository.NewFileDocuments(map[string]string{"apps": filepath.Join(dir, "apps.json")})
	require.NoError(t, files.Save(context.Background(), "apps", []domain.Record{{"app_id": "calc"}}))
	pub := &recordingPublisher{}
	c := NewCollection(testLogger(), domain.Apps, failingDocuments{files}, WithPublisher(pub))

	_, err := c.Create(context.Background(), domain.Record{"app_id": "notes"})
	assert.ErrorIs(t, err, domain.ErrIOFailure)
	assert.Empty(t, pub.events)

	records, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Record{{"app_id": "calc"}}, records)
}

func TestConcurrentCreatesAreNotLost(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	const writers = 50
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Apps.Create(ctx, domain.Record{"app_id": fmt.Sprintf("app-%d", i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := s.Apps.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers, n)
}

func TestConcurrentUpdatesMerge(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, err := s.Apps.Create(ctx, domain.Record{"app_id": "calc"})
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Apps.Update(ctx, "calc", domain.Record{fmt.Sprintf("field%d", i): "set"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Apps.Get(ctx, "calc")
	require.NoError(t, err)
	assert.Len(t, got, writers+1)
}

type modifierDocuments struct {
	domain.DocumentRepository
	calls int
}

func (m *modifierDocuments) Modify(ctx context.Context, name string, fn func([]domain.Record) ([]domain.Record, error)) error {
	m.calls++
	records, err := m.Load(ctx, name)
	if err != nil {
		return err
	}
	records, err = fn(records)
	if err != nil {
		return err
	}
	return m.Save(ctx, name, records)
}

func TestUsesDocumentModifier(t *testing.T) {
	files := repository.NewFileDocuments(map[string]string{"users": filepath.Join(t.TempDir(), "users.json")})
	docs := &modifierDocuments{DocumentRepository: files}
	c := NewCollection(testLogger(), domain.Users, docs)
	ctx := context.Background()

	_, err := c.Create(ctx, domain.Record{"user_id": "ada"})
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "ada"))
	assert.Equal(t, 2, docs.calls)
}

func TestMalformedDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "apps.json")
	docs := repository.NewFileDocuments(map[string]string{"apps": path})
	c := NewCollection(testLogger(), domain.Apps, docs)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := c.List(context.Background())
	assert.ErrorIs(t, err, domain.ErrMalformed)
	_, err = c.Create(context.Background(), domain.Record{"app_id": "calc"})
	assert.ErrorIs(t, err, domain.ErrMalformed)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}
