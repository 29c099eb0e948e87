package handlers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"DF-WIZARD/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPurger struct {
	calls  int
	maxAge time.Duration
	err    error
}

func (p *stubPurger) PurgeOlderThan(_ context.Context, maxAge time.Duration) (int64, error) {
	p.calls++
	p.maxAge = maxAge
	return 4, p.err
}

type stubSweeper struct {
	calls  int
	maxAge time.Duration
	err    error
}

func (s *stubSweeper) Sweep(_ context.Context, maxAge time.Duration) (int, error) {
	s.calls++
	s.maxAge = maxAge
	return 2, s.err
}

func TestCleanupRemovesStaleStagedFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	stager, err := storage.NewLocalStager(dir)
	require.NoError(t, err)
	staleKey, _, err := stager.Put(ctx, "old.docx", "", strings.NewReader("x"))
	require.NoError(t, err)
	freshKey, _, err := stager.Put(ctx, "new.docx", "", strings.NewReader("y"))
	require.NoError(t, err)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, staleKey), old, old))

	purger := &stubPurger{}
	cs := NewCleanupService(stager, 24*time.Hour, purger, 7*24*time.Hour)
	cs.RunOnce(ctx)

	assert.NoFileExists(t, filepath.Join(dir, staleKey))
	assert.FileExists(t, filepath.Join(dir, freshKey))
	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, 7*24*time.Hour, purger.maxAge)
}

func TestCleanupSweepsAnyStager(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("bucket unavailable")}
	purger := &stubPurger{}
	cs := NewCleanupService(sweeper, 24*time.Hour, purger, time.Hour)
	cs.RunOnce(context.Background())

	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 24*time.Hour, sweeper.maxAge)
	assert.Equal(t, 1, purger.calls, "a failed sweep does not skip the session purge")
}

func TestCleanupToleratesPurgeErrorAndNilParts(t *testing.T) {
	purger := &stubPurger{err: errors.New("db down")}
	cs := NewCleanupService(&stubSweeper{}, time.Hour, purger, time.Hour)
	cs.RunOnce(context.Background())
	assert.Equal(t, 1, purger.calls)

	cs = NewCleanupService(nil, time.Hour, nil, time.Hour)
	cs.RunOnce(context.Background())
}

func TestCleanupStopIsIdempotent(t *testing.T) {
	cs := NewCleanupService(&stubSweeper{}, time.Hour, nil, 0)
	cs.Start()
	cs.Stop()
	cs.Stop()
}
