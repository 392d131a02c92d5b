package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jaswdr/faker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/shipper-client/internal/model"
)

func fakeSession() model.Session {
	f := faker.New()
	return model.Session{
		Token:     f.UUID().V4(),
		UserID:    int64(f.IntBetween(1, 10000)),
		UserName:  f.Person().Name(),
		UserEmail: f.Internet().Email(),
		UserPhone: f.Numerify("09########"),
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json"))

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	token, err := store.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	sess := fakeSession()
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	token, err = store.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.Token, token)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	require.NoError(t, store.Save(ctx, fakeSession()))
	second := fakeSession()
	require.NoError(t, store.Save(ctx, second))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	require.NoError(t, store.Clear(ctx), "clearing an empty store is not an error")

	require.NoError(t, store.Save(ctx, fakeSession()))
	require.NoError(t, store.Clear(ctx))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStored_RequiresToken(t *testing.T) {
	sess := fakeSession()

	got, err := stored(sess)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	sess.Token = ""
	_, err = stored(sess)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, want: false},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "other", err: errors.New("syntax error"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	s := &PostgresStore{logger: zap.NewNop(), retryDelays: []time.Duration{time.Millisecond, time.Millisecond}}

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		err := s.withRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after last delay", func(t *testing.T) {
		calls := 0
		err := s.withRetry(context.Background(), func() error {
			calls++
			return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error returns at once", func(t *testing.T) {
		calls := 0
		err := s.withRetry(context.Background(), func() error {
			calls++
			return errors.New("syntax error")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("SHIPPER_TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("SHIPPER_TEST_DATABASE_URI is not set")
	}

	ctx := context.Background()
	store, err := NewPostgresStore(dsn, "test-"+faker.New().UUID().V4(), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	sess := fakeSession()
	require.NoError(t, store.Save(ctx, sess))
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	tokenless := sess
	tokenless.Token = ""
	require.NoError(t, store.Save(ctx, tokenless))
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Clear(ctx))
	token, err := store.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}
