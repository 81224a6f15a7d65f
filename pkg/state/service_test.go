package state

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/pgstate/internal/logger"
	staterrors "github.com/marmos91/pgstate/pkg/state/errors"
	"github.com/marmos91/pgstate/pkg/state/metadata"
)

// ============================================================================
// Helpers
// ============================================================================

// recordingMetrics counts calls per operation.
type recordingMetrics struct {
	mu         sync.Mutex
	outcomes   map[string][]staterrors.ErrorCode
	batches    map[string]int
	recoveries map[string]int
	mismatches map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		outcomes:   map[string][]staterrors.ErrorCode{},
		batches:    map[string]int{},
		recoveries: map[string]int{},
		mismatches: map[string]int{},
	}
}

func (m *recordingMetrics) ObserveOperation(op string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[op] = append(m.outcomes[op], staterrors.CodeOf(err))
}

func (m *recordingMetrics) ObserveBatchSize(op string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[op] = n
}

func (m *recordingMetrics) RecordRecovery(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveries[op]++
}

func (m *recordingMetrics) RecordEtagMismatch(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mismatches[op]++
}

// newMockService returns an initialized Service whose database is a sqlmock.
func newMockService(t *testing.T, props map[string]string, opts ...Option) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	opener := func(string) (*sql.DB, error) { return db, nil }
	svc := NewService(append([]Option{WithOpener(opener)}, opts...)...)
	t.Cleanup(func() { _ = svc.Close() })

	if props == nil {
		props = map[string]string{}
	}
	props[metadata.PropertyConnectionString] = "postgres://mock"
	require.NoError(t, svc.Init(context.Background(), props))
	return svc, mock
}

const (
	schemaIdent = `"public"`
	tableIdent  = `"public"."state"`
)

func expectSavepoint(mock sqlmock.Sqlmock) {
	mock.ExpectExec("^SAVEPOINT pgstate_stmt$").WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectRelease(mock sqlmock.Sqlmock) {
	mock.ExpectExec("^RELEASE SAVEPOINT pgstate_stmt$").WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectRollbackToSavepoint(mock sqlmock.Sqlmock) {
	mock.ExpectExec("^ROLLBACK TO SAVEPOINT pgstate_stmt$").WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectEnsure(mock sqlmock.Sqlmock, schema, table string) {
	expectSavepoint(mock)
	mock.ExpectExec(regexp.QuoteMeta("CREATE SCHEMA IF NOT EXISTS " + schema)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectRelease(mock)
	expectSavepoint(mock)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + table)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectRelease(mock)
}

func expectUpsert(mock sqlmock.Sqlmock, table, key, value string) {
	expectEnsure(mock, schemaIdent, table)
	expectSavepoint(mock)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO "+table+" (key, value, etag)")).
		WithArgs(key, value, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRelease(mock)
}

func undefinedTable() error {
	return &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}
}

var recordColumns = []string{"value", "etag", "insertdate", "updatedate"}

// ============================================================================
// Lifecycle
// ============================================================================

func TestService_NotInitialized(t *testing.T) {
	ctx := context.Background()
	svc := NewService()

	_, err := svc.Get(ctx, &GetRequest{Key: "k"})
	assert.True(t, IsNotInitializedError(err))

	_, err = svc.Set(ctx, &SetRequest{Key: "k", Value: []byte("v")})
	assert.True(t, IsNotInitializedError(err))

	assert.True(t, IsNotInitializedError(svc.Delete(ctx, &DeleteRequest{Key: "k"})))
	assert.True(t, IsNotInitializedError(svc.BulkSet(ctx, []*SetRequest{{Key: "k"}})))
	assert.True(t, IsNotInitializedError(svc.BulkDelete(ctx, []*DeleteRequest{{Key: "k"}})))
	assert.True(t, IsNotInitializedError(svc.Transact(ctx, nil)))
	assert.True(t, IsNotInitializedError(svc.Ready(ctx)))

	_, err = svc.BulkGet(ctx, []*GetRequest{{Key: "k"}})
	assert.True(t, IsNotInitializedError(err))

	assert.NoError(t, svc.Ping(ctx))
	assert.Nil(t, svc.Config())
	assert.NoError(t, svc.Close())
}

func TestService_Init(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingConnectionStringNeverOpens", func(t *testing.T) {
		opened := false
		svc := NewService(WithOpener(func(string) (*sql.DB, error) {
			opened = true
			return nil, errors.New("unexpected")
		}))

		err := svc.Init(ctx, map[string]string{metadata.PropertyTable: "t"})
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
		assert.False(t, opened)
		assert.Nil(t, svc.Config())
	})

	t.Run("OpenFailureIsConfigurationError", func(t *testing.T) {
		svc := NewService(WithOpener(func(string) (*sql.DB, error) {
			return nil, errors.New("bad dsn")
		}))

		err := svc.Init(ctx, map[string]string{metadata.PropertyConnectionString: "x"})
		require.Error(t, err)
		assert.Equal(t, ErrConfiguration, staterrors.CodeOf(err))
	})

	t.Run("StoresConfig", func(t *testing.T) {
		svc, mock := newMockService(t, map[string]string{
			metadata.PropertyTenant: "schema",
			metadata.PropertyTable:  "kv",
		})

		cfg := svc.Config()
		require.NotNil(t, cfg)
		assert.Equal(t, metadata.TenancySchema, cfg.Tenancy)
		assert.Equal(t, "kv", cfg.Table)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ReinitWaitsForInFlightRequests", func(t *testing.T) {
		oldDB, oldMock, err := sqlmock.New()
		require.NoError(t, err)
		newDB, newMock, err := sqlmock.New()
		require.NoError(t, err)

		handles := []*sql.DB{oldDB, newDB}
		svc := NewService(WithOpener(func(string) (*sql.DB, error) {
			db := handles[0]
			handles = handles[1:]
			return db, nil
		}))
		props := func(table string) map[string]string {
			return map[string]string{metadata.PropertyConnectionString: "postgres://mock", metadata.PropertyTable: table}
		}
		require.NoError(t, svc.Init(ctx, props("first")))

		// A request that loaded the first binding but has not used it yet.
		inFlight, release, err := svc.acquire()
		require.NoError(t, err)

		oldMock.ExpectClose()
		reinit := make(chan error, 1)
		go func() { reinit <- svc.Init(ctx, props("second")) }()

		require.Eventually(t, func() bool { return svc.Config().Table == "second" },
			time.Second, 5*time.Millisecond)
		select {
		case <-reinit:
			t.Fatal("Init closed the handle while a request still held it")
		case <-time.After(50 * time.Millisecond):
		}

		conn, err := inFlight.db.Conn(ctx)
		require.NoError(t, err, "the old handle must stay open for the in-flight request")
		require.NoError(t, conn.Close())
		release()

		require.NoError(t, <-reinit)
		require.NoError(t, oldMock.ExpectationsWereMet())

		// New requests see the replacement binding.
		current, releaseCurrent, err := svc.acquire()
		require.NoError(t, err)
		assert.Same(t, newDB, current.db)
		releaseCurrent()

		newMock.ExpectClose()
		require.NoError(t, svc.Close())
		require.NoError(t, newMock.ExpectationsWereMet())
	})

	t.Run("Features", func(t *testing.T) {
		assert.ElementsMatch(t, []string{FeatureETag, FeatureTransactional}, NewService().Features())
	})
}

// ============================================================================
// Get
// ============================================================================

func TestService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		svc, mock := newMockService(t, nil)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT value, etag, insertdate, updatedate FROM " + tableIdent)).
			WithArgs("k1").
			WillReturnRows(sqlmock.NewRows(recordColumns).AddRow("v1", "e1", time.Now(), nil))

		resp, err := svc.Get(ctx, &GetRequest{Key: "k1"})
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, []byte("v1"), resp.Data)
		assert.Equal(t, "e1", resp.Etag)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NeverCreatedLocationIsNotFound", func(t *testing.T) {
		svc, mock := newMockService(t, map[string]string{metadata.PropertyTenant: "table"})
		mock.ExpectQuery(regexp.QuoteMeta(`FROM "public"."acme-state"`)).
			WillReturnError(undefinedTable())

		resp, err := svc.Get(ctx, &GetRequest{Key: "k1", Metadata: map[string]string{metadata.TenantIDKey: "acme"}})
		require.NoError(t, err)
		assert.Nil(t, resp)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MissingTenantIsValidationError", func(t *testing.T) {
		svc, mock := newMockService(t, map[string]string{metadata.PropertyTenant: "schema"})

		_, err := svc.Get(ctx, &GetRequest{Key: "k1"})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// ============================================================================
// Set / Delete
// ============================================================================

func TestService_Set(t *testing.T) {
	ctx := context.Background()

	t.Run("UnconditionalCommits", func(t *testing.T) {
		m := newRecordingMetrics()
		svc, mock := newMockService(t, nil, WithMetrics(m))

		mock.ExpectBegin()
		expectUpsert(mock, tableIdent, "k1", "v1")
		mock.ExpectCommit()

		etag, err := svc.Set(ctx, &SetRequest{Key: "k1", Value: []byte("v1")})
		require.NoError(t, err)
		assert.NotEmpty(t, etag)
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, []staterrors.ErrorCode{0}, m.outcomes[opSet])
	})

	t.Run("ConditionalRecoversMissingTable", func(t *testing.T) {
		m := newRecordingMetrics()
		svc, mock := newMockService(t, nil, WithMetrics(m))

		update := regexp.QuoteMeta("UPDATE " + tableIdent + " SET value = $1")
		mock.ExpectBegin()
		expectSavepoint(mock)
		mock.ExpectExec(update).WillReturnError(undefinedTable())
		expectRollbackToSavepoint(mock)
		expectEnsure(mock, schemaIdent, tableIdent)
		expectSavepoint(mock)
		mock.ExpectExec(update).
			WithArgs("v2", sqlmock.AnyArg(), "k1", "e1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectRelease(mock)
		mock.ExpectCommit()

		etag, err := svc.Set(ctx, &SetRequest{Key: "k1", Value: []byte("v2"), Etag: "e1"})
		require.NoError(t, err)
		assert.NotEmpty(t, etag)
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, 1, m.recoveries[opSet])
	})

	t.Run("RecoveryIsBounded", func(t *testing.T) {
		m := newRecordingMetrics()
		svc, mock := newMockService(t, map[string]string{metadata.PropertyMaxAttempts: "2"}, WithMetrics(m))

		update := regexp.QuoteMeta("UPDATE " + tableIdent + " SET value = $1")
		mock.ExpectBegin()
		expectSavepoint(mock)
		mock.ExpectExec(update).WillReturnError(undefinedTable())
		expectRollbackToSavepoint(mock)
		expectEnsure(mock, schemaIdent, tableIdent)
		expectSavepoint(mock)
		mock.ExpectExec(update).WillReturnError(undefinedTable())
		expectRollbackToSavepoint(mock)
		mock.ExpectRollback()

		_, err := svc.Set(ctx, &SetRequest{Key: "k1", Value: []byte("v2"), Etag: "e1"})
		require.Error(t, err)
		assert.Equal(t, ErrRelationMissing, staterrors.CodeOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, 1, m.recoveries[opSet])
	})

	t.Run("DeniedEnsureKeepsFirstError", func(t *testing.T) {
		m := newRecordingMetrics()
		svc, mock := newMockService(t, nil, WithMetrics(m))

		update := regexp.QuoteMeta("UPDATE " + tableIdent + " SET value = $1")
		missing := func(msg string) error { return &pgconn.PgError{Code: "42P01", Message: msg} }
		denied := &pgconn.PgError{Code: "42501", Message: "permission denied for database"}
		expectDeniedEnsure := func() {
			expectSavepoint(mock)
			mock.ExpectExec(regexp.QuoteMeta("CREATE SCHEMA IF NOT EXISTS " + schemaIdent)).WillReturnError(denied)
			expectRollbackToSavepoint(mock)
			expectSavepoint(mock)
			mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + tableIdent)).WillReturnError(denied)
			expectRollbackToSavepoint(mock)
		}

		mock.ExpectBegin()
		expectSavepoint(mock)
		mock.ExpectExec(update).WillReturnError(missing("first-missing"))
		expectRollbackToSavepoint(mock)
		for range metadata.DefaultMaxAttempts - 1 {
			expectDeniedEnsure()
			expectSavepoint(mock)
			mock.ExpectExec(update).WillReturnError(missing("later-missing"))
			expectRollbackToSavepoint(mock)
		}
		mock.ExpectRollback()

		_, err := svc.Set(ctx, &SetRequest{Key: "k1", Value: []byte("v2"), Etag: "e1"})
		require.Error(t, err)
		assert.Equal(t, ErrRelationMissing, staterrors.CodeOf(err))
		assert.Contains(t, err.Error(), "first-missing")
		assert.NotContains(t, err.Error(), "later-missing")
		assert.NotContains(t, err.Error(), "permission denied")
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, metadata.DefaultMaxAttempts-1, m.recoveries[opSet])
	})

	t.Run("StaleEtagRollsBack", func(t *testing.T) {
		m := newRecordingMetrics()
		svc, mock := newMockService(t, nil, WithMetrics(m))

		mock.ExpectBegin()
		expectSavepoint(mock)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE " + tableIdent)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		expectRelease(mock)
		expectSavepoint(mock)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs("k1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		expectRelease(mock)
		mock.ExpectRollback()

		_, err := svc.Set(ctx, &SetRequest{Key: "k1", Value: []byte("v2"), Etag: "stale"})
		require.Error(t, err)
		assert.True(t, IsEtagMismatchError(err))
		assert.Contains(t, err.Error(), "stored etag differs")
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, 1, m.mismatches[opSet])
	})

	t.Run("InvalidValueTouchesNothing", func(t *testing.T) {
		svc, mock := newMockService(t, nil)
		mock.ExpectBegin()
		mock.ExpectRollback()

		_, err := svc.Set(ctx, &SetRequest{Key: "k1", Value: []byte{'a', 0, 'b'}})
		require.Error(t, err)
		assert.True(t, IsInvalidArgumentError(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestService_RecoveryLogsLocationOnce(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "DEBUG", "text", false)
	t.Cleanup(func() { logger.InitWithWriter(os.Stderr, "INFO", "text", false) })

	svc, mock := newMockService(t, nil)
	update := regexp.QuoteMeta("UPDATE " + tableIdent + " SET value = $1")
	mock.ExpectBegin()
	expectSavepoint(mock)
	mock.ExpectExec(update).WillReturnError(undefinedTable())
	expectRollbackToSavepoint(mock)
	expectEnsure(mock, schemaIdent, tableIdent)
	expectSavepoint(mock)
	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 1))
	expectRelease(mock)
	mock.ExpectCommit()

	_, err := svc.Set(context.Background(), &SetRequest{Key: "k1", Value: []byte("v2"), Etag: "e1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "creating missing schema and table") {
			line = l
		}
	}
	require.NotEmpty(t, line, "recovery must be logged")
	assert.Equal(t, 1, strings.Count(line, " schema=public"), line)
	assert.Equal(t, 1, strings.Count(line, " table=state"), line)
	assert.Contains(t, line, "attempt=1")
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("ConditionalDeleteCommits", func(t *testing.T) {
		svc, mock := newMockService(t, nil)
		mock.ExpectBegin()
		expectSavepoint(mock)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM " + tableIdent + " WHERE key = $1 AND etag = $2")).
			WithArgs("k1", "e1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectRelease(mock)
		mock.ExpectCommit()

		require.NoError(t, svc.Delete(ctx, &DeleteRequest{Key: "k1", Etag: "e1"}))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnconditionalOnMissingTableSucceeds", func(t *testing.T) {
		svc, mock := newMockService(t, nil)
		mock.ExpectBegin()
		expectSavepoint(mock)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM " + tableIdent)).WillReturnError(undefinedTable())
		expectRollbackToSavepoint(mock)
		mock.ExpectCommit()

		require.NoError(t, svc.Delete(ctx, &DeleteRequest{Key: "k1"}))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// ============================================================================
// Batches
// ============================================================================

func TestService_BulkGet(t *testing.T) {
	ctx := context.Background()
	svc, mock := newMockService(t, nil)

	query := regexp.QuoteMeta("SELECT value, etag, insertdate, updatedate FROM " + tableIdent)
	mock.ExpectQuery(query).WithArgs("k1").
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow("v1", "e1", time.Now(), nil))
	mock.ExpectQuery(query).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(recordColumns))
	mock.ExpectQuery(query).WithArgs("k2").
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow("v2", "e2", time.Now(), nil))

	items, err := svc.BulkGet(ctx, []*GetRequest{{Key: "k1"}, {Key: "missing"}, {Key: "k2"}})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "k1", items[0].Key)
	assert.Equal(t, "k2", items[1].Key)
	assert.Equal(t, "e2", items[1].Etag)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_BulkSet(t *testing.T) {
	ctx := context.Background()

	t.Run("FailureRollsBackEverything", func(t *testing.T) {
		svc, mock := newMockService(t, nil)
		mock.ExpectBegin()
		expectUpsert(mock, tableIdent, "k1", "v1")
		mock.ExpectRollback()

		err := svc.BulkSet(ctx, []*SetRequest{
			{Key: "k1", Value: []byte("v1")},
			{Key: "k2", Value: []byte{0xff, 0xfe}},
		})
		require.Error(t, err)
		assert.True(t, IsInvalidArgumentError(err))
		assert.Contains(t, err.Error(), "item 1")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyTouchesNothing", func(t *testing.T) {
		m := newRecordingMetrics()
		svc, mock := newMockService(t, nil, WithMetrics(m))

		require.NoError(t, svc.BulkSet(ctx, nil))
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, 0, m.batches[opBulkSet])
	})
}

func TestService_BulkDelete(t *testing.T) {
	ctx := context.Background()
	svc, mock := newMockService(t, nil)

	del := regexp.QuoteMeta("DELETE FROM " + tableIdent + " WHERE key = $1")
	mock.ExpectBegin()
	expectSavepoint(mock)
	mock.ExpectExec(del).WithArgs("k1").WillReturnResult(sqlmock.NewResult(0, 1))
	expectRelease(mock)
	expectSavepoint(mock)
	mock.ExpectExec(del).WithArgs("k2").WillReturnResult(sqlmock.NewResult(0, 0))
	expectRelease(mock)
	mock.ExpectCommit()

	require.NoError(t, svc.BulkDelete(ctx, []*DeleteRequest{{Key: "k1"}, {Key: "k2"}}))
	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================================================
// Transact
// ============================================================================

func TestService_Transact(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptySucceedsWithoutDatabase", func(t *testing.T) {
		svc, mock := newMockService(t, nil)
		require.NoError(t, svc.Transact(ctx, []Operation{}))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("OperationNotSet", func(t *testing.T) {
		svc, mock := newMockService(t, nil)

		err := svc.Transact(ctx, []Operation{{Set: &SetRequest{Key: "k1"}}, {}})
		require.Error(t, err)
		assert.True(t, IsInvalidArgumentError(err))
		assert.Contains(t, err.Error(), "operation not set")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AppliesInOrder", func(t *testing.T) {
		m := newRecordingMetrics()
		svc, mock := newMockService(t, nil, WithMetrics(m))

		mock.ExpectBegin()
		expectUpsert(mock, tableIdent, "k1", "v1")
		expectSavepoint(mock)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM " + tableIdent)).
			WithArgs("k2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectRelease(mock)
		mock.ExpectCommit()

		err := svc.Transact(ctx, []Operation{
			{Set: &SetRequest{Key: "k1", Value: []byte("v1")}},
			{Delete: &DeleteRequest{Key: "k2"}},
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, 2, m.batches[opTransact])
	})

	t.Run("MissingTenantRollsBack", func(t *testing.T) {
		svc, mock := newMockService(t, map[string]string{metadata.PropertyTenant: "schema"})

		mock.ExpectBegin()
		expectEnsure(mock, `"acme-public"`, `"acme-public"."state"`)
		expectSavepoint(mock)
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "acme-public"."state"`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		expectRelease(mock)
		mock.ExpectRollback()

		err := svc.Transact(ctx, []Operation{
			{Set: &SetRequest{Key: "k1", Value: []byte("v1"), Metadata: map[string]string{metadata.TenantIDKey: "acme"}}},
			{Set: &SetRequest{Key: "k2", Value: []byte("v2")}},
		})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CommitFailureIsIOError", func(t *testing.T) {
		svc, mock := newMockService(t, nil)

		mock.ExpectBegin()
		expectUpsert(mock, tableIdent, "k1", "v1")
		mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

		err := svc.Transact(ctx, []Operation{{Set: &SetRequest{Key: "k1", Value: []byte("v1")}}})
		require.Error(t, err)
		assert.Equal(t, ErrIOError, staterrors.CodeOf(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
