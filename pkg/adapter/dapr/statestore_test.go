package dapr

import (
	"context"
	"database/sql"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	proto "github.com/dapr/dapr/pkg/proto/components/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/marmos91/pgstate/pkg/state"
)

// harness is an in-process component server with a sqlmock database.
type harness struct {
	mock   sqlmock.Sqlmock
	store  proto.StateStoreClient
	tx     proto.TransactionalStateStoreClient
	health grpc_health_v1.HealthClient
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	svc := state.NewService(state.WithOpener(func(string) (*sql.DB, error) { return db, nil }))
	t.Cleanup(func() { _ = svc.Close() })

	srv := NewServer(Config{ComponentName: "test"}, svc, nil)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{
		mock:   mock,
		store:  proto.NewStateStoreClient(conn),
		tx:     proto.NewTransactionalStateStoreClient(conn),
		health: grpc_health_v1.NewHealthClient(conn),
	}
}

func (h *harness) init(t *testing.T, props map[string]string) {
	t.Helper()
	if props == nil {
		props = map[string]string{}
	}
	props["connectionString"] = "postgres://mock"
	_, err := h.store.Init(context.Background(), &proto.InitRequest{
		Metadata: &proto.MetadataRequest{Properties: props},
	})
	require.NoError(t, err)
}

func TestStateStore_BeforeInit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	features, err := h.store.Features(ctx, &proto.FeaturesRequest{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{state.FeatureETag, state.FeatureTransactional}, features.GetFeatures())

	_, err = h.store.Ping(ctx, &proto.PingRequest{})
	require.NoError(t, err)

	_, err = h.store.Get(ctx, &proto.GetRequest{Key: "k1"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = h.store.Init(ctx, &proto.InitRequest{Metadata: &proto.MetadataRequest{}})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "connectionString")
}

func TestStateStore_Get(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, nil)

	query := regexp.QuoteMeta(`SELECT value, etag, insertdate, updatedate FROM "public"."state"`)
	h.mock.ExpectQuery(query).WithArgs("k1").
		WillReturnRows(sqlmock.NewRows([]string{"value", "etag", "insertdate", "updatedate"}).
			AddRow("v1", "e1", time.Now(), nil))
	h.mock.ExpectQuery(query).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"value", "etag", "insertdate", "updatedate"}))

	resp, err := h.store.Get(ctx, &proto.GetRequest{Key: "k1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), resp.GetData())
	assert.Equal(t, "e1", resp.GetEtag().GetValue())

	resp, err = h.store.Get(ctx, &proto.GetRequest{Key: "missing"})
	require.NoError(t, err)
	assert.Empty(t, resp.GetData())
	assert.Nil(t, resp.GetEtag())
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestStateStore_SetEtagMismatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, nil)

	h.mock.ExpectBegin()
	h.mock.ExpectExec("^SAVEPOINT pgstate_stmt$").WillReturnResult(sqlmock.NewResult(0, 0))
	h.mock.ExpectExec(regexp.QuoteMeta(`UPDATE "public"."state"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	h.mock.ExpectExec("^RELEASE SAVEPOINT pgstate_stmt$").WillReturnResult(sqlmock.NewResult(0, 0))
	h.mock.ExpectExec("^SAVEPOINT pgstate_stmt$").WillReturnResult(sqlmock.NewResult(0, 0))
	h.mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	h.mock.ExpectExec("^RELEASE SAVEPOINT pgstate_stmt$").WillReturnResult(sqlmock.NewResult(0, 0))
	h.mock.ExpectRollback()

	_, err := h.store.Set(ctx, &proto.SetRequest{
		Key:   "k1",
		Value: []byte("v1"),
		Etag:  &proto.Etag{Value: "stale"},
	})
	require.Error(t, err)

	st := status.Convert(err)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	require.Len(t, st.Details(), 1)
	br, ok := st.Details()[0].(*errdetails.BadRequest)
	require.True(t, ok)
	assert.Equal(t, "etag", br.GetFieldViolations()[0].GetField())
	assert.Contains(t, br.GetFieldViolations()[0].GetDescription(), "key does not exist")
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestStateStore_Transact(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyOperationIsInvalidArgument", func(t *testing.T) {
		h := newHarness(t)
		h.init(t, nil)

		_, err := h.tx.Transact(ctx, &proto.TransactionalStateRequest{
			Operations: []*proto.TransactionalStateOperation{{}},
		})
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		require.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("RequestMetadataReachesOperations", func(t *testing.T) {
		h := newHarness(t)
		h.init(t, map[string]string{"tenant": "table"})

		h.mock.ExpectBegin()
		h.mock.ExpectExec("^SAVEPOINT pgstate_stmt$").WillReturnResult(sqlmock.NewResult(0, 0))
		h.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "public"."acme-state" WHERE key = $1`)).
			WithArgs("k1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		h.mock.ExpectExec("^RELEASE SAVEPOINT pgstate_stmt$").WillReturnResult(sqlmock.NewResult(0, 0))
		h.mock.ExpectCommit()

		_, err := h.tx.Transact(ctx, &proto.TransactionalStateRequest{
			Operations: []*proto.TransactionalStateOperation{{
				Request: &proto.TransactionalStateOperation_Delete{Delete: &proto.DeleteRequest{Key: "k1"}},
			}},
			Metadata: map[string]string{"tenantId": "acme"},
		})
		require.NoError(t, err)
		require.NoError(t, h.mock.ExpectationsWereMet())
	})

	t.Run("EmptyListIsNoop", func(t *testing.T) {
		h := newHarness(t)
		h.init(t, nil)

		_, err := h.tx.Transact(ctx, &proto.TransactionalStateRequest{})
		require.NoError(t, err)
		require.NoError(t, h.mock.ExpectationsWereMet())
	})
}

func TestStateStore_Health(t *testing.T) {
	h := newHarness(t)

	for _, service := range []string{"", stateStoreService, transactionalService} {
		resp, err := h.health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
	}
}

func TestMergeMetadata(t *testing.T) {
	defaults := map[string]string{"tenantId": "a", "x": "1"}
	op := map[string]string{"tenantId": "b"}

	merged := mergeMetadata(defaults, op)
	assert.Equal(t, map[string]string{"tenantId": "b", "x": "1"}, merged)
	assert.Equal(t, "a", defaults["tenantId"], "defaults must not be mutated")
	assert.Len(t, op, 1, "op metadata must not be mutated")

	assert.Equal(t, op, mergeMetadata(nil, op))
}
