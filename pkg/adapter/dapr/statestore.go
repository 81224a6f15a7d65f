package dapr

import (
	"context"
	"maps"

	proto "github.com/dapr/dapr/pkg/proto/components/v1"

	"github.com/marmos91/pgstate/pkg/state"
)

// StateStore serves the pluggable state store contract on top of a
// state.Service. Every handler is a thin translation; semantics live in
// the coordinator.
type StateStore struct {
	proto.UnimplementedStateStoreServer
	proto.UnimplementedTransactionalStateStoreServer

	svc *state.Service
}

// NewStateStore wraps svc.
func NewStateStore(svc *state.Service) *StateStore {
	return &StateStore{svc: svc}
}

// ============================================================================
// Lifecycle
// ============================================================================

func (s *StateStore) Init(ctx context.Context, req *proto.InitRequest) (*proto.InitResponse, error) {
	if err := s.svc.Init(ctx, req.GetMetadata().GetProperties()); err != nil {
		return nil, toStatus(err)
	}
	return &proto.InitResponse{}, nil
}

func (s *StateStore) Features(context.Context, *proto.FeaturesRequest) (*proto.FeaturesResponse, error) {
	return &proto.FeaturesResponse{Features: s.svc.Features()}, nil
}

func (s *StateStore) Ping(ctx context.Context, _ *proto.PingRequest) (*proto.PingResponse, error) {
	if err := s.svc.Ping(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &proto.PingResponse{}, nil
}

// ============================================================================
// Single-key operations
// ============================================================================

func (s *StateStore) Get(ctx context.Context, req *proto.GetRequest) (*proto.GetResponse, error) {
	resp, err := s.svc.Get(ctx, fromGetRequest(req))
	if err != nil {
		return nil, toStatus(err)
	}
	// An empty response is how the contract signals "not found".
	if resp == nil {
		return &proto.GetResponse{}, nil
	}
	return &proto.GetResponse{
		Data: resp.Data,
		Etag: toEtag(resp.Etag),
	}, nil
}

func (s *StateStore) Set(ctx context.Context, req *proto.SetRequest) (*proto.SetResponse, error) {
	if _, err := s.svc.Set(ctx, fromSetRequest(req, nil)); err != nil {
		return nil, toStatus(err)
	}
	return &proto.SetResponse{}, nil
}

func (s *StateStore) Delete(ctx context.Context, req *proto.DeleteRequest) (*proto.DeleteResponse, error) {
	if err := s.svc.Delete(ctx, fromDeleteRequest(req, nil)); err != nil {
		return nil, toStatus(err)
	}
	return &proto.DeleteResponse{}, nil
}

// ============================================================================
// Batched operations
// ============================================================================

func (s *StateStore) BulkGet(ctx context.Context, req *proto.BulkGetRequest) (*proto.BulkGetResponse, error) {
	reqs := make([]*state.GetRequest, 0, len(req.GetItems()))
	for _, item := range req.GetItems() {
		reqs = append(reqs, fromGetRequest(item))
	}

	items, err := s.svc.BulkGet(ctx, reqs)
	if err != nil {
		return nil, toStatus(err)
	}

	out := make([]*proto.BulkStateItem, 0, len(items))
	for _, item := range items {
		out = append(out, &proto.BulkStateItem{
			Key:  item.Key,
			Data: item.Data,
			Etag: toEtag(item.Etag),
		})
	}
	return &proto.BulkGetResponse{Items: out}, nil
}

func (s *StateStore) BulkSet(ctx context.Context, req *proto.BulkSetRequest) (*proto.BulkSetResponse, error) {
	reqs := make([]*state.SetRequest, 0, len(req.GetItems()))
	for _, item := range req.GetItems() {
		reqs = append(reqs, fromSetRequest(item, nil))
	}

	if err := s.svc.BulkSet(ctx, reqs); err != nil {
		return nil, toStatus(err)
	}
	return &proto.BulkSetResponse{}, nil
}

func (s *StateStore) BulkDelete(ctx context.Context, req *proto.BulkDeleteRequest) (*proto.BulkDeleteResponse, error) {
	reqs := make([]*state.DeleteRequest, 0, len(req.GetItems()))
	for _, item := range req.GetItems() {
		reqs = append(reqs, fromDeleteRequest(item, nil))
	}

	if err := s.svc.BulkDelete(ctx, reqs); err != nil {
		return nil, toStatus(err)
	}
	return &proto.BulkDeleteResponse{}, nil
}

// Transact applies the operations atomically. Request-level metadata is the
// default for every operation; keys set on an operation win.
func (s *StateStore) Transact(ctx context.Context, req *proto.TransactionalStateRequest) (*proto.TransactionalStateResponse, error) {
	ops := make([]state.Operation, 0, len(req.GetOperations()))
	for _, op := range req.GetOperations() {
		switch {
		case op.GetSet() != nil:
			ops = append(ops, state.Operation{Set: fromSetRequest(op.GetSet(), req.GetMetadata())})
		case op.GetDelete() != nil:
			ops = append(ops, state.Operation{Delete: fromDeleteRequest(op.GetDelete(), req.GetMetadata())})
		default:
			// Passed through so the coordinator reports "operation not set".
			ops = append(ops, state.Operation{})
		}
	}

	if err := s.svc.Transact(ctx, ops); err != nil {
		return nil, toStatus(err)
	}
	return &proto.TransactionalStateResponse{}, nil
}

// ============================================================================
// Conversions
// ============================================================================

func fromGetRequest(req *proto.GetRequest) *state.GetRequest {
	return &state.GetRequest{
		Key:      req.GetKey(),
		Metadata: req.GetMetadata(),
	}
}

func fromSetRequest(req *proto.SetRequest, defaults map[string]string) *state.SetRequest {
	return &state.SetRequest{
		Key:      req.GetKey(),
		Value:    req.GetValue(),
		Etag:     req.GetEtag().GetValue(),
		Metadata: mergeMetadata(defaults, req.GetMetadata()),
	}
}

func fromDeleteRequest(req *proto.DeleteRequest, defaults map[string]string) *state.DeleteRequest {
	return &state.DeleteRequest{
		Key:      req.GetKey(),
		Etag:     req.GetEtag().GetValue(),
		Metadata: mergeMetadata(defaults, req.GetMetadata()),
	}
}

func toEtag(value string) *proto.Etag {
	if value == "" {
		return nil
	}
	return &proto.Etag{Value: value}
}

// mergeMetadata returns op overlaid on defaults without mutating either.
func mergeMetadata(defaults, op map[string]string) map[string]string {
	if len(defaults) == 0 {
		return op
	}
	merged := make(map[string]string, len(defaults)+len(op))
	maps.Copy(merged, defaults)
	maps.Copy(merged, op)
	return merged
}
