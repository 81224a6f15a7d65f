package state

// Feature names reported by Features.
const (
	FeatureETag          = "ETAG"
	FeatureTransactional = "TRANSACTIONAL"
)

// Operation names used for logs, spans and metrics.
const (
	opGet        = "get"
	opSet        = "set"
	opDelete     = "delete"
	opBulkGet    = "bulk_get"
	opBulkSet    = "bulk_set"
	opBulkDelete = "bulk_delete"
	opTransact   = "transact"
)

// GetRequest reads one key.
type GetRequest struct {
	Key      string
	Metadata map[string]string
}

// GetResponse is the stored value and its etag.
type GetResponse struct {
	Data []byte
	Etag string
}

// SetRequest writes one key. An empty Etag makes the write unconditional.
type SetRequest struct {
	Key      string
	Value    []byte
	Etag     string
	Metadata map[string]string
}

// DeleteRequest removes one key. An empty Etag makes the delete unconditional.
type DeleteRequest struct {
	Key      string
	Etag     string
	Metadata map[string]string
}

// BulkGetItem is one found entry of a BulkGet response.
type BulkGetItem struct {
	Key  string
	Data []byte
	Etag string
}

// Operation is one step of a Transact call. Exactly one of Set and Delete
// must be non-nil.
type Operation struct {
	Set    *SetRequest
	Delete *DeleteRequest
}
