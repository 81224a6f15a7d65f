package metadata

import (
	"fmt"
	"strings"

	staterrors "github.com/marmos91/pgstate/pkg/state/errors"
)

// maxIdentifierLen is PostgreSQL's NAMEDATALEN-1. Longer names are silently
// truncated by the server, which would make two tenants collide.
const maxIdentifierLen = 63

// Location is the concrete (schema, table) pair a request operates on.
type Location struct {
	Schema string
	Table  string
}

// String returns schema.table for logging. It is not a quoted SQL identifier.
func (l Location) String() string {
	return l.Schema + "." + l.Table
}

// Default returns the location used when tenancy is disabled.
func (c *ComponentConfig) Default() Location {
	return Location{Schema: c.Schema, Table: c.Table}
}

// Resolve computes the effective location for a single request.
//
// With tenancy disabled the operation metadata is ignored. Otherwise the
// tenantId entry is mandatory and is prefixed to either the schema or the
// table name.
func (c *ComponentConfig) Resolve(operationMetadata map[string]string) (Location, error) {
	if c == nil {
		return Location{}, staterrors.NewNotInitializedError()
	}

	if c.Tenancy == TenancyNone {
		return c.Default(), nil
	}

	tenantID := operationMetadata[TenantIDKey]
	if tenantID == "" {
		return Location{}, staterrors.NewValidationError(
			fmt.Sprintf("'metadata.%s' value is not specified", TenantIDKey))
	}

	var loc Location
	switch c.Tenancy {
	case TenancySchema:
		loc = Location{Schema: tenantID + "-" + c.Schema, Table: c.Table}
	case TenancyTable:
		loc = Location{Schema: c.Schema, Table: tenantID + "-" + c.Table}
	default:
		return Location{}, staterrors.NewInternalError(
			fmt.Sprintf("unsupported tenancy mode %q", string(c.Tenancy)))
	}

	if err := checkIdentifier(loc.Schema); err != nil {
		return Location{}, staterrors.NewValidationError(
			fmt.Sprintf("'metadata.%s' produces an invalid schema name: %v", TenantIDKey, err))
	}
	if err := checkIdentifier(loc.Table); err != nil {
		return Location{}, staterrors.NewValidationError(
			fmt.Sprintf("'metadata.%s' produces an invalid table name: %v", TenantIDKey, err))
	}

	return loc, nil
}

// checkIdentifier rejects names that cannot be stored verbatim as a quoted
// PostgreSQL identifier.
func checkIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("name %q exceeds %d bytes", name, maxIdentifierLen)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("name contains a NUL byte")
	}
	return nil
}
