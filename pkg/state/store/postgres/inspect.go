package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/pgstate/pkg/state/metadata"
)

// LocationInfo describes one existing state table.
type LocationInfo struct {
	TenantID string `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Schema   string `json:"schema" yaml:"schema"`
	Table    string `json:"table" yaml:"table"`
	Rows     int64  `json:"rows" yaml:"rows"`
}

// Locations lists the state tables that exist for cfg, one per tenant when
// tenancy is enabled. It only reads the catalogue and never creates or drops
// anything.
func Locations(ctx context.Context, db *sql.DB, cfg *metadata.ComponentConfig) ([]LocationInfo, error) {
	if cfg == nil {
		return nil, fmt.Errorf("component configuration is required")
	}

	var (
		query string
		args  []any
	)
	switch cfg.Tenancy {
	case metadata.TenancyNone:
		query = `SELECT table_schema, table_name FROM information_schema.tables
WHERE table_schema = $1 AND table_name = $2`
		args = []any{cfg.Schema, cfg.Table}
	case metadata.TenancySchema:
		query = `SELECT table_schema, table_name FROM information_schema.tables
WHERE right(table_schema, length($1) + 1) = '-' || $1 AND table_name = $2
ORDER BY table_schema`
		args = []any{cfg.Schema, cfg.Table}
	case metadata.TenancyTable:
		query = `SELECT table_schema, table_name FROM information_schema.tables
WHERE table_schema = $1 AND right(table_name, length($2) + 1) = '-' || $2
ORDER BY table_name`
		args = []any{cfg.Schema, cfg.Table}
	default:
		return nil, fmt.Errorf("unsupported tenancy mode %q", string(cfg.Tenancy))
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err, "list locations", "")
	}
	defer func() { _ = rows.Close() }()

	var infos []LocationInfo
	for rows.Next() {
		var info LocationInfo
		if err := rows.Scan(&info.Schema, &info.Table); err != nil {
			return nil, mapPgError(err, "list locations", "")
		}
		info.TenantID = tenantOf(cfg, info.Schema, info.Table)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err, "list locations", "")
	}

	for i := range infos {
		ident := pgx.Identifier{infos[i].Schema, infos[i].Table}.Sanitize()
		if err := db.QueryRowContext(ctx, "SELECT count(*) FROM "+ident).Scan(&infos[i].Rows); err != nil {
			return nil, mapPgError(err, "count rows", "")
		}
	}

	return infos, nil
}

func tenantOf(cfg *metadata.ComponentConfig, schema, table string) string {
	switch cfg.Tenancy {
	case metadata.TenancySchema:
		return strings.TrimSuffix(schema, "-"+cfg.Schema)
	case metadata.TenancyTable:
		return strings.TrimSuffix(table, "-"+cfg.Table)
	default:
		return ""
	}
}
