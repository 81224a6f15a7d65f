// Package metadata resolves component configuration and per-request tenant
// metadata into the concrete (schema, table) location a request operates on.
//
// Init properties are parsed exactly once into an immutable ComponentConfig.
// Every later request passes that value explicitly to Resolve; nothing in this
// package holds process-wide state.
package metadata

import (
	"strings"

	"github.com/mitchellh/mapstructure"

	staterrors "github.com/marmos91/pgstate/pkg/state/errors"
)

// Init property names.
const (
	PropertyConnectionString = "connectionString"
	PropertySchema           = "schema"
	PropertyTable            = "table"
	PropertyTenant           = "tenant"
	PropertyMaxAttempts      = "maxAttempts"

	// TenantIDKey is the per-request metadata key carrying the tenant id.
	TenantIDKey = "tenantId"
)

// Defaults applied when the corresponding property is absent or empty.
const (
	DefaultSchema      = "public"
	DefaultTable       = "state"
	DefaultMaxAttempts = 3

	maxAttemptsLimit = 10
)

// TenancyMode selects how records are partitioned per tenant.
type TenancyMode string

const (
	// TenancyNone stores every record in the configured schema and table.
	TenancyNone TenancyMode = ""

	// TenancySchema prefixes the schema name with the tenant id.
	TenancySchema TenancyMode = "schema"

	// TenancyTable prefixes the table name with the tenant id.
	TenancyTable TenancyMode = "table"
)

// String returns the mode as written in component metadata ("none" when unset).
func (m TenancyMode) String() string {
	if m == TenancyNone {
		return "none"
	}
	return string(m)
}

// ComponentConfig is the immutable result of Init.
type ComponentConfig struct {
	// ConnectionString is the PostgreSQL connection string (URL or DSN form).
	ConnectionString string

	// Schema is the default schema name.
	Schema string

	// Table is the default table name.
	Table string

	// Tenancy selects the tenant partitioning mode.
	Tenancy TenancyMode

	// MaxAttempts bounds the missing-object recovery loop.
	MaxAttempts int
}

// componentProperties mirrors the Init property map for mapstructure decoding.
// Tenant is a pointer so an explicitly empty value can be told apart from an
// absent one.
type componentProperties struct {
	ConnectionString string  `mapstructure:"connectionString"`
	Schema           string  `mapstructure:"schema"`
	Table            string  `mapstructure:"table"`
	Tenant           *string `mapstructure:"tenant"`
	MaxAttempts      int     `mapstructure:"maxAttempts"`
}

// Parse validates Init properties and produces a ComponentConfig.
//
// It never touches the database: a missing connection string or an invalid
// tenancy mode is reported before any connection is attempted.
func Parse(properties map[string]string) (*ComponentConfig, error) {
	var props componentProperties
	// Property names are exact; "ConnectionString" is not "connectionString".
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		MatchName:        func(key, field string) bool { return key == field },
		Result:           &props,
	})
	if err != nil {
		return nil, staterrors.NewInternalError("failed to create property decoder: " + err.Error())
	}
	if err := decoder.Decode(properties); err != nil {
		return nil, staterrors.NewConfigurationError("invalid component metadata: %v", err)
	}

	if strings.TrimSpace(props.ConnectionString) == "" {
		return nil, staterrors.NewConfigurationError(
			"mandatory component metadata property '%s' is not set", PropertyConnectionString)
	}

	tenancy, err := parseTenancy(props.Tenant)
	if err != nil {
		return nil, err
	}

	cfg := &ComponentConfig{
		ConnectionString: props.ConnectionString,
		Schema:           props.Schema,
		Table:            props.Table,
		Tenancy:          tenancy,
		MaxAttempts:      props.MaxAttempts,
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseTenancy(value *string) (TenancyMode, error) {
	if value == nil {
		return TenancyNone, nil
	}

	switch TenancyMode(*value) {
	case TenancySchema:
		return TenancySchema, nil
	case TenancyTable:
		return TenancyTable, nil
	default:
		return TenancyNone, staterrors.NewConfigurationError(
			"unsupported '%s' property value of '%s', use '%s' or '%s' instead",
			PropertyTenant, *value, TenancySchema, TenancyTable)
	}
}

func (c *ComponentConfig) applyDefaults() {
	if c.Schema == "" {
		c.Schema = DefaultSchema
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
}

func (c *ComponentConfig) validate() error {
	if err := checkIdentifier(c.Schema); err != nil {
		return staterrors.NewConfigurationError("invalid '%s' property: %v", PropertySchema, err)
	}
	if err := checkIdentifier(c.Table); err != nil {
		return staterrors.NewConfigurationError("invalid '%s' property: %v", PropertyTable, err)
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > maxAttemptsLimit {
		return staterrors.NewConfigurationError(
			"invalid '%s' property: must be between 1 and %d, got %d",
			PropertyMaxAttempts, maxAttemptsLimit, c.MaxAttempts)
	}
	return nil
}

// Redacted returns a copy of the configuration safe for logging.
func (c *ComponentConfig) Redacted() map[string]any {
	return map[string]any{
		"schema":       c.Schema,
		"table":        c.Table,
		"tenant":       c.Tenancy.String(),
		"max_attempts": c.MaxAttempts,
	}
}
