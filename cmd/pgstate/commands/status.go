package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/pgstate/internal/cli/output"
	"github.com/marmos91/pgstate/internal/cli/timeutil"
	"github.com/marmos91/pgstate/pkg/api"
	"github.com/marmos91/pgstate/pkg/apiclient"
	"github.com/marmos91/pgstate/pkg/config"
)

var (
	statusOutput  string
	statusURL     string
	statusAPIPort int
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show component status",
	Long: `Display the status of a running pgstate component.

The command queries the ops server's /health, /health/ready and /health/store
endpoints and reports liveness, whether the sidecar has initialized the
component, and whether PostgreSQL answers.

The port is taken from --api-port, then from the configuration file, then
defaults to 9090.

Examples:
  # Check the local component
  pgstate status

  # Check a component on another host
  pgstate status --url http://10.0.0.5:9090

  # Output as JSON
  pgstate status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", "", "Ops server base URL (default: http://localhost:<api-port>)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 0, "Ops server port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", apiclient.DefaultTimeout, "Per-request timeout")
}

// ComponentStatus is the aggregated view of the three probes.
type ComponentStatus struct {
	URL       string `json:"url" yaml:"url"`
	Running   bool   `json:"running" yaml:"running"`
	Message   string `json:"message" yaml:"message"`
	StartedAt string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime    string `json:"uptime,omitempty" yaml:"uptime,omitempty"`

	Initialized bool   `json:"initialized" yaml:"initialized"`
	Schema      string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Table       string `json:"table,omitempty" yaml:"table,omitempty"`
	Tenant      string `json:"tenant,omitempty" yaml:"tenant,omitempty"`

	DatabaseHealthy bool   `json:"database_healthy" yaml:"database_healthy"`
	DatabaseLatency string `json:"database_latency,omitempty" yaml:"database_latency,omitempty"`
	DatabaseError   string `json:"database_error,omitempty" yaml:"database_error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	client := apiclient.New(resolveStatusURL(), statusTimeout)
	status := collectStatus(cmd, client)

	if format != output.FormatTable {
		return output.Print(cmd.OutOrStdout(), format, status)
	}
	return printStatusTable(cmd.OutOrStdout(), status)
}

// resolveStatusURL applies the --url, --api-port, config file precedence.
func resolveStatusURL() string {
	if statusURL != "" {
		return statusURL
	}

	port := statusAPIPort
	if port == 0 {
		port = api.DefaultPort
		if cfg, err := config.Load(GetConfigFile()); err == nil {
			port = cfg.API.Port
		}
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

func collectStatus(cmd *cobra.Command, client *apiclient.Client) ComponentStatus {
	ctx := cmd.Context()
	status := ComponentStatus{
		URL:     client.BaseURL(),
		Message: "Component is not running",
	}

	live, err := client.Health(ctx)
	if err != nil {
		status.Message = fmt.Sprintf("Component is not reachable: %v", err)
		return status
	}
	status.Running = true
	status.StartedAt = live.Data.StartedAt
	status.Uptime = live.Data.Uptime

	ready, err := client.Ready(ctx)
	switch {
	case err != nil:
		status.Message = fmt.Sprintf("Readiness check failed: %v", err)
		return status
	case !ready.Healthy():
		status.Message = "Waiting for the Dapr sidecar to initialize the component"
		return status
	}
	status.Initialized = true
	if ready.Data != nil {
		status.Schema = ready.Data.Schema
		status.Table = ready.Data.Table
		status.Tenant = ready.Data.Tenant
	}

	store, err := client.Store(ctx)
	if err != nil {
		status.Message = fmt.Sprintf("Database check failed: %v", err)
		return status
	}
	status.DatabaseHealthy = store.Healthy()
	status.DatabaseError = store.Reason()
	if store.Data != nil {
		status.DatabaseLatency = store.Data.Latency
	}

	if status.DatabaseHealthy {
		status.Message = "Component is running and healthy"
	} else {
		status.Message = "Component is running but PostgreSQL is unhealthy"
	}
	return status
}

func printStatusTable(w io.Writer, status ComponentStatus) error {
	state := "Stopped"
	switch {
	case status.Running && status.Initialized && status.DatabaseHealthy:
		state = "Running"
	case status.Running:
		state = "Running (degraded)"
	}

	pairs := [][2]string{
		{"Status", state},
		{"URL", status.URL},
	}
	if status.StartedAt != "" {
		pairs = append(pairs, [2]string{"Started", timeutil.FormatTime(status.StartedAt)})
	}
	if status.Uptime != "" {
		pairs = append(pairs, [2]string{"Uptime", timeutil.FormatUptime(status.Uptime)})
	}
	if status.Initialized {
		pairs = append(pairs,
			[2]string{"Tenancy", status.Tenant},
			[2]string{"Schema", status.Schema},
			[2]string{"Table", status.Table},
		)
	}
	if status.DatabaseLatency != "" {
		pairs = append(pairs, [2]string{"DB latency", status.DatabaseLatency})
	}
	if status.DatabaseError != "" {
		pairs = append(pairs, [2]string{"DB error", status.DatabaseError})
	}

	if err := output.SimpleTable(w, pairs); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n", status.Message)
	return err
}
