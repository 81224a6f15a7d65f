package dapr

import (
	"os"
	"path/filepath"
	"time"

	"github.com/marmos91/pgstate/internal/bytesize"
)

// SocketFolderEnv overrides the folder the component socket is created in.
const SocketFolderEnv = "DAPR_COMPONENTS_SOCKETS_FOLDER"

// DefaultSocketFolder is the folder the Dapr sidecar scans for components.
const DefaultSocketFolder = "/tmp/dapr-components-sockets"

// Config configures the pluggable component server.
type Config struct {
	// ComponentName is the socket file name without extension. The sidecar
	// uses it to match the component manifest (type state.<name>).
	ComponentName string `mapstructure:"component_name" validate:"required,excludesall=/\\" yaml:"component_name"`

	// SocketFolder holds the Unix socket. Empty means SocketFolderEnv, then
	// DefaultSocketFolder.
	SocketFolder string `mapstructure:"socket_folder" yaml:"socket_folder"`

	// MaxRecvMsgSize bounds inbound messages, e.g. "16Mi". Zero keeps the
	// gRPC default of 4Mi. Bulk requests are the usual reason to raise it.
	MaxRecvMsgSize bytesize.ByteSize `mapstructure:"max_recv_msg_size" validate:"omitempty,min=1024,max=2147483647" yaml:"max_recv_msg_size,omitempty"`

	// ShutdownTimeout bounds graceful stop before in-flight calls are cut.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"omitempty,gt=0" yaml:"shutdown_timeout"`
}

// applyDefaults fills unset fields. Safe to call more than once.
func (c *Config) applyDefaults() {
	if c.ComponentName == "" {
		c.ComponentName = "pgstate"
	}
	if c.SocketFolder == "" {
		c.SocketFolder = os.Getenv(SocketFolderEnv)
	}
	if c.SocketFolder == "" {
		c.SocketFolder = DefaultSocketFolder
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// SocketPath returns the Unix socket path the server listens on.
func (c Config) SocketPath() string {
	c.applyDefaults()
	return filepath.Join(c.SocketFolder, c.ComponentName+".sock")
}
