package telemetry

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/grafana/pyroscope-go"

	"github.com/marmos91/pgstate/internal/logger"
)

// ProfilingConfig configures Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Component is added as a tag so several components built from one
	// binary can be told apart.
	Component string

	// Endpoint is the Pyroscope server URL, e.g. http://localhost:4040.
	Endpoint string

	// ProfileTypes lists the profiles to collect; see profileTypes.
	ProfileTypes []string
}

// profileTypes maps config names to Pyroscope profile types.
var profileTypes = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

// ProfileTypeNames returns the accepted ProfileTypes values, sorted.
func ProfileTypeNames() []string {
	names := make([]string, 0, len(profileTypes))
	for name := range profileTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var profiling atomic.Bool

// InitProfiling starts the profiler. The returned function stops it and
// flushes pending profiles.
func InitProfiling(cfg ProfilingConfig) (func() error, error) {
	profiling.Store(false)
	if !cfg.Enabled {
		return func() error { return nil }, nil
	}

	types := make([]pyroscope.ProfileType, 0, len(cfg.ProfileTypes))
	for _, name := range cfg.ProfileTypes {
		pt, ok := profileTypes[name]
		if !ok {
			return nil, fmt.Errorf("invalid profile type %q (valid: %s)", name, strings.Join(ProfileTypeNames(), ", "))
		}
		types = append(types, pt)
	}
	enableRuntimeProfiles(cfg.ProfileTypes)

	tags := map[string]string{"version": cfg.ServiceVersion}
	if cfg.Component != "" {
		tags["component"] = cfg.Component
	}

	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.Endpoint,
		Logger:          profilingLogger{},
		Tags:            tags,
		ProfileTypes:    types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	profiling.Store(true)

	return func() error {
		profiling.Store(false)
		return p.Stop()
	}, nil
}

// enableRuntimeProfiles turns on the mutex and block profiles, which the
// runtime leaves off until a rate is set.
func enableRuntimeProfiles(names []string) {
	for _, name := range names {
		switch {
		case strings.HasPrefix(name, "mutex_"):
			runtime.SetMutexProfileFraction(5)
		case strings.HasPrefix(name, "block_"):
			runtime.SetBlockProfileRate(5)
		}
	}
}

// IsProfilingEnabled reports whether the profiler is running.
func IsProfilingEnabled() bool {
	return profiling.Load()
}

// profilingLogger routes profiler messages to the process logger.
type profilingLogger struct{}

func (profilingLogger) Infof(format string, args ...any) {
	logger.Debug("pyroscope: " + fmt.Sprintf(format, args...))
}

func (profilingLogger) Debugf(format string, args ...any) {
	logger.Debug("pyroscope: " + fmt.Sprintf(format, args...))
}

func (profilingLogger) Errorf(format string, args ...any) {
	logger.Warn("pyroscope: " + fmt.Sprintf(format, args...))
}
