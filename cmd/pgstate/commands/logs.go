package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marmos91/pgstate/pkg/config"
)

// textTimeLayout is the timestamp prefix of the text log format.
const textTimeLayout = "2006-01-02 15:04:05.000"

var (
	logsFollow bool
	logsLines  int
	logsSince  string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the component log file",
	Long: `Print the last lines of the log file named by logging.output and
optionally follow new entries.

The command only works when the component logs to a file; stdout and stderr
go to the container runtime instead.

Examples:
  pgstate logs
  pgstate logs -n 20 -f
  pgstate logs --since 2026-01-15T10:00:00Z`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Keep printing lines as they are written")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of trailing lines to print")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Skip entries older than this RFC 3339 time")
}

func runLogs(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	path := cfg.Logging.Output
	switch strings.ToLower(path) {
	case "stdout", "stderr":
		return fmt.Errorf("logging.output is %s, not a file; set it to a path to use this command", path)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("log file %s: %w", path, err)
	}

	var since time.Time
	if logsSince != "" {
		if since, err = time.Parse(time.RFC3339, logsSince); err != nil {
			return fmt.Errorf("invalid --since (want RFC 3339): %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if !logsFollow {
		return tailLog(out, path, logsLines, since)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Following %s (Ctrl+C to stop)\n", path)
	return followLog(ctx, out, path, logsLines, since)
}

// tailLog prints the last n lines of path that are not older than since.
// Lines without a recognizable timestamp are always kept.
func tailLog(w io.Writer, path string, n int, since time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	ring := make([]string, 0, max(n, 0))
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !since.IsZero() {
			if ts, ok := lineTime(line); ok && ts.Before(since) {
				continue
			}
		}
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	for _, line := range ring {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// followLog prints the tail of path and then every complete line appended
// to it until ctx is done.
func followLog(ctx context.Context, w io.Writer, path string, n int, since time.Time) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	// Position the reader before printing the tail so nothing written in
	// between is lost.
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	if err := tailLog(w, path, n, since); err != nil {
		return err
	}

	r := bufio.NewReader(f)
	var partial string
	drain := func() error {
		for {
			chunk, err := r.ReadString('\n')
			partial += chunk
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if _, err := io.WriteString(w, partial); err != nil {
				return err
			}
			partial = ""
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) {
				if err := drain(); err != nil {
					return err
				}
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return fmt.Errorf("log file %s was moved or removed", path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

// lineTime extracts the timestamp of a line in either log format.
func lineTime(line string) (time.Time, bool) {
	if strings.HasPrefix(line, "{") {
		var entry struct {
			Time time.Time `json:"time"`
		}
		if json.Unmarshal([]byte(line), &entry) == nil && !entry.Time.IsZero() {
			return entry.Time, true
		}
		return time.Time{}, false
	}
	if len(line) < len(textTimeLayout) {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(textTimeLayout, line[:len(textTimeLayout)], time.Local)
	return ts, err == nil
}
