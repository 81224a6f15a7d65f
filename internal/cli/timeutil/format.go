// Package timeutil formats probe timestamps and durations for `pgstate status`.
package timeutil

import (
	"strconv"
	"strings"
	"time"
)

// LocalTimeFormat renders timestamps in the caller's zone.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

var uptimeUnits = []struct {
	suffix string
	size   time.Duration
}{
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// FormatUptime turns a Go duration string ("72h30m15s") into "3d 0h 30m 15s".
// Leading zero units are dropped, inner ones kept. Input that does not parse
// is returned as is.
func FormatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}
	d = d.Truncate(time.Second)

	var parts []string
	for i, u := range uptimeUnits {
		n := d / u.size
		d -= n * u.size
		last := i == len(uptimeUnits)-1
		if n == 0 && len(parts) == 0 && !last {
			continue
		}
		parts = append(parts, strconv.FormatInt(int64(n), 10)+u.suffix)
	}
	return strings.Join(parts, " ")
}

// FormatTime converts an RFC 3339 timestamp to LocalTimeFormat, or returns it
// unchanged when it does not parse.
func FormatTime(timestamp string) string {
	t, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return timestamp
	}
	return t.Local().Format(LocalTimeFormat)
}
