// Package bytesize parses human-readable sizes such as "4Mi" or "16MB" for
// configuration fields.
package bytesize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

// ByteSize is a size in bytes. Config files may give it as a plain integer
// or as a number with a binary (Ki, Mi, Gi) or decimal (K, M, G) suffix.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
)

var sizePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

var multipliers = map[string]ByteSize{
	"": B, "b": B,
	"k": KB, "kb": KB,
	"m": MB, "mb": MB,
	"g": GB, "gb": GB,
	"ki": KiB, "kib": KiB,
	"mi": MiB, "mib": MiB,
	"gi": GiB, "gib": GiB,
}

// Parse converts s into a ByteSize.
func Parse(s string) (ByteSize, error) {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}

	mult, ok := multipliers[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit %q in %q", m[2], s)
	}

	if !strings.Contains(m[1], ".") {
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
		}
		if n > math.MaxUint64/uint64(mult) {
			return 0, fmt.Errorf("byte size %q overflows", s)
		}
		return ByteSize(n) * mult, nil
	}

	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(f * float64(mult)), nil
}

// UnmarshalText lets mapstructure and yaml decode ByteSize from strings.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText writes the shortest exact binary form, so saved configs
// round-trip without rounding.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// String returns the size using the largest binary unit that divides it.
func (b ByteSize) String() string {
	switch {
	case b == 0:
		return "0"
	case b%GiB == 0:
		return fmt.Sprintf("%dGi", b/GiB)
	case b%MiB == 0:
		return fmt.Sprintf("%dMi", b/MiB)
	case b%KiB == 0:
		return fmt.Sprintf("%dKi", b/KiB)
	default:
		return strconv.FormatUint(uint64(b), 10)
	}
}

// Int returns the size as an int, saturating at math.MaxInt.
func (b ByteSize) Int() int {
	if uint64(b) > math.MaxInt {
		return math.MaxInt
	}
	return int(b)
}

// JSONSchema describes the accepted forms for generated config schemas.
func (ByteSize) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "integer", Minimum: "0"},
			{Type: "string", Pattern: sizePattern.String()},
		},
		Description: `Size in bytes, or a number with a unit suffix such as "4Mi" or "16MB"`,
	}
}
