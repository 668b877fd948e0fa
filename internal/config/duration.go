package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Duration is a time.Duration that also accepts a leading day component,
// e.g. "30d" or "1d12h".
type Duration struct {
	time.Duration
}

// EnvDecode implements envconfig.Decoder
func (d *Duration) EnvDecode(_ context.Context, v string) error {
	parsed, err := parseDuration(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}

	var total time.Duration
	if idx := strings.IndexByte(v, 'd'); idx > 0 {
		days, err := strconv.Atoi(v[:idx])
		if err != nil {
			return 0, fmt.Errorf("invalid days value %q: %w", v[:idx], err)
		}
		if days < 0 {
			return 0, fmt.Errorf("negative durations are not supported")
		}
		total = time.Duration(days) * day
		v = v[idx+1:]
		if v == "" {
			return total, nil
		}
	}

	rest, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	if rest < 0 {
		return 0, fmt.Errorf("negative durations are not supported")
	}

	return total + rest, nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	return d.EnvDecode(context.Background(), string(text))
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d Duration) String() string {
	return d.Duration.String()
}
