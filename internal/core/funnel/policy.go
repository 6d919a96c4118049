package funnel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Timeouts holds the idle threshold per non-terminal stage. A cart whose last
// event is at least this old is considered abandoned at that stage.
// Thresholds must satisfy Cold >= Warm >= Hot: the further down the funnel a
// user got, the sooner silence means abandonment.
type Timeouts struct {
	Cold time.Duration
	Warm time.Duration
	Hot  time.Duration
}

// DefaultTimeouts returns the stock thresholds: 24h cold, 3h warm, 1h hot.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Cold: 24 * time.Hour,
		Warm: 3 * time.Hour,
		Hot:  time.Hour,
	}
}

// For returns the threshold for a stage. The second return is false for
// completed (terminal, never swept) and unknown statuses.
func (t Timeouts) For(s Status) (time.Duration, bool) {
	switch s {
	case StatusCold:
		return t.Cold, true
	case StatusWarm:
		return t.Warm, true
	case StatusHot:
		return t.Hot, true
	}
	return 0, false
}

// Validate checks that all thresholds are positive and ordered.
func (t Timeouts) Validate() error {
	if t.Cold <= 0 || t.Warm <= 0 || t.Hot <= 0 {
		return fmt.Errorf("recovery timeouts must be positive (cold=%s warm=%s hot=%s)", t.Cold, t.Warm, t.Hot)
	}
	if t.Cold < t.Warm || t.Warm < t.Hot {
		return fmt.Errorf("recovery timeouts must be ordered cold >= warm >= hot (cold=%s warm=%s hot=%s)", t.Cold, t.Warm, t.Hot)
	}
	return nil
}

// rawPolicy is the on-disk YAML shape of a single recovery policy file.
type rawPolicy struct {
	Status      string `yaml:"status"`
	IdleTimeout string `yaml:"idle_timeout"`
}

// LoadTimeouts overlays *.yaml policy files from dir onto the defaults.
// Each file declares one stage's idle_timeout. A missing directory means
// defaults apply unchanged; a malformed file, an unknown or duplicate status,
// or a resulting threshold misordering is a startup error.
func LoadTimeouts(dir string) (Timeouts, error) {
	t := DefaultTimeouts()

	if dir == "" {
		return t, nil
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return t, nil // no policy directory configured on disk — defaults apply
	}
	if err != nil {
		return Timeouts{}, fmt.Errorf("recovery policy dir: %w", err)
	}
	if !info.IsDir() {
		return Timeouts{}, fmt.Errorf("recovery policy path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Timeouts{}, fmt.Errorf("reading recovery policy dir: %w", err)
	}

	seen := make(map[string]string) // status -> file that set it
	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return Timeouts{}, fmt.Errorf("reading policy file %s: %w", path, err)
		}

		var raw rawPolicy
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Timeouts{}, fmt.Errorf("parsing policy file %s: %w", path, err)
		}
		if raw.Status == "" {
			continue // skip empty / comment-only files
		}

		if prev, dup := seen[raw.Status]; dup {
			return Timeouts{}, fmt.Errorf("policy file %s: status %q already set by %s", path, raw.Status, prev)
		}
		seen[raw.Status] = path

		d, err := parseIdleTimeout(raw.IdleTimeout)
		if err != nil {
			return Timeouts{}, fmt.Errorf("policy file %s: %w", path, err)
		}

		switch Status(raw.Status) {
		case StatusCold:
			t.Cold = d
		case StatusWarm:
			t.Warm = d
		case StatusHot:
			t.Hot = d
		default:
			return Timeouts{}, fmt.Errorf("policy file %s: unknown status %q", path, raw.Status)
		}
	}

	if err := t.Validate(); err != nil {
		return Timeouts{}, err
	}
	return t, nil
}

// parseIdleTimeout parses a Go duration string, plus an "Xd" day suffix that
// time.ParseDuration does not support.
func parseIdleTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("idle_timeout must not be empty")
	}

	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, fmt.Errorf("invalid idle_timeout %q: %w", s, err)
		}
		if days <= 0 {
			return 0, fmt.Errorf("idle_timeout must be positive, got %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid idle_timeout %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("idle_timeout must be positive, got %q", s)
	}
	return d, nil
}
