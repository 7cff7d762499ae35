package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/krisalay/query-cache/types"
)

// Duration is a time.Duration written as text ("30s", "5m") in config files.
// The word "never" stands for types.Never.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	if time.Duration(d) == types.Never {
		return []byte("never"), nil
	}
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if strings.EqualFold(s, "never") {
		*d = Duration(types.Never)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML accepts the same text form for YAML files.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func (d Duration) Std() time.Duration { return time.Duration(d) }
