package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// SessionConfig defines one named trading window as local time-of-day in the
// symbol's home timezone. A session whose end precedes its start wraps past
// midnight.
type SessionConfig struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// SymbolConfig binds a symbol to its home timezone and session table.
// ReferenceGap is the whole-hour UTC-offset gap between the home timezone and
// the server timezone under the daylight-saving state the session table was
// written for; the session resolver shifts origins by the difference between
// this and the gap on the processed date.
type SymbolConfig struct {
	Name         string          `yaml:"name"`
	Timezone     string          `yaml:"timezone"`
	ReferenceGap int             `yaml:"reference_gap"`
	Sessions     []SessionConfig `yaml:"sessions"`
}

// Symbols represents the full symbol configuration file.
type Symbols struct {
	Symbols []SymbolConfig `yaml:"symbols"`
}

// Get returns the configuration for one symbol.
func (s *Symbols) Get(name string) (SymbolConfig, bool) {
	for _, sym := range s.Symbols {
		if sym.Name == name {
			return sym, true
		}
	}
	return SymbolConfig{}, false
}

// Names returns all configured symbol names in declaration order.
func (s *Symbols) Names() []string {
	names := make([]string, 0, len(s.Symbols))
	for _, sym := range s.Symbols {
		names = append(names, sym.Name)
	}
	return names
}

var clockRegexp = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// LoadSymbols loads the symbol/session configuration from the given path.
func LoadSymbols(path string) (*Symbols, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols file: %w", err)
	}
	var cfg Symbols
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse symbols file: %w", err)
	}
	for _, sym := range cfg.Symbols {
		if sym.Name == "" {
			return nil, fmt.Errorf("symbol name is required")
		}
		if _, err := time.LoadLocation(sym.Timezone); err != nil {
			return nil, fmt.Errorf("symbol %s: timezone '%s' is invalid: %w", sym.Name, sym.Timezone, err)
		}
		for _, sess := range sym.Sessions {
			if sess.Name == "" {
				return nil, fmt.Errorf("symbol %s: session name is required", sym.Name)
			}
			if !clockRegexp.MatchString(sess.Start) || !clockRegexp.MatchString(sess.End) {
				return nil, fmt.Errorf("symbol %s: session %s: start/end must be HH:MM", sym.Name, sess.Name)
			}
		}
	}
	return &cfg, nil
}
