package conf

import (
	"fmt"
	"slices"
)

// Obfuscation configuration for the datagram transform
type Obfuscation struct {
	// Obfuscation mode: none, wgobfs
	Mode string `yaml:"mode"`

	// Pre-shared key the per-packet keystream is derived from. Required
	// unless mode is none. Never logged.
	Key string `yaml:"key"`

	// Padding prefix policy
	Padding struct {
		MinPad       int `yaml:"min_pad"`        // Smallest prefix (default: 4)
		MaxPad       int `yaml:"max_pad"`        // Widest prefix for small messages (default: 32)
		NarrowMaxPad int `yaml:"narrow_max_pad"` // Prefix cap for large messages (default: 8)
		LargeCutoff  int `yaml:"large_cutoff"`   // Message length where the narrow range kicks in (default: 200)
	} `yaml:"padding"`

	// Keepalive suppression breaks the periodic 32-byte fingerprint.
	// Enabled by default; both peers tolerate it independently.
	DisableKeepaliveDrop bool `yaml:"disable_keepalive_drop"`
}

func (o *Obfuscation) setDefaults() {
	if o.Mode == "" {
		o.Mode = "wgobfs"
	}

	if o.Padding.MinPad == 0 {
		o.Padding.MinPad = 4
	}
	if o.Padding.MaxPad == 0 {
		o.Padding.MaxPad = 32
	}
	if o.Padding.NarrowMaxPad == 0 {
		o.Padding.NarrowMaxPad = 8
	}
	if o.Padding.LargeCutoff == 0 {
		o.Padding.LargeCutoff = 200
	}
}

func (o *Obfuscation) validate() []error {
	var errors []error

	validModes := []string{"none", "wgobfs"}
	if !slices.Contains(validModes, o.Mode) {
		errors = append(errors, fmt.Errorf("obfs mode must be one of: %v", validModes))
	}

	if o.Mode != "none" && len(o.Key) < 4 {
		errors = append(errors, fmt.Errorf("obfs key must be at least 4 characters"))
	}

	if o.Padding.MinPad < 1 || o.Padding.MinPad > 255 {
		errors = append(errors, fmt.Errorf("obfs padding min_pad must be between 1-255"))
	}
	if o.Padding.MaxPad < o.Padding.MinPad || o.Padding.MaxPad > 255 {
		errors = append(errors, fmt.Errorf("obfs padding max_pad must be between min_pad-255"))
	}
	if o.Padding.NarrowMaxPad < o.Padding.MinPad || o.Padding.NarrowMaxPad > o.Padding.MaxPad {
		errors = append(errors, fmt.Errorf("obfs padding narrow_max_pad must be between min_pad-max_pad"))
	}
	if o.Padding.LargeCutoff < 1 || o.Padding.LargeCutoff > 65535 {
		errors = append(errors, fmt.Errorf("obfs padding large_cutoff must be between 1-65535"))
	}

	return errors
}
