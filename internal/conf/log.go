package conf

import (
	"fmt"
	"slices"
	"strings"
)

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func (l *Log) setDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
}

func (l *Log) validate() []error {
	var errors []error

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, l.Level) {
		errors = append(errors, fmt.Errorf("log level must be one of: %v", validLevels))
	}

	return errors
}
