package conf

import (
	"fmt"
	"net"
	"strings"
)

type Addr struct {
	Addr_ string       `yaml:"addr"`
	Addr  *net.UDPAddr `yaml:"-"`
}

func (a *Addr) validate() []error {
	var errors []error

	addr := strings.TrimSpace(a.Addr_)
	if addr == "" {
		errors = append(errors, fmt.Errorf("addr is required"))
		return errors
	}

	resolved, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		errors = append(errors, fmt.Errorf("addr invalid: %w", err))
		return errors
	}
	if resolved.Port == 0 {
		errors = append(errors, fmt.Errorf("addr must include a non-zero port"))
	}
	a.Addr = resolved

	return errors
}
