package conf

import "fmt"

type Network struct {
	Sockbuf     int `yaml:"sockbuf"`
	IdleTimeout int `yaml:"idle_timeout_s"`
}

func (n *Network) setDefaults(role string) {
	if n.Sockbuf == 0 {
		if role == "server" {
			n.Sockbuf = 8 * 1024 * 1024
		} else {
			n.Sockbuf = 4 * 1024 * 1024
		}
	}
	if n.IdleTimeout == 0 {
		// WireGuard rejects sessions after 180s; an idle relay session
		// past that point is dead weight.
		n.IdleTimeout = 180
	}
}

func (n *Network) validate() []error {
	var errors []error

	if n.Sockbuf < 1024 {
		errors = append(errors, fmt.Errorf("network sockbuf must be >= 1024 bytes"))
	}
	if n.Sockbuf > 100*1024*1024 {
		errors = append(errors, fmt.Errorf("network sockbuf too large (max 100MB)"))
	}
	if n.IdleTimeout < 1 || n.IdleTimeout > 86400 {
		errors = append(errors, fmt.Errorf("network idle_timeout_s must be between 1 and 86400"))
	}

	return errors
}
