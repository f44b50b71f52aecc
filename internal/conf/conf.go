package conf

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/goccy/go-yaml"
)

type Conf struct {
	Role    string      `yaml:"role"`
	Log     Log         `yaml:"log"`
	Listen  Addr        `yaml:"listen"`
	Server  Addr        `yaml:"server"`
	Obfs    Obfuscation `yaml:"obfs"`
	Network Network     `yaml:"network"`
}

func LoadFromFile(path string) (*Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var conf Conf

	if err := yaml.Unmarshal(data, &conf); err != nil {
		return &conf, err
	}

	validRoles := []string{"client", "server"}
	if !slices.Contains(validRoles, conf.Role) {
		return nil, fmt.Errorf("role must be 'client' or 'server'")
	}

	conf.setDefaults()
	if err := conf.validate(); err != nil {
		return &conf, err
	}

	return &conf, nil
}

func (c *Conf) setDefaults() {
	c.Log.setDefaults()
	c.Obfs.setDefaults()
	c.Network.setDefaults(c.Role)
}

func (c *Conf) validate() error {
	var allErrors []error

	allErrors = append(allErrors, c.Log.validate()...)
	allErrors = append(allErrors, c.Obfs.validate()...)
	allErrors = append(allErrors, c.Network.validate()...)

	lErrs := c.Listen.validate()
	for _, err := range lErrs {
		allErrors = append(allErrors, fmt.Errorf("listen %v", err))
	}

	// The client forwards to the obfuscation server; the server forwards
	// to the real WireGuard endpoint. Either way a peer is required.
	sErrs := c.Server.validate()
	for _, err := range sErrs {
		allErrors = append(allErrors, fmt.Errorf("server %v", err))
	}

	return errors.Join(allErrors...)
}
