package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks a configuration for structural problems: missing required
// fields, out-of-range values, and replica-set inconsistencies that the
// struct tags alone cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}

	return validateServers(cfg.Servers)
}

// validateServers enforces what election and replication assume about the
// replica set: ids identify exactly one replica and no two replicas share a
// listen address.
func validateServers(servers []ServerSpec) error {
	ids := make(map[int]struct{}, len(servers))
	addrs := make(map[string]struct{}, len(servers))
	for _, s := range servers {
		if _, dup := ids[s.ID]; dup {
			return fmt.Errorf("duplicate server id %d in servers list", s.ID)
		}
		ids[s.ID] = struct{}{}

		addr := s.Addr()
		if _, dup := addrs[addr]; dup {
			return fmt.Errorf("duplicate server address %s in servers list", addr)
		}
		addrs[addr] = struct{}{}
	}
	return nil
}
