package auth

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fatture/internal/capability"
)

// Roles known to the default policy.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Policy maps roles to the capability tags they grant. It is the whole of the
// authorization decision — the core only ever sees the resulting tags.
type Policy struct {
	Roles map[string][]capability.Tag `yaml:"roles"`
}

// DefaultPolicy grants admins everything and plain users ledger writes.
func DefaultPolicy() *Policy {
	return &Policy{
		Roles: map[string][]capability.Tag{
			RoleAdmin: {
				capability.TagRegistryAdmin,
				capability.TagLedgerWrite,
				capability.TagReportAll,
			},
			RoleUser: {
				capability.TagLedgerWrite,
			},
		},
	}
}

// LoadPolicy reads a role policy from a YAML file. An empty path yields the
// built-in default.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if len(p.Roles) == 0 {
		return nil, fmt.Errorf("policy file %s defines no roles", path)
	}
	return &p, nil
}

// GrantFor resolves a role into its capability grant. Unknown roles get the
// empty grant, which passes only open operations.
func (p *Policy) GrantFor(role string) capability.Grant {
	return capability.NewGrant(p.Roles[role]...)
}
