package reconcile

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/macos-ard-tool/pkg/naprivs"
)

// Config is the desired state document applied to a host.
//
//	service:
//	  enabled: true
//	  allow_all_users: false
//	  all_users_privs: none
//	  enable_menu_extra: true
//	  enable_dir_logins: true
//	  directory_groups:
//	    - ard_users
//	    - ard_admins
//	  enable_legacy_vnc: true
//	  vnc_password: hunter2
//	  allow_vnc_requests: true
//	  allow_wbem_requests: false
//	users:
//	  admin:
//	    - control_observe
//	    - text
//	    - copy
//	    - launch
//	    - observe_hidden
type Config struct {
	Service *ServiceConfig      `yaml:"service"`
	Users   map[string][]string `yaml:"users"`
}

// ServiceConfig holds the system-wide settings. Nil pointer fields are left
// unmanaged; only keys present in the document are reconciled.
type ServiceConfig struct {
	Enabled           *bool    `yaml:"enabled"`
	AllowAllUsers     *bool    `yaml:"allow_all_users"`
	AllUsersPrivs     *string  `yaml:"all_users_privs"`
	DirectoryGroups   []string `yaml:"directory_groups"`
	EnableMenuExtra   *bool    `yaml:"enable_menu_extra"`
	EnableDirLogins   *bool    `yaml:"enable_dir_logins"`
	EnableLegacyVNC   *bool    `yaml:"enable_legacy_vnc"`
	VNCPassword       *string  `yaml:"vnc_password"`
	AllowVNCRequests  *bool    `yaml:"allow_vnc_requests"`
	AllowWBEMRequests *bool    `yaml:"allow_wbem_requests"`
}

// Parse decodes and validates a desired-state document. Unknown document
// keys and unknown privilege names are rejected.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing desired state: %w", err)
	}

	if cfg.Service != nil && cfg.Service.AllUsersPrivs != nil {
		if _, err := parsePrivList(*cfg.Service.AllUsersPrivs); err != nil {
			return nil, fmt.Errorf("all_users_privs: %w", err)
		}
	}
	for username, privs := range cfg.Users {
		if _, err := naprivs.Parse(strings.Join(privs, ",")); err != nil {
			return nil, fmt.Errorf("user %s: %w", username, err)
		}
	}
	return cfg, nil
}

// Load reads a desired-state document from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading desired state: %w", err)
	}
	return Parse(data)
}

// parsePrivList parses an all_users_privs value. The literal "none" means an
// empty privilege set, matching what operators type for "enabled but no
// privileges".
func parsePrivList(csv string) (naprivs.Privileges, error) {
	if csv == "none" {
		return naprivs.Privileges{}, nil
	}
	return naprivs.Parse(csv)
}
