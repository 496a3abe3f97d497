package config

import (
	"fmt"

	"github.com/tamtunnel/spacecomms/internal/validate"
)

// Validate checks struct-tag constraints plus the cross-field rules
// validator tags cannot express (storage.file_path required when
// storage.type is "file").
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Storage.Type == "file" && cfg.Storage.FilePath == "" {
		return fmt.Errorf("storage.file_path is required when storage.type is \"file\"")
	}

	seen := make(map[string]bool, len(cfg.Peers))
	for _, p := range cfg.Peers {
		if seen[p.ID] {
			return fmt.Errorf("duplicate peer id %q", p.ID)
		}
		seen[p.ID] = true
		if p.ID == cfg.Node.ID {
			return fmt.Errorf("peer id %q must not equal this node's id", p.ID)
		}
	}

	if cfg.API.Auth.Enabled {
		tokenIDs := make(map[string]bool, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			if t.Secret == "" {
				return fmt.Errorf("api.auth.tokens[%s].secret is required when auth is enabled", t.ID)
			}
			if tokenIDs[t.ID] {
				return fmt.Errorf("duplicate api.auth.tokens id %q", t.ID)
			}
			tokenIDs[t.ID] = true
		}
	}

	return nil
}
