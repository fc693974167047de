package app

import (
	"fmt"
	"strings"

	"github.com/covecrm/covecrm/pkg/crypto"
)

const (
	jwtSecretBytes  = 48
	linkSecretBytes = 32
)

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	if strings.TrimSpace(cfg.TwoFactor.LinkSecret) == "" {
		// Generated link secrets do not survive a restart, which invalidates
		// outstanding disable links. Configure a fixed secret in production.
		secret, err := crypto.GenerateToken(linkSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate link secret: %w", err)
		}
		cfg.TwoFactor.LinkSecret = secret
		generated["two_factor.link_secret"] = true
	}

	return generated, nil
}
