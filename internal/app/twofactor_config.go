package app

import (
	"github.com/covecrm/covecrm/internal/auth/twofactor"
	"github.com/covecrm/covecrm/internal/services"
)

// EngineOptions converts the two-factor section into engine options.
func (c TwoFactorConfig) EngineOptions() []twofactor.Option {
	var opts []twofactor.Option
	if c.Issuer != "" {
		opts = append(opts, twofactor.WithIssuer(c.Issuer))
	}
	return opts
}

// LinkSignerConfig builds the signed-link parameters. The base URL comes from
// the server section so emailed links point at the public host.
func (c TwoFactorConfig) LinkSignerConfig(baseURL string) twofactor.LinkSignerConfig {
	return twofactor.LinkSignerConfig{
		Secret:  c.LinkSecret,
		BaseURL: baseURL,
		TTL:     c.LinkTTL,
	}
}

// RecoveryServiceConfig converts the two-factor section into RecoveryService parameters.
func (c TwoFactorConfig) RecoveryServiceConfig() services.RecoveryConfig {
	return services.RecoveryConfig{
		RateLimit:           c.EmailRateLimit,
		RateWindow:          c.EmailRateWindow,
		BackupEmailOverride: c.BackupEmailOverride,
	}
}
