package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/models"
)

// enforcementCacheTTL bounds how stale a cached policy may get on instances
// that did not observe the invalidating write.
const enforcementCacheTTL = 30 * time.Second

// Enforcement describes the current global two-factor policy.
type Enforcement struct {
	// Enforced is true when at least one administrator has switched global
	// enforcement on.
	Enforced bool
	// FallbackSecret is the enforcing administrator's TOTP secret, used to
	// verify codes for users who have not provisioned their own secret. Empty
	// when no enforcing administrator has a usable secret.
	FallbackSecret string
	// EnforcedBy is the id of the administrator whose secret is used.
	EnforcedBy string
}

// EnforcementPolicy caches the derived global enforcement state so the login
// path does not rescan the administrator table on every attempt. Writers that
// change enforcement flags must call Invalidate; entries also age out after
// enforcementCacheTTL so other instances converge without an explicit signal.
type EnforcementPolicy struct {
	db  *gorm.DB
	now func() time.Time

	mu        sync.RWMutex
	state     *Enforcement
	fetchedAt time.Time
}

// NewEnforcementPolicy constructs the policy cache.
func NewEnforcementPolicy(db *gorm.DB) (*EnforcementPolicy, error) {
	if db == nil {
		return nil, errors.New("enforcement policy: db is required")
	}
	return &EnforcementPolicy{db: db, now: time.Now}, nil
}

// WithClock overrides the cache clock, primarily for tests.
func (p *EnforcementPolicy) WithClock(clock func() time.Time) *EnforcementPolicy {
	if clock != nil {
		p.now = clock
	}
	return p
}

// Resolve returns the cached enforcement state, computing it on first use or
// after the cache entry has aged past its TTL.
func (p *EnforcementPolicy) Resolve(ctx context.Context) (Enforcement, error) {
	now := p.now()

	p.mu.RLock()
	if p.state != nil && now.Sub(p.fetchedAt) < enforcementCacheTTL {
		state := *p.state
		p.mu.RUnlock()
		return state, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != nil && now.Sub(p.fetchedAt) < enforcementCacheTTL {
		return *p.state, nil
	}

	state, err := p.compute(ensureContext(ctx))
	if err != nil {
		return Enforcement{}, err
	}

	p.state = &state
	p.fetchedAt = now
	return state, nil
}

// Invalidate drops the cached state so the next Resolve recomputes it.
func (p *EnforcementPolicy) Invalidate() {
	p.mu.Lock()
	p.state = nil
	p.mu.Unlock()
}

func (p *EnforcementPolicy) compute(ctx context.Context) (Enforcement, error) {
	var admins []models.User
	err := p.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Where("user_roles.role_id = ?", models.AdminRoleID).
		Where("users.two_factor_enforced_globally = ?", true).
		Order("users.created_at ASC").
		Find(&admins).Error
	if err != nil {
		return Enforcement{}, fmt.Errorf("enforcement policy: scan administrators: %w", err)
	}

	if len(admins) == 0 {
		return Enforcement{}, nil
	}

	state := Enforcement{Enforced: true}
	for _, admin := range admins {
		if admin.HasTwoFactorEnabled() {
			state.FallbackSecret = *admin.TwoFactorSecret
			state.EnforcedBy = admin.ID
			break
		}
	}

	return state, nil
}
