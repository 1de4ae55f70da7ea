package accounts

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the lifecycle state of an account
type AccountStatus string

const (
	// StatusPendingActivation accounts are waiting for an activation code
	StatusPendingActivation AccountStatus = "pending_activation"
	// StatusActive accounts can sign in
	StatusActive AccountStatus = "active"
)

var statusTransitions = map[AccountStatus]map[AccountStatus]struct{}{
	StatusPendingActivation: {
		StatusActive: {},
	},
}

// CanTransition reports whether the lifecycle allows moving from s to target.
func (s AccountStatus) CanTransition(target AccountStatus) bool {
	allowed, ok := statusTransitions[s]
	if !ok {
		return false
	}
	_, ok = allowed[target]
	return ok
}

// Account is the durable record of a registered user
type Account struct {
	bun.BaseModel    `bun:"table:accounts,alias:acc"`
	ID               uuid.UUID     `bun:"id,pk" json:"id"`
	Name             string        `bun:"name,notnull" json:"name"`
	Email            string        `bun:"email,notnull,unique" json:"email"`
	PasswordHash     string        `bun:"password_hash,notnull" json:"-"`
	Status           AccountStatus `bun:"status,notnull" json:"status"`
	ActivationHash   string        `bun:"activation_hash,nullzero" json:"-"`
	ResetHash        string        `bun:"reset_hash,nullzero" json:"-"`
	ResetRequestedAt *time.Time    `bun:"reset_requested_at,nullzero" json:"-"`
	ActivatedAt      *time.Time    `bun:"activated_at,nullzero" json:"activated_at,omitempty"`
	LastLoginAt      *time.Time    `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt        time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt        time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// IsActive reports whether the account completed activation
func (a *Account) IsActive() bool {
	return a != nil && a.Status == StatusActive
}

// Profile is the public projection of an Account. Extras holds data attached
// by AfterGetUser hooks and is flattened into the JSON object.
type Profile struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Status      AccountStatus  `json:"status"`
	ActivatedAt *time.Time     `json:"activated_at"`
	CreatedAt   time.Time      `json:"created_at"`
	Extras      map[string]any `json:"-"`
}

// NewProfile projects the public fields of account.
func NewProfile(account *Account) *Profile {
	if account == nil {
		return nil
	}
	return &Profile{
		ID:          account.ID,
		Name:        account.Name,
		Email:       account.Email,
		Status:      account.Status,
		ActivatedAt: account.ActivatedAt,
		CreatedAt:   account.CreatedAt,
	}
}

// Attach stores a derived value on the profile, e.g. a lazily loaded avatar.
// A nil value is kept so the key is still present in the payload.
func (p *Profile) Attach(key string, val any) *Profile {
	if p.Extras == nil {
		p.Extras = make(map[string]any)
	}
	p.Extras[key] = val
	return p
}

// MarshalJSON flattens Extras next to the core fields. Core fields win.
func (p Profile) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 6+len(p.Extras))
	for k, v := range p.Extras {
		out[k] = v
	}
	out["id"] = p.ID
	out["name"] = p.Name
	out["email"] = p.Email
	out["status"] = p.Status
	out["activated_at"] = p.ActivatedAt
	out["created_at"] = p.CreatedAt
	return json.Marshal(out)
}

// NormalizeEmail lower-cases and trims an email so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
