package accounts_test

import (
	"encoding/json"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountStatusTransitions(t *testing.T) {
	assert.True(t, accounts.StatusPendingActivation.CanTransition(accounts.StatusActive))
	assert.False(t, accounts.StatusActive.CanTransition(accounts.StatusPendingActivation))
	assert.False(t, accounts.StatusActive.CanTransition(accounts.StatusActive))
	assert.False(t, accounts.AccountStatus("unknown").CanTransition(accounts.StatusActive))
}

func TestAccountIsActive(t *testing.T) {
	var missing *accounts.Account
	assert.False(t, missing.IsActive())
	assert.False(t, (&accounts.Account{Status: accounts.StatusPendingActivation}).IsActive())
	assert.True(t, (&accounts.Account{Status: accounts.StatusActive}).IsActive())
}

func TestProfileOmitsSecrets(t *testing.T) {
	now := time.Now().UTC()
	account := &accounts.Account{
		ID:             uuid.New(),
		Name:           "Ada",
		Email:          "ada@example.com",
		PasswordHash:   "$2a$04$secret",
		ActivationHash: "activation-secret",
		ResetHash:      "reset-secret",
		Status:         accounts.StatusActive,
		ActivatedAt:    &now,
		CreatedAt:      now,
	}

	raw, err := json.Marshal(accounts.NewProfile(account))
	require.NoError(t, err)

	body := string(raw)
	assert.NotContains(t, body, "secret")
	assert.Contains(t, body, `"email":"ada@example.com"`)
	assert.Contains(t, body, `"status":"active"`)
}

func TestProfileExtrasDoNotOverrideCoreFields(t *testing.T) {
	profile := accounts.NewProfile(&accounts.Account{ID: uuid.New(), Email: "ada@example.com"})
	profile.Attach("email", "mallory@example.com").Attach("team", "core")

	raw, err := json.Marshal(profile)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "ada@example.com", payload["email"])
	assert.Equal(t, "core", payload["team"])
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", accounts.NormalizeEmail("  Ada@Example.COM\n"))
	assert.Nil(t, accounts.NewProfile(nil))
}
