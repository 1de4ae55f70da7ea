package repository

import (
	"context"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// Manager groups the stores sharing one database
type Manager struct {
	db       *bun.DB
	accounts *Accounts
	settings *Settings
}

// NewManager builds every store over db
func NewManager(db *bun.DB) *Manager {
	return &Manager{
		db:       db,
		accounts: NewAccounts(db),
		settings: NewSettings(db),
	}
}

// Validate checks that every store is initialized
func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.settings == nil {
		return errors.New("repository settings should be initialized")
	}

	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// Migrate applies pending migrations
func (m *Manager) Migrate(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return Migrate(ctx, m.db)
	}
}

func (m *Manager) Accounts() *Accounts {
	return m.accounts
}

func (m *Manager) Settings() *Settings {
	return m.settings
}

func (m *Manager) DB() *bun.DB {
	return m.db
}

// Close releases the database
func (m *Manager) Close() error {
	return m.db.Close()
}
