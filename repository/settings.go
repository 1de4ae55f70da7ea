package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// SettingModel is a row of the account_settings table
type SettingModel struct {
	bun.BaseModel `bun:"table:account_settings,alias:st"`

	Name      string    `bun:"name,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// Settings is the persistent accounts.SettingsStore
type Settings struct {
	db *bun.DB
}

var _ accounts.SettingsStore = (*Settings)(nil)

// NewSettings creates a settings store over db
func NewSettings(db *bun.DB) *Settings {
	return &Settings{db: db}
}

// Get implements accounts.SettingsStore
func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	var model SettingModel
	err := s.db.NewSelect().
		Model(&model).
		Where("?TableAlias.name = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read setting")
	}
	return model.Value, true, nil
}

// Set stores value under key, replacing any previous value
func (s *Settings) Set(ctx context.Context, key, value string) error {
	model := &SettingModel{
		Name:      key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}

	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (name) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store setting")
	}
	return nil
}

// Delete removes key so its default applies again
func (s *Settings) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*SettingModel)(nil)).
		Where("name = ?", key).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete setting")
	}
	return nil
}

// All returns every stored setting
func (s *Settings) All(ctx context.Context) (map[string]string, error) {
	var models []SettingModel
	if err := s.db.NewSelect().Model(&models).Order("name ASC").Scan(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list settings")
	}

	out := make(map[string]string, len(models))
	for _, m := range models {
		out[m.Name] = m.Value
	}
	return out, nil
}
