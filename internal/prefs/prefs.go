package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// NightModeKey is the preference key for the dark theme.
const NightModeKey = "nightMode"

// Store is a string key/value preference store. Writes are last-write-wins.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// UserStore persists preferences for one user in user_prefs.
type UserStore struct {
	DB     *sql.DB
	UserID int
}

func (s *UserStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.DB.QueryRowContext(ctx, "SELECT value FROM user_prefs WHERE user_id = ? AND key = ?", s.UserID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load pref %s: %w", key, err)
	}
	return v, true, nil
}

func (s *UserStore) Set(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO user_prefs (user_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value`, s.UserID, key, value)
	if err != nil {
		return fmt.Errorf("store pref %s: %w", key, err)
	}
	return nil
}

// NightMode toggles the persisted theme preference.
type NightMode struct {
	Store Store
}

// Enabled reports whether night mode is on. Anything but "true" is off.
func (n NightMode) Enabled(ctx context.Context) (bool, error) {
	v, ok, err := n.Store.Get(ctx, NightModeKey)
	if err != nil || !ok {
		return false, err
	}
	return v == "true", nil
}

// Set writes the preference.
func (n NightMode) Set(ctx context.Context, on bool) error {
	v := "false"
	if on {
		v = "true"
	}
	return n.Store.Set(ctx, NightModeKey, v)
}

// Toggle flips the preference and returns the new state.
func (n NightMode) Toggle(ctx context.Context) (bool, error) {
	on, err := n.Enabled(ctx)
	if err != nil {
		return false, err
	}
	if err := n.Set(ctx, !on); err != nil {
		return false, err
	}
	return !on, nil
}
