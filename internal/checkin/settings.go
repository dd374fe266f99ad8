package checkin

import (
	"context"

	"go.uber.org/zap"
)

// SettingsProvider supplies the notification settings read before every call.
type SettingsProvider interface {
	NotificationSettings(ctx context.Context) (Settings, error)
}

// StaticSettings is a fixed configuration value.
type StaticSettings Settings

func (s StaticSettings) NotificationSettings(context.Context) (Settings, error) {
	return Settings(s), nil
}

// StoredSettings reads settings from the store and falls back to a
// configured default when nothing is stored.
type StoredSettings struct {
	store    Store
	fallback Settings
	log      *zap.Logger
}

// NewStoredSettings creates a provider over store.
func NewStoredSettings(store Store, fallback Settings, logger *zap.Logger) *StoredSettings {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoredSettings{store: store, fallback: fallback, log: logger.Named("settings")}
}

// NotificationSettings returns the stored settings, the fallback when none
// are stored, and the fallback plus the error when the read fails.
func (s *StoredSettings) NotificationSettings(ctx context.Context) (Settings, error) {
	st, err := s.store.Settings(ctx)
	if err != nil {
		return s.fallback, err
	}
	if st == nil {
		return s.fallback, nil
	}
	return *st, nil
}

// Save stores new settings.
func (s *StoredSettings) Save(ctx context.Context, st Settings) error {
	if err := s.store.SaveSettings(ctx, st); err != nil {
		return err
	}
	s.log.Info("notification settings saved", zap.Bool("on_queue_call", st.OnQueueCall))
	return nil
}
