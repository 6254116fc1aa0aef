package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChangeCallback is invoked for every applied field change.
type ChangeCallback func(change ConfigChange)

// ReloadCallback is invoked after a new configuration is applied.
type ReloadCallback func(oldConfig, newConfig *Config)

// ValidateFunc vets a candidate configuration before it is applied.
type ValidateFunc func(newConfig *Config) error

// ConfigChange records one field-level difference between the old and
// new configuration.
type ConfigChange struct {
	Timestamp       time.Time `json:"timestamp"`
	Source          string    `json:"source"`
	Path            string    `json:"path"`
	OldValue        any       `json:"old_value,omitempty"`
	NewValue        any       `json:"new_value,omitempty"`
	RequiresRestart bool      `json:"requires_restart"`
}

// HotReloadableField marks a configuration path as safe to change at
// runtime.
type HotReloadableField struct {
	Path            string
	Description     string
	RequiresRestart bool
	Sensitive       bool
}

// hotReloadableFields lists the paths that take effect without a
// restart. Changes to any other path are applied to the in-memory
// config but flagged as requiring a restart.
var hotReloadableFields = map[string]HotReloadableField{
	"Log.Level": {
		Path:        "Log.Level",
		Description: "Log level (debug, info, warn, error)",
	},
	"Log.Format": {
		Path:        "Log.Format",
		Description: "Log format (json, console)",
	},
	"Engine.MaxIterations": {
		Path:        "Engine.MaxIterations",
		Description: "Default iteration ceiling for workflow runs",
	},
	"Engine.RunTimeout": {
		Path:        "Engine.RunTimeout",
		Description: "Synchronous run timeout",
	},
	"Engine.RunCacheTTL": {
		Path:        "Engine.RunCacheTTL",
		Description: "TTL for cached run records",
	},
	"Server.RateLimitRPS": {
		Path:        "Server.RateLimitRPS",
		Description: "Request rate limit (requests per second)",
	},
	"Server.RateLimitBurst": {
		Path:        "Server.RateLimitBurst",
		Description: "Request rate limit burst size",
	},
	"Auth.JWTSecret": {
		Path:        "Auth.JWTSecret",
		Description: "JWT signing secret",
		Sensitive:   true,
	},
}

// sensitivePathFragments drive redaction in SanitizedConfig.
var sensitivePathFragments = []string{"password", "secret", "uri"}

// HotReloadManager watches the configuration file and applies changes
// at runtime, keeping the previous configuration for rollback.
type HotReloadManager struct {
	mu sync.RWMutex

	config         *Config
	configPath     string
	previousConfig *Config
	validateFunc   ValidateFunc

	watcher *FileWatcher

	changeCallbacks []ChangeCallback
	reloadCallbacks []ReloadCallback
	changeLog       []ConfigChange

	logger  *zap.Logger
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// HotReloadOption configures the manager.
type HotReloadOption func(*HotReloadManager)

// WithHotReloadLogger sets the logger.
func WithHotReloadLogger(logger *zap.Logger) HotReloadOption {
	return func(m *HotReloadManager) { m.logger = logger }
}

// WithConfigPath sets the file to watch and reload from.
func WithConfigPath(path string) HotReloadOption {
	return func(m *HotReloadManager) { m.configPath = path }
}

// WithValidateFunc sets the validation hook run on every candidate
// configuration before it is applied.
func WithValidateFunc(fn ValidateFunc) HotReloadOption {
	return func(m *HotReloadManager) { m.validateFunc = fn }
}

// NewHotReloadManager creates a manager around the current config.
func NewHotReloadManager(config *Config, opts ...HotReloadOption) *HotReloadManager {
	m := &HotReloadManager{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "config_reload"))
	return m
}

// Start begins watching the config file. Without a config path the
// manager still accepts ApplyConfig calls but watches nothing.
func (m *HotReloadManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("hot reload manager already running")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	if m.configPath != "" {
		watcher, err := NewFileWatcher([]string{m.configPath}, WithWatcherLogger(m.logger))
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		watcher.OnChange(m.handleFileChange)
		if err := watcher.Start(m.ctx); err != nil {
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
		m.watcher = watcher
	}

	m.running = true
	m.logger.Info("hot reload manager started", zap.String("config_path", m.configPath))
	return nil
}

// Stop halts watching.
func (m *HotReloadManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			m.logger.Error("failed to stop file watcher", zap.Error(err))
		}
	}
	m.cancel()
	m.running = false
	m.logger.Info("hot reload manager stopped")
	return nil
}

func (m *HotReloadManager) handleFileChange(event FileEvent) {
	if event.Op == FileOpRemove {
		m.logger.Warn("config file removed, keeping current configuration",
			zap.String("path", event.Path))
		return
	}
	if err := m.ReloadFromFile(); err != nil {
		m.logger.Error("config reload failed", zap.Error(err))
	}
}

// ReloadFromFile loads the watched file and applies it.
func (m *HotReloadManager) ReloadFromFile() error {
	m.mu.RLock()
	path := m.configPath
	m.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("no config path configured")
	}

	newConfig, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return m.ApplyConfig(newConfig, "file")
}

// ApplyConfig validates and applies a new configuration, recording
// per-field changes and notifying callbacks. On validation failure the
// current configuration stays in place.
func (m *HotReloadManager) ApplyConfig(newConfig *Config, source string) error {
	if newConfig == nil {
		return fmt.Errorf("new config cannot be nil")
	}
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("rejected config: %w", err)
	}
	if m.validateFunc != nil {
		if err := m.validateFunc(newConfig); err != nil {
			return fmt.Errorf("rejected config: %w", err)
		}
	}

	m.mu.Lock()
	oldConfig := m.config
	changes := detectChanges(oldConfig, newConfig, source)
	if len(changes) == 0 {
		m.mu.Unlock()
		m.logger.Debug("config reload produced no changes")
		return nil
	}

	m.previousConfig = oldConfig
	m.config = newConfig
	m.changeLog = append(m.changeLog, changes...)

	changeCallbacks := make([]ChangeCallback, len(m.changeCallbacks))
	copy(changeCallbacks, m.changeCallbacks)
	reloadCallbacks := make([]ReloadCallback, len(m.reloadCallbacks))
	copy(reloadCallbacks, m.reloadCallbacks)
	m.mu.Unlock()

	for _, change := range changes {
		m.logChange(change)
		for _, cb := range changeCallbacks {
			cb(change)
		}
	}
	for _, cb := range reloadCallbacks {
		cb(oldConfig, newConfig)
	}
	return nil
}

// Rollback restores the previously applied configuration.
func (m *HotReloadManager) Rollback() error {
	m.mu.Lock()
	if m.previousConfig == nil {
		m.mu.Unlock()
		return fmt.Errorf("no previous config to roll back to")
	}
	restored := m.previousConfig
	m.previousConfig = nil
	m.mu.Unlock()

	m.logger.Warn("rolling back configuration")
	return m.ApplyConfig(restored, "rollback")
}

// GetConfig returns the currently applied configuration.
func (m *HotReloadManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnChange registers a callback for individual field changes.
func (m *HotReloadManager) OnChange(callback ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeCallbacks = append(m.changeCallbacks, callback)
}

// OnReload registers a callback invoked after every applied reload.
func (m *HotReloadManager) OnReload(callback ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCallbacks = append(m.reloadCallbacks, callback)
}

// GetChangeLog returns up to limit most recent changes, newest last.
func (m *HotReloadManager) GetChangeLog(limit int) []ConfigChange {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.changeLog) {
		limit = len(m.changeLog)
	}
	out := make([]ConfigChange, limit)
	copy(out, m.changeLog[len(m.changeLog)-limit:])
	return out
}

// GetHotReloadableFields exposes the registry for inspection.
func GetHotReloadableFields() map[string]HotReloadableField {
	out := make(map[string]HotReloadableField, len(hotReloadableFields))
	for k, v := range hotReloadableFields {
		out[k] = v
	}
	return out
}

// IsHotReloadable reports whether a field path takes effect without a
// restart.
func IsHotReloadable(path string) bool {
	_, ok := hotReloadableFields[path]
	return ok
}

func (m *HotReloadManager) logChange(change ConfigChange) {
	fields := []zap.Field{
		zap.String("path", change.Path),
		zap.String("source", change.Source),
		zap.Bool("requires_restart", change.RequiresRestart),
	}
	if !isSensitivePath(change.Path) {
		fields = append(fields,
			zap.Any("old_value", change.OldValue),
			zap.Any("new_value", change.NewValue),
		)
	}
	m.logger.Info("config changed", fields...)
}

// detectChanges walks both configs in parallel and records every leaf
// field that differs.
func detectChanges(oldConfig, newConfig *Config, source string) []ConfigChange {
	var changes []ConfigChange
	compareStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), source, &changes)
	return changes
}

func compareStructs(prefix string, oldVal, newVal reflect.Value, source string, changes *[]ConfigChange) {
	t := oldVal.Type()

	for i := 0; i < oldVal.NumField(); i++ {
		fieldName := t.Field(i).Name
		path := fieldName
		if prefix != "" {
			path = prefix + "." + fieldName
		}

		of, nf := oldVal.Field(i), newVal.Field(i)
		if of.Kind() == reflect.Struct && of.Type() != reflect.TypeOf(time.Time{}) {
			compareStructs(path, of, nf, source, changes)
			continue
		}

		if !reflect.DeepEqual(of.Interface(), nf.Interface()) {
			field, reloadable := hotReloadableFields[path]
			change := ConfigChange{
				Timestamp:       time.Now().UTC(),
				Source:          source,
				Path:            path,
				RequiresRestart: !reloadable || field.RequiresRestart,
			}
			if !isSensitivePath(path) {
				change.OldValue = of.Interface()
				change.NewValue = nf.Interface()
			}
			*changes = append(*changes, change)
		}
	}
}

func isSensitivePath(path string) bool {
	if f, ok := hotReloadableFields[path]; ok && f.Sensitive {
		return true
	}
	lower := strings.ToLower(path)
	for _, fragment := range sensitivePathFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// SanitizedConfig returns the current configuration as a nested map
// with sensitive values redacted, suitable for diagnostics output.
func (m *HotReloadManager) SanitizedConfig() map[string]any {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	out := make(map[string]any)
	structToMap("", reflect.ValueOf(cfg).Elem(), out)
	return out
}

func structToMap(prefix string, v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		fieldName := t.Field(i).Name
		path := fieldName
		if prefix != "" {
			path = prefix + "." + fieldName
		}

		f := v.Field(i)
		if f.Kind() == reflect.Struct && f.Type() != reflect.TypeOf(time.Time{}) {
			nested := make(map[string]any)
			structToMap(path, f, nested)
			out[fieldName] = nested
			continue
		}

		if isSensitivePath(path) {
			if s, ok := f.Interface().(string); ok && s != "" {
				out[fieldName] = "***"
				continue
			}
		}
		out[fieldName] = f.Interface()
	}
}
