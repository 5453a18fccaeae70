package usecase

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/visualmatch/console/internal/domain"
)

// ThemePreferenceKey is the preference entry holding an explicit theme choice
const ThemePreferenceKey = "theme"

// ColorSchemeSource reports the operating system color scheme
type ColorSchemeSource interface {
	Current() domain.Theme
	Subscribe(fn func(domain.Theme)) (unsubscribe func())
}

// ThemeSetting is the single process-wide theme. Initialization order is
// stored preference, then OS preference, then apply. OS changes are followed
// only while no explicit preference is stored.
type ThemeSetting struct {
	store  domain.PreferenceStore
	system ColorSchemeSource
	logger *zap.Logger

	mu          sync.Mutex
	theme       domain.Theme
	explicit    bool
	appliers    map[int]func(domain.Theme)
	nextApplier int
	unsubscribe func()
}

// NewThemeSetting creates an uninitialized setting. Call Init before use.
func NewThemeSetting(store domain.PreferenceStore, system ColorSchemeSource, logger *zap.Logger) *ThemeSetting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThemeSetting{
		store:    store,
		system:   system,
		logger:   logger,
		theme:    domain.ThemeLight,
		appliers: make(map[int]func(domain.Theme)),
	}
}

// Init resolves the initial theme, subscribes to OS changes and applies the result
func (s *ThemeSetting) Init() domain.Theme {
	theme, explicit := s.resolve()

	s.mu.Lock()
	s.theme = theme
	s.explicit = explicit
	if s.unsubscribe == nil && s.system != nil {
		s.unsubscribe = s.system.Subscribe(s.onSystemChange)
	}
	s.mu.Unlock()

	s.logger.Info("theme initialized", zap.String("theme", string(theme)), zap.Bool("explicit", explicit))
	s.apply(theme)
	return theme
}

func (s *ThemeSetting) resolve() (domain.Theme, bool) {
	if s.store != nil {
		stored, err := s.store.Get(ThemePreferenceKey)
		switch {
		case err == nil && domain.Theme(stored).Valid():
			return domain.Theme(stored), true
		case err == nil:
			s.logger.Warn("ignoring invalid stored theme", zap.String("theme", stored))
		case !errors.Is(err, domain.ErrPreferenceNotSet):
			s.logger.Warn("failed to read theme preference", zap.Error(err))
		}
	}
	if s.system != nil {
		if theme := s.system.Current(); theme.Valid() {
			return theme, false
		}
	}
	return domain.ThemeLight, false
}

// Current returns the applied theme
func (s *ThemeSetting) Current() domain.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// Explicit reports whether the theme comes from a stored user choice
func (s *ThemeSetting) Explicit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.explicit
}

// Set persists an explicit choice and applies it
func (s *ThemeSetting) Set(theme domain.Theme) error {
	if !theme.Valid() {
		return fmt.Errorf("%w: unknown theme %q", domain.ErrInvalidRequest, theme)
	}
	if s.store != nil {
		if err := s.store.Set(ThemePreferenceKey, string(theme)); err != nil {
			return fmt.Errorf("failed to store theme: %w", err)
		}
	}

	s.mu.Lock()
	s.theme = theme
	s.explicit = true
	s.mu.Unlock()

	s.apply(theme)
	return nil
}

// Toggle flips between light and dark
func (s *ThemeSetting) Toggle() (domain.Theme, error) {
	next := s.Current().Opposite()
	if err := s.Set(next); err != nil {
		return s.Current(), err
	}
	return next, nil
}

// OnChange registers an applier, called with every applied theme
func (s *ThemeSetting) OnChange(fn func(domain.Theme)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextApplier
	s.nextApplier++
	s.appliers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.appliers, id)
		s.mu.Unlock()
	}
}

// Close stops following OS changes
func (s *ThemeSetting) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *ThemeSetting) onSystemChange(theme domain.Theme) {
	if !theme.Valid() {
		return
	}
	s.mu.Lock()
	if s.explicit || s.theme == theme {
		s.mu.Unlock()
		return
	}
	s.theme = theme
	s.mu.Unlock()

	s.logger.Debug("following system theme", zap.String("theme", string(theme)))
	s.apply(theme)
}

func (s *ThemeSetting) apply(theme domain.Theme) {
	s.mu.Lock()
	appliers := make([]func(domain.Theme), 0, len(s.appliers))
	for _, fn := range s.appliers {
		appliers = append(appliers, fn)
	}
	s.mu.Unlock()

	for _, fn := range appliers {
		fn(theme)
	}
}

// SystemColorScheme is an in-process ColorSchemeSource. Front ends report
// OS-level scheme changes to it.
type SystemColorScheme struct {
	mu        sync.Mutex
	theme     domain.Theme
	nextID    int
	listeners map[int]func(domain.Theme)
}

// NewSystemColorScheme creates a source starting at initial
func NewSystemColorScheme(initial domain.Theme) *SystemColorScheme {
	if !initial.Valid() {
		initial = domain.ThemeLight
	}
	return &SystemColorScheme{theme: initial, listeners: make(map[int]func(domain.Theme))}
}

// Current implements ColorSchemeSource
func (c *SystemColorScheme) Current() domain.Theme {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.theme
}

// Subscribe implements ColorSchemeSource
func (c *SystemColorScheme) Subscribe(fn func(domain.Theme)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Set records a new OS scheme and notifies subscribers
func (c *SystemColorScheme) Set(theme domain.Theme) error {
	if !theme.Valid() {
		return fmt.Errorf("%w: unknown theme %q", domain.ErrInvalidRequest, theme)
	}
	c.mu.Lock()
	c.theme = theme
	listeners := make([]func(domain.Theme), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(theme)
	}
	return nil
}

// Subscribers returns the number of active subscriptions
func (c *SystemColorScheme) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}
