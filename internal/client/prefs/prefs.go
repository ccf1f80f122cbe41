// Package prefs persists display preferences next to the session.
package prefs

import (
	"fmt"
	"strconv"

	"github.com/mri-lab/mri-console/internal/storage"
)

const (
	KeyTheme        = "theme"
	KeyFontSize     = "fontSize"
	KeyHighContrast = "highContrast"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// 字体大小范围与步长。
const (
	DefaultFontSize = 16
	MinFontSize     = 14
	MaxFontSize     = 24
	FontStep        = 2
)

type Service struct {
	store storage.Store
}

func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

func (s *Service) Theme() Theme {
	v, ok, err := s.store.Get(KeyTheme)
	if err != nil || !ok || Theme(v) != ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// ToggleTheme switches between light and dark and returns the new theme.
func (s *Service) ToggleTheme() (Theme, error) {
	next := ThemeDark
	if s.Theme() == ThemeDark {
		next = ThemeLight
	}
	if err := s.store.Set(KeyTheme, string(next)); err != nil {
		return s.Theme(), fmt.Errorf("save theme: %w", err)
	}
	return next, nil
}

func (s *Service) FontSize() int {
	v, ok, err := s.store.Get(KeyFontSize)
	if err != nil || !ok {
		return DefaultFontSize
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return DefaultFontSize
	}
	return clamp(n)
}

func (s *Service) IncreaseFont() (int, error) { return s.setFont(s.FontSize() + FontStep) }

func (s *Service) DecreaseFont() (int, error) { return s.setFont(s.FontSize() - FontStep) }

// ResetFont forgets the stored size.
func (s *Service) ResetFont() error {
	return s.store.Delete(KeyFontSize)
}

func (s *Service) setFont(n int) (int, error) {
	n = clamp(n)
	if err := s.store.Set(KeyFontSize, strconv.Itoa(n)); err != nil {
		return s.FontSize(), fmt.Errorf("save font size: %w", err)
	}
	return n, nil
}

func clamp(n int) int {
	switch {
	case n < MinFontSize:
		return MinFontSize
	case n > MaxFontSize:
		return MaxFontSize
	default:
		return n
	}
}

func (s *Service) HighContrast() bool {
	v, ok, err := s.store.Get(KeyHighContrast)
	return err == nil && ok && v == "true"
}

func (s *Service) SetHighContrast(on bool) error {
	return s.store.Set(KeyHighContrast, strconv.FormatBool(on))
}
