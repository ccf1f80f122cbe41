package prefs

import (
	"testing"

	"github.com/mri-lab/mri-console/internal/storage"
)

func TestToggleTheme(t *testing.T) {
	s := NewService(storage.NewMemoryStore())
	if s.Theme() != ThemeLight {
		t.Fatalf("expected light by default, got %s", s.Theme())
	}
	if th, _ := s.ToggleTheme(); th != ThemeDark {
		t.Fatalf("expected dark, got %s", th)
	}
	if th, _ := s.ToggleTheme(); th != ThemeLight || s.Theme() != ThemeLight {
		t.Fatalf("expected light again, got %s", th)
	}
}

func TestFontSizeClamped(t *testing.T) {
	store := storage.NewMemoryStore()
	s := NewService(store)
	if s.FontSize() != DefaultFontSize {
		t.Fatalf("expected default %d, got %d", DefaultFontSize, s.FontSize())
	}

	for i := 0; i < 10; i++ {
		s.IncreaseFont()
	}
	if s.FontSize() != MaxFontSize {
		t.Fatalf("expected max %d, got %d", MaxFontSize, s.FontSize())
	}
	for i := 0; i < 10; i++ {
		s.DecreaseFont()
	}
	if s.FontSize() != MinFontSize {
		t.Fatalf("expected min %d, got %d", MinFontSize, s.FontSize())
	}

	store.Set(KeyFontSize, "not-a-number")
	if s.FontSize() != DefaultFontSize {
		t.Fatalf("expected default for garbage, got %d", s.FontSize())
	}
	s.IncreaseFont()
	s.ResetFont()
	if s.FontSize() != DefaultFontSize {
		t.Fatalf("expected default after reset, got %d", s.FontSize())
	}
}

func TestHighContrast(t *testing.T) {
	s := NewService(storage.NewMemoryStore())
	if s.HighContrast() {
		t.Fatal("expected off by default")
	}
	s.SetHighContrast(true)
	if !s.HighContrast() {
		t.Fatal("expected on")
	}
}
