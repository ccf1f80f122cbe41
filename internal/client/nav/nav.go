// Package nav abstracts page navigation so that components which "redirect
// to /login" can be driven by a terminal client or recorded in tests.
package nav

import (
	"sync"
	"time"
)

const (
	PathLogin     = "/login"
	PathDashboard = "/dashboard"
)

// Navigator moves the client to another page.
type Navigator interface {
	Navigate(path string)
}

// Func adapts a function to Navigator.
type Func func(path string)

func (f Func) Navigate(path string) { f(path) }

// After navigates once delay has elapsed. The returned timer may be stopped
// to cancel the redirect.
func After(n Navigator, delay time.Duration, path string) *time.Timer {
	return time.AfterFunc(delay, func() { n.Navigate(path) })
}

// Recorder remembers every navigation. The zero value is ready to use.
type Recorder struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func (r *Recorder) Navigate(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	ch := r.ch
	r.mu.Unlock()
	if ch != nil {
		select {
		case ch <- path:
		default:
		}
	}
}

// Paths returns a copy of all recorded paths.
func (r *Recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

// Last returns the latest path or "".
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) == 0 {
		return ""
	}
	return r.paths[len(r.paths)-1]
}

// Wait returns a channel receiving subsequent navigations.
func (r *Recorder) Wait() <-chan string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch == nil {
		r.ch = make(chan string, 16)
	}
	return r.ch
}
