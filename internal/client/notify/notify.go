// Package notify carries user-visible notices (the web client's toasts).
package notify

import "sync"

type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Warning Level = "warning"
	Error   Level = "error"
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(level Level, message string)
}

type Func func(level Level, message string)

func (f Func) Notify(level Level, message string) { f(level, message) }

// Nop discards notices.
var Nop Notifier = Func(func(Level, string) {})

// Notice is one recorded notification.
type Notice struct {
	Level   Level
	Message string
}

// Recorder collects notices for tests.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	r.notices = append(r.notices, Notice{Level: level, Message: message})
	r.mu.Unlock()
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}
