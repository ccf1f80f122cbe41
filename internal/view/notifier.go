package view

import (
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/mri-lab/mri-console/internal/client/notify"
)

var levelColors = map[notify.Level]*color.Color{
	notify.Info:    color.New(color.FgCyan),
	notify.Success: color.New(color.FgGreen),
	notify.Warning: color.New(color.FgYellow, color.Bold),
	notify.Error:   color.New(color.FgRed, color.Bold),
}

var levelIcons = map[notify.Level]string{
	notify.Info:    "ℹ",
	notify.Success: "✓",
	notify.Warning: "!",
	notify.Error:   "✗",
}

// ColorNotifier prints notices as coloured lines.
type ColorNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func NewColorNotifier(out io.Writer) *ColorNotifier {
	return &ColorNotifier{out: out}
}

func (n *ColorNotifier) Notify(level notify.Level, message string) {
	c, ok := levelColors[level]
	if !ok {
		c = levelColors[notify.Info]
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	c.Fprintf(n.out, "%s %s\n", levelIcons[level], message)
}
