package view

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mri-lab/mri-console/internal/client/chat"
	"github.com/mri-lab/mri-console/internal/client/monitor"
	"github.com/mri-lab/mri-console/internal/client/nav"
	"github.com/mri-lab/mri-console/internal/client/notify"
	"github.com/mri-lab/mri-console/internal/model/job"
)

// Console is the terminal front end. It is the View for the monitor and the
// chat manager, the Notifier for the request pipeline and the Navigator for
// redirects.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	md       *Markdown
	notifier *ColorNotifier
	now      func() time.Time
	width    int

	page       string
	onNavigate func(path string)
	actions    monitor.Actions
}

var (
	_ monitor.View    = (*Console)(nil)
	_ chat.View       = (*Console)(nil)
	_ notify.Notifier = (*Console)(nil)
	_ nav.Navigator   = (*Console)(nil)
)

type ConsoleOptions struct {
	Width int
	// OnNavigate runs after each redirect, outside the console lock.
	OnNavigate func(path string)
	Now        func() time.Time
}

func NewConsole(out io.Writer, opts ConsoleOptions) *Console {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Console{
		out:        out,
		md:         NewMarkdown(opts.Width),
		notifier:   NewColorNotifier(out),
		now:        opts.Now,
		width:      opts.Width,
		onNavigate: opts.OnNavigate,
	}
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

// Print writes a pre-rendered block.
func (c *Console) Print(s string) { c.println(s) }

// PrintMarkdown renders text as markdown.
func (c *Console) PrintMarkdown(text string) {
	c.mu.Lock()
	md := c.md
	c.mu.Unlock()
	c.println(md.Render(text))
}

// ApplyPrefs rebuilds the markdown renderer for a theme and font size.
// Larger fonts wrap earlier.
func (c *Console) ApplyPrefs(theme string, fontSize int) {
	width := c.width
	if fontSize > 0 {
		width = c.width * 16 / fontSize
	}
	md := NewMarkdownStyle(width, theme)
	c.mu.Lock()
	c.md = md
	c.mu.Unlock()
}

// Notify implements notify.Notifier.
func (c *Console) Notify(level notify.Level, message string) {
	c.notifier.Notify(level, message)
}

// Navigate implements nav.Navigator.
func (c *Console) Navigate(path string) {
	c.mu.Lock()
	c.page = path
	hook := c.onNavigate
	fmt.Fprintln(c.out, dimStyle.Render("→ "+path))
	c.mu.Unlock()
	if hook != nil {
		hook(path)
	}
}

// Page returns the last navigated path.
func (c *Console) Page() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// monitor.View

func (c *Console) SetStatus(status job.Status) {
	c.println(field("状态", StatusBadge(string(status))))
}

func (c *Console) SetProgress(percent float64, color monitor.Color) {
	c.println(field("进度", ProgressBar(percent, color, 30)))
}

func (c *Console) SetMetric(epoch, totalEpochs int, loss *float64) {
	l := "-"
	if loss != nil {
		l = fmt.Sprintf("%.6f", *loss)
	}
	c.println(field("轮次", fmt.Sprintf("%d/%d  loss %s", epoch, totalEpochs, l)))
}

func (c *Console) AppendLogs(lines []string) {
	for _, line := range lines {
		c.println(dimStyle.Render("  │ ") + line)
	}
}

func (c *Console) SetSeries(points []float64) {
	if len(points) > 0 {
		c.println(field("损失曲线", LossChart(points, c.width/2)))
	}
}

func (c *Console) SetActions(a monitor.Actions) {
	c.mu.Lock()
	c.actions = a
	c.mu.Unlock()

	var enabled []string
	if a.Stop {
		enabled = append(enabled, "/stop")
	}
	if a.Download {
		enabled = append(enabled, "/download")
	}
	if len(enabled) == 0 {
		return
	}
	c.println(dimStyle.Render("可用操作: " + strings.Join(enabled, " ")))
}

// Actions returns the job actions last enabled by the monitor.
func (c *Console) Actions() monitor.Actions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actions
}

func (c *Console) AppendError(message string) {
	c.println(dangerStyle.Render("✗ " + message))
}

// chat.View

func (c *Console) ClearTranscript() {
	c.println(dimStyle.Render(strings.Repeat("─", min(c.width, 80))))
}

func (c *Console) AppendTurn(t chat.Turn) {
	c.mu.Lock()
	md := c.md
	c.mu.Unlock()
	c.println(Turn(t, md, c.now()))
}

func (c *Console) SetThinking(on bool) {
	if on {
		c.println(dimStyle.Render("思考中..."))
	}
}

func (c *Console) RenderHistories(groups []chat.Group) {
	c.println(HistoryGroups(groups))
}
