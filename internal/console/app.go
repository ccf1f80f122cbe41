// Package console is the interactive terminal client. It wires the client
// components together and maps slash commands onto them.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/client/api"
	"github.com/mri-lab/mri-console/internal/client/channel"
	"github.com/mri-lab/mri-console/internal/client/chat"
	"github.com/mri-lab/mri-console/internal/client/gate"
	"github.com/mri-lab/mri-console/internal/client/monitor"
	"github.com/mri-lab/mri-console/internal/client/nav"
	"github.com/mri-lab/mri-console/internal/client/notify"
	"github.com/mri-lab/mri-console/internal/client/prefs"
	"github.com/mri-lab/mri-console/internal/client/session"
	"github.com/mri-lab/mri-console/internal/client/speech"
	"github.com/mri-lab/mri-console/internal/config"
	"github.com/mri-lab/mri-console/internal/logger"
	"github.com/mri-lab/mri-console/internal/metrics"
	"github.com/mri-lab/mri-console/internal/view"
)

var (
	ErrQuit           = errors.New("quit")
	ErrLoginRequired  = errors.New("请先登录")
	ErrForbidden      = errors.New("需要管理员权限")
	ErrUnknownCommand = errors.New("未知命令，输入 /help 查看帮助")
)

// 控制台页面路径，与网页端保持一致。
const (
	PageDashboard      = nav.PathDashboard
	PageReconstruction = "/reconstruction"
	PageTraining       = "/reconstruction/training"
	PageMedicalQA      = "/medical-qa"
)

// Options wires an App. Client, Sessions, Gate and View are required.
type Options struct {
	Config   config.ClientConfig
	Client   *api.Client
	Sessions *session.Service
	Gate     *gate.Gate
	View     *view.Console
	Prefs    *prefs.Service
	Player   *speech.Player
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	// ReadPassword prompts for a secret without echo.
	ReadPassword func(prompt string) (string, error)
}

// App 控制台客户端。
type App struct {
	opts       Options
	logger     *zap.Logger
	monitor    *monitor.Monitor
	chat       *chat.Manager
	transcript *transcript
	commands   map[string]command

	mu            sync.Mutex
	channel       *channel.Client
	channelCancel context.CancelFunc
}

func New(opts Options) *App {
	log := logger.OrNop(opts.Logger)
	a := &App{
		opts:       opts,
		logger:     log.Named("console"),
		transcript: &transcript{View: opts.View},
	}

	source := monitor.OnlineTrainingSource(opts.Client)
	if opts.Config.TrainingAPI == config.TrainingLegacy {
		source = monitor.LegacyTrainingSource(opts.Client)
	}
	a.monitor = monitor.New(monitor.Options{
		Source:   source,
		View:     opts.View,
		Controls: opts.Client,
		Interval: opts.Config.PollInterval,
		Metrics:  opts.Metrics,
		Logger:   log,
	})
	a.chat = chat.NewManager(chat.Options{
		API:    opts.Client,
		View:   a.transcript,
		Logger: log,
	})
	a.commands = a.commandTable()
	return a
}

// Start runs the page-load gate for the dashboard and, with a session,
// opens the realtime channel.
func (a *App) Start(ctx context.Context) {
	a.applyPrefs()
	if a.opts.Gate.Init(PageDashboard) != gate.DecisionAllow {
		a.opts.View.Notify(notify.Info, "请使用 /login <用户名> 登录")
		return
	}
	sess, _ := a.opts.Sessions.Get()
	a.opts.View.Notify(notify.Info, fmt.Sprintf("欢迎回来，%s", sess.Username))
	a.connectChannel(ctx)
}

// OnNavigate reacts to redirects raised anywhere in the client.
func (a *App) OnNavigate(path string) {
	if path != nav.PathLogin {
		return
	}
	a.monitor.Stop()
	a.disconnectChannel()
	if a.opts.Player != nil {
		a.opts.Player.Stop()
	}
}

// Execute runs one input line. Text not starting with "/" is a question
// for the assistant.
func (a *App) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		if err := a.enter(PageMedicalQA); err != nil {
			return err
		}
		return a.chat.SendMessage(ctx, line)
	}

	fields := strings.Fields(line)
	cmd, ok := a.commands[strings.ToLower(fields[0])]
	if !ok {
		return ErrUnknownCommand
	}
	if cmd.page != "" {
		if err := a.enter(cmd.page); err != nil {
			return err
		}
	}
	if len(fields)-1 < cmd.minArgs {
		return fmt.Errorf("用法: %s", cmd.usage)
	}
	return cmd.run(ctx, fields[1:])
}

// enter applies the gate rules to a page change.
func (a *App) enter(page string) error {
	g := a.opts.Gate
	if g.IsProtected(page) && !a.opts.Sessions.IsAuthenticated() {
		a.opts.View.Navigate(nav.PathLogin)
		return ErrLoginRequired
	}
	if g.IsAdminPath(page) && !a.opts.Sessions.IsAdmin() {
		a.opts.View.Navigate(nav.PathDashboard)
		return ErrForbidden
	}
	return nil
}

// Close stops background work.
func (a *App) Close() {
	a.monitor.Stop()
	a.disconnectChannel()
	if a.opts.Player != nil {
		a.opts.Player.Stop()
	}
}

func (a *App) connectChannel(ctx context.Context) {
	a.disconnectChannel()

	cctx, cancel := context.WithCancel(ctx)
	c := channel.New(channel.Options{
		URL:               a.opts.Config.WSURL,
		Session:           a.opts.Sessions,
		Navigator:         a.opts.View,
		Handlers:          a.channelHandlers(cctx),
		ReconnectDelay:    a.opts.Config.ReconnectDelay,
		HeartbeatInterval: a.opts.Config.HeartbeatInterval,
		Metrics:           a.opts.Metrics,
		Logger:            a.opts.Logger,
	})

	a.mu.Lock()
	a.channel = c
	a.channelCancel = cancel
	a.mu.Unlock()

	go func() {
		if err := c.Run(cctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Debug("channel stopped", zap.Error(err))
		}
	}()
}

func (a *App) disconnectChannel() {
	a.mu.Lock()
	c, cancel := a.channel, a.channelCancel
	a.channel, a.channelCancel = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		c.Close()
	}
}

// ChannelState reports the realtime channel state.
func (a *App) ChannelState() channel.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.channel == nil {
		return channel.StateClosed
	}
	return a.channel.State()
}

func (a *App) channelHandlers(ctx context.Context) channel.Handlers {
	v := a.opts.View
	return channel.Handlers{
		OnConnected: func(channel.Message) {
			v.Notify(notify.Info, "实时通道已连接")
		},
		OnProgress: func(p channel.ProgressUpdate) {
			v.Print(view.TaskProgress(p.TaskID, p.Progress, p.Status, p.Message))
		},
		OnModelLoaded: func(m channel.ModelLoaded) {
			if m.Success {
				v.Notify(notify.Success, fmt.Sprintf("模型 %s 加载成功", m.ModelID))
				return
			}
			v.Notify(notify.Error, fmt.Sprintf("模型 %s 加载失败: %s", m.ModelID, m.Message))
		},
		OnReconstructionComplete: func(rc channel.ReconstructionComplete) {
			go a.showResult(ctx, rc.ResultID)
		},
		OnError: func(message string) {
			v.Notify(notify.Error, "服务器错误: "+message)
		},
		OnStateChange: func(s channel.State) {
			a.logger.Debug("channel state", zap.Stringer("state", s))
		},
	}
}

func (a *App) showResult(ctx context.Context, resultID string) {
	result, err := a.opts.Client.Result(ctx, resultID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			a.opts.View.Notify(notify.Error, "获取重建结果失败: "+err.Error())
		}
		return
	}
	a.opts.View.Print(view.ReconstructionResult(result))
}

func (a *App) applyPrefs() {
	if a.opts.Prefs == nil {
		return
	}
	a.opts.View.ApplyPrefs(string(a.opts.Prefs.Theme()), a.opts.Prefs.FontSize())
}

// transcript remembers the last assistant answer for /speak.
type transcript struct {
	chat.View
	mu   sync.Mutex
	last string
}

func (t *transcript) AppendTurn(turn chat.Turn) {
	if turn.Kind == chat.TurnAssistant {
		t.mu.Lock()
		t.last = turn.Text
		t.mu.Unlock()
	}
	t.View.AppendTurn(turn)
}

func (t *transcript) ClearTranscript() {
	t.mu.Lock()
	t.last = ""
	t.mu.Unlock()
	t.View.ClearTranscript()
}

func (t *transcript) lastAnswer() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
