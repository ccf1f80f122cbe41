package console

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mri-lab/mri-console/internal/client/api"
	"github.com/mri-lab/mri-console/internal/client/channel"
	"github.com/mri-lab/mri-console/internal/client/gate"
	"github.com/mri-lab/mri-console/internal/client/nav"
	"github.com/mri-lab/mri-console/internal/client/prefs"
	"github.com/mri-lab/mri-console/internal/client/session"
	"github.com/mri-lab/mri-console/internal/config"
	"github.com/mri-lab/mri-console/internal/handler"
	authService "github.com/mri-lab/mri-console/internal/service/auth"
	analysisService "github.com/mri-lab/mri-console/internal/service/analysis"
	chatService "github.com/mri-lab/mri-console/internal/service/chat"
	reconService "github.com/mri-lab/mri-console/internal/service/reconstruction"
	trainingService "github.com/mri-lab/mri-console/internal/service/training"
	"github.com/mri-lab/mri-console/internal/storage"
	"github.com/mri-lab/mri-console/internal/view"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	app      *App
	out      *syncBuffer
	console  *view.Console
	sessions *session.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	auth, err := authService.NewService(authService.Config{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	srv := httptest.NewServer(handler.NewRouter(handler.Services{
		Auth:           auth,
		Chat:           chatService.NewService(nil),
		Reconstruction: reconService.NewService(),
		Analysis:       analysisService.NewService(),
		Training:       trainingService.NewSimulator(),
	}))
	t.Cleanup(srv.Close)

	store := storage.NewMemoryStore()
	sessions := session.NewService(store, nil)
	out := &syncBuffer{}

	f := &fixture{out: out, sessions: sessions}
	f.console = view.NewConsole(out, view.ConsoleOptions{OnNavigate: func(p string) {
		if f.app != nil {
			f.app.OnNavigate(p)
		}
	}})

	client := api.New(api.Options{
		BaseURL:   srv.URL,
		Timeout:   5 * time.Second,
		Session:   sessions,
		Notifier:  f.console,
		Navigator: f.console,
	})
	f.app = New(Options{
		Config: config.ClientConfig{
			BaseURL:           srv.URL,
			WSURL:             config.DeriveWSURL(srv.URL),
			ReconnectDelay:    50 * time.Millisecond,
			HeartbeatInterval: time.Second,
			PollInterval:      10 * time.Millisecond,
			TrainingAPI:       config.TrainingOnline,
		},
		Client:   client,
		Sessions: sessions,
		Gate:     gate.New(sessions, f.console, gate.Options{}),
		View:     f.console,
		Prefs:    prefs.NewService(store),
		ReadPassword: func(string) (string, error) {
			return "doctor123", nil
		},
	})
	t.Cleanup(f.app.Close)
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	if err := f.app.Execute(context.Background(), "/login doctor"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !f.sessions.IsAuthenticated() {
		t.Fatal("expected a stored session after login")
	}
}

func TestStartWithoutSessionRedirectsToLogin(t *testing.T) {
	f := newFixture(t)
	f.app.Start(context.Background())

	if f.console.Page() != nav.PathLogin {
		t.Fatalf("expected redirect to %s, got %q", nav.PathLogin, f.console.Page())
	}
	if err := f.app.Execute(context.Background(), "/models"); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}
	if err := f.app.Execute(context.Background(), "你好"); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired for a question, got %v", err)
	}
}

func TestLoginThenListModels(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	if f.console.Page() != nav.PathDashboard {
		t.Fatalf("expected dashboard after login, got %q", f.console.Page())
	}
	if err := f.app.Execute(context.Background(), "/models"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(f.out.String(), "U-Net") {
		t.Fatalf("expected model list in output, got %q", f.out.String())
	}
}

func TestWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.app.opts.ReadPassword = func(string) (string, error) { return "nope", nil }

	if err := f.app.Execute(context.Background(), "/login doctor"); err == nil {
		t.Fatal("expected login error")
	}
	if f.sessions.IsAuthenticated() {
		t.Fatal("expected no session after failed login")
	}
}

func TestQuestionReachesAssistant(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	if err := f.app.Execute(context.Background(), "头痛应该怎么办"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.app.transcript.lastAnswer() == "" {
		t.Fatal("expected an assistant answer")
	}
	if f.app.chat.ActiveID() == "" {
		t.Fatal("expected the new history to become active")
	}

	if err := f.app.Execute(context.Background(), "/chats"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prefix := f.app.chat.ActiveID()[:4]
	if err := f.app.Execute(context.Background(), "/delete "+prefix); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.app.chat.Histories()) != 0 {
		t.Fatalf("expected no histories after delete, got %d", len(f.app.chat.Histories()))
	}
}

func TestTrainAndDownload(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	if err := f.app.Execute(ctx, "/train unet 2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.app.monitor.Wait(); err != nil {
		t.Fatalf("unexpected monitor error: %v", err)
	}

	dir := t.TempDir()
	if err := f.app.Execute(ctx, "/download "+dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.pth"))
	if len(matches) != 1 {
		t.Fatalf("expected one model file, got %v", matches)
	}
	if info, err := os.Stat(matches[0]); err != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty model file, got %v %v", info, err)
	}
}

func TestCommandErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.app.Execute(ctx, "/nope"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if err := f.app.Execute(ctx, "/quit"); !errors.Is(err, ErrQuit) {
		t.Fatalf("expected ErrQuit, got %v", err)
	}

	f.login(t)
	err := f.app.Execute(ctx, "/model")
	if err == nil || !strings.Contains(err.Error(), "用法") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := f.app.Execute(ctx, "/history x"); err == nil {
		t.Fatal("expected error for invalid page")
	}
}

func TestLogoutStopsChannel(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	if err := f.app.Execute(context.Background(), "/logout"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.sessions.IsAuthenticated() {
		t.Fatal("expected session cleared")
	}
	if f.app.ChannelState() != channel.StateClosed {
		t.Fatalf("expected closed channel, got %s", f.app.ChannelState())
	}
}

func TestFontPrefs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.app.Execute(ctx, "/font +"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.app.opts.Prefs.FontSize(); got != prefs.DefaultFontSize+prefs.FontStep {
		t.Fatalf("expected %d, got %d", prefs.DefaultFontSize+prefs.FontStep, got)
	}
	if err := f.app.Execute(ctx, "/font big"); err == nil {
		t.Fatal("expected error for unknown font op")
	}
}
