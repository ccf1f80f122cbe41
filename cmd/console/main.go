package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/mri-lab/mri-console/internal/client/api"
	"github.com/mri-lab/mri-console/internal/client/gate"
	"github.com/mri-lab/mri-console/internal/client/prefs"
	"github.com/mri-lab/mri-console/internal/client/session"
	"github.com/mri-lab/mri-console/internal/client/speech"
	"github.com/mri-lab/mri-console/internal/config"
	"github.com/mri-lab/mri-console/internal/console"
	"github.com/mri-lab/mri-console/internal/logger"
	"github.com/mri-lab/mri-console/internal/metrics"
	"github.com/mri-lab/mri-console/internal/storage"
	"github.com/mri-lab/mri-console/internal/view"
)

const prompt = "mri> "

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		exitf("failed to load configuration: %v", err)
	}

	// 控制台输出留给交互界面，日志写到 stderr
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		exitf("failed to build logger: %v", err)
	}
	defer log.Sync()

	if envErr != nil {
		log.Debug("no .env file, using system environment variables only", zap.Error(envErr))
	}

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		log.Fatal("failed to open client storage", zap.Error(err))
	}
	defer store.Close()

	sessions := session.NewService(store, log)

	var app *console.App
	con := view.NewConsole(os.Stdout, view.ConsoleOptions{
		OnNavigate: func(path string) {
			if app != nil {
				app.OnNavigate(path)
			}
		},
	})

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	client := api.New(api.Options{
		BaseURL:     cfg.Client.BaseURL,
		Timeout:     cfg.Client.HTTPTimeout,
		Session:     sessions,
		Notifier:    con,
		Navigator:   con,
		ExpiryDelay: cfg.Client.ExpiryRedirectDelay,
		Metrics:     m,
		Logger:      log,
	})

	var player *speech.Player
	if cfg.Speech.Player != "" {
		player = speech.NewPlayer(client, speech.ExecSink{Command: cfg.Speech.Player}, log)
	}

	stdin := bufio.NewReader(os.Stdin)
	app = console.New(console.Options{
		Config:   cfg.Client,
		Client:   client,
		Sessions: sessions,
		Gate: gate.New(sessions, con, gate.Options{
			ProtectedPaths: cfg.Gate.ProtectedPaths,
			AdminPaths:     cfg.Gate.AdminPaths,
			Logger:         log,
		}),
		View:         con,
		Prefs:        prefs.NewService(store),
		Player:       player,
		Metrics:      m,
		Logger:       log,
		ReadPassword: passwordReader(stdin),
	})
	defer app.Close()

	fmt.Printf("MRI 控制台 · %s · 输入 /help 查看命令\n", cfg.Client.BaseURL)
	app.Start(ctx)

	if err := repl(ctx, app, stdin); err != nil {
		log.Error("console stopped", zap.Error(err))
	}
}

type readResult struct {
	line string
	err  error
}

// repl reads one line per prompt so commands can read stdin themselves.
func repl(ctx context.Context, app *console.App, in *bufio.Reader) error {
	next := make(chan struct{})
	results := make(chan readResult)
	go func() {
		for range next {
			line, err := in.ReadString('\n')
			results <- readResult{line, err}
		}
	}()
	defer close(next)

	for {
		fmt.Print(prompt)
		next <- struct{}{}

		var r readResult
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case r = <-results:
		}
		if r.err != nil {
			if errors.Is(r.err, io.EOF) {
				fmt.Println()
				return nil
			}
			return r.err
		}

		err := app.Execute(ctx, r.line)
		switch {
		case errors.Is(err, console.ErrQuit):
			return nil
		case err != nil:
			fmt.Fprintln(os.Stderr, "✗", err)
		}
	}
}

// passwordReader 终端下不回显密码，管道输入时按行读取。
func passwordReader(in *bufio.Reader) func(string) (string, error) {
	return func(p string) (string, error) {
		fmt.Print(p)
		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			b, err := term.ReadPassword(fd)
			fmt.Println()
			return string(b), err
		}
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
