package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mri-lab/mri-console/internal/client/api"
	"github.com/mri-lab/mri-console/internal/client/channel"
	"github.com/mri-lab/mri-console/internal/client/session"
	"github.com/mri-lab/mri-console/internal/config"
	"github.com/mri-lab/mri-console/internal/storage"
	"github.com/mri-lab/mri-console/internal/view"
)

// logNavigator 只记录跳转，不做页面切换。
type logNavigator struct{}

func (logNavigator) Navigate(path string) {
	log.Printf("[NAV] 跳转到 %s", path)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: tts 或 channel")
	user := flag.String("user", "doctor", "登录用户名")
	password := flag.String("password", os.Getenv("PROBE_PASSWORD"), "登录密码 (默认读取 PROBE_PASSWORD)")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认自动生成)")
	duration := flag.Duration("duration", 30*time.Second, "channel 模式的监听时长")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *mode != "tts" && *mode != "channel" {
		flag.Usage()
		log.Fatal("请通过 -mode=tts 或 -mode=channel 指定测试模式")
	}

	sessions := session.NewService(storage.NewMemoryStore(), nil)
	client := api.New(api.Options{
		BaseURL:   cfg.Client.BaseURL,
		Timeout:   cfg.Client.HTTPTimeout,
		Session:   sessions,
		Notifier:  view.NewColorNotifier(os.Stderr),
		Navigator: logNavigator{},
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sess, err := client.Login(ctx, *user, *password)
	if err != nil {
		log.Fatalf("登录失败: %v", err)
	}
	if err := sessions.Set(sess); err != nil {
		log.Fatalf("保存会话失败: %v", err)
	}
	log.Printf("登录成功: user=%s role=%s", sess.Username, sess.Role)

	switch *mode {
	case "tts":
		runTTS(ctx, client, *text, *outputPath)
	case "channel":
		runChannel(cfg.Client, sessions, *duration)
	}
}

func runTTS(ctx context.Context, client *api.Client, text, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.mp3", time.Now().Unix())
	}

	log.Printf("开始进行 TTS 测试: %d 字", len([]rune(text)))

	audio, err := client.TextToSpeech(ctx, text)
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	if err := os.WriteFile(outputPath, audio, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("TTS 合成成功: 输出文件 %s, 大小=%d 字节", outputPath, len(audio))
}

func runChannel(cfg config.ClientConfig, sessions *session.Service, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	c := channel.New(channel.Options{
		URL:               cfg.WSURL,
		Session:           sessions,
		Navigator:         logNavigator{},
		ReconnectDelay:    cfg.ReconnectDelay,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Handlers: channel.Handlers{
			OnConnected: func(m channel.Message) {
				log.Printf("[WS] 已连接: client=%s", m.ClientID)
			},
			OnProgress: func(p channel.ProgressUpdate) {
				log.Printf("[WS] 进度: task=%s %.0f%% %s %s", p.TaskID, p.Progress, p.Status, p.Message)
			},
			OnModelLoaded: func(m channel.ModelLoaded) {
				log.Printf("[WS] 模型加载: model=%s success=%t %s", m.ModelID, m.Success, m.Message)
			},
			OnReconstructionComplete: func(rc channel.ReconstructionComplete) {
				log.Printf("[WS] 重建完成: result=%s", rc.ResultID)
			},
			OnError: func(message string) {
				log.Printf("[WS] 错误: %s", message)
			},
			OnStateChange: func(s channel.State) {
				log.Printf("[WS] 状态: %s", s)
			},
		},
	})
	defer c.Close()

	log.Printf("开始监听实时通道 %s，持续 %s", cfg.WSURL, d)
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("实时通道异常退出: %v", err)
	}
	log.Print("监听结束")
}
