package console

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mri-lab/mri-console/internal/client/api"
	"github.com/mri-lab/mri-console/internal/client/nav"
	"github.com/mri-lab/mri-console/internal/client/notify"
	"github.com/mri-lab/mri-console/internal/config"
	"github.com/mri-lab/mri-console/internal/model/job"
	"github.com/mri-lab/mri-console/internal/model/reconstruction"
	"github.com/mri-lab/mri-console/internal/model/session"
	"github.com/mri-lab/mri-console/internal/view"
)

type command struct {
	usage   string
	help    string
	page    string
	minArgs int
	run     func(ctx context.Context, args []string) error
}

func (a *App) commandTable() map[string]command {
	return map[string]command{
		"/help":     {usage: "/help", help: "显示帮助", run: a.cmdHelp},
		"/quit":     {usage: "/quit", help: "退出", run: func(context.Context, []string) error { return ErrQuit }},
		"/login":    {usage: "/login <用户名>", help: "登录", minArgs: 1, run: a.cmdLogin},
		"/register": {usage: "/register <用户名> <邮箱> [admin <管理员密钥>]", help: "注册账户", minArgs: 2, run: a.cmdRegister},
		"/logout":   {usage: "/logout", help: "退出登录", run: a.cmdLogout},
		"/whoami":   {usage: "/whoami", help: "当前用户", run: a.cmdWhoami},

		"/dashboard": {usage: "/dashboard", help: "数据看板", page: PageDashboard, run: a.cmdDashboard},
		"/recent":    {usage: "/recent <重建ID>", help: "查看最近重建详情", page: PageDashboard, minArgs: 1, run: a.cmdRecent},

		"/models":       {usage: "/models", help: "列出重建模型", page: PageReconstruction, run: a.cmdModels},
		"/model":        {usage: "/model <模型ID>", help: "模型详情", page: PageReconstruction, minArgs: 1, run: a.cmdModel},
		"/reconstruct":  {usage: "/reconstruct <文件> <模型ID> [输出PNG]", help: "上传并重建", page: PageReconstruction, minArgs: 2, run: a.cmdReconstruct},
		"/result":       {usage: "/result <结果ID>", help: "查看重建结果", page: PageReconstruction, minArgs: 1, run: a.cmdResult},
		"/history":      {usage: "/history [页码] [每页条数]", help: "重建历史", page: PageReconstruction, run: a.cmdHistory},
		"/analyze":      {usage: "/analyze <任务ID>", help: "分析重建任务", page: PageReconstruction, minArgs: 1, run: a.cmdAnalyze},
		"/analyze-file": {usage: "/analyze-file <文件>", help: "上传图像直接分析", page: PageReconstruction, minArgs: 1, run: a.cmdAnalyzeFile},
		"/analysis":     {usage: "/analysis <任务ID>", help: "查看分析结果", page: PageReconstruction, minArgs: 1, run: a.cmdAnalysis},
		"/report":       {usage: "/report <任务ID> [输出文件]", help: "导出分析报告", page: PageReconstruction, minArgs: 1, run: a.cmdReport},

		"/train":    {usage: "/train <模型名> [轮数] [批大小] [学习率]", help: "开始训练并监控", page: PageTraining, minArgs: 1, run: a.cmdTrain},
		"/watch":    {usage: "/watch <任务ID>", help: "监控已有训练任务", page: PageTraining, minArgs: 1, run: a.cmdWatch},
		"/stop":     {usage: "/stop", help: "停止当前训练", page: PageTraining, run: a.cmdStop},
		"/download": {usage: "/download [目录]", help: "下载训练好的模型", page: PageTraining, run: a.cmdDownload},

		"/new":    {usage: "/new", help: "新建会话", page: PageMedicalQA, run: a.cmdNewChat},
		"/chats":  {usage: "/chats", help: "会话历史", page: PageMedicalQA, run: a.cmdChats},
		"/open":   {usage: "/open <会话ID前缀>", help: "打开会话", page: PageMedicalQA, minArgs: 1, run: a.cmdOpen},
		"/delete": {usage: "/delete <会话ID前缀>", help: "删除会话", page: PageMedicalQA, minArgs: 1, run: a.cmdDelete},
		"/clear":  {usage: "/clear", help: "清空所有会话", page: PageMedicalQA, run: a.cmdClear},
		"/search": {usage: "/search [关键词]", help: "筛选会话历史", page: PageMedicalQA, run: a.cmdSearch},
		"/retry":  {usage: "/retry", help: "重试上一个问题", page: PageMedicalQA, run: a.cmdRetry},
		"/speak":  {usage: "/speak", help: "朗读最后一条回答", page: PageMedicalQA, run: a.cmdSpeak},
		"/mute":   {usage: "/mute", help: "停止朗读", run: a.cmdMute},

		"/theme":    {usage: "/theme", help: "切换明暗主题", run: a.cmdTheme},
		"/font":     {usage: "/font <+|-|reset>", help: "调整字体大小", minArgs: 1, run: a.cmdFont},
		"/contrast": {usage: "/contrast <on|off>", help: "高对比度", minArgs: 1, run: a.cmdContrast},
	}
}

func (a *App) cmdHelp(context.Context, []string) error {
	names := make([]string, 0, len(a.commands))
	for name := range a.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		c := a.commands[name]
		fmt.Fprintf(&b, "  %-44s %s\n", c.usage, c.help)
	}
	b.WriteString("  直接输入文字即可向AI医疗助手提问")
	a.opts.View.Print(b.String())
	return nil
}

// Account

func (a *App) readPassword(prompt string) (string, error) {
	if a.opts.ReadPassword == nil {
		return "", errors.New("password input unavailable")
	}
	return a.opts.ReadPassword(prompt)
}

func (a *App) cmdLogin(ctx context.Context, args []string) error {
	password, err := a.readPassword("密码: ")
	if err != nil {
		return err
	}

	sess, err := a.opts.Client.Login(ctx, args[0], password)
	if err != nil {
		if api.IsStatus(err, http.StatusUnauthorized) {
			return errors.New("用户名或密码错误")
		}
		return fmt.Errorf("登录失败: %w", err)
	}
	if err := a.opts.Sessions.Set(sess); err != nil {
		return fmt.Errorf("保存会话失败: %w", err)
	}

	a.opts.View.Notify(notify.Success, fmt.Sprintf("登录成功，欢迎 %s", sess.Username))
	a.opts.View.Navigate(nav.PathDashboard)
	a.connectChannel(ctx)
	return nil
}

func (a *App) cmdRegister(ctx context.Context, args []string) error {
	in := api.RegisterRequest{Username: args[0], Email: args[1], Role: session.RoleUser}
	if len(args) > 2 && args[2] == string(session.RoleAdmin) {
		in.Role = session.RoleAdmin
		if len(args) < 4 {
			return errors.New("注册管理员需要提供管理员密钥")
		}
		in.AdminKey = args[3]
	}

	password, err := a.readPassword("密码: ")
	if err != nil {
		return err
	}
	confirm, err := a.readPassword("确认密码: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("两次输入的密码不一致")
	}
	in.Password = password

	if err := a.opts.Client.Register(ctx, in); err != nil {
		return fmt.Errorf("注册失败: %w", err)
	}
	role := "普通用户"
	if in.Role == session.RoleAdmin {
		role = "管理员"
	}
	a.opts.View.Notify(notify.Success, fmt.Sprintf("注册成功！角色: %s", role))
	return nil
}

func (a *App) cmdLogout(context.Context, []string) error {
	return a.opts.Gate.Logout()
}

func (a *App) cmdWhoami(context.Context, []string) error {
	sess, ok := a.opts.Sessions.Get()
	if !ok {
		a.opts.View.Print("未登录")
		return nil
	}
	a.opts.View.Print(fmt.Sprintf("%s (%s) · 实时通道: %s", sess.Username, sess.Role, a.ChannelState()))
	return nil
}

// Dashboard

func (a *App) cmdDashboard(ctx context.Context, _ []string) error {
	stats, err := a.opts.Client.Stats(ctx)
	if err != nil {
		return fmt.Errorf("加载统计数据失败: %w", err)
	}
	recon, err := a.opts.Client.RecentReconstructions(ctx)
	if err != nil {
		return fmt.Errorf("加载最近重建失败: %w", err)
	}
	qa, err := a.opts.Client.RecentQA(ctx)
	if err != nil {
		return fmt.Errorf("加载最近问答失败: %w", err)
	}

	a.opts.View.Print(view.DashboardStats(stats))
	a.opts.View.Print(view.RecentReconstructions(recon))
	a.opts.View.Print(view.RecentQA(qa))
	return nil
}

func (a *App) cmdRecent(ctx context.Context, args []string) error {
	result, err := a.opts.Client.DashboardReconstruction(ctx, args[0])
	if err != nil {
		return fmt.Errorf("加载重建详情失败: %w", err)
	}
	a.opts.View.Print(view.ReconstructionResult(result))
	return nil
}

// Reconstruction and analysis

func (a *App) cmdModels(ctx context.Context, _ []string) error {
	models, err := a.opts.Client.Models(ctx)
	if err != nil {
		return fmt.Errorf("加载模型列表失败: %w", err)
	}
	a.opts.View.Print(view.Models(models))
	return nil
}

func (a *App) cmdModel(ctx context.Context, args []string) error {
	m, err := a.opts.Client.Model(ctx, args[0])
	if err != nil {
		return fmt.Errorf("加载模型失败: %w", err)
	}
	a.opts.View.Print(view.Models([]reconstruction.Model{m}))
	return nil
}

func (a *App) cmdReconstruct(ctx context.Context, args []string) error {
	path, modelID := args[0], args[1]
	if err := api.ValidateUpload(path); err != nil {
		return fmt.Errorf("请选择有效的图像文件: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := a.opts.Client.Reconstruct(ctx, path, f, modelID)
	if err != nil {
		return err
	}
	a.opts.View.Print(view.ReconstructionResult(result))

	if len(args) > 2 && result.ReconstructedImage != "" {
		img, err := base64.StdEncoding.DecodeString(result.ReconstructedImage)
		if err != nil {
			return fmt.Errorf("解码重建图像失败: %w", err)
		}
		if err := os.WriteFile(args[2], img, 0o644); err != nil {
			return err
		}
		a.opts.View.Notify(notify.Success, "重建图像已保存到 "+args[2])
	}
	return nil
}

func (a *App) cmdResult(ctx context.Context, args []string) error {
	result, err := a.opts.Client.Result(ctx, args[0])
	if err != nil {
		return fmt.Errorf("加载重建结果失败: %w", err)
	}
	a.opts.View.Print(view.ReconstructionResult(result))
	return nil
}

func (a *App) cmdHistory(ctx context.Context, args []string) error {
	page, size := 1, 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("无效的页码 %q", args[0])
		}
		page = n
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return fmt.Errorf("无效的每页条数 %q", args[1])
		}
		size = n
	}

	p, err := a.opts.Client.History(ctx, page, size)
	if err != nil {
		return fmt.Errorf("加载重建历史失败: %w", err)
	}
	a.opts.View.Print(view.HistoryPage(p))
	return nil
}

func (a *App) cmdAnalyze(ctx context.Context, args []string) error {
	env, err := a.opts.Client.Analyze(ctx, args[0])
	if err != nil {
		return fmt.Errorf("分析失败: %w", err)
	}
	if env.Results != nil {
		a.opts.View.Print(view.AnalysisReport(*env.Results))
	}
	return nil
}

func (a *App) cmdAnalyzeFile(ctx context.Context, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	env, err := a.opts.Client.AnalyzeUpload(ctx, args[0], f)
	if err != nil {
		return fmt.Errorf("分析失败: %w", err)
	}
	a.opts.View.Notify(notify.Info, "分析任务: "+env.TaskID)
	if env.Results != nil {
		a.opts.View.Print(view.AnalysisReport(*env.Results))
	}
	return nil
}

func (a *App) cmdAnalysis(ctx context.Context, args []string) error {
	env, err := a.opts.Client.Analysis(ctx, args[0])
	if err != nil {
		return fmt.Errorf("加载分析结果失败: %w", err)
	}
	if env.Results != nil {
		a.opts.View.Print(view.AnalysisReport(*env.Results))
	}
	return nil
}

func (a *App) cmdReport(ctx context.Context, args []string) error {
	rep, err := a.opts.Client.Report(ctx, args[0], "markdown")
	if err != nil {
		return fmt.Errorf("导出报告失败: %w", err)
	}
	if len(args) > 1 {
		if err := os.WriteFile(args[1], []byte(rep.Content), 0o644); err != nil {
			return err
		}
		a.opts.View.Notify(notify.Success, "报告已保存到 "+args[1])
		return nil
	}
	a.opts.View.PrintMarkdown(rep.Content)
	return nil
}

// Training

func (a *App) cmdTrain(ctx context.Context, args []string) error {
	params := job.TrainingParams{ModelName: args[0], Epochs: 10, BatchSize: 8, LearningRate: 0.001}
	var err error
	if len(args) > 1 {
		if params.Epochs, err = strconv.Atoi(args[1]); err != nil || params.Epochs < 1 {
			return fmt.Errorf("无效的轮数 %q", args[1])
		}
	}
	if len(args) > 2 {
		if params.BatchSize, err = strconv.Atoi(args[2]); err != nil || params.BatchSize < 1 {
			return fmt.Errorf("无效的批大小 %q", args[2])
		}
	}
	if len(args) > 3 {
		if params.LearningRate, err = strconv.ParseFloat(args[3], 64); err != nil || params.LearningRate <= 0 {
			return fmt.Errorf("无效的学习率 %q", args[3])
		}
	}

	var taskID string
	if a.opts.Config.TrainingAPI == config.TrainingLegacy {
		taskID, err = a.opts.Client.StartTraining(ctx, params)
	} else {
		taskID, err = a.opts.Client.StartOnlineTraining(ctx, params)
	}
	if err != nil {
		return fmt.Errorf("启动训练失败: %w", err)
	}

	a.opts.View.Notify(notify.Success, "训练任务已提交: "+taskID)
	a.monitor.Start(ctx, taskID)
	return nil
}

func (a *App) cmdWatch(ctx context.Context, args []string) error {
	a.monitor.Start(ctx, args[0])
	return nil
}

func (a *App) cmdStop(ctx context.Context, _ []string) error {
	return a.monitor.StopJob(ctx)
}

func (a *App) cmdDownload(ctx context.Context, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	tmp, err := os.CreateTemp(dir, "model-*.part")
	if err != nil {
		return err
	}
	name, err := a.monitor.Download(ctx, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("下载模型失败: %w", err)
	}

	dest := filepath.Join(dir, filepath.Base(name))
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	a.opts.View.Notify(notify.Success, "模型已下载到 "+dest)
	return nil
}

// Medical Q&A

func (a *App) cmdNewChat(context.Context, []string) error {
	a.chat.StartNewChat()
	return nil
}

func (a *App) cmdChats(ctx context.Context, _ []string) error {
	return a.chat.RefreshHistories(ctx)
}

// resolveHistory matches an id prefix against the loaded histories.
func (a *App) resolveHistory(prefix string) (string, error) {
	var found []string
	for _, h := range a.chat.Histories() {
		if strings.HasPrefix(h.ID, prefix) {
			found = append(found, h.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("未找到会话 %q，先用 /chats 刷新列表", prefix)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("会话前缀 %q 不唯一", prefix)
	}
}

func (a *App) cmdOpen(ctx context.Context, args []string) error {
	id, err := a.resolveHistory(args[0])
	if err != nil {
		return err
	}
	return a.chat.LoadChatHistoryDetail(ctx, id)
}

func (a *App) cmdDelete(ctx context.Context, args []string) error {
	id, err := a.resolveHistory(args[0])
	if err != nil {
		return err
	}
	return a.chat.DeleteHistory(ctx, id)
}

func (a *App) cmdClear(ctx context.Context, _ []string) error {
	return a.chat.ClearAll(ctx)
}

func (a *App) cmdSearch(_ context.Context, args []string) error {
	a.chat.SetFilter(strings.Join(args, " "))
	return nil
}

func (a *App) cmdRetry(ctx context.Context, _ []string) error {
	return a.chat.Retry(ctx)
}

func (a *App) cmdSpeak(ctx context.Context, _ []string) error {
	if a.opts.Player == nil {
		return errors.New("未配置语音播放")
	}
	text := a.transcript.lastAnswer()
	if text == "" {
		return errors.New("没有可朗读的回答")
	}
	return a.opts.Player.Speak(ctx, text)
}

func (a *App) cmdMute(context.Context, []string) error {
	if a.opts.Player != nil {
		a.opts.Player.Stop()
	}
	return nil
}

// Preferences

func (a *App) cmdTheme(context.Context, []string) error {
	if a.opts.Prefs == nil {
		return nil
	}
	theme, err := a.opts.Prefs.ToggleTheme()
	if err != nil {
		return err
	}
	a.applyPrefs()
	a.opts.View.Notify(notify.Info, "主题: "+string(theme))
	return nil
}

func (a *App) cmdFont(_ context.Context, args []string) error {
	if a.opts.Prefs == nil {
		return nil
	}
	var (
		size int
		err  error
	)
	switch args[0] {
	case "+":
		size, err = a.opts.Prefs.IncreaseFont()
	case "-":
		size, err = a.opts.Prefs.DecreaseFont()
	case "reset":
		err = a.opts.Prefs.ResetFont()
		size = a.opts.Prefs.FontSize()
	default:
		return errors.New("用法: /font <+|-|reset>")
	}
	if err != nil {
		return err
	}
	a.applyPrefs()
	a.opts.View.Notify(notify.Info, fmt.Sprintf("字体大小: %dpx", size))
	return nil
}

func (a *App) cmdContrast(_ context.Context, args []string) error {
	if a.opts.Prefs == nil {
		return nil
	}
	on := args[0] == "on"
	if !on && args[0] != "off" {
		return errors.New("用法: /contrast <on|off>")
	}
	return a.opts.Prefs.SetHighContrast(on)
}
