// Package view renders console output. It holds presentation only and makes
// no decisions about state.
package view

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mri-lab/mri-console/internal/client/chat"
	"github.com/mri-lab/mri-console/internal/client/monitor"
	"github.com/mri-lab/mri-console/internal/model/analysis"
	"github.com/mri-lab/mri-console/internal/model/dashboard"
	"github.com/mri-lab/mri-console/internal/model/reconstruction"
)

const timeLayout = "2006-01-02 15:04"

// Markdown renders answers with glamour and falls back to plain text.
type Markdown struct {
	renderer *glamour.TermRenderer
}

func NewMarkdown(width int) *Markdown {
	return NewMarkdownStyle(width, "")
}

// NewMarkdownStyle uses a glamour standard style ("dark", "light"); an
// empty style detects the terminal background.
func NewMarkdownStyle(width int, style string) *Markdown {
	if width <= 20 {
		width = 80
	}
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	renderer, err := glamour.NewTermRenderer(
		styleOpt,
		glamour.WithWordWrap(width-10),
	)
	if err != nil {
		return &Markdown{}
	}
	return &Markdown{renderer: renderer}
}

func (m *Markdown) Render(text string) string {
	if m == nil || m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func colorStyle(c monitor.Color) lipgloss.Style {
	switch c {
	case monitor.ColorDanger:
		return dangerStyle
	case monitor.ColorWarning:
		return warningStyle
	default:
		return neutralStyle
	}
}

// ProgressBar draws a bar of width cells in the colour class of c.
func ProgressBar(percent float64, c monitor.Color, width int) string {
	if width <= 0 {
		width = 30
	}
	p := math.Max(0, math.Min(100, percent))
	filled := int(math.Round(p / 100 * float64(width)))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %5.1f%%", colorStyle(c).Render(bar), p)
}

var sparkTicks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws the last width points scaled between their min and max.
func Sparkline(points []float64, width int) string {
	if len(points) == 0 {
		return ""
	}
	if width > 0 && len(points) > width {
		points = points[len(points)-width:]
	}
	lo, hi := points[0], points[0]
	for _, p := range points {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}

	var b strings.Builder
	for _, p := range points {
		idx := len(sparkTicks) / 2
		if hi > lo {
			idx = int(math.Round((p - lo) / (hi - lo) * float64(len(sparkTicks)-1)))
		}
		b.WriteRune(sparkTicks[idx])
	}
	return b.String()
}

// LossChart is a sparkline with its latest value and range.
func LossChart(points []float64, width int) string {
	if len(points) == 0 {
		return dimStyle.Render("暂无损失数据")
	}
	lo, hi := points[0], points[0]
	for _, p := range points {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	return fmt.Sprintf("%s  %s", infoStyle.Render(Sparkline(points, width)),
		dimStyle.Render(fmt.Sprintf("loss %.4f (min %.4f, max %.4f, %d pts)", points[len(points)-1], lo, hi, len(points))))
}

func FormatPSNR(v float64) string { return fmt.Sprintf("%.2f", v) }
func FormatSSIM(v float64) string { return fmt.Sprintf("%.4f", v) }
func FormatNSE(v float64) string  { return fmt.Sprintf("%.4f", v) }

// FormatSeconds 执行时间，保留两位小数。
func FormatSeconds(v float64) string { return fmt.Sprintf("%.2f秒", v) }

// StatusBadge colours a job status: completed green, failed red,
// processing blue, anything else grey.
func StatusBadge(status string) string {
	switch status {
	case "completed":
		return successBadge.Render(status)
	case "failed":
		return dangerBadge.Render(status)
	case "processing":
		return infoBadge.Render(status)
	default:
		return secondaryBadge.Render(status)
	}
}

func field(label, value string) string {
	return labelStyle.Render(label) + value
}

// ReconstructionResult 重建结果摘要。
func ReconstructionResult(r reconstruction.Result) string {
	lines := []string{
		titleStyle.Render("重建结果"),
		field("结果ID", r.ResultID),
		field("PSNR", FormatPSNR(r.Metrics.PSNR)),
		field("SSIM", FormatSSIM(r.Metrics.SSIM)),
		field("NSE", FormatNSE(r.Metrics.NSE)),
		field("执行时间", FormatSeconds(r.ExecutionTime)),
	}
	if r.ReconstructedImage != "" {
		lines = append(lines, field("图像", dimStyle.Render(fmt.Sprintf("base64 PNG, %d bytes", len(r.ReconstructedImage)))))
	}
	return strings.Join(lines, "\n")
}

// TaskProgress 实时推送的任务进度。
func TaskProgress(taskID string, percent float64, status, message string) string {
	line := fmt.Sprintf("%s %s %s", dimStyle.Render(shortID(taskID)), ProgressBar(percent, monitor.ColorFor(percent), 20), StatusBadge(status))
	if message != "" {
		line += " " + message
	}
	return line
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorder).
		Headers(headers...)
}

// DashboardStats 数据看板汇总。
func DashboardStats(s dashboard.Stats) string {
	lines := []string{
		titleStyle.Render("系统概览"),
		field("重建次数", fmt.Sprintf("%d", s.TotalReconstructions)),
		field("问答次数", fmt.Sprintf("%d", s.TotalQuestions)),
		field("模型数量", fmt.Sprintf("%d", s.TotalModels)),
		field("平均PSNR", FormatPSNR(s.AveragePSNR)),
		field("平均SSIM", FormatSSIM(s.AverageSSIM)),
		field("CPU", ProgressBar(s.CPUUsage, monitor.ColorFor(s.CPUUsage), 20)),
		field("内存", ProgressBar(s.MemoryUsage, monitor.ColorFor(s.MemoryUsage), 20)),
		field("存储", ProgressBar(s.StorageUsage, monitor.ColorFor(s.StorageUsage), 20)),
	}
	return strings.Join(lines, "\n")
}

func RecentReconstructions(items []dashboard.RecentReconstruction) string {
	if len(items) == 0 {
		return dimStyle.Render("暂无重建记录")
	}
	t := newTable("ID", "模型", "状态", "PSNR", "SSIM", "耗时", "时间")
	for _, it := range items {
		t.Row(it.ID, it.ModelName, StatusBadge(it.Status), FormatPSNR(it.Metrics.PSNR),
			FormatSSIM(it.Metrics.SSIM), FormatSeconds(it.ExecutionTime), it.CreatedAt.Local().Format(timeLayout))
	}
	return t.String()
}

func RecentQA(items []dashboard.RecentQA) string {
	if len(items) == 0 {
		return dimStyle.Render("暂无问答记录")
	}
	t := newTable("问题", "回答", "时间")
	for _, it := range items {
		t.Row(truncate(it.Question, 24), truncate(it.Answer, 36), it.CreatedAt.Local().Format(timeLayout))
	}
	return t.String()
}

// HistoryPage 重建历史分页表。
func HistoryPage(p reconstruction.HistoryPage) string {
	if len(p.Records) == 0 {
		return dimStyle.Render("暂无重建历史")
	}
	t := newTable("ID", "文件", "模型", "状态", "PSNR", "SSIM", "耗时", "时间")
	for _, r := range p.Records {
		t.Row(r.ID, r.Filename, r.ModelID, StatusBadge(r.Status), FormatPSNR(r.Metrics.PSNR),
			FormatSSIM(r.Metrics.SSIM), FormatSeconds(r.ExecutionTime), r.CreatedAt.Local().Format(timeLayout))
	}
	return t.String() + "\n" + dimStyle.Render(fmt.Sprintf("第 %d / %d 页，共 %d 条", p.Page, p.TotalPages(), p.Total))
}

func Models(models []reconstruction.Model) string {
	if len(models) == 0 {
		return dimStyle.Render("暂无可用模型")
	}
	t := newTable("ID", "名称", "类型", "说明")
	for _, m := range models {
		t.Row(m.ID, m.Name, m.Type, truncate(m.Description, 40))
	}
	return t.String()
}

func alertStyle(level analysis.AlertLevel) lipgloss.Style {
	switch level {
	case analysis.AlertAlert:
		return dangerStyle
	case analysis.AlertWarning:
		return warningStyle
	default:
		return successStyle
	}
}

func abnormalMark(abnormal bool) string {
	if abnormal {
		return dangerStyle.Render("异常")
	}
	return successStyle.Render("正常")
}

// AnalysisReport 医学影像分析结果。
func AnalysisReport(r analysis.Result) string {
	v, l, m := r.VolumeAnalysis, r.LesionDetection, r.MotionDetection
	lines := []string{
		titleStyle.Render("分析结果"),
		field("诊断", alertStyle(r.AlertLevel).Render(r.Diagnosis)),
		headerStyle.Render("体积分析") + " " + abnormalMark(v.Abnormal),
		field("总体积", fmt.Sprintf("%.2f ml", v.TotalVolume)),
		field("灰质", fmt.Sprintf("%.2f ml", v.GrayMatter)),
		field("白质", fmt.Sprintf("%.2f ml", v.WhiteMatter)),
		field("脑脊液", fmt.Sprintf("%.2f ml", v.CSF)),
		headerStyle.Render("病灶检测") + " " + abnormalMark(l.Abnormal),
		field("病灶数量", fmt.Sprintf("%d", l.LesionsCount)),
		field("病灶体积", fmt.Sprintf("%.2f ml", l.TotalVolume)),
		field("置信度", fmt.Sprintf("%.1f%%", l.Confidence*100)),
		headerStyle.Render("运动伪影") + " " + abnormalMark(m.Abnormal),
		field("存在伪影", yesNo(m.HasArtifact)),
		field("严重程度", m.Severity),
		field("置信度", fmt.Sprintf("%.1f%%", m.Confidence*100)),
	}
	if len(r.Abnormalities) > 0 {
		lines = append(lines, headerStyle.Render("异常发现"))
		for _, a := range r.Abnormalities {
			lines = append(lines, "  • "+a)
		}
	}
	if mesh := r.VisualizationData.BrainMesh; mesh != nil {
		lines = append(lines, field("脑部网格", MeshSummary(*mesh)))
	}
	if r.HasLesionMesh() {
		lines = append(lines, field("病灶网格", MeshSummary(*r.VisualizationData.LesionMesh)))
	}
	return strings.Join(lines, "\n")
}

// MeshSummary describes a mesh by size and bounding box.
func MeshSummary(m analysis.Mesh) string {
	if len(m.Vertices) == 0 {
		return fmt.Sprintf("%d 顶点, %d 面", 0, len(m.Faces))
	}
	lo, hi := m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices {
		for i := 0; i < 3; i++ {
			lo[i] = math.Min(lo[i], v[i])
			hi[i] = math.Max(hi[i], v[i])
		}
	}
	return fmt.Sprintf("%d 顶点, %d 面, 范围 [%.1f %.1f %.1f]-[%.1f %.1f %.1f]",
		len(m.Vertices), len(m.Faces), lo[0], lo[1], lo[2], hi[0], hi[1], hi[2])
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}

// HistoryGroups 会话历史分组列表。
func HistoryGroups(groups []chat.Group) string {
	if len(groups) == 0 {
		return dimStyle.Render("暂无会话记录")
	}
	var b strings.Builder
	for i, g := range groups {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(headerStyle.Render(g.Label))
		for _, h := range g.Items {
			title := h.Title
			if title == "" {
				title = "新会话"
			}
			fmt.Fprintf(&b, "\n  %s  %s %s", dimStyle.Render(shortID(h.ID)), title,
				dimStyle.Render(fmt.Sprintf("(%d条 · %s)", h.MessageCount, h.UpdatedAt.Local().Format("01-02 15:04"))))
		}
	}
	return b.String()
}

// Turn renders one transcript entry.
func Turn(t chat.Turn, md *Markdown, now time.Time) string {
	stamp := dimStyle.Render(now.Format("15:04:05"))
	switch t.Kind {
	case chat.TurnUser:
		return fmt.Sprintf("%s %s\n%s", userRoleStyle.Render(" 你 "), stamp, t.Text)
	case chat.TurnAssistant:
		var b strings.Builder
		fmt.Fprintf(&b, "%s %s\n", assistantRoleStyle.Render(" 助手 "), stamp)
		if len(t.Thinking) > 0 {
			b.WriteString(thinkingStyle.Render("思考过程\n"+strings.Join(t.Thinking, "\n")))
			b.WriteString("\n")
		}
		b.WriteString(md.Render(t.Text))
		return b.String()
	case chat.TurnError:
		s := dangerStyle.Render(t.Text)
		if t.Retry {
			s += " " + dimStyle.Render("(输入 /retry 重试)")
		}
		return s
	default:
		return dimStyle.Render(t.Text)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
