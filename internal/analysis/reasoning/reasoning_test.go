package reasoning

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitThinkingStepMarkup(t *testing.T) {
	text := `建议休息。<div class="thinking-container"><div class="thinking-badge">思考过程</div>` +
		`<div class="thinking-step">1. 理解问题</div><div class="thinking-step">2. 给出&lt;建议&gt;</div></div>`

	p := Split(text)
	want := []string{"1. 理解问题", "2. 给出<建议>"}
	if !reflect.DeepEqual(p.Thinking, want) {
		t.Fatalf("expected steps %q, got %q", want, p.Thinking)
	}
	if p.Answer != "建议休息。" {
		t.Fatalf("expected answer 建议休息。, got %q", p.Answer)
	}
}

func TestSplitUnclosedContainer(t *testing.T) {
	p := Split(`正文<div class="thinking-container"><div class="thinking-step">只有一步</div>`)
	if !reflect.DeepEqual(p.Thinking, []string{"只有一步"}) || p.Answer != "正文" {
		t.Fatalf("unexpected parts %+v", p)
	}
}

func TestSplitThinkTags(t *testing.T) {
	p := Split("<think>1. 分析症状\n2. 排除急症\n- 注意用药</think>\n多喝水，注意休息。")
	want := []string{"1. 分析症状", "2. 排除急症", "- 注意用药"}
	if !reflect.DeepEqual(p.Thinking, want) {
		t.Fatalf("expected steps %q, got %q", want, p.Thinking)
	}
	if p.Answer != "多喝水，注意休息。" {
		t.Fatalf("expected answer, got %q", p.Answer)
	}
}

func TestSplitThinkTagsKeepsContinuationLines(t *testing.T) {
	p := Split("<think>首先\n继续说明\n1. 第一步</think>答")
	want := []string{"首先\n继续说明", "1. 第一步"}
	if !reflect.DeepEqual(p.Thinking, want) || p.Answer != "答" {
		t.Fatalf("expected %q / 答, got %+v", want, p)
	}
}

func TestSplitKeywordSection(t *testing.T) {
	p := Split("建议复查。\n思考过程\n患者有头痛\n需要排除颅内病变")
	want := []string{"患者有头痛", "需要排除颅内病变"}
	if !reflect.DeepEqual(p.Thinking, want) {
		t.Fatalf("expected steps %q, got %q", want, p.Thinking)
	}
	if p.Answer != "建议复查。" {
		t.Fatalf("expected answer 建议复查。, got %q", p.Answer)
	}
}

func TestSplitIndicator(t *testing.T) {
	p := Split("可能是偏头痛。我的分析：\n头痛位于单侧\n伴有畏光")
	want := []string{"1. 头痛位于单侧", "2. 伴有畏光"}
	if !reflect.DeepEqual(p.Thinking, want) {
		t.Fatalf("expected steps %q, got %q", want, p.Thinking)
	}
	if p.Answer != "可能是偏头痛。" {
		t.Fatalf("expected answer, got %q", p.Answer)
	}
}

func TestSplitIndicatorTruncates(t *testing.T) {
	long := strings.Repeat("字", 600)
	p := Split("结论。解题思路" + long)
	want := "1. " + strings.Repeat("字", IndicatorLimit) + "..."
	if len(p.Thinking) != 1 || p.Thinking[0] != want {
		t.Fatalf("expected single truncated step, got %d steps", len(p.Thinking))
	}
}

func TestSplitPlainAnswer(t *testing.T) {
	p := Split("  多喝水  ")
	if p.HasThinking() || p.Answer != "多喝水" {
		t.Fatalf("expected plain answer, got %+v", p)
	}
}

func TestStructure(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"1. 先看症状\n2. 再看病史", []string{"1. 先看症状", "2. 再看病史"}},
		{"观察影像\n\n对比病史", []string{"1. 观察影像", "2. 对比病史"}},
		{"思考过程：先看症状。再看病史。", []string{"1. 先看症状", "2. 再看病史"}},
		{"只有一句", []string{"1. 只有一句"}},
		{"   ", nil},
	}
	for _, c := range cases {
		if got := Structure(c.in); !reflect.DeepEqual(got, c.want) {
			t.Fatalf("Structure(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}
