package reasoning

import (
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parts 是一条回答拆分后的思考步骤与正文。
type Parts struct {
	Thinking []string
	Answer   string
}

// HasThinking reports whether any reasoning steps were found.
func (p Parts) HasThinking() bool { return len(p.Thinking) > 0 }

const (
	// KeywordThinking 标记思考过程段落。
	KeywordThinking = "思考过程"
	// IndicatorLimit 限制按指示词截取的思考内容长度（按字符计）。
	IndicatorLimit = 500
)

// Indicators introduce a reasoning section in free text.
var Indicators = []string{
	"我的推理过程", "分析步骤", "思考如下", "我的分析", "推理过程",
	"解题思路", "解决思路", "思路如下", "解答过程", "思维过程",
	"推导过程", "我是这样思考的", "考虑因素",
}

var (
	thinkTagPattern = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	stepStart       = regexp.MustCompile(`^(\d+\.|\*|-)`)
)

// Split separates model reasoning from the answer. It tries, in order,
// thinking-step markup, <think> tags, the 思考过程 section and indicator
// keywords. When nothing matches the whole text is the answer.
func Split(text string) Parts {
	for _, strategy := range []func(string) (Parts, bool){
		splitMarkup,
		splitThinkTags,
		splitKeyword,
		splitIndicators,
	} {
		if p, ok := strategy(text); ok {
			return p
		}
	}
	return Parts{Answer: strings.TrimSpace(text)}
}

func hasClass(tok html.Token, names ...string) bool {
	for _, a := range tok.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			for _, n := range names {
				if c == n {
					return true
				}
			}
		}
	}
	return false
}

// splitMarkup pulls the text of every thinking-step div and keeps all markup
// outside thinking containers as the answer.
func splitMarkup(text string) (Parts, bool) {
	if !strings.Contains(text, "thinking-step") {
		return Parts{}, false
	}

	var (
		answer    strings.Builder
		step      strings.Builder
		steps     []string
		depth     int
		stepDepth int
	)
	flush := func() {
		if s := strings.TrimSpace(step.String()); s != "" {
			steps = append(steps, s)
		}
		step.Reset()
		stepDepth = 0
	}

	z := html.NewTokenizer(strings.NewReader(text))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return Parts{}, false
			}
			break
		}
		raw := string(z.Raw())

		switch tt {
		case html.StartTagToken:
			tok := z.Token()
			isDiv := tok.DataAtom == atom.Div
			if depth == 0 {
				if isDiv && hasClass(tok, "thinking-container", "thinking-step", "thinking-badge") {
					depth = 1
					if hasClass(tok, "thinking-step") {
						stepDepth = 1
					}
				} else {
					answer.WriteString(raw)
				}
				continue
			}
			if isDiv {
				depth++
				if stepDepth == 0 && hasClass(tok, "thinking-step") {
					stepDepth = depth
				}
			}
		case html.EndTagToken:
			if depth == 0 {
				answer.WriteString(raw)
				continue
			}
			if z.Token().DataAtom == atom.Div {
				if stepDepth == depth {
					flush()
				}
				depth--
			}
		case html.TextToken:
			switch {
			case stepDepth > 0:
				step.Write(z.Text())
			case depth == 0:
				answer.WriteString(raw)
			}
		default:
			if depth == 0 {
				answer.WriteString(raw)
			}
		}
	}
	if stepDepth > 0 {
		flush()
	}

	if len(steps) == 0 {
		return Parts{}, false
	}
	return Parts{Thinking: steps, Answer: strings.TrimSpace(answer.String())}, true
}

// splitThinkTags handles <think>...</think> blocks. Inside a block a new step
// starts at each line beginning with "N.", "*" or "-".
func splitThinkTags(text string) (Parts, bool) {
	matches := thinkTagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return Parts{}, false
	}

	var steps []string
	for _, m := range matches {
		steps = append(steps, splitSteps(m[1])...)
	}
	answer := thinkTagPattern.ReplaceAllString(text, "")
	return Parts{Thinking: steps, Answer: strings.TrimSpace(answer)}, true
}

func splitSteps(block string) []string {
	var (
		steps []string
		cur   []string
	)
	flush := func() {
		if s := strings.TrimSpace(strings.Join(cur, "\n")); s != "" {
			steps = append(steps, s)
		}
		cur = cur[:0]
	}
	for i, line := range strings.Split(block, "\n") {
		if i > 0 && stepStart.MatchString(line) {
			flush()
		}
		cur = append(cur, line)
	}
	flush()
	return steps
}

// splitKeyword treats everything from 思考过程 on as reasoning, one step per
// non-empty line.
func splitKeyword(text string) (Parts, bool) {
	idx := strings.Index(text, KeywordThinking)
	if idx < 0 {
		return Parts{}, false
	}
	answer := strings.TrimSpace(text[:idx])
	rest := stripKeyword(text[idx:])

	var steps []string
	for _, line := range strings.Split(rest, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == KeywordThinking || line == "</div>" {
			continue
		}
		steps = append(steps, line)
	}
	if len(steps) == 0 {
		steps = sentences(rest)
	}
	if len(steps) == 0 {
		return Parts{}, false
	}
	return Parts{Thinking: steps, Answer: answer}, true
}

// splitIndicators looks for the first indicator phrase and structures at most
// IndicatorLimit runes after it.
func splitIndicators(text string) (Parts, bool) {
	for _, ind := range Indicators {
		idx := strings.Index(text, ind)
		if idx < 0 {
			continue
		}
		thinking := strings.TrimSpace(strings.TrimLeft(text[idx+len(ind):], "：:"))
		if utf8.RuneCountInString(thinking) > IndicatorLimit {
			thinking = string([]rune(thinking)[:IndicatorLimit]) + "..."
		}
		steps := Structure(thinking)
		if len(steps) == 0 {
			continue
		}
		return Parts{Thinking: steps, Answer: strings.TrimSpace(text[:idx])}, true
	}
	return Parts{}, false
}
