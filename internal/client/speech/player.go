// Package speech reads assistant answers aloud through the backend
// text-to-speech endpoint.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/logger"
)

// SegmentLimit 单段朗读文本的最大字符数。
const SegmentLimit = 500

var ErrEmptyText = errors.New("nothing to speak")

// Synthesizer turns text into audio bytes.
type Synthesizer interface {
	TextToSpeech(ctx context.Context, text string) ([]byte, error)
}

// Sink plays one audio clip and returns when playback ends or ctx is done.
type Sink interface {
	Play(ctx context.Context, audio []byte) error
}

// Player plays at most one text at a time.
type Player struct {
	synth  Synthesizer
	sink   Sink
	logger *zap.Logger

	// speakMu serializes Speak so one playback replaces the other.
	speakMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewPlayer(synth Synthesizer, sink Sink, log *zap.Logger) *Player {
	return &Player{
		synth:  synth,
		sink:   sink,
		logger: logger.OrNop(log).Named("speech"),
	}
}

// Speak stops any current playback and starts reading text in the
// background, one segment after another.
func (p *Player) Speak(ctx context.Context, text string) error {
	p.speakMu.Lock()
	defer p.speakMu.Unlock()

	p.Stop()

	segments := Segment(strings.TrimSpace(text), SegmentLimit)
	if len(segments) == 0 {
		return ErrEmptyText
	}

	playCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.err = nil
	p.mu.Unlock()

	go p.play(playCtx, segments, done)
	return nil
}

func (p *Player) play(ctx context.Context, segments []string, done chan struct{}) {
	defer close(done)

	for i, seg := range segments {
		if ctx.Err() != nil {
			return
		}
		audio, err := p.synth.TextToSpeech(ctx, seg)
		if err == nil {
			err = p.sink.Play(ctx, audio)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("speech segment failed", zap.Int("segment", i), zap.Error(err))
			p.mu.Lock()
			p.err = fmt.Errorf("segment %d: %w", i, err)
			p.mu.Unlock()
			return
		}
	}
}

// Stop cancels playback and waits for it to end.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Speaking reports whether audio is being synthesized or played.
func (p *Player) Speaking() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Wait blocks until the current playback ends and returns its error.
func (p *Player) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Segment splits text into chunks of at most limit runes, preferring to cut
// after the last sentence-ending mark inside each window.
func Segment(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	var out []string
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		for i := end - 1; i > start; i-- {
			if isSentenceEnd(runes[i]) {
				end = i + 1
				break
			}
		}
		out = append(out, string(runes[start:end]))
		start = end
	}
	return out
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '。', '？', '！', '.', '?', '!':
		return true
	}
	return false
}
