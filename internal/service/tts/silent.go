package tts

import (
	"context"
	"strings"
)

// silentMP3 is a bare ID3v2 header.
var silentMP3 = []byte{'I', 'D', '3', 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// Silent 未配置语音凭证时使用，返回空白音频。
type Silent struct{}

func (Silent) Synthesize(_ context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	return append([]byte(nil), silentMP3...), nil
}
