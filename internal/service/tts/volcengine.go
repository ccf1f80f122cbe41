// Package tts synthesizes answer audio for the text-to-speech endpoint.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultURL 火山引擎单向流式 TTS 接口。
const DefaultURL = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

const (
	resourceDefault = "volc.service_type.10029"
	resourceMega    = "volc.megatts.default"
	resourceSeed    = "seed-tts-2.0"
)

var (
	ErrEmptyText      = errors.New("TTS text is empty")
	ErrEmptyAudio     = errors.New("TTS audio is empty")
	ErrMissingCredits = errors.New("火山引擎语音配置缺少 AppID 或 AccessToken")
)

// Config 火山引擎 TTS 凭证与音色。ResourceID 为空时按音色推断。
type Config struct {
	AppID       string
	AccessToken string
	Voice       string
	ResourceID  string
	URL         string
	Speed       float64
	Timeout     time.Duration
}

// Volcengine 火山引擎 TTS WebSocket 客户端。
type Volcengine struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewVolcengine(cfg Config, log *zap.Logger) (*Volcengine, error) {
	cfg.AppID = strings.TrimSpace(cfg.AppID)
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	if cfg.AppID == "" || cfg.AccessToken == "" {
		return nil, ErrMissingCredits
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Volcengine{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		logger: log.Named("tts"),
	}, nil
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string      `json:"speaker"`
		Text        string      `json:"text"`
		AudioParams audioParams `json:"audio_params"`
	} `json:"req_params"`
}

type audioParams struct {
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate"`
	SpeedRatio float64 `json:"speed_ratio,omitempty"`
}

type serverMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

// Synthesize returns MP3 audio for text. Speakers tied to another resource
// are retried against the next candidate resource.
func (v *Volcengine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	var lastErr error
	for i, resource := range v.resources() {
		audio, err := v.synthesize(ctx, text, resource)
		if err == nil {
			if i > 0 {
				v.logger.Info("fallback resource succeeded", zap.String("resource", resource))
			}
			return audio, nil
		}
		if !isResourceMismatch(err) {
			return nil, err
		}
		v.logger.Warn("resource mismatch", zap.String("voice", v.cfg.Voice), zap.String("resource", resource), zap.Error(err))
		lastErr = err
	}
	return nil, lastErr
}

func (v *Volcengine) resources() []string {
	if v.cfg.ResourceID != "" {
		return []string{v.cfg.ResourceID}
	}
	return resourceCandidates(v.cfg.Voice)
}

func resourceCandidates(voice string) []string {
	voice = strings.TrimSpace(voice)
	if strings.HasPrefix(voice, "S_") {
		return []string{resourceMega}
	}
	lower := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "mars"} {
		if strings.Contains(lower, hint) {
			return []string{resourceSeed, resourceDefault}
		}
	}
	return []string{resourceDefault, resourceSeed}
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched")
}

func (v *Volcengine) synthesize(ctx context.Context, text, resource string) ([]byte, error) {
	connectID := uuid.NewString()

	header := http.Header{}
	header.Set("X-Api-App-Key", v.cfg.AppID)
	header.Set("X-Api-Access-Key", v.cfg.AccessToken)
	header.Set("X-Api-Resource-Id", resource)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := v.dialer.DialContext(ctx, v.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("connect TTS websocket: %w", err)
	}
	defer conn.Close()
	if resp != nil {
		if logID := resp.Header.Get("X-Tt-Logid"); logID != "" {
			v.logger.Debug("connected", zap.String("logid", logID))
		}
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	var req ttsRequest
	req.User.UID = connectID
	req.ReqParams.Speaker = v.cfg.Voice
	req.ReqParams.Text = text
	req.ReqParams.AudioParams = audioParams{Format: "mp3", SampleRate: 24000}
	if v.cfg.Speed > 0 && v.cfg.Speed != 1 {
		req.ReqParams.AudioParams.SpeedRatio = v.cfg.Speed
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal TTS request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(requestFrame(body))); err != nil {
		return nil, fmt.Errorf("send TTS request: %w", err)
	}

	var audio bytes.Buffer
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read TTS response: %w", err)
		}
		f, err := decodeFrame(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode TTS frame: %w", err)
		}
		payload, err := f.payload()
		if err != nil {
			return nil, err
		}

		switch f.Type {
		case errorMessage:
			return nil, fmt.Errorf("TTS error %d: %s", f.ErrorCode, payload)

		case audioOnlyServerResponse:
			audio.Write(payload)
			if f.last() {
				return finish(&audio)
			}

		case fullServerResponse:
			var msg serverMessage
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &msg); err != nil {
					v.logger.Debug("unparsed response payload", zap.Error(err))
				} else {
					if msg.Code != 0 && msg.Code != 3000 {
						return nil, fmt.Errorf("TTS API error %d: %s", msg.Code, msg.Message)
					}
					if msg.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(msg.Data)
						if err != nil {
							return nil, fmt.Errorf("decode audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}
			if f.finished() || f.last() || msg.Sequence < 0 {
				return finish(&audio)
			}

		default:
			v.logger.Debug("unexpected message type", zap.Uint8("type", uint8(f.Type)))
		}
	}
}

func finish(audio *bytes.Buffer) ([]byte, error) {
	if audio.Len() == 0 {
		return nil, ErrEmptyAudio
	}
	return audio.Bytes(), nil
}
