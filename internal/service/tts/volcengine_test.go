package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestResourceCandidates(t *testing.T) {
	tests := []struct {
		voice string
		want  []string
	}{
		{voice: "", want: []string{resourceDefault, resourceSeed}},
		{voice: "S_clone_speaker", want: []string{resourceMega}},
		{voice: "zh_female_vv_uranus_bigtts", want: []string{resourceSeed, resourceDefault}},
		{voice: "zh_male_organizer", want: []string{resourceDefault, resourceSeed}},
	}
	for _, tt := range tests {
		if got := resourceCandidates(tt.voice); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("resourceCandidates(%q) = %v, want %v", tt.voice, got, tt.want)
		}
	}
}

func TestDecodeEventFrame(t *testing.T) {
	in := &frame{
		Type:      fullServerResponse,
		Flags:     withEvent,
		Event:     eventSessionFinished,
		SessionID: "sess-1",
		Payload:   []byte(`{"code":0}`),
	}
	out, err := decodeFrame(bytes.NewReader(encodeFrame(in)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.finished() || out.SessionID != "sess-1" || string(out.Payload) != `{"code":0}` {
		t.Fatalf("unexpected frame %+v", out)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	if _, err := decodeFrame(bytes.NewReader([]byte{0x21, 0x10, 0x10, 0x00, 0, 0, 0, 0})); err == nil {
		t.Fatal("expected version error")
	}
}

// fakeServer answers one request per connection with the given frames.
func fakeServer(t *testing.T, check func(*http.Request, ttsRequest), frames ...*frame) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := decodeFrame(bytes.NewReader(data))
		if err != nil || f.Type != fullClientRequest {
			return
		}
		var req ttsRequest
		if err := json.Unmarshal(f.Payload, &req); err != nil {
			return
		}
		if check != nil {
			check(r, req)
		}
		for _, out := range frames {
			conn.WriteMessage(websocket.BinaryMessage, encodeFrame(out))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type captured struct {
	header http.Header
	req    ttsRequest
}

func TestSynthesizeCollectsAudio(t *testing.T) {
	seen := make(chan captured, 1)
	srv := fakeServer(t,
		func(r *http.Request, req ttsRequest) { seen <- captured{r.Header, req} },
		&frame{Type: audioOnlyServerResponse, Flags: positiveSequence, Sequence: 1, Payload: []byte("abc")},
		&frame{Type: fullServerResponse, Flags: noSequence, Payload: []byte(`{"code":0,"data":"` + base64.StdEncoding.EncodeToString([]byte("def")) + `"}`)},
		&frame{Type: fullServerResponse, Flags: withEvent, Event: eventSessionFinished, SessionID: "s"},
	)

	v, err := NewVolcengine(Config{AppID: "app", AccessToken: "token", Voice: "zh_female_vv_uranus_bigtts", URL: wsURL(srv)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	audio, err := v.Synthesize(context.Background(), "你好")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "abcdef" {
		t.Fatalf("expected concatenated audio, got %q", audio)
	}

	got := <-seen
	if got.header.Get("X-Api-App-Key") != "app" || got.header.Get("X-Api-Resource-Id") != resourceSeed {
		t.Fatalf("unexpected headers %v", got.header)
	}
	if got.req.ReqParams.Text != "你好" || got.req.ReqParams.AudioParams.Format != "mp3" {
		t.Fatalf("unexpected request %+v", got.req)
	}
}

func TestSynthesizeServerError(t *testing.T) {
	srv := fakeServer(t, nil, &frame{Type: errorMessage, ErrorCode: 45000001, Payload: []byte("bad request")})

	v, _ := NewVolcengine(Config{AppID: "app", AccessToken: "token", ResourceID: "custom", URL: wsURL(srv)}, nil)
	_, err := v.Synthesize(context.Background(), "你好")
	if err == nil || !strings.Contains(err.Error(), "bad request") {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestSynthesizeEmptyAudio(t *testing.T) {
	srv := fakeServer(t, nil, &frame{Type: fullServerResponse, Flags: lastNoSequence, Payload: []byte(`{"code":0}`)})

	v, _ := NewVolcengine(Config{AppID: "app", AccessToken: "token", ResourceID: "custom", URL: wsURL(srv)}, nil)
	if _, err := v.Synthesize(context.Background(), "你好"); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestNewVolcengineRequiresCredentials(t *testing.T) {
	if _, err := NewVolcengine(Config{AppID: "app"}, nil); !errors.Is(err, ErrMissingCredits) {
		t.Fatalf("expected ErrMissingCredits, got %v", err)
	}
}

func TestSilent(t *testing.T) {
	audio, err := Silent{}.Synthesize(context.Background(), "text")
	if err != nil || !bytes.HasPrefix(audio, []byte("ID3")) {
		t.Fatalf("expected ID3 header, got %q %v", audio, err)
	}
	if _, err := (Silent{}).Synthesize(context.Background(), " "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}
