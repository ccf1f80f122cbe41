package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mri-lab/mri-console/internal/model/chat"
)

// Ask sends a question. historyID is empty for a new conversation.
func (c *Client) Ask(ctx context.Context, text, historyID string) (chat.AskResponse, error) {
	var out chat.AskResponse
	err := c.doJSON(ctx, c.authed, http.MethodPost, "/api/medical/ask", chat.AskRequest{Text: text, ChatHistoryID: historyID}, &out)
	return out, err
}

// ChatHistories lists conversation summaries.
func (c *Client) ChatHistories(ctx context.Context) ([]chat.History, error) {
	var out []chat.History
	if err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/medical/chat-history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChatHistory loads one conversation with its messages.
func (c *Client) ChatHistory(ctx context.Context, id string) (chat.Detail, error) {
	var out chat.Detail
	err := c.doJSON(ctx, c.authed, http.MethodGet, "/api/medical/chat-history/"+url.PathEscape(id), nil, &out)
	return out, err
}

// DeleteChatHistory removes a conversation.
func (c *Client) DeleteChatHistory(ctx context.Context, id string) error {
	return c.doJSON(ctx, c.authed, http.MethodDelete, "/api/medical/chat-history/"+url.PathEscape(id), nil, nil)
}

// TextToSpeech synthesizes Chinese speech for text and returns the audio.
func (c *Client) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	data, err := json.Marshal(chat.SpeechRequest{Text: text, Lang: "zh", Slow: false})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/medical/text-to-speech", bytes.NewReader(data), "application/json")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.open(c.authed, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}
