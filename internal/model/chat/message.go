package chat

import "time"

// History summarizes a persisted conversation with the medical assistant.
type History struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Message is a single turn of a conversation.
type Message struct {
	IsUser  bool   `json:"is_user"`
	Content string `json:"content"`
}

// Detail is a conversation with its full transcript.
type Detail struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// AskRequest 问答请求体。
type AskRequest struct {
	Text          string `json:"text"`
	ChatHistoryID string `json:"chat_history_id,omitempty"`
}

// AskResponse 问答响应体。
type AskResponse struct {
	Response      string `json:"response"`
	ChatHistoryID string `json:"chat_history_id,omitempty"`
}

// SpeechRequest 文本转语音请求体。
type SpeechRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
	Slow bool   `json:"slow"`
}
