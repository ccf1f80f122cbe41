package channel

import "encoding/json"

// 服务端推送的消息类型。
const (
	TypeConnectionEstablished  = "connection_established"
	TypeProgressUpdate         = "progress_update"
	TypeModelLoaded            = "model_loaded"
	TypeReconstructionComplete = "reconstruction_complete"
	TypePong                   = "pong"
	TypePing                   = "ping"
	TypeError                  = "error"
)

// Message is the flat JSON envelope pushed by the backend. Only the fields
// relevant to Type are set.
type Message struct {
	Type      string  `json:"type"`
	Timestamp string  `json:"timestamp,omitempty"`
	ClientID  string  `json:"client_id,omitempty"`
	Username  string  `json:"username,omitempty"`
	TaskID    string  `json:"task_id,omitempty"`
	Progress  float64 `json:"progress,omitempty"`
	Status    string  `json:"status,omitempty"`
	Message   string  `json:"message,omitempty"`
	ModelID   string  `json:"model_id,omitempty"`
	Success   bool    `json:"success,omitempty"`
	ResultID  string  `json:"result_id,omitempty"`
}

// ProgressUpdate 任务进度推送。
type ProgressUpdate struct {
	TaskID   string
	Progress float64
	Status   string
	Message  string
}

// ModelLoaded 模型加载结果推送。
type ModelLoaded struct {
	ModelID string
	Success bool
	Message string
}

// ReconstructionComplete 重建完成推送。
type ReconstructionComplete struct {
	TaskID   string
	ResultID string
	Message  string
}

// Handlers receives dispatched messages. Nil handlers are skipped.
type Handlers struct {
	OnConnected              func(Message)
	OnProgress               func(ProgressUpdate)
	OnModelLoaded            func(ModelLoaded)
	OnReconstructionComplete func(ReconstructionComplete)
	OnError                  func(message string)
	OnStateChange            func(State)
}

type heartbeat struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

func decode(data []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return msg, err
}
