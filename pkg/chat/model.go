package chat

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the inbound chat-completion payload. Model and MaxTokens are
// optional and filled from defaults during validation.
type Request struct {
	Messages  []Message `json:"messages"`
	Model     string    `json:"model,omitempty"`
	MaxTokens *int      `json:"maxTokens,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

type Response struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	Text       string `json:"text"`
	Usage      Usage  `json:"usage"`
	StopReason string `json:"stopReason"`
}
