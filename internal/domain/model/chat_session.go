package model

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatSnippet is one transcript turn.
type ChatSnippet struct {
	Text string `json:"text"`
	Role string `json:"role"`
}

func UserSnippet(text string) ChatSnippet      { return ChatSnippet{Text: text, Role: RoleUser} }
func AssistantSnippet(text string) ChatSnippet { return ChatSnippet{Text: text, Role: RoleAssistant} }

func (s ChatSnippet) Equal(o ChatSnippet) bool {
	return s.Text == o.Text && s.Role == o.Role
}

// ChatSessionState is the whole mutable page state of one chat session.
type ChatSessionState struct {
	Chat            []ChatSnippet `json:"chat"`
	CurrentQuestion string        `json:"current_question"`
	APIKey          string        `json:"api_key"`
}

// InitialState is the default state produced ahead of time, before any
// client capability (network, storage) is available.
func InitialState() ChatSessionState {
	return ChatSessionState{
		Chat:            []ChatSnippet{},
		CurrentQuestion: "",
		APIKey:          "",
	}
}

// Clone returns a deep copy; the transcript slice is never shared.
func (s ChatSessionState) Clone() ChatSessionState {
	s.Chat = CloneTranscript(s.Chat)
	return s
}

func CloneTranscript(chat []ChatSnippet) []ChatSnippet {
	out := make([]ChatSnippet, len(chat))
	copy(out, chat)
	return out
}

type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseAwaitingReply Phase = "awaiting_reply"
)

// SessionError is the visible error attached to a snapshot.
type SessionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Snapshot is a read-only view of a session handed to renderers and subscribers.
type Snapshot struct {
	SessionID string           `json:"session_id"`
	State     ChatSessionState `json:"state"`
	Phase     Phase            `json:"phase"`
	Error     *SessionError    `json:"error,omitempty"`
	Version   uint64           `json:"version"`
	Closed    bool             `json:"closed,omitempty"`
}
