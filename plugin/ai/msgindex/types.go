// Package msgindex maps the ephemeral message identifiers held by chat
// clients onto role-indexes of the persisted conversation log.
package msgindex

// Role is the role tag stored on a log entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleModel     Role = "model"
	RoleAssistant Role = "assistant"
)

// NotFound is returned when no entry can be identified with confidence.
const NotFound = -1

// Normalize folds the assistant tag into model.
func (r Role) Normalize() Role {
	if r == RoleAssistant {
		return RoleModel
	}
	return r
}

// Matches reports whether an entry tagged tag belongs to role r.
func (r Role) Matches(tag Role) bool {
	switch r.Normalize() {
	case RoleUser:
		return tag == RoleUser
	case RoleModel:
		return tag == RoleModel || tag == RoleAssistant
	default:
		return false
	}
}

// Valid reports whether r is one of the known role tags.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModel, RoleAssistant:
		return true
	}
	return false
}

// LogEntry is one entry of the persisted, append-ordered conversation log.
type LogEntry struct {
	Role        Role   `json:"role"`
	Text        string `json:"text"`
	TimestampMs int64  `json:"timestamp"`
	IsFirstMes  bool   `json:"is_first_mes"`
	GlobalIndex int    `json:"global_index"`
}

// Sender is the author tag used by client-side messages.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// SenderFor maps a log role onto the client sender tag.
func SenderFor(role Role) Sender {
	if role == RoleUser {
		return SenderUser
	}
	return SenderBot
}

// ClientMessage is a message as rendered by a client.
type ClientMessage struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Sender       Sender `json:"sender"`
	IsLoading    bool   `json:"isLoading"`
	Timestamp    int64  `json:"timestamp"`
	MessageIndex int    `json:"messageIndex"`
}

// sentBy reports whether the client message was authored by role.
func (m ClientMessage) sentBy(role Role) bool {
	switch role.Normalize() {
	case RoleUser:
		return m.Sender == SenderUser
	case RoleModel:
		return m.Sender == SenderBot
	}
	return false
}
