package store

// ChatConversation is one character chat. ID carries its creation time as
// leading decimal milliseconds.
type ChatConversation struct {
	ID          string
	CharacterID string
	Title       string
	CreatedTs   int64
	UpdatedTs   int64
}

type FindChatConversation struct {
	ID          *string
	CharacterID *string
}

type UpdateChatConversation struct {
	ID        string
	Title     *string
	UpdatedTs *int64
}

type DeleteChatConversation struct {
	ID string
}
