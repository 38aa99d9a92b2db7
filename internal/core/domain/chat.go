package domain

import "time"

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

const chatTitleMaxChars = 50

type ChatSession struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"document_id"`
	OwnerID       string        `json:"owner_id"`
	Title         string        `json:"title"`
	CreatedAt     time.Time     `json:"created_at"`
	LastMessageAt time.Time     `json:"last_message_at"`
	Messages      []ChatMessage `json:"messages"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	Role       ChatRole  `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Sources    []Source  `json:"sources,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Source cites a chunk that was part of the grounding context.
type Source struct {
	ChunkIndex int     `json:"chunk_index"`
	PageStart  int     `json:"page_start"`
	PageEnd    int     `json:"page_end"`
	Similarity float64 `json:"similarity"`
}

type ChatReply struct {
	SessionID  string   `json:"session_id"`
	Response   string   `json:"response"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
}

// ChatTitle derives a session title from the first message.
func ChatTitle(firstMessage string) string {
	runes := []rune(firstMessage)
	if len(runes) <= chatTitleMaxChars {
		return firstMessage
	}
	return string(runes[:chatTitleMaxChars]) + "..."
}
