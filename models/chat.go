package models

type ChatMessageType string

const (
	ChatMessageTypeSystem ChatMessageType = "system"
	ChatMessageTypeHuman  ChatMessageType = "human"
	ChatMessageTypeAI     ChatMessageType = "ai"
)

type ChatMessage struct {
	Type    ChatMessageType `json:"type"`
	Content string          `json:"content"`
}

type ChatPostRequest struct {
	DocumentID string `json:"documentId"`
	// Messages in the conversation so far. The last must be the human's question.
	Messages []ChatMessage `json:"messages"`
}
