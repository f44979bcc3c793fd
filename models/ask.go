package models

type AskPostRequest struct {
	DocumentID string `json:"documentId"`
	// Text of the legal question.
	Text string `json:"text"`
}
