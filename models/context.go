package models

type ContextPostRequest struct {
	DocumentID string `json:"documentId"`
	Text       string `json:"text"`
}

type ContextPostResponse struct {
	Results []ContextDocument `json:"results"`
}

type ContextDocument struct {
	Text       string  `json:"text"`
	Distance   float32 `json:"distance"`
	Page       int     `json:"page"`
	StartIndex int     `json:"startIndex"`
	Source     string  `json:"source"`
}
