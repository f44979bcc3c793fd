package models

type DocumentsPostResponse struct {
	// ID of the in-memory index built from the uploaded PDF.
	ID     string `json:"id"`
	Name   string `json:"name"`
	Pages  int    `json:"pages"`
	Chunks int    `json:"chunks"`
}
