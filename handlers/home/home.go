// Package home renders the AI Lawyer form.
package home

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed page.html
var page string

var pageTemplate = template.Must(template.New("page").Parse(page))

const (
	ErrMissingInput = "Please upload a valid PDF and enter your question."
	ErrInvalidPDF   = "The uploaded file is not a valid PDF."
	ErrAnswerFailed = "Sorry, the question could not be answered. Please try again."
)

type Page struct {
	Question string
	Answer   string
	Error    string
}

// Render writes the page. The template is executed before anything is written, so that a
// failure can still be reported with a status code.
func Render(w http.ResponseWriter, p Page, status int) error {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
