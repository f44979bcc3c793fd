package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/a-h/jsonapi"
	"github.com/a-h/voicerag/models"
)

func New(baseURL, apiKey string) Client {
	return Client{
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type Client struct {
	baseURL string
	apiKey  string
}

// DocumentsPost uploads a PDF to be indexed.
func (c Client) DocumentsPost(ctx context.Context, name string, pdf io.Reader) (resp models.DocumentsPostResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("api/documents").String()
	if err != nil {
		return resp, err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("pdf", filepath.Base(name))
	if err != nil {
		return resp, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = io.Copy(fw, pdf); err != nil {
		return resp, fmt.Errorf("failed to read PDF: %w", err)
	}
	if err = mw.Close(); err != nil {
		return resp, fmt.Errorf("failed to write form: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return resp, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := jsonapi.Raw(httpReq,
		jsonapi.WithRequestHeader("Authorization", c.apiKey),
		jsonapi.WithRequestHeader("Content-Type", mw.FormDataContentType()))
	if err != nil {
		return resp, fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer res.Body.Close()
	if err = checkStatus(res); err != nil {
		return resp, err
	}
	if err = json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return resp, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp, nil
}

func (c Client) ContextPost(ctx context.Context, req models.ContextPostRequest) (resp models.ContextPostResponse, err error) {
	url, err := jsonapi.URL(c.baseURL).Path("api/context").String()
	if err != nil {
		return resp, err
	}
	return jsonapi.Post[models.ContextPostRequest, models.ContextPostResponse](ctx, url, req, jsonapi.WithRequestHeader("Authorization", c.apiKey))
}

func (c Client) AskPost(ctx context.Context, request models.AskPostRequest, f func(ctx context.Context, chunk []byte) error) (err error) {
	url, err := jsonapi.URL(c.baseURL).Path("api/ask").String()
	if err != nil {
		return err
	}
	return c.postStream(ctx, url, request, f)
}

func (c Client) ChatPost(ctx context.Context, request models.ChatPostRequest, f func(ctx context.Context, chunk []byte) error) (err error) {
	url, err := jsonapi.URL(c.baseURL).Path("api/chat").String()
	if err != nil {
		return err
	}
	return c.postStream(ctx, url, request, f)
}

func checkStatus(res *http.Response) error {
	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(res.Body)
		return jsonapi.InvalidStatusError{
			Status: res.StatusCode,
			Body:   string(body),
		}
	}
	return nil
}

func (c Client) postStream(ctx context.Context, url string, req any, f func(ctx context.Context, chunk []byte) error) (err error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	res, err := jsonapi.Raw(httpReq, jsonapi.WithRequestHeader("Authorization", c.apiKey))
	if err != nil {
		return fmt.Errorf("failed to perform HTTP request: %w", err)
	}
	defer res.Body.Close()
	if err = checkStatus(res); err != nil {
		return err
	}
	chunk := make([]byte, 1024)
	for {
		n, err := res.Body.Read(chunk)
		if n > 0 {
			if err := f(ctx, chunk[:n]); err != nil {
				return fmt.Errorf("failed to process chunk: %w", err)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read response body: %w", err)
		}
	}
}
