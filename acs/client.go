package acs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/jsonapi"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const APIVersion = "2024-09-15"

func New(log *slog.Logger, cs ConnectionString) *Client {
	return &Client{
		log:        log,
		cs:         cs,
		MaxRetries: 3,
		now:        time.Now,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Client calls the Call Automation REST API.
type Client struct {
	log        *slog.Logger
	cs         ConnectionString
	MaxRetries uint64
	now        func() time.Time
	newBackOff func() backoff.BackOff
}

type MediaStreamingOptions struct {
	TransportURL        string `json:"transportUrl"`
	TransportType       string `json:"transportType"`
	ContentType         string `json:"contentType"`
	AudioChannelType    string `json:"audioChannelType"`
	StartMediaStreaming bool   `json:"startMediaStreaming"`
	EnableBidirectional bool   `json:"enableBidirectional"`
	AudioFormat         string `json:"audioFormat"`
}

// NewBidirectionalMediaStreaming streams mixed 24kHz mono PCM both ways over a websocket.
func NewBidirectionalMediaStreaming(transportURL string) *MediaStreamingOptions {
	return &MediaStreamingOptions{
		TransportURL:        transportURL,
		TransportType:       "websocket",
		ContentType:         "audio",
		AudioChannelType:    "mixed",
		StartMediaStreaming: true,
		EnableBidirectional: true,
		AudioFormat:         "Pcm24KMono",
	}
}

type AnswerCallRequest struct {
	IncomingCallContext   string                 `json:"incomingCallContext"`
	CallbackURI           string                 `json:"callbackUri"`
	OperationContext      string                 `json:"operationContext,omitempty"`
	MediaStreamingOptions *MediaStreamingOptions `json:"mediaStreamingOptions,omitempty"`
}

type AnswerCallResponse struct {
	CallConnectionID string `json:"callConnectionId"`
	ServerCallID     string `json:"serverCallId"`
	CallbackURI      string `json:"callbackUri"`
}

func (c *Client) AnswerCall(ctx context.Context, req AnswerCallRequest) (resp AnswerCallResponse, err error) {
	u, err := jsonapi.URL(c.cs.Endpoint.String()).
		Path("calling", "callConnections:answer").
		Query(map[string]string{"api-version": APIVersion}).
		String()
	if err != nil {
		return resp, fmt.Errorf("acs: failed to create URL: %w", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("acs: failed to marshal request: %w", err)
	}
	respBody, err := c.doWithRetry(ctx, http.MethodPost, u, body)
	if err != nil {
		return resp, err
	}
	if err = json.Unmarshal(respBody, &resp); err != nil {
		return resp, fmt.Errorf("acs: failed to decode answer response: %w", err)
	}
	return resp, nil
}

func (c *Client) HangUp(ctx context.Context, callConnectionID string) (err error) {
	u, err := jsonapi.URL(c.cs.Endpoint.String()).
		Path("calling", "callConnections", callConnectionID).
		Query(map[string]string{"api-version": APIVersion}).
		String()
	if err != nil {
		return fmt.Errorf("acs: failed to create URL: %w", err)
	}
	_, err = c.doWithRetry(ctx, http.MethodDelete, u, nil)
	return err
}

// doWithRetry retries transport errors, 429 and 5xx responses. The repeatability headers
// let the service discard duplicates of a request that succeeded but whose response was lost.
func (c *Client) doWithRetry(ctx context.Context, method, u string, body []byte) (respBody []byte, err error) {
	requestID := uuid.NewString()
	firstSent := c.now().UTC().Format(http.TimeFormat)
	op := func() (err error) {
		respBody, err = c.do(ctx, method, u, body, requestID, firstSent)
		if err == nil {
			return nil
		}
		if ise, ok := err.(jsonapi.InvalidStatusError); ok && !retryable(ise.Status) {
			return backoff.Permanent(err)
		}
		c.log.Warn("call automation request failed, retrying", slog.String("method", method), slog.Any("error", err))
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.MaxRetries), ctx)
	if err = backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("acs: %s %s failed: %w", method, u, err)
	}
	return respBody, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, requestID, firstSent string) (respBody []byte, err error) {
	if body == nil {
		body = []byte{}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Repeatability-Request-ID", requestID)
	req.Header.Set("Repeatability-First-Sent", firstSent)
	Sign(req, body, c.cs.AccessKey, c.now())
	res, err := jsonapi.Raw(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	respBody, err = io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, jsonapi.InvalidStatusError{
			Status: res.StatusCode,
			Body:   string(respBody),
		}
	}
	return respBody, nil
}
