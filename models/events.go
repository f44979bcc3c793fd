package models

import (
	"encoding/json"
	"time"
)

const (
	EventTypeSubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"
	EventTypeIncomingCall           = "Microsoft.Communication.IncomingCall"
)

// EventGridEvent is delivered to the incoming call webhook.
type EventGridEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	Subject   string          `json:"subject"`
	EventTime time.Time       `json:"eventTime"`
	Data      json.RawMessage `json:"data"`
}

type SubscriptionValidationData struct {
	ValidationCode string `json:"validationCode"`
}

type SubscriptionValidationResponse struct {
	ValidationResponse string `json:"validationResponse"`
}

type CommunicationIdentifier struct {
	Kind        string `json:"kind"`
	RawID       string `json:"rawId"`
	PhoneNumber *struct {
		Value string `json:"value"`
	} `json:"phoneNumber,omitempty"`
}

// Value is the phone number when present, otherwise the raw identifier.
func (ci CommunicationIdentifier) Value() string {
	if ci.PhoneNumber != nil && ci.PhoneNumber.Value != "" {
		return ci.PhoneNumber.Value
	}
	return ci.RawID
}

type IncomingCallData struct {
	To                  CommunicationIdentifier `json:"to"`
	From                CommunicationIdentifier `json:"from"`
	CallerDisplayName   string                  `json:"callerDisplayName"`
	IncomingCallContext string                  `json:"incomingCallContext"`
	CorrelationID       string                  `json:"correlationId"`
}

// CloudEvent is delivered to the call automation callback URL.
type CloudEvent struct {
	ID      string          `json:"id"`
	Source  string          `json:"source"`
	Type    string          `json:"type"`
	Subject string          `json:"subject"`
	Time    time.Time       `json:"time"`
	Data    json.RawMessage `json:"data"`
}

type CallEventData struct {
	CallConnectionID  string             `json:"callConnectionId"`
	ServerCallID      string             `json:"serverCallId"`
	CorrelationID     string             `json:"correlationId"`
	OperationContext  string             `json:"operationContext"`
	ResultInformation *ResultInformation `json:"resultInformation,omitempty"`
}

type ResultInformation struct {
	Code    int    `json:"code"`
	SubCode int    `json:"subCode"`
	Message string `json:"message"`
}
