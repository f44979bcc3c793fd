package models

import "time"

type CallsGetResponse struct {
	Calls []Call `json:"calls"`
}

type Call struct {
	ID            string    `json:"id"`
	CallerID      string    `json:"callerId"`
	ContactID     string    `json:"contactId,omitempty"`
	ContactName   string    `json:"contactName,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}
