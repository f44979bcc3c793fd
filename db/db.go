package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rqlite/gorqlite"
)

func New(conn *gorqlite.Connection) *Queries {
	return &Queries{
		conn: conn,
	}
}

type Queries struct {
	conn *gorqlite.Connection
}

type CallStatus string

const (
	CallStatusAnswered         CallStatus = "answered"
	CallStatusConnected        CallStatus = "connected"
	CallStatusStreaming        CallStatus = "streaming"
	CallStatusStreamingStopped CallStatus = "streaming-stopped"
	CallStatusFailed           CallStatus = "failed"
	CallStatusDisconnected     CallStatus = "disconnected"
)

// Call is keyed by the ACS call connection ID.
type Call struct {
	ID            string
	CallerID      string
	ContactID     string
	ContactName   string
	Status        CallStatus
	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

func (q *Queries) CallPut(ctx context.Context, call Call) (err error) {
	stmt := gorqlite.ParameterizedStatement{
		Query: `insert into call (id, caller_id, contact_id, contact_name, status, created_at, last_updated_at)
values (?, ?, ?, ?, ?, ?, ?)
on conflict(id) do update
set
    caller_id = excluded.caller_id,
    contact_id = excluded.contact_id,
    contact_name = excluded.contact_name,
    status = excluded.status,
    last_updated_at = excluded.last_updated_at
`,
		Arguments: []any{call.ID, call.CallerID, call.ContactID, call.ContactName, string(call.Status), call.CreatedAt, call.LastUpdatedAt},
	}
	if _, err = q.conn.WriteOneParameterizedContext(ctx, stmt); err != nil {
		return fmt.Errorf("db: failed to put call: %w", err)
	}
	return nil
}

// CallPutCaller inserts the call, or fills in the caller and contact of an existing record.
// The status of an existing record is kept, because call automation callbacks can arrive
// before the answer request returns.
func (q *Queries) CallPutCaller(ctx context.Context, call Call) (err error) {
	stmt := gorqlite.ParameterizedStatement{
		Query: `insert into call (id, caller_id, contact_id, contact_name, status, created_at, last_updated_at)
values (?, ?, ?, ?, ?, ?, ?)
on conflict(id) do update
set
    caller_id = excluded.caller_id,
    contact_id = excluded.contact_id,
    contact_name = excluded.contact_name
`,
		Arguments: []any{call.ID, call.CallerID, call.ContactID, call.ContactName, string(call.Status), call.CreatedAt, call.LastUpdatedAt},
	}
	if _, err = q.conn.WriteOneParameterizedContext(ctx, stmt); err != nil {
		return fmt.Errorf("db: failed to put call caller: %w", err)
	}
	return nil
}

func (q *Queries) CallGet(ctx context.Context, id string) (call Call, ok bool, err error) {
	stmt := gorqlite.ParameterizedStatement{
		Query:     `select id, caller_id, contact_id, contact_name, status, created_at, last_updated_at from call where id = ?`,
		Arguments: []any{id},
	}
	result, err := q.conn.QueryOneParameterizedContext(ctx, stmt)
	if err != nil {
		return Call{}, false, err
	}
	if !result.Next() {
		return Call{}, false, nil
	}
	var status string
	if err = result.Scan(&call.ID, &call.CallerID, &call.ContactID, &call.ContactName, &status, &call.CreatedAt, &call.LastUpdatedAt); err != nil {
		return Call{}, false, err
	}
	call.Status = CallStatus(status)
	return call, true, nil
}

// CallList returns the most recently updated calls first.
func (q *Queries) CallList(ctx context.Context, limit int) (calls []Call, err error) {
	stmt := gorqlite.ParameterizedStatement{
		Query:     `select id, caller_id, contact_id, contact_name, status, created_at, last_updated_at from call order by last_updated_at desc limit ?`,
		Arguments: []any{limit},
	}
	result, err := q.conn.QueryOneParameterizedContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	for result.Next() {
		var call Call
		var status string
		if err = result.Scan(&call.ID, &call.CallerID, &call.ContactID, &call.ContactName, &status, &call.CreatedAt, &call.LastUpdatedAt); err != nil {
			return calls, err
		}
		call.Status = CallStatus(status)
		calls = append(calls, call)
	}
	return calls, nil
}
