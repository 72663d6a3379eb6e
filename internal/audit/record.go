package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeWarning Outcome = "warning"
)

type Action string

const (
	ActionLogin          Action = "login"
	ActionLogout         Action = "logout"
	ActionRegister       Action = "register"
	ActionPasswordChange Action = "password_change"
	ActionOrderCreate    Action = "order_create"
	ActionPaymentSuccess Action = "payment_success"
	ActionAdminAction    Action = "admin_action"
	ActionSecurityEvent  Action = "security_event"
)

// SecurityActions is the subset of actions the security-event feed and the
// Kafka mirror care about.
func SecurityActions() []Action {
	return []Action{
		ActionLogin,
		ActionLogout,
		ActionRegister,
		ActionPasswordChange,
		ActionAdminAction,
		ActionSecurityEvent,
	}
}

// Record is one immutable audit entry. Timestamp and ID are assigned by the
// store at write time, never by the caller.
type Record struct {
	ID             uuid.UUID      `json:"id"`
	Actor          *uuid.UUID     `json:"actor,omitempty"`
	Action         Action         `json:"action"`
	Details        map[string]any `json:"details,omitempty"`
	NetworkAddress string         `json:"network_address,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	Outcome        Outcome        `json:"outcome"`
	Timestamp      time.Time      `json:"timestamp"`
	HTTPMethod     string         `json:"http_method,omitempty"`
	Path           string         `json:"path,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	RequestID      string         `json:"request_id,omitempty"`
}

// Filter narrows a query; zero values mean "any". Page is 1-based.
type Filter struct {
	Actor   *uuid.UUID
	Actions []Action
	Outcome Outcome
	Since   time.Time
	Until   time.Time
	Page    int
	Limit   int
}

type ActionSummary struct {
	Action   Action    `json:"action"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

type Store interface {
	Insert(ctx context.Context, rec *Record) error
	// Query returns matching records newest first, plus the total match count
	// before pagination.
	Query(ctx context.Context, f Filter) ([]Record, int, error)
	CountSince(ctx context.Context, actions []Action, outcome Outcome, since time.Time) (int, error)
	SummarizeByAction(ctx context.Context, actor uuid.UUID, since time.Time) ([]ActionSummary, error)
	Recent(ctx context.Context, n int) ([]Record, error)
	// Purge is the only path that ever removes records.
	Purge(ctx context.Context, before time.Time) (int64, error)
}
