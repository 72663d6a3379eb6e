package report

import (
	"context"
	"fmt"
	"time"

	"github.com/SupragyaBasnet/StepStunner-sub001/internal/audit"
	"github.com/SupragyaBasnet/StepStunner-sub001/internal/storage"
	"github.com/google/uuid"
)

// UserCounter is the slice of user persistence the stats view needs.
type UserCounter interface {
	CountUsers(ctx context.Context) (storage.UserCounts, error)
}

type SystemStats struct {
	Users          storage.UserCounts `json:"users"`
	FailedLogins   WindowCounts       `json:"failed_logins"`
	SecurityEvents WindowCounts       `json:"security_events"`
	Recent         []audit.Record     `json:"recent"`
}

type WindowCounts struct {
	Last24h int `json:"last_24h"`
	Last7d  int `json:"last_7d"`
}

type AuditPage struct {
	Records []audit.Record `json:"records"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	Pages   int            `json:"pages"`
	Limit   int            `json:"limit"`
}

// Aggregator answers the admin dashboards from the audit trail. Read-only,
// computed on demand; an empty store yields zeros, never errors.
type Aggregator struct {
	records audit.Store
	users   UserCounter
	maxFeed int
	clock   func() time.Time
}

func New(records audit.Store, users UserCounter, maxFeed int) *Aggregator {
	if maxFeed <= 0 {
		maxFeed = 100
	}
	return &Aggregator{records: records, users: users, maxFeed: maxFeed, clock: time.Now}
}

// NewWithClock pins time for tests.
func NewWithClock(records audit.Store, users UserCounter, maxFeed int, clock func() time.Time) *Aggregator {
	a := New(records, users, maxFeed)
	a.clock = clock
	return a
}

// SecurityEvents returns audit-relevant records from the trailing window,
// newest first, capped to the configured feed size.
func (a *Aggregator) SecurityEvents(ctx context.Context, days, limit int) ([]audit.Record, error) {
	if days <= 0 {
		days = 7
	}
	if limit <= 0 || limit > a.maxFeed {
		limit = a.maxFeed
	}

	records, _, err := a.records.Query(ctx, audit.Filter{
		Actions: audit.SecurityActions(),
		Since:   a.clock().Add(-time.Duration(days) * 24 * time.Hour),
		Page:    1,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("security events: %w", err)
	}
	return records, nil
}

// UserActivitySummary groups a user's activity by action with last-seen
// timestamps, most recent action first.
func (a *Aggregator) UserActivitySummary(ctx context.Context, userID uuid.UUID, days int) ([]audit.ActionSummary, error) {
	if days <= 0 {
		days = 30
	}
	since := a.clock().Add(-time.Duration(days) * 24 * time.Hour)

	summaries, err := a.records.SummarizeByAction(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("user activity summary: %w", err)
	}
	return summaries, nil
}

// FailedLogins lists failed login records from the trailing window.
func (a *Aggregator) FailedLogins(ctx context.Context, hours int) ([]audit.Record, error) {
	if hours <= 0 {
		hours = 24
	}

	records, _, err := a.records.Query(ctx, audit.Filter{
		Actions: []audit.Action{audit.ActionLogin},
		Outcome: audit.OutcomeFailure,
		Since:   a.clock().Add(-time.Duration(hours) * time.Hour),
		Page:    1,
		Limit:   a.maxFeed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed logins: %w", err)
	}
	return records, nil
}

// Stats combines the point queries for the system dashboard. Partial absence
// of data means zero counts, not errors.
func (a *Aggregator) Stats(ctx context.Context) (*SystemStats, error) {
	now := a.clock()
	stats := &SystemStats{}

	if a.users != nil {
		counts, err := a.users.CountUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("user counts: %w", err)
		}
		stats.Users = counts
	}

	login := []audit.Action{audit.ActionLogin}
	security := audit.SecurityActions()

	var err error
	if stats.FailedLogins.Last24h, err = a.records.CountSince(ctx, login, audit.OutcomeFailure, now.Add(-24*time.Hour)); err != nil {
		return nil, fmt.Errorf("failed logins 24h: %w", err)
	}
	if stats.FailedLogins.Last7d, err = a.records.CountSince(ctx, login, audit.OutcomeFailure, now.Add(-7*24*time.Hour)); err != nil {
		return nil, fmt.Errorf("failed logins 7d: %w", err)
	}
	if stats.SecurityEvents.Last24h, err = a.records.CountSince(ctx, security, "", now.Add(-24*time.Hour)); err != nil {
		return nil, fmt.Errorf("security events 24h: %w", err)
	}
	if stats.SecurityEvents.Last7d, err = a.records.CountSince(ctx, security, "", now.Add(-7*24*time.Hour)); err != nil {
		return nil, fmt.Errorf("security events 7d: %w", err)
	}

	recent, err := a.records.Recent(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}
	stats.Recent = recent
	if stats.Recent == nil {
		stats.Recent = []audit.Record{}
	}

	return stats, nil
}

// AuditTrail pages through one user's records, newest first.
func (a *Aggregator) AuditTrail(ctx context.Context, userID uuid.UUID, page, limit int) (*AuditPage, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	records, total, err := a.records.Query(ctx, audit.Filter{
		Actor: &userID,
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("audit trail: %w", err)
	}

	pages := (total + limit - 1) / limit
	if records == nil {
		records = []audit.Record{}
	}
	return &AuditPage{
		Records: records,
		Total:   total,
		Page:    page,
		Pages:   pages,
		Limit:   limit,
	}, nil
}
