// Package storage defines the persistence interfaces for the event journal
// and its non-event tables, plus the error types store implementations share.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mittbeet/mittbeet/internal/domain/event"
)

// ErrNotFound indicates a missing row.
var ErrNotFound = errors.New("not found")

// ErrNumberTaken indicates a document number collision on insert. The
// allocator treats it as a retryable condition.
var ErrNumberTaken = errors.New("document number already taken")

// ErrHarvestTaken indicates a delivery request already exists for a harvest.
var ErrHarvestTaken = errors.New("harvest already has a delivery request")

// WriteError wraps a database-level failure on a write path. It is always
// propagated, never swallowed: a silently lost fact would corrupt every
// downstream projection.
type WriteError struct {
	Op  string
	Err error
}

func (e WriteError) Error() string {
	return fmt.Sprintf("store write failed: %s: %v", e.Op, e.Err)
}

func (e WriteError) Unwrap() error {
	return e.Err
}

// EventQuery filters and pages the journal. Empty Types or AggregateIDs
// leave that dimension unfiltered. Results are ordered ascending by
// created_at with id as the tiebreak.
type EventQuery struct {
	Types        []event.Type
	AggregateIDs []string
	Offset       int
	Limit        int
}

// EventStore is the append-only journal. No update operation exists;
// DeleteEventByID is a narrow administrative correction and must never be
// called by projectors.
type EventStore interface {
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	QueryEvents(ctx context.Context, query EventQuery) ([]event.Event, error)
	DeleteEventByID(ctx context.Context, id int64) error
}

// AppendFunc appends an event within an enclosing transaction.
type AppendFunc func(evt event.Event) (event.Event, error)

// CalendarStore executes day-gated opens: callers racing on the same
// (account, year, day) serialize, exactly one append happens, and the side
// effect runs in the same transaction as the open event.
type CalendarStore interface {
	OpenCalendarDay(ctx context.Context, accountID string, year, day int, sideEffect func(ctx context.Context, append AppendFunc) error) (event.Event, error)
}

// GrantStatus is the review state of an achievement grant.
type GrantStatus string

const (
	GrantPending  GrantStatus = "pending"
	GrantApproved GrantStatus = "approved"
	GrantDenied   GrantStatus = "denied"
)

// Grant is one (account, achievement) row. The uniqueness constraint on that
// pair is what makes evaluator re-runs idempotent.
type Grant struct {
	AccountID  string
	Key        string
	Title      string
	Reward     int
	Status     GrantStatus
	GrantedAt  time.Time
	ApprovedAt *time.Time
	ApprovedBy string
	DeniedAt   *time.Time
	DeniedBy   string
}

// GrantStore persists achievement grants with conflict-free inserts and
// idempotent, audit-stamped review transitions.
type GrantStore interface {
	// EnsureGrant inserts the grant if absent. It reports whether a new row
	// was written; false means the grant already existed.
	EnsureGrant(ctx context.Context, grant Grant) (inserted bool, err error)
	GetGrant(ctx context.Context, accountID, key string) (Grant, error)
	ListGrants(ctx context.Context, accountID string) ([]Grant, error)
	// ApproveGrant stamps a pending grant approved. Re-approving is a no-op;
	// approving a denied grant fails.
	ApproveGrant(ctx context.Context, accountID, key, approvedBy string) (changed bool, err error)
	// DenyGrant stamps a pending grant denied. Re-denying is a no-op;
	// denying an approved grant fails.
	DenyGrant(ctx context.Context, accountID, key, deniedBy string) (changed bool, err error)
}

// Document is one externally numbered fiscal document. Numbers are unique
// per year across all kinds and allocated optimistically.
type Document struct {
	ID        string
	Kind      string
	Year      int
	Number    int
	CreatedAt time.Time
}

// DocumentStore persists numbered documents. InsertDocument returns
// ErrNumberTaken when the (year, number) pair is already used.
type DocumentStore interface {
	MaxDocumentNumber(ctx context.Context, year int) (int, error)
	NumberExists(ctx context.Context, year, number int) (bool, error)
	InsertDocument(ctx context.Context, doc Document) error
}

// DeliveryAnchorStore keeps the minimal delivery-request read-model rows.
// The rows carry no authority; they exist as join anchors and to enforce the
// one-request-per-harvest invariant via read-before-write plus a UNIQUE
// backstop.
type DeliveryAnchorStore interface {
	// CreateDeliveryRequest writes the anchor row and the creation event in
	// one transaction.
	CreateDeliveryRequest(ctx context.Context, requestID, harvestID string, created event.Event) (event.Event, error)
	GetRequestIDByHarvest(ctx context.Context, harvestID string) (string, error)
}
