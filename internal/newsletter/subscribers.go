package newsletter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubscriptionLedger tracks confirmed subscribers.
type SubscriptionLedger interface {
	Exists(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, sub *Subscriber) error
	Remove(ctx context.Context, email string) error
	ListAll(ctx context.Context) ([]Subscriber, error)
}

// SubscriberStore is the Postgres-backed SubscriptionLedger.
type SubscriberStore struct {
	db *sql.DB
}

// NewSubscriberStore creates a subscriber store on the given database handle.
func NewSubscriberStore(db *sql.DB) *SubscriberStore {
	return &SubscriberStore{db: db}
}

// EnsureSubscriberSchema provisions the subscribers table. The unique email
// constraint is what makes concurrent Confirm calls resolve to exactly one
// subscriber row.
func EnsureSubscriberSchema(ctx context.Context, db *sql.DB) error {
	const schema = `CREATE TABLE IF NOT EXISTS newsletter_subscribers (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		subscribed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT newsletter_subscribers_email_key UNIQUE (email)
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("provisioning newsletter_subscribers: %w", err)
	}
	return nil
}

// Exists reports whether a confirmed subscriber exists for the email.
func (s *SubscriberStore) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM newsletter_subscribers WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Insert persists a new subscriber. A duplicate email is rejected with
// ErrDuplicateKey even when the caller checked Exists first; the constraint
// is the authority, not the earlier read.
func (s *SubscriberStore) Insert(ctx context.Context, sub *Subscriber) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO newsletter_subscribers (id, email, name, subscribed_at) VALUES ($1, $2, $3, $4)`,
		sub.ID, sub.Email, sub.Name, sub.SubscribedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("subscriber %s: %w", sub.Email, ErrDuplicateKey)
	}
	return err
}

// Remove deletes the subscriber for the email, if any.
func (s *SubscriberStore) Remove(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM newsletter_subscribers WHERE email = $1`, email)
	return err
}

// ListAll returns every confirmed subscriber, materialized.
func (s *SubscriberStore) ListAll(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, name, subscribed_at FROM newsletter_subscribers ORDER BY subscribed_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscriber
	for rows.Next() {
		var sub Subscriber
		if err := rows.Scan(&sub.ID, &sub.Email, &sub.Name, &sub.SubscribedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
