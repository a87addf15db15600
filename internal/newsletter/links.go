package newsletter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// LinkLedger tracks pending confirmation and unsubscribe links.
type LinkLedger interface {
	Find(ctx context.Context, email string, linkType LinkType) (*Link, error)
	FindAny(ctx context.Context, email string) (bool, error)
	TryInsert(ctx context.Context, link *Link) (thumbprint string, inserted bool, err error)
	Consume(ctx context.Context, email string, linkType LinkType) error
	RemoveAllForEmail(ctx context.Context, email string) error
	ByThumbprint(ctx context.Context, thumbprint string, linkType LinkType) (*Link, error)
	ThumbprintExists(ctx context.Context, thumbprint string) (bool, error)
}

// LinkStore is the Postgres-backed LinkLedger.
type LinkStore struct {
	db *sql.DB
}

// NewLinkStore creates a link store on the given database handle.
func NewLinkStore(db *sql.DB) *LinkStore {
	return &LinkStore{db: db}
}

// EnsureLinkSchema provisions the links table and its two uniqueness
// constraints. The (email, type) and thumbprint unique indexes are the
// concurrency-safety mechanism for the whole link lifecycle; everything
// else builds on them.
func EnsureLinkSchema(ctx context.Context, db *sql.DB) error {
	const schema = `CREATE TABLE IF NOT EXISTS newsletter_links (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		thumbprint TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT newsletter_links_email_type_key UNIQUE (email, type),
		CONSTRAINT newsletter_links_thumbprint_key UNIQUE (thumbprint)
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("provisioning newsletter_links: %w", err)
	}
	return nil
}

// Find returns the pending link for (email, type), or nil when none exists.
func (s *LinkStore) Find(ctx context.Context, email string, linkType LinkType) (*Link, error) {
	query := `SELECT id, email, name, type, thumbprint, created_at
		FROM newsletter_links WHERE email = $1 AND type = $2`

	link := &Link{}
	err := s.db.QueryRowContext(ctx, query, email, string(linkType)).Scan(
		&link.ID, &link.Email, &link.Name, &link.Type, &link.Thumbprint, &link.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

// FindAny reports whether any link of either type exists for the email.
func (s *LinkStore) FindAny(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM newsletter_links WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// TryInsert persists the candidate link unless a link of the same type
// already exists for the email, in which case the existing thumbprint is
// returned unchanged. Concurrent callers racing on the same (email, type)
// are resolved by the unique constraint: the loser re-reads the winner's
// row instead of failing.
func (s *LinkStore) TryInsert(ctx context.Context, link *Link) (string, bool, error) {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}

	query := `INSERT INTO newsletter_links (id, email, name, type, thumbprint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email, type) DO NOTHING
		RETURNING thumbprint`

	var thumbprint string
	err := s.db.QueryRowContext(ctx, query,
		link.ID, link.Email, link.Name, string(link.Type), link.Thumbprint, link.CreatedAt).Scan(&thumbprint)
	if err == nil {
		return thumbprint, true, nil
	}
	if err != sql.ErrNoRows && !isUniqueViolation(err) {
		return "", false, err
	}

	// Another insert already won; hand back its thumbprint.
	existing, ferr := s.Find(ctx, link.Email, link.Type)
	if ferr != nil {
		return "", false, ferr
	}
	if existing == nil {
		return "", false, fmt.Errorf("link for %s/%s vanished after conflict: %w", link.Email, link.Type, ErrDuplicateKey)
	}
	return existing.Thumbprint, false, nil
}

// Consume deletes the pending link for (email, type).
func (s *LinkStore) Consume(ctx context.Context, email string, linkType LinkType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM newsletter_links WHERE email = $1 AND type = $2`, email, string(linkType))
	return err
}

// RemoveAllForEmail deletes every link for the email, both types, so stale
// tokens from either flow cannot later be redeemed.
func (s *LinkStore) RemoveAllForEmail(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM newsletter_links WHERE email = $1`, email)
	return err
}

// ByThumbprint resolves a token to its pending link, scoped by type so a
// confirmation token cannot be redeemed through the unsubscribe flow or
// vice versa. Returns nil when the token does not resolve.
func (s *LinkStore) ByThumbprint(ctx context.Context, thumbprint string, linkType LinkType) (*Link, error) {
	query := `SELECT id, email, name, type, thumbprint, created_at
		FROM newsletter_links WHERE thumbprint = $1 AND type = $2`

	link := &Link{}
	err := s.db.QueryRowContext(ctx, query, thumbprint, string(linkType)).Scan(
		&link.ID, &link.Email, &link.Name, &link.Type, &link.Thumbprint, &link.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

// ThumbprintExists reports whether a thumbprint is taken by any link of
// any type. Backs collision-checked token generation.
func (s *LinkStore) ThumbprintExists(ctx context.Context, thumbprint string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM newsletter_links WHERE thumbprint = $1)`, thumbprint).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
