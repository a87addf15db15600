package newsletter

import (
	"time"

	"github.com/google/uuid"
)

// LinkType discriminates the two pending one-time actions.
type LinkType string

const (
	LinkConfirmation LinkType = "confirmation"
	LinkUnsubscribe  LinkType = "unsubscribe"
)

// Link is a pending one-time action awaiting redemption of its thumbprint.
// At most one Link exists per (email, type); thumbprints are unique across
// the whole table regardless of type.
type Link struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Email      string    `json:"email" db:"email"`
	Name       string    `json:"name" db:"name"`
	Type       LinkType  `json:"type" db:"type"`
	Thumbprint string    `json:"thumbprint" db:"thumbprint"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Subscriber is a confirmed mailing-list member.
type Subscriber struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	SubscribedAt time.Time `json:"subscribed_at" db:"subscribed_at"`
}
