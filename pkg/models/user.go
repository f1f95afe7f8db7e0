package models

import "time"

// User is created exclusively by the webhook ledger (spec.md §3); there is
// no self-service sign-up path in this system.
type User struct {
	UserID             string    `db:"user_id" json:"user_id"`
	Email              string    `db:"email" json:"email"`
	ExternalIdentityID *string   `db:"external_identity_id" json:"external_identity_id,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}
