// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is the identity principal. The token core only reads it: it needs the
// ID, display name and role list for access-token claims and the password
// hash for credential verification.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}
