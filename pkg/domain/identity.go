// Package domain provides the shared identity and value types used across
// the TeamKard backend. All bounded contexts depend on these types.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ProjectID identifies a project. Projects themselves are managed by the
// relational layer; the realtime core only routes on the identifier.
type ProjectID int64

// UserID is a typed user identifier. String IDs for portability.
type UserID string

// IsZero returns true if the ID is empty.
func (id UserID) IsZero() bool { return id == "" }

// String implements fmt.Stringer.
func (id UserID) String() string { return string(id) }

// UserType classifies the account role carried in the identity token.
type UserType string

const (
	UserDefault UserType = "default"
	UserCurator UserType = "curator"
	UserAdmin   UserType = "admin"
)

// ParseUserType maps a token claim onto a known role, defaulting to the
// plain account type for anything unrecognized.
func ParseUserType(s string) UserType {
	switch UserType(s) {
	case UserCurator:
		return UserCurator
	case UserAdmin:
		return UserAdmin
	default:
		return UserDefault
	}
}

// User is the authenticated identity attached to a connection. Resolved
// once per connection and immutable afterwards.
type User struct {
	ID    UserID   `json:"id"`
	Login string   `json:"login"`
	Type  UserType `json:"type"`
}

// IsCurator reports whether the user may act on curator-only surfaces.
func (u User) IsCurator() bool { return u.Type == UserCurator || u.Type == UserAdmin }

// NewID generates a cryptographically random 16-byte hex identifier.
// Used for entities that need an ID before persistence assigns one.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("domain: failed to generate ID: %v", err))
	}
	return hex.EncodeToString(b)
}
