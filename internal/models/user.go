package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// User is an account that owns saved audio pairs.
type User struct {
	id           string
	sequence     int
	username     string
	email        string
	passwordHash string
	googleSub    string
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// NewUser creates a [User] with creation timestamps set to now.
func NewUser(sequence int, username, email string) *User {
	now := time.Now().UTC()
	return &User{
		sequence:  sequence,
		username:  strings.TrimSpace(username),
		email:     strings.ToLower(strings.TrimSpace(email)),
		createdAt: now,
		updatedAt: now,
	}
}

func (u *User) ID() string { return u.id }
func (u *User) Sequence() int { return u.sequence }
func (u *User) Username() string { return u.username }
func (u *User) Email() string { return u.email }
func (u *User) PasswordHash() string { return u.passwordHash }
func (u *User) GoogleSubject() string { return u.googleSub }
func (u *User) CreatedAt() time.Time { return u.createdAt }
func (u *User) UpdatedAt() time.Time { return u.updatedAt }
func (u *User) DeletedAt() *time.Time { return u.deletedAt }

func (u *User) SetID(id string) { u.id = id }
func (u *User) SetSequence(seq int) { u.sequence = seq }
func (u *User) SetPasswordHash(hash string) { u.passwordHash = hash }
func (u *User) SetGoogleSubject(sub string) { u.googleSub = sub }
func (u *User) SetCreatedAt(t time.Time) { u.createdAt = t }
func (u *User) SetUpdatedAt(t time.Time) { u.updatedAt = t }
func (u *User) SetDeletedAt(t *time.Time) { u.deletedAt = t }
func (u *User) SetEmail(email string) { u.email = strings.ToLower(strings.TrimSpace(email)) }
func (u *User) SetUsername(username string) { u.username = strings.TrimSpace(username) }
func (u *User) HasPassword() bool { return u.passwordHash != "" }
func (u *User) IsDeleted() bool { return u.deletedAt != nil }

// Validate requires a username and a syntactically valid email.
func (u *User) Validate() error {
	if u.username == "" {
		return fmt.Errorf("username is required")
	}
	if len(u.username) > 64 {
		return fmt.Errorf("username must be at most 64 characters")
	}
	if u.email == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(u.email); err != nil {
		return fmt.Errorf("invalid email %q", u.email)
	}
	return nil
}

// PublicUser is the JSON shape of a user returned to clients.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Public returns the client-safe view of the user.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.id, Username: u.username, Email: u.email}
}
