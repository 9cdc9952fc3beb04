package types

import "time"

// User is an account holder. PasswordHash is never serialized.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is a server-side login session. Only the token hash is stored.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Note is a user-owned text note.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteUsage summarizes a user's consumption of the note quota.
// Limit and Remaining are nil for unlimited plans.
type NoteUsage struct {
	Plan      Plan `json:"plan"`
	Count     int  `json:"count"`
	Limit     *int `json:"limit"`
	Remaining *int `json:"remaining"`
	CanCreate bool `json:"can_create"`
}
