// Package models holds the server's persistent record types.
package models

import "time"

// User is a registered chat account. Records are created on signup and
// never modified afterwards.
type User struct {
	UserName     string
	PasswordHash []byte
	Salt         []byte
	CreatedAt    time.Time
}
