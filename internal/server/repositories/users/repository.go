// Package users persists chat accounts. Two dialects are provided: SQLite
// (the default single-file store) and PostgreSQL.
package users

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

// Repository stores user records.
//
// Create must insert atomically and report common.ErrDuplicateUsername when
// the username already exists, so that concurrent signups for one name
// cannot both succeed. GetUserByLogin reports common.ErrorNotFound for
// unknown names.
type Repository interface {
	Create(ctx context.Context, user *models.User) error
	GetUserByLogin(ctx context.Context, userName string) (*models.User, error)
}
