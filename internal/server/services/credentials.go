// Package services contains server-side business logic. This file implements
// CredentialService, the only component that reads or writes stored
// credentials.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
)

// CredentialService registers accounts and checks passwords.
type CredentialService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

func NewCredentialService(db *sql.DB, m repomanager.RepositoryManager) *CredentialService {
	return &CredentialService{db: db, repomanager: m, now: time.Now}
}

// Create registers username with a freshly salted password hash. It returns
// ErrInvalidCredentials for empty input, ErrReservedUsername for the
// announcement sender name and ErrDuplicateUsername if the name is taken.
func (s *CredentialService) Create(ctx context.Context, username, password string) error {
	if err := validate(username, password); err != nil {
		return err
	}
	if strings.EqualFold(username, common.ServerSenderName) {
		return common.ErrReservedUsername
	}

	salt := common.GenerateRandByteArray(common.SaltSize)
	user := &models.User{
		UserName:     username,
		PasswordHash: cryptox.HashPassword([]byte(password), salt),
		Salt:         salt,
		CreatedAt:    s.now().UTC(),
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Users(tx).Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateUsername) {
			return common.ErrDuplicateUsername
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

// Verify checks password against the stored hash for username. It returns
// ErrorNotFound for unknown users and ErrWrongPassword on mismatch.
func (s *CredentialService) Verify(ctx context.Context, username, password string) error {
	if err := validate(username, password); err != nil {
		return err
	}

	user, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error loading user: %w", err)
	}

	if !cryptox.VerifyPassword(user.PasswordHash, []byte(password), user.Salt) {
		return common.ErrWrongPassword
	}
	return nil
}

func validate(username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return common.ErrInvalidCredentials
	}
	return nil
}
