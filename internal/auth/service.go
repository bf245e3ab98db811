// Package auth implements teacher account registration, login, and
// recovery-code password reset over a credential store.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"classlink/pkg/interfaces"
	"classlink/pkg/types"
)

// Recovery codes use an alphabet without 0/O or 1/I so teachers can read
// one off a printout without ambiguity.
const (
	recoveryCodeLength   = 12
	recoveryCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Service handles teacher authentication against the credential store.
type Service struct {
	credentials interfaces.CredentialStore
	logger      *zap.Logger
}

// NewService creates a new authentication service.
func NewService(credentials interfaces.CredentialStore, logger *zap.Logger) *Service {
	return &Service{
		credentials: credentials,
		logger:      logger,
	}
}

// Register creates a teacher account and returns the one-time recovery
// code. The code is displayed exactly once: only its hash is stored and
// nothing can regenerate it.
func (s *Service) Register(ctx context.Context, teacherID, username, password string) (string, error) {
	if !types.IsValidTeacherID(teacherID) {
		return "", types.ErrInvalidTeacherID
	}
	if password == "" {
		return "", ErrEmptyPassword
	}
	if username == "" {
		username = teacherID
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	recoveryCode, err := generateRecoveryCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate recovery code: %w", err)
	}
	recoveryHash, err := bcrypt.GenerateFromPassword([]byte(recoveryCode), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash recovery code: %w", err)
	}

	cred := &types.Credential{
		TeacherID:        teacherID,
		Username:         username,
		PasswordHash:     string(passwordHash),
		RecoveryCodeHash: string(recoveryHash),
		CreatedAt:        time.Now(),
	}

	if err := s.credentials.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, interfaces.ErrDuplicateTeacherID) {
			return "", ErrDuplicateID
		}
		return "", fmt.Errorf("failed to create credential: %w", err)
	}

	s.logger.Info("teacher registered", zap.String("teacher_id", teacherID))
	return recoveryCode, nil
}

// Login verifies a teacher's password. Unknown IDs and wrong passwords
// are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, teacherID, password string) (*types.Credential, error) {
	cred, err := s.credentials.GetCredential(ctx, teacherID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return cred, nil
}

// ResetPassword replaces a teacher's password after verifying the
// recovery code. The code stays valid afterwards: it is the account's
// single, permanent recovery secret.
func (s *Service) ResetPassword(ctx context.Context, teacherID, recoveryCode, newPassword string) error {
	if newPassword == "" {
		return ErrEmptyPassword
	}

	cred, err := s.credentials.GetCredential(ctx, teacherID)
	if err != nil {
		return ErrInvalidRecoveryCode
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.RecoveryCodeHash), []byte(recoveryCode)); err != nil {
		return ErrInvalidRecoveryCode
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.credentials.UpdatePassword(ctx, teacherID, string(passwordHash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("password reset", zap.String("teacher_id", teacherID))
	return nil
}

func generateRecoveryCode() (string, error) {
	buf := make([]byte, recoveryCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, recoveryCodeLength)
	for i, b := range buf {
		code[i] = recoveryCodeAlphabet[int(b)%len(recoveryCodeAlphabet)]
	}
	return string(code), nil
}
