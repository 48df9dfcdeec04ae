package service

import (
	"context"
	"time"

	"github.com/youcloud/sla-engine/internal/auth"
	"github.com/youcloud/sla-engine/internal/config"
	apperrors "github.com/youcloud/sla-engine/pkg/util"
)

// AuthService authenticates operators against the configured credentials.
// The engine has no user store of its own; operator identity comes from
// deployment configuration.
type AuthService struct {
	cfg      config.AuthConfig
	tokenMgr *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		cfg:      cfg,
		tokenMgr: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}
}

// Login verifies operator credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	if s.cfg.AdminPasswordHash == "" {
		return "", time.Time{}, apperrors.NewUnauthorized("operator login is not configured")
	}
	if email != s.cfg.AdminEmail {
		return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(s.cfg.AdminPasswordHash, password); err != nil {
		return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.tokenMgr.GenerateToken(s.cfg.AdminOperatorID, email)
}

// TokenManager exposes the manager for route middleware.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
