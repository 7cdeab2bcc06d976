package service

import (
	"context"
	"strings"

	"github.com/spec-kit/loyalty-scanner/internal/auth"
	"github.com/spec-kit/loyalty-scanner/internal/config"
	"github.com/spec-kit/loyalty-scanner/internal/domain"
	apperrors "github.com/spec-kit/loyalty-scanner/pkg/util/errorutil"
)

const operatorSubjectID = "terminal-operator"

// AuthService coordinates operator login.
type AuthService struct {
	pinHash    string
	merchantID string
	tokenMgr   *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, tokenMgr *auth.TokenManager) *AuthService {
	return &AuthService{
		pinHash:    cfg.Auth.OperatorPINHash,
		merchantID: cfg.Scanner.MerchantID,
		tokenMgr:   tokenMgr,
	}
}

// LoginOperator exchanges the terminal PIN for a merchant scoped token.
func (s *AuthService) LoginOperator(_ context.Context, pin string) (string, domain.Token, error) {
	if strings.TrimSpace(s.pinHash) == "" {
		return "", domain.Token{}, apperrors.NewForbidden("operator login disabled")
	}
	if pin == "" {
		return "", domain.Token{}, apperrors.NewValidationError("pin required", nil)
	}
	if err := auth.ComparePIN(s.pinHash, pin); err != nil {
		return "", domain.Token{}, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.tokenMgr.GenerateToken(operatorSubjectID, domain.SubjectTypeOperator, s.merchantID)
}
