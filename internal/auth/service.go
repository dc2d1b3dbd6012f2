package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ledger-serverless/internal/account"
	"ledger-serverless/internal/apperr"
	"ledger-serverless/internal/identity"
	"ledger-serverless/internal/lockout"
	"ledger-serverless/internal/observability"
)

type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string) (identity.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (identity.Session, error)
	SendPasswordResetEmail(ctx context.Context, email string) error
	SendEmailVerification(ctx context.Context, idToken string) error
	DeleteAccount(ctx context.Context, idToken string) error
}

type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (identity.Claims, error)
}

type AccountStore interface {
	Create(ctx context.Context, a account.Account) (account.Account, error)
	MarkForceLogout(ctx context.Context, email string) (int64, error)
}

type Service struct {
	provider IdentityProvider
	verifier TokenVerifier
	accounts AccountStore
	lockout  *lockout.Tracker
	logger   *observability.Logger
	now      func() time.Time
}

func NewService(
	provider IdentityProvider,
	verifier TokenVerifier,
	accounts AccountStore,
	tracker *lockout.Tracker,
	logger *observability.Logger,
) *Service {
	return &Service{
		provider: provider,
		verifier: verifier,
		accounts: accounts,
		lockout:  tracker,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type RegisterInput struct {
	Name      string
	StudentID string
	Email     string
	Password  string
}

type LoginResult struct {
	Message      string `json:"message"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
}

// Register creates the provider account and then the account record. If the
// record cannot be stored the provider account is deleted again.
func (s *Service) Register(ctx context.Context, in RegisterInput) (account.Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" || in.StudentID == "" || in.Email == "" || in.Password == "" {
		return account.Account{}, apperr.Validation("Missing fields in request")
	}

	session, err := s.provider.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		return account.Account{}, providerFailure(err, "Registration failed")
	}

	created, err := s.accounts.Create(ctx, account.Account{
		ID:        session.LocalID,
		Name:      in.Name,
		StudentID: in.StudentID,
		Email:     in.Email,
	})
	if err != nil {
		s.logger.Error("account_create_failed", map[string]any{
			"user_id": session.LocalID,
			"error":   err.Error(),
		})
		if delErr := s.provider.DeleteAccount(ctx, session.IDToken); delErr != nil {
			s.logger.Error("provider_account_rollback_failed", map[string]any{
				"user_id": session.LocalID,
				"error":   delErr.Error(),
			})
		}
		return account.Account{}, apperr.Store("failed to create user", err)
	}

	s.logger.Info("account_registered", map[string]any{"user_id": created.ID})
	return created, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)

	if email != "" {
		now := s.now()
		state, err := s.lockout.Check(ctx, email, now)
		if err != nil {
			return LoginResult{}, apperr.Store("failed to login", err)
		}
		if state.Locked(now) {
			return LoginResult{}, apperr.LockedOut(*state.LockedUntil)
		}
	}

	if email == "" || password == "" {
		return LoginResult{}, apperr.Validation("Email and password are required")
	}

	session, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		if _, rejected := identity.AsProviderError(err); rejected {
			s.recordFailure(ctx, email)
		}
		return LoginResult{}, providerFailure(err, "Login failed")
	}

	if err := s.lockout.RecordSuccess(ctx, email); err != nil {
		s.logger.Error("lockout_clear_failed", map[string]any{
			"email": lockout.Normalize(email),
			"error": err.Error(),
		})
	}

	return LoginResult{
		Message:      "Login successful",
		IDToken:      session.IDToken,
		RefreshToken: session.RefreshToken,
		UserID:       session.LocalID,
	}, nil
}

func (s *Service) recordFailure(ctx context.Context, email string) {
	state, err := s.lockout.RecordFailure(ctx, email)
	if err != nil {
		s.logger.Error("lockout_record_failed", map[string]any{
			"email": lockout.Normalize(email),
			"error": err.Error(),
		})
		return
	}
	if state.Locked(s.now()) && state.AttemptCount == s.lockout.Policy().Threshold {
		s.logger.Warn("account_locked", map[string]any{
			"email":        state.Identifier,
			"locked_until": state.LockedUntil.Format(time.RFC3339),
		})
	}
}

// RequestPasswordReset asks the provider to send a reset email and flags the
// account for forced logout. The flag is best effort.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.Validation("Email is required")
	}

	if err := s.provider.SendPasswordResetEmail(ctx, email); err != nil {
		return providerFailure(err, "Password reset failed")
	}

	updated, err := s.accounts.MarkForceLogout(ctx, email)
	switch {
	case err != nil:
		s.logger.Error("force_logout_failed", map[string]any{
			"email": lockout.Normalize(email),
			"error": err.Error(),
		})
	case updated == 0:
		s.logger.Warn("force_logout_account_missing", map[string]any{"email": lockout.Normalize(email)})
	}
	return nil
}

// VerifyToken returns the user id carried by a valid ID token. Failures never
// expose the reason to the caller.
func (s *Service) VerifyToken(ctx context.Context, idToken string) (string, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return "", apperr.Validation("ID token is required")
	}

	claims, err := s.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		s.logger.Info("token_rejected", map[string]any{"error": err.Error()})
		return "", apperr.Provider(http.StatusUnauthorized, "Token invalid", err)
	}
	return claims.Subject, nil
}

func (s *Service) SendVerificationEmail(ctx context.Context, idToken string) error {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return apperr.Validation("ID token is required")
	}

	if err := s.provider.SendEmailVerification(ctx, idToken); err != nil {
		return providerFailure(err, "Verification email failed")
	}
	return nil
}

// providerFailure passes provider rejections through verbatim. Transport
// failures become store errors so they reach Sentry.
func providerFailure(err error, fallback string) error {
	if pe, ok := identity.AsProviderError(err); ok {
		message := pe.Message
		if message == "" {
			message = fallback
		}
		return apperr.Provider(http.StatusBadRequest, message, err)
	}
	return apperr.Store(fallback, err)
}
