package ledger

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"ledger-serverless/internal/apperr"
)

const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 50
	maxVendorLength    = 100
)

type Store interface {
	AddLoan(ctx context.Context, userID, vendor string, amount Amount) (Amount, error)
	ClearLoan(ctx context.Context, userID, vendor string, amount Amount) (Amount, error)
	GetLoan(ctx context.Context, userID, vendor string) (Amount, error)
	RecentTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
}

type AccountChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type Service struct {
	store    Store
	accounts AccountChecker
}

func NewService(store Store, accounts AccountChecker) *Service {
	return &Service{store: store, accounts: accounts}
}

func (s *Service) AddLoan(ctx context.Context, userID, vendor string, amount Amount) (Amount, error) {
	userID, vendor, err := validateLoanInput(userID, vendor, amount)
	if err != nil {
		return 0, err
	}

	balance, err := s.store.AddLoan(ctx, userID, vendor, amount)
	if err != nil {
		return 0, translateStoreError(err, "failed to add loan")
	}
	return balance, nil
}

func (s *Service) ClearLoan(ctx context.Context, userID, vendor string, amount Amount) (Amount, error) {
	userID, vendor, err := validateLoanInput(userID, vendor, amount)
	if err != nil {
		return 0, err
	}

	balance, err := s.store.ClearLoan(ctx, userID, vendor, amount)
	if err != nil {
		return 0, translateStoreError(err, "failed to clear loan")
	}
	return balance, nil
}

func (s *Service) GetLoan(ctx context.Context, userID, vendor string) (Amount, error) {
	userID = strings.TrimSpace(userID)
	vendor = strings.TrimSpace(vendor)
	if userID == "" || vendor == "" {
		return 0, apperr.Validation("Missing userId or vendor")
	}

	balance, err := s.store.GetLoan(ctx, userID, vendor)
	if err != nil {
		return 0, apperr.Store("failed to read loan", err)
	}
	return balance, nil
}

// RecentTransactions returns at most limit entries for an existing account,
// newest first. A non-positive limit means DefaultRecentLimit.
func (s *Service) RecentTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	exists, err := s.accounts.Exists(ctx, userID)
	if err != nil {
		return nil, apperr.Store("failed to fetch transactions", err)
	}
	if !exists {
		return nil, apperr.NotFound("User not found")
	}

	transactions, err := s.store.RecentTransactions(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Store("failed to fetch transactions", err)
	}
	return transactions, nil
}

func validateLoanInput(userID, vendor string, amount Amount) (string, string, error) {
	userID = strings.TrimSpace(userID)
	vendor = strings.TrimSpace(vendor)

	if userID == "" || vendor == "" {
		return "", "", apperr.Validation("Missing fields in request")
	}
	if !utf8.ValidString(vendor) || utf8.RuneCountInString(vendor) > maxVendorLength {
		return "", "", apperr.Validation("vendor is invalid")
	}
	if amount <= 0 {
		return "", "", apperr.Validation("amount must be greater than 0")
	}
	if amount > MaxAmount {
		return "", "", apperr.Validation("amount is too large")
	}
	return userID, vendor, nil
}

func translateStoreError(err error, message string) error {
	if errors.Is(err, ErrUnknownAccount) {
		return apperr.Validation("user not found")
	}
	return apperr.Store(message, err)
}
