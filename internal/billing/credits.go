// Package billing charges scan calls against each user's credit balance.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kamilpajak/commentguard/internal/database"
	"github.com/kamilpajak/commentguard/internal/metrics"
)

// DefaultInitialCredits is granted to a user on first sight.
const DefaultInitialCredits = 100

// CreditDB defines the database operations needed by CreditChecker.
type CreditDB interface {
	GetOrCreateUser(ctx context.Context, kindeID, email string, initialCredits int) (*database.User, error)
	AdjustCredits(ctx context.Context, userID uuid.UUID, delta int, reason string, scanRunID *uuid.UUID) (*database.LedgerEntry, error)
	CreateScanRun(ctx context.Context, run database.ScanRun) (*database.ScanRun, error)
	GetScanRun(ctx context.Context, id uuid.UUID) (*database.ScanRun, error)
	DeleteScanRun(ctx context.Context, id uuid.UUID) error
}

// CreditChecker charges credits per scanned comment.
type CreditChecker struct {
	db             CreditDB
	PerComment     int
	InitialCredits int
}

// NewCreditChecker creates a checker charging perComment credits per
// scanned comment.
func NewCreditChecker(db CreditDB, perComment int) *CreditChecker {
	return &CreditChecker{db: db, PerComment: perComment, InitialCredits: DefaultInitialCredits}
}

// Charge is a completed deduction that can be refunded.
type Charge struct {
	UserID    uuid.UUID
	ScanRunID uuid.UUID
	Amount    int
}

// Account returns the caller's user record, creating it on first use.
func (c *CreditChecker) Account(ctx context.Context, kindeID, email string) (*database.User, error) {
	user, err := c.db.GetOrCreateUser(ctx, kindeID, email, c.InitialCredits)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("account not found: %s", kindeID)
	}
	return user, nil
}

// ChargeScan deducts credits for scanning comments. Zero-cost scans are
// not recorded.
func (c *CreditChecker) ChargeScan(ctx context.Context, kindeID, email string, comments int) (*Charge, error) {
	user, err := c.Account(ctx, kindeID, email)
	if err != nil {
		return nil, err
	}

	charge := &Charge{UserID: user.ID, ScanRunID: uuid.New(), Amount: comments * c.PerComment}
	if charge.Amount <= 0 {
		return charge, nil
	}

	_, err = c.db.AdjustCredits(ctx, user.ID, -charge.Amount, "scan", &charge.ScanRunID)
	if errors.Is(err, database.ErrInsufficientCredits) {
		return nil, &InsufficientCreditsError{Required: charge.Amount, Available: user.Credits}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to deduct credits: %w", err)
	}
	metrics.CreditsCharged.Add(float64(charge.Amount))
	return charge, nil
}

// Refund returns a charge after the scan it paid for failed. Retries can no
// longer ride on the refunded run.
func (c *CreditChecker) Refund(ctx context.Context, charge *Charge) error {
	if charge == nil || charge.Amount <= 0 {
		return nil
	}
	if err := c.db.DeleteScanRun(ctx, charge.ScanRunID); err != nil {
		return fmt.Errorf("failed to close scan run: %w", err)
	}
	_, err := c.db.AdjustCredits(ctx, charge.UserID, charge.Amount, "refund", &charge.ScanRunID)
	if err != nil {
		return fmt.Errorf("failed to refund credits: %w", err)
	}
	metrics.CreditsRefunded.Add(float64(charge.Amount))
	return nil
}

// InsufficientCreditsError is returned when a scan costs more than the
// caller's balance.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: scan needs %d, balance is %d", e.Required, e.Available)
}

// IsInsufficientCredits checks if an error is an InsufficientCreditsError.
func IsInsufficientCredits(err error) bool {
	var e *InsufficientCreditsError
	return errors.As(err, &e)
}
