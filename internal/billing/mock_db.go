package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/kamilpajak/commentguard/internal/database"
)

// MockCreditDB is a mock implementation of CreditDB for testing.
type MockCreditDB struct {
	GetOrCreateUserFn func(ctx context.Context, kindeID, email string, initialCredits int) (*database.User, error)
	AdjustCreditsFn   func(ctx context.Context, userID uuid.UUID, delta int, reason string, scanRunID *uuid.UUID) (*database.LedgerEntry, error)
	CreateScanRunFn   func(ctx context.Context, run database.ScanRun) (*database.ScanRun, error)
	GetScanRunFn      func(ctx context.Context, id uuid.UUID) (*database.ScanRun, error)
	DeleteScanRunFn   func(ctx context.Context, id uuid.UUID) error
}

// GetOrCreateUser calls the mock function.
func (m *MockCreditDB) GetOrCreateUser(ctx context.Context, kindeID, email string, initialCredits int) (*database.User, error) {
	if m.GetOrCreateUserFn != nil {
		return m.GetOrCreateUserFn(ctx, kindeID, email, initialCredits)
	}
	return &database.User{ID: uuid.New(), KindeID: kindeID, Email: email, Credits: initialCredits}, nil
}

// AdjustCredits calls the mock function.
func (m *MockCreditDB) AdjustCredits(ctx context.Context, userID uuid.UUID, delta int, reason string, scanRunID *uuid.UUID) (*database.LedgerEntry, error) {
	if m.AdjustCreditsFn != nil {
		return m.AdjustCreditsFn(ctx, userID, delta, reason, scanRunID)
	}
	return &database.LedgerEntry{ID: uuid.New(), UserID: userID, Delta: delta, Reason: reason, ScanRunID: scanRunID}, nil
}

// CreateScanRun calls the mock function.
func (m *MockCreditDB) CreateScanRun(ctx context.Context, run database.ScanRun) (*database.ScanRun, error) {
	if m.CreateScanRunFn != nil {
		return m.CreateScanRunFn(ctx, run)
	}
	return &run, nil
}

// GetScanRun calls the mock function.
func (m *MockCreditDB) GetScanRun(ctx context.Context, id uuid.UUID) (*database.ScanRun, error) {
	if m.GetScanRunFn != nil {
		return m.GetScanRunFn(ctx, id)
	}
	return nil, nil
}

// DeleteScanRun calls the mock function.
func (m *MockCreditDB) DeleteScanRun(ctx context.Context, id uuid.UUID) error {
	if m.DeleteScanRunFn != nil {
		return m.DeleteScanRunFn(ctx, id)
	}
	return nil
}
