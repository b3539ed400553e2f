package billing

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/kamilpajak/commentguard/internal/database"
	"github.com/kamilpajak/commentguard/pkg/models"
)

// Digest fingerprints the ids and texts of comments in order. Scan results
// carried on the comments do not change it.
func Digest(comments []models.Comment) string {
	h := sha256.New()
	var n [8]byte
	write := func(s string) {
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	for i := range comments {
		write(comments[i].ID)
		write(comments[i].SourceText())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ChargeScanRun charges for scanning `charged` of comments and records the
// run, so restricted re-fetches of the same comments are free.
func (c *CreditChecker) ChargeScanRun(ctx context.Context, kindeID, email string, comments []models.Comment, charged int) (*Charge, error) {
	charge, err := c.ChargeScan(ctx, kindeID, email, charged)
	if err != nil {
		return nil, err
	}
	if charge.Amount <= 0 {
		return charge, nil
	}

	_, err = c.db.CreateScanRun(ctx, database.ScanRun{
		ID:       charge.ScanRunID,
		UserID:   charge.UserID,
		Digest:   Digest(comments),
		Comments: len(comments),
	})
	if err != nil {
		_ = c.Refund(context.WithoutCancel(ctx), charge)
		return nil, fmt.Errorf("failed to record scan run: %w", err)
	}
	return charge, nil
}

// RetryCovered reports whether a restricted re-fetch belongs to a paid run
// of the caller over the same comments. Free scanning covers everything.
func (c *CreditChecker) RetryCovered(ctx context.Context, kindeID, email, runID string, comments []models.Comment) (bool, error) {
	if c.PerComment <= 0 {
		return true, nil
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		return false, nil
	}
	user, err := c.Account(ctx, kindeID, email)
	if err != nil {
		return false, err
	}
	run, err := c.db.GetScanRun(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to load scan run: %w", err)
	}
	if run == nil || run.UserID != user.ID || run.Comments != len(comments) {
		return false, nil
	}
	return run.Digest == Digest(comments), nil
}
