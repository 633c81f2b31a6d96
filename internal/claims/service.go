package claims

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"supercv-backend/internal/analyses"
	"supercv-backend/internal/credits"
	"supercv-backend/internal/shared/metrics"
	"supercv-backend/internal/shared/telemetry"
)

// AccountReader returns an account's current ledger state.
type AccountReader interface {
	Get(ctx context.Context, accountID string) (credits.Account, error)
}

// Service re-homes anonymous analysis records to an authenticated account.
type Service struct {
	Records analyses.Repo
	Ledger  AccountReader

	now func() time.Time
}

// NewService constructs a claim Service.
func NewService(records analyses.Repo, ledger AccountReader) *Service {
	return &Service{
		Records: records,
		Ledger:  ledger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Claim binds an anonymous record to accountID when token matches the record's
// claim token. The token is single-use: it is cleared together with setting
// the owner, under the record's lock, so a second claim always fails with
// ErrAlreadyClaimed. No credit is charged.
func (s *Service) Claim(ctx context.Context, recordID, token, accountID string) (credits.Account, error) {
	recordID = strings.TrimSpace(recordID)
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return credits.Account{}, ErrAccountNotFound
	}
	if _, err := s.Ledger.Get(ctx, accountID); err != nil {
		if errors.Is(err, credits.ErrNotFound) {
			return credits.Account{}, ErrAccountNotFound
		}
		return credits.Account{}, err
	}

	_, err := s.Records.Update(ctx, recordID, func(rec *analyses.Record) error {
		if rec.OwnerID != nil {
			return ErrAlreadyClaimed
		}
		if !tokenMatches(rec.ClaimToken, token) {
			return ErrInvalidToken
		}
		owner := accountID
		rec.OwnerID = &owner
		rec.ClaimToken = ""
		rec.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		if errors.Is(err, analyses.ErrNotFound) {
			err = ErrNotFound
		}
		metrics.IncClaim(outcome(err))
		telemetry.Warn("analysis.claim_rejected", map[string]any{
			"analysis_id": recordID,
			"account_id":  accountID,
			"error":       err,
		})
		return credits.Account{}, err
	}

	metrics.IncClaim("ok")
	telemetry.Info("analysis.claimed", map[string]any{
		"analysis_id": recordID,
		"account_id":  accountID,
	})
	return s.Ledger.Get(ctx, accountID)
}

func tokenMatches(stored, supplied string) bool {
	if stored == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	default:
		return "error"
	}
}
