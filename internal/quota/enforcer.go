// Package quota enforces the Access & Quota Gate's monthly-counter check
// (spec.md §4.8 step 5): a principal's current UsageCounter value for a
// given counter must stay below its tier's configured monthly limit.
//
// Rate-limiting (the Gate's per-instant token bucket, step 4) is a
// separate concern, see internal/ratebucket; this package only enforces
// the month-bounded ceiling.
package quota

import (
	"context"
	"fmt"

	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/config"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/models"
)

// Enforcer checks a principal's monthly usage against their tier's limits.
// It is stateless and safe for concurrent use; the only state it reads
// lives in usageDB and cfg.
type Enforcer struct {
	usageDB *db.UsageDB
	cfg     *config.Config
}

// NewEnforcer builds an Enforcer over the given usage counter store and
// configuration's tier limits.
func NewEnforcer(usageDB *db.UsageDB, cfg *config.Config) *Enforcer {
	return &Enforcer{usageDB: usageDB, cfg: cfg}
}

// Check verifies that charging amount more of counter for userID's tier
// would not exceed the tier's monthly limit. It does not itself charge —
// that happens via db.UsageDB.Increment once the protected operation
// completes, per spec.md §4.8's Gate/Charge split.
func (e *Enforcer) Check(ctx context.Context, userID string, tier models.Tier, counter models.CounterName, amount float64) error {
	limit, ok := e.cfg.LimitFor(string(tier)).MonthlyLimit(string(counter))
	if !ok {
		return fmt.Errorf("quota: unrecognized counter %q", counter)
	}
	if limit < 0 {
		return nil
	}

	usage, err := e.usageDB.Get(ctx, userID)
	if err != nil {
		return apperrors.Wrap(apperrors.DatabaseError, "failed to read usage counters", err)
	}

	current := currentValue(usage, counter)
	if current+amount > limit {
		return apperrors.New(apperrors.QuotaExceeded, fmt.Sprintf("%s quota exceeded for %s tier", counter, tier)).
			WithCorrelationID(userID)
	}
	return nil
}

func currentValue(u *models.UsageCounter, counter models.CounterName) float64 {
	switch counter {
	case models.CounterPDFDocuments:
		return float64(u.PDFDocumentsProcessed)
	case models.CounterVideosProcessed:
		return float64(u.VideosProcessed)
	case models.CounterVideoHours:
		return u.VideoHours
	case models.CounterTranscriptionMinutes:
		return u.TranscriptionMinutes
	case models.CounterAPICalls:
		return float64(u.APICalls)
	case models.CounterCasesCreated:
		return float64(u.CasesCreated)
	default:
		return 0
	}
}
