package gate

import "github.com/DTMBX/evident/internal/models"

// OperationDescriptor names a protected operation and the requirements a
// caller must satisfy before it runs (spec.md §4.8 step 2-5): a tier
// floor, an optional feature flag, and the usage counter it charges
// against on success.
type OperationDescriptor struct {
	Name            string
	TierFloor       models.Tier
	RequiredFeature string // empty means no feature flag is required
	Counter         models.CounterName
	OperationClass  string // rate-bucket key component, e.g. "upload", "process"
	AuditWorthy     bool   // logged on every grant, not only on denial
}
