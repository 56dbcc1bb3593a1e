package processor

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/DTMBX/evident/internal/models"
)

// computeFingerprint derives the Evidence Processor's single-flight and
// cache key (spec.md §4.1): SHA-256 over the content digest, the declared
// type, and exactly the {case-number, analyzer-profile-version} context
// subset. Nothing else may influence it — two Process calls for the same
// evidence under the same analyzer profile always land on the same
// fingerprint, cache entry, and lease.
func computeFingerprint(contentDigest string, declaredType models.EvidenceType, caseNumber, analyzerProfileVersion string) string {
	h := sha256.New()
	h.Write([]byte(contentDigest))
	h.Write([]byte{'|'})
	h.Write([]byte(declaredType))
	h.Write([]byte{'|'})
	h.Write([]byte(caseNumber))
	h.Write([]byte{'|'})
	h.Write([]byte(analyzerProfileVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// resultID derives a stable AnalysisResult id from the evidence id and
// fingerprint, rather than a fresh random uuid, so a caller that learns the
// id before the pipeline finishes (BeginProcessing's pending row) can poll
// GetByID for the same id the completed row eventually lands under.
func resultID(evidenceID, fingerprint string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(evidenceID+"|"+fingerprint)).String()
}
