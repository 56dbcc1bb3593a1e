// Package export builds the Audit Export Bundle (spec.md §6.3): a ZIP a
// court can be handed directly, containing the canonical analysis result,
// the original evidence bytes, the full chain-of-custody, and a manifest
// binding all three together with a single digest. Grounded on the
// Content Store's own content-addressing discipline (internal/blobstore)
// rather than any archive/bundle library in the retrieved corpus —
// archive/zip and crypto/sha256 are standard library because no pack
// repo imports a third-party ZIP writer.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/DTMBX/evident/internal/apperrors"
	"github.com/DTMBX/evident/internal/audit"
	"github.com/DTMBX/evident/internal/blobstore"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/report"
)

// Bundler assembles export bundles from already-persisted state. It holds
// no cache or event bus: an export is a read-only, on-demand projection,
// never itself cached or published (spec.md §6.3 names no such
// requirement, and re-deriving it keeps the bundle always current with
// the latest chain-of-custody entries).
type Bundler struct {
	evidenceDB *db.EvidenceDB
	analysisDB *db.AnalysisDB
	blobs      *blobstore.Store
	auditor    *audit.Logger
}

// New builds a Bundler from its dependencies.
func New(evidenceDB *db.EvidenceDB, analysisDB *db.AnalysisDB, blobs *blobstore.Store, auditor *audit.Logger) *Bundler {
	return &Bundler{evidenceDB: evidenceDB, analysisDB: analysisDB, blobs: blobs, auditor: auditor}
}

// manifest is the JSON document stored at manifest.json inside the ZIP.
type manifest struct {
	ContentDigest          string `json:"content_digest"`
	Fingerprint            string `json:"fingerprint"`
	AnalyzerProfileVersion string `json:"analyzer_profile_version"`
	CreatedAt              string `json:"created_at"`
	BundleDigest           string `json:"bundle_digest"`
}

// Build assembles the ZIP bundle for a completed analysis result. The
// three content files (canonical.json, evidence.bin, chain.jsonl) are
// written in that fixed order and with zip.Store (no compression), so
// that a fixed AnalysisResult and a fixed evidence blob always produce
// the same bytes for those three entries and the same bundle_digest —
// spec.md §6.3's S6 determinism property does not extend to manifest.json
// itself, since created_at is wall-clock time at export.
func (b *Bundler) Build(ctx context.Context, analysisID string) ([]byte, error) {
	result, err := b.analysisDB.GetByID(ctx, analysisID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NotFound, "analysis result not found", err)
	}

	ev, err := b.evidenceDB.Get(ctx, result.EvidenceID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NotFound, "evidence not found for analysis result", err)
	}

	canonicalJSON, err := report.Render(result, report.FormatCanonicalJSON)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to render canonical analysis result", err)
	}

	evidenceBytes, err := b.readAndVerify(ev.ContentDigest)
	if err != nil {
		return nil, err
	}

	chainJSONL, err := b.chainOfCustody(ctx, ev.ID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.DatabaseError, "failed to load chain of custody", err)
	}

	bundleDigest := sha256.Sum256(concat(canonicalJSON, evidenceBytes, chainJSONL))

	manifestJSON, err := json.Marshal(manifest{
		ContentDigest:          ev.ContentDigest,
		Fingerprint:            result.Fingerprint,
		AnalyzerProfileVersion: result.AnalyzerProfileVersion,
		CreatedAt:              time.Now().UTC().Format(time.RFC3339),
		BundleDigest:           hex.EncodeToString(bundleDigest[:]),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to marshal export manifest", err)
	}

	return writeZIP([]zipEntry{
		{name: "canonical.json", data: canonicalJSON},
		{name: "evidence.bin", data: evidenceBytes},
		{name: "chain.jsonl", data: chainJSONL},
		{name: "manifest.json", data: manifestJSON},
	})
}

// readAndVerify reads the full blob for digest and re-hashes it, failing
// with a non-retryable IntegrityError if the stored bytes no longer match
// their own content digest (spec.md §6.3: "re-hash on unpack MUST equal
// content digest").
func (b *Bundler) readAndVerify(digest string) ([]byte, error) {
	f, err := b.blobs.Open(digest)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.DependencyUnavailable, "failed to open stored evidence blob", err)
	}
	defer f.Close()

	h := sha256.New()
	var buf bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(&buf, h), f); err != nil {
		return nil, apperrors.Wrap(apperrors.IntegrityError, "failed to read stored evidence blob", err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != digest {
		return nil, apperrors.New(apperrors.IntegrityError, fmt.Sprintf("stored blob digest %s does not match recorded digest %s", got, digest))
	}
	return buf.Bytes(), nil
}

// chainOfCustody renders the full ordered audit trail for subject as
// newline-delimited JSON, one AuditEvent per line, in the monotonic
// (day_partition, sequence) order audit.Logger.ForSubject already returns.
func (b *Bundler) chainOfCustody(ctx context.Context, subject string) ([]byte, error) {
	events, err := b.auditor.ForSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("export: failed to encode audit event %s: %w", e.ID, err)
		}
	}
	return buf.Bytes(), nil
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

type zipEntry struct {
	name string
	data []byte
}

func writeZIP(entries []zipEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:   e.name,
			Method: zip.Store,
		})
		if err != nil {
			return nil, fmt.Errorf("export: failed to create zip entry %s: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("export: failed to write zip entry %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("export: failed to finalize zip archive: %w", err)
	}
	return buf.Bytes(), nil
}
