package models

import "time"

// Severity orders violations and compliance issues. Higher is more severe.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// Rank returns a numeric rank suitable for descending sort (critical highest).
func (s Severity) Rank() int { return severityRank[s] }

// AnalysisState tracks the lifecycle of an AnalysisResult.
type AnalysisState string

const (
	AnalysisPending   AnalysisState = "pending"
	AnalysisRunning   AnalysisState = "running"
	AnalysisCompleted AnalysisState = "completed"
	AnalysisFailed    AnalysisState = "failed"
)

// TranscriptSegment is one speaker-attributed span of a transcript.
type TranscriptSegment struct {
	StartSec    float64 `json:"startSec"`
	EndSec      float64 `json:"endSec"`
	SpeakerLabel string `json:"speakerLabel"`
	Text        string  `json:"text"`
}

// Transcript is the Transcription Stage's output.
type Transcript struct {
	Text             string              `json:"text"`
	Language         string              `json:"language"`
	DurationSeconds  float64             `json:"durationSeconds"`
	AverageConfidence float64            `json:"averageConfidence"`
	Segments         []TranscriptSegment `json:"segments,omitempty"`
}

// OCRPage is a single page record from the OCR Stage.
type OCRPage struct {
	PageNumber        int     `json:"pageNumber"`
	Text              string  `json:"text"`
	AverageConfidence float64 `json:"averageConfidence"`
}

// OCRResult is the OCR Stage's output. AggregatedText joins Pages in order
// with the form-feed character (U+000C), the only legal inter-page
// separator, so downstream offsets stay page-attributable.
type OCRResult struct {
	Pages         []OCRPage `json:"pages"`
	AggregatedText string   `json:"aggregatedText"`
	PageCount     int       `json:"pageCount"`
}

// Violation is one detected legal violation.
type Violation struct {
	RuleID      string   `json:"ruleId"`
	RuleName    string   `json:"ruleName"`
	Severity    Severity `json:"severity"`
	MatchOffset int      `json:"matchOffset"`
	MatchLength int      `json:"matchLength"`
	Excerpt     string   `json:"excerpt"`
	Citations   []string `json:"citations"`
}

// ComplianceStatus is the overall compliance verdict.
type ComplianceStatus string

const (
	Compliant               ComplianceStatus = "compliant"
	CompliantWithCaveats     ComplianceStatus = "compliant-with-caveats"
	NonCompliant             ComplianceStatus = "non-compliant"
)

// ComplianceIssue is one compliance rule violation.
type ComplianceIssue struct {
	RuleID   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ComplianceReport is the Compliance Checker's output.
type ComplianceReport struct {
	Issues []ComplianceIssue `json:"issues"`
	Status ComplianceStatus  `json:"status"`
}

// Motion is one recommended legal motion.
type Motion struct {
	Name             string   `json:"name"`
	Rationale        string   `json:"rationale"`
	SupportingRuleIDs []string `json:"supportingRuleIds"`
	Citations        []string `json:"citations"`
	maxSeverity      Severity
}

// MaxSeverity returns the highest severity among the motion's supporting
// violations/compliance issues (used only for ordering, not serialized).
func (m *Motion) MaxSeverity() Severity { return m.maxSeverity }

// SetMaxSeverity is used by the Motion Recommender while building the list.
func (m *Motion) SetMaxSeverity(s Severity) { m.maxSeverity = s }

// StageTiming records how long one pipeline stage took, and its outcome.
type StageTiming struct {
	Stage      string        `json:"stage"`
	Attempts   int           `json:"attempts"`
	DurationMS int64         `json:"durationMs"`
	Outcome    string        `json:"outcome"` // ok | retryable | fatal
}

// AnalysisResult is the Evidence Processor's output. It is immutable once
// State == AnalysisCompleted.
type AnalysisResult struct {
	ID                 string            `json:"id" db:"id"`
	EvidenceID         string            `json:"evidenceId" db:"evidence_id"`
	Fingerprint        string            `json:"fingerprint" db:"fingerprint"`
	AnalyzerProfileVersion string        `json:"analyzerProfileVersion" db:"analyzer_profile_version"`
	Transcript         *Transcript       `json:"transcript,omitempty"`
	OCR                *OCRResult        `json:"ocr,omitempty"`
	Violations         []Violation       `json:"violations"`
	Compliance         ComplianceReport  `json:"compliance"`
	RecommendedMotions []Motion          `json:"recommendedMotions"`
	Citations          []string          `json:"citations"`
	ExecutiveSummary   string            `json:"executiveSummary"`
	State              AnalysisState     `json:"state" db:"state"`
	FailingStage       string            `json:"failingStage,omitempty" db:"failing_stage"`
	Timings            []StageTiming     `json:"timings"`
	CreatedAt          time.Time         `json:"createdAt" db:"created_at"`
	CompletedAt        *time.Time        `json:"completedAt,omitempty" db:"completed_at"`
}
