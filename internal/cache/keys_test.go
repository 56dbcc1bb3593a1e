package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyHelpers_FollowPrefixIdentifierConvention(t *testing.T) {
	assert.Equal(t, "transcript:fp1", TranscriptKey("fp1"))
	assert.Equal(t, "ocr:fp1", OCRKey("fp1"))
	assert.Equal(t, "analysis:ev1:fp1", AnalysisKey("ev1", "fp1"))
	assert.Equal(t, "ratelimit:user1:upload", RateLimitKey("user1", "upload"))
	assert.Equal(t, "user:user1", UserKey("user1"))
	assert.Equal(t, "analysis:ev1:*", AnalysisPattern("ev1"))
}
