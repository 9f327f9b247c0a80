package twofactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 6238 SHA1 vectors, truncated to 6 digits.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestGenerateMatchesRFCVectors(t *testing.T) {
	cases := map[int64]string{
		59:         "287082",
		1111111109: "081804",
		1234567890: "005924",
	}
	for unix, want := range cases {
		got, err := Generate(rfcSecret, time.Unix(unix, 0).UTC())
		require.NoError(t, err)
		assert.Equal(t, want, got, "t=%d", unix)
	}
}

func TestGenerateNormalizesSecret(t *testing.T) {
	at := time.Unix(59, 0)
	want, err := Generate(rfcSecret, at)
	require.NoError(t, err)

	got, err := Generate("gezd gnbv gy3t qojq gezd gnbv gy3t qojq", at)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGenerateRejectsEmptySecret(t *testing.T) {
	_, err := Generate("   ", time.Now())
	assert.ErrorIs(t, err, ErrEmptySecret)
}
