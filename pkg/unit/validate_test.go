package unit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsMissingAudienceWhenLimited(t *testing.T) {
	u := sampleUnit(t)
	u.Visibility = VisibilityLimited
	err := Validate(u)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "audience", ve.Field)
}

func TestValidateRejectsAudienceWhenNotLimited(t *testing.T) {
	u := sampleUnit(t)
	u.Audience = []string{"did:key:abc"}
	err := Validate(u)
	require.Error(t, err)
}

func TestValidateAcceptsLimitedWithAudience(t *testing.T) {
	u := sampleUnit(t)
	u.Visibility = VisibilityLimited
	u.Audience = []string{"did:key:abc"}
	require.NoError(t, Validate(u))
}

func TestValidateAllowsForwardReferences(t *testing.T) {
	u := sampleUnit(t)
	u.References = []Reference{{ID: u.ID, Rel: RelDerivesFrom}}
	require.NoError(t, Validate(u))
}

func TestValidateRejectsBadConfidence(t *testing.T) {
	u := sampleUnit(t)
	c := 1.5
	u.Confidence = &c
	require.Error(t, Validate(u))
}

func TestValidateRejectsEmptyContent(t *testing.T) {
	u := sampleUnit(t)
	u.Content = ""
	require.Error(t, Validate(u))
}

func TestValidateRejectsUnknownExtensionName(t *testing.T) {
	u := sampleUnit(t)
	u.Extensions = map[string]any{"notanextension": true}
	require.Error(t, Validate(u))
}

func TestValidateAcceptsWellFormedExtension(t *testing.T) {
	u := sampleUnit(t)
	u.Extensions = map[string]any{"x-weft.priority": 1}
	require.NoError(t, Validate(u))
}

func TestUnitJSONRoundTrip(t *testing.T) {
	u := sampleUnit(t)
	u.Extensions = map[string]any{"x-weft.priority": float64(1)}
	data, err := u.MarshalJSON()
	require.NoError(t, err)

	var u2 Unit
	require.NoError(t, u2.UnmarshalJSON(data))
	require.Equal(t, u.ID, u2.ID)
	require.Equal(t, u.Content, u2.Content)
	require.True(t, u.CreatedAt.Equal(u2.CreatedAt))
	require.Equal(t, u.Extensions, u2.Extensions)
}

func TestUnitJSONRejectsUnrecognizedTopLevelField(t *testing.T) {
	var u Unit
	err := u.UnmarshalJSON([]byte(`{"id":"019526b2-f68a-7c3e-a0b4-1d2e3f4a5b6c","type":"assertion","content":"p","created_at":"2026-02-18T12:00:00Z","author":"a","bogus":true}`))
	require.Error(t, err)
}

func TestValidateRejectsBadType(t *testing.T) {
	u := sampleUnit(t)
	u.Type = "not-a-type"
	require.Error(t, Validate(u))
}

func TestValidateRejectsZeroCreatedAt(t *testing.T) {
	u := sampleUnit(t)
	u.CreatedAt = time.Time{}
	require.Error(t, Validate(u))
}
