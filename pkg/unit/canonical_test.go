package unit

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func sampleUnit(t *testing.T) *Unit {
	t.Helper()
	id, err := uuid.Parse("019526b2-f68a-7c3e-a0b4-1d2e3f4a5b6c")
	require.NoError(t, err)
	return &Unit{
		ID:        id,
		Type:      TypeAssertion,
		Content:   "p",
		CreatedAt: time.Date(2026, 2, 18, 12, 0, 0, 0, time.UTC),
		Author:    "a",
	}
}

func TestCanonicalizeIsDeterministicUnderFieldReordering(t *testing.T) {
	u := sampleUnit(t)
	u.Confidence = ptr(0.75)
	u.Assumptions = []string{"b", "a"}

	img1, err := Canonicalize(u)
	require.NoError(t, err)

	// Reordering struct-field assignment cannot change JSON member order
	// since encoding/json always emits struct fields in declaration order;
	// what we assert here is that two logically-identical units, built via
	// different paths, canonicalize identically.
	u2 := sampleUnit(t)
	u2.Assumptions = []string{"b", "a"}
	u2.Confidence = ptr(0.75)

	img2, err := Canonicalize(u2)
	require.NoError(t, err)
	require.Equal(t, string(img1), string(img2))
}

func TestCanonicalizeStripsProof(t *testing.T) {
	u := sampleUnit(t)
	withProof, err := Canonicalize(u)
	require.NoError(t, err)

	u.Proof = &Proof{Method: "did:key:z6Mk...#z6Mk...", Created: "2026-02-18T12:00:00Z", Value: "z58DA..."}
	withProof2, err := Canonicalize(u)
	require.NoError(t, err)

	require.Equal(t, string(withProof), string(withProof2))
}

func TestCanonicalNumberFormatting(t *testing.T) {
	u := sampleUnit(t)
	u.Confidence = ptr(1.0)
	img, err := Canonicalize(u)
	require.NoError(t, err)
	require.Contains(t, string(img), `"confidence":1`)
}

func TestCanonicalKeyOrdering(t *testing.T) {
	u := sampleUnit(t)
	img, err := Canonicalize(u)
	require.NoError(t, err)
	s := string(img)
	// "author" < "content" < "created_at" < "id" < "type" lexicographically
	require.True(t, idx(s, `"author"`) < idx(s, `"content"`))
	require.True(t, idx(s, `"content"`) < idx(s, `"created_at"`))
	require.True(t, idx(s, `"created_at"`) < idx(s, `"id"`))
	require.True(t, idx(s, `"id"`) < idx(s, `"type"`))
}

func idx(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func ptr(f float64) *float64 { return &f }
