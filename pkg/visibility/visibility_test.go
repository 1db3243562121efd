package visibility

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JDRay42/semanticweft/pkg/unit"
)

func TestMayReadPublicAlwaysTrue(t *testing.T) {
	u := &unit.Unit{Visibility: unit.VisibilityPublic}
	require.True(t, MayRead(u, ""))
	require.True(t, MayRead(u, "did:key:zAnyone"))
}

func TestMayReadNetworkNeverTrueGlobally(t *testing.T) {
	u := &unit.Unit{Visibility: unit.VisibilityNetwork, Author: "did:key:zAuthor"}
	require.False(t, MayRead(u, "did:key:zAuthor"))
	require.False(t, MayRead(u, ""))
}

func TestMayReadLimitedRequiresAudienceOrAuthor(t *testing.T) {
	u := &unit.Unit{
		Visibility: unit.VisibilityLimited,
		Author:     "did:key:zAuthor",
		Audience:   []string{"did:key:zFriend"},
	}
	require.True(t, MayRead(u, "did:key:zAuthor"))
	require.True(t, MayRead(u, "did:key:zFriend"))
	require.False(t, MayRead(u, "did:key:zStranger"))
	require.False(t, MayRead(u, ""))
}

func TestFilterListableExcludesNonPublic(t *testing.T) {
	units := []unit.Unit{
		{Visibility: unit.VisibilityPublic},
		{Visibility: unit.VisibilityNetwork},
		{Visibility: unit.VisibilityLimited, Audience: []string{"did:key:zX"}},
	}
	out := FilterListable(units)
	require.Len(t, out, 1)
}

func TestFilterReadableHonorsAudience(t *testing.T) {
	units := []unit.Unit{
		{Visibility: unit.VisibilityPublic},
		{Visibility: unit.VisibilityLimited, Audience: []string{"did:key:zViewer"}},
		{Visibility: unit.VisibilityLimited, Audience: []string{"did:key:zOther"}},
	}
	out := FilterReadable(units, "did:key:zViewer")
	require.Len(t, out, 2)
}
