package federation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/JDRay42/semanticweft/pkg/storage"
	"github.com/JDRay42/semanticweft/pkg/unit"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.OpenSQLite(":memory:", hclog.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPullOnceIngestsPageAndAdvancesCursor(t *testing.T) {
	u1 := unit.Unit{ID: unit.NewUUIDv7(), Type: unit.TypeAssertion, Content: "a", CreatedAt: time.Now().UTC(), Author: "did:key:zA"}
	u2 := unit.Unit{ID: unit.NewUUIDv7(), Type: unit.TypeAssertion, Content: "b", CreatedAt: time.Now().UTC(), Author: "did:key:zA"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(syncPage{Units: []unit.Unit{u1, u2}, HasMore: false})
	}))
	defer srv.Close()

	store := newTestStore(t)
	p := NewPuller(srv.Client(), store, hclog.NewNullLogger())

	n, err := p.PullOnce(context.Background(), "peer-x", srv.URL)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	cursor, ok, err := store.GetSyncCursor(context.Background(), "peer-x")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, u2.ID, cursor)

	got, err := store.GetUnit(context.Background(), u1.ID)
	require.NoError(t, err)
	require.Equal(t, "a", got.Unit.Content)
}

func TestPullOnceAbandonsPageOnInvalidUnit(t *testing.T) {
	good := unit.Unit{ID: unit.NewUUIDv7(), Type: unit.TypeAssertion, Content: "ok", CreatedAt: time.Now().UTC(), Author: "did:key:zA"}
	bad := unit.Unit{ID: unit.NewUUIDv7(), Type: "not-a-type", Content: "", CreatedAt: time.Time{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(syncPage{Units: []unit.Unit{good, bad}, HasMore: false})
	}))
	defer srv.Close()

	store := newTestStore(t)
	p := NewPuller(srv.Client(), store, hclog.NewNullLogger())

	n, err := p.PullOnce(context.Background(), "peer-x", srv.URL)
	require.Error(t, err)
	require.Equal(t, 1, n)

	cursor, ok, err := store.GetSyncCursor(context.Background(), "peer-x")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, good.ID, cursor)
}
