package federation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/JDRay42/semanticweft/pkg/identity"
	"github.com/JDRay42/semanticweft/pkg/storage"
	"github.com/JDRay42/semanticweft/pkg/unit"
)

func TestDispatchPublicSkipsLearnedFromPeer(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := newTestStore(t)
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	_, err = store.UpsertPeer(context.Background(), &storage.PeerInfo{NodeID: "peer-origin", APIBase: srv.URL}, 10)
	require.NoError(t, err)

	d := NewDispatcher(store, kp, srv.Client(), NewResolver(srv.Client(), time.Hour), hclog.NewNullLogger(), "node.example", nil)

	u := &unit.Unit{ID: unit.NewUUIDv7(), Type: unit.TypeAssertion, Content: "x", CreatedAt: time.Now().UTC(), Author: "did:key:zA"}
	err = d.Dispatch(context.Background(), u, "peer-origin")
	require.NoError(t, err)
	require.Equal(t, 0, hits)
}

func TestDispatchPublicPushesToOtherPeers(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	store := newTestStore(t)
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	_, err = store.UpsertPeer(context.Background(), &storage.PeerInfo{NodeID: "peer-other", APIBase: srv.URL}, 10)
	require.NoError(t, err)

	d := NewDispatcher(store, kp, srv.Client(), NewResolver(srv.Client(), time.Hour), hclog.NewNullLogger(), "node.example", nil)

	u := &unit.Unit{ID: unit.NewUUIDv7(), Type: unit.TypeAssertion, Content: "x", CreatedAt: time.Now().UTC(), Author: "did:key:zA"}
	err = d.Dispatch(context.Background(), u, "")
	require.NoError(t, err)
	require.Equal(t, 1, hits)
}
