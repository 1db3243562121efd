package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JDRay42/semanticweft/pkg/identity"
	"github.com/JDRay42/semanticweft/pkg/unit"
)

func signedUnit(t *testing.T, kp *identity.KeyPair, typ unit.Type, content string) unit.Unit {
	t.Helper()
	u := unit.Unit{
		ID:        unit.NewUUIDv7(),
		Type:      typ,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Author:    kp.DID,
	}
	proof, err := identity.Sign(kp, &u, u.CreatedAt)
	require.NoError(t, err)
	u.Proof = proof
	return u
}

func TestHandleSubmitUnitCreatesThenReturnsExisting(t *testing.T) {
	srv, kp := newTestServer(t)
	handler := UnitsHandler(srv)

	u := signedUnit(t, kp, unit.TypeAssertion, "first contact")
	body, err := json.Marshal(u)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/v1/units", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 201, rec.Code)

	req2 := httptest.NewRequest("POST", "/v1/units", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	require.Equal(t, 200, rec2.Code)
}

func TestHandleSubmitUnitRejectsBadSignature(t *testing.T) {
	srv, kp := newTestServer(t)
	handler := UnitsHandler(srv)

	u := signedUnit(t, kp, unit.TypeAssertion, "tampered")
	u.Content = "tampered after signing"
	body, err := json.Marshal(u)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/v1/units", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 401, rec.Code)
}

func TestHandleGetUnitHidesLimitedFromNonAudience(t *testing.T) {
	srv, kp := newTestServer(t)
	handler := UnitsHandler(srv)

	other, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	u := unit.Unit{
		ID:         unit.NewUUIDv7(),
		Type:       unit.TypeAssertion,
		Content:    "only for you",
		CreatedAt:  time.Now().UTC(),
		Author:     kp.DID,
		Visibility: unit.VisibilityLimited,
		Audience:   []string{other.DID},
	}
	proof, err := identity.Sign(kp, &u, u.CreatedAt)
	require.NoError(t, err)
	u.Proof = proof

	body, err := json.Marshal(u)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/v1/units", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 201, rec.Code)

	getReq := httptest.NewRequest("GET", "/v1/units/"+u.ID.String(), nil)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, getReq)
	require.Equal(t, 404, getRec.Code)
}

func TestHandleListUnitsOnlyReturnsPublic(t *testing.T) {
	srv, kp := newTestServer(t)
	handler := UnitsHandler(srv)

	pub := signedUnit(t, kp, unit.TypeAssertion, "public claim")
	pubBody, err := json.Marshal(pub)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/v1/units", bytes.NewReader(pubBody))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, 201, rec.Code)

	netUnit := unit.Unit{
		ID:         unit.NewUUIDv7(),
		Type:       unit.TypeAssertion,
		Content:    "network only",
		CreatedAt:  time.Now().UTC(),
		Author:     kp.DID,
		Visibility: unit.VisibilityNetwork,
	}
	proof, err := identity.Sign(kp, &netUnit, netUnit.CreatedAt)
	require.NoError(t, err)
	netUnit.Proof = proof
	netBody, err := json.Marshal(netUnit)
	require.NoError(t, err)
	req2 := httptest.NewRequest("POST", "/v1/units", bytes.NewReader(netBody))
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	require.Equal(t, 201, rec2.Code)

	listReq := httptest.NewRequest("GET", "/v1/units", nil)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, listReq)
	require.Equal(t, 200, listRec.Code)

	var listed struct {
		Units []unit.Unit `json:"units"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listed))
	require.Len(t, listed.Units, 1)
	require.Equal(t, "public claim", listed.Units[0].Content)
}
