package cosign

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/middleware"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/reject"
	"github.com/kollektive-hackathon/flow-authz/pkg/fcl"
	"github.com/onflow/flow-go-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiPrefix = "/flow-authz-api/cosign"

// subjectVerifier accepts any token and uses it as the subject.
type subjectVerifier struct{}

func (subjectVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if idToken == "expired" {
		return nil, errors.New("token expired")
	}
	return &auth.Token{UID: idToken, Subject: idToken}, nil
}

type accountFetcher struct{}

func (accountFetcher) GetAccountAtLatestBlock(_ context.Context, address flow.Address) (*flow.Account, error) {
	return &flow.Account{
		Address: address,
		Keys:    []*flow.AccountKey{{Index: 0, SequenceNumber: 4}},
	}, nil
}

func newTestRouter(ts *testService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := cosignHandler{cosign: ts.cosignService}
	handler.register(router.Group(apiPrefix), middleware.NewVerifyAuthToken(subjectVerifier{}))
	return router
}

func serve(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		payload, _ = json.Marshal(b)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) reject.Problem {
	var problem reject.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	return problem
}

func TestHandleAuthz(t *testing.T) {
	router := newTestRouter(newTestService(cadencePolicy{}))

	w := serve(router, http.MethodPost, apiPrefix+"/authz", owner, walletSignable())
	require.Equal(t, http.StatusOK, w.Code)

	response, err := fcl.DecodeResponse(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, fcl.ResponseApproved, response.Status)
	assert.Equal(t, "a11e", response.Signature())
	assert.Equal(t, flow.HexToAddress(walletAddress), response.Addr())
}

func TestHandleAuthzErrors(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		body   any
		status int
		code   string
	}{
		{name: "no token", body: walletSignable(), status: http.StatusUnauthorized, code: "error.token.required"},
		{name: "invalid token", token: "expired", body: walletSignable(), status: http.StatusUnauthorized, code: "error.token.invalid"},
		{name: "unreadable body", token: owner, body: `{"message":`, status: http.StatusBadRequest, code: "error.generic.cannot-parse-payload"},
		{name: "foreign wallet", token: "user-2", body: walletSignable(), status: http.StatusForbidden, code: notAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(newTestService(cadencePolicy{}))

			w := serve(router, http.MethodPost, apiPrefix+"/authz", tt.token, tt.body)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeProblem(t, w).Code)
		})
	}
}

func TestHandlePreAuthz(t *testing.T) {
	ts := newTestService(cadencePolicy{})
	router := newTestRouter(ts)

	w := serve(router, http.MethodPost, apiPrefix+"/pre-authz", owner, fcl.PreSignable{
		FType:   "PreSignable",
		FVsn:    "1.0.1",
		Cadence: script,
		Roles:   fcl.Role{Payer: true},
	})
	require.Equal(t, http.StatusOK, w.Code)

	response, err := fcl.DecodeResponse(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, response.Data.Payer, 1)
	assert.Equal(t, ts.endpoint, response.Data.Payer[0].Endpoint)
	assert.Equal(t, "0x"+cosignAddress, response.Data.Payer[0].Identity.Address)
}

func TestHandleWallets(t *testing.T) {
	ts := newTestService(cadencePolicy{})
	router := newTestRouter(ts)

	w := serve(router, http.MethodPost, apiPrefix+"/wallets", "user-2", CreateWalletRequest{Address: "0x" + otherAddress, KeyIndex: 1})
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, otherAddress, created["address"])
	assert.Equal(t, float64(1), created["keyIndex"])
	assert.NotContains(t, created, "OwnerIdentityId")

	w = serve(router, http.MethodPost, apiPrefix+"/wallets", "user-2", CreateWalletRequest{Address: otherAddress})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, walletExists, decodeProblem(t, w).Code)

	w = serve(router, http.MethodGet, apiPrefix+"/wallets/0x"+otherAddress, "user-2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodGet, apiPrefix+"/wallets/0x"+otherAddress, owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, http.MethodPost, apiPrefix+"/wallets", owner, `[]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func newTestInteraction(wallet, payer *fcl.SignableUser) *fcl.Interaction {
	cadence, refBlock := script, "1b6f4e4c4d8e2e5d2f10c2a87b3f5b5e4f3a1c7a8f9e0d1c2b3a49586a7b8c9d"
	ix := fcl.NewInteraction().SetTag(fcl.TagTransaction)
	ix.Message.Cadence = &cadence
	ix.Message.RefBlock = &refBlock
	ix.SetProposer(wallet)
	ix.AddAuthorization(wallet)
	if payer != nil {
		ix.SetPayer(payer)
	}
	return ix
}

func TestAuthorizeCustodialWalletThroughCosignService(t *testing.T) {
	ts := newTestService(cadencePolicy{})
	server := httptest.NewServer(newTestRouter(ts))
	defer server.Close()
	ts.endpoint = server.URL + apiPrefix + "/authz"

	walletAddr, cosignAddr, keyID := "0x"+walletAddress, "0x"+cosignAddress, 0
	wallet := &fcl.SignableUser{TempID: "wallet", Addr: &walletAddr, KeyID: &keyID}
	payer := &fcl.SignableUser{TempID: "cosigner", Addr: &cosignAddr, KeyID: &keyID}
	ix := newTestInteraction(wallet, payer)

	executor := fcl.NewHTTPExecutor(server.Client())
	executor.Header = http.Header{"Authorization": []string{"Bearer " + owner}}
	session := &fcl.Session{
		CurrentUser: &fcl.User{
			Addr:     walletAddr,
			LoggedIn: true,
			Services: []fcl.Service{
				*wallet.Service(fcl.MethodHTTPPost, ts.endpoint),
				*payer.Service(fcl.MethodHTTPPost, ts.endpoint),
			},
		},
		Executor: executor,
	}

	tx, err := fcl.Authorize(context.Background(), ix, accountFetcher{}, session)
	require.NoError(t, err)

	assert.Equal(t, flow.HexToAddress(cosignAddress), tx.Payer)
	assert.Equal(t, []flow.Address{flow.HexToAddress(walletAddress)}, tx.Authorizers)
	assert.Equal(t, uint64(4), tx.ProposalKey.SequenceNumber)
	require.Len(t, tx.PayloadSignatures, 1)
	assert.Equal(t, []byte{0xa1, 0x1e}, tx.PayloadSignatures[0].Signature)
	require.Len(t, tx.EnvelopeSignatures, 1)
	assert.Equal(t, []byte{0xc0, 0x51}, tx.EnvelopeSignatures[0].Signature)

	assert.Len(t, ts.published.Messages(), 2)
}

func TestAuthorizeWithCosignPreAuthz(t *testing.T) {
	ts := newTestService(cadencePolicy{})
	server := httptest.NewServer(newTestRouter(ts))
	defer server.Close()
	ts.endpoint = server.URL + apiPrefix + "/authz"

	keys := &fakeMessageSigner{sig: []byte{0x10, 0xca}}
	wallet := fcl.NewSignableUser(fcl.NewLocalSigner(flow.HexToAddress(walletAddress), 0, keys), fcl.Role{})

	executor := fcl.NewHTTPExecutor(server.Client())
	executor.Header = http.Header{"Authorization": []string{"Bearer " + owner}}
	session := &fcl.Session{
		CurrentUser: &fcl.User{
			Addr:     "0x" + walletAddress,
			LoggedIn: true,
			Services: []fcl.Service{{
				FType:    "Service",
				FVsn:     "1.0.0",
				Type:     fcl.ServiceTypePreAuthz,
				Method:   fcl.MethodHTTPPost,
				Endpoint: server.URL + apiPrefix + "/pre-authz",
			}},
		},
		Executor: executor,
	}

	ix := newTestInteraction(wallet, nil)
	require.NoError(t, session.ResolvePreAuthz(context.Background(), ix, fcl.Role{Payer: true}))
	require.NotNil(t, session.PreAuthz)
	require.Len(t, session.PreAuthz.Data.Payer, 1)

	cosignAddr, keyID := session.PreAuthz.Data.Payer[0].Identity.Address, *session.PreAuthz.Data.Payer[0].Identity.KeyID
	ix.SetPayer(&fcl.SignableUser{TempID: "cosigner", Addr: &cosignAddr, KeyID: &keyID})

	tx, err := fcl.Authorize(context.Background(), ix, accountFetcher{}, session)
	require.NoError(t, err)

	assert.Equal(t, flow.HexToAddress(cosignAddress), tx.Payer)
	require.Len(t, tx.PayloadSignatures, 1)
	assert.Equal(t, []byte{0x10, 0xca}, tx.PayloadSignatures[0].Signature)
	require.Len(t, tx.EnvelopeSignatures, 1)
	assert.Equal(t, []byte{0xc0, 0x51}, tx.EnvelopeSignatures[0].Signature)
	assert.Len(t, keys.Messages(), 1)

	events := ts.published.Messages()
	require.Len(t, events, 1)
	assert.Equal(t, fcl.Role{Payer: true}, events[0].(VoucherSigned).Roles)
}
