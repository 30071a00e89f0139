package poold

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meridian/core/types"
	"meridian/crypto"
	"meridian/native/lending"
	"meridian/storage"
)

func testAddr(last byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = last
	return crypto.NewAddress(crypto.MRDPrefix, raw)
}

func testConfig() lending.Config {
	return lending.Config{
		LTVBps:                  7_500,
		UtilizationTiersBps:     [5]uint64{0, 2_500, 5_000, 7_500, 9_000},
		AprTiersBps:             [5]uint64{500, 800, 1_200, 1_800, 2_000},
		LiquidationThresholdBps: 10_000,
		LiquidationPenaltyBps:   1_000,
		LiquidatorRewardBps:     2_000,
		EarlyWithdrawalFeeBps:   500,
		OriginationFeeBps:       100,
		WithdrawalEpochSeconds:  86_400,
	}
}

func newTestServer(t *testing.T) (*Server, *lending.Store, crypto.Address) {
	t.Helper()
	store := lending.NewStore(storage.NewMemDB())
	engine := lending.NewEngine()
	engine.SetState(store)
	engine.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })
	authority := testAddr(0xA0)
	require.NoError(t, engine.Initialize(authority, testConfig()))
	srv, err := New(Config{Engine: engine})
	require.NoError(t, err)
	return srv, store, authority
}

func fund(t *testing.T, store *lending.Store, addr crypto.Address, stable int64) {
	t.Helper()
	account := &types.Account{BalanceStable: big.NewInt(stable)}
	account.EnsureDefaults()
	require.NoError(t, store.PutAccount(addr, account))
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

func TestServerHealthAndPool(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/pool", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pool poolResponse
	decodeBody(t, rec, &pool)
	require.Equal(t, uint64(7_500), pool.LTVBps)
	require.Equal(t, "0", pool.TotalStableReserve)
	require.False(t, pool.IsLocked)
}

func TestServerLendingLifecycle(t *testing.T) {
	srv, store, authority := newTestServer(t)
	lender := testAddr(1)
	borrower := testAddr(5)
	fund(t, store, lender, 10_000)
	fund(t, store, borrower, 1_000)

	rec := doJSON(t, srv, http.MethodPost, "/v1/liquidity/deposit", liquidityRequest{
		Lender: lender.String(),
		Amount: "10000",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var minted map[string]string
	decodeBody(t, rec, &minted)
	require.Equal(t, "10000", minted["minted"])

	rec = doJSON(t, srv, http.MethodPost, "/v1/collateral/submit", submitRequest{
		Borrower: borrower.String(),
		AssetRef: "vault-bar-001",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var submitted map[string]uint64
	decodeBody(t, rec, &submitted)
	require.Equal(t, uint64(1), submitted["verificationId"])

	// A stranger cannot decide the verification.
	rec = doJSON(t, srv, http.MethodPost, "/v1/collateral/verify", verifyRequest{
		Signer:         testAddr(0x99).String(),
		Borrower:       borrower.String(),
		VerificationID: 1,
		Approved:       true,
		PurityBps:      9_990,
		Valuation:      "2000",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/collateral/verify", verifyRequest{
		Signer:         authority.String(),
		Borrower:       borrower.String(),
		VerificationID: 1,
		Approved:       true,
		PurityBps:      9_990,
		Valuation:      "2000",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/collateral/post", submitRequest{
		Borrower: borrower.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/loans/borrow", borrowerRequest{
		Borrower: borrower.String(),
		Amount:   "1000",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var drawn amountResponse
	decodeBody(t, rec, &drawn)
	require.Equal(t, "990", drawn.Amount)

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/v1/loans/%s", borrower.String()), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var loan loanResponse
	decodeBody(t, rec, &loan)
	require.Equal(t, "collateral_posted", loan.Status)
	require.Equal(t, "1000", loan.Debt)
	require.Equal(t, "500", loan.MaxBorrowable)

	// Over-LTV draws are refused.
	rec = doJSON(t, srv, http.MethodPost, "/v1/loans/borrow", borrowerRequest{
		Borrower: borrower.String(),
		Amount:   "501",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/loans/repay", borrowerRequest{
		Borrower: borrower.String(),
		Amount:   "99999",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var repaid amountResponse
	decodeBody(t, rec, &repaid)
	require.Equal(t, "1000", repaid.Amount)

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/v1/loans/%s", borrower.String()), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &loan)
	require.Equal(t, "closed", loan.Status)

	rec = doJSON(t, srv, http.MethodGet, "/v1/fees", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fees map[string]string
	decodeBody(t, rec, &fees)
	require.Equal(t, "10", fees["originationFees"])
}

func TestServerOracleAndQuotes(t *testing.T) {
	srv, _, authority := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/oracle", oracleRequest{
		Signer:   authority.String(),
		Price:    2_000,
		Exponent: -1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/quotes/collateral?weightGrams=100&purityBps=9000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var quote map[string]string
	decodeBody(t, rec, &quote)
	require.Equal(t, "18000", quote["value"])

	// Zero prices are rejected at the engine boundary.
	rec = doJSON(t, srv, http.MethodPost, "/v1/oracle", oracleRequest{
		Signer: authority.String(),
		Price:  0,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerLockMapsToServiceUnavailable(t *testing.T) {
	srv, store, authority := newTestServer(t)
	lender := testAddr(1)
	fund(t, store, lender, 1_000)

	rec := doJSON(t, srv, http.MethodPost, "/v1/pool/lock", signedRequest{Signer: authority.String()})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/liquidity/deposit", liquidityRequest{
		Lender: lender.String(),
		Amount: "100",
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// A second lock is a conflict, not a crash.
	rec = doJSON(t, srv, http.MethodPost, "/v1/pool/lock", signedRequest{Signer: authority.String()})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/pool/unlock", signedRequest{Signer: authority.String()})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServerRejectsMalformedRequests(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/liquidity/deposit", liquidityRequest{
		Lender: "not-an-address",
		Amount: "100",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/liquidity/deposit", liquidityRequest{
		Lender: testAddr(1).String(),
		Amount: "12x4",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/liquidity/deposit", bytes.NewBufferString("{nope"))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/v1/loans/%s", testAddr(9).String()), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerAdminEndpoints(t *testing.T) {
	srv, _, authority := newTestServer(t)
	admin := testAddr(0xB0)

	rec := doJSON(t, srv, http.MethodPost, "/v1/admins/add", adminRequest{
		Signer: testAddr(0x99).String(),
		Admin:  admin.String(),
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/admins/add", adminRequest{
		Signer: authority.String(),
		Admin:  admin.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/admins/add", adminRequest{
		Signer: authority.String(),
		Admin:  admin.String(),
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/admins/remove", adminRequest{
		Signer: authority.String(),
		Admin:  admin.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
}
