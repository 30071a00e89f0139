package poold

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"meridian/crypto"
	"meridian/native/lending"
)

const requestLimit = 1 << 20 // 1 MiB

// Config captures the dependencies and tuning knobs of the HTTP surface.
type Config struct {
	Engine            *lending.Engine
	Logger            *slog.Logger
	RequestsPerSecond float64
	Burst             int
}

// Server exposes the lending engine over JSON HTTP. Writes carry the signer
// address in the request body; the hosting environment authenticates callers
// before requests reach this surface.
type Server struct {
	engine  *lending.Engine
	log     *slog.Logger
	metrics *metrics
	router  http.Handler

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// New constructs a configured server with routing, metrics and per-client
// rate limiting installed.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("poold: nil engine")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 100
	}
	s := &Server{
		engine:   cfg.Engine,
		log:      logger,
		metrics:  newMetrics(),
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.metrics.middleware)
	r.Use(s.rateLimit)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pool", s.handleGetPool)
		r.Get("/fees", s.handleGetFees)
		r.Get("/oracle", s.handleGetOracle)
		r.Get("/quotes/collateral", s.handleQuoteCollateral)
		r.Get("/accounts/{address}", s.handleGetAccount)
		r.Get("/loans/{address}", s.handleGetLoan)

		r.Post("/pool/lock", s.handleLock)
		r.Post("/pool/unlock", s.handleUnlock)
		r.Post("/admins/add", s.handleAddAdmin)
		r.Post("/admins/remove", s.handleRemoveAdmin)
		r.Post("/oracle", s.handleUpdateOracle)

		r.Post("/liquidity/deposit", s.handleDeposit)
		r.Post("/liquidity/withdraw", s.handleWithdraw)

		r.Post("/collateral/submit", s.handleSubmitCollateral)
		r.Post("/collateral/verify", s.handleVerifyAsset)
		r.Post("/collateral/post", s.handleDepositCollateral)

		r.Post("/loans/borrow", s.handleBorrow)
		r.Post("/loans/repay", s.handleRepay)
		r.Post("/loans/liquidate", s.handleLiquidate)
	})
	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.obtainLimiter(r.RemoteAddr).Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) obtainLimiter(id string) *rate.Limiter {
	if host, _, ok := strings.Cut(id, ":"); ok {
		id = host
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.rps), s.burst)
		s.limiters[id] = limiter
	}
	return limiter
}

// --- request/response types ---

type signedRequest struct {
	Signer string `json:"signer"`
}

type adminRequest struct {
	Signer string `json:"signer"`
	Admin  string `json:"admin"`
}

type oracleRequest struct {
	Signer   string `json:"signer"`
	Price    uint64 `json:"price"`
	Exponent int32  `json:"exponent"`
}

type liquidityRequest struct {
	Lender string `json:"lender"`
	Amount string `json:"amount"`
}

type submitRequest struct {
	Borrower string `json:"borrower"`
	AssetRef string `json:"assetRef"`
}

type verifyRequest struct {
	Signer         string `json:"signer"`
	Borrower       string `json:"borrower"`
	VerificationID uint64 `json:"verificationId"`
	Approved       bool   `json:"approved"`
	PurityBps      uint64 `json:"purityBps"`
	Valuation      string `json:"valuation"`
}

type borrowerRequest struct {
	Borrower string `json:"borrower"`
	Amount   string `json:"amount"`
}

type liquidateRequest struct {
	Liquidator string `json:"liquidator"`
	Borrower   string `json:"borrower"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

type poolResponse struct {
	Owner                   string   `json:"owner"`
	LTVBps                  uint64   `json:"ltvBps"`
	UtilizationTiersBps     []uint64 `json:"utilizationTiersBps"`
	AprTiersBps             []uint64 `json:"aprTiersBps"`
	LiquidationThresholdBps uint64   `json:"liquidationThresholdBps"`
	LiquidationPenaltyBps   uint64   `json:"liquidationPenaltyBps"`
	LiquidatorRewardBps     uint64   `json:"liquidatorRewardBps"`
	EarlyWithdrawalFeeBps   uint64   `json:"earlyWithdrawalFeeBps"`
	OriginationFeeBps       uint64   `json:"originationFeeBps"`
	WithdrawalEpochSeconds  int64    `json:"withdrawalEpochSeconds"`
	IsLocked                bool     `json:"isLocked"`
	TotalStableReserve      string   `json:"totalStableReserve"`
	TotalClaimSupply        string   `json:"totalClaimSupply"`
	TotalDebtOutstanding    string   `json:"totalDebtOutstanding"`
}

type loanResponse struct {
	Borrower       string `json:"borrower"`
	AssetRef       string `json:"assetRef"`
	VerificationID uint64 `json:"verificationId"`
	IsVerified     bool   `json:"isVerified"`
	Status         string `json:"status"`
	PurityBps      uint64 `json:"purityBps"`
	Valuation      string `json:"valuation"`
	Debt           string `json:"debt"`
	HealthBps      uint64 `json:"healthBps"`
	MaxBorrowable  string `json:"maxBorrowable"`
}

// --- helpers ---

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, requestLimit)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.log.Error("encode response", "err", err)
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "err", err)
	} else {
		s.log.Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, httpStatus(err), err)
}

func parseAddress(value string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid address %q: %w", value, err)
	}
	return addr, nil
}

// parseAmount converts a decimal string into a positive big integer. An empty
// string yields nil so callers can express "no amount supplied".
func parseAmount(value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.engine.Pool()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, poolResponse{
		Owner:                   pool.Owner.String(),
		LTVBps:                  pool.LTVBps,
		UtilizationTiersBps:     pool.Curve.UtilizationBps[:],
		AprTiersBps:             pool.Curve.AprBps[:],
		LiquidationThresholdBps: pool.LiquidationThresholdBps,
		LiquidationPenaltyBps:   pool.LiquidationPenaltyBps,
		LiquidatorRewardBps:     pool.LiquidatorRewardBps,
		EarlyWithdrawalFeeBps:   pool.EarlyWithdrawalFeeBps,
		OriginationFeeBps:       pool.OriginationFeeBps,
		WithdrawalEpochSeconds:  pool.WithdrawalEpochSeconds,
		IsLocked:                pool.IsLocked,
		TotalStableReserve:      pool.TotalStableReserve.String(),
		TotalClaimSupply:        pool.TotalClaimSupply.String(),
		TotalDebtOutstanding:    pool.TotalDebtOutstanding.String(),
	})
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	fees, err := s.engine.Fees()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"originationFees": fees.OriginationFees.String(),
		"penaltyFees":     fees.PenaltyFees.String(),
		"withdrawalFees":  fees.WithdrawalFees.String(),
	})
}

func (s *Server) handleGetOracle(w http.ResponseWriter, r *http.Request) {
	oracle, err := s.engine.Oracle()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"price":     oracle.Price,
		"exponent":  oracle.Exponent,
		"updatedAt": oracle.UpdatedAt,
	})
}

func (s *Server) handleQuoteCollateral(w http.ResponseWriter, r *http.Request) {
	weight, err := strconv.ParseUint(r.URL.Query().Get("weightGrams"), 10, 64)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid weightGrams: %w", err))
		return
	}
	purity, err := strconv.ParseUint(r.URL.Query().Get("purityBps"), 10, 64)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid purityBps: %w", err))
		return
	}
	value, err := s.engine.QuoteCollateralValue(weight, purity)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"value": value.String()})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	account, err := s.engine.Account(addr)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"balanceStable": account.BalanceStable.String(),
		"balanceClaim":  account.BalanceClaim.String(),
	})
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	loan, err := s.engine.Loan(addr)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if loan == nil {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("no loan for %s", addr))
		return
	}
	health, err := s.engine.HealthRatioBps(addr)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	headroom, err := s.engine.MaxBorrowable(addr)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	debt, err := s.engine.OutstandingDebt(addr)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loanResponse{
		Borrower:       loan.Borrower.String(),
		AssetRef:       loan.AssetRef,
		VerificationID: loan.VerificationID,
		IsVerified:     loan.IsVerified,
		Status:         loan.Status.String(),
		PurityBps:      loan.PurityBps,
		Valuation:      loan.Valuation.String(),
		Debt:           debt.String(),
		HealthBps:      health,
		MaxBorrowable:  headroom.String(),
	})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var req signedRequest
	if !s.decode(w, r, &req) {
		return
	}
	signer, err := parseAddress(req.Signer)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	err = s.engine.Lock(signer)
	s.metrics.observeOp("lock", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.log.Info("pool locked", "signer", req.Signer)
	s.writeJSON(w, http.StatusOK, map[string]bool{"locked": true})
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req signedRequest
	if !s.decode(w, r, &req) {
		return
	}
	signer, err := parseAddress(req.Signer)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	err = s.engine.Unlock(signer)
	s.metrics.observeOp("unlock", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.log.Info("pool unlocked", "signer", req.Signer)
	s.writeJSON(w, http.StatusOK, map[string]bool{"locked": false})
}

func (s *Server) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if !s.decode(w, r, &req) {
		return
	}
	signer, err := parseAddress(req.Signer)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	admin, err := parseAddress(req.Admin)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	err = s.engine.AddAdmin(signer, admin)
	s.metrics.observeOp("add_admin", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"admin": req.Admin})
}

func (s *Server) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if !s.decode(w, r, &req) {
		return
	}
	signer, err := parseAddress(req.Signer)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	admin, err := parseAddress(req.Admin)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	err = s.engine.RemoveAdmin(signer, admin)
	s.metrics.observeOp("remove_admin", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"admin": req.Admin})
}

func (s *Server) handleUpdateOracle(w http.ResponseWriter, r *http.Request) {
	var req oracleRequest
	if !s.decode(w, r, &req) {
		return
	}
	signer, err := parseAddress(req.Signer)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	err = s.engine.UpdateOracleValues(signer, req.Price, req.Exponent)
	s.metrics.observeOp("update_oracle", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint64{"price": req.Price})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req liquidityRequest
	if !s.decode(w, r, &req) {
		return
	}
	lender, err := parseAddress(req.Lender)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	minted, err := s.engine.Deposit(lender, amount)
	s.metrics.observeOp("deposit", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.log.Info("liquidity deposited", "lender", req.Lender, "amount", req.Amount, "minted", minted)
	s.writeJSON(w, http.StatusOK, map[string]string{"minted": minted.String()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req liquidityRequest
	if !s.decode(w, r, &req) {
		return
	}
	lender, err := parseAddress(req.Lender)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	payout, err := s.engine.Withdraw(lender, amount)
	s.metrics.observeOp("withdraw", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.log.Info("liquidity withdrawn", "lender", req.Lender, "claim", req.Amount, "payout", payout)
	s.writeJSON(w, http.StatusOK, map[string]string{"payout": payout.String()})
}

func (s *Server) handleSubmitCollateral(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	id, err := s.engine.SubmitCollateral(borrower, req.AssetRef)
	s.metrics.observeOp("submit_collateral", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.log.Info("collateral submitted", "borrower", req.Borrower, "assetRef", req.AssetRef, "verificationId", id)
	s.writeJSON(w, http.StatusOK, map[string]uint64{"verificationId": id})
}

func (s *Server) handleVerifyAsset(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	signer, err := parseAddress(req.Signer)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	valuation, err := parseAmount(req.Valuation)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	err = s.engine.VerifyAsset(signer, borrower, req.VerificationID, req.Approved, req.PurityBps, valuation)
	s.metrics.observeOp("verify_asset", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.log.Info("verification decided", "borrower", req.Borrower, "verificationId", req.VerificationID, "approved", req.Approved)
	s.writeJSON(w, http.StatusOK, map[string]bool{"approved": req.Approved})
}

func (s *Server) handleDepositCollateral(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	err = s.engine.DepositCollateral(borrower)
	s.metrics.observeOp("deposit_collateral", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.log.Info("collateral posted", "borrower", req.Borrower)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "collateral_posted"})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowerRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	disbursed, err := s.engine.Borrow(borrower, amount)
	s.metrics.observeOp("borrow", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.log.Info("loan drawn", "borrower", req.Borrower, "disbursed", disbursed)
	s.writeJSON(w, http.StatusOK, amountResponse{Amount: disbursed.String()})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req borrowerRequest
	if !s.decode(w, r, &req) {
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	effective, err := s.engine.Repay(borrower, amount)
	s.metrics.observeOp("repay", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.log.Info("loan repaid", "borrower", req.Borrower, "amount", effective)
	s.writeJSON(w, http.StatusOK, amountResponse{Amount: effective.String()})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if !s.decode(w, r, &req) {
		return
	}
	liquidator, err := parseAddress(req.Liquidator)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	penalty, reward, err := s.engine.Liquidate(liquidator, borrower)
	s.metrics.observeOp("liquidate", err)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.log.Info("loan liquidated", "borrower", req.Borrower, "liquidator", req.Liquidator, "penalty", penalty, "reward", reward)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"penalty": penalty.String(),
		"reward":  reward.String(),
	})
}
