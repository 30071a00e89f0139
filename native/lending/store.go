package lending

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"meridian/core/types"
	"meridian/crypto"
	"meridian/storage"
)

// Store persists lending records in a key-value database using RLP encoding.
// Amounts are serialized as decimal strings so arbitrary-precision values
// round-trip exactly. It implements the engine's state interface.
type Store struct {
	db storage.Database
}

// NewStore wraps the supplied database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

var (
	keyPool     = []byte("lending/pool")
	keyRegistry = []byte("lending/registry")
	keyOracle   = []byte("lending/oracle")
	keyFees     = []byte("lending/fees")
)

func loanKey(addr crypto.Address) []byte {
	return append([]byte("lending/loan/"), addr.Bytes()...)
}

func lenderKey(addr crypto.Address) []byte {
	return append([]byte("lending/lender/"), addr.Bytes()...)
}

func accountKey(addr crypto.Address) []byte {
	return append([]byte("lending/account/"), addr.Bytes()...)
}

// RLP has no signed integer or big.Int string support of its own, so records
// carry decimal strings for amounts and a magnitude plus sign flag for the
// oracle exponent.
type storedPool struct {
	Owner                   []byte
	LTVBps                  uint64
	UtilizationTiersBps     []uint64
	AprTiersBps             []uint64
	LiquidationThresholdBps uint64
	LiquidationPenaltyBps   uint64
	LiquidatorRewardBps     uint64
	EarlyWithdrawalFeeBps   uint64
	OriginationFeeBps       uint64
	WithdrawalEpochSeconds  uint64
	IsLocked                bool
	TotalStableReserve      string
	TotalClaimSupply        string
	TotalDebtOutstanding    string
}

type storedRegistry struct {
	Authority []byte
	Admins    [][]byte
}

type storedOracle struct {
	Price        uint64
	ExponentMag  uint32
	ExponentNeg  bool
	UpdatedAtSec uint64
}

type storedLoan struct {
	Borrower       []byte
	AssetRef       string
	VerificationID uint64
	IsVerified     bool
	Status         uint8
	Custody        uint8
	PurityBps      uint64
	Valuation      string
	Debt           string
	LastAccrual    uint64
}

type storedLender struct {
	Address        []byte
	FirstDepositAt uint64
	TotalDeposited string
}

type storedAccount struct {
	Nonce         uint64
	BalanceStable string
	BalanceClaim  string
}

type storedFees struct {
	OriginationFees string
	PenaltyFees     string
	WithdrawalFees  string
}

func encodeAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decodeAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("lending store: invalid %s amount %q", field, s)
	}
	return v, nil
}

func decodeStoredAddress(field string, b []byte) (crypto.Address, error) {
	if len(b) != 20 {
		return crypto.Address{}, fmt.Errorf("lending store: invalid %s address length %d", field, len(b))
	}
	return crypto.NewAddress(crypto.MRDPrefix, b), nil
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("lending store: decode %s: %w", string(key), err)
	}
	return true, nil
}

func (s *Store) put(key []byte, rec interface{}) error {
	raw, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return fmt.Errorf("lending store: encode %s: %w", string(key), err)
	}
	return s.db.Put(key, raw)
}

// GetPool loads the pool record, returning nil when none exists.
func (s *Store) GetPool() (*LendingPool, error) {
	var rec storedPool
	ok, err := s.get(keyPool, &rec)
	if err != nil || !ok {
		return nil, err
	}
	owner, err := decodeStoredAddress("pool owner", rec.Owner)
	if err != nil {
		return nil, err
	}
	reserve, err := decodeAmount("pool reserve", rec.TotalStableReserve)
	if err != nil {
		return nil, err
	}
	supply, err := decodeAmount("pool claim supply", rec.TotalClaimSupply)
	if err != nil {
		return nil, err
	}
	debt, err := decodeAmount("pool debt", rec.TotalDebtOutstanding)
	if err != nil {
		return nil, err
	}
	pool := &LendingPool{
		Owner:                   owner,
		LTVBps:                  rec.LTVBps,
		LiquidationThresholdBps: rec.LiquidationThresholdBps,
		LiquidationPenaltyBps:   rec.LiquidationPenaltyBps,
		LiquidatorRewardBps:     rec.LiquidatorRewardBps,
		EarlyWithdrawalFeeBps:   rec.EarlyWithdrawalFeeBps,
		OriginationFeeBps:       rec.OriginationFeeBps,
		WithdrawalEpochSeconds:  int64(rec.WithdrawalEpochSeconds),
		IsLocked:                rec.IsLocked,
		TotalStableReserve:      reserve,
		TotalClaimSupply:        supply,
		TotalDebtOutstanding:    debt,
	}
	if len(rec.UtilizationTiersBps) != len(pool.Curve.UtilizationBps) || len(rec.AprTiersBps) != len(pool.Curve.AprBps) {
		return nil, fmt.Errorf("lending store: malformed rate curve tiers")
	}
	copy(pool.Curve.UtilizationBps[:], rec.UtilizationTiersBps)
	copy(pool.Curve.AprBps[:], rec.AprTiersBps)
	return pool, nil
}

// PutPool persists the pool record.
func (s *Store) PutPool(pool *LendingPool) error {
	if pool == nil {
		return fmt.Errorf("lending store: nil pool")
	}
	pool.EnsureDefaults()
	rec := storedPool{
		Owner:                   pool.Owner.Bytes(),
		LTVBps:                  pool.LTVBps,
		UtilizationTiersBps:     append([]uint64(nil), pool.Curve.UtilizationBps[:]...),
		AprTiersBps:             append([]uint64(nil), pool.Curve.AprBps[:]...),
		LiquidationThresholdBps: pool.LiquidationThresholdBps,
		LiquidationPenaltyBps:   pool.LiquidationPenaltyBps,
		LiquidatorRewardBps:     pool.LiquidatorRewardBps,
		EarlyWithdrawalFeeBps:   pool.EarlyWithdrawalFeeBps,
		OriginationFeeBps:       pool.OriginationFeeBps,
		WithdrawalEpochSeconds:  uint64(pool.WithdrawalEpochSeconds),
		IsLocked:                pool.IsLocked,
		TotalStableReserve:      encodeAmount(pool.TotalStableReserve),
		TotalClaimSupply:        encodeAmount(pool.TotalClaimSupply),
		TotalDebtOutstanding:    encodeAmount(pool.TotalDebtOutstanding),
	}
	return s.put(keyPool, rec)
}

// GetRegistry loads the admin registry, returning nil when none exists.
func (s *Store) GetRegistry() (*AdminRegistry, error) {
	var rec storedRegistry
	ok, err := s.get(keyRegistry, &rec)
	if err != nil || !ok {
		return nil, err
	}
	authority, err := decodeStoredAddress("registry authority", rec.Authority)
	if err != nil {
		return nil, err
	}
	registry := &AdminRegistry{Authority: authority}
	for _, raw := range rec.Admins {
		admin, err := decodeStoredAddress("registry admin", raw)
		if err != nil {
			return nil, err
		}
		registry.Admins = append(registry.Admins, admin)
	}
	return registry, nil
}

// PutRegistry persists the admin registry.
func (s *Store) PutRegistry(registry *AdminRegistry) error {
	if registry == nil {
		return fmt.Errorf("lending store: nil registry")
	}
	rec := storedRegistry{Authority: registry.Authority.Bytes()}
	for _, admin := range registry.Admins {
		rec.Admins = append(rec.Admins, admin.Bytes())
	}
	return s.put(keyRegistry, rec)
}

// GetOracle loads the price oracle record, returning nil when none exists.
func (s *Store) GetOracle() (*PriceOracle, error) {
	var rec storedOracle
	ok, err := s.get(keyOracle, &rec)
	if err != nil || !ok {
		return nil, err
	}
	exponent := int32(rec.ExponentMag)
	if rec.ExponentNeg {
		exponent = -exponent
	}
	return &PriceOracle{
		Price:     rec.Price,
		Exponent:  exponent,
		UpdatedAt: int64(rec.UpdatedAtSec),
	}, nil
}

// PutOracle persists the price oracle record.
func (s *Store) PutOracle(oracle *PriceOracle) error {
	if oracle == nil {
		return fmt.Errorf("lending store: nil oracle")
	}
	rec := storedOracle{
		Price:        oracle.Price,
		UpdatedAtSec: uint64(oracle.UpdatedAt),
	}
	if oracle.Exponent < 0 {
		rec.ExponentNeg = true
		rec.ExponentMag = uint32(-oracle.Exponent)
	} else {
		rec.ExponentMag = uint32(oracle.Exponent)
	}
	return s.put(keyOracle, rec)
}

// GetLoan loads a borrower's loan record, returning nil when none exists.
func (s *Store) GetLoan(addr crypto.Address) (*LoanState, error) {
	var rec storedLoan
	ok, err := s.get(loanKey(addr), &rec)
	if err != nil || !ok {
		return nil, err
	}
	borrower, err := decodeStoredAddress("loan borrower", rec.Borrower)
	if err != nil {
		return nil, err
	}
	valuation, err := decodeAmount("loan valuation", rec.Valuation)
	if err != nil {
		return nil, err
	}
	debt, err := decodeAmount("loan debt", rec.Debt)
	if err != nil {
		return nil, err
	}
	return &LoanState{
		Borrower:       borrower,
		AssetRef:       rec.AssetRef,
		VerificationID: rec.VerificationID,
		IsVerified:     rec.IsVerified,
		Status:         LoanStatus(rec.Status),
		Custody:        Custody(rec.Custody),
		PurityBps:      rec.PurityBps,
		Valuation:      valuation,
		Debt:           debt,
		LastAccrual:    int64(rec.LastAccrual),
	}, nil
}

// PutLoan persists a borrower's loan record.
func (s *Store) PutLoan(loan *LoanState) error {
	if loan == nil {
		return fmt.Errorf("lending store: nil loan")
	}
	loan.EnsureDefaults()
	rec := storedLoan{
		Borrower:       loan.Borrower.Bytes(),
		AssetRef:       loan.AssetRef,
		VerificationID: loan.VerificationID,
		IsVerified:     loan.IsVerified,
		Status:         uint8(loan.Status),
		Custody:        uint8(loan.Custody),
		PurityBps:      loan.PurityBps,
		Valuation:      encodeAmount(loan.Valuation),
		Debt:           encodeAmount(loan.Debt),
		LastAccrual:    uint64(loan.LastAccrual),
	}
	return s.put(loanKey(loan.Borrower), rec)
}

// GetLender loads a lender record, returning nil when none exists.
func (s *Store) GetLender(addr crypto.Address) (*LenderState, error) {
	var rec storedLender
	ok, err := s.get(lenderKey(addr), &rec)
	if err != nil || !ok {
		return nil, err
	}
	address, err := decodeStoredAddress("lender", rec.Address)
	if err != nil {
		return nil, err
	}
	deposited, err := decodeAmount("lender deposited", rec.TotalDeposited)
	if err != nil {
		return nil, err
	}
	return &LenderState{
		Address:        address,
		FirstDepositAt: int64(rec.FirstDepositAt),
		TotalDeposited: deposited,
	}, nil
}

// PutLender persists a lender record.
func (s *Store) PutLender(lender *LenderState) error {
	if lender == nil {
		return fmt.Errorf("lending store: nil lender")
	}
	lender.EnsureDefaults()
	rec := storedLender{
		Address:        lender.Address.Bytes(),
		FirstDepositAt: uint64(lender.FirstDepositAt),
		TotalDeposited: encodeAmount(lender.TotalDeposited),
	}
	return s.put(lenderKey(lender.Address), rec)
}

// GetAccount loads a participant account, returning nil when none exists.
func (s *Store) GetAccount(addr crypto.Address) (*types.Account, error) {
	var rec storedAccount
	ok, err := s.get(accountKey(addr), &rec)
	if err != nil || !ok {
		return nil, err
	}
	stable, err := decodeAmount("account stable balance", rec.BalanceStable)
	if err != nil {
		return nil, err
	}
	claim, err := decodeAmount("account claim balance", rec.BalanceClaim)
	if err != nil {
		return nil, err
	}
	return &types.Account{
		Nonce:         rec.Nonce,
		BalanceStable: stable,
		BalanceClaim:  claim,
	}, nil
}

// PutAccount persists a participant account.
func (s *Store) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("lending store: nil account")
	}
	account.EnsureDefaults()
	rec := storedAccount{
		Nonce:         account.Nonce,
		BalanceStable: encodeAmount(account.BalanceStable),
		BalanceClaim:  encodeAmount(account.BalanceClaim),
	}
	return s.put(accountKey(addr), rec)
}

// GetFees loads the fee accrual record, returning nil when none exists.
func (s *Store) GetFees() (*FeeAccrual, error) {
	var rec storedFees
	ok, err := s.get(keyFees, &rec)
	if err != nil || !ok {
		return nil, err
	}
	origination, err := decodeAmount("origination fees", rec.OriginationFees)
	if err != nil {
		return nil, err
	}
	penalty, err := decodeAmount("penalty fees", rec.PenaltyFees)
	if err != nil {
		return nil, err
	}
	withdrawal, err := decodeAmount("withdrawal fees", rec.WithdrawalFees)
	if err != nil {
		return nil, err
	}
	return &FeeAccrual{
		OriginationFees: origination,
		PenaltyFees:     penalty,
		WithdrawalFees:  withdrawal,
	}, nil
}

// PutFees persists the fee accrual record.
func (s *Store) PutFees(fees *FeeAccrual) error {
	if fees == nil {
		return fmt.Errorf("lending store: nil fees")
	}
	fees.EnsureDefaults()
	rec := storedFees{
		OriginationFees: encodeAmount(fees.OriginationFees),
		PenaltyFees:     encodeAmount(fees.PenaltyFees),
		WithdrawalFees:  encodeAmount(fees.WithdrawalFees),
	}
	return s.put(keyFees, rec)
}
