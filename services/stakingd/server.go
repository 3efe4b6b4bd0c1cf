package stakingd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakevault/crypto"
	"stakevault/native/staking"
	"stakevault/observability"
)

const maxBodyBytes = 64 << 10

// Server exposes the vault over HTTP.
type Server struct {
	vault     *Vault
	auth      *Authenticator
	limiter   *RateLimiter
	journal   *Journal
	hub       *Hub
	metrics   *observability.StakingMetrics
	logger    *slog.Logger
	exportDir string
	now       func() time.Time
}

// ServerConfig bundles the server dependencies. Journal and Hub are optional.
type ServerConfig struct {
	Vault     *Vault
	Auth      *Authenticator
	Limiter   *RateLimiter
	Journal   *Journal
	Hub       *Hub
	Metrics   *observability.StakingMetrics
	Logger    *slog.Logger
	ExportDir string
}

// NewServer constructs the HTTP server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.Staking()
	}
	return &Server{
		vault:     cfg.Vault,
		auth:      cfg.Auth,
		limiter:   cfg.Limiter,
		journal:   cfg.Journal,
		hub:       cfg.Hub,
		metrics:   metrics,
		logger:    logger.With("component", "http"),
		exportDir: cfg.ExportDir,
		now:       time.Now,
	}
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(s.logger, s.metrics))
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if s.hub != nil {
		r.Handle("/ws/events", s.hub)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/apy", s.handleApyTable)
		r.Get("/apy/durations", s.handleApyDurations)
		r.Get("/apy/count", s.handleApyCount)
		r.Get("/apy/{duration}", s.handleApyPercentage)
		r.Get("/vault", s.handleStatus)
		r.Get("/vault/capacity", s.handleRewardCapacity)
		r.Get("/accounts/{addr}", s.handleAccount)
		r.Get("/accounts/{addr}/deposits", s.handleDeposits)
		r.Get("/accounts/{addr}/deposits/{index}", s.handleDeposit)
		r.Get("/accounts/{addr}/reward", s.handlePendingReward)
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeStake))
			r.Post("/stake", s.handleStake)
			r.Post("/unstake", s.handleUnstake)
			r.Post("/unstake/all", s.handleUnstakeAll)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeAdmin))
			r.Post("/reward/start", s.handleStartReward)
			r.Post("/reward/stop", s.handleStopReward)
			r.Put("/apy", s.handleSetApy)
			r.Delete("/apy/{duration}", s.handleDeleteApy)
			r.Put("/exit-penalty", s.handleExitPenalty)
			r.Put("/withdraw-fee", s.handleWithdrawFee)
			r.Post("/emergency-withdraw", s.handleEmergencyWithdraw)
			r.Post("/reset", s.handleReset)
			r.Post("/unstake", s.handleAdminUnstake)
			r.Post("/unstake/all", s.handleAdminUnstakeAll)
			r.Put("/pause", s.handlePause)
			r.Get("/invariants", s.handleInvariants)
			r.Post("/export", s.handleExport)
		})
	})
	return otelhttp.NewHandler(r, "stakingd")
}

// --- wire types ---

type apyOptionJSON struct {
	Duration   uint64 `json:"duration"`
	Percentage uint64 `json:"percentage"`
}

type statusJSON struct {
	Address               string          `json:"address"`
	Admin                 string          `json:"admin"`
	StartedAt             uint64          `json:"started_at"`
	Paused                bool            `json:"paused"`
	OperatorPaused        bool            `json:"operator_paused"`
	TotalStaked           string          `json:"total_staked"`
	ExitPenaltyPercentage uint64          `json:"exit_penalty_percentage"`
	WithdrawFeePercentage uint64          `json:"withdraw_fee_percentage"`
	TreasuryBalance       string          `json:"treasury_balance"`
	RewardCapacity        string          `json:"reward_capacity"`
	ResetAt               uint64          `json:"reset_at,omitempty"`
	Apy                   []apyOptionJSON `json:"apy"`
}

type depositJSON struct {
	Index         int    `json:"index"`
	Amount        string `json:"amount"`
	ApyPercentage uint64 `json:"apy_percentage"`
	ApyDuration   uint64 `json:"apy_duration"`
	CreatedAt     uint64 `json:"created_at"`
	Elapsed       uint64 `json:"elapsed"`
	Reward        string `json:"reward"`
	Matured       bool   `json:"matured"`
}

type accountJSON struct {
	Address       string        `json:"address"`
	Balance       string        `json:"balance"`
	TotalStaked   string        `json:"total_staked"`
	PendingReward string        `json:"pending_reward"`
	Deposits      []depositJSON `json:"deposits"`
}

type settlementJSON struct {
	Index     int    `json:"index"`
	Kind      string `json:"kind"`
	Principal string `json:"principal"`
	Deduction string `json:"deduction"`
	Reward    string `json:"reward"`
	Payout    string `json:"payout"`
}

type unstakeJSON struct {
	Account     string           `json:"account"`
	Payout      string           `json:"payout"`
	Reward      string           `json:"reward"`
	Settlements []settlementJSON `json:"settlements"`
}

type eventJSON struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Digest     string            `json:"digest"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
}

type invariantJSON struct {
	Accounts      int    `json:"accounts"`
	Deposits      int    `json:"deposits"`
	LedgerTotal   string `json:"ledger_total"`
	VaultTotal    string `json:"vault_total"`
	ResetObserved bool   `json:"reset_observed"`
}

type stakeRequest struct {
	Amount   string `json:"amount"`
	Duration uint64 `json:"duration"`
}

type unstakeRequest struct {
	Index   int    `json:"index"`
	Account string `json:"account,omitempty"`
}

type apyRequest struct {
	Duration   uint64 `json:"duration"`
	Percentage uint64 `json:"percentage"`
}

type percentageRequest struct {
	Percentage uint64 `json:"percentage"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func depositToJSON(d staking.DepositView) depositJSON {
	return depositJSON{
		Index:         d.Index,
		Amount:        amountString(d.Amount),
		ApyPercentage: d.ApyPercentage,
		ApyDuration:   d.ApyDuration,
		CreatedAt:     d.CreatedAt,
		Elapsed:       d.Elapsed,
		Reward:        amountString(d.Reward),
		Matured:       d.Matured,
	}
}

func depositsToJSON(in []staking.DepositView) []depositJSON {
	out := make([]depositJSON, 0, len(in))
	for _, d := range in {
		out = append(out, depositToJSON(d))
	}
	return out
}

func unstakeToJSON(res *staking.UnstakeResult) unstakeJSON {
	out := unstakeJSON{
		Account:     res.Account.String(),
		Payout:      amountString(res.Payout),
		Reward:      amountString(res.Reward),
		Settlements: make([]settlementJSON, 0, len(res.Settlements)),
	}
	for _, st := range res.Settlements {
		out.Settlements = append(out.Settlements, settlementJSON{
			Index:     st.Index,
			Kind:      st.Kind.String(),
			Principal: amountString(st.Principal),
			Deduction: amountString(st.Deduction),
			Reward:    amountString(st.Reward),
			Payout:    amountString(st.Payout),
		})
	}
	return out
}

func apyToJSON(opts []staking.ApyOption) []apyOptionJSON {
	out := make([]apyOptionJSON, 0, len(opts))
	for _, opt := range opts {
		out = append(out, apyOptionJSON{Duration: opt.Duration, Percentage: opt.Percentage})
	}
	return out
}

// --- request helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func parseAmount(raw string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", staking.ErrInvalidAmount, raw)
	}
	return amount, nil
}

func pathAddress(r *http.Request) (crypto.Address, error) {
	return decodeAddress(chi.URLParam(r, "addr"))
}

func decodeAddress(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", staking.ErrInvalidAddress, err)
	}
	return addr, nil
}

func pathUint(r *http.Request, name string) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, name), 10, 64)
}

func caller(r *http.Request) crypto.Address {
	p, _ := PrincipalFromContext(r.Context())
	return p.Address
}

// --- public handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.vault.Status(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleApyTable(w http.ResponseWriter, r *http.Request) {
	table, err := s.vault.ApyTable(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(table), "options": apyToJSON(table)})
}

func (s *Server) handleApyDurations(w http.ResponseWriter, r *http.Request) {
	durations, err := s.vault.ApyDurations(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if durations == nil {
		durations = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"durations": durations})
}

func (s *Server) handleApyCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.vault.ApyCount(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleRewardCapacity(w http.ResponseWriter, r *http.Request) {
	capacity, err := s.vault.RewardCapacity(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"capacity": capacity.Dec()})
}

func (s *Server) handleApyPercentage(w http.ResponseWriter, r *http.Request) {
	duration, err := pathUint(r, "duration")
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid duration")
		return
	}
	pct, err := s.vault.ApyPercentage(r.Context(), duration)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apyOptionJSON{Duration: duration, Percentage: pct})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.vault.Status(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusJSON{
		Address:               status.Address.String(),
		Admin:                 status.Admin.String(),
		StartedAt:             status.StartedAt,
		Paused:                status.Paused,
		OperatorPaused:        s.vault.OperatorPaused(),
		TotalStaked:           amountString(status.TotalStaked),
		ExitPenaltyPercentage: status.ExitPenaltyPercentage,
		WithdrawFeePercentage: status.WithdrawFeePercentage,
		TreasuryBalance:       amountString(status.TreasuryBalance),
		RewardCapacity:        amountString(status.RewardCapacity),
		ResetAt:               status.ResetAt,
		Apy:                   apyToJSON(status.ApyOptions),
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.vault.Account(r.Context(), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountJSON{
		Address:       view.Address.String(),
		Balance:       amountString(view.Balance),
		TotalStaked:   amountString(view.TotalStaked),
		PendingReward: amountString(view.PendingReward),
		Deposits:      depositsToJSON(view.Deposits),
	})
}

func (s *Server) handleDeposits(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	deposits, err := s.vault.Deposits(r.Context(), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(deposits), "deposits": depositsToJSON(deposits)})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid index")
		return
	}
	deposit, err := s.vault.Deposit(r.Context(), addr, index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, depositToJSON(deposit))
}

func (s *Server) handlePendingReward(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reward, err := s.vault.PendingReward(r.Context(), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr.String(), "reward": amountString(reward)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSONError(w, r, http.StatusNotFound, "event journal disabled")
		return
	}
	q := r.URL.Query()
	filter := JournalFilter{Account: strings.TrimSpace(q.Get("account")), Type: strings.TrimSpace(q.Get("type"))}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSONError(w, r, http.StatusBadRequest, "invalid after cursor")
			return
		}
		filter.After = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	entries, err := s.journal.List(filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]eventJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, eventJSON{
			ID:         e.ID.String(),
			Sequence:   e.Sequence,
			Digest:     e.Digest,
			Type:       e.Type,
			Attributes: DecodeAttributes(e.Attributes),
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

// --- depositor handlers ---

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	account := caller(r)
	index, err := s.vault.Stake(r.Context(), account, amount, req.Duration)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"account": account.String(), "index": index})
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	var req unstakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.vault.Unstake(r.Context(), caller(r), req.Index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unstakeToJSON(res))
}

func (s *Server) handleUnstakeAll(w http.ResponseWriter, r *http.Request) {
	res, err := s.vault.UnstakeAll(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unstakeToJSON(res))
}

// --- admin handlers ---

func (s *Server) handleStartReward(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.StartReward(r.Context(), caller(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStopReward(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.StopReward(r.Context(), caller(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetApy(w http.ResponseWriter, r *http.Request) {
	var req apyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.vault.SetApy(r.Context(), caller(r), req.Percentage, req.Duration); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteApy(w http.ResponseWriter, r *http.Request) {
	duration, err := pathUint(r, "duration")
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid duration")
		return
	}
	if err := s.vault.DeleteApy(r.Context(), caller(r), duration); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExitPenalty(w http.ResponseWriter, r *http.Request) {
	var req percentageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.vault.UpdateExitPenalty(r.Context(), caller(r), req.Percentage); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWithdrawFee(w http.ResponseWriter, r *http.Request) {
	var req percentageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.vault.UpdateWithdrawFee(r.Context(), caller(r), req.Percentage); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.vault.WithdrawEmergencyReward(r.Context(), caller(r), amount); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.Reset(r.Context(), caller(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) adminTarget(w http.ResponseWriter, r *http.Request, req *unstakeRequest) (crypto.Address, bool) {
	account, err := decodeAddress(req.Account)
	if err != nil {
		writeError(w, r, err)
		return crypto.Address{}, false
	}
	return account, true
}

func (s *Server) handleAdminUnstake(w http.ResponseWriter, r *http.Request) {
	var req unstakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, ok := s.adminTarget(w, r, &req)
	if !ok {
		return
	}
	res, err := s.vault.AdminUnstake(r.Context(), caller(r), account, req.Index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unstakeToJSON(res))
}

func (s *Server) handleAdminUnstakeAll(w http.ResponseWriter, r *http.Request) {
	var req unstakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, ok := s.adminTarget(w, r, &req)
	if !ok {
		return
	}
	res, err := s.vault.AdminUnstakeAll(r.Context(), caller(r), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unstakeToJSON(res))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.vault.SetPaused(r.Context(), caller(r), req.Paused); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

func (s *Server) handleInvariants(w http.ResponseWriter, r *http.Request) {
	report, err := s.vault.CheckInvariants(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invariantJSON{
		Accounts:      report.Accounts,
		Deposits:      report.Deposits,
		LedgerTotal:   amountString(report.LedgerTotal),
		VaultTotal:    amountString(report.VaultTotal),
		ResetObserved: report.ResetObserved,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exportDir == "" {
		writeJSONError(w, r, http.StatusNotFound, "export disabled")
		return
	}
	ok, err := s.vault.IsAdmin(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, staking.ErrUnauthorized)
		return
	}
	res, err := ExportDeposits(r.Context(), s.vault, s.exportDir, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
