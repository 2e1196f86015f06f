// Package api provides the HTTP handlers for buying, scratching and
// transferring cards, querying balances, and administering the game.
//
// Callers identify themselves with the X-Account-ID header. Authentication
// of that header is left to the gateway in front of the service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/scratch-engine/internal/admin"
	"github.com/atmx/scratch-engine/internal/asset"
	"github.com/atmx/scratch-engine/internal/grid"
	"github.com/atmx/scratch-engine/internal/ledger"
	"github.com/atmx/scratch-engine/internal/limits"
	"github.com/atmx/scratch-engine/internal/model"
	"github.com/atmx/scratch-engine/internal/odds"
	"github.com/atmx/scratch-engine/internal/payout"
	"github.com/atmx/scratch-engine/internal/ratio"
	"github.com/atmx/scratch-engine/internal/scratch"
)

// AccountHeader carries the caller's account identity.
const AccountHeader = "X-Account-ID"

// Service exposes a scratch.Engine over HTTP.
type Service struct {
	engine    *scratch.Engine
	limiter   *limits.PurchaseLimiter
	devFaucet bool
}

// NewService creates the HTTP service. Pass nil for limiter to accept any
// purchase size. devFaucet enables POST /dev/deposit.
func NewService(engine *scratch.Engine, limiter *limits.PurchaseLimiter, devFaucet bool) *Service {
	return &Service{
		engine:    engine,
		limiter:   limiter,
		devFaucet: devFaucet,
	}
}

// Routes mounts every handler on r.
func (s *Service) Routes(r chi.Router) {
	r.Get("/game", s.GetGameState)

	// Cards.
	r.Post("/cards", s.BuyCards)
	r.Get("/cards/{cardID}", s.GetCard)
	r.Get("/cards/{cardID}/events", s.GetCardEvents)
	r.Post("/cards/{cardID}/scratch", s.ScratchCard)
	r.Post("/cards/{cardID}/transfer", s.TransferCard)

	// Accounts.
	r.Get("/accounts/{account}/cards", s.ListAccountCards)
	r.Get("/accounts/{account}/balances/{asset}", s.GetBalance)

	// Administration.
	r.Route("/admin", func(r chi.Router) {
		r.Put("/odds", s.SetOdds)
		r.Put("/secondary-prizes", s.SetSecondaryPrizes)
		r.Put("/conversion-rates", s.SetConversionRates)
		r.Put("/prizes-and-rates", s.SetPrizesAndRates)
		r.Put("/admin", s.SetAdmin)
		r.Post("/withdraw", s.Withdraw)
	})

	if s.devFaucet {
		r.Post("/dev/deposit", s.Deposit)
	}
}

// --- Request/Response types ---

// BuyRequest is the JSON body for POST /cards.
type BuyRequest struct {
	NumCards uint64 `json:"num_cards"`
}

// BuyResponse is returned from POST /cards.
type BuyResponse struct {
	Cards     []CardView `json:"cards"`
	TotalCost uint64     `json:"total_cost"`
	Asset     asset.ID   `json:"asset"`
}

// CardView is the public representation of a card.
type CardView struct {
	ID           string     `json:"id"`
	Buyer        string     `json:"buyer"`
	Owner        string     `json:"owner,omitempty"`
	Scratched    bool       `json:"scratched"`
	USDAmount    uint64     `json:"usd_amount"`
	PayoutAsset  asset.ID   `json:"payout_asset"`
	PayoutSymbol string     `json:"payout_symbol"`
	PayoutAmount uint64     `json:"payout_amount"`
	Cells        grid.Grid  `json:"cells"`
	WinningRows  []int      `json:"winning_rows"`
	CreatedAt    time.Time  `json:"created_at"`
	ScratchedAt  *time.Time `json:"scratched_at,omitempty"`
}

func newCardView(c *model.Card, owner string) CardView {
	v := CardView{
		ID:           c.ID,
		Buyer:        c.Buyer,
		Owner:        owner,
		Scratched:    c.Summary.Scratched,
		USDAmount:    c.Summary.USDAmount,
		PayoutAsset:  c.Summary.PayoutAsset,
		PayoutSymbol: c.Summary.PayoutAsset.Symbol(),
		PayoutAmount: c.Summary.PayoutAmount,
		Cells:        c.Summary.Cells,
		WinningRows:  c.Summary.Cells.WinningRows(),
		CreatedAt:    c.CreatedAt,
	}
	if v.WinningRows == nil {
		v.WinningRows = []int{}
	}
	if !c.ScratchedAt.IsZero() {
		at := c.ScratchedAt
		v.ScratchedAt = &at
	}
	return v
}

// TransferRequest is the JSON body for POST /cards/{cardID}/transfer.
type TransferRequest struct {
	To string `json:"to"`
}

// OddsRequest is the JSON body for PUT /admin/odds.
type OddsRequest struct {
	Odds    []uint32 `json:"odds"`
	Payouts []uint64 `json:"payouts"`
}

// SecondaryPrizesRequest is the JSON body for PUT /admin/secondary-prizes.
type SecondaryPrizesRequest struct {
	Odds   []uint32 `json:"odds"`
	Assets []string `json:"assets"`
}

// ConversionRatesRequest is the JSON body for PUT /admin/conversion-rates.
type ConversionRatesRequest struct {
	Assets       []string `json:"assets"`
	Numerators   []uint64 `json:"numerators"`
	Denominators []uint64 `json:"denominators"`
}

// PrizesAndRatesRequest is the JSON body for PUT /admin/prizes-and-rates.
type PrizesAndRatesRequest struct {
	Odds         []uint32 `json:"odds"`
	PrizeAssets  []string `json:"prize_assets"`
	RateAssets   []string `json:"rate_assets"`
	Numerators   []uint64 `json:"numerators"`
	Denominators []uint64 `json:"denominators"`
}

// SetAdminRequest is the JSON body for PUT /admin/admin.
type SetAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

// WithdrawRequest is the JSON body for POST /admin/withdraw.
type WithdrawRequest struct {
	Asset       string `json:"asset"`
	Destination string `json:"destination"`
	Amount      uint64 `json:"amount"`
}

// DepositRequest is the JSON body for POST /dev/deposit.
type DepositRequest struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  uint64 `json:"amount"`
}

// BalanceResponse is returned from GET /accounts/{account}/balances/{asset}.
type BalanceResponse struct {
	Account string   `json:"account"`
	Asset   asset.ID `json:"asset"`
	Balance uint64   `json:"balance"`
}

// --- HTTP Handlers ---

// GetGameState handles GET /api/v1/game
func (s *Service) GetGameState(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.GameState(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// BuyCards handles POST /api/v1/cards
func (s *Service) BuyCards(w http.ResponseWriter, r *http.Request) {
	buyer, ok := caller(w, r)
	if !ok {
		return
	}
	var req BuyRequest
	if !decode(w, r, &req) {
		return
	}

	if s.limiter != nil {
		if err := s.limiter.Check(buyer, req.NumCards); err != nil {
			writeEngineError(w, err)
			return
		}
	}

	cards, err := s.engine.Buy(r.Context(), buyer, req.NumCards)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if s.limiter != nil {
		s.limiter.Charge(buyer, req.NumCards)
	}

	cfg := s.engine.Config()
	resp := BuyResponse{
		Cards:     make([]CardView, len(cards)),
		TotalCost: cfg.Cost * uint64(len(cards)),
		Asset:     cfg.DefaultAsset,
	}
	for i := range cards {
		resp.Cards[i] = newCardView(&cards[i], buyer)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetCard handles GET /api/v1/cards/{cardID}
func (s *Service) GetCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")
	ctx := r.Context()

	card, err := s.engine.GetCard(ctx, cardID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	owner, err := s.engine.OwnerOf(ctx, cardID)
	if err != nil {
		slog.Warn("card has no owner", "card", cardID, "err", err)
	}
	writeJSON(w, http.StatusOK, newCardView(card, owner))
}

// GetCardEvents handles GET /api/v1/cards/{cardID}/events
func (s *Service) GetCardEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.engine.CardEvents(r.Context(), chi.URLParam(r, "cardID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if events == nil {
		events = []model.EventRecord{}
	}
	writeJSON(w, http.StatusOK, events)
}

// ScratchCard handles POST /api/v1/cards/{cardID}/scratch
func (s *Service) ScratchCard(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	card, err := s.engine.Scratch(r.Context(), who, chi.URLParam(r, "cardID"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCardView(card, who))
}

// TransferCard handles POST /api/v1/cards/{cardID}/transfer
func (s *Service) TransferCard(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	cardID := chi.URLParam(r, "cardID")
	if err := s.engine.TransferCard(r.Context(), who, req.To, cardID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"card": cardID, "owner": req.To})
}

// ListAccountCards handles GET /api/v1/accounts/{account}/cards
func (s *Service) ListAccountCards(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	ctx := r.Context()

	cards, err := s.engine.CardsByBuyer(ctx, account)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	views := make([]CardView, 0, len(cards))
	for i := range cards {
		owner, _ := s.engine.OwnerOf(ctx, cards[i].ID)
		views = append(views, newCardView(&cards[i], owner))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetBalance handles GET /api/v1/accounts/{account}/balances/{asset}
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	id, err := asset.Parse(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	bal, err := s.engine.Balance(r.Context(), account, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Account: account, Asset: id, Balance: bal})
}

// SetOdds handles PUT /api/v1/admin/odds
func (s *Service) SetOdds(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req OddsRequest
	if !decode(w, r, &req) {
		return
	}
	state, err := s.engine.SetOdds(r.Context(), who, req.Odds, req.Payouts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SetSecondaryPrizes handles PUT /api/v1/admin/secondary-prizes
func (s *Service) SetSecondaryPrizes(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req SecondaryPrizesRequest
	if !decode(w, r, &req) {
		return
	}
	state, err := s.engine.SetSecondaryPrizes(r.Context(), who, req.Odds, req.Assets)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SetConversionRates handles PUT /api/v1/admin/conversion-rates
func (s *Service) SetConversionRates(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req ConversionRatesRequest
	if !decode(w, r, &req) {
		return
	}
	state, err := s.engine.SetConversionRates(r.Context(), who, req.Assets, req.Numerators, req.Denominators)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SetPrizesAndRates handles PUT /api/v1/admin/prizes-and-rates
func (s *Service) SetPrizesAndRates(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req PrizesAndRatesRequest
	if !decode(w, r, &req) {
		return
	}
	state, err := s.engine.SetPrizesAndRates(r.Context(), who,
		req.Odds, req.PrizeAssets, req.RateAssets, req.Numerators, req.Denominators)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SetAdmin handles PUT /api/v1/admin/admin
func (s *Service) SetAdmin(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req SetAdminRequest
	if !decode(w, r, &req) {
		return
	}
	state, err := s.engine.SetAdmin(r.Context(), who, req.NewAdmin)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Withdraw handles POST /api/v1/admin/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req WithdrawRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := asset.Parse(req.Asset)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.engine.Withdraw(r.Context(), who, id, req.Destination, req.Amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Deposit handles POST /api/v1/dev/deposit. Only mounted when the dev
// faucet is enabled.
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := asset.Parse(req.Asset)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	if err := s.engine.Deposit(ctx, req.Account, id, req.Amount); err != nil {
		writeEngineError(w, err)
		return
	}
	bal, err := s.engine.Balance(ctx, req.Account, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	slog.Info("faucet deposit", "account", req.Account, "asset", id, "amount", req.Amount)
	writeJSON(w, http.StatusOK, BalanceResponse{Account: req.Account, Asset: id, Balance: bal})
}

// --- Helpers ---

// caller reads the account header, answering 401 when it is missing.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(AccountHeader)
	if id == "" {
		writeError(w, AccountHeader+" header is required", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scratch.ErrCardNotFound):
		return http.StatusNotFound
	case errors.Is(err, admin.ErrUnauthorized), errors.Is(err, scratch.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, scratch.ErrInsufficientFunds), errors.Is(err, admin.ErrInsufficientTreasuryBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, scratch.ErrAlreadyScratched),
		errors.Is(err, scratch.ErrPayoutFailed),
		errors.Is(err, payout.ErrMissingConversionRate),
		errors.Is(err, ratio.ErrOverflow),
		errors.Is(err, ledger.ErrBalanceOverflow):
		return http.StatusConflict
	case errors.Is(err, limits.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, scratch.ErrZeroCards),
		errors.Is(err, scratch.ErrInvalidAccount),
		errors.Is(err, limits.ErrBatchTooLarge),
		errors.Is(err, odds.ErrLengthMismatch),
		errors.Is(err, odds.ErrExceedsHundredPercent),
		errors.Is(err, odds.ErrDuplicateThreshold),
		errors.Is(err, ratio.ErrInvalidRatio),
		errors.Is(err, admin.ErrInvalidDenominator),
		errors.Is(err, admin.ErrMismatchedAssets),
		errors.Is(err, admin.ErrZeroAmount),
		errors.Is(err, admin.ErrEmptyAdmin),
		errors.Is(err, asset.ErrInvalidAsset):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
