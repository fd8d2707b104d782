package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"contest-engine/internal/app"
	"contest-engine/internal/domain"

	"github.com/go-playground/validator/v10"
)

// API serves the request/response endpoints next to the play websocket.
type API struct {
	engine      *app.Engine
	admission   *app.Admission
	leaderboard *app.Leaderboard
	payments    *app.Payments
	boot        *app.Bootstrapper
}

func NewAPI(engine *app.Engine, admission *app.Admission, leaderboard *app.Leaderboard, payments *app.Payments, boot *app.Bootstrapper) *API {
	return &API{
		engine:      engine,
		admission:   admission,
		leaderboard: leaderboard,
		payments:    payments,
		boot:        boot,
	}
}

// Routes registers every endpoint, the websocket included, on mux.
func (a *API) Routes(mux *http.ServeMux, ws *WSHandler) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if ws != nil {
		mux.HandleFunc("/ws", ws.ServeWS)
	}
	mux.HandleFunc("GET /bootstrap", a.withUser(a.bootstrap))
	mux.HandleFunc("POST /levels/ack", a.withUser(a.acknowledgeLevel))
	mux.HandleFunc("POST /contests/{id}/join", a.withUser(a.join))
	mux.HandleFunc("GET /contests/{id}/standings", a.standings)
	mux.HandleFunc("POST /sync/replay", a.withUser(a.replay))
	mux.HandleFunc("POST /payments/deposit", a.withUser(a.deposit))
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (a *API) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDFrom(r)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, errorPayload{Message: "missing user id", Code: "unauthenticated"})
			return
		}
		next(w, r, userID)
	}
}

func (a *API) bootstrap(w http.ResponseWriter, r *http.Request, userID string) {
	snap, err := a.boot.Load(r.Context(), userID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type levelAck struct {
	Level int `json:"level"`
}

func (a *API) acknowledgeLevel(w http.ResponseWriter, r *http.Request, userID string) {
	var body levelAck
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Level < 1 {
		writeError(w, http.StatusBadRequest, errorPayload{Message: "level must be a positive integer", Code: "invalid_request"})
		return
	}
	if err := a.boot.AcknowledgeLevel(r.Context(), userID, body.Level); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type joinResponse struct {
	app.JoinResult
	Message string `json:"message"`
}

type insufficientBalancePayload struct {
	errorPayload
	Balance   string `json:"balance"`
	Fee       string `json:"fee"`
	Shortfall string `json:"shortfall"`
}

func (a *API) join(w http.ResponseWriter, r *http.Request, userID string) {
	result, err := a.admission.Join(r.Context(), app.JoinRequest{UserID: userID, ContestID: r.PathValue("id")})
	if err != nil {
		var short *domain.InsufficientBalanceError
		if errors.As(err, &short) {
			writeError(w, http.StatusPaymentRequired, insufficientBalancePayload{
				errorPayload: errorPayload{Message: err.Error(), Code: errorCode(err)},
				Balance:      short.Balance.StringFixed(2),
				Fee:          short.Fee.StringFixed(2),
				Shortfall:    short.Shortfall().StringFixed(2),
			})
			return
		}
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{JoinResult: result, Message: "registered"})
}

func (a *API) standings(w http.ResponseWriter, r *http.Request) {
	rows, err := a.leaderboard.Standings(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) replay(w http.ResponseWriter, r *http.Request, userID string) {
	synced, err := a.engine.Sync(r.Context(), userID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncPayload{Synced: synced})
}

func (a *API) deposit(w http.ResponseWriter, r *http.Request, userID string) {
	var req app.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorPayload{Message: "invalid deposit payload", Code: "invalid_request"})
		return
	}
	req.UserID = userID
	redirect, err := a.payments.BeginDeposit(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redirect)
}

func userIDFrom(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("userId")
}

func errorCode(err error) string {
	var verr validator.ValidationErrors
	switch {
	case errors.As(err, &verr), errors.Is(err, app.ErrInvalidAmount):
		return "invalid_request"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, domain.ErrContestEnded):
		return "contest_ended"
	case errors.Is(err, domain.ErrInsufficientPool):
		return "insufficient_pool"
	case errors.Is(err, domain.ErrSuspiciousPerformance):
		return "suspicious_performance"
	case errors.Is(err, domain.ErrVisibilityFraud):
		return "visibility_fraud"
	case errors.Is(err, domain.ErrDisqualified):
		return "disqualified"
	case errors.Is(err, domain.ErrSettlementFailed):
		return "sync_deferred"
	case errors.Is(err, domain.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, app.ErrPlayInProgress):
		return "play_in_progress"
	case errors.Is(err, domain.ErrNotPlaying), errors.Is(err, domain.ErrAnswerPending):
		return "not_accepted"
	case isNotFound(err):
		return "not_found"
	}
	return ""
}

func isNotFound(err error) bool {
	for _, target := range []error{
		domain.ErrSessionNotFound,
		domain.ErrProfileNotFound,
		domain.ErrWalletNotFound,
		domain.ErrContestNotFound,
		domain.ErrParticipantNotFound,
		domain.ErrQuestionNotFound,
		domain.ErrTransactionNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func statusFor(code string) int {
	switch code {
	case "invalid_request", "invalid_payload":
		return http.StatusBadRequest
	case "insufficient_balance":
		return http.StatusPaymentRequired
	case "not_found":
		return http.StatusNotFound
	case "already_joined", "play_in_progress", "insufficient_pool", "not_accepted":
		return http.StatusConflict
	case "contest_ended":
		return http.StatusGone
	case "suspicious_performance", "visibility_fraud", "disqualified":
		return http.StatusForbidden
	case "sync_deferred":
		return http.StatusAccepted
	}
	return http.StatusInternalServerError
}

func writeFailure(w http.ResponseWriter, err error) {
	code := errorCode(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		log.Printf("http: %v", err)
	}
	writeError(w, status, errorPayload{Message: err.Error(), Code: code})
}

func writeError(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, outboundMessage[any]{Type: "error", Payload: payload})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}
