package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/internal/archive"
	"ChainAgent/internal/observability/metrics"
	"ChainAgent/internal/orchestrator"
	"ChainAgent/internal/task"
	"ChainAgent/internal/walletauth"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	message := apperrors.AttributesOf(code).Message
	if e, ok := apperrors.From(err); ok {
		message = e.Message()
	}
	writeJSON(w, statusFor(code), errorBody{Error: string(code), Message: message})
}

func statusFor(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument, apperrors.CodeInvalidToolArgs:
		return http.StatusBadRequest
	case apperrors.CodeAuthFailure, apperrors.CodeNonceExpired, apperrors.CodeInvalidSignature:
		return http.StatusUnauthorized
	case apperrors.CodeNotFound, apperrors.CodeSessionNotFound, apperrors.CodeToolNotFound:
		return http.StatusNotFound
	case apperrors.CodePoolExhausted:
		return http.StatusServiceUnavailable
	case apperrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, err, "invalid request body")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionBody struct {
	WalletAddress string `json:"wallet_address"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionBody
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, err)
			return
		}
	}
	// A verified credential always wins over a claimed address.
	wallet := body.WalletAddress
	if identity, ok := walletauth.IdentityFromContext(r.Context()); ok {
		wallet = identity.WalletAddress
	}
	sess, err := s.sessions.Create(r.Context(), wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chatBody struct {
	SessionID     string `json:"session_id,omitempty"`
	Message       string `json:"message"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	req := orchestrator.ChatRequest{
		SessionID:     body.SessionID,
		Message:       body.Message,
		WalletAddress: body.WalletAddress,
	}
	if identity, ok := walletauth.IdentityFromContext(r.Context()); ok {
		req.WalletAddress = identity.WalletAddress
		req.Chain = identity.Chain
	}
	result, err := s.runner.Chat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	status := "done"
	if result.Exhausted {
		status = "exhausted"
	}
	metrics.ObserveTurn(status)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "deferred turns are not enabled"))
		return
	}
	var body chatBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	t := task.NewTask(body.SessionID, body.Message)
	t.WalletAddress = body.WalletAddress
	if identity, ok := walletauth.IdentityFromContext(r.Context()); ok {
		t.WalletAddress = identity.WalletAddress
		t.Chain = identity.Chain
	}
	record, err := s.tasks.Submit(r.Context(), t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "deferred turns are not enabled"))
		return
	}
	record, err := s.tasks.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "turn history is not enabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var (
		turns []*archive.Turn
		err   error
	)
	// Without a session filter the listing spans all sessions.
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		turns, err = s.history.ListBySession(r.Context(), sessionID, limit)
	} else {
		turns, err = s.history.ListRecent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	nonce, err := s.auth.RequestNonce(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body walletauth.VerifyRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	credential, err := s.auth.Verify(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credential)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := walletauth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeAuthFailure, ""))
		return
	}
	writeJSON(w, http.StatusOK, identity)
}
