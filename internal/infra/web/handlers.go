package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/model"
	"chat-assistant/internal/infra/logging"
)

const maxBody = 64 << 10

// ===== HTML page =====

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.session(r).Snapshot()
	data := pageData{
		Lang:     s.lang,
		State:    snap.State,
		Awaiting: snap.Phase == model.PhaseAwaitingReply,
		Version:  snap.Version,
	}
	switch {
	case snap.Error != nil:
		data.Banner = s.tr.ErrorMessage(snap.Error.Code)
	case r.URL.Query().Get("error") != "":
		// rejections that do not change the session come back as a flash code
		data.Banner = s.tr.ErrorMessage(r.URL.Query().Get("error"))
	}
	if err := s.pages.render(w, s.pages.chat, data); err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("render chat page")
	}
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	if err := s.pages.render(w, s.pages.about, pageData{Lang: s.lang}); err != nil {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("render about page")
	}
}

func (s *Server) handleSaveKeyForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseForm(); err != nil {
		s.backToPage(w, r, "bad_request")
		return
	}
	sess := s.session(r)
	if err := sess.EditAPIKey(r.PostForm.Get("api_key")); err != nil {
		s.backToPage(w, r, domain.ErrorCode(err))
		return
	}
	// a storage failure is shown by the session banner
	_ = sess.SaveAPIKey(r.Context())
	s.backToPage(w, r, "")
}

func (s *Server) handleResetForm(w http.ResponseWriter, r *http.Request) {
	if err := s.session(r).ResetChat(); err != nil {
		s.backToPage(w, r, domain.ErrorCode(err))
		return
	}
	s.backToPage(w, r, "")
}

func (s *Server) handleAskForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseForm(); err != nil {
		s.backToPage(w, r, "bad_request")
		return
	}
	sess := s.session(r)
	if err := sess.EditQuestion(r.PostForm.Get("question")); err != nil {
		s.backToPage(w, r, domain.ErrorCode(err))
		return
	}
	if _, err := sess.SubmitQuestion(r.Context()); err != nil && !errors.Is(err, domain.ErrBusy) {
		s.backToPage(w, r, domain.ErrorCode(err))
		return
	}
	s.backToPage(w, r, "")
}

func (s *Server) backToPage(w http.ResponseWriter, r *http.Request, code string) {
	target := "/"
	if code != "" {
		target += "?" + url.Values{"error": {code}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// ===== JSON API =====

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type questionRequest struct {
	Text string `json:"text"`
}

type apiKeyRequest struct {
	APIKey string `json:"api_key"`
}

type submitRequest struct {
	Text *string `json:"text,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session(r).Snapshot())
}

type transcriptResponse struct {
	Chat []model.ChatSnippet `json:"chat"`
}

// handleGetTranscript returns what storage holds for the current
// conversation, which lags the live transcript while a reply is pending.
func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	chat, err := s.session(r).SavedTranscript(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse{Chat: chat})
}

func (s *Server) handlePutQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess := s.session(r)
	if err := sess.EditQuestion(req.Text); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handlePutAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess := s.session(r)
	if err := sess.EditAPIKey(req.APIKey); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleSaveAPIKey(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if err := sess.SaveAPIKey(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess := s.session(r)
	if err := sess.ResetChat(); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleSubmit optionally replaces the draft with "text", then submits it.
// The reply arrives later through GET or the websocket.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	sess := s.session(r)
	if req.Text != nil {
		if err := sess.EditQuestion(*req.Text); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if _, err := sess.SubmitQuestion(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r, s.session(r))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "bad_request")
		return false
	}
	return true
}

func (s *Server) unauthenticated(w http.ResponseWriter, _ *http.Request) {
	s.writeError(w, http.StatusUnauthorized, "unauthenticated")
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Warn().Err(err).Int("status", status).Msg("session request failed")
	}
	s.writeError(w, status, domain.ErrorCode(err))
}

func (s *Server) writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: s.tr.ErrorMessage(code)}})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRequestInFlight):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
