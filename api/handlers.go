package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jmcleod/fleetguard/audit"
	"github.com/jmcleod/fleetguard/credential"
	"github.com/jmcleod/fleetguard/identity"
	"github.com/jmcleod/fleetguard/session"
)

// maxBodyBytes caps request bodies; every payload here is a few fields.
const maxBodyBytes = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func identityResponse(id identity.Identity) IdentityResponse {
	return IdentityResponse{ID: id.ID, Name: id.Name, Email: id.Email, CreatedAt: id.CreatedAt}
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := a.flow.SecureRegister(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, identityResponse(id))
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := a.flow.SecureLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, identityResponse(id))
}

func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.flow.Logout(r.Context()); err != nil {
		a.mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) SecurityStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:        string(a.guard.SecurityStatus()),
		Authenticated: a.flow.Authenticated(),
	}
	if last, ok := a.guard.LastActivity(); ok {
		last = last.UTC()
		resp.LastActivity = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) RecordActivity(w http.ResponseWriter, r *http.Request) {
	var req ActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind, err := session.ParseInteraction(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown interaction kind")
		return
	}
	a.guard.RecordActivity(kind)
	w.WriteHeader(http.StatusNoContent)
}

// ReportEvent accepts application-level security events from the client
// shell. Names are sanitized and bounded like any other user input.
func (a *API) ReportEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	event := strings.ToLower(credential.SanitizeText(req.Event))
	if event == "" || len(event) > 64 {
		writeError(w, http.StatusBadRequest, "event name must be 1 to 64 characters")
		return
	}
	if audit.IsReserved(event) {
		writeError(w, http.StatusBadRequest, "event name is reserved")
		return
	}
	a.guard.ReportSecurityEvent(r.Context(), event, req.Details)
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) ListAudit(w http.ResponseWriter, r *http.Request) {
	if a.auditLog == nil {
		writeError(w, http.StatusNotFound, "audit trail is not stored on this host")
		return
	}
	req := pageRequestFrom(r)
	records, err := a.auditLog.List(r.URL.Query().Get("event"), 0)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	page, meta := pageOf(records, req)
	writeJSON(w, http.StatusOK, AuditListResponse{
		Events:         page,
		PaginationMeta: meta,
	})
}

// PasswordStrength evaluates a candidate password against the configured
// policy so the client can show every violated rule while the user types.
func (a *API) PasswordStrength(w http.ResponseWriter, r *http.Request) {
	var req PasswordStrengthRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res := a.guard.PasswordPolicy().ValidatePasswordStrength(req.Password)
	errs := res.Errors
	if errs == nil {
		errs = []string{}
	}
	writeJSON(w, http.StatusOK, PasswordStrengthResponse{Valid: res.Valid, Errors: errs})
}
