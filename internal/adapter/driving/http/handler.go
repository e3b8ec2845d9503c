// Package httphandler is the HTTP driving adapter: the public OAuth callback,
// the bulk-replace endpoint, and the operator command surface.
package httphandler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rosterhub/rosterhub/internal/application"
	"github.com/rosterhub/rosterhub/internal/domain/model"
	"github.com/rosterhub/rosterhub/internal/domain/port/driven"
	"github.com/rosterhub/rosterhub/internal/pagetoken"
)

// actorHeader carries the acting identity for operator commands and
// pagination redemption.
const actorHeader = "X-Actor-ID"

// replaceSecretHeader carries the shared secret for the bulk-replace endpoint.
const replaceSecretHeader = "X-Roster-Secret"

const maxReplaceBody = 1 << 20

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	roster        *application.RosterService
	dispatch      *application.DispatchService
	refresher     application.TokenRefresher
	members       driven.MemberStore
	runs          driven.RunStore
	settings      driven.SettingStore
	platform      driven.PlatformClient
	groupID       string
	operators     map[string]bool
	replaceSecret string
	logger        *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. operators is
// the allow-listed set of actor IDs permitted to use the command surface.
func NewHandler(
	roster *application.RosterService,
	dispatch *application.DispatchService,
	refresher application.TokenRefresher,
	members driven.MemberStore,
	runs driven.RunStore,
	settings driven.SettingStore,
	platform driven.PlatformClient,
	groupID string,
	operators []string,
	replaceSecret string,
	logger *slog.Logger,
) *Handler {
	allowed := make(map[string]bool, len(operators))
	for _, id := range operators {
		allowed[id] = true
	}

	return &Handler{
		roster:        roster,
		dispatch:      dispatch,
		refresher:     refresher,
		members:       members,
		runs:          runs,
		settings:      settings,
		platform:      platform,
		groupID:       groupID,
		operators:     allowed,
		replaceSecret: replaceSecret,
		logger:        logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /oauth/login", h.OAuthLogin)
	mux.HandleFunc("GET /oauth/callback", h.OAuthCallback)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("POST /api/v1/roster/replace", h.ReplaceRoster)

	mux.Handle("GET /api/v1/roster", h.operatorOnly(h.ListRoster))
	mux.Handle("POST /api/v1/roster/page", h.operatorOnly(h.RedeemPage))
	mux.Handle("GET /api/v1/roster/origins", h.operatorOnly(h.RepeatOrigins))
	mux.Handle("GET /api/v1/roster/{id}", h.operatorOnly(h.GetMember))
	mux.Handle("DELETE /api/v1/roster/{id}", h.operatorOnly(h.RemoveMember))
	mux.Handle("DELETE /api/v1/roster", h.operatorOnly(h.ClearRoster))
	mux.Handle("POST /api/v1/roster/cleanup", h.operatorOnly(h.CleanupRoster))
	mux.Handle("POST /api/v1/roster/refresh", h.operatorOnly(h.RefreshCredentials))
	mux.Handle("POST /api/v1/roster/{id}/invite", h.operatorOnly(h.InviteMember))
	mux.Handle("POST /api/v1/invites", h.operatorOnly(h.InviteAll))
	mux.Handle("GET /api/v1/runs", h.operatorOnly(h.ListRuns))
	mux.Handle("GET /api/v1/settings", h.operatorOnly(h.ListSettings))
	mux.Handle("GET /api/v1/settings/{key}", h.operatorOnly(h.GetSetting))
	mux.Handle("PUT /api/v1/settings/{key}", h.operatorOnly(h.PutSetting))

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// operatorOnly rejects requests whose acting identity is not allow-listed.
// The rejection discloses nothing beyond "not permitted".
func (h *Handler) operatorOnly(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get(actorHeader)
		if actor == "" || !h.operators[actor] {
			h.logger.Warn("operator command rejected", "actor", actor, "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "not permitted")
			return
		}
		next(w, r)
	})
}

// OAuthLogin sends the member to the platform's authorization page.
func (h *Handler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.platform.AuthCodeURL(r.URL.Query().Get("state")), http.StatusFound)
}

// OAuthCallback completes a member's authorization: it exchanges the code for
// a token pair, fetches the asserted identity, records the member, attempts
// the group-membership grant, and posts a line to the configured log channel.
// A missing or rejected code is a client error and mutates nothing.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	pair, err := h.platform.ExchangeCode(ctx, code)
	if err != nil {
		h.logger.Warn("code exchange failed", "error", err)
		writeError(w, http.StatusBadRequest, "authorization code rejected")
		return
	}

	identity, err := h.platform.Identity(ctx, pair.AccessToken)
	if err != nil {
		h.logger.Error("identity fetch failed", "error", err)
		writeError(w, http.StatusBadGateway, "could not resolve identity")
		return
	}

	member := model.Member{
		ID:           identity.ID,
		DisplayName:  identity.DisplayName,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		OriginAddr:   clientOrigin(r),
		VerifiedAt:   time.Now().UTC(),
		AvatarURL:    identity.AvatarURL,
	}.Normalize()
	h.members.Upsert(ctx, member)

	if err := h.platform.AddGroupMember(ctx, h.groupID, member.ID, member.AccessToken); err != nil {
		h.logger.Error("group grant failed", "member", member.ID, "group", h.groupID, "error", err)
	} else {
		h.logger.Info("group grant succeeded", "member", member.ID, "group", h.groupID)
	}

	h.postVerificationLog(r, member)

	writeJSON(w, http.StatusOK, verificationResponse{
		Status:   "verified",
		MemberID: member.ID,
	})
}

// postVerificationLog posts a line to the operator log channel, if one is
// configured. Best effort.
func (h *Handler) postVerificationLog(r *http.Request, member model.Member) {
	ctx := r.Context()

	channel, err := h.settings.Get(ctx, model.SettingLogChannel)
	if err != nil {
		h.logger.Error("log channel lookup failed", "error", err)
		return
	}
	if channel == "" {
		return
	}

	text := member.DisplayName + " (" + member.ID + ") verified from " + member.OriginAddr
	if err := h.platform.PostLogMessage(ctx, channel, text); err != nil {
		h.logger.Error("verification log post failed", "channel", channel, "error", err)
	}
}

// ReplaceRoster overwrites the roster wholesale from the request body after
// checking the shared secret. The previous contents are backed up first.
func (h *Handler) ReplaceRoster(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get(replaceSecretHeader)
	if h.replaceSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(h.replaceSecret)) != 1 {
		writeError(w, http.StatusForbidden, "not permitted")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxReplaceBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := h.members.ReplaceAll(r.Context(), raw); err != nil {
		h.logger.Warn("roster replace rejected", "error", err)
		writeError(w, http.StatusBadRequest, "replacement roster does not parse")
		return
	}

	h.logger.Info("roster replaced wholesale", "bytes", len(raw))
	writeJSON(w, http.StatusOK, statusResponse{Status: "replaced"})
}

// ListRoster returns one page of the roster with pagination tokens bound to
// the requesting actor.
func (h *Handler) ListRoster(w http.ResponseWriter, r *http.Request) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid page number")
			return
		}
		page = parsed
	}

	result, err := h.roster.Page(r.Context(), r.Header.Get(actorHeader), page)
	if err != nil {
		h.logger.Error("roster page failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toRosterPageResponse(result))
}

// RedeemPage validates a pagination token for the acting identity and returns
// the target page with fresh tokens.
func (h *Handler) RedeemPage(w http.ResponseWriter, r *http.Request) {
	var req redeemPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token required")
		return
	}

	result, err := h.roster.Redeem(r.Context(), req.Token, r.Header.Get(actorHeader))
	switch {
	case errors.Is(err, pagetoken.ErrExpired):
		writeError(w, http.StatusGone, "page control no longer valid")
		return
	case errors.Is(err, pagetoken.ErrForbidden):
		writeError(w, http.StatusForbidden, "not permitted")
		return
	case errors.Is(err, pagetoken.ErrMalformed):
		writeError(w, http.StatusBadRequest, "malformed page token")
		return
	case err != nil:
		h.logger.Error("page redemption failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toRosterPageResponse(result))
}

// RepeatOrigins returns the groups of members sharing a network origin.
func (h *Handler) RepeatOrigins(w http.ResponseWriter, r *http.Request) {
	groups := h.roster.RepeatOrigins(r.Context())

	resp := make(map[string][]memberResponse, len(groups))
	for origin, members := range groups {
		list := make([]memberResponse, 0, len(members))
		for _, m := range members {
			list = append(list, toMemberResponse(m))
		}
		resp[origin] = list
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetMember returns a single roster record.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	member := h.roster.Lookup(r.Context(), r.PathValue("id"))
	if member == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(*member))
}

// RemoveMember deletes a single roster record.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.roster.Remove(r.Context(), id) {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	h.logger.Info("member removed", "member", id, "actor", r.Header.Get(actorHeader))
	writeJSON(w, http.StatusOK, statusResponse{Status: "removed"})
}

// ClearRoster deletes every roster record.
func (h *Handler) ClearRoster(w http.ResponseWriter, r *http.Request) {
	removed := h.roster.Clear(r.Context())
	h.logger.Info("roster cleared", "removed", removed, "actor", r.Header.Get(actorHeader))
	writeJSON(w, http.StatusOK, countResponse{Count: removed})
}

// CleanupRoster sweeps records with unusable tokens.
func (h *Handler) CleanupRoster(w http.ResponseWriter, r *http.Request) {
	removed := h.roster.Sweep(r.Context())
	h.logger.Info("roster swept", "removed", removed, "actor", r.Header.Get(actorHeader))
	writeJSON(w, http.StatusOK, countResponse{Count: removed})
}

// RefreshCredentials triggers an on-demand refresh pass and reports counts.
func (h *Handler) RefreshCredentials(w http.ResponseWriter, r *http.Request) {
	report, err := h.refresher.RefreshNow(r.Context())
	if err != nil {
		h.logger.Error("on-demand refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Refreshed: report.Refreshed,
		Deleted:   report.Deleted,
	})
}

// InviteMember dispatches a single group invitation.
func (h *Handler) InviteMember(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.dispatch.InviteOne(r.Context(), id)
	switch {
	case errors.Is(err, application.ErrMemberNotFound):
		writeError(w, http.StatusNotFound, "member not found")
		return
	case err != nil:
		h.logger.Error("invite failed", "member", id, "error", err)
		writeError(w, http.StatusBadGateway, "invite failed")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "invited"})
}

// InviteAll runs a full bulk invitation: refresh first, then batched dispatch
// to exhaustion. Only aggregate counts are returned.
func (h *Handler) InviteAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.dispatch.InviteAll(r.Context())
	if err != nil {
		h.logger.Error("bulk invite failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, dispatchResponse{
		Success: report.Success,
		Failed:  report.Failed,
	})
}

// ListRuns returns the recent run history.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.ListRecent(r.Context(), 50)
	if err != nil {
		h.logger.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListSettings returns all operator settings.
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.List(r.Context())
	if err != nil {
		h.logger.Error("list settings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]settingResponse, 0, len(settings))
	for _, s := range settings {
		resp = append(resp, settingResponse{
			Key:       s.Key,
			Value:     s.Value,
			UpdatedAt: s.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSetting returns one operator setting. An unset key reads as empty.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	value, err := h.settings.Get(r.Context(), key)
	if err != nil {
		h.logger.Error("get setting failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: value})
}

// PutSetting stores or replaces one operator setting.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req putSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := h.settings.Set(r.Context(), key, req.Value); err != nil {
		h.logger.Error("set setting failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "saved"})
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// clientOrigin extracts the best-effort client network origin: the first
// X-Forwarded-For hop when present, else the connection's remote host.
func clientOrigin(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return model.DefaultOrigin
	}
	return host
}
