package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rosterhub/rosterhub/internal/application"
	"github.com/rosterhub/rosterhub/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// memberResponse is the JSON representation of one roster record. Tokens are
// never serialized outward.
type memberResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	OriginAddr  string `json:"origin_address"`
	VerifiedAt  string `json:"verified_at"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Durable     bool   `json:"durable"`
	Invitable   bool   `json:"invitable"`
}

func toMemberResponse(m model.Member) memberResponse {
	return memberResponse{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		OriginAddr:  m.OriginAddr,
		VerifiedAt:  m.VerifiedAt.UTC().Format(time.RFC3339),
		AvatarURL:   m.AvatarURL,
		Durable:     m.Durable(),
		Invitable:   m.Invitable(),
	}
}

// rosterPageResponse is one page of the roster listing plus the pagination
// tokens for moving away from it.
type rosterPageResponse struct {
	Members   []memberResponse `json:"members"`
	Page      int              `json:"page"`
	PageCount int              `json:"page_count"`
	Total     int              `json:"total"`
	PrevToken string           `json:"prev_token,omitempty"`
	NextToken string           `json:"next_token,omitempty"`
}

func toRosterPageResponse(p application.RosterPage) rosterPageResponse {
	members := make([]memberResponse, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, toMemberResponse(m))
	}
	return rosterPageResponse{
		Members:   members,
		Page:      p.Page,
		PageCount: p.PageCount,
		Total:     p.Total,
		PrevToken: p.PrevToken,
		NextToken: p.NextToken,
	}
}

// runResponse is the JSON representation of one recorded run.
type runResponse struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	GroupID    string `json:"group_id,omitempty"`
	Total      int    `json:"total"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

func toRunResponse(run model.Run) runResponse {
	return runResponse{
		ID:         run.ID,
		Kind:       string(run.Kind),
		GroupID:    run.GroupID,
		Total:      run.Total,
		Succeeded:  run.Succeeded,
		Failed:     run.Failed,
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: run.FinishedAt.UTC().Format(time.RFC3339),
	}
}

// settingResponse is the JSON representation of one operator setting.
type settingResponse struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// redeemPageRequest is the body of POST /api/v1/roster/page.
type redeemPageRequest struct {
	Token string `json:"token"`
}

// putSettingRequest is the body of PUT /api/v1/settings/{key}.
type putSettingRequest struct {
	Value string `json:"value"`
}

// verificationResponse is returned to the browser after a successful OAuth
// callback.
type verificationResponse struct {
	Status   string `json:"status"`
	MemberID string `json:"member_id"`
}

// refreshResponse reports the outcome of an on-demand refresh pass.
type refreshResponse struct {
	Refreshed int `json:"refreshed"`
	Deleted   int `json:"deleted"`
}

// dispatchResponse reports the outcome of a bulk invitation run.
type dispatchResponse struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// statusResponse is a minimal acknowledgement body.
type statusResponse struct {
	Status string `json:"status"`
}

// countResponse reports how many records an operation affected.
type countResponse struct {
	Count int `json:"count"`
}

// healthResponse is the health check response body.
type healthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
