package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/herverfred/mission-center/internal/application/activity"
	"github.com/herverfred/mission-center/internal/application/mission"
	"github.com/herverfred/mission-center/internal/domain"
	appCtx "github.com/herverfred/mission-center/internal/pkg/context"
	"github.com/herverfred/mission-center/internal/transport/rest/response"
)

type Handler struct {
	activity *activity.Service
	missions *mission.Service
	rewards  *mission.Distributor
}

func NewHandler(act *activity.Service, missions *mission.Service, rewards *mission.Distributor) *Handler {
	return &Handler{activity: act, missions: missions, rewards: rewards}
}

// Login authenticates and fires the login event. An optional login_date
// (YYYY-MM-DD) backdates the activity day.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		LoginDate string `json:"login_date,omitempty"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	if req.Username == "" || req.Password == "" {
		fail(w, r, http.StatusBadRequest, "request.invalid", "username and password are required", nil)
		return
	}

	var loginDate *time.Time
	if req.LoginDate != "" {
		t, err := time.Parse("2006-01-02", req.LoginDate)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid login_date", map[string]string{
				"login_date": "must be YYYY-MM-DD",
			})
			return
		}
		loginDate = &t
	}

	user, err := h.activity.Login(r.Context(), req.Username, req.Password, loginDate)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusOK, map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
		"points":   user.Points,
	})
}

func (h *Handler) Launch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"user_id"`
		GameID int64 `json:"game_id"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	if err := h.activity.Launch(r.Context(), req.UserID, req.GameID); err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusAccepted, map[string]string{
		"status": "launch recorded",
	})
}

// Play accepts the request, generates the score server-side, and echoes it
// back. The record lands asynchronously via the event pipeline.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"user_id"`
		GameID int64 `json:"game_id"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	score, err := h.activity.Play(r.Context(), req.UserID, req.GameID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.Data(w, http.StatusAccepted, map[string]any{
		"status": "play recorded",
		"score":  score,
	})
}

// MissionProgress returns the active-cycle missions plus per-mission detail.
func (h *Handler) MissionProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	if _, err := h.activity.GetUser(r.Context(), userID); err != nil {
		handleErr(w, r, err)
		return
	}

	missions, err := h.missions.Progress(r.Context(), userID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	items := make([]map[string]any, 0, len(missions))
	for _, m := range missions {
		item := map[string]any{
			"mission_type":     string(m.Type),
			"cycle_start_date": m.CycleStartDate.Format("2006-01-02"),
			"is_completed":     m.IsCompleted,
		}
		if m.CompletedAt != nil {
			item["completed_at"] = m.CompletedAt
		}
		switch m.Type {
		case domain.MissionLogin:
			item["consecutive_days"] = h.missions.ConsecutiveLoginDays(r.Context(), userID)
		case domain.MissionLaunch:
			item["distinct_games"] = h.missions.LaunchProgress(r.Context(), userID)
		case domain.MissionPlay:
			stats := h.missions.PlayProgress(r.Context(), userID)
			item["play_count"] = stats.Count
			item["total_score"] = stats.TotalScore
		}
		items = append(items, item)
	}

	response.Data(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"missions": items,
	})
}

func (h *Handler) Rewards(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	if _, err := h.activity.GetUser(r.Context(), userID); err != nil {
		handleErr(w, r, err)
		return
	}

	rewards, err := h.rewards.History(r.Context(), userID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	items := make([]map[string]any, 0, len(rewards))
	for _, rw := range rewards {
		items = append(items, map[string]any{
			"reward_type":    rw.RewardType,
			"reward_period":  rw.RewardPeriod,
			"points":         rw.Points,
			"distributed_at": rw.DistributedAt,
		})
	}

	response.Data(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"rewards": items,
	})
}

func (h *Handler) Games(w http.ResponseWriter, r *http.Request) {
	games, err := h.activity.ListGames(r.Context())
	if err != nil {
		handleErr(w, r, err)
		return
	}

	items := make([]map[string]any, 0, len(games))
	for _, g := range games {
		items = append(items, map[string]any{
			"id":   g.ID,
			"name": g.Name,
		})
	}
	response.Data(w, http.StatusOK, map[string]any{"games": items})
}

func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id < 1 {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid userID", map[string]string{
			"user_id": "must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		fail(w, r, http.StatusUnauthorized, "auth.invalid_credentials", err.Error(), nil)
	case errors.Is(err, domain.ErrUserNotFound):
		fail(w, r, http.StatusNotFound, "user.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrGameNotFound):
		fail(w, r, http.StatusNotFound, "game.not_found", err.Error(), nil)
	default:
		// Do not leak internal details.
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}
