package api

import (
	"net/http"
	"time"

	"github.com/soaringjerry/tasktrail/internal/middleware"
	"github.com/soaringjerry/tasktrail/internal/services"
	"github.com/soaringjerry/tasktrail/internal/utils"
)

type badgeView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type profileView struct {
	ID                 string      `json:"id"`
	Username           string      `json:"username"`
	Email              string      `json:"email"`
	Avatar             string      `json:"avatar"`
	Score              int         `json:"score"`
	XP                 int         `json:"xp"`
	Level              int         `json:"level"`
	StreakCount        int         `json:"streakCount"`
	LastSubmissionDate *time.Time  `json:"lastSubmissionDate"`
	Badges             []badgeView `json:"badges"`
	CreatedAt          time.Time   `json:"createdAt"`
}

func newProfileView(u *services.User, locale string) profileView {
	badges := make([]badgeView, 0, len(u.Badges))
	for _, id := range u.Badges {
		badges = append(badges, badgeView{ID: id, Title: utils.T(locale, "badge."+id)})
	}
	return profileView{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		Avatar:             u.Avatar,
		Score:              u.Score,
		XP:                 u.XP,
		Level:              u.Level,
		StreakCount:        u.StreakCount,
		LastSubmissionDate: u.LastSubmissionDate,
		Badges:             badges,
		CreatedAt:          u.CreatedAt,
	}
}

// GET /api/user/profile
func (rt *Router) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserIDFromContext(r.Context())
	u, err := rt.deps.Profiles.Get(r.Context(), uid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(u, middleware.LocaleFromContext(r.Context())))
}

// PUT /api/user/profile
func (rt *Router) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	uid, _ := middleware.UserIDFromContext(r.Context())
	u, err := rt.deps.Profiles.Update(r.Context(), uid, services.ProfileUpdate{Username: req.Username, Avatar: req.Avatar})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated",
		"user":    newProfileView(u, middleware.LocaleFromContext(r.Context())),
	})
}
