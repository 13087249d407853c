package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/soaringjerry/tasktrail/internal/middleware"
	"github.com/soaringjerry/tasktrail/internal/services"
	"github.com/soaringjerry/tasktrail/internal/utils"
)

type submitRequest struct {
	TaskID           flexString `json:"taskId"`
	Answer           flexString `json:"answer"`
	TimeTakenSeconds *int       `json:"timeTakenInSeconds"`
}

type rewardView struct {
	Applied       bool    `json:"applied"`
	ScoreDelta    int     `json:"scoreDelta"`
	XPDelta       int     `json:"xpDelta"`
	NewLevel      int     `json:"newLevel"`
	StreakCount   int     `json:"streakCount"`
	NewBadge      *string `json:"newBadge"`
	NewBadgeTitle string  `json:"newBadgeTitle,omitempty"`
	Message       string  `json:"message"`
}

func newRewardView(o *services.RewardOutcome, locale string) rewardView {
	v := rewardView{
		Applied:     o.Applied,
		ScoreDelta:  o.ScoreDelta,
		XPDelta:     o.XPDelta,
		NewLevel:    o.Level,
		StreakCount: o.StreakCount,
		Message:     utils.T(locale, "reward.skipped"),
	}
	if o.Applied {
		v.Message = utils.T(locale, "reward.applied")
	}
	if o.NewBadge != "" {
		badge := o.NewBadge
		v.NewBadge = &badge
		v.NewBadgeTitle = utils.T(locale, "badge."+badge)
	}
	return v
}

type submissionView struct {
	ID               string    `json:"id"`
	TaskID           string    `json:"taskId"`
	TrackID          string    `json:"trackId"`
	Answer           string    `json:"answer"`
	TimeTakenSeconds *int      `json:"timeTakenInSeconds"`
	Confidence       *float64  `json:"confidence"`
	CreatedAt        time.Time `json:"createdAt"`
}

// GET /api/tasks/next
func (rt *Router) handleNextTask(w http.ResponseWriter, r *http.Request) {
	task, err := rt.deps.Tasks.NextTask(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(task)
}

// POST /api/tasks/{track_id}/submit
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	uid, _ := middleware.UserIDFromContext(r.Context())
	res, err := rt.deps.Submissions.Submit(r.Context(), services.SubmitRequest{
		UserID:           uid,
		TrackID:          mux.Vars(r)["track_id"],
		TaskID:           string(req.TaskID),
		Answer:           string(req.Answer),
		TimeTakenSeconds: req.TimeTakenSeconds,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse(res, middleware.LocaleFromContext(r.Context())))
}

// submitResponse returns the grader's fields at the top level with reward and
// submissionId added. A reply that is not a JSON object goes under "grade".
func submitResponse(res *services.SubmitResult, locale string) map[string]any {
	out := map[string]any{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(res.Grade.Raw, &fields); err == nil && fields != nil {
		for k, v := range fields {
			out[k] = v
		}
	} else if len(res.Grade.Raw) > 0 {
		out["grade"] = res.Grade.Raw
	}
	out["reward"] = newRewardView(res.Reward, locale)
	out["submissionId"] = res.Submission.ID
	return out
}

// GET /api/submissions[?format=csv]
func (rt *Router) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserIDFromContext(r.Context())
	if r.URL.Query().Get("format") == "csv" {
		res, err := rt.deps.Submissions.Export(r.Context(), uid)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", res.ContentType)
		w.Header().Set("Content-Disposition", "attachment; filename="+res.Filename)
		_, _ = w.Write(res.Data)
		return
	}
	subs, err := rt.deps.Submissions.List(r.Context(), uid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]submissionView, 0, len(subs))
	for _, s := range subs {
		out = append(out, submissionView{
			ID:               s.ID,
			TaskID:           s.TaskID,
			TrackID:          s.TrackID,
			Answer:           s.Answer,
			TimeTakenSeconds: s.TimeTakenSeconds,
			Confidence:       s.Confidence,
			CreatedAt:        s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
