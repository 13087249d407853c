package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/soaringjerry/tasktrail/internal/middleware"
	"github.com/soaringjerry/tasktrail/internal/services"
	"github.com/soaringjerry/tasktrail/internal/utils"
)

// TaskSource hands out the next task to solve. *services.TaskClient implements it.
type TaskSource interface {
	NextTask(ctx context.Context) (json.RawMessage, error)
}

type Deps struct {
	Auth        *services.AuthService
	Profiles    *services.ProfileService
	Submissions *services.SubmissionService
	Leaderboard *services.LeaderboardService
	Tasks       TaskSource
	// Live is mounted at /ws when set.
	Live http.Handler

	ClientAPIKey string
	Commit       string
	BuildTime    string
}

type Router struct {
	deps Deps
}

func NewRouter(deps Deps) *Router {
	return &Router{deps: deps}
}

// Handler builds the route table.
func (rt *Router) Handler() *mux.Router {
	r := mux.NewRouter()
	rt.Register(r)
	return r
}

func (rt *Router) Register(r *mux.Router) {
	r.HandleFunc("/health", rt.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", rt.handleVersion).Methods(http.MethodGet)
	if rt.deps.Live != nil {
		r.Handle("/ws", rt.deps.Live)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", rt.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", rt.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/leaderboard", rt.handleLeaderboard).Methods(http.MethodGet)

	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.RequireAuth)
	authed.HandleFunc("/user/profile", rt.handleGetProfile).Methods(http.MethodGet)
	authed.HandleFunc("/user/profile", rt.handleUpdateProfile).Methods(http.MethodPut)
	authed.Handle("/tasks/next", middleware.RequireAPIKey(rt.deps.ClientAPIKey)(http.HandlerFunc(rt.handleNextTask))).Methods(http.MethodGet)
	authed.HandleFunc("/tasks/{track_id}/submit", rt.handleSubmit).Methods(http.MethodPost)
	authed.HandleFunc("/submissions", rt.handleListSubmissions).Methods(http.MethodGet)
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"name":       "TaskTrail API",
		"locale":     locale,
		"msg":        utils.T(locale, "health.ok"),
		"commit":     rt.deps.Commit,
		"build_time": rt.deps.BuildTime,
	})
}

func (rt *Router) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"commit":     rt.deps.Commit,
		"build_time": rt.deps.BuildTime,
	})
}

func (rt *Router) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := rt.deps.Leaderboard.Top(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
