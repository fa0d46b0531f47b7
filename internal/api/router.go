package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/soaringjerry/questionflow/internal/middleware"
	"github.com/soaringjerry/questionflow/internal/services"
	"github.com/soaringjerry/questionflow/internal/utils"
)

type Options struct {
	Store         Store
	Questions     *services.QuestionGraph
	Authenticator *middleware.Authenticator
	TokenTTL      time.Duration
	CORSOrigins   []string
	Locales       []string
	DefaultLocale string
	Logger        *log.Logger
	Commit        string
	BuildTime     string
}

type Router struct {
	auth          *services.AuthService
	questionnaire *services.QuestionnaireService
	authn         *middleware.Authenticator
	opts          Options
}

func NewRouter(opts Options) *Router {
	return &Router{
		auth:          services.NewAuthService(newAuthStoreAdapter(opts.Store), opts.Authenticator.SignToken, opts.TokenTTL),
		questionnaire: services.NewQuestionnaireService(newQuestionnaireStoreAdapter(opts.Store), opts.Questions, opts.Questions.Config()),
		authn:         opts.Authenticator,
		opts:          opts,
	}
}

func (rt *Router) Register(r *mux.Router) {
	r.HandleFunc("/health", rt.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", rt.handleVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", rt.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/login", rt.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/logout", rt.handleLogout).Methods(http.MethodPost)
	api.Handle("/refresh-token", authed(rt.handleRefresh)).Methods(http.MethodPost)
	api.Handle("/me", authed(rt.handleMe)).Methods(http.MethodGet)

	api.Handle("/questions/start", authed(rt.handleStart)).Methods(http.MethodGet)
	api.Handle("/questions/previous/{current_question_id}", authed(rt.handlePrevious)).Methods(http.MethodGet)
	api.Handle("/questions/{question_id}", authed(rt.handleGetQuestion)).Methods(http.MethodGet)
	api.Handle("/answers", authed(rt.handleSubmitAnswer)).Methods(http.MethodPost)
	api.Handle("/answers/{question_id}", authed(rt.handleEditAnswer)).Methods(http.MethodPut)
	api.Handle("/progress", authed(rt.handleProgress)).Methods(http.MethodGet)
	api.Handle("/summary", authed(rt.handleSummary)).Methods(http.MethodGet)
	api.Handle("/summary/export", authed(rt.handleExport)).Methods(http.MethodGet)
	api.Handle("/question-history", authed(rt.handleHistory)).Methods(http.MethodGet)
}

// Handler returns the routes wrapped in the server middleware chain.
func (rt *Router) Handler() http.Handler {
	r := mux.NewRouter()
	rt.Register(r)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, r, http.StatusNotFound, "Not Found", "not_found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", "invalid")
	})

	var h http.Handler = r
	h = rt.authn.WithAuth(h)
	h = middleware.Locale(rt.opts.Locales, rt.opts.DefaultLocale)(h)
	h = middleware.NoStore(h)
	h = middleware.SecureHeaders(h)
	h = middleware.CORS(rt.opts.CORSOrigins)(h)
	return middleware.RequestLogger(rt.opts.Logger)(h)
}

func authed(h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(h)
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"locale":     locale,
		"msg":        utils.T(locale, "health.ok"),
		"questions":  rt.opts.Questions.Len(),
		"commit":     rt.opts.Commit,
		"build_time": rt.opts.BuildTime,
	})
}

func (rt *Router) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"commit":     rt.opts.Commit,
		"build_time": rt.opts.BuildTime,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, r *http.Request, status int, detail, code string) {
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, status, map[string]string{
		"detail": detail,
		"code":   code,
		"title":  utils.T(locale, "error."+code),
	})
}

// writeError maps service errors to status codes; anything else is a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if se, ok := services.AsServiceError(err); ok {
		status := http.StatusBadRequest
		switch se.Code {
		case services.ErrorNotFound:
			status = http.StatusNotFound
		case services.ErrorConflict:
			status = http.StatusConflict
		case services.ErrorUnauthorized:
			w.Header().Set("WWW-Authenticate", "Bearer")
			status = http.StatusUnauthorized
		}
		writeDetail(w, r, status, se.Message, string(se.Code))
		return
	}
	log.Printf("api: %s %s: %v", r.Method, r.URL.Path, err)
	writeDetail(w, r, http.StatusInternalServerError, "internal server error", "internal")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return services.NewInvalidError("request body required")
		}
		return services.NewInvalidError("invalid JSON body: " + err.Error())
	}
	return nil
}

func currentUserID(r *http.Request) string {
	uid, _ := middleware.UserIDFromContext(r.Context())
	return uid
}
