package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/skip2/go-qrcode"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const (
	qrSize       = 320
	maxBodyBytes = 1 << 20
)

// Scoreboard is a ranking shared with other processes.
type Scoreboard interface {
	Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
	ActiveQuestion(ctx context.Context) (int64, bool, error)
}

// API exposes the record-keeping surface and the websocket endpoint.
type API struct {
	quiz       *app.QuizService
	ledger     *app.Ledger
	round      RoundDriver
	hub        *Hub
	ws         *WSHandler
	scoreboard Scoreboard
	joinURL    string
	logger     *slog.Logger
}

func NewAPI(quiz *app.QuizService, ledger *app.Ledger, round RoundDriver, hub *Hub, joinURL string, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		quiz:    quiz,
		ledger:  ledger,
		round:   round,
		hub:     hub,
		ws:      NewWSHandler(hub, round, logger),
		joinURL: joinURL,
		logger:  logger,
	}
}

// WithScoreboard serves the leaderboard from sb, falling back to the in-process ledger.
func (a *API) WithScoreboard(sb Scoreboard) *API {
	a.scoreboard = sb
	return a
}

type health struct {
	Status         string `json:"status"`
	Viewers        int    `json:"viewers"`
	Scoreboard     string `json:"scoreboard,omitempty"`
	ActiveQuestion int64  `json:"activeQuestion,omitempty"`
}

// APIResponse is the envelope of every JSON reply.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	r.Get("/ws", a.ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Route("/questions", func(r chi.Router) {
			r.Get("/", a.listQuestions)
			r.Post("/", a.addQuestion)
			r.Put("/", a.updateQuestion)
			r.Delete("/", a.deleteQuestion)
			r.Get("/{id}", a.getQuestion)
			r.Put("/{id}", a.updateQuestion)
			r.Delete("/{id}", a.deleteQuestion)
		})
		r.Route("/players", func(r chi.Router) {
			r.Get("/", a.listPlayers)
			r.Post("/", a.registerPlayer)
			r.Delete("/", a.clearPlayers)
			r.Get("/{key}", a.getPlayer)
		})
		r.Get("/answers", a.listAnswers)
		r.Get("/scores", a.scores)
		r.Get("/leaderboard", a.leaderboard)
		r.Post("/ledger/rebuild", a.rebuildLedger)
		r.Get("/round", a.roundState)
		r.Get("/join-qr", a.joinQR)
	})
	return r
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	report := health{Status: "ok", Viewers: a.hub.Count()}
	if a.scoreboard != nil {
		id, _, err := a.scoreboard.ActiveQuestion(r.Context())
		if err != nil {
			a.logger.Warn("scoreboard unavailable", "error", err)
			report.Scoreboard = "unavailable"
		} else {
			report.Scoreboard = "ok"
			report.ActiveQuestion = id
		}
	}
	a.writeJSON(w, http.StatusOK, report)
}

func (a *API) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := a.quiz.Questions(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, questions)
}

func (a *API) getQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := questionID(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	q, err := a.quiz.Question(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, q)
}

func (a *API) addQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := decodeBody(w, r, &q); err != nil {
		a.writeError(w, err)
		return
	}
	added, err := a.quiz.AddQuestion(r.Context(), q)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusCreated, added)
}

func (a *API) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var q domain.Question
	if err := decodeBody(w, r, &q); err != nil {
		a.writeError(w, err)
		return
	}
	if chi.URLParam(r, "id") != "" {
		id, err := questionID(r)
		if err != nil {
			a.writeError(w, err)
			return
		}
		q.ID = id
	}
	updated, err := a.quiz.UpdateQuestion(r.Context(), q)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, updated)
}

func (a *API) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := questionID(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.quiz.DeleteQuestion(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, map[string]int64{"id": id})
}

func (a *API) listPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := a.quiz.Players(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, players)
}

func (a *API) getPlayer(w http.ResponseWriter, r *http.Request) {
	player, err := a.quiz.Player(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, player)
}

func (a *API) registerPlayer(w http.ResponseWriter, r *http.Request) {
	var p domain.Player
	if err := decodeBody(w, r, &p); err != nil {
		a.writeError(w, err)
		return
	}
	player, err := a.quiz.RegisterPlayer(r.Context(), p)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusCreated, player)
}

func (a *API) clearPlayers(w http.ResponseWriter, r *http.Request) {
	if err := a.quiz.ClearPlayers(r.Context()); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, nil)
}

func (a *API) listAnswers(w http.ResponseWriter, r *http.Request) {
	answers, err := a.quiz.Answers(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, answers)
}

func (a *API) scores(w http.ResponseWriter, r *http.Request) {
	scores, err := a.ledger.Scores(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, scores)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.writeError(w, fmt.Errorf("%w: invalid limit %q", domain.ErrValidation, raw))
			return
		}
		limit = n
	}
	if a.scoreboard != nil {
		entries, err := a.scoreboard.Top(r.Context(), limit)
		if err == nil {
			a.writeSuccess(w, http.StatusOK, entries)
			return
		}
		a.logger.Warn("reading shared scoreboard, using local ledger", "error", err)
	}
	entries, err := a.ledger.Leaderboard(r.Context(), limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, entries)
}

func (a *API) rebuildLedger(w http.ResponseWriter, r *http.Request) {
	if err := a.round.Dispatch(r.Context(), app.Command{Kind: app.CommandRebuildLedger}); err != nil {
		a.writeError(w, err)
		return
	}
	scores, err := a.ledger.Scores(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, scores)
}

func (a *API) roundState(w http.ResponseWriter, r *http.Request) {
	snap, err := a.round.Snapshot(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeSuccess(w, http.StatusOK, snap)
}

// joinQR renders the player join link as a PNG.
func (a *API) joinQR(w http.ResponseWriter, r *http.Request) {
	png, err := qrcode.Encode(a.joinURL, qrcode.Medium, qrSize)
	if err != nil {
		a.logger.Error("qr generation failed", "error", err)
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Warn("writing response", "error", err)
	}
}

func (a *API) writeSuccess(w http.ResponseWriter, status int, data any) {
	a.writeJSON(w, status, APIResponse{Success: true, Data: data})
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err)
	}
	a.writeJSON(w, status, APIResponse{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrQuestionNotFound), errors.Is(err, domain.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCoordinatorStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// questionID reads the id from the path, falling back to ?id=.
func questionID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		raw = r.URL.Query().Get("id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid question id %q", domain.ErrValidation, raw)
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrValidation, tooLarge.Limit)
		}
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	return nil
}
