package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

type apiReply struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func call(t *testing.T, env *testEnv, method, path string, body any) (int, apiReply) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, env.server.URL+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var reply apiReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, reply
}

func TestQuestionEndpoints(t *testing.T) {
	env := newTestEnv(t)

	status, reply := call(t, env, http.MethodPost, "/api/questions", map[string]any{
		"question": "Capital of France?",
		"options":  []string{"Paris", "Rome"},
		"answer":   "Paris",
	})
	if status != http.StatusCreated || !reply.Success {
		t.Fatalf("add: status=%d reply=%+v", status, reply)
	}
	var added domain.Question
	_ = json.Unmarshal(reply.Data, &added)
	if added.ID != 1 || added.Points != 10 {
		t.Fatalf("unexpected question %+v", added)
	}

	status, _ = call(t, env, http.MethodPut, "/api/questions/1", map[string]any{
		"question": "Capital of Italy?",
		"options":  []string{"Paris", "Rome"},
		"answer":   "Rome",
		"points":   20,
	})
	if status != http.StatusOK {
		t.Fatalf("update: status=%d", status)
	}
	_, reply = call(t, env, http.MethodGet, "/api/questions/1", nil)
	var got domain.Question
	_ = json.Unmarshal(reply.Data, &got)
	if got.CorrectAnswer != "Rome" || got.Points != 20 {
		t.Fatalf("unexpected question after update %+v", got)
	}

	if status, _ := call(t, env, http.MethodPost, "/api/questions", map[string]any{"question": "?", "options": []string{"a"}}); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid question, got %d", status)
	}
	if status, _ := call(t, env, http.MethodDelete, "/api/questions/1", nil); status != http.StatusOK {
		t.Fatalf("delete: status=%d", status)
	}
	if status, _ := call(t, env, http.MethodGet, "/api/questions/1", nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", status)
	}
	if status, _ := call(t, env, http.MethodDelete, "/api/questions?id=abc", nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", status)
	}
}

func TestPlayerAndScoreEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	status, reply := call(t, env, http.MethodPost, "/api/players", map[string]any{"name": "Alice"})
	if status != http.StatusCreated {
		t.Fatalf("register: status=%d reply=%+v", status, reply)
	}
	var player domain.Player
	_ = json.Unmarshal(reply.Data, &player)
	if player.ID == "" {
		t.Fatalf("expected generated player id")
	}

	if status, _ := call(t, env, http.MethodGet, "/api/players/Alice", nil); status != http.StatusOK {
		t.Fatalf("lookup by name: status=%d", status)
	}
	if status, _ := call(t, env, http.MethodGet, "/api/players/nobody", nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown player, got %d", status)
	}

	_ = env.store.AppendAnswer(ctx, domain.Answer{QuestionID: 1, Player: "Alice", Correct: true, Points: 10})
	_ = env.store.AppendAnswer(ctx, domain.Answer{QuestionID: 1, Player: "Bob", Answer: "Rome"})

	_, reply = call(t, env, http.MethodGet, "/api/scores", nil)
	var scores map[string]int
	_ = json.Unmarshal(reply.Data, &scores)
	if scores["Alice"] != 10 || scores["Bob"] != 0 || len(scores) != 2 {
		t.Fatalf("unexpected scores %v", scores)
	}

	_, reply = call(t, env, http.MethodGet, "/api/leaderboard?limit=1", nil)
	var top []domain.LeaderboardEntry
	_ = json.Unmarshal(reply.Data, &top)
	if len(top) != 1 || top[0].Player != "Alice" || top[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard %+v", top)
	}
	if status, _ := call(t, env, http.MethodGet, "/api/leaderboard?limit=many", nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", status)
	}

	if status, _ := call(t, env, http.MethodDelete, "/api/players", nil); status != http.StatusOK {
		t.Fatalf("clear: status=%d", status)
	}
	_, reply = call(t, env, http.MethodGet, "/api/answers", nil)
	var answers []domain.Answer
	_ = json.Unmarshal(reply.Data, &answers)
	if len(answers) != 0 {
		t.Fatalf("expected answers cleared, got %d", len(answers))
	}

	_, reply = call(t, env, http.MethodGet, "/api/round", nil)
	var snap domain.RoundSnapshot
	_ = json.Unmarshal(reply.Data, &snap)
	if snap.Phase != domain.PhaseIdle || len(snap.Scores) != 0 {
		t.Fatalf("unexpected round state %+v", snap)
	}
}

func TestJoinQRIsPNG(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/join-qr")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Fatalf("body is not a PNG")
	}
}

func TestDecodeBodyRejectsOversizedPayload(t *testing.T) {
	payload := `{"question":"` + strings.Repeat("?", maxBodyBytes) + `","options":["a","b"],"answer":"a"}`
	req := httptest.NewRequest(http.MethodPost, "/api/questions", strings.NewReader(payload))

	var q domain.Question
	err := decodeBody(httptest.NewRecorder(), req, &q)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if statusFor(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", statusFor(err))
	}

	small := httptest.NewRequest(http.MethodPost, "/api/questions", strings.NewReader(`{"question":"ok?","options":["a","b"],"answer":"a"}`))
	if err := decodeBody(httptest.NewRecorder(), small, &q); err != nil || q.Text != "ok?" {
		t.Fatalf("small body: q=%+v err=%v", q, err)
	}
}

type stubScoreboard struct {
	entries  []domain.LeaderboardEntry
	question int64
	err      error
}

func (s stubScoreboard) Top(context.Context, int) ([]domain.LeaderboardEntry, error) {
	return s.entries, s.err
}

func (s stubScoreboard) ActiveQuestion(context.Context) (int64, bool, error) {
	return s.question, s.question != 0, s.err
}

func serve(t *testing.T, handler http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code
}

func TestLeaderboardPrefersSharedScoreboard(t *testing.T) {
	ctx := context.Background()
	logger := quietTestLogger()
	store := memory.NewRecordStore()
	_ = store.AppendAnswer(ctx, domain.Answer{QuestionID: 1, Player: "Alice", Correct: true, Points: 10})
	hub := NewHub(logger)
	quiz := app.NewQuizService(store, hub, nil, logger)

	shared := stubScoreboard{entries: []domain.LeaderboardEntry{{Rank: 1, Player: "Zoe", Score: 99}}, question: 7}
	router := NewAPI(quiz, app.NewLedger(store), nil, hub, "http://quiz.local/join", logger).WithScoreboard(shared).Router()

	var reply struct {
		Data []domain.LeaderboardEntry `json:"data"`
	}
	if code := serve(t, router, "/api/leaderboard", &reply); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if len(reply.Data) != 1 || reply.Data[0].Player != "Zoe" {
		t.Fatalf("expected shared scoreboard entries, got %+v", reply.Data)
	}

	var report health
	serve(t, router, "/healthz", &report)
	if report.Status != "ok" || report.Viewers != 0 || report.Scoreboard != "ok" || report.ActiveQuestion != 7 {
		t.Fatalf("unexpected health report %+v", report)
	}

	down := NewAPI(quiz, app.NewLedger(store), nil, hub, "http://quiz.local/join", logger).
		WithScoreboard(stubScoreboard{err: errors.New("connection refused")}).Router()
	if code := serve(t, down, "/api/leaderboard", &reply); code != http.StatusOK {
		t.Fatalf("fallback status=%d", code)
	}
	if len(reply.Data) != 1 || reply.Data[0].Player != "Alice" || reply.Data[0].Score != 10 {
		t.Fatalf("expected local ledger fallback, got %+v", reply.Data)
	}
	serve(t, down, "/healthz", &report)
	if report.Scoreboard != "unavailable" {
		t.Fatalf("expected unavailable scoreboard, got %+v", report)
	}
}

func TestHealthzCountsViewers(t *testing.T) {
	env := newTestEnv(t)
	conn := dial(t, env, "role=display")
	readUntil(t, conn, "round-state")

	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var report health
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Viewers != 1 || report.Scoreboard != "" {
		t.Fatalf("unexpected health report %+v", report)
	}
}

func quietTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
