package http

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/infra/memory"
)

type testEnv struct {
	server      *httptest.Server
	store       *memory.RecordStore
	hub         *Hub
	coordinator *app.Coordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewRecordStore()
	hub := NewHub(logger)
	coordinator := app.NewCoordinator(store, hub, logger, app.CoordinatorOptions{ReadyGrace: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan error, 1)
	roundDone := make(chan error, 1)
	go func() { hubDone <- hub.Run(ctx) }()
	go func() { roundDone <- coordinator.Run(ctx) }()

	quiz := app.NewQuizService(store, hub, coordinator, logger)
	api := NewAPI(quiz, app.NewLedger(store), coordinator, hub, "http://quiz.local/join", logger)
	server := httptest.NewServer(api.Router())

	t.Cleanup(func() {
		cancel()
		<-hubDone
		<-roundDone
		server.Close()
	})
	return &testEnv{server: server, store: store, hub: hub, coordinator: coordinator}
}
