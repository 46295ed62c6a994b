package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// RoundDriver is the part of the coordinator the transport needs.
type RoundDriver interface {
	Dispatch(ctx context.Context, cmd app.Command) error
	Snapshot(ctx context.Context) (domain.RoundSnapshot, error)
}

type WSHandler struct {
	hub      *Hub
	round    RoundDriver
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *Hub, round RoundDriver, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		hub:    hub,
		round:  round,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type questionPayload struct {
	Question     domain.Question `json:"question"`
	TimerSeconds int             `json:"timerSeconds"`
}

type errorPayload struct {
	Message string `json:"message"`
}

var errMalformed = errors.New("malformed message")

// ServeWS upgrades a viewer connection. Query: role=master|player|display|scoreboard, name=<player>.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		role = RolePlayer
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	switch role {
	case RoleMaster, RoleDisplay, RoleScoreboard:
	case RolePlayer:
		if name == "" {
			http.Error(w, "missing name", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}
	c := newClient(conn, role, name, h.logger)
	if !h.hub.add(c) {
		_ = conn.Close()
		return
	}

	ctx := r.Context()
	if role == RolePlayer {
		if err := h.round.Dispatch(ctx, app.Command{Kind: app.CommandPlayerConnected, Player: name}); err != nil {
			c.logger.Warn("registering connection", "error", err)
		}
	}
	if snap, err := h.round.Snapshot(ctx); err == nil {
		c.deliver(domain.Event{Type: domain.EventRoundState, Payload: snap, Timestamp: time.Now()})
	}

	go c.writePump()
	c.readPump(func(raw []byte) { h.handleMessage(ctx, c, raw) })

	h.hub.remove(c)
	close(c.send)
	if role == RolePlayer {
		// The request context may already be done once the peer has gone.
		leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.round.Dispatch(leaveCtx, app.Command{Kind: app.CommandPlayerDisconnected, Player: name}); err != nil {
			c.logger.Warn("releasing connection", "error", err)
		}
		cancel()
	}
}

func (h *WSHandler) handleMessage(ctx context.Context, c *client, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.deliver(errorEvent("invalid message format"))
		return
	}
	cmd, err := decodeCommand(c, msg)
	if err != nil {
		c.logger.Debug("rejected inbound message", "type", msg.Type, "error", err)
		c.deliver(errorEvent(err.Error()))
		return
	}
	// Rejections are not reported back; late or duplicate clicks are expected.
	if err := h.round.Dispatch(ctx, cmd); err != nil && !domain.IsRejection(err) {
		c.logger.Error("dispatching command", "command", cmd.Kind.String(), "error", err)
	}
}

// decodeCommand turns an envelope into a coordinator command. Players may only
// answer and acknowledge; the master drives the round.
func decodeCommand(c *client, msg inboundMessage) (app.Command, error) {
	switch msg.Type {
	case "submit-answer":
		var sub domain.SubmittedAnswer
		if err := json.Unmarshal(msg.Payload, &sub); err != nil {
			return app.Command{}, fmt.Errorf("%w: submit-answer", errMalformed)
		}
		if c.role == RolePlayer {
			sub.Player = c.name
		}
		return app.Command{Kind: app.CommandSubmitAnswer, Submission: sub}, nil

	case "player-ready":
		player := c.name
		if c.role != RolePlayer {
			if err := decodeNameOrField(msg.Payload, "player", &player); err != nil {
				return app.Command{}, fmt.Errorf("%w: player-ready", errMalformed)
			}
		}
		return app.Command{Kind: app.CommandPlayerReady, Player: player}, nil
	}

	if c.role != RoleMaster {
		return app.Command{}, fmt.Errorf("%s is not allowed for role %s", msg.Type, c.role)
	}

	switch msg.Type {
	case "start-question", "show-question":
		var p questionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return app.Command{}, fmt.Errorf("%w: %s", errMalformed, msg.Type)
		}
		if msg.Type == "show-question" {
			return app.Command{Kind: app.CommandShowQuestion, Question: p.Question}, nil
		}
		return app.Command{Kind: app.CommandStartQuestion, Question: p.Question, TimerSeconds: p.TimerSeconds}, nil

	case "reveal-answer":
		var answer string
		if err := decodeNameOrField(msg.Payload, "answer", &answer); err != nil {
			return app.Command{}, fmt.Errorf("%w: reveal-answer", errMalformed)
		}
		return app.Command{Kind: app.CommandRevealAnswer, CorrectAnswer: answer}, nil

	case "end-question":
		return app.Command{Kind: app.CommandEndQuestion}, nil
	}
	return app.Command{}, fmt.Errorf("unsupported message type %q", msg.Type)
}

// decodeNameOrField accepts either a bare JSON string or an object holding field.
func decodeNameOrField(raw json.RawMessage, field string, out *string) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err == nil {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	value, ok := obj[field]
	if !ok {
		return nil
	}
	return json.Unmarshal(value, out)
}

func errorEvent(message string) domain.Event {
	return domain.Event{Type: domain.EventError, Payload: errorPayload{Message: message}, Timestamp: time.Now()}
}
