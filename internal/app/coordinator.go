package app

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"time"

	"live-quiz-service/internal/domain"
)

// CommandKind enumerates the events the coordinator understands.
type CommandKind int

const (
	CommandShowQuestion CommandKind = iota + 1
	CommandStartQuestion
	CommandSubmitAnswer
	CommandRevealAnswer
	CommandEndQuestion
	CommandPlayerReady
	CommandPlayerConnected
	CommandPlayerDisconnected
	CommandRebuildLedger
	CommandSnapshot

	commandDeadline
	commandReadyAdvance
)

var commandNames = map[CommandKind]string{
	CommandShowQuestion:       "show-question",
	CommandStartQuestion:      "start-question",
	CommandSubmitAnswer:       "submit-answer",
	CommandRevealAnswer:       "reveal-answer",
	CommandEndQuestion:        "end-question",
	CommandPlayerReady:        "player-ready",
	CommandPlayerConnected:    "player-connected",
	CommandPlayerDisconnected: "player-disconnected",
	CommandRebuildLedger:      "rebuild-ledger",
	CommandSnapshot:           "snapshot",
	commandDeadline:           "deadline",
	commandReadyAdvance:       "ready-advance",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is one inbound event. Only the fields relevant to Kind are read.
type Command struct {
	Kind          CommandKind
	Question      domain.Question
	TimerSeconds  int
	Submission    domain.SubmittedAnswer
	CorrectAnswer string
	Player        string

	// generation pins timer callbacks to the round that armed them.
	generation uint64
}

// CoordinatorOptions tunes timing and optional collaborators.
type CoordinatorOptions struct {
	// TimerUnit is the wall-clock length of one timer second.
	TimerUnit time.Duration
	// ReadyGrace is the pause between all-players-ready and the end of the round.
	ReadyGrace time.Duration
	QueueSize  int
	Now        func() time.Time
	Archive    AnswerArchive
}

func (o *CoordinatorOptions) applyDefaults() {
	if o.TimerUnit <= 0 {
		o.TimerUnit = time.Second
	}
	if o.ReadyGrace <= 0 {
		o.ReadyGrace = 2 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type envelope struct {
	cmd   Command
	reply chan outcome
}

type outcome struct {
	err      error
	snapshot domain.RoundSnapshot
}

type roundState struct {
	question     *domain.Question
	phase        domain.Phase
	timerSeconds int
	deadlineAt   time.Time
	submissions  map[string]domain.SubmittedAnswer
	ready        map[string]struct{}
	revealed     bool
	allReady     bool
}

func idleRound() roundState {
	return roundState{
		phase:       domain.PhaseIdle,
		submissions: make(map[string]domain.SubmittedAnswer),
		ready:       make(map[string]struct{}),
	}
}

// Coordinator owns the single active round. Every event, including timer expiry,
// is applied by the Run goroutine one at a time.
type Coordinator struct {
	answers AnswerLog
	bus     Broadcaster
	logger  *slog.Logger
	opts    CoordinatorOptions

	queue   chan envelope
	stopped chan struct{}

	// Fields below are only touched by Run.
	round      roundState
	generation uint64
	connected  map[string]int
	scores     map[string]int
	deadline   *time.Timer
	grace      *time.Timer
}

func NewCoordinator(answers AnswerLog, bus Broadcaster, logger *slog.Logger, opts CoordinatorOptions) *Coordinator {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		answers:   answers,
		bus:       bus,
		logger:    logger,
		opts:      opts,
		queue:     make(chan envelope, opts.QueueSize),
		stopped:   make(chan struct{}),
		round:     idleRound(),
		connected: make(map[string]int),
		scores:    make(map[string]int),
	}
}

// Run processes events until ctx is cancelled. It must be started exactly once.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.stopped)
	defer c.stopTimers()

	if answers, err := c.answers.ListAnswers(ctx); err != nil {
		c.logger.Error("loading ledger from answer log", "error", err)
	} else {
		c.scores = ComputeScores(answers)
	}
	c.logger.Info("round coordinator started", "players_scored", len(c.scores))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("round coordinator stopping")
			return nil
		case env := <-c.queue:
			out := c.handle(ctx, env.cmd)
			if out.err != nil {
				if domain.IsRejection(out.err) {
					c.logger.Debug("event ignored", "command", env.cmd.Kind.String(), "reason", out.err)
				} else {
					c.logger.Error("event failed", "command", env.cmd.Kind.String(), "error", out.err)
				}
			}
			if env.reply != nil {
				env.reply <- out
			}
		}
	}
}

// Dispatch enqueues cmd and waits until the event loop has applied it.
// The returned error explains a rejection; the round state is unchanged in that case.
func (c *Coordinator) Dispatch(ctx context.Context, cmd Command) error {
	_, err := c.dispatch(ctx, cmd)
	return err
}

func (c *Coordinator) dispatch(ctx context.Context, cmd Command) (domain.RoundSnapshot, error) {
	env := envelope{cmd: cmd, reply: make(chan outcome, 1)}
	select {
	case c.queue <- env:
	case <-c.stopped:
		return domain.RoundSnapshot{}, domain.ErrCoordinatorStopped
	case <-ctx.Done():
		return domain.RoundSnapshot{}, ctx.Err()
	}

	select {
	case out := <-env.reply:
		return out.snapshot, out.err
	case <-c.stopped:
		select {
		case out := <-env.reply:
			return out.snapshot, out.err
		default:
			return domain.RoundSnapshot{}, domain.ErrCoordinatorStopped
		}
	case <-ctx.Done():
		return domain.RoundSnapshot{}, ctx.Err()
	}
}

// post is used by timer callbacks, which run on their own goroutine.
func (c *Coordinator) post(cmd Command) {
	select {
	case c.queue <- envelope{cmd: cmd}:
	case <-c.stopped:
	}
}

func (c *Coordinator) ShowQuestion(ctx context.Context, q domain.Question) error {
	return c.Dispatch(ctx, Command{Kind: CommandShowQuestion, Question: q})
}

func (c *Coordinator) StartQuestion(ctx context.Context, q domain.Question, timerSeconds int) error {
	return c.Dispatch(ctx, Command{Kind: CommandStartQuestion, Question: q, TimerSeconds: timerSeconds})
}

func (c *Coordinator) SubmitAnswer(ctx context.Context, submission domain.SubmittedAnswer) error {
	return c.Dispatch(ctx, Command{Kind: CommandSubmitAnswer, Submission: submission})
}

// RevealAnswer scores the round. correctAnswer is informational; the question's own answer wins.
func (c *Coordinator) RevealAnswer(ctx context.Context, correctAnswer string) error {
	return c.Dispatch(ctx, Command{Kind: CommandRevealAnswer, CorrectAnswer: correctAnswer})
}

func (c *Coordinator) EndQuestion(ctx context.Context) error {
	return c.Dispatch(ctx, Command{Kind: CommandEndQuestion})
}

func (c *Coordinator) PlayerReady(ctx context.Context, player string) error {
	return c.Dispatch(ctx, Command{Kind: CommandPlayerReady, Player: player})
}

func (c *Coordinator) PlayerConnected(ctx context.Context, player string) error {
	return c.Dispatch(ctx, Command{Kind: CommandPlayerConnected, Player: player})
}

func (c *Coordinator) PlayerDisconnected(ctx context.Context, player string) error {
	return c.Dispatch(ctx, Command{Kind: CommandPlayerDisconnected, Player: player})
}

// RebuildLedger recomputes scores from the answer log and broadcasts them.
func (c *Coordinator) RebuildLedger(ctx context.Context) error {
	return c.Dispatch(ctx, Command{Kind: CommandRebuildLedger})
}

// Snapshot returns a copy of the current round state.
func (c *Coordinator) Snapshot(ctx context.Context) (domain.RoundSnapshot, error) {
	return c.dispatch(ctx, Command{Kind: CommandSnapshot})
}

func (c *Coordinator) handle(ctx context.Context, cmd Command) outcome {
	var err error
	switch cmd.Kind {
	case CommandShowQuestion:
		err = c.show(cmd.Question)
	case CommandStartQuestion:
		err = c.start(cmd.Question, cmd.TimerSeconds)
	case CommandSubmitAnswer:
		err = c.submit(cmd.Submission)
	case CommandRevealAnswer:
		err = c.reveal(ctx, cmd.CorrectAnswer)
	case CommandEndQuestion:
		err = c.end()
	case CommandPlayerReady:
		err = c.ready(cmd.Player)
	case CommandPlayerConnected:
		err = c.playerConnected(cmd.Player)
	case CommandPlayerDisconnected:
		err = c.playerDisconnected(cmd.Player)
	case CommandRebuildLedger:
		err = c.rebuildLedger(ctx)
	case CommandSnapshot:
		return outcome{snapshot: c.snapshot()}
	case commandDeadline:
		c.deadlineExpired(cmd.generation)
	case commandReadyAdvance:
		c.readyAdvance(cmd.generation)
	default:
		err = fmt.Errorf("%w: unknown command %s", domain.ErrValidation, cmd.Kind)
	}
	return outcome{err: err}
}

func (c *Coordinator) publish(eventType string, payload any) {
	c.bus.Publish(domain.Event{Type: eventType, Payload: payload, Timestamp: c.opts.Now()})
}

func (c *Coordinator) beginRound(q domain.Question, phase domain.Phase, timerSeconds int) (domain.Question, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return q, err
	}
	if c.round.question != nil && !c.round.revealed {
		c.logger.Info("previous round replaced without scoring", "question_id", c.round.question.ID)
	}
	c.stopTimers()
	c.generation++
	c.round = idleRound()
	c.round.question = &q
	c.round.phase = phase
	c.round.timerSeconds = timerSeconds
	return q, nil
}

func (c *Coordinator) show(q domain.Question) error {
	q, err := c.beginRound(q, domain.PhaseShown, 0)
	if err != nil {
		return err
	}
	c.logger.Info("question shown", "question_id", q.ID)
	c.publish(domain.EventBroadcastQuestion, domain.QuestionBroadcast{Question: q.Public(), TimerSeconds: 0})
	return nil
}

func (c *Coordinator) start(q domain.Question, timerSeconds int) error {
	if timerSeconds < 0 {
		return fmt.Errorf("%w: timer must not be negative", domain.ErrValidation)
	}
	if timerSeconds == 0 {
		return c.show(q)
	}
	q, err := c.beginRound(q, domain.PhaseTiming, timerSeconds)
	if err != nil {
		return err
	}

	d := time.Duration(timerSeconds) * c.opts.TimerUnit
	c.round.deadlineAt = c.opts.Now().Add(d)
	generation := c.generation
	c.deadline = time.AfterFunc(d, func() {
		c.post(Command{Kind: commandDeadline, generation: generation})
	})

	c.logger.Info("question started", "question_id", q.ID, "timer_seconds", timerSeconds)
	c.publish(domain.EventBroadcastQuestion, domain.QuestionBroadcast{Question: q.Public(), TimerSeconds: timerSeconds})
	return nil
}

func (c *Coordinator) submit(sub domain.SubmittedAnswer) error {
	sub.Player = strings.TrimSpace(sub.Player)
	if sub.Player == "" {
		return fmt.Errorf("%w: player is required", domain.ErrValidation)
	}
	q := c.round.question
	if q == nil {
		return domain.ErrNoActiveRound
	}
	if c.round.phase != domain.PhaseShown && c.round.phase != domain.PhaseTiming {
		return domain.ErrSubmissionsClosed
	}
	if sub.QuestionID != 0 && sub.QuestionID != q.ID {
		return fmt.Errorf("%w: answer for question %d while %d is active", domain.ErrValidation, sub.QuestionID, q.ID)
	}
	if !q.HasOption(sub.Answer) {
		return fmt.Errorf("%w: %q is not an option", domain.ErrValidation, sub.Answer)
	}

	sub.QuestionID = q.ID
	c.round.submissions[sub.Player] = sub
	c.touch(sub.Player)
	c.publish(domain.EventAnswerSubmitted, sub)
	return nil
}

func (c *Coordinator) deadlineExpired(generation uint64) {
	if generation != c.generation || c.round.phase != domain.PhaseTiming {
		return
	}
	c.deadline = nil
	c.round.phase = domain.PhaseAwaitingReveal
	c.logger.Info("timer expired", "question_id", c.round.question.ID, "submissions", len(c.round.submissions))
	c.publish(domain.EventTimerEnded, map[string]int64{"questionId": c.round.question.ID})
}

func (c *Coordinator) reveal(ctx context.Context, claimed string) error {
	q := c.round.question
	if q == nil {
		return domain.ErrNoActiveRound
	}
	if c.round.revealed {
		c.logger.Debug("reveal already applied", "question_id", q.ID)
		return nil
	}
	if claimed != "" && claimed != q.CorrectAnswer {
		c.logger.Warn("reveal payload differs from stored answer", "question_id", q.ID, "claimed", claimed)
	}
	c.stopDeadline()

	players := make([]string, 0, len(c.round.submissions))
	for player := range c.round.submissions {
		players = append(players, player)
	}
	sort.Strings(players)

	now := c.opts.Now()
	recorded := make([]domain.Answer, 0, len(players))
	winners := make([]string, 0, len(players))
	persisted := true
	for _, player := range players {
		sub := c.round.submissions[player]
		answer := domain.Answer{
			QuestionID: q.ID,
			Player:     player,
			Answer:     sub.Answer,
			Correct:    sub.Answer == q.CorrectAnswer,
			Difficulty: q.Difficulty,
			Timestamp:  now,
		}
		if answer.Correct {
			answer.Points = q.Points
			winners = append(winners, player)
		}
		if err := c.answers.AppendAnswer(ctx, answer); err != nil {
			persisted = false
			c.logger.Error("persisting answer", "question_id", q.ID, "player", player, "error", err)
		}
		recorded = append(recorded, answer)
	}

	c.round.revealed = true
	c.round.phase = domain.PhaseRevealed
	c.refreshLedger(ctx, recorded, persisted)

	c.logger.Info("answer revealed", "question_id", q.ID, "submissions", len(recorded), "winners", len(winners))
	c.publish(domain.EventUpdateScores, maps.Clone(c.scores))
	c.publish(domain.EventRoundResults, winners)
	c.publish(domain.EventRevealCorrect, domain.RevealPayload{QuestionID: q.ID, CorrectAnswer: q.CorrectAnswer})

	if c.opts.Archive != nil && len(recorded) > 0 {
		archiveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := c.opts.Archive.Archive(archiveCtx, recorded); err != nil {
			c.logger.Error("archiving answers", "question_id", q.ID, "error", err)
		}
		cancel()
	}

	c.checkReadyGate()
	return nil
}

// refreshLedger re-derives scores from the log. When this round's writes failed,
// the round's points are applied on top of the cached ledger instead.
func (c *Coordinator) refreshLedger(ctx context.Context, round []domain.Answer, persisted bool) {
	if persisted {
		all, err := c.answers.ListAnswers(ctx)
		if err == nil {
			c.scores = ComputeScores(all)
			return
		}
		c.logger.Error("reading answer log", "error", err)
	}
	for _, answer := range round {
		c.scores[answer.Player] += awarded(answer)
	}
}

func (c *Coordinator) end() error {
	if c.round.question == nil {
		return domain.ErrNoActiveRound
	}
	if !c.round.revealed {
		c.logger.Info("round ended without scoring", "question_id", c.round.question.ID)
	}
	c.finishRound()
	return nil
}

func (c *Coordinator) finishRound() {
	c.stopTimers()
	c.generation++
	c.round = idleRound()
	c.publish(domain.EventQuestionEnded, nil)
}

func (c *Coordinator) ready(player string) error {
	player = strings.TrimSpace(player)
	if player == "" {
		return fmt.Errorf("%w: player is required", domain.ErrValidation)
	}
	if c.round.question == nil {
		return domain.ErrNoActiveRound
	}
	c.touch(player)
	c.round.ready[player] = struct{}{}
	c.checkReadyGate()
	return nil
}

// checkReadyGate fires all-players-ready once per revealed round, when every
// connected player has acknowledged. Readiness sent earlier in the round counts.
func (c *Coordinator) checkReadyGate() {
	if c.round.question == nil || c.round.allReady || c.round.phase != domain.PhaseRevealed {
		return
	}
	if len(c.connected) == 0 {
		return
	}
	for player := range c.connected {
		if _, ok := c.round.ready[player]; !ok {
			return
		}
	}

	c.round.allReady = true
	c.logger.Info("all players ready", "players", len(c.connected))
	c.publish(domain.EventAllPlayersReady, nil)

	generation := c.generation
	c.grace = time.AfterFunc(c.opts.ReadyGrace, func() {
		c.post(Command{Kind: commandReadyAdvance, generation: generation})
	})
}

// readyAdvance closes a ready-gated round.
func (c *Coordinator) readyAdvance(generation uint64) {
	if generation != c.generation || c.round.phase != domain.PhaseRevealed {
		return
	}
	c.grace = nil
	c.finishRound()
}

// touch records a player identity seen through an interaction.
func (c *Coordinator) touch(player string) {
	if _, ok := c.connected[player]; !ok {
		c.connected[player] = 0
	}
}

func (c *Coordinator) playerConnected(player string) error {
	player = strings.TrimSpace(player)
	if player == "" {
		return fmt.Errorf("%w: player is required", domain.ErrValidation)
	}
	c.connected[player]++
	return nil
}

func (c *Coordinator) playerDisconnected(player string) error {
	player = strings.TrimSpace(player)
	n, ok := c.connected[player]
	if !ok {
		return nil
	}
	if n > 1 {
		c.connected[player] = n - 1
		return nil
	}
	delete(c.connected, player)
	delete(c.round.ready, player)
	c.checkReadyGate()
	return nil
}

func (c *Coordinator) rebuildLedger(ctx context.Context) error {
	answers, err := c.answers.ListAnswers(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding ledger: %w", err)
	}
	c.scores = ComputeScores(answers)
	c.logger.Info("ledger rebuilt", "answers", len(answers), "players", len(c.scores))
	c.publish(domain.EventUpdateScores, maps.Clone(c.scores))
	return nil
}

func (c *Coordinator) snapshot() domain.RoundSnapshot {
	s := domain.RoundSnapshot{
		Phase:        c.round.phase,
		TimerSeconds: c.round.timerSeconds,
		Submitted:    sortedKeys(c.round.submissions),
		Ready:        sortedKeys(c.round.ready),
		Connected:    sortedKeys(c.connected),
		Scores:       maps.Clone(c.scores),
	}
	if q := c.round.question; q != nil {
		view := q.Public()
		if c.round.revealed {
			view.CorrectAnswer = q.CorrectAnswer
		}
		s.Question = &view
	}
	if c.round.phase == domain.PhaseTiming {
		deadline := c.round.deadlineAt
		s.Deadline = &deadline
	}
	return s
}

func (c *Coordinator) stopDeadline() {
	if c.deadline != nil {
		c.deadline.Stop()
		c.deadline = nil
	}
}

func (c *Coordinator) stopTimers() {
	c.stopDeadline()
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
