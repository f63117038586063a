package storychain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kwento-games/kwento/internal/broadcast"
	roomDb "github.com/kwento-games/kwento/internal/database/roomstate/database"
	"github.com/kwento-games/kwento/internal/database/roomstate/model"
	"github.com/kwento-games/kwento/internal/evaluator"
	"github.com/kwento-games/kwento/internal/logging"
	"github.com/kwento-games/kwento/internal/strpool"
)

var (
	RoomFullErr    = fmt.Errorf("room is full")
	NotYourTurnErr = fmt.Errorf("not your turn")
)

// Store is the shared state store the coordinator reads and writes room
// records through. Fetch returns roomDb.NotFoundErr for absent or expired
// records.
type Store interface {
	Fetch(key string) (model.Room, error)
	Store(m model.Room) error
}

func New(config Config, store Store, bc broadcast.Broadcaster, judge *evaluator.Judge, catalog *Catalog) *Coordinator {
	total := config.TotalImages
	if total > catalog.Len() {
		total = catalog.Len()
	}

	return &Coordinator{
		config:  config,
		total:   total,
		store:   store,
		bc:      bc,
		judge:   judge,
		catalog: catalog,
		timers:  NewTimerManager(),
		locks:   map[string]*sync.Mutex{},
	}
}

// Coordinator owns the per-room turn state machine. It holds no authoritative
// room state itself: every operation re-hydrates the record from the store,
// mutates it and writes it back under the room's lock, so any instance may
// service any operation.
type Coordinator struct {
	config  Config
	total   int
	store   Store
	bc      broadcast.Broadcaster
	judge   *evaluator.Judge
	catalog *Catalog
	timers  *TimerManager

	mtx   sync.Mutex
	locks map[string]*sync.Mutex

	ctx    context.Context
	cancel func()
}

// Run binds the coordinator to ctx; timer callbacks inherit it. Timers are
// lost on shutdown, which the epoch design tolerates.
func (c *Coordinator) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.ctx = ctx
	c.cancel = cancel

	go func() {
		<-ctx.Done()
		c.timers.StopAll()
	}()
}

func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Join adds a player to the room, creating the room on first join. Joining
// under a name already on the roster is an idempotent rejoin. When the roster
// reaches capacity the game starts: turn 0, first prompt, armed timer.
func (c *Coordinator) Join(ctx context.Context, roomKey, player string) error {
	logger := logging.FromContext(ctx).Named("storychain.Join")

	mu := c.roomLock(roomKey)
	mu.Lock()
	defer mu.Unlock()

	room, err := c.store.Fetch(roomKey)
	if err != nil {
		if !errors.Is(err, roomDb.NotFoundErr) {
			return fmt.Errorf("fetch room %q: %w", roomKey, err)
		}
		room = model.NewRoom(roomKey, c.total, c.catalog.ShuffledOrder(c.total))
		logger.Infof("room %s: created", roomKey)
	}

	if room.HasPlayer(player) {
		logger.Debugf("room %s: %s rejoined", roomKey, player)
		return nil
	}

	if len(room.Players) >= c.config.RoomCapacity {
		return RoomFullErr
	}

	room.Players = append(room.Players, player)
	room.Scores[player] = 0

	events := []interface{}{newPlayersUpdate(room.Players)}

	starting := !room.GameStarted && len(room.Players) == c.config.RoomCapacity
	if starting {
		room.GameStarted = true
		room.CurrentTurnIndex = 0
		room.Epoch++
		events = append(events,
			newGameStart(),
			newNewImage(room.CurrentImageIndex, room.TotalImages, c.prompt(&room)),
			newTurnUpdate(room.CurrentPlayer(), c.turnSeconds()),
		)
	}

	if err := c.store.Store(room); err != nil {
		return fmt.Errorf("store room %q: %w", roomKey, err)
	}

	c.publish(ctx, roomKey, events...)

	if starting {
		logger.Infof("room %s: started with %d players, %s to move", roomKey, len(room.Players), room.CurrentPlayer())
		c.armTurnTimer(roomKey, room.Epoch)
	}

	return nil
}

// Submit records the current player's contribution. Submissions out of turn,
// before the game starts, or while a completed round awaits its evaluation
// return NotYourTurnErr and change nothing.
func (c *Coordinator) Submit(ctx context.Context, roomKey, player, text string) error {
	mu := c.roomLock(roomKey)
	mu.Lock()

	room, err := c.store.Fetch(roomKey)
	if err != nil {
		mu.Unlock()
		if errors.Is(err, roomDb.NotFoundErr) {
			return NotYourTurnErr
		}
		return fmt.Errorf("fetch room %q: %w", roomKey, err)
	}

	if !room.GameStarted || room.GameOver || room.RoundComplete() || room.CurrentPlayer() != player {
		mu.Unlock()
		return NotYourTurnErr
	}

	room.CurrentSentence = append(room.CurrentSentence, model.Contribution{Player: player, Text: text})
	room.Scores[player] += c.config.SubmissionReward

	// afterContribution takes over mu in every path.
	return c.afterContribution(ctx, mu, room, newStoryUpdate(player, text))
}

// Timeout is invoked by the timer manager when a turn deadline passes. The
// epoch guard makes it idempotent: if the turn already advanced, the callback
// is stale and nothing happens.
func (c *Coordinator) Timeout(ctx context.Context, roomKey string, epoch int64) error {
	logger := logging.FromContext(ctx).Named("storychain.Timeout")

	mu := c.roomLock(roomKey)
	mu.Lock()

	room, err := c.store.Fetch(roomKey)
	if err != nil {
		mu.Unlock()
		if errors.Is(err, roomDb.NotFoundErr) {
			logger.Debugf("room %s: expired before timeout, dropping", roomKey)
			return nil
		}
		return fmt.Errorf("fetch room %q: %w", roomKey, err)
	}

	if !room.GameStarted || room.GameOver || room.RoundComplete() || room.Epoch != epoch {
		mu.Unlock()
		logger.Debugf("room %s: stale timeout for epoch %d (current %d)", roomKey, epoch, room.Epoch)
		return nil
	}

	player := room.CurrentPlayer()
	room.CurrentSentence = append(room.CurrentSentence, model.Contribution{Player: player, Timeout: true})
	room.Scores[player] -= c.config.TimeoutPenalty

	logger.Infof("room %s: %s timed out on epoch %d", roomKey, player, epoch)

	return c.afterContribution(ctx, mu, room, newTimeoutEvent(player, c.config.TimeoutPenalty))
}

// afterContribution finishes a submit or timeout: it commits the appended
// contribution, emits its event, and either advances the turn or, when the
// round is complete, runs evaluation. mu is held on entry and released here.
func (c *Coordinator) afterContribution(ctx context.Context, mu *sync.Mutex, room model.Room, contribEvent interface{}) error {
	roomKey := room.Key

	if !room.RoundComplete() {
		room.CurrentTurnIndex = (room.CurrentTurnIndex + 1) % len(room.Players)
		room.Epoch++

		if err := c.store.Store(room); err != nil {
			mu.Unlock()
			return fmt.Errorf("store room %q: %w", roomKey, err)
		}

		c.publish(ctx, roomKey, contribEvent, newTurnUpdate(room.CurrentPlayer(), c.turnSeconds()))
		epoch := room.Epoch
		mu.Unlock()

		c.armTurnTimer(roomKey, epoch)
		return nil
	}

	// The epoch bump retires the final turn's timer before the lock is
	// released; the completed contribution set blocks further submissions
	// until commitEvaluation clears it.
	room.Epoch++

	if err := c.store.Store(room); err != nil {
		mu.Unlock()
		return fmt.Errorf("store room %q: %w", roomKey, err)
	}

	c.publish(ctx, roomKey, contribEvent)

	sentence, contributors := assembleSentence(&room)
	imageIndex := room.CurrentImageIndex
	description := c.prompt(&room).Description
	mu.Unlock()

	// The evaluator call happens outside the room lock so a slow scoring
	// service does not stall other operations on the room.
	score, verdict := c.evaluate(ctx, sentence, description, len(contributors))

	return c.commitEvaluation(ctx, roomKey, imageIndex, sentence, score, verdict, contributors)
}

func (c *Coordinator) evaluate(ctx context.Context, sentence, description string, contributors int) (int, evaluator.Verdict) {
	logger := logging.FromContext(ctx).Named("storychain.evaluate")

	// A round where every turn timed out has nothing to judge.
	if contributors == 0 {
		return 0, c.judge.Verdict(0)
	}

	score, fellBack, err := c.judge.Score(ctx, sentence, description)
	if fellBack {
		logger.Errorf("evaluator failed, using fallback %d: %v", score, err)
	}

	return score, c.judge.Verdict(score)
}

// commitEvaluation writes the evaluation result back under the room lock. If
// the room changed meanwhile (expired, or already progressed) the result is
// discarded.
func (c *Coordinator) commitEvaluation(ctx context.Context, roomKey string, imageIndex int, sentence string, score int, verdict evaluator.Verdict, contributors []string) error {
	logger := logging.FromContext(ctx).Named("storychain.commitEvaluation")

	mu := c.roomLock(roomKey)
	mu.Lock()
	defer mu.Unlock()

	room, err := c.store.Fetch(roomKey)
	if err != nil {
		if errors.Is(err, roomDb.NotFoundErr) {
			logger.Warnf("room %s: vanished during evaluation, result discarded", roomKey)
			return nil
		}
		return fmt.Errorf("fetch room %q: %w", roomKey, err)
	}

	if !room.GameStarted || room.GameOver || room.CurrentImageIndex != imageIndex || !room.RoundComplete() {
		logger.Warnf("room %s: round invalidated during evaluation, result discarded", roomKey)
		return nil
	}

	if len(contributors) > 0 {
		share := score / len(contributors)
		for _, player := range contributors {
			room.Scores[player] += share
		}
	}

	room.CurrentSentence = nil
	room.CurrentImageIndex++

	if room.Finished() {
		room.GameOver = true

		if err := c.store.Store(room); err != nil {
			return fmt.Errorf("store room %q: %w", roomKey, err)
		}

		c.publish(ctx, roomKey,
			newSentenceEvaluation(sentence, score, verdict),
			newGameComplete(room.Scores),
		)

		logger.Infof("room %s: game complete after %d rounds", roomKey, room.TotalImages)
		c.timers.Disarm(roomKey)
		return nil
	}

	room.CurrentTurnIndex = 0
	room.Epoch++

	if err := c.store.Store(room); err != nil {
		return fmt.Errorf("store room %q: %w", roomKey, err)
	}

	c.publish(ctx, roomKey,
		newSentenceEvaluation(sentence, score, verdict),
		newNewImage(room.CurrentImageIndex, room.TotalImages, c.prompt(&room)),
		newTurnUpdate(room.CurrentPlayer(), c.turnSeconds()),
	)

	c.armTurnTimer(roomKey, room.Epoch)
	return nil
}

func (c *Coordinator) armTurnTimer(roomKey string, epoch int64) {
	c.timers.Arm(roomKey, c.config.TurnTime, func() {
		ctx := c.baseCtx()
		if err := c.Timeout(ctx, roomKey, epoch); err != nil {
			logging.FromContext(ctx).Named("storychain.timer").Errorf("timeout room %s epoch %d: %v", roomKey, epoch, err)
		}
	})
}

func (c *Coordinator) baseCtx() context.Context {
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

func (c *Coordinator) roomLock(roomKey string) *sync.Mutex {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	mu, ok := c.locks[roomKey]
	if !ok {
		mu = &sync.Mutex{}
		c.locks[roomKey] = mu
	}

	return mu
}

func (c *Coordinator) prompt(room *model.Room) Prompt {
	idx := room.CurrentImageIndex
	if idx >= 0 && idx < len(room.PromptOrder) {
		return c.catalog.At(room.PromptOrder[idx])
	}
	return c.catalog.At(idx)
}

func (c *Coordinator) turnSeconds() int {
	return int(c.config.TurnTime.Seconds())
}

func (c *Coordinator) publish(ctx context.Context, roomKey string, events ...interface{}) {
	logger := logging.FromContext(ctx).Named("storychain.publish")

	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("room %s: marshal event %T: %v", roomKey, ev, err)
			continue
		}
		c.bc.Publish(ctx, roomKey, payload)
	}
}

// assembleSentence joins the round's non-placeholder texts in submission
// order and lists the players who actually contributed.
func assembleSentence(room *model.Room) (string, []string) {
	buf := strpool.Get()
	defer func() {
		buf.Reset()
		strpool.Put(buf)
	}()

	var contributors []string
	for _, contrib := range room.CurrentSentence {
		if contrib.Timeout {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(contrib.Text)
		contributors = append(contributors, contrib.Player)
	}

	return buf.String(), contributors
}
