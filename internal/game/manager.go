// internal/game/manager.go
package game

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/filterbattle/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultSubmitTimeout bounds the Submit phase when no timeout is configured.
const DefaultSubmitTimeout = 60 * time.Second

// Publisher delivers an event to every connection currently in a room.
// It is called with the Manager lock held and must not block.
type Publisher interface {
	Broadcast(roomID string, ev Event)
}

// ContentProvider supplies topics, filter words and random player picks.
type ContentProvider interface {
	PickRandomTopic() *models.Topic
	PickRandomFilterWord() string
	PickRandomFilterForTopic(topic *models.Topic) string
	PickRandomPlayer(players []models.Player) (models.PlayerID, bool)
}

// Recorder archives scored rounds. Failures are logged and never affect play.
type Recorder interface {
	RecordRound(ctx context.Context, rec models.RoundRecord) error
}

// Options configures a Manager. Zero values fall back to sensible defaults.
type Options struct {
	SubmitTimeout time.Duration
	// IndependentFilters draws the filter word from the global list instead of
	// from the current topic's own filters.
	IndependentFilters bool
	Clock              Clock
	Recorder           Recorder
	Logger             logrus.FieldLogger
}

// Manager is the server-authoritative state machine for every room.
// A single mutex serializes all operations and deadline fires, so each
// operation runs to completion before the next one starts.
type Manager struct {
	mu sync.Mutex

	store     *RoomStore
	content   ContentProvider
	publisher Publisher
	recorder  Recorder
	clock     Clock
	log       logrus.FieldLogger

	submitTimeout      time.Duration
	independentFilters bool

	// epoch is shared by all rooms so a deadline armed for a destroyed room
	// never matches a later room that reuses its id.
	epoch uint64
}

func NewManager(content ContentProvider, opts Options) *Manager {
	m := &Manager{
		store:              NewRoomStore(),
		content:            content,
		recorder:           opts.Recorder,
		clock:              opts.Clock,
		log:                opts.Logger,
		submitTimeout:      opts.SubmitTimeout,
		independentFilters: opts.IndependentFilters,
	}
	if m.clock == nil {
		m.clock = SystemClock
	}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	if m.submitTimeout <= 0 {
		m.submitTimeout = DefaultSubmitTimeout
	}
	return m
}

// SetPublisher wires the outbound fan-out. It must be called before any operation.
func (m *Manager) SetPublisher(p Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = p
}

// Join adds the player to the room, creating the room if needed. The first
// player becomes filterer and starts the first Submit phase.
func (m *Manager) Join(roomID string, player models.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, created := m.store.GetOrCreate(roomID)
	if created {
		m.roomLog(roomID).Info("Room created")
	}

	added := false
	if !room.hasPlayer(player.ID) {
		room.Players = append(room.Players, player)
		added = true
		m.roomLog(roomID).WithField("player", player.ID).Infof("Player %q joined (%d players)", player.Name, len(room.Players))
	}

	if added && len(room.Players) == 1 {
		r := room.Round
		r.FiltererID = player.ID
		m.pickContent(r)
		m.enterSubmit(room)
	}

	m.broadcastRoundState(room)
}

// Leave removes the player from the room and from every per-round map. An
// empty room is destroyed. It reports whether the room was destroyed.
func (m *Manager) Leave(roomID string, playerID models.PlayerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.store.Get(roomID)
	if !ok {
		return false
	}
	idx := room.indexOf(playerID)
	if idx < 0 {
		return false
	}

	room.Players = append(room.Players[:idx], room.Players[idx+1:]...)
	r := room.Round
	r.forget(playerID)
	m.roomLog(roomID).WithField("player", playerID).Infof("Player left (%d remaining)", len(room.Players))

	if len(room.Players) == 0 {
		m.cancelDeadline(room)
		m.store.Remove(roomID)
		m.roomLog(roomID).Info("Room empty, removed")
		return true
	}

	if r.FiltererID == playerID {
		r.FiltererID = room.Players[0].ID
		m.roomLog(roomID).WithField("player", r.FiltererID).Info("Filterer left, reassigned")
	}

	m.broadcastRoundState(room)
	m.broadcast(room, EventReadyStatus, ReadyStatusPayload{ReadyCount: len(r.Ready), TotalCount: len(room.Players)})

	// The departed player may have been the only one holding up the phase.
	switch {
	case r.Phase == PhaseSubmit && len(r.Submitted) == len(room.Players):
		m.reveal(room)
	case r.Phase == PhaseVoting && len(r.Votes) == len(room.Players):
		m.tally(room)
	case len(r.Ready) == len(room.Players):
		m.restart(room)
	}
	return false
}

// StartGame ensures the room has a topic and (re)enters Submit. It is a
// no-op once a round is underway. It reports whether the room exists.
func (m *Manager) StartGame(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.store.Get(roomID)
	if !ok {
		return false
	}
	r := room.Round
	if r.Topic != nil && r.Phase != PhaseLobby {
		m.roomLog(roomID).Debugf("start_game ignored, round already underway in %s", r.Phase)
		return true
	}

	if r.Topic == nil {
		m.pickContent(r)
	}
	if r.FiltererID == "" {
		if id, ok := m.content.PickRandomPlayer(room.Players); ok {
			r.FiltererID = id
		}
	}
	r.resetBookkeeping()
	m.enterSubmit(room)
	m.broadcastRoundState(room)
	return true
}

// SubmitCard stores the player's hidden card. Once every current player has
// submitted, the cards are revealed immediately.
func (m *Manager) SubmitCard(roomID string, playerID models.PlayerID, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, r, ok := m.roomInPhase(roomID, PhaseSubmit, "submit_card")
	if !ok {
		return
	}
	if !room.hasPlayer(playerID) {
		m.roomLog(roomID).WithField("player", playerID).Debug("submit_card from non-member ignored")
		return
	}

	r.HiddenCards[playerID] = text
	r.Submitted[playerID] = struct{}{}
	m.roomLog(roomID).WithField("player", playerID).Debugf("Card submitted (%d/%d)", len(r.Submitted), len(room.Players))

	if len(r.Submitted) == len(room.Players) {
		m.reveal(room)
		return
	}
	m.broadcast(room, EventSubmittedUpdate, m.submittedList(room))
}

// DeadlineFire is the Submit deadline callback. It only acts if the room
// still exists and is still in the Submit phase the deadline was armed for.
func (m *Manager) DeadlineFire(roomID string, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.store.Get(roomID)
	if !ok {
		m.roomLog(roomID).Debug("Deadline fired for removed room. Ignoring.")
		return
	}
	r := room.Round
	if r.Phase != PhaseSubmit || r.Epoch != epoch {
		m.roomLog(roomID).Debugf("Stale deadline fired (epoch %d, current %d, phase %s). Ignoring.", epoch, r.Epoch, r.Phase)
		return
	}
	room.deadline = nil
	m.roomLog(roomID).Infof("Submit deadline reached with %d/%d cards", len(r.Submitted), len(room.Players))
	m.reveal(room)
}

// StartVoting moves a revealed round into Voting.
func (m *Manager) StartVoting(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, r, ok := m.roomInPhase(roomID, PhaseReveal, "start_voting")
	if !ok {
		return
	}
	clear(r.Votes)
	m.setPhase(room, PhaseVoting)
	m.broadcast(room, EventPhaseUpdate, r.Phase)
	m.broadcast(room, EventVotingStarted, nil)
}

// Vote records voterID's accusation, replacing any earlier vote. When every
// current player has voted the round is scored.
func (m *Manager) Vote(roomID string, voterID, targetID models.PlayerID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, r, ok := m.roomInPhase(roomID, PhaseVoting, "vote")
	if !ok {
		return
	}
	if !room.hasPlayer(voterID) {
		m.roomLog(roomID).WithField("player", voterID).Debug("Vote from non-member ignored")
		return
	}
	if !room.hasPlayer(targetID) {
		m.roomLog(roomID).WithField("player", voterID).Debugf("Invalid vote target %q ignored", targetID)
		return
	}

	r.Votes[voterID] = targetID
	m.roomLog(roomID).WithField("player", voterID).Debugf("Voted for %s (%d/%d)", targetID, len(r.Votes), len(room.Players))

	if len(r.Votes) == len(room.Players) {
		m.tally(room)
	}
}

// ReadyForRestart marks the player ready; when every current player is
// ready a new round starts with a freshly drawn filterer.
func (m *Manager) ReadyForRestart(roomID string, playerID models.PlayerID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.store.Get(roomID)
	if !ok {
		return
	}
	if !room.hasPlayer(playerID) {
		m.roomLog(roomID).WithField("player", playerID).Debug("ready_for_restart from non-member ignored")
		return
	}
	r := room.Round
	r.Ready[playerID] = struct{}{}
	m.broadcast(room, EventReadyStatus, ReadyStatusPayload{ReadyCount: len(r.Ready), TotalCount: len(room.Players)})

	if len(r.Ready) == len(room.Players) {
		m.restart(room)
	}
}

// Snapshot returns a copy of the room's visible state.
func (m *Manager) Snapshot(roomID string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.store.Get(roomID)
	if !ok {
		return Snapshot{}, false
	}
	return m.snapshot(room), true
}

// ListRooms snapshots the registry for the room browser.
func (m *Manager) ListRooms() []models.RoomSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.List()
}

// --- transitions; all assume m.mu is held ---

func (m *Manager) enterSubmit(room *Room) {
	r := room.Round
	m.setPhase(room, PhaseSubmit)
	m.epoch++
	r.Epoch = m.epoch
	clear(r.HiddenCards)
	clear(r.Submitted)
	m.armDeadline(room)
}

func (m *Manager) reveal(room *Room) {
	r := room.Round
	m.cancelDeadline(room)
	m.setPhase(room, PhaseReveal)
	for id, text := range r.HiddenCards {
		r.Cards[id] = text
	}
	clear(r.HiddenCards)

	revealed := copyCards(r.Cards)
	m.broadcast(room, EventPhaseUpdate, r.Phase)
	m.broadcast(room, EventCardsUpdate, revealed)
	m.broadcast(room, EventSubmittedUpdate, m.submittedList(room))
	m.broadcast(room, EventRevealCards, copyCards(revealed))
	m.roomLog(room.ID).Infof("Revealed %d cards", len(revealed))
}

func (m *Manager) tally(room *Room) {
	r := room.Round
	voteCounts := CountVotes(r.Votes)
	diffs := ComputeRoundScores(r.Votes, r.FiltererID, room.Players)
	for id, d := range diffs {
		r.Scores[id] += d
	}
	r.Completed++

	m.record(room, voteCounts, diffs)

	m.broadcast(room, EventVotingResults, VotingResultsPayload{
		Scores:     copyScores(r.Scores),
		VoteCounts: voteCounts,
		ScoreDiffs: diffs,
	})
	m.setPhase(room, PhaseResults)
	m.broadcast(room, EventPhaseUpdate, r.Phase)
	clear(r.Votes)
	m.roomLog(room.ID).Infof("Round %d scored", r.Completed)
}

func (m *Manager) restart(room *Room) {
	r := room.Round
	if id, ok := m.content.PickRandomPlayer(room.Players); ok {
		r.FiltererID = id
	}
	m.pickContent(r)
	r.resetBookkeeping()
	m.enterSubmit(room)
	m.roomLog(room.ID).WithField("player", r.FiltererID).Info("Everyone ready, new round started")
	m.broadcastRoundState(room)
	m.broadcast(room, EventReadyStatus, ReadyStatusPayload{ReadyCount: 0, TotalCount: len(room.Players)})
}

func (m *Manager) setPhase(room *Room, next Phase) {
	r := room.Round
	if !r.Phase.CanTransitionTo(next) {
		m.roomLog(room.ID).Warnf("Unexpected phase transition %s -> %s", r.Phase, next)
	}
	r.Phase = next
}

func (m *Manager) pickContent(r *Round) {
	r.Topic = m.content.PickRandomTopic()
	if m.independentFilters {
		r.Filter = m.content.PickRandomFilterWord()
	} else {
		r.Filter = m.content.PickRandomFilterForTopic(r.Topic)
	}
}

func (m *Manager) armDeadline(room *Room) {
	m.cancelDeadline(room)
	roomID, epoch := room.ID, room.Round.Epoch
	room.deadline = m.clock.AfterFunc(m.submitTimeout, func() {
		m.DeadlineFire(roomID, epoch)
	})
}

func (m *Manager) cancelDeadline(room *Room) {
	if room.deadline != nil {
		room.deadline.Stop()
		room.deadline = nil
	}
}

func (m *Manager) roomInPhase(roomID string, phase Phase, action string) (*Room, *Round, bool) {
	room, ok := m.store.Get(roomID)
	if !ok {
		m.roomLog(roomID).Debugf("%s for unknown room ignored", action)
		return nil, nil, false
	}
	if room.Round.Phase != phase {
		m.roomLog(roomID).Debugf("%s ignored outside %s (phase %s)", action, phase, room.Round.Phase)
		return nil, nil, false
	}
	return room, room.Round, true
}

func (m *Manager) record(room *Room, voteCounts, diffs map[models.PlayerID]int) {
	if m.recorder == nil {
		return
	}
	r := room.Round
	rec := models.RoundRecord{
		RoomID:     room.ID,
		Round:      r.Completed,
		FiltererID: r.FiltererID,
		Filter:     r.Filter,
		Players:    append([]models.Player(nil), room.Players...),
		Cards:      copyCards(r.Cards),
		Votes:      make(map[models.PlayerID]models.PlayerID, len(r.Votes)),
		VoteCounts: copyScores(voteCounts),
		ScoreDiffs: copyScores(diffs),
		Scores:     copyScores(r.Scores),
		FinishedAt: time.Now().UTC(),
	}
	if r.Topic != nil {
		rec.Topic = r.Topic.Title
	}
	for voter, target := range r.Votes {
		rec.Votes[voter] = target
	}

	recorder, logger := m.recorder, m.roomLog(room.ID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := recorder.RecordRound(ctx, rec); err != nil {
			logger.Warnf("Failed to record round %d: %v", rec.Round, err)
		}
	}()
}

func (m *Manager) roomLog(roomID string) logrus.FieldLogger {
	return m.log.WithField("room", roomID)
}
