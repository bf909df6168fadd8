package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"spiceledger/internal/config"
	"spiceledger/internal/domain"
	"spiceledger/internal/events"
	"spiceledger/internal/repo"
	"spiceledger/internal/seed"
	"spiceledger/internal/sheet"
)

// Tracker modes.
const (
	ModeHome    = "home"
	ModeActive  = "active"
	ModeScoring = "scoring"
)

// ErrNoGame is returned by session operations when nothing is in progress.
var ErrNoGame = errors.New("no game in progress")

// StoreFactory builds a record store for a spreadsheet id (empty id means the
// configured default).
type StoreFactory func(ctx context.Context, spreadsheetID string) (sheet.ValueStore, error)

// State is the single persisted tracker blob: current mode, the live session
// and its undo ledger. It survives process restarts.
type State struct {
	Mode    string         `json:"mode"`
	Session domain.Session `json:"session"`
	Undo    domain.Ledger  `json:"undo"`
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Stores StoreFactory
	Now    func() time.Time
	Intn   func(n int) int
}

func New(db *sql.DB, cfg *config.Config, stores StoreFactory) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Stores: stores,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) intn(n int) int {
	if e.Intn != nil {
		return e.Intn(n)
	}
	return rand.Intn(n)
}

func (e Engine) adapter(ctx context.Context, spreadsheetID string) (sheet.Adapter, error) {
	if e.Stores == nil {
		return sheet.Adapter{}, errors.New("record store not configured")
	}
	store, err := e.Stores(ctx, spreadsheetID)
	if err != nil {
		return sheet.Adapter{}, err
	}
	return sheet.Adapter{Store: store, Tabs: sheet.TabNames{
		Scores:  e.Config.Sheet.Tabs.Scores,
		Logs:    e.Config.Sheet.Tabs.Logs,
		Players: e.Config.Sheet.Tabs.Players,
		Leaders: e.Config.Sheet.Tabs.Leaders,
	}}, nil
}

// LoadState reads the persisted blob. A missing or undecodable blob is a
// fresh start, not an error.
func (e Engine) LoadState(ctx context.Context) (State, error) {
	row, err := e.Repo.LoadState(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return State{Mode: ModeHome}, nil
	}
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(row.Payload, &st); err != nil {
		return State{Mode: ModeHome}, nil
	}
	if st.Mode == "" {
		st.Mode = ModeHome
	}
	return st, nil
}

// persist writes the blob and the audit event in one transaction.
func (e Engine) persist(ctx context.Context, st State, evtType, player string, payload events.EventPayload) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	row := repo.StateRow{
		Mode:      st.Mode,
		Payload:   data,
		UpdatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.SaveState(ctx, tx, row); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, st.Session.ID, player, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// clear deletes the blob and records the closing event atomically.
func (e Engine) clear(ctx context.Context, sessionID, evtType string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.ClearState(ctx, tx); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, sessionID, "", payload); err != nil {
		return err
	}
	return tx.Commit()
}

// SetupPlayer is one seat in a new game. First is optional on the wire so a
// start payload only marks the one seat holding the token.
type SetupPlayer struct {
	Name   string `json:"name"`
	Leader string `json:"leader"`
	First  bool   `json:"first,omitempty"`
}

type StartOptions struct {
	Players  []SetupPlayer
	Tracking bool
}

func (e Engine) StartGame(ctx context.Context, opts StartOptions) (State, error) {
	if e.Config == nil {
		return State{}, errors.New("config not loaded")
	}
	st, err := e.LoadState(ctx)
	if err != nil {
		return State{}, err
	}
	if st.Mode != ModeHome {
		return st, errors.New("a game is already in progress; abandon or finalize it first")
	}
	n := len(opts.Players)
	if n < e.Config.Game.MinPlayers || n > e.Config.Game.MaxPlayers {
		return st, fmt.Errorf("player count must be between %d and %d", e.Config.Game.MinPlayers, e.Config.Game.MaxPlayers)
	}
	seen := map[string]bool{}
	firstIdx := -1
	for i, p := range opts.Players {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return st, fmt.Errorf("player %d has no name", i+1)
		}
		if seen[name] {
			return st, fmt.Errorf("duplicate player name %q", name)
		}
		seen[name] = true
		if p.Leader == "" {
			return st, fmt.Errorf("player %q has no leader", name)
		}
		if p.First {
			if firstIdx >= 0 {
				return st, errors.New("more than one first player")
			}
			firstIdx = i
		}
	}
	if firstIdx < 0 {
		return st, errors.New("exactly one first player is required")
	}

	session := domain.Session{
		ID:             uuid.New().String(),
		Round:          1,
		Phase:          domain.PhaseAgent,
		Turn:           firstIdx,
		Tracking:       opts.Tracking,
		StartedAt:      e.now().UTC().Format(time.RFC3339),
		AgentCap:       e.Config.Game.Agents,
		SwordmasterCap: e.Config.Game.SwordmasterAgents,
	}
	for i, p := range opts.Players {
		session.Players = append(session.Players, domain.PlayerState{
			ID:          i + 1,
			Name:        strings.TrimSpace(p.Name),
			Leader:      p.Leader,
			Agents:      e.Config.Game.Agents,
			FirstPlayer: i == firstIdx,
		})
	}
	st = State{Mode: ModeActive, Session: session}
	names := make([]string, 0, n)
	for _, p := range session.Players {
		names = append(names, p.Name)
	}
	if err := e.persist(ctx, st, "game.started", "", events.EventPayload{
		"players":  names,
		"tracking": opts.Tracking,
	}); err != nil {
		return st, err
	}
	return st, nil
}

// Action applies one board action. The pre-action session is pushed onto the
// undo ledger first; a rule violation leaves both untouched.
func (e Engine) Action(ctx context.Context, playerID int, action string) (State, error) {
	st, err := e.LoadState(ctx)
	if err != nil {
		return State{}, err
	}
	if st.Mode != ModeActive {
		return st, ErrNoGame
	}
	st.Undo.Push(st.Session)
	if err := st.Session.Apply(playerID, action, e.now()); err != nil {
		return st, err
	}
	player := ""
	for _, p := range st.Session.Players {
		if p.ID == playerID {
			player = p.Name
		}
	}
	if err := e.persist(ctx, st, "action.applied", player, events.EventPayload{
		"action": action,
		"round":  st.Session.Round,
	}); err != nil {
		return st, err
	}
	return st, nil
}

// Pass rotates the turn pointer without spending an agent or logging history.
// It snapshots like an action, so undo reverts a pass on its own.
func (e Engine) Pass(ctx context.Context) (State, error) {
	st, err := e.LoadState(ctx)
	if err != nil {
		return State{}, err
	}
	if st.Mode != ModeActive {
		return st, ErrNoGame
	}
	st.Undo.Push(st.Session)
	st.Session.Pass()
	if err := e.persist(ctx, st, "action.passed", "", events.EventPayload{
		"turn": st.Session.Turn,
	}); err != nil {
		return st, err
	}
	return st, nil
}

// Undo restores the most recent snapshot. With an empty ledger it is a no-op.
func (e Engine) Undo(ctx context.Context) (State, error) {
	st, err := e.LoadState(ctx)
	if err != nil {
		return State{}, err
	}
	if st.Mode != ModeActive {
		return st, ErrNoGame
	}
	prev, ok := st.Undo.Pop()
	if !ok {
		return st, nil
	}
	st.Session = prev
	if err := e.persist(ctx, st, "action.undone", "", events.EventPayload{
		"round": st.Session.Round,
	}); err != nil {
		return st, err
	}
	return st, nil
}

// EndGame moves an active session to scoring.
func (e Engine) EndGame(ctx context.Context) (State, error) {
	st, err := e.LoadState(ctx)
	if err != nil {
		return State{}, err
	}
	if st.Mode != ModeActive {
		return st, ErrNoGame
	}
	st.Mode = ModeScoring
	if err := e.persist(ctx, st, "game.ended", "", events.EventPayload{
		"round": st.Session.Round,
	}); err != nil {
		return st, err
	}
	return st, nil
}

// Abandon drops the session without writing anything to the record store.
func (e Engine) Abandon(ctx context.Context) error {
	st, err := e.LoadState(ctx)
	if err != nil {
		return err
	}
	if st.Mode == ModeHome {
		return ErrNoGame
	}
	return e.clear(ctx, st.Session.ID, "game.abandoned", events.EventPayload{
		"round": st.Session.Round,
	})
}

// Leaders returns the leader directory, seeding the defaults on first use.
func (e Engine) Leaders(ctx context.Context, spreadsheetID string) ([]domain.Leader, error) {
	a, err := e.adapter(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}
	if _, err := a.EnsureTabs(ctx, a.Tabs.Leaders); err != nil {
		return nil, err
	}
	rows, err := a.SeedIfEmpty(ctx, a.Tabs.Leaders, seed.LeaderHeader, seed.LeaderRows)
	if err != nil {
		return nil, err
	}
	return sheet.ParseLeaders(rows), nil
}

// Players returns the player directory, seeding the defaults on first use.
func (e Engine) Players(ctx context.Context, spreadsheetID string) ([]domain.Player, error) {
	a, err := e.adapter(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}
	if _, err := a.EnsureTabs(ctx, a.Tabs.Players); err != nil {
		return nil, err
	}
	rows, err := a.SeedIfEmpty(ctx, a.Tabs.Players, seed.PlayerHeader, seed.PlayerRows)
	if err != nil {
		return nil, err
	}
	return sheet.ParsePlayers(rows), nil
}

// DraftLeaders samples a draft pool from the leader directory.
func (e Engine) DraftLeaders(ctx context.Context, spreadsheetID string, size int) ([]domain.Leader, error) {
	if size <= 0 {
		size = e.Config.Game.DraftSize
	}
	leaders, err := e.Leaders(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}
	if size >= len(leaders) {
		return leaders, nil
	}
	pool := append([]domain.Leader(nil), leaders...)
	for i := len(pool) - 1; i > 0; i-- {
		j := e.intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:size], nil
}

// RecentGames returns the newest finalized games, most recent first.
func (e Engine) RecentGames(ctx context.Context, spreadsheetID string, limit int) ([]domain.GameRecord, error) {
	if limit <= 0 {
		limit = 2
	}
	a, err := e.adapter(ctx, spreadsheetID)
	if err != nil {
		return nil, err
	}
	created, err := a.EnsureTabs(ctx, a.Tabs.Scores)
	if err != nil {
		return nil, err
	}
	if created[a.Tabs.Scores] {
		return nil, nil
	}
	rows, err := a.Store.Read(ctx, a.Tabs.Scores)
	if err != nil {
		return nil, err
	}
	return sheet.RecentGames(rows, limit), nil
}

// SaveToSheet is the raw persist used by the save endpoint: the caller
// supplies both batches and the adapter assigns the real game id.
func (e Engine) SaveToSheet(ctx context.Context, spreadsheetID string, scoreHeaders []string, scoreRows [][]string, logHeaders []string, logRows [][]string) (int, error) {
	a, err := e.adapter(ctx, spreadsheetID)
	if err != nil {
		return 0, err
	}
	return a.SaveGame(ctx, scoreHeaders, scoreRows, logHeaders, logRows)
}

type FinalizeOptions struct {
	// Scores maps seat id (1..4) to a victory-point string; missing seats
	// record "0".
	Scores        map[int]string
	SpreadsheetID string
}

// Finalize writes the score and log batches to the record store and, only on
// success, clears the session and its ledger. Any store failure leaves the
// local state fully intact for a retry.
func (e Engine) Finalize(ctx context.Context, opts FinalizeOptions) (int, error) {
	st, err := e.LoadState(ctx)
	if err != nil {
		return 0, err
	}
	if st.Mode != ModeActive && st.Mode != ModeScoring {
		return 0, ErrNoGame
	}

	now := e.now().UTC()
	token := now.Format("2006-01-02T15-04-05")
	date := now.Format(time.RFC3339)

	playerIDs := map[string]string{}
	if players, err := e.Players(ctx, opts.SpreadsheetID); err == nil {
		for _, p := range players {
			playerIDs[p.Name] = p.ID
		}
	}
	resolve := func(name string) string {
		if id, ok := playerIDs[name]; ok {
			return id
		}
		return name
	}

	var scoreRows [][]string
	for _, p := range st.Session.Players {
		vp, ok := opts.Scores[p.ID]
		if !ok || vp == "" {
			vp = "0"
		}
		scoreRows = append(scoreRows, []string{token, date, resolve(p.Name), p.Leader, vp})
	}
	var logRows [][]string
	for _, h := range st.Session.History {
		logRows = append(logRows, []string{
			token, date, strconv.Itoa(h.Round), resolve(h.PlayerName), h.Action, h.Timestamp,
		})
	}

	a, err := e.adapter(ctx, opts.SpreadsheetID)
	if err != nil {
		return 0, err
	}
	gameID, err := a.SaveGame(ctx, seed.ScoreHeader, scoreRows, seed.LogHeader, logRows)
	if err != nil {
		return 0, err
	}
	if err := e.clear(ctx, st.Session.ID, "game.finalized", events.EventPayload{
		"game_id": gameID,
		"players": len(st.Session.Players),
		"actions": len(st.Session.History),
	}); err != nil {
		return gameID, err
	}
	return gameID, nil
}
