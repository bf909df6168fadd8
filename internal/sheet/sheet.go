// Package sheet adapts a key-ordered tabular store (Google Sheets in
// production, a local sqlite mirror in development and tests) for game
// records and directory tabs.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoCredentials distinguishes an operator setup problem (no store
// credentials anywhere) from transient store failures.
var ErrNoCredentials = errors.New("sheet credentials not configured: set the credentials env var or place a key file in the workspace")

// ValueStore is the minimal surface of the tabular backend. Ranges use A1
// notation ("Scores!A:F"); a bare tab name addresses the whole tab.
type ValueStore interface {
	Tabs(ctx context.Context) ([]string, error)
	AddTabs(ctx context.Context, names []string) error
	Read(ctx context.Context, rng string) ([][]string, error)
	Append(ctx context.Context, tab string, rows [][]string) error
	// Update overwrites starting at the top-left of rng; used only to seed
	// empty tabs, never to rewrite historical rows.
	Update(ctx context.Context, rng string, rows [][]string) error
}

// TabNames carries the configured tab titles through the adapter.
type TabNames struct {
	Scores  string
	Logs    string
	Players string
	Leaders string
}

// Adapter wraps a ValueStore with the record-keeping protocol: idempotent tab
// bootstrap, advisory id assignment, header-aware appends and lazy seeding.
type Adapter struct {
	Store ValueStore
	Tabs  TabNames
}

// EnsureTabs queries existing tab titles and creates only the missing ones in
// a single batched request. Safe to repeat; under two concurrent callers the
// worst case is a duplicate-tab creation attempt surfacing as a store error.
func (a Adapter) EnsureTabs(ctx context.Context, names ...string) (map[string]bool, error) {
	existing, err := a.Store.Tabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t] = true
	}
	created := make(map[string]bool, len(names))
	var missing []string
	for _, n := range names {
		if !have[n] {
			missing = append(missing, n)
			created[n] = true
		}
	}
	if len(missing) > 0 {
		if err := a.Store.AddTabs(ctx, missing); err != nil {
			return nil, fmt.Errorf("create tabs %v: %w", missing, err)
		}
	}
	return created, nil
}

// NextGameID reads the id column of the scores tab and returns last+1.
// Header-only or empty tabs yield 1. An unreadable column or a non-numeric
// last cell also yields 1: numbering is advisory, not a strict sequence, and
// must never fail a save.
func (a Adapter) NextGameID(ctx context.Context) int {
	rows, err := a.Store.Read(ctx, a.Tabs.Scores+"!A:A")
	if err != nil || len(rows) <= 1 {
		return 1
	}
	last := rows[len(rows)-1]
	if len(last) == 0 {
		return 1
	}
	id, err := strconv.Atoi(strings.TrimSpace(last[0]))
	if err != nil {
		return 1
	}
	return id + 1
}

// AppendRecords appends dataRows to tab, prepending headerRow only when the
// tab was just created (first write).
func (a Adapter) AppendRecords(ctx context.Context, tab string, headerRow []string, dataRows [][]string, includeHeader bool) error {
	payload := dataRows
	if includeHeader {
		payload = append([][]string{headerRow}, dataRows...)
	}
	if len(payload) == 0 {
		return nil
	}
	if err := a.Store.Append(ctx, tab, payload); err != nil {
		return fmt.Errorf("append to %s: %w", tab, err)
	}
	return nil
}

// SeedIfEmpty reads a directory tab and, when it has zero rows, writes the
// header plus defaults in one call and returns them, so first-use callers get
// usable data without a second round trip.
func (a Adapter) SeedIfEmpty(ctx context.Context, tab string, headerRow []string, defaultRows [][]string) ([][]string, error) {
	rows, err := a.Store.Read(ctx, tab)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", tab, err)
	}
	if len(rows) > 0 {
		return rows, nil
	}
	payload := append([][]string{headerRow}, defaultRows...)
	if err := a.Store.Update(ctx, tab+"!A1", payload); err != nil {
		return nil, fmt.Errorf("seed %s: %w", tab, err)
	}
	return payload, nil
}

// SaveGame runs the two-phase persist: ensure both tabs, assign the next game
// id, stamp it into column 0 of every row, then append scores and logs. An
// empty log batch is a valid no-op append. Returns the assigned id.
func (a Adapter) SaveGame(ctx context.Context, scoreHeader []string, scoreRows [][]string, logHeader []string, logRows [][]string) (int, error) {
	created, err := a.EnsureTabs(ctx, a.Tabs.Scores, a.Tabs.Logs)
	if err != nil {
		return 0, err
	}
	// nextGameId must resolve before either append is issued; two concurrent
	// finalizes can still observe the same id (advisory numbering).
	gameID := a.NextGameID(ctx)
	stamp := strconv.Itoa(gameID)
	if err := a.AppendRecords(ctx, a.Tabs.Scores, scoreHeader, stampGameID(scoreRows, stamp), created[a.Tabs.Scores]); err != nil {
		return 0, err
	}
	if err := a.AppendRecords(ctx, a.Tabs.Logs, logHeader, stampGameID(logRows, stamp), created[a.Tabs.Logs]); err != nil {
		return 0, err
	}
	return gameID, nil
}

// stampGameID overwrites the caller's placeholder in column 0 of every row.
func stampGameID(rows [][]string, id string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		r := append([]string(nil), row...)
		if len(r) == 0 {
			r = []string{id}
		} else {
			r[0] = id
		}
		out[i] = r
	}
	return out
}
