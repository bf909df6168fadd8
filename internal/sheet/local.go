package sheet

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// LocalStore is a sqlite-backed ValueStore so the whole pipeline can run
// without network access or credentials (the `local` backend, also used by
// tests). Tabs live in sheet_tabs, rows append-only in sheet_rows.
type LocalStore struct {
	DB *sql.DB
}

func (s LocalStore) Tabs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name FROM sheet_tabs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s LocalStore) AddTabs(ctx context.Context, names []string) error {
	for _, n := range names {
		if _, err := s.DB.ExecContext(ctx, `INSERT OR IGNORE INTO sheet_tabs(name) VALUES (?)`, n); err != nil {
			return err
		}
	}
	return nil
}

func (s LocalStore) Read(ctx context.Context, rng string) ([][]string, error) {
	tab, startCol, endCol := parseRange(rng)
	if err := s.requireTab(ctx, tab); err != nil {
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT cells_json FROM sheet_rows WHERE tab=? ORDER BY id`, tab)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]string
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var cells []string
		if err := json.Unmarshal([]byte(payload), &cells); err != nil {
			return nil, fmt.Errorf("decode row in %s: %w", tab, err)
		}
		out = append(out, sliceCols(cells, startCol, endCol))
	}
	return out, rows.Err()
}

func (s LocalStore) Append(ctx context.Context, tab string, rows [][]string) error {
	if err := s.requireTab(ctx, tab); err != nil {
		return err
	}
	return s.insertRows(ctx, tab, rows)
}

// Update replaces the tab's contents. Only ever used to seed an empty tab.
func (s LocalStore) Update(ctx context.Context, rng string, rows [][]string) error {
	tab, _, _ := parseRange(rng)
	if err := s.requireTab(ctx, tab); err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM sheet_rows WHERE tab=?`, tab); err != nil {
		return err
	}
	return s.insertRows(ctx, tab, rows)
}

func (s LocalStore) requireTab(ctx context.Context, tab string) error {
	var name string
	err := s.DB.QueryRowContext(ctx, `SELECT name FROM sheet_tabs WHERE name=?`, tab).Scan(&name)
	if err == sql.ErrNoRows {
		return fmt.Errorf("unknown tab %q", tab)
	}
	return err
}

func (s LocalStore) insertRows(ctx context.Context, tab string, rows [][]string) error {
	for _, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if _, err := s.DB.ExecContext(ctx, `INSERT INTO sheet_rows(tab,cells_json) VALUES (?,?)`, tab, string(payload)); err != nil {
			return err
		}
	}
	return nil
}

// parseRange understands the A1 subset the adapter emits: "Tab",
// "Tab!A:C" and "Tab!A1". endCol of -1 means unbounded.
func parseRange(rng string) (tab string, startCol, endCol int) {
	tab, spec, ok := strings.Cut(rng, "!")
	if !ok {
		return rng, 0, -1
	}
	from, to, ok := strings.Cut(spec, ":")
	if !ok {
		// Cell anchor like A1: whole tab from that column on.
		return tab, colIndex(from), -1
	}
	return tab, colIndex(from), colIndex(to)
}

func colIndex(ref string) int {
	for _, r := range ref {
		if r >= 'A' && r <= 'Z' {
			return int(r - 'A')
		}
	}
	return 0
}

func sliceCols(cells []string, start, end int) []string {
	if start <= 0 && end < 0 {
		return cells
	}
	if start >= len(cells) {
		return nil
	}
	stop := len(cells)
	if end >= 0 && end+1 < stop {
		stop = end + 1
	}
	return cells[start:stop]
}
