package sheet

import (
	"spiceledger/internal/domain"
)

// ScoreLine is one score row in canonical shape, whichever layout it was
// stored in.
type ScoreLine struct {
	GameID    string
	Date      string
	PlayerRef string
	LeaderRef string
	VP        string
}

// ResolveScoreLine classifies a raw row by length. Five columns is the
// current layout (id, date, playerRef, leaderRef, vp); six or more is the
// legacy layout whose fifth column held a house name, dropped here. Anything
// shorter is malformed and skipped. Stored rows are never rewritten, so both
// layouts stay readable indefinitely.
func ResolveScoreLine(cells []string) (ScoreLine, bool) {
	switch {
	case len(cells) == 5:
		return ScoreLine{
			GameID:    cells[0],
			Date:      cells[1],
			PlayerRef: cells[2],
			LeaderRef: cells[3],
			VP:        cells[4],
		}, true
	case len(cells) >= 6:
		return ScoreLine{
			GameID:    cells[0],
			Date:      cells[1],
			PlayerRef: cells[2],
			LeaderRef: cells[3],
			VP:        cells[5],
		}, true
	default:
		return ScoreLine{}, false
	}
}

// GroupGames folds raw score rows (header first) into records grouped by game
// id, preserving first-seen group order and encounter order within a group.
func GroupGames(rows [][]string) []domain.GameRecord {
	var order []string
	byID := map[string]*domain.GameRecord{}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		line, ok := ResolveScoreLine(row)
		if !ok {
			continue
		}
		rec, seen := byID[line.GameID]
		if !seen {
			rec = &domain.GameRecord{ID: line.GameID, Date: line.Date}
			byID[line.GameID] = rec
			order = append(order, line.GameID)
		}
		rec.Players = append(rec.Players, domain.RecordLine{
			PlayerRef: line.PlayerRef,
			LeaderRef: line.LeaderRef,
			VP:        line.VP,
		})
	}
	out := make([]domain.GameRecord, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

// RecentGames returns at most limit records from the tail, newest first.
func RecentGames(rows [][]string, limit int) []domain.GameRecord {
	games := GroupGames(rows)
	if len(games) > limit {
		games = games[len(games)-limit:]
	}
	for i, j := 0, len(games)-1; i < j; i, j = i+1, j-1 {
		games[i], games[j] = games[j], games[i]
	}
	return games
}

// ParsePlayers decodes a player directory tab (header first, id+name rows).
func ParsePlayers(rows [][]string) []domain.Player {
	var out []domain.Player
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		out = append(out, domain.Player{ID: row[0], Name: row[1]})
	}
	return out
}

// ParseLeaders decodes a leader directory tab; trailing columns are optional.
func ParseLeaders(rows [][]string) []domain.Leader {
	var out []domain.Leader
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		l := domain.Leader{ID: row[0], Name: row[1]}
		if len(row) > 2 {
			l.House = row[2]
		}
		if len(row) > 3 {
			l.Game = row[3]
		}
		if len(row) > 4 {
			l.Passive = row[4]
		}
		if len(row) > 5 {
			l.Signet = row[5]
		}
		out = append(out, l)
	}
	return out
}
