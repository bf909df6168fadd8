package sheet

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// fakeStore is an in-memory ValueStore mirroring the adapter's A1 usage.
type fakeStore struct {
	tabs    map[string][][]string
	order   []string
	readErr error
	appends int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tabs: map[string][][]string{}}
}

func (f *fakeStore) Tabs(ctx context.Context) ([]string, error) {
	return append([]string(nil), f.order...), nil
}

func (f *fakeStore) AddTabs(ctx context.Context, names []string) error {
	for _, n := range names {
		if _, ok := f.tabs[n]; !ok {
			f.tabs[n] = nil
			f.order = append(f.order, n)
		}
	}
	return nil
}

func (f *fakeStore) Read(ctx context.Context, rng string) ([][]string, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	tab, _, _ := strings.Cut(rng, "!")
	rows, ok := f.tabs[tab]
	if !ok {
		return nil, errors.New("unknown tab " + tab)
	}
	if strings.HasSuffix(rng, "!A:A") {
		var out [][]string
		for _, r := range rows {
			if len(r) > 0 {
				out = append(out, []string{r[0]})
			} else {
				out = append(out, nil)
			}
		}
		return out, nil
	}
	return rows, nil
}

func (f *fakeStore) Append(ctx context.Context, tab string, rows [][]string) error {
	if _, ok := f.tabs[tab]; !ok {
		return errors.New("unknown tab " + tab)
	}
	f.appends++
	f.tabs[tab] = append(f.tabs[tab], rows...)
	return nil
}

func (f *fakeStore) Update(ctx context.Context, rng string, rows [][]string) error {
	tab, _, _ := strings.Cut(rng, "!")
	if _, ok := f.tabs[tab]; !ok {
		return errors.New("unknown tab " + tab)
	}
	f.tabs[tab] = append([][]string(nil), rows...)
	return nil
}

func testAdapter(f *fakeStore) Adapter {
	return Adapter{Store: f, Tabs: TabNames{
		Scores: "Scores", Logs: "Logs", Players: "Player Names", Leaders: "Leader Names",
	}}
}

func TestResolveScoreLineShapes(t *testing.T) {
	line, ok := ResolveScoreLine([]string{"7", "2024-01-01", "p1", "feyd", "10"})
	if !ok {
		t.Fatalf("5-column row rejected")
	}
	want := ScoreLine{GameID: "7", Date: "2024-01-01", PlayerRef: "p1", LeaderRef: "feyd", VP: "10"}
	if line != want {
		t.Fatalf("got %+v want %+v", line, want)
	}

	legacy, ok := ResolveScoreLine([]string{"7", "2024-01-01", "Alice", "Feyd", "Harkonnen", "10"})
	if !ok {
		t.Fatalf("6-column row rejected")
	}
	if legacy.PlayerRef != "Alice" || legacy.LeaderRef != "Feyd" || legacy.VP != "10" {
		t.Fatalf("legacy row misresolved: %+v", legacy)
	}

	if _, ok := ResolveScoreLine([]string{"7", "2024-01-01"}); ok {
		t.Fatalf("short row accepted")
	}
}

func TestGroupGamesOrderAndRecent(t *testing.T) {
	rows := [][]string{
		{"Game ID", "Game Date", "Player ID", "Leader ID", "Victory Points"},
		{"1", "d1", "p1", "feyd", "9"},
		{"1", "d1", "p2", "gurney", "11"},
		{"2", "d2", "p1", "liet", "8"},
		{"bad"},
		{"3", "d3", "p3", "piter", "12"},
	}
	games := GroupGames(rows)
	if len(games) != 3 {
		t.Fatalf("expected 3 games, got %d", len(games))
	}
	if games[0].ID != "1" || len(games[0].Players) != 2 {
		t.Fatalf("group order/content wrong: %+v", games[0])
	}
	recent := RecentGames(rows, 2)
	if len(recent) != 2 || recent[0].ID != "3" || recent[1].ID != "2" {
		t.Fatalf("recent games wrong: %+v", recent)
	}
}

func TestNextGameID(t *testing.T) {
	f := newFakeStore()
	a := testAdapter(f)
	_ = f.AddTabs(context.Background(), []string{"Scores"})

	// Header only.
	f.tabs["Scores"] = [][]string{{"Game ID", "Game Date"}}
	if got := a.NextGameID(context.Background()); got != 1 {
		t.Fatalf("header-only: got %d", got)
	}
	// Numeric last id.
	f.tabs["Scores"] = append(f.tabs["Scores"], []string{"5", "d", "p", "l", "9"})
	if got := a.NextGameID(context.Background()); got != 6 {
		t.Fatalf("numeric: got %d", got)
	}
	// Non-numeric last id falls back without raising.
	f.tabs["Scores"] = append(f.tabs["Scores"], []string{"abc", "d", "p", "l", "9"})
	if got := a.NextGameID(context.Background()); got != 1 {
		t.Fatalf("non-numeric: got %d", got)
	}
	// Unreadable column falls back too.
	f.readErr = errors.New("boom")
	if got := a.NextGameID(context.Background()); got != 1 {
		t.Fatalf("read error: got %d", got)
	}
}

func TestEnsureTabsIdempotent(t *testing.T) {
	f := newFakeStore()
	a := testAdapter(f)
	created, err := a.EnsureTabs(context.Background(), "Scores", "Logs")
	if err != nil {
		t.Fatal(err)
	}
	if !created["Scores"] || !created["Logs"] {
		t.Fatalf("expected both tabs created: %v", created)
	}
	created, err = a.EnsureTabs(context.Background(), "Scores", "Logs")
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 0 {
		t.Fatalf("second call recreated tabs: %v", created)
	}
}

func TestSeedIfEmpty(t *testing.T) {
	f := newFakeStore()
	a := testAdapter(f)
	_ = f.AddTabs(context.Background(), []string{"Player Names"})
	header := []string{"ID", "Name"}
	defaults := [][]string{{"1", "Paul"}}
	rows, err := a.SeedIfEmpty(context.Background(), "Player Names", header, defaults)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][1] != "Paul" {
		t.Fatalf("seed result wrong: %v", rows)
	}
	// Second call returns stored data without rewriting.
	f.tabs["Player Names"] = append(f.tabs["Player Names"], []string{"2", "Chani"})
	rows, err = a.SeedIfEmpty(context.Background(), "Player Names", header, defaults)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected existing rows back, got %v", rows)
	}
}

func TestSaveGameStampsAndHeaders(t *testing.T) {
	f := newFakeStore()
	a := testAdapter(f)
	scoreHeader := []string{"Game ID", "Game Date", "Player ID", "Leader ID", "Victory Points"}
	logHeader := []string{"Game ID", "Game Date", "Round", "Player ID", "Action", "Timestamp"}
	scoreRows := [][]string{
		{"placeholder", "d", "p1", "feyd", "10"},
		{"placeholder", "d", "p2", "gurney", "8"},
	}
	// Fresh store: tabs created, headers included, id 1 assigned, empty log
	// batch is a valid no-op append.
	id, err := a.SaveGame(context.Background(), scoreHeader, scoreRows, logHeader, nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}
	scores := f.tabs["Scores"]
	if len(scores) != 3 || !reflect.DeepEqual(scores[0], scoreHeader) {
		t.Fatalf("score tab wrong: %v", scores)
	}
	if scores[1][0] != "1" || scores[2][0] != "1" {
		t.Fatalf("placeholder not overwritten: %v", scores)
	}
	if got := f.tabs["Logs"]; len(got) != 1 || got[0][0] != "Game ID" {
		t.Fatalf("log tab should hold header only: %v", got)
	}

	// Second save: no headers, next id.
	id, err = a.SaveGame(context.Background(), scoreHeader, scoreRows[:1], logHeader, [][]string{
		{"placeholder", "d", "1", "p1", "Arrakeen", "t"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Fatalf("expected id 2, got %d", id)
	}
	scores = f.tabs["Scores"]
	if scores[len(scores)-1][0] != "2" {
		t.Fatalf("second game id not stamped: %v", scores)
	}
	logs := f.tabs["Logs"]
	if len(logs) != 2 || logs[1][0] != "2" {
		t.Fatalf("log rows wrong: %v", logs)
	}
}

func TestParseDirectories(t *testing.T) {
	players := ParsePlayers([][]string{{"ID", "Name"}, {"1", "Paul"}, {"short"}})
	if len(players) != 1 || players[0].Name != "Paul" {
		t.Fatalf("players: %+v", players)
	}
	leaders := ParseLeaders([][]string{
		{"ID", "Name", "House", "Game", "Passive", "Signet"},
		{"feyd", "Feyd-Rautha Harkonnen", "Harkonnen", "Uprising"},
	})
	if len(leaders) != 1 || leaders[0].House != "Harkonnen" || leaders[0].Signet != "" {
		t.Fatalf("leaders: %+v", leaders)
	}
}
