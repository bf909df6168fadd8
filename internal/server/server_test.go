package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"spiceledger/internal/config"
	"spiceledger/internal/db"
	"spiceledger/internal/domain"
	"spiceledger/internal/engine"
	"spiceledger/internal/migrate"
	"spiceledger/internal/sheet"
	spiceledgersdk "spiceledger/sdk/go"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg, func(ctx context.Context, spreadsheetID string) (sheet.ValueStore, error) {
		return sheet.LocalStore{DB: conn}, nil
	})
	handler, err := New(Config{Engine: e, BasePath: "/api", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func startBody() map[string]any {
	return map[string]any{
		"tracking": true,
		"players": []map[string]any{
			{"name": "Paul", "leader": "muaddib", "first": true},
			{"name": "Nina", "leader": "feyd"},
		},
	}
}

func TestGameLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/game/start", startBody(), nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start: %d %s", res.StatusCode, string(data))
	}
	var st stateBody
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.Mode != engine.ModeActive || len(st.Session.Players) != 2 {
		t.Fatalf("start state: %+v", st)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/game/action", map[string]any{
		"playerId": 1, "action": "Arrakeen",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("action: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &st)
	if st.Session.Players[0].Agents != 1 || st.UndoDepth != 1 {
		t.Fatalf("action state: %+v", st)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/game/undo", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("undo: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &st)
	if st.Session.Players[0].Agents != 2 || st.UndoDepth != 0 {
		t.Fatalf("undo state: %+v", st)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/game/end", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("end: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/game/finalize", map[string]any{
		"scores": map[string]string{"1": "12", "2": "9"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("finalize: %d %s", res.StatusCode, string(data))
	}
	var fin finalizeBody
	_ = json.Unmarshal(data, &fin)
	if fin.GameID != 1 {
		t.Fatalf("finalize body: %+v", fin)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/recent-games", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("recent: %d %s", res.StatusCode, string(data))
	}
	var games []domain.GameRecord
	if err := json.Unmarshal(data, &games); err != nil {
		t.Fatalf("unmarshal games: %v", err)
	}
	if len(games) != 1 || games[0].ID != "1" || len(games[0].Players) != 2 {
		t.Fatalf("recent games: %+v", games)
	}
}

func TestStartValidationRejected(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/game/start", map[string]any{
		"players": []map[string]any{
			{"name": "Paul", "leader": "muaddib", "first": true},
			{"name": "Paul", "leader": "feyd"},
		},
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "bad_request" {
		t.Fatalf("code = %s", code)
	}
}

func TestRuleViolationIs422(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/game/start", startBody(), nil); res.StatusCode != http.StatusOK {
		t.Fatalf("start: %d %s", res.StatusCode, string(data))
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/game/action", map[string]any{
		"playerId": 7, "action": "Arrakeen",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "rule_violation" {
		t.Fatalf("code = %s", code)
	}
}

func TestNoGameIsConflict(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/game/pass", nil, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "no_game" {
		t.Fatalf("code = %s", code)
	}
}

func TestSaveToSheet(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/save-to-sheet", map[string]any{
		"scoreRows": [][]string{{"x", "d", "p", "l", "9"}},
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d %s", res.StatusCode, string(data))
	}

	body := map[string]any{
		"scoreHeaders": []string{"Game ID", "Game Date", "Player ID", "Leader ID", "Victory Points"},
		"scoreRows":    [][]string{{"placeholder", "2024-01-01", "1", "feyd", "10"}},
		"logHeaders":   []string{"Game ID", "Game Date", "Round", "Player ID", "Action", "Timestamp"},
		"logRows":      [][]string{},
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/save-to-sheet", body, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("save: %d %s", res.StatusCode, string(data))
	}
	var fin finalizeBody
	_ = json.Unmarshal(data, &fin)
	if fin.GameID != 1 {
		t.Fatalf("save body: %+v", fin)
	}
}

func TestDirectoriesSeedOnFirstUse(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/players", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("players: %d %s", res.StatusCode, string(data))
	}
	var players []domain.Player
	_ = json.Unmarshal(data, &players)
	if len(players) != 7 {
		t.Fatalf("seeded players = %d", len(players))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/leaders", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("leaders: %d %s", res.StatusCode, string(data))
	}
	var leaders []domain.Leader
	_ = json.Unmarshal(data, &leaders)
	if len(leaders) != 18 {
		t.Fatalf("seeded leaders = %d", len(leaders))
	}
}

func TestStartAcceptsSeatsWithoutFirstFlag(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	// The SDK omits the first flag on every seat not holding the token; the
	// schema must not treat it as required.
	client := spiceledgersdk.New(srv.URL)
	st, err := client.StartGame(context.Background(), []spiceledgersdk.SetupPlayer{
		{Name: "Paul", Leader: "muaddib", First: true},
		{Name: "Nina", Leader: "feyd"},
	}, true)
	if err != nil {
		t.Fatalf("start via client: %v", err)
	}
	if st.Mode != engine.ModeActive || len(st.Session.Players) != 2 {
		t.Fatalf("start state: %+v", st)
	}
	if !st.Session.Players[0].FirstPlayer || st.Session.Players[1].FirstPlayer {
		t.Fatalf("first-player token misplaced: %+v", st.Session.Players)
	}
}

func TestWebhookStartsAtCurrentTail(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()
	ctx := context.Background()

	// Generate some history before the subscription exists.
	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/game/start", startBody(), nil); res.StatusCode != http.StatusOK {
		t.Fatalf("start: %d %s", res.StatusCode, string(data))
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/webhooks", map[string]any{
		"url": "http://127.0.0.1:9/hook",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create webhook: %d %s", res.StatusCode, string(data))
	}
	var hook domain.Webhook
	if err := json.Unmarshal(data, &hook); err != nil {
		t.Fatalf("unmarshal webhook: %v", err)
	}
	latest, err := srv.Engine.Repo.LatestEventID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest == 0 {
		t.Fatal("expected events before subscribing")
	}
	cursor, err := srv.Engine.Repo.WebhookCursor(ctx, hook.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cursor != latest {
		t.Fatalf("new subscriber cursor = %d, want tail %d", cursor, latest)
	}
}

func TestAuthEnforcedWhenSecretSet(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "sekrit"})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/game", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health must stay open, got %d", res.StatusCode)
	}
}
