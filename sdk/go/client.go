package spiceledgersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Spiceledger HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// PlayerState is one seat of a live session.
type PlayerState struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Leader      string `json:"leader"`
	Agents      int    `json:"agents"`
	Swordmaster bool   `json:"swordmaster"`
	Revealed    bool   `json:"revealed"`
	FirstPlayer bool   `json:"is_first_player"`
}

// ActionEntry is one logged agent turn.
type ActionEntry struct {
	Round      int    `json:"round"`
	PlayerName string `json:"player_name"`
	Action     string `json:"action"`
	Timestamp  string `json:"timestamp"`
}

// Session is the live game as served.
type Session struct {
	ID        string        `json:"id"`
	Players   []PlayerState `json:"players"`
	Round     int           `json:"round"`
	Phase     string        `json:"phase"`
	Turn      int           `json:"turn"`
	Tracking  bool          `json:"tracking"`
	History   []ActionEntry `json:"history"`
	StartedAt string        `json:"started_at"`
}

// State is the tracker state returned by game endpoints.
type State struct {
	Mode      string  `json:"mode"`
	Session   Session `json:"session"`
	UndoDepth int     `json:"undoDepth"`
}

// SetupPlayer is one seat of a new game.
type SetupPlayer struct {
	Name   string `json:"name"`
	Leader string `json:"leader"`
	First  bool   `json:"first,omitempty"`
}

// Leader is a row of the leader directory.
type Leader struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	House   string `json:"house,omitempty"`
	Game    string `json:"game,omitempty"`
	Passive string `json:"passive,omitempty"`
	Signet  string `json:"signet,omitempty"`
}

// Player is a row of the player directory.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RecordLine is one player's result inside a stored game.
type RecordLine struct {
	PlayerRef string `json:"playerId"`
	LeaderRef string `json:"leaderId"`
	VP        string `json:"vp"`
}

// GameRecord is one finished game read back from the record store.
type GameRecord struct {
	ID      string       `json:"id"`
	Date    string       `json:"date"`
	Players []RecordLine `json:"players"`
}

// SaveResult is the outcome of finalize and save-to-sheet.
type SaveResult struct {
	GameID  int    `json:"gameId"`
	Message string `json:"message"`
}

// Event is one audit-trail entry. Payload is a JSON document as stored.
type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts"`
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Player    string `json:"player,omitempty"`
	Payload   string `json:"payload,omitempty"`
}

// Webhook is a registered event subscriber.
type Webhook struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Game returns the current tracker state.
func (c *Client) Game(ctx context.Context) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodGet, "api/game", nil, &resp)
	return resp, err
}

// StartGame starts a new session.
func (c *Client) StartGame(ctx context.Context, players []SetupPlayer, tracking bool) (State, error) {
	body := map[string]any{
		"players":  players,
		"tracking": tracking,
	}
	var resp State
	err := c.do(ctx, http.MethodPost, "api/game/start", body, &resp)
	return resp, err
}

// Action records an agent turn for a seat.
func (c *Client) Action(ctx context.Context, playerID int, action string) (State, error) {
	body := map[string]any{
		"playerId": playerID,
		"action":   action,
	}
	var resp State
	err := c.do(ctx, http.MethodPost, "api/game/action", body, &resp)
	return resp, err
}

// Pass passes the current turn.
func (c *Client) Pass(ctx context.Context) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodPost, "api/game/pass", nil, &resp)
	return resp, err
}

// Undo reverts the last action or pass.
func (c *Client) Undo(ctx context.Context) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodPost, "api/game/undo", nil, &resp)
	return resp, err
}

// EndGame moves the session to scoring.
func (c *Client) EndGame(ctx context.Context) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodPost, "api/game/end", nil, &resp)
	return resp, err
}

// Finalize writes scores and logs to the record store and clears the session.
// Scores maps seat id ("1".."4") to a victory-point string.
func (c *Client) Finalize(ctx context.Context, scores map[string]string, spreadsheetID string) (SaveResult, error) {
	body := map[string]any{"scores": scores}
	if spreadsheetID != "" {
		body["spreadsheetId"] = spreadsheetID
	}
	var resp SaveResult
	err := c.do(ctx, http.MethodPost, "api/game/finalize", body, &resp)
	return resp, err
}

// Abandon discards the current session without saving.
func (c *Client) Abandon(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "api/game/abandon", nil, nil)
}

// Leaders returns the leader directory.
func (c *Client) Leaders(ctx context.Context) ([]Leader, error) {
	var resp []Leader
	err := c.do(ctx, http.MethodGet, "api/leaders", nil, &resp)
	return resp, err
}

// Players returns the player directory.
func (c *Client) Players(ctx context.Context) ([]Player, error) {
	var resp []Player
	err := c.do(ctx, http.MethodGet, "api/players", nil, &resp)
	return resp, err
}

// DraftLeaders draws a random leader pool. Size 0 uses the server default.
func (c *Client) DraftLeaders(ctx context.Context, size int) ([]Leader, error) {
	endpoint := "api/draft"
	if size > 0 {
		endpoint = fmt.Sprintf("%s?size=%d", endpoint, size)
	}
	var resp []Leader
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RecentGames returns the most recent finished games, newest first.
func (c *Client) RecentGames(ctx context.Context, limit int) ([]GameRecord, error) {
	endpoint := "api/recent-games"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []GameRecord
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SaveToSheet appends pre-built score and log rows to the record store.
func (c *Client) SaveToSheet(ctx context.Context, scoreHeaders []string, scoreRows [][]string, logHeaders []string, logRows [][]string) (SaveResult, error) {
	body := map[string]any{
		"scoreHeaders": scoreHeaders,
		"scoreRows":    scoreRows,
		"logHeaders":   logHeaders,
		"logRows":      logRows,
	}
	var resp SaveResult
	err := c.do(ctx, http.MethodPost, "api/save-to-sheet", body, &resp)
	return resp, err
}

// Events returns recent audit events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "api/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AddWebhook registers an event subscriber.
func (c *Client) AddWebhook(ctx context.Context, hookURL, secret string) (Webhook, error) {
	body := map[string]any{"url": hookURL}
	if secret != "" {
		body["secret"] = secret
	}
	var resp Webhook
	err := c.do(ctx, http.MethodPost, "api/webhooks", body, &resp)
	return resp, err
}

// ListWebhooks returns the registered subscribers.
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var resp []Webhook
	err := c.do(ctx, http.MethodGet, "api/webhooks", nil, &resp)
	return resp, err
}

// RemoveWebhook deletes a subscriber.
func (c *Client) RemoveWebhook(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("api/webhooks/%s", url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
