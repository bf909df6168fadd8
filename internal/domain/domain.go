package domain

// Reserved action labels. Everything else is an ordinary board action.
const (
	ActionReveal      = "Reveal Turn"
	ActionSwordmaster = "Swordmaster"
)

// Default per-round agent counts; a session may override via its caps.
const (
	DefaultAgentCap       = 2
	DefaultSwordmasterCap = 3
)

// Phase values. Only the agent phase exists today; the field is kept so a
// future combat/reveal phase does not need a state-blob migration.
const PhaseAgent = "Agent"

type PlayerState struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Leader      string `json:"leader"`
	Agents      int    `json:"agents"`
	Swordmaster bool   `json:"swordmaster"`
	Revealed    bool   `json:"revealed"`
	FirstPlayer bool   `json:"is_first_player"`
}

type ActionEntry struct {
	Round      int    `json:"round"`
	PlayerName string `json:"player_name"`
	Action     string `json:"action"`
	Timestamp  string `json:"timestamp" format:"date-time"`
}

type Session struct {
	ID             string        `json:"id"`
	Players        []PlayerState `json:"players"`
	Round          int           `json:"round"`
	Phase          string        `json:"phase"`
	Turn           int           `json:"turn"`
	Tracking       bool          `json:"tracking"`
	History        []ActionEntry `json:"history"`
	StartedAt      string        `json:"started_at" format:"date-time"`
	AgentCap       int           `json:"agent_cap,omitempty"`
	SwordmasterCap int           `json:"swordmaster_cap,omitempty"`
}

// Leader is a row of the leader directory tab.
type Leader struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	House   string `json:"house,omitempty"`
	Game    string `json:"game,omitempty"`
	Passive string `json:"passive,omitempty"`
	Signet  string `json:"signet,omitempty"`
}

// Player is a row of the player directory tab.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RecordLine is one player's result inside a stored game record. Refs may be
// directory ids or legacy display names; they are resolved on display only.
type RecordLine struct {
	PlayerRef string `json:"playerId"`
	LeaderRef string `json:"leaderId"`
	VP        string `json:"vp"`
}

// Event is one audit-trail row. The trail is local-only and append-only; it
// survives undo, abandon and finalize.
type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts"`
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Player    string `json:"player,omitempty"`
	Payload   string `json:"payload,omitempty"`
}

// Webhook is a registered event subscriber. Deliveries carry batches of
// audit events past the subscriber's cursor.
type Webhook struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Secret    string `json:"-"`
	CreatedAt string `json:"created_at"`
}

// GameRecord is a finalized game read back from the record store.
type GameRecord struct {
	ID      string       `json:"id"`
	Date    string       `json:"date"`
	Players []RecordLine `json:"players"`
}
