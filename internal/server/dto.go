package server

import (
	"spiceledger/internal/domain"
	"spiceledger/internal/engine"
)

type storeQuery struct {
	SpreadsheetID string `query:"spreadsheetId"`
}

type recentQuery struct {
	SpreadsheetID string `query:"spreadsheetId"`
	Limit         int    `query:"limit" default:"2" minimum:"1" maximum:"50"`
}

type draftQuery struct {
	SpreadsheetID string `query:"spreadsheetId"`
	Size          int    `query:"size" minimum:"0" maximum:"30"`
}

type leadersResponse struct {
	Body []domain.Leader `json:"body"`
}

type playersResponse struct {
	Body []domain.Player `json:"body"`
}

type recentResponse struct {
	Body []domain.GameRecord `json:"body"`
}

type startRequest struct {
	Body struct {
		Players  []engine.SetupPlayer `json:"players" minItems:"1" maxItems:"4"`
		Tracking bool                 `json:"tracking"`
	} `json:"body"`
}

type actionRequest struct {
	Body struct {
		PlayerID int    `json:"playerId" minimum:"1"`
		Action   string `json:"action" minLength:"1"`
	} `json:"body"`
}

type finalizeRequest struct {
	Body struct {
		// Scores maps seat id ("1".."4") to a victory-point string.
		Scores        map[string]string `json:"scores,omitempty"`
		SpreadsheetID string            `json:"spreadsheetId,omitempty"`
	} `json:"body"`
}

type saveRequest struct {
	Body struct {
		SpreadsheetID string     `json:"spreadsheetId,omitempty"`
		ScoreHeaders  []string   `json:"scoreHeaders"`
		ScoreRows     [][]string `json:"scoreRows"`
		LogHeaders    []string   `json:"logHeaders"`
		LogRows       [][]string `json:"logRows"`
	} `json:"body"`
}

type finalizeBody struct {
	GameID  int    `json:"gameId"`
	Message string `json:"message"`
}

type finalizeResponse struct {
	Body finalizeBody `json:"body"`
}

type messageResponse struct {
	Body map[string]string `json:"body"`
}

// stateBody is the tracker state as served: the undo ledger collapses to its
// depth, snapshots stay internal.
type stateBody struct {
	Mode      string         `json:"mode"`
	Session   domain.Session `json:"session"`
	UndoDepth int            `json:"undoDepth"`
}

type stateResponse struct {
	Body stateBody `json:"body"`
}

func newStateResponse(st engine.State) *stateResponse {
	return &stateResponse{Body: stateBody{
		Mode:      st.Mode,
		Session:   st.Session,
		UndoDepth: st.Undo.Len(),
	}}
}
