package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"spiceledger/internal/domain"
	"spiceledger/internal/engine"
	"spiceledger/internal/repo"
	"spiceledger/internal/sheet"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"rule_violation"`
	Message string         `json:"message" example:"no agents remaining"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the tracker API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Spiceledger API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDirectories(group, cfg.Engine)
	registerGame(group, cfg.Engine)
	registerSave(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerWebhooks(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var rule domain.RuleError
	if errors.As(err, &rule) {
		return newAPIError(http.StatusUnprocessableEntity, "rule_violation", rule.Reason, nil)
	}
	if errors.Is(err, engine.ErrNoGame) {
		return newAPIError(http.StatusConflict, "no_game", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, sheet.ErrNoCredentials) {
		return newAPIError(http.StatusInternalServerError, "missing_credentials", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already in progress"):
		return newAPIError(http.StatusConflict, "game_in_progress", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "must"),
		strings.Contains(lowered, "duplicate"), strings.Contains(lowered, "has no"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

// handleStoreError is handleError for record-store paths: any failure that is
// not a credentials problem or a session-state problem surfaces as
// sheet_error so callers can tell a setup fault from a store fault.
func handleStoreError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, sheet.ErrNoCredentials) {
		return newAPIError(http.StatusInternalServerError, "missing_credentials", err.Error(), nil)
	}
	var rule domain.RuleError
	if errors.Is(err, engine.ErrNoGame) || errors.As(err, &rule) {
		return handleError(err)
	}
	return newAPIError(http.StatusInternalServerError, "sheet_error", "record store error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "rule_violation"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Spiceledger API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDirectories(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-leaders",
		Method:      http.MethodGet,
		Path:        "/leaders",
		Summary:     "Leader directory (seeds defaults on first use)",
	}, func(ctx context.Context, input *storeQuery) (*leadersResponse, error) {
		leaders, err := e.Leaders(ctx, input.SpreadsheetID)
		if err != nil {
			return nil, handleStoreError(err)
		}
		return &leadersResponse{Body: leaders}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-players",
		Method:      http.MethodGet,
		Path:        "/players",
		Summary:     "Player directory (seeds defaults on first use)",
	}, func(ctx context.Context, input *storeQuery) (*playersResponse, error) {
		players, err := e.Players(ctx, input.SpreadsheetID)
		if err != nil {
			return nil, handleStoreError(err)
		}
		return &playersResponse{Body: players}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recent-games",
		Method:      http.MethodGet,
		Path:        "/recent-games",
		Summary:     "Most recent finalized games, newest first",
	}, func(ctx context.Context, input *recentQuery) (*recentResponse, error) {
		games, err := e.RecentGames(ctx, input.SpreadsheetID, input.Limit)
		if err != nil {
			return nil, handleStoreError(err)
		}
		if games == nil {
			games = []domain.GameRecord{}
		}
		return &recentResponse{Body: games}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "draft-leaders",
		Method:      http.MethodGet,
		Path:        "/draft",
		Summary:     "Random leader draft pool",
	}, func(ctx context.Context, input *draftQuery) (*leadersResponse, error) {
		pool, err := e.DraftLeaders(ctx, input.SpreadsheetID, input.Size)
		if err != nil {
			return nil, handleStoreError(err)
		}
		return &leadersResponse{Body: pool}, nil
	})
}

func registerGame(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "game-state",
		Method:      http.MethodGet,
		Path:        "/game",
		Summary:     "Current tracker state",
	}, func(ctx context.Context, _ *struct{}) (*stateResponse, error) {
		st, err := e.LoadState(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return newStateResponse(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "game-start",
		Method:      http.MethodPost,
		Path:        "/game/start",
		Summary:     "Start a new game session",
	}, func(ctx context.Context, input *startRequest) (*stateResponse, error) {
		st, err := e.StartGame(ctx, engine.StartOptions{
			Players:  input.Body.Players,
			Tracking: input.Body.Tracking,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return newStateResponse(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "game-action",
		Method:      http.MethodPost,
		Path:        "/game/action",
		Summary:     "Record a board action for a player",
	}, func(ctx context.Context, input *actionRequest) (*stateResponse, error) {
		st, err := e.Action(ctx, input.Body.PlayerID, input.Body.Action)
		if err != nil {
			return nil, handleError(err)
		}
		return newStateResponse(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "game-pass",
		Method:      http.MethodPost,
		Path:        "/game/pass",
		Summary:     "Rotate the turn pointer without spending an agent",
	}, func(ctx context.Context, _ *struct{}) (*stateResponse, error) {
		st, err := e.Pass(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return newStateResponse(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "game-undo",
		Method:      http.MethodPost,
		Path:        "/game/undo",
		Summary:     "Restore the previous snapshot (no-op when none exist)",
	}, func(ctx context.Context, _ *struct{}) (*stateResponse, error) {
		st, err := e.Undo(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return newStateResponse(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "game-end",
		Method:      http.MethodPost,
		Path:        "/game/end",
		Summary:     "Move the session to scoring",
	}, func(ctx context.Context, _ *struct{}) (*stateResponse, error) {
		st, err := e.EndGame(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return newStateResponse(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "game-finalize",
		Method:      http.MethodPost,
		Path:        "/game/finalize",
		Summary:     "Write scores and logs to the record store and clear the session",
	}, func(ctx context.Context, input *finalizeRequest) (*finalizeResponse, error) {
		scores := make(map[int]string, len(input.Body.Scores))
		for seat, vp := range input.Body.Scores {
			id, err := strconv.Atoi(seat)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "score keys must be seat ids", nil)
			}
			scores[id] = vp
		}
		gameID, err := e.Finalize(ctx, engine.FinalizeOptions{
			Scores:        scores,
			SpreadsheetID: input.Body.SpreadsheetID,
		})
		if err != nil {
			return nil, handleStoreError(err)
		}
		return &finalizeResponse{Body: finalizeBody{GameID: gameID, Message: "Saved to record store successfully"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "game-abandon",
		Method:      http.MethodPost,
		Path:        "/game/abandon",
		Summary:     "Drop the session without saving",
	}, func(ctx context.Context, _ *struct{}) (*messageResponse, error) {
		if err := e.Abandon(ctx); err != nil {
			return nil, handleError(err)
		}
		return &messageResponse{Body: map[string]string{"status": "abandoned"}}, nil
	})
}

func registerSave(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "save-to-sheet",
		Method:      http.MethodPost,
		Path:        "/save-to-sheet",
		Summary:     "Append prepared score and log batches to the record store",
		Description: "The server assigns the real game id, overwriting column 0 of every row. An empty log batch is a valid no-op.",
	}, func(ctx context.Context, input *saveRequest) (*finalizeResponse, error) {
		b := input.Body
		if len(b.ScoreHeaders) == 0 || len(b.ScoreRows) == 0 || len(b.LogHeaders) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "missing required fields (scoreHeaders, scoreRows, logHeaders)", nil)
		}
		gameID, err := e.SaveToSheet(ctx, b.SpreadsheetID, b.ScoreHeaders, b.ScoreRows, b.LogHeaders, b.LogRows)
		if err != nil {
			return nil, handleStoreError(err)
		}
		return &finalizeResponse{Body: finalizeBody{GameID: gameID, Message: "Saved to record store successfully"}}, nil
	})
}

func registerWebhooks(api huma.API, e engine.Engine) {
	type createWebhookRequest struct {
		Body struct {
			URL    string `json:"url" format:"uri"`
			Secret string `json:"secret,omitempty"`
		} `json:"body"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "create-webhook",
		Method:      http.MethodPost,
		Path:        "/webhooks",
		Summary:     "Subscribe a URL to audit events",
	}, func(ctx context.Context, input *createWebhookRequest) (*struct {
		Body domain.Webhook `json:"body"`
	}, error) {
		w := domain.Webhook{
			ID:        uuid.New().String(),
			URL:       input.Body.URL,
			Secret:    input.Body.Secret,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := e.Repo.InsertWebhook(ctx, w); err != nil {
			return nil, handleError(err)
		}
		// Start from the present; history is not replayed to new subscribers.
		latest, err := e.Repo.LatestEventID(ctx)
		if err == nil {
			err = e.Repo.SetWebhookCursor(ctx, w.ID, latest)
		}
		if err != nil {
			// Without a cursor the subscriber would replay the entire
			// history, so roll the registration back instead.
			if derr := e.Repo.DeleteWebhook(ctx, w.ID); derr != nil {
				log.Printf("webhook %s: rollback after cursor init failure: %v", w.ID, derr)
			}
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Webhook `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-webhooks",
		Method:      http.MethodGet,
		Path:        "/webhooks",
		Summary:     "List subscribed webhooks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Webhook `json:"body"`
	}, error) {
		hooks, err := e.Repo.ListWebhooks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if hooks == nil {
			hooks = []domain.Webhook{}
		}
		return &struct {
			Body []domain.Webhook `json:"body"`
		}{Body: hooks}, nil
	})

	type webhookPath struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "delete-webhook",
		Method:      http.MethodDelete,
		Path:        "/webhooks/{id}",
		Summary:     "Remove a webhook subscription",
	}, func(ctx context.Context, input *webhookPath) (*messageResponse, error) {
		if err := e.Repo.DeleteWebhook(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &messageResponse{Body: map[string]string{"status": "deleted"}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	type eventsQuery struct {
		Limit int    `query:"limit" default:"50"`
		Type  string `query:"type"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Audit trail, newest first",
	}, func(ctx context.Context, input *eventsQuery) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		evts, err := e.Repo.LatestEvents(ctx, input.Limit, input.Type, "")
		if err != nil {
			return nil, handleError(err)
		}
		if evts == nil {
			evts = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evts}, nil
	})
}
