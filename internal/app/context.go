package app

import (
	"context"
	"database/sql"
	"path/filepath"

	"spiceledger/internal/config"
	"spiceledger/internal/engine"
	"spiceledger/internal/sheet"
)

// ResolveConfig loads spiceledger.yml from the workspace, falling back to the
// built-in defaults when the file does not exist.
func ResolveConfig(workspace string) (*config.Config, error) {
	return config.LoadOptional(workspace)
}

// NewStoreFactory wires the configured record-store backend. The local
// backend shares the workspace sqlite connection; the google backend builds a
// Sheets client per request so a spreadsheet id override takes effect.
func NewStoreFactory(workspace string, cfg *config.Config, conn *sql.DB) engine.StoreFactory {
	return func(ctx context.Context, spreadsheetID string) (sheet.ValueStore, error) {
		if cfg.Sheet.Backend == config.BackendLocal {
			return sheet.LocalStore{DB: conn}, nil
		}
		id := spreadsheetID
		if id == "" {
			id = cfg.Sheet.SpreadsheetID
		}
		credFile := cfg.Sheet.CredentialsFile
		if credFile != "" && !filepath.IsAbs(credFile) {
			credFile = filepath.Join(workspace, credFile)
		}
		return sheet.NewGoogleStore(ctx, id, sheet.Credentials{
			EnvVar: cfg.Sheet.CredentialsEnv,
			File:   credFile,
		})
	}
}
