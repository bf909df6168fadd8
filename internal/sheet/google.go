package sheet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

// Credentials locates the service-account key: inline JSON in an env var
// (production) or a key file (development). Missing both is a configuration
// failure for store-touching requests, not a startup failure.
type Credentials struct {
	EnvVar string
	File   string
}

func (c Credentials) clientOption() (option.ClientOption, error) {
	if c.EnvVar != "" {
		if raw := os.Getenv(c.EnvVar); raw != "" {
			if !json.Valid([]byte(raw)) {
				return nil, fmt.Errorf("credentials env %s does not hold valid JSON", c.EnvVar)
			}
			return option.WithCredentialsJSON([]byte(raw)), nil
		}
	}
	if c.File != "" {
		if _, err := os.Stat(c.File); err == nil {
			return option.WithCredentialsFile(c.File), nil
		}
	}
	return nil, ErrNoCredentials
}

// GoogleStore is the production ValueStore backed by the Sheets API.
type GoogleStore struct {
	svc           *sheets.Service
	spreadsheetID string
}

func NewGoogleStore(ctx context.Context, spreadsheetID string, creds Credentials) (*GoogleStore, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	opt, err := creds.clientOption()
	if err != nil {
		return nil, err
	}
	svc, err := sheets.NewService(ctx, opt, option.WithScopes(sheets.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &GoogleStore{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (s *GoogleStore) Tabs(ctx context.Context) ([]string, error) {
	meta, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(meta.Sheets))
	for _, sh := range meta.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return titles, nil
}

func (s *GoogleStore) AddTabs(ctx context.Context, names []string) error {
	reqs := make([]*sheets.Request, 0, len(names))
	for _, n := range names {
		reqs = append(reqs, &sheets.Request{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: n},
			},
		})
	}
	if len(reqs) == 0 {
		return nil
	}
	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	return err
}

func (s *GoogleStore) Read(ctx context.Context, rng string) ([][]string, error) {
	vr, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return fromValues(vr.Values), nil
}

func (s *GoogleStore) Append(ctx context.Context, tab string, rows [][]string) error {
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, tab, &sheets.ValueRange{
		Values: toValues(rows),
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

func (s *GoogleStore) Update(ctx context.Context, rng string, rows [][]string) error {
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &sheets.ValueRange{
		Values: toValues(rows),
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

func toValues(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, c := range row {
			cells[j] = c
		}
		out[i] = cells
	}
	return out
}

func fromValues(values [][]any) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, c := range row {
			cells[j] = fmt.Sprint(c)
		}
		out[i] = cells
	}
	return out
}
