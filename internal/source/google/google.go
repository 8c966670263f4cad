// Package google reads the fundraising sheet through the Sheets API.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fundboard/internal/csvparse"
	"fundboard/internal/source"
)

// Credentials selects how the client authenticates. A service account wins
// over an OAuth client/token pair. Each value may be given inline or as a
// file path.
type Credentials struct {
	ServiceAccountJSON string
	ServiceAccountFile string
	OAuthClientJSON    string
	OAuthClientFile    string
	OAuthTokenJSON     string
	OAuthTokenFile     string
}

type Config struct {
	SpreadsheetID string
	SheetName     string
	Timeout       time.Duration
	Credentials   Credentials
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	readRange     string
}

var _ source.RowSource = (*Client)(nil)

// indirection for tests
var jsonUnmarshal = json.Unmarshal

// New builds a read-only Sheets client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	ts, err := newTokenSource(ctx, cfg.Credentials)
	if err != nil {
		return nil, err
	}

	// Route token refreshes and API calls through the pooled client.
	base := source.NewPooledHTTPClient(cfg.Timeout)
	httpClient := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
	httpClient.Timeout = cfg.Timeout

	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets source ready",
		"spreadsheet_id", cfg.SpreadsheetID,
		"sheet", cfg.SheetName)
	return newWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

func newWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(spreadsheetID),
		readRange:     sheetRange(sheetName),
	}
}

func (c *Client) Name() string { return "sheets" }

// ReadRows returns the formatted cell values of the sheet, header first.
func (c *Client) ReadRows(ctx context.Context) ([]csvparse.Row, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.readRange).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet values %s: %w", c.readRange, err)
	}
	rows := valuesToRows(resp.Values)
	if len(rows) == 0 {
		return nil, csvparse.ErrEmptyPayload
	}
	return rows, nil
}

// newTokenSource resolves credentials to a read-only token source.
func newTokenSource(ctx context.Context, creds Credentials) (oauth2.TokenSource, error) {
	saJSON, err := inlineOrFile(creds.ServiceAccountJSON, creds.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	if len(saJSON) > 0 {
		slog.InfoContext(ctx, "Using service account credentials", "scope", gsheet.SpreadsheetsReadonlyScope)
		c, err := google.CredentialsFromJSON(ctx, saJSON, gsheet.SpreadsheetsReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("service account credentials: %w", err)
		}
		return c.TokenSource, nil
	}

	clientJSON, err := inlineOrFile(creds.OAuthClientJSON, creds.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if len(clientJSON) == 0 {
		return nil, errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON|FILE or GOOGLE_OAUTH_CLIENT_JSON|FILE)")
	}
	tokenJSON, err := inlineOrFile(creds.OAuthTokenJSON, creds.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if len(tokenJSON) == 0 {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	cfg, err := google.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := jsonUnmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	slog.InfoContext(ctx, "Using OAuth user credentials", "scope", gsheet.SpreadsheetsReadonlyScope)
	return cfg.TokenSource(ctx, &tok), nil
}

func inlineOrFile(inline, path string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if p := strings.TrimSpace(path); p != "" {
		return os.ReadFile(p)
	}
	return nil, nil
}
