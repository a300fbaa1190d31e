package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"paghetta/internal/core"
	ports "paghetta/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.MirrorWriter = (*Client)(nil)

type Options struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountFile string
	ServiceAccountJSON string
}

// NewClient creates a Sheets client authenticated with a service account.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}

	sheetName := strings.TrimSpace(opts.SheetName)
	if sheetName == "" {
		sheetName = "Movimenti"
	}

	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	var credentialsJSON []byte
	var err error

	switch {
	case strings.TrimSpace(opts.ServiceAccountJSON) != "":
		credentialsJSON = []byte(opts.ServiceAccountJSON)
	case strings.TrimSpace(opts.ServiceAccountFile) != "":
		credentialsJSON, err = os.ReadFile(opts.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

// Append writes one ledger record as a spreadsheet row and returns the
// updated range as the row reference.
func (c *Client) Append(ctx context.Context, tx core.Transaction, childName string) (string, error) {
	row := []any{
		tx.CreatedAt.Format("2006-01-02"),
		childName,
		string(tx.Kind),
		tx.Amount.String(),
		tx.Description,
		tx.Category,
		string(tx.Status),
		tx.ID,
	}

	vr := &gsheet.ValueRange{Values: [][]any{row}}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, c.sheetName+"!A:H", vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append row: %w", err)
	}

	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return c.sheetName, nil
}
