// Package google mirrors rows into a Google Sheets spreadsheet, one tab per
// table. Row 1 of each tab holds the column names and column A holds the id.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"watchbook/internal/log"
	"watchbook/internal/sheets"
)

// Config selects the spreadsheet and credentials. Exactly one of
// CredentialsJSON or CredentialsFile is needed.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
	// TabPrefix is prepended to each table name, e.g. "wb_" gives "wb_orders".
	TabPrefix string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tabPrefix     string
	logger        *log.Logger
}

var _ sheets.RowStore = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.Nop()
	}
	raw, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	svc, err := gsheet.NewService(ctx, goption.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.Info("Google Sheets client ready", "spreadsheet", cfg.SpreadsheetID)
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		tabPrefix:     cfg.TabPrefix,
		logger:        logger.WithComponent(log.ComponentRemote),
	}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials")
	}
}

func (c *Client) tab(table sheets.Table) string {
	return c.tabPrefix + string(table)
}

// Upsert overwrites the row whose column A matches the id, or writes the
// first free row. The header row is written when the tab is empty.
func (c *Client) Upsert(ctx context.Context, table sheets.Table, row sheets.Row) error {
	if !sheets.ValidTable(table) {
		return fmt.Errorf("unknown table %q", table)
	}
	id := row.ID()
	if id == "" {
		return fmt.Errorf("upsert %s: missing id", table)
	}

	ids, err := c.idColumn(ctx, table)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		if err := c.writeRow(ctx, table, 1, headerValues(table)); err != nil {
			return fmt.Errorf("write header %s: %w", c.tab(table), err)
		}
		ids = []string{"id"}
	}

	rowNum := rowOf(ids, id)
	if rowNum == 0 {
		rowNum = len(ids) + 1
	}
	if err := c.writeRow(ctx, table, rowNum, row.Values(table)); err != nil {
		return fmt.Errorf("upsert %s %s: %w", table, id, err)
	}
	c.logger.Debug("Row upserted", log.FieldTable, string(table), log.FieldKey, id, "row", rowNum)
	return nil
}

// Delete clears the row holding id. Rows are not shifted, so a cleared row
// is reused by the next insert only when it is the last one.
func (c *Client) Delete(ctx context.Context, table sheets.Table, id string) error {
	if !sheets.ValidTable(table) {
		return fmt.Errorf("unknown table %q", table)
	}
	ids, err := c.idColumn(ctx, table)
	if err != nil {
		return err
	}
	rowNum := rowOf(ids, id)
	if rowNum == 0 {
		return nil
	}
	rng := fmt.Sprintf("%s!A%d:%s%d", c.tab(table), rowNum, lastColumn(table), rowNum)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

func (c *Client) List(ctx context.Context, table sheets.Table) ([]sheets.Row, error) {
	if !sheets.ValidTable(table) {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	rng := fmt.Sprintf("%s!A:%s", c.tab(table), lastColumn(table))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseRows(table, resp.Values), nil
}

func (c *Client) idColumn(ctx context.Context, table sheets.Table) ([]string, error) {
	rng := fmt.Sprintf("%s!A:A", c.tab(table))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	ids := make([]string, len(resp.Values))
	for i, r := range resp.Values {
		if len(r) > 0 {
			ids[i] = strings.TrimSpace(fmt.Sprint(r[0]))
		}
	}
	return ids, nil
}

func (c *Client) writeRow(ctx context.Context, table sheets.Table, rowNum int, values []any) error {
	rng := fmt.Sprintf("%s!A%d:%s%d", c.tab(table), rowNum, lastColumn(table), rowNum)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

// rowOf returns the 1-based sheet row holding id, skipping the header.
func rowOf(ids []string, id string) int {
	for i := 1; i < len(ids); i++ {
		if ids[i] == id {
			return i + 1
		}
	}
	return 0
}

func headerValues(table sheets.Table) []any {
	cols := sheets.Columns[table]
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = c
	}
	return out
}

// lastColumn returns the A1 letter of the table's last column.
func lastColumn(table sheets.Table) string {
	return columnLetter(len(sheets.Columns[table]))
}

func columnLetter(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// parseRows drops the header and cleared rows.
func parseRows(table sheets.Table, values [][]any) []sheets.Row {
	var out []sheets.Row
	for i, raw := range values {
		if i == 0 {
			continue
		}
		cells := make([]string, len(raw))
		for j, v := range raw {
			cells[j] = strings.TrimSpace(fmt.Sprint(v))
		}
		if len(cells) == 0 || cells[0] == "" {
			continue
		}
		out = append(out, sheets.RowFromValues(table, cells))
	}
	return out
}
