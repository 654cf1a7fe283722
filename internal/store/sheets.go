package store

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jubot-ia/orderbot/internal/domain"
	"github.com/jubot-ia/orderbot/internal/identity"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Column layout of the order tab (A..N).
const (
	colID = iota
	colCreatedAt
	colName
	colPhone
	colItems
	colTotal
	colStatus
	colRegion
	colAddress
	colNotified
	colPayment
	colNotes
	colOrigin
	colTransportAddress
	columnCount
)

const (
	// DefaultSheetTab is the tab holding the orders.
	DefaultSheetTab = "STATUS DO PEDIDO"

	firstDataRow = 2
	lastDataRow  = 10000
)

var updatedRowPattern = regexp.MustCompile(`![A-Z]+(\d+)(:|$)`)

// SheetsLedger implements Ledger on top of a Google Sheets spreadsheet.
type SheetsLedger struct {
	svc           *sheets.Service
	spreadsheetID string
	tab           string
	now           func() time.Time

	mu      sync.Mutex
	sheetID *int64
}

// SheetsConfig configures the spreadsheet ledger.
type SheetsConfig struct {
	SpreadsheetID   string
	Tab             string
	CredentialsFile string
}

// NewSheets creates a spreadsheet-backed ledger. Extra client options are
// appended after the credentials option.
func NewSheets(ctx context.Context, cfg SheetsConfig, opts ...option.ClientOption) (*SheetsLedger, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	tab := cfg.Tab
	if tab == "" {
		tab = DefaultSheetTab
	}

	clientOpts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}

	return &SheetsLedger{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		tab:           tab,
		now:           time.Now,
	}, nil
}

// Ping verifies the spreadsheet is reachable with the configured credentials.
func (s *SheetsLedger) Ping(ctx context.Context) error {
	_, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	return nil
}

// Close is a no-op; the HTTP client needs no teardown.
func (s *SheetsLedger) Close() error { return nil }

// Append adds the order at the end of the tab and decorates its status cell.
func (s *SheetsLedger) Append(ctx context.Context, order *domain.OrderPayload) (int, error) {
	row := orderToRow(order, uuid.NewString(), domain.LedgerTimestamp(s.now()))

	resp, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rangeOf("A:N"), &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("append order row: %w", err)
	}

	var updatedRange string
	if resp.Updates != nil {
		updatedRange = resp.Updates.UpdatedRange
	}
	rowNumber, ok := parseUpdatedRow(updatedRange)
	if !ok {
		slog.Warn("Could not determine appended row", "updated_range", updatedRange)
		return 0, nil
	}

	// The dropdown is cosmetic; the order is already stored.
	if err := s.decorateStatusCell(ctx, rowNumber); err != nil {
		slog.Warn("Failed to apply status dropdown", "row", rowNumber, "error", err)
	}

	return rowNumber, nil
}

// FindLatestByPhone scans the tab and returns the last row whose phone matches.
func (s *SheetsLedger) FindLatestByPhone(ctx context.Context, phone string) (*domain.LedgerOrder, error) {
	if identity.Digits(phone) == "" {
		return nil, nil
	}

	rows, err := s.readRows(ctx)
	if err != nil {
		return nil, err
	}

	var found *domain.LedgerOrder
	for i := range rows {
		if identity.PhonesMatch(rows[i].Phone, phone) {
			found = &rows[i]
		}
	}
	return found, nil
}

// FindPendingNotifications returns rows whose status has not been announced yet.
func (s *SheetsLedger) FindPendingNotifications(ctx context.Context) ([]domain.LedgerOrder, error) {
	rows, err := s.readRows(ctx)
	if err != nil {
		return nil, err
	}
	return pendingFromRows(rows), nil
}

// MarkNotified writes status into the notified column of row.
func (s *SheetsLedger) MarkNotified(ctx context.Context, row int, status domain.Status) error {
	return s.writeCell(ctx, "J", row, string(status))
}

// UpdateStatus writes status into the status column of row.
func (s *SheetsLedger) UpdateStatus(ctx context.Context, row int, status domain.Status) error {
	return s.writeCell(ctx, "G", row, string(status))
}

func (s *SheetsLedger) writeCell(ctx context.Context, column string, row int, value string) error {
	if row < firstDataRow {
		return fmt.Errorf("row %d: %w", row, ErrRowNotFound)
	}
	cell := s.rangeOf(column + strconv.Itoa(row))
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, cell, &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", cell, err)
	}
	return nil
}

func (s *SheetsLedger) readRows(ctx context.Context) ([]domain.LedgerOrder, error) {
	readRange := s.rangeOf(fmt.Sprintf("A%d:N%d", firstDataRow, lastDataRow))
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read order rows: %w", err)
	}

	orders := make([]domain.LedgerOrder, 0, len(resp.Values))
	for i, values := range resp.Values {
		orders = append(orders, rowToOrder(firstDataRow+i, values))
	}
	return orders, nil
}

func (s *SheetsLedger) decorateStatusCell(ctx context.Context, rowNumber int) error {
	sheetID, err := s.tabSheetID(ctx)
	if err != nil {
		return err
	}

	statusCell := &sheets.GridRange{
		SheetId:          sheetID,
		StartRowIndex:    int64(rowNumber - 1),
		EndRowIndex:      int64(rowNumber),
		StartColumnIndex: colStatus,
		EndColumnIndex:   colStatus + 1,
	}

	options := make([]*sheets.ConditionValue, 0, len(domain.KnownStatuses))
	for _, st := range domain.KnownStatuses {
		options = append(options, &sheets.ConditionValue{UserEnteredValue: string(st)})
	}

	requests := []*sheets.Request{
		{
			// Copy the colors of the first data row's status cell.
			CopyPaste: &sheets.CopyPasteRequest{
				Source: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    firstDataRow - 1,
					EndRowIndex:      firstDataRow,
					StartColumnIndex: colStatus,
					EndColumnIndex:   colStatus + 1,
				},
				Destination:      statusCell,
				PasteType:        "PASTE_FORMAT",
				PasteOrientation: "NORMAL",
			},
		},
		{
			SetDataValidation: &sheets.SetDataValidationRequest{
				Range: statusCell,
				Rule: &sheets.DataValidationRule{
					Condition: &sheets.BooleanCondition{
						Type:   "ONE_OF_LIST",
						Values: options,
					},
					Strict:       true,
					ShowCustomUi: true,
				},
			},
		},
	}

	_, err = s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("batch update status cell: %w", err)
	}
	return nil
}

// tabSheetID resolves and caches the numeric ID of the order tab.
func (s *SheetsLedger) tabSheetID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sheetID != nil {
		return *s.sheetID, nil
	}

	spreadsheet, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range spreadsheet.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.tab {
			id := sh.Properties.SheetId
			s.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("tab %q not found in spreadsheet %s", s.tab, s.spreadsheetID)
}

func (s *SheetsLedger) rangeOf(cells string) string {
	return fmt.Sprintf("'%s'!%s", s.tab, cells)
}

func orderToRow(order *domain.OrderPayload, id, createdAt string) []interface{} {
	origin := order.Origin
	if origin == "" {
		origin = domain.DefaultOrigin
	}
	row := make([]interface{}, columnCount)
	row[colID] = id
	row[colCreatedAt] = createdAt
	row[colName] = order.CustomerName
	row[colPhone] = order.Phone
	row[colItems] = order.Items
	row[colTotal] = order.Total
	row[colStatus] = string(domain.StatusPending)
	row[colRegion] = order.Region
	row[colAddress] = order.Address
	row[colNotified] = ""
	row[colPayment] = order.PaymentMethod
	row[colNotes] = order.Notes
	row[colOrigin] = origin
	row[colTransportAddress] = order.TransportAddress
	return row
}

func rowToOrder(rowNumber int, values []interface{}) domain.LedgerOrder {
	cell := func(i int) string {
		if i >= len(values) || values[i] == nil {
			return ""
		}
		return fmt.Sprint(values[i])
	}
	return domain.LedgerOrder{
		Row:              rowNumber,
		ID:               cell(colID),
		CreatedAt:        cell(colCreatedAt),
		CustomerName:     cell(colName),
		Phone:            cell(colPhone),
		Items:            cell(colItems),
		Total:            cell(colTotal),
		Status:           cell(colStatus),
		Region:           cell(colRegion),
		Address:          cell(colAddress),
		NotifiedStatus:   cell(colNotified),
		PaymentMethod:    cell(colPayment),
		Notes:            cell(colNotes),
		Origin:           cell(colOrigin),
		TransportAddress: cell(colTransportAddress),
	}
}

// parseUpdatedRow extracts the row number from a range such as 'TAB'!A23:N23.
func parseUpdatedRow(updatedRange string) (int, bool) {
	m := updatedRowPattern.FindStringSubmatch(updatedRange)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

var _ Ledger = (*SheetsLedger)(nil)
