package database

import (
	"database/sql"
	"fmt"

	"github.com/cmorgan83/trade-history-service/internal/models"
)

// EventFilter narrows ListEvents output
type EventFilter struct {
	AccountID string
	Symbol    string
	EventType string
	Limit     int
	Offset    int
}

// ListEvents returns stored events newest first, with their source line
// references intact for audit
func (db *DB) ListEvents(filter EventFilter) ([]*models.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.conn.Query(`
		SELECT e.event_id, e.account_id, e.trade_date, e.settle_date, e.event_type,
		       COALESCE(e.side, ''), e.quantity, e.price, e.gross_amount,
		       COALESCE(e.commission, 0), COALESCE(e.fees, 0), COALESCE(e.currency, 'CAD'),
		       e.instrument_id, e.source_file_id, COALESCE(e.source_line_ref, ''),
		       COALESCE(e.notes, ''), e.created_at, COALESCE(i.symbol_norm, '')
		FROM events e
		LEFT JOIN instruments i ON i.instrument_id = e.instrument_id
		WHERE ($1 = '' OR e.account_id = $1)
		  AND ($2 = '' OR i.symbol_norm = $2)
		  AND ($3 = '' OR LOWER(e.event_type) = LOWER($3))
		ORDER BY e.trade_date DESC, e.event_id DESC
		LIMIT $4 OFFSET $5
	`, filter.AccountID, filter.Symbol, filter.EventType, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var ev models.Event
		var settle sql.NullTime
		var quantity, price, gross sql.NullFloat64
		var instrumentID sql.NullInt64
		if err := rows.Scan(&ev.EventID, &ev.AccountID, &ev.TradeDate, &settle,
			&ev.EventType, &ev.Side, &quantity, &price, &gross,
			&ev.Commission, &ev.Fees, &ev.Currency, &instrumentID,
			&ev.SourceFileID, &ev.SourceLineRef, &ev.Notes, &ev.CreatedAt,
			&ev.SymbolNorm); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if settle.Valid {
			ev.SettleDate = &settle.Time
		}
		if quantity.Valid {
			ev.Quantity = &quantity.Float64
		}
		if price.Valid {
			ev.Price = &price.Float64
		}
		if gross.Valid {
			ev.GrossAmount = &gross.Float64
		}
		if instrumentID.Valid {
			ev.InstrumentID = &instrumentID.Int64
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}
