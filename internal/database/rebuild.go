package database

import (
	"database/sql"
	"fmt"

	"github.com/cmorgan83/trade-history-service/internal/ledger"
	"github.com/cmorgan83/trade-history-service/internal/models"
)

// RebuildDerived wipes and recomputes every derived table (transfer
// links, lot closures, position state) from the event store, inside one
// transaction. Readers never observe a half-rebuilt state: either the
// whole replacement commits or the rollback leaves the previous derived
// state untouched. Running it twice on unchanged events yields identical
// tables.
func (db *DB) RebuildDerived(transferWindowDays int) (*models.RebuildReport, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	legs, err := loadTransferLegs(tx)
	if err != nil {
		return nil, err
	}
	links := ledger.LinkTransfers(legs, transferWindowDays)

	if _, err := tx.Exec(`DELETE FROM transfers`); err != nil {
		return nil, fmt.Errorf("failed to clear transfer links: %w", err)
	}
	for _, link := range links {
		_, err := tx.Exec(`
			INSERT INTO transfers (from_event_id, to_event_id, transfer_group_key, continuity_mode)
			VALUES ($1, $2, $3, $4)
		`, link.FromEventID, link.ToEventID, link.GroupKey, link.ContinuityMode)
		if err != nil {
			return nil, fmt.Errorf("failed to insert transfer link %s: %w", link.GroupKey, err)
		}
	}

	events, err := loadReplayEvents(tx)
	if err != nil {
		return nil, err
	}

	linkByIn := make(map[int64]int64, len(links))
	for _, link := range links {
		linkByIn[link.ToEventID] = link.FromEventID
	}
	result := ledger.Replay(events, linkByIn)

	if _, err := tx.Exec(`DELETE FROM lot_closures`); err != nil {
		return nil, fmt.Errorf("failed to clear lot closures: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM position_state`); err != nil {
		return nil, fmt.Errorf("failed to clear position state: %w", err)
	}

	for _, lot := range result.Closures {
		_, err := tx.Exec(`
			INSERT INTO lot_closures (
				close_event_id, instrument_id, account_id, quantity_closed,
				proceeds_native, cost_native, realized_pl_native, currency, method
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, lot.CloseEventID, lot.InstrumentID, lot.AccountID, lot.QuantityClosed,
			lot.Proceeds, lot.Cost, lot.RealizedPL, lot.Currency, lot.Method)
		if err != nil {
			return nil, fmt.Errorf("failed to insert lot closure for event %d: %w", lot.CloseEventID, err)
		}
	}

	for _, pos := range result.Positions {
		_, err := tx.Exec(`
			INSERT INTO position_state (
				account_id, instrument_id, currency, quantity, cost_total_native,
				avg_cost_native, as_of_event_id, as_of_trade_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, pos.AccountID, pos.InstrumentID, pos.Currency, pos.Quantity, pos.CostTotal,
			nullableFloat(pos.AvgCost), pos.AsOfEventID, pos.AsOfDate)
		if err != nil {
			return nil, fmt.Errorf("failed to insert position for account %s: %w", pos.AccountID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rebuild transaction: %w", err)
	}

	return &models.RebuildReport{
		ProcessedEvents: result.Processed,
		ClosedLotRows:   len(result.Closures),
		OpenPositions:   len(result.Positions),
		TransfersLinked: len(links),
	}, nil
}

// loadTransferLegs reads every transfer event eligible for linking:
// non-null instrument and nonzero quantity magnitude
func loadTransferLegs(tx *sql.Tx) ([]ledger.TransferLeg, error) {
	rows, err := tx.Query(`
		SELECT e.event_id, e.account_id, e.trade_date, COALESCE(e.side, ''),
		       ABS(COALESCE(e.quantity, 0)), COALESCE(e.currency, 'CAD'),
		       COALESCE(i.symbol_norm, 'CASH')
		FROM events e
		LEFT JOIN instruments i ON i.instrument_id = e.instrument_id
		WHERE e.instrument_id IS NOT NULL
		  AND ABS(COALESCE(e.quantity, 0)) > 0
		  AND (LOWER(COALESCE(e.event_type, '')) = 'transfer'
		       OR UPPER(COALESCE(e.side, '')) IN ('TRANSFER_IN', 'TRANSFER_OUT'))
		ORDER BY e.trade_date, e.event_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load transfer legs: %w", err)
	}
	defer rows.Close()

	var legs []ledger.TransferLeg
	for rows.Next() {
		var leg ledger.TransferLeg
		var side string
		if err := rows.Scan(&leg.EventID, &leg.AccountID, &leg.TradeDate, &side,
			&leg.QuantityAbs, &leg.Currency, &leg.SymbolNorm); err != nil {
			return nil, fmt.Errorf("failed to scan transfer leg: %w", err)
		}
		leg.Side = ledger.ParseSide(side)
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}

// loadReplayEvents reads every trade and transfer event with an
// instrument, in insertion-id order; the engine applies the full replay
// ordering itself
func loadReplayEvents(tx *sql.Tx) ([]models.Event, error) {
	rows, err := tx.Query(`
		SELECT e.event_id, e.account_id, e.trade_date, e.event_type,
		       COALESCE(e.side, ''), e.quantity, e.price, e.gross_amount,
		       COALESCE(e.commission, 0), COALESCE(e.fees, 0),
		       COALESCE(e.currency, 'CAD'), e.instrument_id
		FROM events e
		WHERE e.instrument_id IS NOT NULL
		  AND LOWER(COALESCE(e.event_type, '')) IN ('trade', 'transfer')
		ORDER BY e.trade_date, e.event_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load replay events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		var quantity, price, gross sql.NullFloat64
		var instrumentID sql.NullInt64
		if err := rows.Scan(&ev.EventID, &ev.AccountID, &ev.TradeDate, &ev.EventType,
			&ev.Side, &quantity, &price, &gross, &ev.Commission, &ev.Fees,
			&ev.Currency, &instrumentID); err != nil {
			return nil, fmt.Errorf("failed to scan replay event: %w", err)
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
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
