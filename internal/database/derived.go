package database

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cmorgan83/trade-history-service/internal/models"
)

// ListPositions returns every open position row. Absence of a bucket
// means no open position; flat buckets are never stored.
func (db *DB) ListPositions() ([]*models.PositionRow, error) {
	rows, err := db.conn.Query(`
		SELECT p.account_id, p.instrument_id, p.currency, p.quantity,
		       p.cost_total_native, p.avg_cost_native, p.as_of_event_id,
		       p.as_of_trade_date, i.symbol_norm
		FROM position_state p
		JOIN instruments i ON i.instrument_id = p.instrument_id
		ORDER BY p.account_id, i.symbol_norm, p.currency
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.PositionRow
	for rows.Next() {
		var p models.PositionRow
		var avgCost sql.NullFloat64
		if err := rows.Scan(&p.AccountID, &p.InstrumentID, &p.Currency, &p.Quantity,
			&p.CostTotal, &avgCost, &p.AsOfEventID, &p.AsOfDate, &p.SymbolNorm); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		if avgCost.Valid {
			p.AvgCost = &avgCost.Float64
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

// ListLotClosures returns realized-gain records, optionally filtered by
// account and normalized symbol, newest close event first
func (db *DB) ListLotClosures(accountID, symbol string, limit, offset int) ([]*models.LotClosure, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.conn.Query(`
		SELECT l.id, l.close_event_id, l.instrument_id, l.account_id,
		       l.quantity_closed, l.proceeds_native, l.cost_native,
		       l.realized_pl_native, l.currency, l.method, l.created_at,
		       i.symbol_norm
		FROM lot_closures l
		JOIN instruments i ON i.instrument_id = l.instrument_id
		WHERE ($1 = '' OR l.account_id = $1)
		  AND ($2 = '' OR i.symbol_norm = $2)
		ORDER BY l.close_event_id DESC, l.id DESC
		LIMIT $3 OFFSET $4
	`, accountID, symbol, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list lot closures: %w", err)
	}
	defer rows.Close()

	var lots []*models.LotClosure
	for rows.Next() {
		var l models.LotClosure
		if err := rows.Scan(&l.ID, &l.CloseEventID, &l.InstrumentID, &l.AccountID,
			&l.QuantityClosed, &l.Proceeds, &l.Cost, &l.RealizedPL,
			&l.Currency, &l.Method, &l.CreatedAt, &l.SymbolNorm); err != nil {
			return nil, fmt.Errorf("failed to scan lot closure: %w", err)
		}
		lots = append(lots, &l)
	}
	return lots, rows.Err()
}

// RealizedSummary aggregates lot closures per currency. Totals are
// rendered as fixed two-decimal strings so report consumers never see
// float artifacts.
func (db *DB) RealizedSummary(accountID string) ([]*models.RealizedSummary, error) {
	rows, err := db.conn.Query(`
		SELECT currency, COUNT(*), SUM(proceeds_native), SUM(cost_native), SUM(realized_pl_native)
		FROM lot_closures
		WHERE ($1 = '' OR account_id = $1)
		GROUP BY currency
		ORDER BY currency
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize lot closures: %w", err)
	}
	defer rows.Close()

	var summaries []*models.RealizedSummary
	for rows.Next() {
		var s models.RealizedSummary
		var proceeds, cost, realized float64
		if err := rows.Scan(&s.Currency, &s.Lots, &proceeds, &cost, &realized); err != nil {
			return nil, fmt.Errorf("failed to scan realized summary: %w", err)
		}
		s.Proceeds = decimal.NewFromFloat(proceeds).Round(2).StringFixed(2)
		s.Cost = decimal.NewFromFloat(cost).Round(2).StringFixed(2)
		s.RealizedPL = decimal.NewFromFloat(realized).Round(2).StringFixed(2)
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}

// ListTransfers returns the matched transfer links for audit
func (db *DB) ListTransfers() ([]*models.TransferLink, error) {
	rows, err := db.conn.Query(`
		SELECT transfer_id, from_event_id, to_event_id, transfer_group_key,
		       continuity_mode, created_at
		FROM transfers
		ORDER BY transfer_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var links []*models.TransferLink
	for rows.Next() {
		var l models.TransferLink
		if err := rows.Scan(&l.TransferID, &l.FromEventID, &l.ToEventID,
			&l.GroupKey, &l.ContinuityMode, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer link: %w", err)
		}
		links = append(links, &l)
	}
	return links, rows.Err()
}
