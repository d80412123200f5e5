package models

import "time"

// TransferLink pairs one TRANSFER_OUT event with one TRANSFER_IN event.
// Links are fully derived and are wiped and recomputed on every rebuild.
type TransferLink struct {
	TransferID     int64     `json:"transfer_id,omitempty"`
	FromEventID    int64     `json:"from_event_id"`
	ToEventID      int64     `json:"to_event_id"`
	GroupKey       string    `json:"transfer_group_key"`
	ContinuityMode string    `json:"continuity_mode"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}

// LotClosure records the realized gain/loss produced when a position is
// reduced or reversed. QuantityClosed is always a positive magnitude.
type LotClosure struct {
	ID             int64     `json:"id,omitempty"`
	CloseEventID   int64     `json:"close_event_id"`
	InstrumentID   int64     `json:"instrument_id"`
	AccountID      string    `json:"account_id"`
	QuantityClosed float64   `json:"quantity_closed"`
	Proceeds       float64   `json:"proceeds_native"`
	Cost           float64   `json:"cost_native"`
	RealizedPL     float64   `json:"realized_pl_native"`
	Currency       string    `json:"currency"`
	Method         string    `json:"method"`
	CreatedAt      time.Time `json:"created_at,omitempty"`

	// SymbolNorm is joined in from instruments for API listings.
	SymbolNorm string `json:"symbol_norm,omitempty"`
}

// PositionRow is the open holding for one (account, instrument, currency)
// bucket. Flat buckets (quantity within 1e-9 of zero) are never persisted.
// AvgCost is nil when the quantity is zero.
type PositionRow struct {
	AccountID   string    `json:"account_id"`
	InstrumentID int64    `json:"instrument_id"`
	Currency    string    `json:"currency"`
	Quantity    float64   `json:"quantity"`
	CostTotal   float64   `json:"cost_total_native"`
	AvgCost     *float64  `json:"avg_cost_native,omitempty"`
	AsOfEventID int64     `json:"as_of_event_id"`
	AsOfDate    time.Time `json:"as_of_trade_date"`

	SymbolNorm string `json:"symbol_norm,omitempty"`
}

// RebuildReport summarizes one wipe-and-replay pass over the event store
type RebuildReport struct {
	ProcessedEvents int `json:"processed_events"`
	ClosedLotRows   int `json:"closed_lot_rows"`
	OpenPositions   int `json:"open_positions"`
	TransfersLinked int `json:"transfers_linked"`
}

// RealizedSummary aggregates lot closures per currency for reporting
type RealizedSummary struct {
	Currency   string `json:"currency"`
	Lots       int    `json:"lots"`
	Proceeds   string `json:"proceeds"`
	Cost       string `json:"cost"`
	RealizedPL string `json:"realized_pl"`
}
