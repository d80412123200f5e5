package models

import "time"

// Account represents one brokerage account as seen on statements
type Account struct {
	AccountID    string `json:"account_id"`
	Institution  string `json:"institution"`
	AccountName  string `json:"account_name,omitempty"`
	AccountType  string `json:"account_type,omitempty"`
	BaseCurrency string `json:"base_currency,omitempty"`
	MaskedNumber string `json:"masked_number,omitempty"`
}

// Instrument identifies a tradable security or cash-equivalent.
// Distinct option contracts on the same underlying are distinct instruments:
// the natural key is (symbol_norm, asset_type, expiry, strike, put_call).
type Instrument struct {
	InstrumentID int64      `json:"instrument_id"`
	SymbolRaw    string     `json:"symbol_raw"`
	SymbolNorm   string     `json:"symbol_norm"`
	AssetType    string     `json:"asset_type"`
	OptionRoot   string     `json:"option_root,omitempty"`
	Strike       *float64   `json:"strike,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
	PutCall      string     `json:"put_call,omitempty"`
	Multiplier   int        `json:"multiplier"`
	Exchange     string     `json:"exchange,omitempty"`
	Sector       string     `json:"sector,omitempty"`
}

// Event is one immutable financial activity record extracted from a
// statement line. Quantity is stored as a magnitude; the sign is derived
// from the side code during replay. Price and gross amount are nullable
// because many statement lines carry only one of the two.
type Event struct {
	EventID       int64      `json:"event_id"`
	AccountID     string     `json:"account_id"`
	TradeDate     time.Time  `json:"trade_date"`
	SettleDate    *time.Time `json:"settle_date,omitempty"`
	EventType     string     `json:"event_type"`
	InstrumentID  *int64     `json:"instrument_id,omitempty"`
	Side          string     `json:"side,omitempty"`
	Quantity      *float64   `json:"quantity,omitempty"`
	Price         *float64   `json:"price,omitempty"`
	GrossAmount   *float64   `json:"gross_amount,omitempty"`
	Commission    float64    `json:"commission"`
	Fees          float64    `json:"fees"`
	Currency      string     `json:"currency"`
	SourceFileID  int64      `json:"source_file_id"`
	SourceLineRef string     `json:"source_line_ref,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`

	// SymbolNorm is joined in from instruments for API listings.
	SymbolNorm string `json:"symbol_norm,omitempty"`
}

// StatementFile tracks one ingested source document
type StatementFile struct {
	ID            int64      `json:"id"`
	Institution   string     `json:"institution"`
	AccountID     string     `json:"account_id,omitempty"`
	FilePath      string     `json:"file_path"`
	PeriodStart   *time.Time `json:"period_start,omitempty"`
	PeriodEnd     *time.Time `json:"period_end,omitempty"`
	FormatVersion string     `json:"format_version"`
	ParseStatus   string     `json:"parse_status"`
	ParseMessage  string     `json:"parse_message,omitempty"`
	Checksum      string     `json:"checksum"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
