package models

// StatementBatch is the normalized output of the upstream statement
// extraction pipeline for a single source file. Dates travel as ISO
// strings and money fields as decimal strings so the payload is exact
// regardless of which language produced it.
type StatementBatch struct {
	Institution   string           `json:"institution"`
	FilePath      string           `json:"file_path"`
	FormatVersion string           `json:"format_version"`
	Checksum      string           `json:"checksum"`
	PeriodStart   string           `json:"period_start,omitempty"`
	PeriodEnd     string           `json:"period_end,omitempty"`
	ParseMessage  string           `json:"parse_message,omitempty"`
	Accounts      []BatchAccount   `json:"accounts"`
	Events        []BatchEvent     `json:"events"`
	Snapshots     []BatchSnapshot  `json:"snapshots,omitempty"`
	Issues        []BatchIssue     `json:"issues,omitempty"`
	Force         bool             `json:"force,omitempty"`
}

// BatchAccount mirrors Account at the ingestion boundary
type BatchAccount struct {
	AccountID    string `json:"account_id"`
	Institution  string `json:"institution"`
	AccountName  string `json:"account_name,omitempty"`
	AccountType  string `json:"account_type,omitempty"`
	BaseCurrency string `json:"base_currency,omitempty"`
	MaskedNumber string `json:"masked_number,omitempty"`
}

// BatchInstrument mirrors Instrument at the ingestion boundary
type BatchInstrument struct {
	SymbolRaw  string `json:"symbol_raw"`
	SymbolNorm string `json:"symbol_norm"`
	AssetType  string `json:"asset_type"`
	OptionRoot string `json:"option_root,omitempty"`
	Strike     string `json:"strike,omitempty"`
	Expiry     string `json:"expiry,omitempty"`
	PutCall    string `json:"put_call,omitempty"`
	Multiplier int    `json:"multiplier,omitempty"`
	Exchange   string `json:"exchange,omitempty"`
	Sector     string `json:"sector,omitempty"`
}

// BatchEvent is one normalized statement line. Quantity, price, gross
// amount, commission and fees are decimal strings; empty means null.
type BatchEvent struct {
	AccountID     string           `json:"account_id"`
	TradeDate     string           `json:"trade_date"`
	SettleDate    string           `json:"settle_date,omitempty"`
	EventType     string           `json:"event_type"`
	Side          string           `json:"side,omitempty"`
	Quantity      string           `json:"quantity,omitempty"`
	Price         string           `json:"price,omitempty"`
	GrossAmount   string           `json:"gross_amount,omitempty"`
	Commission    string           `json:"commission,omitempty"`
	Fees          string           `json:"fees,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	Instrument    *BatchInstrument `json:"instrument,omitempty"`
	SourceLineRef string           `json:"source_line_ref,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

// BatchSnapshot is a balance or metric the statement itself reports,
// kept for reconciliation against reconstructed positions.
type BatchSnapshot struct {
	AccountID     string `json:"account_id"`
	MetricCode    string `json:"metric_code"`
	Value         string `json:"value_native"`
	Currency      string `json:"currency,omitempty"`
	SnapshotDate  string `json:"snapshot_date,omitempty"`
	SourceLineRef string `json:"source_line_ref,omitempty"`
	RawLine       string `json:"raw_line,omitempty"`
}

// BatchIssue is a source line the extractor could not parse
type BatchIssue struct {
	PageNumber int    `json:"page_number,omitempty"`
	RawLine    string `json:"raw_line"`
	Reason     string `json:"reason"`
}

// IngestReport summarizes one ingestion run across statement files
type IngestReport struct {
	TotalFiles     int `json:"total_files"`
	ParsedFiles    int `json:"parsed_files"`
	SkippedFiles   int `json:"skipped_files"`
	FailedFiles    int `json:"failed_files"`
	EventsInserted int `json:"events_inserted"`
	IssuesLogged   int `json:"issues_logged"`
}
