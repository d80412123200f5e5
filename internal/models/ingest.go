package models

import "time"

// Snapshot is a balance or metric the statement itself reported, kept
// so reconstructed positions can be reconciled against the source.
type Snapshot struct {
	ID            int64      `json:"id,omitempty"`
	SourceFileID  int64      `json:"source_file_id"`
	AccountID     string     `json:"account_id"`
	SnapshotDate  *time.Time `json:"snapshot_date,omitempty"`
	MetricCode    string     `json:"metric_code"`
	Currency      string     `json:"currency,omitempty"`
	Value         float64    `json:"value_native"`
	SourceLineRef string     `json:"source_line_ref,omitempty"`
	RawLine       string     `json:"raw_line,omitempty"`
}

// QuarantineLine is a statement line the extractor could not parse
type QuarantineLine struct {
	ID          int64     `json:"id,omitempty"`
	Institution string    `json:"institution"`
	FilePath    string    `json:"file_path"`
	PageNumber  *int      `json:"page_number,omitempty"`
	RawLine     string    `json:"raw_line"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// EventWithInstrument pairs an event with the instrument it references,
// before the instrument has been resolved to a stored id
type EventWithInstrument struct {
	Event      Event
	Instrument *Instrument
}

// NormalizedStatement is one statement file converted to storage types,
// ready to be written in a single transaction
type NormalizedStatement struct {
	File      StatementFile
	Accounts  []Account
	Events    []EventWithInstrument
	Snapshots []Snapshot
	Issues    []QuarantineLine
}
