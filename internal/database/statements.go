package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cmorgan83/trade-history-service/internal/models"
)

// FileChecksum returns the stored checksum for a statement file path,
// or ok=false when the file has never been ingested
func (db *DB) FileChecksum(filePath string) (string, bool, error) {
	var checksum string
	err := db.conn.QueryRow(
		`SELECT checksum FROM statement_files WHERE file_path = $1`, filePath,
	).Scan(&checksum)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up statement file %s: %w", filePath, err)
	}
	return checksum, true, nil
}

// IngestStatement writes one normalized statement file in a single
// transaction: upsert the file record, drop everything the previous
// version of this file produced (replace-by-file), then insert the new
// accounts, instruments, events, snapshots and quarantined lines.
// Returns the number of events inserted.
func (db *DB) IngestStatement(stmt *models.NormalizedStatement) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin ingest transaction: %w", err)
	}
	defer tx.Rollback()

	fileID, err := upsertStatementFile(tx, &stmt.File)
	if err != nil {
		return 0, err
	}
	if err := clearFileDerived(tx, fileID); err != nil {
		return 0, err
	}

	for i := range stmt.Accounts {
		if err := upsertAccount(tx, &stmt.Accounts[i]); err != nil {
			return 0, err
		}
	}

	inserted := 0
	for i := range stmt.Events {
		item := &stmt.Events[i]
		var instrumentID *int64
		if item.Instrument != nil {
			id, err := upsertInstrument(tx, item.Instrument)
			if err != nil {
				return 0, err
			}
			instrumentID = &id
		}
		if err := insertEvent(tx, &item.Event, fileID, instrumentID); err != nil {
			return 0, err
		}
		inserted++
	}

	for i := range stmt.Snapshots {
		if err := insertSnapshot(tx, &stmt.Snapshots[i], fileID); err != nil {
			return 0, err
		}
	}
	for i := range stmt.Issues {
		if err := insertQuarantineLine(tx, &stmt.Issues[i]); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit ingest transaction: %w", err)
	}
	return inserted, nil
}

func upsertStatementFile(tx *sql.Tx, file *models.StatementFile) (int64, error) {
	var id int64
	err := tx.QueryRow(`
		INSERT INTO statement_files (
			institution, account_id, file_path, period_start, period_end,
			format_version, parse_status, parse_message, checksum
		) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		ON CONFLICT (file_path) DO UPDATE SET
			institution = EXCLUDED.institution,
			account_id = EXCLUDED.account_id,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			format_version = EXCLUDED.format_version,
			parse_status = EXCLUDED.parse_status,
			parse_message = EXCLUDED.parse_message,
			checksum = EXCLUDED.checksum,
			updated_at = NOW()
		RETURNING id
	`, file.Institution, file.AccountID, file.FilePath,
		nullableTime(file.PeriodStart), nullableTime(file.PeriodEnd),
		file.FormatVersion, file.ParseStatus, file.ParseMessage, file.Checksum,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert statement file %s: %w", file.FilePath, err)
	}
	file.ID = id
	return id, nil
}

// clearFileDerived removes everything a previous ingest of the same file
// produced, so re-ingesting a statement is a full replace
func clearFileDerived(tx *sql.Tx, fileID int64) error {
	steps := []struct {
		name  string
		query string
		args  []interface{}
	}{
		{"lot closures", `
			DELETE FROM lot_closures
			WHERE close_event_id IN (SELECT event_id FROM events WHERE source_file_id = $1)`,
			[]interface{}{fileID}},
		{"transfer links", `
			DELETE FROM transfers
			WHERE from_event_id IN (SELECT event_id FROM events WHERE source_file_id = $1)
			   OR to_event_id IN (SELECT event_id FROM events WHERE source_file_id = $1)`,
			[]interface{}{fileID}},
		{"events", `DELETE FROM events WHERE source_file_id = $1`, []interface{}{fileID}},
		{"snapshots", `DELETE FROM statement_snapshots WHERE source_file_id = $1`, []interface{}{fileID}},
		{"quarantine lines", `
			DELETE FROM quarantine_lines
			WHERE file_path = (SELECT file_path FROM statement_files WHERE id = $1)`,
			[]interface{}{fileID}},
	}
	for _, step := range steps {
		if _, err := tx.Exec(step.query, step.args...); err != nil {
			return fmt.Errorf("failed to clear %s for file %d: %w", step.name, fileID, err)
		}
	}
	return nil
}

func upsertAccount(tx *sql.Tx, account *models.Account) error {
	_, err := tx.Exec(`
		INSERT INTO accounts (account_id, institution, account_name, account_type, base_currency, masked_number)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))
		ON CONFLICT (account_id) DO UPDATE SET
			institution = EXCLUDED.institution,
			account_name = COALESCE(EXCLUDED.account_name, accounts.account_name),
			account_type = COALESCE(EXCLUDED.account_type, accounts.account_type),
			base_currency = COALESCE(EXCLUDED.base_currency, accounts.base_currency),
			masked_number = COALESCE(EXCLUDED.masked_number, accounts.masked_number)
	`, account.AccountID, account.Institution, account.AccountName,
		account.AccountType, account.BaseCurrency, account.MaskedNumber)
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", account.AccountID, err)
	}
	return nil
}

// upsertInstrument resolves an instrument to its stored id by natural
// key (symbol_norm, asset_type, expiry, strike, put_call), inserting it
// on first sight
func upsertInstrument(tx *sql.Tx, inst *models.Instrument) (int64, error) {
	var id int64
	err := tx.QueryRow(`
		SELECT instrument_id FROM instruments
		WHERE symbol_norm = $1 AND asset_type = $2
		  AND COALESCE(expiry, '0001-01-01'::date) = COALESCE($3::date, '0001-01-01'::date)
		  AND COALESCE(strike, -1) = COALESCE($4::double precision, -1)
		  AND COALESCE(put_call, '') = COALESCE(NULLIF($5, ''), '')
	`, inst.SymbolNorm, inst.AssetType, nullableTime(inst.Expiry),
		nullableFloat(inst.Strike), inst.PutCall).Scan(&id)
	if err == nil {
		_, err = tx.Exec(`
			UPDATE instruments SET
				symbol_raw = $2,
				option_root = COALESCE(NULLIF($3, ''), option_root),
				multiplier = COALESCE(NULLIF($4, 0), multiplier),
				exchange = COALESCE(NULLIF($5, ''), exchange),
				sector = COALESCE(NULLIF($6, ''), sector)
			WHERE instrument_id = $1
		`, id, inst.SymbolRaw, inst.OptionRoot, inst.Multiplier, inst.Exchange, inst.Sector)
		if err != nil {
			return 0, fmt.Errorf("failed to update instrument %s: %w", inst.SymbolNorm, err)
		}
		inst.InstrumentID = id
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up instrument %s: %w", inst.SymbolNorm, err)
	}

	err = tx.QueryRow(`
		INSERT INTO instruments (
			symbol_raw, symbol_norm, asset_type, option_root, strike, expiry,
			put_call, multiplier, exchange, sector
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), NULLIF($10, ''))
		RETURNING instrument_id
	`, inst.SymbolRaw, inst.SymbolNorm, inst.AssetType, inst.OptionRoot,
		nullableFloat(inst.Strike), nullableTime(inst.Expiry), inst.PutCall,
		inst.Multiplier, inst.Exchange, inst.Sector).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert instrument %s: %w", inst.SymbolNorm, err)
	}
	inst.InstrumentID = id
	return id, nil
}

func insertEvent(tx *sql.Tx, ev *models.Event, fileID int64, instrumentID *int64) error {
	_, err := tx.Exec(`
		INSERT INTO events (
			account_id, trade_date, settle_date, event_type, instrument_id, side,
			quantity, price, gross_amount, commission, fees, currency,
			source_file_id, source_line_ref, notes
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, NULLIF($12, ''), $13, NULLIF($14, ''), NULLIF($15, ''))
	`, ev.AccountID, ev.TradeDate, nullableTime(ev.SettleDate), ev.EventType,
		nullableInt(instrumentID), ev.Side,
		nullableFloat(ev.Quantity), nullableFloat(ev.Price), nullableFloat(ev.GrossAmount),
		ev.Commission, ev.Fees, ev.Currency, fileID, ev.SourceLineRef, ev.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert event for account %s on %s: %w",
			ev.AccountID, ev.TradeDate.Format("2006-01-02"), err)
	}
	return nil
}

func insertSnapshot(tx *sql.Tx, snap *models.Snapshot, fileID int64) error {
	_, err := tx.Exec(`
		INSERT INTO statement_snapshots (
			source_file_id, account_id, snapshot_date, metric_code, currency,
			value_native, source_line_ref, raw_line
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''))
	`, fileID, snap.AccountID, nullableTime(snap.SnapshotDate), snap.MetricCode,
		snap.Currency, snap.Value, snap.SourceLineRef, snap.RawLine)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot %s for account %s: %w", snap.MetricCode, snap.AccountID, err)
	}
	return nil
}

func insertQuarantineLine(tx *sql.Tx, line *models.QuarantineLine) error {
	_, err := tx.Exec(`
		INSERT INTO quarantine_lines (institution, file_path, page_number, raw_line, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, line.Institution, line.FilePath, nullableIntValue(line.PageNumber), line.RawLine, line.Reason)
	if err != nil {
		return fmt.Errorf("failed to insert quarantine line: %w", err)
	}
	return nil
}

// StartJobRun records the beginning of an ingest or rebuild job
func (db *DB) StartJobRun(jobName string) (int64, error) {
	var id int64
	err := db.conn.QueryRow(`
		INSERT INTO job_runs (job_name, status, details_json) VALUES ($1, 'running', '{}')
		RETURNING id
	`, jobName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to start job run %s: %w", jobName, err)
	}
	return id, nil
}

// FinishJobRun closes out a job run with its final status and report
func (db *DB) FinishJobRun(id int64, status, detailsJSON string) error {
	_, err := db.conn.Exec(`
		UPDATE job_runs SET status = $2, finished_at = NOW(), details_json = $3
		WHERE id = $1
	`, id, status, detailsJSON)
	if err != nil {
		return fmt.Errorf("failed to finish job run %d: %w", id, err)
	}
	return nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullableIntValue(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
