package database

import (
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmorgan83/trade-history-service/internal/models"
)

func TestFileChecksum(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	db := NewWithConn(conn)

	mock.ExpectQuery("SELECT checksum FROM statement_files").
		WithArgs("statements/2024-01.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"checksum"}).AddRow("abc123"))

	sum, found, err := db.FileChecksum("statements/2024-01.pdf")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc123", sum)

	mock.ExpectQuery("SELECT checksum FROM statement_files").
		WithArgs("statements/unknown.pdf").
		WillReturnError(sql.ErrNoRows)

	_, found, err = db.FileChecksum("statements/unknown.pdf")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestStatement_ReplacesFileContents(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	db := NewWithConn(conn)

	jan2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	qty, price := 10.0, 100.25

	stmt := &models.NormalizedStatement{
		File: models.StatementFile{
			Institution:   "questrade",
			FilePath:      "statements/2024-01.pdf",
			FormatVersion: "v2",
			ParseStatus:   "success",
			Checksum:      "abc123",
		},
		Accounts: []models.Account{
			{AccountID: "12345678", Institution: "questrade", MaskedNumber: "****5678"},
		},
		Events: []models.EventWithInstrument{
			{
				Event: models.Event{
					AccountID: "12345678",
					TradeDate: jan2,
					EventType: "trade",
					Side:      "BUY",
					Quantity:  &qty,
					Price:     &price,
					Currency:  "CAD",
				},
				Instrument: &models.Instrument{
					SymbolRaw:  "AAPL",
					SymbolNorm: "AAPL",
					AssetType:  "equity",
					Multiplier: 1,
				},
			},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO statement_files").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	// Replace-by-file: wipe everything the previous version produced.
	mock.ExpectExec("DELETE FROM lot_closures").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM transfers").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM statement_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM quarantine_lines").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(1, 1))
	// First sight of this instrument: lookup misses, insert assigns the id.
	mock.ExpectQuery("SELECT instrument_id FROM instruments").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO instruments").
		WillReturnRows(sqlmock.NewRows([]string{"instrument_id"}).AddRow(7))
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	inserted, err := db.IngestStatement(stmt)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, int64(11), stmt.File.ID)
	assert.Equal(t, int64(7), stmt.Events[0].Instrument.InstrumentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestStatement_ReusesKnownInstrument(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	db := NewWithConn(conn)

	jan2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	qty := 5.0

	stmt := &models.NormalizedStatement{
		File: models.StatementFile{Institution: "questrade", FilePath: "b.pdf", FormatVersion: "v2", ParseStatus: "success"},
		Events: []models.EventWithInstrument{
			{
				Event:      models.Event{AccountID: "12345678", TradeDate: jan2, EventType: "trade", Side: "SELL", Quantity: &qty},
				Instrument: &models.Instrument{SymbolRaw: "AAPL", SymbolNorm: "AAPL", AssetType: "equity", Multiplier: 1},
			},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO statement_files").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectExec("DELETE FROM lot_closures").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM transfers").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM statement_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM quarantine_lines").WillReturnResult(sqlmock.NewResult(0, 0))
	// Known instrument: lookup hits and the descriptive columns refresh.
	mock.ExpectQuery("SELECT instrument_id FROM instruments").
		WillReturnRows(sqlmock.NewRows([]string{"instrument_id"}).AddRow(7))
	mock.ExpectExec("UPDATE instruments SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	inserted, err := db.IngestStatement(stmt)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.Equal(t, int64(7), stmt.Events[0].Instrument.InstrumentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
