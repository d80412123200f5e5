package database

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPositions(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	db := NewWithConn(conn)

	asOf := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM position_state p").WillReturnRows(
		sqlmock.NewRows([]string{"account_id", "instrument_id", "currency", "quantity",
			"cost_total_native", "avg_cost_native", "as_of_event_id", "as_of_trade_date", "symbol_norm"}).
			AddRow("A1", 7, "USD", 6.0, 600.0, 100.0, 42, asOf, "AAPL").
			AddRow("A2", 8, "CAD", -5.0, -599.0, nil, 42, asOf, "MSFT"))

	positions, err := db.ListPositions()
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "AAPL", positions[0].SymbolNorm)
	require.NotNil(t, positions[0].AvgCost)
	assert.Equal(t, 100.0, *positions[0].AvgCost)

	assert.Nil(t, positions[1].AvgCost, "null average cost stays nil")
	assert.Equal(t, -5.0, positions[1].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLotClosures_DefaultLimit(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	db := NewWithConn(conn)

	mock.ExpectQuery("FROM lot_closures l").
		WithArgs("", "", 200, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "close_event_id", "instrument_id",
			"account_id", "quantity_closed", "proceeds_native", "cost_native",
			"realized_pl_native", "currency", "method", "created_at", "symbol_norm"}))

	lots, err := db.ListLotClosures("", "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, lots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRealizedSummary_FormatsFixedDecimals(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	db := NewWithConn(conn)

	mock.ExpectQuery("FROM lot_closures").
		WithArgs("A1").
		WillReturnRows(sqlmock.NewRows([]string{"currency", "count", "proceeds", "cost", "realized"}).
			AddRow("CAD", 2, 1000.456, 900.0, 100.456).
			AddRow("USD", 4, 480.0, 400.0, 80.0))

	summaries, err := db.RealizedSummary("A1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "CAD", summaries[0].Currency)
	assert.Equal(t, "1000.46", summaries[0].Proceeds)
	assert.Equal(t, "100.46", summaries[0].RealizedPL)

	assert.Equal(t, "USD", summaries[1].Currency)
	assert.Equal(t, 4, summaries[1].Lots)
	assert.Equal(t, "80.00", summaries[1].RealizedPL)
	assert.NoError(t, mock.ExpectationsWereMet())
}
