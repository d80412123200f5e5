package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmorgan83/trade-history-service/internal/models"
)

const aapl = int64(1)

func fp(v float64) *float64 { return &v }
func ip(v int64) *int64     { return &v }

func trade(id int64, account, date, side string, qty, price float64) models.Event {
	return models.Event{
		EventID:      id,
		AccountID:    account,
		TradeDate:    day(date),
		EventType:    "trade",
		InstrumentID: ip(aapl),
		Side:         side,
		Quantity:     fp(qty),
		Price:        fp(price),
		Currency:     "USD",
	}
}

func transfer(id int64, account, date, side string, qty float64) models.Event {
	return models.Event{
		EventID:      id,
		AccountID:    account,
		TradeDate:    day(date),
		EventType:    "transfer",
		InstrumentID: ip(aapl),
		Side:         side,
		Quantity:     fp(qty),
		Currency:     "USD",
	}
}

func TestReplay_AverageCostLongClose(t *testing.T) {
	result := Replay([]models.Event{
		trade(1, "A1", "2024-01-02", "BUY", 10, 100),
		trade(2, "A1", "2024-01-10", "SELL", 4, 120),
	}, nil)

	require.Len(t, result.Closures, 1)
	lot := result.Closures[0]
	assert.Equal(t, int64(2), lot.CloseEventID)
	assert.InDelta(t, 4.0, lot.QuantityClosed, 1e-9)
	assert.InDelta(t, 480.0, lot.Proceeds, 1e-9)
	assert.InDelta(t, 400.0, lot.Cost, 1e-9)
	assert.InDelta(t, 80.0, lot.RealizedPL, 1e-9)
	assert.Equal(t, MethodAverageCost, lot.Method)

	require.Len(t, result.Positions, 1)
	pos := result.Positions[0]
	assert.InDelta(t, 6.0, pos.Quantity, 1e-9)
	require.NotNil(t, pos.AvgCost)
	assert.InDelta(t, 100.0, *pos.AvgCost, 1e-9)
	assert.Equal(t, 2, result.Processed)
}

func TestReplay_FeesEnterCostBasis(t *testing.T) {
	buy := trade(1, "A1", "2024-01-02", "BUY", 10, 100)
	buy.Commission = 5
	buy.Fees = 5
	result := Replay([]models.Event{buy}, nil)

	require.Len(t, result.Positions, 1)
	assert.InDelta(t, 1010.0, result.Positions[0].CostTotal, 1e-9)
	require.NotNil(t, result.Positions[0].AvgCost)
	assert.InDelta(t, 101.0, *result.Positions[0].AvgCost, 1e-9)
}

func TestReplay_TransferContinuity(t *testing.T) {
	events := []models.Event{
		trade(1, "A1", "2024-01-02", "BUY", 10, 100),
		transfer(2, "A1", "2024-01-12", "TRANSFER_OUT", 5),
		transfer(3, "A2", "2024-01-13", "TRANSFER_IN", 5),
		trade(4, "A2", "2024-01-20", "SELL", 5, 120),
	}
	result := Replay(events, map[int64]int64{3: 2})

	require.Len(t, result.Closures, 1)
	assert.Equal(t, "A2", result.Closures[0].AccountID)
	assert.InDelta(t, 100.0, result.Closures[0].RealizedPL, 1e-9)

	// A1 keeps its remaining 5 shares at the original average cost.
	require.Len(t, result.Positions, 1)
	pos := result.Positions[0]
	assert.Equal(t, "A1", pos.AccountID)
	assert.InDelta(t, 5.0, pos.Quantity, 1e-9)
	require.NotNil(t, pos.AvgCost)
	assert.InDelta(t, 100.0, *pos.AvgCost, 1e-9)
}

func TestReplay_SameDayTransferOrderedOutFirst(t *testing.T) {
	// The TRANSFER_IN is inserted before its matching TRANSFER_OUT (lower
	// event id, same trade date). Replay must still record the OUT leg's
	// basis before the IN leg consumes it.
	events := []models.Event{
		trade(1, "A1", "2024-01-02", "BUY", 10, 100),
		transfer(2, "A2", "2024-01-10", "TRANSFER_IN", 5),
		transfer(3, "A1", "2024-01-10", "TRANSFER_OUT", 5),
		trade(4, "A2", "2024-01-11", "SELL", 5, 120),
	}
	result := Replay(events, map[int64]int64{2: 3})

	require.Len(t, result.Closures, 1)
	assert.InDelta(t, 100.0, result.Closures[0].RealizedPL, 1e-9)
}

func TestReplay_NonTradeEventsExcluded(t *testing.T) {
	dividend := models.Event{
		EventID:      2,
		AccountID:    "A1",
		TradeDate:    day("2024-01-05"),
		EventType:    "dividend",
		InstrumentID: ip(aapl),
		Side:         "DIVIDEND",
		Quantity:     fp(1000),
		GrossAmount:  fp(10),
		Currency:     "USD",
	}
	result := Replay([]models.Event{
		trade(1, "A1", "2024-01-02", "BUY", 10, 100),
		dividend,
		trade(3, "A1", "2024-01-10", "SELL", 10, 110),
	}, nil)

	require.Len(t, result.Closures, 1)
	assert.InDelta(t, 100.0, result.Closures[0].RealizedPL, 1e-9)
	assert.Empty(t, result.Positions)
	assert.Equal(t, 2, result.Processed, "the dividend row is not replayed")
}

func TestReplay_ZeroQuantitySnapping(t *testing.T) {
	result := Replay([]models.Event{
		trade(1, "A1", "2024-01-02", "BUY", 10, 100),
		trade(2, "A1", "2024-01-10", "SELL", 9.9999999999, 100),
	}, nil)

	// Residual of 1e-10 is inside the snapping tolerance: fully flat.
	assert.Empty(t, result.Positions)
}

func TestReplay_SignFlipSplitsCloseAndOpen(t *testing.T) {
	sell := trade(2, "A1", "2024-01-10", "SELL", 15, 120)
	sell.Fees = 3
	result := Replay([]models.Event{
		trade(1, "A1", "2024-01-02", "BUY", 10, 100),
		sell,
	}, nil)

	// Close 10 long with 2/3 of the fee, open 5 short with the rest.
	require.Len(t, result.Closures, 1)
	lot := result.Closures[0]
	assert.InDelta(t, 10.0, lot.QuantityClosed, 1e-9)
	assert.InDelta(t, 1200.0, lot.Proceeds, 1e-9)
	assert.InDelta(t, 1000.0, lot.Cost, 1e-9)
	assert.InDelta(t, 198.0, lot.RealizedPL, 1e-9)

	require.Len(t, result.Positions, 1)
	pos := result.Positions[0]
	assert.InDelta(t, -5.0, pos.Quantity, 1e-9)
	assert.InDelta(t, -599.0, pos.CostTotal, 1e-9)
	require.NotNil(t, pos.AvgCost)
	assert.InDelta(t, 119.8, *pos.AvgCost, 1e-9)
}

func TestReplay_ShortCoverRealizesGain(t *testing.T) {
	result := Replay([]models.Event{
		trade(1, "A1", "2024-01-02", "SELL_SHORT", 10, 100),
		trade(2, "A1", "2024-01-10", "BUY_TO_COVER", 10, 90),
	}, nil)

	require.Len(t, result.Closures, 1)
	// Short at 100, covered at 90: (90 - 100) * -1 per unit.
	assert.InDelta(t, 100.0, result.Closures[0].RealizedPL, 1e-9)
	assert.Empty(t, result.Positions)
}

func TestReplay_TradeWithoutPriceDerivesFromGross(t *testing.T) {
	buy := models.Event{
		EventID:      1,
		AccountID:    "A1",
		TradeDate:    day("2024-01-02"),
		EventType:    "trade",
		InstrumentID: ip(aapl),
		Side:         "BUY",
		Quantity:     fp(10),
		GrossAmount:  fp(-1000),
		Currency:     "USD",
	}
	result := Replay([]models.Event{buy}, nil)

	require.Len(t, result.Positions, 1)
	require.NotNil(t, result.Positions[0].AvgCost)
	assert.InDelta(t, 100.0, *result.Positions[0].AvgCost, 1e-9)
}

func TestReplay_TradeWithoutAnyPriceSkipped(t *testing.T) {
	broken := models.Event{
		EventID:      2,
		AccountID:    "A1",
		TradeDate:    day("2024-01-10"),
		EventType:    "trade",
		InstrumentID: ip(aapl),
		Side:         "SELL",
		Quantity:     fp(4),
		Currency:     "USD",
	}
	result := Replay([]models.Event{
		trade(1, "A1", "2024-01-02", "BUY", 10, 100),
		broken,
	}, nil)

	assert.Empty(t, result.Closures)
	require.Len(t, result.Positions, 1)
	assert.InDelta(t, 10.0, result.Positions[0].Quantity, 1e-9)
	assert.Equal(t, 2, result.Processed, "skipped rows still count as processed")
}

func TestReplay_UnlinkedTransferInUsesImpliedPrice(t *testing.T) {
	in := transfer(1, "A2", "2024-01-10", "TRANSFER_IN", 5)
	in.GrossAmount = fp(-500)
	result := Replay([]models.Event{in}, nil)

	require.Len(t, result.Positions, 1)
	require.NotNil(t, result.Positions[0].AvgCost)
	assert.InDelta(t, 100.0, *result.Positions[0].AvgCost, 1e-9)
}

func TestReplay_TransferInPriceSanityOverride(t *testing.T) {
	// An account number parsed as a gross amount implies an absurd price;
	// sizeable incoming quantities treat it as zero basis instead.
	in := transfer(1, "A2", "2024-01-10", "TRANSFER_IN", 100)
	in.GrossAmount = fp(50000000)
	result := Replay([]models.Event{in}, nil)

	require.Len(t, result.Positions, 1)
	assert.InDelta(t, 100.0, result.Positions[0].Quantity, 1e-9)
	assert.InDelta(t, 0.0, result.Positions[0].CostTotal, 1e-9)
}

func TestReplay_ConservationWithoutTransfers(t *testing.T) {
	events := []models.Event{
		trade(1, "A1", "2024-01-02", "BUY", 10, 100),
		trade(2, "A1", "2024-01-05", "SELL", 3, 105),
		trade(3, "A1", "2024-01-08", "BUY", 7, 110),
		trade(4, "A1", "2024-01-12", "SELL", 6, 95),
	}
	result := Replay(events, nil)

	require.Len(t, result.Positions, 1)
	// 10 - 3 + 7 - 6
	assert.InDelta(t, 8.0, result.Positions[0].Quantity, 1e-9)
}

func TestReplay_Idempotence(t *testing.T) {
	events := []models.Event{
		trade(1, "A1", "2024-01-02", "BUY", 10, 100),
		transfer(2, "A1", "2024-01-12", "TRANSFER_OUT", 5),
		transfer(3, "A2", "2024-01-13", "TRANSFER_IN", 5),
		trade(4, "A2", "2024-01-20", "SELL", 5, 120),
		trade(5, "A1", "2024-01-21", "SELL", 2, 130),
	}
	links := map[int64]int64{3: 2}

	first := Replay(events, links)
	second := Replay(events, links)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b), "replay must be byte-identical on unchanged input")
}

func TestReplay_AsOfStampIsGloballyLastEvent(t *testing.T) {
	msft := int64(2)
	other := trade(3, "A1", "2024-02-01", "BUY", 1, 50)
	other.InstrumentID = &msft

	result := Replay([]models.Event{
		trade(1, "A1", "2024-01-02", "BUY", 10, 100),
		other,
	}, nil)

	// Every row carries the stamp of the globally last processed event,
	// not each bucket's own last touch.
	require.Len(t, result.Positions, 2)
	for _, pos := range result.Positions {
		assert.Equal(t, int64(3), pos.AsOfEventID)
		assert.Equal(t, day("2024-02-01"), pos.AsOfDate)
	}
}

func TestReplay_UnknownSideUsesSourceSign(t *testing.T) {
	adjust := models.Event{
		EventID:      2,
		AccountID:    "A1",
		TradeDate:    day("2024-01-10"),
		EventType:    "trade",
		InstrumentID: ip(aapl),
		Side:         "REORG",
		Quantity:     fp(-4),
		Price:        fp(100),
		Currency:     "USD",
	}
	result := Replay([]models.Event{
		trade(1, "A1", "2024-01-02", "BUY", 10, 100),
		adjust,
	}, nil)

	require.Len(t, result.Closures, 1)
	require.Len(t, result.Positions, 1)
	assert.InDelta(t, 6.0, result.Positions[0].Quantity, 1e-9)
}

func TestReplay_ZeroQuantityEventIsNoOp(t *testing.T) {
	noop := trade(2, "A1", "2024-01-05", "SELL", 0, 120)
	result := Replay([]models.Event{
		trade(1, "A1", "2024-01-02", "BUY", 10, 100),
		noop,
	}, nil)

	assert.Empty(t, result.Closures)
	require.Len(t, result.Positions, 1)
	assert.InDelta(t, 10.0, result.Positions[0].Quantity, 1e-9)
}

func TestReplay_EventsWithoutInstrumentIgnored(t *testing.T) {
	cash := models.Event{
		EventID:   1,
		AccountID: "A1",
		TradeDate: day("2024-01-02"),
		EventType: "trade",
		Side:      "BUY",
		Quantity:  fp(10),
		Price:     fp(100),
		Currency:  "USD",
	}
	result := Replay([]models.Event{cash}, nil)

	assert.Zero(t, result.Processed)
	assert.Empty(t, result.Positions)
}

func TestReplay_CurrencySeparatesBuckets(t *testing.T) {
	usd := trade(1, "A1", "2024-01-02", "BUY", 10, 100)
	cad := trade(2, "A1", "2024-01-02", "BUY", 5, 90)
	cad.Currency = "CAD"

	result := Replay([]models.Event{usd, cad}, nil)
	assert.Len(t, result.Positions, 2)
}
