package ledger

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cmorgan83/trade-history-service/internal/models"
)

// MethodAverageCost tags lot closures with the costing method used
const MethodAverageCost = "average_cost"

// zeroTol is the absolute tolerance for treating a quantity as flat.
// Quantities crossing zero are snapped to exactly zero so floating dust
// never survives a full close.
const zeroTol = 1e-9

// Implied per-unit prices above the cap on sizeable quantities are
// parser artifacts (an account number read as a price) and count as zero.
const (
	priceSanityCap    = 100000.0
	priceSanityMinQty = 100.0
)

// bucketKey identifies one (account, instrument, currency) position bucket
type bucketKey struct {
	AccountID    string
	InstrumentID int64
	Currency     string
}

// bucketState is the running inventory of a bucket during replay
type bucketState struct {
	Quantity  float64
	CostTotal float64
}

// avgCost returns cost basis per unit; undefined while the bucket is flat
func (s bucketState) avgCost() (float64, bool) {
	if s.Quantity == 0 {
		return 0, false
	}
	return s.CostTotal / s.Quantity, true
}

func (s *bucketState) snap() {
	if math.Abs(s.Quantity) <= zeroTol {
		s.Quantity = 0
		s.CostTotal = 0
	}
}

// ReplayResult is the full derived output of one replay pass
type ReplayResult struct {
	Closures  []models.LotClosure
	Positions []models.PositionRow
	Processed int
}

// Replay consumes trade and transfer events in a single deterministic
// pass and produces lot closures and the final open-position snapshot.
// Events of other kinds, or without an instrument, are ignored.
//
// Ordering is (trade date, TRANSFER_OUT first / TRANSFER_IN last, event
// id), so an outgoing leg's cost basis is always recorded before the
// matching incoming leg consumes it, even when both land on the same
// date with the IN inserted first.
//
// links maps TRANSFER_IN event ids to their matched TRANSFER_OUT event
// ids. Replay is pure: same input, same output, byte for byte.
func Replay(events []models.Event, links map[int64]int64) ReplayResult {
	eligible := make([]models.Event, 0, len(events))
	for _, ev := range events {
		if ev.InstrumentID == nil {
			continue
		}
		switch strings.ToLower(ev.EventType) {
		case "trade", "transfer":
			eligible = append(eligible, ev)
		}
	}
	sortForReplay(eligible)

	positions := make(map[bucketKey]*bucketState)
	var order []bucketKey
	// Average cost recorded by each TRANSFER_OUT leg, consumed by the
	// linked TRANSFER_IN. Scoped to this single pass, never persisted.
	carriedBasis := make(map[int64]float64)

	var result ReplayResult

	for _, ev := range eligible {
		result.Processed++

		key := bucketKey{AccountID: ev.AccountID, InstrumentID: *ev.InstrumentID, Currency: currencyOf(ev)}
		state, ok := positions[key]
		if !ok {
			state = &bucketState{}
			positions[key] = state
			order = append(order, key)
		}

		side := ParseSide(ev.Side)
		var qtySigned float64
		if ev.Quantity != nil {
			qtySigned = SignedQuantity(side, *ev.Quantity)
		}
		if math.Abs(qtySigned) <= zeroTol {
			continue
		}

		feeTotal := ev.Commission + ev.Fees

		if strings.EqualFold(ev.EventType, "transfer") {
			replayTransfer(ev, side, qtySigned, state, links, carriedBasis)
			continue
		}

		price, ok := tradePrice(ev)
		if !ok {
			// No usable price: the row cannot be costed, skip it.
			continue
		}

		q := state.Quantity
		c := state.CostTotal

		if q == 0 || (q > 0) == (qtySigned > 0) {
			// Opening a new position or extending the existing one.
			state.Quantity = q + qtySigned
			state.CostTotal = c + qtySigned*price + feeTotal
			state.snap()
			continue
		}

		// Reducing or reversing: close against the current average cost,
		// then open the remainder (if any) at the trade's price.
		avg := c / q
		closeQty := math.Min(math.Abs(q), math.Abs(qtySigned))
		signQ := 1.0
		if q < 0 {
			signQ = -1.0
		}

		closeRatio := closeQty / math.Abs(qtySigned)
		closeFee := feeTotal * closeRatio
		openFee := feeTotal - closeFee

		result.Closures = append(result.Closures, models.LotClosure{
			CloseEventID:   ev.EventID,
			InstrumentID:   *ev.InstrumentID,
			AccountID:      ev.AccountID,
			QuantityClosed: closeQty,
			Proceeds:       closeQty * price,
			Cost:           closeQty * math.Abs(avg),
			RealizedPL:     closeQty*(price-avg)*signQ - closeFee,
			Currency:       key.Currency,
			Method:         MethodAverageCost,
		})

		qAfterClose := q - signQ*closeQty
		cAfterClose := c - avg*signQ*closeQty
		remaining := qtySigned + signQ*closeQty

		if math.Abs(remaining) <= zeroTol {
			state.Quantity = qAfterClose
			state.CostTotal = cAfterClose
		} else {
			state.Quantity = qAfterClose + remaining
			state.CostTotal = cAfterClose + remaining*price + openFee
		}
		state.snap()
	}

	asOfID, asOfDate := asOfStamp(eligible)
	for _, key := range order {
		state := positions[key]
		if math.Abs(state.Quantity) <= zeroTol {
			continue
		}
		row := models.PositionRow{
			AccountID:    key.AccountID,
			InstrumentID: key.InstrumentID,
			Currency:     key.Currency,
			Quantity:     state.Quantity,
			CostTotal:    state.CostTotal,
			AsOfEventID:  asOfID,
			AsOfDate:     asOfDate,
		}
		if avg, ok := state.avgCost(); ok {
			row.AvgCost = &avg
		}
		result.Positions = append(result.Positions, row)
	}

	return result
}

// replayTransfer applies one transfer leg to its bucket
func replayTransfer(ev models.Event, side Side, qtySigned float64, state *bucketState, links map[int64]int64, carriedBasis map[int64]float64) {
	switch side {
	case SideTransferOut:
		avg, _ := state.avgCost()
		carriedBasis[ev.EventID] = avg
		state.Quantity += qtySigned
		state.CostTotal += qtySigned * avg
	case SideTransferIn:
		var carry *float64
		if fromID, ok := links[ev.EventID]; ok {
			if basis, ok := carriedBasis[fromID]; ok {
				carry = &basis
			}
		}
		effective := 0.0
		if carry != nil {
			effective = *carry
		} else if fallback, ok := transferFallbackPrice(ev, qtySigned); ok {
			effective = fallback
		}
		state.Quantity += qtySigned
		state.CostTotal += qtySigned * effective
	default:
		// Unknown transfer direction, leave the bucket untouched.
		return
	}
	state.snap()
}

// transferFallbackPrice prices an unlinked TRANSFER_IN from its own row:
// implied gross/quantity first, then the stated price, with the sanity
// override for implausible implied prices.
func transferFallbackPrice(ev models.Event, qtySigned float64) (float64, bool) {
	var price *float64
	if ev.GrossAmount != nil && ev.Quantity != nil && *ev.Quantity != 0 {
		implied := math.Abs(*ev.GrossAmount / *ev.Quantity)
		price = &implied
	} else if ev.Price != nil {
		price = ev.Price
	}
	if price == nil {
		return 0, false
	}
	if math.Abs(qtySigned) >= priceSanityMinQty && *price > priceSanityCap {
		return 0, true
	}
	return *price, true
}

// tradePrice resolves a trade's per-unit price, deriving it from the
// gross amount when the statement line has no explicit price
func tradePrice(ev models.Event) (float64, bool) {
	if ev.Price != nil {
		return *ev.Price, true
	}
	if ev.GrossAmount != nil && ev.Quantity != nil && *ev.Quantity != 0 {
		return math.Abs(*ev.GrossAmount / *ev.Quantity), true
	}
	return 0, false
}

// sortForReplay orders events by trade date, with TRANSFER_OUT legs
// before all other kinds and TRANSFER_IN legs after, then by event id
func sortForReplay(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].TradeDate.Equal(events[j].TradeDate) {
			return events[i].TradeDate.Before(events[j].TradeDate)
		}
		pi, pj := replayPriority(events[i]), replayPriority(events[j])
		if pi != pj {
			return pi < pj
		}
		return events[i].EventID < events[j].EventID
	})
}

func replayPriority(ev models.Event) int {
	if strings.EqualFold(ev.EventType, "transfer") {
		switch ParseSide(ev.Side) {
		case SideTransferOut:
			return 0
		case SideTransferIn:
			return 2
		}
	}
	return 1
}

// asOfStamp returns the stamp shared by every emitted position row: the
// globally last event in replay order, not each bucket's own last touch.
func asOfStamp(eligible []models.Event) (int64, time.Time) {
	if len(eligible) == 0 {
		return 0, time.Now().UTC().Truncate(24 * time.Hour)
	}
	last := eligible[len(eligible)-1]
	return last.EventID, last.TradeDate
}

func currencyOf(ev models.Event) string {
	if ev.Currency == "" {
		return "CAD"
	}
	return ev.Currency
}
