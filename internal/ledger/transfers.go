package ledger

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cmorgan83/trade-history-service/internal/models"
)

// DefaultTransferWindowDays bounds how far apart in trade date the two
// legs of an inter-account transfer may land and still be linked.
const DefaultTransferWindowDays = 10

// ContinuityCarryCost carries the outgoing account's average cost
// forward to the receiving account.
const ContinuityCarryCost = "carry_cost"

// Custodians round transferred share counts differently on each side,
// so leg quantities match under a loose relative+absolute tolerance.
const (
	transferQtyRelTol = 0.001
	transferQtyAbsTol = 0.001
)

// TransferLeg is the projection of a transfer event the linker needs:
// kind `transfer`, non-nil instrument, nonzero quantity magnitude.
type TransferLeg struct {
	EventID     int64
	AccountID   string
	TradeDate   time.Time
	Side        Side
	QuantityAbs float64
	Currency    string
	SymbolNorm  string
}

// LinkTransfers matches TRANSFER_OUT legs to TRANSFER_IN legs across
// accounts. Each OUT is consumed by at most one link; IN legs are
// processed in (trade date, event id) order and claim the unclaimed OUT
// with the smallest date distance within maxDays, requiring the same
// normalized symbol and currency and a quantity within tolerance.
// IN legs with no candidate remain unlinked, which is not an error.
func LinkTransfers(legs []TransferLeg, maxDays int) []models.TransferLink {
	if maxDays <= 0 {
		maxDays = DefaultTransferWindowDays
	}

	sorted := make([]TransferLeg, len(legs))
	copy(sorted, legs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].TradeDate.Equal(sorted[j].TradeDate) {
			return sorted[i].TradeDate.Before(sorted[j].TradeDate)
		}
		return sorted[i].EventID < sorted[j].EventID
	})

	var outs, ins []TransferLeg
	for _, leg := range sorted {
		switch leg.Side {
		case SideTransferOut:
			outs = append(outs, leg)
		case SideTransferIn:
			ins = append(ins, leg)
		}
	}

	claimed := make(map[int64]bool)
	var links []models.TransferLink

	for _, in := range ins {
		bestIdx := -1
		bestDelta := 0
		for i, out := range outs {
			if claimed[out.EventID] {
				continue
			}
			if out.AccountID == in.AccountID {
				continue
			}
			if out.SymbolNorm != in.SymbolNorm || out.Currency != in.Currency {
				continue
			}
			if !withinTolerance(out.QuantityAbs, in.QuantityAbs, transferQtyRelTol, transferQtyAbsTol) {
				continue
			}
			delta := daysApart(out.TradeDate, in.TradeDate)
			if delta > maxDays {
				continue
			}
			// Ties go to the earliest OUT, which the sort already put first.
			if bestIdx < 0 || delta < bestDelta {
				bestIdx = i
				bestDelta = delta
			}
		}
		if bestIdx < 0 {
			continue
		}

		out := outs[bestIdx]
		claimed[out.EventID] = true
		links = append(links, models.TransferLink{
			FromEventID:    out.EventID,
			ToEventID:      in.EventID,
			GroupKey:       fmt.Sprintf("%s:%v:%d->%d", out.SymbolNorm, in.QuantityAbs, out.EventID, in.EventID),
			ContinuityMode: ContinuityCarryCost,
		})
	}

	return links
}

// withinTolerance reports whether a and b are equal under a combined
// relative and absolute tolerance
func withinTolerance(a, b, relTol, absTol float64) bool {
	return math.Abs(a-b) <= math.Max(relTol*math.Max(math.Abs(a), math.Abs(b)), absTol)
}

func daysApart(a, b time.Time) int {
	delta := int(b.Sub(a).Hours() / 24)
	if delta < 0 {
		return -delta
	}
	return delta
}
