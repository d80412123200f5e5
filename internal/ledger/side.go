package ledger

import (
	"math"
	"strings"
)

// Side is the classified direction of an event's side code. Statements
// from different institutions use inconsistent vocabularies (BUY vs BTO,
// SELL vs SOLD), so classification happens once per event and every
// downstream branch works off the enum.
type Side int

const (
	// SideUnknown means the code was missing or unrecognized; the
	// source-provided quantity sign is passed through untouched.
	SideUnknown Side = iota
	SideBuy
	SideBuyToOpen
	SideBuyToClose
	SideBuyToCover
	SideSell
	SideSellShort
	SideSellToOpen
	SideSellToClose
	SideTransferIn
	SideTransferOut
	SideDividend
	SideInterest
	SideFee
	SideCommission
)

var sideByCode = map[string]Side{
	"BUY":           SideBuy,
	"BUY_TO_OPEN":   SideBuyToOpen,
	"BTO":           SideBuyToOpen,
	"BUY_TO_CLOSE":  SideBuyToClose,
	"BTC":           SideBuyToClose,
	"BUY_TO_COVER":  SideBuyToCover,
	"SELL":          SideSell,
	"SOLD":          SideSell,
	"SELL_SHORT":    SideSellShort,
	"SELL_TO_OPEN":  SideSellToOpen,
	"STO":           SideSellToOpen,
	"SELL_TO_CLOSE": SideSellToClose,
	"STC":           SideSellToClose,
	"TRANSFER_IN":   SideTransferIn,
	"TRANSFER_OUT":  SideTransferOut,
	"DIVIDEND":      SideDividend,
	"INTEREST":      SideInterest,
	"FEE":           SideFee,
	"COMMISSION":    SideCommission,
}

// ParseSide classifies a raw side code, case-insensitively
func ParseSide(code string) Side {
	if s, ok := sideByCode[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return s
	}
	return SideUnknown
}

// Sign returns +1 for buy-directional sides, -1 for sell-directional
// sides, and 0 for sides that carry no inventory direction of their own.
func (s Side) Sign() float64 {
	switch s {
	case SideBuy, SideBuyToOpen, SideBuyToClose, SideBuyToCover, SideTransferIn:
		return 1
	case SideSell, SideSellShort, SideSellToOpen, SideSellToClose, SideTransferOut:
		return -1
	default:
		return 0
	}
}

// SignedQuantity derives the signed inventory effect of an event. For
// directional sides the stored magnitude is signed by the side; for
// everything else the source-provided value is trusted as-is.
func SignedQuantity(s Side, quantity float64) float64 {
	sign := s.Sign()
	if sign == 0 {
		return quantity
	}
	return sign * math.Abs(quantity)
}
