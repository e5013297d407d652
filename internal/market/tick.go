package market

import (
	"fmt"
	"time"
)

// RawMessage is one inbound feed message: a transaction id plus the rows it carried.
type RawMessage struct {
	TrID string
	Rows []map[string]any
}

type UpdateKind string

const (
	UpdateBasis  UpdateKind = "BASIS"
	UpdateNetBuy UpdateKind = "NET_BUY"
)

// Update is a typed signal extracted from a RawMessage.
type Update struct {
	Kind      UpdateKind
	Value     float64
	Timestamp time.Time
	// When is the exchange-reported time of day ("HH:MM:SS"), or the local clock when absent.
	When string
}

type Fields struct {
	BasisTrID   string
	BasisField  string
	NetBuyTrID  string
	NetBuyField string
	TimeField   string
}

func DefaultFields() Fields {
	return Fields{
		BasisTrID:   "H0IFCNT0",
		BasisField:  "mrkt_basis",
		NetBuyTrID:  "H0UPPGM0",
		NetBuyField: "nabt_smtn_ntby_qty",
		TimeField:   "bsop_hour",
	}
}

// Normalize converts msg into at most one Update. A false result means the
// message carried nothing usable; malformed numbers are not errors.
func Normalize(msg RawMessage, fields Fields, now time.Time) (Update, bool) {
	if len(msg.Rows) == 0 {
		return Update{}, false
	}
	var (
		kind  UpdateKind
		field string
	)
	switch msg.TrID {
	case fields.BasisTrID:
		kind, field = UpdateBasis, fields.BasisField
	case fields.NetBuyTrID:
		kind, field = UpdateNetBuy, fields.NetBuyField
	default:
		return Update{}, false
	}
	value, ok := lastFloat(msg.Rows, field)
	if !ok {
		return Update{}, false
	}
	when := exchangeTime(lastString(msg.Rows, fields.TimeField))
	if when == "" {
		when = now.Format("15:04:05")
	}
	return Update{Kind: kind, Value: value, Timestamp: now, When: when}, true
}

func exchangeTime(raw string) string {
	if len(raw) < 6 {
		return ""
	}
	for _, r := range raw[:6] {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return fmt.Sprintf("%s:%s:%s", raw[:2], raw[2:4], raw[4:6])
}
