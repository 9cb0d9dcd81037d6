package registration

import (
	"strings"

	"holclub_bot/database"

	"github.com/shopspring/decimal"
)

// PrepayAmount считает предоплату по настройкам мероприятия; nil для бесплатного.
// nil для бесплатных мероприятий и нечитаемой цены.
func PrepayAmount(ev *database.Event) *int {
	if ev == nil || !ev.IsPaid {
		return nil
	}
	if ev.PrepayFixed != nil && *ev.PrepayFixed > 0 {
		v := *ev.PrepayFixed
		return &v
	}
	if ev.Price == nil {
		return nil
	}
	price, err := decimal.NewFromString(strings.TrimSpace(*ev.Price))
	if err != nil || price.IsNegative() {
		return nil
	}

	amount := price
	if ev.PrepayPercent != nil && *ev.PrepayPercent > 0 && *ev.PrepayPercent < 100 {
		amount = price.Mul(decimal.NewFromInt(int64(*ev.PrepayPercent))).Div(decimal.NewFromInt(100))
	}
	v := int(amount.Round(0).IntPart())
	return &v
}
