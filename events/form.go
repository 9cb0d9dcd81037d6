package events

import (
	"strconv"
	"strings"
)

// ParseDraftForm разбирает сообщение партнёра вида
//
//	/newevent
//	name=...
//	datetime=25.05.2025 19:00
//	price=1500
//	prepay=50%   (или prepay=300)
//
// Неизвестные ключи отклоняются.
func ParseDraftForm(partnerID int64, text string) (Draft, error) {
	d := Draft{PartnerUserID: partnerID}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var lastKey string
	for i, line := range lines {
		if i == 0 && strings.HasPrefix(strings.TrimSpace(line), "/") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			// продолжение многострочного описания
			if lastKey == "description" {
				d.Description += "\n" + line
				continue
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			return Draft{}, invalid("строка без '=': %q", line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "name":
			d.Name = value
		case "datetime", "date":
			d.Datetime = value
		case "address":
			d.Address = value
		case "description":
			d.Description = value
		case "price":
			price := strings.ReplaceAll(value, " ", "")
			if price == "0" {
				price = ""
			}
			d.Price = price
		case "prepay":
			if err := d.parsePrepay(value); err != nil {
				return Draft{}, err
			}
		case "age":
			d.AgeGroup = value
		case "ticket":
			d.TicketURL = value
		default:
			return Draft{}, invalid("неизвестное поле %s", key)
		}
		lastKey = key
	}
	d.Description = strings.TrimSpace(d.Description)
	return d, nil
}

func (d *Draft) parsePrepay(value string) error {
	if value == "" {
		return nil
	}
	if raw, ok := strings.CutSuffix(value, "%"); ok {
		pct, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return invalid("процент предоплаты: %q", value)
		}
		d.PrepayPercent = &pct
		return nil
	}
	fixed, err := strconv.Atoi(strings.ReplaceAll(value, " ", ""))
	if err != nil {
		return invalid("сумма предоплаты: %q", value)
	}
	d.PrepayFixed = &fixed
	return nil
}
