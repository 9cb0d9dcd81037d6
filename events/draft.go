// Package events создаёт и публикует мероприятия партнёров.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"holclub_bot/database"
	"holclub_bot/moderation"

	"github.com/shopspring/decimal"
)

var ErrInvalidDraft = errors.New("некорректные данные мероприятия")

// DatetimeLayouts: допустимые форматы даты в форме.
var DatetimeLayouts = []string{"02.01.2006 15:04", "02.01.2006 15.04", "2006-01-02 15:04"}

// Draft: данные мероприятия до записи в БД.
type Draft struct {
	PartnerUserID int64
	Name          string
	Datetime      string
	Address       string
	Description   string
	// Price: пустая строка для бесплатного мероприятия.
	Price         string
	PrepayPercent *int
	PrepayFixed   *int
	AgeGroup      string
	PhotoFileID   string
	TicketURL     string
}

func (d *Draft) IsPaid() bool {
	return d.Price != ""
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDraft, fmt.Sprintf(format, args...))
}

// Validate проверяет обязательные поля, цену, условия предоплаты и текст описания.
func (d *Draft) Validate(det *moderation.Detector, priceMax int) error {
	required := []struct{ field, value string }{
		{"name", d.Name},
		{"datetime", d.Datetime},
		{"address", d.Address},
		{"description", d.Description},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return invalid("не заполнено поле %s", r.field)
		}
	}
	if len([]rune(d.Name)) > 128 {
		return invalid("название длиннее 128 символов")
	}
	if !parsesAsDatetime(d.Datetime) {
		return invalid("дата должна быть в формате 25.05.2025 19:00")
	}

	if d.IsPaid() {
		price, err := strconv.Atoi(d.Price)
		if err != nil || price <= 0 {
			return invalid("цена должна быть целым положительным числом")
		}
		if priceMax > 0 && price > priceMax {
			return invalid("цена больше %d", priceMax)
		}
	} else if d.PrepayPercent != nil || d.PrepayFixed != nil {
		return invalid("предоплата для бесплатного мероприятия")
	}
	if d.PrepayPercent != nil && d.PrepayFixed != nil {
		return invalid("укажите либо процент, либо фиксированную предоплату")
	}
	if d.PrepayPercent != nil && (*d.PrepayPercent < 0 || *d.PrepayPercent > 100) {
		return invalid("процент предоплаты вне диапазона 0..100")
	}
	if d.PrepayFixed != nil && *d.PrepayFixed < 0 {
		return invalid("отрицательная предоплата")
	}

	if d.AgeGroup != "" && d.AgeGroup != database.AgeGroupAll && !database.ValidAgeGroup(d.AgeGroup) {
		return invalid("неизвестная возрастная группа %s", d.AgeGroup)
	}

	if det != nil {
		for _, text := range []string{d.Name, d.Description, d.Address} {
			if v := det.Check(text); v != nil {
				return fmt.Errorf("%w: %w", ErrInvalidDraft, v)
			}
		}
	}
	return nil
}

func parsesAsDatetime(v string) bool {
	v = strings.TrimSpace(v)
	for _, layout := range DatetimeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// ApplyCommission добавляет комиссию партнёра к цене.
// Сумма комиссии становится фиксированной предоплатой.
func (d *Draft) ApplyCommission(percent int) {
	if !d.IsPaid() || percent <= 0 {
		return
	}
	base, err := decimal.NewFromString(d.Price)
	if err != nil {
		return
	}
	commission := base.Mul(decimal.NewFromInt(int64(percent))).Div(decimal.NewFromInt(100)).Round(0)
	amount := int(commission.IntPart())

	d.Price = base.Add(commission).String()
	d.PrepayPercent = nil
	d.PrepayFixed = &amount
}

// Fingerprint возвращает ключ идемпотентности, sha256 от смысловых полей.
func (d *Draft) Fingerprint() string {
	paid := "0"
	if d.IsPaid() {
		paid = "1"
	}
	source := strings.Join([]string{
		strconv.FormatInt(d.PartnerUserID, 10),
		d.Name,
		d.Datetime,
		d.Address,
		d.Description,
		paid,
		d.Price,
		optInt(d.PrepayPercent),
		optInt(d.PrepayFixed),
		d.AgeGroup,
	}, "\n")
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

func optInt(v *int) string {
	if v == nil || *v == 0 {
		return ""
	}
	return strconv.Itoa(*v)
}

func optString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Event собирает запись для БД.
func (d *Draft) Event(attendanceCode string) *database.Event {
	ev := &database.Event{
		PartnerUserID: d.PartnerUserID,
		Name:          d.Name,
		Datetime:      d.Datetime,
		Address:       d.Address,
		Description:   d.Description,
		IsPaid:        d.IsPaid(),
		Price:         optString(d.Price),
		PrepayPercent: d.PrepayPercent,
		PrepayFixed:   d.PrepayFixed,
		AgeGroup:      optString(d.AgeGroup),
		PhotoFileID:   optString(d.PhotoFileID),
		TicketURL:     optString(d.TicketURL),
		Fingerprint:   d.Fingerprint(),
	}
	if attendanceCode != "" {
		ev.AttendanceCode = &attendanceCode
	}
	return ev
}
