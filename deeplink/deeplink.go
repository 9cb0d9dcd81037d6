// Package deeplink разбирает start-параметры и callback-токены кнопок.
package deeplink

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"holclub_bot/database"
)

const (
	EventChatPrefix = "event_chat_"
	AttendPrefix    = "attend_"
)

// StartPayload достаёт параметр из "/start <p>" или ссылки вида "...?start=<p>".
func StartPayload(text string) string {
	text = strings.TrimSpace(text)
	var payload string
	switch {
	case strings.Contains(text, " "):
		_, payload, _ = strings.Cut(text, " ")
	case strings.Contains(text, "?"):
		_, payload, _ = strings.Cut(text, "?")
	default:
		return ""
	}
	payload = strings.TrimSpace(payload)
	if unquoted, err := url.QueryUnescape(payload); err == nil {
		payload = unquoted
	}
	payload = strings.TrimPrefix(payload, "start=")
	// хвост трекинговых параметров игнорируем
	payload, _, _ = strings.Cut(payload, "?")
	payload, _, _ = strings.Cut(payload, "&")
	return strings.TrimSpace(payload)
}

// BotStartLink: ссылка на бота с start-параметром.
func BotStartLink(botUsername, payload string) string {
	return "https://t.me/" + strings.TrimLeft(botUsername, "@") + "?start=" + payload
}

func EventChatPayload(eventID int64) string {
	return EventChatPrefix + strconv.FormatInt(eventID, 10)
}

// ParseEventChat разбирает "event_chat_<id>".
func ParseEventChat(payload string) (int64, bool) {
	raw, ok := strings.CutPrefix(payload, EventChatPrefix)
	if !ok || !isDigits(raw) {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}

func AttendPayload(eventID int64, code string) string {
	return fmt.Sprintf("%s%d_%s", AttendPrefix, eventID, code)
}

// ParseAttend разбирает "attend_<event_id>_<code>" из QR-кода на площадке.
func ParseAttend(payload string) (int64, string, bool) {
	raw, ok := strings.CutPrefix(payload, AttendPrefix)
	if !ok {
		return 0, "", false
	}
	rawID, code, ok := strings.Cut(raw, "_")
	if !ok || code == "" || !isDigits(rawID) {
		return 0, "", false
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, code, true
}

// ParseAdvPlacement разбирает "<дата>_<канал>_<цена>". Дата не может быть просто числом.
func ParseAdvPlacement(payload string) (database.AdvPlacement, bool) {
	left, price, ok := cutLast(payload, "_")
	if !ok || price == "" {
		return database.AdvPlacement{}, false
	}
	date, channel, ok := strings.Cut(left, "_")
	if !ok || date == "" || channel == "" {
		return database.AdvPlacement{}, false
	}
	if isDigits(date) {
		return database.AdvPlacement{}, false
	}
	channel = strings.TrimLeft(channel, "@")
	if channel == "" {
		return database.AdvPlacement{}, false
	}
	if len(date) > 32 || len(channel) > 64 || len(price) > 32 {
		return database.AdvPlacement{}, false
	}
	return database.AdvPlacement{PlacementDate: date, ChannelUsername: channel, Price: price}, true
}

// ParseSub1 разбирает метку заказа AdvCake "<event_id>_<user_id>".
func ParseSub1(sub1 string) (eventID, userID int64, ok bool) {
	rawEvent, rawUser, found := strings.Cut(strings.TrimSpace(sub1), "_")
	if !found || !isDigits(rawEvent) || !isDigits(rawUser) {
		return 0, 0, false
	}
	eventID, err1 := strconv.ParseInt(rawEvent, 10, 64)
	userID, err2 := strconv.ParseInt(rawUser, 10, 64)
	if err1 != nil || err2 != nil || eventID <= 0 || userID <= 0 {
		return 0, 0, false
	}
	return eventID, userID, true
}

func Sub1(eventID, userID int64) string {
	return fmt.Sprintf("%d_%d", eventID, userID)
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
