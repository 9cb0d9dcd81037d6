// Package chatlink строит ссылки на обсуждения мероприятий.
package chatlink

import (
	"fmt"
	"strconv"
	"strings"

	"holclub_bot/database"
)

type Kind string

const (
	KindThread Kind = "thread"
	KindInvite Kind = "invite"
)

// Route: ссылка, по которой участник попадает в обсуждение.
type Route struct {
	Link string
	Kind Kind
}

// channelID убирает префикс -100 у id супергрупп и каналов.
func channelID(chatID int64) string {
	s := strconv.FormatInt(chatID, 10)
	if strings.HasPrefix(s, "-100") {
		return s[4:]
	}
	if chatID < 0 {
		return s[1:]
	}
	return s
}

// TopicLink строит ссылку на сообщение в теме. Публичный username предпочтительнее числового id.
func TopicLink(ref database.ThreadRef) (string, bool) {
	if ref.ThreadID == 0 || ref.MessageID == 0 {
		return "", false
	}
	if username := strings.TrimLeft(ref.ChatUsername, "@"); username != "" {
		return fmt.Sprintf("https://t.me/%s/%d?thread=%d", username, ref.MessageID, ref.ThreadID), true
	}
	if ref.ChatID == 0 {
		return "", false
	}
	return fmt.Sprintf("https://t.me/c/%s/%d?thread=%d", channelID(ref.ChatID), ref.MessageID, ref.ThreadID), true
}

// PostLink: ссылка на пост в канале.
func PostLink(chatID int64, messageID int, username string) (string, bool) {
	if messageID == 0 {
		return "", false
	}
	if username = strings.TrimLeft(username, "@"); username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", username, messageID), true
	}
	if chatID == 0 {
		return "", false
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", channelID(chatID), messageID), true
}

// EventPostLink: ссылка на анонс опубликованного мероприятия.
func EventPostLink(ev *database.Event) (string, bool) {
	if ev == nil || !ev.Published() {
		return "", false
	}
	return PostLink(*ev.ChannelID, *ev.ChannelMessageID, "")
}

// ForGender выбирает тему по полу, иначе общий инвайт. ok=false, если ссылки пока нет.
func ForGender(ev *database.Event, gender database.Gender) (Route, bool) {
	if ev == nil {
		return Route{}, false
	}
	var ref *database.ThreadRef
	switch gender {
	case database.GenderFemale:
		ref = ev.FemaleThread
	case database.GenderMale:
		ref = ev.MaleThread
	}
	if ref != nil {
		if link, ok := TopicLink(*ref); ok {
			return Route{Link: link, Kind: KindThread}, true
		}
	}
	if ev.InviteLink != nil && strings.TrimSpace(*ev.InviteLink) != "" {
		return Route{Link: strings.TrimSpace(*ev.InviteLink), Kind: KindInvite}, true
	}
	return Route{}, false
}
