package messages

import (
	"fmt"
	"html"
	"net/url"
	"strings"
)

const (
	MsgWelcome = `👋 Добро пожаловать в клуб!

Здесь публикуются мероприятия партнёров. Выберите мероприятие в канале и нажмите «Участвовать».
/myevents — мои регистрации
/code 123456 — подтвердить присутствие на мероприятии`

	MsgError = `❌ Ошибка. Попробуйте позже.`

	MsgForbidden = `🚫 Это действие вам недоступно.`

	MsgEventMissing = `😔 Мероприятие не найдено.`

	MsgLinkNotReady = `⏳ Ссылка на чат мероприятия ещё не готова. Попробуйте чуть позже.`

	MsgGenderPrompt = `Чтобы попасть в чат мероприятия, укажите пол:`
	MsgGenderMale   = `👨 Мужской`
	MsgGenderFemale = `👩 Женский`

	MsgJoinChat       = `💬 Чат мероприятия готов.`
	MsgJoinChatHint   = `Нажмите кнопку ниже, чтобы перейти в обсуждение.`
	MsgJoinChatButton = `💬 Перейти в чат`
	MsgViewPostButton = `📣 Анонс`
	MsgJoinButton     = `✋ Участвовать`

	MsgPaymentInstructions = `💳 Участие в «%s» подтверждается предоплатой %d ₽.

Переведите сумму на карту <code>%s</code> и нажмите кнопку ниже.`
	MsgPaidButton = `✅ Я оплатил(а)`

	MsgClaimAccepted = `🕓 Заявка отправлена администратору. Как только оплату проверят, пришлём ссылку на чат.`
	MsgClaimAlready  = `ℹ️ Заявка уже обработана.`
	MsgClaimUnrouted = `⚠️ Не удалось передать заявку администратору. Попробуйте ещё раз чуть позже.`
	MsgAwaitReview   = `🕓 Оплата на проверке у администратора.`
	MsgDeclined      = `❌ Оплата по мероприятию «%s» не подтверждена. Если это ошибка — напишите администратору.`
	MsgApproved      = `🎉 Оплата по мероприятию «%s» подтверждена!`

	MsgAdminClaim = `💳 <b>Заявка на оплату</b>

Мероприятие: %s (#%d)
Участник: %s
Сумма: %s`
	MsgApproveButton = `✅ Подтвердить`
	MsgDeclineButton = `❌ Отклонить`
	MsgAdminApproved = `✅ Оплата подтверждена.`
	MsgAdminDeclined = `❌ Оплата отклонена.`
	MsgAdminAlready  = `ℹ️ Заявка уже обработана другим администратором.`

	MsgPartnerAttendee = `🙋 Новый подтверждённый участник «%s»: %s`

	MsgAttendanceOK      = `✅ Присутствие на «%s» подтверждено. Хорошего вечера!`
	MsgAttendanceAlready = `ℹ️ Присутствие уже подтверждено.`
	MsgAttendanceInvalid = `❌ Код не подошёл. Проверьте код у организатора.`
	MsgAttendanceUsage   = `Отправьте код так: /code 123456`

	MsgNewEventHelp = `Чтобы опубликовать мероприятие, отправьте одним сообщением:

/newevent
name=Название
datetime=25.05.2025 19:00
address=Адрес
description=Описание
price=1500 (пусто — бесплатно)
age=26-35 (или all)`
	MsgPublishSuccess = `🎉 Мероприятие опубликовано! Код для подтверждения присутствия: <code>%s</code>`
	MsgPublishAlready = `ℹ️ Это мероприятие уже опубликовано.`
	MsgPublishFailed  = `❌ Не удалось опубликовать мероприятие. Попробуйте ещё раз.`
	MsgDraftInvalid   = `❌ Проверьте данные мероприятия: %s`
	MsgAttendanceQR   = `QR-код для входа на «%s». Участники сканируют его на площадке.`

	MsgAdvAlready = `Вы уже зарегистрированы в клубе 🙂`

	MsgMyEventsEmpty = `У вас пока нет регистраций.`

	MsgNudgeFirst    = `👋 Заполните, пожалуйста, профиль — так мы будем присылать подходящие мероприятия.`
	MsgNudgeReminder = `⏰ Напоминаем: профиль всё ещё не заполнен.`
	MsgNudgeButton   = `Заполнить профиль`

	MsgProfileGender = `Укажите пол:`
	MsgProfileAge    = `Укажите возраст:`
	MsgProfileSaved  = `✅ Профиль сохранён. Будем присылать подходящие мероприятия.`

	MsgPublishLink = `Анонс: %s`
)

var statusLabels = map[string]string{
	"pending_payment":      "ожидает оплаты",
	"paid_confirm_pending": "оплата на проверке",
	"confirmed":            "подтверждено",
	"declined":             "отклонено",
	"attended_confirmed":   "посещено",
	"published":            "опубликовано",
	"draft":                "не опубликовано",
}

func FormatPaymentInstructions(eventName string, amount int, card string) string {
	return fmt.Sprintf(MsgPaymentInstructions, html.EscapeString(eventName), amount, html.EscapeString(card))
}

func FormatAdminClaim(eventName string, eventID int64, member string, amount *int) string {
	sum := "-"
	if amount != nil {
		sum = fmt.Sprintf("%d ₽", *amount)
	}
	return fmt.Sprintf(MsgAdminClaim, html.EscapeString(eventName), eventID, html.EscapeString(member), sum)
}

func FormatDeclined(eventName string) string {
	return fmt.Sprintf(MsgDeclined, html.EscapeString(eventName))
}

func FormatApproved(eventName string) string {
	return fmt.Sprintf(MsgApproved, html.EscapeString(eventName))
}

func FormatPartnerAttendee(eventName, member string) string {
	return fmt.Sprintf(MsgPartnerAttendee, html.EscapeString(eventName), html.EscapeString(member))
}

func FormatAttendanceOK(eventName string) string {
	return fmt.Sprintf(MsgAttendanceOK, html.EscapeString(eventName))
}

func FormatPublishSuccess(code string) string {
	return fmt.Sprintf(MsgPublishSuccess, html.EscapeString(code))
}

func FormatDraftInvalid(reason string) string {
	return fmt.Sprintf(MsgDraftInvalid, html.EscapeString(reason))
}

func FormatAttendanceQR(eventName string) string {
	return fmt.Sprintf(MsgAttendanceQR, eventName)
}

// FormatMember: @username или id, если username не задан.
func FormatMember(userID int64, username *string) string {
	if username != nil && *username != "" {
		return "@" + *username
	}
	return fmt.Sprintf("id:%d", userID)
}

func FormatStatus(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

// EventCard: поля анонса мероприятия.
type EventCard struct {
	Name        string
	Datetime    string
	Address     string
	Description string
	IsPaid      bool
	Price       *string
	AgeGroup    *string
}

// FormatEvent собирает HTML-анонс мероприятия.
func FormatEvent(c EventCard) string {
	participation := "бесплатно"
	if c.IsPaid && c.Price != nil && *c.Price != "" {
		participation = html.EscapeString(*c.Price) + " ₽"
	}
	mapLink := "https://yandex.ru/maps/?text=" + url.QueryEscape(strings.TrimSpace(c.Address))

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(c.Name))
	fmt.Fprintf(&b, "🗓 %s\n", html.EscapeString(c.Datetime))
	fmt.Fprintf(&b, "📍 <a href=\"%s\">%s</a>\n", mapLink, html.EscapeString(c.Address))
	fmt.Fprintf(&b, "💰 %s\n", participation)
	if c.AgeGroup != nil && *c.AgeGroup != "" {
		age := *c.AgeGroup
		if age == "all" {
			age = "для всех"
		}
		fmt.Fprintf(&b, "👥 %s\n", html.EscapeString(age))
	}
	if c.Description != "" {
		fmt.Fprintf(&b, "\n%s", html.EscapeString(c.Description))
	}
	return b.String()
}

// FormatTopicName: "<дата> - <название>" не длиннее 128 символов.
func FormatTopicName(datetime, name string) string {
	const maxLen = 128
	const ellipsis = "..."
	datetime, name = strings.TrimSpace(datetime), strings.TrimSpace(name)

	base := datetime + name
	if datetime != "" && name != "" {
		base = datetime + " - " + name
	}
	runes := []rune(base)
	if len(runes) <= maxLen {
		return base
	}
	if datetime != "" && name != "" {
		budget := maxLen - len([]rune(datetime)) - len([]rune(" - ")) - len(ellipsis)
		if budget > 0 {
			return datetime + " - " + string([]rune(name)[:budget]) + ellipsis
		}
	}
	return string(runes[:maxLen-len(ellipsis)]) + ellipsis
}

// FormatMyEvents: список регистраций участника.
func FormatMyEvents(lines [][3]string) string {
	if len(lines) == 0 {
		return MsgMyEventsEmpty
	}
	var b strings.Builder
	b.WriteString("📋 Ваши мероприятия:\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "\n• %s, %s — %s", html.EscapeString(l[0]), html.EscapeString(l[1]), FormatStatus(l[2]))
	}
	return b.String()
}
