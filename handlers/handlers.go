package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"holclub_bot/config"
	"holclub_bot/database"
	"holclub_bot/deeplink"
	"holclub_bot/events"
	"holclub_bot/messages"
	"holclub_bot/notify"
	"holclub_bot/registration"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
)

// Users: запросы к пользователям; *database.Queries подходит напрямую.
type Users interface {
	AddUser(ctx context.Context, id int64, username *string, role database.Role) error
	UpdateUsername(ctx context.Context, id int64, username *string) error
	MarkReachable(ctx context.Context, id int64) error
	GetUser(ctx context.Context, id int64) (*database.User, error)
	UpdateProfile(ctx context.Context, id int64, gender database.Gender, ageGroup *string) error
	ListUserRegistrations(ctx context.Context, userID int64, statuses []database.RegistrationStatus) ([]database.UserRegistration, error)
	ListPartnerEvents(ctx context.Context, partnerID int64) ([]database.PartnerEvent, error)
}

type AdvTracker interface {
	RegisterAdvPlacement(ctx context.Context, userID int64, p database.AdvPlacement) (bool, error)
}

type Registrar interface {
	Register(ctx context.Context, eventID, userID int64) (registration.Result, error)
	ClaimPayment(ctx context.Context, eventID, userID int64) (registration.Result, error)
	DecidePayment(ctx context.Context, eventID, userID int64, approve bool, deciderID int64) (registration.Result, error)
	ConfirmAttendance(ctx context.Context, eventID, userID int64, code string) (registration.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, d events.Draft) (events.Result, error)
}

// Deliverer: ответы пользователю; *notify.Notifier помечает недоступных.
type Deliverer interface {
	Deliver(ctx context.Context, recipientID int64, text string, buttons [][]notify.Button) error
}

type Handler struct {
	users Users
	advs  AdvTracker
	reg   Registrar
	pub   Publisher
	out   Deliverer
	cfg   *config.Config
}

func New(users Users, advs AdvTracker, reg Registrar, pub Publisher, out Deliverer, cfg *config.Config) *Handler {
	return &Handler{users: users, advs: advs, reg: reg, pub: pub, out: out, cfg: cfg}
}

func (h *Handler) OnMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message
	if msg.Chat.Type != "private" || msg.From.IsBot {
		return
	}

	h.touch(ctx, msg.From.ID, msg.From.Username)

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	var photoID string
	if len(msg.Photo) > 0 {
		photoID = msg.Photo[len(msg.Photo)-1].FileID
	}
	h.handleText(ctx, msg.From.ID, text, photoID)
}

func (h *Handler) OnCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}
	cb := update.CallbackQuery

	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cb.ID})
	if err != nil {
		log.Printf("Ошибка ответа на callback: %v", err)
	}

	h.touch(ctx, cb.From.ID, cb.From.Username)
	h.handleCallback(ctx, cb.From.ID, cb.Data)
}

// touch регистрирует отправителя и снимает флаги недоступности.
func (h *Handler) touch(ctx context.Context, userID int64, username string) {
	var name *string
	if username != "" {
		name = &username
	}
	if err := h.users.AddUser(ctx, userID, name, database.RoleUser); err != nil {
		log.Printf("Ошибка добавления пользователя %d: %v", userID, err)
		return
	}
	if err := h.users.UpdateUsername(ctx, userID, name); err != nil {
		log.Printf("Ошибка обновления username %d: %v", userID, err)
	}
	if err := h.users.MarkReachable(ctx, userID); err != nil {
		log.Printf("Ошибка снятия флага недоступности %d: %v", userID, err)
	}
}

// command возвращает команду без @botname.
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}

func (h *Handler) handleText(ctx context.Context, userID int64, text, photoID string) {
	uow := uuid.NewString()[:8]

	switch command(text) {
	case "/start":
		h.onStart(ctx, uow, userID, text)
	case "/newevent":
		h.onNewEvent(ctx, uow, userID, text, photoID)
	case "/code":
		_, code, _ := strings.Cut(strings.TrimSpace(text), " ")
		if registration.NormalizeCode(code) == "" {
			h.reply(ctx, userID, messages.MsgAttendanceUsage, nil)
			return
		}
		h.confirmAttendance(ctx, uow, userID, 0, code)
	case "/myevents":
		h.onMyEvents(ctx, userID)
	default:
		h.reply(ctx, userID, messages.MsgWelcome, nil)
	}
}

func (h *Handler) onStart(ctx context.Context, uow string, userID int64, text string) {
	payload := deeplink.StartPayload(text)
	log.Printf("[%s] /start user_id=%d payload=%q", uow, userID, payload)

	if eventID, ok := deeplink.ParseEventChat(payload); ok {
		h.openEvent(ctx, uow, userID, eventID)
		return
	}
	if eventID, code, ok := deeplink.ParseAttend(payload); ok {
		h.confirmAttendance(ctx, uow, userID, eventID, code)
		return
	}
	if p, ok := deeplink.ParseAdvPlacement(payload); ok {
		counted, err := h.advs.RegisterAdvPlacement(ctx, userID, p)
		if err != nil {
			log.Printf("[%s] Ошибка учёта рекламы: %v", uow, err)
		} else if !counted {
			h.reply(ctx, userID, messages.MsgAdvAlready, nil)
			return
		}
	}
	h.reply(ctx, userID, messages.MsgWelcome, nil)
}

// openEvent обрабатывает кнопку «Участвовать»: сначала пол, затем регистрация и следующий шаг.
func (h *Handler) openEvent(ctx context.Context, uow string, userID, eventID int64) {
	user, err := h.users.GetUser(ctx, userID)
	if err != nil || user == nil {
		log.Printf("[%s] Ошибка чтения пользователя %d: %v", uow, userID, err)
		h.reply(ctx, userID, messages.MsgError, nil)
		return
	}
	if !user.Gender.Valid() {
		h.reply(ctx, userID, messages.MsgGenderPrompt, [][]notify.Button{{
			{Text: messages.MsgGenderMale, Data: deeplink.GenderToken(eventID, string(database.GenderMale))},
			{Text: messages.MsgGenderFemale, Data: deeplink.GenderToken(eventID, string(database.GenderFemale))},
		}})
		return
	}

	res, err := h.reg.Register(ctx, eventID, userID)
	if err != nil && !errors.Is(err, registration.ErrNotFound) {
		log.Printf("[%s] Ошибка регистрации event_id=%d user_id=%d: %v", uow, eventID, userID, err)
		h.reply(ctx, userID, messages.MsgError, nil)
		return
	}
	log.Printf("[%s] Регистрация event_id=%d user_id=%d: %s %s", uow, eventID, userID, res.Outcome, res.Status)
	h.sendRegistration(ctx, userID, res)
}

func (h *Handler) sendRegistration(ctx context.Context, userID int64, res registration.Result) {
	switch res.Outcome {
	case registration.OutcomeNotFound:
		h.reply(ctx, userID, messages.MsgEventMissing, nil)
		return
	case registration.OutcomeForbidden:
		h.reply(ctx, userID, messages.MsgForbidden, nil)
		return
	}

	switch res.Status {
	case database.StatusConfirmed, database.StatusAttendedConfirmed:
		if !res.Routed {
			h.reply(ctx, userID, messages.MsgLinkNotReady, nil)
			return
		}
		h.reply(ctx, userID, messages.MsgJoinChat+"\n"+messages.MsgJoinChatHint, [][]notify.Button{{
			{Text: messages.MsgJoinChatButton, URL: res.Route.Link},
		}})
	case database.StatusPendingPayment:
		amount := 0
		if res.Amount != nil {
			amount = *res.Amount
		}
		h.reply(ctx, userID, messages.FormatPaymentInstructions(res.EventName, amount, h.cfg.PaymentCard), [][]notify.Button{{
			{Text: messages.MsgPaidButton, Data: deeplink.ClaimToken(res.EventID)},
		}})
	case database.StatusPaidConfirmPending:
		h.reply(ctx, userID, messages.MsgAwaitReview, nil)
	case database.StatusDeclined:
		h.reply(ctx, userID, messages.FormatDeclined(res.EventName), nil)
	default:
		h.reply(ctx, userID, messages.MsgError, nil)
	}
}

func (h *Handler) confirmAttendance(ctx context.Context, uow string, userID, eventID int64, code string) {
	res, err := h.reg.ConfirmAttendance(ctx, eventID, userID, code)
	if err != nil {
		log.Printf("[%s] Ошибка подтверждения присутствия user_id=%d: %v", uow, userID, err)
		h.reply(ctx, userID, messages.MsgError, nil)
		return
	}
	switch res.Outcome {
	case registration.OutcomeOK:
		h.reply(ctx, userID, messages.FormatAttendanceOK(res.EventName), nil)
	case registration.OutcomeAlready:
		h.reply(ctx, userID, messages.MsgAttendanceAlready, nil)
	default:
		h.reply(ctx, userID, messages.MsgAttendanceInvalid, nil)
	}
}

func (h *Handler) onNewEvent(ctx context.Context, uow string, userID int64, text, photoID string) {
	if !strings.Contains(strings.TrimSpace(text), "\n") {
		h.reply(ctx, userID, messages.MsgNewEventHelp, nil)
		return
	}
	draft, err := events.ParseDraftForm(userID, text)
	if err != nil {
		h.reply(ctx, userID, messages.FormatDraftInvalid(err.Error()), nil)
		return
	}
	draft.PhotoFileID = photoID

	res, err := h.pub.Publish(ctx, draft)
	log.Printf("[%s] Публикация partner=%d: %s event_id=%d", uow, userID, res.Outcome, res.EventID)
	switch res.Outcome {
	case events.OutcomeOK:
		reply := messages.FormatPublishSuccess(res.Code)
		if res.PostLink != "" {
			reply += "\n" + fmt.Sprintf(messages.MsgPublishLink, res.PostLink)
		}
		h.reply(ctx, userID, reply, nil)
	case events.OutcomeAlreadyPublished:
		h.reply(ctx, userID, messages.MsgPublishAlready, nil)
	case events.OutcomeInvalid:
		h.reply(ctx, userID, messages.FormatDraftInvalid(errText(err)), nil)
	case events.OutcomeForbidden:
		h.reply(ctx, userID, messages.MsgForbidden, nil)
	default:
		log.Printf("[%s] Ошибка публикации: %v", uow, err)
		h.reply(ctx, userID, messages.MsgPublishFailed, nil)
	}
}

func (h *Handler) onMyEvents(ctx context.Context, userID int64) {
	user, err := h.users.GetUser(ctx, userID)
	if err != nil || user == nil {
		h.reply(ctx, userID, messages.MsgError, nil)
		return
	}

	var lines [][3]string
	if user.Role == database.RolePartner {
		items, err := h.users.ListPartnerEvents(ctx, userID)
		if err != nil {
			log.Printf("Ошибка списка мероприятий партнёра %d: %v", userID, err)
			h.reply(ctx, userID, messages.MsgError, nil)
			return
		}
		for _, it := range items {
			state := "draft"
			if it.ChannelID != nil && it.ChannelMessageID != nil {
				state = "published"
			}
			lines = append(lines, [3]string{it.Name, it.Datetime, state})
		}
	} else {
		regs, err := h.users.ListUserRegistrations(ctx, userID, []database.RegistrationStatus{
			database.StatusPendingPayment,
			database.StatusPaidConfirmPending,
			database.StatusConfirmed,
			database.StatusDeclined,
			database.StatusAttendedConfirmed,
		})
		if err != nil {
			log.Printf("Ошибка списка регистраций %d: %v", userID, err)
			h.reply(ctx, userID, messages.MsgError, nil)
			return
		}
		for _, r := range regs {
			lines = append(lines, [3]string{r.EventName, r.EventDatetime, string(r.Status)})
		}
	}
	h.reply(ctx, userID, messages.FormatMyEvents(lines), nil)
}

func (h *Handler) handleCallback(ctx context.Context, userID int64, data string) {
	uow := uuid.NewString()[:8]

	if data == deeplink.ProfileContinue {
		h.askGender(ctx, userID)
		return
	}
	if field, value, ok := deeplink.ParseProfile(data); ok {
		h.onProfile(ctx, uow, userID, field, value)
		return
	}

	a, ok := deeplink.ParseCallback(data)
	if !ok {
		log.Printf("[%s] Неизвестный callback от %d: %q", uow, userID, data)
		return
	}

	switch a.Name {
	case deeplink.ActionGender:
		user, err := h.users.GetUser(ctx, userID)
		if err != nil || user == nil {
			h.reply(ctx, userID, messages.MsgError, nil)
			return
		}
		if err := h.users.UpdateProfile(ctx, userID, database.Gender(a.Value), user.AgeGroup); err != nil {
			log.Printf("[%s] Ошибка сохранения пола %d: %v", uow, userID, err)
			h.reply(ctx, userID, messages.MsgError, nil)
			return
		}
		h.openEvent(ctx, uow, userID, a.EventID)
	case deeplink.ActionJoinChat:
		h.openEvent(ctx, uow, userID, a.EventID)
	case deeplink.ActionClaim:
		h.onClaim(ctx, uow, userID, a.EventID)
	case deeplink.ActionDecision:
		h.onDecision(ctx, uow, userID, a)
	}
}

func (h *Handler) onClaim(ctx context.Context, uow string, userID, eventID int64) {
	res, err := h.reg.ClaimPayment(ctx, eventID, userID)
	if err != nil && !errors.Is(err, registration.ErrNotFound) {
		log.Printf("[%s] Ошибка заявки на оплату event_id=%d user_id=%d: %v", uow, eventID, userID, err)
		h.reply(ctx, userID, messages.MsgError, nil)
		return
	}
	log.Printf("[%s] Заявка на оплату event_id=%d user_id=%d: %s", uow, eventID, userID, res.Outcome)
	switch res.Outcome {
	case registration.OutcomeOK:
		h.reply(ctx, userID, messages.MsgClaimAccepted, nil)
	case registration.OutcomeAlready:
		h.reply(ctx, userID, messages.MsgClaimAlready, nil)
	case registration.OutcomeUnrouted:
		h.reply(ctx, userID, messages.MsgClaimUnrouted, nil)
	case registration.OutcomeForbidden:
		h.reply(ctx, userID, messages.MsgForbidden, nil)
	default:
		h.reply(ctx, userID, messages.MsgEventMissing, nil)
	}
}

func (h *Handler) onDecision(ctx context.Context, uow string, deciderID int64, a deeplink.Action) {
	approve := a.Value == deeplink.DecisionApprove
	res, err := h.reg.DecidePayment(ctx, a.EventID, a.UserID, approve, deciderID)
	if err != nil && !errors.Is(err, registration.ErrNotFound) {
		log.Printf("[%s] Ошибка решения по оплате event_id=%d user_id=%d: %v", uow, a.EventID, a.UserID, err)
		h.reply(ctx, deciderID, messages.MsgError, nil)
		return
	}
	log.Printf("[%s] Решение %s по event_id=%d user_id=%d от %d: %s", uow, a.Value, a.EventID, a.UserID, deciderID, res.Outcome)
	switch res.Outcome {
	case registration.OutcomeOK:
		if approve {
			h.reply(ctx, deciderID, messages.MsgAdminApproved, nil)
		} else {
			h.reply(ctx, deciderID, messages.MsgAdminDeclined, nil)
		}
	case registration.OutcomeAlready:
		h.reply(ctx, deciderID, messages.MsgAdminAlready, nil)
	case registration.OutcomeForbidden:
		h.reply(ctx, deciderID, messages.MsgForbidden, nil)
	default:
		h.reply(ctx, deciderID, messages.MsgEventMissing, nil)
	}
}

func (h *Handler) askGender(ctx context.Context, userID int64) {
	h.reply(ctx, userID, messages.MsgProfileGender, [][]notify.Button{{
		{Text: messages.MsgGenderMale, Data: deeplink.ProfileGenderToken(string(database.GenderMale))},
		{Text: messages.MsgGenderFemale, Data: deeplink.ProfileGenderToken(string(database.GenderFemale))},
	}})
}

func (h *Handler) askAge(ctx context.Context, userID int64) {
	var rows [][]notify.Button
	var row []notify.Button
	for _, g := range database.AgeGroups {
		row = append(row, notify.Button{Text: g, Data: deeplink.ProfileAgeToken(g)})
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	h.reply(ctx, userID, messages.MsgProfileAge, rows)
}

// onProfile сохраняет одно поле профиля и спрашивает следующее незаполненное.
func (h *Handler) onProfile(ctx context.Context, uow string, userID int64, field, value string) {
	user, err := h.users.GetUser(ctx, userID)
	if err != nil || user == nil {
		h.reply(ctx, userID, messages.MsgError, nil)
		return
	}
	gender, age := user.Gender, user.AgeGroup
	switch field {
	case deeplink.ProfileGender:
		gender = database.Gender(value)
	case deeplink.ProfileAge:
		age = &value
	}
	if err := h.users.UpdateProfile(ctx, userID, gender, age); err != nil {
		log.Printf("[%s] Ошибка сохранения профиля %d: %v", uow, userID, err)
		h.reply(ctx, userID, messages.MsgError, nil)
		return
	}

	switch {
	case !gender.Valid():
		h.askGender(ctx, userID)
	case age == nil:
		h.askAge(ctx, userID)
	default:
		h.reply(ctx, userID, messages.MsgProfileSaved, nil)
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string, buttons [][]notify.Button) {
	if err := h.out.Deliver(ctx, chatID, text, buttons); err != nil {
		log.Printf("Ошибка отправки %d: %v", chatID, err)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
