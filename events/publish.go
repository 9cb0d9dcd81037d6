package events

import (
	"context"
	"errors"
	"fmt"
	"log"

	"holclub_bot/chatlink"
	"holclub_bot/config"
	"holclub_bot/database"
	"holclub_bot/deeplink"
	"holclub_bot/messages"
	"holclub_bot/moderation"
	"holclub_bot/notify"
)

var (
	ErrPublishFailed = errors.New("не удалось опубликовать мероприятие")
	ErrNoDiscussion  = errors.New("не настроены чаты обсуждений")
)

type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeAlreadyPublished Outcome = "already_published"
	OutcomeInvalid          Outcome = "invalid"
	OutcomeForbidden        Outcome = "forbidden"
	OutcomeFailed           Outcome = "failed"
)

type Store interface {
	GetUser(ctx context.Context, id int64) (*database.User, error)
	CreateEvent(ctx context.Context, e *database.Event) (int64, bool, error)
	MarkEventPublished(ctx context.Context, id, channelID int64, messageID int) error
	SetEventThreads(ctx context.Context, id int64, male, female *database.ThreadRef) error
	SetEventInviteLink(ctx context.Context, id, chatID int64, link string) error
	DeleteEvent(ctx context.Context, id int64) error
	ActiveUserProfilesByRole(ctx context.Context, role database.Role) ([]database.UserProfile, error)
}

type UnitOfWork interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

// Publisher: операции мессенджера, нужные для публикации.
type Publisher interface {
	PostEvent(ctx context.Context, chatID int64, text, photoFileID string, buttons [][]notify.Button) (int, error)
	DeletePost(ctx context.Context, chatID int64, messageID int) error
	CreateThread(ctx context.Context, chatID int64, name, intro string) (database.ThreadRef, error)
	DeleteThread(ctx context.Context, chatID int64, threadID int) error
	CreateInviteLink(ctx context.Context, chatID int64, name string) (string, error)
	SendQR(ctx context.Context, chatID int64, png []byte, caption string) error
}

type Deliverer interface {
	Deliver(ctx context.Context, recipientID int64, text string, buttons [][]notify.Button) error
}

type Auditor interface {
	Send(format string, args ...any)
}

type nopAuditor struct{}

func (nopAuditor) Send(string, ...any) {}

type Result struct {
	Outcome   Outcome
	EventID   int64
	PostLink  string
	Code      string
	QR        []byte
	Broadcast int
}

type Service struct {
	uow         UnitOfWork
	pub         Publisher
	notifier    Deliverer
	audit       Auditor
	detector    *moderation.Detector
	cfg         *config.Config
	botUsername string
}

func NewService(uow UnitOfWork, pub Publisher, notifier Deliverer, audit Auditor, cfg *config.Config, botUsername string) *Service {
	if audit == nil {
		audit = nopAuditor{}
	}
	return &Service{
		uow:         uow,
		pub:         pub,
		notifier:    notifier,
		audit:       audit,
		detector:    moderation.New(cfg.AllowedDomains),
		cfg:         cfg,
		botUsername: botUsername,
	}
}

// FromDB оборачивает database.DB в UnitOfWork.
func FromDB(db *database.DB) UnitOfWork {
	return dbUnit{db: db}
}

type dbUnit struct {
	db *database.DB
}

func (u dbUnit) InTx(ctx context.Context, fn func(Store) error) error {
	return u.db.InTx(ctx, func(q *database.Queries) error {
		return fn(q)
	})
}

// Publish создаёт мероприятие и публикует его. Повтор с теми же полями даёт AlreadyPublished.
// Если пост или обсуждения не создались, запись удаляется.
func (s *Service) Publish(ctx context.Context, d Draft) (Result, error) {
	var partner *database.User
	err := s.uow.InTx(ctx, func(st Store) error {
		var err error
		partner, err = st.GetUser(ctx, d.PartnerUserID)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if partner == nil || (partner.Role != database.RolePartner && partner.Role != database.RoleAdmin) {
		return Result{Outcome: OutcomeForbidden}, nil
	}

	if err := d.Validate(s.detector, s.cfg.PriceMax); err != nil {
		return Result{Outcome: OutcomeInvalid}, err
	}
	if partner.Role == database.RolePartner {
		d.ApplyCommission(partner.CommissionPercent)
	}

	code, err := NewAttendanceCode()
	if err != nil {
		return Result{}, err
	}
	ev := d.Event(code)

	var inserted bool
	err = s.uow.InTx(ctx, func(st Store) error {
		var err error
		ev.ID, inserted, err = st.CreateEvent(ctx, ev)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("создание мероприятия: %w", err)
	}
	if !inserted {
		log.Printf("Мероприятие уже опубликовано: partner=%d fingerprint=%s", d.PartnerUserID, ev.Fingerprint)
		return Result{Outcome: OutcomeAlreadyPublished}, nil
	}

	// запись уже есть, пост ещё нет: при ошибке удаляем запись
	text := messages.FormatEvent(cardOf(ev))
	buttons := [][]notify.Button{{{
		Text: messages.MsgJoinButton,
		URL:  deeplink.BotStartLink(s.botUsername, deeplink.EventChatPayload(ev.ID)),
	}}}
	messageID, err := s.pub.PostEvent(ctx, s.cfg.EventsChannelID, text, d.PhotoFileID, buttons)
	if err != nil {
		s.rollback(ctx, ev.ID, 0, fmt.Errorf("пост в канал: %w", err))
		return Result{Outcome: OutcomeFailed, EventID: ev.ID}, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	channelID := s.cfg.EventsChannelID
	err = s.uow.InTx(ctx, func(st Store) error {
		return st.MarkEventPublished(ctx, ev.ID, channelID, messageID)
	})
	if err == nil {
		err = s.attachDiscussion(ctx, ev)
	}
	if err != nil {
		s.rollback(ctx, ev.ID, messageID, err)
		return Result{Outcome: OutcomeFailed, EventID: ev.ID}, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	ev.ChannelID, ev.ChannelMessageID = &channelID, &messageID

	res := Result{Outcome: OutcomeOK, EventID: ev.ID, Code: code}
	res.PostLink, _ = chatlink.EventPostLink(ev)
	res.Broadcast = s.broadcast(ctx, ev, text, buttons)

	if res.QR, err = AttendanceQR(s.botUsername, ev.ID, code); err != nil {
		log.Printf("QR для event_id=%d: %v", ev.ID, err)
	} else if err := s.pub.SendQR(ctx, d.PartnerUserID, res.QR, messages.FormatAttendanceQR(ev.Name)); err != nil {
		log.Printf("Не удалось отправить QR партнёру %d: %v", d.PartnerUserID, err)
	}

	s.audit.Send("📣 Опубликовано мероприятие #%d «%s», партнёр %d, разослано %d", ev.ID, ev.Name, d.PartnerUserID, res.Broadcast)
	return res, nil
}

// attachDiscussion создаёт по теме на каждый пол либо одну инвайт-ссылку в общий чат.
func (s *Service) attachDiscussion(ctx context.Context, ev *database.Event) error {
	topicName := messages.FormatTopicName(ev.Datetime, ev.Name)

	if s.cfg.TopicMode() {
		male, err := s.pub.CreateThread(ctx, s.cfg.MaleChatID, topicName, topicName)
		if err != nil {
			return fmt.Errorf("тема (м): %w", err)
		}
		female, err := s.pub.CreateThread(ctx, s.cfg.FemaleChatID, topicName, topicName)
		if err != nil {
			s.dropThreads(ctx, male)
			return fmt.Errorf("тема (ж): %w", err)
		}
		err = s.uow.InTx(ctx, func(st Store) error {
			return st.SetEventThreads(ctx, ev.ID, &male, &female)
		})
		if err != nil {
			s.dropThreads(ctx, male, female)
			return fmt.Errorf("сохранение тем: %w", err)
		}
		ev.MaleThread, ev.FemaleThread = &male, &female
		return nil
	}

	if s.cfg.SharedChatID != 0 {
		link, err := s.pub.CreateInviteLink(ctx, s.cfg.SharedChatID, topicName)
		if err != nil {
			return fmt.Errorf("инвайт-ссылка: %w", err)
		}
		ev.InviteLink = &link
		return s.uow.InTx(ctx, func(st Store) error {
			return st.SetEventInviteLink(ctx, ev.ID, s.cfg.SharedChatID, link)
		})
	}
	return ErrNoDiscussion
}

// dropThreads удаляет уже созданные темы, если публикация не состоялась.
func (s *Service) dropThreads(ctx context.Context, refs ...database.ThreadRef) {
	for _, ref := range refs {
		if err := s.pub.DeleteThread(ctx, ref.ChatID, ref.ThreadID); err != nil {
			log.Printf("Не удалось удалить тему %d в чате %d: %v", ref.ThreadID, ref.ChatID, err)
		}
	}
}

// rollback удаляет пост (если был) и запись мероприятия.
func (s *Service) rollback(ctx context.Context, eventID int64, messageID int, cause error) {
	log.Printf("Откат публикации event_id=%d: %v", eventID, cause)
	if messageID != 0 {
		if err := s.pub.DeletePost(ctx, s.cfg.EventsChannelID, messageID); err != nil {
			log.Printf("Не удалось удалить пост %d: %v", messageID, err)
		}
	}
	err := s.uow.InTx(ctx, func(st Store) error {
		return st.DeleteEvent(ctx, eventID)
	})
	if err != nil {
		log.Printf("Не удалось удалить мероприятие %d: %v", eventID, err)
	}
	s.audit.Send("⚠️ Публикация мероприятия #%d отменена: %v", eventID, cause)
}

// broadcast рассылает анонс активным участникам подходящей возрастной группы.
func (s *Service) broadcast(ctx context.Context, ev *database.Event, text string, buttons [][]notify.Button) int {
	var profiles []database.UserProfile
	err := s.uow.InTx(ctx, func(st Store) error {
		var err error
		profiles, err = st.ActiveUserProfilesByRole(ctx, database.RoleUser)
		return err
	})
	if err != nil {
		log.Printf("Список участников для рассылки: %v", err)
		return 0
	}

	target := ""
	if ev.AgeGroup != nil {
		target = *ev.AgeGroup
	}
	sent := 0
	for _, p := range profiles {
		if target != "" && target != database.AgeGroupAll && (p.AgeGroup == nil || *p.AgeGroup != target) {
			continue
		}
		if err := s.notifier.Deliver(ctx, p.ID, text, buttons); err != nil {
			log.Printf("Анонс не доставлен user_id=%d: %v", p.ID, err)
			continue
		}
		sent++
	}
	return sent
}

func cardOf(ev *database.Event) messages.EventCard {
	return messages.EventCard{
		Name:        ev.Name,
		Datetime:    ev.Datetime,
		Address:     ev.Address,
		Description: ev.Description,
		IsPaid:      ev.IsPaid,
		Price:       ev.Price,
		AgeGroup:    ev.AgeGroup,
	}
}
