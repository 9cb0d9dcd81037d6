// Package registration ведёт регистрации участников на мероприятия:
// заявку на оплату, решение администратора и подтверждение присутствия.
// Все переходы статуса выполняются CAS-обновлением в БД.
package registration

import (
	"context"
	"errors"
	"log"

	"holclub_bot/chatlink"
	"holclub_bot/config"
	"holclub_bot/database"
	"holclub_bot/notify"
)

var ErrNotFound = errors.New("регистрация или мероприятие не найдены")

// Outcome: результат операции для показа пользователю.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeAlready   Outcome = "already"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeForbidden Outcome = "forbidden"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeUnrouted  Outcome = "unrouted"
)

type Result struct {
	Outcome   Outcome
	Status    database.RegistrationStatus
	Amount    *int
	EventID   int64
	EventName string
	// Route заполнен, если участнику есть куда перейти (Routed=true).
	Route  chatlink.Route
	Routed bool
}

// Store: запросы, которые выполняются внутри одной транзакции.
type Store interface {
	GetUser(ctx context.Context, id int64) (*database.User, error)
	GetEvent(ctx context.Context, id int64) (*database.Event, error)
	GetRegistration(ctx context.Context, eventID, userID int64) (*database.Registration, error)
	CreateRegistration(ctx context.Context, eventID, userID int64, status database.RegistrationStatus, amount *int) (bool, error)
	TransitionRegistration(ctx context.Context, t database.Transition) (bool, error)
	ListUserRegistrations(ctx context.Context, userID int64, statuses []database.RegistrationStatus) ([]database.UserRegistration, error)
	AdvanceTemperature(ctx context.Context, id int64, from, to database.Temperature) (bool, error)
	AdminIDs(ctx context.Context) ([]int64, error)
}

// UnitOfWork выполняет fn в транзакции: commit при nil, rollback при ошибке.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

type Notifier interface {
	Deliver(ctx context.Context, recipientID int64, text string, buttons [][]notify.Button) error
	FanOut(ctx context.Context, recipients []int64, text string, buttons [][]notify.Button) (int, error)
}

// Auditor дублирует важные события в лог-канал.
type Auditor interface {
	Send(format string, args ...any)
}

type nopAuditor struct{}

func (nopAuditor) Send(string, ...any) {}

type Service struct {
	uow      UnitOfWork
	notifier Notifier
	audit    Auditor
	cfg      *config.Config
}

func New(uow UnitOfWork, notifier Notifier, audit Auditor, cfg *config.Config) *Service {
	if audit == nil {
		audit = nopAuditor{}
	}
	return &Service{uow: uow, notifier: notifier, audit: audit, cfg: cfg}
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

// advanceTier поднимает уровень вовлечённости на один шаг.
// Отдельная транзакция после основного перехода: ошибка только логируется.
func (s *Service) advanceTier(ctx context.Context, userID int64) {
	err := s.uow.InTx(ctx, func(st Store) error {
		u, err := st.GetUser(ctx, userID)
		if err != nil || u == nil {
			return err
		}
		if u.Temperature == database.TemperatureHot {
			return nil
		}
		next := u.Temperature.Next()
		moved, err := st.AdvanceTemperature(ctx, userID, u.Temperature, next)
		if err != nil {
			return err
		}
		if moved {
			log.Printf("Температура: user_id=%d %s -> %s", userID, u.Temperature, next)
		}
		return nil
	})
	if err != nil {
		log.Printf("Ошибка обновления температуры user_id=%d: %v", userID, err)
	}
}

// current перечитывает статус после проигранного CAS.
func current(ctx context.Context, st Store, eventID, userID int64) (Result, error) {
	reg, err := st.GetRegistration(ctx, eventID, userID)
	if err != nil {
		return Result{}, err
	}
	if reg == nil {
		return Result{Outcome: OutcomeNotFound, EventID: eventID}, ErrNotFound
	}
	return Result{Outcome: OutcomeAlready, Status: reg.Status, Amount: reg.Amount, EventID: eventID}, nil
}

func isMember(u *database.User) bool {
	return u != nil && u.Role == database.RoleUser
}
