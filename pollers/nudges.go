package pollers

import (
	"context"
	"fmt"
	"log"
	"time"

	"holclub_bot/database"
	"holclub_bot/deeplink"
	"holclub_bot/messages"
	"holclub_bot/notify"
)

type NudgeStore interface {
	CompleteFilledNudges(ctx context.Context) (int64, error)
	ListDueNudges(ctx context.Context, firstDelay, remindDelay time.Duration, maxAttempts, limit int) ([]database.DueNudge, error)
	MarkNudgeSent(ctx context.Context, userID int64) error
}

type NudgeUnit interface {
	InTx(ctx context.Context, fn func(NudgeStore) error) error
}

type Deliverer interface {
	Deliver(ctx context.Context, recipientID int64, text string, buttons [][]notify.Button) error
}

type NudgeSettings struct {
	FirstDelay  time.Duration
	RemindDelay time.Duration
	MaxAttempts int
	BatchSize   int
}

// NudgePoller напоминает участникам заполнить профиль.
type NudgePoller struct {
	uow      NudgeUnit
	notifier Deliverer
	settings NudgeSettings
}

func NewNudgePoller(uow NudgeUnit, notifier Deliverer, settings NudgeSettings) *NudgePoller {
	return &NudgePoller{uow: uow, notifier: notifier, settings: settings}
}

// NudgeUnitFromDB оборачивает database.DB.
func NudgeUnitFromDB(db *database.DB) NudgeUnit {
	return nudgeUnit{db: db}
}

type nudgeUnit struct {
	db *database.DB
}

func (u nudgeUnit) InTx(ctx context.Context, fn func(NudgeStore) error) error {
	return u.db.InTx(ctx, func(q *database.Queries) error {
		return fn(q)
	})
}

func nudgeText(attempt int) string {
	if attempt <= 1 {
		return messages.MsgNudgeFirst
	}
	return messages.MsgNudgeReminder
}

// PollOnce рассылает напоминания о профиле. Отправка идёт вне транзакции,
// отметка о ней делается отдельно для каждого участника.
func (p *NudgePoller) PollOnce(ctx context.Context) (int, error) {
	var due []database.DueNudge
	err := p.uow.InTx(ctx, func(st NudgeStore) error {
		if _, err := st.CompleteFilledNudges(ctx); err != nil {
			return fmt.Errorf("закрытие напоминаний: %w", err)
		}
		var err error
		due, err = st.ListDueNudges(ctx, p.settings.FirstDelay, p.settings.RemindDelay, p.settings.MaxAttempts, p.settings.BatchSize)
		if err != nil {
			return fmt.Errorf("список напоминаний: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	buttons := [][]notify.Button{{{Text: messages.MsgNudgeButton, Data: deeplink.ProfileContinue}}}
	sent := 0
	for _, d := range due {
		if err := p.notifier.Deliver(ctx, d.UserID, nudgeText(d.Attempt), buttons); err != nil {
			log.Printf("Напоминание не доставлено user_id=%d: %v", d.UserID, err)
			continue
		}
		sent++
		err := p.uow.InTx(ctx, func(st NudgeStore) error {
			return st.MarkNudgeSent(ctx, d.UserID)
		})
		if err != nil {
			log.Printf("Не удалось отметить напоминание user_id=%d: %v", d.UserID, err)
		}
	}
	if sent > 0 {
		log.Printf("Напоминаний о профиле отправлено: %d", sent)
	}
	return sent, nil
}

func (p *NudgePoller) Poll(ctx context.Context) error {
	_, err := p.PollOnce(ctx)
	return err
}
