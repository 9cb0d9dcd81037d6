// Package notify доставляет сообщения пользователям и отслеживает их доступность.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
)

var ErrNoRecipients = errors.New("нет получателей")

// Failure: класс ошибки доставки.
type Failure string

const (
	FailureTransient   Failure = "transient"
	FailureUnreachable Failure = "unreachable"
	FailureBlocked     Failure = "blocked"
)

// DeliveryError: классифицированная ошибка отправки конкретному получателю.
type DeliveryError struct {
	RecipientID int64
	Failure     Failure
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("доставка %d (%s): %v", e.RecipientID, e.Failure, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Button описывает inline-кнопку со ссылкой или callback-данными.
type Button struct {
	Text string
	URL  string
	Data string
}

// Sender: исходящий канал доставки.
type Sender interface {
	Send(ctx context.Context, recipientID int64, text string, buttons [][]Button) error
}

// Reachability обновляет флаги доступности пользователя.
type Reachability interface {
	MarkUnreachable(ctx context.Context, id int64, blocked bool) error
}

type Notifier struct {
	sender Sender
	reach  Reachability
}

func New(sender Sender, reach Reachability) *Notifier {
	return &Notifier{sender: sender, reach: reach}
}

// Deliver отправляет сообщение; при blocked/unreachable помечает пользователя недоступным.
func (n *Notifier) Deliver(ctx context.Context, recipientID int64, text string, buttons [][]Button) error {
	err := n.sender.Send(ctx, recipientID, text, buttons)
	if err == nil {
		return nil
	}

	var de *DeliveryError
	if errors.As(err, &de) && de.Failure != FailureTransient && n.reach != nil {
		if markErr := n.reach.MarkUnreachable(ctx, recipientID, de.Failure == FailureBlocked); markErr != nil {
			log.Printf("Ошибка обновления доступности user_id=%d: %v", recipientID, markErr)
		}
	}
	return err
}

// FanOut рассылает всем получателям и возвращает число успешных доставок.
// Ошибки отдельных получателей пропускаются; ошибка возвращается, только если не доставлено никому.
func (n *Notifier) FanOut(ctx context.Context, recipients []int64, text string, buttons [][]Button) (int, error) {
	if len(recipients) == 0 {
		return 0, ErrNoRecipients
	}

	delivered := 0
	var errs []error
	for _, id := range recipients {
		if err := n.Deliver(ctx, id, text, buttons); err != nil {
			log.Printf("Не доставлено user_id=%d: %v", id, err)
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return 0, errors.Join(errs...)
	}
	return delivered, nil
}
