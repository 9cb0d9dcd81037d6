package registration

import (
	"context"
	"fmt"
	"log"

	"holclub_bot/chatlink"
	"holclub_bot/database"
	"holclub_bot/deeplink"
	"holclub_bot/messages"
	"holclub_bot/notify"
)

// Register создаёт регистрацию при первом обращении участника к мероприятию.
// Повторное обращение только читает текущий статус.
func (s *Service) Register(ctx context.Context, eventID, userID int64) (Result, error) {
	var res Result
	err := s.uow.InTx(ctx, func(st Store) error {
		user, err := st.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		ev, err := st.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if user == nil || ev == nil || !ev.Published() {
			res = Result{Outcome: OutcomeNotFound, EventID: eventID}
			return ErrNotFound
		}
		res = Result{EventID: eventID, EventName: ev.Name}
		if !isMember(user) || ev.PartnerUserID == userID {
			res.Outcome = OutcomeForbidden
			return nil
		}

		existing, err := st.GetRegistration(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if existing == nil {
			status, amount := database.StatusPendingPayment, PrepayAmount(ev)
			if !ev.IsPaid {
				status, amount = database.StatusConfirmed, nil
			}
			created, err := st.CreateRegistration(ctx, eventID, userID, status, amount)
			if err != nil {
				return fmt.Errorf("создание регистрации: %w", err)
			}
			if created {
				res.Outcome, res.Status, res.Amount = OutcomeOK, status, amount
				res.Route, res.Routed = routeFor(ev, user, status)
				return nil
			}
			// параллельный запрос успел первым
			if existing, err = st.GetRegistration(ctx, eventID, userID); err != nil {
				return err
			}
			if existing == nil {
				res.Outcome = OutcomeNotFound
				return ErrNotFound
			}
		}
		res.Outcome, res.Status, res.Amount = OutcomeAlready, existing.Status, existing.Amount
		res.Route, res.Routed = routeFor(ev, user, existing.Status)
		return nil
	})
	return res, err
}

// ClaimPayment: участник сообщает об оплате (pending_payment -> paid_confirm_pending).
// Заявку получают все проверяющие; если не доставлено никому, переход откатывается.
func (s *Service) ClaimPayment(ctx context.Context, eventID, userID int64) (Result, error) {
	var (
		res       Result
		ev        *database.Event
		member    *database.User
		recipient []int64
		prior     *int
	)
	err := s.uow.InTx(ctx, func(st Store) error {
		var err error
		if member, err = st.GetUser(ctx, userID); err != nil {
			return err
		}
		if ev, err = st.GetEvent(ctx, eventID); err != nil {
			return err
		}
		if member == nil || ev == nil {
			res = Result{Outcome: OutcomeNotFound, EventID: eventID}
			return ErrNotFound
		}
		res = Result{EventID: eventID, EventName: ev.Name}
		if !isMember(member) || ev.PartnerUserID == userID {
			res.Outcome = OutcomeForbidden
			return nil
		}

		reg, err := st.GetRegistration(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if reg == nil {
			res.Outcome = OutcomeNotFound
			return ErrNotFound
		}
		if reg.Status != database.StatusPendingPayment {
			res.Outcome, res.Status, res.Amount = OutcomeAlready, reg.Status, reg.Amount
			return nil
		}

		prior = reg.Amount
		amount := PrepayAmount(ev)
		moved, err := st.TransitionRegistration(ctx, database.Transition{
			EventID: eventID,
			UserID:  userID,
			From:    database.StatusPendingPayment,
			To:      database.StatusPaidConfirmPending,
			Amount:  amount,
		})
		if err != nil {
			return fmt.Errorf("заявка на оплату: %w", err)
		}
		if !moved {
			res, err = current(ctx, st, eventID, userID)
			res.EventName = ev.Name
			return err
		}

		admins, err := st.AdminIDs(ctx)
		if err != nil {
			return err
		}
		recipient = reviewers(s.cfg.ApprovalPolicy, mergeIDs(admins, s.cfg.AdminIDs), ev)
		res.Outcome, res.Status, res.Amount = OutcomeOK, database.StatusPaidConfirmPending, amount
		return nil
	})
	if err != nil || res.Outcome != OutcomeOK {
		return res, err
	}

	// рассылка после commit: проверяющий не должен увидеть незакоммиченную заявку
	text := messages.FormatAdminClaim(ev.Name, ev.ID, messages.FormatMember(member.ID, member.Username), res.Amount)
	buttons := [][]notify.Button{{
		{Text: messages.MsgApproveButton, Data: deeplink.DecisionToken(eventID, userID, deeplink.DecisionApprove)},
		{Text: messages.MsgDeclineButton, Data: deeplink.DecisionToken(eventID, userID, deeplink.DecisionDecline)},
	}}
	delivered, fanErr := s.notifier.FanOut(ctx, recipient, text, buttons)
	if delivered > 0 {
		log.Printf("Заявка на оплату: event_id=%d user_id=%d доставлено=%d", eventID, userID, delivered)
		return res, nil
	}

	log.Printf("Заявка не доставлена никому, откат: event_id=%d user_id=%d: %v", eventID, userID, fanErr)
	if err := s.compensateClaim(ctx, eventID, userID, prior); err != nil {
		return res, err
	}
	s.audit.Send("⚠️ Заявка на оплату не доставлена, откат: event #%d, user %d", eventID, userID)
	res.Outcome, res.Status, res.Amount = OutcomeUnrouted, database.StatusPendingPayment, prior
	return res, nil
}

// compensateClaim возвращает регистрацию в pending_payment с суммой, которая была до заявки.
func (s *Service) compensateClaim(ctx context.Context, eventID, userID int64, prior *int) error {
	return s.uow.InTx(ctx, func(st Store) error {
		reverted, err := st.TransitionRegistration(ctx, database.Transition{
			EventID:     eventID,
			UserID:      userID,
			From:        database.StatusPaidConfirmPending,
			To:          database.StatusPendingPayment,
			Amount:      prior,
			ClearAmount: prior == nil,
		})
		if err != nil {
			return fmt.Errorf("откат заявки: %w", err)
		}
		if !reverted {
			log.Printf("Откат заявки не потребовался: event_id=%d user_id=%d", eventID, userID)
		}
		return nil
	})
}

// DecidePayment: решение проверяющего по заявке (paid_confirm_pending -> confirmed | declined).
func (s *Service) DecidePayment(ctx context.Context, eventID, userID int64, approve bool, deciderID int64) (Result, error) {
	to := database.StatusDeclined
	if approve {
		to = database.StatusConfirmed
	}

	var (
		res    Result
		ev     *database.Event
		member *database.User
	)
	err := s.uow.InTx(ctx, func(st Store) error {
		decider, err := st.GetUser(ctx, deciderID)
		if err != nil {
			return err
		}
		if ev, err = st.GetEvent(ctx, eventID); err != nil {
			return err
		}
		if ev == nil {
			res = Result{Outcome: OutcomeNotFound, EventID: eventID}
			return ErrNotFound
		}
		res = Result{EventID: eventID, EventName: ev.Name}
		if decider == nil {
			decider = &database.User{ID: deciderID}
		}
		if !CanDecide(s.cfg.ApprovalPolicy, s.cfg.AdminIDs, decider, ev) {
			res.Outcome = OutcomeForbidden
			return nil
		}

		reg, err := st.GetRegistration(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if reg == nil {
			res.Outcome = OutcomeNotFound
			return ErrNotFound
		}
		if reg.Status != database.StatusPaidConfirmPending {
			res.Outcome, res.Status, res.Amount = OutcomeAlready, reg.Status, reg.Amount
			return nil
		}
		if member, err = st.GetUser(ctx, userID); err != nil {
			return err
		}
		if member == nil {
			res.Outcome, res.Status = OutcomeNotFound, reg.Status
			return ErrNotFound
		}

		moved, err := st.TransitionRegistration(ctx, database.Transition{
			EventID: eventID,
			UserID:  userID,
			From:    database.StatusPaidConfirmPending,
			To:      to,
		})
		if err != nil {
			return fmt.Errorf("решение по оплате: %w", err)
		}
		if !moved {
			res, err = current(ctx, st, eventID, userID)
			res.EventName = ev.Name
			return err
		}
		res.Outcome, res.Status, res.Amount = OutcomeOK, to, reg.Amount
		return nil
	})
	if err != nil || res.Outcome != OutcomeOK {
		return res, err
	}

	if !approve {
		s.audit.Send("❌ Оплата отклонена: event #%d, user %d, решил %d", eventID, userID, deciderID)
		if err := s.notifier.Deliver(ctx, userID, messages.FormatDeclined(ev.Name), nil); err != nil {
			log.Printf("Не удалось сообщить об отказе user_id=%d: %v", userID, err)
		}
		return res, nil
	}

	s.audit.Send("✅ Оплата подтверждена: event #%d, user %d, решил %d", eventID, userID, deciderID)
	res.Route, res.Routed = s.onConfirmed(ctx, ev, member, deciderID)
	return res, nil
}

// ConfirmExternalPurchase подтверждает участие по покупке, пришедшей от внешнего партнёра.
// Ожидающая оплаты или проверки регистрация становится confirmed, отсутствующая создаётся сразу confirmed.
func (s *Service) ConfirmExternalPurchase(ctx context.Context, eventID, userID int64) (Result, error) {
	var (
		res    Result
		ev     *database.Event
		member *database.User
	)
	err := s.uow.InTx(ctx, func(st Store) error {
		var err error
		if member, err = st.GetUser(ctx, userID); err != nil {
			return err
		}
		if ev, err = st.GetEvent(ctx, eventID); err != nil {
			return err
		}
		if member == nil || ev == nil {
			res = Result{Outcome: OutcomeNotFound, EventID: eventID}
			return ErrNotFound
		}
		res = Result{EventID: eventID, EventName: ev.Name}

		reg, err := st.GetRegistration(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if reg == nil {
			created, err := st.CreateRegistration(ctx, eventID, userID, database.StatusConfirmed, PrepayAmount(ev))
			if err != nil {
				return fmt.Errorf("создание регистрации: %w", err)
			}
			if created {
				res.Outcome, res.Status = OutcomeOK, database.StatusConfirmed
				return nil
			}
			if reg, err = st.GetRegistration(ctx, eventID, userID); err != nil {
				return err
			}
			if reg == nil {
				res.Outcome = OutcomeNotFound
				return ErrNotFound
			}
		}

		for _, from := range []database.RegistrationStatus{database.StatusPendingPayment, database.StatusPaidConfirmPending} {
			if reg.Status != from {
				continue
			}
			moved, err := st.TransitionRegistration(ctx, database.Transition{
				EventID: eventID,
				UserID:  userID,
				From:    from,
				To:      database.StatusConfirmed,
				Amount:  PrepayAmount(ev),
			})
			if err != nil {
				return fmt.Errorf("внешняя покупка: %w", err)
			}
			if moved {
				res.Outcome, res.Status = OutcomeOK, database.StatusConfirmed
				return nil
			}
		}

		res, err = current(ctx, st, eventID, userID)
		res.EventName = ev.Name
		return err
	})
	if err != nil || res.Outcome != OutcomeOK {
		return res, err
	}

	s.audit.Send("🎟 Внешняя покупка: event #%d, user %d", eventID, userID)
	res.Route, res.Routed = s.onConfirmed(ctx, ev, member, 0)
	return res, nil
}

// onConfirmed повышает температуру и рассылает ссылку участнику и уведомление партнёру.
func (s *Service) onConfirmed(ctx context.Context, ev *database.Event, member *database.User, deciderID int64) (chatlink.Route, bool) {
	s.advanceTier(ctx, member.ID)

	route, ok := chatlink.ForGender(ev, member.Gender)
	text := messages.FormatApproved(ev.Name) + "\n\n"
	var buttons [][]notify.Button
	if ok {
		text += messages.MsgJoinChatHint
		buttons = [][]notify.Button{{{Text: messages.MsgJoinChatButton, URL: route.Link}}}
	} else {
		text += messages.MsgLinkNotReady
	}
	if err := s.notifier.Deliver(ctx, member.ID, text, buttons); err != nil {
		log.Printf("Не удалось отправить ссылку user_id=%d: %v", member.ID, err)
	}

	if ev.PartnerUserID != 0 && ev.PartnerUserID != deciderID {
		partnerText := messages.FormatPartnerAttendee(ev.Name, messages.FormatMember(member.ID, member.Username))
		if err := s.notifier.Deliver(ctx, ev.PartnerUserID, partnerText, nil); err != nil {
			log.Printf("Не удалось уведомить партнёра user_id=%d: %v", ev.PartnerUserID, err)
		}
	}
	return route, ok
}

// routeFor возвращает ссылку на обсуждение только для подтверждённых участников.
func routeFor(ev *database.Event, user *database.User, status database.RegistrationStatus) (chatlink.Route, bool) {
	if status != database.StatusConfirmed && status != database.StatusAttendedConfirmed {
		return chatlink.Route{}, false
	}
	return chatlink.ForGender(ev, user.Gender)
}

func mergeIDs(a, b []int64) []int64 {
	out := make([]int64, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
