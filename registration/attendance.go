package registration

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"holclub_bot/database"
)

// NormalizeCode оставляет в коде только цифры.
func NormalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, code)
}

func codeMatches(stored *string, normalized string) bool {
	return stored != nil && normalized != "" && NormalizeCode(*stored) == normalized
}

// ConfirmAttendance: участник вводит код на площадке (confirmed -> attended_confirmed).
// eventID: выбранное мероприятие, 0 если не выбрано. Если код от другого мероприятия,
// ищем среди остальных подтверждённых регистраций участника.
func (s *Service) ConfirmAttendance(ctx context.Context, eventID, userID int64, code string) (Result, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Result{Outcome: OutcomeInvalid, EventID: eventID}, nil
	}

	var res Result
	err := s.uow.InTx(ctx, func(st Store) error {
		target, name, status, err := findByCode(ctx, st, eventID, userID, normalized)
		if err != nil {
			return err
		}
		res = Result{EventID: target, EventName: name, Status: status}

		switch status {
		case database.StatusAttendedConfirmed:
			res.Outcome = OutcomeAlready
			return nil
		case database.StatusConfirmed:
		default:
			res.Outcome = OutcomeInvalid
			return nil
		}

		moved, err := st.TransitionRegistration(ctx, database.Transition{
			EventID: target,
			UserID:  userID,
			From:    database.StatusConfirmed,
			To:      database.StatusAttendedConfirmed,
		})
		if err != nil {
			return fmt.Errorf("подтверждение присутствия: %w", err)
		}
		if !moved {
			reg, err := st.GetRegistration(ctx, target, userID)
			if err != nil {
				return err
			}
			res.Outcome = OutcomeInvalid
			if reg != nil && reg.Status == database.StatusAttendedConfirmed {
				res.Outcome, res.Status = OutcomeAlready, reg.Status
			}
			return nil
		}
		res.Outcome, res.Status = OutcomeOK, database.StatusAttendedConfirmed
		return nil
	})
	if err != nil || res.Outcome != OutcomeOK {
		return res, err
	}

	s.advanceTier(ctx, userID)
	s.audit.Send("📍 Присутствие подтверждено: event #%d, user %d", res.EventID, userID)
	return res, nil
}

// findByCode ищет регистрацию участника, к мероприятию которой подходит код.
// Пустой статус означает, что совпадений нет.
func findByCode(ctx context.Context, st Store, eventID, userID int64, normalized string) (int64, string, database.RegistrationStatus, error) {
	if eventID != 0 {
		ev, err := st.GetEvent(ctx, eventID)
		if err != nil {
			return 0, "", "", err
		}
		if ev != nil && codeMatches(ev.AttendanceCode, normalized) {
			reg, err := st.GetRegistration(ctx, eventID, userID)
			if err != nil {
				return 0, "", "", err
			}
			if reg != nil && (reg.Status == database.StatusConfirmed || reg.Status == database.StatusAttendedConfirmed) {
				return eventID, ev.Name, reg.Status, nil
			}
		}
	}

	regs, err := st.ListUserRegistrations(ctx, userID, []database.RegistrationStatus{
		database.StatusConfirmed,
		database.StatusAttendedConfirmed,
	})
	if err != nil {
		return 0, "", "", err
	}
	// сначала те, что ещё не отмечены
	for _, want := range []database.RegistrationStatus{database.StatusConfirmed, database.StatusAttendedConfirmed} {
		for _, r := range regs {
			if r.Status == want && codeMatches(r.AttendanceCode, normalized) {
				return r.EventID, r.EventName, r.Status, nil
			}
		}
	}
	return eventID, "", "", nil
}
