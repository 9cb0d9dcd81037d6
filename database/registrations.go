package database

import (
	"context"
	"log"
)

// ============================================
// Event registrations
// ============================================

const registrationColumns = `id, event_id, user_id, status, amount, created, paid_confirmed_at, attended_confirmed_at`

func (q *Queries) GetRegistration(ctx context.Context, eventID, userID int64) (*Registration, error) {
	query := `SELECT ` + registrationColumns + `
		FROM event_registrations
		WHERE event_id = $1 AND user_id = $2`

	var r Registration
	err := q.db.QueryRow(ctx, query, eventID, userID).Scan(
		&r.ID, &r.EventID, &r.UserID, &r.Status, &r.Amount, &r.CreatedAt, &r.PaidConfirmedAt, &r.AttendedConfirmedAt,
	)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRegistration: идемпотентная вставка пары (event, user).
func (q *Queries) CreateRegistration(ctx context.Context, eventID, userID int64, status RegistrationStatus, amount *int) (bool, error) {
	query := `
		INSERT INTO event_registrations (event_id, user_id, status, amount, paid_confirmed_at)
		VALUES ($1, $2, $3, $4, CASE WHEN $5 THEN NOW() END)
		ON CONFLICT (event_id, user_id) DO NOTHING`

	tag, err := q.db.Exec(ctx, query, eventID, userID, status, amount, status == StatusConfirmed)
	if err != nil {
		return false, err
	}
	created := tag.RowsAffected() == 1
	if created {
		log.Printf("Регистрация создана: event_id=%d user_id=%d status=%s", eventID, userID, status)
	}
	return created, nil
}

// TransitionRegistration меняет статус, только если текущий равен t.From.
// false без ошибки означает, что гонку выиграл другой запрос.
func (q *Queries) TransitionRegistration(ctx context.Context, t Transition) (bool, error) {
	query := `
		UPDATE event_registrations SET
			status = $1,
			amount = CASE WHEN $2 THEN NULL ELSE COALESCE($3, amount) END,
			paid_confirmed_at = CASE WHEN $4 THEN NOW() ELSE paid_confirmed_at END,
			attended_confirmed_at = CASE WHEN $5 THEN NOW() ELSE attended_confirmed_at END
		WHERE event_id = $6 AND user_id = $7 AND status = $8`

	tag, err := q.db.Exec(ctx, query,
		t.To, t.ClearAmount, t.Amount,
		t.To == StatusConfirmed, t.To == StatusAttendedConfirmed,
		t.EventID, t.UserID, t.From,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	log.Printf("Регистрация: event_id=%d user_id=%d %s -> %s", t.EventID, t.UserID, t.From, t.To)
	return true, nil
}

func (q *Queries) ListRegistrationsByStatus(ctx context.Context, eventID int64, status RegistrationStatus) ([]RegistrationListItem, error) {
	query := `
		SELECT r.user_id, u.username, r.status, r.amount
		FROM event_registrations r
		JOIN users u ON u.user_id = r.user_id
		WHERE r.event_id = $1 AND r.status = $2
		ORDER BY r.created ASC`

	rows, err := q.db.Query(ctx, query, eventID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RegistrationListItem
	for rows.Next() {
		var it RegistrationListItem
		if err := rows.Scan(&it.UserID, &it.Username, &it.Status, &it.Amount); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (q *Queries) ListUserRegistrations(ctx context.Context, userID int64, statuses []RegistrationStatus) ([]UserRegistration, error) {
	query := `
		SELECT r.id, r.event_id, r.user_id, r.status, r.amount, r.created,
		       r.paid_confirmed_at, r.attended_confirmed_at,
		       e.name, e.event_datetime, e.is_paid, e.attendance_code
		FROM event_registrations r
		JOIN events e ON e.id = r.event_id
		WHERE r.user_id = $1 AND r.status = ANY($2)
		ORDER BY e.event_datetime ASC`

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := q.db.Query(ctx, query, userID, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []UserRegistration
	for rows.Next() {
		var it UserRegistration
		if err := rows.Scan(
			&it.ID, &it.EventID, &it.UserID, &it.Status, &it.Amount, &it.CreatedAt,
			&it.PaidConfirmedAt, &it.AttendedConfirmedAt,
			&it.EventName, &it.EventDatetime, &it.IsPaid, &it.AttendanceCode,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
