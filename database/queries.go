package database

import (
	"context"
	"log"
)

// ============================================
// Users
// ============================================

const userColumns = `user_id, username, COALESCE(gender, ''), age_group, temperature, role,
		       commission_percent, is_alive, is_blocked, created`

func scanUser(row interface{ Scan(dest ...any) error }) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Username, &u.Gender, &u.AgeGroup, &u.Temperature, &u.Role,
		&u.CommissionPercent, &u.IsAlive, &u.IsBlocked, &u.CreatedAt,
	)
	return &u, err
}

// AddUser создаёт пользователя при первом контакте; существующий не трогает.
func (q *Queries) AddUser(ctx context.Context, id int64, username *string, role Role) error {
	query := `
		INSERT INTO users (user_id, username, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`

	tag, err := q.db.Exec(ctx, query, id, username, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		log.Printf("Пользователь добавлен: user_id=%d role=%s", id, role)
	}
	return nil
}

func (q *Queries) GetUser(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	u, err := scanUser(q.db.QueryRow(ctx, query, id))
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (q *Queries) UpdateUsername(ctx context.Context, id int64, username *string) error {
	query := `UPDATE users SET username = $1 WHERE user_id = $2 AND username IS DISTINCT FROM $1`
	_, err := q.db.Exec(ctx, query, username, id)
	return err
}

func (q *Queries) UpdateProfile(ctx context.Context, id int64, gender Gender, ageGroup *string) error {
	query := `UPDATE users SET gender = NULLIF($1, ''), age_group = $2 WHERE user_id = $3`
	_, err := q.db.Exec(ctx, query, string(gender), ageGroup, id)
	return err
}

// UpdateRole меняет роль; партнёру с нулевой комиссией проставляется комиссия по умолчанию.
func (q *Queries) UpdateRole(ctx context.Context, id int64, role Role, defaultCommission int) error {
	query := `
		UPDATE users SET
			role = $1,
			commission_percent = CASE
				WHEN $1 = 'partner' AND commission_percent <= 0 THEN $2
				ELSE commission_percent
			END
		WHERE user_id = $3`

	_, err := q.db.Exec(ctx, query, string(role), defaultCommission, id)
	if err == nil {
		log.Printf("Роль обновлена: user_id=%d role=%s", id, role)
	}
	return err
}

// AdvanceTemperature меняет уровень, только если текущий равен from.
func (q *Queries) AdvanceTemperature(ctx context.Context, id int64, from, to Temperature) (bool, error) {
	query := `UPDATE users SET temperature = $1 WHERE user_id = $2 AND temperature = $3`
	tag, err := q.db.Exec(ctx, query, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkUnreachable помечает пользователя недоступным по результату доставки.
func (q *Queries) MarkUnreachable(ctx context.Context, id int64, blocked bool) error {
	query := `
		UPDATE users SET is_alive = FALSE, is_blocked = $1
		WHERE user_id = $2 AND (is_alive = TRUE OR is_blocked <> $1)`

	tag, err := q.db.Exec(ctx, query, blocked, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		log.Printf("Пользователь недоступен: user_id=%d blocked=%t", id, blocked)
	}
	return nil
}

// MarkReachable восстанавливает флаги при любом входящем апдейте.
func (q *Queries) MarkReachable(ctx context.Context, id int64) error {
	query := `
		UPDATE users SET is_alive = TRUE, is_blocked = FALSE
		WHERE user_id = $1 AND (is_alive = FALSE OR is_blocked = TRUE)`

	tag, err := q.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		log.Printf("Пользователь снова доступен: user_id=%d", id)
	}
	return nil
}

func (q *Queries) AdminIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT user_id FROM users WHERE role = 'admin' ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *Queries) ActiveUserProfilesByRole(ctx context.Context, role Role) ([]UserProfile, error) {
	query := `
		SELECT user_id, COALESCE(gender, ''), age_group
		FROM users
		WHERE is_alive = TRUE AND is_blocked = FALSE AND role = $1
		ORDER BY user_id`

	rows, err := q.db.Query(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []UserProfile
	for rows.Next() {
		var p UserProfile
		if err := rows.Scan(&p.ID, &p.Gender, &p.AgeGroup); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ============================================
// Events
// ============================================

const eventColumns = `id, partner_user_id, name, event_datetime, address, description, is_paid,
		       price, prepay_percent, prepay_fixed_free, age_group, photo_file_id, ticket_url,
		       attendance_code, fingerprint, channel_id, channel_message_id,
		       male_chat_id, male_thread_id, male_message_id, male_chat_username,
		       female_chat_id, female_thread_id, female_message_id, female_chat_username,
		       private_chat_invite_link, created, published_at`

type nullThread struct {
	chatID    *int64
	threadID  *int
	messageID *int
	username  *string
}

func (n nullThread) ref() *ThreadRef {
	if n.chatID == nil && n.threadID == nil && n.messageID == nil {
		return nil
	}
	ref := &ThreadRef{}
	if n.chatID != nil {
		ref.ChatID = *n.chatID
	}
	if n.threadID != nil {
		ref.ThreadID = *n.threadID
	}
	if n.messageID != nil {
		ref.MessageID = *n.messageID
	}
	if n.username != nil {
		ref.ChatUsername = *n.username
	}
	return ref
}

func threadArgs(ref *ThreadRef) (chatID *int64, threadID, messageID *int, username *string) {
	if ref == nil {
		return nil, nil, nil, nil
	}
	chatID = &ref.ChatID
	if ref.ThreadID != 0 {
		threadID = &ref.ThreadID
	}
	if ref.MessageID != 0 {
		messageID = &ref.MessageID
	}
	if ref.ChatUsername != "" {
		username = &ref.ChatUsername
	}
	return chatID, threadID, messageID, username
}

func scanEvent(row interface{ Scan(dest ...any) error }) (*Event, error) {
	var e Event
	var male, female nullThread
	err := row.Scan(
		&e.ID, &e.PartnerUserID, &e.Name, &e.Datetime, &e.Address, &e.Description, &e.IsPaid,
		&e.Price, &e.PrepayPercent, &e.PrepayFixed, &e.AgeGroup, &e.PhotoFileID, &e.TicketURL,
		&e.AttendanceCode, &e.Fingerprint, &e.ChannelID, &e.ChannelMessageID,
		&male.chatID, &male.threadID, &male.messageID, &male.username,
		&female.chatID, &female.threadID, &female.messageID, &female.username,
		&e.InviteLink, &e.CreatedAt, &e.PublishedAt,
	)
	if err != nil {
		return nil, err
	}
	e.MaleThread = male.ref()
	e.FemaleThread = female.ref()
	return &e, nil
}

// CreateEvent вставляет мероприятие; при совпадении fingerprint возвращает inserted=false.
func (q *Queries) CreateEvent(ctx context.Context, e *Event) (int64, bool, error) {
	query := `
		INSERT INTO events (partner_user_id, name, event_datetime, address, description, is_paid,
		                    price, prepay_percent, prepay_fixed_free, age_group, photo_file_id,
		                    ticket_url, attendance_code, fingerprint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING id`

	var id int64
	err := q.db.QueryRow(ctx, query,
		e.PartnerUserID, e.Name, e.Datetime, e.Address, e.Description, e.IsPaid,
		e.Price, e.PrepayPercent, e.PrepayFixed, e.AgeGroup, e.PhotoFileID,
		e.TicketURL, e.AttendanceCode, e.Fingerprint,
	).Scan(&id)
	if noRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	log.Printf("Мероприятие создано: event_id=%d partner=%d", id, e.PartnerUserID)
	return id, true, nil
}

func (q *Queries) MarkEventPublished(ctx context.Context, id, channelID int64, messageID int) error {
	query := `
		UPDATE events SET channel_id = $1, channel_message_id = $2, published_at = NOW()
		WHERE id = $3`
	_, err := q.db.Exec(ctx, query, channelID, messageID, id)
	if err == nil {
		log.Printf("Мероприятие опубликовано: event_id=%d channel=%d message=%d", id, channelID, messageID)
	}
	return err
}

func (q *Queries) SetEventThreads(ctx context.Context, id int64, male, female *ThreadRef) error {
	mChat, mThread, mMsg, mUser := threadArgs(male)
	fChat, fThread, fMsg, fUser := threadArgs(female)
	query := `
		UPDATE events SET
			male_chat_id = $1, male_thread_id = $2, male_message_id = $3, male_chat_username = $4,
			female_chat_id = $5, female_thread_id = $6, female_message_id = $7, female_chat_username = $8
		WHERE id = $9`
	_, err := q.db.Exec(ctx, query, mChat, mThread, mMsg, mUser, fChat, fThread, fMsg, fUser, id)
	return err
}

// SetEventInviteLink: режим одного общего чата на оба пола.
func (q *Queries) SetEventInviteLink(ctx context.Context, id, chatID int64, link string) error {
	query := `
		UPDATE events SET
			male_chat_id = $1, male_thread_id = NULL, male_message_id = NULL, male_chat_username = NULL,
			female_chat_id = $1, female_thread_id = NULL, female_message_id = NULL, female_chat_username = NULL,
			private_chat_invite_link = $2
		WHERE id = $3`
	_, err := q.db.Exec(ctx, query, chatID, link, id)
	return err
}

func (q *Queries) DeleteEvent(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err == nil {
		log.Printf("Мероприятие удалено: event_id=%d", id)
	}
	return err
}

func (q *Queries) GetEvent(ctx context.Context, id int64) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(q.db.QueryRow(ctx, query, id))
	if noRows(err) {
		return nil, nil
	}
	return e, err
}

func (q *Queries) ListPartnerEvents(ctx context.Context, partnerID int64) ([]PartnerEvent, error) {
	query := `
		SELECT id, name, event_datetime, is_paid, channel_id, channel_message_id
		FROM events
		WHERE partner_user_id = $1
		ORDER BY event_datetime ASC`

	rows, err := q.db.Query(ctx, query, partnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PartnerEvent
	for rows.Next() {
		var p PartnerEvent
		if err := rows.Scan(&p.ID, &p.Name, &p.Datetime, &p.IsPaid, &p.ChannelID, &p.ChannelMessageID); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
