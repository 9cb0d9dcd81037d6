package database

import (
	"context"
	"log"
	"time"
)

// ============================================
// Adv stats
// ============================================

// RegisterAdvPlacement учитывает переход по рекламной ссылке один раз на пользователя.
func (q *Queries) RegisterAdvPlacement(ctx context.Context, userID int64, p AdvPlacement) (bool, error) {
	insertReg := `
		INSERT INTO adv_registrations (user_id, placement_date, channel_username, placement_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, placement_date, channel_username, placement_price) DO NOTHING`

	tag, err := q.db.Exec(ctx, insertReg, userID, p.PlacementDate, p.ChannelUsername, p.Price)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	upsertStats := `
		INSERT INTO adv_stats (placement_date, channel_username, placement_price, register_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (placement_date, channel_username, placement_price)
		DO UPDATE SET register_count = adv_stats.register_count + 1`

	if _, err := q.db.Exec(ctx, upsertStats, p.PlacementDate, p.ChannelUsername, p.Price); err != nil {
		return false, err
	}
	log.Printf("Рекламная регистрация: user_id=%d date=%s channel=%s price=%s",
		userID, p.PlacementDate, p.ChannelUsername, p.Price)
	return true, nil
}

// ============================================
// Profile nudges
// ============================================

// ListDueNudges возвращает пользователей без заполненного профиля, которым пора напомнить.
func (q *Queries) ListDueNudges(ctx context.Context, firstDelay, remindDelay time.Duration, maxAttempts, limit int) ([]DueNudge, error) {
	if limit <= 0 || maxAttempts <= 0 {
		return nil, nil
	}
	now := time.Now()
	query := `
		SELECT u.user_id, COALESCE(n.attempts, 0) + 1
		FROM users u
		LEFT JOIN profile_nudges n ON n.user_id = u.user_id
		WHERE u.role = 'user'
		  AND u.is_alive = TRUE AND u.is_blocked = FALSE
		  AND (u.gender IS NULL OR u.age_group IS NULL)
		  AND n.completed_at IS NULL
		  AND COALESCE(n.attempts, 0) < $1
		  AND (
		        (COALESCE(n.attempts, 0) = 0 AND u.created <= $2)
		     OR (n.attempts > 0 AND (n.last_sent_at IS NULL OR n.last_sent_at <= $3))
		  )
		ORDER BY u.created ASC
		LIMIT $4`

	rows, err := q.db.Query(ctx, query, maxAttempts, now.Add(-firstDelay), now.Add(-remindDelay), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []DueNudge
	for rows.Next() {
		var d DueNudge
		if err := rows.Scan(&d.UserID, &d.Attempt); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func (q *Queries) MarkNudgeSent(ctx context.Context, userID int64) error {
	query := `
		INSERT INTO profile_nudges (user_id, attempts, last_sent_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			attempts = profile_nudges.attempts + 1,
			last_sent_at = NOW(),
			completed_at = NULL`
	_, err := q.db.Exec(ctx, query, userID)
	return err
}

// CompleteFilledNudges закрывает напоминания для тех, кто уже заполнил профиль.
func (q *Queries) CompleteFilledNudges(ctx context.Context) (int64, error) {
	query := `
		UPDATE profile_nudges n SET completed_at = NOW()
		FROM users u
		WHERE u.user_id = n.user_id
		  AND n.completed_at IS NULL
		  AND u.gender IS NOT NULL AND u.age_group IS NOT NULL`

	tag, err := q.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	if n := tag.RowsAffected(); n > 0 {
		log.Printf("Напоминания закрыты: %d", n)
	}
	return tag.RowsAffected(), nil
}

// RegisterAdvPlacement: запись и счётчик в одной транзакции.
func (db *DB) RegisterAdvPlacement(ctx context.Context, userID int64, p AdvPlacement) (bool, error) {
	var counted bool
	err := db.InTx(ctx, func(q *Queries) error {
		var err error
		counted, err = q.RegisterAdvPlacement(ctx, userID, p)
		return err
	})
	return counted, err
}
