package tglog

import (
	"context"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	texts []string
	chat  any
}

func (r *recorder) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, p.Text)
	r.chat = p.ChatID
	return &models.Message{}, nil
}

func TestSendMirrorsToChannel(t *testing.T) {
	rec := &recorder{}
	l := New(rec, -100123)

	l.Send("Оплата подтверждена: event #%d", 5)
	l.Wait()

	require.Equal(t, []string{"Оплата подтверждена: event #5"}, rec.texts)
	require.Equal(t, int64(-100123), rec.chat)
}

func TestDisabledLoggerDoesNotSend(t *testing.T) {
	rec := &recorder{}
	l := New(rec, 0)
	require.False(t, l.Enabled())

	l.Send("ничего")
	l.Wait()
	require.Empty(t, rec.texts)
}
