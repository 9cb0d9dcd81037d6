package tglog

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// ChannelSender: отправка в лог-канал; *bot.Bot подходит напрямую.
type ChannelSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Logger дублирует аудит в TG-канал. Нулевой channelID отключает отправку.
type Logger struct {
	sender    ChannelSender
	channelID int64
	wg        sync.WaitGroup
}

// New создаёт логгер в TG-канал
func New(sender ChannelSender, channelID int64) *Logger {
	if channelID == 0 || sender == nil {
		log.Println("LOG_CHANNEL_ID не задан, логирование в канал отключено")
		return &Logger{}
	}
	log.Printf("Логирование в канал %d включено", channelID)
	return &Logger{sender: sender, channelID: channelID}
}

func (l *Logger) Enabled() bool {
	return l != nil && l.sender != nil && l.channelID != 0
}

// Send пишет строку в журнал и отправляет её в лог-канал (неблокирующий)
func (l *Logger) Send(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	log.Printf("[audit] %s", text)
	if !l.Enabled() {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := l.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    l.channelID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
		})
		if err != nil {
			log.Printf("Ошибка отправки лога в канал: %v", err)
		}
	}()
}

// Wait дожидается отправки накопившихся сообщений при остановке.
func (l *Logger) Wait() {
	if l != nil {
		l.wg.Wait()
	}
}
