// Package pollers содержит фоновые задачи: импорт покупок AdvCake и напоминания о профиле.
package pollers

import (
	"context"
	"log"
	"time"
)

// Run выполняет fn сразу и затем каждые interval до отмены ctx.
// Ошибка итерации логируется и не останавливает цикл.
func Run(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	log.Printf("Поллер %s запущен, интервал %s", name, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Поллер %s: %v", name, err)
		}
		select {
		case <-ctx.Done():
			log.Printf("Поллер %s остановлен", name)
			return
		case <-ticker.C:
		}
	}
}
