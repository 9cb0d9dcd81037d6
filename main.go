package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"holclub_bot/api"
	"holclub_bot/config"
	"holclub_bot/database"
	"holclub_bot/events"
	"holclub_bot/handlers"
	"holclub_bot/notify"
	"holclub_bot/pollers"
	"holclub_bot/registration"
	"holclub_bot/telegram"
	"holclub_bot/tglog"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env не найден, используются переменные окружения")
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	queries := db.Queries()
	for _, id := range cfg.AdminIDs {
		if err := queries.AddUser(ctx, id, nil, database.RoleAdmin); err != nil {
			log.Fatal(err)
		}
		if err := queries.UpdateRole(ctx, id, database.RoleAdmin, cfg.DefaultCommissionPercent); err != nil {
			log.Fatal(err)
		}
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {}),
	}

	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		log.Fatal(err)
	}

	// Получаем username бота
	me, err := b.GetMe(ctx)
	if err != nil {
		log.Fatal(err)
	}
	botUsername := me.Username

	audit := tglog.New(b, cfg.LogChannelID)
	defer audit.Wait()

	client := telegram.New(b)
	notifier := notify.New(client, queries)
	regs := registration.New(registration.FromDB(db), notifier, audit, cfg)
	publisher := events.NewService(events.FromDB(db), client, notifier, audit, cfg, botUsername)

	h := handlers.New(queries, db, regs, publisher, notifier, cfg)

	b.RegisterHandler(bot.HandlerTypeMessageText, "", bot.MatchTypePrefix, h.OnMessage)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, h.OnCallback)

	// фото с подписью /newevent
	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil && len(update.Message.Photo) > 0
	}, h.OnMessage)

	var wg sync.WaitGroup

	if cfg.AdvCakeAPIKey != "" {
		advcake := pollers.NewAdvCakePoller(pollers.NewAdvCakeClient(cfg.AdvCakeAPIKey, cfg.AdvCakeDays), queries, regs)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pollers.Run(ctx, "advcake", cfg.AdvCakePollInterval, advcake.Poll)
		}()
	} else {
		log.Println("ADVCAKE_API_KEY не задан, импорт покупок отключён")
	}

	nudges := pollers.NewNudgePoller(pollers.NudgeUnitFromDB(db), notifier, pollers.NudgeSettings{
		FirstDelay:  cfg.NudgeFirstDelay,
		RemindDelay: cfg.NudgeRemindDelay,
		MaxAttempts: cfg.NudgeMaxAttempts,
		BatchSize:   cfg.NudgeBatchSize,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		pollers.Run(ctx, "profile-nudges", cfg.NudgePollInterval, nudges.Poll)
	}()

	if cfg.APIAddr != "" {
		if !cfg.TestMode {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := &http.Server{
			Addr:    cfg.APIAddr,
			Handler: api.New(queries, regs, db, cfg.APIToken).Router(),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("API слушает %s", cfg.APIAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Ошибка API: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("Ошибка остановки API: %v", err)
			}
		}()
	}

	log.Printf("Бот @%s запущен", botUsername)
	b.Start(ctx)

	wg.Wait()
	log.Println("Бот остановлен")
}
