package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApprovalPolicy определяет, кто может подтверждать предоплату.
type ApprovalPolicy string

const (
	ApprovalAdmins           ApprovalPolicy = "admins"
	ApprovalAdminsAndPartner ApprovalPolicy = "admins_and_partner"
)

const defaultCommissionPercent = 20

type Config struct {
	BotToken     string
	DatabaseURL  string
	LogChannelID int64

	// Канал с анонсами и чаты обсуждений
	EventsChannelID int64
	MaleChatID      int64
	FemaleChatID    int64
	SharedChatID    int64

	AdminIDs                 []int64
	PaymentCard              string
	DefaultCommissionPercent int
	PriceMax                 int
	ApprovalPolicy           ApprovalPolicy
	AllowedDomains           []string

	AdvCakeAPIKey       string
	AdvCakePollInterval time.Duration
	AdvCakeDays         int

	NudgePollInterval time.Duration
	NudgeFirstDelay   time.Duration
	NudgeRemindDelay  time.Duration
	NudgeMaxAttempts  int
	NudgeBatchSize    int

	APIAddr  string
	APIToken string

	TestMode bool
}

func Load() *Config {
	logChannel, _ := strconv.ParseInt(getEnv("LOG_CHANNEL_ID", "0"), 10, 64)
	eventsChannel, _ := strconv.ParseInt(getEnv("EVENTS_CHANNEL_ID", "0"), 10, 64)
	maleChat, _ := strconv.ParseInt(getEnv("MALE_CHAT_ID", "0"), 10, 64)
	femaleChat, _ := strconv.ParseInt(getEnv("FEMALE_CHAT_ID", "0"), 10, 64)
	sharedChat, _ := strconv.ParseInt(getEnv("SHARED_CHAT_ID", "0"), 10, 64)
	commission, err := strconv.Atoi(getEnv("DEFAULT_COMMISSION_PERCENT", strconv.Itoa(defaultCommissionPercent)))
	if err != nil {
		commission = defaultCommissionPercent
	}
	priceMax, _ := strconv.Atoi(getEnv("PRICE_MAX", "1000000"))
	advDays, _ := strconv.Atoi(getEnv("ADVCAKE_DAYS", "2"))
	nudgeAttempts, _ := strconv.Atoi(getEnv("NUDGE_MAX_ATTEMPTS", "2"))
	nudgeBatch, _ := strconv.Atoi(getEnv("NUDGE_BATCH_SIZE", "200"))

	return &Config{
		BotToken:                 getEnv("BOT_TOKEN", ""),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		LogChannelID:             logChannel,
		EventsChannelID:          eventsChannel,
		MaleChatID:               maleChat,
		FemaleChatID:             femaleChat,
		SharedChatID:             sharedChat,
		AdminIDs:                 parseIDs(getEnv("ADMIN_IDS", "")),
		PaymentCard:              getEnv("PAYMENT_CARD", ""),
		DefaultCommissionPercent: clampPercent(commission),
		PriceMax:                 priceMax,
		ApprovalPolicy:           ApprovalPolicy(getEnv("APPROVAL_POLICY", string(ApprovalAdmins))),
		AllowedDomains:           parseList(getEnv("ALLOWED_DOMAINS", "t.me")),
		AdvCakeAPIKey:            getEnv("ADVCAKE_API_KEY", ""),
		AdvCakePollInterval:      getDuration("ADVCAKE_POLL_INTERVAL", 10*time.Minute),
		AdvCakeDays:              advDays,
		NudgePollInterval:        getDuration("NUDGE_POLL_INTERVAL", 10*time.Minute),
		NudgeFirstDelay:          getDuration("NUDGE_FIRST_DELAY", 15*time.Minute),
		NudgeRemindDelay:         getDuration("NUDGE_REMIND_DELAY", 24*time.Hour),
		NudgeMaxAttempts:         nudgeAttempts,
		NudgeBatchSize:           nudgeBatch,
		APIAddr:                  getEnv("API_ADDR", ""),
		APIToken:                 getEnv("API_TOKEN", ""),
		TestMode:                 getEnv("TEST_MODE", "false") == "true",
	}
}

// Validate проверяет обязательные параметры.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN не установлен"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL не установлен"))
	}
	switch c.ApprovalPolicy {
	case ApprovalAdmins, ApprovalAdminsAndPartner:
	default:
		errs = append(errs, errors.New("APPROVAL_POLICY: ожидается admins или admins_and_partner"))
	}
	if c.APIAddr != "" && c.APIToken == "" {
		errs = append(errs, errors.New("API_TOKEN обязателен при включённом API_ADDR"))
	}
	return errors.Join(errs...)
}

// TopicMode: отдельные темы для мужчин и женщин вместо общего чата.
func (c *Config) TopicMode() bool {
	return c.MaleChatID != 0 && c.FemaleChatID != 0
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func parseList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseIDs(raw string) []int64 {
	var ids []int64
	for _, item := range parseList(raw) {
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func clampPercent(v int) int {
	return min(100, max(0, v))
}
