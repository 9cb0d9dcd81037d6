package database

import "time"

type Role string

const (
	RoleAdmin   Role = "admin"
	RolePartner Role = "partner"
	RoleUser    Role = "user"
)

type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Temperature: уровень вовлечённости участника.
type Temperature string

const (
	TemperatureCold Temperature = "cold"
	TemperatureWarm Temperature = "warm"
	TemperatureHot  Temperature = "hot"
)

// Next возвращает следующий уровень; hot остаётся hot.
func (t Temperature) Next() Temperature {
	switch t {
	case TemperatureWarm, TemperatureHot:
		return TemperatureHot
	default:
		return TemperatureWarm
	}
}

type RegistrationStatus string

const (
	StatusPendingPayment     RegistrationStatus = "pending_payment"
	StatusPaidConfirmPending RegistrationStatus = "paid_confirm_pending"
	StatusConfirmed          RegistrationStatus = "confirmed"
	StatusDeclined           RegistrationStatus = "declined"
	StatusAttendedConfirmed  RegistrationStatus = "attended_confirmed"
)

// AgeGroups: фиксированный набор возрастных диапазонов.
var AgeGroups = []string{"18-25", "26-35", "36-45", "46-55", "56+"}

// AgeGroupAll: мероприятие для всех возрастов.
const AgeGroupAll = "all"

func ValidAgeGroup(v string) bool {
	for _, g := range AgeGroups {
		if g == v {
			return true
		}
	}
	return false
}

type User struct {
	ID                int64
	Username          *string
	Gender            Gender
	AgeGroup          *string
	Temperature       Temperature
	Role              Role
	CommissionPercent int
	IsAlive           bool
	IsBlocked         bool
	CreatedAt         time.Time
}

func (u *User) HasProfile() bool {
	return u.Gender.Valid() && u.AgeGroup != nil
}

// ThreadRef указывает на сообщение внутри темы форума.
type ThreadRef struct {
	ChatID       int64
	ThreadID     int
	MessageID    int
	ChatUsername string
}

type Event struct {
	ID               int64
	PartnerUserID    int64
	Name             string
	Datetime         string
	Address          string
	Description      string
	IsPaid           bool
	Price            *string
	PrepayPercent    *int
	PrepayFixed      *int
	AgeGroup         *string
	PhotoFileID      *string
	TicketURL        *string
	AttendanceCode   *string
	Fingerprint      string
	ChannelID        *int64
	ChannelMessageID *int
	MaleThread       *ThreadRef
	FemaleThread     *ThreadRef
	InviteLink       *string
	CreatedAt        time.Time
	PublishedAt      *time.Time
}

func (e *Event) Published() bool {
	return e.ChannelID != nil && e.ChannelMessageID != nil
}

type Registration struct {
	ID                  int64
	EventID             int64
	UserID              int64
	Status              RegistrationStatus
	Amount              *int
	CreatedAt           time.Time
	PaidConfirmedAt     *time.Time
	AttendedConfirmedAt *time.Time
}

// UserRegistration: регистрация вместе с данными мероприятия.
type UserRegistration struct {
	Registration
	EventName      string
	EventDatetime  string
	IsPaid         bool
	AttendanceCode *string
}

// RegistrationListItem: строка списка регистраций для партнёра/админа.
type RegistrationListItem struct {
	UserID   int64
	Username *string
	Status   RegistrationStatus
	Amount   *int
}

// Transition: CAS-переход статуса регистрации.
type Transition struct {
	EventID int64
	UserID  int64
	From    RegistrationStatus
	To      RegistrationStatus
	// Amount перезаписывает сумму, если задан; ClearAmount обнуляет её.
	Amount      *int
	ClearAmount bool
}

type PartnerEvent struct {
	ID               int64
	Name             string
	Datetime         string
	IsPaid           bool
	ChannelID        *int64
	ChannelMessageID *int
}

type UserProfile struct {
	ID       int64
	Gender   Gender
	AgeGroup *string
}

// AdvPlacement: рекламное размещение из start-ссылки.
type AdvPlacement struct {
	PlacementDate   string
	ChannelUsername string
	Price           string
}

// DueNudge: пользователь, которому пора напомнить о профиле.
type DueNudge struct {
	UserID  int64
	Attempt int
}
