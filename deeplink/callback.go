package deeplink

import (
	"strconv"
	"strings"

	"holclub_bot/database"
)

// Действия в callback-данных кнопок.
const (
	ActionJoinChat = "event_join_chat"
	ActionGender   = "event_join_chat_gender"
	ActionClaim    = "event_pay_claim"
	ActionDecision = "event_pay_decision"
)

const (
	DecisionApprove = "approve"
	DecisionDecline = "decline"
)

// Action: разобранный токен "<action>:<event_id>[:<user_id>]:<value>".
type Action struct {
	Name    string
	EventID int64
	UserID  int64
	Value   string
}

func JoinChatToken(eventID int64) string {
	return ActionJoinChat + ":" + strconv.FormatInt(eventID, 10)
}

func GenderToken(eventID int64, gender string) string {
	return ActionGender + ":" + strconv.FormatInt(eventID, 10) + ":" + gender
}

func ClaimToken(eventID int64) string {
	return ActionClaim + ":" + strconv.FormatInt(eventID, 10)
}

func DecisionToken(eventID, userID int64, decision string) string {
	return ActionDecision + ":" + strconv.FormatInt(eventID, 10) + ":" + strconv.FormatInt(userID, 10) + ":" + decision
}

// ParseCallback разбирает callback-данные; неизвестные и битые токены отбрасываются.
func ParseCallback(data string) (Action, bool) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 {
		return Action{}, false
	}
	eventID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || eventID <= 0 {
		return Action{}, false
	}
	a := Action{Name: parts[0], EventID: eventID}

	switch a.Name {
	case ActionJoinChat, ActionClaim:
		if len(parts) != 2 {
			return Action{}, false
		}
	case ActionGender:
		if len(parts) != 3 || (parts[2] != "male" && parts[2] != "female") {
			return Action{}, false
		}
		a.Value = parts[2]
	case ActionDecision:
		if len(parts) != 4 {
			return Action{}, false
		}
		userID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || userID <= 0 {
			return Action{}, false
		}
		if parts[3] != DecisionApprove && parts[3] != DecisionDecline {
			return Action{}, false
		}
		a.UserID = userID
		a.Value = parts[3]
	default:
		return Action{}, false
	}
	return a, true
}

// Кнопки заполнения профиля: "profile_nudge_continue", "profile:gender:<g>", "profile:age:<группа>".
const (
	ProfileContinue = "profile_nudge_continue"
	profilePrefix   = "profile"

	ProfileGender = "gender"
	ProfileAge    = "age"
)

func ProfileGenderToken(gender string) string {
	return profilePrefix + ":" + ProfileGender + ":" + gender
}

func ProfileAgeToken(ageGroup string) string {
	return profilePrefix + ":" + ProfileAge + ":" + ageGroup
}

// ParseProfile разбирает кнопку профиля и проверяет значение.
func ParseProfile(data string) (field, value string, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != profilePrefix {
		return "", "", false
	}
	switch parts[1] {
	case ProfileGender:
		if parts[2] != "male" && parts[2] != "female" {
			return "", "", false
		}
	case ProfileAge:
		if !database.ValidAgeGroup(parts[2]) {
			return "", "", false
		}
	default:
		return "", "", false
	}
	return parts[1], parts[2], true
}
