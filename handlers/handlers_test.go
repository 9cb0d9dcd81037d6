package handlers

import (
	"context"
	"testing"

	"holclub_bot/chatlink"
	"holclub_bot/config"
	"holclub_bot/database"
	"holclub_bot/deeplink"
	"holclub_bot/events"
	"holclub_bot/messages"
	"holclub_bot/notify"
	"holclub_bot/registration"

	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	users     map[int64]*database.User
	reachable []int64
	regs      []database.UserRegistration
	partnerEv []database.PartnerEvent
}

func (f *fakeUsers) AddUser(_ context.Context, id int64, username *string, role database.Role) error {
	if _, ok := f.users[id]; !ok {
		f.users[id] = &database.User{ID: id, Username: username, Role: role}
	}
	return nil
}

func (f *fakeUsers) UpdateUsername(_ context.Context, id int64, username *string) error {
	f.users[id].Username = username
	return nil
}

func (f *fakeUsers) MarkReachable(_ context.Context, id int64) error {
	f.reachable = append(f.reachable, id)
	return nil
}

func (f *fakeUsers) GetUser(_ context.Context, id int64) (*database.User, error) {
	return f.users[id], nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id int64, gender database.Gender, ageGroup *string) error {
	f.users[id].Gender = gender
	f.users[id].AgeGroup = ageGroup
	return nil
}

func (f *fakeUsers) ListUserRegistrations(context.Context, int64, []database.RegistrationStatus) ([]database.UserRegistration, error) {
	return f.regs, nil
}

func (f *fakeUsers) ListPartnerEvents(context.Context, int64) ([]database.PartnerEvent, error) {
	return f.partnerEv, nil
}

type fakeAdv struct{ seen map[int64]bool }

func (f *fakeAdv) RegisterAdvPlacement(_ context.Context, userID int64, _ database.AdvPlacement) (bool, error) {
	if f.seen[userID] {
		return false, nil
	}
	f.seen[userID] = true
	return true, nil
}

type fakeReg struct {
	register  registration.Result
	attend    registration.Result
	gotCode   string
	decisions []bool
	decider   int64
}

func (f *fakeReg) Register(_ context.Context, eventID, _ int64) (registration.Result, error) {
	res := f.register
	res.EventID = eventID
	return res, nil
}

func (f *fakeReg) ClaimPayment(_ context.Context, eventID, _ int64) (registration.Result, error) {
	return registration.Result{Outcome: registration.OutcomeOK, EventID: eventID, Status: database.StatusPaidConfirmPending}, nil
}

func (f *fakeReg) DecidePayment(_ context.Context, _, _ int64, approve bool, deciderID int64) (registration.Result, error) {
	f.decisions = append(f.decisions, approve)
	f.decider = deciderID
	return registration.Result{Outcome: registration.OutcomeOK}, nil
}

func (f *fakeReg) ConfirmAttendance(_ context.Context, _, _ int64, code string) (registration.Result, error) {
	f.gotCode = code
	return f.attend, nil
}

type fakePub struct {
	drafts []events.Draft
}

func (f *fakePub) Publish(_ context.Context, d events.Draft) (events.Result, error) {
	f.drafts = append(f.drafts, d)
	return events.Result{Outcome: events.OutcomeOK, EventID: 5, Code: "123456", PostLink: "https://t.me/c/100/9"}, nil
}

type sent struct {
	to      int64
	text    string
	buttons [][]notify.Button
}

type recorder struct{ out []sent }

func (r *recorder) Deliver(_ context.Context, id int64, text string, buttons [][]notify.Button) error {
	r.out = append(r.out, sent{to: id, text: text, buttons: buttons})
	return nil
}

func (r *recorder) last(t *testing.T) sent {
	t.Helper()
	require.NotEmpty(t, r.out)
	return r.out[len(r.out)-1]
}

const memberID = 7

func newHandler() (*Handler, *fakeUsers, *fakeReg, *fakePub, *recorder) {
	users := &fakeUsers{users: map[int64]*database.User{}}
	reg := &fakeReg{}
	pub := &fakePub{}
	out := &recorder{}
	cfg := &config.Config{PaymentCard: "2200 0000 0000 0000"}
	h := New(users, &fakeAdv{seen: map[int64]bool{}}, reg, pub, out, cfg)
	h.touch(context.Background(), memberID, "anna")
	return h, users, reg, pub, out
}

func TestCommand(t *testing.T) {
	require.Equal(t, "/start", command("/start@holclub_bot event_chat_1"))
	require.Equal(t, "/code", command("/CODE 123"))
	require.Equal(t, "", command("привет"))
	require.Equal(t, "", command(""))
}

func TestTouchMarksReachable(t *testing.T) {
	_, users, _, _, _ := newHandler()
	require.Equal(t, []int64{memberID}, users.reachable)
	require.Equal(t, "anna", *users.users[memberID].Username)
}

func TestStartEventAsksGenderThenPayment(t *testing.T) {
	h, users, reg, _, out := newHandler()
	ctx := context.Background()
	amount := 500
	reg.register = registration.Result{Outcome: registration.OutcomeOK, Status: database.StatusPendingPayment, Amount: &amount, EventName: "Ужин"}

	h.handleText(ctx, memberID, "/start event_chat_100", "")
	msg := out.last(t)
	require.Equal(t, messages.MsgGenderPrompt, msg.text)
	require.Equal(t, deeplink.GenderToken(100, "female"), msg.buttons[0][1].Data)

	h.handleCallback(ctx, memberID, deeplink.GenderToken(100, "female"))
	require.Equal(t, database.GenderFemale, users.users[memberID].Gender)

	msg = out.last(t)
	require.Contains(t, msg.text, "500")
	require.Contains(t, msg.text, "2200 0000 0000 0000")
	require.Equal(t, deeplink.ClaimToken(100), msg.buttons[0][0].Data)

	h.handleCallback(ctx, memberID, deeplink.ClaimToken(100))
	require.Equal(t, messages.MsgClaimAccepted, out.last(t).text)
}

func TestConfirmedMemberGetsChatLink(t *testing.T) {
	h, users, reg, _, out := newHandler()
	users.users[memberID].Gender = database.GenderMale
	reg.register = registration.Result{
		Outcome: registration.OutcomeAlready,
		Status:  database.StatusConfirmed,
		Route:   chatlink.Route{Link: "https://t.me/c/444/10?thread=3"},
		Routed:  true,
	}

	h.handleCallback(context.Background(), memberID, deeplink.JoinChatToken(100))
	msg := out.last(t)
	require.Equal(t, "https://t.me/c/444/10?thread=3", msg.buttons[0][0].URL)

	reg.register.Routed = false
	h.handleCallback(context.Background(), memberID, deeplink.JoinChatToken(100))
	require.Equal(t, messages.MsgLinkNotReady, out.last(t).text)
}

func TestCodeCommand(t *testing.T) {
	h, _, reg, _, out := newHandler()
	ctx := context.Background()

	h.handleText(ctx, memberID, "/code", "")
	require.Equal(t, messages.MsgAttendanceUsage, out.last(t).text)

	reg.attend = registration.Result{Outcome: registration.OutcomeOK, EventName: "Ужин"}
	h.handleText(ctx, memberID, "/code 12-34-56", "")
	require.Equal(t, "12-34-56", reg.gotCode)
	require.Contains(t, out.last(t).text, "Ужин")

	reg.attend = registration.Result{Outcome: registration.OutcomeInvalid}
	h.handleText(ctx, memberID, "/start attend_100_999999", "")
	require.Equal(t, "999999", reg.gotCode)
	require.Equal(t, messages.MsgAttendanceInvalid, out.last(t).text)
}

func TestNewEvent(t *testing.T) {
	h, _, _, pub, out := newHandler()
	ctx := context.Background()

	h.handleText(ctx, memberID, "/newevent", "")
	require.Equal(t, messages.MsgNewEventHelp, out.last(t).text)
	require.Empty(t, pub.drafts)

	h.handleText(ctx, memberID, "/newevent\nname=Ужин\ndatetime=25.05.2025 19:00", "photo-1")
	require.Len(t, pub.drafts, 1)
	require.Equal(t, "photo-1", pub.drafts[0].PhotoFileID)
	require.Equal(t, int64(memberID), pub.drafts[0].PartnerUserID)
	require.Contains(t, out.last(t).text, "123456")
	require.Contains(t, out.last(t).text, "https://t.me/c/100/9")

	h.handleText(ctx, memberID, "/newevent\ncolor=red", "")
	require.Len(t, pub.drafts, 1)
	require.Contains(t, out.last(t).text, "color")
}

func TestDecisionCallback(t *testing.T) {
	h, _, reg, _, out := newHandler()
	h.handleCallback(context.Background(), 1, deeplink.DecisionToken(100, memberID, deeplink.DecisionDecline))
	require.Equal(t, []bool{false}, reg.decisions)
	require.Equal(t, int64(1), reg.decider)
	require.Equal(t, messages.MsgAdminDeclined, out.last(t).text)

	h.handleCallback(context.Background(), 1, "garbage:1")
	require.Len(t, reg.decisions, 1)
}

func TestProfileFlow(t *testing.T) {
	h, users, _, _, out := newHandler()
	ctx := context.Background()

	h.handleCallback(ctx, memberID, deeplink.ProfileContinue)
	require.Equal(t, messages.MsgProfileGender, out.last(t).text)

	h.handleCallback(ctx, memberID, deeplink.ProfileGenderToken("male"))
	require.Equal(t, messages.MsgProfileAge, out.last(t).text)
	require.Equal(t, deeplink.ProfileAgeToken("18-25"), out.last(t).buttons[0][0].Data)

	h.handleCallback(ctx, memberID, deeplink.ProfileAgeToken("26-35"))
	require.Equal(t, messages.MsgProfileSaved, out.last(t).text)
	require.True(t, users.users[memberID].HasProfile())
}

func TestAdvPlacementStart(t *testing.T) {
	h, _, _, _, out := newHandler()
	ctx := context.Background()

	h.handleText(ctx, memberID, "/start 2025-05-01_somechannel_5000", "")
	require.Equal(t, messages.MsgWelcome, out.last(t).text)

	h.handleText(ctx, memberID, "/start 2025-05-01_somechannel_5000", "")
	require.Equal(t, messages.MsgAdvAlready, out.last(t).text)
}

func TestMyEvents(t *testing.T) {
	h, users, _, _, out := newHandler()
	users.regs = []database.UserRegistration{{
		Registration:  database.Registration{EventID: 100, Status: database.StatusConfirmed},
		EventName:     "Ужин",
		EventDatetime: "25.05.2025 19:00",
	}}
	h.handleText(context.Background(), memberID, "/myevents", "")
	require.Contains(t, out.last(t).text, "Ужин")
	require.Contains(t, out.last(t).text, "подтверждено")
}
