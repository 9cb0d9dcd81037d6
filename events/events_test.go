package events

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"holclub_bot/config"
	"holclub_bot/database"
	"holclub_bot/moderation"
	"holclub_bot/notify"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]database.User
	events   map[int64]database.Event
	profiles []database.UserProfile
	failSave bool
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]database.User{}, events: map[int64]database.Event{}}
}

func (m *memStore) InTx(_ context.Context, fn func(Store) error) error { return fn(m) }

func (m *memStore) GetUser(_ context.Context, id int64) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *memStore) CreateEvent(_ context.Context, e *database.Event) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.events {
		if existing.Fingerprint == e.Fingerprint {
			return 0, false, nil
		}
	}
	m.nextID++
	stored := *e
	stored.ID = m.nextID
	m.events[stored.ID] = stored
	return stored.ID, true, nil
}

func (m *memStore) MarkEventPublished(_ context.Context, id, channelID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.events[id]
	e.ChannelID, e.ChannelMessageID = &channelID, &messageID
	m.events[id] = e
	return nil
}

func (m *memStore) SetEventThreads(_ context.Context, id int64, male, female *database.ThreadRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("connection reset")
	}
	e := m.events[id]
	e.MaleThread, e.FemaleThread = male, female
	m.events[id] = e
	return nil
}

func (m *memStore) SetEventInviteLink(_ context.Context, id, _ int64, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.events[id]
	e.InviteLink = &link
	m.events[id] = e
	return nil
}

func (m *memStore) DeleteEvent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	return nil
}

func (m *memStore) ActiveUserProfilesByRole(_ context.Context, _ database.Role) ([]database.UserProfile, error) {
	return m.profiles, nil
}

type fakePublisher struct {
	failPost       bool
	failThreadChat int64
	posts          map[int]bool
	nextMsg        int
	threads        int
	topics         map[int]int64
	qrTo           int64
	qr             []byte
}

func (p *fakePublisher) PostEvent(_ context.Context, _ int64, _, _ string, _ [][]notify.Button) (int, error) {
	if p.failPost {
		return 0, errors.New("channel unavailable")
	}
	p.nextMsg++
	p.posts[p.nextMsg] = true
	return p.nextMsg, nil
}

func (p *fakePublisher) DeletePost(_ context.Context, _ int64, messageID int) error {
	delete(p.posts, messageID)
	return nil
}

func (p *fakePublisher) CreateThread(_ context.Context, chatID int64, _, _ string) (database.ThreadRef, error) {
	if chatID == p.failThreadChat {
		return database.ThreadRef{}, errors.New("not enough rights to create a topic")
	}
	p.threads++
	p.topics[p.threads] = chatID
	return database.ThreadRef{ChatID: chatID, ThreadID: p.threads, MessageID: 100 + p.threads}, nil
}

func (p *fakePublisher) DeleteThread(_ context.Context, chatID int64, threadID int) error {
	if p.topics[threadID] == chatID {
		delete(p.topics, threadID)
	}
	return nil
}

func (p *fakePublisher) CreateInviteLink(_ context.Context, _ int64, _ string) (string, error) {
	return "https://t.me/+shared", nil
}

func (p *fakePublisher) SendQR(_ context.Context, chatID int64, png []byte, _ string) error {
	p.qrTo, p.qr = chatID, png
	return nil
}

type fakeDeliverer struct {
	sent []int64
}

func (d *fakeDeliverer) Deliver(_ context.Context, id int64, _ string, _ [][]notify.Button) error {
	d.sent = append(d.sent, id)
	return nil
}

const partnerID = int64(50)

func ptr[T any](v T) *T { return &v }

func fixture(cfg *config.Config) (*memStore, *fakePublisher, *fakeDeliverer, *Service) {
	st := newMemStore()
	st.users[partnerID] = database.User{ID: partnerID, Role: database.RolePartner, CommissionPercent: 20}
	st.users[7] = database.User{ID: 7, Role: database.RoleUser}
	st.profiles = []database.UserProfile{
		{ID: 7, Gender: database.GenderFemale, AgeGroup: ptr("26-35")},
		{ID: 8, Gender: database.GenderMale, AgeGroup: ptr("36-45")},
		{ID: 9},
	}
	pub := &fakePublisher{posts: map[int]bool{}, topics: map[int]int64{}}
	del := &fakeDeliverer{}
	return st, pub, del, NewService(st, pub, del, nil, cfg, "holclub_bot")
}

func topicConfig() *config.Config {
	return &config.Config{
		EventsChannelID: -1001000,
		MaleChatID:      -100444,
		FemaleChatID:    -100555,
		PriceMax:        100000,
		AllowedDomains:  []string{"t.me"},
	}
}

func validDraft() Draft {
	return Draft{
		PartnerUserID: partnerID,
		Name:          "Ужин",
		Datetime:      "25.05.2025 19:00",
		Address:       "Тверская 1",
		Description:   "Знакомства за ужином",
		Price:         "1000",
		AgeGroup:      "26-35",
	}
}

func TestPublishTopicMode(t *testing.T) {
	st, pub, del, svc := fixture(topicConfig())

	res, err := svc.Publish(context.Background(), validDraft())
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	require.Len(t, res.Code, 6)
	require.Equal(t, "https://t.me/c/1000/1", res.PostLink)

	ev := st.events[res.EventID]
	require.True(t, ev.Published())
	require.Equal(t, int64(-100444), ev.MaleThread.ChatID)
	require.Equal(t, int64(-100555), ev.FemaleThread.ChatID)
	require.Equal(t, "1200", *ev.Price)
	require.Equal(t, 200, *ev.PrepayFixed)
	require.Equal(t, res.Code, *ev.AttendanceCode)

	require.Equal(t, []int64{7}, del.sent)
	require.Equal(t, 1, res.Broadcast)

	require.Equal(t, partnerID, pub.qrTo)
	require.True(t, bytes.HasPrefix(pub.qr, []byte("\x89PNG")))
}

func TestPublishSharedChatMode(t *testing.T) {
	cfg := topicConfig()
	cfg.MaleChatID, cfg.FemaleChatID, cfg.SharedChatID = 0, 0, -100777
	st, _, _, svc := fixture(cfg)

	res, err := svc.Publish(context.Background(), validDraft())
	require.NoError(t, err)
	require.Equal(t, "https://t.me/+shared", *st.events[res.EventID].InviteLink)
}

func TestPublishSameDraftTwice(t *testing.T) {
	st, _, _, svc := fixture(topicConfig())
	ctx := context.Background()

	_, err := svc.Publish(ctx, validDraft())
	require.NoError(t, err)

	res, err := svc.Publish(ctx, validDraft())
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyPublished, res.Outcome)
	require.Len(t, st.events, 1)

	changed := validDraft()
	changed.Description = "Знакомства за ужином и танцы"
	res, err = svc.Publish(ctx, changed)
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	require.Len(t, st.events, 2)
}

func TestPublishPostFailureDeletesEvent(t *testing.T) {
	st, pub, _, svc := fixture(topicConfig())
	pub.failPost = true

	res, err := svc.Publish(context.Background(), validDraft())
	require.ErrorIs(t, err, ErrPublishFailed)
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Empty(t, st.events)
}

func TestPublishThreadFailureDeletesPostAndEvent(t *testing.T) {
	st, pub, del, svc := fixture(topicConfig())
	pub.failThreadChat = -100444

	_, err := svc.Publish(context.Background(), validDraft())
	require.ErrorIs(t, err, ErrPublishFailed)
	require.Empty(t, st.events)
	require.Empty(t, pub.posts)
	require.Empty(t, del.sent)
}

func TestPublishSecondThreadFailureDeletesFirstTopic(t *testing.T) {
	st, pub, del, svc := fixture(topicConfig())
	pub.failThreadChat = -100555

	_, err := svc.Publish(context.Background(), validDraft())
	require.ErrorIs(t, err, ErrPublishFailed)
	require.Equal(t, 1, pub.threads)
	require.Empty(t, pub.topics)
	require.Empty(t, st.events)
	require.Empty(t, pub.posts)
	require.Empty(t, del.sent)
}

func TestPublishThreadSaveFailureDeletesBothTopics(t *testing.T) {
	st, pub, _, svc := fixture(topicConfig())
	st.failSave = true

	_, err := svc.Publish(context.Background(), validDraft())
	require.ErrorIs(t, err, ErrPublishFailed)
	require.Equal(t, 2, pub.threads)
	require.Empty(t, pub.topics)
	require.Empty(t, st.events)
	require.Empty(t, pub.posts)
}

func TestPublishWithoutDiscussionChatsFails(t *testing.T) {
	cfg := topicConfig()
	cfg.MaleChatID, cfg.FemaleChatID = 0, 0
	st, _, _, svc := fixture(cfg)

	_, err := svc.Publish(context.Background(), validDraft())
	require.ErrorIs(t, err, ErrNoDiscussion)
	require.Empty(t, st.events)
}

func TestPublishRejectsMembersAndInvalidDrafts(t *testing.T) {
	st, _, _, svc := fixture(topicConfig())
	ctx := context.Background()

	d := validDraft()
	d.PartnerUserID = 7
	res, err := svc.Publish(ctx, d)
	require.NoError(t, err)
	require.Equal(t, OutcomeForbidden, res.Outcome)

	d = validDraft()
	d.Description = "звоните +7 912 345-67-89"
	res, err = svc.Publish(ctx, d)
	require.ErrorIs(t, err, ErrInvalidDraft)
	require.Equal(t, OutcomeInvalid, res.Outcome)
	require.Empty(t, st.events)
}

func TestDraftValidate(t *testing.T) {
	det := moderation.New([]string{"t.me"})
	cases := []struct {
		name   string
		mutate func(*Draft)
		ok     bool
	}{
		{"valid", func(*Draft) {}, true},
		{"free", func(d *Draft) { d.Price = "" }, true},
		{"all ages", func(d *Draft) { d.AgeGroup = database.AgeGroupAll }, true},
		{"missing name", func(d *Draft) { d.Name = " " }, false},
		{"bad datetime", func(d *Draft) { d.Datetime = "завтра" }, false},
		{"negative price", func(d *Draft) { d.Price = "-5" }, false},
		{"price over max", func(d *Draft) { d.Price = "500000" }, false},
		{"both prepay", func(d *Draft) { d.PrepayPercent, d.PrepayFixed = ptr(10), ptr(100) }, false},
		{"percent over 100", func(d *Draft) { d.PrepayPercent = ptr(120) }, false},
		{"prepay on free", func(d *Draft) { d.Price, d.PrepayFixed = "", ptr(100) }, false},
		{"unknown age", func(d *Draft) { d.AgeGroup = "30-40" }, false},
		{"foreign link", func(d *Draft) { d.Description = "подробнее на example.ru" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := validDraft()
			tc.mutate(&d)
			err := d.Validate(det, 100000)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidDraft)
		})
	}
}

func TestApplyCommission(t *testing.T) {
	d := validDraft()
	d.PrepayPercent = ptr(50)
	d.ApplyCommission(15)
	require.Equal(t, "1150", d.Price)
	require.Equal(t, 150, *d.PrepayFixed)
	require.Nil(t, d.PrepayPercent)

	free := validDraft()
	free.Price = ""
	free.ApplyCommission(15)
	require.Empty(t, free.Price)
	require.Nil(t, free.PrepayFixed)
}

func TestFingerprint(t *testing.T) {
	a, b := validDraft(), validDraft()
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.Len(t, a.Fingerprint(), 64)

	b.AgeGroup = "36-45"
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := validDraft()
	c.PartnerUserID = 51
	require.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestParseDraftForm(t *testing.T) {
	text := "/newevent\nname=Ужин\ndatetime=25.05.2025 19:00\naddress=Тверская 1\n" +
		"description=Первая строка\nвторая строка\nprice=1 500\nprepay=30%\nage=26-35"

	d, err := ParseDraftForm(partnerID, text)
	require.NoError(t, err)
	require.Equal(t, "Ужин", d.Name)
	require.Equal(t, "Первая строка\nвторая строка", d.Description)
	require.Equal(t, "1500", d.Price)
	require.Equal(t, 30, *d.PrepayPercent)
	require.Equal(t, "26-35", d.AgeGroup)

	_, err = ParseDraftForm(partnerID, "/newevent\ncolor=red")
	require.ErrorIs(t, err, ErrInvalidDraft)

	d, err = ParseDraftForm(partnerID, "/newevent\nprice=0\nprepay=300")
	require.NoError(t, err)
	require.False(t, d.IsPaid())
	require.Equal(t, 300, *d.PrepayFixed)
}

func TestNewAttendanceCode(t *testing.T) {
	for range 20 {
		code, err := NewAttendanceCode()
		require.NoError(t, err)
		require.Regexp(t, `^\d{6}$`, code)
	}
}
