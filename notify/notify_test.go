package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	failures map[int64]error
	sent     []int64
}

func (s *fakeSender) Send(_ context.Context, id int64, _ string, _ [][]Button) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failures[id]; ok {
		return err
	}
	s.sent = append(s.sent, id)
	return nil
}

type fakeReach struct {
	marked map[int64]bool
}

func (r *fakeReach) MarkUnreachable(_ context.Context, id int64, blocked bool) error {
	r.marked[id] = blocked
	return nil
}

func TestDeliverMarksBlocked(t *testing.T) {
	sender := &fakeSender{failures: map[int64]error{
		1: &DeliveryError{RecipientID: 1, Failure: FailureBlocked, Err: errors.New("forbidden")},
		2: &DeliveryError{RecipientID: 2, Failure: FailureUnreachable, Err: errors.New("chat not found")},
		3: &DeliveryError{RecipientID: 3, Failure: FailureTransient, Err: errors.New("timeout")},
	}}
	reach := &fakeReach{marked: map[int64]bool{}}
	n := New(sender, reach)

	require.Error(t, n.Deliver(context.Background(), 1, "hi", nil))
	require.Error(t, n.Deliver(context.Background(), 2, "hi", nil))
	require.Error(t, n.Deliver(context.Background(), 3, "hi", nil))

	require.Equal(t, map[int64]bool{1: true, 2: false}, reach.marked)
}

func TestFanOutPartialSuccess(t *testing.T) {
	sender := &fakeSender{failures: map[int64]error{
		10: &DeliveryError{RecipientID: 10, Failure: FailureBlocked, Err: errors.New("blocked")},
	}}
	n := New(sender, &fakeReach{marked: map[int64]bool{}})

	delivered, err := n.FanOut(context.Background(), []int64{10, 11, 12}, "claim", nil)
	require.NoError(t, err)
	require.Equal(t, 2, delivered)
	require.Equal(t, []int64{11, 12}, sender.sent)
}

func TestFanOutNobodyReached(t *testing.T) {
	boom := errors.New("boom")
	sender := &fakeSender{failures: map[int64]error{10: boom}}
	n := New(sender, nil)

	delivered, err := n.FanOut(context.Background(), []int64{10}, "claim", nil)
	require.Zero(t, delivered)
	require.ErrorIs(t, err, boom)

	delivered, err = n.FanOut(context.Background(), nil, "claim", nil)
	require.Zero(t, delivered)
	require.ErrorIs(t, err, ErrNoRecipients)
}

func TestDeliveryErrorUnwrap(t *testing.T) {
	inner := errors.New("chat not found")
	err := error(&DeliveryError{RecipientID: 5, Failure: FailureUnreachable, Err: inner})
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "unreachable")
}
