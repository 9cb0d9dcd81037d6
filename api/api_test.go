package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"holclub_bot/database"
	"holclub_bot/registration"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	gotStatus database.RegistrationStatus
}

func (f *fakeLister) ListRegistrationsByStatus(_ context.Context, eventID int64, status database.RegistrationStatus) ([]database.RegistrationListItem, error) {
	f.gotStatus = status
	name := "anna"
	amount := 500
	return []database.RegistrationListItem{{UserID: 7, Username: &name, Status: status, Amount: &amount}}, nil
}

type fakeDecider struct {
	decided map[int64]bool
}

func (f *fakeDecider) DecidePayment(_ context.Context, eventID, userID int64, approve bool, deciderID int64) (registration.Result, error) {
	switch {
	case eventID == 404:
		return registration.Result{Outcome: registration.OutcomeNotFound}, registration.ErrNotFound
	case deciderID != 1:
		return registration.Result{Outcome: registration.OutcomeForbidden}, nil
	case f.decided[userID]:
		return registration.Result{Outcome: registration.OutcomeAlready, Status: database.StatusConfirmed}, nil
	}
	f.decided[userID] = true
	status := database.StatusDeclined
	if approve {
		status = database.StatusConfirmed
	}
	return registration.Result{Outcome: registration.OutcomeOK, Status: status}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func setupRouter(t *testing.T, pingErr error) (*gin.Engine, *fakeLister) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	lister := &fakeLister{}
	s := New(lister, &fakeDecider{decided: map[int64]bool{}}, fakePinger{err: pingErr}, "secret")
	return s.Router(), lister
}

func httpDo(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t, nil)
	require.Equal(t, http.StatusOK, httpDo(r, "GET", "/healthz", "", nil).Code)

	r, _ = setupRouter(t, errors.New("conn refused"))
	require.Equal(t, http.StatusServiceUnavailable, httpDo(r, "GET", "/healthz", "", nil).Code)
}

func TestTokenRequired(t *testing.T) {
	r, _ := setupRouter(t, nil)
	require.Equal(t, http.StatusUnauthorized, httpDo(r, "GET", "/events/1/registrations", "", nil).Code)
	require.Equal(t, http.StatusUnauthorized, httpDo(r, "GET", "/events/1/registrations", "wrong", nil).Code)
}

func TestListRegistrations(t *testing.T) {
	r, lister := setupRouter(t, nil)

	w := httpDo(r, "GET", "/events/1/registrations", "secret", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, database.StatusPaidConfirmPending, lister.gotStatus)

	var items []registrationItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	require.Equal(t, int64(7), items[0].UserID)
	require.Equal(t, 500, *items[0].Amount)

	w = httpDo(r, "GET", "/events/1/registrations?status=confirmed", "secret", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, database.StatusConfirmed, lister.gotStatus)

	require.Equal(t, http.StatusBadRequest, httpDo(r, "GET", "/events/1/registrations?status=paid", "secret", nil).Code)
	require.Equal(t, http.StatusBadRequest, httpDo(r, "GET", "/events/x/registrations", "secret", nil).Code)
}

func TestDecision(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := httpDo(r, "POST", "/events/1/registrations/7/decision", "secret", gin.H{"decision": "approve", "admin_id": 1})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"confirmed"`)

	w = httpDo(r, "POST", "/events/1/registrations/7/decision", "secret", gin.H{"decision": "decline", "admin_id": 1})
	require.Equal(t, http.StatusConflict, w.Code)

	w = httpDo(r, "POST", "/events/1/registrations/8/decision", "secret", gin.H{"decision": "approve", "admin_id": 2})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = httpDo(r, "POST", "/events/404/registrations/8/decision", "secret", gin.H{"decision": "approve", "admin_id": 1})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = httpDo(r, "POST", "/events/1/registrations/8/decision", "secret", gin.H{"decision": "maybe", "admin_id": 1})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
