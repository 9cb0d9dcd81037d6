// Package api отдаёт служебный HTTP API для админов: очередь заявок и решения по ним.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"holclub_bot/database"
	"holclub_bot/registration"

	"github.com/gin-gonic/gin"
)

const TokenHeader = "X-Api-Token"

type RegistrationLister interface {
	ListRegistrationsByStatus(ctx context.Context, eventID int64, status database.RegistrationStatus) ([]database.RegistrationListItem, error)
}

type Decider interface {
	DecidePayment(ctx context.Context, eventID, userID int64, approve bool, deciderID int64) (registration.Result, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	lister  RegistrationLister
	decider Decider
	pinger  Pinger
	token   string
}

func New(lister RegistrationLister, decider Decider, pinger Pinger, token string) *Server {
	return &Server{lister: lister, decider: decider, pinger: pinger, token: token}
}

// Router собирает gin-движок с маршрутами.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)

	authed := r.Group("/", s.requireToken)
	authed.GET("/events/:id/registrations", s.listRegistrations)
	authed.POST("/events/:id/registrations/:user_id/decision", s.decide)
	return r
}

func (s *Server) requireToken(c *gin.Context) {
	got := c.GetHeader(TokenHeader)
	if s.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func (s *Server) health(c *gin.Context) {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type registrationItem struct {
	UserID   int64   `json:"user_id"`
	Username *string `json:"username"`
	Status   string  `json:"status"`
	Amount   *int    `json:"amount"`
}

var knownStatuses = map[database.RegistrationStatus]bool{
	database.StatusPendingPayment:     true,
	database.StatusPaidConfirmPending: true,
	database.StatusConfirmed:          true,
	database.StatusDeclined:           true,
	database.StatusAttendedConfirmed:  true,
}

func (s *Server) listRegistrations(c *gin.Context) {
	eventID, ok := idParam(c, "id")
	if !ok {
		return
	}
	status := database.RegistrationStatus(c.DefaultQuery("status", string(database.StatusPaidConfirmPending)))
	if !knownStatuses[status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	items, err := s.lister.ListRegistrationsByStatus(c.Request.Context(), eventID, status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]registrationItem, 0, len(items))
	for _, it := range items {
		out = append(out, registrationItem{UserID: it.UserID, Username: it.Username, Status: string(it.Status), Amount: it.Amount})
	}
	c.JSON(http.StatusOK, out)
}

type decisionRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approve decline"`
	AdminID  int64  `json:"admin_id" binding:"required"`
}

func (s *Server) decide(c *gin.Context) {
	eventID, ok := idParam(c, "id")
	if !ok {
		return
	}
	userID, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.decider.DecidePayment(c.Request.Context(), eventID, userID, req.Decision == "approve", req.AdminID)
	if err != nil && !errors.Is(err, registration.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{"outcome": res.Outcome, "status": res.Status}
	switch res.Outcome {
	case registration.OutcomeOK:
		c.JSON(http.StatusOK, body)
	case registration.OutcomeAlready:
		c.JSON(http.StatusConflict, body)
	case registration.OutcomeForbidden:
		c.JSON(http.StatusForbidden, body)
	case registration.OutcomeNotFound:
		c.JSON(http.StatusNotFound, body)
	default:
		c.JSON(http.StatusUnprocessableEntity, body)
	}
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
