package lifecycle

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"rishta/apperr"
	"rishta/db"
	"rishta/identity"
	"rishta/metrics"
	"rishta/models"
)

type Outcome string

const (
	RequestCreated   Outcome = "created"
	RequestPending   Outcome = "pending"
	AlreadyConnected Outcome = "connected"
)

type ConnectionResult struct {
	Outcome Outcome                  `json:"outcome"`
	Request models.ConnectionRequest `json:"request"`
}

type Direction int

const (
	Incoming Direction = iota
	Outgoing
)

// ParseDirection accepts "incoming" and "outgoing"; empty means incoming.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "incoming", "in":
		return Incoming, nil
	case "outgoing", "out":
		return Outgoing, nil
	}
	return 0, apperr.InvalidArg("direction must be incoming or outgoing")
}

// RequestConnection records the caller's interest in receiverID. Repeating
// the request never adds a row; the result tells whether the existing one is
// still pending or already accepted.
func (s *Service) RequestConnection(ctx context.Context, sess identity.Session, receiverID string) (ConnectionResult, error) {
	if !sess.Authenticated() {
		return ConnectionResult{}, apperr.ErrNotAuthenticated
	}
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" {
		return ConnectionResult{}, apperr.InvalidArg("receiver id is required")
	}
	if receiverID == sess.UserID {
		return ConnectionResult{}, apperr.ErrSelfRequest
	}

	existing, err := s.store.FindConnectionRequest(ctx, sess.UserID, receiverID)
	switch {
	case err == nil:
		return s.connectionResult(existing), nil
	case !errors.Is(err, db.ErrNoRows):
		return ConnectionResult{}, apperr.Persistence("find connection request", err)
	}

	r := models.ConnectionRequest{SenderID: sess.UserID, ReceiverID: receiverID}
	err = s.store.InsertConnectionRequest(ctx, &r)
	switch {
	case errors.Is(err, db.ErrForeignKey):
		return ConnectionResult{}, apperr.NotFound("user not found")
	case errors.Is(err, db.ErrDuplicate):
		// Lost a race with another request from the same sender.
		existing, err = s.store.FindConnectionRequest(ctx, sess.UserID, receiverID)
		if err != nil {
			return ConnectionResult{}, apperr.Persistence("find connection request", err)
		}
		return s.connectionResult(existing), nil
	case err != nil:
		return ConnectionResult{}, apperr.Persistence("insert connection request", err)
	}

	metrics.ConnectionRequests.WithLabelValues(string(RequestCreated)).Inc()
	s.logger.Info("connection requested", "request_id", r.ID, "sender", r.SenderID, "receiver", r.ReceiverID)
	s.notify(ctx, receiverID, sess.UserID, models.NotifyLike)
	return ConnectionResult{Outcome: RequestCreated, Request: r}, nil
}

func (s *Service) connectionResult(r models.ConnectionRequest) ConnectionResult {
	outcome := RequestPending
	if r.Status == models.StatusAccepted {
		outcome = AlreadyConnected
	}
	metrics.ConnectionRequests.WithLabelValues(string(outcome)).Inc()
	return ConnectionResult{Outcome: outcome, Request: r}
}

// AcceptConnection moves a request addressed to the caller from sent to
// accepted. Accepting an accepted request returns it unchanged.
func (s *Service) AcceptConnection(ctx context.Context, sess identity.Session, requestID string) (models.ConnectionRequest, error) {
	if !sess.Authenticated() {
		return models.ConnectionRequest{}, apperr.ErrNotAuthenticated
	}
	r, err := s.store.GetConnectionRequest(ctx, requestID)
	if errors.Is(err, db.ErrNoRows) {
		return models.ConnectionRequest{}, apperr.NotFound("connection request not found")
	}
	if err != nil {
		return models.ConnectionRequest{}, apperr.Persistence("get connection request", err)
	}
	if r.ReceiverID != sess.UserID {
		return models.ConnectionRequest{}, apperr.New(apperr.CodeNotAParticipant, "only the receiver can accept a request")
	}
	if r.Status == models.StatusAccepted {
		return r, nil
	}

	changed, err := s.store.UpdateConnectionStatus(ctx, r.ID, models.StatusSent, models.StatusAccepted)
	if err != nil {
		return models.ConnectionRequest{}, apperr.Persistence("accept connection request", err)
	}
	r.Status = models.StatusAccepted
	if changed {
		metrics.ConnectionsAccepted.Inc()
		s.logger.Info("connection accepted", "request_id", r.ID, "sender", r.SenderID, "receiver", r.ReceiverID)
		s.notify(ctx, r.SenderID, r.ReceiverID, models.NotifyAccept)
	}
	return r, nil
}

// ListConnectionRequests returns the caller's received or sent requests,
// newest first.
func (s *Service) ListConnectionRequests(ctx context.Context, sess identity.Session, dir Direction) ([]models.ConnectionRequest, error) {
	if !sess.Authenticated() {
		return nil, apperr.ErrNotAuthenticated
	}
	requests, err := s.store.ListConnectionRequests(ctx, sess.UserID, dir == Incoming)
	if err != nil {
		return nil, apperr.Persistence("list connection requests", err)
	}
	if requests == nil {
		requests = []models.ConnectionRequest{}
	}
	return requests, nil
}

// IsConnected reports whether either user accepted a request from the other.
func (s *Service) IsConnected(ctx context.Context, a, b string) (bool, error) {
	if a == "" || b == "" || a == b {
		return false, nil
	}
	ok, err := s.store.IsConnected(ctx, models.NewPair(a, b))
	if err != nil {
		return false, apperr.Persistence("check connection", err)
	}
	return ok, nil
}

func (s *Service) ListNotifications(ctx context.Context, sess identity.Session, unreadOnly bool) ([]models.Notification, error) {
	if !sess.Authenticated() {
		return nil, apperr.ErrNotAuthenticated
	}
	list, err := s.store.ListNotifications(ctx, sess.UserID, unreadOnly)
	if err != nil {
		return nil, apperr.Persistence("list notifications", err)
	}
	if list == nil {
		list = []models.Notification{}
	}
	return list, nil
}

func (s *Service) MarkNotificationsRead(ctx context.Context, sess identity.Session) (int64, error) {
	if !sess.Authenticated() {
		return 0, apperr.ErrNotAuthenticated
	}
	n, err := s.store.MarkNotificationsRead(ctx, sess.UserID)
	if err != nil {
		return 0, apperr.Persistence("mark notifications read", err)
	}
	return n, nil
}

// notify records a notification for userID. The triggering change is
// already committed, so a failure here is only logged.
func (s *Service) notify(ctx context.Context, userID, senderID string, typ models.NotificationType) {
	n := models.Notification{UserID: userID, SenderID: senderID, Type: typ}
	if err := s.store.InsertNotification(ctx, &n); err != nil {
		s.logger.Warn("notification not stored", "user_id", userID, "type", typ, "error", err)
	}
}
