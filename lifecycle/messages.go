package lifecycle

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"rishta/apperr"
	"rishta/db"
	"rishta/identity"
	"rishta/metrics"
	"rishta/models"
	"rishta/notify"
)

// Page selects messages after AfterSeq, at most Limit of them. The zero Page
// selects the whole conversation.
type Page struct {
	AfterSeq int64
	Limit    int
}

// SendMessage appends content to the conversation as the caller and
// publishes the stored message to subscribers.
func (s *Service) SendMessage(ctx context.Context, sess identity.Session, conversationID, content string) (models.Message, error) {
	start := time.Now()
	m, err := s.sendMessage(ctx, sess, conversationID, content)
	if err != nil {
		metrics.SendFailures.WithLabelValues(string(apperr.CodeOf(err))).Inc()
		return models.Message{}, err
	}
	metrics.MessagesSent.Inc()
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	return m, nil
}

func (s *Service) sendMessage(ctx context.Context, sess identity.Session, conversationID, content string) (models.Message, error) {
	if !sess.Authenticated() {
		return models.Message{}, apperr.ErrNotAuthenticated
	}
	if strings.TrimSpace(content) == "" {
		return models.Message{}, apperr.ErrInvalidMessage
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return models.Message{}, apperr.New(apperr.CodeInvalidMessage, "message is too long")
	}
	if _, err := s.participantConversation(ctx, sess, conversationID); err != nil {
		return models.Message{}, err
	}

	lock := s.sendLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	m := models.Message{ConversationID: conversationID, SenderID: sess.UserID, Content: content}
	if err := s.insertWithRetry(ctx, &m); err != nil {
		return models.Message{}, apperr.Persistence("send message", err)
	}
	s.hub.Publish(m)
	s.logger.Debug("message sent", "conversation_id", conversationID, "message_id", m.ID, "seq", m.Seq)
	return m, nil
}

// insertWithRetry retries lock contention failures with a linear backoff.
// Anything else is returned at once.
func (s *Service) insertWithRetry(ctx context.Context, m *models.Message) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.store.InsertMessage(ctx, m)
		if err == nil || !db.IsTransient(err) || attempt >= s.opts.SendRetries {
			return err
		}
		metrics.SendRetries.Inc()
		s.logger.Warn("retrying message insert", "conversation_id", m.ConversationID, "attempt", attempt+1, "error", err)

		timer := time.NewTimer(s.opts.SendRetryBackoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ListMessages returns the conversation's messages in creation order.
func (s *Service) ListMessages(ctx context.Context, sess identity.Session, conversationID string, page Page) ([]models.Message, error) {
	if page.AfterSeq < 0 || page.Limit < 0 {
		return nil, apperr.InvalidArg("page bounds must not be negative")
	}
	if _, err := s.participantConversation(ctx, sess, conversationID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, conversationID, page.AfterSeq, page.Limit)
	if err != nil {
		return nil, apperr.Persistence("list messages", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// SubscribeToNewMessages calls onMessage for each message sent to the
// conversation from now on, in send order, until the returned subscription is
// cancelled or ctx is done.
func (s *Service) SubscribeToNewMessages(ctx context.Context, sess identity.Session, conversationID string, onMessage func(models.Message)) (*notify.Subscription, error) {
	if onMessage == nil {
		return nil, apperr.InvalidArg("callback is required")
	}
	if _, err := s.participantConversation(ctx, sess, conversationID); err != nil {
		return nil, err
	}
	sub := s.hub.Subscribe(conversationID, onMessage)
	go func() {
		select {
		case <-ctx.Done():
			sub.Cancel()
		case <-sub.Done():
		}
	}()
	return sub, nil
}

// MarkRead marks the peer's messages in the conversation as read by the
// caller and returns how many changed.
func (s *Service) MarkRead(ctx context.Context, sess identity.Session, conversationID string) (int64, error) {
	if _, err := s.participantConversation(ctx, sess, conversationID); err != nil {
		return 0, err
	}
	n, err := s.store.MarkConversationRead(ctx, conversationID, sess.UserID)
	if err != nil {
		return 0, apperr.Persistence("mark read", err)
	}
	return n, nil
}
