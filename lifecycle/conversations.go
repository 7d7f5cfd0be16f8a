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

// ConversationSummary is a conversation as seen by one of its participants.
type ConversationSummary struct {
	models.Conversation
	PeerID string `json:"peer_id"`
	Unread int    `json:"unread"`
}

// EnsureConversation returns the conversation between userA and userB,
// creating it on first contact. Argument order does not matter. When a
// concurrent caller creates the same conversation first, its row is returned.
func (s *Service) EnsureConversation(ctx context.Context, userA, userB string) (models.Conversation, error) {
	userA, userB = strings.TrimSpace(userA), strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return models.Conversation{}, apperr.InvalidArg("both participants are required")
	}
	if userA == userB {
		return models.Conversation{}, apperr.ErrSelfRequest
	}

	// The shared lookup outlives any single caller; each caller stops
	// waiting on its own ctx.
	pair := models.NewPair(userA, userB)
	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(pair.Key(), func() (interface{}, error) {
		return s.ensureConversation(shared, pair, userA, userB)
	})
	select {
	case <-ctx.Done():
		return models.Conversation{}, apperr.Persistence("ensure conversation", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return models.Conversation{}, res.Err
		}
		return res.Val.(models.Conversation), nil
	}
}

func (s *Service) ensureConversation(ctx context.Context, pair models.Pair, userA, userB string) (models.Conversation, error) {
	c, err := s.store.FindConversation(ctx, pair)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, db.ErrNoRows) {
		return models.Conversation{}, apperr.Persistence("find conversation", err)
	}

	c = models.Conversation{ParticipantA: userA, ParticipantB: userB}
	err = s.store.InsertConversation(ctx, &c)
	switch {
	case err == nil:
		metrics.ConversationsCreated.Inc()
		s.logger.Info("conversation created", "conversation_id", c.ID, "participant_a", userA, "participant_b", userB)
		return c, nil
	case errors.Is(err, db.ErrDuplicate):
		c, err = s.store.FindConversation(ctx, pair)
		if err != nil {
			return models.Conversation{}, apperr.Persistence("find conversation", err)
		}
		s.logger.Debug("conversation created concurrently", "conversation_id", c.ID)
		return c, nil
	case errors.Is(err, db.ErrForeignKey):
		return models.Conversation{}, apperr.NotFound("user not found")
	default:
		return models.Conversation{}, apperr.Persistence("insert conversation", err)
	}
}

// OpenConversation is EnsureConversation between the caller and peerID.
func (s *Service) OpenConversation(ctx context.Context, sess identity.Session, peerID string) (models.Conversation, error) {
	if !sess.Authenticated() {
		return models.Conversation{}, apperr.ErrNotAuthenticated
	}
	return s.EnsureConversation(ctx, sess.UserID, peerID)
}

// ListConversations returns the caller's conversations, most recently
// active first, with the number of unread messages from the peer.
func (s *Service) ListConversations(ctx context.Context, sess identity.Session) ([]ConversationSummary, error) {
	if !sess.Authenticated() {
		return nil, apperr.ErrNotAuthenticated
	}
	conversations, err := s.store.ListConversations(ctx, sess.UserID)
	if err != nil {
		return nil, apperr.Persistence("list conversations", err)
	}
	unread, err := s.store.UnreadCounts(ctx, sess.UserID)
	if err != nil {
		return nil, apperr.Persistence("count unread messages", err)
	}

	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, c := range conversations {
		summaries = append(summaries, ConversationSummary{
			Conversation: c,
			PeerID:       c.Peer(sess.UserID),
			Unread:       unread[c.ID],
		})
	}
	return summaries, nil
}

// participantConversation loads a conversation the caller takes part in.
func (s *Service) participantConversation(ctx context.Context, sess identity.Session, conversationID string) (models.Conversation, error) {
	if !sess.Authenticated() {
		return models.Conversation{}, apperr.ErrNotAuthenticated
	}
	c, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, db.ErrNoRows) {
		return models.Conversation{}, apperr.NotFound("conversation not found")
	}
	if err != nil {
		return models.Conversation{}, apperr.Persistence("get conversation", err)
	}
	if !c.HasParticipant(sess.UserID) {
		return models.Conversation{}, apperr.ErrNotAParticipant
	}
	return c, nil
}
