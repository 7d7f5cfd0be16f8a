// Package lifecycle holds the rules for connection requests, conversations and
// messages. Transports call into a Service with the caller's identity.Session;
// the Service validates, mutates storage through Store and publishes new
// messages to the notify.Hub.
package lifecycle

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"rishta/models"
	"rishta/notify"
)

// MaxMessageLength is the longest accepted message, in runes.
const MaxMessageLength = 4096

// Store is the storage the lifecycle runs on. *db.DB implements it.
type Store interface {
	UserExists(ctx context.Context, id string) (bool, error)

	FindConnectionRequest(ctx context.Context, sender, receiver string) (models.ConnectionRequest, error)
	GetConnectionRequest(ctx context.Context, id string) (models.ConnectionRequest, error)
	InsertConnectionRequest(ctx context.Context, r *models.ConnectionRequest) error
	UpdateConnectionStatus(ctx context.Context, id string, from, to models.ConnectionStatus) (bool, error)
	ListConnectionRequests(ctx context.Context, userID string, incoming bool) ([]models.ConnectionRequest, error)
	IsConnected(ctx context.Context, pair models.Pair) (bool, error)

	FindConversation(ctx context.Context, pair models.Pair) (models.Conversation, error)
	GetConversation(ctx context.Context, id string) (models.Conversation, error)
	InsertConversation(ctx context.Context, c *models.Conversation) error
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)

	InsertMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error)

	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error)
	MarkNotificationsRead(ctx context.Context, userID string) (int64, error)
}

type Options struct {
	// SendRetries is how many times a message insert is retried after a
	// transient storage error. Zero disables retrying.
	SendRetries      int
	SendRetryBackoff time.Duration
	Logger           *slog.Logger
}

type Service struct {
	store  Store
	hub    *notify.Hub
	opts   Options
	logger *slog.Logger

	flight singleflight.Group
	// sendLocks serialise insert+publish per conversation so subscribers see
	// messages in insertion order.
	sendLocks [64]sync.Mutex
}

func NewService(store Store, hub *notify.Hub, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SendRetries < 0 {
		opts.SendRetries = 0
	}
	return &Service{
		store:  store,
		hub:    hub,
		opts:   opts,
		logger: logger,
	}
}

func (s *Service) Hub() *notify.Hub {
	return s.hub
}

func (s *Service) sendLock(conversationID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(conversationID))
	return &s.sendLocks[h.Sum32()%uint32(len(s.sendLocks))]
}
