package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rishta/identity"
	"rishta/lifecycle"
	"rishta/metrics"
	"rishta/notify"
	"rishta/protocol"
)

type Server struct {
	svc      *lifecycle.Service
	ident    *identity.Service
	config   *ServerConfig
	logger   *slog.Logger
	sessions map[string]*Session
	mu       sync.RWMutex
	listener net.Listener
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Session is one TCP connection. User is zero until auth or reg succeeds.
type Session struct {
	ID       string
	User     identity.Session
	Conn     net.Conn
	LastPing time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex // guards User, LastPing, sub
	sub *notify.Subscription

	wmu sync.Mutex // one packet on the wire at a time
}

func (sess *Session) identity() identity.Session {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.User
}

func New(svc *lifecycle.Service, ident *identity.Service, config *ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:      svc,
		ident:    ident,
		config:   config,
		logger:   logger.With("component", "tcp"),
		sessions: make(map[string]*Session),
	}
}

// Start accepts connections until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.Port))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("line protocol server started", "port", s.config.Port)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(parent context.Context, conn net.Conn) {
	ctx, cancel := context.WithCancel(parent)
	session := &Session{
		ID:       uuid.NewString(),
		Conn:     conn,
		LastPing: time.Now(),
		ctx:      ctx,
		cancel:   cancel,
	}

	remoteAddr := conn.RemoteAddr().String()
	log := s.logger.With("session_id", session.ID, "remote", remoteAddr)
	log.Info("client connected")

	s.addSession(session)
	metrics.TCPSessions.Inc()
	defer func() {
		s.closeSession(session)
		metrics.TCPSessions.Dec()
		if user := session.identity(); user.Authenticated() {
			log.Info("client disconnected", "user_id", user.UserID)
		} else {
			log.Info("client disconnected")
		}
	}()

	reader := bufio.NewReader(conn)
	for {
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.sendBye(session, "timeout", "")
			} else if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Warn("read failed", "error", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// credentials stay out of the log
		if !strings.HasPrefix(line, "auth|") && !strings.HasPrefix(line, "reg|") {
			log.Debug("packet received", "line", line)
		}

		pkt, err := protocol.ParsePacket(line)
		if err != nil {
			log.Debug("parse failed", "error", err, "line", line)
			s.sendError(session, "", "Invalid packet format")
			continue
		}

		if !s.handlePacket(session, pkt) {
			return
		}
	}
}

// handlePacket dispatches one packet and reports whether the connection
// stays open.
func (s *Server) handlePacket(session *Session, pkt *protocol.Packet) bool {
	session.mu.Lock()
	session.LastPing = time.Now()
	session.mu.Unlock()

	switch pkt.Type {
	case "ping":
		s.handlePing(session)
	case "reg":
		s.handleRegister(session, pkt)
	case "auth":
		s.handleAuth(session, pkt)
	case "like":
		s.handleLike(session, pkt)
	case "acc":
		s.handleAccept(session, pkt)
	case "reqs":
		s.handleRequests(session, pkt)
	case "conn":
		s.handleConnected(session, pkt)
	case "conv":
		s.handleConversation(session, pkt)
	case "msg":
		s.handleMessage(session, pkt)
	case "hist":
		s.handleHistory(session, pkt)
	case "read":
		s.handleRead(session, pkt)
	case "sub":
		s.handleSubscribe(session, pkt)
	case "unsub":
		s.handleUnsubscribe(session)
	case "list":
		s.handleList(session)
	case "bye":
		s.handleBye(session)
		return false
	case "help":
		s.handleHelp(session)
	default:
		s.sendError(session, "", "Unknown packet type")
	}
	return true
}

func (s *Server) write(session *Session, packet string) {
	session.wmu.Lock()
	defer session.wmu.Unlock()
	if s.config.WriteTimeout > 0 {
		session.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	if _, err := session.Conn.Write([]byte(packet)); err != nil {
		s.logger.Debug("write failed", "session_id", session.ID, "error", err)
	}
}

// sendPacket writes pktType|field1|field2...; every field is escaped.
func (s *Server) sendPacket(session *Session, pktType string, fields ...string) {
	s.write(session, protocol.Format(pktType, fields...))
}

// sendPacketRaw writes pktType|rawContent where rawContent is already
// encoded, for list bodies whose separators must stay unescaped.
func (s *Server) sendPacketRaw(session *Session, pktType, rawContent string) {
	s.write(session, protocol.FormatRaw(pktType, rawContent))
}

func (s *Server) sendOK(session *Session, operation string, fields ...string) {
	if operation == "" {
		s.sendPacket(session, "ok")
		return
	}
	s.sendPacket(session, "ok", append([]string{operation}, fields...)...)
}

func (s *Server) sendError(session *Session, operation, description string) {
	if operation != "" {
		s.sendPacket(session, "fail", operation, description)
	} else {
		s.sendPacket(session, "fail", description)
	}
}

func (s *Server) sendBye(session *Session, reason, details string) {
	switch {
	case details != "":
		s.sendPacket(session, "bye", reason, details)
	case reason != "":
		s.sendPacket(session, "bye", reason)
	default:
		s.sendPacket(session, "bye")
	}
}

func (s *Server) addSession(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

// closeSession releases everything the session holds. Safe to call twice.
func (s *Server) closeSession(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session.ID)
	s.mu.Unlock()

	session.mu.Lock()
	sub := session.sub
	session.sub = nil
	session.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
	session.cancel()
	session.Conn.Close()
}

// Shutdown sends bye to every connected client and closes the connections.
// completionTime, when set, tells clients when the server is expected back.
func (s *Server) Shutdown(reason string, completionTime time.Time) {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var details string
	if !completionTime.IsZero() {
		details = completionTime.UTC().Format(time.RFC3339)
	}

	for _, sess := range sessions {
		s.sendBye(sess, reason, details)
		s.closeSession(sess)
	}
}

// GetStats returns server statistics as a formatted string
func (s *Server) GetStats() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var users []string
	for _, sess := range s.sessions {
		user := sess.identity()
		if user.Authenticated() && !seen[user.Login] {
			seen[user.Login] = true
			users = append(users, user.Login)
		}
	}
	sort.Strings(users)

	return "connections=" + strconv.Itoa(len(s.sessions)) +
		",users=" + strings.Join(users, ";") +
		",subscriptions=" + strconv.Itoa(s.svc.Hub().Count())
}
