package server

import (
	"errors"
	"strconv"
	"time"

	"rishta/apperr"
	"rishta/identity"
	"rishta/lifecycle"
	"rishta/models"
	"rishta/protocol"
)

const timeLayout = time.RFC3339Nano

// describe turns a service error into the text sent after fail|op|.
// Storage details stay in the log.
func (s *Server) describe(session *Session, op string, err error) string {
	var ae *apperr.AppError
	if errors.As(err, &ae) && ae.Code != apperr.CodePersistence && ae.Code != apperr.CodeUnknown {
		return ae.Message
	}
	s.logger.Error("command failed", "session_id", session.ID, "op", op, "error", err)
	return "Internal error"
}

func (s *Server) fail(session *Session, op string, err error) {
	s.sendError(session, op, s.describe(session, op, err))
}

// requireUser sends fail|op|Not authenticated and returns false when the
// session has not logged in yet.
func (s *Server) requireUser(session *Session, op string) (identity.Session, bool) {
	user := session.identity()
	if !user.Authenticated() {
		s.sendError(session, op, "Not authenticated")
		return identity.Session{}, false
	}
	return user, true
}

func (s *Server) handlePing(session *Session) {
	s.sendPacket(session, "pong")
}

// reg|login|password
func (s *Server) handleRegister(session *Session, pkt *protocol.Packet) {
	login, password := pkt.Arg(0), pkt.Arg(1)
	if login == "" || password == "" {
		s.sendError(session, "reg", "Invalid data")
		return
	}

	u, err := s.ident.Register(session.ctx, identity.Credentials{Login: login, Password: password})
	if err != nil {
		s.fail(session, "reg", err)
		return
	}
	s.sendOK(session, "reg", u.ID)
}

// auth|login|password
func (s *Server) handleAuth(session *Session, pkt *protocol.Packet) {
	login, password := pkt.Arg(0), pkt.Arg(1)
	if login == "" || password == "" {
		s.sendError(session, "auth", "Invalid credentials")
		return
	}

	if user := session.identity(); user.Authenticated() {
		s.sendOK(session, "auth", user.UserID)
		return
	}

	user, err := s.ident.Authenticate(session.ctx, identity.Credentials{Login: login, Password: password})
	if err != nil {
		s.fail(session, "auth", err)
		return
	}

	session.mu.Lock()
	session.User = user
	session.mu.Unlock()
	s.logger.Info("client authenticated", "session_id", session.ID, "user_id", user.UserID, "login", user.Login)
	s.sendOK(session, "auth", user.UserID)
}

// like|user-id
func (s *Server) handleLike(session *Session, pkt *protocol.Packet) {
	user, ok := s.requireUser(session, "like")
	if !ok {
		return
	}
	res, err := s.svc.RequestConnection(session.ctx, user, pkt.Arg(0))
	if err != nil {
		s.fail(session, "like", err)
		return
	}
	s.sendOK(session, "like", string(res.Outcome), res.Request.ID)
}

// acc|request-id
func (s *Server) handleAccept(session *Session, pkt *protocol.Packet) {
	user, ok := s.requireUser(session, "acc")
	if !ok {
		return
	}
	if _, err := s.svc.AcceptConnection(session.ctx, user, pkt.Arg(0)); err != nil {
		s.fail(session, "acc", err)
		return
	}
	s.sendOK(session, "acc")
}

// reqs[|incoming|outgoing]
func (s *Server) handleRequests(session *Session, pkt *protocol.Packet) {
	user, ok := s.requireUser(session, "reqs")
	if !ok {
		return
	}
	dir, err := lifecycle.ParseDirection(pkt.Arg(0))
	if err != nil {
		s.fail(session, "reqs", err)
		return
	}
	requests, err := s.svc.ListConnectionRequests(session.ctx, user, dir)
	if err != nil {
		s.fail(session, "reqs", err)
		return
	}

	items := make([]string, 0, len(requests))
	for _, r := range requests {
		items = append(items, protocol.Record(r.ID, r.SenderID, r.ReceiverID, string(r.Status)))
	}
	s.sendPacketRaw(session, "reqs", protocol.List(items))
}

// conn|user-id -> ok|conn|true or ok|conn|false
func (s *Server) handleConnected(session *Session, pkt *protocol.Packet) {
	user, ok := s.requireUser(session, "conn")
	if !ok {
		return
	}
	connected, err := s.svc.IsConnected(session.ctx, user.UserID, pkt.Arg(0))
	if err != nil {
		s.fail(session, "conn", err)
		return
	}
	s.sendOK(session, "conn", strconv.FormatBool(connected))
}

// conv|peer-id
func (s *Server) handleConversation(session *Session, pkt *protocol.Packet) {
	user, ok := s.requireUser(session, "conv")
	if !ok {
		return
	}
	c, err := s.svc.OpenConversation(session.ctx, user, pkt.Arg(0))
	if err != nil {
		s.fail(session, "conv", err)
		return
	}
	s.sendPacket(session, "conv", c.ID, c.Peer(user.UserID))
}

// msg|conversation-id|text
func (s *Server) handleMessage(session *Session, pkt *protocol.Packet) {
	user, ok := s.requireUser(session, "msg")
	if !ok {
		return
	}
	if pkt.Arg(0) == "" {
		s.sendError(session, "msg", "Conversation required")
		return
	}
	m, err := s.svc.SendMessage(session.ctx, user, pkt.Arg(0), pkt.Arg(1))
	if err != nil {
		s.fail(session, "msg", err)
		return
	}
	s.sendOK(session, "msg", m.ID)
}

// hist|conversation-id[|after-seq|limit]
func (s *Server) handleHistory(session *Session, pkt *protocol.Packet) {
	user, ok := s.requireUser(session, "hist")
	if !ok {
		return
	}
	conversationID := pkt.Arg(0)
	if conversationID == "" {
		s.sendError(session, "hist", "Conversation required")
		return
	}

	var page lifecycle.Page
	if v := pkt.Arg(1); v != "" {
		after, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.sendError(session, "hist", "Invalid offset")
			return
		}
		page.AfterSeq = after
	}
	if v := pkt.Arg(2); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			s.sendError(session, "hist", "Invalid limit")
			return
		}
		page.Limit = limit
	}

	messages, err := s.svc.ListMessages(session.ctx, user, conversationID, page)
	if err != nil {
		s.fail(session, "hist", err)
		return
	}

	items := make([]string, 0, len(messages))
	for _, m := range messages {
		items = append(items, protocol.Record(
			"msg",
			strconv.FormatInt(m.Seq, 10),
			m.SenderID,
			m.Content,
			m.CreatedAt.Format(timeLayout),
			strconv.FormatBool(m.Read),
		))
	}
	// hist|conv|msg|seq|sender|text|ts|read,msg|...
	s.sendPacketRaw(session, "hist", protocol.Escape(conversationID)+"|"+protocol.List(items))
}

// read|conversation-id
func (s *Server) handleRead(session *Session, pkt *protocol.Packet) {
	user, ok := s.requireUser(session, "read")
	if !ok {
		return
	}
	n, err := s.svc.MarkRead(session.ctx, user, pkt.Arg(0))
	if err != nil {
		s.fail(session, "read", err)
		return
	}
	s.sendOK(session, "read", strconv.FormatInt(n, 10))
}

// sub|conversation-id replaces the session's subscription. New messages are
// pushed as msg|conv|sender|text|ts|id.
func (s *Server) handleSubscribe(session *Session, pkt *protocol.Packet) {
	user, ok := s.requireUser(session, "sub")
	if !ok {
		return
	}
	conversationID := pkt.Arg(0)

	s.dropSubscription(session)
	sub, err := s.svc.SubscribeToNewMessages(session.ctx, user, conversationID, func(m models.Message) {
		s.sendPacket(session, "msg", m.ConversationID, m.SenderID, m.Content, m.CreatedAt.Format(timeLayout), m.ID)
	})
	if err != nil {
		s.fail(session, "sub", err)
		return
	}

	session.mu.Lock()
	session.sub = sub
	session.mu.Unlock()
	s.sendOK(session, "sub", conversationID)
}

// unsub -> ok|unsub|conv, conv empty when nothing was subscribed.
func (s *Server) handleUnsubscribe(session *Session) {
	s.sendOK(session, "unsub", s.dropSubscription(session))
}

// dropSubscription cancels the session's subscription and returns the
// conversation it was for.
func (s *Server) dropSubscription(session *Session) string {
	session.mu.Lock()
	sub := session.sub
	session.sub = nil
	session.mu.Unlock()
	if sub == nil {
		return ""
	}
	sub.Cancel()
	return sub.ConversationID()
}

// list -> list|conv|peer|unread,...
func (s *Server) handleList(session *Session) {
	user, ok := s.requireUser(session, "list")
	if !ok {
		return
	}
	summaries, err := s.svc.ListConversations(session.ctx, user)
	if err != nil {
		s.fail(session, "list", err)
		return
	}

	items := make([]string, 0, len(summaries))
	for _, c := range summaries {
		items = append(items, protocol.Record(c.ID, c.PeerID, strconv.Itoa(c.Unread)))
	}
	s.sendPacketRaw(session, "list", protocol.List(items))
}

func (s *Server) handleBye(session *Session) {
	s.sendPacket(session, "bye")
}

func (s *Server) handleHelp(session *Session) {
	commands := []string{
		"ping",
		"reg",
		"auth",
		"like",
		"acc",
		"reqs",
		"conn",
		"conv",
		"msg",
		"hist",
		"read",
		"sub",
		"unsub",
		"list",
		"bye",
		"help",
	}
	s.sendPacketRaw(session, "help", protocol.List(commands))
}
