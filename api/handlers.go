package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rishta/identity"
	"rishta/lifecycle"
	"rishta/models"
)

func (h *Handler) register(c *gin.Context) {
	var req identity.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.ident.Register(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": u.ID, "login": u.Login})
}

func (h *Handler) login(c *gin.Context) {
	var req identity.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tok, err := h.ident.Login(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tok)
}

func (h *Handler) getMyProfile(c *gin.Context) {
	sess := session(c)
	p, err := h.profiles.Get(c.Request.Context(), sess, sess.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) putMyProfile(c *gin.Context) {
	var p models.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	stored, err := h.profiles.Upsert(c.Request.Context(), session(c), p)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (h *Handler) getProfile(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), session(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type browseQuery struct {
	Gender       string  `form:"gender"`
	Religion     string  `form:"religion"`
	Caste        string  `form:"caste"`
	MotherTongue string  `form:"mother_tongue"`
	City         string  `form:"city"`
	Country      string  `form:"country"`
	Profession   string  `form:"profession"`
	MinAge       int     `form:"min_age"`
	MaxAge       int     `form:"max_age"`
	MinHeight    float64 `form:"min_height"`
	MaxHeight    float64 `form:"max_height"`
	Limit        int     `form:"limit"`
	Offset       int     `form:"offset"`
}

func (h *Handler) browseProfiles(c *gin.Context) {
	var q browseQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	found, err := h.profiles.Browse(c.Request.Context(), session(c), models.ProfileFilter{
		Gender:       q.Gender,
		Religion:     q.Religion,
		Caste:        q.Caste,
		MotherTongue: q.MotherTongue,
		City:         q.City,
		Country:      q.Country,
		Profession:   q.Profession,
		MinAge:       q.MinAge,
		MaxAge:       q.MaxAge,
		MinHeight:    q.MinHeight,
		MaxHeight:    q.MaxHeight,
		Limit:        q.Limit,
		Offset:       q.Offset,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": found})
}

type connectionReq struct {
	ReceiverID string `json:"receiver_id" binding:"required"`
}

func (h *Handler) requestConnection(c *gin.Context) {
	var req connectionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.RequestConnection(c.Request.Context(), session(c), req.ReceiverID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == lifecycle.RequestCreated {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (h *Handler) acceptConnection(c *gin.Context) {
	r, err := h.svc.AcceptConnection(c.Request.Context(), session(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) listConnections(c *gin.Context) {
	dir, err := lifecycle.ParseDirection(c.Query("direction"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	requests, err := h.svc.ListConnectionRequests(c.Request.Context(), session(c), dir)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (h *Handler) connectionStatus(c *gin.Context) {
	connected, err := h.svc.IsConnected(c.Request.Context(), session(c).UserID, c.Param("user_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "connected": connected})
}

type conversationReq struct {
	PeerID string `json:"peer_id" binding:"required"`
}

func (h *Handler) openConversation(c *gin.Context) {
	var req conversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	conv, err := h.svc.OpenConversation(c.Request.Context(), session(c), req.PeerID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) listConversations(c *gin.Context) {
	summaries, err := h.svc.ListConversations(c.Request.Context(), session(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

type pageQuery struct {
	AfterSeq int64 `form:"after_seq" binding:"gte=0"`
	Limit    int   `form:"limit" binding:"gte=0,lte=1000"`
}

func (h *Handler) listMessages(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	messages, err := h.svc.ListMessages(c.Request.Context(), session(c), c.Param("id"), lifecycle.Page{
		AfterSeq: q.AfterSeq,
		Limit:    q.Limit,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type sendReq struct {
	Content string `json:"content"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.svc.SendMessage(c.Request.Context(), session(c), c.Param("id"), req.Content)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) markRead(c *gin.Context) {
	n, err := h.svc.MarkRead(c.Request.Context(), session(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) listNotifications(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	list, err := h.svc.ListNotifications(c.Request.Context(), session(c), unreadOnly)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

func (h *Handler) markNotificationsRead(c *gin.Context) {
	n, err := h.svc.MarkNotificationsRead(c.Request.Context(), session(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
