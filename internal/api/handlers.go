package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"quizzai/internal/service/quiz"
)

// uploadOverhead leaves room for multipart boundaries and headers on top of
// the document size limit.
const uploadOverhead = 1 << 20

// Handler wires HTTP routes to the quiz service.
type Handler struct {
	quiz       *quiz.Service
	appName    string
	maxPDFSize int64
}

// NewHandler constructs a Handler instance.
func NewHandler(service *quiz.Service, appName string, maxPDFSize int64) *Handler {
	return &Handler{
		quiz:       service,
		appName:    appName,
		maxPDFSize: maxPDFSize,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.root)
	router.GET("/health", h.health)
	router.GET("/stats", h.stats)

	router.POST("/session", h.createSession)
	router.GET("/session/:chat_id", h.getSession)
	router.DELETE("/session/:chat_id", h.deleteSession)
	router.GET("/session/:chat_id/agent", h.getAgent)

	router.POST("/upload/:chat_id", h.upload)
	router.POST("/generate/:chat_id", h.generate)
	router.POST("/shorts_check/:chat_id", h.shortsCheck)
	router.POST("/chat/:chat_id", h.chat)
}

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": h.appName + " API is running"})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.quiz.Stats())
}

func (h *Handler) createSession(c *gin.Context) {
	sess, err := h.quiz.NewSession(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"chat_id":         sess.ChatID,
		"crew_session_id": sess.AgentSessionID,
		"created_at":      sess.CreatedAt,
	})
}

func (h *Handler) getSession(c *gin.Context) {
	sess, err := h.quiz.Session(c.Request.Context(), c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.quiz.DeleteSession(c.Request.Context(), c.Param("chat_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}

func (h *Handler) getAgent(c *gin.Context) {
	info, err := h.quiz.AgentInfo(c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) upload(c *gin.Context) {
	chatID := c.Param("chat_id")
	if _, err := h.quiz.Session(c.Request.Context(), chatID); err != nil {
		writeError(c, err)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxPDFSize+uploadOverhead)
	file, err := c.FormFile("file")
	if err != nil {
		if isMaxBytesError(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	defer f.Close()

	if err := h.quiz.IngestDocument(c.Request.Context(), chatID, file.Filename, file.Size, f); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "PDF processed and memory updated",
		"filename": file.Filename,
	})
}

func (h *Handler) generate(c *gin.Context) {
	count, err := strconv.Atoi(c.Query("count"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be an integer"})
		return
	}
	out, err := h.quiz.Generate(c.Request.Context(), c.Param("chat_id"), c.Query("typeof"), count)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) shortsCheck(c *gin.Context) {
	out, err := h.quiz.CheckShortAnswer(c.Request.Context(), c.Param("chat_id"), c.Query("question"), c.Query("answer"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	out, err := h.quiz.Chat(c.Request.Context(), c.Param("chat_id"), req.Prompt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
