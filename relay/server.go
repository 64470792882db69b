package relay

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tablebot/booking"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Deliverer sends a booking to staff and, when asked, a copy to the guest.
// userID is 0 when the caller did not name the guest.
type Deliverer interface {
	Submit(ctx context.Context, userID int64, r booking.Record) error
	Confirm(ctx context.Context, chatID int64, r booking.Record) error
}

// Options tune the relay endpoints.
type Options struct {
	// DeliveryTimeout bounds one /booking call.
	DeliveryTimeout time.Duration
	// MaxRequestsPerMin is the per-IP budget; zero disables the limit.
	MaxRequestsPerMin int
}

// Server serves the web form bridge and the booking delivery endpoint.
type Server struct {
	pending   PendingStore
	deliverer Deliverer
	opts      Options
	log       *zap.Logger
}

func NewServer(pending PendingStore, deliverer Deliverer, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	return &Server{pending: pending, deliverer: deliverer, opts: opts, log: log}
}

// NewEngine returns a gin engine with recovery, request logging and CORS.
// Rate limiting is applied per route group by Register.
func NewEngine(log *zap.Logger, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(log), RequestLogger(log), CORS(origins))
	return r
}

// Register mounts the relay routes behind the rate limiter.
func (s *Server) Register(r gin.IRouter) {
	g := r.Group("/", RateLimit(s.opts.MaxRequestsPerMin, s.log))
	g.GET("/", s.health)
	g.GET("/health", s.health)
	g.POST("/webapp_booking", s.saveSelection)
	g.GET("/get_booking", s.popSelection)
	g.POST("/booking", s.deliver)
	g.POST("/booking/", s.deliver)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "tablebot"})
}

type selectionRequest struct {
	UserID           *int64  `json:"user_id" binding:"required"`
	SelectedDateTime *string `json:"selected_datetime" binding:"required"`
}

func (s *Server) saveSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: "user_id (integer) and selected_datetime (string) are required"})
		return
	}
	if err := s.pending.Put(c.Request.Context(), *req.UserID, *req.SelectedDateTime); err != nil {
		s.log.Error("failed to store pending booking", zap.Int64("user_id", *req.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Failed to save booking"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Booking saved", "user_id": *req.UserID})
}

func (s *Server) popSelection(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: "user_id must be an integer"})
		return
	}
	value, found, err := s.pending.Pop(c.Request.Context(), userID)
	if err != nil {
		s.log.Error("failed to read pending booking", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Failed to read booking"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: "Booking not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected_datetime": value})
}

type deliveryRequest struct {
	UserID        *int64 `json:"user_id"`
	Establishment string `json:"establishment" binding:"required"`
	DateTime      string `json:"datetime" binding:"required"`
	Guests        int    `json:"guests" binding:"required,gt=0"`
	Name          string `json:"name" binding:"required"`
	Phone         string `json:"phone" binding:"required"`
	ChatID        *int64 `json:"chat_id"`
}

func (s *Server) deliver(c *gin.Context) {
	var req deliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: "establishment, datetime, guests, name and phone are required"})
		return
	}
	rec := booking.Record{
		Establishment: strings.TrimSpace(req.Establishment),
		DateTime:      strings.TrimSpace(req.DateTime),
		Guests:        req.Guests,
		Name:          strings.TrimSpace(req.Name),
		Phone:         strings.TrimSpace(req.Phone),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.DeliveryTimeout)
	defer cancel()

	var userID, chatID int64
	if req.UserID != nil {
		userID = *req.UserID
	}
	if req.ChatID != nil {
		chatID = *req.ChatID
	}
	log := s.log.With(
		zap.Int64("user_id", userID),
		zap.Int64("chat_id", chatID),
		zap.String("establishment", rec.Establishment),
	)

	if err := s.deliverer.Submit(ctx, userID, rec); err != nil {
		log.Error("failed to deliver booking to staff", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Failed to send booking"})
		return
	}
	if req.ChatID != nil {
		if err := s.deliverer.Confirm(ctx, chatID, rec); err != nil {
			log.Error("failed to confirm booking to guest", zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: "Failed to send booking"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Booking sent"})
}
