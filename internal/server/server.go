package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed/internal/accounts"
	"github.com/pulsefeed/pulsefeed/internal/config"
	"github.com/pulsefeed/pulsefeed/internal/library"
	"github.com/pulsefeed/pulsefeed/internal/notifications"
	"github.com/pulsefeed/pulsefeed/internal/posts"
	"github.com/pulsefeed/pulsefeed/pkg/metrics"
)

// Server represents the HTTP server
type Server struct {
	logger          *zap.Logger
	cfg             *config.Config
	accountsSvc     accounts.AccountService
	postsSvc        posts.PostService
	notificationSvc notifications.NotificationService
	librarySvc      library.LibraryService
	notificationHub *notifications.Hub
	redis           *redis.Client
}

// NewServer creates a new HTTP server
func NewServer(
	logger *zap.Logger,
	cfg *config.Config,
	accountsSvc accounts.AccountService,
	postsSvc posts.PostService,
	notificationSvc notifications.NotificationService,
	librarySvc library.LibraryService,
	notificationHub *notifications.Hub,
	rdb *redis.Client,
) *Server {
	return &Server{
		logger:          logger,
		cfg:             cfg,
		accountsSvc:     accountsSvc,
		postsSvc:        postsSvc,
		notificationSvc: notificationSvc,
		librarySvc:      librarySvc,
		notificationHub: notificationHub,
		redis:           rdb,
	}
}

// Router creates a new HTTP router
func (s *Server) Router() *gin.Engine {
	// Create router
	router := gin.New()

	// Add middleware
	router.Use(ginzap.Ginzap(s.logger, "2006-01-02T15:04:05Z07:00", true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(otelgin.Middleware("pulsefeed"))
	router.Use(s.corsMiddleware())
	router.Use(secureHeadersMiddleware())

	if s.cfg != nil && s.cfg.Security.EnableRateLimits && s.redis != nil {
		router.Use(s.rateLimitMiddleware())
	}
	router.Use(metricsMiddleware())

	// Add health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Add Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Add WebSocket route for live notifications
	router.GET("/ws/notifications", s.handleWebSocketNotifications)

	// Add API routes
	api := router.Group("/api")
	{
		// Add v1 routes
		v1 := api.Group("/v1")
		{
			// Add auth routes
			auth := v1.Group("/auth")
			{
				auth.POST("/register", s.handleRegister)
				auth.POST("/login", s.handleLogin)
				auth.POST("/login/verify", s.handleLoginVerify2FA)
				auth.POST("/logout", s.authMiddleware(), s.handleLogout)
				auth.POST("/2fa/enable", s.authMiddleware(), s.handle2FAEnable)
				auth.POST("/2fa/verify", s.authMiddleware(), s.handle2FAVerifySetup)
				auth.POST("/2fa/disable", s.authMiddleware(), s.handle2FADisable)
			}

			// Add user routes
			users := v1.Group("/users", s.authMiddleware())
			{
				users.GET("", s.handleListUsers)
				users.GET("/me", s.handleGetMe)
				users.PUT("/me", s.handleUpdateMe)
				users.GET("/:id", s.handleGetProfile)
				users.POST("/:id/follow", s.handleFollow)
				users.DELETE("/:id/follow", s.handleUnfollow)
				users.GET("/:id/followers", s.handleFollowers)
				users.GET("/:id/following", s.handleFollowing)
			}

			// Add post routes. Reads are public; writes and the personal
			// views require a valid token.
			postRoutes := v1.Group("/posts", s.optionalAuthMiddleware())
			{
				postRoutes.GET("", s.handleListPosts)
				postRoutes.GET("/:id", s.handleGetPost)
				postRoutes.GET("/:id/likes", s.handleListLikers)
				postRoutes.GET("/:id/comments", s.handleListPostComments)
				postRoutes.GET("/feed", s.loginRequired(), s.handleFeed)
				postRoutes.GET("/my", s.loginRequired(), s.handleMyPosts)
				postRoutes.POST("", s.loginRequired(), s.handleCreatePost)
				postRoutes.PUT("/:id", s.loginRequired(), s.handleUpdatePost)
				postRoutes.DELETE("/:id", s.loginRequired(), s.handleDeletePost)
				postRoutes.POST("/:id/like", s.loginRequired(), s.handleLikePost)
				postRoutes.DELETE("/:id/like", s.loginRequired(), s.handleUnlikePost)
			}

			// Add comment routes
			comments := v1.Group("/comments", s.optionalAuthMiddleware())
			{
				comments.GET("/:id", s.handleGetComment)
				comments.GET("/my", s.loginRequired(), s.handleMyComments)
				comments.POST("", s.loginRequired(), s.handleCreateComment)
				comments.PUT("/:id", s.loginRequired(), s.handleUpdateComment)
				comments.DELETE("/:id", s.loginRequired(), s.handleDeleteComment)
			}

			// Add notification routes
			notifs := v1.Group("/notifications", s.authMiddleware())
			{
				notifs.GET("", s.handleListNotifications)
				notifs.GET("/unread", s.handleListUnread)
				notifs.GET("/unread-count", s.handleUnreadCount)
				notifs.POST("/mark-all-read", s.handleMarkAllRead)
				notifs.POST("/:id/read", s.handleMarkRead)
				notifs.DELETE("/:id", s.handleDeleteNotification)
			}

			// Add book routes. The shelf is publicly readable; mutations
			// require the librarian or admin role.
			books := v1.Group("/books", s.optionalAuthMiddleware())
			{
				books.GET("", s.handleListBooks)
				books.GET("/:id", s.handleGetBook)
				books.GET("/:id/reviews", s.handleListReviews)
				books.POST("", s.loginRequired(), s.roleMiddleware("librarian", "admin"), s.handleCreateBook)
				books.PUT("/:id", s.loginRequired(), s.roleMiddleware("librarian", "admin"), s.handleUpdateBook)
				books.DELETE("/:id", s.loginRequired(), s.roleMiddleware("librarian", "admin"), s.handleDeleteBook)
				books.POST("/:id/reviews", s.loginRequired(), s.handleCreateReview)
			}

			// Add review routes
			reviews := v1.Group("/reviews", s.authMiddleware())
			{
				reviews.PUT("/:id", s.handleUpdateReview)
				reviews.DELETE("/:id", s.handleDeleteReview)
			}

			// Add reading list routes
			lists := v1.Group("/reading-lists", s.authMiddleware())
			{
				lists.POST("", s.handleCreateReadingList)
				lists.GET("", s.handleListReadingLists)
				lists.GET("/:id", s.handleGetReadingList)
				lists.PUT("/:id", s.handleUpdateReadingList)
				lists.DELETE("/:id", s.handleDeleteReadingList)
				lists.POST("/:id/books/:bookID", s.handleAddBookToList)
				lists.DELETE("/:id/books/:bookID", s.handleRemoveBookFromList)
			}
		}
	}

	return router
}

// errorMapper maps error messages to HTTP status codes
type errorMapper struct{}

func (m *errorMapper) mapError(err error) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unauthorized"):
		return http.StatusUnauthorized
	case strings.Contains(msg, "forbidden"):
		return http.StatusForbidden
	case strings.Contains(msg, "not found"):
		return http.StatusNotFound
	case strings.Contains(msg, "invalid request"), strings.Contains(msg, "invalid credentials"):
		return http.StatusBadRequest
	case strings.Contains(msg, "already"):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response with mapped status
func (s *Server) writeError(c *gin.Context, err error) {
	status := (&errorMapper{}).mapError(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

// tokenFromRequest extracts the bearer credential. Both "Token <key>" and
// "Bearer <key>" schemes are accepted.
func tokenFromRequest(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return c.Query("token")
	}
	if strings.HasPrefix(header, "Token ") {
		return header[6:]
	}
	if strings.HasPrefix(header, "Bearer ") {
		return header[7:]
	}
	return header
}

// authMiddleware creates a middleware for authentication
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			s.writeError(c, fmt.Errorf("unauthorized: missing authorization header"))
			c.Abort()
			return
		}

		userID, err := s.accountsSvc.ValidateToken(c.Request.Context(), token)
		if err != nil {
			s.writeError(c, fmt.Errorf("unauthorized: %w", err))
			c.Abort()
			return
		}

		// Set user ID in context
		c.Set("userID", userID)
		c.Next()
	}
}

// optionalAuthMiddleware resolves the user when a token is presented but lets
// anonymous requests through. A presented token that fails validation is still
// rejected.
func (s *Server) optionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			c.Next()
			return
		}

		userID, err := s.accountsSvc.ValidateToken(c.Request.Context(), token)
		if err != nil {
			s.writeError(c, fmt.Errorf("unauthorized: %w", err))
			c.Abort()
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}

// loginRequired rejects requests that optionalAuthMiddleware left anonymous
func (s *Server) loginRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get("userID"); !ok {
			s.writeError(c, fmt.Errorf("unauthorized: authentication required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// roleMiddleware creates a middleware that requires one of the given roles
func (s *Server) roleMiddleware(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := s.currentUserID(c)
		user, err := s.accountsSvc.GetUser(c.Request.Context(), userID)
		if err != nil {
			s.writeError(c, fmt.Errorf("unauthorized: %w", err))
			c.Abort()
			return
		}

		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		s.writeError(c, fmt.Errorf("forbidden: requires one of roles %s", strings.Join(roles, ", ")))
		c.Abort()
	}
}

// currentUserID returns the authenticated user ID set by authMiddleware
func (s *Server) currentUserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get("userID")
	userID, _ := id.(uuid.UUID)
	return userID
}

// pathID parses a UUID path parameter
func pathID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid request: bad %s: %w", name, err)
	}
	return id, nil
}

// corsMiddleware builds the CORS policy from configuration
func (s *Server) corsMiddleware() gin.HandlerFunc {
	if s.cfg == nil || len(s.cfg.Security.AllowedOrigins) == 0 {
		return cors.Default()
	}
	corsCfg := cors.DefaultConfig()
	if len(s.cfg.Security.AllowedOrigins) == 1 && s.cfg.Security.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.Security.AllowedOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	return cors.New(corsCfg)
}

// secureHeadersMiddleware sets common security response headers
func secureHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Next()
	}
}

// metricsMiddleware records request counts and latency per route
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		metrics.HTTPLatency.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// rateLimitMiddleware enforces a fixed-window per-IP request limit in Redis.
// Redis outages fail open.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	max := s.cfg.Security.RateLimitMax
	window := s.cfg.Security.RateLimitWindow
	return func(c *gin.Context) {
		key := "ratelimit:" + c.ClientIP()
		ctx := c.Request.Context()

		count, err := s.redis.Incr(ctx, key).Result()
		if err != nil {
			s.logger.Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			s.redis.Expire(ctx, key, window)
		}
		if count > int64(max) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// handleWebSocketNotifications upgrades the connection and streams the user's
// notifications. The token may arrive via header or query string.
func (s *Server) handleWebSocketNotifications(c *gin.Context) {
	token := tokenFromRequest(c)
	if token == "" {
		s.writeError(c, fmt.Errorf("unauthorized: missing token"))
		return
	}
	userID, err := s.accountsSvc.ValidateToken(c.Request.Context(), token)
	if err != nil {
		s.writeError(c, fmt.Errorf("unauthorized: %w", err))
		return
	}
	if s.notificationHub == nil {
		s.writeError(c, fmt.Errorf("live notifications not found"))
		return
	}
	if err := s.notificationHub.HandleConnection(c.Writer, c.Request, userID); err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
	}
}
