package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/pulsefeed/pulsefeed/internal/notifications"
	"github.com/pulsefeed/pulsefeed/pkg/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AccountService defines user account operations.
type AccountService interface {
	Start() error
	Stop() error
	Register(ctx context.Context, req *models.RegisterRequest) (*models.User, string, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
	Verify2FA(ctx context.Context, userID uuid.UUID, code string) (*models.LoginResponse, error)
	Logout(ctx context.Context, tokenKey string) error
	ValidateToken(ctx context.Context, tokenKey string) (uuid.UUID, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetProfile(ctx context.Context, userID, viewerID uuid.UUID) (*models.Profile, error)
	ListUsers(ctx context.Context, search string, offset, limit int) ([]models.User, int64, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, req *models.UpdateProfileRequest) (*models.User, error)
	Follow(ctx context.Context, followerID, targetID uuid.UUID) error
	Unfollow(ctx context.Context, followerID, targetID uuid.UUID) error
	Followers(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.FollowEntry, int64, error)
	Following(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.FollowEntry, int64, error)
	Enable2FA(ctx context.Context, userID uuid.UUID) (*models.TOTPSetup, error)
	Verify2FASetup(ctx context.Context, userID uuid.UUID, code string) error
	Disable2FA(ctx context.Context, userID uuid.UUID, code string) error
}

// Options configures the account service
type Options struct {
	TokenCacheTTL time.Duration
	BcryptCost    int
	TOTPIssuer    string
}

// Service implements AccountService
type Service struct {
	logger   *zap.Logger
	db       *gorm.DB
	redis    *redis.Client
	notifier notifications.NotificationService
	opts     Options
}

// NewService creates a new AccountService. The Redis client is optional; when
// nil every token lookup hits the database.
func NewService(logger *zap.Logger, db *gorm.DB, rdb *redis.Client, notifier notifications.NotificationService, opts Options) (*Service, error) {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.TokenCacheTTL == 0 {
		opts.TokenCacheTTL = 5 * time.Minute
	}
	if opts.TOTPIssuer == "" {
		opts.TOTPIssuer = "pulsefeed"
	}
	return &Service{
		logger:   logger,
		db:       db,
		redis:    rdb,
		notifier: notifier,
		opts:     opts,
	}, nil
}

// Start starts the accounts service
func (s *Service) Start() error {
	s.logger.Info("Accounts service started")
	return nil
}

// Stop stops the accounts service
func (s *Service) Stop() error {
	s.logger.Info("Accounts service stopped")
	return nil
}

// Register registers a new user and issues an auth token
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, string, error) {
	if req.Password != req.PasswordConfirm {
		return nil, "", fmt.Errorf("invalid request: password fields must match")
	}
	if len(req.Password) < 8 {
		return nil, "", fmt.Errorf("invalid request: password must be at least 8 characters")
	}
	if isAllDigits(req.Password) {
		return nil, "", fmt.Errorf("invalid request: password cannot be entirely numeric")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		return nil, "", fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, "", fmt.Errorf("invalid request: email already exists")
	}

	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", req.Username).Count(&count).Error; err != nil {
		return nil, "", fmt.Errorf("failed to check username: %w", err)
	}
	if count > 0 {
		return nil, "", fmt.Errorf("invalid request: username already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Bio:          req.Bio,
		Role:         "member",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.issueToken(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// Login authenticates a user. When 2FA is enabled the token is withheld until
// Verify2FA succeeds.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", req.Username).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("unauthorized: invalid credentials")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("unauthorized: invalid credentials")
	}

	if user.TOTPEnabled {
		return &models.LoginResponse{
			Requires2FA: true,
			UserID:      user.ID,
		}, nil
	}

	return s.completeLogin(ctx, &user)
}

// Verify2FA completes a login for a 2FA-enabled user
func (s *Service) Verify2FA(ctx context.Context, userID uuid.UUID, code string) (*models.LoginResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if !user.TOTPEnabled {
		return nil, fmt.Errorf("invalid request: 2FA not enabled")
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return nil, fmt.Errorf("unauthorized: invalid 2FA code")
	}

	return s.completeLogin(ctx, &user)
}

func (s *Service) completeLogin(ctx context.Context, user *models.User) (*models.LoginResponse, error) {
	// Reuse an existing token row if one exists, mirroring get-or-create.
	var token models.AuthToken
	err := s.db.WithContext(ctx).Where("user_id = ?", user.ID).First(&token).Error
	key := token.Key
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("failed to find token: %w", err)
		}
		key, err = s.issueToken(ctx, user.ID)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(user).Update("last_login", now).Error; err != nil {
		s.logger.Warn("failed to record last login", zap.Error(err))
	}
	user.LastLogin = now

	return &models.LoginResponse{
		User:  user,
		Token: key,
	}, nil
}

// Logout revokes the presented token
func (s *Service) Logout(ctx context.Context, tokenKey string) error {
	res := s.db.WithContext(ctx).Where("key = ?", tokenKey).Delete(&models.AuthToken{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("unauthorized: token not found")
	}
	if s.redis != nil {
		if err := s.redis.Del(ctx, tokenCacheKey(tokenKey)).Err(); err != nil {
			s.logger.Warn("failed to evict token from cache", zap.Error(err))
		}
	}
	return nil
}

// ValidateToken resolves a token key to a user ID, consulting the Redis cache
// before the database.
func (s *Service) ValidateToken(ctx context.Context, tokenKey string) (uuid.UUID, error) {
	if len(tokenKey) != 40 {
		return uuid.Nil, fmt.Errorf("unauthorized: invalid token")
	}

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, tokenCacheKey(tokenKey)).Result(); err == nil {
			if id, parseErr := uuid.Parse(cached); parseErr == nil {
				return id, nil
			}
		}
	}

	var token models.AuthToken
	if err := s.db.WithContext(ctx).Where("key = ?", tokenKey).First(&token).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, fmt.Errorf("unauthorized: invalid token")
		}
		return uuid.Nil, fmt.Errorf("failed to find token: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, tokenCacheKey(tokenKey), token.UserID.String(), s.opts.TokenCacheTTL).Err(); err != nil {
			s.logger.Warn("failed to cache token", zap.Error(err))
		}
	}

	return token.UserID, nil
}

// GetUser gets a user by ID
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// GetProfile returns a user together with follower counts and whether the
// viewer follows them.
func (s *Service) GetProfile(ctx context.Context, userID, viewerID uuid.UUID) (*models.Profile, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var followers, following int64
	if err := s.db.WithContext(ctx).Model(&models.Follow{}).Where("following_id = ?", userID).Count(&followers).Error; err != nil {
		return nil, fmt.Errorf("failed to count followers: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Follow{}).Where("follower_id = ?", userID).Count(&following).Error; err != nil {
		return nil, fmt.Errorf("failed to count following: %w", err)
	}

	profile := &models.Profile{
		User:           user,
		FollowerCount:  followers,
		FollowingCount: following,
	}

	if viewerID != uuid.Nil && viewerID != userID {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Follow{}).
			Where("follower_id = ? AND following_id = ?", viewerID, userID).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check follow edge: %w", err)
		}
		profile.IsFollowing = count > 0
	}

	return profile, nil
}

// ListUsers lists users, optionally filtered by a username substring
func (s *Service) ListUsers(ctx context.Context, search string, offset, limit int) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	if search != "" {
		query = query.Where("username LIKE ?", "%"+search+"%")
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []models.User
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, count, nil
}

// UpdateProfile updates the caller's own profile fields
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req *models.UpdateProfileRequest) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && *req.Email != user.Email {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", *req.Email).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if count > 0 {
			return nil, fmt.Errorf("invalid request: email already exists")
		}
		user.Email = *req.Email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	if req.ProfilePictureURL != nil {
		user.ProfilePictureURL = *req.ProfilePictureURL
	}
	user.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return user, nil
}

// Follow creates a follow edge toward the target user. Following twice is a
// no-op; following yourself is rejected.
func (s *Service) Follow(ctx context.Context, followerID, targetID uuid.UUID) error {
	if followerID == targetID {
		return fmt.Errorf("invalid request: cannot follow yourself")
	}
	if _, err := s.GetUser(ctx, targetID); err != nil {
		return err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, targetID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check follow edge: %w", err)
	}
	if count > 0 {
		return nil
	}

	follow := &models.Follow{
		ID:          uuid.New(),
		FollowerID:  followerID,
		FollowingID: targetID,
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(follow).Error; err != nil {
		return fmt.Errorf("failed to create follow edge: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, targetID, followerID, models.VerbFollowed, "user", followerID); err != nil {
			s.logger.Warn("failed to create follow notification", zap.Error(err))
		}
	}
	return nil
}

// Unfollow removes the follow edge toward the target user if present
func (s *Service) Unfollow(ctx context.Context, followerID, targetID uuid.UUID) error {
	if followerID == targetID {
		return fmt.Errorf("invalid request: cannot unfollow yourself")
	}
	if _, err := s.GetUser(ctx, targetID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, targetID).
		Delete(&models.Follow{}).Error; err != nil {
		return fmt.Errorf("failed to delete follow edge: %w", err)
	}
	return nil
}

// Followers lists the users following the given user
func (s *Service) Followers(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.FollowEntry, int64, error) {
	sub := s.db.Model(&models.Follow{}).Select("follower_id").Where("following_id = ?", userID)
	return s.listBySubquery(ctx, sub, offset, limit)
}

// Following lists the users the given user follows
func (s *Service) Following(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.FollowEntry, int64, error) {
	sub := s.db.Model(&models.Follow{}).Select("following_id").Where("follower_id = ?", userID)
	return s.listBySubquery(ctx, sub, offset, limit)
}

// listBySubquery pages users matching the subquery and decorates each entry
// with its follower count through a single grouped query.
func (s *Service) listBySubquery(ctx context.Context, sub *gorm.DB, offset, limit int) ([]models.FollowEntry, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{}).Where("id IN (?)", sub)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []models.User
	if err := query.Order("username ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	entries := make([]models.FollowEntry, len(users))
	if len(users) == 0 {
		return entries, count, nil
	}

	ids := make([]uuid.UUID, len(users))
	for i, user := range users {
		ids[i] = user.ID
	}

	var grouped []struct {
		FollowingID uuid.UUID
		Cnt         int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Select("following_id, COUNT(*) AS cnt").
		Where("following_id IN ?", ids).
		Group("following_id").
		Scan(&grouped).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count followers: %w", err)
	}
	counts := make(map[uuid.UUID]int64, len(grouped))
	for _, g := range grouped {
		counts[g.FollowingID] = g.Cnt
	}

	for i, user := range users {
		entries[i] = models.FollowEntry{User: user, FollowerCount: counts[user.ID]}
	}
	return entries, count, nil
}

// Enable2FA generates a TOTP secret for the user. The secret is stored but 2FA
// stays off until Verify2FASetup confirms the user can produce codes.
func (s *Service) Enable2FA(ctx context.Context, userID uuid.UUID) (*models.TOTPSetup, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TOTPEnabled {
		return nil, fmt.Errorf("invalid request: 2FA already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.opts.TOTPIssuer,
		AccountName: user.Email,
		SecretSize:  32,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(user).Update("totp_secret", key.Secret()).Error; err != nil {
		return nil, fmt.Errorf("failed to save TOTP secret: %w", err)
	}

	return &models.TOTPSetup{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
	}, nil
}

// Verify2FASetup activates 2FA after the user proves possession of the secret
func (s *Service) Verify2FASetup(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPEnabled {
		return fmt.Errorf("invalid request: 2FA already enabled")
	}
	if user.TOTPSecret == "" {
		return fmt.Errorf("invalid request: 2FA setup not started")
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return fmt.Errorf("unauthorized: invalid 2FA code")
	}

	if err := s.db.WithContext(ctx).Model(user).Update("totp_enabled", true).Error; err != nil {
		return fmt.Errorf("failed to enable 2FA: %w", err)
	}
	return nil
}

// Disable2FA turns 2FA off; the current code is required
func (s *Service) Disable2FA(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled {
		return fmt.Errorf("invalid request: 2FA not enabled")
	}
	if !totp.Validate(code, user.TOTPSecret) {
		return fmt.Errorf("unauthorized: invalid 2FA code")
	}

	updates := map[string]interface{}{"totp_enabled": false, "totp_secret": ""}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to disable 2FA: %w", err)
	}
	return nil
}

// issueToken creates and stores a fresh 40-hex-char opaque token
func (s *Service) issueToken(ctx context.Context, userID uuid.UUID) (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	key := hex.EncodeToString(raw)

	token := &models.AuthToken{
		Key:       key,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	return key, nil
}

func tokenCacheKey(key string) string {
	return "authtoken:" + key
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
