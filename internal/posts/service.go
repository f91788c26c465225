package posts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pulsefeed/pulsefeed/internal/notifications"
	"github.com/pulsefeed/pulsefeed/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PostService defines post, comment, like and feed operations.
type PostService interface {
	Start() error
	Stop() error
	CreatePost(ctx context.Context, authorID uuid.UUID, req *models.CreatePostRequest) (*models.Post, error)
	GetPost(ctx context.Context, postID uuid.UUID) (*models.Post, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]models.Post, int64, error)
	UpdatePost(ctx context.Context, userID, postID uuid.UUID, req *models.UpdatePostRequest) (*models.Post, error)
	DeletePost(ctx context.Context, userID, postID uuid.UUID) error
	Feed(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.Post, int64, error)
	CreateComment(ctx context.Context, authorID uuid.UUID, req *models.CreateCommentRequest) (*models.Comment, error)
	GetComment(ctx context.Context, commentID uuid.UUID) (*models.Comment, error)
	ListComments(ctx context.Context, filter CommentFilter) ([]models.Comment, int64, error)
	UpdateComment(ctx context.Context, userID, commentID uuid.UUID, req *models.UpdateCommentRequest) (*models.Comment, error)
	DeleteComment(ctx context.Context, userID, commentID uuid.UUID) error
	Like(ctx context.Context, userID, postID uuid.UUID) error
	Unlike(ctx context.Context, userID, postID uuid.UUID) error
	ListLikers(ctx context.Context, postID uuid.UUID, offset, limit int) ([]models.User, int64, error)
}

// PostFilter narrows a post listing
type PostFilter struct {
	Search   string    // matches title or content
	Author   string    // author username
	AuthorID uuid.UUID // exact author, used for "my posts"
	Tag      string    // tag name
	Offset   int
	Limit    int
}

// CommentFilter narrows a comment listing
type CommentFilter struct {
	PostID   uuid.UUID
	AuthorID uuid.UUID
	Offset   int
	Limit    int
}

// Service implements PostService
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	notifier  notifications.NotificationService
	sanitizer *bluemonday.Policy
}

// NewService creates a new PostService
func NewService(logger *zap.Logger, db *gorm.DB, notifier notifications.NotificationService) (*Service, error) {
	return &Service{
		logger:    logger,
		db:        db,
		notifier:  notifier,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// Start starts the posts service
func (s *Service) Start() error {
	s.logger.Info("Posts service started")
	return nil
}

// Stop stops the posts service
func (s *Service) Stop() error {
	s.logger.Info("Posts service stopped")
	return nil
}

// CreatePost creates a post authored by the caller
func (s *Service) CreatePost(ctx context.Context, authorID uuid.UUID, req *models.CreatePostRequest) (*models.Post, error) {
	post := &models.Post{
		ID:        uuid.New(),
		AuthorID:  authorID,
		Title:     s.sanitizer.Sanitize(req.Title),
		Content:   s.sanitizer.Sanitize(req.Content),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if post.Title == "" || post.Content == "" {
		return nil, fmt.Errorf("invalid request: title and content are required")
	}

	tags, err := s.resolveTags(ctx, req.Tags)
	if err != nil {
		return nil, err
	}
	post.Tags = tags

	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	return s.GetPost(ctx, post.ID)
}

// resolveTags maps tag names to Tag rows, creating missing ones. Names are
// lowercased and deduplicated.
func (s *Service) resolveTags(ctx context.Context, names []string) ([]models.Tag, error) {
	tags := make([]models.Tag, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		var tag models.Tag
		err := s.db.WithContext(ctx).Where("name = ?", name).First(&tag).Error
		if err == gorm.ErrRecordNotFound {
			tag = models.Tag{ID: uuid.New(), Name: name}
			if err := s.db.WithContext(ctx).Create(&tag).Error; err != nil {
				return nil, fmt.Errorf("failed to create tag: %w", err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to resolve tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// GetPost fetches a post with its author and counts
func (s *Service) GetPost(ctx context.Context, postID uuid.UUID) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).Preload("Author").Preload("Tags").Where("id = ?", postID).First(&post).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("post not found")
		}
		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	if err := s.attachCounts(ctx, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPosts lists posts newest first with optional search and author filters
func (s *Service) ListPosts(ctx context.Context, filter PostFilter) ([]models.Post, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Post{})

	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("title LIKE ? OR content LIKE ?", pattern, pattern)
	}
	if filter.Author != "" {
		query = query.Where("author_id IN (?)",
			s.db.Model(&models.User{}).Select("id").Where("username = ?", filter.Author))
	}
	if filter.AuthorID != uuid.Nil {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if filter.Tag != "" {
		query = query.Where("id IN (?)",
			s.db.Table("post_tags").Select("post_id").
				Joins("JOIN tags ON tags.id = post_tags.tag_id").
				Where("tags.name = ?", strings.ToLower(strings.TrimSpace(filter.Tag))))
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count posts: %w", err)
	}

	var posts []models.Post
	if err := query.Preload("Author").Preload("Tags").
		Order("created_at DESC").
		Offset(filter.Offset).Limit(filter.Limit).
		Find(&posts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list posts: %w", err)
	}

	for i := range posts {
		if err := s.attachCounts(ctx, &posts[i]); err != nil {
			return nil, 0, err
		}
	}
	return posts, count, nil
}

// UpdatePost updates a post; only the author may do so
func (s *Service) UpdatePost(ctx context.Context, userID, postID uuid.UUID, req *models.UpdatePostRequest) (*models.Post, error) {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != userID {
		return nil, fmt.Errorf("forbidden: only the author can modify this post")
	}

	if req.Title != nil {
		post.Title = s.sanitizer.Sanitize(*req.Title)
	}
	if req.Content != nil {
		post.Content = s.sanitizer.Sanitize(*req.Content)
	}
	if post.Title == "" || post.Content == "" {
		return nil, fmt.Errorf("invalid request: title and content are required")
	}
	post.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", post.ID).
		Updates(map[string]interface{}{
			"title":      post.Title,
			"content":    post.Content,
			"updated_at": post.UpdatedAt,
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to save post: %w", err)
	}

	if req.Tags != nil {
		tags, err := s.resolveTags(ctx, req.Tags)
		if err != nil {
			return nil, err
		}
		if err := s.db.WithContext(ctx).Model(post).Association("Tags").Replace(tags); err != nil {
			return nil, fmt.Errorf("failed to update tags: %w", err)
		}
		post.Tags = tags
	}
	return post, nil
}

// DeletePost deletes a post; only the author may do so
func (s *Service) DeletePost(ctx context.Context, userID, postID uuid.UUID) error {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != userID {
		return fmt.Errorf("forbidden: only the author can modify this post")
	}

	// Dependent rows are removed in the same transaction; not every database
	// the service runs against enforces FK cascade.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("failed to delete comments: %w", err)
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Like{}).Error; err != nil {
			return fmt.Errorf("failed to delete likes: %w", err)
		}
		if err := tx.Exec("DELETE FROM post_tags WHERE post_id = ?", postID).Error; err != nil {
			return fmt.Errorf("failed to delete tag entries: %w", err)
		}
		if err := tx.Delete(&models.Post{}, "id = ?", postID).Error; err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}
		return nil
	})
}

// Feed lists posts authored by users the caller follows, newest first
func (s *Service) Feed(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.Post, int64, error) {
	following := s.db.Model(&models.Follow{}).Select("following_id").Where("follower_id = ?", userID)
	query := s.db.WithContext(ctx).Model(&models.Post{}).Where("author_id IN (?)", following)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count feed posts: %w", err)
	}

	var posts []models.Post
	if err := query.Preload("Author").Preload("Tags").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list feed posts: %w", err)
	}

	for i := range posts {
		if err := s.attachCounts(ctx, &posts[i]); err != nil {
			return nil, 0, err
		}
	}
	return posts, count, nil
}

// CreateComment creates a comment and notifies the post author
func (s *Service) CreateComment(ctx context.Context, authorID uuid.UUID, req *models.CreateCommentRequest) (*models.Comment, error) {
	post, err := s.GetPost(ctx, req.PostID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{
		ID:        uuid.New(),
		PostID:    post.ID,
		AuthorID:  authorID,
		Content:   s.sanitizer.Sanitize(req.Content),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if comment.Content == "" {
		return nil, fmt.Errorf("invalid request: content is required")
	}

	if err := s.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, post.AuthorID, authorID, models.VerbCommented, "post", post.ID); err != nil {
			s.logger.Warn("failed to create comment notification", zap.Error(err))
		}
	}
	return s.GetComment(ctx, comment.ID)
}

// GetComment fetches a comment with its author
func (s *Service) GetComment(ctx context.Context, commentID uuid.UUID) (*models.Comment, error) {
	var comment models.Comment
	if err := s.db.WithContext(ctx).Preload("Author").Where("id = ?", commentID).First(&comment).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("comment not found")
		}
		return nil, fmt.Errorf("failed to find comment: %w", err)
	}
	return &comment, nil
}

// ListComments lists comments in chronological order
func (s *Service) ListComments(ctx context.Context, filter CommentFilter) ([]models.Comment, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Comment{})
	if filter.PostID != uuid.Nil {
		query = query.Where("post_id = ?", filter.PostID)
	}
	if filter.AuthorID != uuid.Nil {
		query = query.Where("author_id = ?", filter.AuthorID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count comments: %w", err)
	}

	var comments []models.Comment
	if err := query.Preload("Author").
		Order("created_at ASC").
		Offset(filter.Offset).Limit(filter.Limit).
		Find(&comments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, count, nil
}

// UpdateComment updates a comment; only the author may do so
func (s *Service) UpdateComment(ctx context.Context, userID, commentID uuid.UUID, req *models.UpdateCommentRequest) (*models.Comment, error) {
	comment, err := s.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if comment.AuthorID != userID {
		return nil, fmt.Errorf("forbidden: only the author can modify this comment")
	}

	comment.Content = s.sanitizer.Sanitize(req.Content)
	if comment.Content == "" {
		return nil, fmt.Errorf("invalid request: content is required")
	}
	comment.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Model(&models.Comment{}).Where("id = ?", comment.ID).
		Updates(map[string]interface{}{
			"content":    comment.Content,
			"updated_at": comment.UpdatedAt,
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to save comment: %w", err)
	}
	return comment, nil
}

// DeleteComment deletes a comment; only the author may do so
func (s *Service) DeleteComment(ctx context.Context, userID, commentID uuid.UUID) error {
	comment, err := s.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != userID {
		return fmt.Errorf("forbidden: only the author can modify this comment")
	}

	if err := s.db.WithContext(ctx).Delete(&models.Comment{}, "id = ?", commentID).Error; err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

// Like records a like on a post and notifies the author. Liking twice is a
// conflict.
func (s *Service) Like(ctx context.Context, userID, postID uuid.UUID) error {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Like{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check like: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("already liked this post")
	}

	like := &models.Like{
		ID:        uuid.New(),
		PostID:    postID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	// The unique (post_id, user_id) index backstops concurrent double-likes.
	if err := s.db.WithContext(ctx).Create(like).Error; err != nil {
		return fmt.Errorf("already liked this post")
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, post.AuthorID, userID, models.VerbLiked, "post", postID); err != nil {
			s.logger.Warn("failed to create like notification", zap.Error(err))
		}
	}
	return nil
}

// Unlike removes the caller's like from a post
func (s *Service) Unlike(ctx context.Context, userID, postID uuid.UUID) error {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.Like{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete like: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("invalid request: post is not liked")
	}
	return nil
}

// ListLikers lists the users who liked a post
func (s *Service) ListLikers(ctx context.Context, postID uuid.UUID, offset, limit int) ([]models.User, int64, error) {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return nil, 0, err
	}

	sub := s.db.Model(&models.Like{}).Select("user_id").Where("post_id = ?", postID)
	query := s.db.WithContext(ctx).Model(&models.User{}).Where("id IN (?)", sub)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count likes: %w", err)
	}

	var users []models.User
	if err := query.Order("username ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list likers: %w", err)
	}
	return users, count, nil
}

func (s *Service) attachCounts(ctx context.Context, post *models.Post) error {
	if err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("post_id = ?", post.ID).Count(&post.CommentCount).Error; err != nil {
		return fmt.Errorf("failed to count comments: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Like{}).
		Where("post_id = ?", post.ID).Count(&post.LikeCount).Error; err != nil {
		return fmt.Errorf("failed to count likes: %w", err)
	}
	return nil
}
