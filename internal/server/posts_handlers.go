package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulsefeed/pulsefeed/internal/posts"
	"github.com/pulsefeed/pulsefeed/pkg/models"
	"github.com/pulsefeed/pulsefeed/pkg/pagination"
)

// handleCreatePost creates a post authored by the current user
func (s *Server) handleCreatePost(c *gin.Context) {
	var req models.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	post, err := s.postsSvc.CreatePost(c.Request.Context(), s.currentUserID(c), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// handleListPosts lists posts with optional search and author filters
func (s *Server) handleListPosts(c *gin.Context) {
	p := pagination.FromContext(c)
	filter := posts.PostFilter{
		Search: c.Query("search"),
		Author: c.Query("author"),
		Tag:    c.Query("tag"),
		Offset: p.Offset(),
		Limit:  p.PageSize,
	}
	if raw := c.Query("author_id"); raw != "" {
		authorID, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(c, fmt.Errorf("invalid request: bad author_id: %w", err))
			return
		}
		filter.AuthorID = authorID
	}

	results, count, err := s.postsSvc.ListPosts(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewEnvelope(c, p, count, results))
}

// handleFeed lists posts by users the current user follows
func (s *Server) handleFeed(c *gin.Context) {
	p := pagination.FromContext(c)
	results, count, err := s.postsSvc.Feed(c.Request.Context(), s.currentUserID(c), p.Offset(), p.PageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewEnvelope(c, p, count, results))
}

// handleMyPosts lists the current user's own posts
func (s *Server) handleMyPosts(c *gin.Context) {
	p := pagination.FromContext(c)
	results, count, err := s.postsSvc.ListPosts(c.Request.Context(), posts.PostFilter{
		AuthorID: s.currentUserID(c),
		Offset:   p.Offset(),
		Limit:    p.PageSize,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewEnvelope(c, p, count, results))
}

// handleMyComments lists the current user's own comments
func (s *Server) handleMyComments(c *gin.Context) {
	p := pagination.FromContext(c)
	comments, count, err := s.postsSvc.ListComments(c.Request.Context(), posts.CommentFilter{
		AuthorID: s.currentUserID(c),
		Offset:   p.Offset(),
		Limit:    p.PageSize,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewEnvelope(c, p, count, comments))
}

// handleGetPost fetches a single post
func (s *Server) handleGetPost(c *gin.Context) {
	postID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	post, err := s.postsSvc.GetPost(c.Request.Context(), postID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// handleUpdatePost updates a post; only the author may do so
func (s *Server) handleUpdatePost(c *gin.Context) {
	postID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	var req models.UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	post, err := s.postsSvc.UpdatePost(c.Request.Context(), s.currentUserID(c), postID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// handleDeletePost deletes a post; only the author may do so
func (s *Server) handleDeletePost(c *gin.Context) {
	postID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.postsSvc.DeletePost(c.Request.Context(), s.currentUserID(c), postID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleLikePost likes a post on behalf of the current user
func (s *Server) handleLikePost(c *gin.Context) {
	postID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.postsSvc.Like(c.Request.Context(), s.currentUserID(c), postID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "liked"})
}

// handleUnlikePost removes the current user's like from a post
func (s *Server) handleUnlikePost(c *gin.Context) {
	postID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.postsSvc.Unlike(c.Request.Context(), s.currentUserID(c), postID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "unliked"})
}

// handleListLikers lists users who liked a post
func (s *Server) handleListLikers(c *gin.Context) {
	postID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	p := pagination.FromContext(c)
	users, count, err := s.postsSvc.ListLikers(c.Request.Context(), postID, p.Offset(), p.PageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewEnvelope(c, p, count, users))
}

// handleListPostComments lists a post's comments oldest first
func (s *Server) handleListPostComments(c *gin.Context) {
	postID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	p := pagination.FromContext(c)
	comments, count, err := s.postsSvc.ListComments(c.Request.Context(), posts.CommentFilter{
		PostID: postID,
		Offset: p.Offset(),
		Limit:  p.PageSize,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewEnvelope(c, p, count, comments))
}

// handleCreateComment creates a comment on a post
func (s *Server) handleCreateComment(c *gin.Context) {
	var req models.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	comment, err := s.postsSvc.CreateComment(c.Request.Context(), s.currentUserID(c), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// handleGetComment fetches a single comment
func (s *Server) handleGetComment(c *gin.Context) {
	commentID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	comment, err := s.postsSvc.GetComment(c.Request.Context(), commentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

// handleUpdateComment updates a comment; only the author may do so
func (s *Server) handleUpdateComment(c *gin.Context) {
	commentID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	var req models.UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	comment, err := s.postsSvc.UpdateComment(c.Request.Context(), s.currentUserID(c), commentID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

// handleDeleteComment deletes a comment; only the author may do so
func (s *Server) handleDeleteComment(c *gin.Context) {
	commentID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.postsSvc.DeleteComment(c.Request.Context(), s.currentUserID(c), commentID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
