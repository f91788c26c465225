package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsefeed/pulsefeed/pkg/models"
	"github.com/pulsefeed/pulsefeed/pkg/pagination"
)

// handleListBooks lists books, optionally filtered by title or author search
func (s *Server) handleListBooks(c *gin.Context) {
	p := pagination.FromContext(c)
	books, count, err := s.librarySvc.ListBooks(c.Request.Context(), c.Query("search"), p.Offset(), p.PageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewEnvelope(c, p, count, books))
}

// handleGetBook fetches a single book
func (s *Server) handleGetBook(c *gin.Context) {
	bookID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	book, err := s.librarySvc.GetBook(c.Request.Context(), bookID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// handleCreateBook adds a book to the shelf
func (s *Server) handleCreateBook(c *gin.Context) {
	var req models.CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	book, err := s.librarySvc.CreateBook(c.Request.Context(), s.currentUserID(c), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

// handleUpdateBook updates book metadata
func (s *Server) handleUpdateBook(c *gin.Context) {
	bookID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	var req models.UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	book, err := s.librarySvc.UpdateBook(c.Request.Context(), bookID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// handleDeleteBook removes a book from the shelf
func (s *Server) handleDeleteBook(c *gin.Context) {
	bookID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.librarySvc.DeleteBook(c.Request.Context(), bookID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleListReviews lists a book's reviews with the average rating
func (s *Server) handleListReviews(c *gin.Context) {
	bookID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	p := pagination.FromContext(c)
	reviews, count, average, err := s.librarySvc.ListReviews(c.Request.Context(), bookID, p.Offset(), p.PageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}

	env := pagination.NewEnvelope(c, p, count, reviews)
	c.JSON(http.StatusOK, gin.H{
		"count":          env.Count,
		"next":           env.Next,
		"previous":       env.Previous,
		"results":        env.Results,
		"average_rating": average,
	})
}

// handleCreateReview records the current user's review of a book
func (s *Server) handleCreateReview(c *gin.Context) {
	bookID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	var req models.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	review, err := s.librarySvc.CreateReview(c.Request.Context(), s.currentUserID(c), bookID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// handleUpdateReview updates a review; only the reviewer may do so
func (s *Server) handleUpdateReview(c *gin.Context) {
	reviewID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	var req models.UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	review, err := s.librarySvc.UpdateReview(c.Request.Context(), s.currentUserID(c), reviewID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// handleDeleteReview deletes a review; only the reviewer may do so
func (s *Server) handleDeleteReview(c *gin.Context) {
	reviewID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.librarySvc.DeleteReview(c.Request.Context(), s.currentUserID(c), reviewID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleCreateReadingList creates a reading list owned by the current user
func (s *Server) handleCreateReadingList(c *gin.Context) {
	var req models.CreateReadingListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	list, err := s.librarySvc.CreateReadingList(c.Request.Context(), s.currentUserID(c), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, list)
}

// handleListReadingLists lists the current user's lists plus public ones
func (s *Server) handleListReadingLists(c *gin.Context) {
	p := pagination.FromContext(c)
	lists, count, err := s.librarySvc.ListReadingLists(c.Request.Context(), s.currentUserID(c), p.Offset(), p.PageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewEnvelope(c, p, count, lists))
}

// handleGetReadingList fetches a reading list with its books
func (s *Server) handleGetReadingList(c *gin.Context) {
	listID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	list, err := s.librarySvc.GetReadingList(c.Request.Context(), s.currentUserID(c), listID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// handleUpdateReadingList updates a list; only the owner may do so
func (s *Server) handleUpdateReadingList(c *gin.Context) {
	listID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	var req models.UpdateReadingListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	list, err := s.librarySvc.UpdateReadingList(c.Request.Context(), s.currentUserID(c), listID, &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// handleDeleteReadingList deletes a list; only the owner may do so
func (s *Server) handleDeleteReadingList(c *gin.Context) {
	listID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.librarySvc.DeleteReadingList(c.Request.Context(), s.currentUserID(c), listID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleAddBookToList adds a book to the current user's list
func (s *Server) handleAddBookToList(c *gin.Context) {
	listID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	bookID, err := pathID(c, "bookID")
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.librarySvc.AddBookToList(c.Request.Context(), s.currentUserID(c), listID, bookID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "book added"})
}

// handleRemoveBookFromList removes a book from the current user's list
func (s *Server) handleRemoveBookFromList(c *gin.Context) {
	listID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}
	bookID, err := pathID(c, "bookID")
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.librarySvc.RemoveBookFromList(c.Request.Context(), s.currentUserID(c), listID, bookID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "book removed"})
}
