package library

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pulsefeed/pulsefeed/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LibraryService defines book shelf operations.
type LibraryService interface {
	Start() error
	Stop() error
	CreateBook(ctx context.Context, userID uuid.UUID, req *models.CreateBookRequest) (*models.Book, error)
	GetBook(ctx context.Context, bookID uuid.UUID) (*models.Book, error)
	ListBooks(ctx context.Context, search string, offset, limit int) ([]models.Book, int64, error)
	UpdateBook(ctx context.Context, bookID uuid.UUID, req *models.UpdateBookRequest) (*models.Book, error)
	DeleteBook(ctx context.Context, bookID uuid.UUID) error
	CreateReview(ctx context.Context, reviewerID, bookID uuid.UUID, req *models.CreateReviewRequest) (*models.BookReview, error)
	ListReviews(ctx context.Context, bookID uuid.UUID, offset, limit int) ([]models.BookReview, int64, float64, error)
	UpdateReview(ctx context.Context, userID, reviewID uuid.UUID, req *models.UpdateReviewRequest) (*models.BookReview, error)
	DeleteReview(ctx context.Context, userID, reviewID uuid.UUID) error
	CreateReadingList(ctx context.Context, ownerID uuid.UUID, req *models.CreateReadingListRequest) (*models.ReadingList, error)
	GetReadingList(ctx context.Context, viewerID, listID uuid.UUID) (*models.ReadingList, error)
	ListReadingLists(ctx context.Context, viewerID uuid.UUID, offset, limit int) ([]models.ReadingList, int64, error)
	UpdateReadingList(ctx context.Context, ownerID, listID uuid.UUID, req *models.UpdateReadingListRequest) (*models.ReadingList, error)
	DeleteReadingList(ctx context.Context, ownerID, listID uuid.UUID) error
	AddBookToList(ctx context.Context, ownerID, listID, bookID uuid.UUID) error
	RemoveBookFromList(ctx context.Context, ownerID, listID, bookID uuid.UUID) error
}

// Service implements LibraryService
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	sanitizer *bluemonday.Policy
}

// NewService creates a new LibraryService
func NewService(logger *zap.Logger, db *gorm.DB) (*Service, error) {
	return &Service{
		logger:    logger,
		db:        db,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// Start starts the library service
func (s *Service) Start() error {
	s.logger.Info("Library service started")
	return nil
}

// Stop stops the library service
func (s *Service) Stop() error {
	s.logger.Info("Library service stopped")
	return nil
}

// CreateBook adds a book to the shelf. Role enforcement happens at the route
// layer; the service records who added it.
func (s *Service) CreateBook(ctx context.Context, userID uuid.UUID, req *models.CreateBookRequest) (*models.Book, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Book{}).Where("isbn = ?", req.ISBN).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check ISBN: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("invalid request: ISBN already exists")
	}

	pubDate, err := time.Parse("2006-01-02", req.PublicationDate)
	if err != nil {
		return nil, fmt.Errorf("invalid request: bad publication date: %w", err)
	}

	book := &models.Book{
		ID:              uuid.New(),
		Title:           req.Title,
		Author:          req.Author,
		ISBN:            req.ISBN,
		PublicationDate: pubDate,
		AddedByID:       userID,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(book).Error; err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}
	return book, nil
}

// GetBook fetches a book by ID
func (s *Service) GetBook(ctx context.Context, bookID uuid.UUID) (*models.Book, error) {
	var book models.Book
	if err := s.db.WithContext(ctx).Preload("AddedBy").Where("id = ?", bookID).First(&book).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("book not found")
		}
		return nil, fmt.Errorf("failed to find book: %w", err)
	}
	return &book, nil
}

// ListBooks lists books newest first, optionally filtered by title or author
func (s *Service) ListBooks(ctx context.Context, search string, offset, limit int) ([]models.Book, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Book{})
	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where("title LIKE ? OR author LIKE ?", pattern, pattern)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count books: %w", err)
	}

	var books []models.Book
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&books).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list books: %w", err)
	}
	return books, count, nil
}

// UpdateBook updates book metadata. ISBN is immutable.
func (s *Service) UpdateBook(ctx context.Context, bookID uuid.UUID, req *models.UpdateBookRequest) (*models.Book, error) {
	book, err := s.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		book.Title = *req.Title
	}
	if req.Author != nil {
		book.Author = *req.Author
	}
	if req.PublicationDate != nil {
		pubDate, err := time.Parse("2006-01-02", *req.PublicationDate)
		if err != nil {
			return nil, fmt.Errorf("invalid request: bad publication date: %w", err)
		}
		book.PublicationDate = pubDate
	}
	book.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Save(book).Error; err != nil {
		return nil, fmt.Errorf("failed to save book: %w", err)
	}
	return book, nil
}

// DeleteBook removes a book along with its reviews and list memberships
func (s *Service) DeleteBook(ctx context.Context, bookID uuid.UUID) error {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", bookID).Delete(&models.BookReview{}).Error; err != nil {
			return fmt.Errorf("failed to delete reviews: %w", err)
		}
		if err := tx.Exec("DELETE FROM reading_list_books WHERE book_id = ?", bookID).Error; err != nil {
			return fmt.Errorf("failed to delete list entries: %w", err)
		}
		if err := tx.Delete(&models.Book{}, "id = ?", bookID).Error; err != nil {
			return fmt.Errorf("failed to delete book: %w", err)
		}
		return nil
	})
}

// CreateReview records a review; a reviewer may review each book once
func (s *Service) CreateReview(ctx context.Context, reviewerID, bookID uuid.UUID, req *models.CreateReviewRequest) (*models.BookReview, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, fmt.Errorf("invalid request: rating must be between 1 and 5")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.BookReview{}).
		Where("book_id = ? AND reviewer_id = ?", bookID, reviewerID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check review: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("already reviewed this book")
	}

	review := &models.BookReview{
		ID:         uuid.New(),
		BookID:     bookID,
		ReviewerID: reviewerID,
		Rating:     req.Rating,
		ReviewText: s.sanitizer.Sanitize(req.ReviewText),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	// The unique (book_id, reviewer_id) index backstops concurrent submissions.
	if err := s.db.WithContext(ctx).Create(review).Error; err != nil {
		return nil, fmt.Errorf("already reviewed this book")
	}
	return review, nil
}

// ListReviews lists a book's reviews newest first with the average rating
func (s *Service) ListReviews(ctx context.Context, bookID uuid.UUID, offset, limit int) ([]models.BookReview, int64, float64, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, 0, 0, err
	}

	query := s.db.WithContext(ctx).Model(&models.BookReview{}).Where("book_id = ?", bookID)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	var average float64
	if count > 0 {
		if err := s.db.WithContext(ctx).Model(&models.BookReview{}).
			Where("book_id = ?", bookID).
			Select("AVG(rating)").Scan(&average).Error; err != nil {
			return nil, 0, 0, fmt.Errorf("failed to average ratings: %w", err)
		}
	}

	var reviews []models.BookReview
	if err := query.Preload("Reviewer").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&reviews).Error; err != nil {
		return nil, 0, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, count, average, nil
}

// UpdateReview updates a review; only the reviewer may do so
func (s *Service) UpdateReview(ctx context.Context, userID, reviewID uuid.UUID, req *models.UpdateReviewRequest) (*models.BookReview, error) {
	review, err := s.getReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.ReviewerID != userID {
		return nil, fmt.Errorf("forbidden: only the reviewer can modify this review")
	}

	if req.Rating != nil {
		if *req.Rating < 1 || *req.Rating > 5 {
			return nil, fmt.Errorf("invalid request: rating must be between 1 and 5")
		}
		review.Rating = *req.Rating
	}
	if req.ReviewText != nil {
		review.ReviewText = s.sanitizer.Sanitize(*req.ReviewText)
	}
	review.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Save(review).Error; err != nil {
		return nil, fmt.Errorf("failed to save review: %w", err)
	}
	return review, nil
}

// DeleteReview deletes a review; only the reviewer may do so
func (s *Service) DeleteReview(ctx context.Context, userID, reviewID uuid.UUID) error {
	review, err := s.getReview(ctx, reviewID)
	if err != nil {
		return err
	}
	if review.ReviewerID != userID {
		return fmt.Errorf("forbidden: only the reviewer can modify this review")
	}

	if err := s.db.WithContext(ctx).Delete(&models.BookReview{}, "id = ?", reviewID).Error; err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return nil
}

func (s *Service) getReview(ctx context.Context, reviewID uuid.UUID) (*models.BookReview, error) {
	var review models.BookReview
	if err := s.db.WithContext(ctx).Where("id = ?", reviewID).First(&review).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("review not found")
		}
		return nil, fmt.Errorf("failed to find review: %w", err)
	}
	return &review, nil
}

// CreateReadingList creates a reading list owned by the caller
func (s *Service) CreateReadingList(ctx context.Context, ownerID uuid.UUID, req *models.CreateReadingListRequest) (*models.ReadingList, error) {
	list := &models.ReadingList{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: s.sanitizer.Sanitize(req.Description),
		OwnerID:     ownerID,
		IsPublic:    req.IsPublic,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(list).Error; err != nil {
		return nil, fmt.Errorf("failed to create reading list: %w", err)
	}
	return list, nil
}

// GetReadingList fetches a list with its books. A private list is only
// visible to its owner; everyone else gets not-found rather than forbidden.
func (s *Service) GetReadingList(ctx context.Context, viewerID, listID uuid.UUID) (*models.ReadingList, error) {
	var list models.ReadingList
	if err := s.db.WithContext(ctx).Preload("Books").Preload("Owner").
		Where("id = ?", listID).First(&list).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("reading list not found")
		}
		return nil, fmt.Errorf("failed to find reading list: %w", err)
	}

	if !list.IsPublic && list.OwnerID != viewerID {
		return nil, fmt.Errorf("reading list not found")
	}
	return &list, nil
}

// ListReadingLists lists the viewer's own lists plus all public lists
func (s *Service) ListReadingLists(ctx context.Context, viewerID uuid.UUID, offset, limit int) ([]models.ReadingList, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.ReadingList{}).
		Where("owner_id = ? OR is_public = ?", viewerID, true)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reading lists: %w", err)
	}

	var lists []models.ReadingList
	if err := query.Preload("Owner").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&lists).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list reading lists: %w", err)
	}
	return lists, count, nil
}

// UpdateReadingList updates a list; only the owner may do so
func (s *Service) UpdateReadingList(ctx context.Context, ownerID, listID uuid.UUID, req *models.UpdateReadingListRequest) (*models.ReadingList, error) {
	list, err := s.getOwnedList(ctx, ownerID, listID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		list.Name = *req.Name
	}
	if req.Description != nil {
		list.Description = s.sanitizer.Sanitize(*req.Description)
	}
	if req.IsPublic != nil {
		list.IsPublic = *req.IsPublic
	}
	list.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Omit("Books").Save(list).Error; err != nil {
		return nil, fmt.Errorf("failed to save reading list: %w", err)
	}
	return list, nil
}

// DeleteReadingList deletes a list; only the owner may do so
func (s *Service) DeleteReadingList(ctx context.Context, ownerID, listID uuid.UUID) error {
	if _, err := s.getOwnedList(ctx, ownerID, listID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM reading_list_books WHERE reading_list_id = ?", listID).Error; err != nil {
			return fmt.Errorf("failed to delete list entries: %w", err)
		}
		if err := tx.Delete(&models.ReadingList{}, "id = ?", listID).Error; err != nil {
			return fmt.Errorf("failed to delete reading list: %w", err)
		}
		return nil
	})
}

// AddBookToList adds a book to the owner's list; adding twice is a no-op
func (s *Service) AddBookToList(ctx context.Context, ownerID, listID, bookID uuid.UUID) error {
	list, err := s.getOwnedList(ctx, ownerID, listID)
	if err != nil {
		return err
	}
	book, err := s.GetBook(ctx, bookID)
	if err != nil {
		return err
	}

	var count int64
	if err := s.db.WithContext(ctx).Table("reading_list_books").
		Where("reading_list_id = ? AND book_id = ?", listID, bookID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check list entry: %w", err)
	}
	if count > 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(list).Association("Books").Append(book); err != nil {
		return fmt.Errorf("failed to add book to list: %w", err)
	}
	return nil
}

// RemoveBookFromList removes a book from the owner's list
func (s *Service) RemoveBookFromList(ctx context.Context, ownerID, listID, bookID uuid.UUID) error {
	list, err := s.getOwnedList(ctx, ownerID, listID)
	if err != nil {
		return err
	}
	book, err := s.GetBook(ctx, bookID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(list).Association("Books").Delete(book); err != nil {
		return fmt.Errorf("failed to remove book from list: %w", err)
	}
	return nil
}

func (s *Service) getOwnedList(ctx context.Context, ownerID, listID uuid.UUID) (*models.ReadingList, error) {
	var list models.ReadingList
	if err := s.db.WithContext(ctx).Where("id = ?", listID).First(&list).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("reading list not found")
		}
		return nil, fmt.Errorf("failed to find reading list: %w", err)
	}
	if list.OwnerID != ownerID {
		if list.IsPublic {
			return nil, fmt.Errorf("forbidden: only the owner can modify this reading list")
		}
		return nil, fmt.Errorf("reading list not found")
	}
	return &list, nil
}
