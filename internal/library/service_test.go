package library_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/pulsefeed/pulsefeed/internal/library"
	"github.com/pulsefeed/pulsefeed/pkg/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Book{},
		&models.BookReview{},
		&models.ReadingList{},
	))
	return db
}

func newService(t *testing.T, db *gorm.DB) library.LibraryService {
	svc, err := library.NewService(zap.NewNop(), db)
	assert.NoError(t, err)
	return svc
}

func createUser(t *testing.T, db *gorm.DB, username, role string) *models.User {
	user := &models.User{
		ID:       uuid.New(),
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
	}
	assert.NoError(t, db.Create(user).Error)
	return user
}

func createBook(t *testing.T, svc library.LibraryService, userID uuid.UUID, title string) *models.Book {
	book, err := svc.CreateBook(context.Background(), userID, &models.CreateBookRequest{
		Title:           title,
		Author:          "Test Author",
		ISBN:            fmt.Sprintf("%013d", uuid.New().ID()),
		PublicationDate: "2020-05-01",
	})
	assert.NoError(t, err)
	return book
}

func TestBookCRUD(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	librarian := createUser(t, db, "librarian", "librarian")

	book, err := svc.CreateBook(ctx, librarian.ID, &models.CreateBookRequest{
		Title:           "The Go Programming Language",
		Author:          "Donovan & Kernighan",
		ISBN:            "9780134190440",
		PublicationDate: "2015-11-16",
	})
	assert.NoError(t, err)
	assert.Equal(t, librarian.ID, book.AddedByID)

	// Duplicate ISBN is rejected
	_, err = svc.CreateBook(ctx, librarian.ID, &models.CreateBookRequest{
		Title:           "Copy",
		Author:          "Someone",
		ISBN:            "9780134190440",
		PublicationDate: "2015-11-16",
	})
	assert.ErrorContains(t, err, "ISBN already exists")

	// Malformed date is rejected
	_, err = svc.CreateBook(ctx, librarian.ID, &models.CreateBookRequest{
		Title:           "Bad Date",
		Author:          "Someone",
		ISBN:            "9780000000001",
		PublicationDate: "16/11/2015",
	})
	assert.ErrorContains(t, err, "invalid request")

	title := "The Go Programming Language, 1st ed."
	updated, err := svc.UpdateBook(ctx, book.ID, &models.UpdateBookRequest{Title: &title})
	assert.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, book.ISBN, updated.ISBN)

	assert.NoError(t, svc.DeleteBook(ctx, book.ID))
	_, err = svc.GetBook(ctx, book.ID)
	assert.ErrorContains(t, err, "not found")
}

func TestListBooksSearch(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	librarian := createUser(t, db, "librarian", "librarian")

	books := []models.CreateBookRequest{
		{Title: "Effective Go", Author: "Gopher", ISBN: "9780000000011", PublicationDate: "2012-03-01"},
		{Title: "Learning Python", Author: "Lutz", ISBN: "9780000000012", PublicationDate: "2013-07-01"},
		{Title: "Go Web Programming", Author: "Chang", ISBN: "9780000000013", PublicationDate: "2016-07-01"},
	}
	for i := range books {
		_, err := svc.CreateBook(ctx, librarian.ID, &books[i])
		assert.NoError(t, err)
	}

	results, count, err := svc.ListBooks(ctx, "Go", 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Len(t, results, 2)

	// Author names match too
	_, count, err = svc.ListBooks(ctx, "Lutz", 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, count, err = svc.ListBooks(ctx, "", 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestReviews(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	librarian := createUser(t, db, "librarian", "librarian")
	alice := createUser(t, db, "alice", "member")
	bob := createUser(t, db, "bob", "member")

	book := createBook(t, svc, librarian.ID, "Reviewed Book")

	// Reviewing a missing book is not found
	_, err := svc.CreateReview(ctx, alice.ID, uuid.New(), &models.CreateReviewRequest{Rating: 5, ReviewText: "great"})
	assert.ErrorContains(t, err, "not found")

	// Rating bounds are enforced
	_, err = svc.CreateReview(ctx, alice.ID, book.ID, &models.CreateReviewRequest{Rating: 6, ReviewText: "too good"})
	assert.ErrorContains(t, err, "rating must be between 1 and 5")

	review, err := svc.CreateReview(ctx, alice.ID, book.ID, &models.CreateReviewRequest{Rating: 5, ReviewText: "great"})
	assert.NoError(t, err)

	// One review per reviewer per book
	_, err = svc.CreateReview(ctx, alice.ID, book.ID, &models.CreateReviewRequest{Rating: 4, ReviewText: "again"})
	assert.ErrorContains(t, err, "already reviewed")

	_, err = svc.CreateReview(ctx, bob.ID, book.ID, &models.CreateReviewRequest{Rating: 2, ReviewText: "meh"})
	assert.NoError(t, err)

	reviews, count, average, err := svc.ListReviews(ctx, book.ID, 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Len(t, reviews, 2)
	assert.InDelta(t, 3.5, average, 0.001)
	assert.NotNil(t, reviews[0].Reviewer)

	// Only the reviewer may update or delete
	rating := 3
	_, err = svc.UpdateReview(ctx, bob.ID, review.ID, &models.UpdateReviewRequest{Rating: &rating})
	assert.ErrorContains(t, err, "forbidden")
	updated, err := svc.UpdateReview(ctx, alice.ID, review.ID, &models.UpdateReviewRequest{Rating: &rating})
	assert.NoError(t, err)
	assert.Equal(t, 3, updated.Rating)

	assert.ErrorContains(t, svc.DeleteReview(ctx, bob.ID, review.ID), "forbidden")
	assert.NoError(t, svc.DeleteReview(ctx, alice.ID, review.ID))

	_, count, average, err = svc.ListReviews(ctx, book.ID, 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.InDelta(t, 2.0, average, 0.001)
}

func TestReadingListVisibility(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	alice := createUser(t, db, "alice", "member")
	bob := createUser(t, db, "bob", "member")

	private, err := svc.CreateReadingList(ctx, alice.ID, &models.CreateReadingListRequest{Name: "secret picks"})
	assert.NoError(t, err)
	public, err := svc.CreateReadingList(ctx, alice.ID, &models.CreateReadingListRequest{Name: "shared picks", IsPublic: true})
	assert.NoError(t, err)

	// Owner sees both
	_, err = svc.GetReadingList(ctx, alice.ID, private.ID)
	assert.NoError(t, err)

	// A private list is hidden from others, not merely forbidden
	_, err = svc.GetReadingList(ctx, bob.ID, private.ID)
	assert.ErrorContains(t, err, "not found")

	got, err := svc.GetReadingList(ctx, bob.ID, public.ID)
	assert.NoError(t, err)
	assert.Equal(t, "shared picks", got.Name)

	// Bob's listing includes his own lists and alice's public one
	_, err = svc.CreateReadingList(ctx, bob.ID, &models.CreateReadingListRequest{Name: "bob list"})
	assert.NoError(t, err)
	lists, count, err := svc.ListReadingLists(ctx, bob.ID, 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Len(t, lists, 2)

	// Only the owner may update; a public list leaks existence so it is forbidden
	flip := false
	_, err = svc.UpdateReadingList(ctx, bob.ID, public.ID, &models.UpdateReadingListRequest{IsPublic: &flip})
	assert.ErrorContains(t, err, "forbidden")
	_, err = svc.UpdateReadingList(ctx, bob.ID, private.ID, &models.UpdateReadingListRequest{IsPublic: &flip})
	assert.ErrorContains(t, err, "not found")

	name := "renamed picks"
	updated, err := svc.UpdateReadingList(ctx, alice.ID, public.ID, &models.UpdateReadingListRequest{Name: &name})
	assert.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	assert.ErrorContains(t, svc.DeleteReadingList(ctx, bob.ID, public.ID), "forbidden")
	assert.NoError(t, svc.DeleteReadingList(ctx, alice.ID, public.ID))
}

func TestReadingListBooks(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	librarian := createUser(t, db, "librarian", "librarian")
	alice := createUser(t, db, "alice", "member")
	bob := createUser(t, db, "bob", "member")

	book1 := createBook(t, svc, librarian.ID, "First")
	book2 := createBook(t, svc, librarian.ID, "Second")

	list, err := svc.CreateReadingList(ctx, alice.ID, &models.CreateReadingListRequest{Name: "to read"})
	assert.NoError(t, err)

	assert.NoError(t, svc.AddBookToList(ctx, alice.ID, list.ID, book1.ID))
	// Adding the same book again is a no-op
	assert.NoError(t, svc.AddBookToList(ctx, alice.ID, list.ID, book1.ID))
	assert.NoError(t, svc.AddBookToList(ctx, alice.ID, list.ID, book2.ID))

	// Unknown book is not found
	assert.ErrorContains(t, svc.AddBookToList(ctx, alice.ID, list.ID, uuid.New()), "not found")

	// Non-owners cannot touch the list contents
	assert.ErrorContains(t, svc.AddBookToList(ctx, bob.ID, list.ID, book2.ID), "not found")

	got, err := svc.GetReadingList(ctx, alice.ID, list.ID)
	assert.NoError(t, err)
	assert.Len(t, got.Books, 2)

	assert.NoError(t, svc.RemoveBookFromList(ctx, alice.ID, list.ID, book1.ID))
	got, err = svc.GetReadingList(ctx, alice.ID, list.ID)
	assert.NoError(t, err)
	assert.Len(t, got.Books, 1)
	assert.Equal(t, book2.ID, got.Books[0].ID)

	// Deleting a book removes it from lists
	assert.NoError(t, svc.DeleteBook(ctx, book2.ID))
	got, err = svc.GetReadingList(ctx, alice.ID, list.ID)
	assert.NoError(t, err)
	assert.Empty(t, got.Books)
}
