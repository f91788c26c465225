package posts_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pulsefeed/pulsefeed/internal/notifications"
	"github.com/pulsefeed/pulsefeed/internal/posts"
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
		&models.Follow{},
		&models.Tag{},
		&models.Post{},
		&models.Comment{},
		&models.Like{},
		&models.Notification{},
	))
	return db
}

func newService(t *testing.T, db *gorm.DB) posts.PostService {
	logger := zap.NewNop()
	notifier, err := notifications.NewService(logger, db, nil)
	assert.NoError(t, err)
	svc, err := posts.NewService(logger, db, notifier)
	assert.NoError(t, err)
	return svc
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	user := &models.User{
		ID:       uuid.New(),
		Username: username,
		Email:    username + "@example.com",
		Role:     "member",
	}
	assert.NoError(t, db.Create(user).Error)
	return user
}

func TestPostCRUD(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	post, err := svc.CreatePost(ctx, alice.ID, &models.CreatePostRequest{
		Title:   "Hello World",
		Content: "first post",
	})
	assert.NoError(t, err)
	assert.Equal(t, alice.ID, post.AuthorID)
	assert.Equal(t, "alice", post.Author.Username)

	// Non-author updates are forbidden
	title := "hijacked"
	_, err = svc.UpdatePost(ctx, bob.ID, post.ID, &models.UpdatePostRequest{Title: &title})
	assert.ErrorContains(t, err, "forbidden")

	title = "Hello Again"
	updated, err := svc.UpdatePost(ctx, alice.ID, post.ID, &models.UpdatePostRequest{Title: &title})
	assert.NoError(t, err)
	assert.Equal(t, "Hello Again", updated.Title)
	assert.Equal(t, "first post", updated.Content)

	// Non-author deletes are forbidden
	assert.ErrorContains(t, svc.DeletePost(ctx, bob.ID, post.ID), "forbidden")
	assert.NoError(t, svc.DeletePost(ctx, alice.ID, post.ID))

	_, err = svc.GetPost(ctx, post.ID)
	assert.ErrorContains(t, err, "not found")
}

func TestPostSanitization(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	alice := createUser(t, db, "alice")

	post, err := svc.CreatePost(ctx, alice.ID, &models.CreatePostRequest{
		Title:   "plain title",
		Content: `before<script>alert("x")</script>after`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "beforeafter", post.Content)

	// Markup-only content is rejected once stripped
	_, err = svc.CreatePost(ctx, alice.ID, &models.CreatePostRequest{
		Title:   "t",
		Content: "<script>only</script>",
	})
	assert.Error(t, err)
}

func TestListPostsFilters(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	_, err := svc.CreatePost(ctx, alice.ID, &models.CreatePostRequest{Title: "go generics", Content: "type params"})
	assert.NoError(t, err)
	_, err = svc.CreatePost(ctx, alice.ID, &models.CreatePostRequest{Title: "weekend plans", Content: "hiking"})
	assert.NoError(t, err)
	_, err = svc.CreatePost(ctx, bob.ID, &models.CreatePostRequest{Title: "go routines", Content: "channels"})
	assert.NoError(t, err)

	results, count, err := svc.ListPosts(ctx, posts.PostFilter{Search: "go", Limit: 10})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Len(t, results, 2)

	results, count, err = svc.ListPosts(ctx, posts.PostFilter{Author: "alice", Limit: 10})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)

	results, count, err = svc.ListPosts(ctx, posts.PostFilter{AuthorID: bob.ID, Limit: 10})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, "go routines", results[0].Title)
}

func TestPostTags(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	alice := createUser(t, db, "alice")

	tagged, err := svc.CreatePost(ctx, alice.ID, &models.CreatePostRequest{
		Title:   "tagged",
		Content: "c",
		Tags:    []string{"Go", "testing", "go"},
	})
	assert.NoError(t, err)
	// Names are lowercased and deduplicated
	assert.Len(t, tagged.Tags, 2)

	_, err = svc.CreatePost(ctx, alice.ID, &models.CreatePostRequest{
		Title:   "also go",
		Content: "c",
		Tags:    []string{"go"},
	})
	assert.NoError(t, err)
	_, err = svc.CreatePost(ctx, alice.ID, &models.CreatePostRequest{
		Title:   "untagged",
		Content: "c",
	})
	assert.NoError(t, err)

	results, count, err := svc.ListPosts(ctx, posts.PostFilter{Tag: "go", Limit: 10})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Len(t, results, 2)

	_, count, err = svc.ListPosts(ctx, posts.PostFilter{Tag: "testing", Limit: 10})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Updating with a tag list replaces the old set
	updated, err := svc.UpdatePost(ctx, alice.ID, tagged.ID, &models.UpdatePostRequest{Tags: []string{"web"}})
	assert.NoError(t, err)
	assert.Len(t, updated.Tags, 1)
	assert.Equal(t, "web", updated.Tags[0].Name)

	_, count, err = svc.ListPosts(ctx, posts.PostFilter{Tag: "testing", Limit: 10})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Updating without tags leaves them alone
	title := "still tagged"
	updated, err = svc.UpdatePost(ctx, alice.ID, tagged.ID, &models.UpdatePostRequest{Title: &title})
	assert.NoError(t, err)
	assert.Len(t, updated.Tags, 1)
}

func TestCommentsAndNotifications(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	post, err := svc.CreatePost(ctx, alice.ID, &models.CreatePostRequest{Title: "t", Content: "c"})
	assert.NoError(t, err)

	comment, err := svc.CreateComment(ctx, bob.ID, &models.CreateCommentRequest{PostID: post.ID, Content: "nice"})
	assert.NoError(t, err)
	assert.Equal(t, bob.ID, comment.AuthorID)

	// Post author was notified
	var notifs []models.Notification
	assert.NoError(t, db.Where("recipient_id = ?", alice.ID).Find(&notifs).Error)
	assert.Len(t, notifs, 1)
	assert.Equal(t, models.VerbCommented, notifs[0].Verb)

	// Commenting on your own post does not notify
	_, err = svc.CreateComment(ctx, alice.ID, &models.CreateCommentRequest{PostID: post.ID, Content: "thanks"})
	assert.NoError(t, err)
	assert.NoError(t, db.Where("recipient_id = ?", alice.ID).Find(&notifs).Error)
	assert.Len(t, notifs, 1)

	listed, count, err := svc.ListComments(ctx, posts.CommentFilter{PostID: post.ID, Limit: 10})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count)
	// Chronological order, oldest first
	assert.Equal(t, "nice", listed[0].Content)

	// Only the comment author can update or delete it
	_, err = svc.UpdateComment(ctx, alice.ID, comment.ID, &models.UpdateCommentRequest{Content: "edited"})
	assert.ErrorContains(t, err, "forbidden")
	updated, err := svc.UpdateComment(ctx, bob.ID, comment.ID, &models.UpdateCommentRequest{Content: "edited"})
	assert.NoError(t, err)
	assert.Equal(t, "edited", updated.Content)
	assert.NoError(t, svc.DeleteComment(ctx, bob.ID, comment.ID))

	post, err = svc.GetPost(ctx, post.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), post.CommentCount)
}

func TestLikeUnlike(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	post, err := svc.CreatePost(ctx, alice.ID, &models.CreatePostRequest{Title: "t", Content: "c"})
	assert.NoError(t, err)

	// Liking a missing post is not found
	assert.ErrorContains(t, svc.Like(ctx, bob.ID, uuid.New()), "not found")

	assert.NoError(t, svc.Like(ctx, bob.ID, post.ID))
	// Liking the same post twice is rejected
	assert.ErrorContains(t, svc.Like(ctx, bob.ID, post.ID), "already liked")

	likers, count, err := svc.ListLikers(ctx, post.ID, 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, bob.ID, likers[0].ID)

	// Like notification was delivered to the author
	var notifs []models.Notification
	assert.NoError(t, db.Where("recipient_id = ? AND verb = ?", alice.ID, models.VerbLiked).Find(&notifs).Error)
	assert.Len(t, notifs, 1)

	assert.NoError(t, svc.Unlike(ctx, bob.ID, post.ID))
	// Unliking when not liked is rejected
	assert.ErrorContains(t, svc.Unlike(ctx, bob.ID, post.ID), "not liked")

	post, err = svc.GetPost(ctx, post.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), post.LikeCount)
}

func TestFeed(t *testing.T) {
	db := setupTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	_, err := svc.CreatePost(ctx, bob.ID, &models.CreatePostRequest{Title: "from bob", Content: "c"})
	assert.NoError(t, err)
	_, err = svc.CreatePost(ctx, carol.ID, &models.CreatePostRequest{Title: "from carol", Content: "c"})
	assert.NoError(t, err)
	_, err = svc.CreatePost(ctx, alice.ID, &models.CreatePostRequest{Title: "from alice", Content: "c"})
	assert.NoError(t, err)

	// Alice follows bob only
	assert.NoError(t, db.Create(&models.Follow{ID: uuid.New(), FollowerID: alice.ID, FollowingID: bob.ID}).Error)

	feed, count, err := svc.Feed(ctx, alice.ID, 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, "from bob", feed[0].Title)

	// Feed excludes posts from unfollowed authors and the user's own posts
	for _, p := range feed {
		assert.NotEqual(t, carol.ID, p.AuthorID)
		assert.NotEqual(t, alice.ID, p.AuthorID)
	}

	// Empty following set yields an empty feed
	feed, count, err = svc.Feed(ctx, carol.ID, 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Empty(t, feed)
}
