package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user in the system
type User struct {
	ID                uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	Username          string    `json:"username" gorm:"uniqueIndex" validate:"required,min=3,max=30,alphanum"`
	Email             string    `json:"email" gorm:"uniqueIndex" validate:"required,email,max=254"`
	PasswordHash      string    `json:"-" gorm:"column:password_hash"`
	FirstName         string    `json:"first_name" validate:"omitempty,max=50"`
	LastName          string    `json:"last_name" validate:"omitempty,max=50"`
	Bio               string    `json:"bio" gorm:"type:text" validate:"omitempty,max=500"`
	ProfilePictureURL string    `json:"profile_picture_url" validate:"omitempty,url"`
	Role              string    `json:"role" gorm:"default:member" validate:"required,oneof=member librarian admin"` // member, librarian, admin
	TOTPEnabled       bool      `json:"totp_enabled"`
	TOTPSecret        string    `json:"-" gorm:"column:totp_secret"`
	LastLogin         time.Time `json:"last_login"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AuthToken represents an opaque bearer token backed by a database row.
// One row per issued credential; deleting the row revokes the token.
type AuthToken struct {
	Key       string    `json:"key" gorm:"primaryKey;size:40"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;index" validate:"required,uuid"`
	CreatedAt time.Time `json:"created_at"`
}

// Follow represents an asymmetric follow edge between two users
type Follow struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	FollowerID  uuid.UUID `json:"follower_id" gorm:"type:uuid;uniqueIndex:idx_follower_following;index" validate:"required,uuid"`
	FollowingID uuid.UUID `json:"following_id" gorm:"type:uuid;uniqueIndex:idx_follower_following;index" validate:"required,uuid"`
	CreatedAt   time.Time `json:"created_at"`
}

// FollowEntry is one row in a followers or following listing
type FollowEntry struct {
	User
	FollowerCount int64 `json:"follower_count" gorm:"-"`
}

// Tag labels posts for discovery. Names are stored lowercased.
type Tag struct {
	ID   uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	Name string    `json:"name" gorm:"uniqueIndex;size:50" validate:"required,min=1,max=50"`
}

// Post represents a user post
type Post struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	AuthorID  uuid.UUID `json:"author_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Author    *User     `json:"author,omitempty" gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	Title     string    `json:"title" gorm:"size:200" validate:"required,min=1,max=200"`
	Content   string    `json:"content" gorm:"type:text" validate:"required,min=1"`
	Tags      []Tag     `json:"tags" gorm:"many2many:post_tags;"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`

	CommentCount int64 `json:"comment_count" gorm:"-"`
	LikeCount    int64 `json:"like_count" gorm:"-"`
}

// Comment represents a comment on a post
type Comment struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	PostID    uuid.UUID `json:"post_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Post      *Post     `json:"-" gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
	AuthorID  uuid.UUID `json:"author_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Author    *User     `json:"author,omitempty" gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE"`
	Content   string    `json:"content" gorm:"type:text" validate:"required,min=1"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Like represents a like on a post, unique per user and post
type Like struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	PostID    uuid.UUID `json:"post_id" gorm:"type:uuid;uniqueIndex:idx_post_user;index" validate:"required,uuid"`
	Post      *Post     `json:"-" gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_post_user;index" validate:"required,uuid"`
	User      *User     `json:"user,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification verbs
const (
	VerbFollowed  = "started following you"
	VerbLiked     = "liked your post"
	VerbCommented = "commented on your post"
)

// Notification represents an activity notification delivered to a user
type Notification struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	RecipientID uuid.UUID `json:"recipient_id" gorm:"type:uuid;index:idx_recipient_created;index:idx_recipient_read" validate:"required,uuid"`
	ActorID     uuid.UUID `json:"actor_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Actor       *User     `json:"actor,omitempty" gorm:"foreignKey:ActorID;constraint:OnDelete:CASCADE"`
	Verb        string    `json:"verb" gorm:"size:255" validate:"required,max=255"`
	TargetType  string    `json:"target_type" gorm:"size:20"` // post, comment, user
	TargetID    uuid.UUID `json:"target_id" gorm:"type:uuid"`
	Read        bool      `json:"read" gorm:"default:false;index:idx_recipient_read"`
	CreatedAt   time.Time `json:"created_at" gorm:"index:idx_recipient_created"`
}

// Book represents a book in the library shelf
type Book struct {
	ID              uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	Title           string    `json:"title" gorm:"size:200" validate:"required,min=1,max=200"`
	Author          string    `json:"author" gorm:"size:100" validate:"required,min=1,max=100"`
	ISBN            string    `json:"isbn" gorm:"uniqueIndex;size:13" validate:"required,len=13,numeric"`
	PublicationDate time.Time `json:"publication_date" validate:"required"`
	AddedByID       uuid.UUID `json:"added_by_id" gorm:"type:uuid;index" validate:"required,uuid"`
	AddedBy         *User     `json:"added_by,omitempty" gorm:"foreignKey:AddedByID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time `json:"created_at" gorm:"index"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BookReview represents a review of a book, one per reviewer per book
type BookReview struct {
	ID         uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	BookID     uuid.UUID `json:"book_id" gorm:"type:uuid;uniqueIndex:idx_book_reviewer;index" validate:"required,uuid"`
	Book       *Book     `json:"-" gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
	ReviewerID uuid.UUID `json:"reviewer_id" gorm:"type:uuid;uniqueIndex:idx_book_reviewer;index" validate:"required,uuid"`
	Reviewer   *User     `json:"reviewer,omitempty" gorm:"foreignKey:ReviewerID;constraint:OnDelete:CASCADE"`
	Rating     int       `json:"rating" validate:"required,min=1,max=5"`
	ReviewText string    `json:"review_text" gorm:"type:text" validate:"required,min=1"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReadingList represents a user-owned collection of books
type ReadingList struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid" validate:"required,uuid"`
	Name        string    `json:"name" gorm:"size:100" validate:"required,min=1,max=100"`
	Description string    `json:"description" gorm:"type:text" validate:"omitempty"`
	OwnerID     uuid.UUID `json:"owner_id" gorm:"type:uuid;index" validate:"required,uuid"`
	Owner       *User     `json:"owner,omitempty" gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
	IsPublic    bool      `json:"is_public" gorm:"default:false"`
	Books       []Book    `json:"books,omitempty" gorm:"many2many:reading_list_books;"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time `json:"updated_at"`
}
