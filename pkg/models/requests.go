package models

import (
	"github.com/google/uuid"
)

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username        string `json:"username" binding:"required,min=3,max=30,alphanum"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" binding:"required"`
	FirstName       string `json:"first_name" binding:"omitempty,max=50"`
	LastName        string `json:"last_name" binding:"omitempty,max=50"`
	Bio             string `json:"bio" binding:"omitempty,max=500"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	User        *User     `json:"user,omitempty"`
	Token       string    `json:"token,omitempty"`
	Requires2FA bool      `json:"requires_2fa"`
	UserID      uuid.UUID `json:"user_id,omitempty"`
}

// Verify2FARequest represents the second step of a 2FA login
type Verify2FARequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Code   string    `json:"code" binding:"required,len=6,numeric"`
}

// TOTPSetup represents a pending TOTP enrollment
type TOTPSetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// UpdateProfileRequest represents a profile update; nil fields are left unchanged
type UpdateProfileRequest struct {
	Email             *string `json:"email" binding:"omitempty,email"`
	FirstName         *string `json:"first_name" binding:"omitempty,max=50"`
	LastName          *string `json:"last_name" binding:"omitempty,max=50"`
	Bio               *string `json:"bio" binding:"omitempty,max=500"`
	ProfilePictureURL *string `json:"profile_picture_url" binding:"omitempty,url"`
}

// Profile represents a user profile with relationship counts
type Profile struct {
	User           *User `json:"user"`
	FollowerCount  int64 `json:"follower_count"`
	FollowingCount int64 `json:"following_count"`
	IsFollowing    bool  `json:"is_following"`
}

// CreatePostRequest represents a post creation request
type CreatePostRequest struct {
	Title   string   `json:"title" binding:"required,min=1,max=200"`
	Content string   `json:"content" binding:"required,min=1"`
	Tags    []string `json:"tags" binding:"omitempty,max=10,dive,min=1,max=50"`
}

// UpdatePostRequest represents a post update; nil fields are left unchanged.
// A present but empty tags array clears the post's tags.
type UpdatePostRequest struct {
	Title   *string  `json:"title" binding:"omitempty,min=1,max=200"`
	Content *string  `json:"content" binding:"omitempty,min=1"`
	Tags    []string `json:"tags" binding:"omitempty,max=10,dive,min=1,max=50"`
}

// CreateCommentRequest represents a comment creation request
type CreateCommentRequest struct {
	PostID  uuid.UUID `json:"post_id" binding:"required"`
	Content string    `json:"content" binding:"required,min=1"`
}

// UpdateCommentRequest represents a comment update
type UpdateCommentRequest struct {
	Content string `json:"content" binding:"required,min=1"`
}

// CreateBookRequest represents a book creation request
type CreateBookRequest struct {
	Title           string `json:"title" binding:"required,min=1,max=200"`
	Author          string `json:"author" binding:"required,min=1,max=100"`
	ISBN            string `json:"isbn" binding:"required,len=13,numeric"`
	PublicationDate string `json:"publication_date" binding:"required,datetime=2006-01-02"`
}

// UpdateBookRequest represents a book update; nil fields are left unchanged
type UpdateBookRequest struct {
	Title           *string `json:"title" binding:"omitempty,min=1,max=200"`
	Author          *string `json:"author" binding:"omitempty,min=1,max=100"`
	PublicationDate *string `json:"publication_date" binding:"omitempty,datetime=2006-01-02"`
}

// CreateReviewRequest represents a book review creation request
type CreateReviewRequest struct {
	Rating     int    `json:"rating" binding:"required,min=1,max=5"`
	ReviewText string `json:"review_text" binding:"required,min=1"`
}

// UpdateReviewRequest represents a book review update
type UpdateReviewRequest struct {
	Rating     *int    `json:"rating" binding:"omitempty,min=1,max=5"`
	ReviewText *string `json:"review_text" binding:"omitempty,min=1"`
}

// CreateReadingListRequest represents a reading list creation request
type CreateReadingListRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Description string `json:"description" binding:"omitempty"`
	IsPublic    bool   `json:"is_public"`
}

// UpdateReadingListRequest represents a reading list update
type UpdateReadingListRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=100"`
	Description *string `json:"description" binding:"omitempty"`
	IsPublic    *bool   `json:"is_public"`
}
