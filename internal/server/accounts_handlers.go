package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulsefeed/pulsefeed/pkg/models"
	"github.com/pulsefeed/pulsefeed/pkg/pagination"
)

// handleRegister handles user registration
func (s *Server) handleRegister(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	user, token, err := s.accountsSvc.Register(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.LoginResponse{User: user, Token: token})
}

// handleLogin handles user login
func (s *Server) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	resp, err := s.accountsSvc.Login(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleLoginVerify2FA completes a login that required a second factor
func (s *Server) handleLoginVerify2FA(c *gin.Context) {
	var req models.Verify2FARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	resp, err := s.accountsSvc.Verify2FA(c.Request.Context(), req.UserID, req.Code)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleLogout revokes the presented token
func (s *Server) handleLogout(c *gin.Context) {
	if err := s.accountsSvc.Logout(c.Request.Context(), tokenFromRequest(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "logged out"})
}

// handle2FAEnable starts TOTP enrollment for the current user
func (s *Server) handle2FAEnable(c *gin.Context) {
	setup, err := s.accountsSvc.Enable2FA(c.Request.Context(), s.currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, setup)
}

// handle2FAVerifySetup confirms TOTP enrollment with a fresh code
func (s *Server) handle2FAVerifySetup(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required,len=6,numeric"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	if err := s.accountsSvc.Verify2FASetup(c.Request.Context(), s.currentUserID(c), req.Code); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "two-factor authentication enabled"})
}

// handle2FADisable turns TOTP off after verifying a code
func (s *Server) handle2FADisable(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required,len=6,numeric"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	if err := s.accountsSvc.Disable2FA(c.Request.Context(), s.currentUserID(c), req.Code); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "two-factor authentication disabled"})
}

// handleListUsers lists users, optionally filtered by a username search
func (s *Server) handleListUsers(c *gin.Context) {
	p := pagination.FromContext(c)
	users, count, err := s.accountsSvc.ListUsers(c.Request.Context(), c.Query("search"), p.Offset(), p.PageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewEnvelope(c, p, count, users))
}

// handleGetMe returns the current user's profile
func (s *Server) handleGetMe(c *gin.Context) {
	userID := s.currentUserID(c)
	profile, err := s.accountsSvc.GetProfile(c.Request.Context(), userID, userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// handleUpdateMe updates the current user's profile
func (s *Server) handleUpdateMe(c *gin.Context) {
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, fmt.Errorf("invalid request: %w", err))
		return
	}

	user, err := s.accountsSvc.UpdateProfile(c.Request.Context(), s.currentUserID(c), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// handleGetProfile returns another user's profile with follow counts
func (s *Server) handleGetProfile(c *gin.Context) {
	userID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	profile, err := s.accountsSvc.GetProfile(c.Request.Context(), userID, s.currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// handleFollow follows the target user
func (s *Server) handleFollow(c *gin.Context) {
	targetID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.accountsSvc.Follow(c.Request.Context(), s.currentUserID(c), targetID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "following"})
}

// handleUnfollow unfollows the target user
func (s *Server) handleUnfollow(c *gin.Context) {
	targetID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.accountsSvc.Unfollow(c.Request.Context(), s.currentUserID(c), targetID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "unfollowed"})
}

// handleFollowers lists the target user's followers
func (s *Server) handleFollowers(c *gin.Context) {
	userID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	p := pagination.FromContext(c)
	users, count, err := s.accountsSvc.Followers(c.Request.Context(), userID, p.Offset(), p.PageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewEnvelope(c, p, count, users))
}

// handleFollowing lists users the target user follows
func (s *Server) handleFollowing(c *gin.Context) {
	userID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	p := pagination.FromContext(c)
	users, count, err := s.accountsSvc.Following(c.Request.Context(), userID, p.Offset(), p.PageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagination.NewEnvelope(c, p, count, users))
}
