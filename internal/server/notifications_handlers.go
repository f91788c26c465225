package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pulsefeed/pulsefeed/pkg/pagination"
)

// handleListNotifications lists the current user's notifications, newest
// first. The read query parameter filters to read or unread entries.
func (s *Server) handleListNotifications(c *gin.Context) {
	var read *bool
	if raw := c.Query("read"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(c, fmt.Errorf("invalid request: bad read filter: %w", err))
			return
		}
		read = &parsed
	}

	p := pagination.FromContext(c)
	list, count, unread, err := s.notificationSvc.List(c.Request.Context(), s.currentUserID(c), read, p.Offset(), p.PageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}

	env := pagination.NewEnvelope(c, p, count, list)
	c.JSON(http.StatusOK, gin.H{
		"count":        env.Count,
		"next":         env.Next,
		"previous":     env.Previous,
		"results":      env.Results,
		"unread_count": unread,
	})
}

// handleListUnread lists only unread notifications
func (s *Server) handleListUnread(c *gin.Context) {
	unreadOnly := false
	p := pagination.FromContext(c)
	list, count, unread, err := s.notificationSvc.List(c.Request.Context(), s.currentUserID(c), &unreadOnly, p.Offset(), p.PageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}

	env := pagination.NewEnvelope(c, p, count, list)
	c.JSON(http.StatusOK, gin.H{
		"count":        env.Count,
		"next":         env.Next,
		"previous":     env.Previous,
		"results":      env.Results,
		"unread_count": unread,
	})
}

// handleUnreadCount returns only the unread notification count
func (s *Server) handleUnreadCount(c *gin.Context) {
	_, _, unread, err := s.notificationSvc.List(c.Request.Context(), s.currentUserID(c), nil, 0, 1)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": unread})
}

// handleMarkRead marks one notification as read
func (s *Server) handleMarkRead(c *gin.Context) {
	notificationID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	notification, err := s.notificationSvc.MarkRead(c.Request.Context(), s.currentUserID(c), notificationID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, notification)
}

// handleMarkAllRead marks every unread notification as read
func (s *Server) handleMarkAllRead(c *gin.Context) {
	updated, err := s.notificationSvc.MarkAllRead(c.Request.Context(), s.currentUserID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_read": updated})
}

// handleDeleteNotification deletes one notification
func (s *Server) handleDeleteNotification(c *gin.Context) {
	notificationID, err := pathID(c, "id")
	if err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.notificationSvc.Delete(c.Request.Context(), s.currentUserID(c), notificationID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
