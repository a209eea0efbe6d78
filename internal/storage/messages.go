package storage

import (
	"context"
	"slices"

	"speakroom/backend/internal/models"
)

// SaveMessage persists a chat message.
func (s *Service) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	return translateErr(s.DB.WithContext(ctx).Create(msg).Error)
}

// GetMessages returns a page of the room history visible to viewerID,
// ordered by creation time ascending.
func (s *Service) GetMessages(ctx context.Context, roomID, viewerID string, limit, offset int) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := s.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Where("is_private = ? OR sender_id = ? OR receiver_id = ?", false, viewerID, viewerID).
		Order("created_at asc").
		Order("id asc").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return msgs, nil
}

// GetLatestMessages returns the newest limit messages visible to viewerID,
// ordered by creation time ascending.
func (s *Service) GetLatestMessages(ctx context.Context, roomID, viewerID string, limit int) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := s.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Where("is_private = ? OR sender_id = ? OR receiver_id = ?", false, viewerID, viewerID).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, translateErr(err)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// MarkMessagesRead marks private messages from fromSenderID to userID as read,
// or all group messages not written by userID when fromSenderID is empty.
func (s *Service) MarkMessagesRead(ctx context.Context, roomID, userID, fromSenderID string) (int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("room_id = ? AND is_read = ?", roomID, false)
	if fromSenderID != "" {
		q = q.Where("is_private = ? AND sender_id = ? AND receiver_id = ?", true, fromSenderID, userID)
	} else {
		q = q.Where("is_private = ? AND sender_id <> ?", false, userID)
	}
	res := q.Update("is_read", true)
	return res.RowsAffected, translateErr(res.Error)
}

type unreadRow struct {
	IsPrivate bool
	SenderID  string
	Count     int
}

func (s *Service) UnreadCounts(ctx context.Context, roomID, userID string) (models.UnreadCounts, error) {
	counts := models.UnreadCounts{Private: map[string]int{}}

	var rows []unreadRow
	err := s.DB.WithContext(ctx).Model(&models.ChatMessage{}).
		Select("is_private, sender_id, COUNT(*) AS count").
		Where("room_id = ? AND is_read = ? AND sender_id <> ?", roomID, false, userID).
		Where("is_private = ? OR receiver_id = ?", false, userID).
		Group("is_private, sender_id").
		Scan(&rows).Error
	if err != nil {
		return counts, translateErr(err)
	}

	for _, r := range rows {
		if r.IsPrivate {
			counts.Private[r.SenderID] += r.Count
		} else {
			counts.Group += r.Count
		}
	}
	return counts, nil
}
