package storage

import (
	"context"

	"speakroom/backend/internal/models"
)

// AddLike inserts a like row. A second like by the same liker on the same
// target returns ErrDuplicate.
func (s *Service) AddLike(ctx context.Context, like *models.Like) error {
	return translateErr(s.DB.WithContext(ctx).Create(like).Error)
}

// RemoveLike deletes the like row and reports whether one existed.
func (s *Service) RemoveLike(ctx context.Context, likerID, likedUserID string) (bool, error) {
	res := s.DB.WithContext(ctx).
		Where("liker_id = ? AND liked_user_id = ?", likerID, likedUserID).
		Delete(&models.Like{})
	if res.Error != nil {
		return false, translateErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Service) HasLike(ctx context.Context, likerID, likedUserID string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Like{}).
		Where("liker_id = ? AND liked_user_id = ?", likerID, likedUserID).
		Count(&n).Error
	return n > 0, translateErr(err)
}

func (s *Service) CountLikes(ctx context.Context, likedUserID string) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Like{}).
		Where("liked_user_id = ?", likedUserID).
		Count(&n).Error
	return n, translateErr(err)
}
