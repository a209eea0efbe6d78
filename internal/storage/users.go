package storage

import (
	"context"

	"speakroom/backend/internal/models"

	"gorm.io/gorm/clause"
)

// UpsertUser creates the user or refreshes the display name.
func (s *Service) UpsertUser(ctx context.Context, user *models.User) error {
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "updated_at"}),
	}).Create(user).Error
	return translateErr(err)
}

func (s *Service) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, translateErr(err)
	}
	return &user, nil
}

// GetUsersByIDs returns the known users among userIDs keyed by ID. Unknown IDs
// are simply missing from the map.
func (s *Service) GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.DB.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, translateErr(err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (s *Service) SetTelegramChatID(ctx context.Context, userID string, chatID int64) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("telegram_chat_id", chatID)
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
