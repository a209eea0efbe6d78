package storage

import (
	"context"
	"errors"
	"time"

	"speakroom/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IsRoomCodeActive reports whether an active room already uses code.
func (s *Service) IsRoomCodeActive(ctx context.Context, code string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Room{}).
		Where("room_code = ? AND status = ?", code, models.RoomActive).
		Count(&n).Error
	return n > 0, translateErr(err)
}

// CreateRoom inserts the room and its initial participants in one
// transaction. A code collision with another active room yields ErrDuplicate.
func (s *Service) CreateRoom(ctx context.Context, room *models.Room, participants []models.Participant) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		for i := range participants {
			participants[i].RoomID = room.ID
			if err := tx.Create(&participants[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translateErr(err)
}

// GetRoomByCode returns the active room with code, or the most recently
// created ended one when no active room uses it.
func (s *Service) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := s.DB.WithContext(ctx).
		Where("room_code = ?", code).
		// "active" sorts before "ended".
		Order("status asc").
		Order("created_at desc").
		First(&room).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &room, nil
}

// ListActiveRoomCodes returns the codes of every active room.
func (s *Service) ListActiveRoomCodes(ctx context.Context) ([]string, error) {
	var codes []string
	err := s.DB.WithContext(ctx).Model(&models.Room{}).
		Where("status = ?", models.RoomActive).
		Pluck("room_code", &codes).Error
	return codes, translateErr(err)
}

// EndRoom marks every active participant as left and flips the room to ended
// in a single transaction. It reports false without error if the room had
// already ended.
func (s *Service) EndRoom(ctx context.Context, roomID, endedBy string, endedAt time.Time) (*models.Room, bool, error) {
	var room models.Room
	transitioned := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", roomID).
			First(&room).Error; err != nil {
			return err
		}
		if !room.IsActive() {
			return nil
		}

		if err := tx.Model(&models.Participant{}).
			Where("room_id = ? AND left_at IS NULL", roomID).
			Updates(map[string]interface{}{
				"left_at":   endedAt,
				"is_online": false,
			}).Error; err != nil {
			return err
		}

		duration := int(endedAt.Sub(room.CreatedAt).Seconds())
		if duration < 0 {
			duration = 0
		}
		if err := tx.Model(&room).Updates(map[string]interface{}{
			"status":           models.RoomEnded,
			"ended_at":         endedAt,
			"ended_by":         endedBy,
			"duration_seconds": duration,
		}).Error; err != nil {
			return err
		}
		room.Status = models.RoomEnded
		room.EndedAt = &endedAt
		room.EndedBy = endedBy
		room.DurationSeconds = &duration
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, false, translateErr(err)
	}
	return &room, transitioned, nil
}

// ListParticipants returns every participant row of the room, historical
// ones included, ordered by join time.
func (s *Service) ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error) {
	var parts []models.Participant
	err := s.DB.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at asc").
		Find(&parts).Error
	return parts, translateErr(err)
}

// SaveParticipant inserts a new row or updates an existing one by ID.
func (s *Service) SaveParticipant(ctx context.Context, p *models.Participant) error {
	return translateErr(s.DB.WithContext(ctx).Save(p).Error)
}

// LeaveRoom stamps LeftAt on the user's active row. It reports whether such a
// row existed.
func (s *Service) LeaveRoom(ctx context.Context, roomID, userID string, leftAt time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Participant{}).
		Where("room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).
		Updates(map[string]interface{}{
			"left_at":   leftAt,
			"is_online": false,
		})
	if res.Error != nil {
		return false, translateErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SetParticipantOnline updates the online flag of the user's active row.
// Concurrent writers simply overwrite each other.
func (s *Service) SetParticipantOnline(ctx context.Context, roomID, userID string, online bool) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Participant{}).
		Where("room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).
		Update("is_online", online)
	if res.Error != nil {
		return false, translateErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Service) SaveSessionLog(ctx context.Context, entry *models.SessionLog) error {
	if entry.RoomID == "" {
		return errors.New("storage: session log without room")
	}
	return translateErr(s.DB.WithContext(ctx).Create(entry).Error)
}
