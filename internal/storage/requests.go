package storage

import (
	"context"
	"time"

	"speakroom/backend/internal/models"

	"gorm.io/gorm"
)

// CreateRequest inserts a pending request. Stale pending rows for the same
// pair are cancelled first so the partial unique index only sees live ones.
// Returns ErrDuplicate if a live pending request exists in either direction.
func (s *Service) CreateRequest(ctx context.Context, req *models.SpeakingRequest, now time.Time) error {
	req.PairKey = models.PairKey(req.SenderID, req.ReceiverID)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SpeakingRequest{}).
			Where("pair_key = ? AND status = ? AND expires_at <= ?", req.PairKey, models.RequestPending, now).
			Updates(map[string]interface{}{
				"status":      models.RequestCancelled,
				"resolved_at": now,
			}).Error; err != nil {
			return err
		}

		var live int64
		if err := tx.Model(&models.SpeakingRequest{}).
			Where("pair_key = ? AND status = ?", req.PairKey, models.RequestPending).
			Count(&live).Error; err != nil {
			return err
		}
		if live > 0 {
			return ErrDuplicate
		}

		return tx.Create(req).Error
	})
	return translateErr(err)
}

func (s *Service) GetRequest(ctx context.Context, requestID string) (*models.SpeakingRequest, error) {
	var req models.SpeakingRequest
	if err := s.DB.WithContext(ctx).Where("id = ?", requestID).First(&req).Error; err != nil {
		return nil, translateErr(err)
	}
	return &req, nil
}

// TransitionRequest moves a request from one status to another only if it is
// still in the from status. A pending request that has expired by at does not
// move. It reports whether a row changed.
func (s *Service) TransitionRequest(ctx context.Context, requestID string, from, to models.RequestStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if to.IsTerminal() {
		updates["resolved_at"] = at
	} else {
		updates["resolved_at"] = nil
	}

	q := s.DB.WithContext(ctx).Model(&models.SpeakingRequest{}).
		Where("id = ? AND status = ?", requestID, from)
	if from == models.RequestPending {
		q = q.Where("expires_at > ?", at)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, translateErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Service) SetRequestRoom(ctx context.Context, requestID, roomCode string) error {
	return translateErr(s.DB.WithContext(ctx).Model(&models.SpeakingRequest{}).
		Where("id = ?", requestID).
		Update("room_code", roomCode).Error)
}

// ListPendingRequests returns unexpired pending requests where userID is
// either side, oldest first.
func (s *Service) ListPendingRequests(ctx context.Context, userID string, now time.Time) ([]models.SpeakingRequest, error) {
	var reqs []models.SpeakingRequest
	err := s.DB.WithContext(ctx).
		Where("status = ? AND expires_at > ?", models.RequestPending, now).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at asc").
		Find(&reqs).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return reqs, nil
}

// ExpirePendingRequests persists the implicit cancellation of every pending
// request past its expiry.
func (s *Service) ExpirePendingRequests(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.SpeakingRequest{}).
		Where("status = ? AND expires_at <= ?", models.RequestPending, now).
		Updates(map[string]interface{}{
			"status":      models.RequestCancelled,
			"resolved_at": now,
		})
	return res.RowsAffected, translateErr(res.Error)
}
