package speaking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"speakroom/backend/internal/config"
	"speakroom/backend/internal/metrics"
	"speakroom/backend/internal/models"
	"speakroom/backend/internal/realtime"
	"speakroom/backend/internal/storage"

	"github.com/rs/zerolog"
)

// RoomCreator is the part of RoomLifecycle the ledger needs on accept.
type RoomCreator interface {
	Create(ctx context.Context, creatorID, inviteeID string) (*models.Room, error)
}

// RequestNotifier tells a receiver about a new request outside the app.
type RequestNotifier interface {
	NotifyRequest(ctx context.Context, req models.SpeakingRequest, senderName string) error
}

// PendingRequests partitions a user's live requests.
type PendingRequests struct {
	Incoming []models.SpeakingRequest `json:"incoming"`
	Outgoing []models.SpeakingRequest `json:"outgoing"`
}

// RequestLedger tracks pairwise speaking requests. Expired pending requests
// read as cancelled whether or not the sweeper has persisted it yet.
type RequestLedger struct {
	Storage  storage.Storage
	Bus      realtime.Bus
	Rooms    RoomCreator
	Notifier RequestNotifier
	TTL      time.Duration
	Now      func() time.Time
	Logger   zerolog.Logger
}

func NewRequestLedger(s storage.Storage, bus realtime.Bus, rooms RoomCreator, logger zerolog.Logger) *RequestLedger {
	return &RequestLedger{
		Storage: s,
		Bus:     bus,
		Rooms:   rooms,
		TTL:     config.RequestTTL,
		Now:     time.Now,
		Logger:  logger,
	}
}

// Send creates a pending request from senderID to receiverID.
func (l *RequestLedger) Send(ctx context.Context, senderID, receiverID string) (*models.SpeakingRequest, error) {
	if senderID == receiverID {
		return nil, ErrSelfRequest
	}

	now := l.Now()
	req := &models.SpeakingRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.RequestPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(l.TTL),
	}
	err := l.Storage.CreateRequest(ctx, req, now)
	if errors.Is(err, storage.ErrDuplicate) {
		return nil, ErrDuplicatePending
	}
	if err != nil {
		return nil, persistenceErr("create request", err)
	}

	metrics.RequestsSent.Inc()
	l.Logger.Info().Str("request_id", req.ID).Str("sender_id", senderID).Str("receiver_id", receiverID).Msg("speaking request sent")
	l.announce(ctx, *req)
	l.notify(ctx, *req)
	return req, nil
}

// Resolve applies outcome to a pending request on behalf of actorID.
// Receivers accept or reject, senders cancel. Accepting creates the room;
// if that fails the request goes back to pending and ErrRoomCreationFailed
// is returned.
func (l *RequestLedger) Resolve(ctx context.Context, requestID, actorID string, outcome models.RequestStatus) (*models.SpeakingRequest, error) {
	req, err := l.Storage.GetRequest(ctx, requestID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, persistenceErr("load request", err)
	}

	switch outcome {
	case models.RequestAccepted, models.RequestRejected:
		if actorID != req.ReceiverID {
			return nil, ErrNotAuthorized
		}
	case models.RequestCancelled:
		if actorID != req.SenderID {
			return nil, ErrNotAuthorized
		}
	default:
		return nil, ErrInvalidOutcome
	}

	now := l.Now()
	if req.EffectiveStatus(now) != models.RequestPending {
		return nil, ErrAlreadyResolved
	}

	ok, err := l.Storage.TransitionRequest(ctx, req.ID, models.RequestPending, outcome, now)
	if err != nil {
		return nil, persistenceErr("resolve request", err)
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}
	req.Status = outcome
	req.ResolvedAt = &now

	if outcome == models.RequestAccepted {
		room, err := l.Rooms.Create(ctx, req.SenderID, req.ReceiverID)
		if err != nil {
			if _, rbErr := l.Storage.TransitionRequest(ctx, req.ID, models.RequestAccepted, models.RequestPending, now); rbErr != nil {
				l.Logger.Error().Err(rbErr).Str("request_id", req.ID).Msg("failed to roll back accepted request")
			}
			return nil, fmt.Errorf("%w: %w", ErrRoomCreationFailed, err)
		}
		if err := l.Storage.SetRequestRoom(ctx, req.ID, room.RoomCode); err != nil {
			l.Logger.Warn().Err(err).Str("request_id", req.ID).Msg("failed to link room to request")
		}
		req.RoomCode = room.RoomCode
	}

	metrics.RequestsResolved.WithLabelValues(string(outcome)).Inc()
	l.Logger.Info().Str("request_id", req.ID).Str("outcome", string(outcome)).Str("actor_id", actorID).Msg("speaking request resolved")
	l.announce(ctx, *req)
	return req, nil
}

// ListPending returns the user's live requests split by direction.
func (l *RequestLedger) ListPending(ctx context.Context, userID string) (*PendingRequests, error) {
	now := l.Now()
	reqs, err := l.Storage.ListPendingRequests(ctx, userID, now)
	if err != nil {
		return nil, persistenceErr("list requests", err)
	}

	out := &PendingRequests{
		Incoming: []models.SpeakingRequest{},
		Outgoing: []models.SpeakingRequest{},
	}
	for _, r := range reqs {
		if r.EffectiveStatus(now) != models.RequestPending {
			continue
		}
		if r.ReceiverID == userID {
			out.Incoming = append(out.Incoming, r)
		} else if r.SenderID == userID {
			out.Outgoing = append(out.Outgoing, r)
		}
	}
	return out, nil
}

// Get returns a request visible to userID with its effective status.
func (l *RequestLedger) Get(ctx context.Context, requestID, userID string) (*models.SpeakingRequest, error) {
	req, err := l.Storage.GetRequest(ctx, requestID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, persistenceErr("load request", err)
	}
	if !req.Involves(userID) {
		return nil, ErrNotAuthorized
	}
	req.Status = req.EffectiveStatus(l.Now())
	return req, nil
}

// Sweep persists the cancellation of expired pending requests.
func (l *RequestLedger) Sweep(ctx context.Context) (int64, error) {
	n, err := l.Storage.ExpirePendingRequests(ctx, l.Now())
	if err != nil {
		return 0, persistenceErr("expire requests", err)
	}
	if n > 0 {
		metrics.RequestsResolved.WithLabelValues("expired").Add(float64(n))
	}
	return n, nil
}

func (l *RequestLedger) announce(ctx context.Context, req models.SpeakingRequest) {
	ev := models.RequestUpdatedEvent{Request: req}
	for _, userID := range []string{req.SenderID, req.ReceiverID} {
		if err := l.Bus.Publish(ctx, realtime.UserChannel(userID), ev); err != nil {
			l.Logger.Warn().Err(err).Str("request_id", req.ID).Str("user_id", userID).Msg("realtime publish failed")
		}
	}
}

func (l *RequestLedger) notify(ctx context.Context, req models.SpeakingRequest) {
	if l.Notifier == nil {
		return
	}
	senderName := req.SenderID
	if u, err := l.Storage.GetUserByID(ctx, req.SenderID); err == nil && u.DisplayName != "" {
		senderName = u.DisplayName
	}
	if err := l.Notifier.NotifyRequest(ctx, req, senderName); err != nil {
		l.Logger.Warn().Err(err).Str("request_id", req.ID).Msg("request notification failed")
	}
}
