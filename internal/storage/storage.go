package storage

import (
	"context"
	"errors"
	"time"

	"speakroom/backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("storage: record not found")
	// ErrDuplicate is returned when a write hits a unique constraint.
	ErrDuplicate = errors.New("storage: duplicate record")
)

// Storage is the persistence contract used by the speaking and chat services.
// Multi-row operations (CreateRoom, EndRoom, CreateRequest) are atomic.
type Storage interface {
	// Users
	UpsertUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]models.User, error)
	SetTelegramChatID(ctx context.Context, userID string, chatID int64) error

	// Speaking requests
	CreateRequest(ctx context.Context, req *models.SpeakingRequest, now time.Time) error
	GetRequest(ctx context.Context, requestID string) (*models.SpeakingRequest, error)
	TransitionRequest(ctx context.Context, requestID string, from, to models.RequestStatus, at time.Time) (bool, error)
	SetRequestRoom(ctx context.Context, requestID, roomCode string) error
	ListPendingRequests(ctx context.Context, userID string, now time.Time) ([]models.SpeakingRequest, error)
	ExpirePendingRequests(ctx context.Context, now time.Time) (int64, error)

	// Rooms and participants
	IsRoomCodeActive(ctx context.Context, code string) (bool, error)
	CreateRoom(ctx context.Context, room *models.Room, participants []models.Participant) error
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	ListActiveRoomCodes(ctx context.Context) ([]string, error)
	EndRoom(ctx context.Context, roomID, endedBy string, endedAt time.Time) (*models.Room, bool, error)
	ListParticipants(ctx context.Context, roomID string) ([]models.Participant, error)
	SaveParticipant(ctx context.Context, p *models.Participant) error
	LeaveRoom(ctx context.Context, roomID, userID string, leftAt time.Time) (bool, error)
	SetParticipantOnline(ctx context.Context, roomID, userID string, online bool) (bool, error)
	SaveSessionLog(ctx context.Context, entry *models.SessionLog) error

	// Likes
	AddLike(ctx context.Context, like *models.Like) error
	RemoveLike(ctx context.Context, likerID, likedUserID string) (bool, error)
	HasLike(ctx context.Context, likerID, likedUserID string) (bool, error)
	CountLikes(ctx context.Context, likedUserID string) (int64, error)

	// Chat
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
	GetMessages(ctx context.Context, roomID, viewerID string, limit, offset int) ([]models.ChatMessage, error)
	GetLatestMessages(ctx context.Context, roomID, viewerID string, limit int) ([]models.ChatMessage, error)
	MarkMessagesRead(ctx context.Context, roomID, userID, fromSenderID string) (int64, error)
	UnreadCounts(ctx context.Context, roomID, userID string) (models.UnreadCounts, error)
}

// Service implements Storage on top of PostgreSQL through gorm.
type Service struct {
	DB *gorm.DB
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// Open connects to PostgreSQL. Unique violations are translated so
// translateErr can recognise them.
func Open(dsn string) (*Service, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return NewStorageService(db), nil
}

// Migrate creates or updates every table the services use.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(
		&models.User{},
		&models.SpeakingRequest{},
		&models.Room{},
		&models.Participant{},
		&models.SessionLog{},
		&models.Like{},
		&models.ChatMessage{},
	)
}

// translateErr maps gorm errors onto the package sentinels. The gorm.DB must
// be opened with TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
