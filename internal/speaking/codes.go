package speaking

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"speakroom/backend/internal/config"
	"speakroom/backend/internal/metrics"

	"github.com/rs/zerolog"
)

// CodeChecker reports whether a code is held by an active room.
type CodeChecker interface {
	IsRoomCodeActive(ctx context.Context, code string) (bool, error)
}

// CodeGenerator produces candidate room codes.
type CodeGenerator func() (string, error)

// RoomCodeAllocator hands out short room codes that no active room uses.
// Randomness alone is not trusted: each candidate is checked against the
// store and retried up to MaxAttempts times.
type RoomCodeAllocator struct {
	Checker     CodeChecker
	Generate    CodeGenerator
	MaxAttempts int
	Logger      zerolog.Logger
}

func NewRoomCodeAllocator(checker CodeChecker, logger zerolog.Logger) *RoomCodeAllocator {
	return &RoomCodeAllocator{
		Checker:     checker,
		Generate:    RandomRoomCode,
		MaxAttempts: config.MaxRoomCodeAttempts,
		Logger:      logger,
	}
}

// Allocate returns an unused code or ErrAllocationExhausted.
func (a *RoomCodeAllocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= a.MaxAttempts; attempt++ {
		code, err := a.Generate()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		inUse, err := a.Checker.IsRoomCodeActive(ctx, code)
		if err != nil {
			return "", persistenceErr("check room code", err)
		}
		if !inUse {
			return code, nil
		}
		metrics.RoomCodeCollisions.Inc()
		a.Logger.Debug().Str("code", code).Int("attempt", attempt).Msg("room code collision")
	}
	return "", ErrAllocationExhausted
}

var alphabetSize = big.NewInt(int64(len(config.RoomCodeAlphabet)))

// RandomRoomCode returns RoomCodeLength uniformly random characters from
// RoomCodeAlphabet.
func RandomRoomCode() (string, error) {
	buf := make([]byte, config.RoomCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		buf[i] = config.RoomCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// ValidRoomCode reports whether code has the shape of a room code.
func ValidRoomCode(code string) bool {
	if len(code) != config.RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
