package speaking_test

import (
	"context"
	"errors"
	"testing"

	"speakroom/backend/internal/config"
	"speakroom/backend/internal/speaking"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCodeChecker struct {
	mock.Mock
}

func (m *MockCodeChecker) IsRoomCodeActive(ctx context.Context, code string) (bool, error) {
	args := m.Called(code)
	return args.Bool(0), args.Error(1)
}

func sequence(codes ...string) speaking.CodeGenerator {
	i := 0
	return func() (string, error) {
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
}

func TestAllocate_RetriesPastCollisions(t *testing.T) {
	checker := new(MockCodeChecker)
	checker.On("IsRoomCodeActive", "TAKEN001").Return(true, nil).Once()
	checker.On("IsRoomCodeActive", "TAKEN002").Return(true, nil).Once()
	checker.On("IsRoomCodeActive", "TAKEN003").Return(true, nil).Once()
	checker.On("IsRoomCodeActive", "FREE0004").Return(false, nil).Once()

	alloc := speaking.NewRoomCodeAllocator(checker, zerolog.Nop())
	alloc.Generate = sequence("TAKEN001", "TAKEN002", "TAKEN003", "FREE0004")

	code, err := alloc.Allocate(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "FREE0004", code)
	checker.AssertExpectations(t)
	checker.AssertNumberOfCalls(t, "IsRoomCodeActive", 4)
}

func TestAllocate_ExhaustsAfterMaxAttempts(t *testing.T) {
	checker := new(MockCodeChecker)
	checker.On("IsRoomCodeActive", mock.AnythingOfType("string")).Return(true, nil)

	alloc := speaking.NewRoomCodeAllocator(checker, zerolog.Nop())

	_, err := alloc.Allocate(context.Background())

	assert.ErrorIs(t, err, speaking.ErrAllocationExhausted)
	checker.AssertNumberOfCalls(t, "IsRoomCodeActive", config.MaxRoomCodeAttempts)
}

func TestAllocate_StoreErrorIsPersistenceFailure(t *testing.T) {
	checker := new(MockCodeChecker)
	checker.On("IsRoomCodeActive", mock.AnythingOfType("string")).Return(false, errors.New("connection reset"))

	alloc := speaking.NewRoomCodeAllocator(checker, zerolog.Nop())

	_, err := alloc.Allocate(context.Background())

	assert.ErrorIs(t, err, speaking.ErrPersistenceFailed)
}

func TestRandomRoomCode_Shape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := speaking.RandomRoomCode()
		require.NoError(t, err)
		assert.True(t, speaking.ValidRoomCode(code), "bad code %q", code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 95)
}

func TestValidRoomCode(t *testing.T) {
	assert.True(t, speaking.ValidRoomCode("AB12CD34"))
	assert.False(t, speaking.ValidRoomCode("ab12cd34"))
	assert.False(t, speaking.ValidRoomCode("AB12CD3"))
	assert.False(t, speaking.ValidRoomCode("AB12/D34"))
}
