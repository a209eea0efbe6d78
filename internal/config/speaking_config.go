package config

import "time"

const (
	// Requests
	RequestTTL = 10 * time.Minute

	// Rooms
	RoomCodeLength       = 8
	RoomCodeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	MaxRoomCodeAttempts  = 10
	RoomURLPrefix        = "/speaking/room/"
	DefaultSweepInterval = time.Minute

	// Chat
	TypingIndicatorTTL = 3 * time.Second
	DefaultHistorySize = 50
	MaxHistorySize     = 200
	MaxMessageLength   = 2000
)
