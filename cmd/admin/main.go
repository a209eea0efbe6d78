package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"speakroom/backend/internal/config"
	"speakroom/backend/internal/models"
	"speakroom/backend/internal/realtime"
	"speakroom/backend/internal/speaking"
	"speakroom/backend/internal/storage"

	"github.com/rs/zerolog"
)

const usage = `Usage: admin <command> [args]

Commands:
  end-room <room_code>   end an active room on behalf of its creator
  expire-requests        mark every lapsed pending request as cancelled
  show-room <room_code>  print a room and its participant rows
  list-rooms             print the codes of all active rooms`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg := config.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}

	// Room events only reach connected clients through redis.
	var bus realtime.Bus = realtime.NewMemoryBus(logger)
	if cfg.RedisURL != "" {
		rdb, err := realtime.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		bus = realtime.NewRedisBus(rdb, logger)
	}
	coord := speaking.NewCoordinator(store, bus, logger)

	switch os.Args[1] {
	case "end-room":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin end-room <room_code>")
			os.Exit(1)
		}
		if err := endRoom(ctx, store, coord, os.Args[2]); err != nil {
			logger.Fatal().Err(err).Msg("error ending room")
		}
		fmt.Printf("Room %s has been ended.\n", os.Args[2])
	case "expire-requests":
		n, err := coord.Requests.Sweep(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("error expiring requests")
		}
		fmt.Printf("%d pending requests cancelled.\n", n)
	case "show-room":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin show-room <room_code>")
			os.Exit(1)
		}
		if err := showRoom(ctx, store, os.Args[2]); err != nil {
			logger.Fatal().Err(err).Msg("error loading room")
		}
	case "list-rooms":
		codes, err := store.ListActiveRoomCodes(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("error listing rooms")
		}
		for _, code := range codes {
			fmt.Println(code)
		}
		fmt.Printf("%d active rooms.\n", len(codes))
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func endRoom(ctx context.Context, s storage.Storage, coord *speaking.Coordinator, code string) error {
	room, err := s.GetRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	if !room.IsActive() {
		return speaking.ErrRoomEnded
	}
	return coord.Rooms.End(ctx, code, room.CreatorID)
}

func showRoom(ctx context.Context, s storage.Storage, code string) error {
	room, err := s.GetRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	parts, err := s.ListParticipants(ctx, room.ID)
	if err != nil {
		return err
	}
	out := struct {
		Room         *models.Room         `json:"room"`
		Participants []models.Participant `json:"participants"`
	}{room, parts}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
