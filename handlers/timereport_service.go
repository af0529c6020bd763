package handlers

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// MessageSender posts plain messages to a room.
type MessageSender interface {
	SendMessage(roomID int64, body string) error
}

// TimeReportService announces the hour in every opted-in room.
type TimeReportService struct {
	api       MessageSender
	db        DBManager
	isRunning bool
	stopChan  chan struct{}
}

func NewTimeReportService(api MessageSender, db DBManager) *TimeReportService {
	return &TimeReportService{
		api:      api,
		db:       db,
		stopChan: make(chan struct{}),
	}
}

// Start launches the minute ticker. The announcement fires on the tick
// whose wall-clock minute is zero, so at most once per hour.
func (s *TimeReportService) Start() {
	if s.isRunning {
		return
	}
	s.isRunning = true

	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				if now.In(jst).Minute() == 0 {
					s.announce(now.In(jst).Hour())
				}
			case <-s.stopChan:
				return
			}
		}
	}()

	log.Info().Msg("time report service started")
}

func (s *TimeReportService) Stop() {
	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)
	log.Info().Msg("time report service stopped")
}

func (s *TimeReportService) announce(hour int) {
	rooms, err := s.db.ListTimeReportRooms()
	if err != nil {
		log.Err(err).Msg("listing time report rooms failed")
		return
	}

	body := fmt.Sprintf("[info][title]時報[/title]現在時刻は、%d時です。[/info]", hour)
	for _, roomID := range rooms {
		if err := s.api.SendMessage(roomID, body); err != nil {
			log.Err(err).Int64("room", roomID).Msg("sending time report failed")
		}
	}
}

var jst = time.FixedZone("JST", 9*60*60)
