package db

import "time"

// FortuneLog records one fortune draw per sender per day.
type FortuneLog struct {
	AccountID int64     `json:"account_id"`
	Day       string    `json:"day"`
	Fortune   string    `json:"fortune"`
	DrawnAt   time.Time `json:"drawn_at"`
}
