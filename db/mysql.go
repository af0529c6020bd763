package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"chatwork-bot/models"
)

// MySQLManager wraps the hosted database used for fortune history, room
// snapshots and the per-sender daily counters.
type MySQLManager struct {
	db *sql.DB
}

// NewMySQLManager opens a connection pool to the hosted database.
func NewMySQLManager(dsn string) (*MySQLManager, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &MySQLManager{db: db}, nil
}

// InitTables creates the tables the bot needs.
func (m *MySQLManager) InitTables() error {
	// Fortune draw history, one row per sender per day
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS fortune_logs (
			account_id BIGINT NOT NULL,
			day VARCHAR(10) NOT NULL,
			fortune VARCHAR(16) NOT NULL,
			drawn_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (account_id, day)
		)
	`)
	if err != nil {
		return fmt.Errorf("creating fortune_logs table: %w", err)
	}

	// Room counter snapshots, append-only; ranking diffs read the latest row
	_, err = m.db.Exec(`
		CREATE TABLE IF NOT EXISTS room_snapshots (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			list JSON NOT NULL,
			day VARCHAR(10) NOT NULL,
			hour INT NOT NULL,
			captured_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating room_snapshots table: %w", err)
	}

	// Per-room per-sender per-day message counters
	_, err = m.db.Exec(`
		CREATE TABLE IF NOT EXISTS ranking_counts (
			room_id BIGINT NOT NULL,
			account_id BIGINT NOT NULL,
			day VARCHAR(10) NOT NULL,
			count INT NOT NULL DEFAULT 0,
			PRIMARY KEY (room_id, account_id, day)
		)
	`)
	if err != nil {
		return fmt.Errorf("creating ranking_counts table: %w", err)
	}

	// Rooms opted in to the hourly time signal
	_, err = m.db.Exec(`
		CREATE TABLE IF NOT EXISTS time_report_rooms (
			room_id BIGINT PRIMARY KEY,
			added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating time_report_rooms table: %w", err)
	}

	return nil
}

// GetFortune returns the sender's draw for the day, or nil if they have not
// drawn yet.
func (m *MySQLManager) GetFortune(accountID int64, day string) (*FortuneLog, error) {
	entry := FortuneLog{AccountID: accountID, Day: day}
	err := m.db.QueryRow(
		"SELECT fortune, drawn_at FROM fortune_logs WHERE account_id = ? AND day = ?",
		accountID, day,
	).Scan(&entry.Fortune, &entry.DrawnAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// SaveFortune records a fortune draw. The primary key rejects a second draw
// on the same day.
func (m *MySQLManager) SaveFortune(accountID int64, day, fortune string) error {
	_, err := m.db.Exec(
		"INSERT INTO fortune_logs (account_id, day, fortune) VALUES (?, ?, ?)",
		accountID, day, fortune,
	)
	return err
}

// SaveSnapshot appends a new room counter snapshot.
func (m *MySQLManager) SaveSnapshot(snap *models.RoomSnapshot) error {
	list, err := json.Marshal(snap.Rooms)
	if err != nil {
		return fmt.Errorf("encoding snapshot list: %w", err)
	}
	_, err = m.db.Exec(
		"INSERT INTO room_snapshots (list, day, hour, captured_at) VALUES (?, ?, ?, ?)",
		list, snap.Day, snap.Hour, snap.CapturedAt,
	)
	return err
}

// LatestSnapshot returns the most recently inserted snapshot, or nil when no
// snapshot exists yet.
func (m *MySQLManager) LatestSnapshot() (*models.RoomSnapshot, error) {
	var (
		list []byte
		snap models.RoomSnapshot
	)
	err := m.db.QueryRow(
		"SELECT list, day, hour, captured_at FROM room_snapshots ORDER BY id DESC LIMIT 1",
	).Scan(&list, &snap.Day, &snap.Hour, &snap.CapturedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(list, &snap.Rooms); err != nil {
		return nil, fmt.Errorf("decoding snapshot list: %w", err)
	}
	return &snap, nil
}

// IncrementMessageCount bumps the daily counter for a sender in a room.
func (m *MySQLManager) IncrementMessageCount(roomID, accountID int64, day string) error {
	_, err := m.db.Exec(
		"INSERT INTO ranking_counts (room_id, account_id, day, count) VALUES (?, ?, ?, 1) ON DUPLICATE KEY UPDATE count = count + 1",
		roomID, accountID, day,
	)
	return err
}

// GetDailyRanking returns today's senders in a room sorted by message count
// descending.
func (m *MySQLManager) GetDailyRanking(roomID int64, day string) ([]models.RankingEntry, error) {
	rows, err := m.db.Query(
		"SELECT account_id, count FROM ranking_counts WHERE room_id = ? AND day = ? ORDER BY count DESC, account_id ASC",
		roomID, day,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.RankingEntry
	for rows.Next() {
		var e models.RankingEntry
		if err := rows.Scan(&e.AccountID, &e.Count); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddTimeReportRoom opts a room in to the hourly time signal. Returns false
// when the room was already opted in.
func (m *MySQLManager) AddTimeReportRoom(roomID int64) (bool, error) {
	res, err := m.db.Exec(
		"INSERT IGNORE INTO time_report_rooms (room_id) VALUES (?)",
		roomID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveTimeReportRoom opts a room out. Returns false when the room was not
// opted in.
func (m *MySQLManager) RemoveTimeReportRoom(roomID int64) (bool, error) {
	res, err := m.db.Exec("DELETE FROM time_report_rooms WHERE room_id = ?", roomID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListTimeReportRooms returns every room opted in to the time signal.
func (m *MySQLManager) ListTimeReportRooms() ([]int64, error) {
	rows, err := m.db.Query("SELECT room_id FROM time_report_rooms")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the connection pool.
func (m *MySQLManager) Close() error {
	return m.db.Close()
}
