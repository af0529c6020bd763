// Package ranking implements the room statistics engine: append-only
// snapshots of per-room counters and leaderboards computed as the diff
// between the latest snapshot and the live counters.
package ranking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"chatwork-bot/models"
)

// Metric selects which room counter a leaderboard ranks.
type Metric string

const (
	MetricMessage Metric = "message"
	MetricFile    Metric = "file"
)

// Leaderboard sizes for the normal and extended variants.
const (
	TopLimit         = 8
	ExtendedTopLimit = 30
)

var (
	// ErrNoSnapshot is returned when no baseline snapshot exists yet.
	ErrNoSnapshot = errors.New("no snapshot recorded yet")
	// ErrNoGrowth is returned when the top diff is zero, so a leaderboard
	// would be an all-zero table.
	ErrNoGrowth = errors.New("no growth since the last snapshot")
)

// jst is the timezone snapshots are tagged in.
var jst = time.FixedZone("JST", 9*60*60)

// RoomLister fetches the live room list from the Chatwork API.
type RoomLister interface {
	GetRooms() ([]models.Room, error)
}

// SnapshotStore persists snapshots. Only the most recent one is ever read.
type SnapshotStore interface {
	SaveSnapshot(snap *models.RoomSnapshot) error
	LatestSnapshot() (*models.RoomSnapshot, error)
}

// RoomDiff is one leaderboard row: a room and its counter growth since the
// last snapshot.
type RoomDiff struct {
	RoomID int64
	Name   string
	Diff   int
}

// Engine computes room growth leaderboards.
type Engine struct {
	rooms    RoomLister
	store    SnapshotStore
	excluded map[int64]struct{}
}

// NewEngine creates a ranking engine. Rooms in excludedRoomIDs never appear
// in snapshots or leaderboards.
func NewEngine(rooms RoomLister, store SnapshotStore, excludedRoomIDs []int64) *Engine {
	excluded := make(map[int64]struct{}, len(excludedRoomIDs))
	for _, id := range excludedRoomIDs {
		excluded[id] = struct{}{}
	}
	return &Engine{rooms: rooms, store: store, excluded: excluded}
}

// TakeSnapshot fetches the live room list and appends it as a new baseline
// tagged with the capture day and hour.
func (e *Engine) TakeSnapshot(now time.Time) (*models.RoomSnapshot, error) {
	rooms, err := e.rooms.GetRooms()
	if err != nil {
		return nil, fmt.Errorf("fetching room list: %w", err)
	}

	t := now.In(jst)
	snap := &models.RoomSnapshot{
		Rooms:      e.filter(rooms),
		Day:        t.Format("2006-01-02"),
		Hour:       t.Hour(),
		CapturedAt: now,
	}
	if err := e.store.SaveSnapshot(snap); err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}
	return snap, nil
}

// Diff computes the growth of every live room against the latest snapshot,
// sorted descending. Rooms absent from the snapshot are skipped; ties keep
// the API's original order.
func (e *Engine) Diff(metric Metric) ([]RoomDiff, *models.RoomSnapshot, error) {
	snap, err := e.store.LatestSnapshot()
	if err != nil {
		return nil, nil, fmt.Errorf("loading snapshot: %w", err)
	}
	if snap == nil {
		return nil, nil, ErrNoSnapshot
	}

	live, err := e.rooms.GetRooms()
	if err != nil {
		return nil, nil, fmt.Errorf("fetching room list: %w", err)
	}

	baseline := make(map[int64]models.Room, len(snap.Rooms))
	for _, room := range snap.Rooms {
		baseline[room.RoomID] = room
	}

	var diffs []RoomDiff
	for _, room := range e.filter(live) {
		base, ok := baseline[room.RoomID]
		if !ok {
			continue
		}
		diffs = append(diffs, RoomDiff{
			RoomID: room.RoomID,
			Name:   room.Name,
			Diff:   metricValue(room, metric) - metricValue(base, metric),
		})
	}

	sort.SliceStable(diffs, func(i, j int) bool {
		return diffs[i].Diff > diffs[j].Diff
	})

	if len(diffs) == 0 || diffs[0].Diff == 0 {
		return nil, snap, ErrNoGrowth
	}
	return diffs, snap, nil
}

func (e *Engine) filter(rooms []models.Room) []models.Room {
	kept := make([]models.Room, 0, len(rooms))
	for _, room := range rooms {
		if _, skip := e.excluded[room.RoomID]; skip {
			continue
		}
		kept = append(kept, room)
	}
	return kept
}

func metricValue(room models.Room, metric Metric) int {
	if metric == MetricFile {
		return room.FileNum
	}
	return room.MessageNum
}

// FormatLeaderboard renders the top entries as a Chatwork info block with a
// provenance footer naming the snapshot's capture day and hour.
func FormatLeaderboard(diffs []RoomDiff, snap *models.RoomSnapshot, metric Metric, limit int) string {
	title, unit := "メッセージ数ランキング", "コメ"
	if metric == MetricFile {
		title, unit = "ファイル数ランキング", "個"
	}
	if len(diffs) > limit {
		diffs = diffs[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[info][title]%s[/title]\n", title)
	for i, d := range diffs {
		fmt.Fprintf(&b, "%d位 %s (ID: %d) - %d%s\n", i+1, d.Name, d.RoomID, d.Diff, unit)
	}
	fmt.Fprintf(&b, "[hr]統計開始: %s、%d時[/info]", snap.Day, snap.Hour)
	return b.String()
}

// FormatDailyRanking renders today's per-sender comment counts for a room
// with a trailing total.
func FormatDailyRanking(roomName string, entries []models.RankingEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[info][title]%sの本日のコメント数ランキング[/title]\n", roomName)
	total := 0
	for i, e := range entries {
		fmt.Fprintf(&b, "%d位 [piconname:%d] - %d コメント\n", i+1, e.AccountID, e.Count)
		total += e.Count
	}
	fmt.Fprintf(&b, "[hr]合計コメント数: %d 件[/info]", total)
	return b.String()
}

// DayKey returns the ranking day key for a point in time.
func DayKey(t time.Time) string {
	return t.In(jst).Format("2006-01-02")
}
