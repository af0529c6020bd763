// Package moderation implements the sliding-window spam moderator: repeated
// posts and emoticon floods inside a trailing window downgrade the sender to
// a read-only role through the Chatwork API.
package moderation

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chatwork-bot/models"
)

const (
	// Window is the trailing span over which repeated posts are counted.
	Window = 60 * time.Second
	// SweepInterval is how often aged-out history entries are purged.
	SweepInterval = 10 * time.Second

	// EmojiLimit is the emoticon count that triggers a downgrade.
	EmojiLimit = 15
	// RepeatLimit is the duplicate count that triggers a downgrade.
	RepeatLimit = 15
	// WarnLimit is the duplicate count that triggers a warning reply.
	WarnLimit = 10
)

const (
	warnMessage      = "同じ内容の連続投稿が続いています。これ以上続くと権限を閲覧のみに変更します。"
	downgradeMessage = "スパム投稿を検知したため、権限を閲覧のみに変更しました。"
)

// ChatAPI is the slice of the Chatwork client the moderator needs.
type ChatAPI interface {
	GetMembers(roomID int64) ([]models.Member, error)
	UpdateMemberRoles(roomID int64, adminIDs, memberIDs, readonlyIDs []int64) error
	SendReply(roomID int64, messageID string, accountID int64, body string) error
}

// Action is the moderation outcome for one inbound message.
type Action int

const (
	ActionNone Action = iota
	ActionWarned
	ActionDowngraded
)

type entry struct {
	body string
	ts   time.Time
}

// Moderator keeps a per-sender history of recent message bodies and decides
// whether an inbound message triggers a warning or a permission downgrade.
// The history is owned by the instance, not shared across processes.
type Moderator struct {
	api        ChatAPI
	operatorID int64
	window     time.Duration

	mu      sync.Mutex
	history map[int64][]entry

	isRunning bool
	stopChan  chan struct{}
}

// NewModerator creates a moderator with the default 60s window. operatorID
// is the bot operator's account, exempt regardless of room role.
func NewModerator(api ChatAPI, operatorID int64) *Moderator {
	return &Moderator{
		api:        api,
		operatorID: operatorID,
		window:     Window,
		history:    make(map[int64][]entry),
		stopChan:   make(chan struct{}),
	}
}

// Check records the message in the sender's history and applies the decision
// policy. Room admins and the operator are exempt; the role check happens
// before any action. External API failures make it a no-op: moderation is
// best-effort.
func (m *Moderator) Check(ev models.MessageEvent) Action {
	if m.operatorID != 0 && ev.SenderID == m.operatorID {
		return ActionNone
	}

	repeat := m.record(ev)
	emoji := CountEmojis(ev.Body)

	if emoji < EmojiLimit && repeat < WarnLimit {
		return ActionNone
	}

	members, err := m.api.GetMembers(ev.RoomID)
	if err != nil {
		log.Error().Err(err).Int64("room", ev.RoomID).Msg("moderation: fetching members failed")
		return ActionNone
	}

	sender := findMember(members, ev.SenderID)
	if sender == nil || sender.Role == models.RoleAdmin {
		// Exempt senders keep no history; otherwise their entries would
		// sit in the window until the sweep reclaims them.
		m.clearHistory(ev.SenderID)
		return ActionNone
	}

	switch {
	case emoji >= EmojiLimit, repeat >= RepeatLimit:
		m.downgrade(ev, members)
		return ActionDowngraded
	default:
		if err := m.api.SendReply(ev.RoomID, ev.MessageID, ev.SenderID, warnMessage); err != nil {
			log.Error().Err(err).Int64("room", ev.RoomID).Msg("moderation: sending warning failed")
		}
		return ActionWarned
	}
}

func (m *Moderator) clearHistory(senderID int64) {
	m.mu.Lock()
	delete(m.history, senderID)
	m.mu.Unlock()
}

// record appends the message to the sender's history, drops entries older
// than the window and returns how many retained entries share the same body.
func (m *Moderator) record(ev models.MessageEvent) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := ev.Timestamp.Add(-m.window)
	kept := make([]entry, 0, len(m.history[ev.SenderID])+1)
	for _, e := range m.history[ev.SenderID] {
		if e.ts.After(cutoff) {
			kept = append(kept, e)
		}
	}
	kept = append(kept, entry{body: ev.Body, ts: ev.Timestamp})
	m.history[ev.SenderID] = kept

	repeat := 0
	for _, e := range kept {
		if e.body == ev.Body {
			repeat++
		}
	}
	return repeat
}

// downgrade moves the sender into the readonly set, pushes the recomputed
// role sets back and posts a confirmation. The sender's history is cleared so
// one burst causes exactly one role change.
func (m *Moderator) downgrade(ev models.MessageEvent, members []models.Member) {
	var adminIDs, memberIDs, readonlyIDs []int64
	for _, member := range members {
		switch {
		case member.Role == models.RoleAdmin:
			adminIDs = append(adminIDs, member.AccountID)
		case member.AccountID == ev.SenderID || member.Role == models.RoleReadonly:
			readonlyIDs = append(readonlyIDs, member.AccountID)
		default:
			memberIDs = append(memberIDs, member.AccountID)
		}
	}

	m.clearHistory(ev.SenderID)

	if err := m.api.UpdateMemberRoles(ev.RoomID, adminIDs, memberIDs, readonlyIDs); err != nil {
		log.Error().Err(err).Int64("room", ev.RoomID).Int64("sender", ev.SenderID).Msg("moderation: role downgrade failed")
		return
	}

	log.Info().Int64("room", ev.RoomID).Int64("sender", ev.SenderID).Msg("moderation: sender downgraded to readonly")

	if err := m.api.SendReply(ev.RoomID, ev.MessageID, ev.SenderID, downgradeMessage); err != nil {
		log.Error().Err(err).Int64("room", ev.RoomID).Msg("moderation: sending downgrade notice failed")
	}
}

// Start runs the periodic sweep in the background.
func (m *Moderator) Start() {
	if m.isRunning {
		return
	}
	m.isRunning = true

	go func() {
		ticker := time.NewTicker(SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.SweepAt(time.Now())
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Stop halts the background sweep.
func (m *Moderator) Stop() {
	if !m.isRunning {
		return
	}
	m.stopChan <- struct{}{}
	m.isRunning = false
}

// SweepAt purges entries older than the window. Each sender's slice is
// replaced with a filtered copy rather than mutated in place, so in-flight
// appends never race with iteration.
func (m *Moderator) SweepAt(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-m.window)
	for sender, entries := range m.history {
		kept := make([]entry, 0, len(entries))
		for _, e := range entries {
			if e.ts.After(cutoff) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(m.history, sender)
		} else {
			m.history[sender] = kept
		}
	}
}

// HistorySize returns the number of retained entries for a sender.
func (m *Moderator) HistorySize(senderID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history[senderID])
}

func findMember(members []models.Member, accountID int64) *models.Member {
	for i := range members {
		if members[i].AccountID == accountID {
			return &members[i]
		}
	}
	return nil
}
