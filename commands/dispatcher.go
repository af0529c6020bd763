// Package commands maps trimmed message bodies to bot commands. Routes are
// an explicit ordered list evaluated top to bottom; the first match wins and
// at most one command runs per inbound event.
package commands

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"chatwork-bot/db"
	"chatwork-bot/gemini"
	"chatwork-bot/models"
	"chatwork-bot/ranking"
)

// ChatAPI is the slice of the Chatwork client the handlers need.
type ChatAPI interface {
	SendReply(roomID int64, messageID string, accountID int64, body string) error
	DeleteMessage(roomID int64, messageID string) error
	GetMembers(roomID int64) ([]models.Member, error)
	GetRooms() ([]models.Room, error)
	GetRoom(roomID int64) (*models.Room, error)
	GetMemberCount(roomID int64) (int, error)
}

// Store is the slice of the hosted database the handlers need.
type Store interface {
	GetFortune(accountID int64, day string) (*db.FortuneLog, error)
	SaveFortune(accountID int64, day, fortune string) error
	GetDailyRanking(roomID int64, day string) ([]models.RankingEntry, error)
	AddTimeReportRoom(roomID int64) (bool, error)
	RemoveTimeReportRoom(roomID int64) (bool, error)
}

// Generator is the generative text API used by the /ai command.
type Generator interface {
	Generate(prompt string) (string, error)
}

var fortunes = []string{"大吉", "吉", "中吉", "小吉", "末吉", "凶", "大凶"}

var coinSides = []string{"表", "裏"}

const aiPromptPrefix = "あなたはトークルームのボットです。以下のメッセージに対して200字以下、markdown形式を使用しないで返答してください: "

const apologyMessage = "ごめん。処理中にエラーが発生したみたい(´・ω・｀)"

type route struct {
	name   string
	match  func(ev models.MessageEvent, body string) bool
	handle func(ev models.MessageEvent, body string) error
}

// Dispatcher routes inbound messages to command handlers.
type Dispatcher struct {
	api     ChatAPI
	store   Store
	engine  *ranking.Engine
	ai      Generator
	botID   int64
	randInt func(n int) int
	routes  []route
}

// NewDispatcher builds the dispatcher with the documented priority order:
// ping, delete, fixed keywords, then nothing.
func NewDispatcher(api ChatAPI, store Store, engine *ranking.Engine, ai Generator, botID int64) *Dispatcher {
	d := &Dispatcher{
		api:     api,
		store:   store,
		engine:  engine,
		ai:      ai,
		botID:   botID,
		randInt: rand.Intn,
	}
	d.routes = []route{
		{"test", matchExact("/test"), d.handleTest},
		{"delete", d.matchDelete, d.handleDelete},
		{"fortune", matchExact("おみくじ"), d.handleFortune},
		{"coin", matchExact("/coin"), d.handleCoin},
		{"whoami", matchExact("/whoami"), d.handleWhoami},
		{"roominfo", matchCommand("/roominfo"), d.handleRoomInfo},
		{"rmr", matchRegexp(`^/rmr\s+\d+$`), d.handleRoomRanking},
		{"topneo", matchAny("/top", "/topneo"), d.topHandler(ranking.MetricMessage, ranking.TopLimit)},
		{"topneohack", matchExact("/topneohack"), d.topHandler(ranking.MetricMessage, ranking.ExtendedTopLimit)},
		{"topfile", matchExact("/topfile"), d.topHandler(ranking.MetricFile, ranking.TopLimit)},
		{"snapshot", matchAny("/stat", "/saving"), d.handleSnapshot},
		{"ai", matchCommand("/ai"), d.handleAI},
		{"timereport-on", matchExact("/時報 OK"), d.handleTimeReportOn},
		{"timereport-off", matchExact("/時報 NO"), d.handleTimeReportOff},
	}
	return d
}

// Dispatch runs at most one command for the event. It reports whether a
// command matched; unmatched ordinary messages feed the daily counter
// instead, which is the caller's concern.
func (d *Dispatcher) Dispatch(ev models.MessageEvent) bool {
	body := normalize(ev.Body)
	if body == "" {
		return false
	}
	for _, r := range d.routes {
		if !r.match(ev, body) {
			continue
		}
		if err := r.handle(ev, body); err != nil {
			log.Error().Err(err).Str("command", r.name).Int64("room", ev.RoomID).Msg("command failed")
		}
		return true
	}
	return false
}

var toPattern = regexp.MustCompile(`\[To:\d+\]`)

// normalize strips the leading mention markup and surrounding whitespace so
// commands can be matched against the bare body.
func normalize(body string) string {
	return strings.TrimSpace(toPattern.ReplaceAllString(strings.TrimSpace(body), ""))
}

func matchExact(keyword string) func(models.MessageEvent, string) bool {
	return func(_ models.MessageEvent, body string) bool {
		return body == keyword
	}
}

func matchAny(keywords ...string) func(models.MessageEvent, string) bool {
	return func(_ models.MessageEvent, body string) bool {
		for _, k := range keywords {
			if body == k {
				return true
			}
		}
		return false
	}
}

// matchCommand matches the bare keyword or the keyword followed by an
// argument, without matching longer command names sharing the prefix.
func matchCommand(keyword string) func(models.MessageEvent, string) bool {
	return func(_ models.MessageEvent, body string) bool {
		return body == keyword || strings.HasPrefix(body, keyword+" ")
	}
}

func matchRegexp(pattern string) func(models.MessageEvent, string) bool {
	re := regexp.MustCompile(pattern)
	return func(_ models.MessageEvent, body string) bool {
		return re.MatchString(body)
	}
}

// matchDelete matches a reply to one of the bot's messages ending in the
// delete keyword. The space after the id keeps a longer account id sharing
// the same prefix from matching.
func (d *Dispatcher) matchDelete(ev models.MessageEvent, body string) bool {
	return strings.Contains(ev.Body, fmt.Sprintf("[rp aid=%d ", d.botID)) && strings.HasSuffix(body, "削除")
}

func (d *Dispatcher) reply(ev models.MessageEvent, body string) error {
	return d.api.SendReply(ev.RoomID, ev.MessageID, ev.SenderID, body)
}

func (d *Dispatcher) handleTest(ev models.MessageEvent, _ string) error {
	return d.reply(ev, "テスト成功です")
}

// handleDelete removes the referenced messages. The requester's admin role
// is verified before anything else happens.
func (d *Dispatcher) handleDelete(ev models.MessageEvent, _ string) error {
	members, err := d.api.GetMembers(ev.RoomID)
	if err != nil {
		d.reply(ev, apologyMessage)
		return fmt.Errorf("fetching members: %w", err)
	}

	requester := findMember(members, ev.SenderID)
	if requester == nil || requester.Role != models.RoleAdmin {
		return d.reply(ev, "このコマンドは管理者のみ実行できます。")
	}

	refs := ParseReferences(ev.Body)
	if len(refs) == 0 {
		return d.reply(ev, "削除対象のメッセージIDが見つかりませんでした。")
	}

	var deleted []string
	for _, ref := range refs {
		if err := d.api.DeleteMessage(ref.RoomID, ref.MessageID); err != nil {
			log.Error().Err(err).Str("message", ref.MessageID).Msg("deleting message failed")
			continue
		}
		deleted = append(deleted, ref.MessageID)
	}
	if len(deleted) == 0 {
		return d.reply(ev, "メッセージの削除に失敗しました。")
	}
	return d.reply(ev, fmt.Sprintf("メッセージID %s を削除しました。", strings.Join(deleted, ", ")))
}

// handleFortune draws today's fortune, at most once per sender per day.
func (d *Dispatcher) handleFortune(ev models.MessageEvent, _ string) error {
	day := ranking.DayKey(ev.Timestamp)

	drawn, err := d.store.GetFortune(ev.SenderID, day)
	if err != nil {
		d.reply(ev, "おみくじの履歴取得中にエラーが発生しました。")
		return fmt.Errorf("loading fortune history: %w", err)
	}
	if drawn != nil {
		return d.reply(ev, fmt.Sprintf("本日のおみくじは既に引きました。結果は「%s」でした。明日また引けます。", drawn.Fortune))
	}

	result := fortunes[d.randInt(len(fortunes))]
	if err := d.store.SaveFortune(ev.SenderID, day, result); err != nil {
		d.reply(ev, "おみくじの履歴保存中にエラーが発生しました。")
		return fmt.Errorf("saving fortune: %w", err)
	}
	return d.reply(ev, fmt.Sprintf("本日のおみくじの結果は「%s」です。", result))
}

func (d *Dispatcher) handleCoin(ev models.MessageEvent, _ string) error {
	side := coinSides[d.randInt(len(coinSides))]
	return d.reply(ev, fmt.Sprintf("コイントスの結果は「%s」です。", side))
}

func (d *Dispatcher) handleWhoami(ev models.MessageEvent, _ string) error {
	members, err := d.api.GetMembers(ev.RoomID)
	if err != nil {
		d.reply(ev, "メンバー情報の取得中にエラーが発生しました。")
		return fmt.Errorf("fetching members: %w", err)
	}
	sender := findMember(members, ev.SenderID)
	if sender == nil {
		return d.reply(ev, "送信者情報が見つかりませんでした。")
	}
	info := fmt.Sprintf("[info][title]送信者情報[/title]名前: %s\nアカウントID: %d\n権限: %s[/info]",
		sender.Name, sender.AccountID, sender.Role)
	return d.reply(ev, info)
}

// handleRoomInfo shows one room when an id argument is given, otherwise the
// full room list.
func (d *Dispatcher) handleRoomInfo(ev models.MessageEvent, body string) error {
	fields := strings.Fields(body)
	if len(fields) > 1 {
		roomID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return d.reply(ev, "ルームIDは数字で指定してください。")
		}
		room, err := d.api.GetRoom(roomID)
		if err != nil {
			d.reply(ev, "ごめん。ルーム情報の取得に失敗したみたい(´・ω・｀)")
			return fmt.Errorf("fetching room %d: %w", roomID, err)
		}
		memberCount, err := d.api.GetMemberCount(roomID)
		if err != nil {
			memberCount = 0
		}
		info := fmt.Sprintf("[info][title]%s[/title]メンバー数: %d\nメッセージ数: %d\nファイル数: %d\nタスク数: %d[/info]",
			room.Name, memberCount, room.MessageNum, room.FileNum, room.TaskNum)
		return d.reply(ev, info)
	}

	rooms, err := d.api.GetRooms()
	if err != nil {
		d.reply(ev, "ごめん。ルーム情報の取得に失敗したみたい(´・ω・｀)")
		return fmt.Errorf("fetching room list: %w", err)
	}
	var b strings.Builder
	b.WriteString("[info][title]参加中の全ルーム情報[/title]\n")
	for i, room := range rooms {
		fmt.Fprintf(&b, "%d. %s\n   ID: %d\n   メッセージ数: %d\n   ファイル数: %d\n   タスク数: %d\n",
			i+1, room.Name, room.RoomID, room.MessageNum, room.FileNum, room.TaskNum)
	}
	b.WriteString("[/info]")
	return d.reply(ev, b.String())
}

// handleRoomRanking answers who posted most in the target room today.
func (d *Dispatcher) handleRoomRanking(ev models.MessageEvent, body string) error {
	fields := strings.Fields(body)
	targetID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return d.reply(ev, "ルームIDは数字で指定してください。")
	}

	entries, err := d.store.GetDailyRanking(targetID, ranking.DayKey(ev.Timestamp))
	if err != nil {
		d.reply(ev, fmt.Sprintf("ランキングの取得に失敗しました。ルームID %d が正しいか確認してください。", targetID))
		return fmt.Errorf("loading daily ranking: %w", err)
	}
	if len(entries) == 0 {
		return d.reply(ev, "本日のランキングはまだありません。")
	}

	roomName := strconv.FormatInt(targetID, 10)
	if room, err := d.api.GetRoom(targetID); err == nil {
		roomName = room.Name
	}
	return d.reply(ev, ranking.FormatDailyRanking(roomName, entries))
}

// topHandler builds a leaderboard handler for one metric and size.
func (d *Dispatcher) topHandler(metric ranking.Metric, limit int) func(models.MessageEvent, string) error {
	return func(ev models.MessageEvent, _ string) error {
		diffs, snap, err := d.engine.Diff(metric)
		switch {
		case errors.Is(err, ranking.ErrNoSnapshot):
			return d.reply(ev, "統計データがまだありません。/stat で統計を開始してください。")
		case errors.Is(err, ranking.ErrNoGrowth):
			kind := "メッセージ"
			if metric == ranking.MetricFile {
				kind = "ファイル"
			}
			return d.reply(ev, fmt.Sprintf("前回の統計からの%s増加数が0のため、ランキングを生成できませんでした。", kind))
		case err != nil:
			d.reply(ev, "ランキングデータの取得に失敗しました。")
			return err
		}
		return d.reply(ev, ranking.FormatLeaderboard(diffs, snap, metric, limit))
	}
}

func (d *Dispatcher) handleSnapshot(ev models.MessageEvent, _ string) error {
	if _, err := d.engine.TakeSnapshot(ev.Timestamp); err != nil {
		d.reply(ev, "統計データの保存中にエラーが発生しました。")
		return err
	}
	return d.reply(ev, "統計を開始しました！")
}

// handleAI relays the prompt to the generative API and sends the sanitized
// response back.
func (d *Dispatcher) handleAI(ev models.MessageEvent, body string) error {
	query := strings.TrimSpace(strings.TrimPrefix(body, "/ai"))
	if query == "" {
		return d.reply(ev, "/ai の後に質問を入力してください。")
	}
	answer, err := d.ai.Generate(aiPromptPrefix + query)
	if err != nil {
		d.reply(ev, "エラーが発生しました。")
		return fmt.Errorf("generating response: %w", err)
	}
	return d.reply(ev, gemini.Sanitize(answer))
}

func (d *Dispatcher) handleTimeReportOn(ev models.MessageEvent, _ string) error {
	added, err := d.store.AddTimeReportRoom(ev.RoomID)
	if err != nil {
		d.reply(ev, apologyMessage)
		return fmt.Errorf("enabling time report: %w", err)
	}
	if !added {
		return d.reply(ev, "この部屋はすでに時報設定がOKになっています。")
	}
	return d.reply(ev, "この部屋で時報を開始します。")
}

func (d *Dispatcher) handleTimeReportOff(ev models.MessageEvent, _ string) error {
	removed, err := d.store.RemoveTimeReportRoom(ev.RoomID)
	if err != nil {
		d.reply(ev, apologyMessage)
		return fmt.Errorf("disabling time report: %w", err)
	}
	if !removed {
		return d.reply(ev, "この部屋はすでに時報設定がNOになっています。")
	}
	return d.reply(ev, "この部屋での時報を停止します。")
}

func findMember(members []models.Member, accountID int64) *models.Member {
	for i := range members {
		if members[i].AccountID == accountID {
			return &members[i]
		}
	}
	return nil
}
