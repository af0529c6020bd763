package commands

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatwork-bot/db"
	"chatwork-bot/models"
	"chatwork-bot/ranking"
)

type fakeChatAPI struct {
	members     []models.Member
	membersErr  error
	rooms       []models.Room
	room        *models.Room
	roomErr     error
	memberCount int

	sent    []string
	replies []string
	deleted []string
}

func (f *fakeChatAPI) SendMessage(roomID int64, body string) error {
	f.sent = append(f.sent, body)
	return nil
}

func (f *fakeChatAPI) SendReply(roomID int64, messageID string, accountID int64, body string) error {
	f.replies = append(f.replies, body)
	return nil
}

func (f *fakeChatAPI) DeleteMessage(roomID int64, messageID string) error {
	f.deleted = append(f.deleted, fmt.Sprintf("%d/%s", roomID, messageID))
	return nil
}

func (f *fakeChatAPI) GetMembers(roomID int64) ([]models.Member, error) {
	return f.members, f.membersErr
}

func (f *fakeChatAPI) GetRooms() ([]models.Room, error) { return f.rooms, f.roomErr }

func (f *fakeChatAPI) GetRoom(roomID int64) (*models.Room, error) {
	if f.room == nil {
		return nil, errors.New("no such room")
	}
	return f.room, nil
}

func (f *fakeChatAPI) GetMemberCount(roomID int64) (int, error) { return f.memberCount, nil }

type fakeStore struct {
	fortunes    map[string]string
	fortuneErr  error
	ranking     []models.RankingEntry
	rankingErr  error
	reportRooms map[int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		fortunes:    make(map[string]string),
		reportRooms: make(map[int64]bool),
	}
}

func fortuneKey(accountID int64, day string) string {
	return fmt.Sprintf("%d/%s", accountID, day)
}

func (f *fakeStore) GetFortune(accountID int64, day string) (*db.FortuneLog, error) {
	if f.fortuneErr != nil {
		return nil, f.fortuneErr
	}
	fortune, ok := f.fortunes[fortuneKey(accountID, day)]
	if !ok {
		return nil, nil
	}
	return &db.FortuneLog{AccountID: accountID, Day: day, Fortune: fortune}, nil
}

func (f *fakeStore) SaveFortune(accountID int64, day, fortune string) error {
	f.fortunes[fortuneKey(accountID, day)] = fortune
	return nil
}

func (f *fakeStore) GetDailyRanking(roomID int64, day string) ([]models.RankingEntry, error) {
	return f.ranking, f.rankingErr
}

func (f *fakeStore) AddTimeReportRoom(roomID int64) (bool, error) {
	if f.reportRooms[roomID] {
		return false, nil
	}
	f.reportRooms[roomID] = true
	return true, nil
}

func (f *fakeStore) RemoveTimeReportRoom(roomID int64) (bool, error) {
	if !f.reportRooms[roomID] {
		return false, nil
	}
	delete(f.reportRooms, roomID)
	return true, nil
}

type fakeLister struct{ rooms []models.Room }

func (f *fakeLister) GetRooms() ([]models.Room, error) { return f.rooms, nil }

type fakeSnapStore struct{ snap *models.RoomSnapshot }

func (f *fakeSnapStore) SaveSnapshot(snap *models.RoomSnapshot) error {
	f.snap = snap
	return nil
}

func (f *fakeSnapStore) LatestSnapshot() (*models.RoomSnapshot, error) { return f.snap, nil }

type fakeGenerator struct {
	answer string
	err    error
	prompt string
}

func (f *fakeGenerator) Generate(prompt string) (string, error) {
	f.prompt = prompt
	return f.answer, f.err
}

const botID = int64(999)

func newTestDispatcher(api *fakeChatAPI, store *fakeStore) *Dispatcher {
	engine := ranking.NewEngine(&fakeLister{}, &fakeSnapStore{}, nil)
	d := NewDispatcher(api, store, engine, &fakeGenerator{answer: "ok"}, botID)
	d.randInt = func(n int) int { return 0 }
	return d
}

func event(body string) models.MessageEvent {
	return models.MessageEvent{
		SenderID:  100,
		RoomID:    12345,
		MessageID: "555",
		Body:      body,
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatch_Test(t *testing.T) {
	api := &fakeChatAPI{}
	d := newTestDispatcher(api, newFakeStore())

	assert.True(t, d.Dispatch(event("/test")))
	require.Len(t, api.replies, 1)
	assert.Equal(t, "テスト成功です", api.replies[0])
}

func TestDispatch_MentionPrefixStripped(t *testing.T) {
	api := &fakeChatAPI{}
	d := newTestDispatcher(api, newFakeStore())

	assert.True(t, d.Dispatch(event("[To:999] /test")))
	require.Len(t, api.replies, 1)
	assert.Equal(t, "テスト成功です", api.replies[0])
}

func TestDispatch_Fallback(t *testing.T) {
	api := &fakeChatAPI{}
	d := newTestDispatcher(api, newFakeStore())

	assert.False(t, d.Dispatch(event("おはようございます")))
	assert.Empty(t, api.replies)
}

func TestDispatch_Delete_AdminOnly(t *testing.T) {
	api := &fakeChatAPI{
		members: []models.Member{{AccountID: 100, Name: "A", Role: models.RoleMember}},
	}
	d := newTestDispatcher(api, newFakeStore())

	body := fmt.Sprintf("[rp aid=%d to=12345-111][pname:%d]さん\n削除", botID, botID)
	assert.True(t, d.Dispatch(event(body)))
	assert.Empty(t, api.deleted)
	require.Len(t, api.replies, 1)
	assert.Equal(t, "このコマンドは管理者のみ実行できます。", api.replies[0])
}

func TestDispatch_Delete_Admin(t *testing.T) {
	api := &fakeChatAPI{
		members: []models.Member{{AccountID: 100, Name: "A", Role: models.RoleAdmin}},
	}
	d := newTestDispatcher(api, newFakeStore())

	body := fmt.Sprintf("[rp aid=%d to=12345-111][pname:%d]さん\n削除", botID, botID)
	assert.True(t, d.Dispatch(event(body)))
	require.Equal(t, []string{"12345/111"}, api.deleted)
	require.Len(t, api.replies, 1)
	assert.Contains(t, api.replies[0], "削除しました")
}

func TestDispatch_Delete_RequiresBotReply(t *testing.T) {
	api := &fakeChatAPI{
		members: []models.Member{{AccountID: 100, Name: "A", Role: models.RoleAdmin}},
	}
	d := newTestDispatcher(api, newFakeStore())

	// Reply to someone other than the bot must not trigger deletion.
	assert.False(t, d.Dispatch(event("[rp aid=123 to=12345-111]削除")))
	assert.Empty(t, api.deleted)
}

func TestDispatch_Delete_BotIDIsNotAPrefixMatch(t *testing.T) {
	api := &fakeChatAPI{
		members: []models.Member{{AccountID: 100, Name: "A", Role: models.RoleAdmin}},
	}
	d := newTestDispatcher(api, newFakeStore())

	// Account 9991 shares the bot id 999 as a prefix.
	assert.False(t, d.Dispatch(event(fmt.Sprintf("[rp aid=%d1 to=12345-111]削除", botID))))
	assert.Empty(t, api.deleted)
}

func TestDispatch_Fortune_OncePerDay(t *testing.T) {
	api := &fakeChatAPI{}
	store := newFakeStore()
	d := newTestDispatcher(api, store)

	assert.True(t, d.Dispatch(event("おみくじ")))
	require.Len(t, api.replies, 1)
	assert.Equal(t, "本日のおみくじの結果は「大吉」です。", api.replies[0])

	assert.True(t, d.Dispatch(event("おみくじ")))
	require.Len(t, api.replies, 2)
	assert.Equal(t, "本日のおみくじは既に引きました。結果は「大吉」でした。明日また引けます。", api.replies[1])
}

func TestDispatch_Coin(t *testing.T) {
	api := &fakeChatAPI{}
	d := newTestDispatcher(api, newFakeStore())

	assert.True(t, d.Dispatch(event("/coin")))
	require.Len(t, api.replies, 1)
	assert.Equal(t, "コイントスの結果は「表」です。", api.replies[0])
}

func TestDispatch_Whoami(t *testing.T) {
	api := &fakeChatAPI{
		members: []models.Member{{AccountID: 100, Name: "テスト太郎", Role: models.RoleAdmin}},
	}
	d := newTestDispatcher(api, newFakeStore())

	assert.True(t, d.Dispatch(event("/whoami")))
	require.Len(t, api.replies, 1)
	assert.Contains(t, api.replies[0], "テスト太郎")
	assert.Contains(t, api.replies[0], "アカウントID: 100")
	assert.Contains(t, api.replies[0], models.RoleAdmin)
}

func TestDispatch_Whoami_NotFound(t *testing.T) {
	api := &fakeChatAPI{members: []models.Member{{AccountID: 7}}}
	d := newTestDispatcher(api, newFakeStore())

	assert.True(t, d.Dispatch(event("/whoami")))
	require.Len(t, api.replies, 1)
	assert.Equal(t, "送信者情報が見つかりませんでした。", api.replies[0])
}

func TestDispatch_RoomInfo_SingleRoom(t *testing.T) {
	api := &fakeChatAPI{
		room:        &models.Room{RoomID: 42, Name: "開発部屋", MessageNum: 10, FileNum: 2, TaskNum: 1},
		memberCount: 5,
	}
	d := newTestDispatcher(api, newFakeStore())

	assert.True(t, d.Dispatch(event("/roominfo 42")))
	require.Len(t, api.replies, 1)
	assert.Contains(t, api.replies[0], "開発部屋")
	assert.Contains(t, api.replies[0], "メンバー数: 5")
}

func TestDispatch_RoomInfo_List(t *testing.T) {
	api := &fakeChatAPI{
		rooms: []models.Room{
			{RoomID: 1, Name: "A"},
			{RoomID: 2, Name: "B"},
		},
	}
	d := newTestDispatcher(api, newFakeStore())

	assert.True(t, d.Dispatch(event("/roominfo")))
	require.Len(t, api.replies, 1)
	assert.Contains(t, api.replies[0], "参加中の全ルーム情報")
	assert.Contains(t, api.replies[0], "1. A")
	assert.Contains(t, api.replies[0], "2. B")
}

func TestDispatch_RoomRanking(t *testing.T) {
	api := &fakeChatAPI{room: &models.Room{RoomID: 42, Name: "雑談"}}
	store := newFakeStore()
	store.ranking = []models.RankingEntry{
		{AccountID: 1, Count: 12},
		{AccountID: 2, Count: 3},
	}
	d := newTestDispatcher(api, store)

	assert.True(t, d.Dispatch(event("/rmr 42")))
	require.Len(t, api.replies, 1)
	assert.Contains(t, api.replies[0], "雑談の本日のコメント数ランキング")
	assert.Contains(t, api.replies[0], "合計コメント数: 15 件")
}

func TestDispatch_RoomRanking_Empty(t *testing.T) {
	api := &fakeChatAPI{}
	d := newTestDispatcher(api, newFakeStore())

	assert.True(t, d.Dispatch(event("/rmr 42")))
	require.Len(t, api.replies, 1)
	assert.Equal(t, "本日のランキングはまだありません。", api.replies[0])
}

func TestDispatch_Top_NoSnapshot(t *testing.T) {
	api := &fakeChatAPI{}
	d := newTestDispatcher(api, newFakeStore())

	assert.True(t, d.Dispatch(event("/topneo")))
	require.Len(t, api.replies, 1)
	assert.Equal(t, "統計データがまだありません。/stat で統計を開始してください。", api.replies[0])
}

func TestDispatch_Snapshot_ThenTop(t *testing.T) {
	api := &fakeChatAPI{}
	lister := &fakeLister{rooms: []models.Room{{RoomID: 1, Name: "A", MessageNum: 10}}}
	engine := ranking.NewEngine(lister, &fakeSnapStore{}, nil)
	d := NewDispatcher(api, newFakeStore(), engine, &fakeGenerator{}, botID)

	assert.True(t, d.Dispatch(event("/stat")))
	require.Len(t, api.replies, 1)
	assert.Equal(t, "統計を開始しました！", api.replies[0])

	lister.rooms[0].MessageNum = 25
	assert.True(t, d.Dispatch(event("/topneo")))
	require.Len(t, api.replies, 2)
	assert.Contains(t, api.replies[1], "1位 A (ID: 1) - 15コメ")
}

func TestDispatch_Top_ZeroGrowth(t *testing.T) {
	api := &fakeChatAPI{}
	lister := &fakeLister{rooms: []models.Room{{RoomID: 1, Name: "A", MessageNum: 10}}}
	engine := ranking.NewEngine(lister, &fakeSnapStore{}, nil)
	d := NewDispatcher(api, newFakeStore(), engine, &fakeGenerator{}, botID)

	assert.True(t, d.Dispatch(event("/saving")))
	assert.True(t, d.Dispatch(event("/top")))
	require.Len(t, api.replies, 2)
	assert.Equal(t, "前回の統計からのメッセージ増加数が0のため、ランキングを生成できませんでした。", api.replies[1])
}

func TestDispatch_AI(t *testing.T) {
	api := &fakeChatAPI{}
	gen := &fakeGenerator{answer: "**こんにちは**"}
	engine := ranking.NewEngine(&fakeLister{}, &fakeSnapStore{}, nil)
	d := NewDispatcher(api, newFakeStore(), engine, gen, botID)

	assert.True(t, d.Dispatch(event("/ai 今日の天気は？")))
	assert.Contains(t, gen.prompt, "今日の天気は？")
	require.Len(t, api.replies, 1)
	assert.Equal(t, "こんにちは", api.replies[0])
}

func TestDispatch_AI_EmptyQuery(t *testing.T) {
	api := &fakeChatAPI{}
	d := newTestDispatcher(api, newFakeStore())

	assert.True(t, d.Dispatch(event("/ai")))
	require.Len(t, api.replies, 1)
	assert.Equal(t, "/ai の後に質問を入力してください。", api.replies[0])
}

func TestDispatch_TimeReport_Toggle(t *testing.T) {
	api := &fakeChatAPI{}
	d := newTestDispatcher(api, newFakeStore())

	assert.True(t, d.Dispatch(event("/時報 OK")))
	assert.True(t, d.Dispatch(event("/時報 OK")))
	assert.True(t, d.Dispatch(event("/時報 NO")))
	assert.True(t, d.Dispatch(event("/時報 NO")))

	require.Len(t, api.replies, 4)
	assert.Equal(t, "この部屋で時報を開始します。", api.replies[0])
	assert.Equal(t, "この部屋はすでに時報設定がOKになっています。", api.replies[1])
	assert.Equal(t, "この部屋での時報を停止します。", api.replies[2])
	assert.Equal(t, "この部屋はすでに時報設定がNOになっています。", api.replies[3])
}

func TestDispatch_PriorityOrder(t *testing.T) {
	// A reply to the bot ending in the delete keyword must hit the delete
	// route even when the body also contains another keyword.
	api := &fakeChatAPI{
		members: []models.Member{{AccountID: 100, Role: models.RoleAdmin}},
	}
	d := newTestDispatcher(api, newFakeStore())

	body := fmt.Sprintf("[rp aid=%d to=12345-111]おみくじ 削除", botID)
	assert.True(t, d.Dispatch(event(body)))
	assert.Len(t, api.deleted, 1)
}
