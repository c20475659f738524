package internal_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/koopa0/arena-server/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordedEvent 一筆被記錄的出站事件
type recordedEvent struct {
	Room   string
	Except string
	Target string
	Event  string
	Data   any
}

// recorder 記錄廣播事件的假 Broadcaster
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Broadcast(room, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Room: room, Event: event, Data: data})
}

func (r *recorder) BroadcastExcept(room, exceptID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Room: room, Except: exceptID, Event: event, Data: data})
}

func (r *recorder) SendTo(transportID, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Target: transportID, Event: event, Data: data})
}

// byEvent 取出某事件的所有記錄
func (r *recorder) byEvent(event string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []recordedEvent
	for _, e := range r.events {
		if e.Event == event {
			result = append(result, e)
		}
	}
	return result
}

func (r *recorder) count(event string) int {
	return len(r.byEvent(event))
}

// stubHitter 固定傷害的測試用 Hitter
type stubHitter struct {
	damage int
}

func (s stubHitter) Kind() string { return "stub" }
func (s stubHitter) Damage() int  { return s.damage }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBounds() internal.Bounds {
	return internal.DefaultConfig().Arena
}

func testTuning() internal.Tuning {
	return internal.DefaultConfig().Game
}

// newTestRoom 建立測試房間與事件記錄器
func newTestRoom(settings internal.RoomSettings) (*internal.Room, *recorder) {
	rec := &recorder{}
	room := internal.NewRoom(settings, testBounds(), testTuning(), rec, testLogger())
	return room, rec
}

func addTestPlayer(t *testing.T, room *internal.Room, name string) *internal.Player {
	t.Helper()
	p := internal.NewPlayer(name, room.Name(), "transport_"+name, "0bed07", room.Bounds(), testTuning().MaxHP)
	require.NoError(t, room.AddPlayer(p))
	return p
}

// TestNewRoom 測試創建新房間
func TestNewRoom(t *testing.T) {
	tests := []struct {
		name     string
		settings internal.RoomSettings
		validate func(t *testing.T, room *internal.Room)
	}{
		{
			name: "room with quota",
			settings: internal.RoomSettings{
				Name:            "arena",
				Admin:           "gonzalo",
				QuantityPlayers: 2,
				Time:            internal.Duration(5 * time.Minute),
			},
			validate: func(t *testing.T, room *internal.Room) {
				assert.Equal(t, "arena", room.Name())
				assert.Equal(t, internal.StateOpen, room.State())
				assert.True(t, room.IsEmpty())
				// 未指定寬高 → 使用預設邊界
				assert.Equal(t, 800.0, room.Bounds().Width)
				assert.Equal(t, 600.0, room.Bounds().Height)
			},
		},
		{
			name: "room with custom width",
			settings: internal.RoomSettings{
				Name:  "wide",
				Admin: "gonzalo",
				Time:  internal.Duration(320 * time.Second),
				Width: 1000,
			},
			validate: func(t *testing.T, room *internal.Room) {
				assert.Equal(t, 1000.0, room.Bounds().Width)
				assert.Equal(t, 600.0, room.Bounds().Height)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, _ := newTestRoom(tt.settings)
			require.NotNil(t, room)
			tt.validate(t, room)
		})
	}
}

// TestRoom_AddPlayer 測試加入玩家
func TestRoom_AddPlayer(t *testing.T) {
	t.Run("join open room", func(t *testing.T) {
		room, _ := newTestRoom(internal.RoomSettings{
			Name: "arena", Admin: "gonzalo", Time: internal.Duration(time.Minute),
		})

		addTestPlayer(t, room, "alice")
		assert.False(t, room.IsEmpty())

		snapshot, ok := room.PlayerSnapshot("alice")
		require.True(t, ok)
		assert.Equal(t, 100, snapshot.HP)
		assert.Equal(t, 0, snapshot.Score)
		assert.False(t, snapshot.Dead)
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		room, _ := newTestRoom(internal.RoomSettings{
			Name: "arena", Admin: "gonzalo", Time: internal.Duration(time.Minute),
		})
		addTestPlayer(t, room, "alice")

		dup := internal.NewPlayer("alice", "arena", "transport_2", "200ee8", room.Bounds(), 100)
		err := room.AddPlayer(dup)
		assert.ErrorIs(t, err, internal.ErrPlayerExists)
	})

	t.Run("join rejected once running", func(t *testing.T) {
		room, _ := newTestRoom(internal.RoomSettings{
			Name: "arena", Admin: "gonzalo", Time: internal.Duration(time.Minute),
		})
		addTestPlayer(t, room, "alice")
		require.NoError(t, room.InitGame(nil))
		defer room.StopTimers()

		late := internal.NewPlayer("bob", "arena", "transport_bob", "200ee8", room.Bounds(), 100)
		err := room.AddPlayer(late)
		assert.ErrorIs(t, err, internal.ErrGameRunning)
	})

	t.Run("quota met transitions to ready", func(t *testing.T) {
		room, _ := newTestRoom(internal.RoomSettings{
			Name: "arena", Admin: "gonzalo", QuantityPlayers: 2, Time: internal.Duration(time.Minute),
		})
		addTestPlayer(t, room, "alice")
		assert.Equal(t, internal.StateOpen, room.State())

		addTestPlayer(t, room, "bob")
		assert.Equal(t, internal.StateReady, room.State())
	})
}

// TestRoom_IsGameReady 測試開局條件
func TestRoom_IsGameReady(t *testing.T) {
	tests := []struct {
		name    string
		quota   int
		players int
		want    bool
	}{
		{name: "no quota is always ready", quota: 0, players: 0, want: true},
		{name: "quota not met", quota: 2, players: 1, want: false},
		{name: "quota met", quota: 2, players: 2, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, _ := newTestRoom(internal.RoomSettings{
				Name: "arena", Admin: "gonzalo", QuantityPlayers: tt.quota,
				Time: internal.Duration(time.Minute),
			})
			names := []string{"alice", "bob", "carol"}
			for i := 0; i < tt.players; i++ {
				addTestPlayer(t, room, names[i])
			}
			assert.Equal(t, tt.want, room.IsGameReady())
		})
	}
}

// TestRoom_IsAdmin 測試房主判定
func TestRoom_IsAdmin(t *testing.T) {
	room, _ := newTestRoom(internal.RoomSettings{
		Name: "arena", Admin: "gonzalo", Time: internal.Duration(time.Minute),
	})
	assert.True(t, room.IsAdmin("gonzalo"))
	assert.False(t, room.IsAdmin("alice"))
}

// TestRoom_InitGame 測試開局與開局廣播
func TestRoom_InitGame(t *testing.T) {
	t.Run("broadcasts fire synchronously", func(t *testing.T) {
		room, rec := newTestRoom(internal.RoomSettings{
			Name: "arena", Admin: "gonzalo", Time: internal.Duration(5 * time.Minute),
		})
		addTestPlayer(t, room, "alice")
		addTestPlayer(t, room, "bob")

		require.NoError(t, room.InitGame(nil))
		defer room.StopTimers()

		assert.Equal(t, internal.StateRunning, room.State())

		// 開局廣播在 InitGame 返回前已送出
		timers := rec.byEvent(internal.EventInitTimer)
		require.Len(t, timers, 1)
		assert.Equal(t, "arena", timers[0].Room)
		data := timers[0].Data.(map[string]any)
		assert.Equal(t, int64(300000), data["time"])

		scores := rec.byEvent(internal.EventScoreUpdate)
		require.Len(t, scores, 1)
		assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, scores[0].Data)

		assert.Equal(t, 1, rec.count(internal.EventStarLocation))
	})

	t.Run("double init must not double arm", func(t *testing.T) {
		room, rec := newTestRoom(internal.RoomSettings{
			Name: "arena", Admin: "gonzalo", Time: internal.Duration(50 * time.Millisecond),
		})
		addTestPlayer(t, room, "alice")

		finished := make(chan struct{}, 4)
		onFinish := func() { finished <- struct{}{} }

		require.NoError(t, room.InitGame(onFinish))
		err := room.InitGame(onFinish)
		assert.ErrorIs(t, err, internal.ErrGameAlreadyStarted)

		// 等待比賽結束：finishGame 只觸發一次
		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Fatal("比賽結束計時器沒有觸發")
		}
		time.Sleep(100 * time.Millisecond)

		assert.Equal(t, 1, rec.count(internal.EventFinishGame))
		assert.Len(t, finished, 0)
		assert.Equal(t, internal.StateFinished, room.State())
	})

	t.Run("init after finish rejected", func(t *testing.T) {
		room, _ := newTestRoom(internal.RoomSettings{
			Name: "arena", Admin: "gonzalo", Time: internal.Duration(10 * time.Millisecond),
		})
		addTestPlayer(t, room, "alice")
		require.NoError(t, room.InitGame(nil))

		require.Eventually(t, func() bool {
			return room.State() == internal.StateFinished
		}, time.Second, 5*time.Millisecond)

		err := room.InitGame(nil)
		assert.ErrorIs(t, err, internal.ErrGameFinished)
	})
}

// TestRoom_UpdatePlayer 測試玩家欄位更新
func TestRoom_UpdatePlayer(t *testing.T) {
	room, _ := newTestRoom(internal.RoomSettings{
		Name: "arena", Admin: "gonzalo", Time: internal.Duration(time.Minute),
	})
	addTestPlayer(t, room, "alice")

	updated := room.UpdatePlayer("alice", func(p *internal.Player) {
		p.X = 123
		p.Y = 456
		p.Rotation = 1.5
	})
	assert.True(t, updated)

	snapshot, ok := room.PlayerSnapshot("alice")
	require.True(t, ok)
	assert.Equal(t, 123.0, snapshot.X)
	assert.Equal(t, 456.0, snapshot.Y)
	assert.Equal(t, 1.5, snapshot.Rotation)

	// 玩家不存在（已斷線）→ 靜默 no-op
	updated = room.UpdatePlayer("ghost", func(p *internal.Player) {
		t.Fatal("變更函式不應被呼叫")
	})
	assert.False(t, updated)
}

// TestRoom_HitPlayerWith 測試命中套用
func TestRoom_HitPlayerWith(t *testing.T) {
	t.Run("damage is monotonic and floored at zero", func(t *testing.T) {
		room, rec := newTestRoom(internal.RoomSettings{
			Name: "arena", Admin: "gonzalo", Time: internal.Duration(time.Minute),
		})
		addTestPlayer(t, room, "alice")
		addTestPlayer(t, room, "bob")

		// 第一擊：100 - 30 = 70，未死亡
		require.NoError(t, room.HitPlayerWith(internal.HitRequest{
			PlayerName: "alice", Attacker: "bob", Hitter: stubHitter{damage: 30},
		}))
		snapshot, _ := room.PlayerSnapshot("alice")
		assert.Equal(t, 70, snapshot.HP)
		assert.False(t, snapshot.Dead)

		// 第二擊：70 - 80 → 0（不是 -10），死亡
		require.NoError(t, room.HitPlayerWith(internal.HitRequest{
			PlayerName: "alice", Attacker: "bob", Hitter: stubHitter{damage: 80},
		}))
		snapshot, _ = room.PlayerSnapshot("alice")
		assert.Equal(t, 0, snapshot.HP)
		assert.True(t, snapshot.Dead)

		// 第三擊：目標已死亡，完全忽略
		require.NoError(t, room.HitPlayerWith(internal.HitRequest{
			PlayerName: "alice", Attacker: "bob", Hitter: stubHitter{damage: 50},
		}))
		snapshot, _ = room.PlayerSnapshot("alice")
		assert.Equal(t, 0, snapshot.HP)

		// 攻擊方的命中獎勵只計前兩擊
		attacker, _ := room.PlayerSnapshot("bob")
		assert.Equal(t, 40, attacker.Score)

		// 每次有效命中都廣播血量
		updates := rec.byEvent(internal.EventUpdateHP)
		require.Len(t, updates, 2)
		first := updates[0].Data.(map[string]any)
		assert.Equal(t, "alice", first["playerName"])
		assert.Equal(t, 70, first["hp"])
	})

	t.Run("death penalty never goes negative", func(t *testing.T) {
		room, rec := newTestRoom(internal.RoomSettings{
			Name: "arena", Admin: "gonzalo", Time: internal.Duration(time.Minute),
		})
		addTestPlayer(t, room, "alice")
		addTestPlayer(t, room, "bob")

		// 受害方分數 10 < 懲罰 20 → 下限 0
		room.UpdatePlayer("alice", func(p *internal.Player) { p.Score = 10 })

		require.NoError(t, room.HitPlayerWith(internal.HitRequest{
			PlayerName: "alice", Attacker: "bob", Hitter: stubHitter{damage: 100},
		}))

		snapshot, _ := room.PlayerSnapshot("alice")
		assert.Equal(t, 0, snapshot.Score)
		assert.True(t, snapshot.Dead)

		// 死亡時重生定位並廣播
		moved := rec.byEvent(internal.EventPlayerMoved)
		require.Len(t, moved, 1)
		respawned := moved[0].Data.(internal.Player)
		bounds := room.Bounds()
		assert.GreaterOrEqual(t, respawned.X, bounds.Margin)
		assert.LessOrEqual(t, respawned.X, bounds.Width-bounds.Margin)
	})

	t.Run("self hit awards no bonus", func(t *testing.T) {
		room, _ := newTestRoom(internal.RoomSettings{
			Name: "arena", Admin: "gonzalo", Time: internal.Duration(time.Minute),
		})
		addTestPlayer(t, room, "alice")

		require.NoError(t, room.HitPlayerWith(internal.HitRequest{
			PlayerName: "alice", Attacker: "alice", Hitter: stubHitter{damage: 10},
		}))

		snapshot, _ := room.PlayerSnapshot("alice")
		assert.Equal(t, 90, snapshot.HP)
		assert.Equal(t, 0, snapshot.Score)
	})

	t.Run("missing target reports not found", func(t *testing.T) {
		room, _ := newTestRoom(internal.RoomSettings{
			Name: "arena", Admin: "gonzalo", Time: internal.Duration(time.Minute),
		})

		err := room.HitPlayerWith(internal.HitRequest{
			PlayerName: "ghost", Attacker: "bob", Hitter: stubHitter{damage: 10},
		})
		assert.ErrorIs(t, err, internal.ErrPlayerNotFound)
	})
}

// TestRoom_CollectStar 測試撿取星星
func TestRoom_CollectStar(t *testing.T) {
	room, rec := newTestRoom(internal.RoomSettings{
		Name: "arena", Admin: "gonzalo", Time: internal.Duration(time.Minute),
	})
	addTestPlayer(t, room, "alice")

	require.NoError(t, room.CollectStar("alice"))

	snapshot, _ := room.PlayerSnapshot("alice")
	assert.Equal(t, 50, snapshot.Score)

	// 廣播限於該房間：下一顆星星與分數表
	stars := rec.byEvent(internal.EventStarLocation)
	require.Len(t, stars, 1)
	assert.Equal(t, "arena", stars[0].Room)

	scores := rec.byEvent(internal.EventScoreUpdate)
	require.Len(t, scores, 1)
	assert.Equal(t, map[string]int{"alice": 50}, scores[0].Data)

	// 玩家不存在 → 錯誤由呼叫端吸收
	assert.ErrorIs(t, room.CollectStar("ghost"), internal.ErrPlayerNotFound)
}

// TestRoom_CollectHeart 測試撿取愛心
func TestRoom_CollectHeart(t *testing.T) {
	room, rec := newTestRoom(internal.RoomSettings{
		Name: "arena", Admin: "gonzalo", Time: internal.Duration(time.Minute),
	})
	addTestPlayer(t, room, "alice")

	room.UpdatePlayer("alice", func(p *internal.Player) { p.HP = 50 })
	require.NoError(t, room.CollectHeart("alice"))

	snapshot, _ := room.PlayerSnapshot("alice")
	assert.Equal(t, 70, snapshot.HP)

	// 回血不超過上限
	room.UpdatePlayer("alice", func(p *internal.Player) { p.HP = 95 })
	require.NoError(t, room.CollectHeart("alice"))
	snapshot, _ = room.PlayerSnapshot("alice")
	assert.Equal(t, 100, snapshot.HP)

	assert.Equal(t, 2, rec.count(internal.EventHeartLocation))
	assert.Equal(t, 2, rec.count(internal.EventUpdateHP))
}

// TestRoom_StopTimers 測試計時器取消
func TestRoom_StopTimers(t *testing.T) {
	room, rec := newTestRoom(internal.RoomSettings{
		Name: "arena", Admin: "gonzalo", Time: internal.Duration(30 * time.Millisecond),
	})
	addTestPlayer(t, room, "alice")
	require.NoError(t, room.InitGame(func() {
		t.Error("取消後不應觸發比賽結束")
	}))

	// 冪等：重複呼叫安全
	room.StopTimers()
	room.StopTimers()

	// 超過比賽時長後計時器不得再觸發
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count(internal.EventFinishGame))
}

// TestRoom_HazardTicker 測試危險物週期生成
func TestRoom_HazardTicker(t *testing.T) {
	rec := &recorder{}
	tuning := testTuning()
	tuning.HazardInterval = internal.Duration(15 * time.Millisecond)
	room := internal.NewRoom(internal.RoomSettings{
		Name: "arena", Admin: "gonzalo", Time: internal.Duration(time.Minute),
	}, testBounds(), tuning, rec, testLogger())

	p := internal.NewPlayer("alice", "arena", "transport_alice", "0bed07", room.Bounds(), tuning.MaxHP)
	require.NoError(t, room.AddPlayer(p))
	require.NoError(t, room.InitGame(nil))

	hazardCount := func() int {
		return rec.count(internal.EventStarLocation) +
			rec.count(internal.EventHeartLocation) +
			rec.count(internal.EventRenderPowerup)
	}

	// 開局本身廣播一顆星星，之後週期生成
	require.Eventually(t, func() bool {
		return hazardCount() >= 4
	}, time.Second, 5*time.Millisecond)

	room.StopTimers()
	settled := hazardCount()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, settled, hazardCount(), "取消後不應再生成危險物")
}
