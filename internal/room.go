package internal

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// 系統設計問題：
//   如何管理一場對戰的完整生命週期，讓玩家狀態（位置、分數、血量）
//   在高頻併發事件下保持一致，並由伺服器驅動比賽計時與危險物生成？
//
// 核心挑戰：
//   1. 狀態管理：房間有明確的狀態轉換（open → ready → running → finished）
//   2. 併發控制：同一房間的移動、命中、撿取事件同時到達
//   3. 計時器生命週期：比賽結束計時器與危險物生成計時器不得外洩
//   4. 廣播範圍：所有狀態變更只通知該房間的成員
//
// 設計方案：
//   ✅ 有限狀態機 - 規範生命週期，拒絕非法操作
//   ✅ 房間級互斥鎖 - 單一房間內的變更序列化，跨房間完全獨立
//   ✅ 顯式計時器握把 + 活性旗標 - 取消後的觸發保證是 no-op
//   ✅ 注入 Broadcaster - 房間只負責狀態，傳輸層可替換

// RoomState 房間狀態
//
// 狀態轉換規則：
//   - open → ready：人數限制到齊（僅限有宣告人數的房間）
//   - open / ready → running：開局（到齊自動開局，或房主手動開局）
//   - running → finished：比賽計時到期（終態，不可再轉換）
//
// 只有 open 狀態接受加入；ready 狀態在到齊玩家斷線後退回 open。
type RoomState string

const (
	StateOpen     RoomState = "open"
	StateReady    RoomState = "ready"
	StateRunning  RoomState = "running"
	StateFinished RoomState = "finished"
)

// Room 單一對戰房間
//
// 系統設計考量：
//
//  1. 併發控制（Mutex）：
//     同一房間的所有變更（玩家事件與計時器回呼）都在同一把鎖下
//     進行，分數與血量的 read-modify-write 不會交錯；不同房間
//     互不共享狀態，可完全平行處理。
//
//  2. 計時器所有權：
//     兩個計時器（比賽結束、危險物生成）由房間持有，任何時刻
//     至多各一個；每條銷毀路徑（比賽結束、房間清空）都必須呼叫
//     StopTimers，取消後再觸發的回呼以 alive 旗標擋下。
//
//  3. 廣播責任：
//     房間透過注入的 Broadcaster 發送房間範圍的事件，絕不跨房。
type Room struct {
	mu       sync.RWMutex
	settings RoomSettings
	bounds   Bounds
	tuning   Tuning
	state    RoomState
	players  map[string]*Player

	broadcaster Broadcaster
	logger      *slog.Logger

	matchTimer   *time.Timer
	hazardTicker *time.Ticker
	hazardStop   chan struct{}

	// alive 為 false 後任何計時器回呼都不得再變更狀態
	alive bool
}

// HitRequest 一次命中的套用請求
type HitRequest struct {
	PlayerName string
	Attacker   string
	Hitter     Hitter
}

// NewRoom 創建房間
func NewRoom(settings RoomSettings, defaults Bounds, tuning Tuning, broadcaster Broadcaster, logger *slog.Logger) *Room {
	return &Room{
		settings:    settings,
		bounds:      settings.bounds(defaults),
		tuning:      tuning,
		state:       StateOpen,
		players:     make(map[string]*Player),
		broadcaster: broadcaster,
		logger:      logger,
		alive:       true,
	}
}

// Name 房間名稱（唯一鍵）
func (r *Room) Name() string { return r.settings.Name }

// State 當前生命週期狀態
func (r *Room) State() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Bounds 房間實際使用的競技場邊界
func (r *Room) Bounds() Bounds { return r.bounds }

// AddPlayer 加入玩家
//
// 只有 open 狀態接受加入；進行中或已結束的房間明確拒絕，
// 不會進入未定義行為。廣播是呼叫端的責任。
func (r *Room) AddPlayer(p *Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateOpen {
		return fmt.Errorf("%w（房間 %s 狀態 %s）", ErrGameRunning, r.settings.Name, r.state)
	}
	if _, exists := r.players[p.Name]; exists {
		return fmt.Errorf("%w: %s", ErrPlayerExists, p.Name)
	}

	r.players[p.Name] = p

	// 人數到齊 → ready（到齊的那一次加入之後立即開局，見 Directory.Join）
	if r.settings.QuantityPlayers > 0 && len(r.players) >= r.settings.QuantityPlayers {
		r.state = StateReady
	}

	return nil
}

// IsGameReady 是否可以開局
//
// 未宣告人數限制的房間無條件視為就緒（由房主決定何時開始）。
func (r *Room) IsGameReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.settings.QuantityPlayers <= 0 {
		return true
	}
	return len(r.players) >= r.settings.QuantityPlayers
}

// IsAdmin name 是否為房主
func (r *Room) IsAdmin(name string) bool {
	return name == r.settings.Admin
}

// InitGame 開局
//
// 只能從 open / ready 狀態開局；重複開局回傳錯誤，絕不重複
// 武裝計時器。開局廣播（初始計時、初始分數、第一顆星星）在
// 呼叫內同步送出，不延後到下一個 tick。
func (r *Room) InitGame(onFinish func()) error {
	r.mu.Lock()

	switch r.state {
	case StateRunning:
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrGameAlreadyStarted, r.settings.Name)
	case StateFinished:
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrGameFinished, r.settings.Name)
	}

	r.state = StateRunning

	r.broadcaster.Broadcast(r.settings.Name, EventInitTimer, map[string]any{
		"time": r.settings.Time.Std().Milliseconds(),
	})
	r.broadcaster.Broadcast(r.settings.Name, EventScoreUpdate, r.scoresLocked())
	r.broadcaster.Broadcast(r.settings.Name, EventStarLocation, NewStar(r.bounds))

	r.matchTimer = time.AfterFunc(r.settings.Time.Std(), func() {
		r.finishMatch(onFinish)
	})

	ticker := time.NewTicker(r.tuning.HazardInterval.Std())
	stop := make(chan struct{})
	r.hazardTicker = ticker
	r.hazardStop = stop
	go r.hazardLoop(ticker, stop)

	r.logger.Info("遊戲開始",
		"room", r.settings.Name,
		"players", len(r.players),
		"duration", r.settings.Time)

	r.mu.Unlock()
	return nil
}

// finishMatch 比賽結束計時器的回呼
//
// 與其他房間操作一樣在鎖下執行；房間已銷毀或已結束時是 no-op。
// onFinish 在鎖外呼叫，避免與 Directory 的移除路徑互相等待。
func (r *Room) finishMatch(onFinish func()) {
	r.mu.Lock()
	if !r.alive || r.state != StateRunning {
		r.mu.Unlock()
		return
	}

	r.state = StateFinished
	r.stopTimersLocked()
	r.alive = false

	r.broadcaster.Broadcast(r.settings.Name, EventFinishGame, nil)
	r.logger.Info("遊戲結束", "room", r.settings.Name, "scores", r.scoresLocked())
	r.mu.Unlock()

	if onFinish != nil {
		onFinish()
	}
}

// hazardLoop 週期性生成危險物
func (r *Room) hazardLoop(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-ticker.C:
			r.spawnHazard()
		case <-stop:
			return
		}
	}
}

// spawnHazard 生成並廣播一個新的危險物
func (r *Room) spawnHazard() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.alive || r.state != StateRunning {
		return
	}

	hazard := randomHazard(r.bounds, r.tuning)
	r.broadcaster.Broadcast(r.settings.Name, hazardEvent(hazard.Kind()), hazard)
}

// hazardEvent 危險物種類對應的出站事件名稱
func hazardEvent(kind HazardKind) string {
	switch kind {
	case HazardHeart:
		return EventHeartLocation
	case HazardPowerup:
		return EventRenderPowerup
	default:
		return EventStarLocation
	}
}

// StopTimers 取消所有計時器
//
// 冪等；房間被丟棄前必須呼叫，否則殘留的計時器會對已移除的
// 房間變更狀態或對空房間廣播。
func (r *Room) StopTimers() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.alive = false
	r.stopTimersLocked()
}

// stopTimersLocked 需要持有 r.mu
func (r *Room) stopTimersLocked() {
	if r.matchTimer != nil {
		r.matchTimer.Stop()
		r.matchTimer = nil
	}
	if r.hazardTicker != nil {
		r.hazardTicker.Stop()
		r.hazardTicker = nil
	}
	if r.hazardStop != nil {
		close(r.hazardStop)
		r.hazardStop = nil
	}
}

// UpdatePlayer 以呼叫端提供的變更函式原子地更新玩家欄位
//
// 玩家不存在（通常已斷線）時是靜默的 no-op，回傳 false；
// 絕不因過期引用而 panic。
func (r *Room) UpdatePlayer(name string, mutate func(*Player)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[name]
	if !ok {
		return false
	}
	mutate(p)
	return true
}

// PlayerSnapshot 取得玩家的值快照
func (r *Room) PlayerSnapshot(name string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.players[name]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// PlayersSnapshot 取得所有玩家的值快照
func (r *Room) PlayersSnapshot() map[string]Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]Player, len(r.players))
	for name, p := range r.players {
		snapshot[name] = *p
	}
	return snapshot
}

// Scores 取得當下的分數表快照
func (r *Room) Scores() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scoresLocked()
}

// scoresLocked 需要持有 r.mu（讀或寫）
func (r *Room) scoresLocked() map[string]int {
	scores := make(map[string]int, len(r.players))
	for name, p := range r.players {
		scores[name] = p.Score
	}
	return scores
}

// HitPlayerWith 套用一次已解析的命中
//
// 血量下限為 0，歸零時設置死亡旗標；攻擊方獲得固定獎勵分，
// 死亡時受害方扣固定懲罰分（分數下限為 0）並重生定位。
// 已死亡的目標不再承受傷害。
func (r *Room) HitPlayerWith(req HitRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.players[req.PlayerName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, req.PlayerName)
	}
	if target.IsDead() {
		return nil
	}

	damage := req.Hitter.Damage()
	if damage < 0 {
		damage = 0
	}

	target.HP -= damage
	if target.HP < 0 {
		target.HP = 0
	}

	if attacker, ok := r.players[req.Attacker]; ok && req.Attacker != req.PlayerName {
		attacker.Score += r.tuning.HitScoreBonus
	}

	r.broadcaster.Broadcast(r.settings.Name, EventUpdateHP, map[string]any{
		"playerName": target.Name,
		"hp":         target.HP,
	})

	if target.HP == 0 {
		target.Dead = true
		target.Score -= r.tuning.DeathScorePenalty
		if target.Score < 0 {
			target.Score = 0
		}
		target.Respawn(r.bounds)
		r.broadcaster.Broadcast(r.settings.Name, EventPlayerMoved, *target)
	}

	r.broadcaster.Broadcast(r.settings.Name, EventScoreUpdate, r.scoresLocked())
	return nil
}

// CollectStar 玩家撿取星星
//
// 加分並生成下一顆星星；廣播限於該房間，不跨房外洩。
func (r *Room) CollectStar(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, name)
	}

	p.Score += r.tuning.StarScore

	r.broadcaster.Broadcast(r.settings.Name, EventStarLocation, NewStar(r.bounds))
	r.broadcaster.Broadcast(r.settings.Name, EventScoreUpdate, r.scoresLocked())
	return nil
}

// CollectHeart 玩家撿取愛心
func (r *Room) CollectHeart(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, name)
	}

	heart := NewHeart(r.bounds, r.tuning.HeartHeal)
	p.Collect(heart)

	r.broadcaster.Broadcast(r.settings.Name, EventHeartLocation, heart)
	r.broadcaster.Broadcast(r.settings.Name, EventUpdateHP, map[string]any{
		"playerName": p.Name,
		"hp":         p.HP,
	})
	return nil
}

// SpawnPowerup 生成並廣播一個強化道具
func (r *Room) SpawnPowerup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.broadcaster.Broadcast(r.settings.Name, EventRenderPowerup, NewPowerup(r.bounds))
}

// IsEmpty 房間是否已無玩家
func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players) == 0
}

// RemoveByTransport 依連線識別碼移除玩家
//
// 回傳被移除的玩家名稱；找不到時回傳 false（斷線處理必須冪等）。
func (r *Room) RemoveByTransport(transportID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, p := range r.players {
		if p.TransportID == transportID {
			delete(r.players, name)

			// 到齊後有人離開 → 退回 open 繼續收人
			if r.state == StateReady && r.settings.QuantityPlayers > 0 &&
				len(r.players) < r.settings.QuantityPlayers {
				r.state = StateOpen
			}
			return name, true
		}
	}
	return "", false
}

// RoomSnapshot 可序列化的房間狀態（HTTP 查詢介面用）
//
// 只暴露可序列化欄位，計時器握把絕不外流。
type RoomSnapshot struct {
	Name            string            `json:"name"`
	Admin           string            `json:"admin"`
	QuantityPlayers int               `json:"quantityPlayers"`
	Time            int64             `json:"time"`
	State           RoomState         `json:"state"`
	Players         map[string]Player `json:"players"`
	Scores          map[string]int    `json:"scores"`
}

// Snapshot 取得房間的值快照
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	players := make(map[string]Player, len(r.players))
	for name, p := range r.players {
		players[name] = *p
	}

	return RoomSnapshot{
		Name:            r.settings.Name,
		Admin:           r.settings.Admin,
		QuantityPlayers: r.settings.QuantityPlayers,
		Time:            r.settings.Time.Std().Milliseconds(),
		State:           r.state,
		Players:         players,
		Scores:          r.scoresLocked(),
	}
}
