package internal

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
)

// Directory 進程範圍的房間註冊表
//
// 系統設計考量：
//
//  1. 唯一的跨房間共享結構：
//     rooms 與 transportRoom 兩個映射是房間之外僅有的全域可變
//     狀態，以 RWMutex 保護；房間本身的狀態只透過 Room 的方法
//     變更，外部絕不直接寫映射。
//
//  2. 斷線反查索引（transportRoom）：
//     斷線事件只帶連線識別碼，不帶房間名稱。維持
//     transportID → roomName 的反向索引讓斷線處理是 O(1)，
//     不必掃描所有房間的所有玩家。
//
//  3. 銷毀路徑：
//     房間在比賽結束或清空時移除；每條移除路徑都先取消計時器，
//     再從映射中刪除，殘留的計時器觸發保證是 no-op。
type Directory struct {
	mu            sync.RWMutex
	rooms         map[string]*Room
	transportRoom map[string]string // transportID -> roomName

	defaults    Bounds
	tuning      Tuning
	colors      []string
	broadcaster Broadcaster
	logger      *slog.Logger
}

// NewDirectory 創建房間註冊表並預先建立配置中的房間
func NewDirectory(cfg *Config, broadcaster Broadcaster, logger *slog.Logger) *Directory {
	d := &Directory{
		rooms:         make(map[string]*Room),
		transportRoom: make(map[string]string),
		defaults:      cfg.Arena,
		tuning:        cfg.Game,
		colors:        cfg.Colors,
		broadcaster:   broadcaster,
		logger:        logger,
	}

	for _, settings := range cfg.Rooms {
		if _, err := d.Create(settings); err != nil {
			logger.Error("預設房間建立失敗", "room", settings.Name, "error", err)
		}
	}

	return d
}

// Create 創建房間
//
// 同名房間以後者為準（legacy 行為）；被覆蓋的房間先取消計時器，
// 避免舊計時器對新房間廣播。
func (d *Directory) Create(settings RoomSettings) (*Room, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	room := NewRoom(settings, d.defaults, d.tuning, d.broadcaster, d.logger)

	d.mu.Lock()
	if old, exists := d.rooms[settings.Name]; exists {
		old.StopTimers()
		d.dropTransportsLocked(settings.Name)
	}
	d.rooms[settings.Name] = room
	d.mu.Unlock()

	d.logger.Info("房間已創建",
		"room", settings.Name,
		"admin", settings.Admin,
		"quantity_players", settings.QuantityPlayers,
		"time", settings.Time)

	return room, nil
}

// Get 取得房間
func (d *Directory) Get(name string) (*Room, error) {
	d.mu.RLock()
	room, exists := d.rooms[name]
	d.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, name)
	}
	return room, nil
}

// Remove 移除房間並取消其計時器
func (d *Directory) Remove(name string) {
	d.mu.Lock()
	room, exists := d.rooms[name]
	if exists {
		delete(d.rooms, name)
		d.dropTransportsLocked(name)
	}
	d.mu.Unlock()

	if exists {
		room.StopTimers()
		d.logger.Info("房間已移除", "room", name)
	}
}

// dropTransportsLocked 清掉指向某房間的反查索引，需要持有 d.mu
func (d *Directory) dropTransportsLocked(roomName string) {
	for transportID, name := range d.transportRoom {
		if name == roomName {
			delete(d.transportRoom, transportID)
		}
	}
}

// Join 玩家加入房間
//
// 組合查找、配色、加入與反查索引更新。有宣告人數限制的房間，
// 到齊的那一次加入會在同一次呼叫內同步開局：初始計時、初始
// 分數與第一顆星星的廣播在 Join 返回前送出。
func (d *Directory) Join(roomName, playerName, transportID string) (*Room, Player, error) {
	room, err := d.Get(roomName)
	if err != nil {
		return nil, Player{}, err
	}

	color := d.colors[rand.IntN(len(d.colors))]
	player := NewPlayer(playerName, roomName, transportID, color, room.Bounds(), d.tuning.MaxHP)

	if err := room.AddPlayer(player); err != nil {
		return nil, Player{}, err
	}

	d.mu.Lock()
	d.transportRoom[transportID] = roomName
	d.mu.Unlock()

	d.logger.Info("玩家加入房間",
		"room", roomName,
		"player", playerName,
		"transport_id", transportID)

	// 人數到齊自動開局；未宣告人數的房間只能由房主手動開局
	if room.State() == StateReady {
		if err := room.InitGame(func() { d.Remove(roomName) }); err != nil {
			d.logger.Warn("自動開局失敗", "room", roomName, "error", err)
		}
	}

	return room, *player, nil
}

// InitGame 房主手動開局
func (d *Directory) InitGame(roomName, playerName string) error {
	room, err := d.Get(roomName)
	if err != nil {
		return err
	}
	if !room.IsAdmin(playerName) {
		return fmt.Errorf("%w: %s", ErrNotAdmin, playerName)
	}
	if !room.IsGameReady() {
		return fmt.Errorf("%w: %s", ErrGameNotReady, roomName)
	}

	return room.InitGame(func() { d.Remove(roomName) })
}

// Disconnect 處理連線斷開
//
// 冪等：同一連線識別碼重複呼叫不會產生第二次變更或重複廣播。
// 最後一名玩家離開時取消房間計時器並將房間移出註冊表。
func (d *Directory) Disconnect(transportID string) {
	d.mu.Lock()
	roomName, exists := d.transportRoom[transportID]
	if exists {
		delete(d.transportRoom, transportID)
	}
	d.mu.Unlock()

	if !exists {
		return
	}

	room, err := d.Get(roomName)
	if err != nil {
		return
	}

	playerName, removed := room.RemoveByTransport(transportID)
	if !removed {
		return
	}

	d.logger.Info("玩家離開房間",
		"room", roomName,
		"player", playerName,
		"transport_id", transportID)

	if room.IsEmpty() {
		d.Remove(roomName)
		return
	}

	d.broadcaster.Broadcast(roomName, EventDisconnect, transportID)
}

// RoomOfTransport 連線所屬的房間名稱
func (d *Directory) RoomOfTransport(transportID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.transportRoom[transportID]
	return name, ok
}

// Snapshot 所有房間的可序列化快照（HTTP 查詢介面用）
func (d *Directory) Snapshot() map[string]RoomSnapshot {
	d.mu.RLock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, room := range d.rooms {
		rooms = append(rooms, room)
	}
	d.mu.RUnlock()

	result := make(map[string]RoomSnapshot, len(rooms))
	for _, room := range rooms {
		result[room.Name()] = room.Snapshot()
	}
	return result
}

// Stats 統計資訊
func (d *Directory) Stats() map[string]any {
	d.mu.RLock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, room := range d.rooms {
		rooms = append(rooms, room)
	}
	connected := len(d.transportRoom)
	d.mu.RUnlock()

	stateCount := make(map[RoomState]int)
	totalPlayers := 0
	for _, room := range rooms {
		snapshot := room.Snapshot()
		stateCount[snapshot.State]++
		totalPlayers += len(snapshot.Players)
	}

	return map[string]any{
		"total_rooms":   len(rooms),
		"total_players": totalPlayers,
		"connections":   connected,
		"by_state":      stateCount,
	}
}

// Stop 停止註冊表：取消所有房間的計時器（優雅關閉用）
func (d *Directory) Stop() {
	d.mu.Lock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, room := range d.rooms {
		rooms = append(rooms, room)
	}
	d.mu.Unlock()

	for _, room := range rooms {
		room.StopTimers()
	}

	d.logger.Info("房間註冊表已停止")
}
