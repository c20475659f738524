package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何在客戶端與核心之間傳遞具名事件，並把房間產生的狀態增量
//   即時推送給房間內的所有連線？
//
// 核心挑戰：
//   1. 實時通信：狀態變更需要立即推送給房間成員
//   2. 連接管理：連線建立、加入房間、斷線清理
//   3. 心跳機制：檢測死連接（網絡異常、客戶端崩潰）
//   4. 廣播範圍：房間內廣播 / 排除發送者廣播 / 單播
//
// 設計方案：
//   ✅ WebSocket - 全雙工通信（低延遲、伺服器推送）
//   ✅ Hub 模式 - 集中管理所有連線與房間成員關係
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）
//   ✅ 緩衝 channel - 異步發送（慢客戶端不拖累整個房間）

// Hub WebSocket 連線中心
//
// 同時實作 Broadcaster：Room 與 Directory 的廣播經由這裡送出。
// 連線映射：
//   - conns: transportID -> Conn（單播用）
//   - rooms: roomName -> transportID -> Conn（房間廣播用）
type Hub struct {
	directory *Directory
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[string]map[string]*Conn
}

// Conn 單一 WebSocket 連線
type Conn struct {
	TransportID string
	ws          *websocket.Conn
	send        chan []byte
	hub         *Hub
	closeOnce   sync.Once
}

// NewHub 創建連線中心
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[string]*Conn),
		rooms: make(map[string]map[string]*Conn),
	}
}

// Bind 綁定房間註冊表
//
// Hub 是 Directory 的 Broadcaster，Directory 又是 Hub 入站事件的
// 目的地，兩者互相引用；先建 Hub、再建 Directory、最後綁定。
func (h *Hub) Bind(directory *Directory) {
	h.directory = directory
}

// ServeWS 處理 WebSocket 連線
//
// 每條連線分配一個 uuid 作為連線識別碼（transport id），
// 斷線處理與玩家歸屬都以它為鍵。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	conn := &Conn{
		TransportID: uuid.New().String(),
		ws:          ws,
		send:        make(chan []byte, 256),
		hub:         h,
	}

	h.mu.Lock()
	h.conns[conn.TransportID] = conn
	h.mu.Unlock()

	go conn.writePump()
	go conn.readPump()

	h.logger.Info("WebSocket 連線建立", "transport_id", conn.TransportID)
}

// joinRoom 將連線納入房間的廣播範圍
func (h *Hub) joinRoom(conn *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Conn)
	}
	h.rooms[room][conn.TransportID] = conn
}

// leaveRoom 將連線移出房間的廣播範圍
func (h *Hub) leaveRoom(conn *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if roomConns, exists := h.rooms[room]; exists {
		delete(roomConns, conn.TransportID)
		if len(roomConns) == 0 {
			delete(h.rooms, room)
		}
	}
}

// unregister 移除連線
func (h *Hub) unregister(conn *Conn) {
	h.mu.Lock()
	delete(h.conns, conn.TransportID)
	for room, roomConns := range h.rooms {
		if _, exists := roomConns[conn.TransportID]; exists {
			delete(roomConns, conn.TransportID)
			if len(roomConns) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	conn.close()
}

// encodeEvent 將具名事件編碼為信封格式
func encodeEvent(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Broadcast 廣播給房間內所有成員
func (h *Hub) Broadcast(room, event string, data any) {
	h.BroadcastExcept(room, "", event, data)
}

// BroadcastExcept 廣播給房間內除指定連線外的成員
func (h *Hub) BroadcastExcept(room, exceptID, event string, data any) {
	message, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Error("序列化事件失敗", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for transportID, conn := range h.rooms[room] {
		if transportID == exceptID {
			continue
		}
		select {
		case conn.send <- message:
		default:
			// 連線緩衝區滿了，丟棄訊息（慢客戶端不拖累整個房間）
			h.logger.Warn("連線緩衝區滿",
				"room", room,
				"transport_id", transportID,
				"event", event)
		}
	}
}

// SendTo 單播給指定連線
func (h *Hub) SendTo(transportID, event string, data any) {
	message, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Error("序列化事件失敗", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	conn, exists := h.conns[transportID]
	h.mu.RUnlock()

	if !exists {
		return
	}

	select {
	case conn.send <- message:
	default:
		h.logger.Warn("連線緩衝區滿", "transport_id", transportID, "event", event)
	}
}

// sendError 把被拒絕的操作回報給發起的客戶端
func (h *Hub) sendError(conn *Conn, err error) {
	h.SendTo(conn.TransportID, EventErrorMessage, map[string]string{
		"message": err.Error(),
	})
}

// dispatch 處理一則入站事件
//
// 瞬態競速路徑（移動、命中、撿取遇到已消失的房間或玩家）靜默
// 吸收為 no-op，遊戲對其他人照常進行；創建 / 開局的拒絕則以
// errorMessage 單播回報。
func (h *Hub) dispatch(conn *Conn, env Envelope) {
	switch env.Event {
	case EventCreateGame:
		var payload createGamePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			h.sendError(conn, err)
			return
		}
		settings := RoomSettings{
			Name:            payload.Room,
			Admin:           payload.Admin,
			QuantityPlayers: payload.QuantityPlayers,
			Time:            Duration(payload.Time * float64(time.Minute)),
			Width:           payload.Width,
		}
		if _, err := h.directory.Create(settings); err != nil {
			h.sendError(conn, err)
		}

	case EventEnterGame:
		var payload enterGamePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			h.sendError(conn, err)
			return
		}
		// 先納入廣播範圍：到齊自動開局的廣播必須送達這名玩家
		h.joinRoom(conn, payload.Room)
		room, player, err := h.directory.Join(payload.Room, payload.PlayerName, conn.TransportID)
		if err != nil {
			h.leaveRoom(conn, payload.Room)
			h.sendError(conn, err)
			return
		}
		h.SendTo(conn.TransportID, EventCurrentPlayers, room.PlayersSnapshot())
		h.BroadcastExcept(payload.Room, conn.TransportID, EventNewPlayer, player)

	case EventInitGame:
		var payload initGamePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			h.sendError(conn, err)
			return
		}
		if err := h.directory.InitGame(payload.Room, payload.PlayerName); err != nil {
			h.sendError(conn, err)
		}

	case EventSendPing:
		h.SendTo(conn.TransportID, EventGetPong, env.Data)

	case EventPlayerMovement:
		var payload playerMovementPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		room, err := h.directory.Get(payload.Room)
		if err != nil {
			// 遊戲結束後仍送達的移動事件
			return
		}
		updated := room.UpdatePlayer(payload.PlayerName, func(p *Player) {
			p.X = payload.X
			p.Y = payload.Y
			p.Rotation = payload.Rotation
			p.Velocity = payload.Velocity
			p.Acceleration = payload.Acceleration
			p.MaxSpeed = payload.MaxSpeed
		})
		if !updated {
			return
		}
		if snapshot, ok := room.PlayerSnapshot(payload.PlayerName); ok {
			h.BroadcastExcept(payload.Room, conn.TransportID, EventPlayerMoved, snapshot)
		}

	case EventShoot:
		var payload shootPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		// 純轉發，不變更伺服器狀態
		h.BroadcastExcept(payload.Room, conn.TransportID, EventPlayerShooted, map[string]any{
			"lasers": payload.Lasers,
		})

	case EventStarCollected:
		var payload collectPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		room, err := h.directory.Get(payload.Room)
		if err != nil {
			return
		}
		if err := room.CollectStar(payload.PlayerName); err != nil {
			h.logger.Debug("撿取星星失敗", "room", payload.Room, "player", payload.PlayerName, "error", err)
		}

	case EventHeartCollected:
		var payload collectPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		room, err := h.directory.Get(payload.Room)
		if err != nil {
			return
		}
		if err := room.CollectHeart(payload.PlayerName); err != nil {
			h.logger.Debug("撿取愛心失敗", "room", payload.Room, "player", payload.PlayerName, "error", err)
		}

	case EventPowerupCollected:
		var payload powerupPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		room, err := h.directory.Get(payload.Room)
		if err != nil {
			return
		}
		h.BroadcastExcept(payload.Room, conn.TransportID, EventPowerupCollected, map[string]any{
			"playerName": payload.PlayerName,
			"powerup":    payload.Powerup,
		})
		room.SpawnPowerup()

	case EventPowerupActivated:
		var payload powerupPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		h.BroadcastExcept(payload.Room, conn.TransportID, EventPowerupActivated, map[string]any{
			"playerName": payload.PlayerName,
			"powerup":    payload.Powerup,
		})

	case EventPlayerHitted:
		var payload playerHittedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		room, err := h.directory.Get(payload.Room)
		if err != nil {
			return
		}
		target, ok := room.PlayerSnapshot(payload.Hitted.PlayerName)
		if !ok {
			// 目標已斷線，吸收為 no-op
			return
		}
		// 已死亡的目標直接跳過解析（呼叫端的責任，映射器不做假設）
		if target.IsDead() {
			return
		}
		hitter, err := ResolveHitter(payload.Hitter, payload.HitterMetadata, &target)
		if err != nil {
			h.logger.Warn("解析命中失敗", "room", payload.Room, "kind", payload.Hitter, "error", err)
			return
		}
		if err := room.HitPlayerWith(HitRequest{
			PlayerName: payload.Hitted.PlayerName,
			Attacker:   payload.HitterMetadata.PlayerName,
			Hitter:     hitter,
		}); err != nil && !errors.Is(err, ErrPlayerNotFound) {
			h.logger.Warn("套用命中失敗", "room", payload.Room, "error", err)
		}

	default:
		h.logger.Debug("收到未知事件", "event", env.Event, "transport_id", conn.TransportID)
	}
}

// Stop 關閉所有連線
func (h *Hub) Stop() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[string]*Conn)
	h.rooms = make(map[string]map[string]*Conn)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}

	h.logger.Info("WebSocket Hub 已停止")
}

// close 關閉連線（冪等）
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
	c.ws.Close()
}

// readPump 讀取客戶端訊息
//
// 心跳機制（讀取端）：60 秒內沒有任何訊息（包括 Pong）就關閉
// 連線，配合 writePump 的 54 秒 Ping（留 6 秒餘量）。
// 連線結束時走斷線路徑：移除玩家、必要時銷毀空房間。
func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		if c.hub.directory != nil {
			c.hub.directory.Disconnect(c.TransportID)
		}
	}()

	if err := c.ws.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"transport_id", c.TransportID)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if err := c.ws.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.hub.logger.Error("設置讀取期限失敗", "error", err)
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.hub.logger.Debug("解析客戶端訊息失敗",
				"error", err,
				"transport_id", c.TransportID)
			continue
		}

		c.hub.dispatch(c, env)
	}
}

// writePump 寫入訊息到客戶端
//
// 心跳機制（發送端）：每 54 秒發送 Ping，避開常見的 60 秒代理
// 超時；send channel 緩衝讓業務邏輯的廣播不被慢客戶端阻塞。
func (c *Conn) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連線
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.ws.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
