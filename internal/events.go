package internal

import "encoding/json"

// 具名事件協定：客戶端與伺服器之間的每則訊息都是
// {"event": "...", "data": {...}} 形式的 JSON 文本幀。

// 入站事件（客戶端 → 伺服器）
const (
	EventCreateGame       = "createGame"
	EventEnterGame        = "enterGame"
	EventInitGame         = "initGame"
	EventSendPing         = "sendPing"
	EventPlayerMovement   = "playerMovement"
	EventShoot            = "shoot"
	EventStarCollected    = "starCollected"
	EventHeartCollected   = "heartCollected"
	EventPowerupCollected = "powerupCollected"
	EventPowerupActivated = "powerupActivated"
	EventPlayerHitted     = "playerHitted"
)

// 出站事件（伺服器 → 客戶端）
const (
	EventCurrentPlayers = "currentPlayers"
	EventNewPlayer      = "newPlayer"
	EventInitTimer      = "initTimer"
	EventScoreUpdate    = "scoreUpdate"
	EventStarLocation   = "starLocation"
	EventHeartLocation  = "heartLocation"
	EventRenderPowerup  = "renderPowerup"
	EventPlayerMoved    = "playerMoved"
	EventPlayerShooted  = "playerShooted"
	EventUpdateHP       = "updateHp"
	EventFinishGame     = "finishGame"
	EventDisconnect     = "disconnect"
	EventGetPong        = "getPong"
	EventErrorMessage   = "errorMessage"
)

// Envelope 具名事件信封
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Broadcaster 房間向其成員送出事件的出口
//
// Room 與 Directory 透過此介面發送廣播，不直接依賴傳輸層；
// 測試時以記錄用的假實作代替。
type Broadcaster interface {
	// Broadcast 廣播給房間內所有成員
	Broadcast(room, event string, data any)
	// BroadcastExcept 廣播給房間內除指定連線外的成員
	BroadcastExcept(room, exceptID, event string, data any)
	// SendTo 單播給指定連線
	SendTo(transportID, event string, data any)
}

// 入站事件的資料結構（欄位名對應客戶端協定）

type createGamePayload struct {
	Room            string  `json:"room"`
	Admin           string  `json:"admin"`
	Time            float64 `json:"time"` // 分鐘
	Width           float64 `json:"width"`
	QuantityPlayers int     `json:"quantityPlayers"`
}

type enterGamePayload struct {
	PlayerName string `json:"playerName"`
	Room       string `json:"room"`
}

type initGamePayload struct {
	PlayerName string `json:"playerName"`
	Room       string `json:"room"`
}

type playerMovementPayload struct {
	Room         string  `json:"room"`
	PlayerName   string  `json:"playerName"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Rotation     float64 `json:"rotation"`
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
	MaxSpeed     float64 `json:"maxSpeed"`
}

type shootPayload struct {
	Room   string          `json:"room"`
	Lasers json.RawMessage `json:"lasers"`
}

type collectPayload struct {
	PlayerName string `json:"playerName"`
	Room       string `json:"room"`
}

type powerupPayload struct {
	PlayerName string          `json:"playerName"`
	Room       string          `json:"room"`
	Powerup    json.RawMessage `json:"powerup"`
}

type playerHittedPayload struct {
	Room   string `json:"room"`
	Hitted struct {
		PlayerName string `json:"playerName"`
	} `json:"hitted"`
	Hitter         string         `json:"hitter"`
	HitterMetadata HitterMetadata `json:"hitterMetadata"`
}
