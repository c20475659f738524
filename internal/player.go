package internal

import "math/rand/v2"

// Player 房間內的單一玩家
//
// 玩家由其所屬房間獨占持有，所有欄位的變更都必須經過
// Room 的方法（持有房間鎖）進行，外部只能取得快照。
//
// 運動相關欄位（velocity / acceleration / maxSpeed）對伺服器
// 是不透明的，原樣轉發給其他客戶端，伺服器不做物理模擬。
type Player struct {
	Name         string  `json:"playerName"`
	Room         string  `json:"room"`
	TransportID  string  `json:"playerId"`
	Color        string  `json:"color"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Rotation     float64 `json:"rotation"`
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
	MaxSpeed     float64 `json:"maxSpeed"`
	Score        int     `json:"score"`
	HP           int     `json:"hp"`
	Dead         bool    `json:"dead"`

	maxHP int
}

// NewPlayer 創建玩家
//
// 出生位置在競技場邊界內隨機產生，血量為上限值，分數為 0。
func NewPlayer(name, room, transportID, color string, bounds Bounds, maxHP int) *Player {
	x, y := bounds.RandomPosition()
	return &Player{
		Name:        name,
		Room:        room,
		TransportID: transportID,
		Color:       color,
		X:           x,
		Y:           y,
		HP:          maxHP,
		maxHP:       maxHP,
	}
}

// Collect 撿取危險物
//
// 只有愛心會改變玩家自身狀態（回血且不超過上限）；
// 星星與強化道具的效果（加分、能力旗標）由呼叫端處理。
func (p *Player) Collect(h Hazard) {
	switch hazard := h.(type) {
	case *Heart:
		p.HP += hazard.heal
		if p.HP > p.maxHP {
			p.HP = p.maxHP
		}
	default:
		// 星星 / 強化道具：效果在呼叫端
	}
}

// IsDead 玩家是否已死亡
//
// 死亡後不再承受傷害（避免血量負向溢出），但仍可被重生定位。
func (p *Player) IsDead() bool {
	return p.Dead || p.HP <= 0
}

// Respawn 重生：在邊界內重新隨機定位
func (p *Player) Respawn(bounds Bounds) {
	p.X, p.Y = bounds.RandomPosition()
}

// RandomPosition 在邊界內產生均勻隨機座標
func (b Bounds) RandomPosition() (x, y float64) {
	x = b.Margin + rand.Float64()*(b.Width-2*b.Margin)
	y = b.Margin + rand.Float64()*(b.Height-2*b.Margin)
	return x, y
}
