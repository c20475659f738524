package internal

import "math/rand/v2"

// HazardKind 危險物種類標籤
type HazardKind string

const (
	HazardStar    HazardKind = "star"
	HazardHeart   HazardKind = "heart"
	HazardPowerup HazardKind = "powerup"
)

// Hazard 短暫存在的可撿取物
//
// 伺服器產生後隨即廣播並遺忘，不追蹤是否真的被撿取；
// 同一幀內兩名玩家同時撿取時雙方都會得到效果，這是刻意
// 保留的行為（伺服器端沒有危險物的身分可供去重）。
type Hazard interface {
	Kind() HazardKind
}

// Star 星星：撿取加分
type Star struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewStar 在邊界內隨機位置產生星星
func NewStar(bounds Bounds) *Star {
	x, y := bounds.RandomPosition()
	return &Star{X: x, Y: y}
}

func (s *Star) Kind() HazardKind { return HazardStar }

// Heart 愛心：撿取回血
type Heart struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`

	heal int
}

// NewHeart 在邊界內隨機位置產生愛心
func NewHeart(bounds Bounds, heal int) *Heart {
	x, y := bounds.RandomPosition()
	return &Heart{X: x, Y: y, heal: heal}
}

func (h *Heart) Kind() HazardKind { return HazardHeart }

// Powerup 強化道具：效果由客戶端解讀，伺服器只負責位置
type Powerup struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPowerup 在邊界內隨機位置產生強化道具
func NewPowerup(bounds Bounds) *Powerup {
	x, y := bounds.RandomPosition()
	return &Powerup{X: x, Y: y}
}

func (p *Powerup) Kind() HazardKind { return HazardPowerup }

// randomHazard 週期性生成時隨機挑選一種危險物
//
// 星星出現頻率最高，愛心與強化道具較稀有。
func randomHazard(bounds Bounds, tuning Tuning) Hazard {
	switch n := rand.IntN(10); {
	case n < 6:
		return NewStar(bounds)
	case n < 8:
		return NewHeart(bounds, tuning.HeartHeal)
	default:
		return NewPowerup(bounds)
	}
}
