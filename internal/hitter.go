package internal

import (
	"fmt"
	"sync"
)

// 系統設計問題：
//   如何把「命中事件 + 攻擊方詮釋資料」映射為具體的傷害效果，
//   並讓新的命中種類可以在不修改既有種類的情況下加入？
//
// 設計方案：
//   ✅ Hitter 介面 - 每種命中種類一個實作，統一回傳非負傷害值
//   ✅ 註冊表 - 以種類標籤查找建構函式（開放擴充點）
//   ✅ 目標變更留給呼叫端 - 映射器本身不碰玩家狀態

// Hitter 單次命中事件的解析結果
//
// 只存在於一次命中處理的期間，不被持久化。
// 實作不得假設目標存活，死亡判斷是呼叫端的責任。
type Hitter interface {
	// Kind 命中種類標籤
	Kind() string
	// Damage 非負傷害值；對目標的實際變更由呼叫端執行
	Damage() int
}

// HitterMetadata 攻擊方的詮釋資料
//
// 各命中種類自行解讀需要的欄位，未使用的欄位保持零值即可。
type HitterMetadata struct {
	// PlayerName 攻擊方玩家名稱（計分用）
	PlayerName string `json:"playerName"`
	// Damage 客戶端宣告的傷害值（雷射用；0 表示使用預設值）
	Damage int `json:"damage"`
	// Knockback 擊退力道（近戰用，原樣回傳給客戶端）
	Knockback float64 `json:"knockback"`
	// Radius / Distance 爆炸半徑與目標距離（範圍傷害用）
	Radius   float64 `json:"radius"`
	Distance float64 `json:"distance"`
}

// HitterFactory 由詮釋資料與目標建構 Hitter
type HitterFactory func(meta HitterMetadata, target *Player) Hitter

var (
	hitterMu       sync.RWMutex
	hitterRegistry = map[string]HitterFactory{}
)

// RegisterHitter 註冊新的命中種類
//
// 同名註冊以後者為準，方便測試替換。
func RegisterHitter(kind string, factory HitterFactory) {
	hitterMu.Lock()
	defer hitterMu.Unlock()
	hitterRegistry[kind] = factory
}

// ResolveHitter 以種類標籤解析命中事件
func ResolveHitter(kind string, meta HitterMetadata, target *Player) (Hitter, error) {
	hitterMu.RLock()
	factory, ok := hitterRegistry[kind]
	hitterMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHitter, kind)
	}
	return factory(meta, target), nil
}

// 內建命中種類的預設傷害
const (
	defaultLaserDamage     = 25
	defaultMeleeDamage     = 15
	defaultExplosionDamage = 40
	defaultMeteorDamage    = 30
)

// laserHitter 雷射彈：傷害可由客戶端宣告，否則使用預設值
type laserHitter struct {
	damage int
}

func (l *laserHitter) Kind() string { return "laser" }
func (l *laserHitter) Damage() int  { return l.damage }

// meleeHitter 近戰：固定傷害加擊退
type meleeHitter struct {
	knockback float64
}

func (m *meleeHitter) Kind() string { return "melee" }
func (m *meleeHitter) Damage() int  { return defaultMeleeDamage }

// explosionHitter 爆炸：傷害隨距離線性衰減
type explosionHitter struct {
	damage int
}

func (e *explosionHitter) Kind() string { return "explosion" }
func (e *explosionHitter) Damage() int  { return e.damage }

// meteorHitter 隕石：環境傷害，固定數值
type meteorHitter struct{}

func (m *meteorHitter) Kind() string { return "meteor" }
func (m *meteorHitter) Damage() int  { return defaultMeteorDamage }

func init() {
	RegisterHitter("laser", func(meta HitterMetadata, _ *Player) Hitter {
		damage := meta.Damage
		if damage <= 0 {
			damage = defaultLaserDamage
		}
		return &laserHitter{damage: damage}
	})

	RegisterHitter("melee", func(meta HitterMetadata, _ *Player) Hitter {
		return &meleeHitter{knockback: meta.Knockback}
	})

	RegisterHitter("explosion", func(meta HitterMetadata, _ *Player) Hitter {
		damage := defaultExplosionDamage
		if meta.Radius > 0 && meta.Distance > 0 {
			falloff := 1 - meta.Distance/meta.Radius
			if falloff < 0 {
				falloff = 0
			}
			damage = int(float64(damage) * falloff)
		}
		return &explosionHitter{damage: damage}
	})

	RegisterHitter("meteor", func(_ HitterMetadata, _ *Player) Hitter {
		return &meteorHitter{}
	})
}
