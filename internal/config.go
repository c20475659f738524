package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 可以用 yaml 表示的時長
//
// 接受 "320s" / "5m" 的字串形式；純數字視為秒。
type Duration time.Duration

// UnmarshalYAML 實作 yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("無效的時長 %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("無效的時長: %s", value.Value)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// Std 轉回標準庫型別
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int      `yaml:"port"`
		ReadTimeout  Duration `yaml:"read_timeout"`
		WriteTimeout Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	// Arena 競技場的預設邊界
	// 房間創建時未指定寬高時使用
	Arena Bounds `yaml:"arena"`

	// Game 遊戲數值調校
	Game Tuning `yaml:"game"`

	// Colors 玩家顏色調色盤（加入時隨機分配）
	Colors []string `yaml:"colors"`

	// Rooms 啟動時預先建立的房間（demo / 除錯用）
	Rooms []RoomSettings `yaml:"rooms"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Bounds 競技場邊界
//
// 出生點與危險物皆在 [Margin, Width-Margin] × [Margin, Height-Margin]
// 範圍內均勻隨機產生，避免物件貼邊出現。
type Bounds struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Margin float64 `yaml:"margin"`
}

// Tuning 遊戲數值調校
//
// 集中管理分數與血量相關常數，方便平衡調整：
//   - 星星 +50 分
//   - 命中獎勵 +20 分
//   - 死亡懲罰 -20 分（分數下限為 0）
type Tuning struct {
	MaxHP             int      `yaml:"max_hp"`
	StarScore         int      `yaml:"star_score"`
	HitScoreBonus     int      `yaml:"hit_score_bonus"`
	DeathScorePenalty int      `yaml:"death_score_penalty"`
	HeartHeal         int      `yaml:"heart_heal"`
	HazardInterval    Duration `yaml:"hazard_interval"`
}

// RoomSettings 單一房間的設定
//
// QuantityPlayers 為 0 表示不限人數，遊戲只能由房主手動開始；
// 大於 0 時，人數到齊的那一次加入會自動開局。
type RoomSettings struct {
	Name            string   `yaml:"name"`
	Admin           string   `yaml:"admin"`
	QuantityPlayers int      `yaml:"quantity_players"`
	Time            Duration `yaml:"time"`
	Width           float64  `yaml:"width"`
	Height          float64  `yaml:"height"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 8081
	cfg.Server.ReadTimeout = Duration(15 * time.Second)
	cfg.Server.WriteTimeout = Duration(15 * time.Second)

	cfg.Arena = Bounds{Width: 800, Height: 600, Margin: 50}

	cfg.Game = Tuning{
		MaxHP:             100,
		StarScore:         50,
		HitScoreBonus:     20,
		DeathScorePenalty: 20,
		HeartHeal:         20,
		HazardInterval:    Duration(10 * time.Second),
	}

	cfg.Colors = []string{"0bed07", "200ee8", "ed2009", "db07eb", "f56d05"}

	// 兩個走入即玩的預設房間
	cfg.Rooms = []RoomSettings{
		{Name: "debug", Admin: "gonzalo", Time: Duration(320 * time.Second), Width: 1000},
		{Name: "d_m", Admin: "gonzalo", QuantityPlayers: 2, Time: Duration(320 * time.Second), Width: 1000},
	}

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// LoadConfig 從檔案載入配置
//
// 檔案不存在時使用預設值（方便本機直接啟動）；
// 環境變數 PORT 優先於配置檔（部署平台常用）。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置檔失敗: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("無效的 PORT 環境變數: %q", port)
		}
		cfg.Server.Port = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 驗證配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("無效的端口: %d", c.Server.Port)
	}
	if c.Arena.Width <= 2*c.Arena.Margin || c.Arena.Height <= 2*c.Arena.Margin {
		return fmt.Errorf("競技場邊界過小: %+v", c.Arena)
	}
	if c.Game.MaxHP <= 0 {
		return fmt.Errorf("max_hp 必須大於 0: %d", c.Game.MaxHP)
	}
	if c.Game.HazardInterval <= 0 {
		return fmt.Errorf("hazard_interval 必須大於 0: %v", c.Game.HazardInterval)
	}
	if len(c.Colors) == 0 {
		return fmt.Errorf("顏色調色盤不能為空")
	}
	for _, room := range c.Rooms {
		if err := room.Validate(); err != nil {
			return fmt.Errorf("預設房間 %q: %w", room.Name, err)
		}
	}
	return nil
}

// Validate 驗證房間設定
func (s *RoomSettings) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("房間名稱不能為空")
	}
	if s.Time <= 0 {
		return fmt.Errorf("比賽時長必須大於 0: %v", s.Time)
	}
	if s.QuantityPlayers < 0 {
		return fmt.Errorf("人數限制不能為負: %d", s.QuantityPlayers)
	}
	return nil
}

// bounds 計算房間實際使用的邊界（未指定時退回預設值）
func (s *RoomSettings) bounds(defaults Bounds) Bounds {
	b := defaults
	if s.Width > 0 {
		b.Width = s.Width
	}
	if s.Height > 0 {
		b.Height = s.Height
	}
	return b
}
