package internal_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koopa0/arena-server/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// TestDuration_UnmarshalYAML 測試時長解析
func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    time.Duration
		wantErr bool
	}{
		{name: "seconds suffix", yaml: `d: 320s`, want: 320 * time.Second},
		{name: "minutes suffix", yaml: `d: 5m`, want: 5 * time.Minute},
		{name: "bare number is seconds", yaml: `d: 15`, want: 15 * time.Second},
		{name: "garbage rejected", yaml: `d: sideways`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc struct {
				D internal.Duration `yaml:"d"`
			}
			err := yaml.Unmarshal([]byte(tt.yaml), &doc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.D.Std())
		})
	}
}

// TestDefaultConfig 測試預設配置
func TestDefaultConfig(t *testing.T) {
	cfg := internal.DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 800.0, cfg.Arena.Width)
	assert.Equal(t, 50.0, cfg.Arena.Margin)
	assert.Equal(t, 100, cfg.Game.MaxHP)
	assert.Equal(t, 50, cfg.Game.StarScore)
	assert.Len(t, cfg.Colors, 5)
	assert.Len(t, cfg.Rooms, 2)
}

// TestLoadConfig 測試配置載入
func TestLoadConfig(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := internal.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 8081, cfg.Server.Port)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
server:
  port: 9090
  read_timeout: 30s
game:
  hazard_interval: 3s
rooms:
  - name: lobby
    admin: gonzalo
    time: 2m
    quantity_players: 4
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := internal.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout.Std())
		assert.Equal(t, 3*time.Second, cfg.Game.HazardInterval.Std())

		require.Len(t, cfg.Rooms, 1)
		assert.Equal(t, "lobby", cfg.Rooms[0].Name)
		assert.Equal(t, 4, cfg.Rooms[0].QuantityPlayers)
		assert.Equal(t, 2*time.Minute, cfg.Rooms[0].Time.Std())
	})

	t.Run("PORT env wins", func(t *testing.T) {
		t.Setenv("PORT", "7070")
		cfg, err := internal.LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
	})

	t.Run("invalid PORT env rejected", func(t *testing.T) {
		t.Setenv("PORT", "not-a-port")
		_, err := internal.LoadConfig("")
		assert.Error(t, err)
	})
}

// TestConfig_Validate 測試配置驗證
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *internal.Config)
	}{
		{name: "bad port", mutate: func(cfg *internal.Config) { cfg.Server.Port = -1 }},
		{name: "arena too small", mutate: func(cfg *internal.Config) { cfg.Arena.Width = 80 }},
		{name: "zero max hp", mutate: func(cfg *internal.Config) { cfg.Game.MaxHP = 0 }},
		{name: "zero hazard interval", mutate: func(cfg *internal.Config) { cfg.Game.HazardInterval = 0 }},
		{name: "empty palette", mutate: func(cfg *internal.Config) { cfg.Colors = nil }},
		{name: "room without name", mutate: func(cfg *internal.Config) {
			cfg.Rooms = []internal.RoomSettings{{Admin: "gonzalo", Time: internal.Duration(time.Minute)}}
		}},
		{name: "room without duration", mutate: func(cfg *internal.Config) {
			cfg.Rooms = []internal.RoomSettings{{Name: "arena", Admin: "gonzalo"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := internal.DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
