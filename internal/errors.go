package internal

import "errors"

// 錯誤分類：
//   - 查無資源（房間 / 玩家 / 命中種類）：瞬態競速路徑上靜默吸收，
//     邊界操作上回報給發起的客戶端
//   - 非法狀態轉換（重複開局、對進行中房間加入）：一律回報
//
// 任何錯誤都不會中斷進程，單一房間的故障不影響其他房間。
var (
	ErrRoomNotFound       = errors.New("房間不存在")
	ErrPlayerNotFound     = errors.New("玩家不存在")
	ErrPlayerExists       = errors.New("玩家名稱已被使用")
	ErrGameRunning        = errors.New("遊戲已開始，無法加入")
	ErrGameAlreadyStarted = errors.New("遊戲已經開始")
	ErrGameFinished       = errors.New("遊戲已經結束")
	ErrGameNotReady       = errors.New("人數尚未到齊")
	ErrNotAdmin           = errors.New("只有房主可以開始遊戲")
	ErrUnknownHitter      = errors.New("未知的命中種類")
)
