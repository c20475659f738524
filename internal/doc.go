// Package internal 實作多人競技場的會話引擎。
//
// 系統設計問題：
//   如何讓多場比賽在同一個行程內並行進行，彼此完全隔離，
//   並把每場比賽的狀態增量即時推送給場內的所有連線？
//
// 分層：
//
//	Room      — 單場比賽：玩家、分數、血量、比賽計時器、危險物生成
//	Directory — 房間註冊表：以名稱查找，連線斷開的反查索引
//	Hub       — WebSocket 閘道：具名事件協定與房間廣播（實作 Broadcaster）
//	Handler   — 唯讀 HTTP 查詢介面
//
// 併發模型：
//   - 每個房間一把互斥鎖，單一房間內的變更序列化，跨房間互不阻塞
//   - 計時器回呼以活性旗標擋下取消後的觸發
//   - 廣播經由注入的 Broadcaster 介面送出，核心不依賴傳輸層
package internal
