package handler

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"ipintel/internal/model"
	"ipintel/internal/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSMessage is one frame of the streaming batch protocol. "result"
// frames carry the input index of the finished item and arrive in
// completion order; a final "done" frame closes the batch.
type WSMessage struct {
	Type   string             `json:"type"`
	Index  int                `json:"index,omitempty"`
	Result *model.QueryResult `json:"result,omitempty"`
	Total  int                `json:"total,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// HandleWS streams batch results over a websocket as items complete,
// then sends a summary frame. One batch per connection message.
func (h *Handler) HandleWS(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = ws.Close()
	}()

	for {
		var req model.BatchRequest
		if err := ws.ReadJSON(&req); err != nil {
			break
		}

		bad := ""
		for _, ip := range req.IPs {
			if !utils.IsPlausibleIP(ip) {
				bad = ip
				break
			}
		}
		if len(req.IPs) == 0 || bad != "" {
			_ = ws.WriteJSON(WSMessage{Type: "error", Error: "ips must be a non-empty array of IP addresses"})
			continue
		}

		// The observer runs on pool goroutines; gorilla connections
		// allow one concurrent writer.
		var mu sync.Mutex
		results, err := h.Engine.QueryBatchFunc(c.Request().Context(), req.IPs, req.Proxy, req.Mode,
			func(i int, res model.QueryResult) {
				mu.Lock()
				defer mu.Unlock()
				_ = ws.WriteJSON(WSMessage{Type: "result", Index: i, Result: &res})
			})
		if err != nil {
			_ = ws.WriteJSON(WSMessage{Type: "error", Error: err.Error()})
			continue
		}

		_ = ws.WriteJSON(WSMessage{Type: "done", Total: len(results)})
	}
	return nil
}
