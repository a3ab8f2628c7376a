package devices

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/HerbHall/tvbridge/internal/coordinator"
	"github.com/HerbHall/tvbridge/internal/server"
	"github.com/HerbHall/tvbridge/pkg/models"
	"github.com/HerbHall/tvbridge/pkg/plugin"
)

const wsWriteTimeout = 5 * time.Second

// handleWebSocket streams a device's snapshot: the current one on connect,
// then every refreshed one until the client goes away.
func (m *Module) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	if m.bus == nil {
		server.Conflict(w, "live updates are unavailable", r.URL.Path)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		m.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead ends ctx when they disconnect.
	ctx := conn.CloseRead(r.Context())

	updates := make(chan models.Snapshot, 8)
	unsubscribe := m.bus.Subscribe(coordinator.TopicSnapshotUpdated, func(_ context.Context, e plugin.Event) {
		ev, ok := e.Payload.(coordinator.SnapshotEvent)
		if !ok || ev.DeviceID != c.ID() {
			return
		}
		select {
		case updates <- ev.Snapshot:
		default: // slow reader; it will get the next one
		}
	})
	defer unsubscribe()

	if err := writeSnapshot(ctx, conn, c.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case s := <-updates:
			if err := writeSnapshot(ctx, conn, s); err != nil {
				m.logger.Debug("websocket write failed", zap.String("device", c.ID()), zap.Error(err))
				return
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, s models.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, s)
}
