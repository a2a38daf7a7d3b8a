package handlers

import (
	"net/http"
	"time"

	"launchpad-deployment/internal/logger"
	"launchpad-deployment/internal/models"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// streamMessage is one frame on the log stream: either a log entry or the
// final run status.
type streamMessage struct {
	Type   string           `json:"type"`
	Entry  *models.LogEntry `json:"entry,omitempty"`
	Status models.RunStatus `json:"status,omitempty"`
}

// LogsStream pushes new log entries for a subject over a websocket until its
// attempt is no longer running, then sends the run status and closes.
func (h *Handler) LogsStream(w http.ResponseWriter, r *http.Request) {
	id, ok := appID(w, r)
	if !ok {
		return
	}
	if _, err := h.subjects.LoadSubject(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := logger.WithSubject("handlers", id)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	sent := 0
	for {
		entries, status := h.deployer.GetLogs(id)
		// A new attempt clears the log.
		if len(entries) < sent {
			sent = 0
		}
		for i := sent; i < len(entries); i++ {
			if err := h.send(conn, streamMessage{Type: "log", Entry: &entries[i]}); err != nil {
				log.WithError(err).Debug("Log stream write failed")
				return
			}
		}
		sent = len(entries)

		if status != models.RunDeploying {
			if err := h.send(conn, streamMessage{Type: "status", Status: status}); err != nil {
				return
			}
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, msg streamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
