package ws

import (
	"encoding/json"
	"log"
	"strings"
)

type clientCommand struct {
	Cmd       string          `json:"cmd"`
	Targets   json.RawMessage `json:"targets"`
	Users     []User          `json:"users"`
	EnrollID  *int64          `json:"enrollid"`
	Backupnum *int            `json:"backupnum"`
}

// handleClientFrame dispatches one operator-client frame. Malformed
// JSON is answered in-band; the socket is never closed over a schema
// violation.
func (g *Gateway) handleClientFrame(p peer, raw []byte) {
	trimmed := strings.TrimSpace(string(raw))

	var cmd clientCommand
	if err := json.Unmarshal([]byte(trimmed), &cmd); err != nil {
		sendJSON(p, map[string]any{"error": "invalid_json"})
		return
	}

	switch cmd.Cmd {
	case "list":
		sendJSON(p, map[string]any{"type": "terminals", "terminals": g.Snapshot()})
	case "clear_pending":
		g.clearPending()
		sendJSON(p, map[string]any{"type": "done", "cmd": "clear_pending"})
	case "upload_users":
		g.handleUploadUsers(p, uploadRequest{Targets: cmd.Targets, Users: cmd.Users})
	case "deleteuser":
		g.handleDeleteUser(p, deleteRequest{Targets: cmd.Targets, EnrollID: cmd.EnrollID, Backupnum: cmd.Backupnum})
	default:
		log.Printf("ws: unknown client command %q", cmd.Cmd)
		sendJSON(p, map[string]any{"error": "unknown_cmd"})
	}
}
