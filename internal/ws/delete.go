package ws

import "encoding/json"

// Backup number 13 instructs the terminal to erase every enrollment
// record it holds for the user.
const BackupnumEraseAll = 13

type deleteRequest struct {
	Targets   json.RawMessage `json:"targets"`
	EnrollID  *int64          `json:"enrollid"`
	Backupnum *int            `json:"backupnum"`
}

// handleDeleteUser sends a single deleteuser command per target. No
// per-mode expansion and no correlation entry; device replies to
// deletes are only logged. Targets that are not ready get the command
// parked in the pending store and delivered on registration.
func (g *Gateway) handleDeleteUser(p peer, req deleteRequest) {
	if req.EnrollID == nil || req.Backupnum == nil {
		sendJSON(p, map[string]any{"error": "missing_delete_params"})
		return
	}

	payload, err := json.Marshal(map[string]any{
		"cmd":       "deleteuser",
		"enrollid":  *req.EnrollID,
		"backupnum": *req.Backupnum,
	})
	if err != nil {
		return
	}

	ids, _ := g.resolveTargets(req.Targets)

	g.mu.Lock()
	for _, sn := range ids {
		if t, ok := g.terminals[sn]; ok && t.ready && t.peer.alive() {
			t.peer.enqueue(payload)
			g.metrics.CommandsSent.WithLabelValues("deleteuser").Inc()
			continue
		}
		g.pendingCmds[sn] = append(g.pendingCmds[sn], payload)
		g.metrics.CommandsQueued.Inc()
	}
	g.mu.Unlock()

	var echo any
	if len(req.Targets) > 0 {
		_ = json.Unmarshal(req.Targets, &echo)
	} else {
		echo = "all"
	}
	sendJSON(p, map[string]any{"type": "ack", "cmd": "deleteuser", "targets": echo, "count": len(ids)})
	sendJSON(p, map[string]any{"type": "done", "cmd": "deleteuser", "sentCount": len(ids)})
}
