package ws

import (
	"encoding/json"
	"sync"
	"time"
)

type uploadRequest struct {
	Targets json.RawMessage `json:"targets"`
	Users   []User          `json:"users"`
}

// resolveTargets interprets the targets field: the string "all" (or an
// absent field) selects every currently known terminal id; an explicit
// list or a single id string is taken as-is.
func (g *Gateway) resolveTargets(raw json.RawMessage) (ids []string, all bool) {
	if len(raw) == 0 {
		return g.terminalKeys(), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "all" || s == "" {
			return g.terminalKeys(), true
		}
		return []string{s}, false
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, false
	}
	return nil, false
}

// handleUploadUsers runs the upload pipeline for one operator request:
// immediate ack, pending-store bookkeeping, then paced dispatch to
// every currently connected target followed by a done frame. Dispatch
// happens off the read goroutine so further commands from the same
// client can interleave with a long upload.
func (g *Gateway) handleUploadUsers(p peer, req uploadRequest) {
	ids, all := g.resolveTargets(req.Targets)

	var echo any
	if len(req.Targets) > 0 {
		_ = json.Unmarshal(req.Targets, &echo)
	} else {
		echo = "all"
	}
	sendJSON(p, map[string]any{"type": "ack", "cmd": "upload_users", "targets": echo, "count": len(ids)})

	g.mu.Lock()
	if all {
		// Replace, never merge: only the latest broadcast is replayed
		// to terminals that register later.
		g.pendingForAll = req.Users
	} else {
		for _, id := range ids {
			if _, known := g.terminals[id]; !known {
				g.pendingByID[id] = req.Users
			}
		}
	}
	targets := make([]*Terminal, 0, len(ids))
	for _, id := range ids {
		if t, ok := g.terminals[id]; ok {
			targets = append(targets, t)
		}
	}
	g.mu.Unlock()

	go func() {
		var wg sync.WaitGroup
		for _, t := range targets {
			wg.Add(1)
			go func(t *Terminal) {
				defer wg.Done()
				g.uploadToTerminal(t, req.Users)
			}(t)
		}
		wg.Wait()
		sendJSON(p, map[string]any{"type": "done", "cmd": "upload_users"})
	}()
}

// uploadToTerminal expands each record's mode list into individual
// setuserinfo commands and dispatches them in stable (record, then
// mode) order. The correlation entry is recorded before the send so
// FIFO position always equals send position. Consecutive sends to the
// same terminal are spaced by the pacing delay; device firmware drops
// frames when pushed back to back.
func (g *Gateway) uploadToTerminal(t *Terminal, users []User) {
	first := true
	for _, u := range users {
		base := make(map[string]any, len(u))
		for k, v := range u {
			if k != "modes" {
				base[k] = v
			}
		}
		for _, m := range modesOf(u) {
			payload := make(map[string]any, len(base)+len(m)+1)
			for k, v := range base {
				payload[k] = v
			}
			for k, v := range m {
				payload[k] = v
			}
			payload["cmd"] = "setuserinfo"

			data, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			if !first {
				time.Sleep(g.pacing)
			}
			first = false

			g.mu.Lock()
			if t.gone {
				// Terminal disconnected mid-sequence; abandon the rest.
				g.mu.Unlock()
				return
			}
			t.pendingUploads = append(t.pendingUploads, pendingUpload{
				enrollID: intField(u, "enrollid"),
				name:     stringField(u, "name"),
				modeCode: int(intField(m, "backupnum")),
			})
			g.safeSend(t, "setuserinfo", data)
			g.mu.Unlock()
		}
	}
}

func modesOf(u User) []map[string]any {
	raw, ok := u["modes"].([]any)
	if !ok {
		return nil
	}
	modes := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		if mm, ok := m.(map[string]any); ok {
			modes = append(modes, mm)
		}
	}
	return modes
}

func intField(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
