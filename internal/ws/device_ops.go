package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/zaqqye/term_gateway_v1/internal/utils"
)

// serialFields are the registration fields a terminal may report its
// serial number in, checked in order; first non-empty wins.
var serialFields = [...]string{"sn", "sncode", "deviceid", "sncode1"}

// handleDeviceFrame processes one frame from a terminal socket and
// returns the entry's current key, which changes when a registration
// message re-keys the entry. Malformed frames are ignored without a
// response: terminal firmware retries in tight loops and must not be
// fed error frames it cannot parse.
func (g *Gateway) handleDeviceFrame(key string, p peer, raw []byte) string {
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return key
	}

	cmd := stringField(msg, "cmd")
	if cmd == "" {
		cmd = stringField(msg, "ret")
	}

	switch cmd {
	case "reg":
		return g.handleReg(key, p, msg)
	case "sendlog":
		g.handleSendlog(key, p, msg)
	case "setuserinfo":
		if _, isReply := msg["ret"]; isReply {
			g.handleSetUserInfoReply(key, msg)
		}
	}
	return key
}

// handleReg moves the entry from provisional to ready: re-key to the
// reported serial, acknowledge, drain the entry's own queue, then
// replay the pending store through the upload pipeline.
func (g *Gateway) handleReg(key string, p peer, msg map[string]any) string {
	var serial string
	for _, f := range serialFields {
		if s := stringField(msg, f); s != "" {
			serial = s
			break
		}
	}

	g.mu.Lock()
	t, ok := g.terminals[key]
	if !ok {
		// Entry vanished between read and handling; recreate it so the
		// device still comes up ready.
		t = &Terminal{key: key, peer: p, meta: Meta{ConnectedAt: time.Now().UTC().Format(time.RFC3339)}}
		g.terminals[key] = t
		g.metrics.TerminalsConnected.Set(float64(len(g.terminals)))
	}

	if serial != "" && serial != key {
		if old, exists := g.terminals[serial]; exists && old != t {
			old.gone = true
			old.peer.close()
		}
		delete(g.terminals, key)
		t.key = serial
		t.meta.SN = &serial
		g.terminals[serial] = t
		g.metrics.TerminalsConnected.Set(float64(len(g.terminals)))
		log.Printf("ws: terminal %s re-keyed to serial %s", key, serial)
	}

	ack, _ := json.Marshal(map[string]any{
		"ret":        "reg",
		"result":     true,
		"cloudtime":  utils.Cloudtime(time.Now()),
		"nosenduser": true, // the device must not self-initiate enrollment upload
	})
	p.enqueue(ack)

	t.ready = true
	g.drainQueue(t)

	// Deferred single commands (deletes issued while offline): consumed.
	for _, payload := range g.pendingCmds[t.key] {
		if !t.peer.alive() {
			break
		}
		t.peer.enqueue(payload)
	}
	delete(g.pendingCmds, t.key)

	perID := g.pendingByID[t.key]
	delete(g.pendingByID, t.key) // single-use
	global := g.pendingForAll    // multi-use until replaced or cleared
	g.mu.Unlock()

	log.Printf("ws: terminal %s registered (queue drained, ready)", t.key)

	if len(perID) > 0 || len(global) > 0 {
		go func() {
			g.uploadToTerminal(t, perID)
			g.uploadToTerminal(t, global)
		}()
	}
	return t.key
}

// handleSendlog acknowledges the batch synchronously and hands the
// records to the relay off the read goroutine; the device handshake
// must never wait on geocoding or the backend.
func (g *Gateway) handleSendlog(key string, p peer, msg map[string]any) {
	records := recordsOf(msg)

	count := intField(msg, "count")
	if count == 0 {
		count = int64(len(records))
	}
	sendJSON(p, map[string]any{
		"ret":       "sendlog",
		"result":    true,
		"count":     count,
		"logindex":  msg["logindex"],
		"cloudtime": utils.Cloudtime(time.Now()),
		"access":    1,
	})

	if g.sink == nil || len(records) == 0 {
		return
	}
	go func() {
		enriched := g.sink.Submit(key, records)
		g.metrics.LogsReceived.Add(float64(len(enriched)))

		g.mu.Lock()
		viewer := g.activeViewer
		g.mu.Unlock()
		if viewer != nil {
			sendJSON(viewer, map[string]any{"type": "log_event", "logs": enriched})
		}
	}()
}

// handleSetUserInfoReply correlates a device acknowledgement back to
// the upload that caused it. An enrollid echoed by the device wins;
// otherwise the oldest unmatched entry is assumed to be the one being
// acknowledged. That FIFO assumption holds only while the firmware
// acknowledges in send order; it is not verified here.
func (g *Gateway) handleSetUserInfoReply(key string, msg map[string]any) {
	result, _ := msg["result"].(bool)

	var enrollID int64
	var name string

	g.mu.Lock()
	t := g.terminals[key]
	if _, explicit := msg["enrollid"]; explicit {
		enrollID = intField(msg, "enrollid")
		name = stringField(msg, "name")
		if t != nil {
			for i, pu := range t.pendingUploads {
				if pu.enrollID == enrollID {
					if name == "" {
						name = pu.name
					}
					t.pendingUploads = append(t.pendingUploads[:i], t.pendingUploads[i+1:]...)
					break
				}
			}
		}
	} else if t != nil && len(t.pendingUploads) > 0 {
		pu := t.pendingUploads[0]
		t.pendingUploads = t.pendingUploads[1:]
		enrollID = pu.enrollID
		name = pu.name
	}
	client := g.activeClient
	g.mu.Unlock()

	dkey := fmt.Sprintf("%s|%d|setuserinfo", key, enrollID)
	if g.dedup.seen(dkey) {
		g.metrics.RepliesDeduped.Inc()
		return
	}

	var text string
	if result {
		text = fmt.Sprintf("%s with id of %d has been uploaded", name, enrollID)
	} else {
		text = fmt.Sprintf("%s with id of %d has failed to upload", name, enrollID)
	}

	if client == nil {
		log.Printf("ws: no active client for upload result: %s", text)
		return
	}
	sendJSON(client, map[string]any{
		"type":     "response",
		"cmd":      "upload_users",
		"result":   result,
		"enrollid": enrollID,
		"name":     name,
		"msg":      text,
	})
}

func recordsOf(msg map[string]any) []map[string]any {
	raw, ok := msg["record"].([]any)
	if !ok {
		return nil
	}
	records := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if rm, ok := r.(map[string]any); ok {
			records = append(records, rm)
		}
	}
	return records
}
