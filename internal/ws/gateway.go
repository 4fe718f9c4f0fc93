package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/zaqqye/term_gateway_v1/internal/metric"
)

// User is one enrollment record as sent by the operator client: base
// fields (enrollid, name, ...) plus a "modes" list. Field sets are
// device-defined, so records stay schemaless.
type User map[string]any

// LogSink receives raw attendance records pushed by a device and
// returns their enriched form for viewer forwarding.
type LogSink interface {
	Submit(serial string, records []map[string]any) []map[string]any
}

// Gateway owns all connection and delivery state: the terminal
// registry, the pending store, the active operator/viewer references
// and the reply dedup set. One instance per process, created in main
// and handed to every handler; tests build a fresh one each.
type Gateway struct {
	mu sync.Mutex

	terminals map[string]*Terminal

	// Pending store. pendingForAll is replayed to every terminal that
	// registers after it was set; pendingByID and pendingCmds are
	// consumed on the first registration of their key.
	pendingForAll []User
	pendingByID   map[string][]User
	pendingCmds   map[string][][]byte

	activeClient peer
	activeViewer peer

	pacing time.Duration
	dedup  *dedupSet

	sink    LogSink
	metrics *metric.Metrics
}

func NewGateway(sink LogSink, m *metric.Metrics, pacing, dedupWindow time.Duration) *Gateway {
	return &Gateway{
		terminals:   make(map[string]*Terminal),
		pendingByID: make(map[string][]User),
		pendingCmds: make(map[string][][]byte),
		pacing:      pacing,
		dedup:       newDedupSet(dedupWindow),
		sink:        sink,
		metrics:     m,
	}
}

func (g *Gateway) addTerminal(key string, p peer, meta Meta) *Terminal {
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.terminals[key]; ok {
		// Same key reconnecting; displace the stale entry.
		old.gone = true
		old.peer.close()
	}
	t := &Terminal{key: key, peer: p, meta: meta}
	g.terminals[key] = t
	g.metrics.TerminalsConnected.Set(float64(len(g.terminals)))
	return t
}

// removeTerminalByPeer drops the entry owning p, discarding any queued
// or unacknowledged items. Nothing is requeued elsewhere.
func (g *Gateway) removeTerminalByPeer(p peer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, t := range g.terminals {
		if t.peer == p {
			t.gone = true
			delete(g.terminals, key)
			g.metrics.TerminalsConnected.Set(float64(len(g.terminals)))
			log.Printf("ws: terminal disconnected: %s", key)
			return
		}
	}
}

func (g *Gateway) terminalKeys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	keys := make([]string, 0, len(g.terminals))
	for key := range g.terminals {
		keys = append(keys, key)
	}
	return keys
}

// Snapshot returns the registry in wire form, shared by the `list`
// websocket command and the REST endpoint.
func (g *Gateway) Snapshot() []TerminalInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	infos := make([]TerminalInfo, 0, len(g.terminals))
	for key, t := range g.terminals {
		infos = append(infos, TerminalInfo{ID: key, Ready: t.ready, Meta: t.meta})
	}
	return infos
}

func (g *Gateway) setActiveClient(p peer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	// Last connected wins; the displaced client keeps its socket and
	// simply stops receiving routed output.
	g.activeClient = p
}

func (g *Gateway) clearActiveClient(p peer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.activeClient == p {
		g.activeClient = nil
	}
}

func (g *Gateway) setActiveViewer(p peer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.activeViewer = p
}

func (g *Gateway) clearActiveViewer(p peer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.activeViewer == p {
		g.activeViewer = nil
	}
}

// clearPending wipes both pending stores and any deferred commands.
func (g *Gateway) clearPending() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pendingForAll = nil
	g.pendingByID = make(map[string][]User)
	g.pendingCmds = make(map[string][][]byte)
}

// safeSend delivers payload now when the terminal is ready and its
// socket is open, otherwise parks it on the terminal's queue for the
// drain that runs at registration. Caller must hold g.mu.
func (g *Gateway) safeSend(t *Terminal, cmd string, payload []byte) {
	if t.ready && t.peer.alive() {
		t.peer.enqueue(payload)
		g.metrics.CommandsSent.WithLabelValues(cmd).Inc()
		return
	}
	t.queue = append(t.queue, payload)
	g.metrics.CommandsQueued.Inc()
}

// drainQueue flushes the terminal's own queue in FIFO order. Stops as
// soon as the socket dies; remaining items are abandoned with the
// entry. Caller must hold g.mu.
func (g *Gateway) drainQueue(t *Terminal) {
	for len(t.queue) > 0 && t.peer.alive() {
		payload := t.queue[0]
		t.queue = t.queue[1:]
		t.peer.enqueue(payload)
	}
}

// sendJSON marshals v and enqueues it on p. Marshal failures are
// logged and dropped; they indicate a programming error, not a peer
// problem.
func sendJSON(p peer, v any) {
	if p == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws: marshal failed: %v", err)
		return
	}
	p.enqueue(data)
}
