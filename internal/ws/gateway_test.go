package ws

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaqqye/term_gateway_v1/internal/metric"
)

// fakePeer records every enqueued frame.
type fakePeer struct {
	mu     sync.Mutex
	frames [][]byte
	dead   bool
}

func (f *fakePeer) enqueue(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead {
		return false
	}
	f.frames = append(f.frames, payload)
	return true
}

func (f *fakePeer) alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead
}

func (f *fakePeer) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = true
}

// sent decodes every recorded frame.
func (f *fakePeer) sent() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, b := range f.frames {
		var m map[string]any
		if err := json.Unmarshal(b, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// sentWithCmd filters decoded frames by their cmd field.
func (f *fakePeer) sentWithCmd(cmd string) []map[string]any {
	var out []map[string]any
	for _, m := range f.sent() {
		if m["cmd"] == cmd {
			out = append(out, m)
		}
	}
	return out
}

func newTestGateway() *Gateway {
	return NewGateway(nil, metric.NewMetrics(), time.Millisecond, 50*time.Millisecond)
}

func regFrame(sn string) []byte {
	b, _ := json.Marshal(map[string]any{"cmd": "reg", "sn": sn})
	return b
}

func TestAddAndRemoveTerminal(t *testing.T) {
	g := newTestGateway()
	p := &fakePeer{}
	g.addTerminal("T1", p, Meta{IP: "10.0.0.1"})

	infos := g.Snapshot()
	require.Len(t, infos, 1)
	assert.Equal(t, "T1", infos[0].ID)
	assert.False(t, infos[0].Ready)

	g.removeTerminalByPeer(p)
	assert.Empty(t, g.Snapshot())
}

func TestRegistrationMarksReadyAndAcks(t *testing.T) {
	g := newTestGateway()
	p := &fakePeer{}
	g.addTerminal("T1", p, Meta{})

	key := g.handleDeviceFrame("T1", p, regFrame("T1"))
	assert.Equal(t, "T1", key)

	frames := p.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, "reg", frames[0]["ret"])
	assert.Equal(t, true, frames[0]["result"])
	assert.Equal(t, true, frames[0]["nosenduser"])
	assert.NotEmpty(t, frames[0]["cloudtime"])

	infos := g.Snapshot()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Ready)
}

func TestRegistrationRekeyPreservesQueue(t *testing.T) {
	g := newTestGateway()
	p := &fakePeer{}
	provisional := "10.0.0.1-abc"
	tm := g.addTerminal(provisional, p, Meta{IP: "10.0.0.1"})

	// Queue items while the terminal is not ready.
	g.mu.Lock()
	g.safeSend(tm, "setuserinfo", []byte(`{"cmd":"setuserinfo","enrollid":1}`))
	g.safeSend(tm, "setuserinfo", []byte(`{"cmd":"setuserinfo","enrollid":2}`))
	g.mu.Unlock()
	assert.Empty(t, p.sent())

	key := g.handleDeviceFrame(provisional, p, regFrame("SN9000"))
	assert.Equal(t, "SN9000", key)

	infos := g.Snapshot()
	require.Len(t, infos, 1)
	assert.Equal(t, "SN9000", infos[0].ID)

	// Drained in FIFO order after the reg ack.
	cmds := p.sentWithCmd("setuserinfo")
	require.Len(t, cmds, 2)
	assert.Equal(t, float64(1), cmds[0]["enrollid"])
	assert.Equal(t, float64(2), cmds[1]["enrollid"])
}

func TestSerialFieldFallbackOrder(t *testing.T) {
	g := newTestGateway()
	p := &fakePeer{}
	g.addTerminal("prov", p, Meta{})

	frame, _ := json.Marshal(map[string]any{"cmd": "reg", "sncode": "SN-FROM-SNCODE"})
	key := g.handleDeviceFrame("prov", p, frame)
	assert.Equal(t, "SN-FROM-SNCODE", key)
}

func TestListCommand(t *testing.T) {
	g := newTestGateway()
	g.addTerminal("T1", &fakePeer{}, Meta{IP: "10.0.0.1"})

	client := &fakePeer{}
	g.handleClientFrame(client, []byte(`{"cmd":"list"}`))

	frames := client.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, "terminals", frames[0]["type"])
	terminals := frames[0]["terminals"].([]any)
	require.Len(t, terminals, 1)
}

func TestClientInvalidJSON(t *testing.T) {
	g := newTestGateway()
	client := &fakePeer{}
	g.handleClientFrame(client, []byte("not json"))

	frames := client.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, "invalid_json", frames[0]["error"])
}

func TestClientUnknownCmd(t *testing.T) {
	g := newTestGateway()
	client := &fakePeer{}
	g.handleClientFrame(client, []byte(`{"cmd":"reboot_everything"}`))

	frames := client.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, "unknown_cmd", frames[0]["error"])
}

func TestDeviceMalformedFrameIgnored(t *testing.T) {
	g := newTestGateway()
	p := &fakePeer{}
	g.addTerminal("T1", p, Meta{})

	key := g.handleDeviceFrame("T1", p, []byte("garbage"))
	assert.Equal(t, "T1", key)
	assert.Empty(t, p.sent())
}

func TestClearPending(t *testing.T) {
	g := newTestGateway()
	client := &fakePeer{}

	g.handleClientFrame(client, []byte(`{"cmd":"upload_users","targets":"all","users":[{"enrollid":1,"name":"A","modes":[{"backupnum":0}]}]}`))
	require.Eventually(t, func() bool {
		for _, m := range client.sent() {
			if m["type"] == "done" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	g.handleClientFrame(client, []byte(`{"cmd":"clear_pending"}`))

	// A terminal registering afterwards receives nothing from the
	// pending store.
	p := &fakePeer{}
	g.addTerminal("T1", p, Meta{})
	g.handleDeviceFrame("T1", p, regFrame("T1"))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, p.sentWithCmd("setuserinfo"))
}

func TestActiveClientSuperseded(t *testing.T) {
	g := newTestGateway()
	first := &fakePeer{}
	second := &fakePeer{}

	g.setActiveClient(first)
	g.setActiveClient(second)

	// Closing the displaced client must not clear the new reference.
	g.clearActiveClient(first)

	g.mu.Lock()
	active := g.activeClient
	g.mu.Unlock()
	assert.Equal(t, second, active)
	assert.True(t, first.alive(), "displaced client keeps its socket")
}
