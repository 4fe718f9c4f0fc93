package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteRequiresParams(t *testing.T) {
	g := newTestGateway()
	client := &fakePeer{}

	g.handleClientFrame(client, []byte(`{"cmd":"deleteuser","targets":"all"}`))

	frames := client.sent()
	require.Len(t, frames, 1)
	assert.Equal(t, "missing_delete_params", frames[0]["error"])
}

func TestDeleteSendsSingleCommandPerTarget(t *testing.T) {
	g := newTestGateway()
	t1 := readyTerminal(g, "T1")
	t2 := readyTerminal(g, "T2")
	client := &fakePeer{}

	g.handleClientFrame(client, []byte(`{"cmd":"deleteuser","targets":"all","enrollid":1003,"backupnum":13}`))

	for _, term := range []*fakePeer{t1, t2} {
		cmds := term.sentWithCmd("deleteuser")
		require.Len(t, cmds, 1)
		assert.Equal(t, float64(1003), cmds[0]["enrollid"])
		assert.Equal(t, float64(13), cmds[0]["backupnum"])
	}

	frames := client.sent()
	require.Len(t, frames, 2)
	assert.Equal(t, "ack", frames[0]["type"])
	assert.Equal(t, float64(2), frames[0]["count"])
	assert.Equal(t, "done", frames[1]["type"])
	assert.Equal(t, float64(2), frames[1]["sentCount"])
}

func TestDeleteDoesNotRecordCorrelationEntries(t *testing.T) {
	g := newTestGateway()
	readyTerminal(g, "T1")
	client := &fakePeer{}

	g.handleClientFrame(client, []byte(`{"cmd":"deleteuser","targets":["T1"],"enrollid":7,"backupnum":13}`))

	g.mu.Lock()
	pending := len(g.terminals["T1"].pendingUploads)
	g.mu.Unlock()
	assert.Zero(t, pending)
}

func TestDeleteForUnknownTargetReplayedOnRegistration(t *testing.T) {
	g := newTestGateway()
	client := &fakePeer{}

	g.handleClientFrame(client, []byte(`{"cmd":"deleteuser","targets":["T9"],"enrollid":55,"backupnum":13}`))

	term := &fakePeer{}
	g.addTerminal("T9", term, Meta{})
	g.handleDeviceFrame("T9", term, regFrame("T9"))

	cmds := term.sentWithCmd("deleteuser")
	require.Len(t, cmds, 1)
	assert.Equal(t, float64(55), cmds[0]["enrollid"])

	// Consumed: a second registration does not replay it.
	g.removeTerminalByPeer(term)
	term2 := &fakePeer{}
	g.addTerminal("T9", term2, Meta{})
	g.handleDeviceFrame("T9", term2, regFrame("T9"))
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, term2.sentWithCmd("deleteuser"))
}
