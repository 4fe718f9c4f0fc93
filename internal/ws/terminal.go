package ws

// peer is one side of a persistent socket. The gateway only ever
// enqueues outbound frames and checks liveness; the pump goroutines in
// conn.go own the actual websocket. Tests substitute a recording fake.
type peer interface {
	enqueue(payload []byte) bool
	alive() bool
	close()
}

// Meta mirrors the meta block of the `list` response.
type Meta struct {
	IP          string  `json:"ip"`
	SN          *string `json:"sn"`
	ConnectedAt string  `json:"connected_at"`
}

// pendingUpload tracks one dispatched setuserinfo command awaiting a
// device acknowledgement. FIFO order equals send order.
type pendingUpload struct {
	enrollID int64
	name     string
	modeCode int
}

// Terminal is the registry entry for one connected device. All fields
// are guarded by the gateway mutex.
type Terminal struct {
	key            string
	peer           peer
	ready          bool
	gone           bool
	queue          [][]byte
	pendingUploads []pendingUpload
	meta           Meta
}

// TerminalInfo is the wire form of a registry entry.
type TerminalInfo struct {
	ID    string `json:"id"`
	Ready bool   `json:"ready"`
	Meta  Meta   `json:"meta"`
}
