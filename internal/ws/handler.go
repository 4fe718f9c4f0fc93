package ws

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Terminals and operator tools connect from anywhere.
		return true
	},
}

// Handler upgrades the connection and classifies it by the `type`
// query parameter: client (operator), log (viewer), anything else is a
// terminal.
func Handler(g *Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		role := strings.ToLower(c.Query("type"))
		ip := c.ClientIP()

		switch role {
		case "client":
			g.runClient(conn, ip)
		case "log":
			g.runViewer(conn, ip)
		default:
			g.runTerminal(conn, ip, c.Query("sn"))
		}
	}
}

func (g *Gateway) runClient(conn *websocket.Conn, ip string) {
	p := newWSConn(conn)
	go p.writePump()

	g.setActiveClient(p)
	log.Printf("ws: operator client connected (%s)", ip)
	sendJSON(p, map[string]any{"msg": "Connected as client", "terminals": g.terminalKeys()})

	p.readLoop(func(raw []byte) {
		log.Printf("ws: CLIENT %s | %s", ip, strings.TrimSpace(string(raw)))
		g.handleClientFrame(p, raw)
	})

	g.clearActiveClient(p)
	log.Printf("ws: operator client disconnected (%s)", ip)
}

func (g *Gateway) runViewer(conn *websocket.Conn, ip string) {
	p := newWSConn(conn)
	go p.writePump()

	g.setActiveViewer(p)
	log.Printf("ws: log viewer connected (%s)", ip)

	// Viewers only listen; inbound frames are discarded.
	p.readLoop(func([]byte) {})

	g.clearActiveViewer(p)
	log.Printf("ws: log viewer disconnected (%s)", ip)
}

func (g *Gateway) runTerminal(conn *websocket.Conn, ip, sn string) {
	p := newWSConn(conn)
	go p.writePump()

	key := sn
	var snPtr *string
	if sn != "" {
		snPtr = &sn
	} else {
		key = fmt.Sprintf("%s-%s", ip, uuid.NewString())
	}
	g.addTerminal(key, p, Meta{
		IP:          ip,
		SN:          snPtr,
		ConnectedAt: time.Now().UTC().Format(time.RFC3339),
	})
	log.Printf("ws: terminal connected: %s (%s)", key, ip)

	p.readLoop(func(raw []byte) {
		log.Printf("ws: TERM %s | %s", ip, strings.TrimSpace(string(raw)))
		key = g.handleDeviceFrame(key, p, raw)
	})

	g.removeTerminalByPeer(p)
}
