// Package network implements the gossip overlay: WebSocket transport,
// peer handshake, message dedup, and chain replication (spec §6).
package network

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// readDeadline bounds how long Receive waits for an idle peer before
// giving up, so a stalled connection doesn't block the read loop forever.
const readDeadline = 90 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Peer is a connected remote node speaking the Message protocol over a
// WebSocket connection.
type Peer struct {
	ID   string // remote node id, learned during handshake
	Addr string

	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// NewPeer wraps an already-upgraded WebSocket connection as a Peer. ID is
// filled in once the handshake's peer_info/add_peer arrives.
func NewPeer(addr string, conn *websocket.Conn) *Peer {
	return &Peer{Addr: addr, conn: conn}
}

// Dial connects to a remote node's overlay listener at addr (host:port)
// and returns the established Peer.
func Dial(addr string) (*Peer, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/p2p"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewPeer(addr, conn), nil
}

// Accept upgrades an inbound HTTP request to a WebSocket Peer.
func Accept(w http.ResponseWriter, r *http.Request) (*Peer, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return NewPeer(r.RemoteAddr, conn), nil
}

// Send writes msg as a single WebSocket text frame. Concurrent writers
// are serialized: gorilla/websocket permits only one writer at a time per
// connection.
func (p *Peer) Send(msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("peer %s closed", p.ID)
	}
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive reads the next message frame, bounded by readDeadline.
func (p *Peer) Receive() (Message, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(readDeadline))
	_, data, err := p.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}

// Close terminates the connection. Safe to call multiple times.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.conn.Close()
	}
}
