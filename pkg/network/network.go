// Package network implements the node's peer-to-peer gossip layer: a
// flat peer set connected over plain TCP, exchanging a closed catalog
// of gob-encoded messages. There is no discovery, DHT, or pubsub here —
// peers are dialed explicitly and messages are broadcast to the known
// set, matching the spec this core targets.
package network

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/minichain/nanochain/pkg/block"
	"github.com/minichain/nanochain/pkg/coreerr"
	"github.com/minichain/nanochain/pkg/transaction"
)

// MessageType names every message this node ever sends or accepts. The
// catalog is closed, not an extension point: this package does not
// check the type, and the node's handler ignores any type it does not
// handle, sending no reply.
type MessageType string

const (
	Ping           MessageType = "ping"
	Pong           MessageType = "pong"
	GetPeers       MessageType = "get_peers"
	Peers          MessageType = "peers"
	Disconnect     MessageType = "disconnect"
	NewBlock       MessageType = "new_block"
	GetBlock       MessageType = "get_block"
	Block          MessageType = "block"
	GetBlockHeight MessageType = "get_block_height"
	BlockHeight    MessageType = "block_height"
	MiningSuccess  MessageType = "mining_success"
	VerifyBlock    MessageType = "verify_block"
	BlockVerified  MessageType = "block_verified"
)

// Message is the single envelope every peer connection exchanges. Only
// the field matching Type is meaningful in a given message.
type Message struct {
	Type         MessageType
	Peers        []string
	Block        *block.Block
	BlockHash    string
	Height       uint64
	Transactions []*transaction.Transaction
	Verified     bool
}

// PeerTimeout is how long a peer may go unseen before eviction by the
// maintenance loop.
const PeerTimeout = 3600 * time.Second

// OutboundQueueSize bounds each peer's pending-send buffer. A send to a
// full queue is dropped rather than blocking the caller.
const OutboundQueueSize = 32

// Peer is one connected node: its address, the bounded outbound queue
// the writer goroutine drains, and the last time a message was heard
// from it.
type Peer struct {
	Addr     string
	conn     net.Conn
	outbound chan Message
	mu       sync.Mutex
	lastSeen time.Time
	done     chan struct{}
}

func (p *Peer) touch() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

func (p *Peer) idleFor() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.lastSeen)
}

// Send enqueues msg for delivery to p. If the outbound queue is full,
// the message is dropped rather than blocking the caller — a slow peer
// must not stall the rest of the network.
func (p *Peer) Send(msg Message) {
	select {
	case p.outbound <- msg:
	default:
	}
}

// Handler processes an inbound message from a peer and optionally
// returns a reply to send back.
type Handler func(peerAddr string, msg Message) (*Message, error)

// Network is the node's peer set: a listener accepting inbound
// connections, a table of connected peers, and a handler dispatching
// every inbound message.
type Network struct {
	mu       sync.RWMutex
	peers    map[string]*Peer
	listener net.Listener
	handler  Handler
}

// New creates a peer set with no listener; call Listen to accept
// inbound connections.
func New(handler Handler) *Network {
	return &Network{peers: make(map[string]*Peer), handler: handler}
}

// Listen starts accepting inbound connections on addr in the
// background.
func (n *Network) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "listen", err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

func (n *Network) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			return
		}
		n.adopt(conn)
	}
}

// Connect dials addr and adds it to the peer set.
func (n *Network) Connect(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, fmt.Sprintf("dial %s", addr), err)
	}
	n.adopt(conn)
	return nil
}

func (n *Network) adopt(conn net.Conn) {
	addr := conn.RemoteAddr().String()
	peer := &Peer{
		Addr:     addr,
		conn:     conn,
		outbound: make(chan Message, OutboundQueueSize),
		lastSeen: time.Now(),
		done:     make(chan struct{}),
	}
	n.mu.Lock()
	n.peers[addr] = peer
	n.mu.Unlock()

	go n.writeLoop(peer)
	go n.readLoop(peer)
}

func (n *Network) writeLoop(p *Peer) {
	enc := gob.NewEncoder(p.conn)
	for {
		select {
		case msg := <-p.outbound:
			if err := enc.Encode(msg); err != nil {
				n.Disconnect(p.Addr)
				return
			}
		case <-p.done:
			return
		}
	}
}

func (n *Network) readLoop(p *Peer) {
	dec := gob.NewDecoder(bufio.NewReader(p.conn))
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			n.Disconnect(p.Addr)
			return
		}
		p.touch()
		if n.handler == nil {
			continue
		}
		reply, err := n.handler(p.Addr, msg)
		if err != nil {
			continue
		}
		if reply != nil {
			p.Send(*reply)
		}
	}
}

// Disconnect closes and removes a peer.
func (n *Network) Disconnect(addr string) {
	n.mu.Lock()
	p, ok := n.peers[addr]
	delete(n.peers, addr)
	n.mu.Unlock()
	if !ok {
		return
	}
	close(p.done)
	_ = p.conn.Close()
}

// Broadcast sends msg to every currently connected peer.
func (n *Network) Broadcast(msg Message) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, p := range n.peers {
		p.Send(msg)
	}
}

// BroadcastExcept sends msg to every currently connected peer other
// than except, used to relay a message without echoing it back to the
// peer it arrived from.
func (n *Network) BroadcastExcept(except string, msg Message) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for addr, p := range n.peers {
		if addr == except {
			continue
		}
		p.Send(msg)
	}
}

// SendTo sends msg to a single peer by address, if connected.
func (n *Network) SendTo(addr string, msg Message) bool {
	n.mu.RLock()
	p, ok := n.peers[addr]
	n.mu.RUnlock()
	if !ok {
		return false
	}
	p.Send(msg)
	return true
}

// PeerAddrs returns the address of every currently connected peer.
func (n *Network) PeerAddrs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.peers))
	for addr := range n.peers {
		out = append(out, addr)
	}
	return out
}

// PeerCount returns the number of currently connected peers.
func (n *Network) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

// EvictStalePeers disconnects every peer not heard from within
// PeerTimeout. It is meant to be invoked periodically by the node, not
// run on an internal timer.
func (n *Network) EvictStalePeers() int {
	n.mu.RLock()
	var stale []string
	for addr, p := range n.peers {
		if p.idleFor() > PeerTimeout {
			stale = append(stale, addr)
		}
	}
	n.mu.RUnlock()

	for _, addr := range stale {
		n.Disconnect(addr)
	}
	return len(stale)
}

// Close disconnects every peer and stops accepting new connections.
func (n *Network) Close() error {
	n.mu.RLock()
	addrs := make([]string, 0, len(n.peers))
	for addr := range n.peers {
		addrs = append(addrs, addr)
	}
	n.mu.RUnlock()
	for _, addr := range addrs {
		n.Disconnect(addr)
	}
	if n.listener != nil {
		return n.listener.Close()
	}
	return nil
}
