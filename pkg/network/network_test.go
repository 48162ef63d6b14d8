package network

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectAndPingPong(t *testing.T) {
	var received sync.WaitGroup
	received.Add(1)

	var mu sync.Mutex
	var gotPong bool

	server := New(func(peerAddr string, msg Message) (*Message, error) {
		if msg.Type == Ping {
			reply := Message{Type: Pong}
			return &reply, nil
		}
		return nil, nil
	})
	require.NoError(t, server.Listen("127.0.0.1:0"))
	defer server.Close()

	addr := server.listener.Addr().String()

	client := New(func(peerAddr string, msg Message) (*Message, error) {
		if msg.Type == Pong {
			mu.Lock()
			gotPong = true
			mu.Unlock()
			received.Done()
		}
		return nil, nil
	})
	require.NoError(t, client.Connect(addr))
	defer client.Close()

	client.Broadcast(Message{Type: Ping})

	waitOrTimeout(t, &received, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, gotPong)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for message exchange")
	}
}

func TestDisconnectRemovesPeer(t *testing.T) {
	server := New(nil)
	require.NoError(t, server.Listen("127.0.0.1:0"))
	defer server.Close()

	client := New(nil)
	require.NoError(t, client.Connect(server.listener.Addr().String()))

	assert.Eventually(t, func() bool { return client.PeerCount() == 1 }, time.Second, 5*time.Millisecond)

	addr := client.PeerAddrs()[0]
	client.Disconnect(addr)
	assert.Equal(t, 0, client.PeerCount())
}

func TestSendToUnknownPeerReturnsFalse(t *testing.T) {
	n := New(nil)
	assert.False(t, n.SendTo("127.0.0.1:9", Message{Type: Ping}))
}

func TestBroadcastExceptSkipsOriginatingPeer(t *testing.T) {
	n := New(nil)
	peerA := &Peer{Addr: "a", outbound: make(chan Message, 1)}
	peerB := &Peer{Addr: "b", outbound: make(chan Message, 1)}
	n.peers = map[string]*Peer{"a": peerA, "b": peerB}

	n.BroadcastExcept("a", Message{Type: NewBlock})

	select {
	case <-peerA.outbound:
		t.Fatal("excluded peer should not receive the relayed message")
	default:
	}

	select {
	case msg := <-peerB.outbound:
		assert.Equal(t, NewBlock, msg.Type)
	default:
		t.Fatal("expected the other peer to receive the relayed message")
	}
}

func TestEvictStalePeersRemovesIdlePeers(t *testing.T) {
	server := New(nil)
	require.NoError(t, server.Listen("127.0.0.1:0"))
	defer server.Close()

	client := New(nil)
	require.NoError(t, client.Connect(server.listener.Addr().String()))
	assert.Eventually(t, func() bool { return client.PeerCount() == 1 }, time.Second, 5*time.Millisecond)

	addr := client.PeerAddrs()[0]
	client.mu.Lock()
	client.peers[addr].lastSeen = time.Now().Add(-2 * PeerTimeout)
	client.mu.Unlock()

	removed := client.EvictStalePeers()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, client.PeerCount())
}
