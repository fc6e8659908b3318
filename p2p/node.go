// Package p2p wraps a libp2p host, gossipsub topics, and mDNS peer
// discovery, adapted from the teacher repo's util/p2p/P2PNode.go and
// retargeted from a single bitcoin protocol topic to slchain's four gossip
// topics (SPEC_FULL.md §6.1).
package p2p

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/pnet"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/brackwater-labs/slchain/errors"
	"github.com/brackwater-labs/slchain/ulogger"
	"github.com/brackwater-labs/slchain/util/retry"
)

// Topic names, matching original_source's Topics{Block, Chain, Hashrate,
// Message} with Record in place of Hashrate (Hashrate has no equivalent
// here — this spec has no dynamic difficulty retargeting, so there's nothing
// to broadcast a hashrate estimate for).
const (
	TopicBlock   = "slchain/block/1.0.0"
	TopicChain   = "slchain/chain/1.0.0"
	TopicRecord  = "slchain/record/1.0.0"
	TopicMessage = "slchain/message/1.0.0"
)

// Handler processes a single gossip message received on a topic.
type Handler func(ctx context.Context, msg []byte, from peer.ID)

// Config configures Node construction, grounded on P2PConfig from the
// teacher's util/p2p/P2PNode.go.
type Config struct {
	ListenAddress   string
	IdentityKeyPath string
	SharedKey       string // hex-encoded; empty disables the private network PSK
	StaticPeers     []string
	UsePrivateDHT   bool
}

// Node wraps a libp2p host plus its gossipsub topics and mDNS discovery
// service.
type Node struct {
	cfg    Config
	logger ulogger.Logger

	host   host.Host
	pubsub *pubsub.PubSub
	dht    *dht.IpfsDHT

	topicsMu sync.Mutex
	topics   map[string]*pubsub.Topic

	startTime time.Time
}

// New constructs a libp2p host from cfg, generating or loading an Ed25519
// identity key at cfg.IdentityKeyPath.
func New(ctx context.Context, logger ulogger.Logger, cfg Config) (*Node, error) {
	priv, err := loadOrGenerateKey(cfg.IdentityKeyPath)
	if err != nil {
		return nil, err
	}

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(cfg.ListenAddress),
		libp2p.Identity(priv),
	}

	if cfg.SharedKey != "" {
		psk, err := decodeHexPSK(cfg.SharedKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.PrivateNetwork(psk))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, errors.New(errors.CodeStoreIO, "construct libp2p host", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, errors.New(errors.CodeStoreIO, "construct gossipsub router", err)
	}

	n := &Node{
		cfg:       cfg,
		logger:    logger,
		host:      h,
		pubsub:    ps,
		topics:    make(map[string]*pubsub.Topic),
		startTime: time.Now(),
	}

	if cfg.UsePrivateDHT {
		kadDHT, err := dht.New(ctx, h)
		if err != nil {
			return nil, errors.New(errors.CodeStoreIO, "construct kademlia dht", err)
		}
		n.dht = kadDHT
	}

	return n, nil
}

// HostID returns this node's own libp2p peer ID, used by the shell's `myid`
// command.
func (n *Node) HostID() peer.ID {
	return n.host.ID()
}

// Addrs returns the multiaddrs this node is listening on.
func (n *Node) Addrs() []ma.Multiaddr {
	return n.host.Addrs()
}

// Peers returns the IDs of currently connected peers, used by `listpeers`.
func (n *Node) Peers() []peer.ID {
	return n.host.Network().Peers()
}

// Start joins every gossip topic, registers handler for each, connects to
// any configured static peers, and begins mDNS discovery.
func (n *Node) Start(ctx context.Context, handlers map[string]Handler) error {
	for topicName, handler := range handlers {
		if err := n.joinAndSubscribe(ctx, topicName, handler); err != nil {
			return err
		}
	}

	n.connectToStaticPeers(ctx)

	notifee := &mdnsNotifee{ctx: ctx, host: n.host, logger: n.logger}
	svc := mdns.NewMdnsService(n.host, "slchain-mdns", notifee)
	if err := svc.Start(); err != nil {
		return errors.New(errors.CodeStoreIO, "start mdns discovery", err)
	}

	if n.dht != nil {
		if err := n.dht.Bootstrap(ctx); err != nil {
			n.logger.Warnf("dht bootstrap failed: %v", err)
		}
	}

	return nil
}

func (n *Node) joinAndSubscribe(ctx context.Context, topicName string, handler Handler) error {
	topic, err := n.pubsub.Join(topicName)
	if err != nil {
		return errors.New(errors.CodeStoreIO, fmt.Sprintf("join topic %s", topicName), err)
	}

	n.topicsMu.Lock()
	n.topics[topicName] = topic
	n.topicsMu.Unlock()

	sub, err := topic.Subscribe()
	if err != nil {
		return errors.New(errors.CodeStoreIO, fmt.Sprintf("subscribe to topic %s", topicName), err)
	}

	go func() {
		for {
			msg, err := sub.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				n.logger.Warnf("topic %s subscription error: %v", topicName, err)
				continue
			}
			if msg.ReceivedFrom == n.host.ID() {
				continue
			}
			handler(ctx, msg.Data, msg.ReceivedFrom)
		}
	}()

	return nil
}

// Publish sends data on the named topic.
func (n *Node) Publish(ctx context.Context, topicName string, data []byte) error {
	n.topicsMu.Lock()
	topic, ok := n.topics[topicName]
	n.topicsMu.Unlock()
	if !ok {
		return errors.New(errors.CodeBroadcastInsufficientPeers, fmt.Sprintf("topic %s not joined", topicName), nil)
	}
	if len(n.pubsub.ListPeers(topicName)) == 0 {
		return errors.New(errors.CodeBroadcastInsufficientPeers, fmt.Sprintf("no peers subscribed to %s", topicName), nil)
	}
	if err := topic.Publish(ctx, data); err != nil {
		return errors.New(errors.CodeStoreIO, fmt.Sprintf("publish to topic %s", topicName), err)
	}
	return nil
}

// TopicPeerCount returns how many peers this node currently sees
// subscribed to the named topic, used by Broadcaster's failure accounting.
func (n *Node) TopicPeerCount(topicName string) int {
	return len(n.pubsub.ListPeers(topicName))
}

func (n *Node) connectToStaticPeers(ctx context.Context) {
	for _, addr := range n.cfg.StaticPeers {
		maddr, err := ma.NewMultiaddr(addr)
		if err != nil {
			n.logger.Warnf("invalid static peer address %s: %v", addr, err)
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			n.logger.Warnf("invalid static peer addr info %s: %v", addr, err)
			continue
		}
		n.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
		go func(info peer.AddrInfo) {
			err := retry.Do(ctx, func() error {
				return n.host.Connect(ctx, info)
			}, retry.WithRetryCount(3), retry.WithBackoffDurationType(time.Second), retry.WithExponentialBackoff())
			if err != nil {
				n.logger.Warnf("failed to connect to static peer %s after retries: %v", info.ID, err)
			}
		}(*info)
	}
}

// Close shuts down the host.
func (n *Node) Close() error {
	return n.host.Close()
}

// mdnsNotifee dials newly discovered peers exactly once, deduplicating
// repeated mDNS announcements of an already-connected peer.
type mdnsNotifee struct {
	ctx    context.Context
	host   host.Host
	logger ulogger.Logger

	mu   sync.Mutex
	seen map[peer.ID]bool
}

func (m *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	m.mu.Lock()
	if m.seen == nil {
		m.seen = make(map[peer.ID]bool)
	}
	if m.seen[info.ID] || m.host.Network().Connectedness(info.ID) == network.Connected {
		m.mu.Unlock()
		return
	}
	m.seen[info.ID] = true
	m.mu.Unlock()

	if err := m.host.Connect(m.ctx, info); err != nil {
		m.logger.Warnf("failed to connect to mdns-discovered peer %s: %v", info.ID, err)
	}
}

func loadOrGenerateKey(path string) (crypto.PrivKey, error) {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return decodeHexEd25519PrivateKey(string(data))
		}
	}

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, errors.New(errors.CodeStoreIO, "generate ed25519 identity key", err)
	}

	if path != "" {
		raw, err := crypto.MarshalPrivateKey(priv)
		if err == nil {
			_ = os.WriteFile(path, []byte(hex.EncodeToString(raw)), 0o600)
		}
	}

	return priv, nil
}

func decodeHexPSK(hexKey string) (pnet.PSK, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.New(errors.CodeStoreIO, "decode hex shared key", err)
	}
	return pnet.PSK(raw), nil
}

func decodeHexEd25519PrivateKey(hexKey string) (crypto.PrivKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.New(errors.CodeStoreIO, "decode hex identity key", err)
	}
	priv, err := crypto.UnmarshalPrivateKey(raw)
	if err != nil {
		return nil, errors.New(errors.CodeStoreIO, "unmarshal identity key", err)
	}
	return priv, nil
}
