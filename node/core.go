package node

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/looplab/fsm"

	"github.com/brackwater-labs/slchain/hashutil"
	"github.com/brackwater-labs/slchain/miner"
	"github.com/brackwater-labs/slchain/model"
	"github.com/brackwater-labs/slchain/p2p"
	"github.com/brackwater-labs/slchain/store"
	"github.com/brackwater-labs/slchain/ulogger"
	"github.com/brackwater-labs/slchain/validation"
)

// lifecycle states for the chain_initialized one-shot latch, modeled with
// looplab/fsm the same way the teacher's (now-removed)
// services/blockchain/Server.go modeled its own service lifecycle.
const (
	stateUninitialized = "uninitialized"
	stateSyncing       = "syncing"
	stateReady         = "ready"

	eventInitialize = "initialize"
	eventSynced     = "synced"
)

type inboundMsg struct {
	topic string
	data  []byte
	from  peer.ID
}

// Core is the single-threaded event pump described in SPEC_FULL.md §4.7. A
// single goroutine runs Core.Run; every other method that touches Core's
// state is only ever called from within that goroutine.
type Core struct {
	logger      ulogger.Logger
	store       store.BlockStore
	p2pNode     *p2p.Node
	broadcaster *p2p.Broadcaster
	fsm         *fsm.FSM

	chain model.Chain
	// numSidelinks is the sidelink count given to a local init; 0 when the
	// chain was adopted from a peer.
	numSidelinks uint64

	gossipCh  chan inboundMsg
	commandCh chan Command

	newTipCh    chan miner.Candidate
	newRecordCh chan model.Record
	minedCh     chan miner.MinedBlock
}

// BroadcastSettings configures the Broadcaster Core builds internally,
// mirroring config.Settings' BroadcastRetryAttempts/BroadcastBackoff
// fields without importing package config directly.
type BroadcastSettings struct {
	RetryAttempts      int
	Backoff            time.Duration
	MinPeerCoveragePct float64
}

// New builds a Core wired to st for persistence and p2pNode for gossip. The
// newTip/newRecord/mined channels returned by MinerChannels should be passed
// to miner.New so the dedicated mining goroutine and this event pump share
// them.
func New(logger ulogger.Logger, st store.BlockStore, p2pNode *p2p.Node, broadcastSettings BroadcastSettings) *Core {
	var broadcastOpts []p2p.BroadcastOption
	if broadcastSettings.RetryAttempts > 0 {
		broadcastOpts = append(broadcastOpts, p2p.WithAttempts(broadcastSettings.RetryAttempts))
	}
	if broadcastSettings.Backoff > 0 {
		broadcastOpts = append(broadcastOpts, p2p.WithBackoff(broadcastSettings.Backoff))
	}
	if broadcastSettings.MinPeerCoveragePct > 0 {
		broadcastOpts = append(broadcastOpts, p2p.WithMinPeerCoverage(broadcastSettings.MinPeerCoveragePct))
	}

	c := &Core{
		logger:      logger,
		store:       st,
		p2pNode:     p2pNode,
		broadcaster: p2p.NewBroadcaster(p2pNode, logger, broadcastOpts...),
		gossipCh:    make(chan inboundMsg, 4096),
		commandCh:   make(chan Command, 256),
		newTipCh:    make(chan miner.Candidate, 1),
		newRecordCh: make(chan model.Record, 256),
		minedCh:     make(chan miner.MinedBlock, 1),
	}

	c.fsm = fsm.NewFSM(
		stateUninitialized,
		fsm.Events{
			{Name: eventInitialize, Src: []string{stateUninitialized}, Dst: stateSyncing},
			{Name: eventSynced, Src: []string{stateSyncing}, Dst: stateReady},
		},
		fsm.Callbacks{},
	)

	return c
}

// MinerChannels returns the three channels miner.New needs, so the miner
// goroutine and Core's event pump share them without either side reaching
// into the other's internals.
func (c *Core) MinerChannels() (newTip chan miner.Candidate, newRecord chan model.Record, mined chan miner.MinedBlock) {
	return c.newTipCh, c.newRecordCh, c.minedCh
}

// Handlers returns the p2p.Handler set Core wants registered for each
// gossip topic; every handler just enqueues onto Core's single inbound
// channel so all gossip processing happens on Core's one goroutine.
func (c *Core) Handlers() map[string]p2p.Handler {
	mk := func(topic string) p2p.Handler {
		return func(ctx context.Context, data []byte, from peer.ID) {
			select {
			case c.gossipCh <- inboundMsg{topic: topic, data: data, from: from}:
			default:
				c.logger.Warnf("gossip inbound queue full, dropping message on %s", topic)
			}
		}
	}
	return map[string]p2p.Handler{
		p2p.TopicBlock:   mk(p2p.TopicBlock),
		p2p.TopicChain:   mk(p2p.TopicChain),
		p2p.TopicRecord:  mk(p2p.TopicRecord),
		p2p.TopicMessage: mk(p2p.TopicMessage),
	}
}

// SubmitCommand enqueues a local shell command for processing on Core's
// event pump goroutine.
func (c *Core) SubmitCommand(cmd Command) {
	c.commandCh <- cmd
}

// Chain returns a snapshot of Core's current in-memory chain.
func (c *Core) Chain() model.Chain {
	return c.chain
}

// Run blocks forever, dispatching gossip messages, local commands, and
// mined blocks. Callers should run Run in its own goroutine.
func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.gossipCh:
			c.handleGossip(ctx, msg)
		case cmd := <-c.commandCh:
			c.handleCommand(ctx, cmd)
		case mb := <-c.minedCh:
			c.handleMinedBlock(ctx, mb)
		}
	}
}

func (c *Core) handleCommand(ctx context.Context, cmd Command) {
	switch v := cmd.(type) {
	case InitChainCmd:
		c.initChain(ctx, v.Difficulty, v.NumSidelinks)
	case AddRecordCmd:
		c.addRecord(ctx, v.Data)
	case TalkCmd:
		c.talk(ctx, v.Message)
	case RequestChainCmd:
		c.requestChain(ctx, v.PeerID)
	default:
		c.logger.Warnf("unknown local command %T", cmd)
	}
}

func (c *Core) initChain(ctx context.Context, difficulty []byte, numSidelinks uint64) {
	if c.fsm.Is(stateReady) || c.fsm.Is(stateSyncing) {
		c.logger.Warnf("chain already initialized, ignoring init command")
		return
	}

	genesis := model.Genesis(difficulty, numSidelinks)
	c.adoptChain(model.Chain{Blocks: []model.Block{genesis}})
	c.numSidelinks = numSidelinks

	if err := c.fsm.Event(ctx, eventInitialize); err != nil {
		c.logger.Warnf("fsm transition on initialize failed: %v", err)
	}
	if err := c.fsm.Event(ctx, eventSynced); err != nil {
		c.logger.Warnf("fsm transition on synced failed: %v", err)
	}

	envelope := chainEnvelope{Kind: chainKindInit, Blocks: c.chain.Blocks}
	c.broadcastChain(ctx, envelope)
	c.startMining()
}

func (c *Core) addRecord(ctx context.Context, data string) {
	if c.chain.Len() == 0 {
		c.logger.Warnf("cannot add record before chain is initialized")
		return
	}
	rec := model.Record{Timestamp: time.Now().Unix(), Data: data, AuthorPeerID: c.p2pNode.HostID().String()}
	c.broadcastRecord(ctx, rec)
	c.newRecordCh <- rec
}

func (c *Core) talk(ctx context.Context, message string) {
	if message == "" {
		message = fmt.Sprintf("Hello from %s", c.p2pNode.HostID().String())
	}
	data, err := encodeJSON(messageEnvelope{Text: message, FromPeerID: c.p2pNode.HostID().String()})
	if err != nil {
		c.logger.Errorf("encode message envelope: %v", err)
		return
	}
	if err := c.broadcaster.Publish(ctx, p2p.TopicMessage, data); err != nil {
		c.logger.Warnf("broadcast message: %v", err)
	}
}

func (c *Core) requestChain(ctx context.Context, askedPeerID string) {
	data, err := encodeJSON(chainEnvelope{Kind: chainKindRemoteRequest, AskedPeerID: askedPeerID})
	if err != nil {
		c.logger.Errorf("encode chain request: %v", err)
		return
	}
	if err := c.broadcaster.Publish(ctx, p2p.TopicChain, data); err != nil {
		c.logger.Warnf("broadcast chain request: %v", err)
	}
}

func (c *Core) handleMinedBlock(ctx context.Context, mb miner.MinedBlock) {
	block := model.Block{
		Idx:                 mb.Candidate.Idx,
		PreviousBlockHash:   mb.Candidate.PreviousBlockHash,
		ValidationSidelinks: mb.Candidate.ValidationSidelinks,
		NumSidelinks:        mb.Candidate.NumSidelinks,
		Pow:                 mb.Pow,
		Timestamp:           time.Now().Unix(),
		Records:             mb.Candidate.Records,
		Difficulty:          mb.Candidate.Difficulty,
	}

	if err := validation.ValidateBlock(c.chain, lastBlockOrZero(c.chain), block); err != nil {
		c.logger.Errorf("locally mined block failed self-validation: %v", err)
		return
	}

	if err := c.store.Append(block); err != nil {
		c.logger.Errorf("append mined block to store: %v", err)
		return
	}
	c.chain.Blocks = append(c.chain.Blocks, block)

	data, err := encodeJSON(blockEnvelope{Block: block})
	if err != nil {
		c.logger.Errorf("encode mined block: %v", err)
		return
	}
	if err := c.broadcaster.Publish(ctx, p2p.TopicBlock, data); err != nil {
		c.logger.Warnf("broadcast mined block: %v", err)
	}

	c.startMining()
}

func (c *Core) handleGossip(ctx context.Context, msg inboundMsg) {
	switch msg.topic {
	case p2p.TopicBlock:
		c.handleBlockProposal(ctx, msg)
	case p2p.TopicChain:
		c.handleChainMessage(ctx, msg)
	case p2p.TopicRecord:
		c.handleNewRecord(msg)
	case p2p.TopicMessage:
		c.handleMessage(msg)
	default:
		c.logger.Warnf("gossip message on unknown topic %s", msg.topic)
	}
}

func (c *Core) handleBlockProposal(ctx context.Context, msg inboundMsg) {
	var env blockEnvelope
	if err := decodeJSON(msg.data, &env); err != nil {
		c.logger.Warnf("decode block proposal from %s: %v", msg.from, err)
		return
	}

	if !c.fsm.Is(stateReady) {
		c.logger.Warnf("ignoring block proposal before chain is initialized")
		return
	}

	prev := lastBlockOrZero(c.chain)
	if err := validation.ValidateBlock(c.chain, prev, env.Block); err != nil {
		c.logger.Warnf("rejecting invalid block proposal from %s: %v", msg.from, err)
		return
	}

	if err := c.store.Append(env.Block); err != nil {
		c.logger.Errorf("append received block to store: %v", err)
		return
	}
	c.chain.Blocks = append(c.chain.Blocks, env.Block)
	c.startMining()
}

func (c *Core) handleChainMessage(ctx context.Context, msg inboundMsg) {
	var env chainEnvelope
	if err := decodeJSON(msg.data, &env); err != nil {
		c.logger.Warnf("decode chain message from %s: %v", msg.from, err)
		return
	}

	switch env.Kind {
	case chainKindInit:
		c.handleInitUsingChain(ctx, env)
	case chainKindRemoteRequest:
		c.handleRemoteChainRequest(ctx, env, msg.from)
	case chainKindRemoteResponse:
		c.handleRemoteChainResponse(ctx, env)
	default:
		c.logger.Warnf("chain message with unknown kind %q from %s", env.Kind, msg.from)
	}
}

// handleInitUsingChain adopts a peer's freshly-initialized chain if we
// don't have one of our own yet, per original_source's
// handle_remote_chain_if_local_uninitialized.
func (c *Core) handleInitUsingChain(ctx context.Context, env chainEnvelope) {
	if c.fsm.Is(stateReady) {
		return
	}
	if err := validation.ValidateChain(env.Blocks); err != nil {
		c.logger.Warnf("rejecting InitUsingChain: %v", err)
		return
	}
	c.adoptChain(model.Chain{Blocks: env.Blocks})
	if err := c.fsm.Event(ctx, eventInitialize); err != nil {
		c.logger.Warnf("fsm transition on initialize failed: %v", err)
	}
	if err := c.fsm.Event(ctx, eventSynced); err != nil {
		c.logger.Warnf("fsm transition on synced failed: %v", err)
	}
	c.startMining()
}

// handleRemoteChainRequest responds with our own chain if we have one and
// the request names this node (or no peer at all), publishing it as a
// RemoteChainResponse on the Chain topic.
func (c *Core) handleRemoteChainRequest(ctx context.Context, env chainEnvelope, from peer.ID) {
	if !c.fsm.Is(stateReady) {
		return
	}
	if env.AskedPeerID != "" && env.AskedPeerID != c.p2pNode.HostID().String() {
		return
	}
	resp := chainEnvelope{Kind: chainKindRemoteResponse, Blocks: c.chain.Blocks, RespondingToID: env.AskedPeerID}
	data, err := encodeJSON(resp)
	if err != nil {
		c.logger.Errorf("encode chain response: %v", err)
		return
	}
	if err := c.broadcaster.Publish(ctx, p2p.TopicChain, data); err != nil {
		c.logger.Warnf("broadcast chain response: %v", err)
	}
}

// handleRemoteChainResponse applies fork choice between our chain and the
// one just received.
func (c *Core) handleRemoteChainResponse(ctx context.Context, env chainEnvelope) {
	if err := validation.ValidateChain(env.Blocks); err != nil {
		c.logger.Warnf("rejecting remote chain response: %v", err)
		return
	}

	replace, err := ChooseLongestChain(c.chain.Blocks, env.Blocks)
	if err != nil {
		c.logger.Errorf("fork choice comparison failed: %v", err)
		return
	}
	if !replace {
		return
	}

	c.adoptChain(model.Chain{Blocks: env.Blocks})
	if !c.fsm.Is(stateReady) {
		if err := c.fsm.Event(ctx, eventInitialize); err != nil {
			c.logger.Warnf("fsm transition on initialize failed: %v", err)
		}
		if err := c.fsm.Event(ctx, eventSynced); err != nil {
			c.logger.Warnf("fsm transition on synced failed: %v", err)
		}
	}
	c.startMining()
}

func (c *Core) handleNewRecord(msg inboundMsg) {
	var env recordEnvelope
	if err := decodeJSON(msg.data, &env); err != nil {
		c.logger.Warnf("decode record from %s: %v", msg.from, err)
		return
	}
	c.newRecordCh <- env.Record
}

func (c *Core) handleMessage(msg inboundMsg) {
	var env messageEnvelope
	if err := decodeJSON(msg.data, &env); err != nil {
		c.logger.Warnf("decode message from %s: %v", msg.from, err)
		return
	}
	c.logger.Infof("<%s> %s", env.FromPeerID, env.Text)
}

// adoptChain rewrites the store to match chain and updates Core's in-memory
// mirror. Used both on initial sync and whenever fork choice picks a
// competing chain over our own.
func (c *Core) adoptChain(chain model.Chain) {
	for {
		length, err := c.store.Length()
		if err != nil || length == 0 {
			break
		}
		if err := c.store.TruncateLast(); err != nil {
			c.logger.Errorf("truncate store while adopting new chain: %v", err)
			return
		}
	}
	for _, b := range chain.Blocks {
		if err := c.store.Append(b); err != nil {
			c.logger.Errorf("append block while adopting new chain: %v", err)
			return
		}
	}
	c.chain = chain
}

func (c *Core) startMining() {
	tip, ok := c.chain.Tip()
	if !ok {
		return
	}
	prevHash, err := tip.Hash()
	if err != nil {
		c.logger.Errorf("hash tip before starting miner: %v", err)
		return
	}
	prevHashBytes, err := hashutil.DecodeB64(prevHash)
	if err != nil {
		c.logger.Errorf("decode tip hash before starting miner: %v", err)
		return
	}

	nextIdx := tip.Idx + 1
	numSidelinks := tip.NumSidelinks
	if c.numSidelinks > numSidelinks {
		numSidelinks = c.numSidelinks
	}
	sidelinks, err := c.chain.BuildSidelinks(prevHashBytes, nextIdx, numSidelinks)
	if err != nil {
		c.logger.Errorf("build sidelinks before starting miner: %v", err)
		return
	}

	candidate := miner.Candidate{
		Idx:                 nextIdx,
		PreviousBlockHash:   prevHashBytes,
		ValidationSidelinks: sidelinks,
		NumSidelinks:        numSidelinks,
		Records:             []model.Record{},
		TipRecords:          tip.Records,
		Difficulty:          tip.Difficulty,
	}
	select {
	case c.newTipCh <- candidate:
	default:
		// Replace the unread, now stale tip so the miner picks up this one.
		select {
		case <-c.newTipCh:
		default:
		}
		c.newTipCh <- candidate
	}
}

func (c *Core) broadcastChain(ctx context.Context, env chainEnvelope) {
	data, err := encodeJSON(env)
	if err != nil {
		c.logger.Errorf("encode chain envelope: %v", err)
		return
	}
	if err := c.broadcaster.Publish(ctx, p2p.TopicChain, data); err != nil {
		c.logger.Warnf("broadcast chain: %v", err)
	}
}

func (c *Core) broadcastRecord(ctx context.Context, rec model.Record) {
	data, err := encodeJSON(recordEnvelope{Record: rec})
	if err != nil {
		c.logger.Errorf("encode record envelope: %v", err)
		return
	}
	if err := c.broadcaster.Publish(ctx, p2p.TopicRecord, data); err != nil {
		c.logger.Warnf("broadcast record: %v", err)
	}
}

func lastBlockOrZero(chain model.Chain) model.Block {
	if tip, ok := chain.Tip(); ok {
		return tip
	}
	return model.Block{}
}
