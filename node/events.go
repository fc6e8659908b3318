// Package node implements NodeCore, the single-threaded event pump
// described in SPEC_FULL.md §4.7, grounded on the dispatch table shape of
// original_source/src/network/event_handling.rs and the
// channels+fsm+logger struct shape of the teacher's (now-removed)
// services/blockchain/Server.go.
package node

import (
	"encoding/json"

	"github.com/brackwater-labs/slchain/errors"
	"github.com/brackwater-labs/slchain/model"
)

// blockEnvelope is the payload published on the Block topic: a single
// candidate block proposed by its miner.
type blockEnvelope struct {
	Block model.Block `json:"block"`
}

// chainEnvelope is the payload published on the Chain topic. Kind selects
// which of InitUsingChain / RemoteChainRequest / RemoteChainResponse this
// message carries, mirroring original_source's NetworkEvent enum variants.
type chainEnvelope struct {
	Kind           string        `json:"kind"`
	Blocks         []model.Block `json:"blocks,omitempty"`
	AskedPeerID    string        `json:"asked_peer_id,omitempty"`
	RespondingToID string        `json:"responding_to_id,omitempty"`
}

const (
	chainKindInit            = "init_using_chain"
	chainKindRemoteRequest   = "remote_chain_request"
	chainKindRemoteResponse  = "remote_chain_response"
)

// recordEnvelope is the payload published on the Record topic.
type recordEnvelope struct {
	Record model.Record `json:"record"`
}

// messageEnvelope is the payload published on the Message topic.
type messageEnvelope struct {
	Text         string `json:"text"`
	FromPeerID   string `json:"from_peer_id"`
}

func encodeJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.New(errors.CodeSerialization, "encode gossip envelope", err)
	}
	return data, nil
}

func decodeJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New(errors.CodeSerialization, "decode gossip envelope", err)
	}
	return nil
}
