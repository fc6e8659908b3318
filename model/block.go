// Package model holds the Block/Record/Chain types and the canonical
// encoding and sidelink-derivation algorithms described in SPEC_FULL.md §3,
// §4.1, and §4.3.
package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brackwater-labs/slchain/hashutil"
)

// genesisPreviousBlockHash is the literal placeholder original_source writes
// for the genesis block's previous hash ("0".repeat(32)), rather than a
// base64-encoded all-zero digest.
var genesisPreviousBlockHash = strings.Repeat("0", hashutil.Size)

// Block is a single entry in a slchain chain. Field order in MarshalJSON is
// fixed — idx, previous_block_hash, validation_sidelinks, num_sidelinks,
// pow, timestamp, records, difficulty — so that independently running
// nodes compute byte-identical hashes for the same logical block.
type Block struct {
	Idx                 uint64
	PreviousBlockHash   []byte
	ValidationSidelinks []string // base64-encoded hashes of the sidelinked blocks
	NumSidelinks        uint64
	Pow                 uint64 // the nonce that satisfies the PoW target
	Timestamp           int64
	Records             []Record
	Difficulty          []byte // 32-byte target, compared big-endian
}

// Genesis returns the first block of a fresh chain: Idx=1, an all-zero
// previous hash, no sidelinks, NumSidelinks 0, and the supplied difficulty.
// numSidelinks is not stored in the genesis block; the blocks mined after it
// carry the sidelink count.
func Genesis(difficulty []byte, numSidelinks uint64) Block {
	return Block{
		Idx:                 1,
		PreviousBlockHash:   hashutil.ZeroHash(),
		ValidationSidelinks: []string{},
		NumSidelinks:        0,
		Pow:                 0,
		Timestamp:           0,
		Records:             []Record{},
		Difficulty:          difficulty,
	}
}

// IsGenesis reports whether b looks like a well-formed genesis block, per
// SPEC_FULL.md §4.5's "bad genesis" check.
func (b Block) IsGenesis() bool {
	return b.Idx == 1 && len(b.ValidationSidelinks) == 0 && b.NumSidelinks == 0 && isZero(b.PreviousBlockHash)
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// Hash returns the base64(sha256(canonical-json(b))) digest used to link
// blocks and derive sidelinks, matching original_source's Block::hash().
func (b Block) Hash() (string, error) {
	encoded, err := b.MarshalJSON()
	if err != nil {
		return "", err
	}
	return hashutil.HashB64(encoded), nil
}

// AddRecord appends a record to the block, indexed as (block idx, position)
// with positions counted from 0, the same numbering the miner gives carried
// records.
func (b *Block) AddRecord(data, authorPeerID string) {
	b.Records = append(b.Records, Record{
		Idx:          RecordIdx{Major: b.Idx, Minor: uint64(len(b.Records))},
		Timestamp:    time.Now().Unix(),
		Data:         data,
		AuthorPeerID: authorPeerID,
	})
}

// MarshalJSON implements the fixed field order required for cross-node hash
// agreement (SPEC_FULL.md §4.1). It deliberately does not delegate to a
// struct-tag-ordered encoding/json pass, since Go's encoding/json does not
// guarantee field order is preserved across refactors of the struct.
func (b Block) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	fmt.Fprintf(&buf, `"idx":%d`, b.Idx)

	buf.WriteString(`,"previous_block_hash":`)
	prevHashStr := base64.StdEncoding.EncodeToString(b.PreviousBlockHash)
	if b.IsGenesis() {
		prevHashStr = genesisPreviousBlockHash
	}
	prevHashJSON, err := json.Marshal(prevHashStr)
	if err != nil {
		return nil, err
	}
	buf.Write(prevHashJSON)

	buf.WriteString(`,"validation_sidelinks":`)
	sidelinks := b.ValidationSidelinks
	if sidelinks == nil {
		sidelinks = []string{}
	}
	sidelinksJSON, err := json.Marshal(sidelinks)
	if err != nil {
		return nil, err
	}
	buf.Write(sidelinksJSON)

	fmt.Fprintf(&buf, `,"num_sidelinks":%d`, b.NumSidelinks)

	powStr := strconv.FormatUint(b.Pow, 10)
	if b.IsGenesis() && b.Pow == 0 {
		powStr = ""
	}
	powJSON, err := json.Marshal(powStr)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`,"pow":`)
	buf.Write(powJSON)

	fmt.Fprintf(&buf, `,"timestamp":%d`, b.Timestamp)

	buf.WriteString(`,"records":[`)
	for i, r := range b.Records {
		if i > 0 {
			buf.WriteByte(',')
		}
		recJSON, err := r.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(recJSON)
	}
	buf.WriteString(`]`)

	buf.WriteString(`,"difficulty":[`)
	for i, d := range b.Difficulty {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%d", d)
	}
	buf.WriteString(`]`)

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a canonically-encoded block. Field order on the
// wire does not matter for decoding, only for the hash computed over
// MarshalJSON's output.
func (b *Block) UnmarshalJSON(data []byte) error {
	var aux struct {
		Idx                 uint64   `json:"idx"`
		PreviousBlockHash   string   `json:"previous_block_hash"`
		ValidationSidelinks []string `json:"validation_sidelinks"`
		NumSidelinks        uint64   `json:"num_sidelinks"`
		Pow                 string   `json:"pow"`
		Timestamp           int64    `json:"timestamp"`
		Records             []Record `json:"records"`
		Difficulty          []int    `json:"difficulty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var prevHash []byte
	if aux.PreviousBlockHash == genesisPreviousBlockHash {
		prevHash = hashutil.ZeroHash()
	} else {
		decoded, err := base64.StdEncoding.DecodeString(aux.PreviousBlockHash)
		if err != nil {
			return err
		}
		prevHash = decoded
	}

	var pow uint64
	if aux.Pow != "" {
		parsed, err := strconv.ParseUint(aux.Pow, 10, 64)
		if err != nil {
			return err
		}
		pow = parsed
	}

	difficulty := make([]byte, len(aux.Difficulty))
	for i, v := range aux.Difficulty {
		difficulty[i] = byte(v)
	}

	b.Idx = aux.Idx
	b.PreviousBlockHash = prevHash
	b.ValidationSidelinks = aux.ValidationSidelinks
	b.NumSidelinks = aux.NumSidelinks
	b.Pow = pow
	b.Timestamp = aux.Timestamp
	b.Records = aux.Records
	b.Difficulty = difficulty
	return nil
}
