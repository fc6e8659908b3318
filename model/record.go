package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RecordIdx identifies a record's position within a block: Major is the
// idx of the containing block, Minor is the record's position within that
// block (SPEC_FULL.md §3 / original_source's Record.idx tuple).
type RecordIdx struct {
	Major uint64
	Minor uint64
}

// MarshalJSON encodes RecordIdx as a two-element array, matching the
// original Rust prototype's tuple-as-array encoding.
func (r RecordIdx) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("[%d,%d]", r.Major, r.Minor)), nil
}

// UnmarshalJSON decodes a two-element array into RecordIdx.
func (r *RecordIdx) UnmarshalJSON(data []byte) error {
	var pair [2]uint64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	r.Major, r.Minor = pair[0], pair[1]
	return nil
}

// Record is a single piece of arbitrary operator-submitted data carried in
// a Block.
type Record struct {
	Idx          RecordIdx
	Timestamp    int64
	Data         string
	AuthorPeerID string
}

// MarshalJSON fixes the JSON field order for a Record, mirroring
// Block's canonical encoding requirement.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString(`"idx":`)
	idxBytes, err := r.Idx.MarshalJSON()
	if err != nil {
		return nil, err
	}
	buf.Write(idxBytes)

	buf.WriteString(`,"timestamp":`)
	fmt.Fprintf(&buf, "%d", r.Timestamp)

	dataBytes, err := json.Marshal(r.Data)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`,"data":`)
	buf.Write(dataBytes)

	authorBytes, err := json.Marshal(r.AuthorPeerID)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`,"author_peer_id":`)
	buf.Write(authorBytes)

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var aux struct {
		Idx          RecordIdx `json:"idx"`
		Timestamp    int64     `json:"timestamp"`
		Data         string    `json:"data"`
		AuthorPeerID string    `json:"author_peer_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Idx = aux.Idx
	r.Timestamp = aux.Timestamp
	r.Data = aux.Data
	r.AuthorPeerID = aux.AuthorPeerID
	return nil
}
