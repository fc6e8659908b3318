// Package miner implements the dedicated mining goroutine described in
// SPEC_FULL.md §4.6, adapted from the teacher's services/miner/miner.go
// continuous-search-with-periodic-poll shape and from
// original_source/src/blockchain/pow.rs's channel-preemption design.
package miner

import (
	"math/rand"
	"runtime"
	"strconv"

	"github.com/brackwater-labs/slchain/hashutil"
	"github.com/brackwater-labs/slchain/model"
	"github.com/brackwater-labs/slchain/ulogger"
)

// Candidate is the in-progress block the miner is currently searching a
// nonce for: everything except Pow, which the miner fills in once found.
type Candidate struct {
	Idx                 uint64
	PreviousBlockHash   []byte
	ValidationSidelinks []string
	NumSidelinks        uint64
	Records             []model.Record
	Difficulty          []byte

	// TipRecords holds the records already committed in the block that
	// became this candidate's previous_block_hash. The miner uses it to
	// drop any in-flight records that a competing miner already included
	// in that block when it switches to this candidate.
	TipRecords []model.Record
}

// MinedBlock is sent on the miner's result channel once a nonce satisfying
// Candidate.Difficulty is found.
type MinedBlock struct {
	Candidate Candidate
	Pow       uint64
}

// Miner runs a single dedicated goroutine performing a continuous
// proof-of-work nonce search, preemptible by a new tip or a new pending
// record without ever blocking on either channel.
type Miner struct {
	logger ulogger.Logger

	// PollInterval is how many nonce iterations the miner tries before
	// polling its preemption channels, matching SPEC_FULL.md §4.6's
	// candidateRequestInterval. 0 defaults to 10,000,000.
	PollInterval uint64

	newTip    <-chan Candidate
	newRecord <-chan model.Record
	mined     chan<- MinedBlock

	metrics *metrics
}

// New builds a Miner reading preemption signals from newTip/newRecord and
// publishing completed blocks on mined. The miner never blocks sending on
// mined (a result is dropped when mined is full), and it waits on
// newTip/newRecord only while it has no candidate to search.
func New(logger ulogger.Logger, newTip <-chan Candidate, newRecord <-chan model.Record, mined chan<- MinedBlock) *Miner {
	return &Miner{
		logger:       logger,
		PollInterval: defaultPollInterval,
		newTip:       newTip,
		newRecord:    newRecord,
		mined:        mined,
		metrics:      newMetrics(),
	}
}

const defaultPollInterval = 10_000_000

// Run blocks forever, mining against whatever Candidate it last received on
// newTip, restarting its nonce search whenever a new tip or new record
// arrives. Callers should run Run in its own goroutine; Run locks that
// goroutine to its OS thread via runtime.LockOSThread.
func (m *Miner) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var current Candidate
	haveCandidate := false

	for {
		if !haveCandidate {
			select {
			case c := <-m.newTip:
				c.Records = carryRecords(current.Records, c.TipRecords, c.Idx)
				current = c
				haveCandidate = true
			case r := <-m.newRecord:
				current.Records = renumberRecords(append(current.Records, r), current.Idx)
			}
			continue
		}

		found, pow, restarted, updated := m.search(current)
		if restarted {
			current = updated
			continue
		}
		if found {
			m.metrics.blocksFound.Inc()
			select {
			case m.mined <- MinedBlock{Candidate: current, Pow: pow}:
			default:
				m.logger.Warnf("mined block channel full, dropping result for idx=%d", current.Idx)
			}
			haveCandidate = false
		}
	}
}

// search tries nonces against candidate until one meets the target,
// checking for preemption after every PollInterval attempts. It returns found=true and the
// winning nonce if one was found before preemption, or restarted=true (with
// the updated Candidate) if a newTip/newRecord signal interrupted the
// search. The nonce search starts from a random offset, matching
// original_source/src/blockchain/pow.rs's prove_the_work, so that
// independently running nodes don't race from the identical starting nonce
// for the same tip.
func (m *Miner) search(candidate Candidate) (found bool, pow uint64, restarted bool, updated Candidate) {
	pollInterval := m.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
	}

	nonce := rand.Uint64()
	for iterations := uint64(0); ; iterations++ {
		if iterations%pollInterval == 0 && iterations != 0 {
			select {
			case c := <-m.newTip:
				c.Records = carryRecords(candidate.Records, c.TipRecords, c.Idx)
				return false, 0, true, c
			case r := <-m.newRecord:
				candidate.Records = renumberRecords(append(candidate.Records, r), candidate.Idx)
				return false, 0, true, candidate
			default:
			}
			m.metrics.nonces.Add(float64(pollInterval))
		}

		token := hashutil.PowToken(candidate.PreviousBlockHash, nonce)
		if hashutil.MeetsTarget(token[:], candidate.Difficulty) {
			return true, nonce, false, candidate
		}
		nonce++
	}
}

// recordKey identifies a record by its content rather than its position,
// since idx is rewritten every time a record is carried into a new
// candidate block.
func recordKey(r model.Record) [3]string {
	return [3]string{r.Data, strconv.FormatInt(r.Timestamp, 10), r.AuthorPeerID}
}

// containsRecord reports whether finalized already holds a record matching
// r's content, ignoring idx.
func containsRecord(finalized []model.Record, r model.Record) bool {
	key := recordKey(r)
	for _, f := range finalized {
		if recordKey(f) == key {
			return true
		}
	}
	return false
}

// renumberRecords rewrites each record's idx to (blockIdx, position), with
// position assigned in order starting at 0, so that carried records are
// rewritten to the containing block's height.
func renumberRecords(records []model.Record, blockIdx uint64) []model.Record {
	renumbered := make([]model.Record, len(records))
	for i, r := range records {
		r.Idx = model.RecordIdx{Major: blockIdx, Minor: uint64(i)}
		renumbered[i] = r
	}
	return renumbered
}

// carryRecords drops any in-flight record already present in tipRecords
// (the block that just became the new tip) and renumbers the survivors to
// the new candidate's block height. Records are compared by content
// (data, timestamp, author), not by idx.
func carryRecords(inFlight, tipRecords []model.Record, newBlockIdx uint64) []model.Record {
	survivors := make([]model.Record, 0, len(inFlight))
	for _, r := range inFlight {
		if containsRecord(tipRecords, r) {
			continue
		}
		survivors = append(survivors, r)
	}
	return renumberRecords(survivors, newBlockIdx)
}
