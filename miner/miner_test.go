package miner

import (
	"testing"
	"time"

	"github.com/brackwater-labs/slchain/hashutil"
	"github.com/brackwater-labs/slchain/model"
	"github.com/brackwater-labs/slchain/ulogger"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}
func (noopLogger) Fatalf(string, ...interface{}) {}
func (l noopLogger) With(map[string]interface{}) ulogger.Logger {
	return l
}

// easyDifficulty requires only that the token's top byte be <= 1, so a
// solution is found within a few hundred nonces on average.
func easyDifficulty() []byte {
	d := make([]byte, hashutil.Size)
	for i := range d {
		d[i] = 0xff
	}
	d[0] = 0x01
	return d
}

func TestMinerFindsBlockQuickly(t *testing.T) {
	newTip := make(chan Candidate, 1)
	newRecord := make(chan model.Record, 1)
	mined := make(chan MinedBlock, 1)

	m := New(noopLogger{}, newTip, newRecord, mined)
	m.PollInterval = 1000

	go m.Run()

	newTip <- Candidate{
		Idx:               2,
		PreviousBlockHash: hashutil.ZeroHash(),
		Difficulty:        easyDifficulty(),
	}

	select {
	case result := <-mined:
		token := hashutil.PowToken(result.Candidate.PreviousBlockHash, result.Pow)
		require.True(t, hashutil.MeetsTarget(token[:], result.Candidate.Difficulty))
	case <-time.After(5 * time.Second):
		t.Fatal("miner did not find a block in time")
	}
}

func TestMinerPreemptsOnNewTip(t *testing.T) {
	newTip := make(chan Candidate, 2)
	newRecord := make(chan model.Record, 1)
	mined := make(chan MinedBlock, 1)

	m := New(noopLogger{}, newTip, newRecord, mined)
	m.PollInterval = 1

	go m.Run()

	// An impossible target (all-zero) so the miner never finds a block for
	// the first candidate and must be observed to pick up the second.
	impossible := hashutil.ZeroHash()
	newTip <- Candidate{Idx: 2, PreviousBlockHash: []byte("a"), Difficulty: impossible}
	time.Sleep(10 * time.Millisecond)
	newTip <- Candidate{Idx: 2, PreviousBlockHash: hashutil.ZeroHash(), Difficulty: easyDifficulty()}

	select {
	case result := <-mined:
		require.Equal(t, []byte(hashutil.ZeroHash()), result.Candidate.PreviousBlockHash)
	case <-time.After(5 * time.Second):
		t.Fatal("miner did not preempt onto the new candidate in time")
	}
}

func TestRenumberRecordsRewritesIdxToBlockHeight(t *testing.T) {
	records := []model.Record{
		{Idx: model.RecordIdx{Major: 1, Minor: 9}, Data: "a"},
		{Idx: model.RecordIdx{Major: 1, Minor: 3}, Data: "b"},
	}

	renumbered := renumberRecords(records, 7)

	require.Equal(t, model.RecordIdx{Major: 7, Minor: 0}, renumbered[0].Idx)
	require.Equal(t, model.RecordIdx{Major: 7, Minor: 1}, renumbered[1].Idx)
}

func TestCarryRecordsDropsAlreadyFinalizedAndRenumbersSurvivors(t *testing.T) {
	finalized := model.Record{Idx: model.RecordIdx{Major: 5, Minor: 0}, Timestamp: 100, Data: "mined-by-someone-else", AuthorPeerID: "peerA"}
	stillPending := model.Record{Idx: model.RecordIdx{Major: 4, Minor: 2}, Timestamp: 200, Data: "not-yet-mined", AuthorPeerID: "peerB"}

	survivors := carryRecords([]model.Record{finalized, stillPending}, []model.Record{finalized}, 6)

	require.Len(t, survivors, 1)
	require.Equal(t, "not-yet-mined", survivors[0].Data)
	require.Equal(t, model.RecordIdx{Major: 6, Minor: 0}, survivors[0].Idx)
}

func TestMinerCarriesPendingRecordsAcrossTipChange(t *testing.T) {
	newTip := make(chan Candidate, 2)
	newRecord := make(chan model.Record, 1)
	mined := make(chan MinedBlock, 1)

	m := New(noopLogger{}, newTip, newRecord, mined)
	m.PollInterval = 1

	go m.Run()

	impossible := hashutil.ZeroHash()
	newTip <- Candidate{Idx: 2, PreviousBlockHash: []byte("a"), Difficulty: impossible}
	newRecord <- model.Record{Data: "carried-record", AuthorPeerID: "peerC", Timestamp: 42}
	time.Sleep(10 * time.Millisecond)
	newTip <- Candidate{Idx: 3, PreviousBlockHash: hashutil.ZeroHash(), Difficulty: easyDifficulty()}

	select {
	case result := <-mined:
		require.Len(t, result.Candidate.Records, 1)
		require.Equal(t, "carried-record", result.Candidate.Records[0].Data)
		require.Equal(t, model.RecordIdx{Major: 3, Minor: 0}, result.Candidate.Records[0].Idx)
	case <-time.After(5 * time.Second):
		t.Fatal("miner did not carry the pending record onto the new tip in time")
	}
}
