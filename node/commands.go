package node

// Command is a local action requested by the shell, delivered to Core's
// event pump over its local-command channel.
type Command interface {
	isCommand()
}

// InitChainCmd initializes a fresh chain with the given difficulty target
// and sidelink count, then broadcasts InitUsingChain to peers.
type InitChainCmd struct {
	Difficulty   []byte
	NumSidelinks uint64
}

// AddRecordCmd submits a new record for inclusion in the next mined block.
type AddRecordCmd struct {
	Data string
}

// TalkCmd broadcasts a chat message to all peers.
type TalkCmd struct {
	Message string
}

// RequestChainCmd asks a specific peer (or, if PeerID is empty, broadcasts
// to all peers) for their current chain.
type RequestChainCmd struct {
	PeerID string
}

func (InitChainCmd) isCommand()    {}
func (AddRecordCmd) isCommand()    {}
func (TalkCmd) isCommand()         {}
func (RequestChainCmd) isCommand() {}
