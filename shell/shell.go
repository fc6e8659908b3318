// Package shell implements the interactive CLI described in SPEC_FULL.md
// §6.2, grounded on original_source/src/blockchain_io.rs's
// print_cmd_options/process_non_init_cmd dispatch-by-whitespace-split
// style, with blocks/printblock rendering upgraded to tablewriter/go-spew.
package shell

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/olekukonko/tablewriter"

	"github.com/brackwater-labs/slchain/hashutil"
	"github.com/brackwater-labs/slchain/node"
	"github.com/brackwater-labs/slchain/p2p"
	"github.com/brackwater-labs/slchain/store"
	"github.com/brackwater-labs/slchain/ulogger"
)

// Shell reads commands from in, one per line, and dispatches them against
// core/p2pNode/st.
type Shell struct {
	core    *node.Core
	p2pNode *p2p.Node
	store   store.BlockStore
	logger  ulogger.Logger

	out io.Writer
	in  *bufio.Scanner
}

// New builds a Shell reading from in and writing prompts/output to out.
func New(core *node.Core, p2pNode *p2p.Node, st store.BlockStore, logger ulogger.Logger, in io.Reader, out io.Writer) *Shell {
	return &Shell{core: core, p2pNode: p2pNode, store: st, logger: logger, out: out, in: bufio.NewScanner(in)}
}

// PrintBanner prints the command table and a rough hashrate estimate,
// recovered from original_source/src/main.rs's startup probe (advisory
// only; it never feeds back into `init`'s difficulty automatically, since
// this spec has no dynamic difficulty retargeting).
func (s *Shell) PrintBanner() {
	rate := EstimateHashrate(500 * time.Millisecond)
	fmt.Fprintf(s.out, "estimated local hash rate: ~%.0f H/s\n\n", rate)
	s.printHelp()
}

// Run reads and dispatches commands until EOF or an `exit` command.
func (s *Shell) Run() {
	for {
		fmt.Fprint(s.out, "> ")
		if !s.in.Scan() {
			return
		}
		line := strings.TrimSpace(s.in.Text())
		if line == "" {
			continue
		}
		if s.dispatch(line) {
			return
		}
	}
}

// dispatch handles one line of input, returning true if the shell should
// exit.
func (s *Shell) dispatch(line string) (exit bool) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "help":
		s.printHelp()
	case "init":
		s.cmdInit(args)
	case "rec":
		s.cmdRec(args)
	case "blocks":
		s.cmdBlocks(args)
	case "printblock":
		s.cmdPrintBlock(args)
	case "numberblocks":
		s.cmdNumberBlocks()
	case "listpeers":
		s.cmdListPeers()
	case "myid":
		fmt.Fprintln(s.out, s.p2pNode.HostID().String())
	case "myfile":
		fmt.Fprintln(s.out, s.store.Path())
	case "talk":
		s.core.SubmitCommand(node.TalkCmd{Message: strings.Join(args, " ")})
	case "exit":
		return true
	default:
		fmt.Fprintf(s.out, "unknown command: %s\n", cmd)
		s.printHelp()
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `Possible commands:
	help                               - print this message
	init <difficulty-hex> <sidelinks>  - initialize the blockchain
	rec <data...>                      - add a record to the next block
	blocks [file]                      - pretty-print blocks, optionally into a file
	printblock <block index>           - display contents of a chosen block
	numberblocks                       - display number of blocks in the chain
	listpeers                          - print connected peers
	myid                               - print this node's peer id
	myfile                             - print the path of this node's block store file
	talk [message]                     - send a text message to all other peers
	exit                               - exit the program
`)
}

func (s *Shell) cmdInit(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "usage: init <difficulty-hex> <num-sidelinks>")
		return
	}
	difficulty, err := hex.DecodeString(args[0])
	if err != nil || len(difficulty) != hashutil.Size {
		fmt.Fprintf(s.out, "difficulty must be a %d-byte hex string\n", hashutil.Size)
		return
	}
	numSidelinks, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Fprintln(s.out, "num-sidelinks must be a non-negative integer")
		return
	}
	s.core.SubmitCommand(node.InitChainCmd{Difficulty: difficulty, NumSidelinks: numSidelinks})
}

func (s *Shell) cmdRec(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "usage: rec <data...>")
		return
	}
	s.core.SubmitCommand(node.AddRecordCmd{Data: strings.Join(args, " ")})
}

func (s *Shell) cmdBlocks(args []string) {
	length, err := s.store.Length()
	if err != nil {
		fmt.Fprintf(s.out, "cannot read block store: %v\n", err)
		return
	}
	blocks, err := s.store.GetRange(0, length)
	if err != nil {
		fmt.Fprintf(s.out, "cannot read blocks: %v\n", err)
		return
	}

	dest := s.out
	if len(args) > 0 {
		f, err := os.Create(args[0])
		if err != nil {
			fmt.Fprintf(s.out, "cannot create file %s: %v\n", args[0], err)
			return
		}
		defer f.Close()
		dest = f
	}

	table := tablewriter.NewWriter(dest)
	table.SetHeader([]string{"idx", "hash", "prev hash", "sidelinks", "records", "timestamp"})
	for _, b := range blocks {
		hash, _ := b.Hash()
		table.Append([]string{
			fmt.Sprintf("%d", b.Idx),
			shortHash(hash),
			shortHash(hex.EncodeToString(b.PreviousBlockHash)),
			fmt.Sprintf("%d", b.NumSidelinks),
			fmt.Sprintf("%d", len(b.Records)),
			time.Unix(b.Timestamp, 0).Format(time.RFC3339),
		})
	}
	table.Render()
}

func (s *Shell) cmdPrintBlock(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "usage: printblock <block index>")
		return
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(s.out, "cannot parse block index")
		return
	}
	b, err := s.store.Get(idx - 1)
	if err != nil {
		fmt.Fprintf(s.out, "cannot load block: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, spew.Sdump(b))
}

func (s *Shell) cmdNumberBlocks() {
	length, err := s.store.Length()
	if err != nil {
		fmt.Fprintf(s.out, "cannot read block store: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "number of blocks: %d\n", length)
}

func (s *Shell) cmdListPeers() {
	peers := s.p2pNode.Peers()
	fmt.Fprintf(s.out, "connected peers (%d):\n", len(peers))
	for _, p := range peers {
		fmt.Fprintln(s.out, p.String())
	}
}

func shortHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:16] + "..."
}
