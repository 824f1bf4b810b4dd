// royaltyplan converts a percentage split into the recipient amounts a
// distribution request carries. It reads a JSON plan document:
//
//	{
//	  "collection": "0x...",
//	  "pending": "950000000",
//	  "shares": [
//	    {"recipient": "0x...", "bps": 6000},
//	    {"recipient": "0x...", "bps": 4000}
//	  ]
//	}
//
// and prints the params object for a royalty_distribute call.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"royaltysplit/native/royalty"
	"royaltysplit/planner"
)

type planDocument struct {
	Collection string `json:"collection"`
	Pending    string `json:"pending"`
	Shares     []struct {
		Recipient string `json:"recipient"`
		Bps       uint32 `json:"bps"`
	} `json:"shares"`
}

type distributeEntry struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type distributeParams struct {
	Collection    string            `json:"collection"`
	AttachedValue string            `json:"attachedValue"`
	Recipients    []distributeEntry `json:"recipients"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [file]\n\nReads a JSON plan document (stdin when no file is given) and prints\nthe royalty_distribute params for it.\n", os.Args[0])
	}
	flag.Parse()

	var (
		raw []byte
		err error
	)
	if flag.NArg() > 0 {
		raw, err = os.ReadFile(flag.Arg(0))
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "read plan: %v\n", err)
		os.Exit(1)
	}

	var doc planDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		fmt.Fprintf(os.Stderr, "decode plan: %v\n", err)
		os.Exit(1)
	}
	if !common.IsHexAddress(doc.Collection) {
		fmt.Fprintf(os.Stderr, "invalid collection address %q\n", doc.Collection)
		os.Exit(1)
	}
	pending, ok := new(big.Int).SetString(doc.Pending, 10)
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid pending amount %q\n", doc.Pending)
		os.Exit(1)
	}

	shares := make([]planner.Share, len(doc.Shares))
	for i, share := range doc.Shares {
		if !common.IsHexAddress(share.Recipient) {
			fmt.Fprintf(os.Stderr, "invalid recipient address %q\n", share.Recipient)
			os.Exit(1)
		}
		shares[i] = planner.Share{Recipient: common.HexToAddress(share.Recipient), Bps: share.Bps}
	}

	plan, err := planner.Plan(pending, shares)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	params := distributeParams{
		Collection:    common.HexToAddress(doc.Collection).Hex(),
		AttachedValue: big.NewInt(royalty.MinDistributionGas).String(),
		Recipients:    make([]distributeEntry, len(plan)),
	}
	for i, entry := range plan {
		params.Recipients[i] = distributeEntry{
			Recipient: common.Address(entry.Recipient).Hex(),
			Amount:    entry.Amount.String(),
		}
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(params); err != nil {
		fmt.Fprintf(os.Stderr, "encode params: %v\n", err)
		os.Exit(1)
	}
}
