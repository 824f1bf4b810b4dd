// royaltyhash prints the digest of a split-configuration document in the
// form the vault's config update operation expects.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"royaltysplit/confighash"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [file]\n\nReads a JSON configuration document (stdin when no file is given)\nand prints its canonical BLAKE3-256 digest.\n", os.Args[0])
	}
	flag.Parse()

	var (
		doc []byte
		err error
	)
	if flag.NArg() > 0 {
		doc, err = os.ReadFile(flag.Arg(0))
	} else {
		doc, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "read document: %v\n", err)
		os.Exit(1)
	}

	hash, err := confighash.SumUint256(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash.Hex())
}
