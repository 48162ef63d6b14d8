package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/minichain/nanochain/pkg/blockchain"
)

func printChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "printchain",
		Short: "Print every block on the local chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := blockchain.LoadFromFile(chainFilePath())
			if err != nil {
				return fmt.Errorf("load chain: %w", err)
			}

			height := chain.Height()
			for h := 0; h < height; h++ {
				b, ok := chain.GetBlockByHeight(uint64(h))
				if !ok {
					continue
				}
				fmt.Printf("height:     %d\n", b.Header.Height)
				fmt.Printf("hash:       %s\n", b.Hash)
				fmt.Printf("prev hash:  %s\n", b.Header.PrevBlockHash)
				fmt.Printf("merkle:     %s\n", b.Header.MerkleRoot)
				fmt.Printf("timestamp:  %s\n", time.Unix(b.Header.Timestamp, 0).UTC().Format(time.RFC3339))
				fmt.Printf("difficulty: %d\n", b.Header.Difficulty)
				fmt.Printf("nonce:      %d\n", b.Header.Nonce)
				fmt.Printf("txs:        %d\n", len(b.Transactions))
				fmt.Println()
			}
			return nil
		},
	}
}
