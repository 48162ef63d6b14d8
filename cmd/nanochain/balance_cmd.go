package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minichain/nanochain/pkg/blockchain"
	"github.com/minichain/nanochain/pkg/crypto"
)

func balanceCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print the confirmed UTXO balance of an address",
		RunE: func(cmd *cobra.Command, args []string) error {
			if address == "" {
				return fmt.Errorf("--address is required")
			}
			chain, err := blockchain.LoadFromFile(chainFilePath())
			if err != nil {
				return fmt.Errorf("load chain: %w", err)
			}
			pubKeyHash, err := crypto.DecodeAddress(address)
			if err != nil {
				return fmt.Errorf("decode address: %w", err)
			}
			balance := chain.UTXOSet().Balance(pubKeyHash)
			fmt.Printf("%s: %d\n", address, balance)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "address to query")
	return cmd
}
