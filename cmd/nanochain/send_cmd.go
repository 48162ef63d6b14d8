package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minichain/nanochain/pkg/block"
	"github.com/minichain/nanochain/pkg/blockchain"
	"github.com/minichain/nanochain/pkg/crypto"
	"github.com/minichain/nanochain/pkg/transaction"
	"github.com/minichain/nanochain/pkg/utxo"
)

func sendCmd() *cobra.Command {
	var from, to string
	var amount int64

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Build, sign, and mine a transaction moving funds between addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" || to == "" || amount <= 0 {
				return fmt.Errorf("--from, --to, and a positive --amount are required")
			}

			chain, err := blockchain.LoadFromFile(chainFilePath())
			if err != nil {
				return fmt.Errorf("load chain: %w", err)
			}
			ws, err := openOrNewWallets(walletFilePath())
			if err != nil {
				return err
			}
			w, ok := ws.Get(from)
			if !ok {
				return fmt.Errorf("no wallet known for address %s", from)
			}

			finder := utxo.AddressFinder{Set: chain.UTXOSet(), Decode: decodeAddress}
			tx, err := transaction.New(from, to, amount, finder)
			if err != nil {
				return fmt.Errorf("build transaction: %w", err)
			}
			if err := transaction.Sign(tx, w); err != nil {
				return fmt.Errorf("sign transaction: %w", err)
			}
			if err := tx.Verify(chain.UTXOSet()); err != nil {
				return fmt.Errorf("transaction does not verify: %w", err)
			}

			tip := chain.Tip()
			coinbase, err := transaction.NewCoinbase(from, "send")
			if err != nil {
				return err
			}
			candidate := block.New(tip.Hash, tip.Header.Height+1, []*transaction.Transaction{coinbase, tx})
			if _, err := candidate.Mine(nil); err != nil {
				return fmt.Errorf("mine block: %w", err)
			}
			if err := chain.AddBlock(candidate); err != nil {
				return fmt.Errorf("append block: %w", err)
			}
			if err := chain.SaveToFile(chainFilePath()); err != nil {
				return fmt.Errorf("save chain: %w", err)
			}

			fmt.Printf("sent %d from %s to %s in tx %s (block %d)\n", amount, from, to, tx.ID, candidate.Header.Height)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "sender address (must be in the local wallet file)")
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount to send")
	return cmd
}

func decodeAddress(address string) ([]byte, error) {
	return crypto.DecodeAddress(address)
}
