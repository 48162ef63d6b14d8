package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minichain/nanochain/pkg/wallet"
)

func createWalletCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "createwallet",
		Short: "Generate a new keypair and print its address",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := walletFilePath()
			ws, err := openOrNewWallets(path)
			if err != nil {
				return err
			}
			addr, err := ws.CreateWallet()
			if err != nil {
				return err
			}
			if err := ws.SaveToFile(path); err != nil {
				return err
			}
			fmt.Println(addr)
			return nil
		},
	}
}

func openOrNewWallets(path string) (*wallet.Wallets, error) {
	ws, err := wallet.LoadWalletsFromFile(path)
	if err != nil {
		return wallet.NewWallets(), nil
	}
	return ws, nil
}
