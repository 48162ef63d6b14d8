// Command nanochain is the node CLI: wallet management, sending funds,
// checking balances, printing the chain, and running a node that mines
// and gossips with peers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/minichain/nanochain/pkg/logger"
)

var (
	configFile string
	dataDir    string
	port       int
	mining     bool
	walletFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nanochain",
		Short: "nanochain - a minimal proof-of-work, UTXO-based blockchain node",
		Long: `nanochain is a small blockchain node: block-structured, proof-of-work,
UTXO-based ledger with signed transactions, a validating mempool, and a
peer-to-peer gossip layer.`,
		RunE: runNode,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "directory for chain and storage files")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "network listen port (0 for random)")
	rootCmd.PersistentFlags().BoolVar(&mining, "mining", false, "enable mining")
	rootCmd.PersistentFlags().StringVar(&walletFile, "wallet-file", "wallet.dat", "path to the wallet file")

	rootCmd.AddCommand(createWalletCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(printChainCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.SetEnvPrefix("NANOCHAIN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

func newLogger() *logger.Logger {
	cfg := logger.DefaultConfig()
	if viper.GetBool("log.json") {
		cfg.UseJSON = true
	}
	l, err := logger.New(cfg)
	if err != nil {
		return logger.Nop()
	}
	return l
}
