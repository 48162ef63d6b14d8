package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/minichain/nanochain/pkg/block"
	"github.com/minichain/nanochain/pkg/blockchain"
	"github.com/minichain/nanochain/pkg/mempool"
	"github.com/minichain/nanochain/pkg/miner"
	"github.com/minichain/nanochain/pkg/network"
	"github.com/minichain/nanochain/pkg/transaction"
	"github.com/minichain/nanochain/pkg/wallet"
)

func runNode(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger()
	defer log.Sync()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	wallets, coinbaseAddr, err := loadOrCreateWallets()
	if err != nil {
		return fmt.Errorf("load wallets: %w", err)
	}

	chain, err := loadOrCreateChain(coinbaseAddr)
	if err != nil {
		return fmt.Errorf("load chain: %w", err)
	}
	log.Infof("chain loaded at height %d", chain.Height())

	pool := mempool.New()

	var node *network.Network
	node = network.New(func(peerAddr string, msg network.Message) (*network.Message, error) {
		return handleMessage(chain, pool, node, peerAddr, msg, log)
	})

	listenAddr := fmt.Sprintf(":%d", port)
	if err := node.Listen(listenAddr); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Infof("listening on %s", listenAddr)

	var m *miner.Miner
	if mining {
		m = miner.New(chain, pool, coinbaseAddr)
		m.OnBlockMined(func(b *block.Block) {
			log.Infof("mined block %d: %s", b.Header.Height, b.Hash)
			node.Broadcast(network.Message{Type: network.NewBlock, Block: b})
		})
		if err := m.Start(); err != nil {
			return fmt.Errorf("start miner: %w", err)
		}
		log.Infof("mining enabled, rewards to %s", coinbaseAddr)
	}

	maintenance := time.NewTicker(time.Minute)
	defer maintenance.Stop()
	go func() {
		for range maintenance.C {
			evicted := node.EvictStalePeers()
			removed := pool.CleanupOldTransactions(time.Hour)
			if evicted > 0 || removed > 0 {
				log.Debugf("maintenance: evicted %d peers, cleaned %d stale transactions", evicted, removed)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Infof("shutting down")
	if m != nil {
		m.Stop()
	}
	_ = node.Close()

	if err := chain.SaveToFile(chainFilePath()); err != nil {
		log.Errorf("save chain: %v", err)
	}
	if err := wallets.SaveToFile(walletFilePath()); err != nil {
		log.Errorf("save wallets: %v", err)
	}
	return nil
}

func chainFilePath() string {
	return filepath.Join(dataDir, "chain.gob")
}

func walletFilePath() string {
	return filepath.Join(dataDir, walletFile)
}

func loadOrCreateWallets() (*wallet.Wallets, string, error) {
	path := walletFilePath()
	if _, err := os.Stat(path); err == nil {
		ws, err := wallet.LoadWalletsFromFile(path)
		if err != nil {
			return nil, "", err
		}
		addrs := ws.Addresses()
		if len(addrs) == 0 {
			addr, err := ws.CreateWallet()
			if err != nil {
				return nil, "", err
			}
			return ws, addr, nil
		}
		return ws, addrs[0], nil
	}

	ws := wallet.NewWallets()
	addr, err := ws.CreateWallet()
	if err != nil {
		return nil, "", err
	}
	if err := ws.SaveToFile(path); err != nil {
		return nil, "", err
	}
	return ws, addr, nil
}

func loadOrCreateChain(coinbaseAddr string) (*blockchain.Chain, error) {
	path := chainFilePath()
	if _, err := os.Stat(path); err == nil {
		return blockchain.LoadFromFile(path)
	}

	genesisMemo := viper.GetString("chain.genesis_memo")
	if genesisMemo == "" {
		genesisMemo = "genesis"
	}
	coinbase, err := transaction.NewCoinbase(coinbaseAddr, genesisMemo)
	if err != nil {
		return nil, err
	}
	genesis := block.New("", 0, []*transaction.Transaction{coinbase})
	if _, err := genesis.Mine(nil); err != nil {
		return nil, err
	}
	return blockchain.New(genesis)
}

func handleMessage(chain *blockchain.Chain, pool *mempool.Mempool, node *network.Network, peerAddr string, msg network.Message, log interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
}) (*network.Message, error) {
	switch msg.Type {
	case network.Ping:
		return &network.Message{Type: network.Pong}, nil

	case network.GetPeers:
		return &network.Message{Type: network.Peers, Peers: node.PeerAddrs()}, nil

	case network.GetBlockHeight:
		return &network.Message{Type: network.BlockHeight, Height: uint64(chain.Height())}, nil

	case network.GetBlock:
		b, ok := chain.GetBlock(msg.BlockHash)
		if !ok {
			return nil, nil
		}
		return &network.Message{Type: network.Block, Block: b}, nil

	case network.NewBlock, network.MiningSuccess:
		if msg.Block == nil {
			return nil, nil
		}
		err := chain.AddBlock(msg.Block)
		verified := err == nil
		if verified {
			pool.RemoveAll(msg.Block.Transactions)
			log.Infof("accepted block %d from %s", msg.Block.Header.Height, peerAddr)
			node.BroadcastExcept(peerAddr, network.Message{Type: network.NewBlock, Block: msg.Block})
		} else {
			log.Debugf("rejected block from %s: %v", peerAddr, err)
		}
		return &network.Message{Type: network.BlockVerified, BlockHash: msg.Block.Hash, Verified: verified}, nil

	case network.VerifyBlock:
		if msg.Block == nil {
			return nil, nil
		}
		err := chain.ValidateChain()
		return &network.Message{Type: network.BlockVerified, BlockHash: msg.Block.Hash, Verified: err == nil}, nil

	default:
		return nil, nil
	}
}
