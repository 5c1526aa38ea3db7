// Command node starts a ledger node running one of the three pluggable
// consensus regimes (pow, pos, poa).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tolelom/tolchain/config"
	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/core"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/indexer"
	"github.com/tolelom/tolchain/network"
	"github.com/tolelom/tolchain/rpc"
	"github.com/tolelom/tolchain/storage"
	"github.com/tolelom/tolchain/wallet"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	genKey := flag.Bool("genkey", false, "generate a new node key and exit")
	flag.Parse()

	password := os.Getenv("TOL_PASSWORD")
	if password == "" {
		log.Println("WARNING: TOL_PASSWORD not set — keystore will use an empty password")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	suite, err := crypto.SuiteForRegime(string(cfg.Regime))
	if err != nil {
		log.Fatalf("suite: %v", err)
	}

	if *genKey {
		w, err := wallet.Generate(suite)
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(cfg.KeystorePath, password, suite, w.PrivateKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Public key: %s\n", w.PublicPEM())
		fmt.Printf("Saved to: %s\n", cfg.KeystorePath)
		return
	}

	var priv crypto.PrivateKey
	if _, err := os.Stat(cfg.KeystorePath); os.IsNotExist(err) {
		log.Printf("no keystore at %s, generating one", cfg.KeystorePath)
		w, err := wallet.Generate(suite)
		if err != nil {
			log.Fatalf("generate key: %v", err)
		}
		if err := wallet.SaveKey(cfg.KeystorePath, password, suite, w.PrivateKey()); err != nil {
			log.Fatalf("save key: %v", err)
		}
		priv = w.PrivateKey()
	} else {
		_, loaded, err := wallet.LoadKey(cfg.KeystorePath, password)
		if err != nil {
			log.Fatalf("load key: %v", err)
		}
		priv = loaded
	}
	w := wallet.New(suite, priv)
	log.Printf("node public key: %s", w.PublicPEM())

	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	logger := zerolog.New(consoleWriter).With().Timestamp().Str("node_id", cfg.NodeID).Logger()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	blockStore := storage.NewLevelBlockStore(db)
	snapshots := storage.NewSnapshotStore(db)

	chain := core.NewChain(blockStore)
	if err := chain.Init(); err != nil {
		log.Fatalf("chain init: %v", err)
	}
	if chain.Len() == 0 {
		genesis := config.CreateGenesisBlock(cfg.Regime, w.PublicPEM(), time.Now().Unix())
		if err := chain.Append(genesis); err != nil {
			log.Fatalf("append genesis: %v", err)
		}
		hash, _ := genesis.Hash()
		log.Printf("genesis block committed: %s", hash)
	}

	emitter := events.NewEmitter()
	mempool := core.NewMempool()
	idx := indexer.New(db, chain, emitter)

	var rules consensus.Rules
	var roster *consensus.Roster
	var posProducer *consensus.PoSProducer
	var poaProducer *consensus.PoAProducer
	var powProducer *consensus.PoWProducer

	switch cfg.Regime {
	case core.RegimePoW:
		rules = consensus.PoWRules{}
		powProducer = consensus.NewPoWProducer(chain, mempool, priv, w.PublicPEM(), emitter, logger, cfg.MaxBlockTxs)
	case core.RegimePoS:
		rules = consensus.PoSRules{}
		epochSeconds := 60
		if cfg.PoS != nil && cfg.PoS.EpochSeconds > 0 {
			epochSeconds = cfg.PoS.EpochSeconds
		}
		posProducer = consensus.NewPoSProducer(chain, mempool, priv, w.PublicPEM(), time.Duration(epochSeconds)*time.Second, emitter, logger, cfg.MaxBlockTxs)
	case core.RegimePoA:
		adminID, minersList := cfg.NodeID, []string{cfg.NodeID}
		if cfg.PoA != nil {
			adminID, minersList = cfg.PoA.AdminID, cfg.PoA.MinersList
		}
		roster = consensus.NewRoster(adminID, minersList)
		rules = consensus.PoARules{Roster: roster}
		poaProducer = consensus.NewPoAProducer(cfg.NodeID, chain, mempool, priv, roster, emitter, logger, cfg.MaxBlockTxs)
	}

	hasChain := func() bool { return chain.Len() > 0 }
	overlay := network.NewOverlay(cfg.NodeID, cfg.NodeID, "127.0.0.1", cfg.P2PPort, w.PublicPEM(), cfg.Regime, logger, hasChain)
	if data, ok, err := snapshots.Load("peers"); err == nil && ok {
		var peers []network.PeerInfoData
		if jsonErr := json.Unmarshal(data, &peers); jsonErr == nil {
			overlay.LoadDirectory(peers)
		}
	}
	replicator := network.NewReplicator(overlay, chain, mempool, rules, cfg.Regime, emitter, logger)
	if posProducer != nil {
		replicator.OnStakeSubmitted = func(s *core.Stake) {
			if err := posProducer.SubmitStake(s); err != nil {
				logger.Debug().Err(err).Msg("reject gossiped stake")
			}
		}
	}

	p2pMux := http.NewServeMux()
	p2pMux.HandleFunc("/p2p", overlay.ServeHTTP)
	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	p2pServer := &http.Server{Addr: p2pAddr, Handler: p2pMux}
	go func() {
		if err := p2pServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("p2p server error")
		}
	}()
	log.Printf("P2P listening on %s", p2pAddr)

	for _, sp := range cfg.SeedPeers {
		if err := overlay.Dial(sp.Addr); err != nil {
			log.Printf("seed peer %s (%s): %v", sp.ID, sp.Addr, err)
		}
	}

	stopCh := make(chan struct{})
	var wg sync.WaitGroup

	runTicker := func(d time.Duration, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(d)
			defer ticker.Stop()
			for {
				select {
				case <-stopCh:
					return
				case <-ticker.C:
					fn()
				}
			}
		}()
	}

	wg.Add(3)
	go func() { defer wg.Done(); overlay.RunDiscovery(stopCh) }()
	go func() { defer wg.Done(); overlay.RunSampler(stopCh) }()
	go func() { defer wg.Done(); replicator.RunChainRequestBroadcaster(stopCh) }()

	switch cfg.Regime {
	case core.RegimePoW:
		wg.Add(1)
		go func() {
			defer wg.Done()
			runPoWLoop(stopCh, powProducer, replicator, logger)
		}()
	case core.RegimePoS:
		posEpoch := 60 * time.Second
		if cfg.PoS != nil && cfg.PoS.EpochSeconds > 0 {
			posEpoch = time.Duration(cfg.PoS.EpochSeconds) * time.Second
		}
		runTicker(posEpoch, func() {
			block, ok, err := posProducer.TryProduce()
			if err != nil {
				logger.Warn().Err(err).Msg("pos: produce failed")
				return
			}
			if !ok {
				return
			}
			if err := posProducer.Commit(block); err != nil {
				logger.Warn().Err(err).Msg("pos: commit failed")
				return
			}
			replicator.BroadcastBlock(block)
		})
	case core.RegimePoA:
		runTicker(10*time.Second, poaProducer.AdvanceRound)
		runTicker(30*time.Second, func() {
			if !poaProducer.IsMySlot() {
				return
			}
			block, err := poaProducer.Produce()
			if err != nil {
				logger.Debug().Err(err).Msg("poa: produce skipped")
				return
			}
			replicator.BroadcastBlock(block)
		})
	}

	stopOnce := sync.Once{}
	stopNode := func() {
		stopOnce.Do(func() { close(stopCh) })
	}

	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(cfg.NodeID, chain, mempool, rules, cfg.Regime, w, overlay, replicator, idx, roster, posProducer, stopNode)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	log.Printf("RPC listening on %s", rpcAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-stopCh:
	}
	log.Println("shutting down...")

	stopNode()
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = rpcServer.Stop()
	_ = p2pServer.Shutdown(ctx)

	if data, err := json.Marshal(overlay.Directory()); err == nil {
		_ = snapshots.Save("peers", data)
	}
	log.Println("shutdown complete.")
}

// runPoWLoop mines continuously. The search is canceled only when stop
// closes; a block that lands meanwhile does not interrupt it. A block
// mined on a tip that has since been superseded fails Commit, and the
// loop starts a new search from the current tip.
func runPoWLoop(stop <-chan struct{}, producer *consensus.PoWProducer, replicator *network.Replicator, log zerolog.Logger) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-stop:
				cancel()
			case <-ctx.Done():
			}
		}()
		block, err := producer.Mine(ctx)
		cancel()
		if err != nil {
			continue
		}
		if err := producer.Commit(block); err != nil {
			log.Debug().Err(err).Msg("pow: commit failed, likely superseded")
			continue
		}
		replicator.BroadcastBlock(block)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("config file not found at %s, using defaults", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
