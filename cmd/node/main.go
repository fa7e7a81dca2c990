// Command node starts a nanoledger consensus/ledger core.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/tolelom/nanoledger/active"
	"github.com/tolelom/nanoledger/aggregator"
	"github.com/tolelom/nanoledger/blockproc"
	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/config"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/events"
	"github.com/tolelom/nanoledger/internal/logging"
	"github.com/tolelom/nanoledger/ledger"
	"github.com/tolelom/nanoledger/repkeystore"
	"github.com/tolelom/nanoledger/storage"
	"github.com/tolelom/nanoledger/vote"
	"github.com/tolelom/nanoledger/votecache"
)

// DefaultVoteCacheCapacity bounds the recent-votes cache the generator
// writes into and the aggregator reads from (§4.5, §4.8).
const DefaultVoteCacheCapacity = 4096

func main() {
	configPath := flag.String("config", "config.json", "path to node config file")
	genKeyPath := flag.String("genkey", "", "generate a new representative key at this path and exit")
	flag.Parse()

	if *genKeyPath != "" {
		if err := generateKey(*genKeyPath); err != nil {
			fmt.Fprintf(os.Stderr, "genkey: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logging.Configure(level, os.Stderr)
	log := logging.Component("node")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("node exited with error")
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func generateKey(path string) error {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	password := os.Getenv("NANOLEDGER_PASSWORD")
	if password == "" {
		return fmt.Errorf("NANOLEDGER_PASSWORD must be set to encrypt the new key")
	}
	if err := repkeystore.SaveKey(path, password, priv); err != nil {
		return err
	}
	fmt.Printf("representative public key: %s\n", pub.Hex())
	return nil
}

func run(cfg *config.Config, log zerolog.Logger) error {
	// ---- storage ----
	db, err := storage.NewLevelDB(cfg.DataDir + "/ledger")
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	store := ledger.NewStore(db)
	if err := store.EnsureSchema(); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	epochLinks, err := config.DecodeEpochLinks(cfg.EpochLinks)
	if err != nil {
		return fmt.Errorf("epoch links: %w", err)
	}
	var burnAccount crypto.PublicKey
	if cfg.BurnAccount != "" {
		burnAccount, err = crypto.PubKeyFromHex(cfg.BurnAccount)
		if err != nil {
			return fmt.Errorf("burn account: %w", err)
		}
	}
	var epochSigner crypto.PublicKey
	if cfg.EpochSigner != "" {
		epochSigner, err = crypto.PubKeyFromHex(cfg.EpochSigner)
		if err != nil {
			return fmt.Errorf("epoch signer: %w", err)
		}
	}

	ldg, err := ledger.New(store, ledger.DefaultWorkVerifier(), ledger.Config{
		BurnAccount: burnAccount,
		EpochSigner: epochSigner,
		EpochLinks:  epochLinks,
		Now:         func() uint64 { return uint64(time.Now().Unix()) },
	})
	if err != nil {
		return fmt.Errorf("ledger init: %w", err)
	}

	bootstrapWeights, err := config.DecodeBootstrapWeights(cfg.BootstrapWeights)
	if err != nil {
		return fmt.Errorf("bootstrap weights: %w", err)
	}
	for _, bw := range bootstrapWeights {
		ldg.RepWeights.SeedWeight(bw.Representative, bw.Weight)
	}

	// ---- genesis block, if this account has no chain yet ----
	if cfg.Genesis.PrivateKey != "" {
		if err := seedGenesis(ldg, cfg.Genesis, log); err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
	}

	onlineWeight := ledger.NewOnlineWeightTracker(ldg.RepWeights, time.Now)
	confHeight := ledger.NewConfirmationHeightProcessor(store)
	principalReps := ledger.NewPrincipalRepSet(ldg.RepWeights, onlineWeight, cfg.PrincipalRepFraction)
	emitter := events.NewEmitter()

	// ---- active engine (C6) ----
	engine := active.New(active.Config{
		Ledger:         ldg,
		RepWeights:     ldg.RepWeights,
		OnlineWeight:   onlineWeight,
		ConfHeight:     confHeight,
		Work:           ldg.Work,
		Events:         emitter,
		QuorumFraction: cfg.QuorumFraction,
		ElectionTTL:    cfg.ElectionTTL,
		MaxElections:   cfg.MaxElections,
		Now:            time.Now,
	})

	// ---- vote generator (C7) ----
	localReps, err := repkeystore.LoadAll(cfg.RepKeystoreDir, os.Getenv("NANOLEDGER_PASSWORD"))
	if err != nil {
		return fmt.Errorf("load representative keys: %w", err)
	}
	if len(localReps) == 0 {
		log.Info().Msg("no local representative keys configured, running non-voting")
	}

	recentVotes := votecache.NewRecentVotes(DefaultVoteCacheCapacity)
	generator := vote.NewGenerator(vote.GeneratorConfig{
		Voters:    localReps,
		Ledger:    ldg,
		Cache:     recentVotes,
		Publisher: noopPublisher{log: log, principals: principalReps},
		Delay:     cfg.VoteGeneratorDelay,
		Now:       time.Now,
	})
	generator.Start()

	// ---- request aggregator (C8) ----
	agg := aggregator.New(aggregator.Config{
		Cache:     recentVotes,
		Ledger:    ldg,
		Generator: generator,
		MaxQueued: cfg.MaxQueuedRequests,
	})

	// ---- block processor (C4), wired to push confirmed-progress blocks
	// into the active engine ----
	proc := blockproc.New(ldg, emitter, cfg.BlockQueueSize, cfg.SigVerifyWorkers)
	proc.SetLiveHook(func(result ledger.ProcessReturn, b blocks.Block, e blockproc.Entry) {
		sb, ok := b.(*blocks.StateBlock)
		if !ok {
			return
		}
		engine.Insert(sb.Account, sb, blocks.Details{})
	})
	proc.Start()

	// ---- active engine's request-scheduling loop (§4.6 thread 3) ----
	reqLoop := active.NewRequestLoop(engine, noopRequester{log: log}, cfg.RequestInterval, cfg.RequestBatchSize)
	reqLoop.Start()

	// ---- request aggregator's drain loop ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				agg.Process(ctx)
			}
		}
	}()

	log.Info().Str("node_id", cfg.NodeID).Str("data_dir", cfg.DataDir).Msg("node started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")

	// Stop in reverse dependency order: the aggregator's drain loop and the
	// request loop only read from the engine/ledger, so they stop first;
	// the vote generator next; the block processor last, since everything
	// upstream assumes it has already drained (§5).
	cancel()
	<-aggDone
	reqLoop.Stop()
	generator.Stop()
	proc.Stop()

	log.Info().Msg("shutdown complete")
	return nil
}

func seedGenesis(ldg *ledger.Ledger, g config.GenesisAccount, log zerolog.Logger) error {
	priv, err := crypto.PrivKeyFromHex(g.PrivateKey)
	if err != nil {
		return err
	}
	account := priv.Public()

	txn := ldg.Store.Begin()
	_, has, err := txn.GetAccountInfo(account)
	if err != nil {
		txn.Discard()
		return err
	}
	if has {
		txn.Discard()
		return nil
	}

	block, err := config.BuildGenesisBlock(g)
	if err != nil {
		txn.Discard()
		return err
	}
	result, err := ldg.Process(txn, block)
	if err != nil {
		txn.Discard()
		return fmt.Errorf("process genesis block: %w", err)
	}
	if result.Code != ledger.Progress {
		txn.Discard()
		return fmt.Errorf("genesis block rejected: %v", result.Code)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit genesis block: %w", err)
	}
	log.Info().Str("account", account.Hex()).Msg("genesis block committed")
	return nil
}

// noopRequester logs the batches the request loop would have sent out as
// confirm_req messages. Peer sampling and transport are out of scope for
// the core (§1); this is the seam a network layer plugs into.
type noopRequester struct {
	log zerolog.Logger
}

func (n noopRequester) RequestConfirmations(roots []active.QualifiedRoot) {
	n.log.Debug().Int("count", len(roots)).Msg("would request confirmations")
}

// noopPublisher logs the votes the generator produced, flagging whether the
// voting representative is currently principal so a future transport layer
// knows this vote belongs on the flood-to-principals-first path (§4.7).
// Flooding itself is out of scope for the core (§1).
type noopPublisher struct {
	log        zerolog.Logger
	principals *ledger.PrincipalRepSet
}

func (n noopPublisher) Publish(v *vote.Vote) {
	n.log.Debug().
		Str("account", v.Account.Hex()).
		Uint64("sequence", v.Sequence).
		Int("hashes", len(v.Hashes)).
		Bool("principal", n.principals.IsPrincipal(v.Account)).
		Msg("vote generated")
}
