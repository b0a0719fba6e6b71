// Command artha-node runs a single validator: it wires the consensus
// engine, its supporting validator set / evidence pool / mempool / state
// tree, the libp2p transport adapter, and the HTTP/gRPC admin surfaces,
// grounded on rechain/cmd/rechain/main.go's flag/config/wiring/shutdown
// shape.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/artha-network/artha-core/internal/api"
	"github.com/artha-network/artha-core/internal/block"
	"github.com/artha-network/artha-core/internal/consensus"
	"github.com/artha-network/artha-core/internal/evidence"
	"github.com/artha-network/artha-core/internal/gossip"
	"github.com/artha-network/artha-core/internal/keystore"
	"github.com/artha-network/artha-core/internal/mempool"
	"github.com/artha-network/artha-core/internal/snapshot"
	"github.com/artha-network/artha-core/internal/storage"
	"github.com/artha-network/artha-core/internal/validator"
	"github.com/artha-network/artha-core/pkg/config"
	"github.com/artha-network/artha-core/pkg/merkle"
)

func main() {
	configFile := flag.String("config", "", "path to configuration file")
	keyFile := flag.String("keyfile", "", "path to a base64 ed25519 private key; a fresh key is generated if empty")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("artha-node: failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(cfg.Storage)
	if err != nil {
		log.Fatalf("artha-node: failed to open storage: %v", err)
	}
	defer store.Close()

	signer, err := loadSigner(*keyFile)
	if err != nil {
		log.Fatalf("artha-node: failed to load signer: %v", err)
	}
	log.Printf("artha-node: validator identity %s", keystore.EncodePublicKey(signer.PublicKey()))

	vs := validator.NewSet([]*validator.Validator{
		validator.NewValidator(signer.PublicKey(), 100),
	})

	evPool := evidence.NewPool(vs, time.Duration(cfg.Evidence.MaxAgeHeight)*time.Second, cfg.Evidence.MinEvidenceCount)

	mp := mempool.New(
		mempool.WithMaxSize(cfg.Mempool.MaxSize),
		mempool.CompareBeforeEvict(cfg.Mempool.CompareBeforeEvict),
	)

	state := merkle.New()

	transport, err := gossip.New(cfg.Network.ListenAddress, mp)
	if err != nil {
		log.Fatalf("artha-node: failed to start transport: %v", err)
	}
	defer transport.Close()
	for _, peerAddr := range cfg.Network.Peers {
		if err := transport.AddPeer(peerAddr); err != nil {
			log.Printf("artha-node: failed to add peer %s: %v", peerAddr, err)
		}
	}

	policy := quorumPolicy(cfg.Consensus)

	engine := consensus.NewEngine(consensus.Config{
		Signer:         signer,
		Validators:     vs,
		EvidencePool:   evPool,
		Mempool:        mp,
		State:          state,
		Transport:      transport,
		Store:          store,
		Policy:         policy,
		MaxTxsPerBlock: cfg.Consensus.MaxTxsPerBlock,
		MaxBlockSize:   cfg.Consensus.MaxBlockSize,
		ProposeTimeout: cfg.Consensus.TimeoutPropose,
	})
	// The transport needs a handler for inbound envelopes, and the engine
	// needs a transport to broadcast through: each is constructed with the
	// other as a dependency it doesn't yet have, so the circular wiring is
	// closed here instead.
	transport.SetHandler(engine)

	lastBlock, err := loadLastBlock(ctx, store)
	if err != nil {
		log.Printf("artha-node: starting from genesis: %v", err)
	}

	var archive *snapshot.Archive
	if cfg.Snapshot.Enabled {
		archive, err = snapshot.NewArchive(cfg.Snapshot.Endpoint, cfg.Snapshot.AccessKey, cfg.Snapshot.SecretKey, cfg.Snapshot.Bucket, cfg.Snapshot.UseSSL)
		if err != nil {
			log.Printf("artha-node: snapshot archival disabled, failed to connect: %v", err)
		}
	}
	_ = archive // nothing in this command archives blocks or state snapshots to it; see DESIGN.md

	restServer := api.NewServer(engine, mp, store)
	grpcServer := api.NewGRPCServer(engine)

	if cfg.API.REST.Enabled {
		go func() {
			log.Printf("artha-node: HTTP admin surface on %s", cfg.API.REST.Address)
			if err := restServer.Start(cfg.API.REST.Address); err != nil {
				log.Printf("artha-node: HTTP server stopped: %v", err)
			}
		}()
	}
	if cfg.API.GRPC.Enabled {
		go func() {
			log.Printf("artha-node: gRPC health surface on %s", cfg.API.GRPC.Address)
			if err := grpcServer.Serve(cfg.API.GRPC.Address); err != nil {
				log.Printf("artha-node: gRPC server stopped: %v", err)
			}
		}()
	}

	if lastBlock != nil {
		err = engine.RecoverState(lastBlock)
	} else {
		err = engine.Start()
	}
	if err != nil {
		log.Fatalf("artha-node: failed to start consensus engine: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("artha-node: shutting down")
	grpcServer.Stop()
	if err := restServer.Stop(); err != nil {
		log.Printf("artha-node: error stopping HTTP server: %v", err)
	}
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Engine {
	case "leveldb":
		return storage.NewLevelDBStore(cfg.Path)
	case "badger", "":
		return storage.NewBadgerStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}
}

func loadSigner(keyFile string) (keystore.Signer, error) {
	if keyFile == "" {
		return keystore.GenerateInMemorySigner()
	}
	raw, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	priv, err := decodePrivateKey(string(raw))
	if err != nil {
		return nil, err
	}
	return keystore.NewInMemorySigner(priv), nil
}

func decodePrivateKey(encoded string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key size: expected %d, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

func quorumPolicy(cfg config.ConsensusConfig) consensus.QuorumPolicy {
	if cfg.QuorumPolicy == "svbft" {
		return consensus.NewSVBFTPolicy(cfg.QuorumFraction, cfg.MinVotes, nil)
	}
	return &consensus.BFTPolicy{QuorumFraction: cfg.QuorumFraction}
}

func loadLastBlock(ctx context.Context, store storage.Store) (*block.Block, error) {
	data, err := store.Get(ctx, []byte("latest-block"))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("no block persisted yet")
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, err
	}
	return &blk, nil
}
