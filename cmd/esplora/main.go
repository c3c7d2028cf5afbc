// Command esplora is a small query tool for Esplora-compatible servers built
// on the client library.
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	esplora "github.com/goodnatureofminers/esplora-go"
	"github.com/goodnatureofminers/esplora-go/internal/metrics"
	"github.com/goodnatureofminers/esplora-go/pkg/broadcastq"
	"github.com/goodnatureofminers/esplora-go/transport"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type config struct {
	BaseURL     string        `long:"base-url" env:"ESPLORA_BASE_URL" description:"Esplora server base URL" default:"https://blockstream.info/api"`
	Proxy       string        `long:"proxy" env:"ESPLORA_PROXY" description:"proxy URL"`
	TLSMode     string        `long:"tls-mode" env:"ESPLORA_TLS_MODE" description:"tls backend" default:"native" choice:"none" choice:"native" choice:"platform"`
	Timeout     time.Duration `long:"timeout" env:"ESPLORA_TIMEOUT" description:"request timeout" default:"30s"`
	Blocking    bool          `long:"blocking" env:"ESPLORA_BLOCKING" description:"use the blocking transport"`
	Network     string        `long:"network" env:"ESPLORA_NETWORK" description:"network label for metrics" default:"mainnet"`
	RateLimit   int           `long:"rate-limit" env:"ESPLORA_RATE_LIMIT" description:"max requests per second, 0 disables"`
	MetricsAddr string        `long:"metrics-addr" env:"ESPLORA_METRICS_ADDR" description:"address for the metrics server, empty disables"`

	Args struct {
		Command string   `positional-arg-name:"command" description:"tip | height | block-hash | header | tx | status | proof | verify | fees | utxos | stats | broadcast"`
		Rest    []string `positional-arg-name:"args"`
	} `positional-args:"true" required:"true"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if _, err := flags.ParseArgs(&cfg, os.Args[1:]); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	if cfg.MetricsAddr != "" {
		startMetricsServer(ctx, cfg.MetricsAddr, logger)
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}

	out, err := dispatch(ctx, client, logger, cfg.Args.Command, cfg.Args.Rest)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func newClient(cfg config, logger *zap.Logger) (*esplora.Client, error) {
	tcfg := transport.Config{
		BaseURL: cfg.BaseURL,
		Proxy:   cfg.Proxy,
		TLS:     transport.TLSMode(cfg.TLSMode),
		Timeout: cfg.Timeout,
	}

	var base transport.Transport
	var err error
	if cfg.Blocking {
		base, err = transport.NewBlocking(tcfg)
	} else {
		base, err = transport.NewConcurrent(tcfg)
	}
	if err != nil {
		return nil, fmt.Errorf("init transport: %w", err)
	}

	observed := transport.NewObserved(base, metrics.NewClient(cfg.Network), func(req transport.Request) string {
		return req.Method + " " + req.Path
	})

	return esplora.New(observed,
		esplora.WithLogger(logger),
		esplora.WithRateLimit(cfg.RateLimit),
	), nil
}

func dispatch(ctx context.Context, client *esplora.Client, logger *zap.Logger, command string, args []string) (any, error) {
	switch command {
	case "tip":
		return client.TipHash(ctx)
	case "height":
		return client.TipHeight(ctx)
	case "block-hash":
		height, err := argHeight(args)
		if err != nil {
			return nil, err
		}
		return client.BlockHashAtHeight(ctx, height)
	case "header":
		hash, err := argHash(args)
		if err != nil {
			return nil, err
		}
		return client.BlockHeader(ctx, *hash)
	case "tx":
		txid, err := argHash(args)
		if err != nil {
			return nil, err
		}
		return client.Transaction(ctx, *txid)
	case "status":
		txid, err := argHash(args)
		if err != nil {
			return nil, err
		}
		return client.TransactionStatus(ctx, *txid)
	case "proof":
		txid, err := argHash(args)
		if err != nil {
			return nil, err
		}
		return client.TransactionMerkleProof(ctx, *txid)
	case "verify":
		txid, err := argHash(args)
		if err != nil {
			return nil, err
		}
		return verifyInclusion(ctx, client, txid)
	case "fees":
		estimates, err := client.FeeEstimates(ctx)
		if err != nil {
			return nil, err
		}
		if len(args) == 1 {
			target, err := strconv.ParseUint(args[0], 10, 16)
			if err != nil {
				return nil, fmt.Errorf("invalid confirmation target %q: %w", args[0], err)
			}
			rate, ok := esplora.ConvertFeeRate(uint16(target), estimates)
			if !ok {
				return nil, fmt.Errorf("no estimate at or below target %d", target)
			}
			return rate, nil
		}
		return estimates, nil
	case "utxos":
		if len(args) != 1 {
			return nil, errors.New("utxos requires an address argument")
		}
		return client.AddressUTXOs(ctx, args[0])
	case "stats":
		if len(args) != 1 {
			return nil, errors.New("stats requires an address argument")
		}
		return client.AddressStats(ctx, args[0])
	case "broadcast":
		if len(args) == 0 {
			return nil, errors.New("broadcast requires at least one raw transaction hex argument")
		}
		txs := make([]*wire.MsgTx, 0, len(args))
		for _, arg := range args {
			raw, err := hex.DecodeString(arg)
			if err != nil {
				return nil, fmt.Errorf("invalid raw transaction hex: %w", err)
			}
			tx := &wire.MsgTx{}
			if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
				return nil, fmt.Errorf("decode raw transaction: %w", err)
			}
			txs = append(txs, tx)
		}
		if len(txs) == 1 {
			return client.Broadcast(ctx, txs[0])
		}
		return broadcastAll(ctx, logger, client, txs)
	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

// broadcastAll pushes every transaction through a rate-limited queue and
// collects the acknowledged txids in submission order. Cancellation closes
// the results channel, so receives must check the ok flag.
func broadcastAll(ctx context.Context, logger *zap.Logger, b broadcastq.Broadcaster, txs []*wire.MsgTx) (any, error) {
	q := broadcastq.New(logger, b, len(txs), 2)
	q.Start(ctx)
	defer q.Stop()

	for _, tx := range txs {
		if err := q.Enqueue(ctx, tx); err != nil {
			return nil, err
		}
	}

	txids := make([]string, 0, len(txs))
	for range txs {
		res, ok := <-q.Results()
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, errors.New("broadcast queue stopped before all results arrived")
		}
		if res.Err != nil {
			return nil, fmt.Errorf("broadcast %s: %w", res.Tx.TxHash(), res.Err)
		}
		txids = append(txids, res.TxID.String())
	}
	return txids, nil
}

// verifyInclusion fetches the proof and the header of the block the proof
// points at, then checks the proof against the header's merkle root.
func verifyInclusion(ctx context.Context, client *esplora.Client, txid *chainhash.Hash) (any, error) {
	proof, err := client.TransactionMerkleProof(ctx, *txid)
	if err != nil {
		return nil, err
	}
	blockHash, err := client.BlockHashAtHeight(ctx, proof.BlockHeight)
	if err != nil {
		return nil, err
	}
	header, err := client.BlockHeader(ctx, *blockHash)
	if err != nil {
		return nil, err
	}
	return esplora.VerifyMerkleProof(*txid, proof, header.MerkleRoot), nil
}

func argHash(args []string) (*chainhash.Hash, error) {
	if len(args) != 1 {
		return nil, errors.New("command requires a hash argument")
	}
	return esplora.ParseHash(args[0])
}

func argHeight(args []string) (uint32, error) {
	if len(args) != 1 {
		return 0, errors.New("command requires a height argument")
	}
	height, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid height %q: %w", args[0], err)
	}
	return uint32(height), nil
}

func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()
}
