package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/jmcalloway/dexarb/internal/blob/s3"
	"github.com/jmcalloway/dexarb/internal/cache/redis"
	"github.com/jmcalloway/dexarb/internal/chain"
	"github.com/jmcalloway/dexarb/internal/config"
	"github.com/jmcalloway/dexarb/internal/crypto"
	"github.com/jmcalloway/dexarb/internal/domain"
	"github.com/jmcalloway/dexarb/internal/notify"
	"github.com/jmcalloway/dexarb/internal/platform/aioracle"
	"github.com/jmcalloway/dexarb/internal/platform/dexscreener"
	"github.com/jmcalloway/dexarb/internal/store/postgres"
	"github.com/jmcalloway/dexarb/internal/venue"
	"github.com/jmcalloway/dexarb/internal/venue/uniswapv2"
	"github.com/jmcalloway/dexarb/internal/venue/uniswapv3"
)

// Dependencies bundles every concrete dependency the application modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores (nil when the mode runs without Postgres)
	OpportunityStore domain.OpportunityStore
	ExecutionStore   domain.ExecutionStore
	BlacklistAudit   domain.BlacklistAuditStore

	// Caches and messaging
	PriceCache  domain.PriceCache
	Publisher   domain.OpportunityPublisher
	RateLimiter domain.RateLimiter

	// Blob storage (nil unless S3 is enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Chain access
	Eth    *ethclient.Client
	Chain  *chain.Client
	Signer domain.Signer

	// Venues and assets from configuration
	Registry *venue.Registry
	Assets   []domain.Asset

	// Oracles
	Oracle     domain.PriceOracle
	Confidence domain.ConfidenceOracle

	// Live-tunable limits
	Runtime *config.Runtime

	// Notifications
	Notifier *notify.Notifier
	Reporter *notify.ExecutionReporter
}

// needsSigner returns true for modes that submit transactions.
func needsSigner(mode string) bool {
	switch mode {
	case "trade", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Runtime: config.NewRuntime(cfg.Risk, cfg.Executor),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.OpportunityStore = postgres.NewOpportunityStore(pool)
	deps.ExecutionStore = postgres.NewExecutionStore(pool)
	deps.BlacklistAudit = postgres.NewBlacklistAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Oracle.CacheTTL.Duration)
	deps.Publisher = redis.NewPublisher(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- Chain ---
	chainClient, eth, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID, chain.Config{
		CallTimeout:         cfg.Chain.CallTimeout.Duration,
		ReceiptPollInterval: cfg.Chain.ReceiptPollInterval.Duration,
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, eth.Close)
	deps.Eth = eth
	deps.Chain = chainClient

	// --- Signer (trading modes only) ---
	var owner common.Address
	if needsSigner(cfg.Mode) {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		signer, err := crypto.NewTxSigner(key, cfg.Chain.ChainID, eth, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		deps.Signer = signer
		owner = signer.Address()
	}

	// --- Venues ---
	deps.Registry = venue.NewRegistry()
	for _, vc := range cfg.Venues {
		client, err := buildVenue(vc, cfg.Chain.ChainID, owner, eth, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: venue %s: %w", vc.Name, err)
		}
		if err := deps.Registry.Register(client); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: venue %s: %w", vc.Name, err)
		}
	}

	// --- Assets ---
	deps.Assets = make([]domain.Asset, 0, len(cfg.Assets))
	for _, ac := range cfg.Assets {
		deps.Assets = append(deps.Assets, domain.Asset{
			Address:  common.HexToAddress(ac.Address),
			Symbol:   ac.Symbol,
			Decimals: uint8(ac.Decimals),
			ChainID:  cfg.Chain.ChainID,
		})
	}

	// --- Oracles ---
	deps.Oracle = dexscreener.NewClient(cfg.Oracle.BaseURL, deps.PriceCache, cfg.Oracle.CacheTTL.Duration, logger)
	if cfg.AI.Enabled {
		confidence, err := aioracle.New(cfg.AI, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ai oracle: %w", err)
		}
		deps.Confidence = confidence
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, reader, deps.ExecutionStore, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Reporter = notify.NewExecutionReporter(deps.Notifier)

	return deps, cleanup, nil
}

// buildVenue constructs one venue adapter according to its quoting model.
func buildVenue(vc config.VenueConfig, chainID int64, owner common.Address, eth *ethclient.Client, logger *slog.Logger) (domain.VenueClient, error) {
	switch strings.ToLower(vc.Model) {
	case "constant_product", "":
		return uniswapv2.New(uniswapv2.Config{
			Name:         vc.Name,
			ChainID:      chainID,
			Factory:      common.HexToAddress(vc.Factory),
			Router:       common.HexToAddress(vc.Router),
			FeeBps:       vc.FeeBps,
			Owner:        owner,
			RPCRateLimit: vc.RPCRateLimit,
		}, eth, logger), nil
	case "concentrated":
		return uniswapv3.New(uniswapv3.Config{
			Name:         vc.Name,
			ChainID:      chainID,
			Factory:      common.HexToAddress(vc.Factory),
			Router:       common.HexToAddress(vc.Router),
			Quoter:       common.HexToAddress(vc.Quoter),
			FeeTiers:     vc.FeeTiers,
			Owner:        owner,
			RPCRateLimit: vc.RPCRateLimit,
		}, eth, logger), nil
	default:
		return nil, fmt.Errorf("unknown venue model %q", vc.Model)
	}
}
