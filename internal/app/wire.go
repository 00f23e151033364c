package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "marginguard/internal/blob/s3"
	"marginguard/internal/cache/redis"
	"marginguard/internal/config"
	"marginguard/internal/crypto"
	"marginguard/internal/domain"
	"marginguard/internal/guardian"
	"marginguard/internal/ledger"
	"marginguard/internal/monitor"
	"marginguard/internal/notify"
	"marginguard/internal/store/postgres"
	"marginguard/internal/swap"
	"marginguard/internal/venue"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	RebalanceStore domain.RebalanceStore
	AuditStore     domain.AuditStore

	// Redis
	MarginCache domain.MarginCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Chain side
	EthClient *ethclient.Client
	Signer    *crypto.TxSigner // nil in read-only deployments
	Guardian  *guardian.Guardian
	Monitor   *monitor.Monitor
	Account   domain.Account // the watched position

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that persist rebalance records and
// audit events.
func needsPostgres(mode string) bool {
	switch mode {
	case "guard", "server", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that can serve archival requests.
func needsS3(mode string) bool {
	switch mode {
	case "server", "full":
		return true
	default:
		return false
	}
}

// needsWallet returns true for modes that submit corrective transactions.
func needsWallet(mode string) bool {
	return mode == "guard" || mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(mode) {
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
		deps.RebalanceStore = postgres.NewRebalanceStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.MarginCache = redis.NewMarginCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only when archival is enabled) ---
	if needsS3(mode) && cfg.S3.Enabled {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		if deps.RebalanceStore != nil && deps.AuditStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				deps.BlobReader,
				deps.RebalanceStore,
				deps.AuditStore,
			)
		}
	}

	// --- Chain side: eth client, signer, guardian, monitor ---
	ethClient, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: dial rpc %s: %w", cfg.Chain.RPCURL, err)
	}
	closers = append(closers, ethClient.Close)
	deps.EthClient = ethClient

	oracle, err := ledger.NewChainOracle(ethClient, common.HexToAddress(cfg.Chain.LedgerAddress))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger oracle: %w", err)
	}

	executor, signer, err := wireExecutor(cfg, ethClient, deps, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Signer = signer

	guard, err := guardian.New(
		guardian.Config{
			Owner:        common.HexToAddress(cfg.Guardian.OwnerAddress),
			ThresholdBps: cfg.Guardian.InitialThresholdBps,
		},
		oracle,
		executor,
		deps.AuditStore,
		deps.RebalanceStore,
		deps.SignalBus,
		logger,
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: guardian: %w", err)
	}
	deps.Guardian = guard

	acct, err := domain.NewAccount(cfg.Monitor.AccountOwner, cfg.Monitor.AccountNumber)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: watched account: %w", err)
	}
	deps.Account = acct

	// Corrective transactions are attributed to the operator wallet when one
	// is loaded, otherwise to the position owner (read-only deployments never
	// reach submission anyway).
	caller := common.HexToAddress(cfg.Guardian.OwnerAddress)
	if signer != nil {
		caller = signer.Address()
	}

	mon, err := monitor.New(monitor.Config{
		Account:         acct,
		Caller:          caller,
		ExpectedChainID: cfg.Chain.ChainID,
		RefreshInterval: cfg.Monitor.RefreshInterval.Duration,
		InputDecimals:   uint8(cfg.Chain.InputToken.Decimals),
		OutputDecimals:  uint8(cfg.Chain.OutputToken.Decimals),
		AutoTrigger:     cfg.Monitor.AutoTrigger && needsWallet(mode),
		AutoAmountIn:    cfg.Monitor.AutoAmountIn,
		AutoMinOut:      cfg.Monitor.AutoMinOut,
	}, guard, ethClient, deps.LockManager, deps.SignalBus, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: monitor: %w", err)
	}
	deps.Monitor = mon

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// wireExecutor builds the corrective-swap path: signer, asset tokens, venue,
// and the swap executor. When no wallet is configured the returned executor
// rejects every submission, which keeps read-only modes running with the
// trigger path cleanly disabled.
func wireExecutor(cfg *config.Config, ethClient *ethclient.Client, deps *Dependencies, logger *slog.Logger) (guardian.SwapExecutor, *crypto.TxSigner, error) {
	if cfg.Wallet.PrivateKey == "" && cfg.Wallet.EncryptedKeyPath == "" {
		logger.Warn("wire: no wallet configured, corrective swaps disabled")
		return disabledExecutor{}, nil, nil
	}

	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: load wallet key: %w", err)
	}
	signer, err := crypto.NewTxSigner(keyHex, cfg.Chain.ChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: tx signer: %w", err)
	}

	input, err := venue.NewERC20(ethClient, signer,
		common.HexToAddress(cfg.Chain.InputToken.Address),
		cfg.Chain.InputToken.Symbol,
		uint8(cfg.Chain.InputToken.Decimals),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: input token: %w", err)
	}
	output, err := venue.NewERC20(ethClient, signer,
		common.HexToAddress(cfg.Chain.OutputToken.Address),
		cfg.Chain.OutputToken.Symbol,
		uint8(cfg.Chain.OutputToken.Decimals),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: output token: %w", err)
	}

	router, err := venue.NewUniswapVenue(ethClient, signer,
		common.HexToAddress(cfg.Chain.VenueAddress), output)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: swap venue: %w", err)
	}

	executor, err := swap.New(
		swap.Config{
			Custody: signer.Address(),
			FeeTier: uint32(cfg.Chain.FeeTier),
		},
		input, output, router,
		deps.AuditStore,
		deps.SignalBus,
		logger,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: swap executor: %w", err)
	}
	return executor, signer, nil
}

// disabledExecutor stands in when no wallet is configured. The guardian's
// policy evaluation runs normally; only the corrective swap itself refuses.
type disabledExecutor struct{}

func (disabledExecutor) Execute(context.Context, domain.Account, *big.Int, *big.Int) (*big.Int, error) {
	return nil, fmt.Errorf("swap executor: no wallet configured: %w", domain.ErrInvalidReference)
}
