package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/crank"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/history"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/metrics"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/notify"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/server"
	"github.com/malbeclabs/govrewards-crank/utils/pkg/logger"
	"github.com/malbeclabs/govrewards-crank/utils/pkg/retry"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine.
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	jsonLogsFlag := flag.Bool("json-logs", false, "emit logs as JSON")

	// Solana configuration
	rpcURLFlag := flag.String("rpc-url", "https://api.mainnet-beta.solana.com", "Solana RPC URL (or set SOLANA_RPC_URL env var)")
	wsURLFlag := flag.String("ws-url", "", "Solana websocket URL, derived from the RPC URL when empty (or set SOLANA_WS_URL env var)")
	commitmentFlag := flag.String("commitment", string(solanarpc.CommitmentConfirmed), "commitment level: processed, confirmed or finalized (or set SOLANA_COMMITMENT env var)")
	noConfirmFlag := flag.Bool("no-confirm", false, "do not wait for submitted transactions to be confirmed")

	// Identities
	payerFlag := flag.String("payer-keypair", "", "fee payer keypair file or base58 secret (or set PAYER_KEYPAIR env var)")
	adminFlag := flag.String("admin-keypair", "", "distribution admin keypair file or base58 secret, required for reclaim (or set ADMIN_KEYPAIR env var)")

	// Distribution
	distributionFlag := flag.String("distribution", "", "distribution account address (or set DISTRIBUTION env var)")
	rewardsProgramFlag := flag.String("rewards-program-id", "", "governance rewards program ID, defaults to the distribution owner (or set REWARDS_PROGRAM_ID env var)")
	vsrProgramFlag := flag.String("vsr-program-id", "", "voter stake registry program ID (or set VSR_PROGRAM_ID env var)")

	// Crank behaviour
	workflowsFlag := flag.StringSlice("workflow", nil, "workflows to run in order: register, claim, reclaim (default register,claim) (or set CRANK_WORKFLOWS env var)")
	concurrencyFlag := flag.Int("concurrency", 1, "number of entities processed at once")
	submitRateFlag := flag.Float64("submit-rate", 0, "maximum submissions per second, 0 for unlimited")
	degradedRetriesFlag := flag.Int("degraded-retries", 0, "extra attempts for submissions that failed with a possible degradation")
	dryRunFlag := flag.Bool("dry-run", false, "build and log transactions without submitting them")

	// Daemon mode
	intervalFlag := flag.Duration("interval", 0, "run the crank every interval and serve health endpoints; 0 runs once and exits")
	listenAddrFlag := flag.String("listen-addr", ":8080", "HTTP listen address in daemon mode (or set LISTEN_ADDR env var)")

	// Reporting
	postgresURLFlag := flag.String("postgres-url", "", "PostgreSQL URL for run history (or set POSTGRES_URL env var)")
	slackWebhookFlag := flag.String("slack-webhook-url", "", "Slack incoming webhook for degraded and aborted runs (or set SLACK_WEBHOOK_URL env var)")
	sentryDSNFlag := flag.String("sentry-dsn", "", "Sentry DSN for aborted runs (or set SENTRY_DSN env var)")

	flag.Parse()

	overrideString(rpcURLFlag, "SOLANA_RPC_URL")
	overrideString(wsURLFlag, "SOLANA_WS_URL")
	overrideString(commitmentFlag, "SOLANA_COMMITMENT")
	overrideString(payerFlag, "PAYER_KEYPAIR")
	overrideString(adminFlag, "ADMIN_KEYPAIR")
	overrideString(distributionFlag, "DISTRIBUTION")
	overrideString(rewardsProgramFlag, "REWARDS_PROGRAM_ID")
	overrideString(vsrProgramFlag, "VSR_PROGRAM_ID")
	overrideString(listenAddrFlag, "LISTEN_ADDR")
	overrideString(postgresURLFlag, "POSTGRES_URL")
	overrideString(slackWebhookFlag, "SLACK_WEBHOOK_URL")
	overrideString(sentryDSNFlag, "SENTRY_DSN")
	if env := os.Getenv("CRANK_WORKFLOWS"); env != "" {
		*workflowsFlag = strings.Split(env, ",")
	}

	log := logger.NewWithOptions(logger.Options{Verbose: *verboseFlag, JSON: *jsonLogsFlag})
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	workflows := make([]crank.Workflow, 0, len(*workflowsFlag))
	for _, s := range *workflowsFlag {
		wf, err := crank.ParseWorkflow(s)
		if err != nil {
			return err
		}
		workflows = append(workflows, wf)
	}

	if *distributionFlag == "" {
		return errors.New("--distribution is required")
	}
	distribution, err := solana.PublicKeyFromBase58(*distributionFlag)
	if err != nil {
		return fmt.Errorf("invalid distribution address: %w", err)
	}
	rewardsProgramID, err := optionalPublicKey(*rewardsProgramFlag)
	if err != nil {
		return fmt.Errorf("invalid rewards program ID: %w", err)
	}
	vsrProgramID, err := optionalPublicKey(*vsrProgramFlag)
	if err != nil {
		return fmt.Errorf("invalid VSR program ID: %w", err)
	}

	if *payerFlag == "" {
		return errors.New("--payer-keypair is required")
	}
	payer, err := loadKeypair(*payerFlag)
	if err != nil {
		return fmt.Errorf("failed to load payer keypair: %w", err)
	}
	keys := []solana.PrivateKey{payer}
	var admin solana.PublicKey
	if *adminFlag != "" {
		adminKey, err := loadKeypair(*adminFlag)
		if err != nil {
			return fmt.Errorf("failed to load admin keypair: %w", err)
		}
		keys = append(keys, adminKey)
		admin = adminKey.PublicKey()
	}

	commitment := solanarpc.CommitmentType(strings.ToLower(*commitmentFlag))
	switch commitment {
	case solanarpc.CommitmentProcessed, solanarpc.CommitmentConfirmed, solanarpc.CommitmentFinalized:
	default:
		return fmt.Errorf("invalid commitment %q", *commitmentFlag)
	}

	rpcCfg := ledger.RPCClientConfig{
		Logger:     log,
		RPC:        solanarpc.New(*rpcURLFlag),
		Commitment: commitment,
		Keys:       keys,
	}
	if !*noConfirmFlag && !*dryRunFlag {
		wsURL := *wsURLFlag
		if wsURL == "" {
			wsURL = wsURLFromRPC(*rpcURLFlag)
		}
		confirmer := ledger.NewWSConfirmer(log, wsURL, commitment)
		defer confirmer.Close()
		rpcCfg.Confirmer = confirmer
	}
	rpcClient, err := ledger.NewRPCClient(rpcCfg)
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}
	var ledgerClient ledger.Client = rpcClient
	if *dryRunFlag {
		log.Info("crank: dry run, no transaction will be submitted")
		ledgerClient = ledger.NewDryRun(log, rpcClient)
	}

	sinks, closeSinks, err := newSinks(ctx, log, *postgresURLFlag, *slackWebhookFlag, *sentryDSNFlag)
	if err != nil {
		return err
	}
	defer closeSinks()

	var limiter *rate.Limiter
	if *submitRateFlag > 0 {
		limiter = rate.NewLimiter(rate.Limit(*submitRateFlag), 1)
	}
	degradedRetry := retry.DefaultConfig()
	degradedRetry.MaxAttempts = 1 + max(*degradedRetriesFlag, 0)

	c, err := crank.New(crank.Config{
		Logger:           log,
		Ledger:           ledgerClient,
		Distribution:     distribution,
		RewardsProgramID: rewardsProgramID,
		VSRProgramID:     vsrProgramID,
		Payer:            payer.PublicKey(),
		Admin:            admin,
		Concurrency:      *concurrencyFlag,
		SubmitLimiter:    limiter,
		DegradedRetry:    degradedRetry,
		Sinks:            sinks,
	})
	if err != nil {
		return fmt.Errorf("failed to create crank: %w", err)
	}

	if *intervalFlag <= 0 {
		reports, err := c.Run(ctx, workflows...)
		for _, r := range reports {
			log.Info("crank: report", "workflow", r.Workflow, "status", r.Status(),
				"processed", r.Processed, "degraded", r.Degraded, "skipped", r.Skipped)
		}
		return err
	}

	srv, err := server.New(server.Config{
		ListenAddr:  *listenAddrFlag,
		VersionInfo: server.VersionInfo{Version: version, Commit: commit, Date: date},
		LoopConfig: server.LoopConfig{
			Logger:    log,
			Runner:    c,
			Workflows: workflows,
			Interval:  *intervalFlag,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Run(ctx)
}

func newSinks(ctx context.Context, log *slog.Logger, postgresURL, slackWebhook, sentryDSN string) ([]crank.ReportSink, func(), error) {
	var sinks []crank.ReportSink
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if postgresURL != "" {
		if err := history.Migrate(ctx, log, postgresURL); err != nil {
			closeAll()
			return nil, nil, err
		}
		pool, err := history.NewPool(ctx, postgresURL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		store, err := history.NewStore(history.StoreConfig{Logger: log, Pool: pool})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to create history store: %w", err)
		}
		sinks = append(sinks, store)
	}

	if slackWebhook != "" {
		s, err := notify.NewSlack(notify.SlackConfig{Logger: log, WebhookURL: slackWebhook})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to create slack notifier: %w", err)
		}
		sinks = append(sinks, s)
	}

	if sentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     sentryDSN,
			Release: version,
		}); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to init sentry: %w", err)
		}
		closers = append(closers, func() { sentry.Flush(2 * time.Second) })
		s, err := notify.NewSentry(notify.SentryConfig{Logger: log})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to create sentry notifier: %w", err)
		}
		sinks = append(sinks, s)
	}

	return sinks, closeAll, nil
}

func overrideString(flagValue *string, env string) {
	if v := os.Getenv(env); v != "" {
		*flagValue = v
	}
}

func optionalPublicKey(s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, nil
	}
	return solana.PublicKeyFromBase58(s)
}
