package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Synternet/stellar-price-feeder/cmd/flags"
	"github.com/Synternet/stellar-price-feeder/internal/cache"
	"github.com/Synternet/stellar-price-feeder/internal/config"
	"github.com/Synternet/stellar-price-feeder/internal/feeder"
	"github.com/Synternet/stellar-price-feeder/internal/pools"
	"github.com/Synternet/stellar-price-feeder/internal/repository"
	"github.com/Synternet/stellar-price-feeder/internal/repository/pg"
	"github.com/Synternet/stellar-price-feeder/internal/repository/sqlite"
	"github.com/Synternet/stellar-price-feeder/internal/rpc"
	"github.com/Synternet/stellar-price-feeder/pkg/source"
	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

const (
	sourceRPC = "rpc"
	sourceDB  = "db"
)

var (
	flagVerbose           *bool
	flagConfig            *string
	flagRPCURL            *string
	flagNetworkPassphrase *string
	flagSource            *string
	flagAquaURL           *string
	flagPoolProviders     *string
	flagBase              *string
	flagAssets            *flags.Assets
	flagPeriod            *time.Duration
	flagPeriodCount       *int
	flagCachePeriod       *time.Duration
	flagCacheSize         *int
	flagPageLimit         *int

	flagNatsUrls      *string
	flagUserCreds     *string
	flagNkey          *string
	flagNatsAccNkey   *string
	flagJWT           *string
	flagTLSClientCert *string
	flagTLSKey        *string
	flagCACert        *string
	flagPrefixName    *string

	flagDbHost     *string
	flagDbPort     *uint
	flagDbUser     *string
	flagDbPassword *string
	flagDbName     *string

	natsConnection *nats.Conn
	database       *repository.Repository
	rpcClient      *rpc.Client
	priceFeeder    *feeder.Feeder
)

// .env has to be loaded before flag defaults are read from the environment in init.
var _ = loadDotEnv()

func loadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed loading .env file", "err", err)
	}
	return err
}

func setErrorHandlers(conn *nats.Conn) {
	if conn == nil {
		return
	}

	conn.SetErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
		slog.Error("NATS error", "err", err)
	})
	conn.SetDisconnectErrHandler(func(c *nats.Conn, err error) {
		slog.Error("NATS disconnected", "err", err)
	})
}

var rootCmd = &cobra.Command{
	Use:   "stellar-price-feeder",
	Short: "Stellar DEX and AMM price feeder",
	Long:  `Aggregates Stellar orderbook trades and AMM pool reserves into per period VWAP prices.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if *flagConfig != "" {
			file, err := config.Load(*flagConfig)
			if err != nil {
				panic(err)
			}
			if err := file.Apply(cmd.Flags()); err != nil {
				panic(err)
			}
		}

		level := slog.LevelInfo
		if *flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		f, err := newFeeder()
		if err != nil {
			panic(err)
		}
		priceFeeder = f
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if natsConnection != nil {
			natsConnection.Close()
		}
		if database != nil {
			database.Close()
		}
	},
}

func newHistory() (source.History, source.HeadLedger, error) {
	switch *flagSource {
	case sourceRPC:
		return rpcClient, rpcClient, nil
	case sourceDB:
		var (
			db  *gorm.DB
			err error
		)
		if *flagDbName == "sqlite" {
			db, err = sqlite.New(*flagDbHost)
		} else {
			db, err = pg.New(*flagDbHost, *flagDbPort, *flagDbUser, *flagDbPassword, *flagDbName)
		}
		if err != nil {
			return nil, nil, err
		}
		repo, err := repository.New(db, slog.Default())
		if err != nil {
			return nil, nil, err
		}
		database = repo
		return repo, repo, nil
	default:
		return nil, nil, &types.ConfigurationError{Field: "source", Reason: fmt.Sprintf("unknown history source %q", *flagSource)}
	}
}

func newProviders() ([]pools.Provider, error) {
	contracts := pools.NewContractIDs(*flagNetworkPassphrase)

	var ret []pools.Provider
	for _, name := range SplitAndTrimEmpty(*flagPoolProviders, ",", " \t\r\n\b") {
		switch name {
		case pools.AquaName:
			ret = append(ret, pools.NewAqua(rpcClient, contracts, slog.Default(), pools.WithAquaURL(*flagAquaURL)))
		default:
			return nil, &types.ConfigurationError{Field: "pool-providers", Reason: fmt.Sprintf("unknown pool provider %q", name)}
		}
	}
	return ret, nil
}

func newFeeder() (*feeder.Feeder, error) {
	client, err := rpc.New(*flagRPCURL, rpc.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	rpcClient = client

	history, head, err := newHistory()
	if err != nil {
		return nil, err
	}
	providers, err := newProviders()
	if err != nil {
		return nil, err
	}
	c, err := cache.New(int64(*flagCachePeriod/time.Second), *flagCacheSize)
	if err != nil {
		return nil, err
	}

	return feeder.New(
		history, head, c,
		feeder.WithLogger(slog.Default()),
		feeder.WithPageLimit(*flagPageLimit),
		feeder.WithProviders(providers...),
	)
}

func connectNats() error {
	if *flagNatsUrls == "" {
		return nil
	}

	// Sacrifice some security for the sake of user experience by allowing to
	// supply NATS account NKey instead of passing created user NKey and user JWS.
	if *flagNatsAccNkey != "" {
		nkey, jwt, err := CreateUser(*flagNatsAccNkey)
		if err != nil {
			return fmt.Errorf("failed to generate user JWT: %w", err)
		}
		flagNkey = nkey
		flagJWT = jwt
	}

	conn, err := makeNats("Stellar Price Feeder", *flagNatsUrls, *flagUserCreds, *flagNkey, *flagJWT, *flagCACert, *flagTLSClientCert, *flagTLSKey)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS %s: %w", *flagNatsUrls, err)
	}
	natsConnection = conn
	setErrorHandlers(conn)
	return nil
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	const (
		CONFIG             = "CONFIG"
		RPC_URL            = "RPC_URL"
		NETWORK_PASSPHRASE = "NETWORK_PASSPHRASE"
		HISTORY_SOURCE     = "HISTORY_SOURCE"
		AQUA_URL           = "AQUA_URL"
		POOL_PROVIDERS     = "POOL_PROVIDERS"
		BASE_ASSET         = "BASE_ASSET"
		ASSETS             = "ASSETS"
		PERIOD             = "PERIOD"
		PERIOD_COUNT       = "PERIOD_COUNT"
		CACHE_PERIOD       = "CACHE_PERIOD"
		CACHE_SIZE         = "CACHE_SIZE"
		PAGE_LIMIT         = "PAGE_LIMIT"
		PUBLISHER_PREFIX   = "PREFIX"
		DB_HOST            = "DB_HOST"
		DB_PORT            = "DB_PORT"
		DB_USER            = "DB_USER"
		DB_PASSWORD        = "DB_PASSW"
		DB_NAME            = "DB_NAME"
	)
	setDefault(RPC_URL, "https://soroban-testnet.stellar.org")
	setDefault(NETWORK_PASSPHRASE, "Test SDF Network ; September 2015")
	setDefault(HISTORY_SOURCE, sourceRPC)
	setDefault(AQUA_URL, pools.AquaPoolsURL)
	setDefault(POOL_PROVIDERS, pools.AquaName)
	setDefault(BASE_ASSET, "XLM")
	setDefault(PERIOD, "5m")
	setDefault(PERIOD_COUNT, "1")
	setDefault(CACHE_PERIOD, "1m")
	setDefault(CACHE_SIZE, strconv.Itoa(cache.DefaultCapacity))
	setDefault(PAGE_LIMIT, "200")
	setDefault(PUBLISHER_PREFIX, "synternet")
	setDefault(DB_HOST, "localhost")
	setDefault(DB_PORT, "5432")
	setDefault(DB_USER, "stellar")
	setDefault(DB_NAME, "core")

	pf := rootCmd.PersistentFlags()
	flagConfig = pf.StringP("config", "", os.Getenv(CONFIG), "YAML file with values for flags not given on the command line")
	flagRPCURL = pf.StringP("rpc-url", "r", os.Getenv(RPC_URL), "Stellar RPC endpoint")
	flagNetworkPassphrase = pf.StringP("network-passphrase", "", os.Getenv(NETWORK_PASSPHRASE), "Stellar network passphrase")
	flagSource = pf.StringP("source", "", os.Getenv(HISTORY_SOURCE), "Ledger history source: `rpc` or `db` (stellar-core database)")
	flagAquaURL = pf.StringP("aqua-url", "", os.Getenv(AQUA_URL), "Aqua AMM pool listing API")
	flagPoolProviders = pf.StringP("pool-providers", "", os.Getenv(POOL_PROVIDERS), "AMM pool providers (separated by comma), empty disables pools")
	flagBase = pf.StringP("base", "b", os.Getenv(BASE_ASSET), "Base asset (XLM or CODE:ISSUER)")

	assets, err := flags.NewAssets(os.Getenv(ASSETS))
	if err != nil {
		slog.Warn("Bad ASSETS format, ignoring", "error", err)
		assets, _ = flags.NewAssets("")
	}
	flagAssets = pf.VarPF(assets, "assets", "a", "Tracked assets (separated by comma) as CODE:ISSUER").Value.(*flags.Assets)

	flagPeriod = pf.DurationP("period", "p", durationEnv(PERIOD, 5*time.Minute), "Aggregation period length")
	flagPeriodCount = pf.IntP("period-count", "", intEnv(PERIOD_COUNT, 1), "Number of periods per aggregation")
	flagCachePeriod = pf.DurationP("cache-period", "", durationEnv(CACHE_PERIOD, time.Minute), "Trade cache bucket length")
	flagCacheSize = pf.IntP("cache-size", "", intEnv(CACHE_SIZE, cache.DefaultCapacity), "Trade cache capacity in buckets")
	flagPageLimit = pf.IntP("page-limit", "", intEnv(PAGE_LIMIT, 200), "Transactions per history page")

	flagNatsUrls = pf.StringP("nats-url", "n", os.Getenv("NATS_URL"), "NATS server URLs (separated by comma), empty disables NATS")
	flagNatsAccNkey = pf.StringP("nats-acc-nkey", "", os.Getenv("NATS_ACC_NKEY"), "NATS account NKey (seed)")
	flagUserCreds = pf.StringP("nats-creds", "c", os.Getenv("NATS_CREDS"), "NATS User Credentials File (combined JWT and NKey file) ")
	flagJWT = pf.StringP("nats-jwt", "w", os.Getenv("NATS_JWT"), "NATS JWT")
	flagNkey = pf.StringP("nats-nkey", "k", os.Getenv("NATS_NKEY"), "NATS NKey")
	flagTLSKey = pf.StringP("client-key", "", os.Getenv("CLIENT_KEY"), "NATS Private key file for client certificate")
	flagTLSClientCert = pf.StringP("client-cert", "", os.Getenv("CLIENT_CERT"), "NATS TLS client certificate file")
	flagCACert = pf.StringP("ca-cert", "", os.Getenv("CA_CERT"), "NATS CA certificate file")
	flagPrefixName = pf.StringP("prefix", "", os.Getenv(PUBLISHER_PREFIX), "NATS topic prefix name as in {prefix}.aggregate")

	flagDbHost = pf.StringP("db-host", "", os.Getenv(DB_HOST), "Database Host (filepath in case of `sqlite` `db-name`)")
	envPort := os.Getenv(DB_PORT)
	port, err := strconv.ParseUint(envPort, 10, 64)
	if err != nil {
		port = 5432
		slog.Warn("Bad database port format, switching to default", "error", err, "port", port)
	}
	flagDbPort = pf.UintP("db-port", "", uint(port), "Database Port")
	flagDbUser = pf.StringP("db-user", "", os.Getenv(DB_USER), "Database User")
	flagDbName = pf.StringP("db-name", "", os.Getenv(DB_NAME), "Database Name (specify `sqlite` for SQLite database)")
	flagDbPassword = pf.StringP("db-passw", "", os.Getenv(DB_PASSWORD), "Database Password")

	_, verbosePresent := os.LookupEnv("VERBOSE")
	flagVerbose = pf.BoolP("verbose", "v", verbosePresent, "Verbose output")
}
