package cmd

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vaultgraph/vaultgraph/internal/chain"
	"github.com/vaultgraph/vaultgraph/internal/config"
	"github.com/vaultgraph/vaultgraph/internal/contractReader"
	"github.com/vaultgraph/vaultgraph/internal/logger"
	"github.com/vaultgraph/vaultgraph/internal/metrics"
	"github.com/vaultgraph/vaultgraph/internal/metrics/metricsTypes"
	"github.com/vaultgraph/vaultgraph/internal/metrics/prometheus"
	"github.com/vaultgraph/vaultgraph/internal/postgres"
	"github.com/vaultgraph/vaultgraph/internal/postgres/migrations"
	"github.com/vaultgraph/vaultgraph/internal/shutdown"
	"github.com/vaultgraph/vaultgraph/internal/sqlite"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/positions"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/prices"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/registries"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/stateEngine"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/strategies"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/tokenFees"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/transactions"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/vaultDayData"
	"github.com/vaultgraph/vaultgraph/internal/vaultState/vaults"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fold the record stream from stdin into the projection database",
	Run: func(cmd *cobra.Command, args []string) {
		initRunCmd(cmd)
		cfg := config.NewConfig()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		ms, engine := setupEngine(cfg, l)

		if cfg.PrometheusConfig.Enabled {
			promServer := prometheus.NewPrometheusServer(&prometheus.PrometheusServerConfig{
				Port: cfg.PrometheusConfig.Port,
			}, l)
			promChannel := make(chan bool)
			go func() {
				if err := promServer.Start(promChannel); err != nil {
					l.Sugar().Errorw("Prometheus server stopped", zap.Error(err))
				}
			}()
			defer close(promChannel)
		}

		gracefulShutdown := shutdown.CreateGracefulShutdownChannel()

		go func() {
			if err := foldFeed(chain.NewFeedReader(os.Stdin), engine, ms, l); err != nil {
				l.Sugar().Errorw("Feed processing failed", zap.Error(err))
			}
			gracefulShutdown <- syscall.SIGTERM
		}()

		l.Sugar().Info("Started vaultgraph")

		done := make(chan bool)
		shutdown.ListenForShutdown(gracefulShutdown, done, func() {
			l.Sugar().Info("Shutting down...")
		}, time.Second*5, l)
	},
}

// setupEngine wires the database, metrics, contract reader and every
// projection model. Shared by run and replay.
func setupEngine(cfg *config.Config, l *zap.Logger) (*metrics.MetricsSink, *stateEngine.StateEngine) {
	sinkClients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
	if err != nil {
		l.Sugar().Fatalw("Failed to setup metrics clients", zap.Error(err))
	}
	ms, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{
		DefaultLabels: []metricsTypes.MetricsLabel{
			{Name: "chain", Value: string(cfg.Chain)},
		},
	}, sinkClients)
	if err != nil {
		l.Sugar().Fatalw("Failed to setup metrics sink", zap.Error(err))
	}

	var grm *gorm.DB
	if cfg.DatabaseConfig.UseSqlite {
		grm, err = sqlite.NewGormSqliteFromSqlite(sqlite.NewSqlite(cfg.DatabaseConfig.SqlitePath))
		if err != nil {
			l.Sugar().Fatalw("Failed to setup sqlite connection", zap.Error(err))
		}
	} else {
		grm, err = postgres.NewGormPostgres(postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig))
		if err != nil {
			l.Sugar().Fatalw("Failed to setup postgres connection", zap.Error(err))
		}
	}

	migrator := migrations.NewMigrator(grm, l)
	if err := migrator.MigrateAll(); err != nil {
		l.Sugar().Fatalw("Failed to migrate", zap.Error(err))
	}

	client, err := ethclient.Dial(cfg.EthereumRpcConfig.BaseUrl)
	if err != nil {
		l.Sugar().Fatalw("Failed to dial ethereum rpc", zap.Error(err))
	}
	reader, err := contractReader.NewEthereumContractReader(client, l)
	if err != nil {
		l.Sugar().Fatalw("Failed to create contract reader", zap.Error(err))
	}

	tr := transactions.NewTransactionResolver(grm, l)
	fl := tokenFees.NewFeeLedger(grm, l)
	pm := positions.NewPositionManager(grm, l)
	pr := prices.NewPriceResolver(grm, reader, cfg.PriceSources(), l, ms)
	dd := vaultDayData.NewAggregator(grm, pr, l)

	engine := stateEngine.NewStateEngine(grm, l, ms)

	vm, err := vaults.NewVaultModel(engine, grm, reader, tr, fl, pm, pr, dd, ms, l, cfg)
	if err != nil {
		l.Sugar().Fatalw("Failed to create VaultModel", zap.Error(err))
	}
	if _, err := strategies.NewStrategyModel(engine, grm, reader, tr, vm, ms, l, cfg); err != nil {
		l.Sugar().Fatalw("Failed to create StrategyModel", zap.Error(err))
	}
	if _, err := registries.NewRegistryModel(engine, grm, tr, vm, l, cfg); err != nil {
		l.Sugar().Fatalw("Failed to create RegistryModel", zap.Error(err))
	}

	return ms, engine
}

func initRunCmd(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(f.Name); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}
