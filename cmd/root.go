package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tesola/staking-sync/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "staking-sync",
	Short: "Reconciles the off-chain NFT staking mirror with the on-chain staking program",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)

	rootCmd.PersistentFlags().String(config.SolanaRpcUrl, "", `e.g. "https://api.mainnet-beta.solana.com"`)
	rootCmd.PersistentFlags().String(config.SolanaProgramId, config.DefaultProgramId, `Address of the staking program`)
	rootCmd.PersistentFlags().String(config.SolanaCommitment, "confirmed", `Commitment used for reads (processed, confirmed, finalized)`)

	rootCmd.PersistentFlags().String(config.DatabaseHost, "localhost", `PostgreSQL host`)
	rootCmd.PersistentFlags().Int(config.DatabasePort, 5432, `PostgreSQL port`)
	rootCmd.PersistentFlags().String(config.DatabaseUser, "staking", `PostgreSQL username`)
	rootCmd.PersistentFlags().String(config.DatabasePassword, "", `PostgreSQL password`)
	rootCmd.PersistentFlags().String(config.DatabaseDbName, "staking", `PostgreSQL database name`)
	rootCmd.PersistentFlags().String(config.DatabaseSchemaName, "", `PostgreSQL schema name (default "public")`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLMode, "disable", `PostgreSQL ssl mode (disable, require, verify-ca, verify-full)`)

	rootCmd.PersistentFlags().String(config.SecurityAdminKey, "", `Shared secret expected in the x-admin-key header`)
	rootCmd.PersistentFlags().String(config.SecurityCronSecret, "", `Shared secret expected in the x-cron-secret header`)
	rootCmd.PersistentFlags().Int(config.SecurityAdminRateLimit, 60, `Admin requests allowed per window and client`)
	rootCmd.PersistentFlags().Duration(config.SecurityAdminRateWindow, time.Minute, `Admin rate limit window`)
	rootCmd.PersistentFlags().Int(config.SecurityCronRateLimit, 10, `Cron requests allowed per window and client`)
	rootCmd.PersistentFlags().Duration(config.SecurityCronRateWindow, time.Minute, `Cron rate limit window`)
	rootCmd.PersistentFlags().Int(config.SecurityDefaultRateLimit, 30, `Requests allowed per window and client on other paths`)
	rootCmd.PersistentFlags().Duration(config.SecurityDefaultRateWindow, 30*time.Second, `Default rate limit window`)
	rootCmd.PersistentFlags().StringSlice(config.SecurityTrustedProxies, nil, `Proxy IPs or CIDRs allowed to set X-Forwarded-For / X-Real-IP`)

	rootCmd.PersistentFlags().Int(config.ReconcilerAccountLimit, 100, `Program accounts examined per discrepancy sweep page`)
	rootCmd.PersistentFlags().Int(config.ReconcilerDefaultLimit, 50, `Default cap on repairs per sync-all category`)
	rootCmd.PersistentFlags().Int(config.ReconcilerWalletConcurrency, 4, `Concurrent mint syncs during a wallet sync`)

	rootCmd.PersistentFlags().String(config.MetadataImagesCid, config.DefaultImagesCid, `IPFS CID of the image directory`)
	rootCmd.PersistentFlags().String(config.MetadataIpfsGateway, config.DefaultIpfsGateway, `HTTP gateway prefix for IPFS content`)
	rootCmd.PersistentFlags().String(config.MetadataName, "SOLARA", `Collection name used in synthesized metadata`)
	rootCmd.PersistentFlags().String(config.MetadataSymbol, "SOLARA", `Collection symbol used in synthesized metadata`)
	rootCmd.PersistentFlags().String(config.MetadataDescription, "SOLARA NFT Collection", `Collection description used in synthesized metadata`)

	rootCmd.PersistentFlags().Bool(config.DataDogStatsdEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().String(config.DataDogStatsdUrl, "", `e.g. "localhost:8125"`)
	rootCmd.PersistentFlags().Float64(config.DataDogStatsdSampleRate, 1.0, `The sample rate to use for statsd metrics`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)

	// setup sub commands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(syncNftCmd)
	rootCmd.AddCommand(syncWalletCmd)
	rootCmd.AddCommand(syncAllCmd)
	rootCmd.AddCommand(updateMetadataCmd)
	rootCmd.AddCommand(walletStakesCmd)
	rootCmd.AddCommand(poolStateCmd)
	rootCmd.AddCommand(syncLogsCmd)
	rootCmd.AddCommand(runDatabaseCmd)
	rootCmd.AddCommand(runVersionCmd)

	// bind any subcommand flags
	serveCmd.PersistentFlags().Int(config.ServerHttpPort, 7200, `HTTP port for the admin and cron endpoints`)
	serveCmd.PersistentFlags().StringSlice(config.ServerCorsOrigins, nil, `Allowed CORS origins (default "*")`)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}

// bindCommandFlags binds flags declared on a subcommand the same way the root flags are bound.
func bindCommandFlags(cmd *cobra.Command) {
	bind := func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(config.KebabToSnakeCase(f.Name)); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	}
	cmd.Flags().VisitAll(bind)
	cmd.PersistentFlags().VisitAll(bind)
}
