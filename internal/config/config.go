package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const ENV_PREFIX = "STAKING_SYNC"

const (
	Debug = "debug"

	SolanaRpcUrl     = "solana.rpc-url"
	SolanaProgramId  = "solana.program-id"
	SolanaCommitment = "solana.commitment"

	DatabaseHost       = "database.host"
	DatabasePort       = "database.port"
	DatabaseUser       = "database.user"
	DatabasePassword   = "database.password"
	DatabaseDbName     = "database.db-name"
	DatabaseSchemaName = "database.schema-name"
	DatabaseSSLMode    = "database.ssl-mode"

	SecurityAdminKey          = "security.admin-key"
	SecurityCronSecret        = "security.cron-secret"
	SecurityAdminRateLimit    = "security.admin-rate-limit"
	SecurityAdminRateWindow   = "security.admin-rate-window"
	SecurityCronRateLimit     = "security.cron-rate-limit"
	SecurityCronRateWindow    = "security.cron-rate-window"
	SecurityDefaultRateLimit  = "security.default-rate-limit"
	SecurityDefaultRateWindow = "security.default-rate-window"
	SecurityTrustedProxies    = "security.trusted-proxies"

	ReconcilerAccountLimit      = "reconciler.account-limit"
	ReconcilerDefaultLimit      = "reconciler.default-limit"
	ReconcilerWalletConcurrency = "reconciler.wallet-concurrency"

	MetadataImagesCid   = "metadata.images-cid"
	MetadataIpfsGateway = "metadata.ipfs-gateway"
	MetadataName        = "metadata.collection-name"
	MetadataSymbol      = "metadata.symbol"
	MetadataDescription = "metadata.description"

	ServerHttpPort    = "server.http-port"
	ServerCorsOrigins = "server.cors-origins"

	DataDogStatsdEnabled    = "datadog.statsd.enabled"
	DataDogStatsdUrl        = "datadog.statsd.url"
	DataDogStatsdSampleRate = "datadog.statsd.sample-rate"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"
)

// Deployment defaults of the SOLARA collection.
const (
	DefaultProgramId   = "4SfUyQkbeyz9jeJDsR5XiUf8DATVZJXtGG4JUsYsWzTs"
	DefaultImagesCid   = "bafybeihq6qozwmf4t6omeyuunj7r7vdj26l4akuzmcnnu5pgemd6bxjike"
	DefaultIpfsGateway = "https://tesola.mypinata.cloud/ipfs/"
)

type Config struct {
	Debug            bool
	SolanaConfig     SolanaConfig
	DatabaseConfig   DatabaseConfig
	SecurityConfig   SecurityConfig
	ReconcilerConfig ReconcilerConfig
	MetadataConfig   MetadataConfig
	ServerConfig     ServerConfig
	DataDogConfig    DataDogConfig
	PrometheusConfig PrometheusConfig
}

type SolanaConfig struct {
	RpcUrl     string
	ProgramId  string
	Commitment string
}

type DatabaseConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	DbName     string
	SchemaName string
	SSLMode    string
}

type RateLimitRule struct {
	Limit  int
	Window time.Duration
}

type SecurityConfig struct {
	AdminKey         string
	CronSecret       string
	AdminRateLimit   RateLimitRule
	CronRateLimit    RateLimitRule
	DefaultRateLimit RateLimitRule
	// TrustedProxies are peer IPs or CIDRs whose X-Forwarded-For and X-Real-IP headers are honored.
	TrustedProxies []string
}

type ReconcilerConfig struct {
	// AccountLimit bounds how many program accounts one discrepancy sweep examines.
	AccountLimit      int
	DefaultLimit      int
	WalletConcurrency int
}

type MetadataConfig struct {
	ImagesCid      string
	IpfsGateway    string
	CollectionName string
	Symbol         string
	Description    string
}

type ServerConfig struct {
	HttpPort    int
	CorsOrigins []string
}

type DataDogConfig struct {
	StatsdConfig StatsdConfig
}

type StatsdConfig struct {
	Enabled    bool
	Url        string
	SampleRate float64
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

func normalizeFlagName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// KebabToSnakeCase converts a flag name like "database.db-name" to the viper key "database.db_name".
func KebabToSnakeCase(str string) string {
	return normalizeFlagName(str)
}

func StringWithDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func intWithDefault(value, defaultValue int) int {
	if value <= 0 {
		return defaultValue
	}
	return value
}

func durationWithDefault(value, defaultValue time.Duration) time.Duration {
	if value <= 0 {
		return defaultValue
	}
	return value
}

func parseListValue(values []string) []string {
	l := make([]string, 0, len(values))
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				l = append(l, s)
			}
		}
	}
	return l
}

func NewConfig() *Config {
	return &Config{
		Debug: viper.GetBool(normalizeFlagName(Debug)),

		SolanaConfig: SolanaConfig{
			RpcUrl:     viper.GetString(normalizeFlagName(SolanaRpcUrl)),
			ProgramId:  StringWithDefault(viper.GetString(normalizeFlagName(SolanaProgramId)), DefaultProgramId),
			Commitment: StringWithDefault(viper.GetString(normalizeFlagName(SolanaCommitment)), "confirmed"),
		},

		DatabaseConfig: DatabaseConfig{
			Host:       viper.GetString(normalizeFlagName(DatabaseHost)),
			Port:       viper.GetInt(normalizeFlagName(DatabasePort)),
			User:       viper.GetString(normalizeFlagName(DatabaseUser)),
			Password:   viper.GetString(normalizeFlagName(DatabasePassword)),
			DbName:     viper.GetString(normalizeFlagName(DatabaseDbName)),
			SchemaName: viper.GetString(normalizeFlagName(DatabaseSchemaName)),
			SSLMode:    viper.GetString(normalizeFlagName(DatabaseSSLMode)),
		},

		SecurityConfig: SecurityConfig{
			AdminKey:   viper.GetString(normalizeFlagName(SecurityAdminKey)),
			CronSecret: viper.GetString(normalizeFlagName(SecurityCronSecret)),
			AdminRateLimit: RateLimitRule{
				Limit:  intWithDefault(viper.GetInt(normalizeFlagName(SecurityAdminRateLimit)), 60),
				Window: durationWithDefault(viper.GetDuration(normalizeFlagName(SecurityAdminRateWindow)), time.Minute),
			},
			CronRateLimit: RateLimitRule{
				Limit:  intWithDefault(viper.GetInt(normalizeFlagName(SecurityCronRateLimit)), 10),
				Window: durationWithDefault(viper.GetDuration(normalizeFlagName(SecurityCronRateWindow)), time.Minute),
			},
			DefaultRateLimit: RateLimitRule{
				Limit:  intWithDefault(viper.GetInt(normalizeFlagName(SecurityDefaultRateLimit)), 30),
				Window: durationWithDefault(viper.GetDuration(normalizeFlagName(SecurityDefaultRateWindow)), 30*time.Second),
			},
			TrustedProxies: parseListValue(viper.GetStringSlice(normalizeFlagName(SecurityTrustedProxies))),
		},

		ReconcilerConfig: ReconcilerConfig{
			AccountLimit:      intWithDefault(viper.GetInt(normalizeFlagName(ReconcilerAccountLimit)), 100),
			DefaultLimit:      intWithDefault(viper.GetInt(normalizeFlagName(ReconcilerDefaultLimit)), 50),
			WalletConcurrency: intWithDefault(viper.GetInt(normalizeFlagName(ReconcilerWalletConcurrency)), 4),
		},

		MetadataConfig: MetadataConfig{
			ImagesCid:      StringWithDefault(viper.GetString(normalizeFlagName(MetadataImagesCid)), DefaultImagesCid),
			IpfsGateway:    StringWithDefault(viper.GetString(normalizeFlagName(MetadataIpfsGateway)), DefaultIpfsGateway),
			CollectionName: StringWithDefault(viper.GetString(normalizeFlagName(MetadataName)), "SOLARA"),
			Symbol:         StringWithDefault(viper.GetString(normalizeFlagName(MetadataSymbol)), "SOLARA"),
			Description:    StringWithDefault(viper.GetString(normalizeFlagName(MetadataDescription)), "SOLARA NFT Collection"),
		},

		ServerConfig: ServerConfig{
			HttpPort:    intWithDefault(viper.GetInt(normalizeFlagName(ServerHttpPort)), 7200),
			CorsOrigins: parseListValue(viper.GetStringSlice(normalizeFlagName(ServerCorsOrigins))),
		},

		DataDogConfig: DataDogConfig{
			StatsdConfig: StatsdConfig{
				Enabled:    viper.GetBool(normalizeFlagName(DataDogStatsdEnabled)),
				Url:        viper.GetString(normalizeFlagName(DataDogStatsdUrl)),
				SampleRate: viper.GetFloat64(normalizeFlagName(DataDogStatsdSampleRate)),
			},
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(normalizeFlagName(PrometheusEnabled)),
			Port:    viper.GetInt(normalizeFlagName(PrometheusPort)),
		},
	}
}

// HasAdminKey reports whether admin entry points can accept any request at all.
func (c *SecurityConfig) HasAdminKey() bool {
	return c.AdminKey != ""
}

func (c *SecurityConfig) HasCronSecret() bool {
	return c.CronSecret != ""
}
