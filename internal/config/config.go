package config

import (
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/xerrors"
)

const ENV_PREFIX = "VAULTGRAPH"

type Chain string

const (
	Chain_Mainnet     Chain = "mainnet"
	Chain_Fantom      Chain = "fantom"
	Chain_ArbitrumOne Chain = "arbitrum-one"
)

func ParseChain(c string) (Chain, error) {
	switch c {
	case "mainnet":
		return Chain_Mainnet, nil
	case "fantom":
		return Chain_Fantom, nil
	case "arbitrum-one":
		return Chain_ArbitrumOne, nil
	}
	return "", xerrors.Errorf("unknown chain '%s'", c)
}

// Flag names. Dots become nested viper keys, kebab-case becomes snake_case in
// the environment (VAULTGRAPH_DATABASE_HOST and so on).
const (
	Debug     = "debug"
	ChainFlag = "chain"

	EthereumRpcBaseUrl = "ethereum.rpc-url"

	DatabaseUseSqlite  = "database.use-sqlite"
	DatabaseSqlitePath = "database.sqlite-path"
	DatabaseHost       = "database.host"
	DatabasePort       = "database.port"
	DatabaseUser       = "database.user"
	DatabasePassword   = "database.password"
	DatabaseDbName     = "database.db-name"

	DataDogStatsdEnabled    = "datadog.statsd.enabled"
	DataDogStatsdUrl        = "datadog.statsd.url"
	DataDogStatsdSampleRate = "datadog.statsd.sample-rate"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"
)

func KebabToSnakeCase(str string) string {
	str = strings.ReplaceAll(str, "-", "_")
	return strings.ReplaceAll(str, ".", "_")
}

type DatabaseConfig struct {
	UseSqlite  bool
	SqlitePath string
	Host       string
	Port       int
	User       string
	Password   string
	DbName     string
}

type EthereumRpcConfig struct {
	BaseUrl string
}

type StatsdConfig struct {
	Enabled    bool
	Url        string
	SampleRate float64
}

type DataDogConfig struct {
	StatsdConfig StatsdConfig
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

// PriceSourceAddresses are the per-chain oracle and calculator contracts the
// price cascade consults, resolved once at startup.
type PriceSourceAddresses struct {
	UsdcOracle            string
	CalculationsSushiSwap string
	CalculationsCurve     string
	CurveRegistry         string
}

type Config struct {
	Debug             bool
	Chain             Chain
	EthereumRpcConfig EthereumRpcConfig
	DatabaseConfig    DatabaseConfig
	DataDogConfig     DataDogConfig
	PrometheusConfig  PrometheusConfig
}

func NewConfig() *Config {
	chain, err := ParseChain(viper.GetString(KebabToSnakeCase(ChainFlag)))
	if err != nil {
		chain = Chain_Mainnet
	}

	return &Config{
		Debug: viper.GetBool(KebabToSnakeCase(Debug)),
		Chain: chain,

		EthereumRpcConfig: EthereumRpcConfig{
			BaseUrl: viper.GetString(KebabToSnakeCase(EthereumRpcBaseUrl)),
		},

		DatabaseConfig: DatabaseConfig{
			UseSqlite:  viper.GetBool(KebabToSnakeCase(DatabaseUseSqlite)),
			SqlitePath: viper.GetString(KebabToSnakeCase(DatabaseSqlitePath)),
			Host:       viper.GetString(KebabToSnakeCase(DatabaseHost)),
			Port:       viper.GetInt(KebabToSnakeCase(DatabasePort)),
			User:       viper.GetString(KebabToSnakeCase(DatabaseUser)),
			Password:   viper.GetString(KebabToSnakeCase(DatabasePassword)),
			DbName:     viper.GetString(KebabToSnakeCase(DatabaseDbName)),
		},

		DataDogConfig: DataDogConfig{
			StatsdConfig: StatsdConfig{
				Enabled:    viper.GetBool(KebabToSnakeCase(DataDogStatsdEnabled)),
				Url:        viper.GetString(KebabToSnakeCase(DataDogStatsdUrl)),
				SampleRate: viper.GetFloat64(KebabToSnakeCase(DataDogStatsdSampleRate)),
			},
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(KebabToSnakeCase(PrometheusEnabled)),
			Port:    viper.GetInt(KebabToSnakeCase(PrometheusPort)),
		},
	}
}

// PriceSources returns the cascade contract addresses for the configured
// chain. Chains without a deployed calculator leave the address empty, which
// the resolver treats as "step unavailable".
func (c *Config) PriceSources() PriceSourceAddresses {
	switch c.Chain {
	case Chain_Fantom:
		return PriceSourceAddresses{
			UsdcOracle:            "0x57aa88a0810dfe3f9b71a9b179dd8bf5f956c46a",
			CalculationsSushiSwap: "0x44536de2220987d098d1d29d3aafc7f7348e9ee4",
			CalculationsCurve:     "0x0b53e9df372e72d8fdcdbedfbb56059957a37128",
			CurveRegistry:         "0x0f854ea9f38cea4b1c2fc79047e9d0134419d5d6",
		}
	case Chain_ArbitrumOne:
		return PriceSourceAddresses{
			UsdcOracle:            "0x043518ab266485dc085a1db095b8d9c2fc78e9b9",
			CalculationsSushiSwap: "0x5ea7e501c9a23f4a76dc7d33a11d995b13a1dd25",
			CalculationsCurve:     "",
			CurveRegistry:         "0x445fe580ef8d70ff569ab36e80c647af338db351",
		}
	default:
		return PriceSourceAddresses{
			UsdcOracle:            "0x83d95e0d5f402511db06817aff3f9ea88224b030",
			CalculationsSushiSwap: "0x8263e161a855b644f582d9c164c66aabee53f927",
			CalculationsCurve:     "0x25bf7b72815476dd515044f9650bf79bad0df655",
			CurveRegistry:         "0x90e00ace148ca3b23ac1bc8c240c2a7dd9c2d7f5",
		}
	}
}
