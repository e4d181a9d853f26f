package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	GateAPIKey    string `envconfig:"GATE_API_KEY" default:""`
	GateAPISecret string `envconfig:"GATE_API_SECRET" default:""`
	GateBaseURL   string `envconfig:"GATE_BASE_URL" default:"https://api.gateio.ws"`
	GateWSURL     string `envconfig:"GATE_WS_URL" default:"wss://fx-ws.gateio.ws/v4/ws/usdt"`
	SignScheme    string `envconfig:"EXCHANGE_SIGN_SCHEME" default:"gate"`
	Settle        string `envconfig:"GATE_SETTLE" default:"usdt"`

	FeedContracts []string `envconfig:"FEED_CONTRACTS" default:"BTC_USDT,ETH_USDT"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
