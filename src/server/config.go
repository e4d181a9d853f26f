package server

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port            string `envconfig:"PORT" default:"9898"`
	HistoryCapacity int    `envconfig:"SIGNAL_HISTORY_CAPACITY" default:"50"`
	// DryRun keeps the executor on the simulated path; real orders only go
	// out when this is explicitly disabled.
	DryRun     bool `envconfig:"DRY_RUN" default:"true"`
	EnableFeed bool `envconfig:"ENABLE_PRICE_FEED" default:"true"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
