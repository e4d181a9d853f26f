package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"signalbridge/src/connectors"
	"signalbridge/src/database"
	"signalbridge/src/server"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Signalbridge CMD"
	app.Usage = "The Signalbridge command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		serveCMD,
		accountCMD,
		tickerCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serveCMD = cli.Command{
		Name:        "serve",
		Usage:       "run the webhook bridge server",
		Action:      serveAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the webhook dispatcher and admin API`,
	}
	accountCMD = cli.Command{
		Name:        "account",
		Usage:       "print exchange balances",
		Action:      accountAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Fetch wallet and futures balances through the signed client`,
	}
	tickerCMD = cli.Command{
		Name:        "ticker",
		Usage:       "print a futures ticker",
		Action:      tickerAction,
		ArgsUsage:   "<contract>",
		Flags:       []cli.Flag{},
		Description: `Fetch the current ticker for one contract, e.g. BTC_USDT`,
	}
)

func serveAction(_ *cli.Context) error {
	logrus.Info("Starting server CMD")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	app, err := server.BuildApp()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	server.StartServer(server.GetConfig().Port, app)
	return nil
}

func newClient() (*connectors.GateClient, *connectors.Config, error) {
	cfg := connectors.GetConfig()
	client, err := connectors.NewGateClient(cfg.GateAPIKey, cfg.GateAPISecret, cfg.GateBaseURL, cfg.SignScheme)
	if err != nil {
		return nil, nil, err
	}
	return client, &cfg, nil
}

// accountAction doubles as a connectivity smoke check: it exercises the
// signed request path against both the wallet and futures endpoints.
func accountAction(_ *cli.Context) error {
	logrus.Info("Starting account CMD")

	client, cfg, err := newClient()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	wallet, err := client.WalletTotalBalance(ctx)
	if err != nil {
		logrus.WithError(err).Error("Fetching wallet balance")
		return err
	}
	fmt.Printf("wallet total: %s %s\n", wallet.Total.Amount, wallet.Total.Currency)
	for account, detail := range wallet.Details {
		fmt.Printf("  %-8s %s %s\n", account, detail.Amount, detail.Currency)
	}

	futures, err := client.FuturesAccountOverview(ctx, cfg.Settle)
	if err != nil {
		logrus.WithError(err).Error("Fetching futures account")
		return err
	}
	fmt.Printf("futures (%s): total=%s available=%s unrealised_pnl=%s\n",
		cfg.Settle, futures.Total, futures.Available, futures.UnrealisedPnl)

	return nil
}

func tickerAction(c *cli.Context) error {
	contract := c.Args().First()
	if contract == "" {
		return fmt.Errorf("usage: ticker <contract>")
	}

	client, cfg, err := newClient()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tickers, err := client.FuturesTickers(ctx, cfg.Settle, contract)
	if err != nil {
		logrus.WithError(err).Error("Fetching ticker")
		return err
	}
	if len(tickers) == 0 {
		return fmt.Errorf("no ticker for contract %s", contract)
	}

	t := tickers[0]
	fmt.Printf("%s last=%s mark=%s index=%s vol24h=%s\n",
		t.Contract, t.Last, t.MarkPrice, t.IndexPrice, t.Volume24h)
	return nil
}
