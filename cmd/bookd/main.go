// bookd runs a single-node confidential order book: the plaintext seal
// backend, the asset registry and the engine behind a net/rpc endpoint.
package main

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/dave/stablegob"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	log "github.com/helinwang/log15"
	"github.com/spf13/viper"
	"github.com/urfave/cli"
	"golang.org/x/crypto/sha3"

	"github.com/SarahWill6/StockRWA/pkg/asset"
	"github.com/SarahWill6/StockRWA/pkg/book"
	"github.com/SarahWill6/StockRWA/pkg/seal/local"
)

// GenesisAsset lists one asset at startup.
type GenesisAsset struct {
	Symbol string
	Price  uint64
}

// Genesis is the initial configuration of the node, written by init and
// read by run.
type Genesis struct {
	Authority common.Address
	Assets    []GenesisAsset
}

// Config is the parsed run config file.
type Config struct {
	RPCAddr string
	Genesis string
}

func engineAddress() common.Address {
	h := sha3.Sum256([]byte("stockrwa/engine"))
	return common.BytesToAddress(h[12:])
}

func parseAssets(s string) ([]GenesisAsset, error) {
	if s == "" {
		return nil, nil
	}

	var assets []GenesisAsset
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed asset %q, want SYMBOL:PRICE", part)
		}

		price, err := strconv.ParseUint(kv[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed asset price in %q: %v", part, err)
		}

		assets = append(assets, GenesisAsset{Symbol: strings.ToUpper(kv[0]), Price: price})
	}
	return assets, nil
}

func initGenesis(c *cli.Context) error {
	assets, err := parseAssets(c.String("assets"))
	if err != nil {
		return err
	}

	authority, err := hex.DecodeString(strings.TrimPrefix(c.String("authority"), "0x"))
	if err != nil {
		return fmt.Errorf("malformed authority address: %v", err)
	}

	g := Genesis{
		Authority: common.BytesToAddress(authority),
		Assets:    assets,
	}

	var buf bytes.Buffer
	enc := stablegob.NewEncoder(&buf)
	err = enc.Encode(g)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(c.String("out"), buf.Bytes(), 0644)
}

func loadGenesis(path string) (Genesis, error) {
	var g Genesis
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return g, err
	}

	dec := gob.NewDecoder(bytes.NewReader(b))
	err = dec.Decode(&g)
	return g, err
}

func run(c *cli.Context) error {
	var cfg Config
	viper.SetConfigFile(c.String("c"))
	if err := viper.ReadInConfig(); err != nil {
		return err
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return err
	}

	genesis, err := loadGenesis(cfg.Genesis)
	if err != nil {
		return err
	}

	sealer := local.NewBackend()
	registry := asset.NewRegistry()
	factory := asset.NewFactory(registry, sealer, genesis.Authority)
	for _, a := range genesis.Assets {
		_, err := factory.CreateAsset(genesis.Authority, book.AssetSymbol(a.Symbol), a.Price)
		if err != nil {
			return fmt.Errorf("listing genesis asset %s: %v", a.Symbol, err)
		}
		log.Info("listed genesis asset", "symbol", a.Symbol, "price", a.Price)
	}

	state := book.NewState(ethdb.NewMemDatabase())
	engine := book.NewEngine(engineAddress(), state, sealer, registry, registry)

	events := make(chan book.Event, 64)
	sub := engine.SubscribeEvents(events)
	defer sub.Unsubscribe()
	go func() {
		for ev := range events {
			switch {
			case ev.Created != nil:
				log.Info("order created", "order", ev.Created.ID, "seller", ev.Created.Seller.Hex(), "asset", ev.Created.Asset, "price", ev.Created.PricePerUnit)
			case ev.Filled != nil:
				log.Info("order filled", "order", ev.Filled.ID, "buyer", ev.Filled.Buyer.Hex(), "seller", ev.Filled.Seller.Hex())
			case ev.Cancelled != nil:
				log.Info("order cancelled", "order", ev.Cancelled.ID, "seller", ev.Cancelled.Seller.Hex())
			}
		}
	}()

	server := book.NewRPCServer(engine)
	if err := server.Start(cfg.RPCAddr); err != nil {
		return err
	}
	log.Info("order book serving", "addr", cfg.RPCAddr, "engine", engine.Address().Hex())

	select {}
}

func main() {
	app := cli.NewApp()
	app.Name = "bookd"
	app.Usage = "confidential order book node"
	app.Commands = []cli.Command{
		{
			Name:  "init",
			Usage: "write the genesis file",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "out", Value: "./genesis", Usage: "output file"},
				cli.StringFlag{Name: "authority", Usage: "hex address of the asset authority"},
				cli.StringFlag{Name: "assets", Usage: "comma separated SYMBOL:PRICE listings"},
			},
			Action: initGenesis,
		},
		{
			Name:  "run",
			Usage: "run the node",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "c", Value: "./config.yaml", Usage: "path to the config file"},
			},
			Action: run,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
