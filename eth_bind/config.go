package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/purelabio/ethbind"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

/*
Settings shared by the node-facing commands. Loaded from the "--config" file,
then overridden by flags that were set explicitly.
*/
type config struct {
	Rpc     string `yaml:"rpc"`
	From    string `yaml:"from"`
	Abi     string `yaml:"abi"`  // path to an ABI JSON file
	Code    string `yaml:"code"` // path to hex-encoded bytecode
	Address string `yaml:"address"`

	SubscriptionInterval time.Duration `yaml:"subscriptionInterval"`
	ReceiptInterval      time.Duration `yaml:"receiptInterval"`
	ReceiptTimeout       time.Duration `yaml:"receiptTimeout"`
	DeployGas            uint64        `yaml:"deployGas"`
	FetchConcurrency     int           `yaml:"fetchConcurrency"`

	LogLevel    string `yaml:"logLevel"`
	MetricsAddr string `yaml:"metricsAddr"`
}

const defaultLogLevel = "info"

func loadConfig(path string) (config, error) {
	var out config
	if path == "" {
		return out, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return out, errors.Wrapf(err, `failed to read config %q`, path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	err = dec.Decode(&out)
	if err != nil && err != io.EOF {
		return out, errors.Wrapf(err, `failed to decode config %q`, path)
	}
	return out, nil
}

func registerConfigFlags(cmd *cobra.Command, flags *config) {
	set := cmd.PersistentFlags()
	set.StringVar(&flags.Rpc, "rpc", "", "node URL: http(s) or ws(s)")
	set.StringVar(&flags.From, "from", "", "sender address")
	set.StringVar(&flags.Abi, "abi", "", "path to the contract ABI JSON")
	set.StringVar(&flags.Code, "code", "", "path to the hex-encoded contract bytecode")
	set.StringVar(&flags.Address, "address", "", "contract address")
	set.DurationVar(&flags.SubscriptionInterval, "subscription-interval", 0, "how often to poll log filters")
	set.DurationVar(&flags.ReceiptInterval, "receipt-interval", 0, "how often to poll for receipts")
	set.DurationVar(&flags.ReceiptTimeout, "receipt-timeout", 0, "how long to wait for receipts; 0 waits indefinitely")
	set.Uint64Var(&flags.DeployGas, "deploy-gas", 0, "gas limit of deployment transactions")
	set.IntVar(&flags.FetchConcurrency, "fetch-concurrency", 0, "parallel filter polls; 0 means unlimited")
	set.StringVar(&flags.LogLevel, "log-level", "", "trace, debug, info, warn or error")
	set.StringVar(&flags.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics at this address while watching")
}

// Applies flags the user set explicitly on top of file values.
func (self *config) override(cmd *cobra.Command, flags config) {
	changed := cmd.Flags().Changed

	if changed("rpc") {
		self.Rpc = flags.Rpc
	}
	if changed("from") {
		self.From = flags.From
	}
	if changed("abi") {
		self.Abi = flags.Abi
	}
	if changed("code") {
		self.Code = flags.Code
	}
	if changed("address") {
		self.Address = flags.Address
	}
	if changed("subscription-interval") {
		self.SubscriptionInterval = flags.SubscriptionInterval
	}
	if changed("receipt-interval") {
		self.ReceiptInterval = flags.ReceiptInterval
	}
	if changed("receipt-timeout") {
		self.ReceiptTimeout = flags.ReceiptTimeout
	}
	if changed("deploy-gas") {
		self.DeployGas = flags.DeployGas
	}
	if changed("fetch-concurrency") {
		self.FetchConcurrency = flags.FetchConcurrency
	}
	if changed("log-level") {
		self.LogLevel = flags.LogLevel
	}
	if changed("metrics-addr") {
		self.MetricsAddr = flags.MetricsAddr
	}
}

func (self config) logLevel() (hclog.Level, error) {
	name := self.LogLevel
	if name == "" {
		name = defaultLogLevel
	}
	level := hclog.LevelFromString(name)
	if level == hclog.NoLevel {
		return level, errors.Errorf(`unknown log level %q`, name)
	}
	return level, nil
}

func (self config) contractOptions(logger hclog.Logger) ethbind.ContractOptions {
	return ethbind.ContractOptions{
		Logger:               logger,
		SubscriptionInterval: self.SubscriptionInterval,
		ReceiptInterval:      self.ReceiptInterval,
		ReceiptTimeout:       self.ReceiptTimeout,
		DeployGas:            self.DeployGas,
		FetchConcurrency:     self.FetchConcurrency,
	}
}

func (self config) fromAddress() (ethbind.Address, error) {
	if self.From == "" {
		return ethbind.ZeroAddress, nil
	}
	addr, err := ethbind.ParseAddress(self.From)
	return addr, errors.Wrap(err, `invalid "from" address`)
}

func (self config) contractAddress() (ethbind.Address, error) {
	if self.Address == "" {
		return ethbind.ZeroAddress, nil
	}
	addr, err := ethbind.ParseAddress(self.Address)
	return addr, errors.Wrap(err, `invalid contract address`)
}

func (self config) readAbi() (ethbind.Abi, error) {
	if self.Abi == "" {
		return nil, errors.New(`missing ABI: set "abi" in the config or pass "--abi"`)
	}
	content, err := os.ReadFile(self.Abi)
	if err != nil {
		return nil, errors.Wrapf(err, `failed to read ABI %q`, self.Abi)
	}
	abi, err := ethbind.ParseAbiJson(string(content))
	return abi, errors.Wrapf(err, `failed to parse ABI %q`, self.Abi)
}

func (self config) readCode() ([]byte, error) {
	if self.Code == "" {
		return nil, errors.New(`missing bytecode: set "code" in the config or pass "--code"`)
	}
	content, err := os.ReadFile(self.Code)
	if err != nil {
		return nil, errors.Wrapf(err, `failed to read bytecode %q`, self.Code)
	}
	code, err := ethbind.HexDecodeLoose(strings.TrimSpace(string(content)))
	return code, errors.Wrapf(err, `failed to decode bytecode %q`, self.Code)
}
