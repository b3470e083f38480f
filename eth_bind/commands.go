package main

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/purelabio/ethbind"
	"github.com/spf13/cobra"
)

// State shared by the commands of one invocation.
type app struct {
	configPath string
	flags      config
	config     config
	logger     hclog.Logger

	outLock sync.Mutex
	out     io.Writer
}

func newRootCommand(out io.Writer) *cobra.Command {
	self := &app{out: out}

	cmd := &cobra.Command{
		Use:           "eth_bind",
		Short:         "Generate, deploy, call and watch Ethereum contracts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return self.setup(cmd)
		},
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&self.configPath, "config", "", "path to a YAML config file")
	registerConfigFlags(cmd, &self.flags)

	cmd.AddCommand(
		newGenCommand(),
		self.deployCommand(),
		self.callCommand(),
		self.sendCommand(),
		self.estimateCommand(),
		self.receiptCommand(),
		self.watchCommand(),
	)
	return cmd
}

func (self *app) setup(cmd *cobra.Command) error {
	conf, err := loadConfig(self.configPath)
	if err != nil {
		return err
	}
	conf.override(cmd, self.flags)

	level, err := conf.logLevel()
	if err != nil {
		return err
	}

	self.config = conf
	self.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "eth_bind",
		Level:  level,
		Output: os.Stderr,
	})
	return nil
}

/*
Connects to the node and binds the configured ABI. The returned function
releases both.
*/
func (self *app) contract(ctx context.Context) (*ethbind.Contract, func(), error) {
	abi, err := self.config.readAbi()
	if err != nil {
		return nil, nil, err
	}
	addr, err := self.config.contractAddress()
	if err != nil {
		return nil, nil, err
	}

	client, closeClient, err := self.client()
	if err != nil {
		return nil, nil, err
	}

	contract, err := ethbind.NewContract(client, abi, self.config.contractOptions(self.logger))
	if err != nil {
		closeClient()
		return nil, nil, err
	}
	if addr != ethbind.ZeroAddress {
		_, err = contract.At(addr)
		if err != nil {
			closeClient()
			return nil, nil, err
		}
	}

	release := func() {
		err := contract.Close(context.WithoutCancel(ctx))
		if err != nil {
			self.logger.Warn("failed to release subscriptions", "error", err)
		}
		closeClient()
	}
	return contract, release, nil
}

func (self *app) client() (ethbind.Client, func(), error) {
	if self.config.Rpc == "" {
		return nil, nil, errors.New(`missing node URL: set "rpc" in the config or pass "--rpc"`)
	}

	trans, err := ethbind.Dial(self.config.Rpc, self.logger)
	if err != nil {
		return nil, nil, errors.Wrapf(err, `failed to connect to %v`, self.config.Rpc)
	}

	release := func() {
		closer, ok := trans.(io.Closer)
		if ok {
			_ = closer.Close()
		}
	}
	return ethbind.RpcClient{Trans: trans}, release, nil
}

// Transaction options from the config and the per-command flags.
func (self *app) txOpts(tx txFlags) (ethbind.TxMsg, error) {
	from, err := self.config.fromAddress()
	if err != nil {
		return ethbind.TxMsg{}, err
	}
	msg := ethbind.TxMsg{From: from}

	if tx.data != "" {
		msg.Data, err = ethbind.HexDecodeLoose(tx.data)
		if err != nil {
			return msg, errors.Wrap(err, `invalid "--data"`)
		}
	}
	if tx.value != "" {
		num, ok := new(big.Int).SetString(tx.value, 0)
		if !ok {
			return msg, errors.Errorf(`invalid "--value" %q`, tx.value)
		}
		msg.Value = (*ethbind.HexInt)(num)
	}
	if tx.gas > 0 {
		msg.GasLimit = (*ethbind.HexInt)(new(big.Int).SetUint64(tx.gas))
	}
	return msg, nil
}

func (self *app) print(val interface{}) error {
	content, err := json.MarshalIndent(val, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return self.write(content)
}

func (self *app) printLine(val interface{}) error {
	content, err := json.Marshal(val)
	if err != nil {
		return errors.WithStack(err)
	}
	return self.write(content)
}

func (self *app) write(content []byte) error {
	self.outLock.Lock()
	defer self.outLock.Unlock()
	_, err := self.out.Write(append(content, '\n'))
	return errors.WithStack(err)
}

type txFlags struct {
	data  string
	value string
	gas   uint64
}

func registerTxFlags(cmd *cobra.Command, tx *txFlags) {
	flags := cmd.Flags()
	flags.StringVar(&tx.data, "data", "", "hex bytes prepended to the encoded call")
	flags.StringVar(&tx.value, "value", "", "wei to send along")
	flags.Uint64Var(&tx.gas, "gas", 0, "gas limit")
}

func (self *app) deployCommand() *cobra.Command {
	var tx txFlags

	cmd := &cobra.Command{
		Use:   "deploy [constructor args...]",
		Short: "Deploy the configured contract and print its address",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := self.config.readCode()
			if err != nil {
				return err
			}
			contract, release, err := self.contract(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			vals, err := parseArgs(contract.Abi().Constructor().InputTypes(), args)
			if err != nil {
				return err
			}
			opts, err := self.txOpts(tx)
			if err != nil {
				return err
			}

			addr, err := contract.Deploy(cmd.Context(), opts, code, vals...)
			if err != nil {
				return err
			}
			return self.print(addr)
		},
	}
	registerTxFlags(cmd, &tx)
	return cmd
}

/*
Shared by "call", "send" and "estimate": binds the contract, resolves the
function by name or signature and parses its arguments.
*/
func (self *app) prepareCall(ctx context.Context, args []string) (ethbind.BoundFunction, []interface{}, func(), error) {
	var fun ethbind.BoundFunction

	contract, release, err := self.contract(ctx)
	if err != nil {
		return fun, nil, nil, err
	}

	fun, ok := contract.Function(args[0])
	if !ok {
		release()
		return fun, nil, nil, errors.Errorf(`function %q is not in the ABI`, args[0])
	}

	vals, err := parseArgs(fun.Descriptor.InputTypes(), args[1:])
	if err != nil {
		release()
		return fun, nil, nil, errors.Wrapf(err, `invalid arguments of %v`, fun.Descriptor.Signature)
	}
	return fun, vals, release, nil
}

func (self *app) callCommand() *cobra.Command {
	var tx txFlags

	cmd := &cobra.Command{
		Use:   "call <function> [args...]",
		Short: "Call a function without a transaction and print its outputs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fun, vals, release, err := self.prepareCall(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer release()

			opts, err := self.txOpts(tx)
			if err != nil {
				return err
			}
			out, err := fun.Call(cmd.Context(), opts, vals...)
			if err != nil {
				return err
			}
			return self.print(out)
		},
	}
	registerTxFlags(cmd, &tx)
	return cmd
}

func (self *app) sendCommand() *cobra.Command {
	var tx txFlags
	var wait bool

	cmd := &cobra.Command{
		Use:   "send <function> [args...]",
		Short: "Submit a transaction and print its hash, or its receipt with --wait",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fun, vals, release, err := self.prepareCall(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer release()

			opts, err := self.txOpts(tx)
			if err != nil {
				return err
			}
			hash, err := fun.PostTransaction(cmd.Context(), opts, vals...)
			if err != nil {
				return err
			}
			self.logger.Info("transaction submitted", "tx", hash)
			if !wait {
				return self.print(hash)
			}

			contract := fun.Contract()
			receipt, err := contract.PollTransactionReceipt(cmd.Context(), hash)
			if err != nil {
				return err
			}
			receipt, err = contract.ParseTransactionEvents(receipt)
			if err != nil {
				return err
			}
			return self.print(receipt)
		},
	}
	registerTxFlags(cmd, &tx)
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the receipt and decode its events")
	return cmd
}

func (self *app) estimateCommand() *cobra.Command {
	var tx txFlags

	cmd := &cobra.Command{
		Use:   "estimate <function> [args...]",
		Short: "Estimate the gas of a transaction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fun, vals, release, err := self.prepareCall(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer release()

			opts, err := self.txOpts(tx)
			if err != nil {
				return err
			}
			gas, err := fun.EstimateGas(cmd.Context(), opts, vals...)
			if err != nil {
				return err
			}
			return self.print(gas)
		},
	}
	registerTxFlags(cmd, &tx)
	return cmd
}

func (self *app) receiptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "receipt <tx hash>",
		Short: "Wait for a transaction receipt and print it",
		Long: `Wait for a transaction receipt and print it. When an ABI is configured,
logs are decoded as events of that contract.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := ethbind.ParseHash(args[0])
			if err != nil {
				return errors.Wrap(err, `invalid transaction hash`)
			}

			client, release, err := self.client()
			if err != nil {
				return err
			}
			defer release()

			receipt, err := ethbind.ReceiptPoller{
				Client:   client,
				Interval: self.config.ReceiptInterval,
				Timeout:  self.config.ReceiptTimeout,
				Logger:   self.logger.Named("receipts"),
			}.Poll(cmd.Context(), hash)
			if err != nil {
				return err
			}

			if self.config.Abi != "" {
				abi, err := self.config.readAbi()
				if err != nil {
					return err
				}
				contract, err := ethbind.NewContract(client, abi, self.config.contractOptions(self.logger))
				if err != nil {
					return err
				}
				receipt, err = contract.ParseTransactionEvents(receipt)
				if err != nil {
					return err
				}
			}
			return self.print(receipt)
		},
	}
}

func (self *app) watchCommand() *cobra.Command {
	var fromBlock string

	cmd := &cobra.Command{
		Use:   "watch [event]",
		Short: "Print decoded event logs as they appear, one JSON object per line",
		Long: `Print decoded event logs as they appear, one JSON object per line. Without
an event name, watches every event of the contract. Stops on interrupt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			contract, release, err := self.contract(ctx)
			if err != nil {
				return err
			}
			defer release()

			if self.config.MetricsAddr != "" {
				stopMetrics := self.serveMetrics(self.config.MetricsAddr)
				defer stopMetrics()
			}

			var event string
			if len(args) > 0 {
				event = args[0]
			}
			filter := ethbind.LogFilter{}
			if fromBlock != "" {
				filter.FromBlock = blockParam(fromBlock)
			}

			id, err := contract.Subscribe(event, filter, func(logs []ethbind.LogEntry, err error) {
				if err != nil {
					self.logger.Error("subscription failed", "error", err)
					return
				}
				for _, log := range logs {
					err := self.printLine(log)
					if err != nil {
						self.logger.Error("failed to print log", "error", err)
					}
				}
			})
			if err != nil {
				return err
			}
			self.logger.Info("watching", "event", event, "subscription", id, "address", contract.Address())

			<-ctx.Done()
			self.logger.Info("stopping")
			return nil
		},
	}
	cmd.Flags().StringVar(&fromBlock, "from-block", "", `first block to include: a number or "earliest"`)
	return cmd
}

// Numbers go over the wire as hex quantities, everything else as is.
func blockParam(input string) ethbind.BlockNumber {
	num, err := strconv.ParseUint(input, 10, 64)
	if err != nil {
		return input
	}
	return ethbind.HexUint64(num)
}

func (self *app) serveMetrics(addr string) func() {
	srv := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(ethbind.Registry, promhttp.HandlerOpts{}),
	}

	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			self.logger.Error("metrics server failed", "address", addr, "error", err)
		}
	}()
	self.logger.Info("serving metrics", "address", addr)

	return func() {
		_ = srv.Shutdown(context.Background())
	}
}
