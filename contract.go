package ethbind

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

/*
Tunables of a Contract. Zero values select the defaults.
*/
type ContractOptions struct {
	Logger hclog.Logger

	// How often filter changes are fetched for active subscriptions. Default
	// "DefaultSubscriptionInterval".
	SubscriptionInterval time.Duration

	// How often "Deploy" and "PollTransactionReceipt" query for the receipt.
	// Default "DefaultReceiptInterval".
	ReceiptInterval time.Duration

	// Bound on receipt polling. Zero waits until the context is done.
	ReceiptTimeout time.Duration

	// Gas ceiling of deployment transactions that don't specify one. Default
	// "DefaultDeployGas".
	DeployGas uint64

	// Limits parallel "eth_getFilterChanges" requests in a delivery tick. Zero
	// means no limit.
	FetchConcurrency int
}

func (self ContractOptions) withDefaults() ContractOptions {
	if self.Logger == nil {
		self.Logger = hclog.NewNullLogger()
	}
	if self.SubscriptionInterval <= 0 {
		self.SubscriptionInterval = DefaultSubscriptionInterval
	}
	if self.ReceiptInterval <= 0 {
		self.ReceiptInterval = DefaultReceiptInterval
	}
	if self.DeployGas == 0 {
		self.DeployGas = DefaultDeployGas
	}
	return self
}

/*
Binding of an ABI to a node. Every function and event of the ABI is bound once,
when the Contract is created; see "Function" and "Event".

The address is unset until "At" or a successful "Deploy", and can't change
afterwards. Calls on an unbound contract are sent without a recipient.

A Contract is safe for concurrent use. Call "Close" to stop background polling
and release log filters.
*/
type Contract struct {
	client Client
	abi    Abi
	opts   ContractOptions
	logger hclog.Logger

	constructor  AbiConstructor
	functions    map[string]BoundFunction
	functionList []BoundFunction
	events       map[string]BoundEvent
	eventList    []BoundEvent
	bySelector   map[Word]AbiEvent

	ctx    context.Context
	cancel context.CancelFunc

	lock      sync.Mutex
	address   Address
	subs      map[SubscriptionId]*subscription
	nextSubId SubscriptionId
	delivery  *Task
	closed    bool
	creating  sync.WaitGroup

	// Subscription callbacks in progress.
	callbacks int
}

/*
Binds the ABI to the client. Fails with "*ConstructionError" when either is
missing. The contract starts unbound; see "At" and "Deploy".
*/
func NewContract(client Client, abi Abi, opts ContractOptions) (*Contract, error) {
	if client == nil {
		return nil, &ConstructionError{Reason: "missing RPC client"}
	}
	if abi == nil {
		return nil, &ConstructionError{Reason: "missing ABI"}
	}

	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	self := &Contract{
		client:      client,
		abi:         abi,
		opts:        opts,
		logger:      opts.Logger,
		constructor: abi.Constructor(),
		functions:   map[string]BoundFunction{},
		events:      map[string]BoundEvent{},
		bySelector:  map[Word]AbiEvent{},
		ctx:         ctx,
		cancel:      cancel,
		subs:        map[SubscriptionId]*subscription{},
	}

	for _, fun := range abi.Functions() {
		bound := BoundFunction{Descriptor: fun, contract: self}
		self.functionList = append(self.functionList, bound)
		self.functions[fun.Name] = bound
		self.functions[fun.Signature] = bound
	}

	for _, event := range abi.Events() {
		bound := BoundEvent{Descriptor: event, contract: self}
		self.eventList = append(self.eventList, bound)
		self.events[event.Name] = bound
		if !event.Anonymous {
			self.bySelector[event.Selector] = event
		}
	}

	return self, nil
}

/*
Binds the contract to the address, in place, and returns the same contract.
Binding again to the same address is a no-op; binding to a different address
fails with "ErrAddressBound".
*/
func (self *Contract) At(addr Address) (*Contract, error) {
	self.lock.Lock()
	defer self.lock.Unlock()

	if self.address != ZeroAddress && self.address != addr {
		return nil, errors.Wrapf(ErrAddressBound, `can't rebind %v to %v`, self.address, addr)
	}
	self.address = addr
	return self, nil
}

// The bound address, or "ZeroAddress" if unbound.
func (self *Contract) Address() Address {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.address
}

func (self *Contract) Abi() Abi       { return self.abi }
func (self *Contract) Client() Client { return self.client }

/*
Finds a bound function by name or by canonical signature. Overloaded names
resolve to the last declared function; use the signature to reach the others.
*/
func (self *Contract) Function(name string) (BoundFunction, bool) {
	out, ok := self.functions[name]
	return out, ok
}

// All bound functions, in declaration order.
func (self *Contract) Functions() []BoundFunction {
	return append([]BoundFunction(nil), self.functionList...)
}

// Finds a bound event by name.
func (self *Contract) Event(name string) (BoundEvent, bool) {
	out, ok := self.events[name]
	return out, ok
}

// All bound events, in declaration order.
func (self *Contract) Events() []BoundEvent {
	return append([]BoundEvent(nil), self.eventList...)
}

func (self *Contract) eventNames() []string {
	out := make([]string, len(self.eventList))
	for i, event := range self.eventList {
		out[i] = event.Descriptor.Name
	}
	return out
}

/*
Deploys the contract: appends the ABI-encoded constructor arguments to "code",
submits the transaction, waits for its receipt and verifies that code exists at
the new address. On success, binds the contract to that address.

Fields of "opts" are kept except "To" and "Data". "GasLimit" defaults to
"ContractOptions.DeployGas". Fails with "*DeploymentError" if the receipt has
no contract address or there's no code at it, which usually means the
constructor reverted.
*/
func (self *Contract) Deploy(ctx context.Context, opts TxMsg, code []byte, args ...interface{}) (Address, error) {
	if addr := self.Address(); addr != ZeroAddress {
		return ZeroAddress, errors.Wrapf(ErrAddressBound, `contract is already at %v`, addr)
	}

	tokens, err := EncodeTokens(self.constructor.InputTypes(), args)
	if err != nil {
		return ZeroAddress, errors.Wrap(err, `failed to encode constructor arguments`)
	}
	encoded, err := self.constructor.EncodeCall(tokens)
	if err != nil {
		return ZeroAddress, errors.Wrap(err, `failed to encode constructor arguments`)
	}

	opts.To = ZeroAddress
	opts.Data = append(append(HexBytes{}, code...), encoded...)
	if opts.GasLimit == nil {
		opts.GasLimit = (*HexInt)(new(big.Int).SetUint64(self.opts.DeployGas))
	}

	hash, err := self.client.PostTransaction(ctx, opts)
	if err != nil {
		return ZeroAddress, errors.Wrap(err, `failed to submit deployment`)
	}
	self.logger.Debug("deployment submitted", "tx", hash)

	receipt, err := self.PollTransactionReceipt(ctx, hash)
	if err != nil {
		return ZeroAddress, err
	}

	addr := receipt.ContractAddress
	if addr == ZeroAddress {
		return ZeroAddress, &DeploymentError{TxHash: hash, Reason: "receipt has no contract address"}
	}

	deployed, err := self.client.GetCode(ctx, addr)
	if err != nil {
		return ZeroAddress, errors.Wrapf(err, `failed to verify deployment at %v`, addr)
	}
	if len(deployed) == 0 {
		return ZeroAddress, &DeploymentError{TxHash: hash, Address: addr, Reason: "no code at " + addr.String()}
	}

	_, err = self.At(addr)
	if err != nil {
		return ZeroAddress, err
	}
	self.logger.Info("contract deployed", "address", addr, "tx", hash)
	return addr, nil
}

/*
Waits for the receipt of the transaction, using the contract's receipt interval
and timeout. See "ReceiptPoller".
*/
func (self *Contract) PollTransactionReceipt(ctx context.Context, hash Hash) (*TxReceipt, error) {
	return ReceiptPoller{
		Client:   self.client,
		Interval: self.opts.ReceiptInterval,
		Timeout:  self.opts.ReceiptTimeout,
		Logger:   self.logger.Named("receipts"),
	}.Poll(ctx, hash)
}

/*
Appends the selector and the encoded arguments to any data the caller supplied,
leaving other fields of "opts" untouched.
*/
func (self *Contract) encodeOptions(fun AbiFunction, opts TxMsg, args []interface{}) (TxMsg, error) {
	tokens, err := EncodeTokens(fun.InputTypes(), args)
	if err != nil {
		return opts, err
	}
	payload, err := fun.EncodeCall(tokens)
	if err != nil {
		return opts, err
	}
	opts.Data = append(append(HexBytes{}, opts.Data...), payload...)
	return opts, nil
}

// Defaults the recipient to the bound address.
func (self *Contract) addOptionsTo(opts TxMsg) TxMsg {
	if opts.To == ZeroAddress {
		opts.To = self.Address()
	}
	return opts
}

func (self *Contract) txMsg(fun AbiFunction, opts TxMsg, args []interface{}) (TxMsg, error) {
	msg, err := self.encodeOptions(fun, self.addOptionsTo(opts), args)
	return msg, errors.Wrapf(err, `failed to encode arguments of %v`, fun.Signature)
}

/*
A function of a Contract. Constant functions only support "Call"; the other
methods fail with "ErrConstantFunction".
*/
type BoundFunction struct {
	Descriptor AbiFunction
	contract   *Contract
}

// The contract this function belongs to.
func (self BoundFunction) Contract() *Contract { return self.contract }

/*
Executes the function without creating a transaction, and decodes the result.
A function with exactly one output returns that value; otherwise, the result is
"[]interface{}" with one element per output. See "Token" for value types.
*/
func (self BoundFunction) Call(ctx context.Context, opts TxMsg, args ...interface{}) (interface{}, error) {
	msg, err := self.contract.txMsg(self.Descriptor, opts, args)
	if err != nil {
		return nil, err
	}

	out, err := self.contract.client.Call(ctx, msg)
	if err != nil {
		return nil, errors.Wrapf(err, `failed to call %v`, self.Descriptor.Signature)
	}

	tokens, err := self.Descriptor.DecodeOutput(out)
	if err != nil {
		return nil, errors.Wrapf(err, `failed to decode output of %v`, self.Descriptor.Signature)
	}

	vals := TokenValues(tokens)
	if len(vals) == 1 {
		return vals[0], nil
	}
	return vals, nil
}

// Submits a transaction invoking the function. Returns the transaction hash.
func (self BoundFunction) PostTransaction(ctx context.Context, opts TxMsg, args ...interface{}) (Hash, error) {
	if self.Descriptor.Constant {
		return Hash{}, errors.Wrap(ErrConstantFunction, self.Descriptor.Signature)
	}

	msg, err := self.contract.txMsg(self.Descriptor, opts, args)
	if err != nil {
		return Hash{}, err
	}

	hash, err := self.contract.client.PostTransaction(ctx, msg)
	return hash, errors.Wrapf(err, `failed to transact %v`, self.Descriptor.Signature)
}

// Asks the node how much gas a transaction invoking the function would use.
func (self BoundFunction) EstimateGas(ctx context.Context, opts TxMsg, args ...interface{}) (*big.Int, error) {
	if self.Descriptor.Constant {
		return nil, errors.Wrap(ErrConstantFunction, self.Descriptor.Signature)
	}

	msg, err := self.contract.txMsg(self.Descriptor, opts, args)
	if err != nil {
		return nil, err
	}

	gas, err := self.contract.client.EstimateGas(ctx, msg)
	return gas, errors.Wrapf(err, `failed to estimate gas of %v`, self.Descriptor.Signature)
}

// An event of a Contract.
type BoundEvent struct {
	Descriptor AbiEvent
	contract   *Contract
}

// Same as "Contract.Subscribe" for this event.
func (self BoundEvent) Subscribe(filter LogFilter, callback SubscriptionCallback) (SubscriptionId, error) {
	return self.contract.Subscribe(self.Descriptor.Name, filter, callback)
}

// Same as "Contract.Unsubscribe".
func (self BoundEvent) Unsubscribe(ctx context.Context, id SubscriptionId) error {
	return self.contract.Unsubscribe(ctx, id)
}

func sortSubscriptions(subs []*subscription) {
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
}
