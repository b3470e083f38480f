package ethbind

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

/*
The set of node capabilities a Contract depends on. "RpcClient" implements it
over any "Trans"; tests and alternative transports may provide their own.

Implementations must be safe for concurrent use: filter changes for several
subscriptions are fetched in parallel.
*/
type Client interface {
	Call(ctx context.Context, msg TxMsg) ([]byte, error)
	PostTransaction(ctx context.Context, msg TxMsg) (Hash, error)
	EstimateGas(ctx context.Context, msg TxMsg) (*big.Int, error)
	GetCode(ctx context.Context, addr Address) ([]byte, error)

	// Returns nil without an error when the transaction isn't mined yet.
	GetTransactionReceipt(ctx context.Context, hash Hash) (*TxReceipt, error)

	NewFilter(ctx context.Context, filter LogFilter) (FilterId, error)
	GetFilterLogs(ctx context.Context, id FilterId) ([]LogEntry, error)
	GetFilterChanges(ctx context.Context, id FilterId) ([]LogEntry, error)
	UninstallFilter(ctx context.Context, id FilterId) (bool, error)
}

/*
Implements "Client" on top of a "Trans" obtained via "Dial". Counts requests,
errors and latency per method in "Registry".
*/
type RpcClient struct {
	Trans Trans
}

var _ Client = RpcClient{}

func (self RpcClient) Call(ctx context.Context, msg TxMsg) ([]byte, error) {
	defer observeRpc("eth_call")()
	out, err := EthCallLatest(ctx, self.Trans, msg)
	return out, countRpcError("eth_call", err)
}

func (self RpcClient) PostTransaction(ctx context.Context, msg TxMsg) (Hash, error) {
	defer observeRpc("eth_sendTransaction")()
	out, err := EthSendTransaction(ctx, self.Trans, msg)
	return out, countRpcError("eth_sendTransaction", err)
}

func (self RpcClient) EstimateGas(ctx context.Context, msg TxMsg) (*big.Int, error) {
	defer observeRpc("eth_estimateGas")()
	out, err := EthEstimateGas(ctx, self.Trans, msg)
	return out, countRpcError("eth_estimateGas", err)
}

func (self RpcClient) GetCode(ctx context.Context, addr Address) ([]byte, error) {
	defer observeRpc("eth_getCode")()
	out, err := EthGetCode(ctx, self.Trans, addr, BlockNumberLatest)
	return out, countRpcError("eth_getCode", err)
}

func (self RpcClient) GetTransactionReceipt(ctx context.Context, hash Hash) (*TxReceipt, error) {
	defer observeRpc("eth_getTransactionReceipt")()
	out, err := EthGetTxReceipt(ctx, self.Trans, hash)
	return out, countRpcError("eth_getTransactionReceipt", err)
}

func (self RpcClient) NewFilter(ctx context.Context, filter LogFilter) (FilterId, error) {
	defer observeRpc("eth_newFilter")()
	out, err := EthNewFilter(ctx, self.Trans, filter)
	return out, countRpcError("eth_newFilter", err)
}

func (self RpcClient) GetFilterLogs(ctx context.Context, id FilterId) ([]LogEntry, error) {
	defer observeRpc("eth_getFilterLogs")()
	out, err := EthGetFilterLogs(ctx, self.Trans, id)
	return out, countRpcError("eth_getFilterLogs", err)
}

func (self RpcClient) GetFilterChanges(ctx context.Context, id FilterId) ([]LogEntry, error) {
	defer observeRpc("eth_getFilterChanges")()
	out, err := EthGetFilterChanges(ctx, self.Trans, id)
	return out, countRpcError("eth_getFilterChanges", err)
}

func (self RpcClient) UninstallFilter(ctx context.Context, id FilterId) (bool, error) {
	defer observeRpc("eth_uninstallFilter")()
	out, err := EthUninstallFilter(ctx, self.Trans, id)
	return out, countRpcError("eth_uninstallFilter", err)
}

func observeRpc(method string) func() {
	RpcRequestsTotal.WithLabelValues(method).Inc()
	start := time.Now()
	return func() {
		RpcRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}

func countRpcError(method string, err error) error {
	if err != nil {
		RpcErrorsTotal.WithLabelValues(method).Inc()
	}
	return err
}

/*
Strongly-typed version of the "eth_call" RPC method.

Invokes a "view" or "pure" contract method. In other words, a read-only method
that doesn't create a new transaction. The caller must ABI-pack the "TxMsg.Data"
payload and ABI-unpack the output.
*/
func EthCall(ctx context.Context, trans Trans, msg TxMsg, blockNumber BlockNumber) ([]byte, error) {
	var out HexBytes
	err := trans.Call(ctx, &out, "eth_call", msg, toBlockParam(blockNumber))
	return out, errors.Wrap(err, `error in "eth_call"`)
}

// Same as "EthCall", but always uses the latest block number.
func EthCallLatest(ctx context.Context, trans Trans, msg TxMsg) ([]byte, error) {
	return EthCall(ctx, trans, msg, BlockNumberLatest)
}

/*
Strongly-typed version of the "eth_sendTransaction" RPC method. The node signs
the transaction with the "From" account, which must be unlocked there.
*/
func EthSendTransaction(ctx context.Context, trans Trans, msg TxMsg) (Hash, error) {
	var out Hash
	err := trans.Call(ctx, &out, "eth_sendTransaction", msg)
	return out, errors.Wrap(err, `error in "eth_sendTransaction"`)
}

/*
Strongly-typed version of the "eth_estimateGas" RPC method.

Note that estimating gas is a somewhat slow operation; the remote node will
attempt to execute the transaction against the current block, running EVM code
if required. This can easily take tens of milliseconds, or more.
*/
func EthEstimateGas(ctx context.Context, trans Trans, msg TxMsg) (*big.Int, error) {
	var out HexInt
	err := trans.Call(ctx, &out, "eth_estimateGas", msg)
	if err != nil {
		return nil, errors.Wrap(err, `error in "eth_estimateGas"`)
	}
	return (*big.Int)(&out), nil
}

/*
Strongly-typed version of the "eth_getCode" RPC method. An address without a
contract has empty code, which nodes report as "0x".
*/
func EthGetCode(ctx context.Context, trans Trans, addr Address, blockNumber BlockNumber) ([]byte, error) {
	var out HexBytes
	err := trans.Call(ctx, &out, "eth_getCode", addr, toBlockParam(blockNumber))
	return out, errors.Wrap(err, `error in "eth_getCode"`)
}

/*
Strongly-typed version of the "eth_getTransactionReceipt" RPC method. Nodes
respond with "null" for transactions that aren't mined yet; in that case, this
returns nil and no error.
*/
func EthGetTxReceipt(ctx context.Context, trans Trans, hash Hash) (*TxReceipt, error) {
	var body json.RawMessage
	err := trans.Call(ctx, &body, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, errors.Wrap(err, `error in "eth_getTransactionReceipt"`)
	}
	if len(body) == 0 || string(body) == "null" {
		return nil, nil
	}

	var out TxReceipt
	err = json.Unmarshal(body, &out)
	if err != nil {
		return nil, errors.Wrap(err, `failed to decode transaction receipt`)
	}
	return &out, nil
}

// Strongly-typed version of the "eth_newFilter" RPC method.
func EthNewFilter(ctx context.Context, trans Trans, filter LogFilter) (FilterId, error) {
	var out FilterId
	err := trans.Call(ctx, &out, "eth_newFilter", filter)
	if err == nil && out == "" {
		err = errors.New("received empty filter ID")
	}
	return out, errors.Wrap(err, `error in "eth_newFilter"`)
}

// Strongly-typed version of the "eth_getFilterLogs" RPC method.
func EthGetFilterLogs(ctx context.Context, trans Trans, id FilterId) ([]LogEntry, error) {
	var out []LogEntry
	err := trans.Call(ctx, &out, "eth_getFilterLogs", id)
	return out, errors.Wrap(err, `error in "eth_getFilterLogs"`)
}

/*
Strongly-typed version of the "eth_getFilterChanges" RPC method. Returns the
logs that appeared since the previous poll of the same filter.
*/
func EthGetFilterChanges(ctx context.Context, trans Trans, id FilterId) ([]LogEntry, error) {
	var out []LogEntry
	err := trans.Call(ctx, &out, "eth_getFilterChanges", id)
	return out, errors.Wrap(err, `error in "eth_getFilterChanges"`)
}

// Strongly-typed version of the "eth_uninstallFilter" RPC method.
func EthUninstallFilter(ctx context.Context, trans Trans, id FilterId) (bool, error) {
	var out bool
	err := trans.Call(ctx, &out, "eth_uninstallFilter", id)
	return out, errors.Wrap(err, `error in "eth_uninstallFilter"`)
}

// Block numbers go over the wire as hex quantities or magic strings.
func toBlockParam(num BlockNumber) BlockNumber {
	switch num := num.(type) {
	case nil:
		return BlockNumberLatest
	case uint64:
		return HexUint64(num)
	case int:
		return HexUint64(num)
	case *big.Int:
		return (*HexInt)(num)
	}
	return num
}
