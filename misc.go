package ethbind

import (
	"time"
	"unsafe"
)

// "Magic" words understood by RPC methods that expect a block number.
const (
	BlockNumberEarliest = "earliest"
	BlockNumberLatest   = "latest"
	BlockNumberPending  = "pending"
)

// Defaults applied to zero fields of "ContractOptions".
const (
	DefaultSubscriptionInterval = 1000 * time.Millisecond
	DefaultReceiptInterval      = 500 * time.Millisecond

	// Gas ceiling for contract deployment, unless overridden per contract or
	// per call.
	DefaultDeployGas = 900000
)

// Zero-initialized arrays for equality comparisons.
var (
	ZeroAddress Address
	ZeroWord    Word
	ZeroHash    Hash
)

var (
	// Determines the default reconnect interval of long-lived RPC transports,
	// such as WsTrans. Configurable on per-transport basis.
	defaultReconnectInterval = time.Second
)

/*
Reinterprets a byte slice as a string, saving an allocation.
Borrowed from the standard library. Reasonably safe.
*/
func bytesToMutableString(bytes []byte) string {
	return *(*string)(unsafe.Pointer(&bytes))
}

/*
Returns a byte slice backed by the provided string. Must be treated as
read-only: strings may be backed by constant storage.
*/
func stringToBytesUnsafe(str string) []byte {
	return unsafe.Slice(unsafe.StringData(str), len(str))
}
