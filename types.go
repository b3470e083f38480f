package ethbind

import (
	"encoding/json"
	"math/big"
	"strconv"

	"github.com/pkg/errors"
)

var null = []byte{'n', 'u', 'l', 'l'}

// Version of "[]byte" that uses "0x"-prefixed hex encoding and decoding.
type HexBytes []byte

/*
Decodes the provided string. Zero-length input is ok. Otherwise, it must be
prefixed with "0x".
*/
func ParseHexBytes(input string) (HexBytes, error) {
	var out HexBytes
	err := out.UnmarshalText(stringToBytesUnsafe(input))
	return out, err
}

// Version of "ParseHexBytes" that panics on error. Convenient for globals.
func MustParseHexBytes(input string) HexBytes {
	out, err := ParseHexBytes(input)
	if err != nil {
		panic(err)
	}
	return out
}

// Implements "encoding.TextMarshaler". Uses hex encoding prefixed with "0x".
func (self HexBytes) MarshalText() ([]byte, error) {
	return HexEncode([]byte(self)), nil
}

/*
Implements "encoding.TextUnmarshaler". Empty input is ok. Otherwise, it must be
prefixed with "0x".
*/
func (self *HexBytes) UnmarshalText(input []byte) error {
	out, err := HexDecode(input)
	if err != nil {
		return err
	}
	*self = HexBytes(out)
	return nil
}

/*
Implements "json.Marshaler". A zero-length value encodes as "null". Otherwise,
it encodes as a hex string, prefixed with "0x".
*/
func (self HexBytes) MarshalJSON() ([]byte, error) {
	if len(self) == 0 {
		return null, nil
	}
	return hexEncodeQuoted(self), nil
}

// Implements "fmt.Stringer". Follows the same rules as "MarshalText".
func (self HexBytes) String() string {
	return bytesToMutableString(HexEncode([]byte(self)))
}

// Version of `big.Int` that encodes/decodes in base 16 with the "0x" prefix.
type HexInt big.Int

// Shortcut for converting a regular integer.
func NewHexInt(num int64) *HexInt {
	return (*HexInt)(big.NewInt(num))
}

// Implements "encoding.TextMarshaler". Uses hex encoding prefixed with "0x".
func (self *HexInt) MarshalText() ([]byte, error) {
	out := make([]byte, 0, 16)
	out = append(out, '0', 'x')
	return (*big.Int)(self).Append(out, 16), nil
}

// Implements "encoding.TextUnmarshaler". Input must be "0x"-prefixed base 16.
func (self *HexInt) UnmarshalText(input []byte) error {
	input, err := drop0x(input)
	if err != nil {
		return err
	}
	if len(input) == 0 {
		return errors.New("failed to decode empty input as a hex integer")
	}

	_, ok := (*big.Int)(self).SetString(bytesToMutableString(input), 16)
	if !ok {
		return errors.Errorf("failed to decode %q as a hex integer", input)
	}
	return nil
}

// Implements "fmt.Stringer". Follows the same rules as "MarshalText".
func (self *HexInt) String() string {
	bytes, _ := self.MarshalText()
	return bytesToMutableString(bytes)
}

// Version of `uint64` that encodes/decodes in base 16 with the "0x" prefix.
type HexUint64 uint64

// Implements "encoding.TextMarshaler". Uses hex encoding prefixed with "0x".
func (self HexUint64) MarshalText() ([]byte, error) {
	out := make([]byte, 0, 16)
	out = append(out, '0', 'x')
	return strconv.AppendUint(out, uint64(self), 16), nil
}

// Implements "encoding.TextUnmarshaler". Input must be "0x"-prefixed base 16.
func (self *HexUint64) UnmarshalText(input []byte) error {
	input, err := drop0x(input)
	if err != nil {
		return err
	}
	out, err := strconv.ParseUint(bytesToMutableString(input), 16, 64)
	*self = HexUint64(out)
	return errors.WithStack(err)
}

// Implements "fmt.Stringer". Follows the same rules as "MarshalText".
func (self HexUint64) String() string {
	bytes, _ := self.MarshalText()
	return bytesToMutableString(bytes)
}

/*
Compact representation of an Ethereum address. Uses hex-encoding and
hex-decoding with the mandatory "0x" prefix.

To avoid gotchas, a zero-initialized Address{} JSON-encodes as "null" and
text-encodes as "". A contract that isn't bound yet reports ZeroAddress.
*/
type Address [20]byte

/*
Decodes the provided string. Zero-length input is ok. Otherwise, it must be
prefixed with "0x".
*/
func ParseAddress(input string) (Address, error) {
	var out Address
	err := out.UnmarshalText(stringToBytesUnsafe(input))
	return out, err
}

// Version of "ParseAddress" that panics on error. Convenient for globals.
func MustParseAddress(input string) Address {
	out, err := ParseAddress(input)
	if err != nil {
		panic(err)
	}
	return out
}

// Implements "encoding.TextMarshaler". A zero value encodes as "".
func (self Address) MarshalText() ([]byte, error) {
	if self == ZeroAddress {
		return nil, nil
	}
	return HexEncode(self[:]), nil
}

// Implements "encoding.TextUnmarshaler". Empty input is ok.
func (self *Address) UnmarshalText(input []byte) error {
	if len(input) == 0 {
		*self = Address{}
		return nil
	}
	return HexDecodeTo(self[:], input)
}

// Implements "json.Marshaler". A zero value encodes as "null".
func (self Address) MarshalJSON() ([]byte, error) {
	if self == ZeroAddress {
		return null, nil
	}
	return hexEncodeQuoted(self[:]), nil
}

// Implements "fmt.Stringer". No special rules for zero values.
func (self Address) String() string {
	return bytesToMutableString(HexEncode(self[:]))
}

// Converts into a Word for event log filtering, zero-padded on the left.
func (self Address) Word() Word {
	var out Word
	copy(out[len(out)-len(self):], self[:])
	return out
}

/*
A Word represents the standard memory granularity of the EVM: 32 bytes of
arbitrary content. All EVM types are padded to at least this size when
ABI-encoded. This size is also used for hashes and log topics.

An empty Word{} text-encodes as "" and JSON-encodes as `null`. In a topic
filter, `null` is the wildcard.
*/
type Word [32]byte

// Decodes the provided string. Zero-length input is ok.
func ParseWord(input string) (Word, error) {
	var out Word
	err := out.UnmarshalText(stringToBytesUnsafe(input))
	return out, err
}

// Version of "ParseWord" that panics on error. Convenient for globals.
func MustParseWord(input string) Word {
	out, err := ParseWord(input)
	if err != nil {
		panic(err)
	}
	return out
}

// Implements "encoding.TextMarshaler". A zero value encodes as "".
func (self Word) MarshalText() ([]byte, error) {
	if self == ZeroWord {
		return nil, nil
	}
	return HexEncode(self[:]), nil
}

// Implements "encoding.TextUnmarshaler". Empty input is ok.
func (self *Word) UnmarshalText(input []byte) error {
	if len(input) == 0 {
		*self = Word{}
		return nil
	}
	return HexDecodeTo(self[:], input)
}

// Implements "json.Marshaler". A zero value encodes as "null".
func (self Word) MarshalJSON() ([]byte, error) {
	if self == ZeroWord {
		return null, nil
	}
	return hexEncodeQuoted(self[:]), nil
}

// Implements "fmt.Stringer". No special rules for zero values.
func (self Word) String() string {
	return bytesToMutableString(HexEncode(self[:]))
}

/*
Usually represents a transaction hash. Shares structure and encoding with Word,
but is assumed to be a hash.
*/
type Hash [32]byte

// Decodes the provided string. Zero-length input is ok.
func ParseHash(input string) (Hash, error) {
	hash, err := ParseWord(input)
	return Hash(hash), err
}

// Version of "ParseHash" that panics on error. Convenient for globals.
func MustParseHash(input string) Hash { return Hash(MustParseWord(input)) }

// Implements "encoding.TextMarshaler".
func (self Hash) MarshalText() ([]byte, error) { return Word(self).MarshalText() }

// Implements "encoding.TextUnmarshaler".
func (self *Hash) UnmarshalText(input []byte) error { return (*Word)(self).UnmarshalText(input) }

// Implements "json.Marshaler".
func (self Hash) MarshalJSON() ([]byte, error) { return Word(self).MarshalJSON() }

// Implements "fmt.Stringer".
func (self Hash) String() string { return Word(self).String() }

/*
Opaque identifier of a server-side log filter, as returned by "eth_newFilter".
Nodes return it as a hex quantity; we never interpret it.
*/
type FilterId string

type either struct {
	val []byte
	err error
}

// https://www.jsonrpc.org/specification#request_object
type rpcRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	Id      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// https://www.jsonrpc.org/specification#response_object
type rpcResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"` // assign `*someType` to decode as that type
	Error   *RpcError       `json:"error"`
}

/*
Represents an error that arrives over JSON RPC. See
https://www.jsonrpc.org/specification#error_object for details.
*/
type RpcError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Implements "error". Includes the RPC error details if possible.
func (self RpcError) Error() string {
	str := "RPC error " + strconv.FormatInt(self.Code, 10) + ": " + self.Message
	if len(self.Data) > 0 {
		str += " Additional details: " + string(self.Data)
	}
	return str
}

/*
Transaction options: the input for an Ethereum transaction, or for a
non-mutating contract call. Every bound function accepts one; the binding fills
in "To" and "Data" and leaves the rest to the caller.

"Data" is a prefix: when non-empty, the encoded call is appended to it.
*/
type TxMsg struct {
	From     Address  `json:"from"`
	To       Address  `json:"to"`
	Data     HexBytes `json:"data"`
	Value    *HexInt  `json:"value,omitempty"`
	GasPrice *HexInt  `json:"gasPrice,omitempty"`
	GasLimit *HexInt  `json:"gas,omitempty"`
}

// Represents a transaction receipt.
type TxReceipt struct {
	BlockHash         Hash       `json:"blockHash"`
	BlockNumber       *HexInt    `json:"blockNumber"`
	ContractAddress   Address    `json:"contractAddress"`
	GasUsed           *HexInt    `json:"gasUsed"`
	Logs              []LogEntry `json:"logs"`
	CumulativeGasUsed *HexInt    `json:"cumulativeGasUsed"`
	Status            *HexInt    `json:"status"`
	TransactionHash   Hash       `json:"transactionHash"`
	TransactionIndex  *HexInt    `json:"transactionIndex"`
}

/*
A log entry, as returned by "eth_getFilterLogs" and "eth_getFilterChanges".

"Event" and "Params" are empty in raw entries. "Contract.ParseEventLogs" fills
them in with the matched event name and the decoded parameters, keyed by
parameter name. Decoded entries are recomputed on every delivery.
*/
type LogEntry struct {
	Address          Address   `json:"address"`
	Topics           []Word    `json:"topics"`
	Data             HexBytes  `json:"data"`
	BlockHash        Hash      `json:"blockHash"`
	BlockNumber      HexUint64 `json:"blockNumber"`
	TransactionHash  Hash      `json:"transactionHash"`
	TransactionIndex HexUint64 `json:"transactionIndex"`
	LogIndex         HexUint64 `json:"logIndex"`
	Type             string    `json:"type,omitempty"` // Parity only
	Removed          bool      `json:"removed"`

	Event  string                 `json:"event,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
}

/*
Stand-in for anything representing a block number: a regular number, a
hex-encoded number, or the magic strings "earliest", "latest", "pending". See
the "BlockNumberX" constants.
*/
type BlockNumber interface{}

/*
Options for "eth_newFilter". See
https://wiki.parity.io/JSONRPC-eth-module.html#eth_newfilter for details.

"Topics" is positional. Each position is either a Word, a list of Words (any of
them), or nil (wildcard). Contract subscriptions overwrite "Address" and the
first topic position.
*/
type LogFilter struct {
	FromBlock BlockNumber   `json:"fromBlock,omitempty"`
	ToBlock   BlockNumber   `json:"toBlock,omitempty"`
	Address   []Address     `json:"address,omitempty"`
	Topics    []interface{} `json:"topics,omitempty"`
	Limit     uint64        `json:"limit,omitempty"` // Parity only
}
