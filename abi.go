package ethbind

/*
See https://solidity.readthedocs.io/en/develop/abi-spec.html
*/

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

/*
Decodes output from a Solidity compiler. Expects JSON produced by the following
incantation:

	solc --combined-json=abi,bin --optimize

Maps contract identifiers to decoded "ContractDef" values. Each identifier has
the form "filePath:contractName". Newer compilers emit "abi" as a JSON array
rather than a string; both are accepted.
*/
func ReadContractDefs(src io.Reader) (map[string]ContractDef, error) {
	var input struct {
		Contracts map[string]struct {
			Abi json.RawMessage
			Bin string
		}
	}

	err := json.NewDecoder(src).Decode(&input)
	if err != nil {
		return nil, errors.Wrap(err, `failed to read Solidity output`)
	}

	out := make(map[string]ContractDef, len(input.Contracts))
	for name, inp := range input.Contracts {
		path := strings.SplitN(name, ":", 2)
		if len(path) != 2 {
			return nil, errors.Errorf(`malformed contract identifier %q in Solidity output`, name)
		}

		abiJson := string(inp.Abi)
		var str string
		if json.Unmarshal(inp.Abi, &str) == nil {
			abiJson = str
		}

		def := ContractDef{
			FileName:     path[0],
			ContractName: path[1],
			AbiJson:      abiJson,
		}

		def.Abi, err = ParseAbiJson(abiJson)
		if err != nil {
			return nil, errors.Wrapf(err, `failed to decode ABI of %v`, name)
		}

		code, err := hex.DecodeString(strings.TrimPrefix(inp.Bin, "0x"))
		if err != nil {
			return nil, errors.Wrapf(err, `failed to decode code of %v`, name)
		}
		def.Code = HexBytes(code)

		out[name] = def
	}

	return out, nil
}

// Decodes output from a Solidity compiler. See ReadContractDefs for details.
func DecodeContractDefs(input []byte) (map[string]ContractDef, error) {
	return ReadContractDefs(bytes.NewReader(input))
}

/*
The output of a Solidity compiler for a single contract. See
"ReadContractDefs".
*/
type ContractDef struct {
	FileName     string
	ContractName string
	Abi          Abi
	AbiJson      string
	Code         HexBytes
}

/*
Abi represents the function, event and constructor definitions of a contract,
in declaration order. Parsed from JSON; immutable afterwards. Selectors and
parameter types are computed once, during parsing.

Entries are one of: AbiConstructor, AbiFunction, AbiEvent.
*/
type Abi []AbiEntry

// One of: AbiConstructor, AbiFunction, AbiEvent.
type AbiEntry interface{}

// Parses a JSON ABI definition.
func ParseAbiJson(input string) (Abi, error) {
	var abi Abi
	err := abi.UnmarshalJSON(stringToBytesUnsafe(input))
	return abi, err
}

/*
Parses a JSON ABI definition. Panics on failure. Convenient for initializing
global variables:

	var TokenAbi = ethbind.MustParseAbiJson(`[{"type": "function", "name": "balanceOf", ...}]`)
*/
func MustParseAbiJson(input string) Abi {
	abi, err := ParseAbiJson(input)
	if err != nil {
		panic(err)
	}
	return abi
}

/*
Returns the constructor definition. ABIs of contracts without an explicit
constructor have none; in that case, this returns an implicit constructor
without inputs.
*/
func (self Abi) Constructor() AbiConstructor {
	for _, entry := range self {
		if entry, ok := entry.(AbiConstructor); ok {
			return entry
		}
	}
	return AbiConstructor{Type: "constructor"}
}

// All function definitions, in declaration order.
func (self Abi) Functions() []AbiFunction {
	var out []AbiFunction
	for _, entry := range self {
		if entry, ok := entry.(AbiFunction); ok {
			out = append(out, entry)
		}
	}
	return out
}

// All event definitions, in declaration order.
func (self Abi) Events() []AbiEvent {
	var out []AbiEvent
	for _, entry := range self {
		if entry, ok := entry.(AbiEvent); ok {
			out = append(out, entry)
		}
	}
	return out
}

/*
Finds a function by name or by canonical signature, such as
"transfer(address,uint256)". For overloaded names, returns the last declared
one, matching "Contract.Function".
*/
func (self Abi) Function(name string) (AbiFunction, bool) {
	var out AbiFunction
	var found bool
	for _, fun := range self.Functions() {
		if fun.Name == name || fun.Signature == name {
			out, found = fun, true
		}
	}
	return out, found
}

// Finds an event by name.
func (self Abi) Event(name string) (AbiEvent, bool) {
	for _, event := range self.Events() {
		if event.Name == name {
			return event, true
		}
	}
	return AbiEvent{}, false
}

/*
Implements "json.Unmarshaler". Chooses the appropriate data structures for
constructors, functions and events, based on their type. Entries of other types
("fallback", "receive", "error") carry nothing we can bind, and are skipped.
*/
func (self *Abi) UnmarshalJSON(input []byte) error {
	var chunks []json.RawMessage

	err := json.Unmarshal(input, &chunks)
	if err != nil {
		return errors.Wrap(err, `failed to decode ABI definition`)
	}

	out := make(Abi, 0, len(chunks))
	for _, chunk := range chunks {
		val, err := unmarshalAbiEntry(chunk)
		if err != nil {
			return err
		}
		if val != nil {
			out = append(out, val)
		}
	}
	*self = out
	return nil
}

func unmarshalAbiEntry(input []byte) (AbiEntry, error) {
	var tag struct{ Type string }

	err := json.Unmarshal(input, &tag)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var out AbiEntry
	switch tag.Type {
	case "constructor":
		var val AbiConstructor
		err = json.Unmarshal(input, &val)
		out = val
	case "function", "":
		var val AbiFunction
		err = json.Unmarshal(input, &val)
		out = val
	case "event":
		var val AbiEvent
		err = json.Unmarshal(input, &val)
		out = val
	case "fallback", "receive", "error":
		return nil, nil
	default:
		return nil, errors.Errorf("unknown ABI type: %v", tag.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, `failed to decode ABI %v definition`, tag.Type)
	}

	return out, nil
}

// Represents a contract constructor.
type AbiConstructor struct {
	Type            string     `json:"type"` // "constructor"
	Inputs          []AbiParam `json:"inputs"`
	Payable         bool       `json:"payable"`
	StateMutability string     `json:"stateMutability"`
}

// Parsed input types, in order.
func (self AbiConstructor) InputTypes() []AbiType { return paramTypes(self.Inputs) }

/*
ABI-encodes constructor arguments. Unlike function calls, there's no selector:
the result is appended to the contract code.
*/
func (self AbiConstructor) EncodeCall(tokens []Token) ([]byte, error) {
	err := checkTokenTypes(self.InputTypes(), tokens)
	if err != nil {
		return nil, err
	}
	return abiAppendTokens(nil, tokens)
}

/*
Represents a contract function. Bound to a Contract, it becomes a
"BoundFunction".
*/
type AbiFunction struct {
	Type            string     `json:"type"` // "function" | ""
	Name            string     `json:"name"`
	Constant        bool       `json:"constant"`
	Inputs          []AbiParam `json:"inputs"`
	Outputs         []AbiParam `json:"outputs"`
	Payable         bool       `json:"payable"`
	StateMutability string     `json:"stateMutability,omitempty"`
	Signature       string     `json:"-"` // canonical, e.g. "transfer(address,uint256)"
	Selector        [4]byte    `json:"-"`
}

/*
Implements "json.Unmarshaler". Also precomputes the canonical signature and the
selector. A function is constant if marked so, or if its state mutability is
"view" or "pure"; newer compilers only emit the latter.
*/
func (self *AbiFunction) UnmarshalJSON(input []byte) error {
	type plain AbiFunction
	var val plain

	err := json.Unmarshal(input, &val)
	if err != nil {
		return err
	}

	*self = AbiFunction(val)
	self.Constant = self.Constant ||
		self.StateMutability == "view" ||
		self.StateMutability == "pure"
	self.Signature = abiSignature(self.Name, self.Inputs)
	sum := keccak256(stringToBytesUnsafe(self.Signature))
	copy(self.Selector[:], sum)
	return nil
}

// Parsed input types, in order.
func (self AbiFunction) InputTypes() []AbiType { return paramTypes(self.Inputs) }

// Parsed output types, in order.
func (self AbiFunction) OutputTypes() []AbiType { return paramTypes(self.Outputs) }

// Selector as hex without the "0x" prefix.
func (self AbiFunction) SelectorHex() string { return hex.EncodeToString(self.Selector[:]) }

/*
Returns the call payload for the given tokens: the function's selector followed
by the ABI-encoded tokens. Tokens must match the input types; see
"EncodeTokens".
*/
func (self AbiFunction) EncodeCall(tokens []Token) ([]byte, error) {
	err := checkTokenTypes(self.InputTypes(), tokens)
	if err != nil {
		return nil, err
	}
	return abiAppendTokens(self.Selector[:], tokens)
}

/*
ABI-decodes the result of "eth_call" against the output types. Returns a
"*DecodingError" for malformed or truncated input.
*/
func (self AbiFunction) DecodeOutput(input []byte) ([]Token, error) {
	return DecodeTokens(self.OutputTypes(), input)
}

/*
Represents a contract event. Bound to a Contract, it becomes a "BoundEvent".

"Selector" is the full keccak-256 hash of the canonical signature, used as the
first topic of non-anonymous logs.
*/
type AbiEvent struct {
	Type             string     `json:"type"` // "event"
	Name             string     `json:"name"`
	Inputs           []AbiParam `json:"inputs"`
	Anonymous        bool       `json:"anonymous"`
	Signature        string     `json:"-"`
	Selector         Word       `json:"-"`
	IndexedInputs    []AbiParam `json:"-"`
	NonIndexedInputs []AbiParam `json:"-"`
}

// Implements "json.Unmarshaler". Also precomputes the selector.
func (self *AbiEvent) UnmarshalJSON(input []byte) error {
	type plain AbiEvent
	var val plain

	err := json.Unmarshal(input, &val)
	if err != nil {
		return err
	}

	*self = AbiEvent(val)
	self.IndexedInputs = nil
	self.NonIndexedInputs = nil
	for _, param := range self.Inputs {
		if param.Indexed {
			self.IndexedInputs = append(self.IndexedInputs, param)
		} else {
			self.NonIndexedInputs = append(self.NonIndexedInputs, param)
		}
	}
	self.Signature = abiSignature(self.Name, self.Inputs)
	copy(self.Selector[:], keccak256(stringToBytesUnsafe(self.Signature)))
	return nil
}

// Selector as hex without the "0x" prefix. This is how log signatures are
// reported in errors.
func (self AbiEvent) SelectorHex() string { return hex.EncodeToString(self.Selector[:]) }

/*
A function parameter, function output, or event parameter. "AbiType" is parsed
from "Type" (and "Components", for tuples) during JSON decoding.
*/
type AbiParam struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Components []AbiParam `json:"components,omitempty"` // tuple types only
	Indexed    bool       `json:"indexed,omitempty"`    // event only
	AbiType    AbiType    `json:"-"`
}

// Implements "json.Unmarshaler".
func (self *AbiParam) UnmarshalJSON(input []byte) error {
	type plain AbiParam
	var val plain

	err := json.Unmarshal(input, &val)
	if err != nil {
		return err
	}

	*self = AbiParam(val)
	self.AbiType, err = parseAbiType(self.Type, paramTypes(self.Components))
	return err
}

func paramTypes(params []AbiParam) []AbiType {
	out := make([]AbiType, len(params))
	for i, param := range params {
		out[i] = param.AbiType
	}
	return out
}

func abiSignature(name string, params []AbiParam) string {
	var buf strings.Builder
	buf.WriteString(name)
	buf.WriteByte('(')
	for i, param := range params {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(param.AbiType.Type)
	}
	buf.WriteByte(')')
	return buf.String()
}

func keccak256(input []byte) []byte {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(input)
	return hash.Sum(nil)
}

// Broad category of EVM types. Used for ABI encoding and decoding.
type AbiKind byte

const (
	AbiKindBool AbiKind = iota + 1
	AbiKindUint
	AbiKindInt
	AbiKindAddress
	AbiKindFunction
	AbiKindString
	AbiKindDenseArray // `bytes` and `bytesN`
	AbiKindSparseArray
	AbiKindTuple
)

// Implements "fmt.Stringer".
func (self AbiKind) String() string {
	switch self {
	case AbiKindBool:
		return "AbiKindBool"
	case AbiKindUint:
		return "AbiKindUint"
	case AbiKindInt:
		return "AbiKindInt"
	case AbiKindAddress:
		return "AbiKindAddress"
	case AbiKindFunction:
		return "AbiKindFunction"
	case AbiKindString:
		return "AbiKindString"
	case AbiKindDenseArray:
		return "AbiKindDenseArray"
	case AbiKindSparseArray:
		return "AbiKindSparseArray"
	case AbiKindTuple:
		return "AbiKindTuple"
	default:
		return ""
	}
}

/*
Details about a concrete EVM type. "Type" is the canonical name used in
signatures: "uint" becomes "uint256", tuples are spelled out as
"(address,uint256)".
*/
type AbiType struct {
	Type       string
	Kind       AbiKind
	Bits       int       // AbiKindInt, AbiKindUint
	ArrayLen   int       // byte count for bytesN, element count for T[N]
	FixedLen   bool      // implies Kind == AbiKindDenseArray || Kind == AbiKindSparseArray
	Elem       *AbiType  // must be present if Kind == AbiKindSparseArray
	Components []AbiType // AbiKindTuple
}

/*
How many bytes are needed to ABI-encode a value of this type in the head of a
tuple. Returns -1 for dynamically-sized types, which are encoded out of line.
*/
func (self AbiType) Size() int {
	switch self.Kind {
	case AbiKindString:
		return -1
	case AbiKindDenseArray:
		if !self.FixedLen {
			return -1
		}
		return wordSize
	case AbiKindSparseArray:
		if !self.FixedLen {
			return -1
		}
		size := self.Elem.Size()
		if size >= 0 {
			return size * self.ArrayLen
		}
		return -1
	case AbiKindTuple:
		total := 0
		for _, comp := range self.Components {
			size := comp.Size()
			if size < 0 {
				return -1
			}
			total += size
		}
		return total
	default:
		return wordSize
	}
}

// True if a value of this type has a fixed size and is ABI-encoded inline.
func (self AbiType) IsStaticallySized() bool {
	return self.Size() >= 0
}

const wordSize = 256 / 8

var (
	abiUintReg       = regexp.MustCompile(`^uint(\d*)$`)
	abiIntReg        = regexp.MustCompile(`^int(\d*)$`)
	abiByteArrayReg  = regexp.MustCompile(`^bytes(\d+)$`)
	abiFixedArrayReg = regexp.MustCompile(`^(.+)\[(\d+)\]$`)
	abiArrayReg      = regexp.MustCompile(`^(.+)\[\]$`)
)

/*
Accepts a name of an EVM type, such as "bytes32", "uint256" or "address[12]",
and returns its details as an AbiType. Tuples need their components and can
only be parsed as part of an AbiParam.
*/
func ParseAbiType(typeName string) (AbiType, error) {
	return parseAbiType(typeName, nil)
}

func parseAbiType(typeName string, components []AbiType) (AbiType, error) {
	switch {
	case abiFixedArrayReg.MatchString(typeName):
		match := abiFixedArrayReg.FindStringSubmatch(typeName)
		length, err := strconv.ParseUint(match[2], 10, 32)
		if err != nil {
			return AbiType{}, errors.Wrapf(err, `failed to parse %q as Solidity type`, typeName)
		}
		elem, err := parseAbiType(match[1], components)
		if err != nil {
			return AbiType{}, err
		}
		return AbiType{
			Type:     elem.Type + "[" + match[2] + "]",
			Kind:     AbiKindSparseArray,
			ArrayLen: int(length),
			FixedLen: true,
			Elem:     &elem,
		}, nil

	case abiArrayReg.MatchString(typeName):
		match := abiArrayReg.FindStringSubmatch(typeName)
		elem, err := parseAbiType(match[1], components)
		if err != nil {
			return AbiType{}, err
		}
		return AbiType{Type: elem.Type + "[]", Kind: AbiKindSparseArray, Elem: &elem}, nil

	case typeName == "tuple":
		if len(components) == 0 {
			return AbiType{}, errors.Errorf(`failed to parse %q as Solidity type: missing components`, typeName)
		}
		names := make([]string, len(components))
		for i, comp := range components {
			names[i] = comp.Type
		}
		return AbiType{
			Type:       "(" + strings.Join(names, ",") + ")",
			Kind:       AbiKindTuple,
			Components: components,
		}, nil

	case typeName == "bool":
		return AbiType{Type: typeName, Kind: AbiKindBool}, nil

	case typeName == "address":
		return AbiType{Type: typeName, Kind: AbiKindAddress}, nil

	case typeName == "function":
		return AbiType{Type: typeName, Kind: AbiKindFunction}, nil

	case typeName == "string":
		return AbiType{Type: typeName, Kind: AbiKindString}, nil

	case typeName == "bytes":
		return AbiType{Type: typeName, Kind: AbiKindDenseArray}, nil

	case typeName == "byte":
		return AbiType{Type: "bytes1", Kind: AbiKindDenseArray, ArrayLen: 1, FixedLen: true}, nil

	case abiByteArrayReg.MatchString(typeName):
		match := abiByteArrayReg.FindStringSubmatch(typeName)
		length, err := strconv.Atoi(match[1])
		if err != nil || length < 1 || length > wordSize {
			return AbiType{}, errors.Errorf(`failed to parse %q as Solidity type: invalid length`, typeName)
		}
		return AbiType{Type: typeName, Kind: AbiKindDenseArray, ArrayLen: length, FixedLen: true}, nil

	case abiUintReg.MatchString(typeName):
		bits, err := parseIntBits(typeName, abiUintReg.FindStringSubmatch(typeName)[1])
		if err != nil {
			return AbiType{}, err
		}
		return AbiType{Type: "uint" + strconv.Itoa(bits), Kind: AbiKindUint, Bits: bits}, nil

	case abiIntReg.MatchString(typeName):
		bits, err := parseIntBits(typeName, abiIntReg.FindStringSubmatch(typeName)[1])
		if err != nil {
			return AbiType{}, err
		}
		return AbiType{Type: "int" + strconv.Itoa(bits), Kind: AbiKindInt, Bits: bits}, nil

	default:
		return AbiType{}, errors.Errorf(`failed to parse %q as Solidity type`, typeName)
	}
}

func parseIntBits(typeName string, digits string) (int, error) {
	if digits == "" {
		return 256, nil
	}
	bits, err := strconv.Atoi(digits)
	if err != nil || bits < 8 || bits > 256 || bits%8 != 0 {
		return 0, errors.Errorf(`failed to parse %q as Solidity type: invalid bit size`, typeName)
	}
	return bits, nil
}
