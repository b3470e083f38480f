package ethbind

import (
	"encoding/binary"
	"math/big"
	"reflect"
)

/*
A typed value consumed or produced by the codec. Values produced by
"EncodeTokens" and "DecodeTokens" are always in canonical form:

	bool                      bool
	intN, uintN               *big.Int
	address                   Address
	function                  [24]byte
	bytesN, bytes             HexBytes
	string                    string
	T[N], T[], tuples         []interface{}
*/
type Token struct {
	Type  AbiType
	Value interface{}
}

// Extracts the values of the given tokens, in order.
func TokenValues(tokens []Token) []interface{} {
	out := make([]interface{}, len(tokens))
	for i, token := range tokens {
		out[i] = token.Value
	}
	return out
}

/*
Validates the values against the types and converts them into tokens. Arity
and type mismatches, as well as integers that don't fit the declared width,
result in an "*EncodingError".

Accepted Go values, in addition to the canonical forms listed on "Token":
any Go integer, "big.Int" and "HexInt" for integer types; "[20]byte" for
addresses; byte arrays and slices for "bytesN" and "bytes"; "[]byte" for
strings; any slice or array for ABI arrays and tuples. Pointers are
dereferenced.
*/
func EncodeTokens(types []AbiType, values []interface{}) ([]Token, error) {
	if len(types) != len(values) {
		return nil, encodingErrorf(`expected %d values, got %d`, len(types), len(values))
	}

	out := make([]Token, len(types))
	for i, typ := range types {
		val, err := normalizeAbiValue(typ, values[i])
		if err != nil {
			return nil, err
		}
		out[i] = Token{Type: typ, Value: val}
	}
	return out, nil
}

/*
ABI-decodes the input as a tuple of the given types. The input length must be
a multiple of 32 bytes. Offsets and lengths are bounds-checked, booleans must
be 0 or 1, integers must fit their declared width and addresses must be
zero-padded; violations result in a "*DecodingError".
*/
func DecodeTokens(types []AbiType, input []byte) ([]Token, error) {
	if len(input)%wordSize != 0 {
		return nil, decodingErrorf(`input length %d is not a multiple of %d`, len(input), wordSize)
	}

	vals, err := decodeAbiTuple(types, input)
	if err != nil {
		return nil, err
	}

	out := make([]Token, len(types))
	for i, typ := range types {
		out[i] = Token{Type: typ, Value: vals[i]}
	}
	return out, nil
}

func checkTokenTypes(types []AbiType, tokens []Token) error {
	if len(types) != len(tokens) {
		return encodingErrorf(`expected %d values, got %d`, len(types), len(tokens))
	}
	for i, typ := range types {
		if tokens[i].Type.Type != typ.Type {
			return encodingErrorf(`argument %d: expected %v, got token of type %v`,
				i, typ.Type, tokens[i].Type.Type)
		}
	}
	return nil
}

// Appends the ABI encoding of the tokens, as a tuple, to a copy of the prefix.
func abiAppendTokens(prefix []byte, tokens []Token) ([]byte, error) {
	types := make([]AbiType, len(tokens))
	vals := make([]interface{}, len(tokens))
	for i, token := range tokens {
		types[i] = token.Type
		vals[i] = token.Value
	}

	body, err := encodeAbiTuple(types, vals)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(prefix)+len(body))
	out = append(out, prefix...)
	return append(out, body...), nil
}

/*
Encoding.
*/

var (
	bigOne     = big.NewInt(1)
	twoPow256  = new(big.Int).Lsh(bigOne, 256)
	abiTrueVal = Word{wordSize - 1: 1}
)

func encodeAbiTuple(types []AbiType, vals []interface{}) ([]byte, error) {
	if len(types) != len(vals) {
		return nil, encodingErrorf(`expected %d values, got %d`, len(types), len(vals))
	}

	headSize := 0
	for _, typ := range types {
		if size := typ.Size(); size >= 0 {
			headSize += size
		} else {
			headSize += wordSize
		}
	}

	head := make([]byte, 0, headSize)
	var tail []byte

	for i, typ := range types {
		enc, err := encodeAbiValue(typ, vals[i])
		if err != nil {
			return nil, err
		}
		if typ.IsStaticallySized() {
			head = append(head, enc...)
			continue
		}
		head = append(head, uintWord(uint64(headSize+len(tail)))...)
		tail = append(tail, enc...)
	}

	return append(head, tail...), nil
}

func encodeAbiValue(typ AbiType, val interface{}) ([]byte, error) {
	val, err := normalizeAbiValue(typ, val)
	if err != nil {
		return nil, err
	}

	switch typ.Kind {
	case AbiKindBool:
		out := make([]byte, wordSize)
		if val.(bool) {
			out[wordSize-1] = 1
		}
		return out, nil

	case AbiKindUint, AbiKindInt:
		num := val.(*big.Int)
		if num.Sign() < 0 {
			num = new(big.Int).Add(num, twoPow256)
		}
		return num.FillBytes(make([]byte, wordSize)), nil

	case AbiKindAddress:
		addr := val.(Address)
		out := make([]byte, wordSize)
		copy(out[wordSize-len(addr):], addr[:])
		return out, nil

	case AbiKindFunction:
		fun := val.([24]byte)
		out := make([]byte, wordSize)
		copy(out, fun[:])
		return out, nil

	case AbiKindString:
		return encodeDynamicBytes([]byte(val.(string))), nil

	case AbiKindDenseArray:
		if typ.FixedLen {
			out := make([]byte, wordSize)
			copy(out, val.(HexBytes))
			return out, nil
		}
		return encodeDynamicBytes(val.(HexBytes)), nil

	case AbiKindSparseArray:
		elems := val.([]interface{})
		body, err := encodeAbiTuple(repeatAbiType(*typ.Elem, len(elems)), elems)
		if err != nil {
			return nil, err
		}
		if typ.FixedLen {
			return body, nil
		}
		return append(uintWord(uint64(len(elems))), body...), nil

	case AbiKindTuple:
		return encodeAbiTuple(typ.Components, val.([]interface{}))

	default:
		return nil, encodingErrorf(`unsupported type %v`, typ.Type)
	}
}

func encodeDynamicBytes(input []byte) []byte {
	padded := (len(input) + wordSize - 1) / wordSize * wordSize
	out := make([]byte, wordSize+padded)
	copy(out, uintWord(uint64(len(input))))
	copy(out[wordSize:], input)
	return out
}

func uintWord(num uint64) []byte {
	out := make([]byte, wordSize)
	binary.BigEndian.PutUint64(out[wordSize-8:], num)
	return out
}

func repeatAbiType(typ AbiType, count int) []AbiType {
	out := make([]AbiType, count)
	for i := range out {
		out[i] = typ
	}
	return out
}

/*
Converts a Go value into the canonical form for the given type, validating it
along the way. See "Token" for canonical forms.
*/
func normalizeAbiValue(typ AbiType, val interface{}) (interface{}, error) {
	rval := reflect.ValueOf(val)
	for rval.Kind() == reflect.Ptr || rval.Kind() == reflect.Interface {
		if rval.IsNil() {
			return nil, encodingErrorf(`expected %v, got nil`, typ.Type)
		}
		switch val.(type) {
		case *big.Int, *HexInt:
			if typ.Kind == AbiKindInt || typ.Kind == AbiKindUint {
				return normalizeAbiInt(typ, val)
			}
		}
		rval = rval.Elem()
		val = rval.Interface()
	}

	if !rval.IsValid() {
		return nil, encodingErrorf(`expected %v, got nil`, typ.Type)
	}

	switch typ.Kind {
	case AbiKindBool:
		if rval.Kind() != reflect.Bool {
			return nil, encodingErrorf(`expected %v, got %T`, typ.Type, val)
		}
		return rval.Bool(), nil

	case AbiKindUint, AbiKindInt:
		return normalizeAbiInt(typ, val)

	case AbiKindAddress:
		var out Address
		if !copyByteArray(out[:], rval) {
			return nil, encodingErrorf(`expected %v, got %T`, typ.Type, val)
		}
		return out, nil

	case AbiKindFunction:
		var out [24]byte
		if !copyByteArray(out[:], rval) {
			return nil, encodingErrorf(`expected %v, got %T`, typ.Type, val)
		}
		return out, nil

	case AbiKindString:
		switch {
		case rval.Kind() == reflect.String:
			return rval.String(), nil
		case isByteSlice(rval):
			return string(rval.Bytes()), nil
		default:
			return nil, encodingErrorf(`expected %v, got %T`, typ.Type, val)
		}

	case AbiKindDenseArray:
		out, ok := bytesOf(rval)
		if !ok {
			return nil, encodingErrorf(`expected %v, got %T`, typ.Type, val)
		}
		if typ.FixedLen && len(out) != typ.ArrayLen {
			return nil, encodingErrorf(`expected %v, got %d bytes`, typ.Type, len(out))
		}
		return out, nil

	case AbiKindSparseArray:
		if rval.Kind() != reflect.Slice && rval.Kind() != reflect.Array {
			return nil, encodingErrorf(`expected %v, got %T`, typ.Type, val)
		}
		if typ.FixedLen && rval.Len() != typ.ArrayLen {
			return nil, encodingErrorf(`expected %v, got %d elements`, typ.Type, rval.Len())
		}
		return normalizeAbiList(repeatAbiType(*typ.Elem, rval.Len()), rval)

	case AbiKindTuple:
		if rval.Kind() != reflect.Slice && rval.Kind() != reflect.Array {
			return nil, encodingErrorf(`expected %v, got %T`, typ.Type, val)
		}
		if rval.Len() != len(typ.Components) {
			return nil, encodingErrorf(`expected %v, got %d elements`, typ.Type, rval.Len())
		}
		return normalizeAbiList(typ.Components, rval)

	default:
		return nil, encodingErrorf(`unsupported type %v`, typ.Type)
	}
}

func normalizeAbiList(types []AbiType, rval reflect.Value) ([]interface{}, error) {
	out := make([]interface{}, len(types))
	for i, typ := range types {
		elem, err := normalizeAbiValue(typ, rval.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = elem
	}
	return out, nil
}

func normalizeAbiInt(typ AbiType, val interface{}) (*big.Int, error) {
	var num *big.Int

	switch val := val.(type) {
	case *big.Int:
		num = new(big.Int).Set(val)
	case big.Int:
		num = new(big.Int).Set(&val)
	case *HexInt:
		num = new(big.Int).Set((*big.Int)(val))
	case HexInt:
		num = new(big.Int).Set((*big.Int)(&val))
	default:
		rval := reflect.ValueOf(val)
		switch rval.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			num = big.NewInt(rval.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			num = new(big.Int).SetUint64(rval.Uint())
		default:
			return nil, encodingErrorf(`expected %v, got %T`, typ.Type, val)
		}
	}

	if !intFits(num, typ) {
		return nil, encodingErrorf(`value %v out of range for %v`, num, typ.Type)
	}
	return num, nil
}

func intFits(num *big.Int, typ AbiType) bool {
	if typ.Kind == AbiKindUint {
		return num.Sign() >= 0 && num.BitLen() <= typ.Bits
	}
	if num.Sign() >= 0 {
		return num.BitLen() <= typ.Bits-1
	}
	// -2^(n-1) <= num  <=>  |num| - 1 < 2^(n-1)
	abs := new(big.Int).Neg(num)
	return abs.Sub(abs, bigOne).BitLen() <= typ.Bits-1
}

func isByteSlice(rval reflect.Value) bool {
	return rval.Kind() == reflect.Slice && rval.Type().Elem().Kind() == reflect.Uint8
}

func isByteArray(rval reflect.Value) bool {
	return rval.Kind() == reflect.Array && rval.Type().Elem().Kind() == reflect.Uint8
}

// Copies a byte slice or array. The result never aliases the input.
func bytesOf(rval reflect.Value) (HexBytes, bool) {
	switch {
	case isByteSlice(rval):
		return append(HexBytes{}, rval.Bytes()...), true
	case isByteArray(rval):
		out := make(HexBytes, rval.Len())
		reflect.Copy(reflect.ValueOf(out), rval)
		return out, true
	default:
		return nil, false
	}
}

func copyByteArray(out []byte, rval reflect.Value) bool {
	if !isByteArray(rval) || rval.Len() != len(out) {
		return false
	}
	reflect.Copy(reflect.ValueOf(out), rval)
	return true
}

/*
Decoding.

Every function receives the input starting at the beginning of the value (or
tuple) being decoded. Offsets are relative to the beginning of the enclosing
tuple.
*/

func decodeAbiTuple(types []AbiType, input []byte) ([]interface{}, error) {
	out := make([]interface{}, len(types))
	pos := 0

	for i, typ := range types {
		size := typ.Size()

		if size >= 0 {
			if pos+size > len(input) {
				return nil, decodingErrorf(`truncated input: %v at offset %d needs %d bytes, have %d`,
					typ.Type, pos, size, len(input)-pos)
			}
			val, err := decodeAbiValue(typ, input[pos:pos+size])
			if err != nil {
				return nil, err
			}
			out[i] = val
			pos += size
			continue
		}

		offset, err := readAbiLength(input, pos)
		if err != nil {
			return nil, err
		}
		if offset >= len(input) {
			return nil, decodingErrorf(`offset %d of %v is out of range (%d bytes)`,
				offset, typ.Type, len(input))
		}
		val, err := decodeAbiValue(typ, input[offset:])
		if err != nil {
			return nil, err
		}
		out[i] = val
		pos += wordSize
	}

	return out, nil
}

func decodeAbiValue(typ AbiType, input []byte) (interface{}, error) {
	switch typ.Kind {
	case AbiKindBool:
		word, err := readAbiWord(input, 0)
		if err != nil {
			return nil, err
		}
		switch word {
		case ZeroWord:
			return false, nil
		case abiTrueVal:
			return true, nil
		default:
			return nil, decodingErrorf(`invalid bool value %v`, word)
		}

	case AbiKindUint, AbiKindInt:
		word, err := readAbiWord(input, 0)
		if err != nil {
			return nil, err
		}
		num := new(big.Int).SetBytes(word[:])
		if typ.Kind == AbiKindInt && word[0]&0x80 != 0 {
			num.Sub(num, twoPow256)
		}
		if !intFits(num, typ) {
			return nil, decodingErrorf(`value %v out of range for %v`, num, typ.Type)
		}
		return num, nil

	case AbiKindAddress:
		word, err := readAbiWord(input, 0)
		if err != nil {
			return nil, err
		}
		var out Address
		if !isZero(word[:wordSize-len(out)]) {
			return nil, decodingErrorf(`invalid address padding in %v`, word)
		}
		copy(out[:], word[wordSize-len(out):])
		return out, nil

	case AbiKindFunction:
		word, err := readAbiWord(input, 0)
		if err != nil {
			return nil, err
		}
		var out [24]byte
		if !isZero(word[len(out):]) {
			return nil, decodingErrorf(`invalid function padding in %v`, word)
		}
		copy(out[:], word[:])
		return out, nil

	case AbiKindString:
		out, err := decodeDynamicBytes(input)
		if err != nil {
			return nil, err
		}
		return string(out), nil

	case AbiKindDenseArray:
		if !typ.FixedLen {
			return decodeDynamicBytes(input)
		}
		word, err := readAbiWord(input, 0)
		if err != nil {
			return nil, err
		}
		if !isZero(word[typ.ArrayLen:]) {
			return nil, decodingErrorf(`invalid %v padding in %v`, typ.Type, word)
		}
		return append(HexBytes{}, word[:typ.ArrayLen]...), nil

	case AbiKindSparseArray:
		if typ.FixedLen {
			return decodeAbiTuple(repeatAbiType(*typ.Elem, typ.ArrayLen), input)
		}
		length, err := readAbiLength(input, 0)
		if err != nil {
			return nil, err
		}
		// Every element occupies at least one word in the head.
		if length > (len(input)-wordSize)/wordSize {
			return nil, decodingErrorf(`array length %d of %v exceeds input (%d bytes)`,
				length, typ.Type, len(input))
		}
		return decodeAbiTuple(repeatAbiType(*typ.Elem, length), input[wordSize:])

	case AbiKindTuple:
		return decodeAbiTuple(typ.Components, input)

	default:
		return nil, decodingErrorf(`unsupported type %v`, typ.Type)
	}
}

func decodeDynamicBytes(input []byte) (HexBytes, error) {
	length, err := readAbiLength(input, 0)
	if err != nil {
		return nil, err
	}
	if length > len(input)-wordSize {
		return nil, decodingErrorf(`truncated input: need %d bytes of data, have %d`,
			length, len(input)-wordSize)
	}
	return append(HexBytes{}, input[wordSize:wordSize+length]...), nil
}

func readAbiWord(input []byte, pos int) (Word, error) {
	var out Word
	if pos < 0 || pos+wordSize > len(input) {
		return out, decodingErrorf(`truncated input: need a word at offset %d, have %d bytes`,
			pos, len(input))
	}
	copy(out[:], input[pos:])
	return out, nil
}

// Reads an offset or length, which must fit comfortably into an int.
func readAbiLength(input []byte, pos int) (int, error) {
	word, err := readAbiWord(input, pos)
	if err != nil {
		return 0, err
	}
	if !isZero(word[:wordSize-4]) {
		return 0, decodingErrorf(`offset or length %v is out of range`, word)
	}
	return int(binary.BigEndian.Uint32(word[wordSize-4:])), nil
}

func isZero(input []byte) bool {
	for _, char := range input {
		if char != 0 {
			return false
		}
	}
	return true
}
