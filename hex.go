package ethbind

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

/*
Similar to "hex.Encode" from "encoding/hex". Writes the hex-encoded input into
the output buffer, prepending "0x". The output size must be exactly
"HexEncodedLen(len(input))".
*/
func HexEncodeTo(output []byte, input []byte) error {
	if HexEncodedLen(len(input)) != len(output) {
		return errors.Errorf("hex-encoded output has %d bytes, have space for %d",
			HexEncodedLen(len(input)), len(output))
	}
	output[0] = '0'
	output[1] = 'x'
	hex.Encode(output[2:], input)
	return nil
}

// Version of "HexEncodeTo" that always allocates the output.
func HexEncode(input []byte) []byte {
	out := make([]byte, HexEncodedLen(len(input)))
	err := HexEncodeTo(out, input)
	if err != nil {
		panic(err)
	}
	return out
}

/*
Similar to "hex.Decode" from "encoding/hex". Drops the mandatory "0x" prefix
and decodes the rest into the output, whose size must be exactly
"HexDecodedLen(len(input))". Empty input is ok.

The output is left untouched on error.
*/
func HexDecodeTo(output []byte, input []byte) error {
	raw, err := drop0x(input)
	if err != nil {
		return err
	}
	if len(raw)%2 != 0 {
		return errors.Errorf("malformed hex input %s: odd length", input)
	}
	if HexDecodedLen(len(input)) != len(output) {
		return errors.Errorf("hex input %s has %d bytes, want %d",
			input, HexDecodedLen(len(input)), len(output))
	}
	buf := make([]byte, len(output))
	_, err = hex.Decode(buf, raw)
	if err != nil {
		return errors.WithStack(err)
	}
	copy(output, buf)
	return nil
}

// Version of "HexDecodeTo" that always allocates the output.
func HexDecode(input []byte) ([]byte, error) {
	output := make([]byte, HexDecodedLen(len(input)))
	err := HexDecodeTo(output, input)
	return output, err
}

/*
Lenient variant of "HexDecode" for human input: the "0x" prefix is optional.
Used for CLI flags and caller-supplied data prefixes, where both "0xabcd" and
"abcd" are common.
*/
func HexDecodeLoose(input string) ([]byte, error) {
	if !has0x(stringToBytesUnsafe(input)) && len(input) > 0 {
		input = "0x" + input
	}
	return HexDecode(stringToBytesUnsafe(input))
}

func has0x(input []byte) bool {
	return len(input) >= 2 && input[0] == '0' && (input[1] == 'x' || input[1] == 'X')
}

func drop0x(input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, nil
	}
	if has0x(input) {
		return input[2:], nil
	}
	return input, errors.Errorf("malformed input %s: missing 0x prefix", input)
}

// Number of bytes needed to hex-encode "len" bytes with the "0x" prefix.
func HexEncodedLen(len int) int {
	return (len * 2) + 2
}

/*
Number of bytes needed to hold the decoded output of a "0x"-prefixed input of
the given length. Empty input size is ok and requires zero output.
*/
func HexDecodedLen(len int) int {
	if len < 2 {
		return 0
	}
	return (len - 2) / 2
}

func hexEncodeQuoted(input []byte) []byte {
	out := make([]byte, HexEncodedLen(len(input))+2)
	out[0] = '"'
	HexEncodeTo(out[1:len(out)-1], input)
	out[len(out)-1] = '"'
	return out
}
