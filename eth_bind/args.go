package main

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/purelabio/ethbind"
)

/*
Converts command-line arguments into values accepted by the ABI encoder, one
per type. Composite types are written as JSON arrays.
*/
func parseArgs(types []ethbind.AbiType, args []string) ([]interface{}, error) {
	if len(args) != len(types) {
		return nil, errors.Errorf(`expected %v arguments, got %v`, len(types), len(args))
	}

	out := make([]interface{}, len(args))
	for i, arg := range args {
		val, err := parseArg(types[i], arg)
		if err != nil {
			return nil, errors.Wrapf(err, `invalid argument %v`, i)
		}
		out[i] = val
	}
	return out, nil
}

func parseArg(typ ethbind.AbiType, input string) (interface{}, error) {
	switch typ.Kind {
	case ethbind.AbiKindBool:
		val, err := strconv.ParseBool(input)
		return val, errors.WithStack(err)

	case ethbind.AbiKindUint, ethbind.AbiKindInt:
		num, ok := new(big.Int).SetString(input, 0)
		if !ok {
			return nil, errors.Errorf(`%q is not a valid %v`, input, typ.Type)
		}
		return num, nil

	case ethbind.AbiKindAddress:
		return ethbind.ParseAddress(input)

	case ethbind.AbiKindFunction:
		bytes, err := ethbind.HexDecodeLoose(input)
		if err != nil {
			return nil, err
		}
		var out [24]byte
		if len(bytes) != len(out) {
			return nil, errors.Errorf(`expected %v bytes for %v, got %v`, len(out), typ.Type, len(bytes))
		}
		copy(out[:], bytes)
		return out, nil

	case ethbind.AbiKindString:
		return input, nil

	case ethbind.AbiKindDenseArray:
		bytes, err := ethbind.HexDecodeLoose(input)
		return bytes, err

	case ethbind.AbiKindSparseArray, ethbind.AbiKindTuple:
		dec := json.NewDecoder(strings.NewReader(input))
		dec.UseNumber()
		var val interface{}
		err := dec.Decode(&val)
		if err != nil {
			return nil, errors.Wrapf(err, `%v must be written as a JSON array`, typ.Type)
		}
		return parseJsonArg(typ, val)

	default:
		return nil, errors.Errorf(`unsupported type %v`, typ.Type)
	}
}

func parseJsonArg(typ ethbind.AbiType, val interface{}) (interface{}, error) {
	switch val := val.(type) {
	case string:
		return parseArg(typ, val)

	case json.Number:
		return parseArg(typ, val.String())

	case bool:
		if typ.Kind != ethbind.AbiKindBool {
			return nil, errors.Errorf(`unexpected boolean for %v`, typ.Type)
		}
		return val, nil

	case []interface{}:
		var types []ethbind.AbiType
		switch typ.Kind {
		case ethbind.AbiKindSparseArray:
			if typ.FixedLen && len(val) != typ.ArrayLen {
				return nil, errors.Errorf(`expected %v elements for %v, got %v`, typ.ArrayLen, typ.Type, len(val))
			}
			for range val {
				types = append(types, *typ.Elem)
			}
		case ethbind.AbiKindTuple:
			if len(val) != len(typ.Components) {
				return nil, errors.Errorf(`expected %v components for %v, got %v`, len(typ.Components), typ.Type, len(val))
			}
			types = typ.Components
		default:
			return nil, errors.Errorf(`unexpected array for %v`, typ.Type)
		}

		out := make([]interface{}, len(val))
		for i, elem := range val {
			parsed, err := parseJsonArg(types[i], elem)
			if err != nil {
				return nil, errors.Wrapf(err, `invalid element %v`, i)
			}
			out[i] = parsed
		}
		return out, nil

	default:
		return nil, errors.Errorf(`unexpected %T for %v`, val, typ.Type)
	}
}
