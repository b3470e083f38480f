package ethbind

import (
	"strconv"

	"github.com/pkg/errors"
)

/*
Matches each log to an event of the ABI by its first topic, and decodes its
parameters. Returns decoded copies; the input is left untouched.

A log whose signature matches no event fails the whole batch with
"*UnknownEventError". This means the ABI doesn't describe the contract that
emitted the log, which retrying won't fix.
*/
func (self *Contract) ParseEventLogs(logs []LogEntry) ([]LogEntry, error) {
	out := make([]LogEntry, len(logs))

	for i, log := range logs {
		if len(log.Topics) == 0 {
			return nil, decodingErrorf(`log %d of transaction %v has no topics`, i, log.TransactionHash)
		}

		event, ok := self.bySelector[log.Topics[0]]
		if !ok {
			return nil, &UnknownEventError{Signature: log.Topics[0].hexNo0x()}
		}

		params, err := event.DecodeLog(log.Topics, log.Data)
		if err != nil {
			return nil, errors.Wrapf(err, `failed to decode %v log`, event.Name)
		}

		log.Event = event.Name
		log.Params = params
		out[i] = log
	}

	return out, nil
}

// Decodes the logs of the receipt in place. Returns the same receipt.
func (self *Contract) ParseTransactionEvents(receipt *TxReceipt) (*TxReceipt, error) {
	logs, err := self.ParseEventLogs(receipt.Logs)
	if err != nil {
		return nil, err
	}
	receipt.Logs = logs
	return receipt, nil
}

/*
Decodes the parameters of a log emitted by this event, keyed by parameter name.
Unnamed parameters are keyed by their position.

Indexed parameters are read from the topics. Values of dynamic types such as
"string" are stored in topics as their keccak-256 hash, which is returned as a
"Hash"; the original value can't be recovered. Non-indexed parameters are
decoded from the data.
*/
func (self AbiEvent) DecodeLog(topics []Word, data []byte) (map[string]interface{}, error) {
	if !self.Anonymous {
		if len(topics) == 0 || topics[0] != self.Selector {
			return nil, decodingErrorf(`log signature doesn't match event %v`, self.Signature)
		}
		topics = topics[1:]
	}

	if len(topics) != len(self.IndexedInputs) {
		return nil, decodingErrorf(`event %v expects %d indexed topics, got %d`,
			self.Signature, len(self.IndexedInputs), len(topics))
	}

	nonIndexed, err := DecodeTokens(paramTypes(self.NonIndexedInputs), data)
	if err != nil {
		return nil, err
	}

	out := make(map[string]interface{}, len(self.Inputs))
	topicIndex, dataIndex := 0, 0

	for i, param := range self.Inputs {
		key := param.Name
		if key == "" {
			key = strconv.Itoa(i)
		}

		if !param.Indexed {
			out[key] = nonIndexed[dataIndex].Value
			dataIndex++
			continue
		}

		topic := topics[topicIndex]
		topicIndex++

		if param.AbiType.Size() != wordSize || param.AbiType.Kind == AbiKindTuple ||
			param.AbiType.Kind == AbiKindSparseArray {
			out[key] = Hash(topic)
			continue
		}

		val, err := decodeAbiValue(param.AbiType, topic[:])
		if err != nil {
			return nil, err
		}
		out[key] = val
	}

	return out, nil
}

func (self Word) hexNo0x() string {
	return string(HexEncode(self[:])[2:])
}
