package ethbind

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// Returned by "PostTransaction" and "EstimateGas" on constant functions.
	// Constant functions can only be called.
	ErrConstantFunction = errors.New("constant function can't be transacted")

	// Returned when trying to rebind or redeploy a contract whose address is
	// already set. The address is write-once.
	ErrAddressBound = errors.New("contract address is already bound")

	// Returned by the receipt poller when "ReceiptTimeout" elapses.
	ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")

	// Returned by "Subscribe" after "Close".
	ErrContractClosed = errors.New("contract is closed")
)

// Missing RPC client or ABI when creating a Contract.
type ConstructionError struct {
	Reason string
}

func (self *ConstructionError) Error() string {
	return `failed to create contract: ` + self.Reason
}

/*
Values don't match the ABI types they're being encoded against: arity mismatch,
Go type mismatch, or out-of-range values.
*/
type EncodingError struct {
	Cause error
}

func (self *EncodingError) Error() string {
	return `ABI encoding failed: ` + self.Cause.Error()
}

func (self *EncodingError) Unwrap() error { return self.Cause }

// Input bytes are malformed or truncated relative to the ABI types.
type DecodingError struct {
	Cause error
}

func (self *DecodingError) Error() string {
	return `ABI decoding failed: ` + self.Cause.Error()
}

func (self *DecodingError) Unwrap() error { return self.Cause }

/*
No event descriptor matches a log signature, or a subscription names an event
that isn't in the ABI. For logs, this means the ABI doesn't match the chain;
it's not a transient condition.

Exactly one of "Signature" and "Name" is set.
*/
type UnknownEventError struct {
	Signature string   // hex without "0x"
	Name      string   // requested event name
	Valid     []string // event names in the ABI
}

func (self *UnknownEventError) Error() string {
	if self.Name != "" {
		return fmt.Sprintf(`%v is not a valid event name, subscribe using one of %v (or "" to include all)`,
			self.Name, strings.Join(self.Valid, ", "))
	}
	return fmt.Sprintf(`unable to find event matching signature %v`, self.Signature)
}

/*
The deployment transaction was mined, but there's no contract at the resulting
address. Usually means the constructor reverted.
*/
type DeploymentError struct {
	TxHash  Hash
	Address Address
	Reason  string
}

func (self *DeploymentError) Error() string {
	return fmt.Sprintf(`contract not deployed by transaction %v: %v`, self.TxHash, self.Reason)
}

// Unsubscribing an id that's not registered, usually because it was already
// unsubscribed.
type UnknownSubscriptionError struct {
	Id SubscriptionId
}

func (self *UnknownSubscriptionError) Error() string {
	return fmt.Sprintf(`unknown subscription %v`, self.Id)
}

func encodingErrorf(format string, args ...interface{}) error {
	return &EncodingError{Cause: errors.Errorf(format, args...)}
}

func decodingErrorf(format string, args ...interface{}) error {
	return &DecodingError{Cause: errors.Errorf(format, args...)}
}
