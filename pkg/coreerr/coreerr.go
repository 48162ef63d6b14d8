// Package coreerr implements the closed error taxonomy shared by every
// ledger package. Every structural failure in this module is constructed
// through New or Wrap so callers can switch on Kind instead of matching
// error strings.
package coreerr

import "fmt"

// Kind classifies a failure. The set is closed; adding a new failure mode
// means adding a new Kind here, not inventing an ad hoc error elsewhere.
type Kind int

const (
	Io Kind = iota
	Serialization
	Deserialization
	InvalidAddress
	InvalidSignature
	InvalidPublicKey
	InvalidMessage
	InvalidTransaction
	InvalidAmount
	InvalidFee
	InvalidInput
	InvalidOutput
	InvalidBlock
	InvalidChain
	BlockNotFound
	HashError
	TimestampError
	TransactionNotFound
	DuplicateTransaction
	CapacityExceeded
	InsufficientFunds
	UTXONotFound
	UTXOError
	Database
)

var kindNames = map[Kind]string{
	Io:                   "Io",
	Serialization:        "Serialization",
	Deserialization:      "Deserialization",
	InvalidAddress:       "InvalidAddress",
	InvalidSignature:     "InvalidSignature",
	InvalidPublicKey:     "InvalidPublicKey",
	InvalidMessage:       "InvalidMessage",
	InvalidTransaction:   "InvalidTransaction",
	InvalidAmount:        "InvalidAmount",
	InvalidFee:           "InvalidFee",
	InvalidInput:         "InvalidInput",
	InvalidOutput:        "InvalidOutput",
	InvalidBlock:         "InvalidBlock",
	InvalidChain:         "InvalidChain",
	BlockNotFound:        "BlockNotFound",
	HashError:            "HashError",
	TimestampError:       "TimestampError",
	TransactionNotFound:  "TransactionNotFound",
	DuplicateTransaction: "DuplicateTransaction",
	CapacityExceeded:     "CapacityExceeded",
	InsufficientFunds:    "InsufficientFunds",
	UTXONotFound:         "UTXONotFound",
	UTXOError:            "UTXOError",
	Database:             "Database",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Error is the concrete error type returned by every package in this
// module. Context carries a human-readable description; Cause, when
// non-nil, is the underlying error this one wraps.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a taxonomy error with no wrapped cause.
func New(kind Kind, context string) *Error {
	return &Error{Kind: kind, Context: context}
}

// Wrap constructs a taxonomy error around an underlying cause.
func Wrap(kind Kind, context string, cause error) *Error {
	return &Error{Kind: kind, Context: context, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == kind
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
