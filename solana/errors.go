package solana

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var (
	// ErrTimeout indicates that no terminal status of a transaction was
	// observed within the wait timeout.
	ErrTimeout = fmt.Errorf("timeout")

	// ErrProgramNotFound indicates that the program has no interface
	// definition account on the cluster.
	ErrProgramNotFound = fmt.Errorf("program interface not found")

	// ErrMissingCredential indicates that a required signing key was not
	// provided.
	ErrMissingCredential = fmt.Errorf("missing credential")

	// ErrAccountNotFound indicates that an account does not exist.
	ErrAccountNotFound = fmt.Errorf("account not found")

	// ErrUUIDCollision indicates that a short uuid is already used by a known
	// machine.
	ErrUUIDCollision = fmt.Errorf("short uuid collision")
)

// Candy machine program errors.
var (
	ErrIncorrectOwner                = fmt.Errorf("account does not have correct owner")
	ErrUninitialized                 = fmt.Errorf("account is not initialized")
	ErrMintMismatch                  = fmt.Errorf("mint mismatch")
	ErrIndexGreaterThanLength        = fmt.Errorf("index greater than length")
	ErrConfigMustHaveAtleastOneEntry = fmt.Errorf("config must have at least one entry")
	ErrNumericalOverflow             = fmt.Errorf("numerical overflow")
	ErrTooManyCreators               = fmt.Errorf("too many creators")
	ErrUUIDMustBeExactly6Length      = fmt.Errorf("uuid must be exactly of 6 length")
	ErrNotEnoughTokens               = fmt.Errorf("not enough tokens to pay for this minting")
	ErrNotEnoughSOL                  = fmt.Errorf("not enough SOL to pay for this minting")
	ErrTokenTransferFailed           = fmt.Errorf("token transfer failed")
	ErrCandyMachineEmpty             = fmt.Errorf("candy machine is empty")
	ErrCandyMachineNotLiveYet        = fmt.Errorf("candy machine is not live yet")
	ErrConfigLineMismatch            = fmt.Errorf("number of config lines must be at least number of items available")
)

var customErrorMap = map[int]error{
	300: ErrIncorrectOwner,
	301: ErrUninitialized,
	302: ErrMintMismatch,
	303: ErrIndexGreaterThanLength,
	304: ErrConfigMustHaveAtleastOneEntry,
	305: ErrNumericalOverflow,
	306: ErrTooManyCreators,
	307: ErrUUIDMustBeExactly6Length,
	308: ErrNotEnoughTokens,
	309: ErrNotEnoughSOL,
	310: ErrTokenTransferFailed,
	311: ErrCandyMachineEmpty,
	312: ErrCandyMachineNotLiveYet,
	313: ErrConfigLineMismatch,
}

// ConfirmationError is returned when the cluster reports that a transaction
// was executed with an error.
type ConfirmationError struct {
	Signature solana.Signature
	Slot      uint64

	// Raw error value reported by the cluster.
	Value interface{}
}

func (e *ConfirmationError) Error() string {
	if err := parseErrorValue(e.Value); err != nil {
		return fmt.Sprintf("transaction %s failed in slot %d: %v", e.Signature, e.Slot, err)
	}
	return fmt.Sprintf("transaction %s failed in slot %d: %v", e.Signature, e.Slot, e.Value)
}

// Unwrap returns the program error the value maps to, if any.
func (e *ConfirmationError) Unwrap() error {
	return parseErrorValue(e.Value)
}

// MintError wraps any failure of a mint transaction.
type MintError struct {
	Signature solana.Signature
	Cause     error
}

func (e *MintError) Error() string {
	if e.Signature.IsZero() {
		return fmt.Sprintf("failed to mint token: %v", e.Cause)
	}
	return fmt.Sprintf("failed to mint token in %s: %v", e.Signature, e.Cause)
}

func (e *MintError) Unwrap() error {
	return e.Cause
}

// parsePreflightError maps a program error reported by preflight simulation
// to its sentinel. The RPC error stays in the chain.
func parsePreflightError(origErr error) error {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(origErr, &rpcErr) {
		return origErr
	}
	dataMap, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return origErr
	}
	errVal, ok := dataMap["err"]
	if !ok {
		return origErr
	}
	if err := parseErrorValue(errVal); err != nil {
		return fmt.Errorf("%w: %w", err, origErr)
	}
	return origErr
}

func parseErrorValue(errorValue interface{}) error {
	if errorValue == nil {
		return nil
	}
	errMap, ok := errorValue.(map[string]interface{})
	if !ok {
		return nil
	}
	instructionErrorVal, ok := errMap["InstructionError"]
	if !ok {
		return nil
	}
	instructionErrorSlice, ok := instructionErrorVal.([]interface{})
	if !ok {
		return nil
	}
	if len(instructionErrorSlice) < 2 {
		return nil
	}
	if err := decodeCustomError(instructionErrorSlice); err != nil {
		return err
	}
	return nil
}

func decodeCustomError(instructionErrorSlice []interface{}) error {
	customErrorStructMap, ok := instructionErrorSlice[1].(map[string]interface{})
	if !ok {
		return nil
	}
	if len(customErrorStructMap) != 1 {
		return nil
	}
	errorCodeRaw, ok := customErrorStructMap["Custom"]
	if !ok {
		return nil
	}

	var errorCode int
	switch errorCodeNum := errorCodeRaw.(type) {
	case json.Number: // This type comes from a Preflight error
		errorCode64, err2 := errorCodeNum.Int64()
		if err2 != nil {
			return nil
		}
		errorCode = int(errorCode64)
	case float64: // This type comes from a Transaction error
		errorCode = int(errorCodeNum)
	default:
		return nil
	}

	mappedErr, ok := customErrorMap[errorCode]
	if !ok {
		return nil
	}
	return mappedErr
}
