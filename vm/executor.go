// Package vm implements the gas-metered script executor collaborator
// (spec §6: "a restricted script executor with a gas meter, treated as
// a black-box run(code, func, args, state) -> {state, gas_used, error}").
// It is not consulted by chain validation — deploy/invoke transactions
// already carry their resulting_state on the wire (spec §3); this
// package is what a wallet or RPC caller uses to compute that state
// before building the transaction.
package vm

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// ErrOutOfGas is returned when a script exceeds its gas budget.
var ErrOutOfGas = errors.New("out of gas")

// DefaultGasLimit caps the total gas a single Run call's script may
// report through __spendGas__.
const DefaultGasLimit = 200_000

// Result is the output of a script run.
type Result struct {
	State   json.RawMessage `json:"state"`
	GasUsed uint64          `json:"gas_used"`
	Error   string          `json:"error,omitempty"`
}

// Executor runs deploy/invoke contract code in an isolated goja VM per
// call, metering gas via the interrupt mechanism goja exposes for
// long-running scripts.
type Executor struct {
	gasLimit uint64
}

// NewExecutor creates an Executor with gasLimit (0 -> DefaultGasLimit).
func NewExecutor(gasLimit uint64) *Executor {
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	return &Executor{gasLimit: gasLimit}
}

// Run executes function from code against state, passing args, and
// returns the resulting state and gas used. code must define function
// as a top-level JS function: `function <function>(state, args) { ...
// return state }`.
func (e *Executor) Run(code, function string, args []any, state json.RawMessage) Result {
	vm := goja.New()
	gasUsed := new(uint64)
	vm.SetMaxCallStackSize(256)

	var stateVal any
	if len(state) > 0 {
		if err := json.Unmarshal(state, &stateVal); err != nil {
			return Result{Error: fmt.Sprintf("invalid state: %v", err)}
		}
	}

	if _, err := vm.RunString(code); err != nil {
		return Result{Error: fmt.Sprintf("compile: %v", err)}
	}

	fn, ok := goja.AssertFunction(vm.Get(function))
	if !ok {
		return Result{Error: fmt.Sprintf("function %q not defined", function)}
	}

	e.meter(vm, gasUsed)

	result, err := fn(goja.Undefined(), vm.ToValue(stateVal), vm.ToValue(args))
	if err != nil {
		if errors.Is(err, ErrOutOfGas) || vm.Interrupted() {
			return Result{GasUsed: e.gasLimit, Error: ErrOutOfGas.Error()}
		}
		return Result{GasUsed: *gasUsed, Error: err.Error()}
	}

	exported := result.Export()
	newState, marshalErr := json.Marshal(exported)
	if marshalErr != nil {
		return Result{GasUsed: *gasUsed, Error: marshalErr.Error()}
	}
	return Result{State: newState, GasUsed: *gasUsed}
}

// meter installs a gas counter that interrupts the VM once more than
// gasLimit units have been reported, approximating the gas-metering
// black box rather than instrumenting bytecode.
func (e *Executor) meter(vm *goja.Runtime, gasUsed *uint64) {
	// goja has no per-opcode hook; gas is counted only through the
	// __spendGas__(n) global, which scripts call to report n units.
	// Scripts that never call it are not metered and are not interrupted.
	*gasUsed = 0
	vm.Set("__spendGas__", func(n int64) {
		*gasUsed += uint64(n)
		if *gasUsed > e.gasLimit {
			vm.Interrupt(ErrOutOfGas)
		}
	})
}
