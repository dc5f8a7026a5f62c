// Package plugin lets operators replace the classifier's tokenizer with a Lua script,
// so tokenization rules can change without recompiling the service. A script must
// define a "tokenize" function taking the normalized text and returning a table of
// token strings.
package plugin

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Tokenizer runs a Lua-scripted tokenize function. The Lua VM is not reentrant, so
// calls are serialized internally; the classifier may be used concurrently for reads
// and still share one Tokenizer.
type Tokenizer struct {
	vm *lua.LState
	fn *lua.LFunction
	mu sync.Mutex
}

// NewTokenizer loads the script and extracts its tokenize function.
func NewTokenizer(path string) (*Tokenizer, error) {
	vm := lua.NewState()
	if err := vm.DoFile(path); err != nil {
		vm.Close()
		return nil, fmt.Errorf("failed to load lua tokenizer script: %w", err)
	}

	fn := vm.GetGlobal("tokenize")
	if fn.Type() != lua.LTFunction {
		vm.Close()
		return nil, fmt.Errorf("script %s must define a 'tokenize' function", path)
	}

	return &Tokenizer{vm: vm, fn: fn.(*lua.LFunction)}, nil
}

// Tokenize calls the scripted function and converts its table result to a token slice.
// Script failures and non-table results produce no tokens; the document still counts
// toward the model's document totals, matching the classifier's empty-text behavior.
func (t *Tokenizer) Tokenize(text string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.vm.CallByParam(lua.P{Fn: t.fn, NRet: 1, Protect: true}, lua.LString(text)); err != nil {
		return nil
	}

	res := t.vm.Get(-1)
	t.vm.Pop(1)

	table, ok := res.(*lua.LTable)
	if !ok {
		return nil
	}

	var tokens []string
	table.ForEach(func(_, value lua.LValue) {
		if s, ok := value.(lua.LString); ok {
			tokens = append(tokens, string(s))
		}
	})
	return tokens
}

// Close cleans up the Lua VM.
func (t *Tokenizer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.vm.Close()
	return nil
}
