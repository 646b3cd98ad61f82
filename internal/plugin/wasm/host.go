package wasm

import (
	"context"
	"encoding/json"
	"fmt"

	extism "github.com/extism/go-sdk"

	v1 "github.com/mmiszy/proto/internal/plugin/contracts/v1"
	"github.com/mmiszy/proto/internal/plugin/hostfn"
)

// HostFunctions binds the host capability set for the plugin of tool id.
// A failing host function traps the calling plugin, which surfaces as a call error.
func HostFunctions(id string, host *hostfn.Functions) []extism.HostFunction {
	if host == nil {
		host = hostfn.New()
	}

	trace := extism.NewHostFunctionWithStack(v1.HostTrace,
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			raw, err := p.ReadBytes(stack[0])
			if err != nil {
				panic(fmt.Errorf("trace: unable to read input: %w", err))
			}
			host.Trace(ctx, id, traceMessage(raw))
		},
		[]extism.ValueType{extism.ValueTypePTR},
		[]extism.ValueType{},
	)

	execCommand := extism.NewHostFunctionWithStack(v1.HostExecCommand,
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			var input v1.ExecCommandInput
			readJSON(p, stack[0], v1.HostExecCommand, &input)
			output, err := host.ExecCommand(ctx, input)
			if err != nil {
				panic(fmt.Errorf("%s: %w", v1.HostExecCommand, err))
			}
			stack[0] = writeJSON(p, v1.HostExecCommand, output)
		},
		[]extism.ValueType{extism.ValueTypePTR},
		[]extism.ValueType{extism.ValueTypePTR},
	)

	fetchURL := extism.NewHostFunctionWithStack(v1.HostFetchURL,
		func(ctx context.Context, p *extism.CurrentPlugin, stack []uint64) {
			var input v1.FetchURLInput
			readJSON(p, stack[0], v1.HostFetchURL, &input)
			data, err := host.FetchURL(ctx, input.URL)
			if err != nil {
				panic(fmt.Errorf("%s: %w", v1.HostFetchURL, err))
			}
			offset, err := p.WriteBytes(data)
			if err != nil {
				panic(fmt.Errorf("%s: unable to write output: %w", v1.HostFetchURL, err))
			}
			stack[0] = offset
		},
		[]extism.ValueType{extism.ValueTypePTR},
		[]extism.ValueType{extism.ValueTypePTR},
	)

	functions := []extism.HostFunction{trace, execCommand, fetchURL}
	for i := range functions {
		functions[i].SetNamespace(v1.HostFunctionsNS)
	}
	return functions
}

// traceMessage accepts a JSON string, a {"message": ...} object or plain text.
func traceMessage(raw []byte) string {
	var message string
	if err := json.Unmarshal(raw, &message); err == nil {
		return message
	}
	var input v1.TraceInput
	if err := json.Unmarshal(raw, &input); err == nil && input.Message != "" {
		return input.Message
	}
	return string(raw)
}

func readJSON(p *extism.CurrentPlugin, offset uint64, name string, v any) {
	raw, err := p.ReadBytes(offset)
	if err != nil {
		panic(fmt.Errorf("%s: unable to read input: %w", name, err))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		panic(fmt.Errorf("%s: invalid input: %w", name, err))
	}
}

func writeJSON(p *extism.CurrentPlugin, name string, v any) uint64 {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("%s: unable to marshal output: %w", name, err))
	}
	offset, err := p.WriteBytes(data)
	if err != nil {
		panic(fmt.Errorf("%s: unable to write output: %w", name, err))
	}
	return offset
}
