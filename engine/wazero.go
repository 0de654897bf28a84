package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/errors"
)

// guestMount is where the staging directory appears inside the engine.
const guestMount = "/work"

// Engine wraps a wazero runtime configured for the mmg engine binary.
type Engine struct {
	runtime wazero.Runtime
}

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages
	// (64KB each). 0 means the wazero default (4GB).
	MemoryLimitPages uint32

	// StageDir is the host directory mounted into the guest for
	// filename-addressed load/save. Empty means a fresh temp directory
	// per instance.
	StageDir string
}

// New creates an engine runtime.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	return &Engine{runtime: runtime}, nil
}

// Close releases all engine resources. All instances must be closed first.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Load compiles the mmg engine binary.
func (e *Engine) Load(ctx context.Context, wasmBytes []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}
	return &Module{engine: e, compiled: compiled}, nil
}

// Module is a compiled mmg engine binary.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// Instantiate creates a running engine instance with its own linear
// memory and staging directory.
func (m *Module) Instantiate(ctx context.Context, cfg *Config) (*Instance, error) {
	stageDir := ""
	ownsStage := false
	if cfg != nil {
		stageDir = cfg.StageDir
	}
	if stageDir == "" {
		dir, err := os.MkdirTemp("", "mmgwasm-stage-*")
		if err != nil {
			return nil, fmt.Errorf("create stage dir: %w", err)
		}
		stageDir = dir
		ownsStage = true
	}

	modConfig := wazero.NewModuleConfig().
		WithName(""). // anonymous for parallel instantiation
		WithFSConfig(wazero.NewFSConfig().WithDirMount(stageDir, guestMount))

	instance, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		if ownsStage {
			os.RemoveAll(stageDir)
		}
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}

	inst := &Instance{
		instance:  instance,
		funcCache: make(map[string]api.Function),
		stackBuf:  make([]uint64, 16),
		stageDir:  stageDir,
		ownsStage: ownsStage,
	}

	if mem := instance.Memory(); mem != nil {
		inst.memory = &WazeroMemory{mem: mem}
	}

	// Emscripten builds export malloc/free either bare or underscored.
	inst.allocFn = firstExport(instance, "malloc", "_malloc")
	inst.freeFn = firstExport(instance, "free", "_free")
	if inst.allocFn == nil || inst.freeFn == nil {
		instance.Close(ctx)
		if ownsStage {
			os.RemoveAll(stageDir)
		}
		return nil, fmt.Errorf("engine binary exports no malloc/free pair")
	}

	return inst, nil
}

func firstExport(m api.Module, names ...string) api.Function {
	for _, n := range names {
		if fn := m.ExportedFunction(n); fn != nil {
			return fn
		}
	}
	return nil
}

// Instance is a running engine.
// It is NOT safe for concurrent use from multiple goroutines.
type Instance struct {
	instance  api.Module
	memory    *WazeroMemory
	allocFn   api.Function
	freeFn    api.Function
	funcCache map[string]api.Function
	stackBuf  []uint64
	stageDir  string
	ownsStage bool
}

var _ Caller = (*Instance)(nil)

// Call invokes an exported entry point by name with raw stack values.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn, ok := i.funcCache[name]
	if !ok {
		fn = i.instance.ExportedFunction(name)
		if fn == nil {
			return nil, errors.New(errors.PhaseEngine, errors.KindNotFound).
				Detail("entry point %q not exported by engine", name).
				Build()
		}
		i.funcCache[name] = fn
	}

	nResults := len(fn.Definition().ResultTypes())
	n := len(args)
	if n < nResults {
		n = nResults
	}
	if n > len(i.stackBuf) {
		i.stackBuf = make([]uint64, n)
	}
	stack := i.stackBuf[:n]
	copy(stack, args)
	for j := len(args); j < n; j++ {
		stack[j] = 0
	}

	if err := fn.CallWithStack(ctx, stack); err != nil {
		return nil, errors.EngineFailure(name, err)
	}

	results := make([]uint64, nResults)
	copy(results, stack[:nResults])
	return results, nil
}

// Memory returns the instance's linear memory.
func (i *Instance) Memory() mmgwasm.Memory {
	return i.memory
}

// Alloc reserves size bytes via the engine's exported malloc.
func (i *Instance) Alloc(ctx context.Context, size uint32) (uint32, error) {
	i.stackBuf[0] = uint64(size)
	if err := i.allocFn.CallWithStack(ctx, i.stackBuf[:1]); err != nil {
		return 0, errors.EngineFailure("malloc", err)
	}
	ptr := uint32(i.stackBuf[0])
	if ptr == 0 {
		return 0, errors.New(errors.PhaseEngine, errors.KindEngineFailure).
			Detail("malloc(%d) returned null", size).
			Build()
	}
	return ptr, nil
}

// Free releases a block via the engine's exported free.
func (i *Instance) Free(ctx context.Context, ptr uint32) error {
	if ptr == 0 {
		return errors.New(errors.PhaseTransfer, errors.KindInvalidData).
			Detail("free of null offset").
			Build()
	}
	i.stackBuf[0] = uint64(ptr)
	if err := i.freeFn.CallWithStack(ctx, i.stackBuf[:1]); err != nil {
		Logger().Warn("free failed",
			zap.Uint32("ptr", ptr),
			zap.Error(err))
		return errors.EngineFailure("free", err)
	}
	return nil
}

// WriteFile stages a file into the directory the engine sees as /work.
func (i *Instance) WriteFile(name string, data []byte) error {
	return os.WriteFile(filepath.Join(i.stageDir, filepath.Base(name)), data, 0o644)
}

// ReadFile reads a staged file back.
func (i *Instance) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(i.stageDir, filepath.Base(name)))
}

// GuestPath translates a storage name into the path the engine sees.
func (i *Instance) GuestPath(name string) string {
	return path.Join(guestMount, filepath.Base(name))
}

// Version reports the engine's library version via the mmg_version export.
func (i *Instance) Version(ctx context.Context) (string, error) {
	results, err := i.Call(ctx, "mmg_version")
	if err != nil {
		return "", err
	}
	return i.readCString(uint32(results[0]))
}

// WrapperVersion reports the wasm wrapper layer's version via the
// mmgwasm_version export.
func (i *Instance) WrapperVersion(ctx context.Context) (string, error) {
	results, err := i.Call(ctx, "mmgwasm_version")
	if err != nil {
		return "", err
	}
	return i.readCString(uint32(results[0]))
}

func (i *Instance) readCString(offset uint32) (string, error) {
	var out []byte
	for {
		b, err := i.memory.Read(offset+uint32(len(out)), 1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(out), nil
		}
		out = append(out, b[0])
	}
}

// Close releases the instance, its memory and its staging directory.
func (i *Instance) Close(ctx context.Context) error {
	var firstErr error
	if i.instance != nil {
		if err := i.instance.Close(ctx); err != nil {
			firstErr = err
		}
		i.instance = nil
	}
	if i.ownsStage && i.stageDir != "" {
		if err := os.RemoveAll(i.stageDir); err != nil && firstErr == nil {
			firstErr = err
		}
		i.stageDir = ""
	}
	i.funcCache = nil
	i.memory = nil
	i.allocFn = nil
	i.freeFn = nil
	return firstErr
}

// WazeroMemory wraps wazero memory to implement mmgwasm.Memory.
type WazeroMemory struct {
	mem api.Memory
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if ok := m.mem.Write(offset, data); !ok {
		return errors.OutOfBounds(offset, uint32(len(data)))
	}
	return nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(offset, 4)
	}
	return val, nil
}

func (m *WazeroMemory) ReadU64(offset uint32) (uint64, error) {
	val, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(offset, 8)
	}
	return val, nil
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	if ok := m.mem.WriteUint32Le(offset, value); !ok {
		return errors.OutOfBounds(offset, 4)
	}
	return nil
}

func (m *WazeroMemory) WriteU64(offset uint32, value uint64) error {
	if ok := m.mem.WriteUint64Le(offset, value); !ok {
		return errors.OutOfBounds(offset, 8)
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// Compile-time checks.
var _ mmgwasm.Memory = (*WazeroMemory)(nil)
var _ mmgwasm.MemorySizer = (*WazeroMemory)(nil)
