package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"

	"github.com/drifter/server/internal/mathx"
	"github.com/drifter/server/internal/world"
)

// Engine runs world-generation hooks written in Lua. A gopher-lua VM is not
// safe for concurrent use and chunks are generated on several workers, so the
// engine compiles the scripts once and hands each call its own VM from a
// pool.
type Engine struct {
	seed   int64
	protos []*lua.FunctionProto
	files  []string
	log    *zap.Logger

	pool    chan *lua.LState
	mu      sync.Mutex
	closed  bool
	created atomic.Int64

	hasChance bool
	failed    sync.Map // hook name -> struct{}; first failure per hook is logged
}

// NewEngine compiles every .lua file in scriptsDir. A missing directory
// yields an engine without hooks.
func NewEngine(scriptsDir string, seed int64, poolSize int, log *zap.Logger) (*Engine, error) {
	if poolSize < 1 {
		poolSize = 1
	}
	e := &Engine{
		seed: seed,
		log:  log,
		pool: make(chan *lua.LState, poolSize),
	}
	if err := e.loadDir(scriptsDir); err != nil {
		return nil, fmt.Errorf("load world scripts: %w", err)
	}

	// Probe once so calls can skip VM checkout when no hook is defined.
	L, err := e.newState()
	if err != nil {
		return nil, err
	}
	e.hasChance = L.GetGlobal("structure_chance") != lua.LNil
	e.put(L)
	return e, nil
}

// loadDir compiles all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		proto, err := compileFile(path)
		if err != nil {
			return err
		}
		e.protos = append(e.protos, proto)
		e.files = append(e.files, path)
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

func compileFile(path string) (*lua.FunctionProto, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	chunk, err := parse.Parse(f, path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	return proto, nil
}

// newState builds a VM with the API globals and runs every script in it.
func (e *Engine) newState() (*lua.LState, error) {
	L := lua.NewState()
	L.SetGlobal("API_VERSION", lua.LNumber(1))
	L.SetGlobal("WORLD_SEED", lua.LNumber(e.seed))
	L.SetGlobal("hash_unit", L.NewFunction(e.luaHashUnit))
	for i, proto := range e.protos {
		L.Push(L.NewFunctionFromProto(proto))
		if err := L.PCall(0, lua.MultRet, nil); err != nil {
			L.Close()
			return nil, fmt.Errorf("run %s: %w", e.files[i], err)
		}
	}
	e.created.Add(1)
	return L, nil
}

// luaHashUnit exposes the positional hash: hash_unit(x, y, salt) -> [0,1).
func (e *Engine) luaHashUnit(L *lua.LState) int {
	x := L.CheckInt64(1)
	y := L.OptInt64(2, 0)
	salt := L.OptInt64(3, 0)
	L.Push(lua.LNumber(mathx.UnitAt(e.seed, x, y, uint64(salt))))
	return 1
}

func (e *Engine) get() (*lua.LState, error) {
	select {
	case L := <-e.pool:
		return L, nil
	default:
		return e.newState()
	}
}

func (e *Engine) put(L *lua.LState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		L.Close()
		return
	}
	select {
	case e.pool <- L:
	default:
		L.Close()
	}
}

// HasStructureChance reports whether a structure_chance hook is loaded.
func (e *Engine) HasStructureChance() bool { return e.hasChance }

// StructureChance calls structure_chance(name, biome, chunk_index, base).
// Without the hook, on a Lua error or a non-numeric result, base is
// returned. Results are clamped to [0, 1].
func (e *Engine) StructureChance(name string, biome world.Biome, chunkIndex int, base float64) float64 {
	if !e.hasChance {
		return base
	}
	L, err := e.get()
	if err != nil {
		e.logOnce("structure_chance", err)
		return base
	}
	defer e.put(L)

	fn := L.GetGlobal("structure_chance")
	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(name), lua.LString(biome.String()), lua.LNumber(chunkIndex), lua.LNumber(base)); err != nil {
		e.logOnce("structure_chance", err)
		return base
	}
	ret := L.Get(-1)
	L.Pop(1)
	n, ok := ret.(lua.LNumber)
	if !ok {
		e.logOnce("structure_chance", fmt.Errorf("returned %s, want number", ret.Type()))
		return base
	}
	v := float64(n)
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func (e *Engine) logOnce(hook string, err error) {
	if _, seen := e.failed.LoadOrStore(hook, struct{}{}); seen {
		return
	}
	e.log.Error("lua hook failed, using default", zap.String("hook", hook), zap.Error(err))
}

// Scripts returns the loaded script paths.
func (e *Engine) Scripts() []string { return e.files }

// VMs returns how many VMs have been created.
func (e *Engine) VMs() int64 { return e.created.Load() }

// Close releases pooled VMs. VMs in use are closed when returned.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for {
		select {
		case L := <-e.pool:
			L.Close()
		default:
			return
		}
	}
}
