package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/buffer"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/dop251/goja_nodejs/url"
	_ "github.com/dop251/goja_nodejs/util"

	"github.com/shehryarbajwa/chromeserver/internal/browser"
)

// HandlerExport is the name of the entry point a script module must export
const HandlerExport = "handler"

// GojaLoader runs scripts in an embedded JavaScript engine with a Node-style
// event loop, so async handlers, promises and timers work as expected
type GojaLoader struct{}

// NewGojaLoader creates a loader
func NewGojaLoader() *GojaLoader {
	return &GojaLoader{}
}

// Load binds a unit to the script file at path. The file is read when the unit runs.
func (GojaLoader) Load(path string) (Unit, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &LoadError{Err: err}
	}
	if info.IsDir() {
		return nil, &LoadError{Err: fmt.Errorf("%s is a directory", abs)}
	}
	return &gojaUnit{path: filepath.Clean(abs)}, nil
}

type gojaUnit struct {
	path string
}

// loadSource only serves the unit's own file, so a script cannot require
// other files from the host
func (u *gojaUnit) loadSource(p string) ([]byte, error) {
	if filepath.Clean(filepath.FromSlash(p)) != u.path {
		return nil, require.ModuleFileDoesNotExistError
	}
	return os.ReadFile(u.path)
}

// Run evaluates the module, calls handler(ctx, ctx, browser) and waits until
// the returned promise settles. Timers still pending at that point are
// dropped. A done ctx interrupts the script.
func (u *gojaUnit) Run(ctx context.Context, job JobContext, sb browser.Sandbox) error {
	registry := require.NewRegistry(require.WithLoader(u.loadSource))
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&logPrinter{logger: job.Logger()}))

	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(false),
	)

	var (
		vm       *goja.Runtime
		bindings *contextBinding
		promise  *goja.Promise
		startErr error
		stop     func() bool
		once     sync.Once
	)
	settled := make(chan struct{})
	settle := func() { once.Do(func() { close(settled) }) }

	loop.Start()
	loop.RunOnLoop(func(rt *goja.Runtime) {
		// a panic here would take down the loop goroutine and the process
		defer func() {
			if r := recover(); r != nil {
				startErr = &ExecutionError{Message: fmt.Sprintf("panic: %v", r)}
				settle()
			}
		}()

		vm = rt
		stop = context.AfterFunc(ctx, func() {
			rt.Interrupt(ctx.Err())
		})

		rt.Set("console", require.Require(rt, console.ModuleName))
		buffer.Enable(rt)
		url.Enable(rt)

		bindings = newContextBinding(rt, ctx, job)
		promise, startErr = u.start(rt, registry, bindings, newBrowserBinding(rt, ctx, sb))
		if promise == nil || promise.State() != goja.PromiseStatePending {
			settle()
			return
		}
		onSettled(rt, promise, settle)
	})

	select {
	case <-settled:
	case <-ctx.Done():
	}
	// Terminate also clears pending timers and intervals. No job runs after
	// it returns, so the runtime is ours from here on.
	loop.Terminate()

	if stop != nil {
		stop()
	}
	if bindings == nil {
		if startErr != nil {
			return startErr
		}
		return &ExecutionError{Message: context.Cause(ctx).Error()}
	}
	vm.ClearInterrupt()
	bindings.flush()

	if startErr != nil {
		return startErr
	}
	if promise == nil {
		return nil
	}

	switch promise.State() {
	case goja.PromiseStateRejected:
		return &ExecutionError{Message: valueString(promise.Result())}
	case goja.PromiseStatePending:
		if err := ctx.Err(); err != nil {
			return &ExecutionError{Message: err.Error()}
		}
		return &ExecutionError{Message: "job handler returned a promise that never settled"}
	}
	return nil
}

// onSettled calls fn once p is fulfilled or rejected
func onSettled(vm *goja.Runtime, p *goja.Promise, fn func()) {
	obj := vm.ToValue(p).ToObject(vm)
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		fn()
		return
	}
	cb := vm.ToValue(func(goja.FunctionCall) goja.Value {
		fn()
		return goja.Undefined()
	})
	if _, err := then(obj, cb, cb); err != nil {
		fn()
	}
}

// start loads the module and calls its handler. It returns the handler's
// promise when the handler is async.
func (u *gojaUnit) start(vm *goja.Runtime, registry *require.Registry, ctxObj *contextBinding, browserObj *goja.Object) (*goja.Promise, error) {
	modules := registry.Enable(vm)

	exports, err := modules.Require(u.path)
	if err != nil {
		return nil, &LoadError{Err: errors.New(errorString(err))}
	}

	var handler goja.Value = goja.Undefined()
	if exports != nil && !goja.IsUndefined(exports) && !goja.IsNull(exports) {
		handler = exports.ToObject(vm).Get(HandlerExport)
	}
	fn, ok := goja.AssertFunction(handler)
	if !ok {
		return nil, &ExecutionError{Message: "TypeError: job." + HandlerExport + " is not a function"}
	}

	ret, err := fn(goja.Undefined(), ctxObj.object, ctxObj.object, browserObj)
	if err != nil {
		return nil, &ExecutionError{Message: errorString(err)}
	}

	if ret != nil {
		if p, ok := ret.Export().(*goja.Promise); ok {
			return p, nil
		}
	}
	return nil, nil
}

// errorString renders an engine error the way JavaScript's toString would
func errorString(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return cause.Error()
		}
	}
	var exception *goja.Exception
	if errors.As(err, &exception) && exception.Value() != nil {
		return valueString(exception.Value())
	}
	return err.Error()
}

func valueString(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	return v.String()
}
