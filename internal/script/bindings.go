package script

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/chromeserver/internal/browser"
)

const defaultUploadContentType = "application/octet-stream"

// contextBinding is the script-side view of a JobContext
type contextBinding struct {
	vm     *goja.Runtime
	ctx    context.Context
	job    JobContext
	object *goja.Object

	data    goja.Value
	hasData bool
}

func newContextBinding(vm *goja.Runtime, ctx context.Context, job JobContext) *contextBinding {
	b := &contextBinding{vm: vm, ctx: ctx, job: job, object: vm.NewObject()}
	obj := b.object

	_ = obj.Set("id", job.ID())
	_ = obj.Set("log", func(call goja.FunctionCall) goja.Value {
		job.Log(b.format(call.Arguments))
		return goja.Undefined()
	})
	_ = obj.Set("error", func(call goja.FunctionCall) goja.Value {
		job.Error(b.format(call.Arguments))
		return goja.Undefined()
	})

	params := vm.NewObject()
	for k, v := range job.Params() {
		_ = params.Set(k, v)
	}
	_ = obj.Set("params", params)

	_ = obj.Set("setData", func(call goja.FunctionCall) goja.Value {
		b.setData(call.Argument(0))
		return goja.Undefined()
	})
	_ = obj.DefineAccessorProperty("data",
		vm.ToValue(func(goja.FunctionCall) goja.Value {
			if !b.hasData {
				return goja.Null()
			}
			return b.data
		}),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			b.setData(call.Argument(0))
			return goja.Undefined()
		}),
		goja.FLAG_FALSE, goja.FLAG_TRUE,
	)

	_ = obj.Set("uploadFile", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		payload, err := toBytes(call.Argument(1))
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		contentType := defaultUploadContentType
		if ct := call.Argument(2); !goja.IsUndefined(ct) && !goja.IsNull(ct) {
			contentType = ct.String()
		}

		url, err := job.UploadArtifact(ctx, name, payload, contentType)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(url)
	})

	return b
}

// setData keeps the script's value and records its JSON form right away
func (b *contextBinding) setData(v goja.Value) {
	raw, err := b.snapshot(v)
	if err != nil {
		panic(b.vm.NewTypeError("data is not JSON serializable: " + err.Error()))
	}
	b.data = v
	b.hasData = true
	b.job.RecordResult(raw)
}

// flush records the final state of data, which the script may have mutated
// after assigning it
func (b *contextBinding) flush() {
	if !b.hasData {
		return
	}
	raw, err := b.snapshot(b.data)
	if err != nil {
		b.job.Logger().Warn("keeping earlier data snapshot", zap.Error(err))
		return
	}
	b.job.RecordResult(raw)
}

// snapshot serializes v with the engine's JSON.stringify. Values JSON cannot
// represent (undefined, functions) record as null.
func (b *contextBinding) snapshot(v goja.Value) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	stringify, ok := goja.AssertFunction(b.vm.Get("JSON").ToObject(b.vm).Get("stringify"))
	if !ok {
		return nil, fmt.Errorf("JSON.stringify unavailable")
	}
	out, err := stringify(goja.Undefined(), v)
	if err != nil {
		return nil, fmt.Errorf("%s", errorString(err))
	}
	if out == nil || goja.IsUndefined(out) {
		return nil, nil
	}
	return json.RawMessage(out.String()), nil
}

// format joins console-style arguments. Plain objects are shown as JSON.
func (b *contextBinding) format(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, b.formatValue(arg))
	}
	return strings.Join(parts, " ")
}

func (b *contextBinding) formatValue(v goja.Value) string {
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() == "Error" || obj.ClassName() == "Function" {
		return valueString(v)
	}
	raw, err := b.snapshot(v)
	if err != nil || raw == nil {
		return valueString(v)
	}
	return string(raw.(json.RawMessage))
}

func toBytes(v goja.Value) ([]byte, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("file content is required")
	}
	switch x := v.Export().(type) {
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case goja.ArrayBuffer:
		return x.Bytes(), nil
	default:
		return nil, fmt.Errorf("file content must be a string, ArrayBuffer or Uint8Array, got %T", x)
	}
}

// browserBinding exposes a Sandbox to scripts. Calls block until the browser
// answers; an error becomes a thrown JavaScript Error.
type browserBinding struct {
	vm    *goja.Runtime
	ctx   context.Context
	sb    browser.Sandbox
	pages map[string]*goja.Object
}

func newBrowserBinding(vm *goja.Runtime, ctx context.Context, sb browser.Sandbox) *goja.Object {
	b := &browserBinding{vm: vm, ctx: ctx, sb: sb, pages: map[string]*goja.Object{}}
	obj := vm.NewObject()

	_ = obj.Set("newPage", func(goja.FunctionCall) goja.Value {
		page, err := sb.NewPage(ctx)
		b.check(err)
		return b.page(page)
	})
	_ = obj.Set("pages", func(goja.FunctionCall) goja.Value {
		pages, err := sb.Pages(ctx)
		b.check(err)
		out := make([]any, 0, len(pages))
		for _, p := range pages {
			out = append(out, b.page(p))
		}
		return vm.NewArray(out...)
	})

	return obj
}

func (b *browserBinding) check(err error) {
	if err != nil {
		panic(b.vm.NewGoError(err))
	}
}

// page returns the one script object representing p
func (b *browserBinding) page(p browser.Page) *goja.Object {
	if obj, ok := b.pages[p.ID()]; ok {
		return obj
	}

	vm, ctx := b.vm, b.ctx
	obj := vm.NewObject()
	b.pages[p.ID()] = obj

	str := func(call goja.FunctionCall, i int) string {
		return call.Argument(i).String()
	}

	_ = obj.Set("id", p.ID())
	_ = obj.Set("goto", func(call goja.FunctionCall) goja.Value {
		b.check(p.Navigate(ctx, str(call, 0)))
		return goja.Undefined()
	})
	_ = obj.Set("evaluate", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		expr := arg.String()
		if _, ok := goja.AssertFunction(arg); ok {
			expr = "(" + expr + ")()"
		}
		v, err := p.Evaluate(ctx, expr)
		b.check(err)
		return vm.ToValue(v)
	})
	_ = obj.Set("text", func(call goja.FunctionCall) goja.Value {
		text, err := p.Text(ctx, str(call, 0))
		b.check(err)
		return vm.ToValue(text)
	})
	_ = obj.Set("click", func(call goja.FunctionCall) goja.Value {
		b.check(p.Click(ctx, str(call, 0)))
		return goja.Undefined()
	})
	_ = obj.Set("type", func(call goja.FunctionCall) goja.Value {
		b.check(p.Type(ctx, str(call, 0), str(call, 1)))
		return goja.Undefined()
	})
	_ = obj.Set("waitForSelector", func(call goja.FunctionCall) goja.Value {
		b.check(p.WaitVisible(ctx, str(call, 0)))
		return goja.Undefined()
	})
	_ = obj.Set("title", func(goja.FunctionCall) goja.Value {
		title, err := p.Title(ctx)
		b.check(err)
		return vm.ToValue(title)
	})
	_ = obj.Set("url", func(goja.FunctionCall) goja.Value {
		url, err := p.URL(ctx)
		b.check(err)
		return vm.ToValue(url)
	})
	_ = obj.Set("content", func(goja.FunctionCall) goja.Value {
		html, err := p.HTML(ctx)
		b.check(err)
		return vm.ToValue(html)
	})
	_ = obj.Set("setViewport", func(call goja.FunctionCall) goja.Value {
		opts := call.Argument(0).ToObject(vm)
		b.check(p.SetViewport(ctx, intProp(opts, "width"), intProp(opts, "height")))
		return goja.Undefined()
	})
	_ = obj.Set("screenshot", func(call goja.FunctionCall) goja.Value {
		png, err := p.Screenshot(ctx)
		b.check(err)
		if opts, ok := call.Argument(0).(*goja.Object); ok {
			if enc := opts.Get("encoding"); enc != nil && enc.String() == "base64" {
				return vm.ToValue(base64.StdEncoding.EncodeToString(png))
			}
		}
		return vm.ToValue(vm.NewArrayBuffer(png))
	})
	_ = obj.Set("close", func(goja.FunctionCall) goja.Value {
		b.check(p.Close())
		delete(b.pages, p.ID())
		return goja.Undefined()
	})

	return obj
}

func intProp(obj *goja.Object, name string) int {
	v := obj.Get(name)
	if v == nil {
		return 0
	}
	return int(v.ToInteger())
}
