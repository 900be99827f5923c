// Package api binds user-authored Go structs into named APIs: a dotted
// name (e.g. "mycompany.auth") plus the procedures and events it exposes.
// Procedure binding is reflection-based, adapted from the teacher's
// positional (*Args, *Reply) RPC service binder to the bus's kwargs-map
// calling convention.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"corebus/message"
)

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// procedure holds the reflection metadata needed to invoke one bound
// method by name with a kwargs map.
type procedure struct {
	method     reflect.Method
	paramsType reflect.Type // the concrete (non-pointer) struct type of the single kwargs param, or nil if the method takes none
}

// event records the declared shape of one event an API can publish or be
// listened to for. Shape is informational (schema export only); the bus
// does not enforce it at send time and does not cast event kwargs.
type event struct {
	name       string
	paramsType reflect.Type
}

// API is a bound collection of procedures and events under one canonical
// name, ready for registration with an api.Registry and for dispatch by
// dock.RPCResultDock.
type API struct {
	name       string
	rcvr       reflect.Value
	typ        reflect.Type
	procedures map[string]*procedure
	events     map[string]*event
}

// New binds rcvr's exported methods as procedures of the API named name.
// rcvr must be a pointer to a struct. A method qualifies as a procedure
// when its signature is:
//
//	func (receiver) ProcedureName(ctx context.Context) (result, error)
//	func (receiver) ProcedureName(ctx context.Context, params P) (result, error)
//
// where P is a struct (its exported fields become the named kwargs, via
// "json" struct tags or field name). Methods that don't match this shape
// are skipped, not rejected — an API may mix procedures with unrelated
// helper methods.
func New(name string, rcvr any) (*API, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("api: rcvr for %q must be a pointer, got %v", name, typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("api: rcvr for %q must point to a struct, got %v", name, typ.Elem().Kind())
	}

	a := &API{
		name:       name,
		rcvr:       reflect.ValueOf(rcvr),
		typ:        typ,
		procedures: make(map[string]*procedure),
		events:     make(map[string]*event),
	}
	a.bindProcedures()
	return a, nil
}

// bindProcedures scans exported methods for the procedure signature
// shape, registering every match. Mirrors the teacher's
// service.RegisterMethods scan-and-filter loop.
func (a *API) bindProcedures() {
	for i := 0; i < a.typ.NumMethod(); i++ {
		m := a.typ.Method(i)
		ft := m.Type // includes receiver as In(0)

		if ft.NumOut() != 2 || ft.Out(1) != errorType {
			continue
		}
		if ft.NumIn() < 2 || ft.In(1) != ctxType {
			continue
		}
		if ft.NumIn() > 3 {
			continue
		}

		p := &procedure{method: m}
		if ft.NumIn() == 3 {
			paramsType := ft.In(2)
			if paramsType.Kind() != reflect.Struct {
				continue
			}
			p.paramsType = paramsType
		}
		a.procedures[m.Name] = p
	}
}

// DefineEvent records the shape of an event this API publishes, keyed by
// name. paramsType, if non-nil, must be a struct type; its exported
// fields describe the event's kwargs for schema export.
func (a *API) DefineEvent(name string, paramsType reflect.Type) {
	a.events[name] = &event{name: name, paramsType: paramsType}
}

// Name returns the API's canonical dotted name.
func (a *API) Name() string { return a.name }

// Schema exports a description of every bound procedure's and defined
// event's parameter shape, keyed by name, suitable for
// transport.SchemaTransport.Store. Each entry maps a field name (as it
// would appear in kwargs) to its Go type's string form; a nil paramsType
// (a zero-arg procedure) exports an empty field map.
func (a *API) Schema() map[string]any {
	out := make(map[string]any, len(a.procedures)+len(a.events))
	for name, p := range a.procedures {
		out[name] = map[string]any{"kind": "procedure", "params": fieldShape(p.paramsType)}
	}
	for name, e := range a.events {
		out[name] = map[string]any{"kind": "event", "params": fieldShape(e.paramsType)}
	}
	return out
}

func fieldShape(t reflect.Type) map[string]string {
	shape := map[string]string{}
	if t == nil {
		return shape
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}
		fieldName := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok && tag != "" && tag != "-" {
			if idx := bytes.IndexByte([]byte(tag), ','); idx >= 0 {
				fieldName = tag[:idx]
			} else {
				fieldName = tag
			}
		}
		shape[fieldName] = f.Type.String()
	}
	return shape
}

// HasProcedure reports whether procedureName is bound on this API.
func (a *API) HasProcedure(procedureName string) bool {
	_, ok := a.procedures[procedureName]
	return ok
}

// Invoke calls procedureName with kwargs, optionally coercing kwargs into
// the bound method's declared parameter struct first when cast is true.
// Returns the procedure's result value (JSON-roundtrip-safe) or the error
// it returned.
func (a *API) Invoke(ctx context.Context, procedureName string, kwargs message.Kwargs, cast bool) (any, error) {
	p, ok := a.procedures[procedureName]
	if !ok {
		return nil, fmt.Errorf("api %q: no such procedure %q", a.name, procedureName)
	}

	args := []reflect.Value{a.rcvr, reflect.ValueOf(ctx)}
	if p.paramsType != nil {
		paramsVal, err := castKwargs(kwargs, p.paramsType, cast)
		if err != nil {
			return nil, fmt.Errorf("api %q: procedure %q: %w", a.name, procedureName, err)
		}
		args = append(args, paramsVal)
	}

	results := p.method.Func.Call(args)
	resultVal, errVal := results[0], results[1]
	if !errVal.IsNil() {
		return nil, errVal.Interface().(error)
	}
	return resultVal.Interface(), nil
}

// castKwargs coerces a kwargs map into paramsType via a JSON roundtrip:
// marshal the map, unmarshal into a new paramsType value. This is the Go
// realization of the bus's cast_values option — cheap to implement
// correctly because encoding/json already knows how to convert JSON
// scalars into Go's numeric/string/bool/slice/map field types, and struct
// tags give kwargs authors control over the wire name.
//
// cast only decides how unknown kwargs are treated: when cast is false, a
// kwarg with no matching field is an error; when true, it is ignored. In
// both modes a value whose JSON form does not decode into its field's type
// (e.g. a string for an int field) is an error.
func castKwargs(kwargs message.Kwargs, paramsType reflect.Type, cast bool) (reflect.Value, error) {
	raw, err := json.Marshal(kwargs)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("marshal kwargs: %w", err)
	}

	paramsPtr := reflect.New(paramsType)
	dec := json.NewDecoder(bytes.NewReader(raw))
	if !cast {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(paramsPtr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("bind kwargs to %s: %w", paramsType.Name(), err)
	}
	return paramsPtr.Elem(), nil
}
