package evaluator

import (
	"context"

	"github.com/fhirpath-go/fhirpath/pkg/registry"
	"github.com/fhirpath-go/fhirpath/pkg/schema"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// TraceFunc receives trace(name, value) calls made during evaluation.
type TraceFunc func(name string, value types.Value)

// evalContext is the concrete implementation of registry.EvalContext. It
// mirrors the teacher's parent-chain EvalContext (lazy binding map, shared
// root, depth counter) generalized from JSONata's untyped interface{} data
// to a typed Value and from $/%-binding semantics to FHIRPath's $this/
// $index/total/user-variable model.
//
// Two distinct mutation disciplines coexist here, matching the two ways
// FHIRPath scopes a new binding (spec §5):
//   - WithVariable returns a brand new child context layered over the
//     receiver via parent, used by aggregate()'s per-iteration rebinding of
//     `total` and any other callback that must not let its binding leak
//     back into the caller's scope.
//   - DefineVariable mutates the receiver's own binding map in place. It
//     backs defineVariable(), whose binding must remain visible to every
//     subsequent step evaluated through this same *evalContext pointer (the
//     rest of the enclosing pipeline) without becoming visible to sibling
//     branches that hold a different context value.
type evalContext struct {
	goCtx context.Context
	reg   *registry.Registry
	sch   schema.Provider
	trace TraceFunc

	current types.Value
	index   int
	total   types.Value
	root    types.Value

	vars   map[string]types.Value
	parent *evalContext

	depth    int
	maxDepth int
}

func newRootContext(goCtx context.Context, reg *registry.Registry, sch schema.Provider, trace TraceFunc, input types.Value, maxDepth int) *evalContext {
	return &evalContext{
		goCtx:    goCtx,
		reg:      reg,
		sch:      sch,
		trace:    trace,
		current:  input,
		root:     input,
		maxDepth: maxDepth,
	}
}

func (c *evalContext) Context() context.Context     { return c.goCtx }
func (c *evalContext) CurrentInput() types.Value     { return c.current }
func (c *evalContext) RootResource() types.Value     { return c.root }
func (c *evalContext) Registry() *registry.Registry  { return c.reg }
func (c *evalContext) Schema() schema.Provider        { return c.sch }

func (c *evalContext) Trace(name string, value types.Value) {
	if c.trace != nil {
		c.trace(name, value)
	}
}

// Variable resolves $this/$index/total, the environment variables
// (%resource, %rootResource, %context), and user-defined variables bound by
// defineVariable() or a lambda parameter, walking the parent chain.
func (c *evalContext) Variable(name string) (types.Value, bool) {
	switch name {
	case "this":
		return c.current, true
	case "index":
		return types.NewInteger(int64(c.index)), true
	case "context":
		return c.current, true
	case "resource", "rootResource":
		return c.root, true
	}
	for cc := c; cc != nil; cc = cc.parent {
		if cc.vars != nil {
			if v, ok := cc.vars[name]; ok {
				return v, true
			}
		}
		if name == "total" && !cc.total.IsEmpty() {
			return cc.total, true
		}
	}
	return types.Empty, false
}

func (c *evalContext) WithVariable(name string, value types.Value) registry.EvalContext {
	return &evalContext{
		goCtx: c.goCtx, reg: c.reg, sch: c.sch, trace: c.trace,
		current: c.current, index: c.index, total: c.total, root: c.root,
		parent: c, vars: map[string]types.Value{name: value},
		depth: c.depth, maxDepth: c.maxDepth,
	}
}

// DefineVariable implements defineVariable()'s mutate-in-place scoping: it
// widens the receiver itself, so anything evaluated afterward through this
// same *evalContext value (the rest of the pipeline this call is part of)
// observes the new binding, per [[defineVariable-scope]] in DESIGN.md.
func (c *evalContext) DefineVariable(name string, value types.Value) {
	if c.vars == nil {
		c.vars = make(map[string]types.Value, 1)
	}
	c.vars[name] = value
}

// withItem builds the per-element scope used by lambda-taking operations
// (where/select/all/any/repeat/aggregate): a child context with $this/
// $index/total rebound, so a nested defineVariable call can widen the
// lambda's own scope without touching the caller's.
func (c *evalContext) withItem(item types.Value, index int, total types.Value) *evalContext {
	return &evalContext{
		goCtx: c.goCtx, reg: c.reg, sch: c.sch, trace: c.trace,
		current: item, index: index, total: total, root: c.root,
		parent: c, depth: c.depth, maxDepth: c.maxDepth,
	}
}

func (c *evalContext) EvaluateLambda(body *types.ASTNode, item types.Value, index int, total types.Value) (types.Value, error) {
	child := c.withItem(item, index, total)
	return evalNode(child, body)
}

func (c *evalContext) EvaluateIn(node *types.ASTNode) (types.Value, error) {
	return evalNode(c, node)
}
