package engine

import (
	"fmt"
)

// SkipResult is the outcome of a skip gate: whether to skip and why.
type SkipResult struct {
	Skip   bool
	Reason string
}

// DontSkip continues execution.
func DontSkip() SkipResult {
	return SkipResult{}
}

// Skip skips the node with the given reason.
func Skip(reason string) SkipResult {
	return SkipResult{Skip: true, Reason: reason}
}

// Node is the runtime behavior bound to a descriptor. The engine drives each
// node through the lifecycle protocol exactly once:
//
//  1. ShouldSkip    — static skip gate, evaluated before anything else
//  2. Prepare       — allocate node-local resources into the context
//  3. ShouldExecute — context-aware skip gate, evaluated after preparation
//  4. Before        — setup hooks; a failure skips the body
//  5. Run           — the body (container children run as part of this phase)
//  6. After         — cleanup hooks, always attempted
//  7. Cleanup       — final teardown, always attempted after After
//
// Failures from any phase are captured by the failure collector, never
// rethrown across node boundaries, except for unrecoverable errors.
// Implementations typically embed DefaultNode and override the phases they
// care about.
type Node interface {
	ShouldSkip(params Parameters) (SkipResult, error)
	Prepare(nctx *NodeContext) error
	ShouldExecute(nctx *NodeContext) (SkipResult, error)
	Before(nctx *NodeContext) error
	Run(nctx *NodeContext) error
	After(nctx *NodeContext) error
	Cleanup(nctx *NodeContext) error
}

// DefaultNode is a Node whose every phase is a no-op. Embed it to implement
// only the phases a node needs.
type DefaultNode struct{}

func (DefaultNode) ShouldSkip(params Parameters) (SkipResult, error)      { return DontSkip(), nil }
func (DefaultNode) Prepare(nctx *NodeContext) error                       { return nil }
func (DefaultNode) ShouldExecute(nctx *NodeContext) (SkipResult, error)   { return DontSkip(), nil }
func (DefaultNode) Before(nctx *NodeContext) error                        { return nil }
func (DefaultNode) Run(nctx *NodeContext) error                           { return nil }
func (DefaultNode) After(nctx *NodeContext) error                         { return nil }
func (DefaultNode) Cleanup(nctx *NodeContext) error                       { return nil }

var _ Node = DefaultNode{}

// FuncNode adapts plain functions to the Node interface; nil fields are
// no-ops. Handy for programmatic trees and tests.
type FuncNode struct {
	OnShouldSkip    func(params Parameters) (SkipResult, error)
	OnPrepare       func(nctx *NodeContext) error
	OnShouldExecute func(nctx *NodeContext) (SkipResult, error)
	OnBefore        func(nctx *NodeContext) error
	OnRun           func(nctx *NodeContext) error
	OnAfter         func(nctx *NodeContext) error
	OnCleanup       func(nctx *NodeContext) error
}

func (n *FuncNode) ShouldSkip(params Parameters) (SkipResult, error) {
	if n.OnShouldSkip == nil {
		return DontSkip(), nil
	}
	return n.OnShouldSkip(params)
}

func (n *FuncNode) Prepare(nctx *NodeContext) error {
	if n.OnPrepare == nil {
		return nil
	}
	return n.OnPrepare(nctx)
}

func (n *FuncNode) ShouldExecute(nctx *NodeContext) (SkipResult, error) {
	if n.OnShouldExecute == nil {
		return DontSkip(), nil
	}
	return n.OnShouldExecute(nctx)
}

func (n *FuncNode) Before(nctx *NodeContext) error {
	if n.OnBefore == nil {
		return nil
	}
	return n.OnBefore(nctx)
}

func (n *FuncNode) Run(nctx *NodeContext) error {
	if n.OnRun == nil {
		return nil
	}
	return n.OnRun(nctx)
}

func (n *FuncNode) After(nctx *NodeContext) error {
	if n.OnAfter == nil {
		return nil
	}
	return n.OnAfter(nctx)
}

func (n *FuncNode) Cleanup(nctx *NodeContext) error {
	if n.OnCleanup == nil {
		return nil
	}
	return n.OnCleanup(nctx)
}

var _ Node = (*FuncNode)(nil)

// bindNode returns the behavior bound to a descriptor: DefaultNode when none
// is attached, or an error when the attached behavior does not implement
// Node (a wiring bug in whoever built the tree).
func bindNode(behavior any) (Node, error) {
	if behavior == nil {
		return DefaultNode{}, nil
	}
	node, ok := behavior.(Node)
	if !ok {
		return nil, fmt.Errorf("descriptor behavior %T does not implement engine.Node", behavior)
	}
	return node, nil
}
