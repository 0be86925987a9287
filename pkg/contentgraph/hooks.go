package contentgraph

import (
	"context"
)

// Hooks lets callers extend removal behavior without modifying core code.
// Before hooks run ahead of the built-in cascade and may veto the removal by
// returning an error; After hooks run once the record is gone.
type Hooks struct {
	BeforeContentRemove []ContentRemoveHook
	AfterContentRemove  []ContentRemoveHook
	BeforeImageRemove   []ImageRemoveHook
	AfterImageRemove    []ImageRemoveHook
	OnError             []ErrorHook
}

// HookContext carries information through the hook chain
type HookContext struct {
	Context   context.Context
	Metadata  map[string]interface{} // Custom metadata passed between hooks
	StopChain bool                   // Set to true to stop processing remaining hooks
}

// NewHookContext creates a new hook context
func NewHookContext(ctx context.Context) *HookContext {
	return &HookContext{
		Context:  ctx,
		Metadata: make(map[string]interface{}),
	}
}

// ContentRemoveHook is called around the removal of a content
type ContentRemoveHook func(hctx *HookContext, content *Content) error

// ImageRemoveHook is called around the removal of an image
type ImageRemoveHook func(hctx *HookContext, image *Image) error

// ErrorHook is called when an operation fails
type ErrorHook func(hctx *HookContext, operation string, err error)

func (h *Hooks) runContentHooks(ctx context.Context, hooks []ContentRemoveHook, content *Content) error {
	if h == nil || len(hooks) == 0 {
		return nil
	}
	hctx := NewHookContext(ctx)
	for _, hook := range hooks {
		if err := hook(hctx, content); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) runImageHooks(ctx context.Context, hooks []ImageRemoveHook, image *Image) error {
	if h == nil || len(hooks) == 0 {
		return nil
	}
	hctx := NewHookContext(ctx)
	for _, hook := range hooks {
		if err := hook(hctx, image); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeBeforeContentRemove(ctx context.Context, content *Content) error {
	if h == nil {
		return nil
	}
	return h.runContentHooks(ctx, h.BeforeContentRemove, content)
}

func (h *Hooks) executeAfterContentRemove(ctx context.Context, content *Content) error {
	if h == nil {
		return nil
	}
	return h.runContentHooks(ctx, h.AfterContentRemove, content)
}

func (h *Hooks) executeBeforeImageRemove(ctx context.Context, image *Image) error {
	if h == nil {
		return nil
	}
	return h.runImageHooks(ctx, h.BeforeImageRemove, image)
}

func (h *Hooks) executeAfterImageRemove(ctx context.Context, image *Image) error {
	if h == nil {
		return nil
	}
	return h.runImageHooks(ctx, h.AfterImageRemove, image)
}

// executeOnError runs all OnError hooks; they cannot fail
func (h *Hooks) executeOnError(ctx context.Context, operation string, err error) {
	if h == nil || len(h.OnError) == 0 || err == nil {
		return
	}
	hctx := NewHookContext(ctx)
	for _, hook := range h.OnError {
		hook(hctx, operation, err)
		if hctx.StopChain {
			break
		}
	}
}
