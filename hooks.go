package icap

import (
	"sync"

	"github.com/icapforge/icap/istag"
)

// Supported hook names, per spec §4.5.
const (
	HookOptionsHeaders   = "options_headers"
	HookISTag            = "is_tag"
	HookBeforeHandling   = "before_handling"
	HookBeforeSerialize  = "before_serialization"
)

type hookEntry struct {
	fn       interface{}
	fallback interface{}
}

// Hooks is a table of named extension points invoked during the
// transaction lifecycle. Every invocation is wrapped: a panic or error
// escaping the registered function is swallowed and the fallback value
// captured at first registration is returned instead, so a broken hook
// never breaks the engine.
type Hooks struct {
	mu      sync.RWMutex
	entries map[string]hookEntry
}

// NewHooks allocates an empty hook table.
func NewHooks() *Hooks { return &Hooks{entries: map[string]hookEntry{}} }

// Register installs fn as the hook named name, returning fallback when
// name is invoked and not yet registered, or when fn fails.
//
// Unless override is true, a fallback given on a later call is ignored
// if name was already registered — the original fallback survives, so
// that e.g. the ISTag hook keeps a sane default even if a later
// registration under the same name supplies a worse one.
func (h *Hooks) Register(name string, fn interface{}, fallback interface{}, override bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.entries[name]; ok && !override {
		fallback = existing.fallback
	}
	h.entries[name] = hookEntry{fn: fn, fallback: fallback}
}

// OptionsHeaders invokes the options_headers hook, returning extra
// headers to merge into an OPTIONS response.
func (h *Hooks) OptionsHeaders() map[string]string {
	v := h.invoke(HookOptionsHeaders, map[string]string(nil))
	if m, ok := v.(map[string]string); ok {
		return m
	}
	return nil
}

// ISTag invokes the is_tag hook with req (which may be nil), returning
// the ISTag value to use, truncated to at most 32 bytes without
// splitting a UTF-8 rune.
func (h *Hooks) ISTag(req *ICAPRequest) string {
	v := h.invoke(HookISTag, "", req)
	s, _ := v.(string)
	return istag.Truncate(s, 32)
}

// BeforeHandling invokes the before_handling hook with req, which may
// mutate it in place before handler dispatch.
func (h *Hooks) BeforeHandling(req *ICAPRequest) {
	h.invoke(HookBeforeHandling, nil, req)
}

// BeforeSerialization invokes the before_serialization hook with req and
// resp, which may mutate resp in place before it is written.
func (h *Hooks) BeforeSerialization(req *ICAPRequest, resp *ICAPResponse) {
	h.invoke(HookBeforeSerialize, nil, req, resp)
}

func (h *Hooks) invoke(name string, fallback interface{}, args ...interface{}) (result interface{}) {
	h.mu.RLock()
	entry, ok := h.entries[name]
	h.mu.RUnlock()
	if !ok {
		return fallback
	}

	defer func() {
		if r := recover(); r != nil {
			result = entry.fallback
		}
	}()

	switch fn := entry.fn.(type) {
	case func() map[string]string:
		return fn()
	case func(*ICAPRequest) string:
		var req *ICAPRequest
		if len(args) > 0 {
			req, _ = args[0].(*ICAPRequest)
		}
		return fn(req)
	case func(*ICAPRequest):
		if len(args) > 0 {
			if req, ok := args[0].(*ICAPRequest); ok {
				fn(req)
			}
		}
		return nil
	case func(*ICAPRequest, *ICAPResponse):
		if len(args) > 1 {
			req, _ := args[0].(*ICAPRequest)
			resp, _ := args[1].(*ICAPResponse)
			fn(req, resp)
		}
		return nil
	default:
		return entry.fallback
	}
}

// DefaultHooks is the hook table used by a Server whose Hooks field is
// nil, mirroring DefaultServeMux's role for request dispatch.
var DefaultHooks = NewHooks()

// Hook registers fn as the hook named name on DefaultHooks. See
// Hooks.Register for override semantics.
func Hook(name string, fn interface{}, fallback interface{}) {
	DefaultHooks.Register(name, fn, fallback, false)
}
