package flowgate

// Hooks holds optional callbacks for resilience lifecycle events. All
// fields are nil by default; callers set only the hooks they care about.
// A Hooks value must not be mutated after construction — emit methods read
// the function fields without synchronisation, which is safe as long as the
// struct is read-only after initialisation.
type Hooks struct {
	OnRetry           func(endpoint string, attempt int, err error)
	OnCircuitOpen     func(endpoint string)
	OnCircuitClose    func(endpoint string)
	OnCircuitHalfOpen func(endpoint string)
	OnPoolSaturated   func(endpoint string, waiting int)
	OnSlotAcquired    func(endpoint string)
	OnSlotReleased    func(endpoint string)
	OnCacheHit        func(key string)
	OnCacheMiss       func(key string)
	OnFallbackUsed    func(operation, strategy string, err error)
	OnRecoveryFailed  func(operation string, err error)
}

func (h *Hooks) emitRetry(endpoint string, attempt int, err error) {
	if h.OnRetry != nil {
		h.OnRetry(endpoint, attempt, err)
	}
}

func (h *Hooks) emitCircuitOpen(endpoint string) {
	if h.OnCircuitOpen != nil {
		h.OnCircuitOpen(endpoint)
	}
}

func (h *Hooks) emitCircuitClose(endpoint string) {
	if h.OnCircuitClose != nil {
		h.OnCircuitClose(endpoint)
	}
}

func (h *Hooks) emitCircuitHalfOpen(endpoint string) {
	if h.OnCircuitHalfOpen != nil {
		h.OnCircuitHalfOpen(endpoint)
	}
}

func (h *Hooks) emitPoolSaturated(endpoint string, waiting int) {
	if h.OnPoolSaturated != nil {
		h.OnPoolSaturated(endpoint, waiting)
	}
}

func (h *Hooks) emitSlotAcquired(endpoint string) {
	if h.OnSlotAcquired != nil {
		h.OnSlotAcquired(endpoint)
	}
}

func (h *Hooks) emitSlotReleased(endpoint string) {
	if h.OnSlotReleased != nil {
		h.OnSlotReleased(endpoint)
	}
}

func (h *Hooks) emitCacheHit(key string) {
	if h.OnCacheHit != nil {
		h.OnCacheHit(key)
	}
}

func (h *Hooks) emitCacheMiss(key string) {
	if h.OnCacheMiss != nil {
		h.OnCacheMiss(key)
	}
}

func (h *Hooks) emitFallbackUsed(operation, strategy string, err error) {
	if h.OnFallbackUsed != nil {
		h.OnFallbackUsed(operation, strategy, err)
	}
}

func (h *Hooks) emitRecoveryFailed(operation string, err error) {
	if h.OnRecoveryFailed != nil {
		h.OnRecoveryFailed(operation, err)
	}
}
