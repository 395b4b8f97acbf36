package middleware

import (
	"net/http"
	"sync"
	"time"
)

// Fault describes how a matching request misbehaves. A zero Status lets the
// request through after Delay.
type Fault struct {
	Status int
	Body   string
	Delay  time.Duration
}

// Faults injects failures into chosen routes so a client can be exercised
// against 401s, 5xx answers and slow responses on demand.
//
// Rules are keyed by "METHOD /path" on the exact request path.
type Faults struct {
	mu    sync.RWMutex
	rules map[string]Fault
}

func NewFaults() *Faults {
	return &Faults{rules: make(map[string]Fault)}
}

// Set installs a fault for method and path, replacing any earlier one.
func (f *Faults) Set(method, path string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[method+" "+path] = fault
}

// Clear removes every fault.
func (f *Faults) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.rules)
}

func (f *Faults) lookup(r *http.Request) (Fault, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fault, ok := f.rules[r.Method+" "+r.URL.Path]
	return fault, ok
}

// Middleware applies the installed faults.
func (f *Faults) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fault, ok := f.lookup(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if fault.Delay > 0 {
			select {
			case <-time.After(fault.Delay):
			case <-r.Context().Done():
				return
			}
		}
		if fault.Status == 0 {
			next.ServeHTTP(w, r)
			return
		}

		body := fault.Body
		if body == "" {
			body = http.StatusText(fault.Status)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(fault.Status)
		w.Write([]byte(body))
	})
}
