package irc

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hook runs on a session lifecycle event.
type Hook func(s *Session) error

type hookInfo struct {
	name     string
	hook     Hook
	priority int64
}

// Hooks holds the session start and end hooks shared by every session of a
// server. Hooks run in priority order (lower values first, like nice);
// errors and panics are logged and collected but never stop the session or
// its cleanup.
type Hooks struct {
	mu    sync.RWMutex
	start []hookInfo
	end   []hookInfo
}

// NewHooks returns an empty registry.
func NewHooks() *Hooks {
	return &Hooks{}
}

// OnStart registers a hook that runs after a session has authenticated.
func (h *Hooks) OnStart(hook Hook, priority int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.start = append(h.start, newHookInfo(hook, priority))
}

// OnEnd registers a hook that runs when a session terminates.
func (h *Hooks) OnEnd(hook Hook, priority int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.end = append(h.end, newHookInfo(hook, priority))
}

// Count returns the number of registered start and end hooks.
func (h *Hooks) Count() (start, end int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.start), len(h.end)
}

func newHookInfo(hook Hook, priority int64) hookInfo {
	return hookInfo{
		name:     runtime.FuncForPC(reflect.ValueOf(hook).Pointer()).Name(),
		hook:     hook,
		priority: priority,
	}
}

func (h *Hooks) runStart(s *Session) map[string]error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	hooks := append([]hookInfo(nil), h.start...)
	h.mu.RUnlock()
	return runHooks(hooks, s)
}

func (h *Hooks) runEnd(s *Session) map[string]error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	hooks := append([]hookInfo(nil), h.end...)
	h.mu.RUnlock()
	return runHooks(hooks, s)
}

func runHooks(hooks []hookInfo, s *Session) map[string]error {
	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].priority < hooks[j].priority
	})

	hookErrors := make(map[string]error)
	for _, info := range hooks {
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in hook %s: %v", info.name, r)
				}
			}()
			return info.hook(s)
		}()
		if err != nil {
			hookErrors[info.name] = err
			s.log.WithFields(logrus.Fields{"hook": info.name}).WithError(err).Error("session hook failed")
		}
	}

	if len(hookErrors) == 0 {
		return nil
	}
	return hookErrors
}
