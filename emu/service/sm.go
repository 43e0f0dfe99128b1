/*
 * CTREMU - Service manager
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package service

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/rcornwell/ctremu/emu/kernel"
)

const (
	MaxNameLength      = 8  // Longest service name.
	DefaultMaxSessions = 10 // Sessions per service unless given.
)

// Controller receives requests from services that change the system state.
type Controller interface {
	RequestJump(media uint32, titleID uint64)
	RequestShutdown()
}

type port struct {
	handler     kernel.SessionHandler
	maxSessions int
	sessions    int
}

// ServiceManager keeps the table of named service ports.
type ServiceManager struct {
	ports map[string]*port
	log   *slog.Logger
}

func NewServiceManager(logger *slog.Logger) *ServiceManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceManager{ports: map[string]*port{}, log: logger}
}

// Register service under its name.
func (sm *ServiceManager) RegisterService(handler kernel.SessionHandler, maxSessions int) error {
	name := handler.ServiceName()
	if name == "" || len(name) > MaxNameLength {
		return errors.New("invalid service name: " + name)
	}
	if _, ok := sm.ports[name]; ok {
		return errors.New("service already registered: " + name)
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	sm.ports[name] = &port{handler: handler, maxSessions: maxSessions}
	sm.log.Debug("service: registered", "name", name)
	return nil
}

// Open a session to a service.
func (sm *ServiceManager) ConnectToPort(name string) (kernel.SessionHandler, kernel.ResultCode) {
	p, ok := sm.ports[name]
	if !ok {
		sm.log.Warn("service: unknown port", "name", name)
		return nil, kernel.ErrNotFound
	}
	if p.sessions >= p.maxSessions {
		return nil, kernel.ErrOutOfRange
	}
	p.sessions++
	return p.handler, kernel.ResultSuccess
}

// Names of registered services.
func (sm *ServiceManager) Services() []string {
	names := make([]string, 0, len(sm.ports))
	for name := range sm.ports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Drop all services.
func (sm *ServiceManager) Shutdown() {
	sm.ports = map[string]*port{}
}
