/*
 * CTREMU - Debug RPC server
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

package rpc

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// Target is what requests act on, called only from the stepping goroutine.
type Target interface {
	Ticks() uint64
	ReadMemory(addr, size uint32) ([]byte, bool)
	WriteMemory(addr, value uint32) bool
	ThreadList() []string
	Stats() string
}

// Longest read allowed in one request.
const maxRead = 4096

type request struct {
	args  []string
	reply chan string
}

type Server struct {
	wg         sync.WaitGroup
	listener   net.Listener
	shutdown   chan struct{}
	connection chan net.Conn
	requests   chan request
	mu         sync.Mutex
	clients    map[net.Conn]struct{}
	log        *slog.Logger
}

// Start server listening on address.
func Start(address string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on address %s: %w", address, err)
	}

	s := &Server{
		listener:   listener,
		shutdown:   make(chan struct{}),
		connection: make(chan net.Conn),
		requests:   make(chan request),
		clients:    map[net.Conn]struct{}{},
		log:        logger,
	}
	s.log.Info("RPC server started on " + listener.Addr().String())
	s.wg.Add(2)
	go s.acceptConnections()
	go s.handleConnections()
	return s, nil
}

// Address server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Stop server and drop clients.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	close(s.shutdown)
	s.listener.Close()
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.log.Warn("Timed out waiting for RPC connections to finish.")
	}
}

// Run queued requests against target, called from the hardware update.
func (s *Server) ProcessRequests(target Target) {
	if s == nil {
		return
	}
	for {
		select {
		case req := <-s.requests:
			req.reply <- Execute(target, req.args)
		default:
			return
		}
	}
}

// Accept a connection.
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				continue
			}
		}
		select {
		case s.connection <- conn:
		case <-s.shutdown:
			conn.Close()
			return
		}
	}
}

// Start processing for a new connection.
func (s *Server) handleConnections() {
	defer s.wg.Done()

	for {
		select {
		case <-s.shutdown:
			return
		case conn := <-s.connection:
			s.log.Info("RPC connection from " + conn.RemoteAddr().String())
			s.mu.Lock()
			s.clients[conn] = struct{}{}
			s.mu.Unlock()
			s.wg.Add(1)
			go s.handleClient(conn)
		}
	}
}

// Read request lines and write replies.
func (s *Server) handleClient(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		args := splitLine(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" {
			return
		}
		req := request{args: args, reply: make(chan string, 1)}
		select {
		case s.requests <- req:
		case <-s.shutdown:
			return
		}
		var reply string
		select {
		case reply = <-req.reply:
		case <-s.shutdown:
			return
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

// Break line into words.
func splitLine(line string) []string {
	args := []string{}
	word := []byte{}
	for i := range len(line) {
		by := line[i]
		if by == ' ' || by == '\t' || by == '\r' {
			if len(word) != 0 {
				args = append(args, string(word))
				word = word[:0]
			}
			continue
		}
		word = append(word, by)
	}
	if len(word) != 0 {
		args = append(args, string(word))
	}
	return args
}

var errArgs = errors.New("wrong number of arguments")

func parseAddr(str string) (uint32, error) {
	v, err := strconv.ParseUint(str, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("not a hex number: %s", str)
	}
	return uint32(v), nil
}

// Run one request, reply ends with "ok" or "error" line.
func Execute(target Target, args []string) string {
	out, err := execute(target, args)
	if err != nil {
		return out + "error " + err.Error() + "\n"
	}
	return out + "ok\n"
}

func execute(target Target, args []string) (string, error) {
	switch args[0] {
	case "ticks":
		return strconv.FormatUint(target.Ticks(), 10) + "\n", nil

	case "read":
		if len(args) != 3 {
			return "", errArgs
		}
		addr, err := parseAddr(args[1])
		if err != nil {
			return "", err
		}
		size, err := strconv.ParseUint(args[2], 0, 32)
		if err != nil || size == 0 || size > maxRead {
			return "", fmt.Errorf("invalid length: %s", args[2])
		}
		data, ok := target.ReadMemory(addr, uint32(size))
		if !ok {
			return "", fmt.Errorf("address not mapped: %08x", addr)
		}
		return fmt.Sprintf("%x\n", data), nil

	case "write":
		if len(args) != 3 {
			return "", errArgs
		}
		addr, err := parseAddr(args[1])
		if err != nil {
			return "", err
		}
		value, err := parseAddr(args[2])
		if err != nil {
			return "", err
		}
		if !target.WriteMemory(addr, value) {
			return "", fmt.Errorf("address not mapped: %08x", addr)
		}
		return "", nil

	case "threads":
		out := ""
		for _, th := range target.ThreadList() {
			out += th + "\n"
		}
		return out, nil

	case "stats":
		return target.Stats() + "\n", nil
	}
	return "", errors.New("unknown command: " + args[0])
}
