package testutil

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type memcachedItem struct {
	flags   uint32
	value   []byte
	exptime int
	expires time.Time
}

// MemcachedServer is a minimal in-process memcached speaking the subset of
// the text protocol used by gomemcache for get, set and ping.
type MemcachedServer struct {
	ln     net.Listener
	mu     sync.Mutex
	offset time.Duration
	items  map[string]*memcachedItem
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

// MustStartMemcached starts a MemcachedServer on a loopback port. The server
// is shut down automatically when the test completes.
func MustStartMemcached(t *testing.T) *MemcachedServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Unexpected error starting fake memcached: %v", err)
	}
	s := &MemcachedServer{
		ln:    ln,
		items: make(map[string]*memcachedItem),
		conns: make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *MemcachedServer) Addr() string {
	return s.ln.Addr().String()
}

// Advance moves the server's notion of the current time forward by d (e.g.,
// to test expiration).
func (s *MemcachedServer) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset += d
}

// now must be called with mu held.
func (s *MemcachedServer) now() time.Time {
	return time.Now().Add(s.offset)
}

// Exptime returns the expiration (in seconds) most recently stored for key.
func (s *MemcachedServer) Exptime(key string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok {
		return 0, false
	}
	return it.exptime, true
}

// Keys returns the number of stored (possibly expired) items.
func (s *MemcachedServer) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close stops the server and drops all client connections.
func (s *MemcachedServer) Close() {
	s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *MemcachedServer) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handle(c)
	}
}

func (s *MemcachedServer) handle(c net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.Close()
	}()
	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "get", "gets":
			s.get(w, fields[1:])
		case "set":
			if err := s.set(r, w, fields[1:]); err != nil {
				return
			}
		case "version":
			fmt.Fprintf(w, "VERSION 1.6.21\r\n")
		default:
			fmt.Fprintf(w, "ERROR\r\n")
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *MemcachedServer) get(w io.Writer, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, k := range keys {
		it, ok := s.items[k]
		if !ok {
			continue
		}
		if !it.expires.IsZero() && !now.Before(it.expires) {
			delete(s.items, k)
			continue
		}
		fmt.Fprintf(w, "VALUE %s %d %d %d\r\n", k, it.flags, len(it.value), 1)
		w.Write(it.value)
		io.WriteString(w, "\r\n")
	}
	io.WriteString(w, "END\r\n")
}

// set handles "set <key> <flags> <exptime> <bytes> [noreply]".
func (s *MemcachedServer) set(r *bufio.Reader, w io.Writer, args []string) error {
	if len(args) < 4 {
		io.WriteString(w, "CLIENT_ERROR bad command line format\r\n")
		return nil
	}
	flags, err1 := strconv.ParseUint(args[1], 10, 32)
	exptime, err2 := strconv.Atoi(args[2])
	n, err3 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil || err3 != nil {
		io.WriteString(w, "CLIENT_ERROR bad command line format\r\n")
		return nil
	}
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	it := &memcachedItem{flags: uint32(flags), value: buf[:n], exptime: exptime}
	s.mu.Lock()
	if exptime > 0 {
		it.expires = s.now().Add(time.Duration(exptime) * time.Second)
	}
	s.items[args[0]] = it
	s.mu.Unlock()
	if len(args) < 5 || args[4] != "noreply" {
		io.WriteString(w, "STORED\r\n")
	}
	return nil
}
