// Package service implements the command bridge: a single-client,
// line-oriented request/response protocol over TCP, polled once per tick
// of the intercepted target loop, plus the matching client.
package service

import (
	"bytes"
	"encoding/json"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ChesterMargery/PVZTrain/pkg/game"
	"github.com/ChesterMargery/PVZTrain/pkg/logflags"
)

// Protocol responses. Every response goes out newline-terminated.
const (
	respOK          = "OK"
	respInvalid     = "ERR Invalid parameters"
	respResetFailed = "ERR Failed to reset"
	respStartFailed = "ERR Failed to start"
	respBackFailed  = "ERR Failed to back"
	respUnknown     = "ERR Unknown command"
)

// writeBacklog bounds the per-client response queue. A client that stops
// reading fills it and is dropped; the tick never waits on a socket write.
const writeBacklog = 64

// Game is the action/query surface the bridge dispatches to.
type Game interface {
	PutPlant(row, col, typ int) error
	Shovel(row, col int) error
	FireCob(x, y int) error
	MakeNewBoard() error
	EnterGame(mode int) error
	ChooseCard(typ int) error
	Rock() error
	BackToMain() error
	SetSpeed(ms int) error
	TakeSnapshot() game.Snapshot
}

// Server is one bridge session. It owns the listener for its whole
// lifetime and at most one client connection at a time. All parsing and
// dispatch happens inside Poll, on the tick; goroutines only ferry bytes
// between the sockets and the tick so that Poll itself never blocks.
type Server struct {
	listener net.Listener
	game     Game
	log      *logrus.Entry

	acceptCh chan net.Conn
	client   net.Conn
	readCh   chan []byte
	writeCh  chan string
	pending  []byte
}

// NewServer starts listening on addr. The bridge accepts no client until
// Poll is called.
func NewServer(addr string, g Game) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: l,
		game:     g,
		log:      logflags.BridgeLogger(),
	}
	s.startAccept()
	s.log.Debugf("listening on %s", l.Addr())
	return s, nil
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop closes the client connection, if any, and the listener.
func (s *Server) Stop() error {
	if s.client != nil {
		s.client.Close()
		s.client = nil
		s.pending = nil
	}
	if s.writeCh != nil {
		close(s.writeCh)
		s.writeCh = nil
	}
	return s.listener.Close()
}

// Poll runs one tick of bridge work and returns immediately: adopt a newly
// accepted client if there is no current one, then process whatever bytes
// have arrived. Complete lines are dispatched in arrival order; a partial
// trailing line is kept for the next tick.
func (s *Server) Poll() {
	if s.client == nil {
		if s.acceptCh == nil {
			return
		}
		select {
		case conn, ok := <-s.acceptCh:
			if !ok {
				s.acceptCh = nil
				return
			}
			s.client = conn
			s.pending = nil
			s.readCh = startReader(conn)
			s.writeCh = startWriter(conn)
			s.log.Debugf("client connected from %s", conn.RemoteAddr())
		default:
			return
		}
	}

	for {
		select {
		case chunk, ok := <-s.readCh:
			if !ok {
				// EOF or read fault. Either way: drop the client and go
				// back to accepting.
				s.dropClient()
				return
			}
			s.pending = append(s.pending, chunk...)
			if !s.drainPending() {
				return
			}
		default:
			return
		}
	}
}

// drainPending dispatches every complete line in the pending buffer.
// Returns false if the client went away while responding.
func (s *Server) drainPending() bool {
	for {
		i := bytes.IndexByte(s.pending, '\n')
		if i < 0 {
			return true
		}
		line := strings.TrimSuffix(string(s.pending[:i]), "\r")
		s.pending = s.pending[i+1:]
		if line == "" {
			continue
		}
		resp := s.dispatch(line)
		s.log.Debugf("%q -> %q", line, resp)
		if !s.respond(resp) {
			return false
		}
	}
}

func (s *Server) dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		// Whitespace-only line. Not a verb, but still a command line that
		// deserves an answer.
		return respUnknown
	}
	verb, args := fields[0], fields[1:]
	switch verb {
	case "PLANT":
		v, ok := ints(args, 3)
		if !ok {
			return respInvalid
		}
		return result(s.game.PutPlant(v[0], v[1], v[2]), respInvalid)
	case "SHOVEL":
		v, ok := ints(args, 2)
		if !ok {
			return respInvalid
		}
		return result(s.game.Shovel(v[0], v[1]), respInvalid)
	case "FIRE":
		v, ok := ints(args, 2)
		if !ok {
			return respInvalid
		}
		return result(s.game.FireCob(v[0], v[1]), respInvalid)
	case "RESET":
		return result(s.game.MakeNewBoard(), respResetFailed)
	case "ENTER":
		v, ok := ints(args, 1)
		if !ok {
			return respInvalid
		}
		return result(s.game.EnterGame(v[0]), respInvalid)
	case "CHOOSE":
		v, ok := ints(args, 1)
		if !ok {
			return respInvalid
		}
		return result(s.game.ChooseCard(v[0]), respInvalid)
	case "ROCK":
		return result(s.game.Rock(), respStartFailed)
	case "BACK":
		return result(s.game.BackToMain(), respBackFailed)
	case "SPEED":
		v, ok := ints(args, 1)
		if !ok {
			return respInvalid
		}
		return result(s.game.SetSpeed(v[0]), respInvalid)
	case "STATE":
		data, err := json.Marshal(s.game.TakeSnapshot())
		if err != nil {
			return respUnknown
		}
		return string(data)
	}
	return respUnknown
}

// respond queues one newline-terminated response without ever blocking
// the tick. Returns false if the client was dropped because its response
// queue is full.
func (s *Server) respond(resp string) bool {
	select {
	case s.writeCh <- resp:
		return true
	default:
		s.log.Debugf("response queue full, dropping client")
		s.dropClient()
		return false
	}
}

func (s *Server) dropClient() {
	if s.client == nil {
		return
	}
	s.log.Debugf("client %s gone", s.client.RemoteAddr())
	s.client.Close()
	s.client = nil
	s.readCh = nil
	if s.writeCh != nil {
		close(s.writeCh)
		s.writeCh = nil
	}
	s.pending = nil
	s.startAccept()
}

// startAccept arms a single pending accept. It only ever runs while no
// client is connected, so extra connection attempts sit in the listen
// backlog until the current client disconnects.
func (s *Server) startAccept() {
	ch := make(chan net.Conn, 1)
	s.acceptCh = ch
	go func() {
		conn, err := s.listener.Accept()
		if err != nil {
			close(ch)
			return
		}
		ch <- conn
	}()
}

// startWriter ferries queued responses from the tick to conn. A write
// fault closes the connection, which surfaces to Poll through the reader
// channel on a later tick.
func startWriter(conn net.Conn) chan string {
	ch := make(chan string, writeBacklog)
	go func() {
		for resp := range ch {
			if _, err := conn.Write([]byte(resp + "\n")); err != nil {
				conn.Close()
				return
			}
		}
	}()
	return ch
}

// startReader ferries raw bytes from conn to the tick. The channel closes
// on EOF or any read fault, which Poll treats identically.
func startReader(conn net.Conn) chan []byte {
	ch := make(chan []byte, 16)
	go func() {
		defer close(ch)
		buf := make([]byte, 1024)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				ch <- chunk
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}

// ints parses the first n arguments as integers. Extra arguments are
// ignored, missing or non-numeric ones fail.
func ints(args []string, n int) ([]int, bool) {
	if len(args) < n {
		return nil, false
	}
	v := make([]int, n)
	for i := 0; i < n; i++ {
		x, err := strconv.Atoi(args[i])
		if err != nil {
			return nil, false
		}
		v[i] = x
	}
	return v, true
}

func result(err error, failure string) string {
	if err != nil {
		return failure
	}
	return respOK
}
