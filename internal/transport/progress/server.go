package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"schemconv/internal/batch"
)

const (
	TypeProgress = "PROGRESS"
	TypeDone     = "DONE"

	Path = "/v1/progress"
)

// Msg is the JSON frame sent to subscribers.
type Msg struct {
	Type string `json:"type"`
	batch.Snapshot
}

// Server fans run snapshots out to websocket subscribers.
type Server struct {
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	subs     map[string]chan []byte
	last     []byte
	finished bool
}

func NewServer(logger *log.Logger) *Server {
	return &Server{
		log:  logger,
		subs: make(map[string]chan []byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

// Publish broadcasts a PROGRESS frame. Slow subscribers miss frames.
func (s *Server) Publish(snap batch.Snapshot) {
	s.broadcast(TypeProgress, snap, false)
}

// Finish broadcasts the final DONE frame and closes all subscriptions.
func (s *Server) Finish(snap batch.Snapshot) {
	s.broadcast(TypeDone, snap, true)
}

func (s *Server) broadcast(typ string, snap batch.Snapshot, final bool) {
	b, err := json.Marshal(Msg{Type: typ, Snapshot: snap})
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.last = b
	for id, ch := range s.subs {
		if final {
			// DONE must not be dropped; drain one stale frame if needed.
			select {
			case ch <- b:
			default:
				select {
				case <-ch:
				default:
				}
				ch <- b
			}
			close(ch)
			delete(s.subs, id)
			continue
		}
		select {
		case ch <- b:
		default:
		}
	}
	if final {
		s.finished = true
	}
}

// subscribe registers a new subscriber primed with the latest frame.
// ok is false once the run has finished; last is then the DONE frame.
func (s *Server) subscribe() (id string, ch chan []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch = make(chan []byte, 8)
	if s.last != nil {
		ch <- s.last
	}
	if s.finished {
		close(ch)
		return "", ch, false
	}
	id = fmt.Sprintf("P%d", s.nextID.Add(1))
	s.subs[id] = ch
	return id, ch, true
}

func (s *Server) unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out, live := s.subscribe()
		if live {
			defer s.unsubscribe(id)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(time.Second))
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: subscribers only send control frames.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		select {
		case err := <-writeErr:
			if err != nil && s.log != nil {
				s.log.Printf("progress subscriber %s: %v", id, err)
			}
		case <-readDone:
		}
		cancel()
	}
}

// Serve starts an HTTP server for the progress endpoint on addr and
// shuts it down when ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc(Path, s.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed && s.log != nil {
			s.log.Printf("progress server: %v", err)
		}
	}()
	return ln.Addr(), nil
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
