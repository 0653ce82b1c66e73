package gateway

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/sitepulse/sitepulse/internal/audit"
	"github.com/sitepulse/sitepulse/internal/run"
)

// eventFrame is the wire shape of every websocket message.
type eventFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// runEvents upgrades the connection and streams run events. In-memory runs
// stream until their terminal payload is delivered; runs known only from
// disk get one status frame and an immediate close.
func (s *Server) runEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "run_id")

	runner, live := s.queue.Live(id)
	var meta audit.RunMeta
	if !live {
		var err error
		meta, err = s.registry.Get(id)
		if err != nil {
			if errors.Is(err, run.ErrNotFound) {
				s.writeError(w, http.StatusNotFound, "run not found")
				return
			}
			s.writeError(w, http.StatusInternalServerError, "failed to read run")
			return
		}
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("run_id", id), zap.Error(err))
		return
	}

	if !live {
		sess := newWsSession(conn)
		_ = sess.send(run.EventStatus, meta.Status)
		sess.close()
		return
	}
	s.streamLive(conn, runner)
}

// streamLive forwards runner events to the socket until the run finishes or
// the client goes away.
func (s *Server) streamLive(conn net.Conn, runner *run.Runner) {
	sess := newWsSession(conn)
	events := runner.Events()

	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	// sendTerminal delivers the completed/error payload at most once, no
	// matter whether it arrives via an event or the catch-up below.
	var terminalOnce sync.Once
	sendTerminal := func(kind run.EventKind, data any) {
		terminalOnce.Do(func() {
			_ = sess.send(kind, data)
			finish()
		})
	}

	statusID := events.On(run.EventStatus, func(p any) {
		_ = sess.send(run.EventStatus, p)
	})
	progressID := events.On(run.EventProgress, func(p any) {
		_ = sess.send(run.EventProgress, p)
	})
	completedID := events.On(run.EventCompleted, func(p any) {
		sendTerminal(run.EventCompleted, p)
	})
	errorID := events.On(run.EventError, func(p any) {
		msg := "run failed"
		if err, ok := p.(error); ok {
			msg = err.Error()
		}
		sendTerminal(run.EventError, map[string]string{"message": msg})
	})

	// Catch up: the run may have finished between Live and subscribing, so a
	// terminal run still gets its completed/error frame before the close.
	meta := runner.Meta()
	if err := sess.send(run.EventStatus, meta.Status); err != nil {
		finish()
	} else {
		switch meta.Status {
		case audit.RunStatusCompleted:
			if summary, err := s.registry.GetSummary(runner.ID()); err == nil {
				sendTerminal(run.EventCompleted, summary)
			} else {
				finish()
			}
		case audit.RunStatusFailed:
			sendTerminal(run.EventError, map[string]string{"message": meta.Error})
		}
	}

	// Detect client disconnects; inbound payloads are ignored.
	go func() {
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				finish()
				return
			}
		}
	}()

	<-done
	events.Off(run.EventStatus, statusID)
	events.Off(run.EventProgress, progressID)
	events.Off(run.EventCompleted, completedID)
	events.Off(run.EventError, errorID)
	sess.close()
}

// wsSession serializes writes to one websocket connection.
type wsSession struct {
	conn   net.Conn
	mu     sync.Mutex
	closed bool
}

func newWsSession(conn net.Conn) *wsSession {
	return &wsSession{conn: conn}
}

func (s *wsSession) send(kind run.EventKind, data any) error {
	payload, err := json.Marshal(eventFrame{Type: string(kind), Data: data})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return net.ErrClosed
	}
	return wsutil.WriteServerText(s.conn, payload)
}

func (s *wsSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = wsutil.WriteServerMessage(s.conn, ws.OpClose, nil)
	_ = s.conn.Close()
}
