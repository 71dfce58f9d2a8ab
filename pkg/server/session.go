package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sudorandom/latency-map/pkg/derive"
	"github.com/sudorandom/latency-map/pkg/filter"
	"github.com/sudorandom/latency-map/pkg/latency"
	"github.com/sudorandom/latency-map/pkg/render"
	"github.com/sudorandom/latency-map/pkg/search"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

type clientMessage struct {
	Type      string         `json:"type"`
	Layer     string         `json:"layer,omitempty"`
	FeatureID string         `json:"featureId,omitempty"`
	Action    *filter.Action `json:"action,omitempty"`
	Text      string         `json:"text,omitempty"`
}

type serverMessage struct {
	Type     string             `json:"type"`
	Command  *render.Command    `json:"command,omitempty"`
	Region   *derive.RegionInfo `json:"region,omitempty"`
	Status   *statusResponse    `json:"status,omitempty"`
	Criteria *filter.Criteria   `json:"criteria,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// session drives one browser map over a websocket. The browser executes the
// commands it receives and reports style and click events back.
type session struct {
	id  string
	srv *Server

	conn *websocket.Conn
	out  chan serverMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	surface *render.RecordingSurface
	m       *render.Map
	lines   *render.LatencyLayers
	regions *render.RegionLayers
	markers *render.MarkerLayers
	anim    *render.GradientAnimator
	search  *search.Debouncer

	refreshMu sync.Mutex
}

func (s *Server) handleMapSession(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[session] Upgrade failed: %v", err)
		return
	}
	sess := s.newSession(c.Request.Context(), conn)
	s.metrics.Sessions.Inc()
	defer s.metrics.Sessions.Dec()
	sess.run()
}

func (s *Server) newSession(parent context.Context, conn *websocket.Conn) *session {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	sess := &session{
		id:     uuid.NewString(),
		srv:    s,
		conn:   conn,
		out:    make(chan serverMessage, sendQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	sess.surface = render.NewRecordingSurface(func(cmd render.Command) {
		sess.send(serverMessage{Type: "command", Command: &cmd})
	})
	sess.m = render.NewMap(sess.surface)
	sess.lines = render.NewLatencyLayers()
	sess.markers = render.NewMarkerLayers()
	sess.regions = render.NewRegionLayers(s.regions, func(info derive.RegionInfo) {
		sess.send(serverMessage{Type: "region", Region: &info})
	})
	sess.anim = render.NewGradientAnimator(sess.m)
	sess.search = search.NewDebouncer(search.DefaultDelay, sess.applySearch)
	return sess
}

func (sess *session) logf(format string, args ...any) {
	log.Printf("[session %s] "+format, append([]any{sess.id[:8]}, args...)...)
}

// send queues msg for the writer without blocking. A browser that falls a
// full queue behind has missed map commands, so the session is closed.
func (sess *session) send(msg serverMessage) {
	if sess.ctx.Err() != nil {
		return
	}
	select {
	case sess.out <- msg:
	default:
		sess.logf("Send queue full, closing")
		sess.cancel()
		_ = sess.conn.Close()
	}
}

func (sess *session) sendError(err error) {
	sess.send(serverMessage{Type: "error", Error: err.Error()})
}

func (sess *session) sendStatus(st latency.Status) {
	resp := statusResponse{Loading: st.Loading, Count: len(st.Latencies)}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if !st.UpdatedAt.IsZero() {
		resp.UpdatedAt = &st.UpdatedAt
	}
	sess.send(serverMessage{Type: "status", Status: &resp})
}

func (sess *session) writeLoop() {
	defer sess.wg.Done()
	for {
		select {
		case <-sess.ctx.Done():
			return
		case msg := <-sess.out:
			err := sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = sess.conn.WriteJSON(msg)
			}
			if err != nil {
				sess.logf("Write error: %v", err)
				// Unblocks the reader.
				_ = sess.conn.Close()
				sess.cancel()
				return
			}
		}
	}
}

func (sess *session) run() {
	sess.logf("Opened from %s", sess.conn.RemoteAddr())
	sess.wg.Add(2)
	go sess.writeLoop()
	go func() {
		defer sess.wg.Done()
		sess.anim.Run(sess.ctx, sess.srv.cfg.FrameInterval)
	}()

	if err := sess.m.RequestStyle(sess.srv.cfg.StyleURL); err != nil {
		sess.sendError(err)
	}
	if err := sess.m.Acquire(sess.markers); err != nil {
		sess.sendError(err)
	}
	unsubStore := sess.srv.cfg.Store.Subscribe(func(c filter.Criteria) {
		sess.send(serverMessage{Type: "criteria", Criteria: &c})
		sess.refresh()
	})
	unsubPoller := sess.srv.poller.Subscribe(func(st latency.Status) {
		sess.sendStatus(st)
		sess.refresh()
	})
	sess.sendStatus(sess.srv.poller.Status())
	sess.refresh()

	sess.readLoop()

	unsubStore()
	unsubPoller()
	sess.search.Stop()
	sess.cancel()
	if err := sess.m.Teardown(); err != nil {
		sess.logf("Teardown: %v", err)
	}
	_ = sess.conn.Close()
	sess.wg.Wait()
	sess.logf("Closed")
}

func (sess *session) readLoop() {
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logf("Read error: %v", err)
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.sendError(fmt.Errorf("invalid message: %w", err))
			continue
		}
		if err := sess.handle(msg); err != nil {
			sess.sendError(err)
		}
		if sess.ctx.Err() != nil {
			return
		}
	}
}

func (sess *session) handle(msg clientMessage) error {
	switch msg.Type {
	case "style.load":
		sess.surface.MarkStyleLoaded()
		return sess.m.StyleLoaded()
	case "style.reload":
		sess.surface.ResetStyle()
		return sess.m.StyleReloaded()
	case "click":
		sess.m.Click(msg.Layer, msg.FeatureID)
		return nil
	case "action":
		if msg.Action == nil {
			return errors.New("action message without action")
		}
		_, err := sess.srv.cfg.Store.Dispatch(*msg.Action)
		return err
	case "query":
		sess.search.Trigger(msg.Text)
		return nil
	}
	return fmt.Errorf("unknown message type %q", msg.Type)
}

// refresh brings the layer groups in line with the current criteria and
// poller status. Latency lines are only drawn while the realtime layer is
// visible and the latest poll succeeded.
func (sess *session) refresh() {
	sess.refreshMu.Lock()
	defer sess.refreshMu.Unlock()

	srv := sess.srv
	crit := srv.cfg.Store.Criteria()
	st := srv.poller.Status()

	var errs []error
	if crit.Layers.Realtime && st.Ready() {
		errs = append(errs,
			sess.lines.Update(sess.m, derive.Lines(srv.cfg.Catalog, st.Latencies, crit)),
			sess.m.Acquire(sess.lines),
		)
	} else {
		errs = append(errs, sess.m.Release(sess.lines))
	}
	if crit.Layers.Regions {
		errs = append(errs, sess.m.Acquire(sess.regions))
	} else {
		errs = append(errs, sess.m.Release(sess.regions))
	}
	errs = append(errs, sess.markers.Update(sess.m, derive.Markers(srv.cfg.Catalog, crit)))

	for _, err := range errs {
		if err != nil && !errors.Is(err, render.ErrTornDown) {
			sess.logf("Refreshing layers: %v", err)
			sess.sendError(err)
		}
	}
}

func (sess *session) applySearch(text string) {
	sess.srv.cfg.Store.SetQuery(text)
	cam, ok := sess.srv.resolve(text)
	if !ok {
		return
	}
	if _, err := sess.m.Surface(func(s render.Surface) error { return s.FlyTo(cam) }); err != nil {
		sess.sendError(err)
	}
}
