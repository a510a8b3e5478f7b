package httpapi

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/signalsfoundry/mto-simulator/core"
	"github.com/signalsfoundry/mto-simulator/internal/logging"
	"github.com/signalsfoundry/mto-simulator/internal/observability"
	sim "github.com/signalsfoundry/mto-simulator/internal/sim/state"
	"github.com/signalsfoundry/mto-simulator/model"
)

const (
	feedBuffer   = 32
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feedMessage is one frame of the websocket state feed.
type feedMessage struct {
	Reason   string            `json:"reason"`
	State    *core.State       `json:"state"`
	Events   []model.GameEvent `json:"events,omitempty"`
	Decision *model.Decision   `json:"decision,omitempty"`
}

// feed fans session updates out to websocket clients. Slow clients lose
// frames rather than block the session.
type feed struct {
	session   *sim.Session
	collector *observability.APICollector
	log       logging.Logger
	clients   atomic.Int64
}

func newFeed(s *sim.Session, c *observability.APICollector, log logging.Logger) *feed {
	return &feed{session: s, collector: c, log: log}
}

func (f *feed) connected(delta int64) {
	f.collector.SetFeedSubscribers(int(f.clients.Add(delta)))
}

func (f *feed) handle(c echo.Context) error {
	log := loggerFrom(c, f.log)
	ctx := c.Request().Context()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn(ctx, "websocket upgrade", logging.Err(err))
		return nil
	}
	defer conn.Close()

	updates := make(chan feedMessage, feedBuffer)
	unsubscribe := f.session.Subscribe(func(u sim.Update) {
		select {
		case updates <- feedMessage{Reason: u.Reason, State: u.State, Events: u.Events, Decision: u.Decision}:
		default:
		}
	})
	defer unsubscribe()

	f.connected(1)
	defer f.connected(-1)
	log.Debug(ctx, "feed client connected")

	// Reads only detect the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := f.write(conn, feedMessage{Reason: "snapshot", State: f.session.Snapshot()}); err != nil {
		log.Debug(ctx, "feed write", logging.Err(err))
		return nil
	}
	for {
		select {
		case <-closed:
			log.Debug(ctx, "feed client disconnected")
			return nil
		case <-ctx.Done():
			return nil
		case msg := <-updates:
			if err := f.write(conn, msg); err != nil {
				log.Debug(ctx, "feed write", logging.Err(err))
				return nil
			}
		}
	}
}

func (f *feed) write(conn *websocket.Conn, msg feedMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
