// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/filterbattle/internal/game"
	"github.com/jason-s-yu/filterbattle/internal/middleware"
	"github.com/jason-s-yu/filterbattle/internal/session"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "filterbattle"

const (
	pingInterval = 30 * time.Second
	pingTimeout  = 15 * time.Second
	writeTimeout = 5 * time.Second
	readLimit    = 16 << 10
)

// WSHandler upgrades the request and runs the connection until either side
// closes it or shutdown is cancelled.
func WSHandler(shutdown context.Context, logger logrus.FieldLogger, router *session.Router, origins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: origins,
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the "+Subprotocol+" subprotocol")
			return
		}
		c.SetReadLimit(readLimit)

		client := router.Connect()
		connLog := logger.WithField("player", client.ID)
		middleware.LogWebSocketConnect(logger, remoteAddr, string(client.ID))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go func() {
			select {
			case <-shutdown.Done():
				c.Close(ServerShutdownError, "server shutting down")
			case <-ctx.Done():
			}
		}()

		go writePump(ctx, cancel, c, client, connLog)

		err = readPump(ctx, c, router, client, connLog)

		// ---- Cleanup after readPump exits ----
		router.Disconnect(client.ID)
		middleware.LogWebSocketDisconnect(logger, remoteAddr, string(client.ID), err)
	}
}

// readPump decodes inbound packets and hands them to the router. It returns
// nil on a clean close and the read error otherwise.
func readPump(ctx context.Context, c *websocket.Conn, router *session.Router, client *session.Client, logger logrus.FieldLogger) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if typ != websocket.MessageText {
			logger.Warnf("Received non-text message type %d. Ignoring.", typ)
			continue
		}

		var packet map[string]any
		if err := json.Unmarshal(msg, &packet); err != nil {
			logger.Debugf("Invalid json: %v", err)
			client.Write(game.ErrorEvent("invalid JSON format"))
			continue
		}

		if err := router.Handle(client.ID, packet); err != nil {
			logger.Debugf("Rejected packet: %v", err)
		}
	}
}

// writePump drains the client's OutChan onto the socket and keeps the
// connection alive with pings. It stops when OutChan is closed, a write
// fails, or ctx ends.
func writePump(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, client *session.Client, logger logrus.FieldLogger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.OutChan:
			if !ok {
				return
			}
			writeCtx, done := context.WithTimeout(ctx, writeTimeout)
			err := c.Write(writeCtx, websocket.MessageText, ev.Bytes())
			done()
			if err != nil {
				logger.Warnf("Failed to write %s: %v", ev.Type, err)
				return
			}
		case <-ticker.C:
			pingCtx, done := context.WithTimeout(ctx, pingTimeout)
			err := c.Ping(pingCtx)
			done()
			if err != nil {
				logger.Warnf("Failed to send ping: %v. Assuming disconnect.", err)
				return
			}
		}
	}
}
