/*
Package handler provides the HTTP handlers and routing setup for the WebCorg relay server.

This file contains the HandleWebSocket function, which is responsible for rate limiting,
upgrading the HTTP connection to WebSocket, and starting the client lifecycle.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"webcorg/internal/app/presence"
	"webcorg/internal/pkg/errs"
	"webcorg/internal/pkg/limiter"
	"webcorg/internal/pkg/logx"
	"webcorg/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// Identity is not collected here: a connection stays anonymous until it sends
// a join event over the socket.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := presence.NewClient(deps.Broker, conn)

		go client.WritePump()

		deps.Broker.Connect(client)

		logx.Info("WebSocket connection established", "conn_id", client.ID())

		client.ReadPump()
	}
}
