/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting, authenticating
the caller, upgrading the HTTP connection to WebSocket, and initiating the client lifecycle.
*/
package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"quickchat/internal/app/chat"
	"quickchat/internal/pkg/auth/jwt"
	"quickchat/internal/pkg/errs"
	"quickchat/internal/pkg/limiter"
	"quickchat/internal/pkg/logx"
	"quickchat/internal/pkg/resp"
)

// bearerSubprotocol is the sentinel subprotocol clients offer alongside their
// token. Browsers cannot set an Authorization header on a WebSocket handshake,
// so the credential rides in Sec-WebSocket-Protocol as "bearer, <token>" and
// the server echoes back only the sentinel.
const bearerSubprotocol = "bearer"

// tokenFromSubprotocols extracts the identity token offered next to the
// bearer sentinel, or "" when the handshake carries no credential.
func tokenFromSubprotocols(r *http.Request) string {
	for _, raw := range r.Header["Sec-Websocket-Protocol"] {
		parts := strings.Split(raw, ",")
		for idx, part := range parts {
			if strings.TrimSpace(part) == bearerSubprotocol && idx+1 < len(parts) {
				return strings.TrimSpace(parts[idx+1])
			}
		}
	}

	return ""
}

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			rateLimitErr := errs.NewError(errs.ErrRateLimitExceeded)
			resp.RespondError(w, r, rateLimitErr)
			return
		}

		token := tokenFromSubprotocols(r)
		if token == "" {
			logx.Warn("WebSocket request rejected: Missing bearer credential", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrAuthRequired))
			return
		}

		payload, err := jwt.ParseToken(token, deps.Config.JWTSecret)
		if err != nil {
			logx.Warn("WebSocket request rejected: Invalid token", "ip", ip, "error", err)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		logx.Info("Attempting to upgrade connection", "user_id", payload.ID)

		conn, err := upgrader.Upgrade(w, r, http.Header{
			"Sec-Websocket-Protocol": {bearerSubprotocol},
		})
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(deps.Registry, conn, payload.ID)

		go client.WritePump()

		logx.Info("WebSocket connection established and client registered", "user_id", payload.ID)

		deps.Registry.Register(client)

		client.ReadPump()
	}
}
