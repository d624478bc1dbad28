package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second
	feedBuffer     = 32
)

// handleEvents streams ledger change notifications over a websocket.
// Browsers cannot set headers on the upgrade, so the token may come in
// the access_token query parameter.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if a.events == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("change feed disabled"))
		return
	}

	if token := strings.TrimSpace(r.URL.Query().Get("access_token")); token != "" && r.Header.Get("Authorization") == "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	actor, err := a.authenticate(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	if !isRoleAllowed(actor.Role, []string{"cashier", "admin"}) {
		writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		return
	}

	feed, cancel := a.events.Subscribe(feedBuffer)
	defer cancel()

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Error(r.Context(), "websocket upgrade failed", err)
		return
	}
	defer conn.Close()

	a.log.Debug(a.log.WithActor(r.Context(), actor.Username, actor.Role), "change feed subscribed")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-feed:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(feedWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return
			}
		}
	}
}
