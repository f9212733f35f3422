package realtime

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/punchcardhq/punchcard/internal/store"
)

// HandleWebSocket upgrades connections at /ws/{token} and subscribes them
// to that account's channel. The public token is the capability: anyone
// holding it may watch the balance, nobody else learns it exists.
func HandleWebSocket(hub *Hub, accounts *store.AccountStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")

		acct, err := accounts.GetByPublicToken(token)
		if err != nil {
			logger.Error("websocket account lookup", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if acct == nil {
			http.Error(w, "unknown account", http.StatusNotFound)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // Customer wallet clients connect from arbitrary origins
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, token, conn)
		client.Run(r.Context())
	}
}
