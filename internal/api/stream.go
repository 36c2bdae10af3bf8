package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/ghostvault/internal/events"
	"github.com/joescharf/ghostvault/internal/logging"
	"github.com/joescharf/ghostvault/internal/models"
)

// dashboardStream sends the caller's dashboard as Server-Sent Events: once
// on connect and again after every event that concerns them.
func (s *Server) dashboardStream(w http.ResponseWriter, r *http.Request, user *models.User) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live updates are not enabled")
		return
	}
	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	ctx := r.Context()
	log := logging.For(ctx, s.logger).With(zap.String("user", user.UID))

	ch, cancel := s.hub.Subscribe(events.ForUser(user.UID))
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(kind string) error {
		d, err := s.interests.Dashboard(ctx, user)
		if err != nil {
			return err
		}
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send("dashboard"); err != nil {
		log.Debug("stream closed", zap.Error(err))
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := send(string(ev.Kind)); err != nil {
				log.Debug("stream closed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
