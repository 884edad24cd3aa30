// Command dialoguesrv is a reference binary wiring package dialogue to a
// WebSocket transport, a YAML/env-driven config, and Prometheus metrics.
// Grounded on the Visper teacher's cmd/http/main.go: load config, build the
// dependency graph, mount routes, serve, wait for signal, shut down.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Hussseinkizz/dialogue"
	"github.com/Hussseinkizz/dialogue/config"
	"github.com/Hussseinkizz/dialogue/metrics"
	"github.com/Hussseinkizz/dialogue/transport"
)

func main() {
	log := zap.Must(zap.NewProduction()).Sugar()
	defer log.Sync()

	path, ok := config.TryDeterminePath()
	if !ok {
		log.Info("no config file found, running on defaults")
		path = ""
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	m := metrics.New(nil)

	limiter := dialogue.NewRateLimiter(cfg.RateLimiter.MaxRequests, cfg.RateLimiter.Window)

	server := dialogue.NewServer(
		dialogue.WithServerLogger(log),
		dialogue.WithServerMetrics(m, m, m.Dispatcher()),
		dialogue.WithServerRateLimiter(limiter),
		dialogue.WithHistoryHooks(func(roomID, eventName string, evicted []dialogue.EventMessage) {
			m.ObserveHistoryEvicted(len(evicted))
		}, nil),
	)

	for _, rc := range cfg.Rooms {
		if _, err := server.CreateRoom(rc.ID, rc.Name, roomOptions(rc, cfg.History.DefaultLimit)...); err != nil {
			log.Fatalw("failed to register static room", "room", rc.ID, "error", err)
		}
	}

	wsServer := transport.NewServer(transport.DefaultConfig())

	mux := http.NewServeMux()
	mux.HandleFunc("/dialogue/ws", wsHandler(server, wsServer, log))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", m.Handler())

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Host + ":" + strconv.Itoa(int(cfg.HTTP.Port)),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Infow("dialogue server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warnw("graceful shutdown failed", "error", err)
	}
	server.Close()
}

func wsHandler(server *dialogue.Server, wsServer *transport.Server, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wsTransport, auth, err := wsServer.Upgrade(w, r)
		if err != nil {
			log.Warnw("websocket upgrade failed", "error", err)
			return
		}

		client := server.HandleConnect(wsTransport, auth)
		if client == nil {
			wsTransport.Close("authentication rejected")
			return
		}

		wsTransport.OnMessage(func(raw []byte) {
			server.HandleMessage(r.Context(), client, raw)
		})
		wsTransport.OnClose(func(reason string) {
			server.HandleDisconnect(client)
		})
		wsTransport.Start()
	}
}

func roomOptions(rc config.StaticRoom, defaultHistoryLimit int) []dialogue.RoomOption {
	opts := []dialogue.RoomOption{
		dialogue.WithDescription(rc.Description),
		dialogue.WithMaxSize(rc.MaxSize),
	}

	if len(rc.DefaultSubscriptions) > 0 {
		opts = append(opts, dialogue.WithDefaultSubscriptions(rc.DefaultSubscriptions...))
	}

	if len(rc.Events) > 0 {
		defs := make([]dialogue.EventDefinition, 0, len(rc.Events))
		for _, name := range rc.Events {
			defs = append(defs, dialogue.MustDefineEvent(name, dialogue.WithHistory(defaultHistoryLimit)))
		}
		opts = append(opts, dialogue.WithRoomEvents(defs...))
	}

	if policy, ok := parseSyncHistoryOnJoin(rc.SyncHistoryOnJoin); ok {
		opts = append(opts, dialogue.WithSyncHistoryOnJoin(policy))
	}

	return opts
}

// parseSyncHistoryOnJoin reads the config's "none" | "all" | "<limit>"
// string form, matching StaticRoom.SyncHistoryOnJoin's documented values.
func parseSyncHistoryOnJoin(raw string) (dialogue.SyncHistoryOnJoin, bool) {
	switch raw {
	case "", "none":
		return dialogue.SyncHistoryOnJoin{}, false
	case "all":
		return dialogue.SyncHistoryAll(), true
	default:
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			return dialogue.SyncHistoryLimit(limit), true
		}
		return dialogue.SyncHistoryOnJoin{}, false
	}
}
