package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/probemux/probemux/multi"
	"github.com/probemux/probemux/probe"
)

// Agent is the probe agent HTTP daemon.
type Agent struct {
	logger *zap.SugaredLogger
	cfg    Config

	// probes maps probe id to its proxy. Handlers run concurrently, and
	// each proxy serializes its own calls, so the table is the only shared
	// state here.
	probes *xsync.MapOf[string, *multi.Proxy]

	httpServer *http.Server
}

// Option customizes an Agent.
type Option func(a *Agent)

// WithLogger sets the agent logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) {
		a.logger = l.Named("probeagent").Sugar()
	}
}

// New constructs an agent from cfg.
func New(cfg Config, opts ...Option) (*Agent, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	a := &Agent{
		logger: logger.Named("probeagent").Sugar(),
		cfg:    cfg,
		probes: xsync.NewMapOf[string, *multi.Proxy](),
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Handler returns the agent's HTTP handler.
func (a *Agent) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/probes", a.listProbes)
	router.POST("/probes", a.openProbe)
	router.DELETE("/probes/:id", a.closeProbe)
	router.POST("/probes/:id/op/:name", a.invokeOp)
	router.GET("/probes/:id/rtt/:channel", a.rttWS)
	return router
}

// Run serves the agent until Stop is called.
func (a *Agent) Run() error {
	listener, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.ListenAddr, err)
	}
	a.logger.Infow("probe agent listening", "Addr", listener.Addr().String())

	server := http.Server{Handler: a.Handler()}
	a.httpServer = &server

	err = server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts down the HTTP server and terminates every open probe.
func (a *Agent) Stop() error {
	var err error
	if a.httpServer != nil {
		err = a.httpServer.Close()
	}
	a.probes.Range(func(id string, p *multi.Proxy) bool {
		a.probes.Delete(id)
		if terr := p.Terminate(); terr != nil {
			a.logger.Warnw("terminating probe on shutdown", "ProbeID", id, "Error", terr)
		}
		return true
	})
	return err
}

type probeStatus struct {
	ID     string
	Family string
	Alive  bool
}

type openProbeRequest struct {
	Family      string
	LibraryPath string
}

type openProbeResponse struct {
	ID string
}

type invokeRequest struct {
	Args []any
	Opts map[string]any
}

type invokeResponse struct {
	Value any
}

type errorResponse struct {
	Error string
	Code  int32 `json:",omitempty"`
}

func (a *Agent) listProbes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var out []probeStatus
	a.probes.Range(func(id string, p *multi.Proxy) bool {
		out = append(out, probeStatus{ID: id, Family: p.Family(), Alive: p.IsAlive()})
		return true
	})
	writeJSON(w, http.StatusOK, out)
}

func (a *Agent) openProbe(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req openProbeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	family := req.Family
	if family == "" {
		family = a.cfg.DefaultFamily
	}
	libraryPath := req.LibraryPath
	if libraryPath == "" {
		libraryPath = a.cfg.LibraryPath
	}

	id := uuid.NewString()
	cfg := multi.Config{
		Family:      family,
		LibraryPath: libraryPath,
		Log:         a.cfg.ProbeLog,
		LogPrefix:   "probe-" + id,
	}
	if a.cfg.ProbeLogDir != "" {
		cfg.LogFilePath = filepath.Join(a.cfg.ProbeLogDir, id+".log")
	}

	p, err := multi.New(cfg, multi.WithLogger(a.logger.Desugar()))
	if err != nil {
		a.logger.Errorw("opening probe", "Family", family, "Error", err)
		writeJSON(w, errStatus(err), errorResponse{Error: err.Error(), Code: int32(probe.CodeOf(err))})
		return
	}

	a.probes.Store(id, p)
	a.logger.Infow("probe opened", "ProbeID", id, "Family", family)
	writeJSON(w, http.StatusOK, openProbeResponse{ID: id})
}

func (a *Agent) closeProbe(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := params.ByName("id")
	p, ok := a.probes.LoadAndDelete(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("no probe %q", id)})
		return
	}
	if err := p.Terminate(); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	a.logger.Infow("probe closed", "ProbeID", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *Agent) invokeOp(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := params.ByName("id")
	op := params.ByName("name")

	p, ok := a.probes.Load(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("no probe %q", id)})
		return
	}

	req := invokeRequest{}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}

	value, err := p.InvokeOpts(op, req.Opts, req.Args...)
	if err != nil {
		writeJSON(w, errStatus(err), errorResponse{Error: err.Error(), Code: int32(probe.CodeOf(err))})
		return
	}
	writeJSON(w, http.StatusOK, invokeResponse{Value: value})
}

// rttMessage is one WebSocket frame of RTT channel data, in either
// direction.
type rttMessage struct {
	Data []byte
}

const rttReadChunk = 4096

// rttWS streams an RTT channel over a WebSocket: up-channel data flows to
// the client, incoming messages are written to the matching down channel.
func (a *Agent) rttWS(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := params.ByName("id")
	p, ok := a.probes.Load(id)
	if !ok {
		http.Error(w, fmt.Sprintf("no probe %q", id), http.StatusNotFound)
		return
	}
	channel, err := strconv.ParseUint(params.ByName("channel"), 10, 32)
	if err != nil {
		http.Error(w, "bad channel index", http.StatusBadRequest)
		return
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		a.logger.Debugf("RTT WebSocket accept error: %s", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log := a.logger.Named("rtt").With("ProbeID", id, "Channel", channel)

	// Writer side: client frames go to the down channel.
	go func() {
		defer cancel()
		for {
			var msg rttMessage
			err := wsjson.Read(ctx, wsConn, &msg)
			if err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					log.Debugf("RTT reader error: %s", err)
				}
				return
			}
			if len(msg.Data) == 0 {
				continue
			}
			if _, err := p.RTTWrite(uint32(channel), msg.Data); err != nil {
				log.Debugf("RTT write error: %s", err)
				return
			}
		}
	}()

	// Reader side: poll the up channel and push frames to the client.
	for {
		select {
		case <-ctx.Done():
			wsConn.Close(websocket.StatusNormalClosure, "")
			return
		default:
		}

		data, err := p.RTTRead(uint32(channel), rttReadChunk)
		if err != nil {
			log.Debugf("RTT read error: %s", err)
			wsConn.Close(websocket.StatusInternalError, err.Error())
			return
		}
		if len(data) == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err := wsjson.Write(ctx, wsConn, rttMessage{Data: data}); err != nil {
			log.Debugf("RTT stream write error: %s", err)
			return
		}
	}
}

func errStatus(err error) int {
	var unknownOp *multi.UnknownOperationError
	var transport *multi.TransportError
	var probeErr *probe.Error
	switch {
	case errors.As(err, &unknownOp):
		return http.StatusNotFound
	case errors.Is(err, multi.ErrUnavailable):
		return http.StatusGone
	case errors.Is(err, multi.ErrAlreadyInstantiated):
		return http.StatusConflict
	case errors.As(err, &transport):
		return http.StatusBadGateway
	case errors.As(err, &probeErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
