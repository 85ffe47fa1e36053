package servicing

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/gorilla/mux"
	"github.com/jinzhu/copier"
	log "github.com/sirupsen/logrus"

	"trident/internal/cosi"
	"trident/internal/encryption"
	"trident/internal/hostconfig"
	"trident/internal/partitiontype"
	"trident/internal/storagegraph"
	"trident/internal/tridenterr"
)

// State is the control plane's durable-for-the-process-lifetime view of
// the host: the configuration it was last provisioned with, the
// configuration currently being requested, the last error observed, and
// a coarse servicing-state label.
type State struct {
	mu sync.RWMutex

	provisioned *hostconfig.HostConfiguration
	servicing   *hostconfig.HostConfiguration
	lastError   error
	phase       string
}

// NewState returns an idle control-plane state, phase "idle".
func NewState() *State {
	return &State{phase: "idle"}
}

func (s *State) setProvisioned(hc *hostconfig.HostConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provisioned = hc
}

func (s *State) setServicing(hc *hostconfig.HostConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servicing = hc
}

func (s *State) setLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = err
}

func (s *State) setPhase(phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// snapshotConfig deep-copies a stored configuration so a read handler
// never hands out a pointer into state a later servicing request will
// mutate. The typed sections copy structurally; the untyped Extra
// container re-parses its own serialized form, since copier's reflection
// cannot reach gabs' unexported document root.
func snapshotConfig(src *hostconfig.HostConfiguration) *hostconfig.HostConfiguration {
	if src == nil {
		return nil
	}
	var out hostconfig.HostConfiguration
	if err := copier.CopyWithOption(&out, src, copier.Option{DeepCopy: true}); err != nil {
		log.WithError(err).Warn("failed to deep-copy host configuration, returning shared reference")
		return src
	}
	if src.Extra != nil {
		if clone, err := gabs.ParseJSON(src.Extra.Bytes()); err == nil {
			out.Extra = clone
		}
	}
	return &out
}

// Server is the HTTP+NDJSON RPC surface fronting a Coordinator. Routes
// are registered on a gorilla/mux.Router for method-based routing across
// the many named endpoints.
type Server struct {
	Coordinator *Coordinator
	Forwarder   *LogForwarder
	State       *State
	Backend     Backend

	router *mux.Router
}

// NewServer wires every control-plane route.
func NewServer(coord *Coordinator, forwarder *LogForwarder, state *State, backend Backend) *Server {
	if backend == nil {
		backend = NopBackend{}
	}
	s := &Server{Coordinator: coord, Forwarder: forwarder, State: state, Backend: backend, router: mux.NewRouter()}

	// Unary reads.
	s.router.HandleFunc("/validateHostConfiguration", s.handleValidateHostConfiguration).Methods(http.MethodPost)
	s.router.HandleFunc("/getRequiredServicingType", s.handleGetRequiredServicingType).Methods(http.MethodPost)
	s.router.HandleFunc("/getProvisionedConfig", s.handleGetProvisionedConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/getServicingConfig", s.handleGetServicingConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/getLastError", s.handleGetLastError).Methods(http.MethodGet)
	s.router.HandleFunc("/getServicingState", s.handleGetServicingState).Methods(http.MethodGet)
	s.router.HandleFunc("/getActiveVolume", s.handleGetActiveVolume).Methods(http.MethodGet)

	// Streaming servicing operations. Each shares the same Start/Log*/
	// FinalStatus envelope; only the worker body differs.
	for _, op := range []string{
		"install", "installStage", "installFinalize",
		"update", "updateStage", "updateFinalize",
		"checkRoot", "commit", "streamImage", "rebuildRaid",
	} {
		op := op
		s.router.HandleFunc("/"+op, func(w http.ResponseWriter, r *http.Request) {
			s.handleServicingStream(w, r, op)
		}).Methods(http.MethodPost)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	loggingWrap(s.router).ServeHTTP(w, r)
}

// loggingWrap logs method/path/client for every request the control
// plane serves.
func loggingWrap(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"client": r.RemoteAddr,
		}).Debug("request served")
	})
}

func writeUnavailable(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) handleValidateHostConfiguration(w http.ResponseWriter, r *http.Request) {
	guard, err := s.Coordinator.AcquireRead()
	if err != nil {
		writeUnavailable(w, err)
		return
	}
	defer guard.Release()

	var hc hostconfig.HostConfiguration
	if err := json.NewDecoder(r.Body).Decode(&hc); err != nil {
		writeError(w, http.StatusBadRequest, tridenterr.Wrap(tridenterr.InvalidInput, err, "malformed host configuration"))
		return
	}

	if _, err := storagegraph.Build(&hc); err != nil {
		writeError(w, http.StatusUnprocessableEntity, tridenterr.Wrap(tridenterr.InvalidInput, err, "storage graph build failed"))
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"valid": true})
}

func (s *Server) handleGetRequiredServicingType(w http.ResponseWriter, r *http.Request) {
	guard, err := s.Coordinator.AcquireRead()
	if err != nil {
		writeUnavailable(w, err)
		return
	}
	defer guard.Release()

	var requested hostconfig.HostConfiguration
	if err := json.NewDecoder(r.Body).Decode(&requested); err != nil {
		writeError(w, http.StatusBadRequest, tridenterr.Wrap(tridenterr.InvalidInput, err, "malformed host configuration"))
		return
	}

	s.State.mu.RLock()
	provisioned := s.State.provisioned
	s.State.mu.RUnlock()

	servicingType := "CleanInstall"
	if provisioned != nil {
		servicingType = "AbUpdate"
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"servicingType": servicingType})
}

func (s *Server) handleGetProvisionedConfig(w http.ResponseWriter, r *http.Request) {
	guard, err := s.Coordinator.AcquireRead()
	if err != nil {
		writeUnavailable(w, err)
		return
	}
	defer guard.Release()

	s.State.mu.RLock()
	cfg := snapshotConfig(s.State.provisioned)
	s.State.mu.RUnlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(cfg)
}

func (s *Server) handleGetServicingConfig(w http.ResponseWriter, r *http.Request) {
	guard, err := s.Coordinator.AcquireRead()
	if err != nil {
		writeUnavailable(w, err)
		return
	}
	defer guard.Release()

	s.State.mu.RLock()
	cfg := snapshotConfig(s.State.servicing)
	s.State.mu.RUnlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(cfg)
}

func (s *Server) handleGetLastError(w http.ResponseWriter, r *http.Request) {
	guard, err := s.Coordinator.AcquireRead()
	if err != nil {
		writeUnavailable(w, err)
		return
	}
	defer guard.Release()

	s.State.mu.RLock()
	lastErr := s.State.lastError
	s.State.mu.RUnlock()

	w.WriteHeader(http.StatusOK)
	if lastErr == nil {
		json.NewEncoder(w).Encode(map[string]interface{}{"error": nil})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"error": lastErr.Error()})
}

func (s *Server) handleGetServicingState(w http.ResponseWriter, r *http.Request) {
	guard, err := s.Coordinator.AcquireRead()
	if err != nil {
		writeUnavailable(w, err)
		return
	}
	defer guard.Release()

	s.State.mu.RLock()
	phase := s.State.phase
	s.State.mu.RUnlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"state": phase})
}

func (s *Server) handleGetActiveVolume(w http.ResponseWriter, r *http.Request) {
	guard, err := s.Coordinator.AcquireRead()
	if err != nil {
		writeUnavailable(w, err)
		return
	}
	defer guard.Release()

	mountPoint := r.URL.Query().Get("mountPoint")
	volumeA := r.URL.Query().Get("volumeAPath")
	volumeB := r.URL.Query().Get("volumeBPath")

	active, err := ActiveVolume(mountPoint, volumeA, volumeB)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"activeVolume": active})
}

// streamFrame is the single NDJSON line shape every frame of a servicing
// response stream uses; at most one of the payload fields is set,
// according to the Start/Log/FinalStatus sequence.
type streamFrame struct {
	Type        string    `json:"type"`
	Log         *LogEntry `json:"log,omitempty"`
	FinalError  *string   `json:"error,omitempty"`
}

func (s *Server) handleServicingStream(w http.ResponseWriter, r *http.Request, op string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, tridenterr.Internalf("response writer does not support streaming"))
		return
	}

	// The body must be fully consumed before the first response byte goes
	// out: the worker runs on its own goroutine concurrently with the
	// streaming writes below, and net/http forbids reading the request
	// body once the response has started.
	var req servicingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, tridenterr.Wrap(tridenterr.InvalidInput, err, "malformed servicing request"))
		return
	}

	worker := func(emit func(LogEntry)) error {
		return s.runServicingOp(op, &req, emit)
	}

	logs, wait, err := s.Coordinator.RunServicing(s.Forwarder, worker)
	if err != nil {
		writeUnavailable(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)

	writeFrame := func(f streamFrame) {
		data, _ := json.Marshal(f)
		bw.Write(data)
		bw.WriteByte('\n')
		bw.Flush()
		flusher.Flush()
	}

	writeFrame(streamFrame{Type: "start"})
	for entry := range logs {
		e := entry
		writeFrame(streamFrame{Type: "log", Log: &e})
	}

	workErr := wait()
	s.State.setLastError(workErr)
	var errStr *string
	if workErr != nil {
		msg := workErr.Error()
		errStr = &msg
	}
	writeFrame(streamFrame{Type: "finalStatus", FinalError: errStr})
}

// servicingRequest is the request body every streaming servicing RPC
// accepts: the host configuration to apply, plus an optional path to the
// COSI file the images come from.
type servicingRequest struct {
	HostConfiguration hostconfig.HostConfiguration `json:"hostConfiguration"`
	CosiFile          string                       `json:"cosiFile,omitempty"`
}

func servicingTypeFor(op string) encryption.ServicingType {
	switch op {
	case "install", "installStage", "installFinalize":
		return encryption.CleanInstall
	default:
		return encryption.AbUpdate
	}
}

// infoEntry builds an info-level log frame for the servicing stream.
func infoEntry(op, msg string) LogEntry {
	return LogEntry{Timestamp: time.Now().UTC(), Target: "servicing", Module: op, Level: int(log.InfoLevel), Message: msg}
}

// runServicingOp is the worker body shared by every streaming RPC: it
// validates the request's host configuration and COSI metadata, plans
// encryption, and hands the resulting artifacts to the external-tool
// Backend. The Backend is the only part that touches disks; everything
// before it is pure validation and planning.
func (s *Server) runServicingOp(op string, req *servicingRequest, emit func(LogEntry)) error {
	emit(infoEntry(op, "starting "+op))

	hc := &req.HostConfiguration

	graph, err := storagegraph.Build(hc)
	if err != nil {
		return tridenterr.Wrap(tridenterr.InvalidInput, err, "storage graph build failed")
	}
	emit(infoEntry(op, fmt.Sprintf("storage graph built: %d nodes", len(graph.Nodes()))))
	s.State.setServicing(hc)
	s.State.setPhase(op)

	if req.CosiFile != "" {
		if err := s.validateCosiFile(op, req.CosiFile, emit); err != nil {
			return err
		}
	}

	if hc.Encryption != nil {
		if err := s.planEncryption(op, hc, graph, emit); err != nil {
			return err
		}
	}

	switch op {
	case "checkRoot", "commit":
		// Verification-only operations: everything they assert has already
		// been checked above.
	default:
		if err := s.Backend.ApplyStorage(graph); err != nil {
			return tridenterr.Wrap(tridenterr.Servicing, err, "failed to apply storage plan")
		}
		emit(infoEntry(op, "storage plan applied"))
	}

	if op == "install" || op == "installFinalize" || op == "update" || op == "updateFinalize" {
		s.State.setProvisioned(hc)
	}
	s.State.setPhase("idle")
	emit(infoEntry(op, op+" complete"))
	return nil
}

func (s *Server) validateCosiFile(op, path string, emit func(LogEntry)) error {
	f, err := os.Open(path)
	if err != nil {
		return tridenterr.Wrapf(tridenterr.InvalidCosi, err, "failed to open COSI file %q", path)
	}
	defer f.Close()

	meta, err := cosi.ScanMetadata(f)
	if err != nil {
		return tridenterr.Wrap(tridenterr.InvalidCosi, err, "failed to read COSI metadata")
	}
	warnings, err := cosi.Validate(meta)
	for _, wn := range warnings {
		emit(LogEntry{Timestamp: time.Now().UTC(), Target: "servicing", Module: op, Level: int(log.WarnLevel), Message: fmt.Sprintf("COSI metadata: %s: %s", wn.Kind, wn.Detail)})
	}
	if err != nil {
		return tridenterr.Wrap(tridenterr.InvalidCosi, err, "COSI metadata validation failed")
	}
	if meta.OsArch != "" && meta.NormalizedArch() != partitiontype.CurrentArch() {
		return tridenterr.New(tridenterr.InvalidInput,
			fmt.Sprintf("COSI image architecture %q does not match host architecture %q", meta.OsArch, partitiontype.CurrentArch()))
	}
	emit(infoEntry(op, fmt.Sprintf("COSI metadata validated: version %s, %d images", meta.Version, len(meta.Images))))
	return nil
}

func (s *Server) planEncryption(op string, hc *hostconfig.HostConfiguration, graph *storagegraph.Graph, emit func(LogEntry)) error {
	isUki := hc.Bootloader != nil && hc.Bootloader.Image == hostconfig.ImageTypeUki
	if err := encryption.StaticValidate(hc.Encryption, isUki, false, true); err != nil {
		return tridenterr.Wrap(tridenterr.InvalidInput, err, "encryption validation failed")
	}

	plan, err := encryption.SelectPlan(servicingTypeFor(op), isUki)
	if err != nil {
		return tridenterr.Wrap(tridenterr.Internal, err, "encryption plan selection failed")
	}
	emit(infoEntry(op, fmt.Sprintf("encryption plan selected: %s", plan.Action)))

	entries := encryption.SynthesizeCrypttab(hc.Encryption.Volumes,
		func(deviceID string) string { return "/dev/disk/by-partlabel/" + deviceID },
		func(volumeID string) bool {
			n, ok := graph.Lookup(volumeID)
			if !ok {
				return false
			}
			for _, r := range graph.Referrers(n) {
				if r.Kind == storagegraph.KindFileSystem && r.FileSystem.Type == hostconfig.FsSwap {
					return true
				}
			}
			return false
		})
	if err := s.Backend.WriteCrypttab(encryption.RenderCrypttab(entries)); err != nil {
		return tridenterr.Wrap(tridenterr.Servicing, err, "failed to write crypttab")
	}
	emit(infoEntry(op, fmt.Sprintf("crypttab synthesized: %d entries", len(entries))))
	return nil
}
