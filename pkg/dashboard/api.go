package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/fortiblox/cellvm/pkg/cpu"
	"github.com/fortiblox/cellvm/pkg/programstore"
	"github.com/fortiblox/cellvm/pkg/runlog"
)

// StatusResponse is the response for GET /api/status.
type StatusResponse struct {
	RunsServed    uint64  `json:"runsServed"`
	RunsRecorded  uint64  `json:"runsRecorded"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Journal       bool    `json:"journal"`
	Store         bool    `json:"store"`
}

// RunBrief summarizes one recorded run.
type RunBrief struct {
	Seq        uint64   `json:"seq"`
	ProgramID  string   `json:"programId"`
	Status     string   `json:"status"`
	Failed     bool     `json:"failed"`
	Steps      int64    `json:"steps"`
	Registers  [4]int32 `json:"registers"`
	StackSize  int32    `json:"stackSize"`
	Started    string   `json:"started"`
	DurationUs int64    `json:"durationUs"`
}

// RunsListResponse is the response for GET /api/runs.
type RunsListResponse struct {
	Runs  []RunBrief `json:"runs"`
	Total uint64     `json:"total"`
}

// ProgramBrief summarizes one stored program.
type ProgramBrief struct {
	Name  string `json:"name,omitempty"`
	ID    string `json:"id"`
	Cells int    `json:"cells"`
	Added string `json:"added"`
}

// MetricsResponse is the response for GET /api/metrics.
type MetricsResponse struct {
	MemAlloc     uint64 `json:"memAlloc"`
	MemSys       uint64 `json:"memSys"`
	MemHeapInuse uint64 `json:"memHeapInuse"`
	NumGC        uint32 `json:"numGC"`

	NumGoroutine int    `json:"numGoroutine"`
	NumCPU       int    `json:"numCPU"`
	GoVersion    string `json:"goVersion"`

	RunsServed    uint64  `json:"runsServed"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

func (d *Dashboard) status() StatusResponse {
	up := d.uptime()
	resp := StatusResponse{
		Uptime:        formatDuration(up),
		UptimeSeconds: up.Seconds(),
		Journal:       d.runs != nil,
		Store:         d.programs != nil,
	}
	if d.stats != nil {
		resp.RunsServed = d.stats.Runs()
	}
	if d.runs != nil {
		resp.RunsRecorded = d.runs.Count()
	}
	return resp
}

// handleAPIStatus handles GET /api/status.
func (d *Dashboard) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, d.status())
}

// handleAPIRuns handles GET /api/runs?limit=N.
func (d *Dashboard) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if d.runs == nil {
		writeError(w, "No run journal", http.StatusNotFound)
		return
	}

	limit := 25
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	recs, err := d.runs.Recent(limit)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, RunsListResponse{Runs: runBriefs(recs), Total: d.runs.Count()})
}

// handleAPIRun handles GET /api/runs/:seq.
func (d *Dashboard) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if d.runs == nil {
		writeError(w, "No run journal", http.StatusNotFound)
		return
	}

	seqStr := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		writeError(w, "Invalid sequence number", http.StatusBadRequest)
		return
	}

	rec, err := d.runs.Get(seq)
	if errors.Is(err, runlog.ErrNotFound) {
		writeError(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, runBrief(rec))
}

// handleAPIPrograms handles GET /api/programs.
func (d *Dashboard) handleAPIPrograms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if d.programs == nil {
		writeError(w, "No program store", http.StatusNotFound)
		return
	}

	entries, err := d.programs.List()
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, programBriefs(entries))
}

// handleAPIMetrics handles GET /api/metrics.
func (d *Dashboard) handleAPIMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mem := getMemStats()
	resp := MetricsResponse{
		MemAlloc:      mem.Alloc,
		MemSys:        mem.Sys,
		MemHeapInuse:  mem.HeapInuse,
		NumGC:         mem.NumGC,
		NumGoroutine:  runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GoVersion:     runtime.Version(),
		UptimeSeconds: d.uptime().Seconds(),
	}
	if d.stats != nil {
		resp.RunsServed = d.stats.Runs()
	}
	writeJSON(w, resp)
}

func runBrief(r *runlog.Record) RunBrief {
	return RunBrief{
		Seq:        r.Seq,
		ProgramID:  r.ProgramID.String(),
		Status:     r.Status.String(),
		Failed:     r.Status.Failed(),
		Steps:      r.Steps,
		Registers:  r.Registers,
		StackSize:  r.StackSize,
		Started:    r.Started.UTC().Format(time.RFC3339),
		DurationUs: r.Duration.Microseconds(),
	}
}

func runBriefs(recs []*runlog.Record) []RunBrief {
	out := make([]RunBrief, 0, len(recs))
	for _, r := range recs {
		out = append(out, runBrief(r))
	}
	return out
}

func programBriefs(entries []programstore.Entry) []ProgramBrief {
	out := make([]ProgramBrief, 0, len(entries))
	for _, e := range entries {
		out = append(out, ProgramBrief{
			Name:  e.Name,
			ID:    e.ID.String(),
			Cells: e.Size / cpu.CellSize,
			Added: e.Added.UTC().Format(time.RFC3339),
		})
	}
	return out
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
