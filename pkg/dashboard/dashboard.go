// Package dashboard provides a small web dashboard for a cellvm server.
//
// It shows the number of runs served, the most recent runs recorded in the
// run journal and the contents of the program store, as HTML and as JSON
// under /api/.
package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fortiblox/cellvm/pkg/programstore"
	"github.com/fortiblox/cellvm/pkg/runlog"
)

// Config holds dashboard configuration options.
type Config struct {
	// BindAddress is the address to bind the HTTP server to.
	// Default: "127.0.0.1"
	BindAddress string

	// Port is the port to listen on.
	// Default: 7458
	Port int

	// RecentRuns is how many runs the home page lists.
	RecentRuns int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the default dashboard configuration.
func DefaultConfig() Config {
	return Config{
		BindAddress:  "127.0.0.1",
		Port:         7458,
		RecentRuns:   25,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ServerStats reports the activity of the run server.
type ServerStats interface {
	Runs() uint64
}

// Runs is the read side of the run journal.
type Runs interface {
	Count() uint64
	Get(seq uint64) (*runlog.Record, error)
	Recent(limit int) ([]*runlog.Record, error)
}

// Programs is the read side of the program store.
type Programs interface {
	List() ([]programstore.Entry, error)
}

// Dashboard is the web dashboard server. Any source may be nil.
type Dashboard struct {
	config   Config
	server   *http.Server
	stats    ServerStats
	runs     Runs
	programs Programs

	templates *template.Template

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// New creates a new dashboard server.
func New(config Config, stats ServerStats, runs Runs, programs Programs) (*Dashboard, error) {
	def := DefaultConfig()
	if config.BindAddress == "" {
		config.BindAddress = def.BindAddress
	}
	if config.Port == 0 {
		config.Port = def.Port
	}
	if config.RecentRuns <= 0 {
		config.RecentRuns = def.RecentRuns
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = def.IdleTimeout
	}

	d := &Dashboard{
		config:    config,
		stats:     stats,
		runs:      runs,
		programs:  programs,
		startTime: time.Now(),
	}

	tmpl, err := template.New("home").Funcs(template.FuncMap{
		"formatDuration": formatDuration,
	}).Parse(homeTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	d.templates = tmpl

	return d, nil
}

// Handler returns the dashboard's routes.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", d.handleHome)
	mux.HandleFunc("/api/status", d.handleAPIStatus)
	mux.HandleFunc("/api/runs", d.handleAPIRuns)
	mux.HandleFunc("/api/runs/", d.handleAPIRun)
	mux.HandleFunc("/api/programs", d.handleAPIPrograms)
	mux.HandleFunc("/api/metrics", d.handleAPIMetrics)
	return mux
}

// Start serves the dashboard until ctx is done or Stop is called.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dashboard already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.server = &http.Server{
		Addr:         d.Address(),
		Handler:      d.Handler(),
		ReadTimeout:  d.config.ReadTimeout,
		WriteTimeout: d.config.WriteTimeout,
		IdleTimeout:  d.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	srv := d.server
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		d.Stop()
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the dashboard server.
func (d *Dashboard) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	srv := d.server
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// Address returns the address the dashboard listens on.
func (d *Dashboard) Address() string {
	return net.JoinHostPort(d.config.BindAddress, strconv.Itoa(d.config.Port))
}

func (d *Dashboard) uptime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return time.Since(d.startTime)
}

// handleHome renders the overview page.
func (d *Dashboard) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := map[string]interface{}{
		"Status": d.status(),
	}
	if d.runs != nil {
		recs, err := d.runs.Recent(d.config.RecentRuns)
		if err != nil {
			data["RunsErr"] = err.Error()
		}
		data["Runs"] = runBriefs(recs)
	}
	if d.programs != nil {
		entries, err := d.programs.List()
		if err != nil {
			data["ProgramsErr"] = err.Error()
		}
		data["Programs"] = programBriefs(entries)
	}

	var buf strings.Builder
	if err := d.templates.Execute(&buf, data); err != nil {
		http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, buf.String())
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// getMemStats returns current memory statistics.
func getMemStats() runtime.MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m
}
