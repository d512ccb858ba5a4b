package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/roadtrip/internal/cache"
	"github.com/banshee-data/roadtrip/internal/config"
	"github.com/banshee-data/roadtrip/internal/db"
	"github.com/banshee-data/roadtrip/internal/httputil"
	"github.com/banshee-data/roadtrip/internal/osrm"
	"github.com/banshee-data/roadtrip/internal/overpass"
	"github.com/banshee-data/roadtrip/internal/partition"
	"github.com/banshee-data/roadtrip/internal/pipeline"
	"github.com/banshee-data/roadtrip/internal/render"
	"github.com/banshee-data/roadtrip/internal/report"
	"github.com/banshee-data/roadtrip/internal/route"
	"github.com/banshee-data/roadtrip/internal/security"
	"github.com/banshee-data/roadtrip/internal/subject"
	"github.com/banshee-data/roadtrip/internal/timeutil"
	"github.com/banshee-data/roadtrip/internal/version"
)

var (
	configPath   = flag.String("config", config.DefaultConfigPath, "Planner config file")
	catalogPath  = flag.String("catalog", config.DefaultCatalogPath, "Restaurant catalog file")
	cacheDir     = flag.String("cache-dir", "", "Cache directory (overrides config)")
	only         = flag.String("only", "", "Comma separated subject keys to process (default all)")
	reset        = flag.String("reset", "", "Invalidate a stage and everything after it, as key:stage")
	clearInvalid = flag.Bool("clear-invalid", false, "Remove route entries with no trips or bad payloads, then exit")
	dbPath       = flag.String("db", "", "SQLite archive to record runs in (disabled if empty)")
	listen       = flag.String("listen", "", "Serve the report on this address after the run, e.g. :8080")
	skipRun      = flag.Bool("serve-only", false, "Serve the cached report without running the pipeline")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// parseReset splits a -reset value of the form key:stage.
func parseReset(v string) (string, cache.Stage, error) {
	key, name, ok := strings.Cut(v, ":")
	if !ok || key == "" {
		return "", "", fmt.Errorf("reset %q: want key:stage", v)
	}
	if !subject.ValidKey(key) {
		return "", "", fmt.Errorf("reset %q: %w", v, cache.ErrInvalidKey)
	}
	stage, err := cache.ParseStage(name)
	if err != nil {
		return "", "", fmt.Errorf("reset %q: %w (want one of %v)", v, err, cache.Stages)
	}
	return key, stage, nil
}

// selectSubjects keeps the catalog subjects named in keys, in catalog order.
func selectSubjects(catalog []subject.Subject, keys string) ([]subject.Subject, error) {
	if strings.TrimSpace(keys) == "" {
		return catalog, nil
	}
	want := make(map[string]bool)
	for _, k := range strings.Split(keys, ",") {
		want[strings.TrimSpace(k)] = true
	}
	var out []subject.Subject
	for _, s := range catalog {
		if want[s.Key()] {
			out = append(out, s)
			delete(want, s.Key())
		}
	}
	if len(want) > 0 {
		var missing []string
		for k := range want {
			missing = append(missing, k)
		}
		return nil, fmt.Errorf("unknown subjects: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// overpassTimeout stretches the request timeout so Overpass can answer
// with its own query timeout error before the client gives up. Zero keeps
// requests unbounded.
func overpassTimeout(request time.Duration, c *overpass.Client) time.Duration {
	if request == 0 {
		return 0
	}
	return max(request, c.HTTPTimeout())
}

func newController(cfg *config.PlannerConfig, store *cache.Store) *pipeline.Controller {
	client := httputil.NewStandardClient(cfg.GetRequestTimeout())

	fetcher := overpass.New(cfg.GetOverpassURL(), nil)
	fetcher.Areas = cfg.GetAreas()
	fetcher.Subregions = cfg.GetIslandSubregions()
	fetcher.HTTP = httputil.NewStandardClient(overpassTimeout(cfg.GetRequestTimeout(), fetcher))

	return &pipeline.Controller{
		Store:   store,
		Fetcher: fetcher,
		Router: &route.Aggregator{
			Resolver:    osrm.New(cfg.GetOSRMURL(), client),
			Splitter:    partition.New(cfg.GetRoutingLimit(), cfg.GetKMeansSeed(), cfg.GetKMeansIterations()),
			Concurrency: cfg.GetPartitionConcurrency(),
		},
		Renderer:           render.NewMapRenderer(),
		Clock:              timeutil.RealClock{},
		DrivingHoursPerDay: cfg.GetDrivingHoursPerDay(),
		LeaderboardSize:    cfg.GetLeaderboardSize(),
		Concurrency:        cfg.GetSubjectConcurrency(),
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadPlannerConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	catalog, err := config.LoadCatalog(*catalogPath)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}
	subjects, err := selectSubjects(catalog, *only)
	if err != nil {
		log.Fatalf("%v", err)
	}

	root := cfg.GetCacheDir()
	if *cacheDir != "" {
		root = *cacheDir
	}
	store := cache.New(root, nil)
	ctrl := newController(cfg, store)

	if *reset != "" {
		key, stage, err := parseReset(*reset)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := ctrl.Reset(key, stage); err != nil {
			log.Fatalf("failed to reset %s: %v", *reset, err)
		}
		return
	}

	if *clearInvalid {
		cleared, err := ctrl.ClearInvalid(catalog)
		if err != nil {
			log.Fatalf("failed to clear invalid entries: %v", err)
		}
		log.Printf("cleared %d invalid route entries", len(cleared))
		return
	}

	var archive *db.DB
	if *dbPath != "" {
		if err := security.ValidateOutputPath(*dbPath); err != nil {
			log.Fatalf("invalid archive path: %v", err)
		}
		archive, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open archive: %v", err)
		}
		defer archive.Close()
		ctrl.Archiver = archive
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*skipRun {
		log.Printf("%s: %d subjects, cache %s", version.String(), len(subjects), store.Root())
		rr, err := ctrl.Run(ctx, subjects)
		if err != nil {
			log.Printf("run finished with error: %v", err)
		}
		if rr != nil {
			computed, failed := rr.Counts()
			log.Printf("run %s: %d subjects computed, %d failed", rr.ID, computed, failed)
		}
	}

	if *listen == "" {
		return
	}
	if err := serve(ctx, *listen, store, catalog, archive); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func serve(ctx context.Context, addr string, store *cache.Store, catalog []subject.Subject, archive *db.DB) error {
	mux := http.NewServeMux()
	report.NewServer(store, catalog).Routes(mux)
	if archive != nil {
		if err := archive.AttachAdminRoutes(mux); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		}),
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("serving report on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\nPlans a road trip through every location of each catalog restaurant.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}
