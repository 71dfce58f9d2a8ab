package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"
	"github.com/sudorandom/latency-map/pkg/dataset"
	"github.com/sudorandom/latency-map/pkg/filter"
	"github.com/sudorandom/latency-map/pkg/history"
	"github.com/sudorandom/latency-map/pkg/latency"
	"github.com/sudorandom/latency-map/pkg/radar"
	"github.com/sudorandom/latency-map/pkg/render"
	"github.com/sudorandom/latency-map/pkg/server"
	"github.com/sudorandom/latency-map/pkg/sources"
	"github.com/sudorandom/latency-map/pkg/utils"
)

var cli struct {
	Listen        string        `help:"Address to serve the dashboard on." default:":8080" env:"LISTEN_ADDR"`
	RadarToken    string        `help:"Bearer token for the Cloudflare Radar API." env:"CLOUDFLARE_API_TOKEN"`
	RadarURL      string        `help:"Radar timeseries endpoint." default:"${radar_url}"`
	Locations     string        `help:"Comma-separated Radar location filter." default:"${locations}"`
	RadarRate     float64       `help:"Maximum upstream requests per second (0 disables the limit)." default:"1"`
	MapToken      string        `help:"Public map rendering access token handed to browsers." env:"MAPBOX_ACCESS_TOKEN"`
	PollInterval  time.Duration `help:"Live latency poll interval." default:"7s"`
	DataDir       string        `help:"Directory holding exchanges, cloud_regions and latency_samples (.json or .yaml)." type:"path"`
	DataURL       string        `help:"Base URL to fetch the reference datasets from."`
	CacheDir      string        `help:"Directory for downloaded files." default:"data/cache" type:"path"`
	HistoryDir    string        `help:"Directory of the recorded latency history (empty disables recording)." default:"data/history" type:"path"`
	GeoipDB       string        `help:"MaxMind city database for /api/locate." type:"path"`
	FrameInterval time.Duration `help:"Animation frame interval of map sessions." default:"${frame_interval}"`
	GinDebug      bool          `help:"Run gin in debug mode."`
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	kong.Parse(&cli,
		kong.Name("latency-map"),
		kong.Description("Serves the exchange to cloud region latency map."),
		kong.Vars{
			"radar_url":      sources.RadarIQITimeseriesURL,
			"locations":      sources.RadarLocations,
			"frame_interval": render.DefaultFrameInterval.String(),
		},
	)
	if !cli.GinDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	if cli.MapToken == "" {
		log.Printf("No map access token configured; map tiles will fail to load")
	}
	utils.CacheDir = cli.CacheDir

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("latency-map: %v", err)
	}
}

func run(ctx context.Context) error {
	cat, err := dataset.Load(ctx, cli.DataDir, cli.DataURL)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d exchanges, %d providers, %d samples",
		len(cat.Exchanges()), len(cat.CloudRegions()), len(cat.Samples()))

	var store *history.Store
	if cli.HistoryDir != "" {
		store, err = history.OpenStore(filepath.Clean(cli.HistoryDir))
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("[history] Error closing store: %v", err)
			}
		}()
	}

	var geo *server.GeoIP
	if cli.GeoipDB != "" {
		geo, err = server.OpenGeoIP(cli.GeoipDB)
		if err != nil {
			return err
		}
		defer func() {
			if err := geo.Close(); err != nil {
				log.Printf("[geoip] Error closing database: %v", err)
			}
		}()
	}

	client := radar.NewClient(radar.Options{
		BaseURL:           cli.RadarURL,
		Token:             cli.RadarToken,
		Locations:         cli.Locations,
		RequestsPerSecond: cli.RadarRate,
		Burst:             2,
	})

	srv, err := server.New(server.Config{
		Catalog:       cat,
		Upstream:      client,
		Store:         filter.NewStore(),
		History:       history.NewService(store, cat.Samples(), time.Now().UnixNano()),
		GeoIP:         geo,
		MapToken:      cli.MapToken,
		PollInterval:  cli.PollInterval,
		FrameInterval: cli.FrameInterval,
	})
	if err != nil {
		return err
	}
	if cli.PollInterval < latency.DefaultInterval {
		log.Printf("Poll interval %s is shorter than the default %s", cli.PollInterval, latency.DefaultInterval)
	}

	httpServer := &http.Server{
		Addr:              cli.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv.Start(ctx)
	defer srv.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", cli.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
