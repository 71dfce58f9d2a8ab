package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/sudorandom/latency-map/pkg/latency"
	"github.com/sudorandom/latency-map/pkg/radar"
	"github.com/sudorandom/latency-map/pkg/sources"
)

var cli struct {
	URL      string        `help:"Latency endpoint to poll." default:"${proxy_url}"`
	Direct   bool          `help:"Query the Radar API directly instead of the proxy endpoint."`
	Token    string        `help:"Radar API token, used with --direct." env:"CLOUDFLARE_API_TOKEN"`
	Interval time.Duration `help:"Poll interval." default:"7s"`
	Timeout  time.Duration `help:"How long to run before exiting (0 for infinite)."`
	JSON     bool          `help:"Print every result as JSON instead of showing stats."`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	kong.Parse(&cli,
		kong.Name("latency-probe"),
		kong.Description("Polls the live latency feed and reports what it returns."),
		kong.Vars{"proxy_url": sources.DefaultProxyURL},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}

	var src latency.Source = &latency.HTTPSource{URL: cli.URL}
	target := cli.URL
	if cli.Direct {
		client := radar.NewClient(radar.Options{Token: cli.Token})
		src = latency.SourceFunc(client.Latencies)
		target = sources.RadarIQITimeseriesURL
	}
	log.Printf("Polling %s every %s", target, cli.Interval)

	stats := NewStats()
	poller := latency.NewPoller(src, cli.Interval)
	poller.OnResult = func(latencies []float64, err error, elapsed time.Duration) {
		stats.Record(latencies, err, elapsed)
		if cli.JSON {
			printJSON(latencies, err, elapsed)
		}
	}
	poller.Start(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !cli.JSON {
				stats.Report(os.Stdout)
			}
		case <-ctx.Done():
			poller.Stop()
			if !cli.JSON {
				stats.Report(os.Stdout)
			}
			log.Println("Exiting...")
			return
		}
	}
}

func printJSON(latencies []float64, err error, elapsed time.Duration) {
	out := struct {
		Time      time.Time `json:"time"`
		ElapsedMs int64     `json:"elapsedMs"`
		Latencies []float64 `json:"latencies,omitempty"`
		Error     string    `json:"error,omitempty"`
	}{Time: time.Now(), ElapsedMs: elapsed.Milliseconds(), Latencies: latencies}
	if err != nil {
		out.Error = err.Error()
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Printf("%s\n\n", b)
}
