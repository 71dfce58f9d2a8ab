package history

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// WriteCSV writes points as "timestamp,latency_ms" rows, timestamps in unix
// milliseconds.
func WriteCSV(w io.Writer, points []Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "latency_ms"}); err != nil {
		return err
	}
	for _, p := range points {
		row := []string{
			strconv.FormatInt(p.Time.UnixMilli(), 10),
			strconv.FormatFloat(p.LatencyMs, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Record is the parquet row schema of an exported series.
type Record struct {
	Pair      string  `parquet:"name=pair, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN"`
	Timestamp int64   `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	LatencyMs float64 `parquet:"name=latency_ms, type=DOUBLE"`
}

// WriteParquet encodes points as a ZSTD-compressed parquet file and copies it to w.
func WriteParquet(w io.Writer, pair string, points []Point) error {
	dir, err := os.MkdirTemp("", "history-parquet-*")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("[history] Error removing %s: %v", dir, err)
		}
	}()
	path := filepath.Join(dir, "series.parquet")

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	pw, err := writer.NewParquetWriter(fw, new(Record), 1)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("init parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_ZSTD
	for _, p := range points {
		rec := Record{Pair: pair, Timestamp: p.Time.UnixMilli(), LatencyMs: p.LatencyMs}
		if err := pw.Write(rec); err != nil {
			_ = fw.Close()
			return fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return fmt.Errorf("finalize parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(w, f)
	return err
}

// RenderChart draws points as a PNG line chart.
func RenderChart(w io.Writer, title string, points []Point, width, height int) error {
	if len(points) == 0 {
		return fmt.Errorf("no points to chart")
	}
	xs := make([]time.Time, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.Time
		ys[i] = p.LatencyMs
	}
	// go-chart needs at least two X values to compute a range.
	if len(xs) == 1 {
		xs = append(xs, xs[0].Add(time.Second))
		ys = append(ys, ys[0])
	}

	format := "15:04"
	if xs[len(xs)-1].Sub(xs[0]) > 24*time.Hour {
		format = "01-02"
	}
	ch := chart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 30, Left: 16, Right: 16, Bottom: 12}},
		XAxis:      chart.XAxis{ValueFormatter: chart.TimeValueFormatterWithFormat(format)},
		YAxis:      chart.YAxis{Name: "ms"},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "latency",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("06b6d4"),
					StrokeWidth: 2,
				},
			},
		},
	}
	return ch.Render(chart.PNG, w)
}
