// Command hudp-demo is a minimal sender/receiver showing the facade end
// to end: bind a role, wire the optional tracking and metrics
// observers, and either type lines to send or print what arrives.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"hudp"
	"hudp/delivery"
	"hudp/observability"
	"hudp/pkgtrack"
)

const version = "1.0.0"

func main() {
	role := flag.String("role", "", "sender or receiver")
	localPort := flag.Int("port", 9000, "local UDP port to bind")
	remoteAddr := flag.String("remote", "", "remote host:port (sender role only)")
	metricsAddr := flag.String("metrics", "", "if set, serve Prometheus metrics on this address (e.g. :2112)")
	trackDir := flag.String("track-dir", "", "packet tracking journal directory (default packet_tracking)")
	flag.Parse()

	log := observability.NewLogger()
	observability.Banner(log, "H-UDP Demo", version)

	var r hudp.Role
	switch *role {
	case "sender":
		r = hudp.RoleSender
	case "receiver":
		r = hudp.RoleReceiver
	default:
		log.Fatal("hudp-demo: -role must be \"sender\" or \"receiver\"")
	}

	tracker := pkgtrack.NewTracker(*trackDir)
	observers := delivery.Multi{tracker}

	var promObserver *observability.PrometheusObserver
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		promObserver = observability.NewPrometheusObserver(reg)
		observers = append(observers, promObserver)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			log.WithField("addr", *metricsAddr).Info("hudp-demo: serving metrics")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.WithError(err).Warn("hudp-demo: metrics server stopped")
			}
		}()
	}

	facade, err := hudp.New(r, *localPort, *remoteAddr,
		hudp.WithLogger(log),
		hudp.WithObserver(observers),
	)
	if err != nil {
		log.WithError(err).Fatal("hudp-demo: failed to start")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})

	switch r {
	case hudp.RoleSender:
		go runSender(facade, promObserver, log, done)
	case hudp.RoleReceiver:
		go runReceiver(facade, log, done)
	}

	select {
	case <-sigChan:
		log.Warn("hudp-demo: signal received, shutting down")
	case <-done:
	}

	if err := facade.Close(); err != nil {
		log.WithError(err).Warn("hudp-demo: close reported an error")
	}

	stats := tracker.Stats()
	log.WithFields(map[string]interface{}{
		"total_sent":              stats.TotalSent,
		"total_received":          stats.TotalReceived,
		"overall_delivery_ratio":  stats.OverallDeliveryRatio,
		"reliable_delivery_ratio": stats.ReliableDeliveryRatio,
	}).Info("hudp-demo: final delivery stats")
}

// runSender reads lines from stdin and sends each on the reliable
// channel, reporting the assigned sequence.
func runSender(f *hudp.Facade, prom *observability.PrometheusObserver, log *logrus.Logger, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			if prom != nil {
				prom.SetWindowUsed(f.WindowUsed())
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("type a line and press enter to send it reliably; empty line to quit")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			return
		}
		seq, err := f.Send([]byte(line), true)
		if err != nil {
			log.WithError(err).Warn("hudp-demo: send failed")
			continue
		}
		log.WithField("seq", seq).Info("hudp-demo: sent")
	}
}

// runReceiver prints every delivery until the facade is closed.
func runReceiver(f *hudp.Facade, log *logrus.Logger, done chan<- struct{}) {
	defer close(done)
	for {
		rec, ok, err := f.Receive(-1)
		if err != nil {
			log.WithError(err).Warn("hudp-demo: receive loop exiting")
			return
		}
		if !ok {
			continue
		}
		log.WithFields(map[string]interface{}{
			"seq":     rec.Seq,
			"latency": rec.Latency,
			"channel": rec.Channel,
		}).Infof("hudp-demo: delivered %q", rec.Payload)
	}
}
