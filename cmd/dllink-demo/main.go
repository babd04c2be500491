// Command dllink-demo drives protocol.Engine instances (two, joined by an
// in-process lossy channel simulator, or one on a real serial port), so the
// engine's handshake, loss recovery, and teardown can be watched end to
// end. Structure follows the teacher's core/main.go: banner, load
// config, construct, wire signal handling, run, graceful stop.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dllink/config"
	"dllink/physical"
	"dllink/pkg/linklog"
	"dllink/pkg/linkmetrics"
	"dllink/protocol"
)

const version = "1.0.0"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	role := flag.String("role", "dial", "dial|listen: which side initiates the handshake")
	channelKind := flag.String("channel", "sim", "sim|serial: physical layer backend")
	serialPath := flag.String("serial", "", "serial device path, required when -channel=serial")
	serialDriver := flag.String("serial-driver", "bugst", "bugst|tarm: serial backend when -channel=serial")
	serialBaud := flag.Int("serial-baud", 115200, "serial baud rate")
	lossRate := flag.Float64("loss", 0.0, "simulated frame loss rate, 0..1 (sim channel only)")
	corruptRate := flag.Float64("corrupt", 0.0, "simulated frame corruption rate, 0..1 (sim channel only)")
	dupRate := flag.Float64("dup", 0.0, "simulated frame duplication rate, 0..1 (sim channel only)")
	windowSize := flag.Int("window", 8, "sliding window size, 1..8")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus /metrics on; empty disables it")
	message := flag.String("send", "Hola", "payload the dialing side sends once connected")
	flag.Parse()

	linklog.Banner("dllink protocol demo", version)

	opts := config.New(config.WithWindowSize(*windowSize))

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	var chanA, chanB physical.Channel
	switch *channelKind {
	case "sim":
		pair := physical.NewSimPair(1, *lossRate, *corruptRate, *dupRate)
		chanA, chanB = pair.A, pair.B
	case "serial":
		if *serialPath == "" {
			log.Fatal().Msg("-serial is required when -channel=serial")
		}
		ch, err := openSerial(*serialDriver, *serialPath, *serialBaud)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open serial channel")
		}
		chanA = ch
	default:
		log.Fatal().Str("channel", *channelKind).Msg("unknown -channel value")
	}

	engineA := protocol.NewEngineFromConfig(opts, func(b []byte) { _, _ = chanA.Write(b) }, loggingSink("A"))
	runReadLoop(chanA, engineA)

	var engineB *protocol.Engine
	if chanB != nil {
		engineB = protocol.NewEngineFromConfig(opts, func(b []byte) { _, _ = chanB.Write(b) }, loggingSink("B"))
		runReadLoop(chanB, engineB)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if *role == "dial" {
		go drive(engineA, *message)
	}

	<-sigChan
	log.Info().Msg("shutting down gracefully")

	done := <-engineA.Disconnect()
	if done != nil {
		log.Warn().Err(done).Msg("disconnect did not complete cleanly")
	}
	outstanding, expected := engineA.Stats()
	log.Info().
		Int("outstanding", outstanding).
		Uint8("expected_seq", expected).
		Msg("engine A stopped")

	time.Sleep(200 * time.Millisecond)
	linklog.Success("demo stopped")
}

// drive runs the dialing side's scripted exercise: connect, send one
// message, wait until it has been handed to the physical layer, and leave the connection up
// for heartbeats until the process receives a shutdown signal.
func drive(e *protocol.Engine, message string) {
	if err := <-e.Connect(); err != nil {
		linklog.Error("connect failed: %v", err)
		return
	}
	if err := <-e.Send([]byte(message)); err != nil {
		linklog.Error("send failed: %v", err)
	}
}

// runReadLoop owns one goroutine per channel reading complete frames and
// feeding them to the engine's RX upcall, the same read-loop-feeds-
// handler shape as the teacher's UDP listen loop.
func runReadLoop(ch physical.Channel, e *protocol.Engine) {
	go func() {
		for {
			frame, err := ch.ReadFrame()
			if err != nil {
				return
			}
			e.RX(frame)
		}
	}()
}

func loggingSink(side string) func(protocol.Event) {
	return func(ev protocol.Event) {
		linklog.Debug("[%s] %s", side, ev.Kind())
	}
}

func openSerial(driver, path string, baud int) (physical.Channel, error) {
	switch driver {
	case "bugst":
		return physical.OpenBugstSerial(path, baud)
	case "tarm":
		return physical.OpenTarmSerial(path, baud)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", driver)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", linkmetrics.Handler())
	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
