// Package main provides the entry point for the iCUE LINK hub telemetry daemon.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/linkhubd/linkhubd/internal/dbus"
	"github.com/linkhubd/linkhubd/internal/hid"
	"github.com/linkhubd/linkhubd/internal/link"
	"github.com/linkhubd/linkhubd/internal/udev"
)

var (
	verbose      bool
	serial       string
	pollInterval time.Duration

	rootCmd = &cobra.Command{
		Use:   "linkhubd",
		Short: "D-Bus daemon for iCUE LINK System Hub telemetry",
		Long: `linkhubd is a D-Bus service that polls a Corsair iCUE LINK System Hub
over USB HID for fan/pump speeds and temperature probe readings.

It switches the hub to software-driven mode on startup, exposes methods for
reading telemetry and setting a fixed fan duty cycle, and emits signals when
the hub is connected or disconnected. On shutdown the hub is handed back to
firmware-driven cooling.`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&serial, "serial", "s", "", "Serial number of the hub to open (default: first found)")
	rootCmd.PersistentFlags().DurationVarP(&pollInterval, "poll-interval", "i", time.Second, "Telemetry poll interval")
}

// hubHolder guards the currently connected hub. It implements dbus.HubSource.
type hubHolder struct {
	mu  sync.RWMutex
	hub *link.Hub
}

// Hub returns the connected hub or dbus.ErrHubNotConnected.
func (h *hubHolder) Hub() (dbus.Telemetry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.hub == nil {
		return nil, dbus.ErrHubNotConnected
	}
	return h.hub, nil
}

// Current returns the connected hub, or nil.
func (h *hubHolder) Current() *link.Hub {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hub
}

// Set stores the connected hub.
func (h *hubHolder) Set(hub *link.Hub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hub = hub
}

// Clear removes and returns the current hub.
func (h *hubHolder) Clear() *link.Hub {
	h.mu.Lock()
	defer h.mu.Unlock()
	hub := h.hub
	h.hub = nil
	return hub
}

func run() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("Starting linkhubd")

	holder := &hubHolder{}

	if hub, err := openHub(serial); err != nil {
		log.Warn().Err(err).Msg("No hub available at startup, waiting for hot-plug")
	} else {
		holder.Set(hub)
	}

	// Initialize D-Bus server
	server := dbus.NewServer(holder)
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start D-Bus server")
	}

	// Initialize udev monitor for hot-plug detection
	monitor := udev.NewMonitor(createHotplugHandler(holder, server))
	monitor.SetRecoveryHandler(createRecoveryHandler(holder, server))
	if err := monitor.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start udev monitor (hot-plug detection disabled)")
	}

	// Start the telemetry poll loop
	stopPolling := make(chan struct{})
	var pollWg sync.WaitGroup
	pollWg.Add(1)
	go func() {
		defer pollWg.Done()
		pollLoop(holder, server, pollInterval, stopPolling)
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("Daemon running, press Ctrl+C to stop")
	<-sigChan

	// Cleanup
	log.Info().Msg("Shutting down...")
	close(stopPolling)
	pollWg.Wait()
	if err := monitor.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop udev monitor")
	}
	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop D-Bus server")
	}
	if hub := holder.Clear(); hub != nil {
		// Close restores firmware-driven cooling before releasing the device.
		if err := hub.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close hub")
		}
	}

	log.Info().Msg("Daemon stopped")
}

// openHub opens the hub, switches it to software mode and logs its identity.
func openHub(serial string) (*link.Hub, error) {
	device, err := hid.OpenHub(serial)
	if err != nil {
		return nil, err
	}

	hub := link.NewHub(device)
	if err := hub.EnterSoftwareMode(); err != nil {
		if closeErr := hub.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close hub after setup failure")
		}
		return nil, fmt.Errorf("failed to enter software mode: %w", err)
	}

	version, err := hub.FirmwareVersion()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read firmware version")
		version = "unknown"
	}

	log.Info().
		Str("serial", hub.Serial()).
		Str("product", hub.Product()).
		Str("firmware", version).
		Msg("Hub opened")
	return hub, nil
}

// openHubWithRetry attempts to open the hub with linear backoff.
// It retries up to maxRetries times with increasing delays between attempts.
func openHubWithRetry(serial string, maxRetries int) (*link.Hub, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff: 500ms, 1000ms, 1500ms, ...
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			log.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying hub open")
			time.Sleep(backoff)
		}

		hub, err := openHub(serial)
		if err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("maxRetries", maxRetries+1).
				Msg("Hub open failed")
			continue
		}

		if attempt > 0 {
			log.Info().Int("attempts", attempt+1).Msg("Hub open succeeded after retry")
		}
		return hub, nil
	}
	return nil, lastErr
}

// connectMu serializes hub connect/disconnect transitions to prevent race
// conditions between hotplug handlers and recovery handlers.
var connectMu sync.Mutex

// createHotplugHandler returns an event handler that opens or releases the
// hub and emits the corresponding D-Bus signals.
func createHotplugHandler(holder *hubHolder, server *dbus.Server) udev.EventHandler {
	return func(event udev.Event) {
		connectMu.Lock()
		defer connectMu.Unlock()

		switch event.Type {
		case udev.EventRemove:
			hub := holder.Clear()
			if hub == nil {
				return
			}
			hubSerial := hub.Serial()
			if err := hub.Close(); err != nil {
				log.Warn().Err(err).Str("serial", hubSerial).Msg("Failed to close disconnected hub")
			}
			server.EmitHubDisconnected(hubSerial)

		case udev.EventAdd:
			if holder.Current() != nil {
				return
			}

			// USB devices need time to enumerate all interfaces before HID
			// is accessible.
			time.Sleep(500 * time.Millisecond)

			hub, err := openHubWithRetry(serial, 3)
			if err != nil {
				log.Error().Err(err).Msg("Failed to open hub after hot-plug event (all retries exhausted)")
				return
			}
			holder.Set(hub)
			server.EmitHubConnected(hub.Serial(), hub.Product())
		}
	}
}

// createRecoveryHandler returns a handler for netlink buffer overflow recovery.
// It re-checks hub presence to recover from potentially missed udev events.
func createRecoveryHandler(holder *hubHolder, server *dbus.Server) udev.RecoveryHandler {
	return func() {
		connectMu.Lock()
		defer connectMu.Unlock()

		log.Info().Msg("Performing recovery check after netlink buffer overflow")

		if holder.Current() != nil {
			// An in-flight poll will surface a transport error if the hub is
			// actually gone; nothing to do here.
			return
		}

		// Wait a moment for any pending USB operations to settle
		time.Sleep(500 * time.Millisecond)

		hub, err := openHubWithRetry(serial, 3)
		if err != nil {
			log.Warn().Err(err).Msg("Recovery check found no hub")
			return
		}
		holder.Set(hub)
		server.EmitHubConnected(hub.Serial(), hub.Product())
		log.Info().Str("serial", hub.Serial()).Msg("Hub found during recovery")
	}
}

// pollLoop polls the hub for telemetry at a fixed interval until stop is
// closed. Poll failures are logged and retried on the next cycle.
func pollLoop(holder *hubHolder, server *dbus.Server, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			hub := holder.Current()
			if hub == nil {
				continue
			}

			speeds, err := hub.ReadSpeeds()
			if err != nil {
				log.Warn().Err(err).Msg("Speed poll failed")
				continue
			}
			temps, err := hub.ReadTemperatures()
			if err != nil {
				log.Warn().Err(err).Msg("Temperature poll failed")
				continue
			}

			log.Debug().Str("telemetry", formatTelemetry(speeds, temps)).Msg("Poll cycle completed")
			server.EmitTelemetryUpdated(hub.Serial())
		}
	}
}

// formatTelemetry renders one poll cycle as a human-readable line. By LINK
// hub convention the first temperature probe is the liquid sensor and the
// first speed slot is the pump; the remaining speed slots are fans.
func formatTelemetry(speeds []link.SpeedSensor, temps []link.TemperatureSensor) string {
	liquid := "N/A"
	if len(temps) > 0 && temps[0].Celsius != nil {
		liquid = fmt.Sprintf("%.1f°C", *temps[0].Celsius)
	}

	pump := "N/A"
	if len(speeds) > 0 && speeds[0].RPM != nil {
		pump = strconv.Itoa(int(*speeds[0].RPM))
	}

	var fans []string
	for _, s := range speeds {
		if s.Index == 0 {
			continue
		}
		if s.RPM != nil {
			fans = append(fans, strconv.Itoa(int(*s.RPM)))
		} else {
			fans = append(fans, "N/A")
		}
	}

	return fmt.Sprintf("Liquid: %s | Pump: %s RPM | Fans: %s RPM", liquid, pump, strings.Join(fans, ", "))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
