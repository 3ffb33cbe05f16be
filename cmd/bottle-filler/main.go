// Command bottle-filler sequences the bottle filling line: it polls the
// ultrasonic presence sensors, drives the conveyor/push/fill/cap actuators
// through the line cycle, and serves the operator's HTTP control surface,
// publishing line telemetry to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/bottle-filler/internal/control"
	"github.com/sweeney/bottle-filler/internal/filter"
	"github.com/sweeney/bottle-filler/internal/hardware"
	"github.com/sweeney/bottle-filler/internal/mqtt"
	"github.com/sweeney/bottle-filler/internal/settings"
	"github.com/sweeney/bottle-filler/internal/status"
	"github.com/sweeney/bottle-filler/internal/web"
)

// maxSensorChannels bounds the sensor registry. The line has three sensors;
// headroom is for bench rigs with extra channels.
const maxSensorChannels = 8

func main() {
	settingsPath := flag.String("settings", "/etc/bottle-filler.yaml", "Settings file path")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	httpAddr := flag.String("http", ":80", "HTTP status/control address (empty to disable)")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	autostart := flag.Bool("autostart", false, "Enter Running immediately at startup")

	flag.Parse()

	if err := run(*settingsPath, *broker, *httpAddr, *heartbeat, *autostart); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(settingsPath, broker, httpAddr string, heartbeat time.Duration, autostart bool) error {
	hw, err := hardware.NewReal()
	if err != nil {
		return fmt.Errorf("init hardware: %w", err)
	}
	defer hw.Close()

	cfg, err := settings.Load(settingsPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Register every sensor up front so a channel/limit mismatch is a
	// startup failure, not a runtime surprise.
	sensors := filter.NewRegistry(hw, cfg, maxSensorChannels)
	for _, ch := range []hardware.Channel{hardware.ChannelBottle, hardware.ChannelCapLoaded, hardware.ChannelCapFull} {
		if err := sensors.Register(ch); err != nil {
			return fmt.Errorf("register sensor: %w", err)
		}
	}

	publisher, err := mqtt.NewRealPublisher(broker)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	ctrl := control.NewController(hw)
	tracker := status.NewTracker(time.Now(), status.Config{
		QuantumMs:    control.PollQuantum.Milliseconds(),
		HeartbeatMs:  heartbeat.Milliseconds(),
		Broker:       broker,
		HTTPAddr:     httpAddr,
		SettingsPath: settingsPath,
	}, cfg)

	lineObs := mqtt.NewCycleObserver(publisher, ctrl)
	ctrl.OnChange = func(old, new control.State) {
		tracker.SetRunState(new)
		lineObs.RunStateChanged(new)
	}

	det := control.NewDetector(sensors, hw, cfg)
	seq := control.NewSequencer(det, hw, cfg, ctrl)
	seq.Observer = multiObserver{tracker, lineObs}

	// Publish startup event with full status snapshot.
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if httpAddr != "" {
		srv := web.New(httpAddr, tracker, cfg, ctrl)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http control surface listening on %s", httpAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quit := make(chan struct{})
	go func() {
		s := <-sigCh
		log.Printf("received %v, shutting down", s)

		// Stopping aborts any in-flight phase within one polling
		// quantum and de-energizes every actuator.
		ctrl.Stop()

		event := mqtt.SystemEvent{
			Timestamp: time.Now(),
			Event:     "SHUTDOWN",
			Reason:    signalName(s),
			Retained:  true,
		}
		event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName(s))
		if err := publisher.PublishSystem(event); err != nil {
			log.Printf("failed to publish shutdown event: %v", err)
		} else {
			log.Printf("published shutdown event")
		}
		close(quit)
	}()

	if autostart {
		ctrl.Run()
	}

	log.Printf("started: settings=%s broker=%s heartbeat=%v autostart=%v", settingsPath, broker, heartbeat, autostart)

	return runLoop(ctrl, seq, hw, tracker, publisher, publisher, heartbeat, time.Now, time.Sleep, quit)
}

// runLoop is the top-level control loop: it runs cycles while Running,
// re-asserts safe outputs while Paused, and idles while Stopped, emitting
// heartbeat events between iterations. It returns when quit closes.
func runLoop(ctrl *control.Controller, seq *control.Sequencer, out hardware.Outputs, tracker *status.Tracker, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, heartbeat time.Duration, now func() time.Time, sleep func(time.Duration), quit <-chan struct{}) error {
	lastHeartbeat := now()

	for {
		select {
		case <-quit:
			return nil
		default:
		}

		switch ctrl.State() {
		case control.StateRunning:
			seq.RunCycle()
		case control.StatePaused:
			// Defensive: guard against actuator drift while paused.
			out.AllOff()
			sleep(control.PollQuantum)
		default:
			sleep(control.PollQuantum)
		}

		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}

		if heartbeat > 0 && now().Sub(lastHeartbeat) >= heartbeat {
			lastHeartbeat = now()
			snap := tracker.Snapshot()
			hb := mqtt.SystemEvent{
				Timestamp:  snap.Now,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hb); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// multiObserver fans sequencer events out to several observers.
type multiObserver []control.Observer

func (m multiObserver) CycleEvent(e control.CycleEvent) {
	for _, o := range m {
		o.CycleEvent(e)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
