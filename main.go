package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lantern/cmd"
	"lantern/internal/audio"
	"lantern/internal/build"
	"lantern/internal/color"
	"lantern/internal/config"
	"lantern/internal/control"
	"lantern/internal/dispatch"
	"lantern/internal/events"
	applog "lantern/internal/log"
	"lantern/internal/pipeline"
	"lantern/internal/protocol"
	"lantern/internal/server"
	"lantern/internal/transport"
	"lantern/internal/transport/ble"
	"lantern/internal/transport/udp"
	"lantern/internal/tui"

	"golang.org/x/term"
)

// shutdownTimeout bounds the graceful disconnect on interrupt.
const shutdownTimeout = 3 * time.Second

// main is the entry point for the light controller.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Start the command dispatch queue and connect to the light
//   - Enter music mode: capture, analysis and colour commands
//   - Serve the websocket control endpoint if enabled
//
// 3. Shutdown Phase (Cold Path):
//   - SIGINT: stop music, disconnect, drain the queue
//   - SIGTERM/SIGHUP: emergency off within the configured budget
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if opts == nil {
		return
	}
	cfg := opts.Config
	configureLogging(cfg)
	applog.Debugf("Main: %s run %s", build.Get(), build.Get().RunID)

	// Initialize PortAudio subsystem
	if err := audio.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}
	defer audio.Terminate()

	// Handle one-off commands that don't start a session
	if opts.Command != cmd.CommandRun {
		if err := executeCommand(opts); err != nil {
			applog.Errorf("%v", err)
			audio.Terminate()
			os.Exit(1)
		}
		return
	}

	if err := runSession(cfg); err != nil {
		applog.Errorf("%v", err)
		audio.Terminate()
		os.Exit(1)
	}
}

func configureLogging(cfg *config.Config) {
	if cfg.LogJSON {
		applog.SetJSONOutput(os.Stderr)
	}
	level, ok := applog.ParseLevel(cfg.LogLevel)
	if !ok {
		applog.Warnf("Main: Unknown log level %q, using %s", cfg.LogLevel, level)
	}
	applog.SetLevel(level)
}

// runSession runs until a termination signal arrives.
func runSession(cfg *config.Config) error {
	// ==================== CONCURRENT PHASE (Hot Path) ====================

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	t, err := newTransport(cfg)
	if err != nil {
		return err
	}

	sink := events.NewFanout(events.LogSink{})
	queue := dispatch.NewQueue(t, sink, dispatch.Options{
		ConnectTimeout:  cfg.Device.ConnectTimeout,
		WriteTimeout:    cfg.Device.WriteTimeout,
		EmergencyBudget: cfg.Device.EmergencyBudget,
	})
	queue.Start(context.Background())

	var recorder *audio.Recorder
	if cfg.Audio.RecordFile != "" {
		recorder, err = audio.NewRecorder(cfg.Audio.RecordFile, cfg.Audio.SampleRate, cfg.Audio.BlockSize)
		if err != nil {
			queue.Stop()
			return err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				applog.Errorf("Main: Closing recording: %v", err)
			}
			applog.Infof("Main: Recording saved to %s (%d frames)", cfg.Audio.RecordFile, recorder.Frames())
		}()
	}

	ctrl := control.New(queue, sink, controlOptions(cfg, recorder))
	defer ctrl.Close()

	if cfg.Server.Enabled {
		hub := server.NewHub(ctrl)
		sink.Add(hub)
		srv := server.New(cfg.Server.Addr, hub)
		if err := srv.Start(); err != nil {
			queue.Stop()
			return fmt.Errorf("start server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Close(ctx); err != nil {
				applog.Warnf("Main: Closing server: %v", err)
			}
		}()
	}

	if d := descriptor(cfg); d != (transport.Descriptor{}) {
		ctrl.Connect(d)
		if err := ctrl.SetBrightness(cfg.Device.Brightness); err != nil {
			applog.Warnf("Main: %v", err)
		}
		if mode, _ := protocol.ParseMode(cfg.Device.Mode); mode != protocol.ModeMusic && !cfg.Music.AutoStart {
			if err := ctrl.SetMode(mode); err != nil {
				applog.Warnf("Main: %v", err)
			}
		}
	} else if !cfg.Server.Enabled {
		queue.Stop()
		return errors.New("no device address or name configured; use --address, --name or --server")
	}

	fmt.Printf("%s running. Ctrl+C to disconnect and exit.\n", build.Get().Name)

	// Block until termination signal is received
	sig := <-signals

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if sig == os.Interrupt {
		applog.Infof("Main: Interrupted, disconnecting")
		ctrl.Close()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := queue.Shutdown(ctx); err != nil {
			applog.Warnf("Main: Graceful shutdown: %v", err)
			queue.Stop()
		}
		return nil
	}

	applog.Warnf("Main: Received %s, forcing the light off", sig)
	if err := queue.EmergencyOff(context.Background()); err != nil && !errors.Is(err, dispatch.ErrNotConnected) {
		applog.Errorf("Main: %v", err)
	}
	ctrl.Close()
	queue.Stop()
	return nil
}

func controlOptions(cfg *config.Config, recorder *audio.Recorder) control.Options {
	initial := control.DefaultSettings()
	initial.Brightness = cfg.Device.Brightness
	initial.EffectSpeed = cfg.Device.EffectSpeed
	initial.Sensitivity = cfg.Music.Sensitivity
	initial.Algorithm, _ = color.ParseAlgorithm(cfg.Music.Algorithm)
	initial.Mode, _ = protocol.ParseMode(cfg.Device.Mode)

	popts := pipeline.Options{
		SampleRate: float64(cfg.Audio.SampleRate),
		BlockSize:  cfg.Audio.BlockSize,
		FrameQueue: cfg.Audio.FrameQueue,
		ColorRate:  cfg.Music.ColorRate,
	}
	if recorder != nil {
		popts.Recorder = recorder
	}

	stream := audio.StreamConfig{
		SampleRate: float64(cfg.Audio.SampleRate),
		BlockSize:  cfg.Audio.BlockSize,
		DeviceName: cfg.Audio.DeviceName,
	}
	start := func(onFrame audio.FrameFunc) (control.Capture, error) {
		var (
			c   *audio.Capture
			err error
		)
		if cfg.Audio.InputFile != "" {
			c, err = audio.StartFile(cfg.Audio.InputFile, stream, onFrame)
		} else {
			c, err = audio.StartLoopback(stream, onFrame)
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	return control.Options{
		Initial:      initial,
		Pipeline:     popts,
		StartCapture: start,
		AutoMusic:    cfg.Music.AutoStart || initial.Mode == protocol.ModeMusic,
	}
}

func descriptor(cfg *config.Config) transport.Descriptor {
	return transport.Descriptor{Address: cfg.Device.Address, Name: cfg.Device.Name}
}

func newTransport(cfg *config.Config) (transport.Transport, error) {
	switch cfg.Device.Transport {
	case "ble":
		return ble.NewTransport(), nil
	case "udp":
		return udp.NewTransport(cfg.Device.UDPTarget, cfg.Device.WriteTimeout, protocol.Characteristic), nil
	case "log":
		return transport.NewLoggingTransport(protocol.Characteristic), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Device.Transport)
	}
}

// executeCommand handles one-off commands that don't run a session.
func executeCommand(opts *cmd.Options) error {
	cfg := opts.Config
	switch opts.Command {
	case cmd.CommandDevices:
		devices, err := audio.HostDevices()
		if err != nil {
			return err
		}
		if !opts.PickDevice {
			audio.ListDevices(os.Stdout, devices)
			return nil
		}
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("devices --pick needs a terminal")
		}
		d, ok, err := tui.PickDevice(devices)
		if err != nil {
			return err
		}
		if ok {
			fmt.Println(d.Name)
		}
		return nil

	case cmd.CommandScan:
		if cfg.Device.Transport != "ble" {
			return fmt.Errorf("scan needs the ble transport, configured %q", cfg.Device.Transport)
		}
		ctx, cancel := context.WithTimeout(context.Background(), opts.ScanTimeout)
		defer cancel()
		found, err := ble.NewTransport().Scan(ctx)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Println("No devices found.")
		}
		for _, d := range found {
			fmt.Printf("%s\t%s\n", d.Address, d.Name)
		}
		return nil

	case cmd.CommandOff:
		return turnOff(cfg)

	default:
		return fmt.Errorf("unknown command %q", opts.Command)
	}
}

// turnOff connects, sends a turn-off and disconnects.
func turnOff(cfg *config.Config) error {
	d := descriptor(cfg)
	if d == (transport.Descriptor{}) {
		return errors.New("off needs --address or --name")
	}
	t, err := newTransport(cfg)
	if err != nil {
		return err
	}

	rec := &events.Recorder{}
	queue := dispatch.NewQueue(t, events.NewFanout(events.LogSink{}, rec), dispatch.Options{
		ConnectTimeout: cfg.Device.ConnectTimeout,
		WriteTimeout:   cfg.Device.WriteTimeout,
	})
	queue.Start(context.Background())

	queue.Enqueue(dispatch.Connect(d, nil))
	queue.Enqueue(dispatch.Send(protocol.TurnOff()))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Device.ConnectTimeout+shutdownTimeout)
	defer cancel()
	if err := queue.Shutdown(ctx); err != nil {
		return err
	}

	for _, e := range rec.Events() {
		if e.Kind == events.Error {
			return e.Err
		}
	}
	return nil
}
