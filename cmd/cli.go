package cmd

import (
	"fmt"
	"time"

	"lantern/internal/build"
	"lantern/internal/color"
	"lantern/internal/config"
	"lantern/internal/protocol"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Commands that main runs instead of a session.
const (
	CommandRun     = ""
	CommandDevices = "devices"
	CommandScan    = "scan"
	CommandOff     = "off"
)

// DefaultScanTimeout bounds `lantern scan`.
const DefaultScanTimeout = 5 * time.Second

// Options is the parsed command line.
type Options struct {
	Command     string
	Config      *config.Config
	PickDevice  bool          // devices: choose interactively
	ScanTimeout time.Duration // scan
}

// flagValues holds raw flag values until the config file is loaded.
type flagValues struct {
	configPath string

	logLevel string
	logJSON  bool

	audioDevice string
	inputFile   string
	recordFile  string
	sampleRate  int
	blockSize   int

	sensitivity int
	algorithm   string
	music       bool

	transport string
	address   string
	name      string
	udpTarget string
	mode      string

	server     bool
	serverAddr string
}

// ParseArgs parses args (without the program name) into Options. The config
// file is loaded first, then flags that were set on the command line
// override it.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.Get()
	options := &Options{ScanTimeout: DefaultScanTimeout}
	var fv flagValues

	load := func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig(fv.configPath)
		if err != nil {
			return err
		}
		if err := fv.apply(cmd.Flags(), cfg); err != nil {
			return err
		}
		options.Config = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args:              cobra.NoArgs,
		PersistentPreRunE: load,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices and the loopback device music mode would use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandDevices
		},
	}
	devicesCmd.Flags().BoolVarP(&options.PickDevice, "pick", "p", false,
		"Choose the capture device interactively and print its name")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE lights",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandScan
		},
	}
	scanCmd.Flags().DurationVarP(&options.ScanTimeout, "timeout", "t", DefaultScanTimeout,
		"How long to scan")

	offCmd := &cobra.Command{
		Use:   "off",
		Short: "Connect to the light and turn it off",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandOff
		},
	}
	rootCmd.AddCommand(devicesCmd, scanCmd, offCmd)

	pf := rootCmd.PersistentFlags()

	// General
	pf.StringVarP(&fv.configPath, "config", "c", "",
		"Path to a YAML config file (default: ./lantern.yaml or ./config.yaml if present)")
	pf.StringVar(&fv.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.BoolVar(&fv.logJSON, "log-json", false, "Write logs as JSON")

	// Audio
	pf.StringVarP(&fv.audioDevice, "audio-device", "a", "",
		"Capture device name (substring). Use 'devices' to see available devices.")
	pf.StringVarP(&fv.inputFile, "input", "i", "", "Replay a WAV or AIFF file instead of capturing")
	pf.StringVarP(&fv.recordFile, "record", "r", "", "Record captured audio to a WAV file")
	pf.IntVarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&fv.blockSize, "block-size", "b", config.DefaultBlockSize,
		"Samples per analysis frame (affects latency)")

	// Music
	pf.IntVar(&fv.sensitivity, "sensitivity", config.DefaultSensitivity,
		fmt.Sprintf("Music sensitivity [%d, %d], 50 is neutral", config.MinSensitivity, config.MaxSensitivity))
	pf.StringVar(&fv.algorithm, "algorithm", config.DefaultAlgorithm,
		"Colour algorithm (frequency-rgb, energy, spectrum, pulse, fire)")
	pf.BoolVarP(&fv.music, "music", "m", false, "Enter music mode once connected")

	// Device
	pf.StringVarP(&fv.transport, "transport", "T", config.DefaultTransport, "Device transport (ble, udp, log)")
	pf.StringVar(&fv.address, "address", "", "Device address")
	pf.StringVarP(&fv.name, "name", "n", "", "Device name (used when no address is given)")
	pf.StringVar(&fv.udpTarget, "udp-target", "", "host:port of the UDP bridge")
	pf.StringVar(&fv.mode, "mode", config.DefaultMode, "Initial light mode")

	// Server
	pf.BoolVar(&fv.server, "server", false, "Serve the websocket control endpoint and /metrics")
	pf.StringVar(&fv.serverAddr, "server-addr", config.DefaultServerAddr, "Listen address for --server")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if options.Config == nil {
		// --help or --version
		return nil, nil
	}
	return options, nil
}

// apply copies every flag the user set onto cfg and revalidates it.
func (fv *flagValues) apply(flags *pflag.FlagSet, cfg *config.Config) error {
	set := func(name string, fn func()) {
		if flags.Changed(name) {
			fn()
		}
	}

	set("log-level", func() { cfg.LogLevel = fv.logLevel })
	set("log-json", func() { cfg.LogJSON = fv.logJSON })
	set("audio-device", func() { cfg.Audio.DeviceName = fv.audioDevice })
	set("input", func() { cfg.Audio.InputFile = fv.inputFile })
	set("record", func() { cfg.Audio.RecordFile = fv.recordFile })
	set("sample-rate", func() { cfg.Audio.SampleRate = fv.sampleRate })
	set("block-size", func() { cfg.Audio.BlockSize = fv.blockSize })
	set("sensitivity", func() { cfg.Music.Sensitivity = fv.sensitivity })
	set("algorithm", func() { cfg.Music.Algorithm = fv.algorithm })
	set("music", func() { cfg.Music.AutoStart = fv.music })
	set("transport", func() { cfg.Device.Transport = fv.transport })
	set("address", func() { cfg.Device.Address = fv.address })
	set("name", func() { cfg.Device.Name = fv.name })
	set("udp-target", func() { cfg.Device.UDPTarget = fv.udpTarget })
	set("mode", func() { cfg.Device.Mode = fv.mode })
	set("server", func() { cfg.Server.Enabled = fv.server })
	set("server-addr", func() { cfg.Server.Addr = fv.serverAddr })

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := color.ParseAlgorithm(cfg.Music.Algorithm); err != nil {
		return err
	}
	if _, err := protocol.ParseMode(cfg.Device.Mode); err != nil {
		return err
	}
	return nil
}
