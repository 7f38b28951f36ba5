package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sasu-drooz/zigate-transport/config"
)

var (
	configPath string
	logLevel   string

	linkKindFlag string
	deviceFlag   string
	addressFlag  string
	portFlag     int
)

var rootCmd = &cobra.Command{
	Use:   "zigate-transport",
	Short: "Transport and command-coordination layer for a ZiGate dongle",
	Long: `zigate-transport opens a link to a ZiGate Zigbee coordinator dongle
(serial USB/DIN/PI, or a TCP Wi-Fi bridge) and drives the command
coordinator that sequences host commands against the dongle's
status/data response lifecycle.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&linkKindFlag, "link-kind", "", "override link kind (usb, din, pi, wifi)")
	rootCmd.PersistentFlags().StringVar(&deviceFlag, "device", "", "override serial device path")
	rootCmd.PersistentFlags().StringVar(&addressFlag, "address", "", "override Wi-Fi bridge address")
	rootCmd.PersistentFlags().IntVar(&portFlag, "port", 0, "override Wi-Fi bridge port")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(monitorCmd)
}

// newLogger builds the CLI's logger. When useDomoticzLog is set, log lines
// carry a "sink=domoticz" field so a collaborator shipping logs into a
// Domoticz plugin log can filter/route them; the core never talks to
// Domoticz directly.
func newLogger(useDomoticzLog bool) zerolog.Logger {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp()
	if useDomoticzLog {
		l = l.Str("sink", "domoticz")
	}
	return l.Logger()
}

func loadOptions() (config.Options, error) {
	opts, err := config.Load(configPath)
	if err != nil {
		return config.Options{}, err
	}
	if linkKindFlag != "" {
		kind, err := parseLinkKindFlag(linkKindFlag)
		if err != nil {
			return config.Options{}, err
		}
		opts.Link.Kind = kind
	}
	if deviceFlag != "" {
		opts.Link.Device = deviceFlag
	}
	if addressFlag != "" {
		opts.Link.Address = addressFlag
	}
	if portFlag != 0 {
		opts.Link.Port = portFlag
	}
	return opts, nil
}
