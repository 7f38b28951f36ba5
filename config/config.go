// Package config loads the Coordinator's policy Options from an optional
// YAML file and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sasu-drooz/zigate-transport/coordinator"
	"github.com/sasu-drooz/zigate-transport/link"
)

// FileConfig is the on-disk shape of the optional YAML defaults file.
type FileConfig struct {
	Mode            string `yaml:"mode"`
	StatusTimeoutMS int    `yaml:"status_timeout_ms"`
	DataTimeoutMS   int    `yaml:"data_timeout_ms"`
	APSAckMode      bool   `yaml:"aps_ack_mode"`
	APSReTx         bool   `yaml:"aps_retx"`
	APSRouteError   bool   `yaml:"aps_route_error"`
	APSMaxRetry     int    `yaml:"aps_max_retry"`

	LinkKind    string `yaml:"link_kind"`
	LinkDevice  string `yaml:"link_device"`
	LinkAddress string `yaml:"link_address"`
	LinkPort    int    `yaml:"link_port"`

	DebugTransportTx bool `yaml:"debug_transport_tx"`
	DebugTransportRx bool `yaml:"debug_transport_rx"`
	UseDomoticzLog   bool `yaml:"use_domoticz_log"`
}

// Options is the fully resolved configuration: the Coordinator's policy
// plus the Link it should run over and the ambient logging gates
// (debugTransportTx/Rx).
type Options struct {
	Coordinator coordinator.Options
	Link        link.Config

	DebugTransportTx bool
	DebugTransportRx bool
	UseDomoticzLog   bool
}

// Load reads defaults from path (if non-empty and present), then lets
// ZIGATE_*-prefixed environment variables override individual fields via
// viper, following the pattern the other_examples manifests (keskad-loco,
// EdgxCloud-EdgeFlow) use viper for: file defaults plus env overrides
// without a CLI flag per setting.
func Load(path string) (Options, error) {
	fc := FileConfig{
		Mode:            "zigbee",
		StatusTimeoutMS: 5000,
		DataTimeoutMS:   5000,
		APSMaxRetry:     2,
		LinkKind:        "usb",
		LinkPort:        9999,
	}

	if path != "" {
		if err := loadYAMLFile(path, &fc); err != nil {
			return Options{}, err
		}
	}

	v := viper.New()
	v.SetEnvPrefix("ZIGATE")
	v.AutomaticEnv()
	applyEnvOverrides(v, &fc)

	return resolve(fc)
}

func loadYAMLFile(path string, fc *FileConfig) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(v *viper.Viper, fc *FileConfig) {
	if v.IsSet("mode") {
		fc.Mode = v.GetString("mode")
	}
	if v.IsSet("status_timeout_ms") {
		fc.StatusTimeoutMS = v.GetInt("status_timeout_ms")
	}
	if v.IsSet("data_timeout_ms") {
		fc.DataTimeoutMS = v.GetInt("data_timeout_ms")
	}
	if v.IsSet("aps_ack_mode") {
		fc.APSAckMode = v.GetBool("aps_ack_mode")
	}
	if v.IsSet("aps_retx") {
		fc.APSReTx = v.GetBool("aps_retx")
	}
	if v.IsSet("aps_route_error") {
		fc.APSRouteError = v.GetBool("aps_route_error")
	}
	if v.IsSet("link_kind") {
		fc.LinkKind = v.GetString("link_kind")
	}
	if v.IsSet("link_device") {
		fc.LinkDevice = v.GetString("link_device")
	}
	if v.IsSet("link_address") {
		fc.LinkAddress = v.GetString("link_address")
	}
	if v.IsSet("link_port") {
		fc.LinkPort = v.GetInt("link_port")
	}
	if v.IsSet("debug_transport_tx") {
		fc.DebugTransportTx = v.GetBool("debug_transport_tx")
	}
	if v.IsSet("debug_transport_rx") {
		fc.DebugTransportRx = v.GetBool("debug_transport_rx")
	}
	if v.IsSet("use_domoticz_log") {
		fc.UseDomoticzLog = v.GetBool("use_domoticz_log")
	}
}

func resolve(fc FileConfig) (Options, error) {
	mode := coordinator.ZigBee
	switch fc.Mode {
	case "", "zigbee":
		mode = coordinator.ZigBee
	case "aggressive":
		mode = coordinator.Aggressive
	default:
		return Options{}, fmt.Errorf("config: unknown mode %q", fc.Mode)
	}

	kind, err := parseLinkKind(fc.LinkKind)
	if err != nil {
		return Options{}, err
	}

	return Options{
		Coordinator: coordinator.Options{
			Mode:             mode,
			StatusTimeout:    time.Duration(fc.StatusTimeoutMS) * time.Millisecond,
			DataTimeout:      time.Duration(fc.DataTimeoutMS) * time.Millisecond,
			APSAckMode:       fc.APSAckMode,
			APSReTx:          fc.APSReTx,
			APSRouteError:    fc.APSRouteError,
			APSMaxRetry:      fc.APSMaxRetry,
			APSRetryWindow:   time.Duration(fc.APSMaxRetry) * time.Second,
			DebugTransportTx: fc.DebugTransportTx,
			DebugTransportRx: fc.DebugTransportRx,
		},
		Link: link.Config{
			Kind:    kind,
			Device:  fc.LinkDevice,
			Address: fc.LinkAddress,
			Port:    fc.LinkPort,
		},
		DebugTransportTx: fc.DebugTransportTx,
		DebugTransportRx: fc.DebugTransportRx,
		UseDomoticzLog:   fc.UseDomoticzLog,
	}, nil
}

func parseLinkKind(s string) (link.Kind, error) {
	switch s {
	case "", "usb":
		return link.USB, nil
	case "din":
		return link.DIN, nil
	case "pi":
		return link.PI, nil
	case "wifi":
		return link.Wifi, nil
	default:
		return 0, fmt.Errorf("config: unknown link_kind %q", s)
	}
}
