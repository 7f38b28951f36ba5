package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sasu-drooz/zigate-transport/link"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open the link and report connection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions()
		if err != nil {
			return err
		}
		logger := newLogger(opts.UseDomoticzLog)

		l, err := link.New(opts.Link, func([]byte) {}, logger)
		if err != nil {
			return err
		}
		if err := l.Connect(); err != nil {
			return err
		}
		defer l.Disconnect()

		fmt.Printf("connected: kind=%s device=%s address=%s port=%d\n",
			opts.Link.Kind, opts.Link.Device, opts.Link.Address, opts.Link.Port)
		return nil
	},
}

func parseLinkKindFlag(s string) (link.Kind, error) {
	switch s {
	case "usb":
		return link.USB, nil
	case "din":
		return link.DIN, nil
	case "pi":
		return link.PI, nil
	case "wifi":
		return link.Wifi, nil
	default:
		return 0, fmt.Errorf("unknown link kind %q", s)
	}
}
