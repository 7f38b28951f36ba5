package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sasu-drooz/zigate-transport/assembler"
	"github.com/sasu-drooz/zigate-transport/catalog"
	"github.com/sasu-drooz/zigate-transport/codec"
	"github.com/sasu-drooz/zigate-transport/coordinator"
	"github.com/sasu-drooz/zigate-transport/devicelog"
	"github.com/sasu-drooz/zigate-transport/link"
	"github.com/sasu-drooz/zigate-transport/metrics"
	"github.com/sasu-drooz/zigate-transport/sqn"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Connect and print every decoded frame until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions()
		if err != nil {
			return err
		}
		logger := newLogger(opts.UseDomoticzLog)

		var co *coordinator.Coordinator
		frames := make(chan codec.Frame, 64)
		asm := assembler.New(
			func(f codec.Frame) { frames <- f },
			func(err error) { co.OnDecodeError(err) },
			logger,
		)

		l, err := link.New(opts.Link, func(chunk []byte) { asm.Feed(chunk) }, logger)
		if err != nil {
			return err
		}

		reg := metrics.NewRegistry(prometheus.NewRegistry())
		co = coordinator.New(
			opts.Coordinator, l, catalog.New(), sqn.New(), devicelog.NewMapDeviceStore(),
			func(f codec.Frame) { fmt.Printf("frame: opcode=0x%04x payload=%x rssi=%d\n", f.Opcode, f.Payload, f.RSSI) },
			reg, logger,
		)

		if err := l.Connect(); err != nil {
			return err
		}
		defer l.Disconnect()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		submits := make(chan coordinator.SubmitRequest)
		co.RunLoop(ctx, submits, frames, time.Second)
		return nil
	},
}
