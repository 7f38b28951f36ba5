package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sasu-drooz/zigate-transport/assembler"
	"github.com/sasu-drooz/zigate-transport/catalog"
	"github.com/sasu-drooz/zigate-transport/codec"
	"github.com/sasu-drooz/zigate-transport/coordinator"
	"github.com/sasu-drooz/zigate-transport/devicelog"
	"github.com/sasu-drooz/zigate-transport/link"
	"github.com/sasu-drooz/zigate-transport/metrics"
	"github.com/sasu-drooz/zigate-transport/sqn"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	submitOpcodeFlag  string
	submitPayloadFlag string
	submitWaitFlag    time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a single command and print its status/data responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		opcode, err := parseOpcodeFlag(submitOpcodeFlag)
		if err != nil {
			return err
		}
		payload, err := hex.DecodeString(strings.TrimPrefix(submitPayloadFlag, "0x"))
		if err != nil {
			return fmt.Errorf("submit: invalid --payload: %w", err)
		}

		opts, err := loadOptions()
		if err != nil {
			return err
		}
		logger := newLogger(opts.UseDomoticzLog)

		var co *coordinator.Coordinator
		frames := make(chan codec.Frame, 16)
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
			func(f codec.Frame) { fmt.Printf("forwarded: opcode=0x%04x payload=%x\n", f.Opcode, f.Payload) },
			reg, logger,
		)

		if err := l.Connect(); err != nil {
			return err
		}
		defer l.Disconnect()

		internalSQN := co.Submit(opcode, payload)
		fmt.Printf("submitted: opcode=0x%04x sqn=%d\n", opcode, internalSQN)

		ctx, cancel := context.WithTimeout(cmd.Context(), submitWaitFlag)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case f := <-frames:
				fmt.Printf("received: opcode=0x%04x payload=%x\n", f.Opcode, f.Payload)
				co.OnFrame(f)
				if _, inFlight := co.InFlightOpcode(); !inFlight && co.SendQueueDepth() == 0 {
					return nil
				}
			case <-time.After(time.Second):
				co.Tick()
			}
		}
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitOpcodeFlag, "opcode", "", "command opcode, e.g. 0x0010")
	submitCmd.Flags().StringVar(&submitPayloadFlag, "payload", "", "command payload as hex, e.g. 0102")
	submitCmd.Flags().DurationVar(&submitWaitFlag, "wait", 10*time.Second, "how long to wait for responses")
	submitCmd.MarkFlagRequired("opcode")
}

func parseOpcodeFlag(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("submit: invalid --opcode: %w", err)
	}
	return uint16(v), nil
}
