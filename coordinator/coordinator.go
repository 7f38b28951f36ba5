// Package coordinator implements the command/response state machine that
// sits between a collaborator and the wire: at most one command occupies
// the status/data slot at a time, everything else queues, and a handful of
// asynchronous opcodes (APS ack, APS failure, route-discovery confirm) feed
// a retransmission policy.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sasu-drooz/zigate-transport/catalog"
	"github.com/sasu-drooz/zigate-transport/codec"
	"github.com/sasu-drooz/zigate-transport/devicelog"
	"github.com/sasu-drooz/zigate-transport/sqn"
)

// Mode selects whether StatusThenData commands wait for their data response
// (ZigBee) or fire-and-forget past the status (Aggressive).
type Mode int

const (
	ZigBee Mode = iota
	Aggressive
)

const (
	opStatus             = 0x8000
	opAPSAck             = 0x8011
	opRouteDiscoveryConf = 0x8701
	opAPSFailure         = 0x8702

	apsFailureRouteUnavailable = 0xd1
	apsAckOK                   = 0x00
	apsAckNack                 = 0xa7
)

// Options configures the retry/timeout/mode policy left to the collaborator.
type Options struct {
	Mode           Mode
	StatusTimeout  time.Duration
	DataTimeout    time.Duration
	APSAckMode     bool
	APSReTx        bool
	APSRouteError  bool
	APSMaxRetry    int
	APSRetryWindow time.Duration

	// DebugTransportTx/Rx gate the per-frame wire-level log lines
	// independently of the logger's own level, matching the plugin's
	// separate transport-tx/transport-rx debug switches.
	DebugTransportTx bool
	DebugTransportRx bool
}

// DefaultOptions returns a conservative policy: a 5s per-queue timeout, 2
// retries inside a 2s window, retransmission disabled by default so a
// collaborator opts in explicitly.
func DefaultOptions() Options {
	return Options{
		Mode:           ZigBee,
		StatusTimeout:  5 * time.Second,
		DataTimeout:    5 * time.Second,
		APSAckMode:     false,
		APSReTx:        false,
		APSRouteError:  false,
		APSMaxRetry:    2,
		APSRetryWindow: 2 * time.Second,
	}
}

// Sender is the subset of Link the Coordinator needs to push encoded
// frames onto the wire.
type Sender interface {
	Send([]byte) error
}

// Forwarder receives every frame the Coordinator passes on to the
// collaborator: standalone notifications, APS ack/nack, every data response
// (whether or not it correlates to the in-flight command), and the APS
// failure / route-discovery frames the retry policy does not swallow.
// Status (0x8000) frames are never forwarded.
type Forwarder func(codec.Frame)

// Counters is the collaborator-facing statistics surface. The Coordinator
// only ever increments it.
type Counters interface {
	IncSent()
	IncReceived()
	IncAck()
	IncAckKO()
	IncData()
	IncFrameErrors()
	IncCRCErrors()
	IncAPSAck()
	IncAPSNack()
	IncAPSFailure()
	IncStatusTimeout()
	IncDataTimeout()
	IncRetransmit()
	SetLoad(n int)
	SetMaxLoad(n int)
}

// NopCounters implements Counters as a no-op, for callers that don't need
// statistics wired up (tests, simple CLI use).
type NopCounters struct{}

func (NopCounters) IncSent()          {}
func (NopCounters) IncReceived()      {}
func (NopCounters) IncAck()           {}
func (NopCounters) IncAckKO()         {}
func (NopCounters) IncData()          {}
func (NopCounters) IncFrameErrors()   {}
func (NopCounters) IncCRCErrors()     {}
func (NopCounters) IncAPSAck()        {}
func (NopCounters) IncAPSNack()       {}
func (NopCounters) IncAPSFailure()    {}
func (NopCounters) IncStatusTimeout() {}
func (NopCounters) IncDataTimeout()   {}
func (NopCounters) IncRetransmit()    {}
func (NopCounters) SetLoad(int)       {}
func (NopCounters) SetMaxLoad(int)    {}

// queueEntry is one command waiting its turn on SendQueue.
type queueEntry struct {
	opcode          uint16
	payload         []byte
	meta            catalog.Meta
	internalSQN     uint8
	correlationID   uuid.UUID
	enqueuedAt      time.Time
	retransmitCount int
}

// inFlight is the single command currently occupying the status/data slot.
// Only one command can ever be in flight at a time, so a phase field on a
// single record carries the same information a pair of status/data wait
// lists would, without the bookkeeping of keeping two lists in sync.
type inFlight struct {
	entry      queueEntry
	awaitData  bool // true once the 0x8000 has been consumed and we're waiting on expected_opcode
	sentAt     time.Time
}

// apsKey correlates an APS ack/nack frame back to its originating command.
// The natural key would be (nwkid, endpoint, cluster), but this keys on
// nwkid alone since neither endpoint nor cluster is recoverable from a
// generically-parsed outbound payload — a command's catalog entry only
// flags *that* a short network id is present, not where the APS addressing
// fields sit within the rest of the payload.
type apsKey struct {
	nwkid uint16
}

type apsWaiter struct {
	entry queueEntry
}

// routeWaiter is a command parked after an APS failure with status 0xd1,
// waiting for a 0x8701 route-discovery confirm to decide whether to retry.
type routeWaiter struct {
	entry         queueEntry
	dest          string
	originalFrame codec.Frame
}

// retryState tracks how many times a destination's APS failures have been
// parked for retry within the current APSRetryWindow, so retries stop once
// APSMaxRetry is reached inside that window.
type retryState struct {
	count       int
	windowStart time.Time
}

// Coordinator implements the protocol state machine. Submit, OnFrame, and
// Tick are not safe for concurrent use — callers must serialize access to a
// single goroutine. RunLoop provides that serialization via channels for
// callers that want it; direct method calls remain available for
// synchronous callers such as tests.
type Coordinator struct {
	opts     Options
	link     Sender
	catalog  *catalog.Catalog
	sqn      *sqn.Allocator
	devices  devicelog.DeviceStore
	forward  Forwarder
	counters Counters
	log      zerolog.Logger

	inFlight     *inFlight
	sendQueue    []queueEntry
	apsWaiters   map[apsKey]apsWaiter
	routeWaiters []routeWaiter
	retries      map[string]*retryState

	pdmLock bool
	maxLoad int
}

// New builds a Coordinator. forward and counters must be non-nil; pass
// NopCounters{} if statistics aren't needed.
func New(opts Options, link Sender, cat *catalog.Catalog, allocator *sqn.Allocator, devices devicelog.DeviceStore, forward Forwarder, counters Counters, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		opts:       opts,
		link:       link,
		catalog:    cat,
		sqn:        allocator,
		devices:    devices,
		forward:    forward,
		counters:   counters,
		log:        logger,
		apsWaiters: make(map[apsKey]apsWaiter),
		retries:    make(map[string]*retryState),
	}
}

// Submit classifies (opcode, payload) via the catalog and either forwards it
// to the Link immediately or queues it. It allocates and returns a fresh
// internal sequence number — except while the PDM lock is held, where
// non-PDM commands are refused with sqn 0 (the reserved "no sqn" value).
func (c *Coordinator) Submit(opcode uint16, payload []byte) uint8 {
	meta, ok := c.catalog.Lookup(opcode)
	if !ok {
		// Unknown opcodes are treated as StatusOnly: the safest default
		// that still occupies exactly one in-flight slot.
		meta = catalog.Meta{Opcode: opcode, SequenceLen: 1}
	}

	if c.pdmLock && meta.Class() != catalog.PdmOnHost {
		c.log.Warn().Uint16("opcode", opcode).Msg("coordinator: PDM lock held, non-PDM command refused")
		return 0
	}

	internalSQN := c.sqn.Next()
	entry := queueEntry{
		opcode:        opcode,
		payload:       payload,
		meta:          meta,
		internalSQN:   internalSQN,
		correlationID: uuid.New(),
		enqueuedAt:    now(),
	}

	if meta.Class() == catalog.PdmOnHost {
		// PdmOnHost bypasses the queue entirely.
		c.sendOnWire(entry)
		return internalSQN
	}

	if c.inFlight == nil {
		c.dispatch(entry)
		return internalSQN
	}

	// Duplicate suppression: drop if an identical (opcode, payload) pair is
	// already sitting in SendQueue.
	for _, q := range c.sendQueue {
		if q.opcode == entry.opcode && bytesEqual(q.payload, entry.payload) {
			c.log.Debug().Uint16("opcode", opcode).Msg("coordinator: duplicate submit dropped")
			return internalSQN
		}
	}

	c.sendQueue = append(c.sendQueue, entry)
	c.counters.SetLoad(len(c.sendQueue))
	if len(c.sendQueue) > c.maxLoad {
		c.maxLoad = len(c.sendQueue)
		c.counters.SetMaxLoad(c.maxLoad)
	}
	return internalSQN
}

// PDMLock restricts the coordinator to PDM-on-host commands while the host
// rebuilds persistent network state; everything else is refused until the
// lock is released.
func (c *Coordinator) PDMLock(lock bool) {
	c.pdmLock = lock
}

// PDMLockStatus reports whether the PDM lock is currently held.
func (c *Coordinator) PDMLockStatus() bool {
	return c.pdmLock
}

// dispatch puts entry in the in-flight slot and writes it to the wire.
func (c *Coordinator) dispatch(entry queueEntry) {
	c.inFlight = &inFlight{entry: entry, sentAt: now()}
	c.sendOnWire(entry)
}

func (c *Coordinator) sendOnWire(entry queueEntry) {
	if c.catalogNwkIDInPayload(entry) {
		if dest, nwkid, ok := extractNwkID(entry.payload); ok {
			// Only destinations the device store knows get a history entry;
			// commands toward unknown devices go out but aren't recorded.
			if c.devices.Known(dest) {
				c.devices.AddLastCmd(dest, devicelog.Entry{Opcode: entry.opcode, Payload: entry.payload, SQN: entry.internalSQN})
				c.log.Debug().Str("dest", dest).Uint16("nwkid", nwkid).Msg("coordinator: recorded command in device log")
			}
		}
	}

	frame := codec.Encode(entry.opcode, entry.payload)
	if err := c.link.Send(frame); err != nil {
		c.log.Warn().Err(err).Uint16("opcode", entry.opcode).Msg("coordinator: link send failed")
		return
	}
	c.counters.IncSent()
	if c.opts.DebugTransportTx {
		c.log.Debug().Uint16("opcode", entry.opcode).Uint8("sqn", entry.internalSQN).Str("correlation_id", entry.correlationID.String()).Bytes("frame", frame).Msg("coordinator: tx")
	}
}

func (c *Coordinator) catalogNwkIDInPayload(entry queueEntry) bool {
	return entry.meta.NwkIDInPayload
}

// extractNwkID pulls the short network id out of payload bytes 1..3 and
// formats it as the device store's destination key.
func extractNwkID(payload []byte) (dest string, nwkid uint16, ok bool) {
	if len(payload) < 3 {
		return "", 0, false
	}
	nwkid = uint16(payload[1])<<8 | uint16(payload[2])
	return fmt.Sprintf("%04x", nwkid), nwkid, true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// now is overridable in tests; production code always uses time.Now.
var now = time.Now

// OnDecodeError classifies a frame-level decode failure from the Assembler
// into the matching counter: checksum mismatches count as CRC errors,
// everything else (short frame, length mismatch, bad delimiters) as frame
// errors. The frame itself is already gone — the Assembler dropped it and
// kept scanning.
func (c *Coordinator) OnDecodeError(err error) {
	if errors.Is(err, codec.ErrChecksumMismatch) {
		c.counters.IncCRCErrors()
	} else {
		c.counters.IncFrameErrors()
	}
	c.log.Warn().Err(err).Msg("coordinator: dropped undecodable frame")
}

// OnFrame routes a decoded frame by opcode.
func (c *Coordinator) OnFrame(frame codec.Frame) {
	c.counters.IncReceived()
	if c.opts.DebugTransportRx {
		c.log.Debug().Uint16("opcode", frame.Opcode).Bytes("payload", frame.Payload).Uint8("rssi", frame.RSSI).Msg("coordinator: rx")
	}

	switch {
	case frame.Opcode == opStatus:
		c.handleStatus(frame)
	case frame.Opcode == opAPSAck:
		c.handleAPSAck(frame)
	case frame.Opcode == opRouteDiscoveryConf:
		c.handleRouteDiscoveryConfirm(frame)
	case frame.Opcode == opAPSFailure:
		c.handleAPSFailure(frame)
	case c.catalog.IsStandalone(frame.Opcode):
		c.forward(frame)
	default:
		c.handleData(frame)
	}
}

func (c *Coordinator) handleStatus(frame codec.Frame) {
	if c.inFlight == nil {
		c.log.Warn().Msg("coordinator: status frame with no in-flight command, ignoring")
		return
	}
	entry := c.inFlight.entry

	var status byte
	var packetType uint16
	if len(frame.Payload) >= 1 {
		status = frame.Payload[0]
	}
	if len(frame.Payload) >= 4 {
		packetType = uint16(frame.Payload[2])<<8 | uint16(frame.Payload[3])
	}
	if packetType != entry.opcode {
		c.log.Warn().Uint16("expected", entry.opcode).Uint16("got", packetType).Msg("coordinator: status packet_type desync, consuming head anyway")
	}
	if len(frame.Payload) >= 2 {
		c.sqn.Bind(frame.Payload[1])
	}

	if status != 0x00 {
		c.counters.IncAckKO()
		// Status failure purges any pending data wait — no data will come.
		c.inFlight = nil
		c.pump()
		return
	}
	c.counters.IncAck()

	wantsData := entry.meta.Class() == catalog.StatusThenData && c.opts.Mode == ZigBee
	if wantsData {
		c.inFlight.awaitData = true
		c.inFlight.sentAt = now()
	} else {
		c.inFlight = nil
	}

	if c.opts.APSAckMode && entry.meta.NwkIDInPayload {
		if dest, nwkid, ok := extractNwkID(entry.payload); ok {
			key := apsKey{nwkid: nwkid}
			c.apsWaiters[key] = apsWaiter{entry: entry}
			c.log.Debug().Str("dest", dest).Msg("coordinator: command moved to APS-ack wait")
		}
	}

	c.pump()
}

// handleAPSAck processes a 0x8011 APS ack/nack. Payload layout is
// status(1), src_addr(2), src_ep(1), cluster(2). If the source address
// matches a command parked waiting on an APS ack, that waiter is resolved
// and logged; either way the frame is forwarded for the collaborator's own
// processing.
func (c *Coordinator) handleAPSAck(frame codec.Frame) {
	var status byte
	if len(frame.Payload) >= 1 {
		status = frame.Payload[0]
	}
	switch status {
	case apsAckOK:
		c.counters.IncAPSAck()
	case apsAckNack:
		c.counters.IncAPSNack()
	}

	if len(frame.Payload) >= 3 {
		srcAddr := uint16(frame.Payload[1])<<8 | uint16(frame.Payload[2])
		key := apsKey{nwkid: srcAddr}
		if w, ok := c.apsWaiters[key]; ok {
			delete(c.apsWaiters, key)
			c.log.Debug().Uint16("opcode", w.entry.opcode).Uint16("nwkid", srcAddr).Msg("coordinator: APS ack resolved waiting command")
		}
	}

	c.forward(frame)
}

func (c *Coordinator) handleRouteDiscoveryConfirm(frame codec.Frame) {
	if !c.opts.APSRouteError {
		c.forward(frame)
		return
	}
	var nwkStatus, status byte
	if len(frame.Payload) >= 1 {
		nwkStatus = frame.Payload[0]
	}
	if len(frame.Payload) >= 2 {
		status = frame.Payload[1]
	}

	waiters := c.routeWaiters
	c.routeWaiters = nil

	if nwkStatus == 0x00 && status == 0x00 {
		for _, w := range waiters {
			c.log.Debug().Uint16("opcode", w.entry.opcode).Msg("coordinator: route rediscovered, resubmitting")
			c.counters.IncRetransmit()
			c.Submit(w.entry.opcode, w.entry.payload)
		}
	} else {
		for _, w := range waiters {
			c.forward(w.originalFrame)
		}
	}
}

func (c *Coordinator) handleAPSFailure(frame codec.Frame) {
	c.counters.IncAPSFailure()
	var status byte
	if len(frame.Payload) >= 1 {
		status = frame.Payload[0]
	}

	if c.opts.APSReTx && status == apsFailureRouteUnavailable {
		dest := apsFailureDest(frame.Payload)
		if c.retryBudgetExceeded(dest) {
			c.log.Debug().Str("dest", dest).Msg("coordinator: APS retry budget exhausted, forwarding without retransmission")
			c.forward(frame)
			return
		}

		entries := c.devices.Retrieve(dest)
		if len(entries) > 0 {
			last := entries[len(entries)-1]
			if !c.routeWaiterExists(dest, last.Opcode, last.Payload) {
				c.routeWaiters = append(c.routeWaiters, routeWaiter{
					entry:         queueEntry{opcode: last.Opcode, payload: last.Payload, internalSQN: last.SQN},
					dest:          dest,
					originalFrame: frame,
				})
				c.recordRetryAttempt(dest)
				c.log.Debug().Str("dest", dest).Msg("coordinator: APS failure parked pending route discovery")
			}
			return
		}
	}

	c.forward(frame)
}

// retryBudgetExceeded reports whether dest has already been parked for
// retry APSMaxRetry times within the current APSRetryWindow. The window
// resets once it has elapsed, so a destination that goes quiet regains its
// retry budget.
func (c *Coordinator) retryBudgetExceeded(dest string) bool {
	st, ok := c.retries[dest]
	if !ok {
		return false
	}
	if now().Sub(st.windowStart) > c.opts.APSRetryWindow {
		delete(c.retries, dest)
		return false
	}
	return st.count >= c.opts.APSMaxRetry
}

func (c *Coordinator) recordRetryAttempt(dest string) {
	st, ok := c.retries[dest]
	if !ok || now().Sub(st.windowStart) > c.opts.APSRetryWindow {
		st = &retryState{windowStart: now()}
		c.retries[dest] = st
	}
	st.count++
}

func (c *Coordinator) routeWaiterExists(dest string, opcode uint16, payload []byte) bool {
	for _, w := range c.routeWaiters {
		if w.dest == dest && w.entry.opcode == opcode && bytesEqual(w.entry.payload, payload) {
			return true
		}
	}
	return false
}

// apsFailureDest decodes the destination address out of a 0x8702 payload:
// status(1), src_ep(1), dst_ep(1), dst_mode(1), addr(2 for a short address).
func apsFailureDest(payload []byte) string {
	if len(payload) < 6 {
		return ""
	}
	addr := uint16(payload[4])<<8 | uint16(payload[5])
	return fmt.Sprintf("%04x", addr)
}

func (c *Coordinator) handleData(frame codec.Frame) {
	c.counters.IncData()
	if c.inFlight == nil || !c.inFlight.awaitData {
		c.forward(frame)
		return
	}
	if c.inFlight.entry.meta.ExpectedDataOpcode != frame.Opcode {
		c.log.Warn().Uint16("expected", c.inFlight.entry.meta.ExpectedDataOpcode).Uint16("got", frame.Opcode).Msg("coordinator: data opcode mismatch, forwarding without correlation")
		c.forward(frame)
		return
	}
	c.inFlight = nil
	c.forward(frame)
	c.pump()
}

// pump implements the drain rule: after any event that could free the
// in-flight slot, if it's empty and SendQueue is non-empty, pop the head
// and dispatch it.
func (c *Coordinator) pump() {
	if c.inFlight != nil {
		return
	}
	if len(c.sendQueue) == 0 {
		return
	}
	head := c.sendQueue[0]
	c.sendQueue = c.sendQueue[1:]
	c.counters.SetLoad(len(c.sendQueue))
	c.dispatch(head)
}

// Tick enforces in-flight status/data timeouts, then pumps.
func (c *Coordinator) Tick() {
	if c.inFlight != nil {
		elapsed := now().Sub(c.inFlight.sentAt)
		if !c.inFlight.awaitData && elapsed > c.opts.StatusTimeout {
			c.counters.IncStatusTimeout()
			c.log.Warn().Uint16("opcode", c.inFlight.entry.opcode).Msg("coordinator: status timeout")
			c.inFlight = nil
		} else if c.inFlight.awaitData && elapsed > c.opts.DataTimeout {
			c.counters.IncDataTimeout()
			c.log.Warn().Uint16("opcode", c.inFlight.entry.opcode).Msg("coordinator: data timeout")
			c.inFlight = nil
		}
	}
	c.pump()
}

// SendQueueDepth exposes the current backpressure depth, primarily for
// tests and monitoring.
func (c *Coordinator) SendQueueDepth() int {
	return len(c.sendQueue)
}

// InFlightOpcode returns the opcode of the command currently occupying the
// status/data slot, if any.
func (c *Coordinator) InFlightOpcode() (uint16, bool) {
	if c.inFlight == nil {
		return 0, false
	}
	return c.inFlight.entry.opcode, true
}

// AwaitingData reports whether the in-flight command has cleared its status
// and is now waiting on a data response.
func (c *Coordinator) AwaitingData() bool {
	return c.inFlight != nil && c.inFlight.awaitData
}

// RouteWaiterCount exposes WaitForRouteDiscoveryConfirm depth for tests.
func (c *Coordinator) RouteWaiterCount() int {
	return len(c.routeWaiters)
}

// RunLoop is the single-owner scheduler that replaces ad-hoc reentrancy
// flags: it serializes Submit/OnFrame/Tick onto one goroutine by selecting
// over three channels until ctx is cancelled.
func (c *Coordinator) RunLoop(ctx context.Context, submits <-chan SubmitRequest, frames <-chan codec.Frame, tickInterval time.Duration) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-submits:
			sqnVal := c.Submit(req.Opcode, req.Payload)
			if req.Result != nil {
				req.Result <- sqnVal
			}
		case f := <-frames:
			c.OnFrame(f)
		case <-ticker.C:
			c.Tick()
		}
	}
}

// SubmitRequest is the unit of work delivered over RunLoop's submit
// channel; Result, if non-nil, receives the allocated internal sqn.
type SubmitRequest struct {
	Opcode  uint16
	Payload []byte
	Result  chan<- uint8
}
