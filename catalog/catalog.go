// Package catalog holds the static per-opcode metadata the Coordinator
// needs to classify a command: does it bypass queuing entirely (PDM on
// host), does it only ever get a status response, or does it get a status
// followed by a data response at a known opcode.
package catalog

import "fmt"

// Class is a command's derived classification: whether it bypasses the
// queue entirely, expects only a status response, or expects a status
// followed by a data response.
type Class int

const (
	// PdmOnHost commands bypass queuing entirely — the host, not the
	// dongle, owns persistent network state for these.
	PdmOnHost Class = iota
	// StatusOnly commands only ever produce a 0x8000 status frame.
	StatusOnly
	// StatusThenData commands produce a 0x8000 status and, later, a data
	// frame at the opcode named by Meta.ExpectedDataOpcode.
	StatusThenData
)

func (c Class) String() string {
	switch c {
	case PdmOnHost:
		return "PdmOnHost"
	case StatusOnly:
		return "StatusOnly"
	case StatusThenData:
		return "StatusThenData"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Meta is a command's catalog entry. SequenceLen counts the responses this
// command produces: 0 means PdmOnHost, 1 means StatusOnly, >=2 means
// StatusThenData with ExpectedDataOpcode set to the second element of that
// sequence.
type Meta struct {
	Opcode             uint16
	NwkIDInPayload     bool
	SequenceLen        int
	ExpectedDataOpcode uint16
}

// Class derives the command's class from SequenceLen.
func (m Meta) Class() Class {
	switch {
	case m.SequenceLen == 0:
		return PdmOnHost
	case m.SequenceLen == 1:
		return StatusOnly
	default:
		return StatusThenData
	}
}

// Catalog answers per-opcode classification and standalone-notification
// lookups. The zero value is usable but empty; use New for the seeded
// default table.
type Catalog struct {
	commands   map[uint16]Meta
	standalone map[uint16]struct{}
}

// New returns a Catalog seeded with a representative subset of the ZiGate
// command/response table, including the PDM-on-host opcodes a ZiGate
// firmware build exposes to let the host persist network state itself.
// Callers may add more entries via Register/RegisterStandalone; the table
// is entirely data-driven, not hardwired into the Coordinator.
func New() *Catalog {
	c := &Catalog{
		commands:   make(map[uint16]Meta),
		standalone: make(map[uint16]struct{}),
	}
	for _, m := range defaultCommands {
		c.Register(m)
	}
	for _, op := range defaultStandalone {
		c.RegisterStandalone(op)
	}
	return c
}

var defaultCommands = []Meta{
	// Housekeeping request — status only.
	{Opcode: 0x0010, SequenceLen: 1},

	// Generic attribute read request — status then data at 0x8100.
	{Opcode: 0x0100, SequenceLen: 2, ExpectedDataOpcode: 0x8100},

	// On/off cluster command — carries a short network id in payload bytes
	// 1..3 and responds with an attribute report.
	{Opcode: 0x0092, NwkIDInPayload: true, SequenceLen: 2, ExpectedDataOpcode: 0x8102},

	// Start network — status then a network-joined/formed data frame.
	{Opcode: 0x0024, SequenceLen: 2, ExpectedDataOpcode: 0x8024},

	// Write attribute request — targets a device by nwkid, status then
	// write-attribute response.
	{Opcode: 0x0110, NwkIDInPayload: true, SequenceLen: 2, ExpectedDataOpcode: 0x8110},

	// PDM-on-host commands: the host owns persistence for these, so they
	// bypass normal queuing (Class PdmOnHost, SequenceLen 0).
	{Opcode: 0x8300, SequenceLen: 0},
	{Opcode: 0x8200, SequenceLen: 0},
	{Opcode: 0x8201, SequenceLen: 0},
	{Opcode: 0x8204, SequenceLen: 0},
	{Opcode: 0x8205, SequenceLen: 0},
	{Opcode: 0x8206, SequenceLen: 0},
	{Opcode: 0x8207, SequenceLen: 0},
	{Opcode: 0x8208, SequenceLen: 0},
}

// defaultStandalone are firmware-originated asynchronous notifications:
// forwarded to the collaborator as-is, never correlated against a queue.
var defaultStandalone = []uint16{
	0x004d, // device announce
	0x8048, // leave indication
	0x8085, // remote button press
	0x8095, // remote button release
}

// Register adds or replaces a command's catalog entry.
func (c *Catalog) Register(m Meta) {
	if c.commands == nil {
		c.commands = make(map[uint16]Meta)
	}
	c.commands[m.Opcode] = m
}

// RegisterStandalone marks opcode as a standalone asynchronous notification.
func (c *Catalog) RegisterStandalone(opcode uint16) {
	if c.standalone == nil {
		c.standalone = make(map[uint16]struct{})
	}
	c.standalone[opcode] = struct{}{}
}

// Lookup returns the command's catalog entry, if known.
func (c *Catalog) Lookup(opcode uint16) (Meta, bool) {
	m, ok := c.commands[opcode]
	return m, ok
}

// IsStandalone reports whether opcode is a firmware-originated asynchronous
// notification that should be forwarded without queue correlation.
func (c *Catalog) IsStandalone(opcode uint16) bool {
	_, ok := c.standalone[opcode]
	return ok
}
