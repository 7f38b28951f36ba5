// Package metrics exposes the Coordinator's activity as Prometheus series:
// sent/received/ack/data counts and friends, as an additive observability
// surface. The core never reads these back, only increments them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry implements coordinator.Counters on top of Prometheus
// instrumentation, registered under the zigate_ namespace.
type Registry struct {
	sent          prometheus.Counter
	received      prometheus.Counter
	ack           prometheus.Counter
	ackKO         prometheus.Counter
	data          prometheus.Counter
	frameErrors   prometheus.Counter
	crcErrors     prometheus.Counter
	apsAck        prometheus.Counter
	apsNack       prometheus.Counter
	apsFailure    prometheus.Counter
	statusTimeout prometheus.Counter
	dataTimeout   prometheus.Counter
	retransmit    prometheus.Counter
	sendQueue     prometheus.Gauge
	maxLoad       prometheus.Gauge
}

// NewRegistry builds a Registry and registers all series against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "zigate", Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "zigate", Name: name, Help: help})
		reg.MustRegister(g)
		return g
	}

	return &Registry{
		sent:          counter("sent_total", "Commands written to the wire."),
		received:      counter("received_total", "Frames decoded from the wire."),
		ack:           counter("ack_total", "Successful 0x8000 status responses."),
		ackKO:         counter("ack_ko_total", "Failing 0x8000 status responses."),
		data:          counter("data_total", "Data frames received."),
		frameErrors:   counter("frame_errors_total", "Frames dropped for a decode error other than a checksum mismatch."),
		crcErrors:     counter("crc_errors_total", "Frames dropped for checksum mismatch."),
		apsAck:        counter("aps_ack_total", "APS acknowledgements (0x8011 status 0x00)."),
		apsNack:       counter("aps_nack_total", "APS negative acknowledgements (0x8011 status 0xa7)."),
		apsFailure:    counter("aps_failure_total", "APS failures (0x8702)."),
		statusTimeout: counter("status_timeout_total", "WaitFor8000Queue head expirations."),
		dataTimeout:   counter("data_timeout_total", "WaitForDataQueue head expirations."),
		retransmit:    counter("retransmit_total", "Commands resubmitted after route rediscovery."),
		sendQueue:     gauge("send_queue_depth", "Current SendQueue backlog."),
		maxLoad:       gauge("send_queue_depth_max", "Highest SendQueue backlog seen."),
	}
}

func (r *Registry) IncSent()          { r.sent.Inc() }
func (r *Registry) IncReceived()      { r.received.Inc() }
func (r *Registry) IncAck()           { r.ack.Inc() }
func (r *Registry) IncAckKO()         { r.ackKO.Inc() }
func (r *Registry) IncData()          { r.data.Inc() }
func (r *Registry) IncFrameErrors()   { r.frameErrors.Inc() }
func (r *Registry) IncCRCErrors()     { r.crcErrors.Inc() }
func (r *Registry) IncAPSAck()        { r.apsAck.Inc() }
func (r *Registry) IncAPSNack()       { r.apsNack.Inc() }
func (r *Registry) IncAPSFailure()    { r.apsFailure.Inc() }
func (r *Registry) IncStatusTimeout() { r.statusTimeout.Inc() }
func (r *Registry) IncDataTimeout()   { r.dataTimeout.Inc() }
func (r *Registry) IncRetransmit()    { r.retransmit.Inc() }
func (r *Registry) SetLoad(n int)     { r.sendQueue.Set(float64(n)) }
func (r *Registry) SetMaxLoad(n int)  { r.maxLoad.Set(float64(n)) }
