// Package metrics exports registrar activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Azhovan/armature"
)

// Collector counts registrations. Subscribe it to a registrar:
//
//	c := metrics.New("armature")
//	_ = exec.Registrar().Subscribe(c)
//	prometheus.MustRegister(c)
type Collector struct {
	protocols           prometheus.Counter
	types               *prometheus.CounterVec
	instancesRegistered *prometheus.CounterVec
	instancesFinalized  *prometheus.CounterVec
	live                *prometheus.GaugeVec
}

var (
	_ armature.ProtocolObserver = (*Collector)(nil)
	_ armature.TypeObserver     = (*Collector)(nil)
	_ armature.InstanceObserver = (*Collector)(nil)
	_ prometheus.Collector      = (*Collector)(nil)
)

// New creates a collector whose metrics live under namespace.
func New(namespace string) *Collector {
	return &Collector{
		protocols: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocols_registered_total",
			Help:      "Total number of protocols registered",
		}),
		types: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "types_registered_total",
				Help:      "Total number of component types registered",
			},
			[]string{"package"},
		),
		instancesRegistered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_registered_total",
				Help:      "Total number of instances registered",
			},
			[]string{"family"},
		),
		instancesFinalized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_finalized_total",
				Help:      "Total number of instances finalized or discarded",
			},
			[]string{"family"},
		),
		live: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "instances_live",
				Help:      "Current number of registered instances",
			},
			[]string{"family"},
		),
	}
}

func (c *Collector) ProtocolRegistered(p *armature.Protocol) {
	c.protocols.Inc()
}

func (c *Collector) TypeRegistered(t *armature.ComponentType) {
	c.types.WithLabelValues(t.Package()).Inc()
}

func (c *Collector) InstanceRegistered(i *armature.Instance) {
	family := i.Type().Family()
	c.instancesRegistered.WithLabelValues(family).Inc()
	c.live.WithLabelValues(family).Inc()
}

func (c *Collector) InstanceFinalized(i *armature.Instance) {
	family := i.Type().Family()
	c.instancesFinalized.WithLabelValues(family).Inc()
	c.live.WithLabelValues(family).Dec()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.protocols.Describe(ch)
	c.types.Describe(ch)
	c.instancesRegistered.Describe(ch)
	c.instancesFinalized.Describe(ch)
	c.live.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.protocols.Collect(ch)
	c.types.Collect(ch)
	c.instancesRegistered.Collect(ch)
	c.instancesFinalized.Collect(ch)
	c.live.Collect(ch)
}
