package poller

import (
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
)

const (
	defaultSimInterval   = time.Second
	defaultSimCycleTime  = 2 * time.Second
	simPerformance       = 0.9
	simRejectEvery       = 50
	defaultFaultDuration = 5
)

// MachineProfile shapes a simulated machine. Zero values pick defaults;
// a zero FaultEvery never faults.
type MachineProfile struct {
	FaultEvery    int // reads between faults
	FaultDuration int // reads a fault stays active
}

type machine struct {
	running, fault, total, good, reject, speed string

	unitsPerRead float64
	speedPerMin  float64
	faultBits    []int
	profile      MachineProfile

	tick      int
	faultLeft int
	nextBit   int
	producing int
	total64   int64
	reject64  int64
}

// NewSimMachineReader returns a SimReader whose values follow one
// simulated machine per equipment wired to dev. Every read is one tick:
// counters advance by the ideal rate scaled to the device interval, and
// faults cycle through the configured fault bits.
func NewSimMachineReader(dev *config.DeviceConfig, equipment []config.EquipmentConfig, profile MachineProfile) *SimReader {
	addr := make(map[string]string, len(dev.Tags))
	for _, t := range dev.Tags {
		addr[t.Name] = t.Address
	}

	interval := time.Duration(dev.Interval)
	if interval <= 0 {
		interval = defaultSimInterval
	}

	if profile.FaultDuration <= 0 {
		profile.FaultDuration = defaultFaultDuration
	}

	var machines []*machine

	for i := range equipment {
		eq := &equipment[i]
		if eq.DeviceID != dev.ID {
			continue
		}

		cycle := time.Duration(eq.IdealCycleTime)
		if cycle <= 0 {
			cycle = defaultSimCycleTime
		}

		m := &machine{
			running:      addr[eq.Tags.Running],
			fault:        addr[eq.Tags.FaultWord],
			total:        addr[eq.Tags.TotalCount],
			good:         addr[eq.Tags.GoodCount],
			reject:       addr[eq.Tags.RejectCount],
			speed:        addr[eq.Tags.Speed],
			unitsPerRead: simPerformance * interval.Seconds() / cycle.Seconds(),
			speedPerMin:  simPerformance * 60 / cycle.Seconds(),
			profile:      profile,
		}

		for _, fb := range eq.FaultBits {
			m.faultBits = append(m.faultBits, fb.Bit)
		}

		if len(m.faultBits) == 0 {
			m.faultBits = []int{0}
		}

		machines = append(machines, m)
	}

	r := NewSimReader()
	for _, m := range machines {
		m.write(r.values)
	}

	r.OnRead(func(values map[string]interface{}) {
		for _, m := range machines {
			m.advance()
			m.write(values)
		}
	})

	return r
}

func (m *machine) advance() {
	m.tick++

	if m.faultLeft > 0 {
		m.faultLeft--

		if m.faultLeft > 0 {
			return
		}
	}

	if m.profile.FaultEvery > 0 && m.tick%m.profile.FaultEvery == 0 {
		m.faultLeft = m.profile.FaultDuration
		m.nextBit = (m.nextBit + 1) % len(m.faultBits)

		return
	}

	m.producing++

	for whole := int64(float64(m.producing)*m.unitsPerRead + 1e-9); m.total64 < whole; {
		m.total64++

		if m.total64%simRejectEvery == 0 {
			m.reject64++
		}
	}
}

func (m *machine) write(values map[string]interface{}) {
	faulted := m.faultLeft > 0

	set := func(address string, v interface{}) {
		if address != "" {
			values[address] = v
		}
	}

	set(m.running, !faulted)

	var word uint32
	if faulted {
		word = 1 << uint(m.faultBits[m.nextBit])
	}

	set(m.fault, word)
	set(m.total, m.total64)
	set(m.good, m.total64-m.reject64)
	set(m.reject, m.reject64)

	speed := m.speedPerMin
	if faulted {
		speed = 0
	}

	set(m.speed, speed)
}

// NewSimFactory returns a ReaderFactory that drives "sim" devices with
// simulated machines and builds every other driver with NewReader.
func NewSimFactory(equipment []config.EquipmentConfig, profile MachineProfile) ReaderFactory {
	return func(dev *config.DeviceConfig) (TagReader, error) {
		if dev.Driver != "sim" {
			return NewReader(dev)
		}

		return NewSimMachineReader(dev, equipment, profile), nil
	}
}
