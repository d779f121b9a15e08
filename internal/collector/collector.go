// Package collector samples per-interface network counters from the OS and
// converts them to throughput rates. It is the producer side of the engine;
// it holds no reference to the store.
package collector

import (
	"time"

	gnet "github.com/shirou/gopsutil/v4/net"

	"github.com/xtxerr/speedhist/internal/errors"
	"github.com/xtxerr/speedhist/internal/history/types"
	"github.com/xtxerr/speedhist/internal/logging"
)

var log = logging.Component("collector")

// counters is one interface's cumulative byte counters.
type counters struct {
	sent uint64
	recv uint64
}

// Collector turns cumulative interface counters into bytes/sec rates by
// differencing successive readings. Not safe for concurrent use; the daemon
// drives it from a single loop.
type Collector struct {
	excluded map[string]struct{}

	prev     map[string]counters
	prevTime time.Time

	// readCounters is injectable for tests.
	readCounters func() ([]gnet.IOCountersStat, error)
}

// New creates a Collector that skips the named interfaces.
func New(excluded []string) *Collector {
	ex := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		ex[name] = struct{}{}
	}
	return &Collector{
		excluded:     ex,
		prev:         make(map[string]counters),
		readCounters: readIOCounters,
	}
}

func readIOCounters() ([]gnet.IOCountersStat, error) {
	return gnet.IOCounters(true)
}

// Sample reads the counters at the given instant and returns per-interface
// rates since the previous call. The first call establishes the baseline and
// returns nil. A counter that went backwards (interface reset, driver
// reload) re-seeds that interface and reports zero for the cycle.
func (c *Collector) Sample(now time.Time) (map[string]types.Speed, error) {
	stats, err := c.readCounters()
	if err != nil {
		return nil, errors.Wrap(err, "read interface counters")
	}
	if len(stats) == 0 {
		return nil, errors.ErrNoInterfaces
	}

	current := make(map[string]counters, len(stats))
	for _, st := range stats {
		if _, skip := c.excluded[st.Name]; skip {
			continue
		}
		current[st.Name] = counters{sent: st.BytesSent, recv: st.BytesRecv}
	}

	elapsed := now.Sub(c.prevTime).Seconds()
	first := c.prevTime.IsZero()

	defer func() {
		c.prev = current
		c.prevTime = now
	}()

	if first || elapsed <= 0 {
		return nil, nil
	}

	speeds := make(map[string]types.Speed, len(current))
	for name, cur := range current {
		prev, seen := c.prev[name]
		if !seen {
			// New interface this cycle; baseline it, report next time.
			continue
		}
		if cur.sent < prev.sent || cur.recv < prev.recv {
			log.Debug("counter went backwards, reseeding", "interface", name)
			speeds[name] = types.Speed{}
			continue
		}
		speeds[name] = types.Speed{
			Upload:   float64(cur.sent-prev.sent) / elapsed,
			Download: float64(cur.recv-prev.recv) / elapsed,
		}
	}
	return speeds, nil
}

// Interfaces returns the names of the interfaces visible to the collector
// after exclusion filtering.
func (c *Collector) Interfaces() ([]string, error) {
	stats, err := c.readCounters()
	if err != nil {
		return nil, errors.Wrap(err, "read interface counters")
	}

	names := make([]string, 0, len(stats))
	for _, st := range stats {
		if _, skip := c.excluded[st.Name]; skip {
			continue
		}
		names = append(names, st.Name)
	}
	return names, nil
}
