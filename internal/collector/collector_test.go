package collector

import (
	"testing"
	"time"

	gnet "github.com/shirou/gopsutil/v4/net"

	"github.com/xtxerr/speedhist/internal/errors"
)

// fakeCounters returns a readCounters func that serves the given readings in
// sequence, repeating the last one.
func fakeCounters(readings ...[]gnet.IOCountersStat) func() ([]gnet.IOCountersStat, error) {
	i := 0
	return func() ([]gnet.IOCountersStat, error) {
		r := readings[i]
		if i < len(readings)-1 {
			i++
		}
		return r, nil
	}
}

func TestSampleFirstCallBaselines(t *testing.T) {
	c := New(nil)
	c.readCounters = fakeCounters([]gnet.IOCountersStat{
		{Name: "eth0", BytesSent: 1000, BytesRecv: 2000},
	})

	speeds, err := c.Sample(time.Unix(100, 0))
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if speeds != nil {
		t.Errorf("first sample = %v, want nil baseline", speeds)
	}
}

func TestSampleComputesRates(t *testing.T) {
	c := New(nil)
	c.readCounters = fakeCounters(
		[]gnet.IOCountersStat{{Name: "eth0", BytesSent: 1000, BytesRecv: 2000}},
		[]gnet.IOCountersStat{{Name: "eth0", BytesSent: 3000, BytesRecv: 6000}},
	)

	if _, err := c.Sample(time.Unix(100, 0)); err != nil {
		t.Fatalf("baseline: %v", err)
	}
	speeds, err := c.Sample(time.Unix(102, 0))
	if err != nil {
		t.Fatalf("sample: %v", err)
	}

	sp, ok := speeds["eth0"]
	if !ok {
		t.Fatal("eth0 missing from sample")
	}
	if sp.Upload != 1000 {
		t.Errorf("upload = %v, want 1000 (2000 bytes / 2s)", sp.Upload)
	}
	if sp.Download != 2000 {
		t.Errorf("download = %v, want 2000 (4000 bytes / 2s)", sp.Download)
	}
}

func TestSampleCounterResetReportsZero(t *testing.T) {
	c := New(nil)
	c.readCounters = fakeCounters(
		[]gnet.IOCountersStat{{Name: "eth0", BytesSent: 5000, BytesRecv: 5000}},
		[]gnet.IOCountersStat{{Name: "eth0", BytesSent: 100, BytesRecv: 100}},
		[]gnet.IOCountersStat{{Name: "eth0", BytesSent: 1100, BytesRecv: 2100}},
	)

	c.Sample(time.Unix(100, 0))

	speeds, err := c.Sample(time.Unix(101, 0))
	if err != nil {
		t.Fatalf("sample after reset: %v", err)
	}
	if sp := speeds["eth0"]; sp.Upload != 0 || sp.Download != 0 {
		t.Errorf("reset cycle = %v, want zero", sp)
	}

	// The reset reading became the new baseline.
	speeds, err = c.Sample(time.Unix(102, 0))
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if sp := speeds["eth0"]; sp.Upload != 1000 || sp.Download != 2000 {
		t.Errorf("post-reset rates = %v, want 1000/2000", sp)
	}
}

func TestSampleNewInterfaceSkipsOneCycle(t *testing.T) {
	c := New(nil)
	c.readCounters = fakeCounters(
		[]gnet.IOCountersStat{{Name: "eth0", BytesSent: 0, BytesRecv: 0}},
		[]gnet.IOCountersStat{
			{Name: "eth0", BytesSent: 100, BytesRecv: 100},
			{Name: "wlan0", BytesSent: 500, BytesRecv: 500},
		},
		[]gnet.IOCountersStat{
			{Name: "eth0", BytesSent: 200, BytesRecv: 200},
			{Name: "wlan0", BytesSent: 600, BytesRecv: 600},
		},
	)

	c.Sample(time.Unix(100, 0))

	speeds, _ := c.Sample(time.Unix(101, 0))
	if _, ok := speeds["wlan0"]; ok {
		t.Error("new interface reported before it had a baseline")
	}

	speeds, _ = c.Sample(time.Unix(102, 0))
	if sp, ok := speeds["wlan0"]; !ok || sp.Upload != 100 {
		t.Errorf("wlan0 second cycle = %v (present=%v), want 100", sp, ok)
	}
}

func TestSampleExcludesInterfaces(t *testing.T) {
	c := New([]string{"lo"})
	c.readCounters = fakeCounters(
		[]gnet.IOCountersStat{
			{Name: "eth0", BytesSent: 0, BytesRecv: 0},
			{Name: "lo", BytesSent: 0, BytesRecv: 0},
		},
		[]gnet.IOCountersStat{
			{Name: "eth0", BytesSent: 100, BytesRecv: 100},
			{Name: "lo", BytesSent: 9999, BytesRecv: 9999},
		},
	)

	c.Sample(time.Unix(100, 0))
	speeds, err := c.Sample(time.Unix(101, 0))
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if _, ok := speeds["lo"]; ok {
		t.Error("excluded interface reported")
	}
	if _, ok := speeds["eth0"]; !ok {
		t.Error("eth0 missing")
	}
}

func TestSampleNoInterfaces(t *testing.T) {
	c := New(nil)
	c.readCounters = fakeCounters([]gnet.IOCountersStat{})

	_, err := c.Sample(time.Unix(100, 0))
	if !errors.Is(err, errors.ErrNoInterfaces) {
		t.Errorf("error = %v, want ErrNoInterfaces", err)
	}
}

func TestInterfacesFiltersExcluded(t *testing.T) {
	c := New([]string{"lo"})
	c.readCounters = fakeCounters([]gnet.IOCountersStat{
		{Name: "eth0"}, {Name: "lo"}, {Name: "wlan0"},
	})

	names, err := c.Interfaces()
	if err != nil {
		t.Fatalf("interfaces: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("names = %v, want eth0 and wlan0", names)
	}
	for _, n := range names {
		if n == "lo" {
			t.Error("excluded interface listed")
		}
	}
}
