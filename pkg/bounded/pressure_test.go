package bounded

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPressureMonitorFiresInRegistrationOrder(t *testing.T) {
	p := NewPressureMonitor(time.Minute, 100)
	p.readMem = func() uint64 { return 200 }

	var order []string
	p.OnPressure(func() { order = append(order, "first") })
	p.OnPressure(func() { order = append(order, "second") })

	assert.True(t, p.Check())
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPressureMonitorBelowThreshold(t *testing.T) {
	p := NewPressureMonitor(time.Minute, 100)
	p.readMem = func() uint64 { return 50 }

	fired := false
	p.OnPressure(func() { fired = true })

	assert.False(t, p.Check())
	assert.False(t, fired)
}

func TestPressureMonitorStopIdempotent(t *testing.T) {
	p := NewPressureMonitor(time.Hour, 1<<60)
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
