package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolDefaults(t *testing.T) {
	c := PostgresPoolConfig{}.withDefaults()
	// Burst-friendly shape: more open than idle, idle trimmed fast.
	if c.MaxOpenConns != 40 || c.MaxIdleConns != 10 {
		t.Fatalf("unexpected pool defaults: %+v", c)
	}
	if c.MaxIdleConns >= c.MaxOpenConns {
		t.Fatalf("idle cap should sit below the open cap: %+v", c)
	}
	if c.ConnMaxIdleTime != 2*time.Minute {
		t.Fatalf("unexpected idle time: %v", c.ConnMaxIdleTime)
	}
	if c.PingTimeout != 3*time.Second {
		t.Fatalf("unexpected ping timeout: %v", c.PingTimeout)
	}
}

func TestPostgresPoolExplicitValuesKept(t *testing.T) {
	c := PostgresPoolConfig{
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     time.Second,
	}.withDefaults()
	if c.MaxOpenConns != 5 || c.MaxIdleConns != 2 {
		t.Fatalf("explicit caps overridden: %+v", c)
	}
	if c.ConnMaxLifetime != time.Hour || c.ConnMaxIdleTime != time.Minute || c.PingTimeout != time.Second {
		t.Fatalf("explicit durations overridden: %+v", c)
	}
}
