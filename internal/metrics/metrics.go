package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

const (
	statsdNamespace = "touch_buttons."
	statsdScope     = "default"
)

var (
	mu                sync.RWMutex
	client            statsd.ClientInterface = &statsd.NoOpClient{}
	runtimeGlobalTags                        = make([]string, 0)
)

// Configure points metrics at a datadog agent. Until called (or on failure) metrics noop.
func Configure(addr string) error {
	if addr == "" {
		return nil
	}
	c, err := statsd.New(addr)
	if err != nil {
		log.Info().Err(err).Msg("failed connecting to datadog agent => metrics will noop")
		return err
	}
	c.Namespace = statsdNamespace
	c.Tags = []string{fmt.Sprintf("scope:%s", statsdScope)}
	SetClient(c)
	log.Info().Str("addr", addr).Msg("successfully connected to datadog agent")
	return nil
}

// SetClient swaps the underlying client; tests use it to capture emitted metrics.
func SetClient(c statsd.ClientInterface) {
	mu.Lock()
	client = c
	mu.Unlock()
}

func AddGlobalTags(tags []string) {
	mu.Lock()
	runtimeGlobalTags = append(runtimeGlobalTags, tags...)
	mu.Unlock()
}

func withGlobalTags(tags []string) (statsd.ClientInterface, []string) {
	mu.RLock()
	defer mu.RUnlock()
	all := make([]string, 0, len(runtimeGlobalTags)+len(tags))
	all = append(all, runtimeGlobalTags...)
	return client, append(all, tags...)
}

func Count(name string, value int64, tags []string) error {
	c, tags := withGlobalTags(tags)
	return c.Count(name, value, tags, 1.0 /* rate */)
}

func Distribution(name string, value float64, tags []string) error {
	c, tags := withGlobalTags(tags)
	return c.Distribution(name, value, tags, 1.0 /* rate */)
}

func Gauge(name string, value float64, tags []string) error {
	c, tags := withGlobalTags(tags)
	return c.Gauge(name, value, tags, 1.0 /* rate */)
}

func Incr(name string, tags []string) error {
	c, tags := withGlobalTags(tags)
	return c.Incr(name, tags, 1.0 /* rate */)
}

func BenchmarkMethod(startTime time.Time, methodName string, tags []string) {
	elapsed := time.Since(startTime)
	metricName := fmt.Sprintf("%s.elapsed_ns", methodName)
	Distribution(metricName, float64(elapsed.Nanoseconds()), tags)
}
