package prober

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

const (
	defaultTCPPort    = 80
	defaultTCPTimeout = time.Second
	defaultTCPWorkers = 64
)

// TCP treats a host as alive when a TCP connection to Port succeeds.
type TCP struct {
	Port    int
	Timeout time.Duration
	Workers int
}

func (t *TCP) Name() string { return "tcp" }

type tcpJob struct {
	idx  int
	host string
}

// Sweep implements Sweeper. Hosts are dialed concurrently on a bounded
// pool; results keep the input order.
func (t *TCP) Sweep(ctx context.Context, hosts []string) ([]string, error) {
	port := t.Port
	if port <= 0 {
		port = defaultTCPPort
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultTCPTimeout
	}
	workers := t.Workers
	if workers <= 0 {
		workers = defaultTCPWorkers
	}

	dialer := &net.Dialer{Timeout: timeout}
	ok := make([]bool, len(hosts))

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(workers, func(item interface{}) {
		defer wg.Done()
		job := item.(tcpJob)
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(job.host, strconv.Itoa(port)))
		if err != nil {
			return
		}
		_ = conn.Close()
		ok[job.idx] = true
	})
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var invokeErr error
	for i, h := range hosts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if invokeErr = pool.Invoke(tcpJob{idx: i, host: h}); invokeErr != nil {
			wg.Done()
			break
		}
	}
	wg.Wait()
	if invokeErr != nil {
		return nil, invokeErr
	}

	var alive []string
	for i, h := range hosts {
		if ok[i] {
			alive = append(alive, h)
		}
	}
	return alive, nil
}
