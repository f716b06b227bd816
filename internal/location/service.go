package location

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"altitude-recorder/internal/logger"
)

const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

// GPSDService streams TPV reports from gpsd into a Feed, reconnecting with
// exponential backoff.
type GPSDService struct {
	addr string
	feed *Feed

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closer  io.Closer
	lastErr string
}

func NewGPSDService(addr string, feed *Feed) *GPSDService {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	return &GPSDService{addr: addr, feed: feed}
}

func (s *GPSDService) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gpsd service is nil")
	}
	if s.feed == nil {
		return fmt.Errorf("gpsd service has no feed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
	return nil
}

func (s *GPSDService) run(ctx context.Context) {
	logger.Info("gps enabled", "source", "gpsd", "addr", s.addr)
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := dialGPSD(ctx, s.addr)
		if err != nil {
			s.setError(fmt.Sprintf("gpsd dial failed addr=%s: %v", s.addr, err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}

		backoff = initialBackoff

		s.mu.Lock()
		// Close() interrupts a blocked read through the closer.
		s.closer = conn
		s.mu.Unlock()

		s.readConn(ctx, conn)
	}
}

func (s *GPSDService) readConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := gpsdWatch(conn); err != nil {
		s.setError(fmt.Sprintf("gpsd watch failed: %v", err))
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fix, ok, err := parseGPSDLine(time.Now().UTC(), line)
		if err != nil {
			s.setError(err.Error())
			continue
		}
		if !ok {
			continue
		}
		if err := s.feed.Publish(fix); err != nil {
			s.setError(err.Error())
		}
	}

	if ctx.Err() != nil {
		return
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.setError(fmt.Sprintf("gpsd read stopped: %v", err))
}

func (s *GPSDService) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *GPSDService) setError(msg string) {
	s.mu.Lock()
	changed := s.lastErr != msg
	s.lastErr = msg
	s.mu.Unlock()

	// Avoid spamming the log while gpsd is down.
	if changed {
		logger.Warn("gpsd", "detail", msg)
	}
}
