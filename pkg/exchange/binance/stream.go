package binance

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// reconnectConfig is the exponential backoff schedule for a dropped
// websocket, matching pkg/market/binance's 1s-to-30s-capped reconnect
// idiom (§4.3's "reconnect with exponential backoff starting at 1s capped
// at 30s").
type reconnectConfig struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

func defaultReconnectConfig() reconnectConfig {
	return reconnectConfig{maxRetries: 0, initialDelay: time.Second, maxDelay: 30 * time.Second, multiplier: 2.0}
}

func (r reconnectConfig) backoff(attempt int) time.Duration {
	delay := float64(r.initialDelay)
	for i := 0; i < attempt; i++ {
		delay *= r.multiplier
	}
	if time.Duration(delay) > r.maxDelay {
		return r.maxDelay
	}
	return time.Duration(delay)
}

// streamRawMessages dials url and emits every raw text message it
// receives, reconnecting with exponential backoff on read error or
// disconnect until ctx is canceled or stop is called. A connection loss
// never drops messages already delivered to out; only the read loop that
// follows a fresh dial resumes.
func streamRawMessages(ctx context.Context, dialURL string, label string) (<-chan []byte, func(), error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("binance ws dial %s: %w", label, err)
	}

	cfg := defaultReconnectConfig()
	out := make(chan []byte, 256)
	stopCh := make(chan struct{})
	var stopOnce sync.Once
	var mu sync.Mutex
	current := conn

	stop := func() {
		stopOnce.Do(func() {
			close(stopCh)
			mu.Lock()
			if current != nil {
				_ = current.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = current.Close()
			}
			mu.Unlock()
			close(out)
		})
	}

	reconnect := func() (*websocket.Conn, error) {
		maxRetries := cfg.maxRetries
		if maxRetries == 0 {
			maxRetries = 100
		}
		for attempt := 0; attempt < maxRetries; attempt++ {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-stopCh:
				return nil, fmt.Errorf("stopped")
			default:
			}

			delay := cfg.backoff(attempt)
			log.Printf("binance ws [%s]: reconnecting in %v (attempt %d)", label, delay, attempt+1)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-stopCh:
				return nil, fmt.Errorf("stopped")
			}

			newConn, _, err := dialer.DialContext(ctx, dialURL, nil)
			if err != nil {
				log.Printf("binance ws [%s]: reconnect failed: %v", label, err)
				continue
			}
			log.Printf("binance ws [%s]: reconnected", label)
			return newConn, nil
		}
		return nil, fmt.Errorf("max reconnect attempts exceeded for %s", label)
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			default:
			}

			mu.Lock()
			active := current
			mu.Unlock()
			if active == nil {
				return
			}

			_, msg, err := active.ReadMessage()
			if err != nil {
				select {
				case <-stopCh:
					return
				case <-ctx.Done():
					return
				default:
				}

				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}

				log.Printf("binance ws [%s]: read error: %v", label, err)
				mu.Lock()
				_ = current.Close()
				mu.Unlock()

				newConn, reconErr := reconnect()
				if reconErr != nil {
					log.Printf("binance ws [%s]: giving up: %v", label, reconErr)
					return
				}
				mu.Lock()
				current = newConn
				mu.Unlock()
				continue
			}

			select {
			case out <- msg:
			case <-stopCh:
				return
			}
		}
	}()

	return out, stop, nil
}
