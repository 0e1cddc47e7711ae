package distribution

import (
	"sync"
	"time"
)

// Challenge is a pending manual login. It is resolved when the session
// reports a signed-in page, or abandoned when the wait ends first.
type Challenge struct {
	Site     string
	LoginURL string

	deadline time.Time
	done     chan struct{}
	once     sync.Once

	mu       sync.Mutex
	resolved bool
	err      error
}

func newChallenge(site, loginURL string, deadline time.Time) *Challenge {
	return &Challenge{
		Site:     site,
		LoginURL: loginURL,
		deadline: deadline,
		done:     make(chan struct{}),
	}
}

// Done is closed once the challenge is resolved or abandoned.
func (c *Challenge) Done() <-chan struct{} { return c.done }

// Deadline is when the wait for the login gives up.
func (c *Challenge) Deadline() time.Time { return c.deadline }

// Resolved reports whether the login completed.
func (c *Challenge) Resolved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved
}

// Err is why an abandoned challenge ended.
func (c *Challenge) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Challenge) finish(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.resolved = err == nil
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}
