//go:build linux

package linux

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ardnew/pciusb/pkg"
)

// =============================================================================
// Poll Descriptor
// =============================================================================

// pollDesc describes a file descriptor being polled.
type pollDesc struct {
	fd       int          // File descriptor
	events   uint32       // Events to watch for
	callback func(uint32) // Callback when events occur
}

// =============================================================================
// Poller
// =============================================================================

// poller dispatches readiness of interrupt file descriptors to callbacks.
type poller struct {
	epfd    int               // epoll file descriptor
	wakefd  int               // eventfd for waking the poller
	mu      sync.Mutex        // Protects fds map
	fds     map[int]*pollDesc // Tracked file descriptors
	running bool              // Whether poll loop is running
	closed  bool
	done    chan struct{} // Signal to stop polling
}

// newPoller creates a new poller instance.
func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	p := &poller{
		epfd:   epfd,
		wakefd: wakefd,
		fds:    make(map[int]*pollDesc),
		done:   make(chan struct{}),
	}

	if err := p.addFD(wakefd, unix.EPOLLIN, nil); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}

	return p, nil
}

// close shuts down the poller. It is safe to call more than once. A
// running poll loop is woken and closes the descriptors on its way out;
// otherwise they are closed here.
func (p *poller) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)

	if p.running {
		return p.wake()
	}
	return p.closeFDs()
}

// closeFDs releases the epoll and wake descriptors. Callers hold mu.
func (p *poller) closeFDs() error {
	return errors.Join(unix.Close(p.wakefd), unix.Close(p.epfd))
}

// addFD adds a file descriptor to the poller.
func (p *poller) addFD(fd int, events uint32, callback func(uint32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("%w: poller closed", pkg.ErrInvalidState)
	}
	event := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return err
	}

	p.fds[fd] = &pollDesc{
		fd:       fd,
		events:   events,
		callback: callback,
	}
	return nil
}

// delFD removes a file descriptor from the poller.
func (p *poller) delFD(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.fds[fd]; !ok {
		return unix.ENOENT
	}
	delete(p.fds, fd)
	if p.closed {
		return nil
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wake signals the poller to wake up.
func (p *poller) wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wakefd, buf[:])
	return err
}

// poll runs the epoll wait loop until the poller is closed. If the poller
// is closed while polling, the descriptors are closed before poll returns.
func (p *poller) poll() (err error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.running = false
		if p.closed {
			err = errors.Join(err, p.closeFDs())
		}
	}()

	for {
		select {
		case <-p.done:
			return nil
		default:
		}

		if _, err := p.pollOnce(-1); err != nil {
			select {
			case <-p.done:
				return nil
			default:
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
	}
}

// pollOnce performs a single poll iteration with timeout in milliseconds,
// -1 for infinite and 0 for non-blocking. It returns the number of
// callbacks run.
func (p *poller) pollOnce(timeout int) (int, error) {
	var events [MaxEpollEvents]unix.EpollEvent

	n, err := unix.EpollWait(p.epfd, events[:], timeout)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)

		if fd == p.wakefd {
			var buf [8]byte
			unix.Read(p.wakefd, buf[:])
			continue
		}

		p.mu.Lock()
		desc, ok := p.fds[fd]
		p.mu.Unlock()

		if ok && desc.callback != nil {
			desc.callback(events[i].Events)
			processed++
		}
	}

	return processed, nil
}
