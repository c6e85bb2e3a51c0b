//go:build linux

package linux

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ardnew/pciusb/pkg"
)

func TestNewPoller(t *testing.T) {
	p, err := newPoller()
	if err != nil {
		t.Fatalf("newPoller failed: %v", err)
	}
	defer p.close()

	if p.epfd < 0 {
		t.Error("epfd should be >= 0")
	}
	if p.wakefd < 0 {
		t.Error("wakefd should be >= 0")
	}
	if p.fds == nil {
		t.Error("fds map should not be nil")
	}
}

func TestPoller_Close(t *testing.T) {
	p, err := newPoller()
	if err != nil {
		t.Fatalf("newPoller failed: %v", err)
	}

	if err := p.close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := p.close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestPoller_Wake(t *testing.T) {
	p, err := newPoller()
	if err != nil {
		t.Fatalf("newPoller failed: %v", err)
	}
	defer p.close()

	if err := p.wake(); err != nil {
		t.Errorf("wake failed: %v", err)
	}
	// The wakeup is consumed without running callbacks.
	n, err := p.pollOnce(100)
	if err != nil {
		t.Fatalf("pollOnce failed: %v", err)
	}
	if n != 0 {
		t.Errorf("pollOnce = %d, want 0", n)
	}
}

func TestPoller_Callback(t *testing.T) {
	p, err := newPoller()
	if err != nil {
		t.Fatalf("newPoller failed: %v", err)
	}
	defer p.close()

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe failed: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	var fired int
	err = p.addFD(fds[0], unix.EPOLLIN, func(events uint32) {
		var buf [1]byte
		unix.Read(fds[0], buf[:])
		if events&unix.EPOLLIN != 0 {
			fired++
		}
	})
	if err != nil {
		t.Fatalf("addFD failed: %v", err)
	}

	if _, err := unix.Write(fds[1], []byte{1}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	n, err := p.pollOnce(1000)
	if err != nil {
		t.Fatalf("pollOnce failed: %v", err)
	}
	if n != 1 || fired != 1 {
		t.Errorf("pollOnce = %d, fired = %d; want 1, 1", n, fired)
	}

	if err := p.delFD(fds[0]); err != nil {
		t.Errorf("delFD failed: %v", err)
	}
	if err := p.delFD(fds[0]); err == nil {
		t.Error("second delFD succeeded")
	}

	unix.Write(fds[1], []byte{1})
	if n, _ := p.pollOnce(0); n != 0 {
		t.Errorf("pollOnce after delFD = %d, want 0", n)
	}
}

func TestPoller_CloseWhilePolling(t *testing.T) {
	for i := 0; i < 50; i++ {
		p, err := newPoller()
		if err != nil {
			t.Fatalf("newPoller failed: %v", err)
		}

		done := make(chan error, 1)
		go func() { done <- p.poll() }()
		if i%2 == 1 {
			time.Sleep(50 * time.Microsecond)
		}
		if err := p.close(); err != nil {
			t.Fatalf("iteration %d: close failed: %v", i, err)
		}

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("iteration %d: poll returned %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: poll did not return after close", i)
		}
	}
}

func TestPoller_AfterClose(t *testing.T) {
	p, err := newPoller()
	if err != nil {
		t.Fatalf("newPoller failed: %v", err)
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe failed: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	if err := p.addFD(fds[0], unix.EPOLLIN, nil); err != nil {
		t.Fatalf("addFD failed: %v", err)
	}
	if err := p.close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := p.delFD(fds[0]); err != nil {
		t.Errorf("delFD after close = %v, want nil", err)
	}
	if err := p.addFD(fds[0], unix.EPOLLIN, nil); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("addFD after close = %v, want %v", err, pkg.ErrInvalidState)
	}
	if err := p.poll(); err != nil {
		t.Errorf("poll after close = %v, want nil", err)
	}
}
