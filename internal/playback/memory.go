package playback

import (
	"context"
	"errors"
	"sync"
)

var errDeviceClosed = errors.New("device closed")

// MemoryDevice is an in-process device with a manually advanced cursor.
type MemoryDevice struct {
	mu       sync.Mutex
	size     int
	pos      int
	playing  bool
	closed   bool
	failNext error
	notify   func(error)
}

// MemoryFactory opens MemoryDevices and remembers them in order.
type MemoryFactory struct {
	mu      sync.Mutex
	devices []*MemoryDevice
	openErr error
}

func NewMemoryFactory() *MemoryFactory { return &MemoryFactory{} }

// FailOpen makes subsequent Open calls return err.
func (f *MemoryFactory) FailOpen(err error) {
	f.mu.Lock()
	f.openErr = err
	f.mu.Unlock()
}

func (f *MemoryFactory) Open(_ context.Context, art Artifact, notify func(error)) (Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	dev := &MemoryDevice{size: len(art.Data), notify: notify}
	f.devices = append(f.devices, dev)
	return dev, nil
}

// Devices returns every device opened so far.
func (f *MemoryFactory) Devices() []*MemoryDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MemoryDevice(nil), f.devices...)
}

// Last returns the most recently opened device or nil.
func (f *MemoryFactory) Last() *MemoryDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.devices) == 0 {
		return nil
	}
	return f.devices[len(f.devices)-1]
}

func (d *MemoryDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errDeviceClosed
	}
	d.playing = true
	return nil
}

func (d *MemoryDevice) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errDeviceClosed
	}
	d.playing = false
	return nil
}

func (d *MemoryDevice) Rewind() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errDeviceClosed
	}
	d.playing = false
	d.pos = 0
	return nil
}

func (d *MemoryDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.playing = false
	return nil
}

// Advance moves the cursor by n bytes while playing. Reaching the end
// reports natural completion and rewinds.
func (d *MemoryDevice) Advance(n int) {
	d.mu.Lock()
	if !d.playing || d.closed {
		d.mu.Unlock()
		return
	}
	if d.failNext != nil {
		err := d.failNext
		d.failNext = nil
		d.playing = false
		d.mu.Unlock()
		d.notify(err)
		return
	}
	d.pos += n
	if d.pos < d.size {
		d.mu.Unlock()
		return
	}
	d.pos = 0
	d.playing = false
	d.mu.Unlock()
	d.notify(nil)
}

// FailOnAdvance makes the next Advance report err as a device failure.
func (d *MemoryDevice) FailOnAdvance(err error) {
	d.mu.Lock()
	d.failNext = err
	d.mu.Unlock()
}

func (d *MemoryDevice) Position() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

func (d *MemoryDevice) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

func (d *MemoryDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *MemoryDevice) Size() int { return d.size }
