//go:build linux

package aio

import "fmt"

// NewProvider returns a provider for backend. The kernel backend is probed
// once; when the host refuses io_setup the pool backend is returned along
// with the probe error so the caller can report the fallback.
func NewProvider(backend string, workers int) (Provider, error) {
	switch backend {
	case BackendPool:
		return NewPoolProvider(workers), nil
	case BackendKernel, "":
		k, err := newKernelContext()
		if err != nil {
			return NewPoolProvider(workers), err
		}
		if err := k.Release(); err != nil {
			return NewPoolProvider(workers), err
		}
		return KernelProvider{}, nil
	default:
		return nil, fmt.Errorf("aio: unknown backend %q", backend)
	}
}
