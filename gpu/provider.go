// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu"
)

// FromProvider builds a Context around a device owned by a host
// application, such as a gogpu window. The host keeps ownership of the
// device; Dispose releases only surface.
//
// The provider's device must be a *wgpu.Device.
func FromProvider(p gpucontext.DeviceProvider, surface Surface, width, height uint32) (*Context, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil device provider", ErrDeviceRequestFailed)
	}
	raw, ok := p.Device().(*wgpu.Device)
	if !ok || raw == nil {
		return nil, fmt.Errorf("%w: provider device is %T, want *wgpu.Device", ErrDeviceRequestFailed, p.Device())
	}
	return newAdoptedContext(&borrowedDevice{WGPUDevice: WrapDevice(raw)}, surface, p.SurfaceFormat(), width, height)
}

// borrowedDevice does not release the host's device.
type borrowedDevice struct {
	*WGPUDevice
}

func (borrowedDevice) Release() {}
