//go:build windows

package attach

import "context"

// AttachPID always fails: the Windows attach mechanism injects a thread into
// the target process and is not implemented.
func (p *HotSpotProvider) AttachPID(_ context.Context, _ int) (VirtualMachine, error) {
	return nil, ErrUnsupportedPlatform
}
