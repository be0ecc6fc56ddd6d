package crydevice

import "github.com/thezedwards/cryfs/internal/ctlsocksrv"

// CtlsockAdapter adapts a CryDevice's id-typed mount-handle surface to the
// string-typed ctlsocksrv.Interface the control socket server expects.
type CtlsockAdapter struct {
	Device *CryDevice
}

func (a CtlsockAdapter) CipherName() string { return a.Device.CipherName() }

func (a CtlsockAdapter) RootBlobID() string { return a.Device.RootBlobID().String() }

func (a CtlsockAdapter) StatBlock(id string) (string, error) { return a.Device.StatBlock(id) }

var _ ctlsocksrv.Interface = CtlsockAdapter{}
