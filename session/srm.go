package session

import "github.com/andaru/obex/header"

// requestSRM adds the Single Response Mode headers of the first packet
// of an operation to h.
func requestSRM(h *header.Set, c SRMConfig) {
	if !c.Enabled {
		return
	}
	h.SetByte(header.SingleResponseMode, header.SRMEnabled)
	if c.Wait {
		h.SetByte(header.SingleResponseModeParameter, header.SRMParamWait)
	}
}

// srmWaits returns true if h asks its receiver to wait
func srmWaits(h *header.Set) bool {
	v, ok := h.Byte(header.SingleResponseModeParameter)
	return ok && v == header.SRMParamWait
}

// srmEnabled returns true if h carries an enabled SRM header
func srmEnabled(h *header.Set) bool {
	v, ok := h.Byte(header.SingleResponseMode)
	return ok && v == header.SRMEnabled
}

// negotiateSRM answers a client's operation request under the server's
// configuration, adding the reply's SRM headers to reply. It returns
// true when Single Response Mode is in effect for the operation: both
// sides enabled it and neither asked the other to wait.
func negotiateSRM(request, reply *header.Set, c SRMConfig) (active bool) {
	if !request.Has(header.SingleResponseMode) {
		return false
	}
	if !srmEnabled(request) || !c.Enabled {
		reply.SetByte(header.SingleResponseMode, header.SRMDisabled)
		return false
	}
	reply.SetByte(header.SingleResponseMode, header.SRMEnabled)
	if c.Wait {
		reply.SetByte(header.SingleResponseModeParameter, header.SRMParamWait)
	}
	return !c.Wait && !srmWaits(request)
}
