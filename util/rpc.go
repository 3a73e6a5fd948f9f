// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

// FIFORequest is a program mailbox operation carried over RPC.
type FIFORequest struct {
	// Code is the pushed mailbox word
	Code uint32
	// Timeout is the wait in microseconds, zero does not wait
	Timeout int64
}

// LEDStatus represents an RPC LED state request.
type LEDStatus struct {
	// Name is the LED name
	Name string
	// On is the LED state
	On bool
}
