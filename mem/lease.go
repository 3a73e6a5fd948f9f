// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

var ErrRevoked = errors.New("lease revoked")

// Lease grants temporary write access to a region whose owner has not
// started yet. The grantor revokes it when ownership passes on.
type Lease struct {
	region  Region
	revoked atomic.Bool
}

// NewLease returns a valid lease over r.
func NewLease(r Region) *Lease {
	return &Lease{region: r}
}

// Region returns the leased window.
func (l *Lease) Region() Region {
	return l.region
}

// Revoke invalidates the lease, it cannot be renewed.
func (l *Lease) Revoke() {
	l.revoked.Store(true)
}

// Check returns ErrRevoked once the lease has been revoked.
func (l *Lease) Check() error {
	if l == nil {
		return errors.Wrap(ErrRevoked, "no lease")
	}

	if l.revoked.Load() {
		return errors.Wrapf(ErrRevoked, "region %s", l.region)
	}

	return nil
}
