// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

import (
	"github.com/cockroachdb/errors"
)

var ErrNotPowerOfTwo = errors.New("value must be a power of two")

// CheckPow2 returns an error if number is not a power of two.
func CheckPow2(number uint, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return errors.Wrapf(ErrNotPowerOfTwo, "%s is %d", name, number)
	}

	return nil
}

// AlignUp rounds value up to a multiple of alignment, which must be a power
// of two.
func AlignUp(value uint32, alignment uint32) uint32 {
	return (value + alignment - 1) &^ (alignment - 1)
}

// AlignDown rounds value down to a multiple of alignment, which must be a
// power of two.
func AlignDown(value uint32, alignment uint32) uint32 {
	return value &^ (alignment - 1)
}
