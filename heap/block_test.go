// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderFlags(t *testing.T) {
	h := &header{}
	require.False(t, h.free())

	h.setOwner(OwnerProgram)
	h.setFree(true)
	require.True(t, h.free())
	require.Equal(t, OwnerProgram, h.owner())

	h.setOwner(OwnerOS)
	require.True(t, h.free())
	require.Equal(t, OwnerOS, h.owner())

	h.setFree(false)
	require.False(t, h.free())
	require.Equal(t, OwnerOS, h.owner())
}
