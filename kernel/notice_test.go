// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	require.Equal(t, []string{"one two", "three"}, wrap("one two three", 8))
	require.Equal(t, []string{"abcd", "ef"}, wrap("abcdef", 4))
	require.Equal(t, []string{"a", "b"}, wrap("a\nb", 10))
	require.Equal(t, []string{""}, wrap("", 10))
}

func TestCentered(t *testing.T) {
	require.Equal(t, (240-14*charWidth)/2, centered(240, "! PROG ERROR !"))
	require.Equal(t, 0, centered(10, "too wide for it"))
}
