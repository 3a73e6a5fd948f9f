// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"encoding/hex"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

const maxPeekSize = 4096

func init() {
	Add(Cmd{
		Name:    "peek",
		Args:    2,
		Pattern: regexp.MustCompile(`^peek ([[:xdigit:]]+) (\d+)$`),
		Syntax:  "<hex address> <size>",
		Help:    "memory display",
		Fn:      peekCmd,
	})
}

func peekCmd(_ *term.Terminal, arg []string) (res string, err error) {
	if Memory == nil {
		return "", errors.New("no memory access")
	}

	addr, err := strconv.ParseUint(arg[0], 16, 32)

	if err != nil {
		return "", errors.Errorf("invalid address, %v", err)
	}

	size, err := strconv.ParseUint(arg[1], 10, 32)

	if err != nil {
		return "", errors.Errorf("invalid size, %v", err)
	}

	if size == 0 || size > maxPeekSize {
		return "", errors.Errorf("size must be between 1 and %d", maxPeekSize)
	}

	buf := make([]byte, size)

	if err = Memory.Read(uint32(addr), buf); err != nil {
		return
	}

	return hex.Dump(buf), nil
}
