// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/term"

	"github.com/piconsole/piconsole/util"
)

type rw struct {
	bytes.Buffer
}

func (*rw) Read([]byte) (int, error) {
	return 0, nil
}

func TestOutputTerm(t *testing.T) {
	conn := &rw{}
	tm := term.NewTerminal(conn, "")

	out := &util.Output{Term: tm, Program: true}

	_, err := out.Write([]byte("hello"))
	require.NoError(t, err)
	require.Zero(t, conn.Len())

	_, err = out.Write([]byte(" world\n"))
	require.NoError(t, err)
	require.Contains(t, conn.String(), "hello world")
	require.Contains(t, conn.String(), string(tm.Escape.Green))
}

// symbolImage returns an ELF32 image whose only content is a symbol table
// holding sym at value.
func symbolImage(sym string, value uint32) []byte {
	le := binary.LittleEndian

	shstrtab := []byte("\x00.symtab\x00.strtab\x00.shstrtab\x00")
	strtab := append([]byte{0}, append([]byte(sym), 0)...)

	symtab := make([]byte, 2*16)
	le.PutUint32(symtab[16:], 1)
	le.PutUint32(symtab[20:], value)
	le.PutUint32(symtab[24:], 4)
	symtab[28] = byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_FUNC)
	le.PutUint16(symtab[30:], uint16(elf.SHN_ABS))

	align := func(n int) int { return (n + 3) &^ 3 }

	shstrOff := 52
	strOff := shstrOff + len(shstrtab)
	symOff := align(strOff + len(strtab))
	shOff := align(symOff + len(symtab))

	buf := make([]byte, shOff+4*40)

	copy(buf, elf.ELFMAG)
	buf[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	buf[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	buf[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	h := buf[elf.EI_NIDENT:]
	le.PutUint16(h[0:], uint16(elf.ET_EXEC))
	le.PutUint16(h[2:], uint16(elf.EM_ARM))
	le.PutUint32(h[4:], uint32(elf.EV_CURRENT))
	le.PutUint32(h[16:], uint32(shOff))
	le.PutUint16(h[24:], 52)
	le.PutUint16(h[30:], 40)
	le.PutUint16(h[32:], 4)
	le.PutUint16(h[34:], 3)

	copy(buf[shstrOff:], shstrtab)
	copy(buf[strOff:], strtab)
	copy(buf[symOff:], symtab)

	section := func(i int, name int, typ elf.SectionType, off int, size int, link uint32, info uint32, entsize uint32) {
		sh := buf[shOff+i*40:]
		le.PutUint32(sh[0:], uint32(name))
		le.PutUint32(sh[4:], uint32(typ))
		le.PutUint32(sh[16:], uint32(off))
		le.PutUint32(sh[20:], uint32(size))
		le.PutUint32(sh[24:], link)
		le.PutUint32(sh[28:], info)
		le.PutUint32(sh[32:], 1)
		le.PutUint32(sh[36:], entsize)
	}

	section(1, 1, elf.SHT_SYMTAB, symOff, len(symtab), 2, 1, 16)
	section(2, 9, elf.SHT_STRTAB, strOff, len(strtab), 0, 0, 0)
	section(3, 17, elf.SHT_STRTAB, shstrOff, len(shstrtab), 0, 0, 0)

	return buf
}

func TestLookupSym(t *testing.T) {
	buf := symbolImage("main.main", 0x10080001)

	sym, err := util.LookupSym(buf, "main.main")
	require.NoError(t, err)
	require.Equal(t, uint64(0x10080001), sym.Value)
	require.Equal(t, uint64(4), sym.Size)

	_, err = util.LookupSym(buf, "no.such.symbol")
	require.Error(t, err)
}

func TestPCToLineWithoutGoTables(t *testing.T) {
	_, err := util.PCToLine(symbolImage("main.main", 0x10080001), 0x10080001)
	require.Error(t, err)
}

func TestDebugNotELF(t *testing.T) {
	_, err := util.LookupSym([]byte("not elf"), "main")
	require.Error(t, err)

	_, err = util.PCToLine([]byte("not elf"), 0x1000)
	require.Error(t, err)
}
