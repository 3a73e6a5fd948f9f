// Copyright (c) The GoTEE authors. All Rights Reserved.
// Copyright (c) The PICOnsole authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm

package usbarmory

import (
	"fmt"
	"log"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/usbarmory/armory-boot/disk"

	"github.com/piconsole/piconsole/storage"
)

// sdCSU is the CSU slave index of the uSD controller.
const sdCSU = 10

// Card serves program images from the first partition of the microSD card.
type Card struct {
	storage.MemFS

	part *disk.Partition
}

// Init detects the card partition.
func (c *Card) Init() (err error) {
	// The controller must be a Secure master to reach the supervisor DMA
	// region.
	if imx6ul.Native {
		if err = imx6ul.CSU.SetAccess(sdCSU, true, false); err != nil {
			return fmt.Errorf("could not configure uSD access, %v", err)
		}
	}

	part, err := disk.Detect(usbarmory.SD, "")

	if err != nil {
		return fmt.Errorf("could not detect uSD partition, %v", err)
	}

	log.Printf("OS detected uSD partition offset:%#x", part.Offset)

	c.part = part
	c.ReadAll = part.ReadAll

	return
}

// Uninit detaches the card, cached files remain readable.
func (c *Card) Uninit() error {
	c.ReadAll = nil
	c.part = nil

	return nil
}
