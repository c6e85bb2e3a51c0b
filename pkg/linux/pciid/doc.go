//go:build linux

// Package pciid provides access to the PCI ID database for looking up vendor
// and device names of host controller functions.
//
// The database file (pci.ids) is distributed with most Linux systems. When no
// file is present, or an id is missing from it, lookups fall back to the
// database embedded in github.com/siderolabs/go-pcidb.
//
// # Usage
//
//	db := pciid.New()
//	db.Load()
//
//	vendorName := db.LookupVendor(0x8086)
//	productName := db.LookupProduct(0x8086, 0x265c)
//
// # Database Locations
//
//   - /usr/share/hwdata/pci.ids
//   - /usr/share/misc/pci.ids
//   - /usr/share/pci.ids
//
// All methods are safe for concurrent use.
package pciid
