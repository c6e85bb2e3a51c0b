//go:build linux

package pciid

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"

	vfs "github.com/twpayne/go-vfs"

	"github.com/siderolabs/go-pcidb/pkg/pcidb"
)

// DefaultPaths lists the standard locations for the PCI ID database.
var DefaultPaths = []string{
	"/usr/share/hwdata/pci.ids",
	"/usr/share/misc/pci.ids",
	"/usr/share/pci.ids",
}

// Database caches vendor and product names from the PCI ID database.
type Database struct {
	fs       vfs.FS
	vendors  map[uint16]string // VID -> vendor name
	products map[uint32]string // (VID<<16)|DID -> product name
	loaded   bool
	found    bool
	mu       sync.RWMutex
	paths    []string
}

// New creates a new PCI ID database that searches the default paths on the
// host filesystem.
func New() *Database {
	return NewWithPaths(vfs.OSFS, DefaultPaths)
}

// NewWithPaths creates a new PCI ID database that searches the specified
// paths within fs.
func NewWithPaths(fs vfs.FS, paths []string) *Database {
	return &Database{
		fs:       fs,
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
		paths:    paths,
	}
}

// Load parses the first PCI ID database file found. Subsequent calls do
// nothing. Returns false if no database file exists, in which case lookups
// fall back to the embedded database.
func (db *Database) Load() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.loaded {
		return db.found
	}
	db.loaded = true

	for _, path := range db.paths {
		file, err := db.fs.Open(path)
		if err != nil {
			continue
		}
		db.parseDatabase(file)
		file.Close()
		db.found = true
		break
	}
	return db.found
}

// parseDatabase parses the pci.ids format. Vendor lines are "vvvv  Name",
// device lines "\tdddd  Name". Subsystem lines and the class section that
// follows the vendor list are ignored.
func (db *Database) parseDatabase(r io.Reader) {
	scanner := bufio.NewScanner(r)
	var (
		currentVID uint16
		inVendor   bool
	)

	for scanner.Scan() {
		line := scanner.Text()

		if len(line) == 0 || line[0] == '#' {
			continue
		}

		if line[0] == '\t' {
			if !inVendor {
				continue
			}
			line = line[1:]
			if len(line) < 6 || line[0] == '\t' {
				continue
			}
			did, err := strconv.ParseUint(line[:4], 16, 16)
			if err != nil {
				continue
			}
			if line[4] == ' ' {
				key := uint32(currentVID)<<16 | uint32(did)
				db.products[key] = strings.TrimLeft(line[5:], " ")
			}
			continue
		}

		inVendor = false
		if len(line) < 6 {
			continue
		}
		vid, err := strconv.ParseUint(line[:4], 16, 16)
		if err != nil || line[4] != ' ' {
			continue
		}
		currentVID = uint16(vid)
		inVendor = true
		db.vendors[currentVID] = strings.TrimLeft(line[5:], " ")
	}
}

// LookupVendor returns the vendor name for the given vendor id, consulting
// the embedded database when the id is not in the loaded file. Returns an
// empty string if the vendor is unknown.
func (db *Database) LookupVendor(vid uint16) string {
	db.mu.RLock()
	name, ok := db.vendors[vid]
	db.mu.RUnlock()
	if ok {
		return name
	}
	if name, ok = pcidb.LookupVendor(vid); ok {
		return name
	}
	return ""
}

// LookupProduct returns the product name for the given vendor/device pair,
// consulting the embedded database when the pair is not in the loaded file.
func (db *Database) LookupProduct(vid, did uint16) string {
	db.mu.RLock()
	name, ok := db.products[uint32(vid)<<16|uint32(did)]
	db.mu.RUnlock()
	if ok {
		return name
	}
	if name, ok = pcidb.LookupProduct(vid, did); ok {
		return name
	}
	return ""
}

// IsLoaded returns true if a load was attempted.
func (db *Database) IsLoaded() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.loaded
}

// VendorCount returns the number of vendors parsed from the database file.
func (db *Database) VendorCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vendors)
}

// ProductCount returns the number of products parsed from the database file.
func (db *Database) ProductCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.products)
}
