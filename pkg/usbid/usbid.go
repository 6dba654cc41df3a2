package usbid

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultPaths lists the standard locations for the USB ID database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
	"/opt/homebrew/share/usb.ids",
	"/usr/local/share/usb.ids",
}

// Database caches vendor and product names from the USB ID database.
type Database struct {
	vendors  map[uint16]string // VID -> vendor name
	products map[uint32]string // (VID<<16)|PID -> product name
	paths    []string
	once     sync.Once
	found    bool
}

// New creates a database that searches paths, or [DefaultPaths] if none
// are given.
func New(paths ...string) *Database {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	return &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
		paths:    paths,
	}
}

// Load parses the first readable database file. Only the first call does
// any work. Returns false if no database file could be found.
func (db *Database) Load() bool {
	db.once.Do(func() {
		for _, path := range db.paths {
			f, err := os.Open(path)
			if err != nil {
				continue
			}
			err = db.Parse(f)
			f.Close()
			if err == nil {
				db.found = true
				return
			}
		}
	})
	return db.found
}

// Parse reads vendor and product lines in usb.ids format from r.
// Class, language and other sections are skipped.
func (db *Database) Parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	var vid uint16
	inVendor := false

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		if line[0] == '\t' {
			// Interface lines are indented twice.
			if !inVendor || strings.HasPrefix(line, "\t\t") {
				continue
			}
			id, name, ok := splitEntry(line[1:])
			if ok {
				db.products[uint32(vid)<<16|uint32(id)] = name
			}
			continue
		}

		id, name, ok := splitEntry(line)
		inVendor = ok
		if ok {
			vid = id
			db.vendors[vid] = name
		}
	}
	return scanner.Err()
}

// splitEntry splits "xxxx  Name" into its hex id and name.
func splitEntry(s string) (uint16, string, bool) {
	if len(s) < 6 || s[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(s[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	return uint16(id), strings.TrimLeft(s[5:], " "), true
}

// Vendor returns the vendor name for vid, or "" if unknown.
func (db *Database) Vendor(vid uint16) string {
	return db.vendors[vid]
}

// Product returns the product name for vid:pid, or "" if unknown.
func (db *Database) Product(vid, pid uint16) string {
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Describe formats vid:pid with whatever names are known, e.g.
// "2ca3:001f (DJI Technology Co., Ltd. Goggles)".
func (db *Database) Describe(vid, pid uint16) string {
	id := fmt.Sprintf("%04x:%04x", vid, pid)
	vendor, product := db.Vendor(vid), db.Product(vid, pid)
	switch {
	case vendor != "" && product != "":
		return id + " (" + vendor + " " + product + ")"
	case vendor != "":
		return id + " (" + vendor + ")"
	default:
		return id
	}
}

// Len returns the number of vendors and products known.
func (db *Database) Len() (vendors, products int) {
	return len(db.vendors), len(db.products)
}
