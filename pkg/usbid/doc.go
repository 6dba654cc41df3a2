// Package usbid looks up USB vendor and product names in the usb.ids
// database shipped by most distributions (hwdata, usbutils).
//
// Load the database once and describe devices in log output:
//
//	db := usbid.New()
//	db.Load()
//	name := db.Describe(0x2ca3, 0x001f)
//
// When no database file exists, lookups return empty strings and
// [Database.Describe] falls back to the bare vid:pid.
package usbid
