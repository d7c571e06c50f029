// Package driver defines the capability interface spoken by brand
// device drivers and the registry that maps device brands onto them.
//
// A driver translates the neutral credential and relay operations into
// one vendor's management API. Sub-packages implement the brands:
//
//   - driver/hikvision: JSON ISAPI (user records, LPR plate lists)
//   - driver/dahua: XML record finder (cursor-paged card/plate tables)
//
// The sync engine and the API layer only ever see this package's
// types; brand packages are wired once at startup.
package driver
