// Package dahua implements the XML record finder device driver.
//
// Credential tables (cards, plate white-list) are read through a
// start/do/stop finder cursor and written through the record updater
// CGI endpoints. Removal is by record number, so deletes locate the
// record first.
package dahua
