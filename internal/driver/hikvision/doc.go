// Package hikvision implements the JSON ISAPI device driver.
//
// Person credentials (faces, tags, PINs, fingerprints) live as user
// records under /ISAPI/AccessControl; LPR cameras keep a plate
// white-list under /ISAPI/Traffic. Searches page with a
// searchResultPosition cursor and report MORE until totalMatches
// records have been returned.
package hikvision
