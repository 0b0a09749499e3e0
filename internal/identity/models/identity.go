// Package models defines the citizen identity read model. The directory is
// owned by the population registry; this service only ever reads from it.
package models

import "otpgate/pkg/domain"

// Identity binds a citizen identifier to its registered contact number.
type Identity struct {
	NationalID domain.NationalID
	Name       string
	Mobile     domain.Mobile
}
