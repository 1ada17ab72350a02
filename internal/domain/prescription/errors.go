package prescription

import "errors"

var (
	ErrPrescriptionNotFound = errors.New("prescription not found")
	ErrNoComponents         = errors.New("prescription must order at least one medication, test, or exam")
	ErrProviderMissing      = errors.New("a provider must be named for every ordered component class")
	ErrInvalidExpiry        = errors.New("prescription expiry must be after the issue date")
)
