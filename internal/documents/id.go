package documents

import "github.com/google/uuid"

// UUIDProvider generates identifiers backed by random UUIDs.
type UUIDProvider struct{}

// NewUUIDProvider constructs the default identifier provider.
func NewUUIDProvider() UUIDProvider {
	return UUIDProvider{}
}

// NewID returns a new random identifier.
func (UUIDProvider) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
