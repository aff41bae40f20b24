package objectcache

// MissingOwnerError rejects cache writes without ownership attribution.
type MissingOwnerError struct{}

func (e *MissingOwnerError) Error() string {
	return "object has no owner user id"
}

func (e *MissingOwnerError) IsValidation() {}

var errMissingOwner = &MissingOwnerError{}
