package resourcesapi

import "fmt"

// MissingResourceError represents an unknown resource class or pool id.
type MissingResourceError struct {
	ID string
}

func (e *MissingResourceError) Error() string {
	return fmt.Sprintf("resource %q not found", e.ID)
}

func (e *MissingResourceError) IsMissingResource() {}
