package models

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidProjectID = errors.New("project id must match customer-id/project-id")

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+/[A-Za-z0-9_-]+$`)

// ValidateProjectID checks the customer-id/project-id shape.
func ValidateProjectID(projectID string) error {
	if !projectIDPattern.MatchString(projectID) {
		return ErrInvalidProjectID
	}

	return nil
}

// CustomerIDFromProjectID returns the part before the first slash, or "" when there is none.
func CustomerIDFromProjectID(projectID string) string {
	customerID, _, found := strings.Cut(projectID, "/")
	if !found {
		return ""
	}

	return customerID
}
