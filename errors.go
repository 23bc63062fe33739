package zealtime

import "errors"

var (
	// ErrTemplateNotFound is returned when no element carries z="<name>".
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInstanceNotFound is returned by Delete for an id with no element.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrNoDocument is returned by document operations before Load or Attach.
	ErrNoDocument = errors.New("no document attached")

	// ErrAnchorNotFound is returned when a selector given to CreateAfterSelector
	// or CreateInSelector matches nothing.
	ErrAnchorNotFound = errors.New("anchor not found")
)
