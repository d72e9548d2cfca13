package models

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidBid              = errors.New("invalid bid")
	ErrInvalidOrder            = errors.New("invalid order")
	ErrInvalidReview           = errors.New("invalid review")
	ErrInvalidApplication      = errors.New("invalid vendor application")
	ErrInvalidProfile          = errors.New("invalid vendor profile")
	ErrVendorNotEligible       = errors.New("vendor not eligible")
	ErrNotOwner                = errors.New("not owner")
	ErrForbidden               = errors.New("forbidden")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrIllegalTransition       = errors.New("illegal order transition")
	ErrAssignmentAlreadyExists = errors.New("assignment already exists")
	ErrAlreadyFinalized        = errors.New("already finalized")
	ErrDuplicateReview         = errors.New("review already submitted")
	ErrDuplicateApplication    = errors.New("application already open")
)
