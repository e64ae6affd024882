package models

import "errors"

var (
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidBounds    = errors.New("invalid bounds (max_price < min_price)")
	ErrNegativeBound    = errors.New("price bounds must be non-negative")
	ErrInvalidVolume    = errors.New("invalid volume")
	ErrInvalidChannel   = errors.New("invalid notification channel")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidOwner     = errors.New("invalid owner")
	ErrInvalidEventID   = errors.New("invalid event ID")
	ErrInvalidUsername  = errors.New("invalid username")
	ErrInvalidPassword  = errors.New("invalid password")
)
