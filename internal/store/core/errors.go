package core

import "errors"

var (
	// ErrNotFound indica que el registro no existe.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict indica una violación de unicidad (login duplicado o
	// insert concurrente de la misma (provider, provider_user_id)).
	ErrConflict = errors.New("store: conflict")
)
