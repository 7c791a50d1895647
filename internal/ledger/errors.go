package ledger

import "errors"

// ErrUnreconciled names the unreconciled state in the error taxonomy. No
// function returns it: there is no restart reconciliation against the
// venue or chain that would produce it.
var ErrUnreconciled = errors.New("ledger: unreconciled")

// ErrInsufficientFree is returned when a commit would drive a slot's free
// balance negative — the caller must not have double-counted a reservation.
var ErrInsufficientFree = errors.New("ledger: insufficient free balance")
