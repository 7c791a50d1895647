package chain

import "errors"

// ErrFatal is surfaced to the Trade Engine when a transaction batch has
// failed twice (original attempt plus one nonce-refreshed retry, §4.8,
// §7). The engine halts new entries on ErrFatal but leaves resting orders
// and open positions untouched.
var ErrFatal = errors.New("chain: fatal, retried once and still failed")

// ErrNonceRace names a submission failure consistent with a stale local
// nonce. No function in this package returns it: submitBatch does not
// classify failures, it refreshes the nonce and retries once after any
// failed attempt before escalating to ErrFatal.
var ErrNonceRace = errors.New("chain: nonce race")
