//go:build race

package accounts

import "golang.org/x/crypto/bcrypt"

// defaultHashCost drops to bcrypt's default under the race detector, where
// cost 12 makes the sqlite backed suites too slow.
const defaultHashCost = bcrypt.DefaultCost
