//go:build !race

package accounts

// defaultHashCost is the bcrypt cost used when a hasher is built without one.
const defaultHashCost = 12
