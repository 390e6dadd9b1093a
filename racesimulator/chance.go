package main

import "math/rand/v2"

// Chance reports true with the given probability out of 100.
func Chance(rnd *rand.Rand, probability uint) bool {
	return rnd.UintN(probabilityRange) < probability
}

// Pick returns a uniformly random element of items.
func Pick[T any](rnd *rand.Rand, items []T) T {
	return items[rnd.IntN(len(items))]
}
