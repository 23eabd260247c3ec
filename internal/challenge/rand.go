package challenge

import "math/rand/v2"

// Challenge parameter randomness (keys, slice bounds, template choice) uses
// the non-cryptographic math/rand/v2 global source, which is seeded from the
// CSPRNG and safe for concurrent workers. Cryptographic material (challenge
// data, HMAC keys) always comes from internal/crypto.RandomBytes.

func pickOne[T any](items []T) T {
	return items[rand.IntN(len(items))]
}

// randBetween returns a uniform integer in [low, high].
func randBetween(low, high int) int {
	return low + rand.IntN(high-low+1)
}

func shuffled[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
