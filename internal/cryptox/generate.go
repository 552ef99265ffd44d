package cryptox

import (
	"crypto/rand"
	"math/big"
)

const (
	alphanumeric = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	punctuation  = "!@#$%^&*()_-+=[{]};:>|./?"
)

// GeneratePassword returns a random password of the given length holding at
// least minNonAlphanumeric punctuation characters. If minNonAlphanumeric
// exceeds length, length is raised to fit.
func GeneratePassword(length, minNonAlphanumeric int) (string, error) {
	if minNonAlphanumeric < 0 {
		minNonAlphanumeric = 0
	}
	if length < minNonAlphanumeric {
		length = minNonAlphanumeric
	}

	out := make([]byte, length)
	for i := range out {
		set := alphanumeric
		if i < minNonAlphanumeric {
			set = punctuation
		}
		c, err := pick(set)
		if err != nil {
			return "", err
		}
		out[i] = c
	}

	// Fisher-Yates so the punctuation is not always in front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	n, err := randInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[n], nil
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
