package testing

import (
	"math/rand"
	"strings"
)

// RandString generates random string with 10 symbols length from lower- and uppercase alphabet
func RandString() string {
	var out strings.Builder
	charSet := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	length := 10
	for i := 0; i < length; i++ {
		random := rand.Intn(len(charSet))
		randomChar := charSet[random]
		out.WriteString(string(randomChar))
	}
	return out.String()
}

// RandGroupID generates a random negative chat id in the Telegram supergroup
// range, unique enough for parallel tests sharing one database
func RandGroupID() int64 {
	return -1001000000000 - rand.Int63n(1_000_000_000)
}

// RandUserID generates a random positive Telegram user id
func RandUserID() int64 {
	return 1 + rand.Int63n(2_000_000_000)
}
