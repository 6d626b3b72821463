package bridge

import (
	"math/rand"
	"sync"
	"time"
)

const idChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// lengths of generated identifiers
const (
	callbackIDLength = 5
	tokenLength      = 10
	frameIDLength    = 10
)

var (
	idLock = &sync.Mutex{}
	idRand = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// makeID of n random alphanumeric characters
func makeID(n int) string {
	idLock.Lock()
	defer idLock.Unlock()

	b := make([]byte, n)
	for i := range b {
		b[i] = idChars[idRand.Intn(len(idChars))]
	}
	return string(b)
}
