package countdown

import (
	"math/rand"
	"strings"
)

const (
	IDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	IDLength   = 5
)

// idGen draws random ids until one is free.
type idGen struct {
	intn func(n int) int
}

func newIDGen(intn func(int) int) idGen {
	if intn == nil {
		intn = rand.Intn
	}
	return idGen{intn: intn}
}

func (g idGen) next(taken func(id string) bool) string {
	var b [IDLength]byte
	for {
		for i := range b {
			b[i] = IDAlphabet[g.intn(len(IDAlphabet))]
		}
		if id := string(b[:]); !taken(id) {
			return id
		}
	}
}

// NormalizeID makes user input comparable with generated ids.
func NormalizeID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
