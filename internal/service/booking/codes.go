package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeLength        = 6
	referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// PNRs skip I, O, 0 and 1, which agents misread over the phone.
	pnrAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type codeGenerator func() (reference, pnr string, err error)

func randomCodes() (string, string, error) {
	ref, err := randomCode(referenceAlphabet)
	if err != nil {
		return "", "", err
	}
	pnr, err := randomCode(pnrAlphabet)
	if err != nil {
		return "", "", err
	}
	return ref, pnr, nil
}

func randomCode(alphabet string) (string, error) {
	buf := make([]byte, codeLength)
	limit := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}
