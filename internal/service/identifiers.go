package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/esummit/pass-registry/internal/utils"
)

const identifierAttempts = 5

// newIdentifiers returns an invoice number and a transaction number that no
// stored transaction uses yet.
func newIdentifiers(ctx context.Context, txs TransactionStore, now time.Time) (invoice, number string, err error) {
	for i := 0; i < identifierAttempts; i++ {
		a, err := utils.RandomHex(4)
		if err != nil {
			return "", "", err
		}
		b, err := utils.RandomHex(3)
		if err != nil {
			return "", "", err
		}
		invoice = fmt.Sprintf("INV-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(a))
		number = fmt.Sprintf("TXN-%d-%s", now.UnixMilli(), strings.ToUpper(b))
		taken, err := txs.IdentifiersTaken(ctx, invoice, number)
		if err != nil {
			return "", "", err
		}
		if !taken {
			return invoice, number, nil
		}
	}
	return "", "", fmt.Errorf("could not allocate unique invoice number after %d attempts", identifierAttempts)
}

// newPassCode returns an unused ESUMMIT-XXXXXXXX pass identifier.
func newPassCode(ctx context.Context, passes PassStore) (string, error) {
	for i := 0; i < identifierAttempts; i++ {
		h, err := utils.RandomHex(4)
		if err != nil {
			return "", err
		}
		code := "ESUMMIT-" + strings.ToUpper(h)
		taken, err := passes.PassCodeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate unique pass code after %d attempts", identifierAttempts)
}
