// Package ledgertest provides an in-memory ledger for tests.
package ledgertest

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger"
)

// SubmitFunc decides the result of a submission. Returning nil accepts it.
type SubmitFunc func(tx ledger.Transaction) error

// Ledger is an in-memory ledger.Client. Accounts are listed in insertion order.
type Ledger struct {
	mu        sync.Mutex
	accounts  map[solana.PublicKey]ledger.Account
	order     []solana.PublicKey
	getErrs   map[solana.PublicKey]error
	listErr   error
	vanishing map[solana.PublicKey]bool

	submitFunc SubmitFunc
	submitted  []ledger.Transaction
	gets       []solana.PublicKey
}

func New() *Ledger {
	return &Ledger{
		accounts:  make(map[solana.PublicKey]ledger.Account),
		getErrs:   make(map[solana.PublicKey]error),
		vanishing: make(map[solana.PublicKey]bool),
	}
}

// Put stores an account owned by owner.
func (l *Ledger) Put(address, owner solana.PublicKey, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[address]; !ok {
		l.order = append(l.order, address)
	}
	l.accounts[address] = ledger.Account{Address: address, Owner: owner, Data: append([]byte(nil), data...)}
}

// Delete removes an account.
func (l *Ledger) Delete(address solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, address)
}

// Vanish keeps the account visible to ListAccounts but makes GetAccount report
// it as not found, as if it was closed between listing and fetching.
func (l *Ledger) Vanish(address solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vanishing[address] = true
}

// FailGet makes GetAccount for address fail with err.
func (l *Ledger) FailGet(address solana.PublicKey, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.getErrs[address] = err
}

// FailList makes every ListAccounts call fail with err.
func (l *Ledger) FailList(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listErr = err
}

// OnSubmit installs the function deciding submission results.
func (l *Ledger) OnSubmit(fn SubmitFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitFunc = fn
}

// Submitted returns the transactions submitted so far, failed ones included.
func (l *Ledger) Submitted() []ledger.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.Transaction(nil), l.submitted...)
}

// Gets returns the addresses passed to GetAccount so far.
func (l *Ledger) Gets() []solana.PublicKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]solana.PublicKey(nil), l.gets...)
}

func (l *Ledger) GetAccount(ctx context.Context, address solana.PublicKey) (*ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gets = append(l.gets, address)

	op := "get account " + address.String()
	if err, ok := l.getErrs[address]; ok {
		return nil, err
	}
	acc, ok := l.accounts[address]
	if !ok || l.vanishing[address] {
		return nil, ledger.NewError(ledger.KindNotFound, op, ledger.ErrAccountNotFound)
	}
	acc.Data = append([]byte(nil), acc.Data...)
	return &acc, nil
}

func (l *Ledger) ListAccounts(ctx context.Context, program solana.PublicKey, filters ...ledger.Filter) ([]solana.PublicKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	var keys []solana.PublicKey
	for _, address := range l.order {
		acc, ok := l.accounts[address]
		if !ok || !acc.Owner.Equals(program) {
			continue
		}
		if ledger.MatchesAll(acc.Data, filters) {
			keys = append(keys, address)
		}
	}
	return keys, nil
}

func (l *Ledger) Submit(ctx context.Context, tx ledger.Transaction) (solana.Signature, error) {
	if err := ctx.Err(); err != nil {
		return solana.Signature{}, err
	}
	l.mu.Lock()
	l.submitted = append(l.submitted, tx)
	n := len(l.submitted)
	fn := l.submitFunc
	l.mu.Unlock()

	if fn != nil {
		if err := fn(tx); err != nil {
			return solana.Signature{}, err
		}
	}
	var sig solana.Signature
	binary.LittleEndian.PutUint64(sig[:8], uint64(n))
	return sig, nil
}

// Key returns a deterministic public key for name.
func Key(name string) solana.PublicKey {
	return solana.PublicKeyFromBytes(hash(name))
}

// PrivateKey returns a deterministic private key for name.
func PrivateKey(name string) solana.PrivateKey {
	return solana.PrivateKey(ed25519.NewKeyFromSeed(hash("seed:" + name)))
}

func hash(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}
