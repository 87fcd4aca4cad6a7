package crank_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/crank"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/govrewards"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger/ledgertest"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/vsr"
	cranktesting "github.com/malbeclabs/govrewards-crank/utils/pkg/testing"
)

var (
	errTransport = ledger.NewError(ledger.KindTransport, "send transaction", errors.New("connection reset by peer"))
	errRejected  = ledger.NewProgramError("send transaction", uint32(govrewards.ErrCodeRegistrationOpen),
		"Program log: AnchorError occurred. Error Code: RegistrationOpen. Error Number: 6001.")
)

// fixture is a distribution with two populated option slots living in an
// in-memory ledger.
type fixture struct {
	t       *testing.T
	ledger  *ledgertest.Ledger
	program govrewards.Program

	address      solana.PublicKey
	distribution govrewards.Distribution
	realm        solana.PublicKey
	registrar    solana.PublicKey
	payer        solana.PublicKey
	admin        solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registrar := ledgertest.Key("registrar")
	f := &fixture{
		t:         t,
		ledger:    ledgertest.New(),
		program:   govrewards.Program{ID: ledgertest.Key("rewards-program")},
		address:   ledgertest.Key("distribution"),
		realm:     ledgertest.Key("realm"),
		registrar: registrar,
		payer:     ledgertest.PrivateKey("payer").PublicKey(),
		admin:     ledgertest.PrivateKey("admin").PublicKey(),
	}
	f.distribution = govrewards.Distribution{
		Realm:                 f.realm,
		Registrar:             &registrar,
		RegistrationPeriodEnd: 1_700_000_000,
		TotalVoteWeight:       1_000,
	}
	f.distribution.Options[0] = &govrewards.DistributionOption{Mint: ledgertest.Key("mint-0"), Wallet: ledgertest.Key("wallet-0")}
	f.distribution.Options[2] = &govrewards.DistributionOption{Mint: ledgertest.Key("mint-2"), Wallet: ledgertest.Key("wallet-2")}
	f.putDistribution()
	return f
}

func (f *fixture) putDistribution() {
	f.ledger.Put(f.address, f.program.ID, govrewards.EncodeDistribution(f.distribution))
}

func (f *fixture) claimDataAddress(claimant solana.PublicKey) solana.PublicKey {
	addr, err := f.program.ClaimDataAddress(f.address, claimant)
	require.NoError(f.t, err)
	return addr
}

// addClaim registers name against the distribution and returns the claimant.
func (f *fixture) addClaim(name string, option uint8, claimed bool) solana.PublicKey {
	claimant := ledgertest.Key(name)
	f.ledger.Put(f.claimDataAddress(claimant), f.program.ID, govrewards.EncodeClaimData(govrewards.ClaimData{
		Weight:       100,
		Distribution: f.address,
		Claimant:     claimant,
		ChosenOption: option,
		HasClaimed:   claimed,
	}))
	return claimant
}

func (f *fixture) setPreference(claimant solana.PublicKey, pref govrewards.ResolutionPreference) {
	addr, err := f.program.PreferencesAddress(claimant, f.realm)
	require.NoError(f.t, err)
	f.ledger.Put(addr, f.program.ID, govrewards.EncodeUserPreferences(govrewards.UserPreferences{ResolutionPreference: pref}))
}

// addVoter creates a voter of registrar and returns its authority.
func (f *fixture) addVoter(name string, registrar solana.PublicKey) solana.PublicKey {
	authority := ledgertest.Key(name)
	addr, err := vsr.Program{ID: vsr.ProgramID}.VoterAddress(registrar, authority)
	require.NoError(f.t, err)
	f.ledger.Put(addr, vsr.ProgramID, vsr.EncodeVoter(vsr.Voter{VoterAuthority: authority, Registrar: registrar}, 64))
	return authority
}

func (f *fixture) newCrank(mutate ...func(*crank.Config)) *crank.Crank {
	cfg := crank.Config{
		Logger:       cranktesting.NewLogger(),
		Ledger:       f.ledger,
		Distribution: f.address,
		Payer:        f.payer,
		Admin:        f.admin,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := crank.New(cfg)
	require.NoError(f.t, err)
	return c
}

// failFor makes submissions concerning entity fail with err.
func (f *fixture) failFor(entity func(ledger.Transaction) solana.PublicKey, errs map[solana.PublicKey]error) {
	f.ledger.OnSubmit(func(tx ledger.Transaction) error {
		return errs[entity(tx)]
	})
}

func accountAt(tx ledger.Transaction, ix, i int) solana.PublicKey {
	return tx.Instructions[ix].Accounts()[i].PublicKey
}

// Entities of submitted transactions, by workflow.
func registeredUser(tx ledger.Transaction) solana.PublicKey { return accountAt(tx, 1, 0) }
func claimant(tx ledger.Transaction) solana.PublicKey       { return accountAt(tx, 0, 0) }
func payout(tx ledger.Transaction) solana.PublicKey         { return accountAt(tx, 0, 5) }
func reclaimedWallet(tx ledger.Transaction) solana.PublicKey {
	return accountAt(tx, 0, 2)
}

func entities(txs []ledger.Transaction, entity func(ledger.Transaction) solana.PublicKey) []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(txs))
	for _, tx := range txs {
		out = append(out, entity(tx))
	}
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	reports []crank.Report
	err     error
}

func (s *recordingSink) RecordReport(_ context.Context, r crank.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return s.err
}

func (s *recordingSink) recorded() []crank.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crank.Report(nil), s.reports...)
}
