package govrewards

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ResolutionPreference is how a claimant wants their payout routed.
type ResolutionPreference uint8

const (
	// ResolutionEscrow pays into a program-derived escrow for (realm, claimant, mint).
	// It is the default when no preferences account exists.
	ResolutionEscrow ResolutionPreference = iota
	// ResolutionWallet pays into the claimant's associated token account.
	ResolutionWallet
)

func (r ResolutionPreference) String() string {
	switch r {
	case ResolutionEscrow:
		return "escrow"
	case ResolutionWallet:
		return "wallet"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// Program derives addresses and builds instructions for one deployment of the
// governance rewards program.
type Program struct {
	ID solana.PublicKey
}

func (p Program) find(seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, p.ID)
	return addr, err
}

// ClaimDataAddress is the registration record of claimant in distribution.
func (p Program) ClaimDataAddress(distribution, claimant solana.PublicKey) (solana.PublicKey, error) {
	return p.find([]byte("claim-data"), distribution.Bytes(), claimant.Bytes())
}

// PreferencesAddress is the preferences record of user in realm.
func (p Program) PreferencesAddress(user, realm solana.PublicKey) (solana.PublicKey, error) {
	return p.find([]byte("preferences"), realm.Bytes(), user.Bytes())
}

// EscrowAddress is the default payout destination of user for mint in realm.
func (p Program) EscrowAddress(user, mint, realm solana.PublicKey) (solana.PublicKey, error) {
	return p.find([]byte("escrow"), realm.Bytes(), user.Bytes(), mint.Bytes())
}

// PayoutAddress resolves where user's payout in mint goes under preference.
func (p Program) PayoutAddress(pref ResolutionPreference, user, mint, realm solana.PublicKey) (solana.PublicKey, error) {
	switch pref {
	case ResolutionWallet:
		addr, _, err := solana.FindAssociatedTokenAddress(user, mint)
		return addr, err
	case ResolutionEscrow:
		return p.EscrowAddress(user, mint, realm)
	default:
		return solana.PublicKey{}, fmt.Errorf("unknown resolution preference %d", uint8(pref))
	}
}
