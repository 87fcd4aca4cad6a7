package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// SolanaRPC is the subset of the solana-go RPC client used by RPCClient.
type SolanaRPC interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *solanarpc.GetProgramAccountsOpts) (solanarpc.GetProgramAccountsResult, error)
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
}

// Confirmer waits until a submitted transaction reaches the configured commitment.
type Confirmer interface {
	Confirm(ctx context.Context, sig solana.Signature) error
}

type RPCClientConfig struct {
	Logger     *slog.Logger
	RPC        SolanaRPC
	Commitment solanarpc.CommitmentType
	Keys       []solana.PrivateKey

	// Confirmer is optional; without it Submit returns once the node accepted
	// the transaction after preflight.
	Confirmer      Confirmer
	ConfirmTimeout time.Duration
}

func (cfg *RPCClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.CommitmentConfirmed
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	return nil
}

// RPCClient implements Client on top of a Solana JSON-RPC node.
type RPCClient struct {
	log  *slog.Logger
	cfg  RPCClientConfig
	keys map[solana.PublicKey]solana.PrivateKey
}

func NewRPCClient(cfg RPCClientConfig) (*RPCClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	keys := make(map[solana.PublicKey]solana.PrivateKey, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys[k.PublicKey()] = k
	}
	return &RPCClient{
		log:  cfg.Logger,
		cfg:  cfg,
		keys: keys,
	}, nil
}

func (c *RPCClient) GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error) {
	op := "get account " + address.String()
	res, err := c.cfg.RPC.GetAccountInfoWithOpts(ctx, address, &solanarpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.cfg.Commitment,
	})
	if err != nil {
		return nil, categorize(op, err)
	}
	if res == nil || res.Value == nil {
		return nil, NewError(KindNotFound, op, ErrAccountNotFound)
	}
	if res.Value.Data == nil {
		return nil, NewError(KindMalformed, op, errors.New("account data missing from response"))
	}
	return &Account{
		Address: address,
		Owner:   res.Value.Owner,
		Data:    res.Value.Data.GetBinary(),
	}, nil
}

func (c *RPCClient) ListAccounts(ctx context.Context, program solana.PublicKey, filters ...Filter) ([]solana.PublicKey, error) {
	op := "list accounts of " + program.String()

	rpcFilters := make([]solanarpc.RPCFilter, 0, len(filters))
	for _, f := range filters {
		rpcFilters = append(rpcFilters, solanarpc.RPCFilter{
			Memcmp: &solanarpc.RPCFilterMemcmp{
				Offset: f.Offset,
				Bytes:  solana.Base58(f.Bytes),
			},
		})
	}

	// Only keys are listed; accounts are fetched one by one as the scan is consumed.
	var zero uint64
	res, err := c.cfg.RPC.GetProgramAccountsWithOpts(ctx, program, &solanarpc.GetProgramAccountsOpts{
		Commitment: c.cfg.Commitment,
		Encoding:   solana.EncodingBase64,
		DataSlice:  &solanarpc.DataSlice{Offset: &zero, Length: &zero},
		Filters:    rpcFilters,
	})
	if err != nil {
		return nil, categorize(op, err)
	}

	keys := make([]solana.PublicKey, 0, len(res))
	for _, acc := range res {
		if acc == nil || acc.Pubkey.IsZero() {
			continue
		}
		keys = append(keys, acc.Pubkey)
	}
	c.log.Debug("ledger: listed accounts", "program", program, "filters", len(filters), "count", len(keys))
	return keys, nil
}

func (c *RPCClient) Submit(ctx context.Context, tx Transaction) (solana.Signature, error) {
	if len(tx.Instructions) == 0 {
		return solana.Signature{}, errors.New("ledger: transaction has no instructions")
	}
	if tx.FeePayer.IsZero() {
		return solana.Signature{}, errors.New("ledger: transaction has no fee payer")
	}
	for _, pk := range tx.RequiredSigners() {
		if _, ok := c.keys[pk]; !ok {
			return solana.Signature{}, fmt.Errorf("ledger: no key for signer %s", pk)
		}
	}

	blockhash, err := c.cfg.RPC.GetLatestBlockhash(ctx, c.cfg.Commitment)
	if err != nil {
		return solana.Signature{}, categorize("get latest blockhash", err)
	}
	if blockhash == nil || blockhash.Value == nil {
		return solana.Signature{}, NewError(KindMalformed, "get latest blockhash", errors.New("empty blockhash response"))
	}

	stx, err := solana.NewTransaction(tx.Instructions, blockhash.Value.Blockhash, solana.TransactionPayer(tx.FeePayer))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("ledger: failed to build transaction: %w", err)
	}
	if _, err := stx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if k, ok := c.keys[pk]; ok {
			return &k
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("ledger: failed to sign transaction: %w", err)
	}

	sig, err := c.cfg.RPC.SendTransactionWithOpts(ctx, stx, solanarpc.TransactionOpts{
		PreflightCommitment: c.cfg.Commitment,
	})
	if err != nil {
		return solana.Signature{}, categorize("send transaction", err)
	}
	c.log.Debug("ledger: transaction sent", "signature", sig)

	if c.cfg.Confirmer == nil {
		return sig, nil
	}
	confirmCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()
	if err := c.cfg.Confirmer.Confirm(confirmCtx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}
