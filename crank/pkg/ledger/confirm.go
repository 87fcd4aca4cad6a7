package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

// WSConfirmer confirms transactions through a websocket signature subscription.
// The connection is opened lazily and reopened after a failure.
type WSConfirmer struct {
	log        *slog.Logger
	url        string
	commitment solanarpc.CommitmentType

	mu     sync.Mutex
	client *ws.Client
}

func NewWSConfirmer(log *slog.Logger, url string, commitment solanarpc.CommitmentType) *WSConfirmer {
	if commitment == "" {
		commitment = solanarpc.CommitmentConfirmed
	}
	return &WSConfirmer{
		log:        log,
		url:        url,
		commitment: commitment,
	}
}

func (w *WSConfirmer) conn(ctx context.Context) (*ws.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		return w.client, nil
	}
	client, err := ws.Connect(ctx, w.url)
	if err != nil {
		return nil, err
	}
	w.client = client
	return client, nil
}

func (w *WSConfirmer) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		w.client.Close()
		w.client = nil
	}
}

func (w *WSConfirmer) Confirm(ctx context.Context, sig solana.Signature) error {
	op := "confirm " + sig.String()

	client, err := w.conn(ctx)
	if err != nil {
		return NewError(KindSubscription, op, err)
	}

	sub, err := client.SignatureSubscribe(sig, w.commitment)
	if err != nil {
		w.reset()
		return NewError(KindSubscription, op, err)
	}
	defer sub.Unsubscribe()

	res, err := sub.Recv(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return err
		}
		w.reset()
		return NewError(KindSubscription, op, err)
	}
	if res == nil {
		return NewError(KindMalformed, op, errors.New("empty signature notification"))
	}
	if res.Value.Err != nil {
		return transactionError(op, res.Value.Err)
	}
	w.log.Debug("ledger: transaction confirmed", "signature", sig, "slot", res.Context.Slot)
	return nil
}

// Close closes the websocket connection if one is open.
func (w *WSConfirmer) Close() {
	w.reset()
}
