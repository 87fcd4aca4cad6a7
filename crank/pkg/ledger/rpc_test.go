package ledger_test

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger/ledgertest"
	cranktesting "github.com/malbeclabs/govrewards-crank/utils/pkg/testing"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// rpcHandler answers JSON-RPC calls with the result or error returned by the
// handler registered for the method.
type rpcHandler func(params []json.RawMessage) (result any, rpcErr map[string]any)

type rpcServer struct {
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    map[string][]rpcRequest
}

func newRPCServer(t *testing.T, handlers map[string]rpcHandler) (*rpcServer, string) {
	t.Helper()
	s := &rpcServer{handlers: handlers, calls: make(map[string][]rpcRequest)}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func (s *rpcServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.calls[req.Method] = append(s.calls[req.Method], req)
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = map[string]any{"code": -32601, "message": "Method not found"}
	} else if result, rpcErr := h(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *rpcServer) callsTo(method string) []rpcRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rpcRequest(nil), s.calls[method]...)
}

func accountValue(owner solana.PublicKey, data []byte) map[string]any {
	return map[string]any{
		"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
		"executable": false,
		"lamports":   1_000_000,
		"owner":      owner.String(),
		"rentEpoch":  0,
		"space":      len(data),
	}
}

func newClient(t *testing.T, url string, keys ...solana.PrivateKey) *ledger.RPCClient {
	t.Helper()
	c, err := ledger.NewRPCClient(ledger.RPCClientConfig{
		Logger: cranktesting.NewLogger(),
		RPC:    solanarpc.New(url),
		Keys:   keys,
	})
	require.NoError(t, err)
	return c
}

func TestCrank_Ledger_RPCClient_GetAccount(t *testing.T) {
	t.Parallel()

	owner := ledgertest.Key("owner")
	present := ledgertest.Key("present")
	_, url := newRPCServer(t, map[string]rpcHandler{
		"getAccountInfo": func(params []json.RawMessage) (any, map[string]any) {
			var addr string
			_ = json.Unmarshal(params[0], &addr)
			if addr != present.String() {
				return map[string]any{"context": map[string]any{"slot": 1}, "value": nil}, nil
			}
			return map[string]any{"context": map[string]any{"slot": 1}, "value": accountValue(owner, []byte{1, 2, 3})}, nil
		},
	})
	c := newClient(t, url)

	acc, err := c.GetAccount(t.Context(), present)
	require.NoError(t, err)
	require.Equal(t, present, acc.Address)
	require.Equal(t, owner, acc.Owner)
	require.Equal(t, []byte{1, 2, 3}, acc.Data)

	_, err = c.GetAccount(t.Context(), ledgertest.Key("absent"))
	require.Equal(t, ledger.KindNotFound, ledger.KindOf(err))
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestCrank_Ledger_RPCClient_ListAccounts(t *testing.T) {
	t.Parallel()

	program := ledgertest.Key("program")
	key := ledgertest.Key("filter-key")
	a, b := ledgertest.Key("a"), ledgertest.Key("b")
	srv, url := newRPCServer(t, map[string]rpcHandler{
		"getProgramAccounts": func([]json.RawMessage) (any, map[string]any) {
			return []any{
				map[string]any{"pubkey": a.String(), "account": accountValue(program, nil)},
				map[string]any{"pubkey": b.String(), "account": accountValue(program, nil)},
			}, nil
		},
	})
	c := newClient(t, url)

	keys, err := c.ListAccounts(t.Context(), program, ledger.KeyFilter(16, key))
	require.NoError(t, err)
	require.Equal(t, []solana.PublicKey{a, b}, keys)

	calls := srv.callsTo("getProgramAccounts")
	require.Len(t, calls, 1)
	var opts struct {
		Commitment string `json:"commitment"`
		DataSlice  struct {
			Offset uint64 `json:"offset"`
			Length uint64 `json:"length"`
		} `json:"dataSlice"`
		Filters []struct {
			Memcmp struct {
				Offset uint64 `json:"offset"`
				Bytes  string `json:"bytes"`
			} `json:"memcmp"`
		} `json:"filters"`
	}
	require.NoError(t, json.Unmarshal(calls[0].Params[1], &opts))
	require.Equal(t, "confirmed", opts.Commitment)
	require.Zero(t, opts.DataSlice.Length)
	require.Len(t, opts.Filters, 1)
	require.Equal(t, uint64(16), opts.Filters[0].Memcmp.Offset)
	require.Equal(t, key.String(), opts.Filters[0].Memcmp.Bytes)
}

func TestCrank_Ledger_RPCClient_Submit(t *testing.T) {
	t.Parallel()

	payer := ledgertest.PrivateKey("payer")
	program := ledgertest.Key("program")
	blockhash := solana.HashFromBytes(func() []byte { h := sha256.Sum256([]byte("blockhash")); return h[:] }())
	ix := solana.NewInstruction(program, solana.AccountMetaSlice{solana.Meta(payer.PublicKey()).WRITE().SIGNER()}, []byte{7})
	tx := ledger.Transaction{Instructions: []solana.Instruction{ix}, FeePayer: payer.PublicKey()}

	latestBlockhash := func([]json.RawMessage) (any, map[string]any) {
		return map[string]any{
			"context": map[string]any{"slot": 1},
			"value":   map[string]any{"blockhash": blockhash.String(), "lastValidBlockHeight": 100},
		}, nil
	}

	t.Run("signs and sends", func(t *testing.T) {
		t.Parallel()
		var sent solana.Signature
		srv, url := newRPCServer(t, map[string]rpcHandler{
			"getLatestBlockhash": latestBlockhash,
			"sendTransaction": func(params []json.RawMessage) (any, map[string]any) {
				var encoded string
				_ = json.Unmarshal(params[0], &encoded)
				raw, _ := base64.StdEncoding.DecodeString(encoded)
				stx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
				if err != nil || len(stx.Signatures) == 0 {
					return nil, map[string]any{"code": -32602, "message": "bad transaction"}
				}
				sent = stx.Signatures[0]
				return sent.String(), nil
			},
		})
		c := newClient(t, url, payer)

		sig, err := c.Submit(t.Context(), tx)
		require.NoError(t, err)
		require.Equal(t, sent, sig)

		calls := srv.callsTo("sendTransaction")
		require.Len(t, calls, 1)
		var encoded string
		require.NoError(t, json.Unmarshal(calls[0].Params[0], &encoded))
		raw, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)
		stx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
		require.NoError(t, err)
		require.Equal(t, blockhash, stx.Message.RecentBlockhash)
		require.Equal(t, payer.PublicKey(), stx.Message.AccountKeys[0])
		require.NoError(t, stx.VerifySignatures())
	})

	t.Run("program rejection", func(t *testing.T) {
		t.Parallel()
		_, url := newRPCServer(t, map[string]rpcHandler{
			"getLatestBlockhash": latestBlockhash,
			"sendTransaction": func([]json.RawMessage) (any, map[string]any) {
				return nil, map[string]any{
					"code":    -32002,
					"message": "Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1773",
					"data": map[string]any{
						"err":  map[string]any{"InstructionError": []any{0, map[string]any{"Custom": 6003}}},
						"logs": []string{"Program log: AnchorError occurred. Error Code: AlreadyClaimed. Error Number: 6003."},
					},
				}
			},
		})
		c := newClient(t, url, payer)

		_, err := c.Submit(t.Context(), tx)
		require.Equal(t, ledger.KindProgram, ledger.KindOf(err))
		code, ok := ledger.CustomCode(err)
		require.True(t, ok)
		require.Equal(t, uint32(6003), code)
		require.Len(t, ledger.Logs(err), 1)
	})

	t.Run("unreachable node is transport", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c := newClient(t, url, payer)

		_, err := c.Submit(t.Context(), tx)
		require.Equal(t, ledger.KindTransport, ledger.KindOf(err))
	})

	t.Run("missing signer key", func(t *testing.T) {
		t.Parallel()
		srv, url := newRPCServer(t, map[string]rpcHandler{"getLatestBlockhash": latestBlockhash})
		c := newClient(t, url)

		_, err := c.Submit(t.Context(), tx)
		require.ErrorContains(t, err, "no key for signer")
		require.Empty(t, srv.callsTo("getLatestBlockhash"))
	})
}

func TestCrank_Ledger_WSConfirmer_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + srv.URL[len("http"):]
	srv.Close()

	w := ledger.NewWSConfirmer(cranktesting.NewLogger(), url, "")
	defer w.Close()
	err := w.Confirm(t.Context(), solana.Signature{})
	require.Equal(t, ledger.KindSubscription, ledger.KindOf(err))
}

func TestCrank_Ledger_DryRun(t *testing.T) {
	t.Parallel()

	l := ledgertest.New()
	addr := ledgertest.Key("x")
	l.Put(addr, ledgertest.Key("program"), []byte{1})
	d := ledger.NewDryRun(cranktesting.NewLogger(), l)

	acc, err := d.GetAccount(t.Context(), addr)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, acc.Data)

	ix := solana.NewInstruction(ledgertest.Key("program"), solana.AccountMetaSlice{}, nil)
	_, err = d.Submit(t.Context(), ledger.Transaction{Instructions: []solana.Instruction{ix}, FeePayer: ledgertest.Key("payer")})
	require.NoError(t, err)
	require.Empty(t, l.Submitted())
}
