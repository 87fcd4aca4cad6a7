package main

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// loadKeypair reads a solana-keygen JSON file, or decodes a base58 secret key
// when value is not a path to an existing file.
func loadKeypair(value string) (solana.PrivateKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("keypair is empty")
	}
	if _, err := os.Stat(value); err == nil {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(value)
		if err != nil {
			return nil, fmt.Errorf("failed to read keypair file %s: %w", value, err)
		}
		return key, nil
	}
	raw, err := base58.Decode(value)
	if err != nil {
		return nil, errors.New("keypair is neither a readable file nor a base58 secret key")
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("base58 secret key has %d bytes, expected %d", len(raw), ed25519.PrivateKeySize)
	}
	return solana.PrivateKey(raw), nil
}

// wsURLFromRPC derives the websocket endpoint served next to an RPC endpoint.
func wsURLFromRPC(rpcURL string) string {
	switch {
	case strings.HasPrefix(rpcURL, "https://"):
		return "wss://" + strings.TrimPrefix(rpcURL, "https://")
	case strings.HasPrefix(rpcURL, "http://"):
		return "ws://" + strings.TrimPrefix(rpcURL, "http://")
	default:
		return rpcURL
	}
}
