package venue

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Credentials holds the L2 API key triplet.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// Auth handles the venue's two authentication layers: L1 EIP-712 (used once
// to derive L2 API credentials) and L2 HMAC-SHA256 (used for every trading
// request).
type Auth struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	creds      Credentials
}

// NewAuth builds an Auth from a hex-encoded EOA private key (0x-prefix
// optional) and the target chain ID.
func NewAuth(privateKeyHex string, chainID int64, creds Credentials) (*Auth, error) {
	keyHex := privateKeyHex
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	pk, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("venue: parse private key: %w", err)
	}
	return &Auth{
		privateKey: pk,
		address:    crypto.PubkeyToAddress(pk.PublicKey),
		chainID:    big.NewInt(chainID),
		creds:      creds,
	}, nil
}

// Address returns the signer's EOA address.
func (a *Auth) Address() common.Address { return a.address }

// HasL2Credentials reports whether L2 API credentials are configured.
func (a *Auth) HasL2Credentials() bool {
	return a.creds.APIKey != "" && a.creds.Secret != "" && a.creds.Passphrase != ""
}

// SetCredentials installs L2 credentials, typically after DeriveAPIKey.
func (a *Auth) SetCredentials(c Credentials) { a.creds = c }

// L1Headers produces the header set for L1-authenticated endpoints
// (API key derivation only).
func (a *Auth) L1Headers(nonce int) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := a.signClobAuth(timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("venue: sign clob auth: %w", err)
	}
	return map[string]string{
		"POLY_ADDRESS":   a.address.Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": timestamp,
		"POLY_NONCE":     strconv.Itoa(nonce),
	}, nil
}

// L2Headers produces the header set for L2 HMAC-authenticated trading
// endpoints.
func (a *Auth) L2Headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := a.buildHMAC(timestamp, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("venue: build hmac: %w", err)
	}
	return map[string]string{
		"POLY_ADDRESS":    a.address.Hex(),
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  timestamp,
		"POLY_API_KEY":    a.creds.APIKey,
		"POLY_PASSPHRASE": a.creds.Passphrase,
	}, nil
}

// WSAuthPayload returns the credentials for the authenticated User Channel.
func (a *Auth) WSAuthPayload() map[string]string {
	return map[string]string{
		"apiKey":     a.creds.APIKey,
		"secret":     a.creds.Secret,
		"passphrase": a.creds.Passphrase,
	}
}

func (a *Auth) signClobAuth(timestamp string, nonce int) (string, error) {
	domain := apitypes.TypedDataDomain{
		Name:    "ClobAuthDomain",
		Version: "1",
		ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(a.chainID)),
	}
	typesDef := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
		},
		"ClobAuth": {
			{Name: "address", Type: "address"},
			{Name: "timestamp", Type: "string"},
			{Name: "nonce", Type: "uint256"},
			{Name: "message", Type: "string"},
		},
	}
	message := apitypes.TypedDataMessage{
		"address":   a.address.Hex(),
		"timestamp": timestamp,
		"nonce":     fmt.Sprintf("%d", nonce),
		"message":   "This message attests that I control the given wallet",
	}

	typedData := apitypes.TypedData{Types: typesDef, PrimaryType: "ClobAuth", Domain: domain, Message: message}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("typed data hash: %w", err)
	}
	sig, err := crypto.Sign(hash, a.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign typed data: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// buildHMAC computes message = timestamp + method + path [+ body] signed
// with the L2 API secret, which may arrive base64-encoded in any of four
// common variants.
func (a *Auth) buildHMAC(timestamp, method, path, body string) (string, error) {
	decoders := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}
	var secretBytes []byte
	var err error
	for _, dec := range decoders {
		secretBytes, err = dec.DecodeString(a.creds.Secret)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("decode l2 secret: %w", err)
	}

	message := timestamp + method + path + body
	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
