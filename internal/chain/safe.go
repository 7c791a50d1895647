package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// call is one inner transaction bundled into a Safe batch: approve + split
// (or approve + merge) are sent as a single atomic execTransaction so a
// revert of either leg leaves neither applied (§4.8).
type call struct {
	to   common.Address
	data []byte
}

// encodeMultiSend packs calls using the Gnosis MultiSend layout
// (operation uint8 | to address | value uint256 | dataLength uint256 | data),
// concatenated with no padding between entries.
func encodeMultiSend(calls []call) []byte {
	var out []byte
	for _, c := range calls {
		out = append(out, 0x00) // Call, never Delegatecall
		out = append(out, common.LeftPadBytes(c.to.Bytes(), 20)...)
		out = append(out, common.LeftPadBytes(big.NewInt(0).Bytes(), 32)...)
		length := big.NewInt(int64(len(c.data)))
		out = append(out, common.LeftPadBytes(length.Bytes(), 32)...)
		out = append(out, c.data...)
	}
	return out
}

// safeTxHash computes the EIP-712 hash a Safe owner signs for execTransaction,
// per Safe's SafeTx typehash (operation=1/DelegateCall into the MultiSend
// library when batching, 0/Call for a single inner transaction).
func safeTxHash(chainID *big.Int, safeAddress, to common.Address, data []byte, operation uint8, nonce *big.Int) ([32]byte, error) {
	domain := apitypes.TypedDataDomain{
		ChainId:           (*ethmath.HexOrDecimal256)(new(big.Int).Set(chainID)),
		VerifyingContract: safeAddress.Hex(),
	}
	typesDef := apitypes.Types{
		"EIP712Domain": {
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"SafeTx": {
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "data", Type: "bytes"},
			{Name: "operation", Type: "uint8"},
			{Name: "safeTxGas", Type: "uint256"},
			{Name: "baseGas", Type: "uint256"},
			{Name: "gasPrice", Type: "uint256"},
			{Name: "gasToken", Type: "address"},
			{Name: "refundReceiver", Type: "address"},
			{Name: "nonce", Type: "uint256"},
		},
	}
	message := apitypes.TypedDataMessage{
		"to":             to.Hex(),
		"value":          "0",
		"data":           data,
		"operation":      fmt.Sprintf("%d", operation),
		"safeTxGas":      "0",
		"baseGas":        "0",
		"gasPrice":       "0",
		"gasToken":       common.Address{}.Hex(),
		"refundReceiver": common.Address{}.Hex(),
		"nonce":          nonce.String(),
	}
	typedData := apitypes.TypedData{Types: typesDef, PrimaryType: "SafeTx", Domain: domain, Message: message}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return [32]byte{}, fmt.Errorf("safe tx hash: %w", err)
	}
	var out [32]byte
	copy(out[:], hash)
	return out, nil
}

// signSafeTx signs a precomputed Safe transaction hash for a threshold-1
// single-owner Safe. The contract accepts 65-byte r||s||v signatures for an
// owner whose address recovers from the hash directly (the plain ecdsa
// path, v in {27,28} — Safe's eth_sign v-offset convention is not used
// here since the signer holds the Safe owner's raw key).
func signSafeTx(privateKey *ecdsa.PrivateKey, hash [32]byte) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign safe tx: %w", err)
	}
	return signHashToSignature(sig), nil
}

// execTransactionData ABI-encodes the call to Safe.execTransaction with a
// single owner's signature.
func execTransactionData(to common.Address, data []byte, operation uint8, signature []byte) ([]byte, error) {
	safeABI, err := safeContractABI()
	if err != nil {
		return nil, err
	}
	packed, err := safeABI.Pack("execTransaction",
		to,
		big.NewInt(0),
		data,
		operation,
		big.NewInt(0), // safeTxGas
		big.NewInt(0), // baseGas
		big.NewInt(0), // gasPrice
		common.Address{}, // gasToken
		common.Address{}, // refundReceiver
		signature,
	)
	if err != nil {
		return nil, fmt.Errorf("pack execTransaction: %w", err)
	}
	return packed, nil
}

// signHashToSignature normalizes a go-ethereum crypto.Sign output (v in
// {0,1}) to the {27,28} convention Safe's ecrecover path expects.
func signHashToSignature(sig []byte) []byte {
	out := make([]byte, len(sig))
	copy(out, sig)
	if out[64] < 27 {
		out[64] += 27
	}
	return out
}
