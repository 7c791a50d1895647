package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// usdcScale is the collateral token's decimal precision (USDC.e on Polygon).
const usdcScale = 6

// receiptPollInterval/receiptTimeout bound how long Split/Merge wait for a
// submitted batch to mine before treating it as unresolved.
const (
	receiptPollInterval = 2 * time.Second
	receiptTimeout       = 90 * time.Second
)

// Client submits the on-chain leg of a fade cycle: splitPosition to mint a
// complementary pair from collateral, and mergePositions to redeem a
// complementary pair back to collateral (§4.8). Every submission funnels
// through a single nonceDispatcher so concurrent split/merge calls never
// race on the EOA's nonce, mirroring the Trade Engine's single-writer
// ownership of mutable state.
type Client struct {
	rpc        RPCClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int

	safeAddress       common.Address
	ctfAddress        common.Address
	collateralAddress common.Address

	dispatcher *nonceDispatcher
	approvals  *approvalCache
	logger     *slog.Logger

	submitMu sync.Mutex
}

// NewClient wires a chain Client against a live RPCClient and the deployed
// Safe/CTF/collateral addresses for the target chain.
func NewClient(rpc RPCClient, privateKeyHex string, chainID int64, safeAddress, ctfAddress, collateralAddress common.Address, logger *slog.Logger) (*Client, error) {
	keyHex := privateKeyHex
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	pk, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("chain: parse private key: %w", err)
	}
	address := crypto.PubkeyToAddress(pk.PublicKey)
	return &Client{
		rpc:               rpc,
		privateKey:        pk,
		address:           address,
		chainID:           big.NewInt(chainID),
		safeAddress:       safeAddress,
		ctfAddress:        ctfAddress,
		collateralAddress: collateralAddress,
		dispatcher:        newNonceDispatcher(rpc, address),
		approvals:         newApprovalCache(),
		logger:            logger.With("component", "chain_client"),
	}, nil
}

// Split mints a complementary pair of outcome tokens for conditionID from
// collateralAmount (USDC, human units) by batching an approve (if the
// allowance isn't already cached) and splitPosition into one Safe
// execTransaction.
func (c *Client) Split(ctx context.Context, conditionID common.Hash, collateralAmount decimal.Decimal) (common.Hash, error) {
	amount := toTokenUnits(collateralAmount, usdcScale)
	calls, err := c.buildApproveAndCall(c.collateralAddress, c.ctfAddress, amount, func() ([]byte, error) {
		return c.encodeSplit(conditionID, amount)
	}, approveERC20)
	if err != nil {
		return common.Hash{}, err
	}
	return c.submitBatch(ctx, calls)
}

// Merge redeems a complementary pair of outcome tokens for conditionID back
// into collateral, approving the CTF as an ERC-1155 operator over the
// conditional tokens if not already cached.
func (c *Client) Merge(ctx context.Context, conditionID common.Hash, shareAmount decimal.Decimal) (common.Hash, error) {
	amount := toTokenUnits(shareAmount, usdcScale)
	calls, err := c.buildApproveAndCall(c.ctfAddress, c.ctfAddress, amount, func() ([]byte, error) {
		return c.encodeMerge(conditionID, amount)
	}, approveERC1155)
	if err != nil {
		return common.Hash{}, err
	}
	return c.submitBatch(ctx, calls)
}

type approveKind int

const (
	approveERC20 approveKind = iota
	approveERC1155
)

func (c *Client) buildApproveAndCall(token, spender common.Address, amount *big.Int, encodeMain func() ([]byte, error), kind approveKind) ([]call, error) {
	var calls []call
	if !c.approvals.isApproved(token, spender) {
		approveData, err := c.encodeApproval(token, spender, kind)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call{to: token, data: approveData})
	}
	mainData, err := encodeMain()
	if err != nil {
		return nil, err
	}
	mainTo := c.ctfAddress
	calls = append(calls, call{to: mainTo, data: mainData})
	return calls, nil
}

func (c *Client) encodeApproval(token, spender common.Address, kind approveKind) ([]byte, error) {
	switch kind {
	case approveERC1155:
		a, err := ctfABI()
		if err != nil {
			return nil, err
		}
		return a.Pack("setApprovalForAll", spender, true)
	default:
		a, err := erc20ABI()
		if err != nil {
			return nil, err
		}
		return a.Pack("approve", spender, maxUint256())
	}
}

func (c *Client) encodeSplit(conditionID common.Hash, amount *big.Int) ([]byte, error) {
	a, err := ctfABI()
	if err != nil {
		return nil, err
	}
	partition := []*big.Int{big.NewInt(1), big.NewInt(2)}
	return a.Pack("splitPosition", c.collateralAddress, common.Hash{}, conditionID, partition, amount)
}

func (c *Client) encodeMerge(conditionID common.Hash, amount *big.Int) ([]byte, error) {
	a, err := ctfABI()
	if err != nil {
		return nil, err
	}
	partition := []*big.Int{big.NewInt(1), big.NewInt(2)}
	return a.Pack("mergePositions", c.collateralAddress, common.Hash{}, conditionID, partition, amount)
}

// submitBatch wraps calls in a MultiSend payload (a single leg is sent
// directly, without MultiSend), signs the resulting SafeTx, and sends
// execTransaction. After any failed attempt it refreshes the nonce once and
// retries before returning ErrFatal.
func (c *Client) submitBatch(ctx context.Context, calls []call) (common.Hash, error) {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	txHash, err := c.trySubmit(ctx, calls)
	if err == nil {
		c.markApprovalsFromBatch(calls)
		return txHash, nil
	}
	c.logger.Warn("chain batch failed, refreshing nonce and retrying once", "error", err)
	if refreshErr := c.dispatcher.refresh(ctx); refreshErr != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrFatal, refreshErr)
	}
	txHash, err = c.trySubmit(ctx, calls)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	c.markApprovalsFromBatch(calls)
	return txHash, nil
}

func (c *Client) markApprovalsFromBatch(calls []call) {
	// The approve leg, when present, is always calls[0]; mark it so the
	// next cycle on this token skips it.
	if len(calls) == 2 {
		c.approvals.markApproved(calls[0].to, c.ctfAddress)
	}
}

func (c *Client) trySubmit(ctx context.Context, calls []call) (common.Hash, error) {
	var to common.Address
	var data []byte
	var operation uint8

	if len(calls) == 1 {
		to, data, operation = calls[0].to, calls[0].data, 0
	} else {
		ms, err := multiSendABI()
		if err != nil {
			return common.Hash{}, err
		}
		bundled, err := ms.Pack("multiSend", encodeMultiSend(calls))
		if err != nil {
			return common.Hash{}, fmt.Errorf("pack multiSend: %w", err)
		}
		to, data, operation = multiSendLibraryAddress, bundled, 1 // delegatecall into MultiSend
	}

	safeNonce, err := c.safeNonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := safeTxHash(c.chainID, c.safeAddress, to, data, operation, safeNonce)
	if err != nil {
		return common.Hash{}, err
	}
	signature, err := signSafeTx(c.privateKey, hash)
	if err != nil {
		return common.Hash{}, err
	}
	execData, err := execTransactionData(to, data, operation, signature)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := c.dispatcher.reserve(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: suggest gas price: %w", err)
	}
	msg := ethereum.CallMsg{From: c.address, To: &c.safeAddress, Data: execData}
	gasLimit, err := c.rpc.EstimateGas(ctx, msg)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: estimate gas: %w", err)
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &c.safeAddress,
		Value:    big.NewInt(0),
		Gas:      gasLimit + gasLimit/5, // 20% headroom
		GasPrice: gasPrice,
		Data:     execData,
	})
	signer := gethtypes.NewEIP155Signer(c.chainID)
	signedTx, err := gethtypes.SignTx(tx, signer, c.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: sign tx: %w", err)
	}
	if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send tx: %w", err)
	}
	return c.waitMined(ctx, signedTx.Hash())
}

func (c *Client) safeNonce(ctx context.Context) (*big.Int, error) {
	a, err := safeContractABI()
	if err != nil {
		return nil, err
	}
	packed, err := a.Pack("nonce")
	if err != nil {
		return nil, err
	}
	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &c.safeAddress, Data: packed}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: read safe nonce: %w", err)
	}
	out, err := a.Unpack("nonce", result)
	if err != nil || len(out) == 0 {
		return nil, fmt.Errorf("chain: unpack safe nonce: %w", err)
	}
	return out[0].(*big.Int), nil
}

// waitMined polls for the transaction receipt; it never returns ErrFatal
// itself, that escalation happens one layer up in submitBatch.
func (c *Client) waitMined(ctx context.Context, txHash common.Hash) (common.Hash, error) {
	deadline := time.Now().Add(receiptTimeout)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return txHash, ctx.Err()
		case <-ticker.C:
			receipt, err := c.rpc.TransactionReceipt(ctx, txHash)
			if err == nil && receipt != nil {
				if receipt.Status == gethtypes.ReceiptStatusFailed {
					return txHash, fmt.Errorf("chain: tx %s reverted", txHash.Hex())
				}
				return txHash, nil
			}
			if time.Now().After(deadline) {
				return txHash, fmt.Errorf("chain: tx %s not mined within %s", txHash.Hex(), receiptTimeout)
			}
		}
	}
}

// BalanceOf reads the ERC-1155 conditional-token balance for a position id.
// Nothing in the repository calls it; there is no reconciliation pass
// against chain state.
func (c *Client) BalanceOf(ctx context.Context, positionID *big.Int) (decimal.Decimal, error) {
	a, err := ctfABI()
	if err != nil {
		return decimal.Zero, err
	}
	packed, err := a.Pack("balanceOf", c.safeAddress, positionID)
	if err != nil {
		return decimal.Zero, err
	}
	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &c.ctfAddress, Data: packed}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain: balanceOf: %w", err)
	}
	out, err := a.Unpack("balanceOf", result)
	if err != nil || len(out) == 0 {
		return decimal.Zero, fmt.Errorf("chain: unpack balanceOf: %w", err)
	}
	raw := out[0].(*big.Int)
	return fromTokenUnits(raw, usdcScale), nil
}

func toTokenUnits(amount decimal.Decimal, scale int32) *big.Int {
	return amount.Shift(scale).BigInt()
}

func fromTokenUnits(raw *big.Int, scale int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -scale)
}

func maxUint256() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return max.Sub(max, big.NewInt(1))
}

// multiSendLibraryAddress is the canonical Safe MultiSendCallOnly deployment
// address, identical across all chains the Safe singleton factory supports.
var multiSendLibraryAddress = common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D")
