package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
	{"name":"approve","type":"function","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const ctfABIJSON = `[
	{"name":"splitPosition","type":"function","inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"partition","type":"uint256[]"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"mergePositions","type":"function","inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"partition","type":"uint256[]"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"setApprovalForAll","type":"function","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const safeABIJSON = `[
	{"name":"execTransaction","type":"function","inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"signatures","type":"bytes"}
	],"outputs":[{"name":"","type":"bool"}]},
	{"name":"nonce","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const multiSendABIJSON = `[
	{"name":"multiSend","type":"function","inputs":[{"name":"transactions","type":"bytes"}],"outputs":[]}
]`

func erc20ABI() (abi.ABI, error)     { return abi.JSON(strings.NewReader(erc20ABIJSON)) }
func ctfABI() (abi.ABI, error)       { return abi.JSON(strings.NewReader(ctfABIJSON)) }
func safeContractABI() (abi.ABI, error) { return abi.JSON(strings.NewReader(safeABIJSON)) }
func multiSendABI() (abi.ABI, error) { return abi.JSON(strings.NewReader(multiSendABIJSON)) }
