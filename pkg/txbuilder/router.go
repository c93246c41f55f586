package txbuilder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Universal Router command bytes
const (
	CommandV2SwapExactIn byte = 0x08
	CommandWrapNative    byte = 0x0b
	CommandUnwrapNative  byte = 0x0c
)

// Sentinel recipients understood by the Universal Router
var (
	// RecipientSender routes output to the transaction sender
	RecipientSender = common.HexToAddress("0x0000000000000000000000000000000000000001")
	// RecipientRouter keeps output inside the router for a later command
	RecipientRouter = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

// routerABIJSON is the single entrypoint the engine calls
const routerABIJSON = `[
	{"inputs":[{"name":"commands","type":"bytes"},{"name":"inputs","type":"bytes[]"},{"name":"deadline","type":"uint256"}],"name":"execute","outputs":[],"stateMutability":"payable","type":"function"}
]`

// erc20ApproveABIJSON covers the approval write
const erc20ApproveABIJSON = `[
	{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var (
	routerABI  abi.ABI
	approveABI abi.ABI

	wrapArgs   abi.Arguments
	v2SwapArgs abi.Arguments
	unwrapArgs abi.Arguments
)

func init() {
	var err error
	routerABI, err = abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid router ABI: %v", err))
	}
	approveABI, err = abi.JSON(strings.NewReader(erc20ApproveABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid ERC20 ABI: %v", err))
	}

	addressT := mustType("address")
	uint256T := mustType("uint256")
	addressSliceT := mustType("address[]")
	boolT := mustType("bool")

	// WRAP_ETH / UNWRAP_WETH: (recipient, amount)
	wrapArgs = abi.Arguments{{Type: addressT}, {Type: uint256T}}
	unwrapArgs = abi.Arguments{{Type: addressT}, {Type: uint256T}}
	// V2_SWAP_EXACT_IN: (recipient, amountIn, amountOutMin, path, payerIsUser)
	v2SwapArgs = abi.Arguments{{Type: addressT}, {Type: uint256T}, {Type: uint256T}, {Type: addressSliceT}, {Type: boolT}}
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("invalid ABI type %s: %v", t, err))
	}
	return typ
}

// EncodeWrap builds the WRAP_ETH command input.
func EncodeWrap(recipient common.Address, amount *big.Int) ([]byte, error) {
	return wrapArgs.Pack(recipient, amount)
}

// EncodeUnwrap builds the UNWRAP_WETH command input.
func EncodeUnwrap(recipient common.Address, minAmount *big.Int) ([]byte, error) {
	return unwrapArgs.Pack(recipient, minAmount)
}

// EncodeV2SwapExactIn builds the V2_SWAP_EXACT_IN command input. payerIsUser
// selects whether input funds are pulled from the sender via Permit2 or
// taken from the router's own balance.
func EncodeV2SwapExactIn(recipient common.Address, amountIn, minOut *big.Int, path []common.Address, payerIsUser bool) ([]byte, error) {
	return v2SwapArgs.Pack(recipient, amountIn, minOut, path, payerIsUser)
}

// EncodeExecute packs the router execute calldata.
func EncodeExecute(commands []byte, inputs [][]byte, deadline *big.Int) ([]byte, error) {
	return routerABI.Pack("execute", commands, inputs, deadline)
}

// EncodeApprove packs ERC20 approve calldata.
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return approveABI.Pack("approve", spender, amount)
}
