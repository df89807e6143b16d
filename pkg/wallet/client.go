package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	polygonUSDC        = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	polygonCTFExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

	erc20ABI = `[` +
		`{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},` +
		`{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}` +
		`]`
)

// ErrInsufficientFunds is returned by Preflight when the funder cannot cover
// a full set of resting traps.
var ErrInsufficientFunds = errors.New("insufficient USDC balance")

// Client reads funder balances from a Polygon RPC endpoint.
type Client struct {
	rpcURL string
	erc20  abi.ABI
	logger *zap.Logger
}

// Balances holds on-chain token balances.
type Balances struct {
	MATIC         *big.Int // in wei
	USDC          *big.Int // in 6-decimal units
	USDCAllowance *big.Int // in 6-decimal units
}

// USDCAmount returns the USDC balance in dollars.
func (b *Balances) USDCAmount() decimal.Decimal {
	return decimal.NewFromBigInt(b.USDC, -6)
}

// AllowanceAmount returns the exchange allowance in dollars.
func (b *Balances) AllowanceAmount() decimal.Decimal {
	return decimal.NewFromBigInt(b.USDCAllowance, -6)
}

// MATICAmount returns the gas balance in whole MATIC.
func (b *Balances) MATICAmount() decimal.Decimal {
	return decimal.NewFromBigInt(b.MATIC, -18)
}

// NewClient creates a new wallet client.
func NewClient(rpcURL string, logger *zap.Logger) (c *Client, err error) {
	if rpcURL == "" {
		return nil, errors.New("rpcURL cannot be empty")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	return &Client{rpcURL: rpcURL, erc20: parsed, logger: logger}, nil
}

// GetBalances fetches on-chain token balances.
func (c *Client) GetBalances(ctx context.Context, address common.Address) (balances *Balances, err error) {
	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	maticBalance, err := client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("get MATIC balance: %w", err)
	}

	usdcBalance, err := c.call(ctx, client, "balanceOf", address)
	if err != nil {
		return nil, fmt.Errorf("get USDC balance: %w", err)
	}

	allowance, err := c.call(ctx, client, "allowance", address, common.HexToAddress(polygonCTFExchange))
	if err != nil {
		return nil, fmt.Errorf("get USDC allowance: %w", err)
	}

	return &Balances{
		MATIC:         maticBalance,
		USDC:          usdcBalance,
		USDCAllowance: allowance,
	}, nil
}

// Preflight checks that address holds at least required USDC. The allowance
// is only logged: proxy wallets approve the exchange out of band.
func (c *Client) Preflight(ctx context.Context, address common.Address, required decimal.Decimal) (*Balances, error) {
	balances, err := c.GetBalances(ctx, address)
	if err != nil {
		PreflightTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("preflight: %w", err)
	}
	observe(balances)

	usdc := balances.USDCAmount()
	if usdc.LessThan(required) {
		PreflightTotal.WithLabelValues("insufficient").Inc()
		return balances, fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, usdc, required)
	}

	if balances.AllowanceAmount().LessThan(required) {
		c.logger.Warn("usdc-allowance-low",
			zap.String("address", address.Hex()),
			zap.String("allowance", balances.AllowanceAmount().String()),
			zap.String("required", required.String()))
	}

	PreflightTotal.WithLabelValues("ok").Inc()
	c.logger.Info("funding-preflight-passed",
		zap.String("address", address.Hex()),
		zap.String("usdc", usdc.String()),
		zap.String("required", required.String()))
	return balances, nil
}

func (c *Client) call(
	ctx context.Context,
	client *ethclient.Client,
	method string,
	args ...any,
) (*big.Int, error) {
	data, err := c.erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack ABI: %w", err)
	}

	token := common.HexToAddress(polygonUSDC)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call contract: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

func observe(b *Balances) {
	USDCBalance.Set(b.USDCAmount().InexactFloat64())
	USDCAllowance.Set(b.AllowanceAmount().InexactFloat64())
	MATICBalance.Set(b.MATICAmount().InexactFloat64())
}
