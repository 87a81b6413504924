package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProtocolParams carries the protocol economics: strike and duration bounds,
// fee rates and the swap deviation tolerance. All rates are integer basis
// points out of 10,000 and all durations are seconds.
type ProtocolParams struct {
	FeeRecipient       string            `yaml:"fee_recipient"`
	ProtocolFeeAPRBips uint64            `yaml:"protocol_fee_apr_bips"`
	MaxDeviationBips   uint64            `yaml:"max_deviation_bips"`
	MaxPriceAge        int64             `yaml:"max_price_age"`
	OracleSigners      map[string]string `yaml:"oracle_signers"`
	Provider           ProviderParams    `yaml:"provider"`
	Escrow             EscrowParams      `yaml:"escrow"`
}

// ProviderParams bounds the terms a liquidity offer may carry.
type ProviderParams struct {
	MinDuration       int64  `yaml:"min_duration"`
	MaxDuration       int64  `yaml:"max_duration"`
	MinPutStrikeBips  uint64 `yaml:"min_put_strike_bips"`
	MaxPutStrikeBips  uint64 `yaml:"max_put_strike_bips"`
	MaxCallStrikeBips uint64 `yaml:"max_call_strike_bips"`
}

// EscrowParams bounds the terms a supplier offer may carry.
type EscrowParams struct {
	MinGracePeriod     int64  `yaml:"min_grace_period"`
	MaxGracePeriod     int64  `yaml:"max_grace_period"`
	MaxInterestAPRBips uint64 `yaml:"max_interest_apr_bips"`
	MaxLateFeeAPRBips  uint64 `yaml:"max_late_fee_apr_bips"`
}

// DefaultParams returns the parameter set collard assumes when no params
// file is configured.
func DefaultParams() ProtocolParams {
	return ProtocolParams{
		ProtocolFeeAPRBips: 100,
		MaxDeviationBips:   500,
		MaxPriceAge:        300,
		Provider: ProviderParams{
			MinDuration:       5 * 60,
			MaxDuration:       365 * 24 * 3600,
			MinPutStrikeBips:  2_500,
			MaxPutStrikeBips:  9_999,
			MaxCallStrikeBips: 100_000,
		},
		Escrow: EscrowParams{
			MinGracePeriod:     24 * 3600,
			MaxGracePeriod:     30 * 24 * 3600,
			MaxInterestAPRBips: 10_000,
			MaxLateFeeAPRBips:  10_000,
		},
	}
}

// LoadParams reads the YAML parameter file and validates the result. A
// missing path yields the defaults.
func LoadParams(path string) (ProtocolParams, error) {
	params := DefaultParams()
	if path == "" {
		return params, nil
	}
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return params, nil
	}
	if err != nil {
		return params, fmt.Errorf("open params: %w", err)
	}
	defer file.Close()
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&params); err != nil {
		return ProtocolParams{}, fmt.Errorf("decode params: %w", err)
	}
	if err := params.Validate(); err != nil {
		return ProtocolParams{}, err
	}
	return params, nil
}

// FeeRecipientAddress decodes the configured fee recipient. An empty setting
// resolves to the zero address with fees disabled upstream.
func (p ProtocolParams) FeeRecipientAddress() ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(p.FeeRecipient), "0x")
	if trimmed == "" {
		return addr, nil
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("fee recipient: %w", err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("fee recipient: want 20 bytes, got %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// SignerAddresses decodes the oracle signer registry keyed by feed provider
// identifier.
func (p ProtocolParams) SignerAddresses() (map[string][20]byte, error) {
	signers := make(map[string][20]byte, len(p.OracleSigners))
	for provider, raw := range p.OracleSigners {
		id := strings.TrimSpace(provider)
		if id == "" {
			return nil, fmt.Errorf("params: oracle signer with empty provider id")
		}
		trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
		decoded, err := hex.DecodeString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("params: oracle signer %s: %w", id, err)
		}
		if len(decoded) != 20 {
			return nil, fmt.Errorf("params: oracle signer %s: want 20 bytes, got %d", id, len(decoded))
		}
		var addr [20]byte
		copy(addr[:], decoded)
		signers[id] = addr
	}
	return signers, nil
}

// Validate rejects parameter sets that would let offers violate the strike
// and duration invariants.
func (p ProtocolParams) Validate() error {
	if p.Provider.MinDuration <= 0 || p.Provider.MaxDuration < p.Provider.MinDuration {
		return fmt.Errorf("params: invalid provider duration range [%d, %d]",
			p.Provider.MinDuration, p.Provider.MaxDuration)
	}
	if p.Provider.MinPutStrikeBips == 0 || p.Provider.MaxPutStrikeBips >= 10_000 {
		return fmt.Errorf("params: put strike bounds must sit in (0, 10000)")
	}
	if p.Provider.MinPutStrikeBips > p.Provider.MaxPutStrikeBips {
		return fmt.Errorf("params: put strike bounds inverted")
	}
	if p.Provider.MaxCallStrikeBips <= 10_000 {
		return fmt.Errorf("params: max call strike must exceed 10000 bips")
	}
	if p.Escrow.MinGracePeriod < 0 || p.Escrow.MaxGracePeriod < p.Escrow.MinGracePeriod {
		return fmt.Errorf("params: invalid escrow grace period range [%d, %d]",
			p.Escrow.MinGracePeriod, p.Escrow.MaxGracePeriod)
	}
	if p.MaxDeviationBips == 0 || p.MaxDeviationBips >= 10_000 {
		return fmt.Errorf("params: max deviation must sit in (0, 10000) bips")
	}
	if p.MaxPriceAge <= 0 {
		return fmt.Errorf("params: max price age must be positive")
	}
	if _, err := p.FeeRecipientAddress(); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	if _, err := p.SignerAddresses(); err != nil {
		return err
	}
	return nil
}
