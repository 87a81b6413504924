package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadParamsMissingFileUsesDefaults(t *testing.T) {
	params, err := LoadParams(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultParams(), params)

	params, err = LoadParams("")
	require.NoError(t, err)
	require.Equal(t, uint64(500), params.MaxDeviationBips)
}

func TestLoadParamsOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	content := `
fee_recipient: "0x000000000000000000000000000000000000beef"
protocol_fee_apr_bips: 250
max_deviation_bips: 300
max_price_age: 120
oracle_signers:
  primary: "0x00000000000000000000000000000000000000aa"
provider:
  min_duration: 600
  max_duration: 2592000
  min_put_strike_bips: 5000
  max_put_strike_bips: 9500
  max_call_strike_bips: 20000
escrow:
  min_grace_period: 3600
  max_grace_period: 604800
  max_interest_apr_bips: 5000
  max_late_fee_apr_bips: 5000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	params, err := LoadParams(path)
	require.NoError(t, err)
	require.Equal(t, uint64(250), params.ProtocolFeeAPRBips)
	require.Equal(t, uint64(300), params.MaxDeviationBips)
	require.Equal(t, int64(600), params.Provider.MinDuration)
	require.Equal(t, uint64(9_500), params.Provider.MaxPutStrikeBips)
	require.Equal(t, int64(3_600), params.Escrow.MinGracePeriod)

	recipient, err := params.FeeRecipientAddress()
	require.NoError(t, err)
	require.Equal(t, byte(0xef), recipient[19])

	signers, err := params.SignerAddresses()
	require.NoError(t, err)
	require.Len(t, signers, 1)
	require.Equal(t, byte(0xaa), signers["primary"][19])
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ProtocolParams)
	}{
		{"inverted durations", func(p *ProtocolParams) { p.Provider.MaxDuration = p.Provider.MinDuration - 1 }},
		{"put strike at par", func(p *ProtocolParams) { p.Provider.MaxPutStrikeBips = 10_000 }},
		{"put bounds inverted", func(p *ProtocolParams) { p.Provider.MinPutStrikeBips = 9_999; p.Provider.MaxPutStrikeBips = 5_000 }},
		{"call strike below par", func(p *ProtocolParams) { p.Provider.MaxCallStrikeBips = 10_000 }},
		{"zero deviation", func(p *ProtocolParams) { p.MaxDeviationBips = 0 }},
		{"deviation too wide", func(p *ProtocolParams) { p.MaxDeviationBips = 10_000 }},
		{"zero price age", func(p *ProtocolParams) { p.MaxPriceAge = 0 }},
		{"inverted grace periods", func(p *ProtocolParams) { p.Escrow.MaxGracePeriod = p.Escrow.MinGracePeriod - 1 }},
		{"bad fee recipient", func(p *ProtocolParams) { p.FeeRecipient = "0x1234" }},
		{"bad oracle signer", func(p *ProtocolParams) {
			p.OracleSigners = map[string]string{"primary": "not-hex"}
		}},
		{"empty signer id", func(p *ProtocolParams) {
			p.OracleSigners = map[string]string{" ": "0x00000000000000000000000000000000000000aa"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := DefaultParams()
			tc.mutate(&params)
			require.Error(t, params.Validate())
		})
	}

	require.NoError(t, DefaultParams().Validate())
}

func TestFeeRecipientAddressEmpty(t *testing.T) {
	params := DefaultParams()
	addr, err := params.FeeRecipientAddress()
	require.NoError(t, err)
	require.Equal(t, [20]byte{}, addr)
}
