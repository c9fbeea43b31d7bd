package solana

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"os"
	"strings"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"gitlab.com/scpcorp/candy-launcher/common"
)

func TestConfigSize(t *testing.T) {
	require.Equal(t, 247, ConfigArrayStart)
	require.Equal(t, 240, ConfigLineSize)
	require.Equal(t, uint64(ConfigHeaderSize+ConfigLineSize+1), ConfigSize(1))
	require.Equal(t, uint64(496), ConfigSize(1))
	require.Equal(t, uint64(ConfigHeaderSize), ConfigSize(0))
	require.Equal(t, uint64(ConfigHeaderSize+8*ConfigLineSize+1), ConfigSize(8))
	require.Equal(t, uint64(ConfigHeaderSize+9*ConfigLineSize+2), ConfigSize(9))

	prev := ConfigSize(0)
	for n := 1; n < 1000; n++ {
		size := ConfigSize(n)
		require.GreaterOrEqual(t, size, prev)
		require.GreaterOrEqual(t, size, uint64(ConfigHeaderSize))
		prev = size
	}
}

func TestDecodeMachineState(t *testing.T) {
	tokenMint := solana.NewWallet().PublicKey()
	goLive := int64(1700000000)
	want := MachineState{
		Authority:      solana.NewWallet().PublicKey(),
		Wallet:         solana.NewWallet().PublicKey(),
		TokenMint:      &tokenMint,
		Config:         solana.NewWallet().PublicKey(),
		UUID:           "abcdef",
		Price:          0,
		ItemsAvailable: 1,
		GoLiveDate:     &goLive,
		ItemsRedeemed:  1,
		Bump:           254,
	}

	got, err := DecodeMachineState(machineAccountData(t, want))
	require.NoError(t, err)
	require.Equal(t, want, *got)

	want.TokenMint = nil
	got, err = DecodeMachineState(machineAccountData(t, want))
	require.NoError(t, err)
	require.Nil(t, got.TokenMint)

	_, err = DecodeMachineState(make([]byte, 100))
	require.Error(t, err)
}

func TestDecodeConfigLines(t *testing.T) {
	line := ConfigLine{Name: "Launch #1", URI: "https://storage.googleapis.com/b/o"}
	lines, err := DecodeConfigLines(configAccountData([]ConfigLine{line}))
	require.NoError(t, err)
	require.Equal(t, []ConfigLine{line}, lines)

	data := configAccountData(nil)
	lines, err = DecodeConfigLines(data)
	require.NoError(t, err)
	require.Empty(t, lines)

	// Count larger than the allocation.
	data[ConfigArrayStart] = 2
	_, err = DecodeConfigLines(data)
	require.Error(t, err)

	_, err = DecodeConfigLines(make([]byte, 10))
	require.Error(t, err)
}

// loadConfigAccount reads a one-line config account laid out the way the
// program writes it: discriminator and header from offset 0, line count at
// byte 247, zero padded lines after it.
func loadConfigAccount(t *testing.T) []byte {
	raw, err := os.ReadFile("testdata/config_account.hex")
	require.NoError(t, err)
	data, err := hex.DecodeString(strings.Join(strings.Fields(string(raw)), ""))
	require.NoError(t, err)
	return data
}

func TestDecodeConfigAccount(t *testing.T) {
	data := loadConfigAccount(t)
	require.Len(t, data, 496)
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[247:251]))

	lines, err := DecodeConfigLines(data)
	require.NoError(t, err)
	require.Equal(t, []ConfigLine{{
		Name: "Launch #1",
		URI:  "https://storage.googleapis.com/launch-assets/manifest?alt=media&v=1",
	}}, lines)

	// The header at offset 0 is what initialize_config stores.
	var authority solana.PublicKey
	for i := range authority {
		authority[i] = byte(i + 1)
	}
	var creator solana.PublicKey
	for i := range creator {
		creator[i] = 0xaa
	}
	header := new(bytes.Buffer)
	header.Write(bin.SighashAccount("Config"))
	header.Write(authority[:])
	require.NoError(t, bin.NewBorshEncoder(header).Encode(configData{
		UUID:                 "4Nd1mB",
		Symbol:               "LNCH",
		SellerFeeBasisPoints: 500,
		Creators:             []configCreator{{Address: creator, Verified: true, Share: 100}},
		IsMutable:            true,
		RetainAuthority:      true,
		MaxNumberOfLines:     1,
	}))
	require.Equal(t, header.Bytes(), data[:header.Len()])
	require.Less(t, header.Len(), ConfigArrayStart)
}

func TestCheckConfigHeader(t *testing.T) {
	creators := make([]configCreator, common.MaxCreators)
	data := configData{UUID: "abcdef", Symbol: "ABC", Creators: creators, MaxNumberOfLines: 1}
	// 8 + 32 + 10 + 7 + 2 + 174 + 8 + 1 + 1 + 4
	require.NoError(t, checkConfigHeader(data))

	data.Symbol = "ABCD"
	var verr *common.ValidationError
	require.ErrorAs(t, checkConfigHeader(data), &verr)

	data.Creators = creators[:1]
	data.Symbol = strings.Repeat("S", common.MaxSymbolLength)
	require.NoError(t, checkConfigHeader(data))
}

func TestCheckConfigLine(t *testing.T) {
	require.NoError(t, checkConfigLine(ConfigLine{Name: "a", URI: "b"}))

	var verr *common.ValidationError
	require.ErrorAs(t, checkConfigLine(ConfigLine{Name: strings.Repeat("n", 33), URI: "b"}), &verr)
	require.Equal(t, "name", verr.Field)
	require.ErrorAs(t, checkConfigLine(ConfigLine{Name: "a", URI: strings.Repeat("u", 201)}), &verr)
	require.Equal(t, "uri", verr.Field)
	require.ErrorAs(t, checkConfigLine(ConfigLine{Name: "a"}), &verr)
}
