package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekgrid/pkg/model"
)

func TestUniverse(t *testing.T) {
	u := NewUniverse(append(Default(), model.Ticker{Symbol: "btc"}, model.Ticker{Symbol: " coin "}))

	btc, ok := u.Lookup("btc")
	require.True(t, ok)
	assert.True(t, btc.Crypto)
	assert.Equal(t, "Bitcoin", btc.Name)

	coin, ok := u.Lookup("COIN")
	require.True(t, ok)
	assert.Equal(t, "COIN", coin.Name)

	assert.Len(t, u.All(), 5)
	assert.Equal(t, "BTC", u.All()[0].Symbol)
	assert.Equal(t, []string{"BTC", "COIN", "HOOD", "MSTR", "TSLA"}, u.Symbols())
}

func TestResolve(t *testing.T) {
	u := NewUniverse(Default())

	all, err := u.Resolve(nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	got, err := u.Resolve([]string{"tsla, btc", "TSLA"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "TSLA", got[0].Symbol)
	assert.Equal(t, "BTC", got[1].Symbol)

	_, err = u.Resolve([]string{"AAPL"})
	assert.Error(t, err)

	_, err = u.Resolve([]string{"BRK.B"})
	assert.Error(t, err)
}
