package codec

import (
	"math/big"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/survivor-indexer/internal/errors"
)

func bigPow2(n uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), n)
}

func feltOf(t *testing.T, x *big.Int) Felt {
	t.Helper()
	f, err := NewFelt(x)
	require.NoError(t, err)
	return f
}

func TestUint256Boundaries(t *testing.T) {
	max128 := new(big.Int).Sub(bigPow2(128), big.NewInt(1))

	tests := []struct {
		name      string
		low, high *big.Int
		expected  *big.Int
	}{
		{"zero", big.NewInt(0), big.NewInt(0), big.NewInt(0)},
		{"low max", max128, big.NewInt(0), max128},
		{"high one", big.NewInt(0), big.NewInt(1), bigPow2(128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader([]Felt{feltOf(t, tt.low), feltOf(t, tt.high)})
			v, err := r.Uint256()
			require.NoError(t, err)
			assert.Equal(t, 0, tt.expected.Cmp(v), "got %s", v)
			assert.Equal(t, 2, r.Pos())
			assert.Equal(t, 0, r.Remaining())
		})
	}
}

func TestReaderPastEnd(t *testing.T) {
	r := NewReader(FeltsFromUint64(7))

	_, err := r.Uint256()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedPayload))

	r = NewReader(nil)
	_, err = r.Bool()
	assert.True(t, errors.Is(err, errors.ErrMalformedPayload))
	_, err = r.Felt()
	assert.True(t, errors.Is(err, errors.ErrMalformedPayload))
	_, err = r.FixedBytes(4)
	assert.True(t, errors.Is(err, errors.ErrMalformedPayload))
}

func TestReaderWidthOverflow(t *testing.T) {
	r := NewReader(FeltsFromUint64(256))
	_, err := r.Uint64(8)
	assert.True(t, errors.Is(err, errors.ErrMalformedPayload))

	r = NewReader(FeltsFromUint64(255))
	v, err := r.Uint64(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(255), v)

	r = NewReader([]Felt{feltOf(t, bigPow2(128))})
	_, err = r.Uint(128)
	assert.True(t, errors.Is(err, errors.ErrMalformedPayload))

	_, err = NewReader(FeltsFromUint64(1)).Uint(129)
	assert.True(t, errors.Is(err, errors.ErrInvalidSchema))
}

func TestReaderBool(t *testing.T) {
	r := NewReader(FeltsFromUint64(0, 1, 2))
	b, err := r.Bool()
	require.NoError(t, err)
	assert.False(t, b)
	b, err = r.Bool()
	require.NoError(t, err)
	assert.True(t, b)
	_, err = r.Bool()
	assert.True(t, errors.Is(err, errors.ErrMalformedPayload))
}

func TestFixedBytesAndShortString(t *testing.T) {
	raw, err := EncodeShortString("loaf", 31)
	require.NoError(t, err)

	w := NewWriter().PutFixedBytes(31, raw)
	data, err := w.Felts()
	require.NoError(t, err)

	got, err := NewReader(data).FixedBytes(31)
	require.NoError(t, err)
	assert.Equal(t, "loaf", DecodeShortString(got))

	_, err = EncodeShortString(strings.Repeat("x", 32), 31)
	assert.Error(t, err)
}

func TestFeltParsing(t *testing.T) {
	f, err := ParseFelt("0x2a")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), f.Big().Uint64())

	f, err = ParseFelt("42")
	require.NoError(t, err)
	assert.True(t, f.Equal(FeltFromUint64(42)))

	f, err = ParseFelt("0x")
	require.NoError(t, err)
	assert.True(t, f.IsZero())

	_, err = NewFelt(Modulus)
	assert.Error(t, err)
	_, err = ParseFelt("0xzz")
	assert.Error(t, err)

	var zero Felt
	assert.Equal(t, "0x0", zero.Hex())
}

func TestFeltJSON(t *testing.T) {
	f := FeltFromUint64(255)
	data, err := f.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"0xff"`, string(data))

	var back Felt
	require.NoError(t, back.UnmarshalJSON(data))
	assert.True(t, back.Equal(f))
	assert.Error(t, back.UnmarshalJSON([]byte("12")))
}

func TestEncodeID(t *testing.T) {
	id := EncodeID(big.NewInt(1))
	assert.Len(t, id, 66)
	assert.Equal(t, "0x"+strings.Repeat("0", 63)+"1", id)

	// 字典序与数值序一致
	assert.Less(t, EncodeID(big.NewInt(9)), EncodeID(big.NewInt(10)))

	back, err := DecodeID(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), back.Int64())
}

func TestWriterRejectsOverflow(t *testing.T) {
	_, err := NewWriter().PutUint64(8, 256).Felts()
	assert.Error(t, err)

	_, err = NewWriter().PutUint256(bigPow2(256)).Felts()
	assert.Error(t, err)
}

func TestProperty_Uint256RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("u256 写入后读取得到原值且消耗两个槽位", prop.ForAll(
		func(a, b, c, d uint64) bool {
			v := new(big.Int).SetUint64(a)
			for _, limb := range []uint64{b, c, d} {
				v.Lsh(v, 64).Or(v, new(big.Int).SetUint64(limb))
			}
			data, err := NewWriter().PutUint256(v).Felts()
			if err != nil || len(data) != 2 {
				return false
			}
			r := NewReader(data)
			got, err := r.Uint256()
			return err == nil && got.Cmp(v) == 0 && r.Remaining() == 0
		},
		gen.UInt64(), gen.UInt64(), gen.UInt64(), gen.UInt64(),
	))

	properties.Property("定宽整数读取不超过位宽", prop.ForAll(
		func(x uint64, width int) bool {
			data, err := NewWriter().PutFelt(FeltFromUint64(x)).Felts()
			if err != nil {
				return false
			}
			_, err = NewReader(data).Uint64(width)
			fits := width == 64 || x < uint64(1)<<uint(width)
			return fits == (err == nil)
		},
		gen.UInt64(), gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
