package feedclient

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMarketData(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want MessageKind
		ok   bool
	}{
		{
			name: "trade shape",
			raw:  `{"symbol":"AAPL","price":150.05,"size":50}`,
			want: KindTrade,
			ok:   true,
		},
		{
			name: "quote shape",
			raw:  `{"symbol":"AAPL","bidPrice":150.0,"askPrice":150.1,"bidSize":100,"askSize":200}`,
			want: KindQuote,
			ok:   true,
		},
		{
			name: "depth shape wins over quote",
			raw: `{"symbol":"AAPL","bidPrice":150.0,"askPrice":150.1,"levels":[` +
				`{"bidPrice":150.0,"askPrice":150.1,"bidSize":10,"askSize":10},` +
				`{"bidPrice":149.9,"askPrice":150.2,"bidSize":10,"askSize":10},` +
				`{"bidPrice":149.8,"askPrice":150.3,"bidSize":10,"askSize":10},` +
				`{"bidPrice":149.7,"askPrice":150.4,"bidSize":10,"askSize":10},` +
				`{"bidPrice":149.6,"askPrice":150.5,"bidSize":10,"askSize":10},` +
				`{"bidPrice":149.5,"askPrice":150.6,"bidSize":10,"askSize":10},` +
				`{"bidPrice":149.4,"askPrice":150.7,"bidSize":10,"askSize":10},` +
				`{"bidPrice":149.3,"askPrice":150.8,"bidSize":10,"askSize":10},` +
				`{"bidPrice":149.2,"askPrice":150.9,"bidSize":10,"askSize":10},` +
				`{"bidPrice":149.1,"askPrice":151.0,"bidSize":10,"askSize":10}]}`,
			want: KindDepth,
			ok:   true,
		},
		{
			name: "bar shape",
			raw:  `{"symbol":"AAPL","open":150.0,"high":151.0,"low":149.5,"close":150.5,"volume":100000}`,
			want: KindBar,
			ok:   true,
		},
		{
			name: "trade fields next to quote fields is not a trade",
			raw:  `{"symbol":"AAPL","price":150.05,"size":50,"bidPrice":150.0,"askPrice":150.1}`,
			want: KindQuote,
			ok:   true,
		},
		{
			name: "unknown shape",
			raw:  `{"symbol":"AAPL","foo":1}`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := parseFrame([]byte(tt.raw))
			require.True(t, ok)

			kind, ok := classifyMarketData(f)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, kind)
			}
		})
	}
}

func TestParseFrameRejectsGarbage(t *testing.T) {
	_, ok := parseFrame([]byte("not json at all"))
	assert.False(t, ok)

	_, ok = parseFrame([]byte(`"just a string"`))
	assert.False(t, ok)

	_, ok = parseFrame(nil)
	assert.False(t, ok)
}

func TestDecodeTrade(t *testing.T) {
	f, ok := parseFrame([]byte(`{"eventTimeNs":1720000000123456789,"symbol":"AAPL","price":"150.05","size":50,"side":"buy"}`))
	require.True(t, ok)

	msg := decodeTrade(f, "AAPL")
	assert.Equal(t, int64(1720000000123456789), msg.EventTimeNs)
	assert.Equal(t, "AAPL", msg.Symbol)
	assert.True(t, decimal.RequireFromString("150.05").Equal(msg.Price))
	assert.True(t, decimal.NewFromInt(50).Equal(msg.Size))
	assert.Equal(t, "buy", msg.Side)
}

func TestDecodeQuote(t *testing.T) {
	f, ok := parseFrame([]byte(`{"eventTimeNs":1720000000000000001,"symbol":"MSFT","bidPrice":415.25,"askPrice":415.3,"bidSize":100,"askSize":200}`))
	require.True(t, ok)

	msg := decodeQuote(f, "MSFT")
	assert.Equal(t, int64(1720000000000000001), msg.EventTimeNs)
	assert.True(t, decimal.RequireFromString("415.25").Equal(msg.BidPrice))
	assert.True(t, decimal.RequireFromString("415.3").Equal(msg.AskPrice))
	assert.True(t, decimal.NewFromInt(100).Equal(msg.BidSize))
	assert.True(t, decimal.NewFromInt(200).Equal(msg.AskSize))
}

func TestDecodeDepthLevels(t *testing.T) {
	f, ok := parseFrame([]byte(`{"symbol":"AAPL","bidPrice":150.0,"askPrice":150.1,"levels":[` +
		`{"bidPrice":150.0,"askPrice":150.1,"bidSize":10,"askSize":12},` +
		`{"bidPrice":149.9,"askPrice":150.2,"bidSize":20,"askSize":22}]}`))
	require.True(t, ok)

	msg := decodeDepth(f, "AAPL")
	require.Len(t, msg.Levels, 2)
	assert.True(t, decimal.RequireFromString("150.0").Equal(msg.Levels[0].BidPrice))
	assert.True(t, decimal.NewFromInt(12).Equal(msg.Levels[0].AskSize))
	assert.True(t, decimal.RequireFromString("149.9").Equal(msg.Levels[1].BidPrice))
	assert.True(t, decimal.NewFromInt(22).Equal(msg.Levels[1].AskSize))
}

func TestDecodeBar(t *testing.T) {
	f, ok := parseFrame([]byte(`{"symbol":"SPY","open":560.1,"high":561.9,"low":559.4,"close":561.2,"volume":1234567}`))
	require.True(t, ok)

	msg := decodeBar(f, "SPY")
	assert.True(t, decimal.RequireFromString("560.1").Equal(msg.Open))
	assert.True(t, decimal.RequireFromString("561.9").Equal(msg.High))
	assert.True(t, decimal.RequireFromString("559.4").Equal(msg.Low))
	assert.True(t, decimal.RequireFromString("561.2").Equal(msg.Close))
	assert.True(t, decimal.NewFromInt(1234567).Equal(msg.Volume))
}

func TestDecodeSystem(t *testing.T) {
	t.Run("heartbeat", func(t *testing.T) {
		f, ok := parseFrame([]byte(`{"msg":"Heartbeat check","code":0}`))
		require.True(t, ok)

		msg := decodeSystem(f)
		assert.True(t, msg.IsHeartbeat)
		assert.Equal(t, "Heartbeat check", msg.Text)
	})

	t.Run("plain system message", func(t *testing.T) {
		f, ok := parseFrame([]byte(`{"msg":"session will rotate","code":102}`))
		require.True(t, ok)

		msg := decodeSystem(f)
		assert.False(t, msg.IsHeartbeat)
		assert.Equal(t, 102, msg.Code)
	})
}

func BenchmarkClassifyQuoteFrame(b *testing.B) {
	raw := []byte(`{"eventTimeNs":1720000000123456789,"symbol":"AAPL","bidPrice":150.0,"askPrice":150.1,"bidSize":100,"askSize":200}`)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f, ok := parseFrame(raw)
		if !ok {
			b.Fatal("parse failed")
		}
		kind, ok := classifyMarketData(f)
		if !ok || kind != KindQuote {
			b.Fatal("classification failed")
		}
		_ = decodeQuote(f, "AAPL")
	}
}
