package binance

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"trading-core/internal/model"
)

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseDepthMessage decodes a partial-book-depth (depth5) event into the
// compact top-5-levels OrderBook §4.3 specifies.
func parseDepthMessage(symbol string, msg []byte) (model.OrderBook, error) {
	var raw struct {
		Bids [][2]string `json:"b"`
		Asks [][2]string `json:"a"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return model.OrderBook{}, err
	}

	ob := model.OrderBook{Symbol: symbol, UpdatedAt: time.Now()}
	for _, b := range raw.Bids {
		ob.Bids = append(ob.Bids, model.PriceLevel{Price: parseDecimal(b[0]), Size: parseDecimal(b[1])})
	}
	for _, a := range raw.Asks {
		ob.Asks = append(ob.Asks, model.PriceLevel{Price: parseDecimal(a[0]), Size: parseDecimal(a[1])})
	}
	return ob, nil
}

// parseKlineMessage decodes a kline/candlestick event into model.Kline,
// propagating the closed flag per §4.3.
func parseKlineMessage(msg []byte) (model.Kline, error) {
	var raw struct {
		Data struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Symbol    string `json:"s"`
			Interval  string `json:"i"`
			Open      string `json:"o"`
			Close     string `json:"c"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Volume    string `json:"v"`
			Closed    bool   `json:"x"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return model.Kline{}, err
	}

	open, _ := strconv.ParseFloat(raw.Data.Open, 64)
	close_, _ := strconv.ParseFloat(raw.Data.Close, 64)
	high, _ := strconv.ParseFloat(raw.Data.High, 64)
	low, _ := strconv.ParseFloat(raw.Data.Low, 64)
	volume, _ := strconv.ParseFloat(raw.Data.Volume, 64)

	return model.Kline{
		Symbol:    raw.Data.Symbol,
		Interval:  model.TimeInterval(raw.Data.Interval),
		OpenTime:  time.UnixMilli(raw.Data.StartTime),
		CloseTime: time.UnixMilli(raw.Data.CloseTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close_,
		Volume:    volume,
		Closed:    raw.Data.Closed,
	}, nil
}

// parseOrderTradeUpdate decodes an ORDER_TRADE_UPDATE user-data event into
// model.OrderEvent, grounded on the teacher's field mapping in
// internal/order/user_stream_futures.go.
func parseOrderTradeUpdate(msg []byte) (model.OrderEvent, bool, error) {
	var raw struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"`
		Order     struct {
			Symbol          string `json:"s"`
			Side            string `json:"S"`
			PositionSide    string `json:"ps"`
			OrderType       string `json:"o"`
			TimeInForce     string `json:"f"`
			OrigQty         string `json:"q"`
			OrigPrice       string `json:"p"`
			AvgPrice        string `json:"ap"`
			Status          string `json:"X"`
			ExecutionType   string `json:"x"`
			ExchangeOrderID int64  `json:"i"`
			LastFilledQty   string `json:"l"`
			CumFilledQty    string `json:"z"`
			LastFilledPrice string `json:"L"`
			Commission      string `json:"n"`
			CommissionAsset string `json:"N"`
			TradeTime       int64  `json:"T"`
			IsMaker         bool   `json:"m"`
			ClientOrderID   string `json:"c"`
			RealizedPnL     string `json:"rp"`
		} `json:"o"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return model.OrderEvent{}, false, err
	}
	if raw.EventType != "ORDER_TRADE_UPDATE" {
		return model.OrderEvent{}, false, nil
	}

	o := raw.Order
	evt := model.OrderEvent{
		Symbol:          o.Symbol,
		ClientOrderID:   o.ClientOrderID,
		ExchangeOrderID: o.ExchangeOrderID,
		Side:            model.Side(o.Side),
		PositionSide:    model.PositionSide(o.PositionSide),
		OrderType:       model.OrderType(o.OrderType),
		TimeInForce:     model.TimeInForce(o.TimeInForce),
		ExecutionType:   model.ExecutionType(o.ExecutionType),
		Status:          model.OrderStatus(o.Status),
		OrigQty:         parseDecimal(o.OrigQty),
		OrigPrice:       parseDecimal(o.OrigPrice),
		AvgPrice:        parseDecimal(o.AvgPrice),
		CumFilledQty:    parseDecimal(o.CumFilledQty),
		LastFilledQty:   parseDecimal(o.LastFilledQty),
		LastFilledPrice: parseDecimal(o.LastFilledPrice),
		Commission:      parseDecimal(o.Commission),
		CommissionAsset: o.CommissionAsset,
		RealizedPnL:     parseDecimal(o.RealizedPnL),
		IsMaker:         o.IsMaker,
		EventTime:       time.UnixMilli(raw.EventTime),
		TradeTime:       time.UnixMilli(o.TradeTime),
	}
	return evt, true, nil
}
