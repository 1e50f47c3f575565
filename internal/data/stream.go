package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quant-engine/internal/infrastructure"
	"quant-engine/internal/model"
)

// KlineStream consumes the Binance kline websocket and emits closed bars.
// Paper-mode runs use it as their realtime bar source.
type KlineStream struct {
	logger   *zap.Logger
	symbol   string
	interval string
	wsURL    string
}

func NewKlineStream(symbol, interval string, logger *zap.Logger) *KlineStream {
	return &KlineStream{
		logger:   logger,
		symbol:   NormalizeSymbol(symbol),
		interval: interval,
		wsURL:    "wss://stream.binance.com:9443/ws",
	}
}

// binanceKlineEvent is the raw kline event envelope.
type binanceKlineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime    int64  `json:"t"`
		CloseTime   int64  `json:"T"`
		Interval    string `json:"i"`
		Open        string `json:"o"`
		Close       string `json:"c"`
		High        string `json:"h"`
		Low         string `json:"l"`
		Volume      string `json:"v"`
		TradeCount  int64  `json:"n"`
		Closed      bool   `json:"x"`
		QuoteVolume string `json:"q"`
	} `json:"k"`
}

// Run dials the stream and keeps it alive with exponential reconnect
// back-off, pushing closed bars into barChan until the context is done.
func (s *KlineStream) Run(ctx context.Context, barChan chan<- model.KLine) {
	stream := strings.ToLower(ExchangeSymbol(s.symbol)) + "@kline_" + s.interval
	url := fmt.Sprintf("%s/%s", s.wsURL, stream)
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.logger.Info("connecting to kline stream", zap.String("url", url))
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			s.logger.Error("failed to connect to kline stream", zap.Error(err))
			if sleepCtx(ctx, backoff) != nil {
				return
			}
			backoff = increaseBackoff(backoff)
			continue
		}

		backoff = time.Second
		infrastructure.WSConnections.Inc()
		if err := s.handleConnection(ctx, conn, barChan); err != nil {
			s.logger.Error("kline stream closed with error", zap.Error(err))
		}
		infrastructure.WSConnections.Dec()
		conn.Close()
	}
}

func (s *KlineStream) handleConnection(ctx context.Context, conn *websocket.Conn, barChan chan<- model.KLine) error {
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				return err
			}

			var event binanceKlineEvent
			if err := json.Unmarshal(message, &event); err != nil {
				s.logger.Error("failed to unmarshal kline event", zap.Error(err))
				continue
			}
			if event.EventType != "kline" || !event.Kline.Closed {
				continue
			}

			bar := s.convertToModel(event)
			select {
			case barChan <- bar:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (s *KlineStream) convertToModel(event binanceKlineEvent) model.KLine {
	k := model.KLine{
		Symbol:     s.symbol,
		Exchange:   "binance",
		Period:     event.Kline.Interval,
		OpenTime:   event.Kline.OpenTime,
		CloseTime:  event.Kline.CloseTime,
		TradeCount: event.Kline.TradeCount,
	}
	k.Open, _ = decimal.NewFromString(event.Kline.Open)
	k.High, _ = decimal.NewFromString(event.Kline.High)
	k.Low, _ = decimal.NewFromString(event.Kline.Low)
	k.Close, _ = decimal.NewFromString(event.Kline.Close)
	k.Volume, _ = decimal.NewFromString(event.Kline.Volume)
	k.QuoteVolume, _ = decimal.NewFromString(event.Kline.QuoteVolume)
	return k
}

func increaseBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > time.Minute {
		return time.Minute
	}
	return next
}
