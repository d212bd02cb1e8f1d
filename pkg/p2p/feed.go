// Package p2p gossips settlement events between nodes over libp2p pubsub.
// The feed is an engine event sink on the publishing side; on the consuming
// side, handlers fire for events published by other peers.
package p2p

import (
	"context"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/smemoshui/seaport-core/pkg/engine"
)

const (
	topicFulfillments = "seaport-fulfillments"
	topicMatches      = "seaport-matches"
	topicOutcomes     = "seaport-outcomes"
)

// Handlers receive events decoded off the gossip topics. Unset handlers
// drop their events.
type Handlers struct {
	OnFulfillment func(ctx context.Context, ev engine.OrderFulfilledEvent)
	OnMatch       func(ctx context.Context, ev engine.OrdersMatchedEvent)
	OnOutcome     func(ctx context.Context, ev engine.SettlementOutcomeEvent)
}

type Feed struct {
	h   host.Host
	ps  *pubsub.PubSub
	log *zap.SugaredLogger

	tFulfillments, tMatches, tOutcomes       *pubsub.Topic
	subFulfillments, subMatches, subOutcomes *pubsub.Subscription

	muH      sync.RWMutex
	handlers Handlers
}

type FeedConfig struct {
	ListenAddr string
	Bootstrap  []string
	Logger     *zap.Logger
}

func NewFeed(ctx context.Context, cfg FeedConfig) (*Feed, error) {
	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Feed{h: h, ps: ps, log: logger.Sugar()}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			f.log.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if err := f.joinTopics(); err != nil {
		return nil, err
	}

	go f.handleFulfillments(ctx)
	go f.handleMatches(ctx)
	go f.handleOutcomes(ctx)

	f.log.Infow("feed_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr)
	return f, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (f *Feed) joinTopics() error {
	var err error
	if f.tFulfillments, err = f.ps.Join(topicFulfillments); err != nil {
		return err
	}
	if f.tMatches, err = f.ps.Join(topicMatches); err != nil {
		return err
	}
	if f.tOutcomes, err = f.ps.Join(topicOutcomes); err != nil {
		return err
	}

	if f.subFulfillments, err = f.tFulfillments.Subscribe(); err != nil {
		return err
	}
	if f.subMatches, err = f.tMatches.Subscribe(); err != nil {
		return err
	}
	if f.subOutcomes, err = f.tOutcomes.Subscribe(); err != nil {
		return err
	}
	return nil
}

// SetHandlers installs the inbound event callbacks
func (f *Feed) SetHandlers(h Handlers) { f.muH.Lock(); f.handlers = h; f.muH.Unlock() }

func (f *Feed) Host() host.Host { return f.h }

// Close shuts the libp2p host down; the inbound loops end when the feed's
// context is cancelled
func (f *Feed) Close() error { return f.h.Close() }

// publishing side: the feed is an engine event sink

var _ engine.EventSink = (*Feed)(nil)

func (f *Feed) OrderFulfilled(ev engine.OrderFulfilledEvent) {
	f.publish(f.tFulfillments, kindFulfillment, ev)
}

func (f *Feed) OrdersMatched(ev engine.OrdersMatchedEvent) {
	f.publish(f.tMatches, kindMatch, ev)
}

func (f *Feed) SettlementOutcome(ev engine.SettlementOutcomeEvent) {
	f.publish(f.tOutcomes, kindOutcome, ev)
}

func (f *Feed) publish(t *pubsub.Topic, kind string, event any) {
	data, err := encodeEnvelope(kind, event)
	if err != nil {
		f.log.Errorw("feed_encode_failed", "kind", kind, "err", err)
		return
	}
	if err := t.Publish(context.Background(), data); err != nil {
		f.log.Warnw("feed_publish_failed", "kind", kind, "err", err)
	}
}

// inbound: own publishes come back through the subscription, so each loop
// drops messages from the local peer and hands the rest to the handlers

func (f *Feed) handleFulfillments(ctx context.Context) {
	for {
		msg, err := f.subFulfillments.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == f.h.ID() {
			continue
		}
		var ev engine.OrderFulfilledEvent
		if err := decodeEnvelope(msg.Data, kindFulfillment, &ev); err != nil {
			f.log.Debugw("feed_decode_failed", "topic", topicFulfillments, "err", err)
			continue
		}
		f.muH.RLock()
		h := f.handlers
		f.muH.RUnlock()
		if h.OnFulfillment != nil {
			h.OnFulfillment(ctx, ev)
		}
	}
}

func (f *Feed) handleMatches(ctx context.Context) {
	for {
		msg, err := f.subMatches.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == f.h.ID() {
			continue
		}
		var ev engine.OrdersMatchedEvent
		if err := decodeEnvelope(msg.Data, kindMatch, &ev); err != nil {
			f.log.Debugw("feed_decode_failed", "topic", topicMatches, "err", err)
			continue
		}
		f.muH.RLock()
		h := f.handlers
		f.muH.RUnlock()
		if h.OnMatch != nil {
			h.OnMatch(ctx, ev)
		}
	}
}

func (f *Feed) handleOutcomes(ctx context.Context) {
	for {
		msg, err := f.subOutcomes.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == f.h.ID() {
			continue
		}
		var ev engine.SettlementOutcomeEvent
		if err := decodeEnvelope(msg.Data, kindOutcome, &ev); err != nil {
			f.log.Debugw("feed_decode_failed", "topic", topicOutcomes, "err", err)
			continue
		}
		f.muH.RLock()
		h := f.handlers
		f.muH.RUnlock()
		if h.OnOutcome != nil {
			h.OnOutcome(ctx, ev)
		}
	}
}
