// Package redisrelay carries realtime envelopes between API instances over
// Redis pub/sub.
package redisrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuchu-notify/internal/realtime"
	"github.com/go-redis/redis/v7"
)

// Deliverer receives envelopes published by any instance.
type Deliverer interface {
	Deliver(env realtime.Envelope)
}

// Relay publishes envelopes to one Redis channel and delivers every message
// seen on it, the instance's own included.
type Relay struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

func NewClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

func New(client *redis.Client, channel string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, channel: channel, log: logger}
}

func (r *Relay) Publish(ctx context.Context, env realtime.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := r.client.WithContext(ctx).Publish(r.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Ping checks the connection before the relay is put in front of the hub.
func (r *Relay) Ping(ctx context.Context) error {
	return r.client.WithContext(ctx).Ping().Err()
}

// Run subscribes and hands each envelope to d until ctx is cancelled.
// It returns once the subscription is confirmed or has failed, then keeps
// consuming in the background.
func (r *Relay) Run(ctx context.Context, d Deliverer) error {
	sub := r.client.Subscribe(r.channel)
	if _, err := sub.Receive(); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	msgs := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					r.log.Warn("redis relay subscription closed", "channel", r.channel)
					return
				}
				r.handle(d, msg.Payload)
			}
		}
	}()
	r.log.Info("redis relay subscribed", "channel", r.channel)
	return nil
}

func (r *Relay) handle(d Deliverer, payload string) {
	var env realtime.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.Channel == "" || env.Event == "" {
		r.log.Warn("redis relay dropped malformed envelope", "channel", r.channel, "err", err)
		return
	}
	d.Deliver(env)
}

func (r *Relay) Close() error {
	return r.client.Close()
}
