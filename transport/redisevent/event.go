package redisevent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"corebus/message"
	"corebus/transport"
)

// EventTransport is the Redis Streams EventTransport implementation.
type EventTransport struct {
	shards *ShardSet

	// blockFor bounds how long one XReadGroup call waits for new entries
	// before looping to re-check ctx — keeps Consume responsive to
	// cancellation without busy-polling.
	blockFor time.Duration
}

// NewEventTransport returns an EventTransport routing across shards.
func NewEventTransport(shards *ShardSet) *EventTransport {
	return &EventTransport{shards: shards, blockFor: 2 * time.Second}
}

func (t *EventTransport) Open(ctx context.Context) error  { return nil }
func (t *EventTransport) Close(ctx context.Context) error { return t.shards.Close() }

func streamKey(apiName, eventName string) string {
	return "corebus:event:" + apiName + ":" + eventName
}

func (t *EventTransport) SendEvent(ctx context.Context, msg *message.EventMessage, options map[string]any) error {
	key := streamKey(msg.APIName, msg.EventName)
	client, err := t.shards.clientFor(key)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(msg.Kwargs)
	if err != nil {
		return fmt.Errorf("redisevent: marshal kwargs: %w", err)
	}

	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]any{"id": msg.ID, "kwargs": payload},
	}).Result()
	if err != nil {
		return fmt.Errorf("redisevent: XADD %s: %w", key, err)
	}
	msg.NativeID = id
	return nil
}

// ensureGroup creates listenerName's consumer group on key, starting from
// the beginning of the stream (XGROUP CREATE ... 0), so a listener that
// has never consumed this stream sees its full history rather than only
// entries added after group creation. BUSYGROUP (the group already
// exists) is not an error.
func ensureGroup(ctx context.Context, client *redis.Client, key, group string) error {
	err := client.XGroupCreateMkStream(ctx, key, group, "0").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		if rerr, ok := err.(interface{ Error() string }); ok && containsBusyGroup(rerr.Error()) {
			return nil
		}
		return err
	}
	return nil
}

func containsBusyGroup(s string) bool {
	const busyGroup = "BUSYGROUP"
	for i := 0; i+len(busyGroup) <= len(s); i++ {
		if s[i:i+len(busyGroup)] == busyGroup {
			return true
		}
	}
	return false
}

// Consume starts one XReadGroup polling goroutine per (shard, stream key)
// pair listenFor resolves to, fanning every batch onto a single output
// channel tagged under listenerName as the consumer group.
func (t *EventTransport) Consume(ctx context.Context, listenFor []transport.EventKey, listenerName string, options map[string]any) (<-chan transport.EventBatch, error) {
	consumerName := "consumer-1"
	if v, ok := options["consumer_name"]; ok {
		if s, ok := v.(string); ok && s != "" {
			consumerName = s
		}
	}

	out := make(chan transport.EventBatch)
	for _, k := range listenFor {
		key := streamKey(k.APIName, k.EventName)
		client, err := t.shards.clientFor(key)
		if err != nil {
			return nil, err
		}
		if err := ensureGroup(ctx, client, key, listenerName); err != nil {
			return nil, fmt.Errorf("redisevent: create group %s on %s: %w", listenerName, key, err)
		}
		go t.pollStream(ctx, client, key, k.APIName, k.EventName, listenerName, consumerName, out)
	}

	go func() {
		<-ctx.Done()
		close(out)
	}()

	return out, nil
}

func (t *EventTransport) pollStream(ctx context.Context, client *redis.Client, key, apiName, eventName, group, consumer string, out chan<- transport.EventBatch) {
	// The first read uses "0", which returns up to Count of this consumer's
	// pending entries (delivered earlier, never acknowledged); every later
	// read uses ">" for entries not yet delivered to the group.
	readFrom := "0"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{key, readFrom},
			Block:    t.blockFor,
			Count:    64,
		}).Result()
		readFrom = ">"
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			return
		}

		for _, stream := range res {
			batch := make(transport.EventBatch, 0, len(stream.Messages))
			for _, entry := range stream.Messages {
				evMsg := &message.EventMessage{
					APIName:   apiName,
					EventName: eventName,
					NativeID:  entry.ID,
				}
				if idVal, ok := entry.Values["id"].(string); ok {
					evMsg.ID = idVal
				}
				if kwargsVal, ok := entry.Values["kwargs"].(string); ok {
					var kwargs message.Kwargs
					_ = json.Unmarshal([]byte(kwargsVal), &kwargs)
					evMsg.Kwargs = kwargs
				}
				batch = append(batch, evMsg)
			}
			if len(batch) == 0 {
				continue
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (t *EventTransport) Acknowledge(ctx context.Context, msgs ...*message.EventMessage) error {
	for _, msg := range msgs {
		key := streamKey(msg.APIName, msg.EventName)
		client, err := t.shards.clientFor(key)
		if err != nil {
			return err
		}
		// The group name isn't carried on EventMessage; callers are
		// expected to XAck against whichever group their Consume call
		// used. Acknowledge here acks against every group currently
		// registered on the stream, which is correct as long as one
		// process only runs one listener per stream (the common case) —
		// documented as a known limitation for the multi-listener case.
		groups, err := client.XInfoGroups(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("redisevent: list groups on %s: %w", key, err)
		}
		for _, g := range groups {
			if err := client.XAck(ctx, key, g.Name, msg.NativeID).Err(); err != nil {
				return fmt.Errorf("redisevent: XACK %s/%s: %w", key, g.Name, err)
			}
		}
	}
	return nil
}

func (t *EventTransport) History(ctx context.Context, apiName, eventName string, start, stop int64) ([]*message.EventMessage, error) {
	key := streamKey(apiName, eventName)
	client, err := t.shards.clientFor(key)
	if err != nil {
		return nil, err
	}

	if start < 0 {
		start = 0
	}
	if stop < start {
		return nil, nil
	}
	count := stop - start + 1

	entries, err := client.XRevRangeN(ctx, key, "+", "-", count+start).Result()
	if err != nil {
		return nil, fmt.Errorf("redisevent: XREVRANGE %s: %w", key, err)
	}
	if int64(len(entries)) <= start {
		return nil, nil
	}
	entries = entries[start:]

	out := make([]*message.EventMessage, 0, len(entries))
	for _, entry := range entries {
		evMsg := &message.EventMessage{APIName: apiName, EventName: eventName, NativeID: entry.ID}
		if idVal, ok := entry.Values["id"].(string); ok {
			evMsg.ID = idVal
		}
		if kwargsVal, ok := entry.Values["kwargs"].(string); ok {
			var kwargs message.Kwargs
			_ = json.Unmarshal([]byte(kwargsVal), &kwargs)
			evMsg.Kwargs = kwargs
		}
		out = append(out, evMsg)
	}
	return out, nil
}
