package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ecociel/remind/lib/notify"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "remind:notify:"

const (
	permissionGranted = "granted"
	permissionDenied  = "denied"
)

// Inbox keeps posted notifications in Redis, one hash per slot, and
// announces every post on a pub/sub channel. It is both a notify.Poster and
// a notify.Gate; an unset permission counts as denied.
type Inbox struct {
	client     redis.UniversalClient
	prefix     string
	slots      string
	channels   string
	permission string
	announce   string
	now        func() time.Time
}

func New(client redis.UniversalClient, prefix string) *Inbox {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Inbox{
		client:     client,
		prefix:     prefix,
		slots:      prefix + "slots",
		channels:   prefix + "channels",
		permission: prefix + "permission",
		announce:   prefix + "posted",
		now:        time.Now,
	}
}

// Topic is the pub/sub channel posts are announced on.
func (i *Inbox) Topic() string { return i.announce }

func (i *Inbox) slotKey(id int64) string {
	return i.prefix + "n:" + strconv.FormatInt(id, 10)
}

func (i *Inbox) RegisterChannel(ctx context.Context, ch notify.Channel) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode channel: %w", err)
	}
	if err := i.client.HSet(ctx, i.channels, ch.ID, data).Err(); err != nil {
		return fmt.Errorf("store channel %s: %w", ch.ID, err)
	}
	return nil
}

func (i *Inbox) Channels(ctx context.Context) ([]notify.Channel, error) {
	raw, err := i.client.HGetAll(ctx, i.channels).Result()
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	out := make([]notify.Channel, 0, len(raw))
	for id, data := range raw {
		var ch notify.Channel
		if err := json.Unmarshal([]byte(data), &ch); err != nil {
			return nil, fmt.Errorf("decode channel %s: %w", id, err)
		}
		out = append(out, ch)
	}
	return out, nil
}

// Post replaces whatever occupies slot n.ID.
func (i *Inbox) Post(ctx context.Context, n notify.Notification) error {
	announcement, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	key := i.slotKey(n.ID)
	_, err = i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]interface{}{
			"id":         n.ID,
			"channelId":  n.ChannelID,
			"title":      n.Title,
			"body":       n.Body,
			"priority":   int(n.Priority),
			"autoCancel": n.AutoCancel,
		})
		pipe.ZAdd(ctx, i.slots, redis.Z{Score: float64(i.now().UnixMilli()), Member: n.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("post notification %d: %w", n.ID, err)
	}
	if err := i.client.Publish(ctx, i.announce, announcement).Err(); err != nil {
		return fmt.Errorf("announce notification %d: %w", n.ID, err)
	}
	return nil
}

// List returns the posted notifications, oldest post first.
func (i *Inbox) List(ctx context.Context) ([]notify.Notification, error) {
	ids, err := i.client.ZRange(ctx, i.slots, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	out := make([]notify.Notification, 0, len(ids))
	for _, s := range ids {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse slot %q: %w", s, err)
		}
		fields, err := i.client.HGetAll(ctx, i.slotKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("load notification %d: %w", id, err)
		}
		if len(fields) == 0 {
			continue
		}
		n, err := decode(fields)
		if err != nil {
			return nil, fmt.Errorf("decode notification %d: %w", id, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Dismiss clears slot id and reports whether it was occupied.
func (i *Inbox) Dismiss(ctx context.Context, id int64) (bool, error) {
	var del *redis.IntCmd
	_, err := i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, i.slotKey(id))
		pipe.ZRem(ctx, i.slots, id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("dismiss notification %d: %w", id, err)
	}
	return del.Val() > 0, nil
}

func (i *Inbox) SetPermission(ctx context.Context, granted bool) error {
	v := permissionDenied
	if granted {
		v = permissionGranted
	}
	if err := i.client.Set(ctx, i.permission, v, 0).Err(); err != nil {
		return fmt.Errorf("set notification permission: %w", err)
	}
	return nil
}

func (i *Inbox) Granted(ctx context.Context) (bool, error) {
	v, err := i.client.Get(ctx, i.permission).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get notification permission: %w", err)
	}
	return v == permissionGranted, nil
}

func decode(fields map[string]string) (notify.Notification, error) {
	var n notify.Notification
	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return n, err
	}
	priority, err := strconv.Atoi(fields["priority"])
	if err != nil {
		return n, err
	}
	autoCancel, err := strconv.ParseBool(fields["autoCancel"])
	if err != nil {
		return n, err
	}
	n.ID = id
	n.ChannelID = fields["channelId"]
	n.Title = fields["title"]
	n.Body = fields["body"]
	n.Priority = notify.Priority(priority)
	n.AutoCancel = autoCancel
	return n, nil
}
