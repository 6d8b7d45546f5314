package display

import (
	"context"
	"fmt"
	"sort"
	"time"

	"waterheater-panel/internal/redis"
)

// RedisDocument stores the elements in the hash "display:<name>", so several
// processes can serve the same page state. Fields are "<id>.text",
// "<id>.value" and "<id>.updated_at" (RFC 3339).
type RedisDocument struct {
	client *redis.Client
	key    string
	defs   map[string]ElementDef
	now    func() time.Time
}

func NewRedisDocument(client *redis.Client, name string, defs []ElementDef) *RedisDocument {
	m := make(map[string]ElementDef, len(defs))
	for _, s := range defs {
		m[s.ID] = s
	}
	return &RedisDocument{
		client: client,
		key:    "display:" + name,
		defs:   m,
		now:    time.Now,
	}
}

// Key is the Redis hash holding the document.
func (d *RedisDocument) Key() string {
	return d.key
}

func (d *RedisDocument) SetText(ctx context.Context, id, text string) error {
	return d.set(ctx, id, "text", text)
}

func (d *RedisDocument) SetValue(ctx context.Context, id, value string) error {
	return d.set(ctx, id, "value", value)
}

func (d *RedisDocument) set(ctx context.Context, id, prop, v string) error {
	if _, ok := d.defs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}
	err := d.client.HSet(ctx, d.key,
		id+"."+prop, v,
		id+".updated_at", d.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("redis hset %s: %w", d.key, err)
	}
	return nil
}

func (d *RedisDocument) Element(ctx context.Context, id string) (Element, error) {
	def, ok := d.defs[id]
	if !ok {
		return Element{}, fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}
	fields, err := d.client.HGetAll(ctx, d.key)
	if err != nil {
		return Element{}, fmt.Errorf("redis hgetall %s: %w", d.key, err)
	}
	return elementFromFields(def, fields), nil
}

func (d *RedisDocument) Snapshot(ctx context.Context) ([]Element, error) {
	fields, err := d.client.HGetAll(ctx, d.key)
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", d.key, err)
	}
	out := make([]Element, 0, len(d.defs))
	for _, def := range d.defs {
		out = append(out, elementFromFields(def, fields))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func elementFromFields(def ElementDef, fields map[string]string) Element {
	e := Element{
		ID:    def.ID,
		Kind:  def.Kind,
		Text:  fields[def.ID+".text"],
		Value: fields[def.ID+".value"],
	}
	if ts, ok := fields[def.ID+".updated_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.UpdatedAt = t
		}
	}
	return e
}

var _ Document = (*RedisDocument)(nil)
