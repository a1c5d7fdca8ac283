package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisClient stores documents as hashes indexed by a RediSearch HNSW
// vector index.
type RedisClient struct {
	rc         *redis.Client
	collection string
}

var _ Client = (*RedisClient)(nil)

func NewRedisClient(ctx context.Context, addr string, collection string) (*RedisClient, error) {
	rc := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	c := &RedisClient{
		rc:         rc,
		collection: collection,
	}

	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Failed to ping redis: %w", err)
	}

	return c, nil
}

func (c *RedisClient) CreateSchema(ctx context.Context, cfg *SchemaConfig) error {
	index := c.getIndex()
	exists, err := c.indexExists(ctx, index)
	if err != nil {
		return fmt.Errorf("Failed to fetch redis index info: %w", err)
	}
	if exists {
		return nil
	}
	if cfg == nil || cfg.IndexDim <= 0 {
		return fmt.Errorf("Failed to create redis index: invalid dimension")
	}

	if err = c.rc.Do(ctx, "FT.CREATE", index,
		"ON", "HASH",
		"PREFIX", "1", c.getPrefix(), "SCORE", "1.0",
		"SCHEMA",
		"id", "TAG",
		"text", "TEXT", "WEIGHT", "1.0", "NOSTEM",
		"embedding", "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT64",
		"DIM", cfg.IndexDim,
		"DISTANCE_METRIC", string(cfg.metric()),
	).Err(); err != nil {
		return fmt.Errorf("Failed to create redis index: %w", err)
	}

	return nil
}

func (c *RedisClient) DropSchema(ctx context.Context) error {
	// DD removes the indexed hashes together with the index.
	if err := c.rc.Do(ctx, "FT.DROPINDEX", c.getIndex(), "DD").Err(); err != nil {
		return fmt.Errorf("Failed to drop index: %w", err)
	}
	return nil
}

func (c *RedisClient) InsertDocument(ctx context.Context, doc *Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("Failed to encode document metadata: %w", err)
	}

	if err := c.rc.HSet(ctx, c.getDocKey(doc.Id), map[string]any{
		"id":        doc.Id,
		"text":      doc.Text,
		"metadata":  string(meta),
		"embedding": float64ToBytesLE(doc.Embedding),
	}).Err(); err != nil {
		return fmt.Errorf("Failed to insert a document to redis: %w", err)
	}

	return nil
}

func (c *RedisClient) FindKNearest(ctx context.Context, embedding []float64, k int) ([]*Document, error) {
	if k <= 0 {
		return nil, nil
	}
	res, err := c.rc.Do(ctx, "FT.SEARCH", c.getIndex(),
		fmt.Sprintf("*=>[KNN %d @embedding $vec_param AS distance]", k),
		"PARAMS", "2", "vec_param", float64ToBytesLE(embedding),
		"SORTBY", "distance",
		"RETURN", "4", "id", "text", "metadata", "distance",
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("Failed to execute search query: %w", err)
	}

	hits, err := parseSearchHits(res)
	if err != nil {
		return nil, err
	}
	docs := make([]*Document, 0, len(hits))
	for _, fields := range hits {
		doc := &Document{
			Id:   fields["id"],
			Text: fields["text"],
		}
		if raw := fields["metadata"]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &doc.Metadata); err != nil {
				return nil, fmt.Errorf("Failed to decode document metadata: %w", err)
			}
		}
		if d, err := strconv.ParseFloat(fields["distance"], 64); err == nil {
			doc.Distance = d
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *RedisClient) Count(ctx context.Context) (int, error) {
	cnt := 0
	iter := c.rc.Scan(ctx, 0, c.getPrefix()+"*", 100).Iterator()
	for iter.Next(ctx) {
		cnt++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("Failed to list keys: %w", err)
	}
	return cnt, nil
}

func (c *RedisClient) Close() error {
	return c.rc.Close()
}

func (c *RedisClient) indexExists(ctx context.Context, index string) (bool, error) {
	err := c.rc.Do(ctx, "FT.INFO", index).Err()
	if err == nil {
		return true, nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unknown index") || strings.Contains(msg, "no such index") {
		return false, nil
	}
	return false, err
}

// parseSearchHits flattens an FT.SEARCH reply into one field map per hit.
// RESP3 replies arrive as maps, RESP2 replies as a flat array of
// [total, key, [field, value, ...], key, ...].
func parseSearchHits(res any) ([]map[string]string, error) {
	switch v := res.(type) {
	case map[any]any:
		results, _ := v["results"].([]any)
		hits := make([]map[string]string, 0, len(results))
		for _, hit := range results {
			dm, ok := hit.(map[any]any)
			if !ok {
				return nil, fmt.Errorf("Unexpected search hit: %T", hit)
			}
			ea, _ := dm["extra_attributes"].(map[any]any)
			fields := make(map[string]string, len(ea))
			for k, val := range ea {
				fields[fmt.Sprint(k)] = fmt.Sprint(val)
			}
			hits = append(hits, fields)
		}
		return hits, nil
	case []any:
		hits := make([]map[string]string, 0, len(v)/2)
		for i := 2; i < len(v); i += 2 {
			pairs, ok := v[i].([]any)
			if !ok {
				return nil, fmt.Errorf("Unexpected search hit: %T", v[i])
			}
			fields := make(map[string]string, len(pairs)/2)
			for j := 0; j+1 < len(pairs); j += 2 {
				fields[fmt.Sprint(pairs[j])] = fmt.Sprint(pairs[j+1])
			}
			hits = append(hits, fields)
		}
		return hits, nil
	}
	return nil, fmt.Errorf("Unexpected search reply: %T", res)
}

func (c *RedisClient) getDocKey(id string) string {
	return fmt.Sprintf("%s{%s}", c.getPrefix(), id)
}

func (c *RedisClient) getIndex() string {
	return fmt.Sprintf("idx:%s", c.collection)
}

func (c *RedisClient) getPrefix() string {
	return fmt.Sprintf("%s:", c.collection)
}
