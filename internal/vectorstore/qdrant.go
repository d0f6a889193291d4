package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"github.com/debian777/kairos-mcp/internal/faults"
)

const opTimeout = 10 * time.Second

// Qdrant is the production Store. A single gRPC client is shared; on a failed
// operation the client is closed, reopened and the operation retried once.
type Qdrant struct {
	collection string
	vectorName string
	dimension  int

	host   string
	port   int
	useTLS bool
	apiKey string

	log zerolog.Logger

	mu     sync.Mutex
	client *qdrant.Client
}

// NewQdrant connects to the store at rawURL (scheme decides TLS, default gRPC
// port 6334) and ensures the collection exists with the named vector for the
// configured dimension.
func NewQdrant(ctx context.Context, rawURL, collection, vectorName string, dimension int, log zerolog.Logger) (*Qdrant, error) {
	host, port, useTLS, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	q := &Qdrant{
		collection: collection,
		vectorName: vectorName,
		dimension:  dimension,
		host:       host,
		port:       port,
		useTLS:     useTLS,
		log:        log.With().Str("component", "vectorstore").Logger(),
	}
	if err := q.reconnect(); err != nil {
		return nil, err
	}
	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func parseURL(raw string) (host string, port int, useTLS bool, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("vector store url %q: %w", raw, err)
	}
	host = u.Hostname()
	if host == "" {
		host = raw
	}
	port = 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("vector store port %q: %w", p, err)
		}
	}
	return host, port, u.Scheme == "https", nil
}

func (q *Qdrant) reconnect() error {
	if q.client != nil {
		_ = q.client.Close()
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   q.host,
		Port:   q.port,
		UseTLS: q.useTLS,
		APIKey: q.apiKey,
	})
	if err != nil {
		return faults.Wrap(err, faults.CodeStoreFailed, "connect to vector store")
	}
	q.client = client
	return nil
}

// do runs op under the per-op deadline, reconnecting and retrying exactly
// once on failure. A second failure is surfaced as STORE_FAILED.
func (q *Qdrant) do(ctx context.Context, name string, op func(ctx context.Context, c *qdrant.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	q.mu.Lock()
	client := q.client
	q.mu.Unlock()

	if err := op(ctx, client); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return faults.Wrap(err, faults.CodeStoreFailed, "vector store %s", name)
	} else {
		q.log.Warn().Err(err).Str("op", name).Msg("vector store call failed, reconnecting once")
	}

	q.mu.Lock()
	if rerr := q.reconnect(); rerr != nil {
		q.mu.Unlock()
		return rerr
	}
	client = q.client
	q.mu.Unlock()

	if err := op(ctx, client); err != nil {
		return faults.Wrap(err, faults.CodeStoreFailed, "vector store %s (after reconnect)", name)
	}
	return nil
}

func (q *Qdrant) ensureCollection(ctx context.Context) error {
	return q.do(ctx, "ensure collection", func(ctx context.Context, c *qdrant.Client) error {
		exists, err := c.CollectionExists(ctx, q.collection)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		return c.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
				q.vectorName: {
					Size:     uint64(q.dimension),
					Distance: qdrant.Distance_Cosine,
				},
			}),
		})
	})
}

func (q *Qdrant) filter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.ChainID != "" {
		must = append(must, qdrant.NewMatch("chain.id", f.ChainID))
	}
	if len(f.SpaceIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords("space_id", f.SpaceIDs...))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &qdrant.PointStruct{
			Id: qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				q.vectorName: qdrant.NewVector(p.Vector...),
			}),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}
	return q.do(ctx, "upsert", func(ctx context.Context, c *qdrant.Client) error {
		_, err := c.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         structs,
		})
		return err
	})
}

func (q *Qdrant) Search(ctx context.Context, vector []float32, limit int, f Filter) ([]Scored, error) {
	var out []Scored
	err := q.do(ctx, "search", func(ctx context.Context, c *qdrant.Client) error {
		hits, err := c.Query(ctx, &qdrant.QueryPoints{
			CollectionName: q.collection,
			Query:          qdrant.NewQuery(vector...),
			Using:          qdrant.PtrOf(q.vectorName),
			Limit:          qdrant.PtrOf(uint64(limit)),
			Filter:         q.filter(f),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		out = out[:0]
		for _, h := range hits {
			out = append(out, Scored{
				Point: Point{ID: h.GetId().GetUuid(), Payload: payloadToMap(h.GetPayload())},
				Score: h.GetScore(),
			})
		}
		return nil
	})
	return out, err
}

func (q *Qdrant) Retrieve(ctx context.Context, pointIDs []string) ([]Point, error) {
	qids := make([]*qdrant.PointId, 0, len(pointIDs))
	for _, id := range pointIDs {
		qids = append(qids, qdrant.NewID(id))
	}
	var out []Point
	err := q.do(ctx, "retrieve", func(ctx context.Context, c *qdrant.Client) error {
		points, err := c.Get(ctx, &qdrant.GetPoints{
			CollectionName: q.collection,
			Ids:            qids,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		out = out[:0]
		for _, p := range points {
			out = append(out, Point{ID: p.GetId().GetUuid(), Payload: payloadToMap(p.GetPayload())})
		}
		return nil
	})
	return out, err
}

func (q *Qdrant) Scroll(ctx context.Context, f Filter, limit int) ([]Point, error) {
	var out []Point
	err := q.do(ctx, "scroll", func(ctx context.Context, c *qdrant.Client) error {
		points, err := c.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Filter:         q.filter(f),
			Limit:          qdrant.PtrOf(uint32(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		out = out[:0]
		for _, p := range points {
			out = append(out, Point{ID: p.GetId().GetUuid(), Payload: payloadToMap(p.GetPayload())})
		}
		return nil
	})
	return out, err
}

func (q *Qdrant) DeleteByFilter(ctx context.Context, f Filter) error {
	qf := q.filter(f)
	if qf == nil {
		return faults.New(faults.CodeInvalidInput, "refusing unfiltered delete")
	}
	return q.do(ctx, "delete by filter", func(ctx context.Context, c *qdrant.Client) error {
		_, err := c.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelectorFilter(qf),
		})
		return err
	})
}

func (q *Qdrant) DeleteIDs(ctx context.Context, pointIDs []string) error {
	qids := make([]*qdrant.PointId, 0, len(pointIDs))
	for _, id := range pointIDs {
		qids = append(qids, qdrant.NewID(id))
	}
	return q.do(ctx, "delete ids", func(ctx context.Context, c *qdrant.Client) error {
		_, err := c.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelector(qids...),
		})
		return err
	})
}

func (q *Qdrant) SetPayload(ctx context.Context, id string, payload map[string]any) error {
	return q.do(ctx, "set payload", func(ctx context.Context, c *qdrant.Client) error {
		_, err := c.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Payload:        qdrant.NewValueMap(payload),
			PointsSelector: qdrant.NewPointsSelector(qdrant.NewID(id)),
		})
		return err
	})
}

func (q *Qdrant) Healthy(ctx context.Context) error {
	return q.do(ctx, "health check", func(ctx context.Context, c *qdrant.Client) error {
		_, err := c.HealthCheck(ctx)
		return err
	})
}

// Close releases the underlying gRPC connection.
func (q *Qdrant) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.client == nil {
		return nil
	}
	err := q.client.Close()
	q.client = nil
	return err
}

// payloadToMap converts qdrant protobuf values into plain Go values so the
// rest of the server never sees the wire types.
func payloadToMap(p map[string]*qdrant.Value) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, f := range kind.StructValue.GetFields() {
			out[k] = valueToAny(f)
		}
		return out
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, 0, len(values))
		for _, item := range values {
			out = append(out, valueToAny(item))
		}
		return out
	default:
		return nil
	}
}
