// Package params resolves named configuration values from a parameter
// store: SSM Parameter Store for the managed backend, or a static map for
// local runs. Lookups go through an LRU cache.
package params

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	lru "github.com/hashicorp/golang-lru"

	"cardpulse/internal/domain"
)

// Store resolves parameter names to values. Every requested name must be
// present; missing names are a configuration error.
type Store interface {
	GetParameters(ctx context.Context, names []string) (map[string]string, error)
}

func missingError(names []string) error {
	sort.Strings(names)
	return fmt.Errorf("%w: missing parameters: %s", domain.ErrFatalExternal, strings.Join(names, ", "))
}

// ---------------------------------------------------------------------------
// Static
// ---------------------------------------------------------------------------

// Compile-time interface checks.
var (
	_ Store = Static(nil)
	_ Store = (*SSMStore)(nil)
	_ Store = (*Cached)(nil)
)

// Static serves parameters from a fixed map.
type Static map[string]string

// GetParameters returns the requested entries.
func (s Static) GetParameters(_ context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	var missing []string
	for _, n := range names {
		v, ok := s[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		out[n] = v
	}
	if len(missing) > 0 {
		return nil, missingError(missing)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// SSM
// ---------------------------------------------------------------------------

// ssmBatch is the GetParameters name limit.
const ssmBatch = 10

// SSMAPI is the subset of the SSM client used by SSMStore.
type SSMAPI interface {
	GetParameters(ctx context.Context, in *ssm.GetParametersInput, opts ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMStore reads decrypted parameters from SSM Parameter Store.
type SSMStore struct {
	client SSMAPI
}

// NewSSMStore wraps an SSM client.
func NewSSMStore(client SSMAPI) *SSMStore {
	return &SSMStore{client: client}
}

// NewSSMStoreFromConfig builds the SSM client from an AWS config.
func NewSSMStoreFromConfig(cfg aws.Config) *SSMStore {
	return NewSSMStore(ssm.NewFromConfig(cfg))
}

// GetParameters fetches names in batches.
func (s *SSMStore) GetParameters(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	var missing []string
	for start := 0; start < len(names); start += ssmBatch {
		batch := names[start:min(start+ssmBatch, len(names))]
		resp, err := s.client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          batch,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: getting parameters: %v", domain.ErrFatalExternal, err)
		}
		missing = append(missing, resp.InvalidParameters...)
		for _, p := range resp.Parameters {
			out[aws.ToString(p.Name)] = aws.ToString(p.Value)
		}
	}
	if len(missing) > 0 {
		return nil, missingError(missing)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

// Cached memoizes another Store's values.
type Cached struct {
	next  Store
	cache *lru.Cache
}

// NewCached wraps next with an LRU cache of size entries.
func NewCached(next Store, size int) *Cached {
	if size <= 0 {
		size = 64
	}
	cache, _ := lru.New(size)
	return &Cached{next: next, cache: cache}
}

// GetParameters serves cached names and fetches the rest in one call.
func (c *Cached) GetParameters(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	var miss []string
	for _, n := range names {
		if v, ok := c.cache.Get(n); ok {
			out[n] = v.(string)
			continue
		}
		miss = append(miss, n)
	}
	if len(miss) == 0 {
		return out, nil
	}

	fetched, err := c.next.GetParameters(ctx, miss)
	if err != nil {
		return nil, err
	}
	for k, v := range fetched {
		c.cache.Add(k, v)
		out[k] = v
	}
	return out, nil
}
