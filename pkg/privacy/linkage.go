package privacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/datasovereign/platform-core/internal/cryptoutil"
	"github.com/datasovereign/platform-core/pkg/queryplan"
)

// LinkageGate enforces spec §4.4's linkage rate limit: a rolling-window
// count per (requesterId, queryHash) plus pairwise Jaccard similarity
// against prior queries in the window. Adapted from the teacher's
// login-attempt rate limiter (INCR+EXPIRE), generalized with a similarity
// check the login limiter never needed.
type LinkageGate struct {
	rdb                 *redis.Client
	windowLimit         int
	window              time.Duration
	similarityThreshold float64
	linkageLimit        int
}

// NewLinkageGate constructs a LinkageGate. windowLimit is the rolling
// count ceiling (spec default 10 per 24h), similarityThreshold the
// Jaccard cutoff above which two queries are considered linked, and
// linkageLimit the number of linked-query hits tolerated before the gate
// denies.
func NewLinkageGate(rdb *redis.Client, windowLimit int, window time.Duration, similarityThreshold float64, linkageLimit int) *LinkageGate {
	return &LinkageGate{
		rdb: rdb, windowLimit: windowLimit, window: window,
		similarityThreshold: similarityThreshold, linkageLimit: linkageLimit,
	}
}

func countKey(requesterID uuid.UUID) string {
	return fmt.Sprintf("linkage:count:%s", requesterID)
}

func linkageKey(requesterID uuid.UUID) string {
	return fmt.Sprintf("linkage:hits:%s", requesterID)
}

func windowKey(requesterID uuid.UUID) string {
	return fmt.Sprintf("linkage:window:%s", requesterID)
}

// Check evaluates a new query's criteria against the requester's rolling
// window and records it if allowed.
func (g *LinkageGate) Check(ctx context.Context, requesterID uuid.UUID, criteria map[string]string) (queryplan.GateDecision, error) {
	canon, err := cryptoutil.Canonical(criteria)
	if err != nil {
		return queryplan.GateDecision{}, fmt.Errorf("canonicalizing criteria: %w", err)
	}
	queryHash := cryptoutil.SHA256Hex(canon)

	count, err := g.incrWithExpiry(ctx, countKey(requesterID), g.window)
	if err != nil {
		return queryplan.GateDecision{}, err
	}
	if count > g.windowLimit {
		return queryplan.GateDecision{Allow: false, Reasons: []string{"LINKAGE_WINDOW_EXCEEDED"}}, nil
	}

	prior, err := g.priorEntries(ctx, requesterID)
	if err != nil {
		return queryplan.GateDecision{}, err
	}

	linked := false
	for _, entry := range prior {
		if jaccardSimilarity(criteria, entry.Criteria) > g.similarityThreshold {
			linked = true
			break
		}
	}

	if linked {
		hits, err := g.incrWithExpiry(ctx, linkageKey(requesterID), g.window)
		if err != nil {
			return queryplan.GateDecision{}, err
		}
		if hits > g.linkageLimit {
			return queryplan.GateDecision{Allow: false, Reasons: []string{"LINKAGE_SIMILARITY_THRESHOLD_EXCEEDED"}}, nil
		}
	}

	if err := g.recordEntry(ctx, requesterID, LinkageWindowEntry{QueryHash: queryHash, Criteria: criteria}); err != nil {
		return queryplan.GateDecision{}, err
	}

	return queryplan.GateDecision{Allow: true}, nil
}

// incrWithExpiry mirrors the teacher's RateLimiter.Record: INCR then set
// an expiry only on the first increment, so the window slides from the
// first observed query rather than resetting on every call.
func (g *LinkageGate) incrWithExpiry(ctx context.Context, key string, window time.Duration) (int, error) {
	pipe := g.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incrementing linkage counter: %w", err)
	}
	if incr.Val() == 1 {
		g.rdb.Expire(ctx, key, window)
	}
	return int(incr.Val()), nil
}

func (g *LinkageGate) priorEntries(ctx context.Context, requesterID uuid.UUID) ([]LinkageWindowEntry, error) {
	raw, err := g.rdb.LRange(ctx, windowKey(requesterID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading linkage window: %w", err)
	}
	entries := make([]LinkageWindowEntry, 0, len(raw))
	for _, r := range raw {
		var e LinkageWindowEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (g *LinkageGate) recordEntry(ctx context.Context, requesterID uuid.UUID, entry LinkageWindowEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := windowKey(requesterID)
	pipe := g.rdb.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(g.windowLimit*4))
	pipe.Expire(ctx, key, g.window)
	_, err = pipe.Exec(ctx)
	return err
}

// jaccardSimilarity compares two criteria maps as sets of "key=value"
// members: |intersection| / |union|.
func jaccardSimilarity(a, b map[string]string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := make(map[string]struct{}, len(a))
	for k, v := range a {
		setA[k+"="+v] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for k, v := range b {
		setB[k+"="+v] = struct{}{}
	}

	intersection := 0
	union := make(map[string]struct{}, len(setA)+len(setB))
	for m := range setA {
		union[m] = struct{}{}
		if _, ok := setB[m]; ok {
			intersection++
		}
	}
	for m := range setB {
		union[m] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}
