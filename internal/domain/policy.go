package domain

import (
	"fmt"
	"strings"
	"time"
)

// Tier is a named TTL category. Every cache write declares or infers exactly one tier.
type Tier string

const (
	TierReference    Tier = "reference"
	TierSearchOrder  Tier = "search_order"
	TierSearchFitter Tier = "search_fitter"
	TierSession      Tier = "session"
	TierAuthToken    Tier = "auth_token"
	TierDerivedView  Tier = "derived_view"
	TierDefault      Tier = "default"
)

var tierTTL = map[Tier]time.Duration{
	TierReference:    60 * time.Minute,
	TierSearchOrder:  5 * time.Minute,
	TierSearchFitter: 10 * time.Minute,
	TierSession:      30 * time.Minute,
	TierAuthToken:    15 * time.Minute,
	TierDerivedView:  5 * time.Minute,
	TierDefault:      5 * time.Minute,
}

// TTL resolves the tier's duration. Unknown tiers resolve to the default tier.
func (t Tier) TTL() time.Duration {
	if d, ok := tierTTL[t]; ok {
		return d
	}
	return tierTTL[TierDefault]
}

// Operation is the mutating domain operation that triggered an invalidation.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpBulk   Operation = "bulk"
)

// EntityRef identifies a related entity touched by the same write.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// InvalidationContext is created by the write path on every mutating
// operation and consumed exactly once by the coordinator.
type InvalidationContext struct {
	EntityType      string      `json:"entity_type"`
	EntityID        string      `json:"entity_id,omitempty"`
	Operation       Operation   `json:"operation"`
	ActorID         string      `json:"actor_id,omitempty"`
	RelatedEntities []EntityRef `json:"related_entities,omitempty"`
}

// PatternSet splits the keys touched by a write into patterns deleted inline
// and patterns drained through the queue. The split keeps the write path from
// serializing behind an unbounded invalidation fan-out: only keys the caller
// is likely to immediately re-read are removed synchronously.
type PatternSet struct {
	Immediate []string
	Deferred  []string
}

// entityPatterns maps an entity type to its pattern templates. A single "%s"
// in a template is replaced with the entity ID; templates without a
// placeholder are used as-is. Tightly-coupled aggregate keys of *other*
// entities (a customer's order list when an order changes) are reached via
// RelatedEntities recursion, not listed here.
type entityPatterns struct {
	immediate []string
	deferred  []string
}

var patternTable = map[string]entityPatterns{
	"order": {
		immediate: []string{"order:%s", "order:*", "search:order:*"},
		deferred:  []string{"analytics:order:*", "dashboard:orders:*", "report:order:*", "order_analytics_view:*"},
	},
	"order_line": {
		immediate: []string{"order_line:%s", "order_line:list:*"},
		deferred:  []string{"analytics:order:*", "order_analytics_view:*"},
	},
	"customer": {
		immediate: []string{"customer:%s", "customer:%s:orders", "customer:list:*", "customer:*"},
		deferred:  []string{"analytics:customer:*", "dashboard:customers:*", "customer_ltv_view:*"},
	},
	"product": {
		immediate: []string{"product:%s", "product:list:*", "reference:product:*"},
		deferred:  []string{"analytics:product:*", "product_margin_view:*"},
	},
	"fitter": {
		immediate: []string{"fitter:%s", "fitter:list:*", "search:fitter:*"},
		deferred:  []string{"dashboard:capacity:*", "fitter_utilization_view:*"},
	},
	"supplier": {
		immediate: []string{"supplier:%s", "supplier:list:*", "reference:supplier:*"},
		deferred:  []string{"report:supplier:*", "supplier_performance_view:*"},
	},
}

// PatternsFor computes the pattern set for one entity write. Unknown entity
// types resolve to a generic per-type list pattern only.
func PatternsFor(entityType, entityID string) PatternSet {
	entityType = strings.TrimSpace(strings.ToLower(entityType))
	spec, ok := patternTable[entityType]
	if !ok {
		return PatternSet{Immediate: []string{entityType + ":*"}}
	}
	return PatternSet{
		Immediate: expandPatterns(spec.immediate, entityID),
		Deferred:  expandPatterns(spec.deferred, entityID),
	}
}

func expandPatterns(templates []string, entityID string) []string {
	out := make([]string, 0, len(templates))
	for _, tpl := range templates {
		if strings.Contains(tpl, "%s") {
			if entityID == "" {
				// Without an ID the per-entity key cannot be addressed; the
				// wildcard patterns in the same set still cover list caches.
				continue
			}
			out = append(out, strings.ReplaceAll(tpl, "%s", entityID))
			continue
		}
		out = append(out, tpl)
	}
	return out
}

// ViewTrigger declares that writes to an entity type schedule a refresh of a
// derived view. Delays and priorities are tunable defaults: central, volatile
// entities refresh sooner and ahead of peripheral ones.
type ViewTrigger struct {
	View     string
	Delay    time.Duration
	Priority int
}

var viewTriggers = map[string][]ViewTrigger{
	"order":      {{View: "order_analytics_view", Delay: 30 * time.Second, Priority: 10}},
	"order_line": {{View: "order_analytics_view", Delay: 30 * time.Second, Priority: 9}},
	"customer":   {{View: "customer_ltv_view", Delay: 60 * time.Second, Priority: 7}},
	"product":    {{View: "product_margin_view", Delay: 120 * time.Second, Priority: 5}},
	"fitter":     {{View: "fitter_utilization_view", Delay: 300 * time.Second, Priority: 3}},
	"supplier":   {{View: "supplier_performance_view", Delay: 300 * time.Second, Priority: 3}},
}

// ViewTriggersFor lists the derived views refreshed after a write to the
// given entity type.
func ViewTriggersFor(entityType string) []ViewTrigger {
	return viewTriggers[strings.TrimSpace(strings.ToLower(entityType))]
}

// ViewCachePattern is the cache pattern owned by a derived view. The queue
// worker invalidates it right after the view itself is refreshed.
func ViewCachePattern(view string) string {
	return fmt.Sprintf("%s:*", view)
}

// tagPatterns groups cache patterns under logical tags for the admin
// surface, so operators can flush a concern without knowing its key shapes.
var tagPatterns = map[string][]string{
	"orders":    {"order:*", "order_line:*", "search:order:*"},
	"customers": {"customer:*"},
	"catalog":   {"product:*", "reference:product:*", "reference:supplier:*"},
	"analytics": {"analytics:*", "dashboard:*", "report:*"},
	"views":     {"order_analytics_view:*", "customer_ltv_view:*", "product_margin_view:*", "fitter_utilization_view:*", "supplier_performance_view:*"},
	"sessions":  {"session:*", "auth:*"},
}

// PatternsForTag resolves a logical tag to its cache patterns. Unknown tags
// resolve to nothing rather than a dangerous catch-all.
func PatternsForTag(tag string) []string {
	return tagPatterns[strings.TrimSpace(strings.ToLower(tag))]
}

// KnownEntityTypes returns the entity types with an explicit dependency
// mapping, in no particular order.
func KnownEntityTypes() []string {
	out := make([]string, 0, len(patternTable))
	for t := range patternTable {
		out = append(out, t)
	}
	return out
}
