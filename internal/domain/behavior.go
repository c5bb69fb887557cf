package domain

import "time"

// BehaviorContext is the write-side context a behavior may consult.
type BehaviorContext struct {
	ActorID string
	Now     time.Time
	Op      Operation
}

// Behavior is one step of the entity write pipeline: a pure function over
// the entity's meta fields. Behaviors are selected by an explicit per-type
// capability declaration, never by inspecting runtime type identity.
type Behavior func(meta *EntityMeta, bctx BehaviorContext)

// Timestamped maintains created/updated times.
func Timestamped(meta *EntityMeta, bctx BehaviorContext) {
	if bctx.Op == OpCreate {
		meta.CreatedAt = bctx.Now
	}
	meta.UpdatedAt = bctx.Now
}

// Blamed records the acting subject on create/update/delete.
func Blamed(meta *EntityMeta, bctx BehaviorContext) {
	if bctx.ActorID == "" {
		return
	}
	if bctx.Op == OpCreate {
		meta.CreatedBy = bctx.ActorID
	}
	meta.UpdatedBy = bctx.ActorID
	if bctx.Op == OpDelete {
		meta.DeletedBy = bctx.ActorID
	}
}

// SoftDeleted marks deletion instead of erasing the row.
func SoftDeleted(meta *EntityMeta, bctx BehaviorContext) {
	if bctx.Op != OpDelete {
		return
	}
	at := bctx.Now
	meta.DeletedAt = &at
}

// Versioned bumps the optimistic-lock version on every mutation.
func Versioned(meta *EntityMeta, bctx BehaviorContext) {
	meta.Version++
}

// behaviorRegistry declares which pipeline each entity type runs, in order.
var behaviorRegistry = map[string][]Behavior{
	"order":      {Timestamped, Blamed, SoftDeleted, Versioned},
	"order_line": {Timestamped, Blamed, Versioned},
	"customer":   {Timestamped, Blamed, SoftDeleted, Versioned},
	"product":    {Timestamped, Blamed, SoftDeleted, Versioned},
	"fitter":     {Timestamped, Blamed, Versioned},
	"supplier":   {Timestamped, Blamed, Versioned},
}

// ApplyBehaviors runs the declared pipeline for the entity type. Types with
// no declaration get timestamps only, so no write goes entirely untracked.
func ApplyBehaviors(entityType string, meta *EntityMeta, bctx BehaviorContext) {
	pipeline, ok := behaviorRegistry[entityType]
	if !ok {
		pipeline = []Behavior{Timestamped}
	}
	for _, step := range pipeline {
		step(meta, bctx)
	}
}
