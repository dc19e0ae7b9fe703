// Package relocate moves attachments between storage zones by copying them
// under a rewritten key.
package relocate

import (
	"context"
	"strings"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/Lllllllleong/formextractionflow/internal/objectstore"
)

// Zones are the key segments marking where an attachment lives.
type Zones struct {
	Inbound  string
	Outbound string
	Review   string
}

// DefaultZones match the layout the upstream mail ingester writes.
func DefaultZones() Zones {
	return Zones{Inbound: "inbound/", Outbound: "outbound/", Review: "review/"}
}

// Relocator copies objects out of the inbound zone. The source object is left
// in place, so relocating twice yields the same destination.
type Relocator struct {
	store objectstore.Store
	zones Zones
}

func New(store objectstore.Store, zones Zones) *Relocator {
	return &Relocator{store: store, zones: zones}
}

func (r *Relocator) Zones() Zones { return r.zones }

// Rewrite replaces the first occurrence of the inbound segment in key with
// zone. Keys without the segment are returned unchanged.
func (r *Relocator) Rewrite(key, zone string) string {
	return strings.Replace(key, r.zones.Inbound, zone, 1)
}

// Relocate copies bucket/sourceKey into zone and returns the destination key.
func (r *Relocator) Relocate(ctx context.Context, bucket, sourceKey, zone string) (string, error) {
	dest := r.Rewrite(sourceKey, zone)
	if dest == sourceKey {
		return dest, nil
	}
	if err := r.store.Copy(ctx, bucket, sourceKey, dest); err != nil {
		return "", models.RelocationError("failed to copy "+sourceKey+" to "+dest, err)
	}
	return dest, nil
}
