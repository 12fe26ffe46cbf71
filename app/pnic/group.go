package pnic

import (
	"fmt"

	"github.com/usnistgov/hugeplane/app/channel"
	"github.com/usnistgov/hugeplane/mem/hugeblob"
	"github.com/usnistgov/hugeplane/thread/lthread"
	"go.uber.org/multierr"
	"go4.org/must"
)

// Group is a channel whose lanes live in pNIC regions, one region per ring.
type Group struct {
	*channel.Channel
	regions []*Region
}

// Export creates regions at paths and composes a channel over them.
// Producers spawned on the returned channel publish frames that another process can Aggregate.
// cfg.Ports and cfg.Queues are overwritten; completion rings are not supported.
func Export(blob *hugeblob.Blob, paths []string, cfg channel.Config) (*Group, error) {
	if len(paths) == 0 {
		return nil, channel.ErrPorts
	}
	regions := []*Region{}
	for _, path := range paths {
		r, e := Create(path, cfg)
		if e != nil {
			closeRegions(regions)
			return nil, e
		}
		regions = append(regions, r)
	}
	return compose(blob, regions, cfg)
}

// Aggregate opens existing regions at paths and composes a channel over them.
// Ring capacity, Dpf, and Align are taken from the first region; every region must have the same geometry.
// Consumers spawned via SpawnConsumer use the AGGREGATOR allocation role.
func Aggregate(blob *hugeblob.Blob, paths []string, cfg channel.Config) (*Group, error) {
	if len(paths) == 0 {
		return nil, channel.ErrPorts
	}
	regions := []*Region{}
	for _, path := range paths {
		r, e := Open(path)
		if e != nil {
			closeRegions(regions)
			return nil, e
		}
		regions = append(regions, r)
	}

	lo := regions[0].Layout()
	for _, r := range regions[1:] {
		if rlo := r.Layout(); rlo.RingSize != lo.RingSize || rlo.Dpf != lo.Dpf || rlo.Align != lo.Align {
			closeRegions(regions)
			return nil, fmt.Errorf("%w: %s has ring=%d dpf=%d align=%d, %s has ring=%d dpf=%d align=%d", channel.ErrLane,
				r.Path(), rlo.RingSize, rlo.Dpf, rlo.Align, regions[0].Path(), lo.RingSize, lo.Dpf, lo.Align)
		}
	}
	cfg.RingPow2, cfg.Dpf, cfg.Align = regions[0].RingPow2(), lo.Dpf, lo.Align
	return compose(blob, regions, cfg)
}

func compose(blob *hugeblob.Blob, regions []*Region, cfg channel.Config) (*Group, error) {
	cfg.Ports, cfg.Queues, cfg.CqEnable = len(regions), 1, false
	lanes := make([]*channel.Lane, len(regions))
	for i, r := range regions {
		lanes[i] = r.Lane()
	}

	ch, e := channel.Compose(blob, cfg, lanes)
	if e != nil {
		closeRegions(regions)
		return nil, fmt.Errorf("compose %d regions: %w", len(regions), e)
	}
	return &Group{Channel: ch, regions: regions}, nil
}

func closeRegions(regions []*Region) {
	for _, r := range regions {
		must.Close(r)
	}
}

// Regions returns the regions in ring order.
func (g *Group) Regions() []*Region {
	return g.regions
}

// SpawnConsumer creates and launches a consumer thread in the AGGREGATOR role unless cfg.Role is set.
func (g *Group) SpawnConsumer(cfg channel.ConsumerConfig) (*channel.Consumer, error) {
	if cfg.Role == "" {
		cfg.Role = lthread.RoleAggregator
	}
	return g.Channel.SpawnConsumer(cfg)
}

// Close stops and joins the channel, then unmaps the regions.
func (g *Group) Close() error {
	errs := []error{g.Channel.Close()}
	for _, r := range g.regions {
		errs = append(errs, r.Close())
	}
	return multierr.Combine(errs...)
}
