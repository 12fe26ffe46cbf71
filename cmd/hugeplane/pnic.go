package main

import (
	"github.com/urfave/cli/v2"
	"github.com/usnistgov/hugeplane/app/pnic"
	"github.com/usnistgov/hugeplane/mem/hugeblob"
	"go.uber.org/zap"
	"go4.org/must"
)

func regionFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:     "region",
		Usage:    "pNIC region `file`, repeatable; one ring per region",
		Required: true,
	}
}

func init() {
	var produce struct {
		blob blobArgs
		loop loopArgs
		cfg  runConfig
	}
	produceFlags := append(produce.blob.flags(), produce.loop.flags()...)
	produceFlags = append(produceFlags, regionFlag(), produce.cfg.configFlag())
	produceFlags = append(produceFlags, produce.cfg.producerFlags()...)

	var aggregate struct {
		blob blobArgs
		loop loopArgs
		cfg  runConfig
	}
	aggregateFlags := append(aggregate.blob.flags(), aggregate.loop.flags()...)
	aggregateFlags = append(aggregateFlags, regionFlag(), aggregate.cfg.configFlag())
	aggregateFlags = append(aggregateFlags, aggregate.cfg.consumerFlags()...)

	defineCommand(&cli.Command{
		Name:  "pnic",
		Usage: "Run producers and consumers in separate processes over pNIC shared memory regions.",
		Subcommands: []*cli.Command{
			{
				Name:   "produce",
				Usage:  "Create regions and publish frames into them.",
				Flags:  produceFlags,
				Before: produce.cfg.override,
				Action: func(c *cli.Context) error {
					blob, e := produce.blob.Map()
					if e != nil {
						return e
					}
					defer must.Close(blob)
					warnUnshared(blob)

					g, e := pnic.Export(blob, c.StringSlice("region"), produce.cfg.Channel)
					if e != nil {
						return e
					}
					defer must.Close(g)

					if e := produce.cfg.spawnProducers(g); e != nil {
						return e
					}
					return produce.loop.run(g)
				},
			},
			{
				Name:   "aggregate",
				Usage:  "Open regions and consume frames from all of them.",
				Flags:  aggregateFlags,
				Before: aggregate.cfg.override,
				Action: func(c *cli.Context) error {
					blob, e := aggregate.blob.Map()
					if e != nil {
						return e
					}
					defer must.Close(blob)
					warnUnshared(blob)

					g, e := pnic.Aggregate(blob, c.StringSlice("region"), aggregate.cfg.Channel)
					if e != nil {
						return e
					}
					defer must.Close(g)

					if e := aggregate.cfg.spawnConsumers(g); e != nil {
						return e
					}
					return aggregate.loop.run(g)
				},
			},
		},
	})
}

func warnUnshared(blob *hugeblob.Blob) {
	if blob.Kind() != hugeblob.PageFile {
		logger.Warn("blob is not file-backed, other processes cannot see its contents", zap.Stringer("blob", blob))
	}
}
