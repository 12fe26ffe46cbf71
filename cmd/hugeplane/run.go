package main

import (
	"github.com/urfave/cli/v2"
	"github.com/usnistgov/hugeplane/app/channel"
	"github.com/usnistgov/hugeplane/core/yamlflag"
	"github.com/usnistgov/hugeplane/pcpu"
	"go4.org/must"
)

// runConfig is the document accepted by --config.
type runConfig struct {
	Channel   channel.Config         `json:"channel"`
	Producer  channel.ProducerConfig `json:"producer"`
	Consumer  channel.ConsumerConfig `json:"consumer"`
	Producers int                    `json:"producers"`
	Consumers int                    `json:"consumers"`
}

func (cfg *runConfig) configFlag() cli.Flag {
	return &cli.GenericFlag{
		Name:  "config",
		Usage: "channel, producer, and consumer config as YAML `document` or @file",
		Value: yamlflag.New(cfg),
	}
}

func (cfg *runConfig) producerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "producers",
			Usage: "number of producer `threads`",
		},
		&cli.Float64Flag{
			Name:  "pps",
			Usage: "per-producer pacing `rate` in frames per second; 0 disables",
		},
		&cli.IntFlag{
			Name:  "burst",
			Usage: "pacing burst `size`",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "descriptor generation `mode`: contig or scatter",
		},
	}
}

func (cfg *runConfig) consumerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "consumers",
			Usage: "number of consumer `threads`",
		},
		&cli.StringFlag{
			Name:  "prog",
			Usage: "pCPU `program` executed over each frame, such as \"XOR8:0xFF FNV64\"",
		},
		&cli.BoolFlag{
			Name:  "verify-seq",
			Usage: "verify per-ring frame sequence numbers",
		},
	}
}

// override applies command line flags on top of the config document.
func (cfg *runConfig) override(c *cli.Context) (e error) {
	if c.IsSet("producers") {
		cfg.Producers = c.Int("producers")
	}
	if c.IsSet("pps") {
		cfg.Producer.Pace.PPS = c.Float64("pps")
	}
	if c.IsSet("burst") {
		cfg.Producer.Pace.Burst = c.Int("burst")
	}
	if c.IsSet("mode") {
		if e = cfg.Channel.Mode.UnmarshalText([]byte(c.String("mode"))); e != nil {
			return e
		}
	}
	if c.IsSet("consumers") {
		cfg.Consumers = c.Int("consumers")
	}
	if c.IsSet("prog") {
		if cfg.Consumer.Program, e = pcpu.ParseProgram(c.String("prog")); e != nil {
			return e
		}
	}
	if c.IsSet("verify-seq") {
		cfg.Consumer.VerifySeq = c.Bool("verify-seq")
	}
	if cfg.Producers <= 0 {
		cfg.Producers = 1
	}
	if cfg.Consumers <= 0 {
		cfg.Consumers = 1
	}
	return nil
}

type spawner interface {
	Config() channel.Config
	SpawnProducer(cfg channel.ProducerConfig) (*channel.Producer, error)
	SpawnConsumer(cfg channel.ConsumerConfig) (*channel.Consumer, error)
}

// spawnProducers spawns producers over contiguous disjoint ring ranges.
func (cfg *runConfig) spawnProducers(sp spawner) error {
	for _, r := range channel.Partition(sp.Config().RingsN(), cfg.Producers) {
		pc := cfg.Producer
		pc.Rings = r
		if _, e := sp.SpawnProducer(pc); e != nil {
			return e
		}
	}
	return nil
}

// spawnConsumers spawns consumers over contiguous disjoint ring ranges.
func (cfg *runConfig) spawnConsumers(sp spawner) error {
	for _, r := range channel.Partition(sp.Config().RingsN(), cfg.Consumers) {
		cc := cfg.Consumer
		cc.Rings = r
		if _, e := sp.SpawnConsumer(cc); e != nil {
			return e
		}
	}
	return nil
}

func init() {
	var blobArgs blobArgs
	var loopArgs loopArgs
	var cfg runConfig
	flags := append(blobArgs.flags(), loopArgs.flags()...)
	flags = append(flags, cfg.configFlag())
	flags = append(flags, cfg.producerFlags()...)
	flags = append(flags, cfg.consumerFlags()...)

	defineCommand(&cli.Command{
		Name:   "run",
		Usage:  "Run producers and consumers over one channel in this process.",
		Flags:  flags,
		Before: cfg.override,
		Action: func(c *cli.Context) error {
			blob, e := blobArgs.Map()
			if e != nil {
				return e
			}
			defer must.Close(blob)

			ch, e := channel.New(blob, cfg.Channel)
			if e != nil {
				return e
			}
			defer must.Close(ch)

			if e := cfg.spawnConsumers(ch); e != nil {
				return e
			}
			if e := cfg.spawnProducers(ch); e != nil {
				return e
			}
			return loopArgs.run(ch)
		},
	})
}
