package main

import (
	"errors"

	"github.com/urfave/cli/v2"
	"github.com/usnistgov/hugeplane/mem/frame"
	"github.com/usnistgov/hugeplane/pcpu"
	"github.com/usnistgov/hugeplane/pcpu/ops"
	"go4.org/must"
)

func init() {
	var blobArgs blobArgs
	var prog pcpu.Program
	var applySeed uint64
	flags := append(blobArgs.flags(),
		&cli.StringFlag{
			Name:  "op",
			Usage: "single `op`, such as COUNTEQ8",
		},
		&cli.StringFlag{
			Name:  "imm",
			Usage: "op immediate `octet`",
			Value: "0",
		},
		&cli.StringFlag{
			Name:  "prog",
			Usage: "pCPU `program` such as \"XOR8:0xFF FNV64\", instead of --op and --imm",
		},
		&cli.StringSliceFlag{
			Name:     "desc",
			Usage:    "descriptor `OFFSET:LEN`, repeatable",
			Required: true,
		},
		&cli.Uint64Flag{
			Name:        "apply-seed",
			Usage:       "initial FNV64 accumulator",
			Value:       ops.FNVOffsetBasis,
			Destination: &applySeed,
		},
	)

	defineCommand(&cli.Command{
		Name:  "apply",
		Usage: "Run a pCPU op or program once over descriptors and print metrics.",
		Flags: flags,
		Before: func(c *cli.Context) (e error) {
			switch {
			case c.IsSet("prog"):
				prog, e = pcpu.ParseProgram(c.String("prog"))
			case c.IsSet("op"):
				var st pcpu.Step
				st, e = pcpu.ParseStep(c.String("op") + ":" + c.String("imm"))
				prog = pcpu.Program{st}
			}
			if e != nil {
				return e
			}
			if len(prog) == 0 {
				return errors.New("either --op or --prog is required")
			}
			return prog.Validate()
		},
		Action: func(c *cli.Context) error {
			descs := []frame.Descriptor{}
			for _, s := range c.StringSlice("desc") {
				d, e := frame.ParseDescriptor(s)
				if e != nil {
					return e
				}
				descs = append(descs, d)
			}

			blob, e := blobArgs.Map()
			if e != nil {
				return e
			}
			defer must.Close(blob)

			var m pcpu.Metrics
			if len(prog) == 1 {
				m = pcpu.Apply(blob.Bytes(), descs, prog[0].Op, prog[0].Imm, applySeed)
			} else {
				m = pcpu.ApplyProgram(blob.Bytes(), descs, prog, applySeed)
			}
			printJSON(m)
			return nil
		},
	})
}
