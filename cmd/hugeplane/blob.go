package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"github.com/usnistgov/hugeplane/pcpu/ops"
	"go4.org/must"
)

func init() {
	var blobArgs blobArgs
	defineCommand(&cli.Command{
		Name:  "blob",
		Usage: "Map a HugeBlob, optionally fill it, and print its FNV-1a 64 digest.",
		Flags: blobArgs.flags(),
		Action: func(c *cli.Context) error {
			blob, e := blobArgs.Map()
			if e != nil {
				return e
			}
			defer must.Close(blob)

			printJSON(map[string]any{
				"kind":    blob.Kind(),
				"path":    blob.Path(),
				"size":    blob.Size(),
				"created": blob.Created(),
				"keep":    blob.Keep(),
				"fnv64":   fmt.Sprintf("%016x", ops.FNV64(ops.FNVOffsetBasis, blob.Bytes())),
			})
			return nil
		},
	})
}
