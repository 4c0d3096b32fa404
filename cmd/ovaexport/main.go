// Command ovaexport converts a VMware Workstation VM into a single
// self-contained OVA archive, compressing disk grains in parallel across
// CPU cores.
package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/codekami/ova-export/cmd/ovaexport/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		logrus.WithError(err).Error("ovaexport failed")
		os.Exit(1)
	}
}
