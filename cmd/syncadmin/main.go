package main

import "github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/cli"

func main() {
	cli.Execute()
}
