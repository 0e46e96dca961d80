// Command listquery serves paginated, filterable list endpoints over MongoDB
// collections.
package main

import (
	"github.com/nimburion/listquery/pkg/cli"
	"github.com/nimburion/listquery/pkg/service"
)

func main() {
	cmd := cli.NewServiceCommand(cli.ServiceCommandOptions{
		Name:              "listquery",
		Description:       "List query service for MongoDB collections",
		EnvPrefix:         "APP",
		RunServer:         service.Run,
		RunCacheClean:     service.CleanCache,
		CheckDependencies: service.CheckDependencies,
	})
	cli.Execute(cmd)
}
