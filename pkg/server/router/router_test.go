package router_test

import (
	"testing"

	"github.com/nimburion/listquery/pkg/server/router"
	ginadapter "github.com/nimburion/listquery/pkg/server/router/gin"
	gorillaadapter "github.com/nimburion/listquery/pkg/server/router/gorilla"
)

func TestRouterImplementations_ConformToInterface(t *testing.T) {
	var _ router.Router = ginadapter.NewRouter()
	var _ router.Router = gorillaadapter.NewRouter()
}
