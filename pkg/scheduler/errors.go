package scheduler

import (
	"fmt"

	"github.com/fcpp-project/fcpp-go/pkg/util"
)

func errDuplicateUID(uid uint32) error {
	return util.NewInvariantError("two live devices sharing a uid", fmt.Sprintf("uid=%d", uid))
}
