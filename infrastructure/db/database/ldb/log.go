package ldb

import (
	"github.com/kaspanet/fedstore/infrastructure/logger"
)

var log = logger.RegisterSubSystem("LVDB")
